package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Grid specification
// ---------------------------------------------------------------------------

// GridSpec describes a parameter sweep: constants shared by every run,
// per-instrument settings, and the varying parameters to cross.
type GridSpec struct {
	Constants   map[string]Value   `yaml:"constants"`
	Instruments []map[string]Value `yaml:"instruments"`
	Varying     VaryingParams      `yaml:"varying"`
}

// VaryingParam is one swept parameter and its candidate values.
type VaryingParam struct {
	Name   string
	Values []Value
}

// VaryingParams preserves the declaration order of the swept parameters.
// The last declared parameter varies fastest during expansion.
type VaryingParams []VaryingParam

// UnmarshalYAML decodes a mapping of parameter name to value list, keeping
// the mapping's key order.
func (v *VaryingParams) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("varying must be a mapping, got %s", node.Tag)
	}

	params := make(VaryingParams, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]

		var values []Value
		if err := valNode.Decode(&values); err != nil {
			return fmt.Errorf("varying parameter %q: %w", keyNode.Value, err)
		}
		params = append(params, VaryingParam{Name: keyNode.Value, Values: values})
	}
	*v = params
	return nil
}

// Validate checks that the grid can be expanded into runnable jobs.
func (g *GridSpec) Validate() error {
	if len(g.Instruments) == 0 {
		return fmt.Errorf("grid needs at least one instrument")
	}
	seen := make(map[string]bool, len(g.Varying))
	for _, p := range g.Varying {
		if seen[p.Name] {
			return fmt.Errorf("varying parameter %q declared twice", p.Name)
		}
		seen[p.Name] = true
		if len(p.Values) == 0 {
			return fmt.Errorf("varying parameter %q has no values", p.Name)
		}
	}
	return nil
}

// LoadGrid reads and validates a sweep grid specification from a YAML file.
func LoadGrid(path string) (*GridSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	grid := &GridSpec{}
	if err := yaml.Unmarshal(data, grid); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := grid.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return grid, nil
}

// ---------------------------------------------------------------------------
// Scalar values
// ---------------------------------------------------------------------------

// Value is a single grid scalar: a string, a bool, or a number. Numbers are
// parsed from their YAML literal into decimals, so 2.5 stays exactly 2.5.
type Value struct {
	v any
}

// StringValue builds a string Value.
func StringValue(s string) Value { return Value{v: s} }

// BoolValue builds a bool Value.
func BoolValue(b bool) Value { return Value{v: b} }

// DecimalValue builds a numeric Value.
func DecimalValue(d decimal.Decimal) Value { return Value{v: d} }

// Any returns the underlying string, bool, or decimal.Decimal.
func (v Value) Any() any { return v.v }

// UnmarshalYAML decodes a YAML scalar, keeping numeric literals exact.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("expected a scalar, got %s", node.Tag)
	}

	switch node.Tag {
	case "!!int", "!!float":
		d, err := decimal.NewFromString(node.Value)
		if err != nil {
			return fmt.Errorf("parsing number %q: %w", node.Value, err)
		}
		v.v = d
	case "!!bool":
		b, err := strconv.ParseBool(node.Value)
		if err != nil {
			return fmt.Errorf("parsing bool %q: %w", node.Value, err)
		}
		v.v = b
	default:
		v.v = node.Value
	}
	return nil
}
