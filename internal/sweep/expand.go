// Package sweep expands a parameter grid into backtest jobs and runs them
// across a worker pool.
package sweep

import (
	"fmt"

	"github.com/aspis-finance/aspis-backtesting/internal/backtest"
	"github.com/aspis-finance/aspis-backtesting/internal/config"
)

// Job is one fully-bound backtest run. Raw keeps the merged scalar map the
// parameters were bound from, for reporting.
type Job struct {
	Index  int
	Raw    map[string]any
	Params backtest.Params
}

// Expand crosses the grid's varying parameters for every instrument and
// binds each combination into run parameters. Within an instrument, the
// last declared varying parameter cycles fastest. Precedence when keys
// collide: varying over instrument over constants.
//
// All jobs are bound up front so a malformed grid fails before any run
// starts.
func Expand(grid *config.GridSpec) ([]Job, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}

	combos := cross(grid.Varying)
	jobs := make([]Job, 0, len(grid.Instruments)*len(combos))
	for _, inst := range grid.Instruments {
		for _, combo := range combos {
			raw := make(map[string]any, len(grid.Constants)+len(inst)+len(combo))
			for k, v := range grid.Constants {
				raw[k] = v.Any()
			}
			for k, v := range inst {
				raw[k] = v.Any()
			}
			for i, p := range grid.Varying {
				raw[p.Name] = combo[i].Any()
			}
			if _, ok := raw["name"]; !ok {
				raw["name"] = jobName(raw, len(jobs))
			}

			params, err := backtest.BindParams(raw)
			if err != nil {
				return nil, fmt.Errorf("binding job %d: %w", len(jobs), err)
			}
			jobs = append(jobs, Job{Index: len(jobs), Raw: raw, Params: params})
		}
	}
	return jobs, nil
}

// cross enumerates the cartesian product of the varying parameter values.
// The rightmost parameter cycles fastest.
func cross(varying config.VaryingParams) [][]config.Value {
	total := 1
	for _, p := range varying {
		total *= len(p.Values)
	}

	combos := make([][]config.Value, 0, total)
	idx := make([]int, len(varying))
	for {
		combo := make([]config.Value, len(varying))
		for i, p := range varying {
			combo[i] = p.Values[idx[i]]
		}
		combos = append(combos, combo)

		i := len(varying) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(varying[i].Values) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			break
		}
	}
	return combos
}

func jobName(raw map[string]any, index int) string {
	symbol, _ := raw["symbol"].(string)
	strat, _ := raw["strategy"].(string)
	return fmt.Sprintf("%s-%s-%04d", symbol, strat, index)
}
