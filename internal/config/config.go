// Package config loads the application configuration and parameter-sweep
// grid specifications from YAML files.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the backtester.
type Config struct {
	Storage Storage     `yaml:"storage"`
	Logging Logging     `yaml:"logging"`
	Sweep   SweepConfig `yaml:"sweep"`
}

// Storage holds paths for candle data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SweepConfig controls parameter-sweep execution.
type SweepConfig struct {
	// CPUMargin is how many CPUs to leave free when sizing the worker pool.
	CPUMargin int `yaml:"cpu_margin"`

	// RankKey selects the metric used to pick the best run.
	RankKey string `yaml:"rank_key"`
}

// Default returns the built-in configuration used when no file is given.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/bars.db",
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Sweep: SweepConfig{
			CPUMargin: 4,
			RankKey:   "profit",
		},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it on
// top of the defaults, and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("ASPIS_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("ASPIS_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("ASPIS_CPU_MARGIN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ASPIS_CPU_MARGIN: %w", err)
		}
		cfg.Sweep.CPUMargin = n
	}
	return nil
}
