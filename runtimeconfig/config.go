// Package runtimeconfig loads the optional file that tunes the live
// evaluation and tool surface without a redeploy.
package runtimeconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

type Config struct {
	Eval EvalConfig `yaml:"eval"`
	// Tools restricts the exposed tool set; empty or "*" keeps every tool.
	Tools []string `yaml:"tools"`
	// Guardrails lists the builtin guardrails to run on input, in order.
	Guardrails []string `yaml:"guardrails"`
}

type EvalConfig struct {
	Enabled *bool `yaml:"enabled"`
	// SamplingRate overrides EVAL_SAMPLING_RATE when set.
	SamplingRate *float64 `yaml:"samplingRate"`
	Scorers      []string `yaml:"scorers"`
}

// IsEnabled reports whether live scoring should run. It defaults to true.
func (e EvalConfig) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// Load reads a YAML (or JSON) config file.
func Load(path string) (Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Config{}, fmt.Errorf("config path is required")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to resolve config path: %w", err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %q: %w", absPath, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config file %q: %w", absPath, err)
	}

	cfg.Tools = clean(cfg.Tools)
	cfg.Guardrails = clean(cfg.Guardrails)
	cfg.Eval.Scorers = clean(cfg.Eval.Scorers)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config file %q: %w", absPath, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if r := c.Eval.SamplingRate; r != nil && (*r < 0 || *r > 1) {
		return fmt.Errorf("eval.samplingRate must be within [0, 1], got %v", *r)
	}
	return nil
}

func clean(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
