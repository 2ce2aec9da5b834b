// Package config holds the compiler configuration read from a YAML file.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"contractc/internal/codegen"
	"contractc/internal/optimize"
)

// DefaultFile is the configuration file looked up next to the input
const DefaultFile = "contractc.yaml"

// Config is the full compiler configuration
type Config struct {
	Optimize OptimizeConfig `yaml:"optimize"`
	Verify   bool           `yaml:"verify"`
	Codegen  CodegenConfig  `yaml:"codegen"`
	Log      LogConfig      `yaml:"log"`
}

// OptimizeConfig selects optimizer passes
type OptimizeConfig struct {
	Inline            bool `yaml:"inline"`
	InlineThreshold   int  `yaml:"inline_threshold"`
	Simplify          bool `yaml:"simplify"`
	AggregateLowering bool `yaml:"aggregate_lowering"`
}

// CodegenConfig tunes the code generator
type CodegenConfig struct {
	Registers           int  `yaml:"registers"`
	ShortJumpBits       int  `yaml:"short_jump_bits"`
	ShortCondJumpBits   int  `yaml:"short_cond_jump_bits"`
	RelocateColdBlocks  bool `yaml:"relocate_cold_blocks"`
	MaxLayoutIterations int  `yaml:"max_layout_iterations"`
	Parallelism         int  `yaml:"parallelism"`
}

// LogConfig sets the commonlog verbosity: 0 is errors only, each step up
// adds warnings, notices, info and debug
type LogConfig struct {
	Verbosity int `yaml:"verbosity"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	o := optimize.DefaultOptions()
	c := codegen.DefaultOptions()
	return &Config{
		Optimize: OptimizeConfig{
			Inline:            o.Inline,
			InlineThreshold:   o.InlineThreshold,
			Simplify:          o.Simplify,
			AggregateLowering: o.AggregateLowering,
		},
		Verify: o.Verify,
		Codegen: CodegenConfig{
			Registers:           c.Registers,
			ShortJumpBits:       c.ShortJumpBits,
			ShortCondJumpBits:   c.ShortCondJumpBits,
			RelocateColdBlocks:  c.RelocateColdBlocks,
			MaxLayoutIterations: c.MaxLayoutIterations,
			Parallelism:         c.Parallelism,
		},
	}
}

// Load reads a configuration file over the defaults
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()
	cfg, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOptional reads path when it exists and returns the defaults otherwise
func LoadOptional(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Read decodes YAML over the defaults. Unknown keys are errors.
func Read(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.Optimize.InlineThreshold < 0 {
		return fmt.Errorf("optimize.inline_threshold must not be negative")
	}
	if c.Log.Verbosity < 0 {
		return fmt.Errorf("log.verbosity must not be negative")
	}
	if err := c.CodegenOptions().Validate(); err != nil {
		return fmt.Errorf("codegen: %w", err)
	}
	return nil
}

// OptimizeOptions converts the configuration for the optimizer
func (c *Config) OptimizeOptions() optimize.Options {
	return optimize.Options{
		Inline:            c.Optimize.Inline,
		InlineThreshold:   c.Optimize.InlineThreshold,
		Simplify:          c.Optimize.Simplify,
		AggregateLowering: c.Optimize.AggregateLowering,
		Verify:            c.Verify,
	}
}

// CodegenOptions converts the configuration for the code generator
func (c *Config) CodegenOptions() codegen.Options {
	return codegen.Options{
		Registers:           c.Codegen.Registers,
		ShortJumpBits:       c.Codegen.ShortJumpBits,
		ShortCondJumpBits:   c.Codegen.ShortCondJumpBits,
		RelocateColdBlocks:  c.Codegen.RelocateColdBlocks,
		MaxLayoutIterations: c.Codegen.MaxLayoutIterations,
		Parallelism:         c.Codegen.Parallelism,
	}
}

// Marshal renders the configuration as YAML
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
