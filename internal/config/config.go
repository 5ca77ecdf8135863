// Package config loads the pipeline configuration from environment
// variables and an optional YAML file, validates it, and resolves the
// filesystem paths the batch driver works with.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete pipeline configuration.
type Config struct {
	Pipeline PipelineConfig `yaml:"pipeline" envconfig:"PIPELINE"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Paths    PathsConfig    `yaml:"paths" envconfig:"PATHS"`
}

// PipelineConfig controls the per-file pipeline behavior.
type PipelineConfig struct {
	TargetFormat string  `yaml:"target_format" envconfig:"TARGET_FORMAT" default:"cf-json" validate:"oneof=cf-json csv"`
	GapFactor    float64 `yaml:"gap_factor" envconfig:"GAP_FACTOR" default:"3" validate:"gt=1"`
	Interpolate  bool    `yaml:"interpolate" envconfig:"INTERPOLATE" default:"false"`
	Workers      int     `yaml:"workers" envconfig:"WORKERS" default:"4" validate:"min=1,max=64"`

	// Deployment reference timestamps (RFC3339) for clock-drift
	// correction. All four must be set for a correction to be
	// attempted; the QC engine never guesses one it cannot justify.
	DriftInstrumentStart string `yaml:"drift_instrument_start" envconfig:"DRIFT_INSTRUMENT_START" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	DriftInstrumentEnd   string `yaml:"drift_instrument_end" envconfig:"DRIFT_INSTRUMENT_END" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	DriftActualStart     string `yaml:"drift_actual_start" envconfig:"DRIFT_ACTUAL_START" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	DriftActualEnd       string `yaml:"drift_actual_end" envconfig:"DRIFT_ACTUAL_END" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// HasDriftReference reports whether all four reference timestamps were
// supplied.
func (p PipelineConfig) HasDriftReference() bool {
	return p.DriftInstrumentStart != "" && p.DriftInstrumentEnd != "" &&
		p.DriftActualStart != "" && p.DriftActualEnd != ""
}

// DriftTimes parses the four reference timestamps. Call only when
// HasDriftReference is true.
func (p PipelineConfig) DriftTimes() (instStart, instEnd, actStart, actEnd time.Time, err error) {
	parse := func(s string) (time.Time, error) {
		t, perr := time.Parse(time.RFC3339, s)
		return t.UTC(), perr
	}
	if instStart, err = parse(p.DriftInstrumentStart); err != nil {
		return
	}
	if instEnd, err = parse(p.DriftInstrumentEnd); err != nil {
		return
	}
	if actStart, err = parse(p.DriftActualStart); err != nil {
		return
	}
	actEnd, err = parse(p.DriftActualEnd)
	return
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/ctdkit.log"`
}

// PathsConfig contains the filesystem layout.
type PathsConfig struct {
	InputDir  string `yaml:"input_dir" envconfig:"INPUT_DIR" default:"data/raw" validate:"required"`
	OutputDir string `yaml:"output_dir" envconfig:"OUTPUT_DIR" default:"data/export" validate:"required"`
}

// Load loads configuration: built-in defaults and CTD_* environment
// variables first, then the optional YAML file on top. An explicit
// config file is the most deliberate input, so it wins.
func Load(configFile string) (*Config, error) {
	var cfg Config

	if err := envconfig.Process("CTD", &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			data, err := os.ReadFile(configFile)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration's struct tags.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return err
	}
	drift := []bool{
		c.Pipeline.DriftInstrumentStart != "",
		c.Pipeline.DriftInstrumentEnd != "",
		c.Pipeline.DriftActualStart != "",
		c.Pipeline.DriftActualEnd != "",
	}
	set := 0
	for _, b := range drift {
		if b {
			set++
		}
	}
	if set != 0 && set != 4 {
		return fmt.Errorf("drift correction needs all four reference timestamps, got %d", set)
	}
	if set == 4 {
		instStart, instEnd, _, _, err := c.Pipeline.DriftTimes()
		if err != nil {
			return fmt.Errorf("drift reference timestamps: %w", err)
		}
		if !instEnd.After(instStart) {
			return fmt.Errorf("drift reference: instrument end %s does not follow instrument start %s",
				c.Pipeline.DriftInstrumentEnd, c.Pipeline.DriftInstrumentStart)
		}
	}
	return nil
}
