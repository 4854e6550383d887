// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads snapdiff settings.
//
// Settings are layered, later layers winning:
//
//	defaults < snapdiff.yaml < SNAPDIFF_* environment < CLI flags
//
// The CLI applies flags itself after Load returns. The typed accessors
// (StoreConfig, DiffOptions, GateOptions) translate the file layout into
// the option types of the services that consume them.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/snapdiff/services/diff"
	"github.com/AleutianAI/snapdiff/services/gate"
	"github.com/AleutianAI/snapdiff/services/history"
	"github.com/AleutianAI/snapdiff/services/snapshot/store"
	"github.com/AleutianAI/snapdiff/services/telemetry"
)

// DefaultFile is read from the working directory when no path is given.
const DefaultFile = "snapdiff.yaml"

// ErrInvalidConfig wraps every load, environment and validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

var configValidate = validator.New()

// Config is the full snapdiff configuration.
type Config struct {
	// Artifacts is the snapshot directory of the file store.
	Artifacts string `yaml:"artifacts" validate:"required"`

	// Store is a store location (see store.ParseURL). Empty uses Artifacts.
	Store string `yaml:"store"`

	// Normalize is the id normalization applied when recording.
	Normalize string `yaml:"normalize" validate:"omitempty,oneof=off basename noparams"`

	// Budgets is the path of a budget file. Empty disables budgets.
	Budgets string `yaml:"budgets"`

	Diff      DiffConfig             `yaml:"diff"`
	Gate      GateConfig             `yaml:"gate"`
	History   HistoryConfig          `yaml:"history"`
	Telemetry telemetry.Config       `yaml:"telemetry"`
	Influx    telemetry.InfluxConfig `yaml:"influx"`
	Server    ServerConfig           `yaml:"server"`
}

// DiffConfig holds the engine thresholds.
type DiffConfig struct {
	SlowerRatio    float64            `yaml:"slower_ratio" validate:"gt=0"`
	SlowerAbs      float64            `yaml:"slower_abs" validate:"gte=0"`
	FlakeThreshold float64            `yaml:"flake_threshold" validate:"gte=0"`
	Weights        diff.ImpactWeights `yaml:"weights"`
}

// GateConfig holds the gate policy.
type GateConfig struct {
	FailOn          string `yaml:"fail_on"`
	MinCount        int    `yaml:"min_count" validate:"gte=0"`
	MaxImpact       int    `yaml:"max_impact" validate:"gte=-1"`
	RequireBaseline bool   `yaml:"require_baseline"`
	UpdateBaseline  bool   `yaml:"update_baseline"`
}

// HistoryConfig holds the run history location and window.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Max     int    `yaml:"max" validate:"gt=0"`
}

// ServerConfig configures `snapdiff serve`.
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// Default returns the built-in defaults.
func Default() *Config {
	opts := diff.DefaultOptions()
	return &Config{
		Artifacts: store.DefaultArtifactsDir,
		Normalize: "off",
		Diff: DiffConfig{
			SlowerRatio:    opts.SlowerRatio,
			SlowerAbs:      opts.SlowerAbs,
			FlakeThreshold: opts.FlakeThreshold,
			Weights:        opts.Weights,
		},
		Gate: GateConfig{
			FailOn:    string(gate.FailOnNewFailures),
			MaxImpact: -1,
		},
		History: HistoryConfig{
			Enabled: true,
			Max:     history.DefaultMaxRuns,
		},
		Telemetry: telemetry.DefaultConfig(),
		Server:    ServerConfig{Addr: ":8090"},
	}
}

// Load builds the configuration from defaults, the YAML file and the
// process environment, then validates it.
//
// Description:
//
//	With an empty path, DefaultFile is read if it exists. An explicit
//	path must exist. An unknown fail_on value falls back to
//	new-failures with a warning.
//
// Inputs:
//
//	path - Config file path, or "".
//	logger - Receives fallback warnings. Nil uses slog.Default().
//
// Outputs:
//
//	*Config - The validated configuration.
//	error - Wraps ErrInvalidConfig on any failure.
func Load(path string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidConfig, path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.Canonicalize(logger)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays SNAPDIFF_* variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s=%q: not a number", key, v))
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s=%q: not an integer", key, v))
				return
			}
			*dst = n
		}
	}

	str("SNAPDIFF_ARTIFACTS", &c.Artifacts)
	str("SNAPDIFF_STORE", &c.Store)
	str("SNAPDIFF_FAIL_ON", &c.Gate.FailOn)
	str("SNAPDIFF_HISTORY_PATH", &c.History.Path)
	str("SNAPDIFF_BUDGETS", &c.Budgets)
	float("SNAPDIFF_SLOWER_RATIO", &c.Diff.SlowerRatio)
	float("SNAPDIFF_SLOWER_ABS", &c.Diff.SlowerAbs)
	float("SNAPDIFF_FLAKE_THRESHOLD", &c.Diff.FlakeThreshold)
	integer("SNAPDIFF_MIN_COUNT", &c.Gate.MinCount)
	integer("SNAPDIFF_HISTORY_MAX", &c.History.Max)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Canonicalize lower-cases enumerated values and replaces an unknown
// fail_on with new-failures.
func (c *Config) Canonicalize(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	failOn, ok := gate.ParseFailOn(c.Gate.FailOn)
	if !ok {
		logger.Warn("unknown fail_on value, using new-failures",
			slog.String("fail_on", c.Gate.FailOn),
		)
	}
	c.Gate.FailOn = string(failOn)
	c.Normalize = strings.ToLower(strings.TrimSpace(c.Normalize))
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// StoreConfig returns the snapshot store location.
func (c *Config) StoreConfig(logger *slog.Logger) store.Config {
	sc := store.Config{Backend: store.BackendFile, Path: c.Artifacts}
	if c.Store != "" {
		sc = store.ParseURL(c.Store)
	}
	sc.Logger = logger
	return sc
}

// DiffOptions returns the engine thresholds.
func (c *Config) DiffOptions() diff.Options {
	opts := diff.DefaultOptions()
	opts.SlowerRatio = c.Diff.SlowerRatio
	opts.SlowerAbs = c.Diff.SlowerAbs
	opts.FlakeThreshold = c.Diff.FlakeThreshold
	opts.MinCount = c.Gate.MinCount
	opts.Weights = c.Diff.Weights
	return opts
}

// GateOptions returns the gate policy as options.
func (c *Config) GateOptions() []gate.GateOption {
	failOn, _ := gate.ParseFailOn(c.Gate.FailOn)
	return []gate.GateOption{
		gate.WithDiffOptions(c.DiffOptions()),
		gate.WithFailOn(failOn),
		gate.WithMinCount(c.Gate.MinCount),
		gate.WithMaxImpact(c.Gate.MaxImpact),
		gate.WithRequireBaseline(c.Gate.RequireBaseline),
		gate.WithUpdateBaseline(c.Gate.UpdateBaseline),
	}
}

// HistoryPath returns the history file path, placed in the artifacts
// directory when unset.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(c.Artifacts, "history.jsonl")
}
