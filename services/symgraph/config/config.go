// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates symgraph configuration.
//
// Defaults are embedded from symgraph.yaml. A user file is decoded on top
// of them, so any key it omits keeps its default.
//
// Thread Safety:
//
//	A Config is a plain value. Load and Parse are safe for concurrent use.
package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"
)

// MaxFileSize is the largest configuration file Load accepts (1MB).
const MaxFileSize = 1024 * 1024

//go:embed symgraph.yaml
var defaultYAML []byte

var (
	// ErrInvalidConfig is returned when a configuration fails validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConfigTooLarge is returned for files above MaxFileSize.
	ErrConfigTooLarge = errors.New("configuration file too large")
)

var tracer = otel.Tracer("symgraph.config")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the root configuration.
type Config struct {
	// Projects are Go module directories.
	Projects []string `yaml:"projects" json:"projects" validate:"dive,required"`

	// RootProject restricts indexing to one project's dependency closure.
	RootProject string `yaml:"root_project" json:"root_project"`

	Traversal TraversalConfig `yaml:"traversal" json:"traversal"`
	Index     IndexConfig     `yaml:"index" json:"index"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
}

// TraversalConfig bounds graph traversals.
type TraversalConfig struct {
	FanoutCap        int           `yaml:"fanout_cap" json:"fanout_cap" validate:"gte=0"`
	Ceiling          int           `yaml:"ceiling" json:"ceiling" validate:"gte=0"`
	ProgressInterval time.Duration `yaml:"progress_interval" json:"progress_interval" validate:"gte=0"`
}

// IndexConfig tunes index builds.
type IndexConfig struct {
	// CompileConcurrency of 0 means one compilation per CPU.
	CompileConcurrency int `yaml:"compile_concurrency" json:"compile_concurrency" validate:"gte=0,lte=256"`
}

// LoggingConfig selects log output.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json" json:"json"`

	// Dir, when set, also writes logs to a file in this directory.
	Dir string `yaml:"dir" json:"dir"`
}

// TelemetryConfig selects exporters.
type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter" json:"trace_exporter" validate:"oneof=none stdout otlp"`
	MetricExporter string `yaml:"metric_exporter" json:"metric_exporter" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" json:"otlp_endpoint" validate:"required_if=TraceExporter otlp"`
	PrometheusAddr string `yaml:"prometheus_addr" json:"prometheus_addr" validate:"required_if=MetricExporter prometheus"`
}

// Default returns the embedded defaults.
func Default() Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultYAML, &cfg); err != nil {
		panic(fmt.Sprintf("config: embedded defaults are invalid: %v", err))
	}
	return cfg
}

// Parse decodes data over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	if len(data) > MaxFileSize {
		return Config{}, fmt.Errorf("%w: %d bytes (max %d)", ErrConfigTooLarge, len(data), MaxFileSize)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: unmarshaling YAML: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads, parses and validates the file at path. Relative project
// directories are resolved against the file's directory.
func Load(ctx context.Context, path string) (Config, error) {
	_, span := tracer.Start(ctx, "config.Load",
		trace.WithAttributes(attribute.String("path", path)),
	)
	defer span.End()

	cfg, err := load(path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return Config{}, err
	}
	span.SetAttributes(attribute.Int("projects", len(cfg.Projects)))
	return cfg, nil
}

func load(path string) (Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolving path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Config{}, fmt.Errorf("stat config: %w", err)
	}
	if info.Size() > MaxFileSize {
		return Config{}, fmt.Errorf("%w: %d bytes (max %d)", ErrConfigTooLarge, info.Size(), MaxFileSize)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}

	base := filepath.Dir(abs)
	for i, p := range cfg.Projects {
		if !filepath.IsAbs(p) {
			cfg.Projects[i] = filepath.Join(base, p)
		}
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}
