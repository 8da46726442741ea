// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/symgraph/pkg/logging"
	symgraph "github.com/AleutianAI/symgraph/services/symgraph"
	"github.com/AleutianAI/symgraph/services/symgraph/cache"
	"github.com/AleutianAI/symgraph/services/symgraph/config"
	"github.com/AleutianAI/symgraph/services/symgraph/semantic"
	"github.com/AleutianAI/symgraph/services/symgraph/semantic/golang"
	"github.com/AleutianAI/symgraph/services/symgraph/telemetry"
)

// errNoProjects is returned when neither flags nor config name a project.
var errNoProjects = errors.New("no projects: pass --project or set projects in the config file")

// workspace is a provider that knows its own project set.
type workspace interface {
	semantic.Provider
	Projects() []semantic.Project
}

// providerFactory creates the workspace for a run.
type providerFactory func(cfg config.Config, logger *slog.Logger, store *cache.Store) (workspace, error)

// app holds flag values and the per-run state built in setup.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath  string
	projects    []string
	rootProject string
	logLevel    string
	logDir      string
	metricsAddr string
	output      string

	newProvider providerFactory

	cfg       config.Config
	logger    *logging.Logger
	ws        workspace
	engine    *symgraph.Engine
	shutdown  func(context.Context) error
	server    *http.Server
	serverErr chan error
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:      stdout,
		stderr:      stderr,
		output:      formatText,
		newProvider: goProvider,
	}
}

func goProvider(cfg config.Config, logger *slog.Logger, store *cache.Store) (workspace, error) {
	if len(cfg.Projects) == 0 {
		return nil, errNoProjects
	}
	p, err := golang.New(cfg.Projects, golang.WithLogger(logger), golang.WithStore(store))
	if err != nil {
		return nil, err
	}
	return p, nil
}

// setup loads configuration and starts logging, telemetry and the engine.
func (a *app) setup(ctx context.Context) error {
	if _, err := parseFormat(a.output); err != nil {
		return err
	}

	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	a.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "symgraph",
		JSON:    cfg.Logging.JSON || !isTerminal(a.stderr),
		Output:  a.stderr,
	})

	tcfg := telemetry.DefaultConfig()
	tcfg.TraceExporter = cfg.Telemetry.TraceExporter
	tcfg.MetricExporter = cfg.Telemetry.MetricExporter
	tcfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	tcfg.Writer = a.stderr
	a.shutdown, err = telemetry.Init(ctx, tcfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	addr := a.metricsAddr
	if addr == "" && cfg.Telemetry.MetricExporter == telemetry.ExporterPrometheus {
		addr = cfg.Telemetry.PrometheusAddr
	}
	if addr != "" {
		if err := a.serveMetrics(addr); err != nil {
			return err
		}
	}

	store := cache.NewStore()
	a.ws, err = a.newProvider(cfg, a.logger.Slog(), store)
	if err != nil {
		return err
	}
	a.engine, err = symgraph.NewEngine(a.ws,
		symgraph.WithConfig(cfg),
		symgraph.WithLogger(a.logger.Slog()),
		symgraph.WithStore(store),
	)
	return err
}

func (a *app) loadConfig(ctx context.Context) (config.Config, error) {
	cfg := config.Default()
	if a.configPath != "" {
		var err error
		if cfg, err = config.Load(ctx, a.configPath); err != nil {
			return config.Config{}, err
		}
	}

	if len(a.projects) > 0 {
		cfg.Projects = make([]string, len(a.projects))
		for i, p := range a.projects {
			abs, err := filepath.Abs(p)
			if err != nil {
				return config.Config{}, fmt.Errorf("resolve project %s: %w", p, err)
			}
			cfg.Projects[i] = abs
		}
	}
	if a.rootProject != "" {
		cfg.RootProject = a.rootProject
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logDir != "" {
		cfg.Logging.Dir = a.logDir
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (a *app) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	// Without the OTel Prometheus exporter the default registry still
	// carries the worklist collectors.
	handler := telemetry.MetricsHandler()
	if handler == nil {
		handler = promhttp.Handler()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	a.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	a.serverErr = make(chan error, 1)

	go func() {
		err := a.server.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		a.serverErr <- err
	}()
	a.logger.Info("metrics endpoint listening", slog.String("addr", ln.Addr().String()))
	return nil
}

// teardown stops everything setup started. Safe after a partial setup.
func (a *app) teardown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
		if err := <-a.serverErr; err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
		a.server = nil
	}
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: %w", err))
		}
		a.shutdown = nil
	}
	if a.logger != nil {
		if err := a.logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
