// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package symgraph is the entry point for symbol-graph queries.
//
// An Engine binds a semantic provider to a cache store and configuration,
// and answers the downstream questions: what does this type's code reach,
// who implements this member, who calls this method.
//
// Thread Safety:
//
//	Engine is safe for concurrent use. Index builds for one project set are
//	coalesced through the cache store.
package symgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/symgraph/services/symgraph/cache"
	"github.com/AleutianAI/symgraph/services/symgraph/callgraph"
	"github.com/AleutianAI/symgraph/services/symgraph/config"
	"github.com/AleutianAI/symgraph/services/symgraph/index"
	"github.com/AleutianAI/symgraph/services/symgraph/semantic"
	"github.com/AleutianAI/symgraph/services/symgraph/telemetry"
	"github.com/AleutianAI/symgraph/services/symgraph/worklist"
)

// ErrNilProvider is returned by NewEngine without a provider.
var ErrNilProvider = errors.New("provider must not be nil")

var tracer = otel.Tracer("symgraph.engine")

// Engine answers graph queries over one provider.
type Engine struct {
	provider semantic.Provider
	cfg      config.Config
	logger   *slog.Logger
	store    *cache.Store
	builder  *callgraph.Builder
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the configuration. Default: config.Default().
func WithConfig(cfg config.Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithStore shares a cache store. Default: a store from the context passed
// to each call, or a private store.
func WithStore(store *cache.Store) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// NewEngine creates an Engine.
func NewEngine(provider semantic.Provider, opts ...Option) (*Engine, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	e := &Engine{provider: provider, cfg: config.Default()}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.store == nil {
		e.store = cache.NewStore()
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}

	b, err := callgraph.NewBuilder(provider, callgraph.WithLogger(e.logger))
	if err != nil {
		return nil, err
	}
	e.builder = b
	return e, nil
}

// Store returns the engine's cache store.
func (e *Engine) Store() *cache.Store {
	return e.store
}

// Config returns the engine's configuration.
func (e *Engine) Config() config.Config {
	return e.cfg
}

// run starts a span and a run-scoped logger for one call.
func (e *Engine) run(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span, *slog.Logger) {
	id := uuid.NewString()
	ctx, span := tracer.Start(ctx, "Engine."+op,
		trace.WithAttributes(append(attrs, attribute.String("run_id", id))...),
	)
	logger := telemetry.LoggerWithTrace(ctx, e.logger).With(
		slog.String("run_id", id),
		slog.String("op", op),
	)
	return ctx, span, logger
}

func (e *Engine) storeFor(ctx context.Context) *cache.Store {
	if s, ok := cache.FromContext(ctx); ok {
		return s
	}
	return e.store
}

// BuildIndex returns the symbol index for projects, restricted to the
// closure of rootFilter when it is not empty. Indexes are cached per
// project set and root.
func (e *Engine) BuildIndex(ctx context.Context, projects []semantic.Project, rootFilter string) (*index.SymbolIndex, error) {
	ctx, span, logger := e.run(ctx, "BuildIndex",
		attribute.Int("projects", len(projects)),
		attribute.String("root_project", rootFilter),
	)
	defer span.End()

	idx, err := e.index(ctx, logger, projects, rootFilter)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	for _, s := range idx.Skipped() {
		logger.Warn("project skipped", slog.String("project", s.Project), slog.String("reason", s.Reason))
	}
	return idx, nil
}

func (e *Engine) index(ctx context.Context, logger *slog.Logger, projects []semantic.Project, root string) (*index.SymbolIndex, error) {
	return index.Cached(ctx, e.storeFor(ctx), e.provider, projects,
		index.WithRootProject(root),
		index.WithCompileConcurrency(e.cfg.Index.CompileConcurrency),
		index.WithLogger(logger),
	)
}

// GraphRequest parameterizes BuildInvocationGraph.
type GraphRequest struct {
	// Projects is the project set. Required.
	Projects []semantic.Project

	// MethodFilter seeds only methods with this simple name.
	MethodFilter string

	// FanoutCap overrides the configured cap. Zero uses the configured
	// value; negative disables the cap.
	FanoutCap int

	// UseIndex serves the traversal from the cached symbol index instead of
	// live provider queries.
	UseIndex bool

	// RootProject restricts the project set to this project's closure.
	RootProject string
}

// BuildInvocationGraph builds the invocation graph from the type named
// typeName.
//
// Description:
//
//	The start type is resolved by qualified name from the index when
//	UseIndex is set, and otherwise from the first project in scope whose
//	compilation can see it, trying RootProject first.
//
// Outputs:
//
//	*callgraph.Result - The reached nodes and graph.
//	error - semantic.ErrSymbolNotFound for an unknown type, index and
//	        traversal errors otherwise.
func (e *Engine) BuildInvocationGraph(ctx context.Context, typeName string, req GraphRequest) (*callgraph.Result, error) {
	ctx, span, logger := e.run(ctx, "BuildInvocationGraph",
		attribute.String("type", typeName),
		attribute.String("method_filter", req.MethodFilter),
		attribute.Bool("use_index", req.UseIndex),
	)
	defer span.End()

	res, err := e.buildGraph(ctx, logger, typeName, req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return res, nil
}

func (e *Engine) buildGraph(ctx context.Context, logger *slog.Logger, typeName string, req GraphRequest) (*callgraph.Result, error) {
	fanout := req.FanoutCap
	switch {
	case fanout == 0:
		fanout = e.cfg.Traversal.FanoutCap
	case fanout < 0:
		fanout = 0
	}

	opts := []callgraph.BuildOption{
		callgraph.WithMethodFilter(req.MethodFilter),
		callgraph.WithFanoutCap(fanout),
		callgraph.WithCeiling(e.cfg.Traversal.Ceiling),
		callgraph.WithLogger(logger),
		callgraph.WithProgress(e.cfg.Traversal.ProgressInterval, progressLogger(logger)),
	}

	var start semantic.Type
	if req.UseIndex {
		idx, err := e.index(ctx, logger, req.Projects, req.RootProject)
		if err != nil {
			return nil, err
		}
		t, ok := idx.TypeByName(typeName)
		if !ok {
			return nil, fmt.Errorf("%w: type %s", semantic.ErrSymbolNotFound, typeName)
		}
		start = t
		opts = append(opts, callgraph.WithIndex(idx))
	} else {
		scope, err := index.Closure(ctx, e.provider, req.Projects, req.RootProject, logger)
		if err != nil {
			return nil, err
		}
		start, err = e.resolveLive(ctx, logger, typeName, scope, req.RootProject)
		if err != nil {
			return nil, err
		}
		opts = append(opts, callgraph.WithProjects(scope))
	}

	return e.builder.Build(ctx, start, opts...)
}

// resolveLive compiles projects in scope, root first, until one can see
// typeName.
func (e *Engine) resolveLive(ctx context.Context, logger *slog.Logger, typeName string, scope []semantic.Project, root string) (semantic.Type, error) {
	ordered := make([]semantic.Project, 0, len(scope))
	for _, p := range scope {
		if p.Name == root {
			ordered = append(ordered, p)
		}
	}
	for _, p := range scope {
		if p.Name != root {
			ordered = append(ordered, p)
		}
	}

	for _, p := range ordered {
		c, err := e.provider.Compile(ctx, p)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%w: %w", worklist.ErrTraversalCancelled, ctxErr)
			}
			if errors.Is(err, semantic.ErrCompileFailed) {
				logger.Warn("project skipped", slog.String("project", p.Name), slog.String("error", err.Error()))
				continue
			}
			return nil, fmt.Errorf("compile %s: %w", p.Name, err)
		}
		if t, ok := c.ResolveType(typeName); ok {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: type %s", semantic.ErrSymbolNotFound, typeName)
}

// FindImplementations returns the methods that directly implement or
// override methodID, sorted. A non-empty rootProject restricts the index to
// that project's closure, as for BuildIndex.
func (e *Engine) FindImplementations(ctx context.Context, methodID semantic.MethodID, projects []semantic.Project, rootProject string) ([]semantic.MethodID, error) {
	ctx, span, logger := e.run(ctx, "FindImplementations", attribute.String("method", string(methodID)))
	defer span.End()

	idx, err := e.index(ctx, logger, projects, rootProject)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if _, ok := idx.Method(methodID); !ok {
		err := fmt.Errorf("%w: method %s", semantic.ErrSymbolNotFound, methodID)
		telemetry.RecordError(span, err)
		return nil, err
	}
	return idx.Overrides(methodID), nil
}

// FindCallers returns every method that reaches methodID through calls,
// transitively, sorted. methodID itself is included only when it is
// recursive. rootProject scopes the index as for BuildIndex. A ceiling of
// zero uses the configured ceiling.
func (e *Engine) FindCallers(ctx context.Context, methodID semantic.MethodID, projects []semantic.Project, rootProject string, ceiling int) ([]semantic.MethodID, error) {
	ctx, span, logger := e.run(ctx, "FindCallers", attribute.String("method", string(methodID)))
	defer span.End()

	ids, err := e.findCallers(ctx, logger, methodID, projects, rootProject, ceiling)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("callers", len(ids)))
	return ids, nil
}

func (e *Engine) findCallers(ctx context.Context, logger *slog.Logger, methodID semantic.MethodID, projects []semantic.Project, rootProject string, ceiling int) ([]semantic.MethodID, error) {
	idx, err := e.index(ctx, logger, projects, rootProject)
	if err != nil {
		return nil, err
	}
	if _, ok := idx.Method(methodID); !ok {
		return nil, fmt.Errorf("%w: method %s", semantic.ErrSymbolNotFound, methodID)
	}
	if ceiling == 0 {
		ceiling = e.cfg.Traversal.Ceiling
	}

	recursive := false
	reached, err := worklist.Process(ctx, []semantic.MethodID{methodID},
		func(id semantic.MethodID) semantic.MethodID { return id },
		func(_ context.Context, id semantic.MethodID) ([]semantic.MethodID, error) {
			callers := idx.Callers(id)
			for _, c := range callers {
				if c == methodID {
					recursive = true
				}
			}
			return callers, nil
		},
		worklist.WithName("callers"),
		worklist.WithCeiling(ceiling),
		worklist.WithLogger(logger),
		worklist.WithProgress(e.cfg.Traversal.ProgressInterval, progressLogger(logger)),
	)
	if err != nil {
		return nil, err
	}

	out := make([]semantic.MethodID, 0, len(reached))
	for _, id := range reached {
		if id == methodID && !recursive {
			continue
		}
		out = append(out, id)
	}
	return semantic.SortIDs(out), nil
}

func progressLogger(logger *slog.Logger) worklist.ProgressFunc {
	return func(p worklist.Progress) {
		logger.Info("traversal progress",
			slog.String("traversal", p.Name),
			slog.Int64("processed", p.Processed),
			slog.Int64("queued", p.Queued),
			slog.Int64("discovered", p.Discovered),
			slog.Duration("elapsed", p.Elapsed),
		)
	}
}
