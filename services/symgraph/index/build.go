// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/symgraph/services/symgraph/semantic"
	"github.com/AleutianAI/symgraph/services/symgraph/worklist"
)

// BuildOptions configures index construction.
type BuildOptions struct {
	// RootProject restricts the index to the transitive dependency closure
	// of the named project. Empty indexes every project.
	RootProject string

	// CompileConcurrency bounds parallel Compile calls.
	// Default: runtime.NumCPU().
	CompileConcurrency int

	// Logger receives skip warnings and build summaries.
	// Default: slog.Default().
	Logger *slog.Logger
}

// BuildOption is a functional option for Build.
type BuildOption func(*BuildOptions)

// DefaultBuildOptions returns the default options.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		CompileConcurrency: runtime.NumCPU(),
	}
}

// WithRootProject restricts the index to the closure of the named project.
func WithRootProject(name string) BuildOption {
	return func(o *BuildOptions) {
		o.RootProject = name
	}
}

// WithCompileConcurrency bounds parallel compilation. Zero means NumCPU.
func WithCompileConcurrency(n int) BuildOption {
	return func(o *BuildOptions) {
		o.CompileConcurrency = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) BuildOption {
	return func(o *BuildOptions) {
		o.Logger = logger
	}
}

func resolveOptions(opts []BuildOption) BuildOptions {
	o := DefaultBuildOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.CompileConcurrency == 0 {
		o.CompileConcurrency = runtime.NumCPU()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Build indexes every method and type declared in projects.
//
// Description:
//
//	Compiles the projects in scope in parallel, then walks all types and
//	all methods once, in project order. The walk records, for each method,
//	its locations and resolved calls, its canonical id, override and
//	interface-implementation edges and caller edges. Methods without
//	source are registered but not analyzed.
//
// Inputs:
//
//	ctx - Cancellation is checked between types and between provider calls.
//	provider - The semantic provider.
//	projects - The project set.
//	opts - WithRootProject, WithCompileConcurrency, WithLogger.
//
// Outputs:
//
//	*SymbolIndex - The immutable index.
//	error - *ConfigurationError if the root project is not in the set or
//	        an option is out of range, ErrBuildCancelled on cancellation,
//	        or a wrapped provider error. A project that fails to compile is
//	        not an error: it is recorded in Skipped().
//
// Thread Safety:
//
//	Safe to call concurrently. The provider must support concurrent Compile.
func Build(ctx context.Context, provider semantic.Provider, projects []semantic.Project, opts ...BuildOption) (*SymbolIndex, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	o := resolveOptions(opts)
	if o.CompileConcurrency < 0 {
		return nil, &ConfigurationError{
			Field: "compile_concurrency",
			Value: strconv.Itoa(o.CompileConcurrency),
			Err:   ErrInvalidOption,
		}
	}

	start := time.Now()
	ctx, span := startBuildSpan(ctx, len(projects), o.RootProject)
	defer span.End()

	idx, err := build(ctx, provider, projects, o)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build failed")
		recordBuildMetrics(ctx, time.Since(start), Stats{}, false)
		return nil, err
	}

	idx.stats.BuildDuration = time.Since(start)
	setBuildSpanResult(span, idx.stats)
	recordBuildMetrics(ctx, idx.stats.BuildDuration, idx.stats, true)

	o.Logger.Info("symbol index built",
		slog.Int("projects", idx.stats.Projects),
		slog.Int("skipped_projects", idx.stats.SkippedProjects),
		slog.Int("types", idx.stats.Types),
		slog.Int("methods", idx.stats.Methods),
		slog.Int("call_edges", idx.stats.CallEdges),
		slog.Duration("duration", idx.stats.BuildDuration),
	)
	return idx, nil
}

func build(ctx context.Context, provider semantic.Provider, projects []semantic.Project, o BuildOptions) (*SymbolIndex, error) {
	scope, err := selectProjects(ctx, provider, projects, o)
	if err != nil {
		return nil, err
	}

	comps, skipped, err := compileAll(ctx, provider, scope, o)
	if err != nil {
		return nil, err
	}

	b := &indexBuilder{
		x:             newSymbolIndex(),
		provider:      provider,
		declared:      make(map[semantic.MethodID]bool),
		declaredTypes: make(map[string]bool),
	}
	b.x.root = o.RootProject
	b.x.skipped = skipped
	for _, p := range scope {
		b.x.projects = append(b.x.projects, p.Name)
	}

	for _, c := range comps {
		if c == nil {
			continue
		}
		if err := b.addCompilation(ctx, c); err != nil {
			return nil, err
		}
	}

	b.finish()
	return b.x, nil
}

// Closure returns the projects in the dependency closure of root, in their
// original order. An empty root returns projects unchanged.
func Closure(ctx context.Context, provider semantic.Provider, projects []semantic.Project, root string, logger *slog.Logger) ([]semantic.Project, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	return selectProjects(ctx, provider, projects, resolveOptions([]BuildOption{WithRootProject(root), WithLogger(logger)}))
}

// selectProjects applies the root filter, keeping the original order.
func selectProjects(ctx context.Context, provider semantic.Provider, projects []semantic.Project, o BuildOptions) ([]semantic.Project, error) {
	if o.RootProject == "" {
		return projects, nil
	}

	byName := make(map[string]semantic.Project, len(projects))
	for _, p := range projects {
		byName[p.Name] = p
	}
	root, ok := byName[o.RootProject]
	if !ok {
		return nil, &ConfigurationError{
			Field: "root_project",
			Value: o.RootProject,
			Err:   ErrRootProjectNotFound,
		}
	}

	closure, err := worklist.Process(ctx, []semantic.Project{root},
		func(p semantic.Project) string { return p.Name },
		func(ctx context.Context, p semantic.Project) ([]semantic.Project, error) {
			deps, err := provider.Dependencies(ctx, p)
			if err != nil {
				return nil, fmt.Errorf("dependencies of %s: %w", p.Name, err)
			}
			in := deps[:0:0]
			for _, d := range deps {
				// Dependencies outside the set are not indexed.
				if known, ok := byName[d.Name]; ok {
					in = append(in, known)
				}
			}
			return in, nil
		},
		worklist.WithName("project-closure"),
		worklist.WithLogger(o.Logger),
	)
	if err != nil {
		if errors.Is(err, worklist.ErrTraversalCancelled) {
			return nil, fmt.Errorf("%w: %w", ErrBuildCancelled, err)
		}
		return nil, err
	}

	keep := make(map[string]bool, len(closure))
	for _, p := range closure {
		keep[p.Name] = true
	}
	scope := make([]semantic.Project, 0, len(closure))
	for _, p := range projects {
		if keep[p.Name] {
			scope = append(scope, p)
			delete(keep, p.Name)
		}
	}
	return scope, nil
}

// compileAll compiles every project concurrently. Compile failures become
// skipped entries; only cancellation aborts.
func compileAll(ctx context.Context, provider semantic.Provider, projects []semantic.Project, o BuildOptions) ([]semantic.Compilation, []SkippedProject, error) {
	comps := make([]semantic.Compilation, len(projects))
	errs := make([]error, len(projects))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.CompileConcurrency)
	for i, p := range projects {
		g.Go(func() error {
			c, err := provider.Compile(gctx, p)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				errs[i] = err
				return nil
			}
			comps[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrBuildCancelled, err)
	}

	var skipped []SkippedProject
	for i, err := range errs {
		if err == nil {
			continue
		}
		o.Logger.Warn("skipping project that failed to compile",
			slog.String("project", projects[i].Name),
			slog.String("error", err.Error()),
		)
		skipped = append(skipped, SkippedProject{
			Project: projects[i].Name,
			Err:     err,
			Reason:  err.Error(),
		})
	}
	return comps, skipped, nil
}

// indexBuilder accumulates the tables during the single pass.
type indexBuilder struct {
	x        *SymbolIndex
	provider semantic.Provider

	// declared marks ids registered from their own declaring type, which
	// take precedence over handles seen only as call targets.
	declared      map[semantic.MethodID]bool
	declaredTypes map[string]bool
}

func (b *indexBuilder) addCompilation(ctx context.Context, c semantic.Compilation) error {
	for _, t := range c.DeclaredTypes() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrBuildCancelled, err)
		}

		b.registerType(t, true)

		for _, iface := range t.Interfaces() {
			b.registerType(iface, false)
			b.x.implementers[iface.QualifiedName()] = append(b.x.implementers[iface.QualifiedName()], t.QualifiedName())
			if t.Kind() == semantic.KindInterface {
				continue
			}
			for _, member := range iface.Methods() {
				impl, ok := c.FindImplementationForInterfaceMember(t, member)
				if !ok {
					continue
				}
				memberID := semantic.IDOf(member)
				b.registerMethod(member, false)
				b.registerMethod(impl, false)
				b.x.overrides[memberID] = append(b.x.overrides[memberID], semantic.IDOf(impl))
			}
		}

		if base := t.BaseType(); base != nil {
			b.registerType(base, false)
			b.x.implementers[base.QualifiedName()] = append(b.x.implementers[base.QualifiedName()], t.QualifiedName())
		}

		for _, m := range t.Methods() {
			if err := b.addMethod(ctx, m); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *indexBuilder) addMethod(ctx context.Context, m semantic.Method) error {
	id := semantic.IDOf(m)
	if b.declared[id] {
		return nil
	}
	b.registerMethod(m, true)

	if o := m.Overridden(); o != nil {
		oid := semantic.IDOf(o)
		b.registerMethod(o, false)
		b.x.overrides[oid] = append(b.x.overrides[oid], id)
	}

	locs := m.Locations()
	if len(locs) == 0 {
		return nil
	}

	body := &MethodBody{Method: id, Locations: copySlice(locs)}
	for _, loc := range locs {
		sites, err := b.provider.Invocations(ctx, m, loc)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("%w: %w", ErrBuildCancelled, ctxErr)
			}
			return fmt.Errorf("invocations of %s: %w", id, err)
		}
		for _, s := range sites {
			if s.Target == nil {
				continue
			}
			tid := semantic.IDOf(s.Target)
			b.registerMethod(s.Target, false)
			body.Calls = append(body.Calls, Call{Site: s.Location, Target: tid})
			b.x.callers[tid] = append(b.x.callers[tid], id)
		}
	}
	sort.SliceStable(body.Calls, func(i, j int) bool {
		return body.Calls[i].Site.Before(body.Calls[j].Site)
	})
	b.x.bodies[id] = body
	return nil
}

// registerMethod records the handle for an id. The first declared handle
// wins; a handle seen only as a reference is replaced by a declared one.
func (b *indexBuilder) registerMethod(m semantic.Method, declared bool) {
	id := semantic.IDOf(m)
	if _, ok := b.x.methods[id]; !ok || (declared && !b.declared[id]) {
		b.x.methods[id] = m
	}
	if declared {
		b.declared[id] = true
	}
}

func (b *indexBuilder) registerType(t semantic.Type, declared bool) {
	name := t.QualifiedName()
	if _, ok := b.x.types[name]; !ok || (declared && !b.declaredTypes[name]) {
		b.x.types[name] = t
	}
	if declared {
		b.declaredTypes[name] = true
	}
}

// finish sorts and deduplicates every edge list and fills in the stats.
func (b *indexBuilder) finish() {
	x := b.x
	for id, v := range x.overrides {
		x.overrides[id] = dedupeIDs(v)
		x.stats.OverrideEdges += len(x.overrides[id])
	}
	for id, v := range x.callers {
		x.callers[id] = dedupeIDs(v)
		x.stats.CallEdges += len(x.callers[id])
	}
	for n, v := range x.implementers {
		sort.Strings(v)
		x.implementers[n] = dedupeSorted(v)
		x.stats.ImplementerEdges += len(x.implementers[n])
	}

	x.stats.Projects = len(x.projects)
	x.stats.SkippedProjects = len(x.skipped)
	x.stats.Types = len(x.types)
	x.stats.Methods = len(x.methods)
	x.stats.MethodsWithBodies = len(x.bodies)
}

func dedupeIDs(ids []semantic.MethodID) []semantic.MethodID {
	return dedupeSorted(semantic.SortIDs(ids))
}

func dedupeSorted[T comparable](s []T) []T {
	if len(s) < 2 {
		return s
	}
	out := s[:1]
	for _, v := range s[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
