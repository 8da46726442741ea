// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package callgraph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/symgraph/services/symgraph/index"
	"github.com/AleutianAI/symgraph/services/symgraph/semantic"
	"github.com/AleutianAI/symgraph/services/symgraph/worklist"
)

// BuildOptions configures one graph build.
type BuildOptions struct {
	// MethodFilter keeps only seed methods with this simple name.
	// Empty seeds every declared method of the start type.
	MethodFilter string

	// FanoutCap is the largest implementer count still expanded for a node.
	// Zero disables the cap.
	FanoutCap int

	// Index serves implementations and call sites when set. Nil queries the
	// provider live.
	Index *index.SymbolIndex

	// Projects is the scope for live implementation queries.
	// Default: the project of the start type's compilation.
	Projects []semantic.Project

	// Ceiling bounds the worklist queue. Zero disables it.
	Ceiling int

	// ProgressInterval and OnProgress enable periodic progress reports.
	ProgressInterval time.Duration
	OnProgress       worklist.ProgressFunc

	// Logger receives build summaries. Default: slog.Default().
	Logger *slog.Logger
}

// BuildOption is a functional option for Build.
type BuildOption func(*BuildOptions)

// WithMethodFilter seeds only methods named name.
func WithMethodFilter(name string) BuildOption {
	return func(o *BuildOptions) {
		o.MethodFilter = name
	}
}

// WithFanoutCap sets the fan-out cap. Zero means unlimited.
func WithFanoutCap(n int) BuildOption {
	return func(o *BuildOptions) {
		o.FanoutCap = n
	}
}

// WithIndex serves expansion from a prebuilt index.
func WithIndex(idx *index.SymbolIndex) BuildOption {
	return func(o *BuildOptions) {
		o.Index = idx
	}
}

// WithProjects sets the scope for live implementation queries.
func WithProjects(projects []semantic.Project) BuildOption {
	return func(o *BuildOptions) {
		o.Projects = projects
	}
}

// WithCeiling bounds the traversal queue.
func WithCeiling(n int) BuildOption {
	return func(o *BuildOptions) {
		o.Ceiling = n
	}
}

// WithProgress reports traversal progress every interval.
func WithProgress(interval time.Duration, fn worklist.ProgressFunc) BuildOption {
	return func(o *BuildOptions) {
		o.ProgressInterval = interval
		o.OnProgress = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) BuildOption {
	return func(o *BuildOptions) {
		o.Logger = logger
	}
}

// Stats summarizes a built graph.
type Stats struct {
	Roots               int           `json:"roots"`
	Nodes               int           `json:"nodes"`
	InvocationEdges     int           `json:"invocation_edges"`
	ImplementationEdges int           `json:"implementation_edges"`
	CallerEdges         int           `json:"caller_edges"`
	CappedNodes         int           `json:"capped_nodes"`
	Duration            time.Duration `json:"duration"`
}

// Result is the outcome of a graph build.
type Result struct {
	// Roots are the seed nodes, in declaration order.
	Roots []NodeRef

	// All is every reached node, in breadth-first discovery order.
	All []NodeRef

	// Graph owns the nodes.
	Graph *Graph

	Stats Stats
}

// IDs returns the canonical ids of every reached node, sorted.
func (r *Result) IDs() []semantic.MethodID {
	return semantic.SortIDs(r.Graph.IDs(r.All))
}

// Builder builds invocation graphs against one provider.
//
// Thread Safety:
//
//	Safe for concurrent use. Each Build owns its graph and worklist.
type Builder struct {
	provider semantic.Provider
	defaults []BuildOption
}

// NewBuilder creates a builder. defaults apply to every Build before the
// per-call options.
func NewBuilder(provider semantic.Provider, defaults ...BuildOption) (*Builder, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	return &Builder{provider: provider, defaults: defaults}, nil
}

func (b *Builder) resolve(opts []BuildOption) BuildOptions {
	var o BuildOptions
	for _, opt := range b.defaults {
		opt(&o)
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Build traverses the call and implementation graph reachable from start.
//
// Description:
//
//	Seeds a worklist with the declared methods of start, filtered by name
//	if requested. Expanding a node first follows its implementations or
//	overrides, unless their count exceeds the fan-out cap, then follows
//	every resolved call in its body. Nodes are keyed by canonical id, so
//	handles from different compilations for one method meet in one node.
//
//	With an index, implementations and call sites come from its tables.
//	Without one they are queried from the provider. Both orders are by
//	canonical id and call site, so both yield the same Edges().
//
// Outputs:
//
//	*Result - Roots, every reached node and the graph.
//	error - ErrNilStartType, ErrNoSeedMethods, ErrInvalidFanoutCap, an error
//	        matching worklist.ErrTraversalLimitExceeded or
//	        worklist.ErrTraversalCancelled, or a wrapped provider error.
func (b *Builder) Build(ctx context.Context, start semantic.Type, opts ...BuildOption) (*Result, error) {
	if start == nil {
		return nil, ErrNilStartType
	}
	o := b.resolve(opts)
	if o.FanoutCap < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFanoutCap, o.FanoutCap)
	}

	t0 := time.Now()
	ctx, span := startBuildSpan(ctx, start.QualifiedName(), o)
	defer span.End()

	res, err := b.build(ctx, start, o)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build failed")
		recordBuildMetrics(ctx, time.Since(t0), Stats{}, o.Index != nil, false)
		return nil, err
	}

	res.Stats.Duration = time.Since(t0)
	setBuildSpanResult(span, res.Stats)
	recordBuildMetrics(ctx, res.Stats.Duration, res.Stats, o.Index != nil, true)

	o.Logger.Info("invocation graph built",
		slog.String("start_type", start.QualifiedName()),
		slog.String("method_filter", o.MethodFilter),
		slog.Bool("indexed", o.Index != nil),
		slog.Int("nodes", res.Stats.Nodes),
		slog.Int("invocation_edges", res.Stats.InvocationEdges),
		slog.Int("implementation_edges", res.Stats.ImplementationEdges),
		slog.Int("capped_nodes", res.Stats.CappedNodes),
		slog.Duration("duration", res.Stats.Duration),
	)
	return res, nil
}

func (b *Builder) build(ctx context.Context, start semantic.Type, o BuildOptions) (*Result, error) {
	g := NewGraph()

	var roots []NodeRef
	for _, m := range start.Methods() {
		if o.MethodFilter != "" && m.Name() != o.MethodFilter {
			continue
		}
		ref, created := g.GetOrCreate(semantic.IDOf(m), m)
		if created {
			roots = append(roots, ref)
		}
	}
	if len(roots) == 0 {
		return nil, fmt.Errorf("%w: %s %q", ErrNoSeedMethods, start.QualifiedName(), o.MethodFilter)
	}

	var x expander
	if o.Index != nil {
		x = indexExpander{idx: o.Index}
	} else {
		scope := o.Projects
		if len(scope) == 0 {
			scope = []semantic.Project{start.Compilation().Project()}
		}
		x = liveExpander{provider: b.provider, scope: scope}
	}

	expand := func(ctx context.Context, ref NodeRef) ([]NodeRef, error) {
		node := g.Node(ref)
		var next []NodeRef

		impls, err := x.implementations(ctx, node)
		if err != nil {
			return nil, err
		}
		if o.FanoutCap > 0 && len(impls) > o.FanoutCap {
			node.FanoutCapped = true
			o.Logger.Debug("fan-out cap reached",
				slog.String("method", string(node.ID)),
				slog.Int("implementations", len(impls)),
				slog.Int("cap", o.FanoutCap),
			)
		} else {
			for _, impl := range impls {
				r, created := g.GetOrCreate(impl.id, impl.method)
				g.AddCaller(r, ref)
				g.AddImplementation(ref, r)
				if created {
					next = append(next, r)
				}
			}
		}

		calls, err := x.calls(ctx, node)
		if err != nil {
			return nil, err
		}
		for _, c := range calls {
			r, created := g.GetOrCreate(c.target.id, c.target.method)
			g.AddInvocation(ref, c.site, r)
			g.AddCaller(r, ref)
			if created {
				next = append(next, r)
			}
		}
		return next, nil
	}

	wopts := []worklist.Option{
		worklist.WithName("invocation-graph"),
		worklist.WithCeiling(o.Ceiling),
		worklist.WithLogger(o.Logger),
	}
	if o.OnProgress != nil && o.ProgressInterval > 0 {
		wopts = append(wopts, worklist.WithProgress(o.ProgressInterval, o.OnProgress))
	}

	all, err := worklist.Process(ctx, roots,
		func(r NodeRef) semantic.MethodID { return g.Node(r).ID },
		expand, wopts...)
	if err != nil {
		return nil, err
	}

	return &Result{
		Roots: roots,
		All:   all,
		Graph: g,
		Stats: graphStats(g, len(roots)),
	}, nil
}

func graphStats(g *Graph, roots int) Stats {
	s := Stats{Roots: roots, Nodes: g.Len()}
	for _, n := range g.nodes {
		s.InvocationEdges += len(n.Invocations)
		s.ImplementationEdges += len(n.Implementations)
		s.CallerEdges += len(n.Callers)
		if n.FanoutCapped {
			s.CappedNodes++
		}
	}
	return s
}

type target struct {
	id     semantic.MethodID
	method semantic.Method
}

type callTarget struct {
	site   semantic.Location
	target target
}

// expander answers the two questions a node expansion asks. Implementations
// are returned in canonical id order and calls in site order.
type expander interface {
	implementations(ctx context.Context, n *MethodNode) ([]target, error)
	calls(ctx context.Context, n *MethodNode) ([]callTarget, error)
}

type indexExpander struct {
	idx *index.SymbolIndex
}

func (x indexExpander) implementations(_ context.Context, n *MethodNode) ([]target, error) {
	ids := x.idx.Overrides(n.ID)
	out := make([]target, 0, len(ids))
	for _, id := range ids {
		m, _ := x.idx.Method(id)
		out = append(out, target{id: id, method: m})
	}
	return out, nil
}

func (x indexExpander) calls(_ context.Context, n *MethodNode) ([]callTarget, error) {
	body, ok := x.idx.Body(n.ID)
	if !ok {
		return nil, nil
	}
	out := make([]callTarget, 0, len(body.Calls))
	for _, c := range body.Calls {
		m, _ := x.idx.Method(c.Target)
		out = append(out, callTarget{site: c.Site, target: target{id: c.Target, method: m}})
	}
	return out, nil
}

type liveExpander struct {
	provider semantic.Provider
	scope    []semantic.Project
}

func (x liveExpander) implementations(ctx context.Context, n *MethodNode) ([]target, error) {
	if n.Method == nil {
		return nil, nil
	}
	found, err := x.provider.FindImplementations(ctx, n.Method, x.scope)
	if err != nil {
		return nil, fmt.Errorf("implementations of %s: %w", n.ID, err)
	}

	seen := make(map[semantic.MethodID]struct{}, len(found))
	out := make([]target, 0, len(found))
	for _, m := range found {
		id := semantic.IDOf(m)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, target{id: id, method: m})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out, nil
}

func (x liveExpander) calls(ctx context.Context, n *MethodNode) ([]callTarget, error) {
	if n.Method == nil {
		return nil, nil
	}
	var out []callTarget
	for _, loc := range n.Method.Locations() {
		sites, err := x.provider.Invocations(ctx, n.Method, loc)
		if err != nil {
			return nil, fmt.Errorf("invocations of %s: %w", n.ID, err)
		}
		for _, s := range sites {
			if s.Target == nil {
				continue
			}
			out = append(out, callTarget{
				site:   s.Location,
				target: target{id: semantic.IDOf(s.Target), method: s.Target},
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].site.Before(out[j].site) })
	return out, nil
}
