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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("symgraph.callgraph")
	meter  = otel.Meter("symgraph.callgraph")
)

var (
	buildLatency metric.Float64Histogram
	buildTotal   metric.Int64Counter
	nodesTotal   metric.Int64Histogram
	cappedTotal  metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		buildLatency, err = meter.Float64Histogram(
			"symgraph_callgraph_build_duration_seconds",
			metric.WithDescription("Duration of invocation graph builds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		buildTotal, err = meter.Int64Counter(
			"symgraph_callgraph_builds_total",
			metric.WithDescription("Total invocation graph builds"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodesTotal, err = meter.Int64Histogram(
			"symgraph_callgraph_nodes",
			metric.WithDescription("Nodes reached per graph build"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cappedTotal, err = meter.Int64Counter(
			"symgraph_callgraph_fanout_capped_total",
			metric.WithDescription("Nodes whose implementation edges were capped"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordBuildMetrics records metrics for a finished build.
func recordBuildMetrics(ctx context.Context, d time.Duration, stats Stats, indexed, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.Bool("indexed", indexed),
		attribute.Bool("success", success),
	)
	buildLatency.Record(ctx, d.Seconds(), attrs)
	buildTotal.Add(ctx, 1, attrs)
	if success {
		nodesTotal.Record(ctx, int64(stats.Nodes))
		cappedTotal.Add(ctx, int64(stats.CappedNodes))
	}
}

// startBuildSpan creates a span for a graph build.
func startBuildSpan(ctx context.Context, startType string, opts BuildOptions) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Builder.Build",
		trace.WithAttributes(
			attribute.String("callgraph.start_type", startType),
			attribute.String("callgraph.method_filter", opts.MethodFilter),
			attribute.Int("callgraph.fanout_cap", opts.FanoutCap),
			attribute.Bool("callgraph.indexed", opts.Index != nil),
		),
	)
}

// setBuildSpanResult sets result attributes on a build span.
func setBuildSpanResult(span trace.Span, stats Stats) {
	span.SetAttributes(
		attribute.Int("callgraph.nodes", stats.Nodes),
		attribute.Int("callgraph.invocation_edges", stats.InvocationEdges),
		attribute.Int("callgraph.implementation_edges", stats.ImplementationEdges),
		attribute.Int("callgraph.capped_nodes", stats.CappedNodes),
	)
}
