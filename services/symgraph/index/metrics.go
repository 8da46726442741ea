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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("symgraph.index")
	meter  = otel.Meter("symgraph.index")
)

var (
	buildLatency    metric.Float64Histogram
	buildTotal      metric.Int64Counter
	indexedMethods  metric.Int64Histogram
	skippedProjects metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		buildLatency, err = meter.Float64Histogram(
			"symgraph_index_build_duration_seconds",
			metric.WithDescription("Duration of symbol index builds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		buildTotal, err = meter.Int64Counter(
			"symgraph_index_builds_total",
			metric.WithDescription("Total symbol index builds"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		indexedMethods, err = meter.Int64Histogram(
			"symgraph_index_methods",
			metric.WithDescription("Methods registered per index build"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		skippedProjects, err = meter.Int64Counter(
			"symgraph_index_skipped_projects_total",
			metric.WithDescription("Projects skipped because they failed to compile"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordBuildMetrics records metrics for a finished build.
func recordBuildMetrics(ctx context.Context, d time.Duration, stats Stats, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	buildLatency.Record(ctx, d.Seconds(), attrs)
	buildTotal.Add(ctx, 1, attrs)
	if success {
		indexedMethods.Record(ctx, int64(stats.Methods))
		skippedProjects.Add(ctx, int64(stats.SkippedProjects))
	}
}

// startBuildSpan creates a span for an index build.
func startBuildSpan(ctx context.Context, projects int, root string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "SymbolIndex.Build",
		trace.WithAttributes(
			attribute.Int("index.projects", projects),
			attribute.String("index.root_project", root),
		),
	)
}

// setBuildSpanResult sets result attributes on a build span.
func setBuildSpanResult(span trace.Span, stats Stats) {
	span.SetAttributes(
		attribute.Int("index.types", stats.Types),
		attribute.Int("index.methods", stats.Methods),
		attribute.Int("index.call_edges", stats.CallEdges),
		attribute.Int("index.skipped_projects", stats.SkippedProjects),
	)
}
