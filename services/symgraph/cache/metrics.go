// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for store operations.
var (
	tracer = otel.Tracer("symgraph.cache")
	meter  = otel.Meter("symgraph.cache")
)

var (
	storeLookups       metric.Int64Counter
	storeLookupLatency metric.Float64Histogram
	storeBuilds        metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		storeLookups, err = meter.Int64Counter(
			"symgraph_cache_lookups_total",
			metric.WithDescription("Total cache lookups by kind and result"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		storeLookupLatency, err = meter.Float64Histogram(
			"symgraph_cache_lookup_duration_seconds",
			metric.WithDescription("Duration of cache lookups"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		storeBuilds, err = meter.Int64Counter(
			"symgraph_cache_builds_total",
			metric.WithDescription("Total factory executions by kind and outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordLookup(ctx context.Context, kind string, hit bool, d time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("hit", hit),
	)
	storeLookups.Add(ctx, 1, attrs)
	storeLookupLatency.Record(ctx, d.Seconds(), attrs)
}

func recordBuild(ctx context.Context, kind string, err error) {
	if initMetrics() != nil {
		return
	}
	storeBuilds.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("success", err == nil),
	))
}

// startStoreSpan creates a span for a store lookup.
func startStoreSpan(ctx context.Context, kind string, nested bool) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Store.GetOrAdd",
		trace.WithAttributes(
			attribute.String("cache.kind", kind),
			attribute.Bool("cache.nested", nested),
		),
	)
}

func setStoreSpanResult(span trace.Span, hit bool) {
	span.SetAttributes(attribute.Bool("cache.hit", hit))
}
