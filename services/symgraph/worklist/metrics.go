// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package worklist

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes used as the "outcome" label.
const (
	outcomeOK        = "ok"
	outcomeLimit     = "limit"
	outcomeCancelled = "cancelled"
	outcomeError     = "error"
)

var (
	itemsExpanded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "symgraph_worklist_items_expanded_total",
		Help: "Total items passed to an expand function",
	}, []string{"traversal"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "symgraph_worklist_runs_total",
		Help: "Total traversals by outcome",
	}, []string{"traversal", "outcome"})

	peakQueueLength = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "symgraph_worklist_peak_queue_length",
		Help:    "Largest live queue length seen during a traversal",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	}, []string{"traversal"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "symgraph_worklist_duration_seconds",
		Help:    "Traversal wall-clock duration",
		Buckets: []float64{0.001, 0.01, 0.1, 1, 10, 60, 600},
	}, []string{"traversal"})
)
