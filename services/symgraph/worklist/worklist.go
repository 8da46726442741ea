// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package worklist provides a deduplicating breadth-first traversal.
//
// Process drives a FIFO queue and a seen-set keyed by caller identity. Every
// distinct item is expanded exactly once no matter how often it is produced
// as an edge target, which makes it safe on cyclic graphs.
package worklist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ExpandFunc returns the items discovered from item. It may block.
type ExpandFunc[T any] func(ctx context.Context, item T) ([]T, error)

// Progress is a point-in-time snapshot of a running traversal.
type Progress struct {
	// Name is the traversal name from WithName.
	Name string

	// Processed is the number of items expanded so far.
	Processed int64

	// Queued is the live queue length.
	Queued int64

	// Discovered is the number of distinct items seen so far.
	Discovered int64

	// Elapsed is the wall-clock time since the traversal started.
	Elapsed time.Duration
}

// ProgressFunc receives progress snapshots. It runs on a background
// goroutine, never concurrently with itself.
type ProgressFunc func(Progress)

// Options configures a traversal.
type Options struct {
	// Name labels metrics, logs and errors. Default: "worklist".
	Name string

	// Ceiling fails the traversal once the live queue length exceeds it.
	// Zero or negative disables the check.
	Ceiling int

	// ProgressInterval is the wall-clock period between progress reports.
	ProgressInterval time.Duration

	// OnProgress receives progress reports. Nil disables reporting.
	OnProgress ProgressFunc

	// Logger receives debug output. Default: slog.Default().
	Logger *slog.Logger
}

// Option is a functional option for Process.
type Option func(*Options)

// DefaultOptions returns the default traversal options.
func DefaultOptions() Options {
	return Options{
		Name:             "worklist",
		ProgressInterval: 5 * time.Second,
	}
}

// WithName sets the traversal name.
func WithName(name string) Option {
	return func(o *Options) {
		o.Name = name
	}
}

// WithCeiling sets the live queue ceiling.
func WithCeiling(n int) Option {
	return func(o *Options) {
		o.Ceiling = n
	}
}

// WithProgress reports progress every interval.
func WithProgress(interval time.Duration, fn ProgressFunc) Option {
	return func(o *Options) {
		o.ProgressInterval = interval
		o.OnProgress = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// counters are shared between the traversal loop and the progress reporter.
type counters struct {
	processed  atomic.Int64
	queued     atomic.Int64
	discovered atomic.Int64
}

// Process expands seeds breadth-first until no new items are discovered.
//
// Description:
//
//	Items are deduplicated by key, including the seeds themselves. Each
//	distinct item is passed to expand exactly once, in strict FIFO order.
//	The key must be the caller's semantic identity for the item, not the
//	identity of whatever handle happens to carry it.
//
// Inputs:
//
//	ctx - Checked before every dequeue.
//	seeds - Starting items.
//	key - Identity function for the seen-set.
//	expand - Discovers the neighbours of an item. Never called concurrently.
//	opts - WithCeiling, WithProgress, WithName, WithLogger.
//
// Outputs:
//
//	[]T - Every reached item, in first-discovery order.
//	error - *LimitError when the queue crosses the ceiling, an error matching
//	        ErrTraversalCancelled and ctx.Err() on cancellation, or the
//	        wrapped expand error. No items are returned with an error.
//
// Thread Safety:
//
//	Each call owns its queue and seen-set. Concurrent calls are independent.
func Process[T any, K comparable](ctx context.Context, seeds []T, key func(T) K, expand ExpandFunc[T], opts ...Option) ([]T, error) {
	if key == nil {
		return nil, ErrNilKeyFunc
	}
	if expand == nil {
		return nil, ErrNilExpandFunc
	}

	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	start := time.Now()
	var c counters
	stop := startReporter(&o, &c, start)
	defer stop()

	reached, peak, err := run(ctx, seeds, key, expand, &o, &c)

	outcome := outcomeOK
	switch {
	case err == nil:
	case isLimit(err):
		outcome = outcomeLimit
	case isCancelled(err):
		outcome = outcomeCancelled
	default:
		outcome = outcomeError
	}
	runsTotal.WithLabelValues(o.Name, outcome).Inc()
	peakQueueLength.WithLabelValues(o.Name).Observe(float64(peak))
	runDuration.WithLabelValues(o.Name).Observe(time.Since(start).Seconds())

	o.Logger.Debug("worklist traversal finished",
		slog.String("traversal", o.Name),
		slog.String("outcome", outcome),
		slog.Int64("processed", c.processed.Load()),
		slog.Int64("discovered", c.discovered.Load()),
		slog.Int("peak_queue", peak),
		slog.Duration("elapsed", time.Since(start)),
	)

	if err != nil {
		return nil, err
	}
	return reached, nil
}

func run[T any, K comparable](ctx context.Context, seeds []T, key func(T) K, expand ExpandFunc[T], o *Options, c *counters) ([]T, int, error) {
	seen := make(map[K]struct{}, len(seeds))
	reached := make([]T, 0, len(seeds))
	queue := make([]T, 0, len(seeds))
	head := 0
	peak := 0

	enqueue := func(item T) error {
		k := key(item)
		if _, ok := seen[k]; ok {
			return nil
		}
		seen[k] = struct{}{}
		reached = append(reached, item)
		queue = append(queue, item)

		live := len(queue) - head
		if live > peak {
			peak = live
		}
		c.queued.Store(int64(live))
		c.discovered.Store(int64(len(reached)))

		if o.Ceiling > 0 && live > o.Ceiling {
			return &LimitError{
				Name:        o.Name,
				Ceiling:     o.Ceiling,
				QueueLength: live,
				Processed:   int(c.processed.Load()),
			}
		}
		return nil
	}

	for _, s := range seeds {
		if err := enqueue(s); err != nil {
			return nil, peak, err
		}
	}

	for head < len(queue) {
		if err := ctx.Err(); err != nil {
			return nil, peak, cancelled(o.Name, err)
		}

		item := queue[head]
		var zero T
		queue[head] = zero
		head++
		if head > 1024 && head*2 > len(queue) {
			queue = append(queue[:0], queue[head:]...)
			head = 0
		}
		c.queued.Store(int64(len(queue) - head))

		next, err := expand(ctx, item)
		c.processed.Add(1)
		itemsExpanded.WithLabelValues(o.Name).Inc()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, peak, cancelled(o.Name, ctxErr)
			}
			return nil, peak, fmt.Errorf("%s: expand: %w", o.Name, err)
		}

		for _, n := range next {
			if err := enqueue(n); err != nil {
				return nil, peak, err
			}
		}
	}

	return reached, peak, nil
}

// startReporter runs OnProgress on a ticker until the returned stop is called.
// The traversal loop only touches atomics, so reporting never slows it down.
func startReporter(o *Options, c *counters, start time.Time) (stop func()) {
	if o.OnProgress == nil || o.ProgressInterval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(o.ProgressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				o.OnProgress(Progress{
					Name:       o.Name,
					Processed:  c.processed.Load(),
					Queued:     c.queued.Load(),
					Discovered: c.discovered.Load(),
					Elapsed:    time.Since(start),
				})
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

func cancelled(name string, cause error) error {
	return fmt.Errorf("%s: %w: %w", name, ErrTraversalCancelled, cause)
}
