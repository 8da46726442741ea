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
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identity(s string) string { return s }

func graphExpand(edges map[string][]string, calls map[string]int) ExpandFunc[string] {
	return func(_ context.Context, item string) ([]string, error) {
		calls[item]++
		return edges[item], nil
	}
}

func TestProcess_CyclicGraphExpandsOnce(t *testing.T) {
	edges := map[string][]string{
		"A": {"B"},
		"B": {"A", "C"},
		"C": nil,
	}
	calls := make(map[string]int)

	got, err := Process(context.Background(), []string{"A"}, identity, graphExpand(edges, calls))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"A", "B", "C"}, got)
	assert.Equal(t, map[string]int{"A": 1, "B": 1, "C": 1}, calls)
}

func TestProcess_BreadthFirstOrder(t *testing.T) {
	edges := map[string][]string{
		"root": {"a", "b"},
		"a":    {"a1", "a2"},
		"b":    {"b1"},
		"a1":   {"deep"},
	}
	var order []string
	expand := func(_ context.Context, item string) ([]string, error) {
		order = append(order, item)
		return edges[item], nil
	}

	got, err := Process(context.Background(), []string{"root"}, identity, expand)
	require.NoError(t, err)

	want := []string{"root", "a", "b", "a1", "a2", "b1", "deep"}
	assert.Equal(t, want, order)
	assert.Equal(t, want, got)
}

func TestProcess_DuplicateSeeds(t *testing.T) {
	calls := make(map[string]int)
	got, err := Process(context.Background(), []string{"x", "x", "y"}, identity, graphExpand(nil, calls))
	require.NoError(t, err)

	assert.Equal(t, []string{"x", "y"}, got)
	assert.Equal(t, 1, calls["x"])
}

// handle mimics a symbol handle: two handles may carry the same identity.
type handle struct {
	id  string
	gen int
}

func TestProcess_KeyIsCallerIdentity(t *testing.T) {
	var expanded int
	expand := func(_ context.Context, h *handle) ([]*handle, error) {
		expanded++
		if h.id == "A" {
			// Same logical item, different handle.
			return []*handle{{id: "A", gen: 2}, {id: "B", gen: 2}}, nil
		}
		return nil, nil
	}

	got, err := Process(context.Background(), []*handle{{id: "A", gen: 1}},
		func(h *handle) string { return h.id }, expand)
	require.NoError(t, err)

	assert.Len(t, got, 2)
	assert.Equal(t, 2, expanded)
	assert.Equal(t, 1, got[0].gen)
}

func TestProcess_CeilingExceeded(t *testing.T) {
	var next atomic.Int64
	// Every item yields two new ones, so the live queue grows by one per step.
	expand := func(_ context.Context, _ int64) ([]int64, error) {
		return []int64{next.Add(1), next.Add(1)}, nil
	}

	_, err := Process(context.Background(), []int64{0}, func(i int64) int64 { return i }, expand,
		WithCeiling(10), WithName("fanout"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTraversalLimitExceeded)

	var limitErr *LimitError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, 10, limitErr.Ceiling)
	assert.Equal(t, 11, limitErr.QueueLength)
	assert.Equal(t, "fanout", limitErr.Name)
	assert.Less(t, limitErr.Processed, 11)
}

func TestProcess_CeilingAppliesToSeeds(t *testing.T) {
	seeds := []int{1, 2, 3, 4}
	_, err := Process(context.Background(), seeds, func(i int) int { return i },
		func(context.Context, int) ([]int, error) { return nil, nil },
		WithCeiling(3))
	assert.ErrorIs(t, err, ErrTraversalLimitExceeded)
}

func TestProcess_CeilingBoundsQueueNotTotal(t *testing.T) {
	// A chain longer than the ceiling keeps one live item and must finish.
	const length = 500
	expand := func(_ context.Context, i int) ([]int, error) {
		if i >= length {
			return nil, nil
		}
		return []int{i + 1}, nil
	}

	got, err := Process(context.Background(), []int{1}, func(i int) int { return i }, expand, WithCeiling(5))
	require.NoError(t, err)
	assert.Len(t, got, length)
}

func TestProcess_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var expanded int
	expand := func(_ context.Context, i int) ([]int, error) {
		expanded++
		if expanded == 3 {
			cancel()
		}
		return []int{i + 1}, nil
	}

	got, err := Process(ctx, []int{0}, func(i int) int { return i }, expand)
	require.Error(t, err)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrTraversalCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, expanded)
}

func TestProcess_ExpandErrorAfterCancelIsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	expand := func(ctx context.Context, _ int) ([]int, error) {
		cancel()
		return nil, ctx.Err()
	}

	_, err := Process(ctx, []int{0}, func(i int) int { return i }, expand)
	assert.ErrorIs(t, err, ErrTraversalCancelled)
}

func TestProcess_ExpandErrorPropagates(t *testing.T) {
	boom := errors.New("provider unavailable")
	expand := func(context.Context, string) ([]string, error) { return nil, boom }

	_, err := Process(context.Background(), []string{"a"}, identity, expand, WithName("calls"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrTraversalCancelled)
	assert.Contains(t, err.Error(), "calls")
}

func TestProcess_Progress(t *testing.T) {
	reports := make(chan Progress, 64)
	expand := func(_ context.Context, i int) ([]int, error) {
		time.Sleep(5 * time.Millisecond)
		if i >= 20 {
			return nil, nil
		}
		return []int{i + 1}, nil
	}

	_, err := Process(context.Background(), []int{0}, func(i int) int { return i }, expand,
		WithName("progress"),
		WithProgress(10*time.Millisecond, func(p Progress) {
			select {
			case reports <- p:
			default:
			}
		}))
	require.NoError(t, err)
	close(reports)

	var last Progress
	var n int
	for p := range reports {
		assert.Equal(t, "progress", p.Name)
		assert.GreaterOrEqual(t, p.Processed, last.Processed)
		last = p
		n++
	}
	assert.Positive(t, n)
}

func TestProcess_NilFuncs(t *testing.T) {
	_, err := Process[string, string](context.Background(), nil, nil, func(context.Context, string) ([]string, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrNilKeyFunc)

	_, err = Process[string, string](context.Background(), nil, identity, nil)
	assert.ErrorIs(t, err, ErrNilExpandFunc)
}

func TestProcess_EmptySeeds(t *testing.T) {
	got, err := Process(context.Background(), nil, identity, graphExpand(nil, map[string]int{}))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func BenchmarkProcess_Chain(b *testing.B) {
	expand := func(_ context.Context, i int) ([]int, error) {
		if i >= 10000 {
			return nil, nil
		}
		return []int{i + 1, i + 1}, nil
	}
	for i := 0; i < b.N; i++ {
		if _, err := Process(context.Background(), []int{0}, func(i int) int { return i }, expand); err != nil {
			b.Fatal(fmt.Sprint(err))
		}
	}
}
