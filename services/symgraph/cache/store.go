// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache provides a process-lifetime memoization store.
//
// Values are keyed by a typed Kind plus caller-chosen string keys. The store
// never evicts and never invalidates: callers that need fresh results must
// key on an input identity that changes when the inputs do.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrKindMismatch is returned when two kinds share a name but not a value type.
var ErrKindMismatch = errors.New("cache kind value type mismatch")

// Kind names a family of cached values of type V.
//
// Kinds are compared by name, so each name must be used with one V only.
type Kind[V any] struct {
	name string
}

// NewKind creates a kind.
func NewKind[V any](name string) Kind[V] {
	return Kind[V]{name: name}
}

// Name returns the kind name.
func (k Kind[V]) Name() string {
	return k.name
}

// Factory builds a value on a cache miss.
type Factory[V any] func(ctx context.Context) (V, error)

// entryKey addresses one stored value. Flat entries leave outer empty and
// nested false so they never collide with a nested entry.
type entryKey struct {
	kind   string
	outer  string
	inner  string
	nested bool
}

func (k entryKey) flightKey() string {
	if k.nested {
		return k.kind + "\x00n\x00" + k.outer + "\x00" + k.inner
	}
	return k.kind + "\x00f\x00" + k.inner
}

// Stats is a snapshot of store counters.
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Builds  int64 `json:"builds"`
	Shared  int64 `json:"shared"`
	Errors  int64 `json:"errors"`
}

// Store is a memoization table.
//
// Thread Safety:
//
//	Store is safe for concurrent use. Concurrent misses for the same key
//	share one factory execution through singleflight; every waiter receives
//	the same value or the same error. Errors are not stored, so the next
//	call after a failure runs the factory again.
type Store struct {
	mu      sync.RWMutex
	entries map[entryKey]any
	flight  singleflight.Group

	hits   int64
	misses int64
	builds int64
	shared int64
	errors int64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[entryKey]any)}
}

// GetOrAdd returns the value cached under (kind, key), building it with
// factory on a miss.
func GetOrAdd[V any](ctx context.Context, s *Store, kind Kind[V], key string, factory Factory[V]) (V, error) {
	return getOrAdd(ctx, s, kind, entryKey{kind: kind.name, inner: key}, factory)
}

// GetOrAddNested returns the value cached under innerKey within outerKey.
//
// Use it for results derived from a coarser cached input, such as
// "symbol index for project set X" followed by "graph for type Y".
func GetOrAddNested[V any](ctx context.Context, s *Store, kind Kind[V], outerKey, innerKey string, factory Factory[V]) (V, error) {
	return getOrAdd(ctx, s, kind, entryKey{kind: kind.name, outer: outerKey, inner: innerKey, nested: true}, factory)
}

// Peek returns the cached value without building it.
func Peek[V any](s *Store, kind Kind[V], key string) (V, bool) {
	v, ok, _ := lookup[V](s, entryKey{kind: kind.name, inner: key})
	return v, ok
}

func getOrAdd[V any](ctx context.Context, s *Store, kind Kind[V], key entryKey, factory Factory[V]) (V, error) {
	var zero V
	if factory == nil {
		return zero, fmt.Errorf("cache %s: nil factory", kind.name)
	}

	start := time.Now()
	ctx, span := startStoreSpan(ctx, kind.name, key.nested)
	defer span.End()

	if v, ok, err := lookup[V](s, key); err != nil {
		return zero, err
	} else if ok {
		atomic.AddInt64(&s.hits, 1)
		recordLookup(ctx, kind.name, true, time.Since(start))
		setStoreSpanResult(span, true)
		return v, nil
	}
	atomic.AddInt64(&s.misses, 1)
	recordLookup(ctx, kind.name, false, time.Since(start))
	setStoreSpanResult(span, false)

	result, err, shared := s.flight.Do(key.flightKey(), func() (interface{}, error) {
		// Another flight may have stored the value between lookup and Do.
		s.mu.RLock()
		existing, ok := s.entries[key]
		s.mu.RUnlock()
		if ok {
			return existing, nil
		}

		v, err := factory(ctx)
		if err != nil {
			atomic.AddInt64(&s.errors, 1)
			recordBuild(ctx, kind.name, err)
			return nil, err
		}

		s.mu.Lock()
		s.entries[key] = v
		s.mu.Unlock()
		atomic.AddInt64(&s.builds, 1)
		recordBuild(ctx, kind.name, nil)
		return v, nil
	})
	if shared {
		atomic.AddInt64(&s.shared, 1)
	}
	if err != nil {
		span.RecordError(err)
		return zero, err
	}

	v, ok := result.(V)
	if !ok {
		return zero, fmt.Errorf("%w: kind %q holds %T", ErrKindMismatch, kind.name, result)
	}
	return v, nil
}

func lookup[V any](s *Store, key entryKey) (V, bool, error) {
	var zero V
	s.mu.RLock()
	raw, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return zero, false, nil
	}
	v, ok := raw.(V)
	if !ok {
		return zero, false, fmt.Errorf("%w: kind %q holds %T", ErrKindMismatch, key.kind, raw)
	}
	return v, true, nil
}

// Len returns the number of stored values.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Stats returns current counters.
func (s *Store) Stats() Stats {
	return Stats{
		Entries: s.Len(),
		Hits:    atomic.LoadInt64(&s.hits),
		Misses:  atomic.LoadInt64(&s.misses),
		Builds:  atomic.LoadInt64(&s.builds),
		Shared:  atomic.LoadInt64(&s.shared),
		Errors:  atomic.LoadInt64(&s.errors),
	}
}

// Reset drops every entry and zeroes the counters.
//
// Builds already in flight still complete and store their value.
func (s *Store) Reset() {
	s.mu.Lock()
	s.entries = make(map[entryKey]any)
	s.mu.Unlock()

	atomic.StoreInt64(&s.hits, 0)
	atomic.StoreInt64(&s.misses, 0)
	atomic.StoreInt64(&s.builds, 0)
	atomic.StoreInt64(&s.shared, 0)
	atomic.StoreInt64(&s.errors, 0)
}

type storeContextKey struct{}

// WithStore returns a context carrying s.
func WithStore(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, storeContextKey{}, s)
}

// FromContext returns the store carried by ctx, if any.
func FromContext(ctx context.Context) (*Store, bool) {
	s, ok := ctx.Value(storeContextKey{}).(*Store)
	return s, ok && s != nil
}
