// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package index builds the symbol index: a set of coupled lookup tables over
// every method and type declared in a project set, populated in one pass.
//
// The index is the only place that maps provider handles to canonical
// method ids. Everything downstream keys on semantic.MethodID.
package index

import (
	"sort"
	"time"

	"github.com/AleutianAI/symgraph/services/symgraph/semantic"
)

// Call is one resolved call expression inside a method body.
type Call struct {
	// Site is the position of the call expression.
	Site semantic.Location `json:"site"`

	// Target is the canonical id of the callee.
	Target semantic.MethodID `json:"target"`
}

// MethodBody is what the index records about a method with source.
type MethodBody struct {
	// Method is the canonical id of the method.
	Method semantic.MethodID `json:"method"`

	// Locations are the declaring source locations.
	Locations []semantic.Location `json:"locations"`

	// Calls are the resolved call expressions, ordered by site.
	Calls []Call `json:"calls,omitempty"`
}

// Stats summarizes an index.
type Stats struct {
	Projects          int           `json:"projects"`
	SkippedProjects   int           `json:"skipped_projects"`
	Types             int           `json:"types"`
	Methods           int           `json:"methods"`
	MethodsWithBodies int           `json:"methods_with_bodies"`
	CallEdges         int           `json:"call_edges"`
	OverrideEdges     int           `json:"override_edges"`
	ImplementerEdges  int           `json:"implementer_edges"`
	BuildDuration     time.Duration `json:"build_duration"`
}

// SymbolIndex holds the lookup tables for one project set.
//
// Thread Safety:
//
//	A SymbolIndex is immutable once Build returns and is safe for
//	concurrent readers. Accessors return copies of internal slices.
type SymbolIndex struct {
	projects []string
	root     string

	// methods maps canonical id to the reconciled handle.
	methods map[semantic.MethodID]semantic.Method

	// bodies maps canonical id to locations and resolved calls.
	bodies map[semantic.MethodID]*MethodBody

	// overrides maps an overridden method or interface member to the
	// methods that override or implement it.
	overrides map[semantic.MethodID][]semantic.MethodID

	// implementers maps an interface or base type to the types that
	// implement or extend it.
	implementers map[string][]string

	// types maps qualified type names to handles.
	types map[string]semantic.Type

	// callers maps a call target to the methods calling it.
	callers map[semantic.MethodID][]semantic.MethodID

	skipped []SkippedProject
	stats   Stats
}

func newSymbolIndex() *SymbolIndex {
	return &SymbolIndex{
		methods:      make(map[semantic.MethodID]semantic.Method),
		bodies:       make(map[semantic.MethodID]*MethodBody),
		overrides:    make(map[semantic.MethodID][]semantic.MethodID),
		implementers: make(map[string][]string),
		types:        make(map[string]semantic.Type),
		callers:      make(map[semantic.MethodID][]semantic.MethodID),
	}
}

// Method returns the reconciled handle for id.
func (x *SymbolIndex) Method(id semantic.MethodID) (semantic.Method, bool) {
	m, ok := x.methods[id]
	return m, ok
}

// Body returns the body record for id. Methods without source have none.
func (x *SymbolIndex) Body(id semantic.MethodID) (MethodBody, bool) {
	b, ok := x.bodies[id]
	if !ok {
		return MethodBody{}, false
	}
	return MethodBody{
		Method:    b.Method,
		Locations: copySlice(b.Locations),
		Calls:     copySlice(b.Calls),
	}, true
}

// Overrides returns the methods overriding or implementing id, sorted.
func (x *SymbolIndex) Overrides(id semantic.MethodID) []semantic.MethodID {
	return copySlice(x.overrides[id])
}

// Implementers returns the types implementing or extending typeName, sorted.
func (x *SymbolIndex) Implementers(typeName string) []string {
	return copySlice(x.implementers[typeName])
}

// TypeByName resolves a qualified type name.
func (x *SymbolIndex) TypeByName(name string) (semantic.Type, bool) {
	t, ok := x.types[name]
	return t, ok
}

// Callers returns the methods that call id, sorted.
func (x *SymbolIndex) Callers(id semantic.MethodID) []semantic.MethodID {
	return copySlice(x.callers[id])
}

// MethodIDs returns every registered method id, sorted.
func (x *SymbolIndex) MethodIDs() []semantic.MethodID {
	ids := make([]semantic.MethodID, 0, len(x.methods))
	for id := range x.methods {
		ids = append(ids, id)
	}
	return semantic.SortIDs(ids)
}

// TypeNames returns every registered type name, sorted.
func (x *SymbolIndex) TypeNames() []string {
	names := make([]string, 0, len(x.types))
	for n := range x.types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Projects returns the names of the projects in scope, including skipped ones.
func (x *SymbolIndex) Projects() []string {
	return copySlice(x.projects)
}

// RootProject returns the root filter, or "".
func (x *SymbolIndex) RootProject() string {
	return x.root
}

// Skipped returns the projects that failed to compile.
func (x *SymbolIndex) Skipped() []SkippedProject {
	return copySlice(x.skipped)
}

// Stats returns the index summary.
func (x *SymbolIndex) Stats() Stats {
	return x.stats
}

// Snapshot is a handle-free view of the index, comparable across builds.
type Snapshot struct {
	Methods      []semantic.MethodID                       `json:"methods"`
	Types        []string                                  `json:"types"`
	Bodies       map[semantic.MethodID]MethodBody          `json:"bodies"`
	Overrides    map[semantic.MethodID][]semantic.MethodID `json:"overrides"`
	Implementers map[string][]string                       `json:"implementers"`
	Callers      map[semantic.MethodID][]semantic.MethodID `json:"callers"`
}

// Snapshot returns the index contents keyed only by canonical ids and names.
func (x *SymbolIndex) Snapshot() Snapshot {
	s := Snapshot{
		Methods:      x.MethodIDs(),
		Types:        x.TypeNames(),
		Bodies:       make(map[semantic.MethodID]MethodBody, len(x.bodies)),
		Overrides:    make(map[semantic.MethodID][]semantic.MethodID, len(x.overrides)),
		Implementers: make(map[string][]string, len(x.implementers)),
		Callers:      make(map[semantic.MethodID][]semantic.MethodID, len(x.callers)),
	}
	for id := range x.bodies {
		s.Bodies[id], _ = x.Body(id)
	}
	for id, v := range x.overrides {
		s.Overrides[id] = copySlice(v)
	}
	for n, v := range x.implementers {
		s.Implementers[n] = copySlice(v)
	}
	for id, v := range x.callers {
		s.Callers[id] = copySlice(v)
	}
	return s
}

func copySlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
