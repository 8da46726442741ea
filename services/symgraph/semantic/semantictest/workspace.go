// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package semantictest provides an in-memory semantic.Provider for tests.
//
// A Workspace is declared as plain data. Every Compile call mints brand new
// handle objects, so handles for the same method taken from two compilations
// never compare equal, the same way a real compiler behaves.
//
//	ws := semantictest.NewWorkspace(
//	    semantictest.ProjectSpec{
//	        Name: "repo",
//	        Types: []semantictest.TypeSpec{
//	            semantictest.Interface("repo.Repo", semantictest.Abstract("Get", "string")),
//	            semantictest.Class("repo.RepoA", []string{"repo.Repo"}, semantictest.Impl("Get", "string")),
//	        },
//	    },
//	)
package semantictest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/AleutianAI/symgraph/services/symgraph/semantic"
)

// ProjectSpec declares one project.
type ProjectSpec struct {
	Name  string
	Deps  []string
	Types []TypeSpec
}

// TypeSpec declares one type.
type TypeSpec struct {
	// Name is the qualified type name.
	Name string

	Kind semantic.TypeKind

	// Interfaces are the qualified names of implemented or extended interfaces.
	Interfaces []string

	// Base is the qualified name of the base type, if any.
	Base string

	Methods []MethodSpec
}

// MethodSpec declares one method.
type MethodSpec struct {
	Name   string
	Params []string
	Arity  int

	// Abstract marks a method without a body.
	Abstract bool

	// NoSource marks a method with a body whose source is unavailable.
	NoSource bool

	// Overrides is the "Type.Method" reference of the overridden method.
	Overrides string

	// Calls are "Type.Method" references to called methods, in body order.
	Calls []string
}

// Interface declares an interface type.
func Interface(name string, methods ...MethodSpec) TypeSpec {
	return TypeSpec{Name: name, Kind: semantic.KindInterface, Methods: methods}
}

// Class declares a concrete type implementing the given interfaces.
func Class(name string, interfaces []string, methods ...MethodSpec) TypeSpec {
	return TypeSpec{Name: name, Kind: semantic.KindConcrete, Interfaces: interfaces, Methods: methods}
}

// Abstract declares an abstract method.
func Abstract(name string, params ...string) MethodSpec {
	return MethodSpec{Name: name, Params: params, Abstract: true}
}

// Impl declares a concrete method with the given parameter types.
func Impl(name string, params ...string) MethodSpec {
	return MethodSpec{Name: name, Params: params}
}

// Calling returns a copy of m that calls the given "Type.Method" references.
func (m MethodSpec) Calling(refs ...string) MethodSpec {
	m.Calls = append(append([]string(nil), m.Calls...), refs...)
	return m
}

// Overriding returns a copy of m that overrides the "Type.Method" reference.
func (m MethodSpec) Overriding(ref string) MethodSpec {
	m.Overrides = ref
	return m
}

// Workspace is an in-memory semantic.Provider.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Workspace struct {
	projects map[string]*ProjectSpec
	order    []string

	mu           sync.Mutex
	failures     map[string]error
	compiles     map[string]int
	invocations  int
	implLookups  int
	compilations int
}

var _ semantic.Provider = (*Workspace)(nil)

// NewWorkspace creates a workspace from project specs.
func NewWorkspace(projects ...ProjectSpec) *Workspace {
	ws := &Workspace{
		projects: make(map[string]*ProjectSpec, len(projects)),
		failures: make(map[string]error),
		compiles: make(map[string]int),
	}
	for i := range projects {
		p := projects[i]
		ws.projects[p.Name] = &p
		ws.order = append(ws.order, p.Name)
	}
	return ws
}

// Projects returns every project in declaration order.
func (ws *Workspace) Projects() []semantic.Project {
	out := make([]semantic.Project, len(ws.order))
	for i, name := range ws.order {
		out[i] = semantic.Project{Name: name}
	}
	return out
}

// Project returns the named project.
func (ws *Workspace) Project(name string) semantic.Project {
	return semantic.Project{Name: name}
}

// FailCompile makes Compile fail for the named project.
func (ws *Workspace) FailCompile(name string, err error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.failures[name] = err
}

// CompileCount returns how often the named project was compiled.
func (ws *Workspace) CompileCount(name string) int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.compiles[name]
}

// InvocationQueries returns how often Invocations was called.
func (ws *Workspace) InvocationQueries() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.invocations
}

// ImplementationQueries returns how often FindImplementations was called.
func (ws *Workspace) ImplementationQueries() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.implLookups
}

// Dependencies implements semantic.Provider.
func (ws *Workspace) Dependencies(ctx context.Context, p semantic.Project) ([]semantic.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	spec, ok := ws.projects[p.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", semantic.ErrProjectNotFound, p.Name)
	}
	out := make([]semantic.Project, 0, len(spec.Deps))
	for _, d := range spec.Deps {
		out = append(out, semantic.Project{Name: d})
	}
	return out, nil
}

// Compile implements semantic.Provider. Every call returns fresh handles.
func (ws *Workspace) Compile(ctx context.Context, p semantic.Project) (semantic.Compilation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	spec, ok := ws.projects[p.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", semantic.ErrProjectNotFound, p.Name)
	}

	ws.mu.Lock()
	ws.compiles[p.Name]++
	ws.compilations++
	generation := ws.compilations
	failure := ws.failures[p.Name]
	ws.mu.Unlock()

	if failure != nil {
		return nil, &semantic.CompileError{Project: p.Name, Err: failure}
	}
	return ws.newCompilation(spec, generation), nil
}

// Invocations implements semantic.Provider. Targets resolve in the
// compilation of m.
func (ws *Workspace) Invocations(ctx context.Context, m semantic.Method, loc semantic.Location) ([]semantic.CallSite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mh, ok := m.(*method)
	if !ok {
		return nil, semantic.ErrForeignHandle
	}

	ws.mu.Lock()
	ws.invocations++
	ws.mu.Unlock()

	if loc != mh.location() {
		return nil, nil
	}

	sites := make([]semantic.CallSite, 0, len(mh.spec.Calls))
	for i, ref := range mh.spec.Calls {
		site := semantic.CallSite{
			Location: semantic.Location{Path: loc.Path, Line: loc.Line, Column: i + 1},
		}
		if target, ok := mh.c.lookupMethod(ref); ok {
			site.Target = target
		}
		sites = append(sites, site)
	}
	return sites, nil
}

// FindImplementations implements semantic.Provider.
//
// Each project in scope is compiled afresh, so the returned handles belong
// to different compilations than m.
func (ws *Workspace) FindImplementations(ctx context.Context, m semantic.Method, scope []semantic.Project) ([]semantic.Method, error) {
	ws.mu.Lock()
	ws.implLookups++
	ws.mu.Unlock()

	id := semantic.IDOf(m)
	owner := m.ContainingType()
	seen := make(map[semantic.MethodID]struct{})
	var out []semantic.Method

	for _, p := range scope {
		comp, err := ws.Compile(ctx, p)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		c := comp.(*compilation)

		for _, t := range c.own {
			if owner.Kind() == semantic.KindInterface {
				if t.Kind() == semantic.KindInterface || !containsString(t.spec.Interfaces, owner.QualifiedName()) {
					continue
				}
				iface, ok := c.types[owner.QualifiedName()]
				if !ok {
					continue
				}
				member, ok := iface.methodByID(id)
				if !ok {
					continue
				}
				if impl, ok := c.FindImplementationForInterfaceMember(t, member); ok {
					add(&out, seen, impl)
				}
				continue
			}
			for _, cand := range t.Methods() {
				if o := cand.Overridden(); o != nil && semantic.IDOf(o) == id {
					add(&out, seen, cand)
				}
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return semantic.IDOf(out[i]) < semantic.IDOf(out[j]) })
	return out, nil
}

func add(out *[]semantic.Method, seen map[semantic.MethodID]struct{}, m semantic.Method) {
	id := semantic.IDOf(m)
	if _, ok := seen[id]; ok {
		return
	}
	seen[id] = struct{}{}
	*out = append(*out, m)
}

// newCompilation materializes handles for spec and everything it can see.
func (ws *Workspace) newCompilation(spec *ProjectSpec, generation int) *compilation {
	c := &compilation{
		ws:         ws,
		project:    semantic.Project{Name: spec.Name},
		types:      make(map[string]*typ),
		generation: generation,
	}

	visible := ws.closure(spec.Name)
	for _, name := range visible {
		p := ws.projects[name]
		for i := range p.Types {
			ts := &p.Types[i]
			if _, dup := c.types[ts.Name]; dup {
				continue
			}
			t := &typ{c: c, spec: ts}
			c.types[ts.Name] = t
			if name == spec.Name {
				c.own = append(c.own, t)
			}
		}
	}
	return c
}

// closure returns name followed by its transitive dependencies.
func (ws *Workspace) closure(name string) []string {
	seen := map[string]bool{name: true}
	order := []string{name}
	for i := 0; i < len(order); i++ {
		p, ok := ws.projects[order[i]]
		if !ok {
			continue
		}
		for _, d := range p.Deps {
			if !seen[d] {
				seen[d] = true
				order = append(order, d)
			}
		}
	}
	return order
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// splitRef splits "pkg.Type.Method" at the last dot.
func splitRef(ref string) (typeName, methodName string, ok bool) {
	i := strings.LastIndexByte(ref, '.')
	if i <= 0 || i == len(ref)-1 {
		return "", "", false
	}
	return ref[:i], ref[i+1:], true
}
