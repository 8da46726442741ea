// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package semantictest

import (
	"strings"
	"sync"

	"github.com/AleutianAI/symgraph/services/symgraph/semantic"
)

type compilation struct {
	ws         *Workspace
	project    semantic.Project
	types      map[string]*typ
	own        []*typ
	generation int
}

var _ semantic.Compilation = (*compilation)(nil)

func (c *compilation) Project() semantic.Project { return c.project }

func (c *compilation) DeclaredTypes() []semantic.Type {
	out := make([]semantic.Type, len(c.own))
	for i, t := range c.own {
		out[i] = t
	}
	return out
}

func (c *compilation) ResolveType(qualifiedName string) (semantic.Type, bool) {
	t, ok := c.types[qualifiedName]
	if !ok {
		return nil, false
	}
	return t, true
}

func (c *compilation) FindImplementationForInterfaceMember(t semantic.Type, member semantic.Method) (semantic.Method, bool) {
	local, ok := c.types[t.QualifiedName()]
	if !ok || local.spec.Kind == semantic.KindInterface {
		return nil, false
	}
	ifaceName := member.ContainingType().QualifiedName()

	implements := false
	for cur := local; cur != nil; cur = cur.base() {
		if containsString(cur.spec.Interfaces, ifaceName) {
			implements = true
			break
		}
	}
	if !implements {
		return nil, false
	}

	want := member.Signature()
	for cur := local; cur != nil; cur = cur.base() {
		for _, m := range cur.methodHandles() {
			if m.spec.Abstract || m.spec.Name != want.Name || !equalStrings(m.spec.Params, want.Params) {
				continue
			}
			return m, true
		}
	}
	return nil, false
}

func (c *compilation) lookupMethod(ref string) (*method, bool) {
	typeName, methodName, ok := splitRef(ref)
	if !ok {
		return nil, false
	}
	t, ok := c.types[typeName]
	if !ok {
		return nil, false
	}
	for _, m := range t.methodHandles() {
		if m.spec.Name == methodName {
			return m, true
		}
	}
	return nil, false
}

type typ struct {
	c    *compilation
	spec *TypeSpec

	once    sync.Once
	methods []*method
}

var _ semantic.Type = (*typ)(nil)

func (t *typ) Name() string {
	if i := strings.LastIndexByte(t.spec.Name, '.'); i >= 0 {
		return t.spec.Name[i+1:]
	}
	return t.spec.Name
}

func (t *typ) QualifiedName() string             { return t.spec.Name }
func (t *typ) Compilation() semantic.Compilation { return t.c }
func (t *typ) Kind() semantic.TypeKind           { return t.spec.Kind }

func (t *typ) methodHandles() []*method {
	t.once.Do(func() {
		t.methods = make([]*method, len(t.spec.Methods))
		for i := range t.spec.Methods {
			t.methods[i] = &method{c: t.c, owner: t, spec: &t.spec.Methods[i], index: i}
		}
	})
	return t.methods
}

func (t *typ) Methods() []semantic.Method {
	handles := t.methodHandles()
	out := make([]semantic.Method, len(handles))
	for i, m := range handles {
		out[i] = m
	}
	return out
}

func (t *typ) Interfaces() []semantic.Type {
	var out []semantic.Type
	for _, name := range t.spec.Interfaces {
		if it, ok := t.c.types[name]; ok {
			out = append(out, it)
		}
	}
	return out
}

func (t *typ) BaseType() semantic.Type {
	if b := t.base(); b != nil {
		return b
	}
	return nil
}

func (t *typ) base() *typ {
	if t.spec.Base == "" {
		return nil
	}
	return t.c.types[t.spec.Base]
}

func (t *typ) methodByID(id semantic.MethodID) (*method, bool) {
	for _, m := range t.methodHandles() {
		if semantic.IDOf(m) == id {
			return m, true
		}
	}
	return nil, false
}

type method struct {
	c     *compilation
	owner *typ
	spec  *MethodSpec
	index int
}

var _ semantic.Method = (*method)(nil)

func (m *method) Name() string                      { return m.spec.Name }
func (m *method) QualifiedName() string             { return m.owner.spec.Name + "." + m.spec.Name }
func (m *method) Compilation() semantic.Compilation { return m.c }
func (m *method) ContainingType() semantic.Type     { return m.owner }
func (m *method) IsAbstract() bool                  { return m.spec.Abstract }

func (m *method) Signature() semantic.MethodSignature {
	return semantic.MethodSignature{
		ContainingType: m.owner.spec.Name,
		Name:           m.spec.Name,
		Params:         append([]string(nil), m.spec.Params...),
		Arity:          m.spec.Arity,
	}
}

func (m *method) Locations() []semantic.Location {
	if m.spec.Abstract || m.spec.NoSource {
		return nil
	}
	return []semantic.Location{m.location()}
}

// location is identical for every compilation, like a real source position.
func (m *method) location() semantic.Location {
	return semantic.Location{
		Path:   strings.ReplaceAll(m.owner.spec.Name, ".", "/") + ".go",
		Line:   m.index + 1,
		Column: 1,
	}
}

func (m *method) Overridden() semantic.Method {
	if m.spec.Overrides == "" {
		return nil
	}
	if o, ok := m.c.lookupMethod(m.spec.Overrides); ok {
		return o
	}
	return nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
