// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package golang

import (
	"go/types"
	"sort"
	"sync"

	"github.com/AleutianAI/symgraph/services/symgraph/semantic"
)

// typeHandle is a named type, or with obj nil a package's function
// container.
type typeHandle struct {
	c     *compilation
	obj   *types.TypeName
	named *types.Named
	pkg   *types.Package
	kind  semantic.TypeKind

	methodsOnce sync.Once
	methods     []semantic.Method

	ifacesOnce sync.Once
	ifaces     []semantic.Type
}

var _ semantic.Type = (*typeHandle)(nil)

func (t *typeHandle) Name() string {
	if t.obj == nil {
		return t.pkg.Name()
	}
	return t.obj.Name()
}

func (t *typeHandle) QualifiedName() string {
	if t.obj == nil {
		return t.pkg.Path()
	}
	return t.pkg.Path() + "." + t.obj.Name()
}

func (t *typeHandle) Compilation() semantic.Compilation { return t.c }
func (t *typeHandle) Kind() semantic.TypeKind           { return t.kind }
func (t *typeHandle) BaseType() semantic.Type           { return nil }

// indexable reports whether the type takes part in the graph. Empty and
// generic interfaces are satisfied too broadly to be useful.
func (t *typeHandle) indexable() bool {
	if t.named == nil {
		return true
	}
	if t.kind != semantic.KindInterface {
		return true
	}
	iface := t.named.Underlying().(*types.Interface)
	return iface.NumMethods() > 0 && t.named.TypeParams().Len() == 0
}

// Methods returns declared methods sorted by name. For interfaces only the
// explicitly declared members are returned; embedded interfaces are
// reported by Interfaces.
func (t *typeHandle) Methods() []semantic.Method {
	t.methodsOnce.Do(func() {
		var fns []*types.Func
		switch {
		case t.obj == nil:
			scope := t.pkg.Scope()
			for _, name := range scope.Names() {
				if fn, ok := scope.Lookup(name).(*types.Func); ok {
					fns = append(fns, fn)
				}
			}
		case t.kind == semantic.KindInterface:
			iface := t.named.Underlying().(*types.Interface)
			for i := 0; i < iface.NumExplicitMethods(); i++ {
				fns = append(fns, iface.ExplicitMethod(i))
			}
		default:
			for i := 0; i < t.named.NumMethods(); i++ {
				fns = append(fns, t.named.Method(i))
			}
		}
		sort.Slice(fns, func(i, j int) bool { return fns[i].Name() < fns[j].Name() })

		for _, fn := range fns {
			if mh := t.c.method(fn); mh != nil {
				t.methods = append(t.methods, mh)
			}
		}
	})
	return t.methods
}

func (t *typeHandle) methodNamed(name string) (semantic.Method, bool) {
	for _, m := range t.Methods() {
		if m.Name() == name {
			return m, true
		}
	}
	return nil, false
}

// Interfaces returns the embedded interfaces of an interface, or the
// workspace interfaces satisfied by T or *T for a concrete type.
func (t *typeHandle) Interfaces() []semantic.Type {
	t.ifacesOnce.Do(func() {
		switch t.kind {
		case semantic.KindInterface:
			iface := t.named.Underlying().(*types.Interface)
			for i := 0; i < iface.NumEmbeddeds(); i++ {
				named, ok := types.Unalias(iface.EmbeddedType(i)).(*types.Named)
				if !ok {
					continue
				}
				if th := t.c.namedType(named.Obj()); th != nil && th.indexable() {
					t.ifaces = append(t.ifaces, th)
				}
			}
		case semantic.KindConcrete:
			for _, iface := range t.c.workspaceInterfaces() {
				if t.satisfies(iface) {
					t.ifaces = append(t.ifaces, iface)
				}
			}
		}
	})
	return t.ifaces
}

// satisfies reports whether T or *T implements iface.
func (t *typeHandle) satisfies(iface *typeHandle) bool {
	if t.named == nil || iface.named == nil || t.named.TypeParams().Len() > 0 {
		return false
	}
	it, ok := iface.named.Underlying().(*types.Interface)
	if !ok {
		return false
	}
	return types.Implements(t.named, it) || types.Implements(types.NewPointer(t.named), it)
}

// methodHandle is a method or package-level function.
type methodHandle struct {
	c     *compilation
	fn    *types.Func
	owner *typeHandle

	sigOnce sync.Once
	sig     semantic.MethodSignature
}

var _ semantic.Method = (*methodHandle)(nil)

func (m *methodHandle) Name() string                      { return m.fn.Name() }
func (m *methodHandle) QualifiedName() string             { return m.owner.QualifiedName() + "." + m.fn.Name() }
func (m *methodHandle) Compilation() semantic.Compilation { return m.c }
func (m *methodHandle) ContainingType() semantic.Type     { return m.owner }
func (m *methodHandle) IsAbstract() bool                  { return m.owner.kind == semantic.KindInterface }
func (m *methodHandle) Overridden() semantic.Method       { return nil }

// Signature renders parameter types with full package paths; a variadic
// final parameter is written as ...T.
func (m *methodHandle) Signature() semantic.MethodSignature {
	m.sigOnce.Do(func() {
		sig := m.fn.Type().(*types.Signature)
		params := sig.Params()
		out := make([]string, params.Len())
		for i := 0; i < params.Len(); i++ {
			pt := params.At(i).Type()
			if sig.Variadic() && i == params.Len()-1 {
				if s, ok := pt.(*types.Slice); ok {
					out[i] = "..." + types.TypeString(s.Elem(), qualifier)
					continue
				}
			}
			out[i] = types.TypeString(pt, qualifier)
		}
		m.sig = semantic.MethodSignature{
			ContainingType: m.owner.QualifiedName(),
			Name:           m.fn.Name(),
			Params:         out,
			Arity:          sig.TypeParams().Len(),
		}
	})
	return semantic.MethodSignature{
		ContainingType: m.sig.ContainingType,
		Name:           m.sig.Name,
		Params:         append([]string(nil), m.sig.Params...),
		Arity:          m.sig.Arity,
	}
}

// Locations returns the declaration position for workspace methods with a
// body, and nothing otherwise.
func (m *methodHandle) Locations() []semantic.Location {
	if m.IsAbstract() || m.fn.Pkg() == nil || !m.c.p.inWorkspace(m.fn.Pkg().Path()) {
		return nil
	}
	loc, ok := m.c.location(m.fn.Pos())
	if !ok {
		return nil
	}
	return []semantic.Location{loc}
}

func qualifier(p *types.Package) string {
	return p.Path()
}
