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
	"context"
	"go/ast"
	"go/token"
	"go/types"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/types/typeutil"

	"github.com/AleutianAI/symgraph/services/symgraph/semantic"
)

const loadMode = packages.NeedName |
	packages.NeedFiles |
	packages.NeedImports |
	packages.NeedTypes |
	packages.NeedSyntax |
	packages.NeedTypesInfo |
	packages.NeedModule

// sourceFile is a parsed file of one of the module's own packages.
type sourceFile struct {
	pkg  *packages.Package
	file *ast.File
}

// compilation is one type-checked module.
type compilation struct {
	p       *Provider
	project semantic.Project
	fset    *token.FileSet

	// pkgs are the module's own packages, sorted by path.
	pkgs []*packages.Package

	// visible holds every package reachable from the module by path.
	visible map[string]*types.Package

	files map[string]sourceFile

	mu       sync.Mutex
	named    map[*types.TypeName]*typeHandle
	pkgTypes map[string]*typeHandle
	methods  map[*types.Func]*methodHandle

	declaredOnce sync.Once
	declared     []semantic.Type

	ifaceOnce sync.Once
	ifaces    []*typeHandle
}

var _ semantic.Compilation = (*compilation)(nil)

// load type-checks every package of m.
func (p *Provider) load(ctx context.Context, m *module) (*compilation, error) {
	start := time.Now()
	fset := token.NewFileSet()
	cfg := &packages.Config{
		Mode:       loadMode,
		Context:    ctx,
		Dir:        m.dir,
		Fset:       fset,
		BuildFlags: p.buildFlags,
		Env:        append(append(os.Environ(), "GOWORK=off"), p.env...),
	}

	pkgs, err := packages.Load(cfg, "./...")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &semantic.CompileError{Project: m.path, Err: err}
	}

	c := &compilation{
		p:        p,
		project:  semantic.Project{Name: m.path, Dir: m.dir},
		fset:     fset,
		visible:  make(map[string]*types.Package),
		files:    make(map[string]sourceFile),
		named:    make(map[*types.TypeName]*typeHandle),
		pkgTypes: make(map[string]*typeHandle),
		methods:  make(map[*types.Func]*methodHandle),
	}

	var diags []string
	for _, pkg := range pkgs {
		if !p.ownedBy(pkg, m) {
			continue
		}
		for _, e := range pkg.Errors {
			diags = append(diags, e.Error())
		}
		c.pkgs = append(c.pkgs, pkg)
	}
	if len(diags) > 0 {
		return nil, &semantic.CompileError{Project: m.path, Diagnostics: diags}
	}
	sort.Slice(c.pkgs, func(i, j int) bool { return c.pkgs[i].PkgPath < c.pkgs[j].PkgPath })

	for _, pkg := range c.pkgs {
		c.addVisible(pkg.Types)
		for _, f := range pkg.Syntax {
			name := filepath.Clean(fset.File(f.Pos()).Name())
			c.files[name] = sourceFile{pkg: pkg, file: f}
		}
	}

	p.logger.Debug("module loaded",
		slog.String("module", m.path),
		slog.Int("packages", len(c.pkgs)),
		slog.Int("visible_packages", len(c.visible)),
		slog.Duration("duration", time.Since(start)),
	)
	return c, nil
}

func (p *Provider) ownedBy(pkg *packages.Package, m *module) bool {
	if pkg.Module != nil {
		return pkg.Module.Path == m.path
	}
	owner, ok := p.moduleOf(pkg.PkgPath)
	return ok && owner == m
}

func (c *compilation) addVisible(pkg *types.Package) {
	if pkg == nil {
		return
	}
	if _, ok := c.visible[pkg.Path()]; ok {
		return
	}
	c.visible[pkg.Path()] = pkg
	for _, imp := range pkg.Imports() {
		c.addVisible(imp)
	}
}

func (c *compilation) Project() semantic.Project { return c.project }

// DeclaredTypes returns, per own package in path order, the package's
// function container followed by its named types in name order. Empty and
// generic interfaces are left out.
func (c *compilation) DeclaredTypes() []semantic.Type {
	c.declaredOnce.Do(func() {
		for _, pkg := range c.pkgs {
			if pkg.Types == nil {
				continue
			}
			if pt := c.packageType(pkg.Types); len(pt.Methods()) > 0 {
				c.declared = append(c.declared, pt)
			}
			scope := pkg.Types.Scope()
			for _, name := range scope.Names() {
				tn, ok := scope.Lookup(name).(*types.TypeName)
				if !ok || tn.IsAlias() {
					continue
				}
				if th := c.namedType(tn); th != nil && th.indexable() {
					c.declared = append(c.declared, th)
				}
			}
		}
	})
	return c.declared
}

// ResolveType resolves "pkgpath.Name", or a bare package path for the
// package's function container.
func (c *compilation) ResolveType(qualifiedName string) (semantic.Type, bool) {
	if pkg, ok := c.visible[qualifiedName]; ok {
		return c.packageType(pkg), true
	}
	i := strings.LastIndexByte(qualifiedName, '.')
	if i <= 0 {
		return nil, false
	}
	pkg, ok := c.visible[qualifiedName[:i]]
	if !ok {
		return nil, false
	}
	tn, ok := pkg.Scope().Lookup(qualifiedName[i+1:]).(*types.TypeName)
	if !ok || tn.IsAlias() {
		return nil, false
	}
	th := c.namedType(tn)
	if th == nil {
		return nil, false
	}
	return th, true
}

// FindImplementationForInterfaceMember returns the method in the method
// set of *t named like member. A method promoted from an embedded interface
// is not an implementation.
func (c *compilation) FindImplementationForInterfaceMember(t semantic.Type, member semantic.Method) (semantic.Method, bool) {
	th, ok := t.(*typeHandle)
	if !ok || th.named == nil {
		return nil, false
	}
	mh, ok := member.(*methodHandle)
	if !ok {
		return nil, false
	}
	obj, _, _ := types.LookupFieldOrMethod(types.NewPointer(th.named), false, mh.fn.Pkg(), mh.fn.Name())
	fn, ok := obj.(*types.Func)
	if !ok {
		return nil, false
	}
	if recv := fn.Type().(*types.Signature).Recv(); recv != nil && types.IsInterface(recv.Type()) {
		return nil, false
	}
	impl := c.method(fn)
	if impl == nil {
		return nil, false
	}
	return impl, true
}

// workspaceInterfaces returns the non-empty, non-generic interfaces
// declared in workspace packages visible to this compilation.
func (c *compilation) workspaceInterfaces() []*typeHandle {
	c.ifaceOnce.Do(func() {
		paths := make([]string, 0, len(c.visible))
		for path := range c.visible {
			if c.p.inWorkspace(path) {
				paths = append(paths, path)
			}
		}
		sort.Strings(paths)

		for _, path := range paths {
			scope := c.visible[path].Scope()
			for _, name := range scope.Names() {
				tn, ok := scope.Lookup(name).(*types.TypeName)
				if !ok || tn.IsAlias() {
					continue
				}
				if th := c.namedType(tn); th != nil && th.kind == semantic.KindInterface && th.indexable() {
					c.ifaces = append(c.ifaces, th)
				}
			}
		}
	})
	return c.ifaces
}

// namedType returns the handle for a named type, or nil for type names
// that are not *types.Named.
func (c *compilation) namedType(tn *types.TypeName) *typeHandle {
	named, ok := tn.Type().(*types.Named)
	if !ok {
		return nil
	}
	named = named.Origin()
	tn = named.Obj()

	c.mu.Lock()
	defer c.mu.Unlock()
	if th, ok := c.named[tn]; ok {
		return th
	}
	kind := semantic.KindConcrete
	if types.IsInterface(named) {
		kind = semantic.KindInterface
	}
	th := &typeHandle{c: c, obj: tn, named: named, pkg: tn.Pkg(), kind: kind}
	c.named[tn] = th
	return th
}

func (c *compilation) packageType(pkg *types.Package) *typeHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if th, ok := c.pkgTypes[pkg.Path()]; ok {
		return th
	}
	th := &typeHandle{c: c, pkg: pkg, kind: semantic.KindPackage}
	c.pkgTypes[pkg.Path()] = th
	return th
}

// method returns the handle for fn, or nil when fn's receiver is not a
// named type.
func (c *compilation) method(fn *types.Func) *methodHandle {
	fn = fn.Origin()
	c.mu.Lock()
	mh, ok := c.methods[fn]
	c.mu.Unlock()
	if ok {
		return mh
	}

	var owner *typeHandle
	sig := fn.Type().(*types.Signature)
	if recv := sig.Recv(); recv != nil {
		named := receiverNamed(recv.Type())
		if named == nil {
			return nil
		}
		owner = c.namedType(named.Obj())
	} else {
		if fn.Pkg() == nil {
			return nil
		}
		owner = c.packageType(fn.Pkg())
	}
	if owner == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if mh, ok := c.methods[fn]; ok {
		return mh
	}
	mh = &methodHandle{c: c, fn: fn, owner: owner}
	c.methods[fn] = mh
	return mh
}

func receiverNamed(t types.Type) *types.Named {
	t = types.Unalias(t)
	if ptr, ok := t.(*types.Pointer); ok {
		t = types.Unalias(ptr.Elem())
	}
	named, ok := t.(*types.Named)
	if !ok {
		return nil
	}
	return named.Origin()
}

func (c *compilation) location(pos token.Pos) (semantic.Location, bool) {
	position := c.fset.Position(pos)
	if !position.IsValid() || position.Filename == "" {
		return semantic.Location{}, false
	}
	return semantic.Location{
		Path:   filepath.Clean(position.Filename),
		Line:   position.Line,
		Column: position.Column,
	}, true
}

// fileAt finds the own source file at path, falling back to a unique
// base-name match for positions recorded with a different directory.
func (c *compilation) fileAt(path string) (sourceFile, bool) {
	if f, ok := c.files[filepath.Clean(path)]; ok {
		return f, true
	}
	var (
		found sourceFile
		n     int
	)
	base := filepath.Base(path)
	for name, f := range c.files {
		if filepath.Base(name) == base {
			found = f
			n++
		}
	}
	return found, n == 1
}

// invocations returns the calls in the function declared at loc, in
// source order. Calls to symbols outside the workspace are dropped; calls
// through function values are kept with a nil target.
func (c *compilation) invocations(loc semantic.Location) []semantic.CallSite {
	src, ok := c.fileAt(loc.Path)
	if !ok {
		return nil
	}

	var decl *ast.FuncDecl
	for _, d := range src.file.Decls {
		fd, ok := d.(*ast.FuncDecl)
		if !ok || fd.Body == nil {
			continue
		}
		if c.fset.Position(fd.Name.Pos()).Line == loc.Line {
			decl = fd
			break
		}
	}
	if decl == nil {
		return nil
	}

	info := src.pkg.TypesInfo
	var sites []semantic.CallSite
	ast.Inspect(decl.Body, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		site, ok := c.location(call.Lparen)
		if !ok {
			return true
		}

		switch callee := typeutil.Callee(info, call).(type) {
		case *types.Func:
			if callee.Pkg() == nil || !c.p.inWorkspace(callee.Pkg().Path()) {
				return true
			}
			if target := c.method(callee); target != nil {
				sites = append(sites, semantic.CallSite{Location: site, Target: target})
			}
		case *types.Var:
			sites = append(sites, semantic.CallSite{Location: site})
		case nil:
			if tv, ok := info.Types[call.Fun]; ok && tv.IsType() {
				return true
			}
			sites = append(sites, semantic.CallSite{Location: site})
		}
		return true
	})
	return sites
}
