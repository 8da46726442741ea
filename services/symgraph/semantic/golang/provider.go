// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package golang implements semantic.Provider for Go modules.
//
// Each project is one module directory. Modules are type-checked with
// golang.org/x/tools/go/packages and mapped onto the semantic handle model:
//
//   - named types become concrete or interface types
//   - package-level functions hang off a synthetic type whose qualified
//     name is the package path
//   - interface satisfaction is structural, so a concrete type's
//     Interfaces() are the workspace interfaces that T or *T implements
//   - Go has no overriding; Method.Overridden and Type.BaseType return nil
//
// Only symbols declared in workspace modules are reported as call targets.
// Calls into the standard library and third-party modules are dropped.
package golang

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"

	"github.com/AleutianAI/symgraph/services/symgraph/cache"
	"github.com/AleutianAI/symgraph/services/symgraph/semantic"
)

// ErrDuplicateModule is returned by New when two directories declare the
// same module path.
var ErrDuplicateModule = errors.New("duplicate module path")

var compilationKind = cache.NewKind[*compilation]("golang.compilation")

// Option configures a Provider.
type Option func(*Provider)

// WithStore memoizes compilations in store. Default: a private store.
func WithStore(store *cache.Store) Option {
	return func(p *Provider) {
		p.store = store
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// WithBuildFlags passes flags such as -tags to the go command.
func WithBuildFlags(flags ...string) Option {
	return func(p *Provider) {
		p.buildFlags = append([]string(nil), flags...)
	}
}

// WithEnv appends environment entries for the go command.
func WithEnv(env ...string) Option {
	return func(p *Provider) {
		p.env = append(p.env, env...)
	}
}

// module is one workspace module.
type module struct {
	path     string
	dir      string
	requires []string
}

// Provider is a semantic.Provider over a fixed set of module directories.
//
// Thread Safety:
//
//	Safe for concurrent use. Concurrent Compile calls for one project
//	share a single load.
type Provider struct {
	modules map[string]*module
	order   []string

	store      *cache.Store
	logger     *slog.Logger
	buildFlags []string
	env        []string
}

var _ semantic.Provider = (*Provider)(nil)

// New creates a provider for the modules rooted at dirs. Each directory
// must contain a go.mod.
func New(dirs []string, opts ...Option) (*Provider, error) {
	p := &Provider{modules: make(map[string]*module, len(dirs))}
	for _, opt := range opts {
		opt(p)
	}
	if p.store == nil {
		p.store = cache.NewStore()
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}

	for _, dir := range dirs {
		m, err := readModule(dir)
		if err != nil {
			return nil, err
		}
		if prev, ok := p.modules[m.path]; ok {
			return nil, fmt.Errorf("%w: %s in %s and %s", ErrDuplicateModule, m.path, prev.dir, m.dir)
		}
		p.modules[m.path] = m
		p.order = append(p.order, m.path)
	}
	return p, nil
}

func readModule(dir string) (*module, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	gomod := filepath.Join(abs, "go.mod")
	data, err := os.ReadFile(gomod)
	if err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}
	f, err := modfile.ParseLax(gomod, data, nil)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", gomod, err)
	}
	if f.Module == nil || f.Module.Mod.Path == "" {
		return nil, fmt.Errorf("parse %s: missing module directive", gomod)
	}

	m := &module{path: f.Module.Mod.Path, dir: abs}
	for _, r := range f.Require {
		m.requires = append(m.requires, r.Mod.Path)
	}
	return m, nil
}

// Projects returns one project per module, in the order given to New.
func (p *Provider) Projects() []semantic.Project {
	out := make([]semantic.Project, len(p.order))
	for i, path := range p.order {
		out[i] = semantic.Project{Name: path, Dir: p.modules[path].dir}
	}
	return out
}

// Dependencies implements semantic.Provider. Only requirements that are
// themselves workspace modules are returned.
func (p *Provider) Dependencies(ctx context.Context, proj semantic.Project) ([]semantic.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, ok := p.modules[proj.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", semantic.ErrProjectNotFound, proj.Name)
	}
	var out []semantic.Project
	for _, r := range m.requires {
		if dep, ok := p.modules[r]; ok {
			out = append(out, semantic.Project{Name: dep.path, Dir: dep.dir})
		}
	}
	return out, nil
}

// Compile implements semantic.Provider. Compilations are memoized per
// module and build flags.
func (p *Provider) Compile(ctx context.Context, proj semantic.Project) (semantic.Compilation, error) {
	c, err := p.compile(ctx, proj.Name)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (p *Provider) compile(ctx context.Context, name string) (*compilation, error) {
	m, ok := p.modules[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", semantic.ErrProjectNotFound, name)
	}
	return cache.GetOrAddNested(ctx, p.store, compilationKind, m.path, strings.Join(p.buildFlags, " "),
		func(ctx context.Context) (*compilation, error) {
			return p.load(ctx, m)
		})
}

// moduleOf returns the workspace module containing pkgPath.
func (p *Provider) moduleOf(pkgPath string) (*module, bool) {
	var best *module
	for _, m := range p.modules {
		if pkgPath == m.path || strings.HasPrefix(pkgPath, m.path+"/") {
			if best == nil || len(m.path) > len(best.path) {
				best = m
			}
		}
	}
	return best, best != nil
}

func (p *Provider) inWorkspace(pkgPath string) bool {
	_, ok := p.moduleOf(pkgPath)
	return ok
}

// Invocations implements semantic.Provider.
//
// The body at loc is located in the compilation of the module that
// declares m, whichever compilation the handle came from, so results do
// not depend on how the handle was obtained.
func (p *Provider) Invocations(ctx context.Context, m semantic.Method, loc semantic.Location) ([]semantic.CallSite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mh, ok := m.(*methodHandle)
	if !ok {
		return nil, semantic.ErrForeignHandle
	}
	if mh.fn.Pkg() == nil {
		return nil, nil
	}
	mod, ok := p.moduleOf(mh.fn.Pkg().Path())
	if !ok {
		return nil, nil
	}

	c, err := p.compile(ctx, mod.path)
	if err != nil {
		return nil, err
	}
	return c.invocations(loc), nil
}

// FindImplementations implements semantic.Provider.
//
// For an interface member it returns the matching method of every concrete
// type in scope whose value or pointer type satisfies the interface.
// Concrete methods, and members of empty or generic interfaces, have no
// implementations, matching what the index records.
func (p *Provider) FindImplementations(ctx context.Context, m semantic.Method, scope []semantic.Project) ([]semantic.Method, error) {
	mh, ok := m.(*methodHandle)
	if !ok {
		return nil, semantic.ErrForeignHandle
	}
	if mh.owner.Kind() != semantic.KindInterface {
		return nil, nil
	}
	ifaceName := mh.owner.QualifiedName()

	seen := make(map[semantic.MethodID]struct{})
	var out []semantic.Method
	for _, proj := range scope {
		c, err := p.compile(ctx, proj.Name)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, semantic.ErrCompileFailed) {
				p.logger.Debug("implementation scope skipped",
					slog.String("project", proj.Name),
					slog.String("error", err.Error()))
				continue
			}
			return nil, err
		}

		it, ok := c.ResolveType(ifaceName)
		if !ok {
			continue
		}
		iface := it.(*typeHandle)
		if !iface.indexable() {
			return nil, nil
		}
		member, ok := iface.methodNamed(mh.Name())
		if !ok {
			continue
		}
		for _, t := range c.DeclaredTypes() {
			if t.Kind() != semantic.KindConcrete {
				continue
			}
			th := t.(*typeHandle)
			if !th.satisfies(iface) {
				continue
			}
			impl, ok := c.FindImplementationForInterfaceMember(th, member)
			if !ok {
				continue
			}
			id := semantic.IDOf(impl)
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, impl)
		}
	}

	sort.Slice(out, func(i, j int) bool { return semantic.IDOf(out[i]) < semantic.IDOf(out[j]) })
	return out, nil
}
