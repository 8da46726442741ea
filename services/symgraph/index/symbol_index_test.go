// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/symgraph/services/symgraph/cache"
	"github.com/AleutianAI/symgraph/services/symgraph/semantic"
	st "github.com/AleutianAI/symgraph/services/symgraph/semantic/semantictest"
)

const (
	repoGet    = semantic.MethodID("repo.Repo.Get(string)")
	repoAGet   = semantic.MethodID("repo.RepoA.Get(string)")
	repoBGet   = semantic.MethodID("repo.RepoB.Get(string)")
	serviceDo  = semantic.MethodID("svc.Service.Do()")
	serviceLog = semantic.MethodID("svc.Service.log()")
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func workspace() *st.Workspace {
	return st.NewWorkspace(
		st.ProjectSpec{
			Name: "repo",
			Types: []st.TypeSpec{
				st.Interface("repo.Repo", st.Abstract("Get", "string")),
				st.Class("repo.RepoA", []string{"repo.Repo"}, st.Impl("Get", "string")),
				st.Class("repo.RepoB", []string{"repo.Repo"}, st.Impl("Get", "string")),
			},
		},
		st.ProjectSpec{
			Name: "svc",
			Deps: []string{"repo"},
			Types: []st.TypeSpec{
				st.Class("svc.Service", nil,
					st.Impl("Do").Calling("repo.Repo.Get", "svc.Service.log", "repo.Repo.Get"),
					st.Impl("log"),
				),
			},
		},
		st.ProjectSpec{
			Name: "tools",
			Types: []st.TypeSpec{
				st.Class("tools.Gen", nil, st.MethodSpec{Name: "Run", NoSource: true}),
			},
		},
	)
}

func TestBuild_Tables(t *testing.T) {
	ws := workspace()
	idx, err := Build(context.Background(), ws, ws.Projects(), WithLogger(quietLogger()))
	require.NoError(t, err)

	assert.Equal(t, []semantic.MethodID{repoAGet, repoBGet}, idx.Overrides(repoGet))
	assert.Equal(t, []string{"repo.RepoA", "repo.RepoB"}, idx.Implementers("repo.Repo"))
	assert.Equal(t, []semantic.MethodID{serviceDo}, idx.Callers(repoGet), "duplicate calls collapse to one caller edge")
	assert.Equal(t, []semantic.MethodID{serviceDo}, idx.Callers(serviceLog))

	body, ok := idx.Body(serviceDo)
	require.True(t, ok)
	require.Len(t, body.Calls, 3)
	assert.Equal(t, repoGet, body.Calls[0].Target)
	assert.Equal(t, serviceLog, body.Calls[1].Target)

	_, ok = idx.Body(repoGet)
	assert.False(t, ok, "abstract methods have no body")

	typ, ok := idx.TypeByName("svc.Service")
	require.True(t, ok)
	assert.Equal(t, "Service", typ.Name())

	m, ok := idx.Method(repoAGet)
	require.True(t, ok)
	assert.Equal(t, "repo", m.Compilation().Project().Name, "declared handle wins over call-target handle")

	stats := idx.Stats()
	assert.Equal(t, 3, stats.Projects)
	assert.Equal(t, 0, stats.SkippedProjects)
	assert.Equal(t, 6, stats.Methods)
	assert.Equal(t, 4, stats.MethodsWithBodies)
}

func TestBuild_MethodWithoutSourceIsRegisteredNotAnalyzed(t *testing.T) {
	ws := st.NewWorkspace(st.ProjectSpec{
		Name: "tools",
		Types: []st.TypeSpec{
			st.Class("tools.Gen", nil, st.MethodSpec{Name: "Run", NoSource: true, Calls: []string{"tools.Gen.Run"}}),
		},
	})

	idx, err := Build(context.Background(), ws, ws.Projects(), WithLogger(quietLogger()))
	require.NoError(t, err)

	_, ok := idx.Method("tools.Gen.Run()")
	assert.True(t, ok)
	_, ok = idx.Body("tools.Gen.Run()")
	assert.False(t, ok)
	assert.Empty(t, idx.Callers("tools.Gen.Run()"))
	assert.Equal(t, 0, ws.InvocationQueries())
}

func TestBuild_Idempotent(t *testing.T) {
	ws := workspace()
	ctx := context.Background()

	first, err := Build(ctx, ws, ws.Projects(), WithLogger(quietLogger()))
	require.NoError(t, err)
	second, err := Build(ctx, ws, ws.Projects(), WithLogger(quietLogger()))
	require.NoError(t, err)

	assert.Equal(t, first.Snapshot(), second.Snapshot())

	a, _ := first.Method(repoAGet)
	b, _ := second.Method(repoAGet)
	assert.False(t, a == b, "the two builds must hold handles from different compilations")
}

func TestBuild_OverridesAndBaseTypes(t *testing.T) {
	ws := st.NewWorkspace(st.ProjectSpec{
		Name: "shapes",
		Types: []st.TypeSpec{
			st.Class("shapes.Shape", nil, st.Impl("Area")),
			{
				Name:    "shapes.Square",
				Kind:    semantic.KindConcrete,
				Base:    "shapes.Shape",
				Methods: []st.MethodSpec{st.Impl("Area").Overriding("shapes.Shape.Area")},
			},
			{
				Name:       "shapes.Solid",
				Kind:       semantic.KindInterface,
				Interfaces: []string{"shapes.Sized"},
			},
			st.Interface("shapes.Sized", st.Abstract("Size")),
		},
	})

	idx, err := Build(context.Background(), ws, ws.Projects(), WithLogger(quietLogger()))
	require.NoError(t, err)

	assert.Equal(t, []semantic.MethodID{"shapes.Square.Area()"}, idx.Overrides("shapes.Shape.Area()"))
	assert.Equal(t, []string{"shapes.Square"}, idx.Implementers("shapes.Shape"))
	assert.Equal(t, []string{"shapes.Solid"}, idx.Implementers("shapes.Sized"), "interface extension is an implementer edge")
	assert.Empty(t, idx.Overrides("shapes.Sized.Size()"), "extending interfaces do not implement members")
}

func TestBuild_RootProjectFilter(t *testing.T) {
	ws := workspace()
	idx, err := Build(context.Background(), ws, ws.Projects(),
		WithRootProject("svc"), WithLogger(quietLogger()))
	require.NoError(t, err)

	assert.Equal(t, []string{"repo", "svc"}, idx.Projects())
	assert.Equal(t, "svc", idx.RootProject())
	_, ok := idx.TypeByName("tools.Gen")
	assert.False(t, ok)
	_, ok = idx.TypeByName("repo.RepoA")
	assert.True(t, ok)
	assert.Equal(t, 0, ws.CompileCount("tools"))
}

func TestBuild_UnknownRootProject(t *testing.T) {
	ws := workspace()
	_, err := Build(context.Background(), ws, ws.Projects(), WithRootProject("missing"))
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrRootProjectNotFound)
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "root_project", cfgErr.Field)
	assert.Equal(t, "missing", cfgErr.Value)
}

func TestBuild_SkipsProjectsThatFailToCompile(t *testing.T) {
	ws := workspace()
	ws.FailCompile("repo", errors.New("syntax error"))

	idx, err := Build(context.Background(), ws, ws.Projects(), WithLogger(quietLogger()))
	require.NoError(t, err)

	skipped := idx.Skipped()
	require.Len(t, skipped, 1)
	assert.Equal(t, "repo", skipped[0].Project)
	assert.ErrorIs(t, skipped[0].Err, semantic.ErrCompileFailed)
	assert.Equal(t, 1, idx.Stats().SkippedProjects)

	// svc still compiles and still sees the repo interface through its deps.
	_, ok := idx.Body(serviceDo)
	assert.True(t, ok)
	assert.Empty(t, idx.Overrides(repoGet))
}

func TestBuild_Cancelled(t *testing.T) {
	ws := workspace()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Build(ctx, ws, ws.Projects(), WithLogger(quietLogger()))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBuildCancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuild_InvalidOptions(t *testing.T) {
	ws := workspace()
	_, err := Build(context.Background(), ws, ws.Projects(), WithCompileConcurrency(-1))
	assert.ErrorIs(t, err, ErrInvalidOption)

	_, err = Build(context.Background(), nil, ws.Projects())
	assert.ErrorIs(t, err, ErrNilProvider)
}

func TestProjectSetKey(t *testing.T) {
	a := semantic.Project{Name: "a", Dir: "/src/a"}
	b := semantic.Project{Name: "b", Dir: "/src/b"}

	assert.Equal(t, ProjectSetKey([]semantic.Project{a, b}, ""), ProjectSetKey([]semantic.Project{b, a}, ""))
	assert.NotEqual(t, ProjectSetKey([]semantic.Project{a, b}, ""), ProjectSetKey([]semantic.Project{a, b}, "a"))
	assert.NotEqual(t, ProjectSetKey([]semantic.Project{a}, ""), ProjectSetKey([]semantic.Project{a, b}, ""))
	assert.Len(t, ProjectSetKey(nil, ""), 64)
}

func TestCached_BuildsOncePerProjectSet(t *testing.T) {
	ws := workspace()
	store := cache.NewStore()
	ctx := context.Background()
	projects := ws.Projects()

	first, err := Cached(ctx, store, ws, projects, WithLogger(quietLogger()))
	require.NoError(t, err)

	reversed := []semantic.Project{projects[2], projects[1], projects[0]}
	second, err := Cached(ctx, store, ws, reversed, WithLogger(quietLogger()))
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, ws.CompileCount("repo"))

	filtered, err := Cached(ctx, store, ws, projects, WithRootProject("svc"), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.NotSame(t, first, filtered)
}

func TestClosure(t *testing.T) {
	ws := workspace()
	ctx := context.Background()

	scope, err := Closure(ctx, ws, ws.Projects(), "svc", quietLogger())
	require.NoError(t, err)
	assert.Equal(t, []semantic.Project{ws.Project("repo"), ws.Project("svc")}, scope)

	all, err := Closure(ctx, ws, ws.Projects(), "", quietLogger())
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = Closure(ctx, ws, ws.Projects(), "missing", quietLogger())
	assert.ErrorIs(t, err, ErrRootProjectNotFound)
}
