// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/symgraph/services/symgraph/cache"
	"github.com/AleutianAI/symgraph/services/symgraph/config"
	"github.com/AleutianAI/symgraph/services/symgraph/semantic"
	st "github.com/AleutianAI/symgraph/services/symgraph/semantic/semantictest"
)

func fakeWorkspace() *st.Workspace {
	return st.NewWorkspace(
		st.ProjectSpec{
			Name: "repo",
			Types: []st.TypeSpec{
				st.Interface("repo.Repo", st.Abstract("Get")),
				st.Class("repo.RepoA", []string{"repo.Repo"}, st.Impl("Get")),
				st.Class("repo.RepoB", []string{"repo.Repo"}, st.Impl("Get")),
			},
		},
		st.ProjectSpec{
			Name: "svc",
			Deps: []string{"repo"},
			Types: []st.TypeSpec{
				st.Class("svc.Service", nil, st.Impl("Do").Calling("repo.Repo.Get")),
			},
		},
	)
}

type harness struct {
	stdout bytes.Buffer
	stderr bytes.Buffer
	cfg    config.Config
}

func run(t *testing.T, ws *st.Workspace, args ...string) (*harness, error) {
	t.Helper()
	h := &harness{}
	a := newApp(&h.stdout, &h.stderr)
	a.newProvider = func(cfg config.Config, _ *slog.Logger, _ *cache.Store) (workspace, error) {
		h.cfg = cfg
		return ws, nil
	}
	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return h, err
}

func TestIndexCommand(t *testing.T) {
	h, err := run(t, fakeWorkspace(), "index", "-o", "json")
	require.NoError(t, err)

	var out struct {
		Command string      `json:"command"`
		Data    indexReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &out))
	assert.Equal(t, "index", out.Command)
	assert.Equal(t, []string{"repo", "svc"}, out.Data.Projects)
	assert.Equal(t, 2, out.Data.Stats.Projects)
	assert.Empty(t, out.Data.Skipped)
}

func TestIndexCommand_SkippedText(t *testing.T) {
	ws := fakeWorkspace()
	ws.FailCompile("svc", errors.New("syntax error"))

	h, err := run(t, ws, "index")
	require.NoError(t, err)
	assert.Contains(t, h.stdout.String(), "(1 skipped)")
	assert.Contains(t, h.stdout.String(), "skipped svc:")
	assert.Contains(t, h.stderr.String(), `"msg":"project skipped"`, "logs are JSON when stderr is not a terminal")
}

func TestGraphCommand(t *testing.T) {
	for _, extra := range [][]string{nil, {"--no-index"}} {
		args := append([]string{"graph", "--type", "svc.Service", "-o", "json"}, extra...)
		h, err := run(t, fakeWorkspace(), args...)
		require.NoError(t, err, "args=%v", args)

		var out struct {
			Data struct {
				Roots []semantic.MethodID `json:"roots"`
				Nodes []graphNode         `json:"nodes"`
				Edges []map[string]any    `json:"edges"`
				Stats struct {
					Nodes int `json:"nodes"`
				} `json:"stats"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &out))
		assert.Equal(t, []semantic.MethodID{"svc.Service.Do()"}, out.Data.Roots)
		assert.Len(t, out.Data.Nodes, 4)
		assert.Equal(t, 4, out.Data.Stats.Nodes)
		assert.NotEmpty(t, out.Data.Edges)
	}
}

func TestGraphCommand_FanoutCap(t *testing.T) {
	h, err := run(t, fakeWorkspace(), "graph", "-t", "svc.Service", "--fanout-cap", "1")
	require.NoError(t, err)
	assert.Contains(t, h.stdout.String(), "repo.Repo.Get()  [fan-out capped]")
	assert.Contains(t, h.stdout.String(), "svc.Service: 2 methods")
}

func TestGraphCommand_RequiresType(t *testing.T) {
	_, err := run(t, fakeWorkspace(), "graph")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"type"`)
}

func TestGraphCommand_UnknownType(t *testing.T) {
	_, err := run(t, fakeWorkspace(), "graph", "--type", "svc.Missing")
	require.ErrorIs(t, err, semantic.ErrSymbolNotFound)
	assert.Equal(t, exitNotFound, exitCode(err))
}

func TestCallersCommand(t *testing.T) {
	h, err := run(t, fakeWorkspace(), "callers", "repo.Repo.Get()")
	require.NoError(t, err)
	assert.Equal(t, "svc.Service.Do()\n", h.stdout.String())
}

func TestCallersCommand_Root(t *testing.T) {
	h, err := run(t, fakeWorkspace(), "callers", "repo.Repo.Get()", "--root", "repo")
	require.NoError(t, err)
	assert.Empty(t, h.stdout.String(), "svc is outside the repo closure")
}

func TestImplsCommand_YAML(t *testing.T) {
	h, err := run(t, fakeWorkspace(), "impls", "repo.Repo.Get()", "--output", "yaml")
	require.NoError(t, err)

	var out struct {
		Command string           `yaml:"command"`
		Data    methodListReport `yaml:"data"`
	}
	require.NoError(t, yaml.Unmarshal(h.stdout.Bytes(), &out))
	assert.Equal(t, "impls", out.Command)
	assert.Equal(t, []semantic.MethodID{"repo.RepoA.Get()", "repo.RepoB.Get()"}, out.Data.Results)
}

func TestConfigFlagsOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "symgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("projects: [./a]\nlogging: {level: warn}\n"), 0o600))

	h, err := run(t, fakeWorkspace(), "index", "--config", path, "--root", "svc", "--log-level", "debug", "--project", "b")
	require.NoError(t, err)

	abs, _ := filepath.Abs("b")
	assert.Equal(t, []string{abs}, h.cfg.Projects)
	assert.Equal(t, "svc", h.cfg.RootProject)
	assert.Equal(t, "debug", h.cfg.Logging.Level)
	assert.Contains(t, h.stdout.String(), "projects:        2", "root svc keeps its dependency")
}

func TestSetupErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad output", []string{"index", "-o", "xml"}, "unknown output format"},
		{"bad log level", []string{"index", "--log-level", "loud"}, "Level"},
		{"missing config", []string{"index", "--config", "/nonexistent/symgraph.yaml"}, "no such file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, fakeWorkspace(), tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, exitError, exitCode(err))
		})
	}
}

func TestGoProvider_NoProjects(t *testing.T) {
	_, err := goProvider(config.Default(), slog.Default(), cache.NewStore())
	assert.ErrorIs(t, err, errNoProjects)
}

func TestMetricsEndpoint(t *testing.T) {
	h, err := run(t, fakeWorkspace(), "index", "--metrics-addr", "127.0.0.1:0")
	require.NoError(t, err)
	assert.True(t, strings.Contains(h.stderr.String(), "metrics endpoint listening"))
}
