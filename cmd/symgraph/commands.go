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
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	symgraph "github.com/AleutianAI/symgraph/services/symgraph"
	"github.com/AleutianAI/symgraph/services/symgraph/callgraph"
	"github.com/AleutianAI/symgraph/services/symgraph/index"
	"github.com/AleutianAI/symgraph/services/symgraph/semantic"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "symgraph",
		Short:         "Index Go modules and query their invocation graphs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardownOnError(a.setup(cmd.Context()))
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "YAML config file")
	flags.StringSliceVarP(&a.projects, "project", "p", nil, "Go module directory (repeatable; overrides config projects)")
	flags.StringVar(&a.rootProject, "root", "", "Restrict to this module's dependency closure")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&a.logDir, "log-dir", "", "Also write JSON logs to this directory")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flags.StringVarP(&a.output, "output", "o", formatText, "Output format: text, json, yaml")

	root.AddCommand(
		newIndexCmd(a),
		newGraphCmd(a),
		newCallersCmd(a),
		newImplsCmd(a),
	)
	return root
}

// teardownOnError releases resources when RunE fails, since cobra skips
// PersistentPostRunE in that case.
func (a *app) teardownOnError(err error) error {
	if err != nil {
		_ = a.teardown()
	}
	return err
}

// --- index ---

type indexReport struct {
	Projects    []string               `json:"projects" yaml:"projects"`
	RootProject string                 `json:"root_project,omitempty" yaml:"root_project,omitempty"`
	Stats       index.Stats            `json:"stats" yaml:"stats"`
	Skipped     []index.SkippedProject `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

func (r indexReport) renderText(w io.Writer) error {
	s := r.Stats
	fmt.Fprintf(w, "projects:        %d (%d skipped)\n", s.Projects, s.SkippedProjects)
	fmt.Fprintf(w, "types:           %d\n", s.Types)
	fmt.Fprintf(w, "methods:         %d (%d with bodies)\n", s.Methods, s.MethodsWithBodies)
	fmt.Fprintf(w, "call edges:      %d\n", s.CallEdges)
	fmt.Fprintf(w, "override edges:  %d\n", s.OverrideEdges)
	fmt.Fprintf(w, "build time:      %s\n", s.BuildDuration.Round(time.Millisecond))
	for _, sk := range r.Skipped {
		fmt.Fprintf(w, "skipped %s: %s\n", sk.Project, sk.Reason)
	}
	return nil
}

func newIndexCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Build the symbol index and print its statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			started := time.Now()
			idx, err := a.engine.BuildIndex(cmd.Context(), a.ws.Projects(), a.cfg.RootProject)
			if err != nil {
				return a.teardownOnError(err)
			}
			report := indexReport{
				Projects:    idx.Projects(),
				RootProject: idx.RootProject(),
				Stats:       idx.Stats(),
				Skipped:     idx.Skipped(),
			}
			return a.teardownOnError(writeResult(a.stdout, a.output, "index", started, report))
		},
	}
}

// --- graph ---

type graphNode struct {
	ID           semantic.MethodID `json:"id" yaml:"id"`
	FanoutCapped bool              `json:"fanout_capped,omitempty" yaml:"fanout_capped,omitempty"`
}

type graphReport struct {
	Type  string              `json:"type" yaml:"type"`
	Roots []semantic.MethodID `json:"roots" yaml:"roots"`
	Nodes []graphNode         `json:"nodes" yaml:"nodes"`
	Edges []callgraph.Edge    `json:"edges" yaml:"edges"`
	Stats callgraph.Stats     `json:"stats" yaml:"stats"`
}

func newGraphReport(typeName string, res *callgraph.Result) graphReport {
	r := graphReport{
		Type:  typeName,
		Roots: res.Graph.IDs(res.Roots),
		Edges: res.Graph.Edges(),
		Stats: res.Stats,
	}
	for _, id := range res.IDs() {
		ref, _ := res.Graph.Lookup(id)
		r.Nodes = append(r.Nodes, graphNode{ID: id, FanoutCapped: res.Graph.Node(ref).FanoutCapped})
	}
	return r
}

func (r graphReport) renderText(w io.Writer) error {
	fmt.Fprintf(w, "%s: %d methods, %d edges\n", r.Type, r.Stats.Nodes, len(r.Edges))
	for _, n := range r.Nodes {
		if n.FanoutCapped {
			fmt.Fprintf(w, "  %s  [fan-out capped]\n", n.ID)
			continue
		}
		fmt.Fprintf(w, "  %s\n", n.ID)
	}
	for _, e := range r.Edges {
		if e.Kind == callgraph.EdgeInvocation {
			fmt.Fprintf(w, "  %s -> %s (%s)\n", e.From, e.To, e.Site)
			continue
		}
		if e.Kind == callgraph.EdgeImplementation {
			fmt.Fprintf(w, "  %s => %s\n", e.From, e.To)
		}
	}
	return nil
}

func newGraphCmd(a *app) *cobra.Command {
	var (
		typeName string
		req      symgraph.GraphRequest
		noIndex  bool
	)
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Build the invocation graph reachable from a type's methods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			started := time.Now()
			req.Projects = a.ws.Projects()
			req.RootProject = a.cfg.RootProject
			req.UseIndex = !noIndex

			res, err := a.engine.BuildInvocationGraph(cmd.Context(), typeName, req)
			if err != nil {
				return a.teardownOnError(err)
			}
			return a.teardownOnError(writeResult(a.stdout, a.output, "graph", started, newGraphReport(typeName, res)))
		},
	}
	cmd.Flags().StringVarP(&typeName, "type", "t", "", "Qualified start type, e.g. example.com/svc.Service")
	cmd.Flags().StringVarP(&req.MethodFilter, "method", "m", "", "Seed only methods with this name")
	cmd.Flags().IntVar(&req.FanoutCap, "fanout-cap", 0, "Implementation fan-out cap (0 uses config, negative disables)")
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "Query the provider live instead of the symbol index")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

// --- callers / impls ---

type methodListReport struct {
	Method  semantic.MethodID   `json:"method" yaml:"method"`
	Results []semantic.MethodID `json:"results" yaml:"results"`
}

func (r methodListReport) renderText(w io.Writer) error {
	for _, id := range r.Results {
		if _, err := fmt.Fprintln(w, id); err != nil {
			return err
		}
	}
	return nil
}

func newCallersCmd(a *app) *cobra.Command {
	var ceiling int
	cmd := &cobra.Command{
		Use:   "callers METHOD_ID",
		Short: "List every method that transitively calls METHOD_ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			started := time.Now()
			id := semantic.MethodID(args[0])
			callers, err := a.engine.FindCallers(cmd.Context(), id, a.ws.Projects(), a.cfg.RootProject, ceiling)
			if err != nil {
				return a.teardownOnError(err)
			}
			report := methodListReport{Method: id, Results: callers}
			return a.teardownOnError(writeResult(a.stdout, a.output, "callers", started, report))
		},
	}
	cmd.Flags().IntVar(&ceiling, "ceiling", 0, "Worklist ceiling (0 uses config)")
	return cmd
}

func newImplsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "impls METHOD_ID",
		Short: "List the direct implementations of an interface method",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			started := time.Now()
			id := semantic.MethodID(args[0])
			impls, err := a.engine.FindImplementations(cmd.Context(), id, a.ws.Projects(), a.cfg.RootProject)
			if err != nil {
				return a.teardownOnError(err)
			}
			report := methodListReport{Method: id, Results: impls}
			return a.teardownOnError(writeResult(a.stdout, a.output, "impls", started, report))
		},
	}
}
