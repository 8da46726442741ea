// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command symgraph indexes Go modules and answers invocation-graph queries.
//
// Usage:
//
//	symgraph index   --project ./svc --project ./repo
//	symgraph graph   --project ./svc --type example.com/svc.Service --method Lookup
//	symgraph callers --config symgraph.yaml 'example.com/repo.Repo.Get(string)'
//	symgraph impls   --config symgraph.yaml 'example.com/repo.Repo.Get(string)'
//
// Logs go to stderr, as JSON when stderr is not a terminal. Results go to
// stdout as text, JSON or YAML (--output).
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/symgraph/services/symgraph/semantic"
)

// Exit codes.
const (
	exitSuccess  = 0
	exitNotFound = 1 // Symbol or project did not resolve
	exitError    = 2 // Anything else
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(newApp(os.Stdout, os.Stderr))
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitSuccess
	case errors.Is(err, semantic.ErrSymbolNotFound), errors.Is(err, semantic.ErrProjectNotFound):
		return exitNotFound
	default:
		return exitError
	}
}
