// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package semantic defines the contracts symgraph consumes from a semantic
// analysis provider, along with the compilation-independent identifiers used
// to reconcile symbol handles across compilations.
//
// Handles returned by a Provider (Type, Method) are only comparable inside
// the Compilation that produced them. Anything that needs identity across
// compilations must go through MethodID or a type's qualified name.
package semantic

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for provider operations.
var (
	// ErrCompileFailed indicates a project did not produce a usable compilation.
	ErrCompileFailed = errors.New("project failed to compile")

	// ErrSymbolNotFound indicates a qualified name did not resolve.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrProjectNotFound indicates a project is not part of the provider's workspace.
	ErrProjectNotFound = errors.New("project not found")

	// ErrForeignHandle indicates a handle from a different provider was passed in.
	ErrForeignHandle = errors.New("handle does not belong to this provider")
)

// CompileError describes a failed compilation.
//
// It matches ErrCompileFailed with errors.Is.
type CompileError struct {
	// Project is the name of the project that failed.
	Project string

	// Diagnostics holds the compiler messages, if any.
	Diagnostics []string

	// Err is the underlying load failure, if any.
	Err error
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "compile %s", e.Project)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if n := len(e.Diagnostics); n > 0 {
		fmt.Fprintf(&b, ": %s", e.Diagnostics[0])
		if n > 1 {
			fmt.Fprintf(&b, " (and %d more)", n-1)
		}
	}
	return b.String()
}

// Is reports whether target is ErrCompileFailed.
func (e *CompileError) Is(target error) bool {
	return target == ErrCompileFailed
}

// Unwrap returns the underlying load failure.
func (e *CompileError) Unwrap() error {
	return e.Err
}
