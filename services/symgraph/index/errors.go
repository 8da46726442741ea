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
	"errors"
	"fmt"
)

// Sentinel errors for index construction.
var (
	// ErrRootProjectNotFound is returned when the root filter names a
	// project outside the project set.
	ErrRootProjectNotFound = errors.New("root project not found")

	// ErrNilProvider is returned when Build is called without a provider.
	ErrNilProvider = errors.New("provider must not be nil")

	// ErrInvalidOption is returned for out-of-range build options.
	ErrInvalidOption = errors.New("invalid build option")

	// ErrBuildCancelled is returned when the context is done mid-build.
	// The context error is wrapped alongside it.
	ErrBuildCancelled = errors.New("index build cancelled")
)

// ConfigurationError reports a fatal problem with the build request.
type ConfigurationError struct {
	// Field is the offending option.
	Field string

	// Value is the offending value.
	Value string

	// Err is the sentinel describing the problem.
	Err error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("index configuration: %s %q: %v", e.Field, e.Value, e.Err)
}

// Unwrap returns the sentinel.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// SkippedProject records a project left out of the index.
type SkippedProject struct {
	// Project is the project name.
	Project string `json:"project"`

	// Err is why it was skipped.
	Err error `json:"-"`

	// Reason is Err rendered as text.
	Reason string `json:"reason"`
}
