// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package worklist

import (
	"errors"
	"fmt"
)

// Sentinel errors for traversals.
var (
	// ErrTraversalLimitExceeded is returned when the live queue grows past
	// the configured ceiling.
	ErrTraversalLimitExceeded = errors.New("traversal limit exceeded")

	// ErrTraversalCancelled is returned when the context is done before the
	// traversal drains. The context error is wrapped alongside it.
	ErrTraversalCancelled = errors.New("traversal cancelled")

	// ErrNilKeyFunc is returned when Process is called without a key function.
	ErrNilKeyFunc = errors.New("key function must not be nil")

	// ErrNilExpandFunc is returned when Process is called without an expand function.
	ErrNilExpandFunc = errors.New("expand function must not be nil")
)

// LimitError carries the state of a traversal that crossed its ceiling.
//
// It matches ErrTraversalLimitExceeded with errors.Is.
type LimitError struct {
	// Name is the traversal name from WithName.
	Name string

	// Ceiling is the configured ceiling.
	Ceiling int

	// QueueLength is the live queue length that crossed the ceiling.
	QueueLength int

	// Processed is the number of items expanded before failing.
	Processed int
}

// Error implements the error interface.
func (e *LimitError) Error() string {
	name := e.Name
	if name == "" {
		name = "worklist"
	}
	return fmt.Sprintf("%s: %v: queue length %d exceeds ceiling %d after %d items",
		name, ErrTraversalLimitExceeded, e.QueueLength, e.Ceiling, e.Processed)
}

// Is reports whether target is ErrTraversalLimitExceeded.
func (e *LimitError) Is(target error) bool {
	return target == ErrTraversalLimitExceeded
}

func isLimit(err error) bool {
	return errors.Is(err, ErrTraversalLimitExceeded)
}

func isCancelled(err error) bool {
	return errors.Is(err, ErrTraversalCancelled)
}
