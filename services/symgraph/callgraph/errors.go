// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package callgraph builds call and implementation graphs from a starting
// type, driving a breadth-first worklist over canonical method ids.
//
// Expansion is served either live from the semantic provider or from a
// prebuilt symbol index. Both paths produce identical edge sets.
package callgraph

import "errors"

// Sentinel errors for graph building.
var (
	// ErrNilProvider is returned by NewBuilder without a provider.
	ErrNilProvider = errors.New("provider must not be nil")

	// ErrNilStartType is returned when Build is called without a type.
	ErrNilStartType = errors.New("start type must not be nil")

	// ErrNoSeedMethods is returned when the start type has no method
	// matching the filter.
	ErrNoSeedMethods = errors.New("no methods match the filter")

	// ErrInvalidFanoutCap is returned for a negative fan-out cap.
	ErrInvalidFanoutCap = errors.New("fan-out cap must not be negative")
)
