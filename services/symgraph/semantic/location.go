// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package semantic

import "fmt"

// Location is a source position. Comparable; usable as a map key.
type Location struct {
	// Path is the file path.
	Path string `json:"path" yaml:"path"`

	// Line is 1-based.
	Line int `json:"line" yaml:"line"`

	// Column is 1-based, in bytes.
	Column int `json:"column" yaml:"column"`
}

// String renders the location as path:line:column.
func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.Path, l.Line, l.Column)
}

// IsZero reports whether l is the zero location.
func (l Location) IsZero() bool {
	return l == Location{}
}

// Before orders locations by path, then line, then column.
func (l Location) Before(o Location) bool {
	if l.Path != o.Path {
		return l.Path < o.Path
	}
	if l.Line != o.Line {
		return l.Line < o.Line
	}
	return l.Column < o.Column
}
