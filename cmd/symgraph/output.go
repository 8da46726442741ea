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
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// CommandResult wraps structured command output with metadata.
type CommandResult struct {
	Command    string    `json:"command" yaml:"command"`
	Timestamp  time.Time `json:"timestamp" yaml:"timestamp"`
	DurationMs int64     `json:"duration_ms" yaml:"duration_ms"`
	Data       any       `json:"data" yaml:"data"`
}

func parseFormat(s string) (string, error) {
	switch s {
	case formatText, formatJSON, formatYAML:
		return s, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", s)
	}
}

// textRenderer is implemented by every command result.
type textRenderer interface {
	renderText(w io.Writer) error
}

// writeResult writes data in the requested format. Text output is the
// bare result; JSON and YAML are wrapped in a CommandResult.
func writeResult(w io.Writer, format, command string, started time.Time, data textRenderer) error {
	if format == formatText {
		return data.renderText(w)
	}

	result := CommandResult{
		Command:    command,
		Timestamp:  started.UTC(),
		DurationMs: time.Since(started).Milliseconds(),
		Data:       data,
	}
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return err
		}
		return enc.Close()
	default:
		_, err := parseFormat(format)
		return err
	}
}
