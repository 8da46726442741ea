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

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMethodSignature_ID(t *testing.T) {
	tests := []struct {
		name string
		sig  MethodSignature
		want MethodID
	}{
		{
			name: "no params",
			sig:  MethodSignature{ContainingType: "example.com/svc.Service", Name: "Do"},
			want: "example.com/svc.Service.Do()",
		},
		{
			name: "ordered params",
			sig: MethodSignature{
				ContainingType: "example.com/repo.Repo",
				Name:           "Put",
				Params:         []string{"string", "[]byte"},
			},
			want: "example.com/repo.Repo.Put(string,[]byte)",
		},
		{
			name: "generic arity",
			sig: MethodSignature{
				ContainingType: "example.com/util",
				Name:           "Map",
				Params:         []string{"[]T", "func(T) U"},
				Arity:          2,
			},
			want: "example.com/util.Map([]T,func(T) U)`2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sig.ID())
		})
	}
}

func TestMethodSignature_ParamOrderMatters(t *testing.T) {
	a := MethodSignature{ContainingType: "p.T", Name: "M", Params: []string{"int", "string"}}
	b := MethodSignature{ContainingType: "p.T", Name: "M", Params: []string{"string", "int"}}
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestParseMethodID_RoundTrip(t *testing.T) {
	sig := MethodSignature{
		ContainingType: "example.com/util",
		Name:           "Fold",
		Params:         []string{"map[string]func(int, int) bool", "...string"},
		Arity:          1,
	}

	got, err := ParseMethodID(sig.ID())
	require.NoError(t, err)
	assert.Equal(t, sig, got)
}

func TestParseMethodID_Generic(t *testing.T) {
	got, err := ParseMethodID("example.com/util.Map([]T,func(T) U)`2")
	require.NoError(t, err)
	assert.Equal(t, "example.com/util", got.ContainingType)
	assert.Equal(t, "Map", got.Name)
	assert.Equal(t, []string{"[]T", "func(T) U"}, got.Params)
	assert.Equal(t, 2, got.Arity)
}

func TestParseMethodID_Invalid(t *testing.T) {
	for _, id := range []MethodID{"", "NoParens", ".M()", "p.T.M()x", "p.T.M()`z", "p.Map`2"} {
		t.Run(string(id), func(t *testing.T) {
			_, err := ParseMethodID(id)
			assert.Error(t, err)
		})
	}
}

func TestCompileError_Is(t *testing.T) {
	cause := errors.New("exit status 1")
	err := fmt.Errorf("index: %w", &CompileError{
		Project:     "example.com/broken",
		Diagnostics: []string{"broken.go:3:1: undefined: x", "broken.go:4:1: undefined: y"},
		Err:         cause,
	})

	assert.ErrorIs(t, err, ErrCompileFailed)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "and 1 more")
}

func TestLocation_Before(t *testing.T) {
	a := Location{Path: "a.go", Line: 3, Column: 9}
	b := Location{Path: "a.go", Line: 4, Column: 1}
	c := Location{Path: "b.go", Line: 1, Column: 1}

	assert.True(t, a.Before(b))
	assert.True(t, b.Before(c))
	assert.False(t, c.Before(a))
	assert.False(t, a.Before(a))
	assert.True(t, Location{}.IsZero())
}

func TestSortIDs(t *testing.T) {
	ids := []MethodID{"b.T.M()", "a.T.M(int)", "a.T.M()"}
	got := SortIDs(ids)

	assert.Equal(t, []MethodID{"a.T.M()", "a.T.M(int)", "b.T.M()"}, got)
	assert.Equal(t, got, ids, "sorts in place")
}
