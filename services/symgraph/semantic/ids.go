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
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MethodID is the canonical, compilation-independent identifier of a method.
//
// Format: "<containing type>.<name>(<param>,<param>)" with a "`N" suffix
// when the method has N > 0 type parameters.
//
//	example.com/repo.Repo.Get(string)
//	example.com/util.Map([]T,func(T) U)`2
type MethodID string

// String returns the id as a string.
func (id MethodID) String() string {
	return string(id)
}

// MethodSignature holds the parts a MethodID is derived from.
type MethodSignature struct {
	// ContainingType is the qualified name of the declaring type.
	ContainingType string

	// Name is the method name.
	Name string

	// Params are the parameter types, in order, fully qualified.
	Params []string

	// Arity is the number of type parameters on the method itself.
	Arity int
}

// ID derives the canonical id.
func (s MethodSignature) ID() MethodID {
	var b strings.Builder
	b.Grow(len(s.ContainingType) + len(s.Name) + 16*len(s.Params))
	b.WriteString(s.ContainingType)
	b.WriteByte('.')
	b.WriteString(s.Name)
	b.WriteByte('(')
	b.WriteString(strings.Join(s.Params, ","))
	b.WriteByte(')')
	if s.Arity > 0 {
		b.WriteByte('`')
		b.WriteString(strconv.Itoa(s.Arity))
	}
	return MethodID(b.String())
}

// ParseMethodID splits an id back into its signature.
//
// Parameter types containing commas inside brackets, such as
// map[string]func(int, int), are kept together.
func ParseMethodID(id MethodID) (MethodSignature, error) {
	s := string(id)
	open := strings.IndexByte(s, '(')
	if open <= 0 {
		return MethodSignature{}, fmt.Errorf("parse method id %q: missing parameter list", s)
	}
	closeIdx := strings.LastIndexByte(s, ')')
	if closeIdx < open {
		return MethodSignature{}, fmt.Errorf("parse method id %q: unbalanced parameter list", s)
	}

	head := s[:open]
	dot := strings.LastIndexByte(head, '.')
	if dot <= 0 || dot == len(head)-1 {
		return MethodSignature{}, fmt.Errorf("parse method id %q: missing containing type", s)
	}

	sig := MethodSignature{
		ContainingType: head[:dot],
		Name:           head[dot+1:],
		Params:         splitParams(s[open+1 : closeIdx]),
	}

	if rest := s[closeIdx+1:]; rest != "" {
		if !strings.HasPrefix(rest, "`") {
			return MethodSignature{}, fmt.Errorf("parse method id %q: unexpected suffix %q", s, rest)
		}
		n, err := strconv.Atoi(rest[1:])
		if err != nil || n < 0 {
			return MethodSignature{}, fmt.Errorf("parse method id %q: bad arity %q", s, rest[1:])
		}
		sig.Arity = n
	}
	return sig, nil
}

func splitParams(s string) []string {
	if s == "" {
		return nil
	}
	var (
		params []string
		depth  int
		start  int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				params = append(params, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(params, strings.TrimSpace(s[start:]))
}

// SortIDs sorts ids in place and returns them.
func SortIDs(ids []MethodID) []MethodID {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
