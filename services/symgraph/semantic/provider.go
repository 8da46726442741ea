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

import "context"

// Project identifies one compilable unit in a workspace.
type Project struct {
	// Name is the unique project name (for Go, the module path).
	Name string `json:"name" yaml:"name"`

	// Dir is the project directory. Empty for in-memory providers.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// TypeKind classifies a Type.
type TypeKind int

const (
	// KindConcrete is a type that can carry method bodies.
	KindConcrete TypeKind = iota

	// KindInterface is an interface type; its methods are abstract.
	KindInterface

	// KindPackage is a synthetic container for package-level functions.
	KindPackage
)

// String returns the kind name.
func (k TypeKind) String() string {
	switch k {
	case KindConcrete:
		return "concrete"
	case KindInterface:
		return "interface"
	case KindPackage:
		return "package"
	default:
		return "unknown"
	}
}

// Symbol is the common part of every handle.
type Symbol interface {
	// Name is the simple name.
	Name() string

	// QualifiedName is the fully qualified name, stable across compilations.
	QualifiedName() string

	// Compilation is the compilation this handle belongs to.
	Compilation() Compilation
}

// Type is a handle to a declared type.
type Type interface {
	Symbol

	// Kind classifies the type.
	Kind() TypeKind

	// Methods returns the methods declared on this type.
	Methods() []Method

	// Interfaces returns the interfaces this type implements, or for an
	// interface the interfaces it extends.
	Interfaces() []Type

	// BaseType returns the base type, or nil.
	BaseType() Type
}

// Method is a handle to a declared method.
type Method interface {
	Symbol

	// ContainingType returns the declaring type.
	ContainingType() Type

	// Signature returns the compilation-independent signature.
	Signature() MethodSignature

	// Locations returns the declaring source locations. Empty when the
	// method has no source, such as abstract or metadata-only methods.
	Locations() []Location

	// Overridden returns the method this one overrides, or nil.
	Overridden() Method

	// IsAbstract reports whether the method has no body by definition.
	IsAbstract() bool
}

// Compilation is the result of compiling one project.
type Compilation interface {
	// Project returns the compiled project.
	Project() Project

	// DeclaredTypes returns the types declared by the project itself.
	DeclaredTypes() []Type

	// ResolveType resolves a qualified type name visible to this compilation.
	ResolveType(qualifiedName string) (Type, bool)

	// FindImplementationForInterfaceMember returns the member of t that
	// implements the interface member.
	FindImplementationForInterfaceMember(t Type, member Method) (Method, bool)
}

// Provider is the external semantic analysis service.
//
// Thread Safety:
//
//	Implementations must be safe for concurrent use. Compile may be called
//	concurrently for different projects.
type Provider interface {
	// Dependencies returns the direct project dependencies of p.
	Dependencies(ctx context.Context, p Project) ([]Project, error)

	// Compile compiles p. Each call may return handles that are not equal
	// to handles from any other call.
	Compile(ctx context.Context, p Project) (Compilation, error)

	// Invocations returns the call expressions nested in the body declared
	// at loc, each with its resolved target.
	Invocations(ctx context.Context, m Method, loc Location) ([]CallSite, error)

	// FindImplementations returns every method implementing or overriding m
	// within the given projects.
	FindImplementations(ctx context.Context, m Method, scope []Project) ([]Method, error)
}

// CallSite is one call expression with its resolved target.
type CallSite struct {
	// Location is the position of the call expression.
	Location Location

	// Target is the resolved callee. Nil when the target did not resolve.
	Target Method
}

// IDOf returns the canonical id of m.
func IDOf(m Method) MethodID {
	return m.Signature().ID()
}
