// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package callgraph

import (
	"sort"

	"github.com/AleutianAI/symgraph/services/symgraph/semantic"
)

// NodeRef addresses a node inside one Graph.
type NodeRef int

// MethodNode is one canonical method reached by a traversal.
//
// Nodes are owned by their Graph. Edge lists are mutated only through the
// Graph and hold no duplicates.
type MethodNode struct {
	// ID is the canonical method id. Unique within a Graph.
	ID semantic.MethodID

	// Method is the first handle seen for this id.
	Method semantic.Method

	// Callers are the nodes with an edge to this one, in discovery order.
	Callers []NodeRef

	// Implementations are the implementing or overriding nodes, in
	// canonical id order.
	Implementations []NodeRef

	// Invocations maps each call site in the body to its callee.
	Invocations map[semantic.Location]NodeRef

	// FanoutCapped is set when implementation edges were not expanded
	// because the implementer count exceeded the fan-out cap.
	FanoutCapped bool
}

// EdgeKind classifies an edge.
type EdgeKind int

const (
	// EdgeInvocation is a call from From to To at Site.
	EdgeInvocation EdgeKind = iota

	// EdgeImplementation links an abstract or overridden method to an
	// implementation or override.
	EdgeImplementation

	// EdgeCaller is the reverse of either of the above.
	EdgeCaller
)

// String returns the edge kind name.
func (k EdgeKind) String() string {
	switch k {
	case EdgeInvocation:
		return "invocation"
	case EdgeImplementation:
		return "implementation"
	case EdgeCaller:
		return "caller"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name.
func (k EdgeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Edge is one directed edge between canonical methods.
type Edge struct {
	Kind EdgeKind          `json:"kind" yaml:"kind"`
	From semantic.MethodID `json:"from" yaml:"from"`
	To   semantic.MethodID `json:"to" yaml:"to"`

	// Site is set for invocation edges only.
	Site semantic.Location `json:"site,omitempty" yaml:"site,omitempty"`
}

type edgeKey struct {
	from, to NodeRef
}

// Graph is an arena of method nodes addressed by NodeRef.
//
// Thread Safety:
//
//	Not safe for concurrent mutation. A Graph is built by a single traversal
//	and may be read concurrently once Build returns.
type Graph struct {
	nodes []*MethodNode
	byID  map[semantic.MethodID]NodeRef

	callers map[edgeKey]struct{}
	impls   map[edgeKey]struct{}
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		byID:    make(map[semantic.MethodID]NodeRef),
		callers: make(map[edgeKey]struct{}),
		impls:   make(map[edgeKey]struct{}),
	}
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node returns the node for ref. It panics if ref is out of range.
func (g *Graph) Node(ref NodeRef) *MethodNode {
	return g.nodes[ref]
}

// Lookup returns the node for a canonical id.
func (g *Graph) Lookup(id semantic.MethodID) (NodeRef, bool) {
	ref, ok := g.byID[id]
	return ref, ok
}

// IDs maps refs to canonical ids.
func (g *Graph) IDs(refs []NodeRef) []semantic.MethodID {
	out := make([]semantic.MethodID, len(refs))
	for i, r := range refs {
		out[i] = g.nodes[r].ID
	}
	return out
}

// GetOrCreate returns the node for id, creating it with handle m if absent.
// created reports whether a new node was added.
func (g *Graph) GetOrCreate(id semantic.MethodID, m semantic.Method) (ref NodeRef, created bool) {
	if ref, ok := g.byID[id]; ok {
		return ref, false
	}
	ref = NodeRef(len(g.nodes))
	g.nodes = append(g.nodes, &MethodNode{
		ID:          id,
		Method:      m,
		Invocations: make(map[semantic.Location]NodeRef),
	})
	g.byID[id] = ref
	return ref, true
}

// AddCaller records caller as a caller of callee. Duplicates are ignored.
func (g *Graph) AddCaller(callee, caller NodeRef) {
	k := edgeKey{from: caller, to: callee}
	if _, ok := g.callers[k]; ok {
		return
	}
	g.callers[k] = struct{}{}
	g.nodes[callee].Callers = append(g.nodes[callee].Callers, caller)
}

// AddImplementation records impl as an implementation of node.
// Duplicates are ignored.
func (g *Graph) AddImplementation(node, impl NodeRef) {
	k := edgeKey{from: node, to: impl}
	if _, ok := g.impls[k]; ok {
		return
	}
	g.impls[k] = struct{}{}
	g.nodes[node].Implementations = append(g.nodes[node].Implementations, impl)
}

// AddInvocation records that the body of node calls callee at site.
func (g *Graph) AddInvocation(node NodeRef, site semantic.Location, callee NodeRef) {
	g.nodes[node].Invocations[site] = callee
}

// Edges returns every edge in the graph, sorted by kind, from, to and site.
//
// Two graphs built over the same symbols by different paths have equal
// Edges exactly when they have the same structure.
func (g *Graph) Edges() []Edge {
	var out []Edge
	for _, n := range g.nodes {
		for site, callee := range n.Invocations {
			out = append(out, Edge{Kind: EdgeInvocation, From: n.ID, To: g.nodes[callee].ID, Site: site})
		}
		for _, impl := range n.Implementations {
			out = append(out, Edge{Kind: EdgeImplementation, From: n.ID, To: g.nodes[impl].ID})
		}
		for _, c := range n.Callers {
			out = append(out, Edge{Kind: EdgeCaller, From: n.ID, To: g.nodes[c].ID})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		return a.Site.Before(b.Site)
	})
	return out
}
