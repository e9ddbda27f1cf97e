// Package graph provides a small directed multigraph with ordered adjacency,
// node and edge priorities, and cycle detection.
package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownNode is returned when an edge references a node that was
	// never added.
	ErrUnknownNode = errors.New("unknown node")
	// ErrDuplicateNode is returned when a node id is added twice.
	ErrDuplicateNode = errors.New("duplicate node")
)

// Node is a vertex. Data is an opaque payload carried into exports.
type Node struct {
	ID    string
	Label string
	Data  any
}

// Edge is a directed arc. IDs are dense and assigned in insertion order.
type Edge struct {
	ID     int
	Label  string
	Source string
	Target string
	Data   any
}

// IsSelf reports whether the edge loops on one node.
func (e *Edge) IsSelf() bool {
	return e.Source == e.Target
}

// Graph is a directed multigraph whose iteration order is insertion order.
type Graph struct {
	nodes    map[string]*Node
	order    []string
	edges    []*Edge
	out      map[string][]*Edge
	in       map[string][]*Edge
	nextEdge int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		out:   make(map[string][]*Edge),
		in:    make(map[string][]*Edge),
	}
}

// AddNode inserts a node.
func (g *Graph) AddNode(n Node) (*Node, error) {
	if _, ok := g.nodes[n.ID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
	}
	node := &n
	g.nodes[n.ID] = node
	g.order = append(g.order, n.ID)
	return node, nil
}

// AddEdge inserts an edge between existing nodes and assigns its id.
func (g *Graph) AddEdge(source, target, label string, data any) (*Edge, error) {
	if _, ok := g.nodes[source]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, source)
	}
	if _, ok := g.nodes[target]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, target)
	}
	e := &Edge{ID: g.nextEdge, Label: label, Source: source, Target: target, Data: data}
	g.nextEdge++
	g.edges = append(g.edges, e)
	g.out[source] = append(g.out[source], e)
	g.in[target] = append(g.in[target], e)
	return e, nil
}

// Node returns a node by id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Edges returns edges in id order.
func (g *Graph) Edges() []*Edge {
	return append([]*Edge(nil), g.edges...)
}

// Outgoing returns the edges leaving id in insertion order.
func (g *Graph) Outgoing(id string) []*Edge {
	return g.out[id]
}

// Incoming returns the edges entering id in insertion order.
func (g *Graph) Incoming(id string) []*Edge {
	return g.in[id]
}

// Successors returns the distinct targets of id's outgoing edges in first
// seen order.
func (g *Graph) Successors(id string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range g.out[id] {
		if _, ok := seen[e.Target]; ok {
			continue
		}
		seen[e.Target] = struct{}{}
		out = append(out, e.Target)
	}
	return out
}

// NodePriority weighs a node for rendering emphasis. Parallel edges count
// once: 2 per distinct successor (a self loop included), 2 per distinct
// caller other than itself, minus 1 for a self loop.
func (g *Graph) NodePriority(id string) int {
	prio := 2 * len(g.Successors(id))

	callers := make(map[string]struct{})
	for _, e := range g.in[id] {
		callers[e.Source] = struct{}{}
	}
	for caller := range callers {
		if caller == id {
			prio--
			continue
		}
		prio += 2
	}
	return prio
}

// EdgePriority is the sum of the endpoint priorities. A self edge counts its
// node twice.
func (g *Graph) EdgePriority(e *Edge) int {
	return g.NodePriority(e.Source) + g.NodePriority(e.Target)
}
