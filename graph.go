// Package graphline provides a declarative pipeline engine: directed graphs
// of typed nodes joined by condition-guarded edges, executed one node at a
// time by a runtime that records per-node state, recovers from handler
// failures via ERROR edges, and persists run snapshots for observability.
//
// A Graph is built once (programmatically via GraphBuilder or from YAML via
// the yaml subpackage), registered in a GraphRegistry, and never mutated.
// Each Execute call creates a fresh Run that walks the graph from its START
// node until an END node is reached, a failure has no ERROR edge to follow,
// or no outgoing edge matches.
package graphline

import (
	"fmt"
)

// NodeType classifies the role of a node within a graph.
type NodeType string

// Node types. START and END delimit the graph; the rest describe the kind of
// work the node's handler performs and carry no engine-level semantics.
const (
	NodeStart     NodeType = "start"
	NodeRetrieve  NodeType = "retrieve"
	NodeTransform NodeType = "transform"
	NodeAnalyze   NodeType = "analyze"
	NodeStructure NodeType = "structure"
	NodeValidate  NodeType = "validate"
	NodeStore     NodeType = "store"
	NodeEnd       NodeType = "end"
)

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool {
	switch t {
	case NodeStart, NodeRetrieve, NodeTransform, NodeAnalyze,
		NodeStructure, NodeValidate, NodeStore, NodeEnd:
		return true
	}
	return false
}

// EdgeKind classifies a transition between two nodes.
type EdgeKind string

// Edge kinds. After a node succeeds, SUCCESS edges are evaluated strictly
// before all other kinds; after a node fails, only ERROR edges are
// considered. RETRY and FALLBACK behave like SUCCESS edges at selection time
// and exist so graphs can encode explicit retry loops and degraded paths.
const (
	EdgeSuccess  EdgeKind = "success"
	EdgeError    EdgeKind = "error"
	EdgeRetry    EdgeKind = "retry"
	EdgeFallback EdgeKind = "fallback"
)

// Valid reports whether k is a known edge kind.
func (k EdgeKind) Valid() bool {
	switch k {
	case EdgeSuccess, EdgeError, EdgeRetry, EdgeFallback:
		return true
	}
	return false
}

// Node is a single typed step in a graph, bound to a handler by key.
type Node struct {
	ID         string         `json:"id"`
	Type       NodeType       `json:"type"`
	HandlerKey string         `json:"handlerKey,omitempty"`
	Config     map[string]any `json:"config,omitempty"`
}

// Edge is a possible transition between two nodes. A nil Condition always
// matches.
type Edge struct {
	From      string     `json:"from"`
	To        string     `json:"to"`
	Kind      EdgeKind   `json:"kind"`
	Condition *Condition `json:"condition,omitempty"`
}

// Graph is a static, versioned pipeline definition. Graphs are immutable
// after registration; the executor never modifies them.
type Graph struct {
	ID       string            `json:"id"`
	Name     string            `json:"name,omitempty"`
	Version  string            `json:"version,omitempty"`
	Nodes    []Node            `json:"nodes"`
	Edges    []Edge            `json:"edges"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// StartNode returns the graph's START node, or an error if there is not
// exactly one.
func (g *Graph) StartNode() (*Node, error) {
	var start *Node
	for i := range g.Nodes {
		if g.Nodes[i].Type != NodeStart {
			continue
		}
		if start != nil {
			return nil, newError(CodeInvalidGraph, "", fmt.Sprintf("graph %s has multiple start nodes", g.ID), nil)
		}
		start = &g.Nodes[i]
	}
	if start == nil {
		return nil, newError(CodeNoStartNode, "", fmt.Sprintf("graph %s has no start node", g.ID), nil)
	}
	return start, nil
}

// NodeByID returns the node with the given id, or nil.
func (g *Graph) NodeByID(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// EdgesFrom returns the outgoing edges of the given node in declaration
// order. Declaration order is load-bearing: the executor's first-match rule
// depends on it.
func (g *Graph) EdgesFrom(nodeID string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.From == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// Validate checks the structural invariants of the graph: a non-empty id,
// unique node ids, known node and edge kinds, exactly one START node, at
// least one END node, edge endpoints that reference existing nodes, and at
// least one outgoing edge on every non-END node. Conditional edges can still
// dead-end at runtime; that case is reported by the executor, not here.
func (g *Graph) Validate() error {
	if g.ID == "" {
		return newError(CodeInvalidGraph, "", "graph id is required", nil)
	}

	seen := make(map[string]bool, len(g.Nodes))
	starts, ends := 0, 0
	for _, n := range g.Nodes {
		if n.ID == "" {
			return newError(CodeInvalidGraph, "", "node id is required", nil)
		}
		if seen[n.ID] {
			return newError(CodeInvalidGraph, n.ID, fmt.Sprintf("duplicate node id %q", n.ID), nil)
		}
		seen[n.ID] = true
		if !n.Type.Valid() {
			return newError(CodeInvalidGraph, n.ID, fmt.Sprintf("node %q has unknown type %q", n.ID, n.Type), nil)
		}
		switch n.Type {
		case NodeStart:
			starts++
		case NodeEnd:
			ends++
		}
	}
	if starts != 1 {
		return newError(CodeNoStartNode, "", fmt.Sprintf("graph %s must have exactly one start node, found %d", g.ID, starts), nil)
	}
	if ends == 0 {
		return newError(CodeInvalidGraph, "", fmt.Sprintf("graph %s has no end node", g.ID), nil)
	}

	outgoing := make(map[string]int, len(g.Nodes))
	for _, e := range g.Edges {
		if !seen[e.From] {
			return newError(CodeInvalidGraph, e.From, fmt.Sprintf("edge references unknown node %q", e.From), nil)
		}
		if !seen[e.To] {
			return newError(CodeInvalidGraph, e.To, fmt.Sprintf("edge references unknown node %q", e.To), nil)
		}
		if !e.Kind.Valid() {
			return newError(CodeInvalidGraph, e.From, fmt.Sprintf("edge %s->%s has unknown kind %q", e.From, e.To, e.Kind), nil)
		}
		outgoing[e.From]++
	}

	for _, n := range g.Nodes {
		if n.Type != NodeEnd && outgoing[n.ID] == 0 {
			return newError(CodeInvalidGraph, n.ID, fmt.Sprintf("node %q is not an end node but has no outgoing edges", n.ID), nil)
		}
	}

	return nil
}

// GraphBuilder provides a fluent API for constructing graphs in code.
type GraphBuilder struct {
	graph Graph
}

// NewGraph creates a builder for a graph with the given id.
func NewGraph(id string) *GraphBuilder {
	return &GraphBuilder{graph: Graph{ID: id}}
}

// Name sets the graph's display name.
func (b *GraphBuilder) Name(name string) *GraphBuilder {
	b.graph.Name = name
	return b
}

// Version sets the graph's version string.
func (b *GraphBuilder) Version(v string) *GraphBuilder {
	b.graph.Version = v
	return b
}

// Meta sets a metadata key.
func (b *GraphBuilder) Meta(key, value string) *GraphBuilder {
	if b.graph.Metadata == nil {
		b.graph.Metadata = make(map[string]string)
	}
	b.graph.Metadata[key] = value
	return b
}

// Node adds a node. Config is optional.
func (b *GraphBuilder) Node(id string, typ NodeType, handlerKey string, config ...map[string]any) *GraphBuilder {
	n := Node{ID: id, Type: typ, HandlerKey: handlerKey}
	if len(config) > 0 {
		n.Config = config[0]
	}
	b.graph.Nodes = append(b.graph.Nodes, n)
	return b
}

// Edge adds an unconditional edge of the given kind.
func (b *GraphBuilder) Edge(from, to string, kind EdgeKind) *GraphBuilder {
	b.graph.Edges = append(b.graph.Edges, Edge{From: from, To: to, Kind: kind})
	return b
}

// EdgeIf adds a condition-guarded edge of the given kind.
func (b *GraphBuilder) EdgeIf(from, to string, kind EdgeKind, cond *Condition) *GraphBuilder {
	b.graph.Edges = append(b.graph.Edges, Edge{From: from, To: to, Kind: kind, Condition: cond})
	return b
}

// Build validates and returns the graph.
func (b *GraphBuilder) Build() (*Graph, error) {
	g := b.graph
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}
