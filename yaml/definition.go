// Package yaml loads pipeline graph definitions from YAML documents,
// validates them against a JSON schema, and converts them into executable
// graphline graphs.
package yaml

import (
	"fmt"

	"github.com/graphline/graphline"
)

// GraphDefinition is the YAML shape of a pipeline graph.
type GraphDefinition struct {
	ID       string            `yaml:"id" json:"id"`
	Name     string            `yaml:"name,omitempty" json:"name,omitempty"`
	Version  string            `yaml:"version,omitempty" json:"version,omitempty"`
	Metadata map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	Nodes    []NodeDefinition  `yaml:"nodes" json:"nodes"`
	Edges    []EdgeDefinition  `yaml:"edges" json:"edges"`
}

// NodeDefinition is the YAML shape of a node.
type NodeDefinition struct {
	ID      string         `yaml:"id" json:"id"`
	Type    string         `yaml:"type" json:"type"`
	Handler string         `yaml:"handler,omitempty" json:"handler,omitempty"`
	Config  map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// EdgeDefinition is the YAML shape of an edge. Kind defaults to "success";
// When defaults to always-true.
type EdgeDefinition struct {
	From string               `yaml:"from" json:"from"`
	To   string               `yaml:"to" json:"to"`
	Kind string               `yaml:"kind,omitempty" json:"kind,omitempty"`
	When *graphline.Condition `yaml:"when,omitempty" json:"when,omitempty"`
}

// Graph converts the definition into a validated graphline.Graph.
func (d *GraphDefinition) Graph() (*graphline.Graph, error) {
	g := &graphline.Graph{
		ID:       d.ID,
		Name:     d.Name,
		Version:  d.Version,
		Metadata: d.Metadata,
	}
	for _, n := range d.Nodes {
		g.Nodes = append(g.Nodes, graphline.Node{
			ID:         n.ID,
			Type:       graphline.NodeType(n.Type),
			HandlerKey: n.Handler,
			Config:     n.Config,
		})
	}
	for _, e := range d.Edges {
		kind := e.Kind
		if kind == "" {
			kind = string(graphline.EdgeSuccess)
		}
		g.Edges = append(g.Edges, graphline.Edge{
			From:      e.From,
			To:        e.To,
			Kind:      graphline.EdgeKind(kind),
			Condition: e.When,
		})
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("yaml: definition %q: %w", d.ID, err)
	}
	return g, nil
}
