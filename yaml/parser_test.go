package yaml

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphline/graphline"
)

const enrichmentYAML = `
id: financial_insights_graph
name: Financial insights enrichment
version: "1.0.0"
metadata:
  team: knowledge
nodes:
  - id: start
    type: start
  - id: retrieve_insights
    type: retrieve
    handler: retrieve
    config:
      prompt: "Summarize recent developments about {{.topic}}"
  - id: validate_record
    type: validate
    handler: validate
    config:
      schema:
        type: object
  - id: persist
    type: store
    handler: store
  - id: error_sink
    type: end
  - id: done
    type: end
edges:
  - from: start
    to: retrieve_insights
  - from: retrieve_insights
    to: validate_record
    kind: success
  - from: validate_record
    to: persist
    kind: success
    when:
      path: "$._validation.isValid"
      op: eq
      value: true
  - from: validate_record
    to: error_sink
    kind: error
    when:
      not:
        path: "$._validation.isValid"
        op: eq
        value: true
  - from: persist
    to: done
`

func TestParseEnrichmentDefinition(t *testing.T) {
	def, err := NewParser().Parse(strings.NewReader(enrichmentYAML))
	require.NoError(t, err)

	assert.Equal(t, "financial_insights_graph", def.ID)
	assert.Equal(t, "1.0.0", def.Version)
	assert.Len(t, def.Nodes, 6)
	assert.Len(t, def.Edges, 5)

	// Default kind fills in as success.
	assert.Equal(t, "", def.Edges[0].Kind)

	cond := def.Edges[2].When
	require.NotNil(t, cond)
	assert.Equal(t, "$._validation.isValid", cond.Path)
	assert.Equal(t, graphline.OpEq, cond.Op)
	assert.Equal(t, true, cond.Value)

	require.NotNil(t, def.Edges[3].When)
	assert.NotNil(t, def.Edges[3].When.Not)
}

func TestDefinitionToGraph(t *testing.T) {
	def, err := NewParser().Parse(strings.NewReader(enrichmentYAML))
	require.NoError(t, err)

	g, err := def.Graph()
	require.NoError(t, err)

	assert.Equal(t, "financial_insights_graph", g.ID)
	start, err := g.StartNode()
	require.NoError(t, err)
	assert.Equal(t, "start", start.ID)

	edges := g.EdgesFrom("start")
	require.Len(t, edges, 1)
	assert.Equal(t, graphline.EdgeSuccess, edges[0].Kind, "missing kind must default to success")

	node := g.NodeByID("retrieve_insights")
	require.NotNil(t, node)
	assert.Equal(t, graphline.NodeRetrieve, node.Type)
	assert.Equal(t, "retrieve", node.HandlerKey)
	assert.Contains(t, node.Config, "prompt")
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "missing id",
			doc: `
nodes:
  - id: start
    type: start
  - id: done
    type: end
edges:
  - from: start
    to: done
`,
			want: "id",
		},
		{
			name: "unknown node type",
			doc: `
id: g
nodes:
  - id: start
    type: start
  - id: weird
    type: shuffle
edges:
  - from: start
    to: weird
`,
			want: "must be one of",
		},
		{
			name: "unknown edge kind",
			doc: `
id: g
nodes:
  - id: start
    type: start
  - id: done
    type: end
edges:
  - from: start
    to: done
    kind: sometimes
`,
			want: "must be one of",
		},
		{
			name: "unexpected field",
			doc: `
id: g
nodes:
  - id: start
    type: start
    retries: 5
  - id: done
    type: end
edges:
  - from: start
    to: done
`,
			want: "retries",
		},
		{
			name: "not yaml",
			doc:  "{{{",
			want: "parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser().Parse(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGraphValidationRunsAfterDecode(t *testing.T) {
	// Structurally valid YAML whose graph breaks an engine invariant.
	doc := `
id: g
nodes:
  - id: a
    type: retrieve
  - id: done
    type: end
edges:
  - from: a
    to: done
`
	def, err := NewParser().Parse(strings.NewReader(doc))
	require.NoError(t, err)

	_, err = def.Graph()
	require.Error(t, err)
	assert.Equal(t, graphline.CodeNoStartNode, graphline.CodeOf(err))
}

func TestMarshalRoundTrip(t *testing.T) {
	def, err := NewParser().Parse(strings.NewReader(enrichmentYAML))
	require.NoError(t, err)

	data, err := NewParser().Marshal(def)
	require.NoError(t, err)

	again, err := NewParser().ParseBytes(data)
	require.NoError(t, err)
	assert.Equal(t, def.ID, again.ID)
	assert.Len(t, again.Edges, len(def.Edges))
}
