package yaml

import (
	"fmt"
	"io"
	"os"
	"strings"

	goyaml "github.com/goccy/go-yaml"
	"github.com/xeipuuv/gojsonschema"
)

// definitionSchema is the structural schema every definition must satisfy
// before it is decoded. Graph-level invariants (exactly one start node, edge
// endpoints, and so on) are checked afterwards by graphline.Graph.Validate.
var definitionSchema = map[string]any{
	"type":     "object",
	"required": []any{"id", "nodes", "edges"},
	"properties": map[string]any{
		"id":      map[string]any{"type": "string", "minLength": 1},
		"name":    map[string]any{"type": "string"},
		"version": map[string]any{"type": "string"},
		"metadata": map[string]any{
			"type":                 "object",
			"additionalProperties": map[string]any{"type": "string"},
		},
		"nodes": map[string]any{
			"type":     "array",
			"minItems": 2,
			"items": map[string]any{
				"type":     "object",
				"required": []any{"id", "type"},
				"properties": map[string]any{
					"id": map[string]any{"type": "string", "minLength": 1},
					"type": map[string]any{
						"type": "string",
						"enum": []any{"start", "retrieve", "transform", "analyze", "structure", "validate", "store", "end"},
					},
					"handler": map[string]any{"type": "string"},
					"config":  map[string]any{"type": "object"},
				},
				"additionalProperties": false,
			},
		},
		"edges": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"from", "to"},
				"properties": map[string]any{
					"from": map[string]any{"type": "string", "minLength": 1},
					"to":   map[string]any{"type": "string", "minLength": 1},
					"kind": map[string]any{
						"type": "string",
						"enum": []any{"success", "error", "retry", "fallback"},
					},
					"when": map[string]any{"type": "object"},
				},
				"additionalProperties": false,
			},
		},
	},
	"additionalProperties": false,
}

// Parser parses and validates YAML graph definitions.
type Parser struct{}

// NewParser creates a parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse reads a definition from r, validates it against the definition
// schema, and decodes it.
func (p *Parser) Parse(r io.Reader) (*GraphDefinition, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("yaml: read definition: %w", err)
	}
	return p.ParseBytes(data)
}

// ParseBytes parses a definition from raw YAML.
func (p *Parser) ParseBytes(data []byte) (*GraphDefinition, error) {
	// Decode generically first so schema validation sees the document
	// rather than Go zero values.
	var doc map[string]any
	if err := goyaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("yaml: parse definition: %w", err)
	}
	if err := validateSchema(doc); err != nil {
		return nil, err
	}

	var def GraphDefinition
	if err := goyaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("yaml: decode definition: %w", err)
	}
	return &def, nil
}

// ParseFile parses a definition from a file.
func (p *Parser) ParseFile(filename string) (*GraphDefinition, error) {
	// #nosec G304 - the parser accepts caller-chosen definition paths
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("yaml: read %s: %w", filename, err)
	}
	return p.ParseBytes(data)
}

// Marshal renders a definition back to YAML.
func (p *Parser) Marshal(def *GraphDefinition) ([]byte, error) {
	data, err := goyaml.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("yaml: marshal definition: %w", err)
	}
	return data, nil
}

func validateSchema(doc map[string]any) error {
	schemaLoader := gojsonschema.NewGoLoader(definitionSchema)
	docLoader := gojsonschema.NewGoLoader(doc)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("yaml: schema validation: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("yaml: invalid definition: %s", strings.Join(msgs, "; "))
	}
	return nil
}
