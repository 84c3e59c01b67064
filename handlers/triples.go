package handlers

import (
	"context"
	"fmt"
	"sync"

	"github.com/graphline/graphline"
)

// Triple is one subject-predicate-object record.
type Triple struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// TripleStore persists enriched records into the external graph store.
type TripleStore interface {
	Insert(ctx context.Context, triples []Triple) error
}

// MemoryTripleStore is an in-memory TripleStore for tests and local runs.
type MemoryTripleStore struct {
	mu      sync.Mutex
	triples []Triple
}

// NewMemoryTripleStore creates an empty in-memory triple store.
func NewMemoryTripleStore() *MemoryTripleStore {
	return &MemoryTripleStore{}
}

// Insert appends triples.
func (s *MemoryTripleStore) Insert(_ context.Context, triples []Triple) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triples = append(s.triples, triples...)
	return nil
}

// All returns a copy of the stored triples.
func (s *MemoryTripleStore) All() []Triple {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Triple, len(s.triples))
	copy(out, s.triples)
	return out
}

var metaStore = Metadata{
	Key: "store",
	Description: "Writes the input's triples to the graph store. Expects the " +
		"input to carry a \"triples\" array of subject/predicate/object objects.",
	ConfigSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"field": map[string]any{"type": "string", "minLength": 1},
		},
	},
}

func newStore(deps Deps) graphline.Handler {
	return graphline.HandlerFunc(func(ctx context.Context, input any, view *graphline.RunView, config map[string]any) (any, error) {
		if err := validateConfig(metaStore, config); err != nil {
			return nil, err
		}
		if deps.Triples == nil {
			return nil, fmt.Errorf("store: no triple store configured")
		}

		field := stringConfig(config, "field")
		if field == "" {
			field = "triples"
		}
		m, ok := input.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("store: expected object input, got %T", input)
		}
		raw, ok := m[field].([]any)
		if !ok {
			return nil, fmt.Errorf("store: input has no %q array", field)
		}

		triples := make([]Triple, 0, len(raw))
		for i, item := range raw {
			t, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("store: triple %d is %T, want object", i, item)
			}
			triple := Triple{
				Subject:   stringConfig(t, "subject"),
				Predicate: stringConfig(t, "predicate"),
				Object:    stringConfig(t, "object"),
			}
			if triple.Subject == "" || triple.Predicate == "" {
				return nil, fmt.Errorf("store: triple %d is missing subject or predicate", i)
			}
			triples = append(triples, triple)
		}

		if err := deps.Triples.Insert(ctx, triples); err != nil {
			return nil, fmt.Errorf("store: insert: %w", err)
		}
		deps.logger().Debug(ctx, "triples stored", "run", view.RunID(), "count", len(triples))

		out := map[string]any{"stored": len(triples)}
		for k, v := range m {
			if k != field {
				out[k] = v
			}
		}
		return out, nil
	})
}
