package graphline

import (
	"fmt"
	"sort"
	"sync"
)

// HandlerRegistry maps handler keys to handlers. Registration happens during
// process initialization; the registry freezes when the first run starts and
// rejects late registration instead of racing with readers.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	frozen   bool
}

// NewHandlerRegistry creates an empty handler registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a key, replacing any previous binding.
func (r *HandlerRegistry) Register(key string, h Handler) error {
	if key == "" {
		return fmt.Errorf("graphline: handler key is required")
	}
	if h == nil {
		return fmt.Errorf("graphline: handler for %q is nil", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return newError(CodeRegistryFrozen, "", fmt.Sprintf("cannot register handler %q after execution has started", key), nil)
	}
	r.handlers[key] = h
	return nil
}

// Resolve returns the handler for key.
func (r *HandlerRegistry) Resolve(key string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[key]
	if !ok {
		return nil, newError(CodeHandlerNotFound, "", fmt.Sprintf("handler %q is not registered", key), nil)
	}
	return h, nil
}

// Keys returns the registered handler keys, sorted.
func (r *HandlerRegistry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *HandlerRegistry) freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// GraphRegistry maps graph ids to validated graph definitions. Like the
// handler registry, it freezes when the first run starts.
type GraphRegistry struct {
	mu     sync.RWMutex
	graphs map[string]*Graph
	frozen bool
}

// NewGraphRegistry creates an empty graph registry.
func NewGraphRegistry() *GraphRegistry {
	return &GraphRegistry{graphs: make(map[string]*Graph)}
}

// Register validates and stores a graph, replacing any previous graph with
// the same id.
func (r *GraphRegistry) Register(g *Graph) error {
	if g == nil {
		return fmt.Errorf("graphline: graph is nil")
	}
	if err := g.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return newError(CodeRegistryFrozen, "", fmt.Sprintf("cannot register graph %q after execution has started", g.ID), nil)
	}
	r.graphs[g.ID] = g
	return nil
}

// Resolve returns the graph with the given id.
func (r *GraphRegistry) Resolve(id string) (*Graph, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.graphs[id]
	if !ok {
		return nil, newError(CodeGraphNotFound, "", fmt.Sprintf("graph %q is not registered", id), nil)
	}
	return g, nil
}

// IDs returns the registered graph ids, sorted.
func (r *GraphRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.graphs))
	for id := range r.graphs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *GraphRegistry) freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}
