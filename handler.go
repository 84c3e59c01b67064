package graphline

import "context"

// Handler is the unit of work bound to a node. The engine treats handlers as
// opaque: input is the previous node's result (the request inputs for the
// start node), view exposes run identity and the node's own metrics, and
// config is the node's opaque configuration map from the graph definition.
//
// A handler signals failure by returning an error; the executor records it
// on the node and routes via an ERROR edge when one matches. Handlers run
// on the calling run's goroutine and should honor ctx cancellation during
// any I/O they perform.
type Handler interface {
	Execute(ctx context.Context, input any, view *RunView, config map[string]any) (any, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, input any, view *RunView, config map[string]any) (any, error)

// Execute calls fn.
func (fn HandlerFunc) Execute(ctx context.Context, input any, view *RunView, config map[string]any) (any, error) {
	return fn(ctx, input, view, config)
}

// Passthrough returns a handler that echoes its input. It is the default for
// start and end nodes with no handler key.
func Passthrough() Handler {
	return HandlerFunc(func(_ context.Context, input any, _ *RunView, _ map[string]any) (any, error) {
		return input, nil
	})
}
