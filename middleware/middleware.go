// Package middleware provides handler decorators for cross-cutting concerns:
// logging, timing, panic recovery, and Prometheus instrumentation. Apply
// them to individual handlers before registration.
package middleware

import (
	"github.com/graphline/graphline"
)

// Middleware modifies handler behavior.
type Middleware func(graphline.Handler) graphline.Handler

// Chain combines middlewares into one. Like function composition, the first
// middleware in the list is the outermost wrapper.
func Chain(middlewares ...Middleware) Middleware {
	return func(h graphline.Handler) graphline.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			h = middlewares[i](h)
		}
		return h
	}
}

// Apply wraps a handler with the given middlewares.
func Apply(h graphline.Handler, middlewares ...Middleware) graphline.Handler {
	for _, mw := range middlewares {
		h = mw(h)
	}
	return h
}
