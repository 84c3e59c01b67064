package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/graphline/graphline"
)

// Logging logs each handler invocation and its outcome.
func Logging(logger graphline.Logger) Middleware {
	return func(h graphline.Handler) graphline.Handler {
		return graphline.HandlerFunc(func(ctx context.Context, input any, view *graphline.RunView, config map[string]any) (any, error) {
			logger.Debug(ctx, "handler starting",
				"run", view.RunID(),
				"node", view.NodeID(),
				"input_type", fmt.Sprintf("%T", input))
			start := time.Now()

			result, err := h.Execute(ctx, input, view, config)

			if err != nil {
				logger.Error(ctx, "handler failed",
					"run", view.RunID(),
					"node", view.NodeID(),
					"duration", time.Since(start),
					"error", err)
			} else {
				logger.Debug(ctx, "handler completed",
					"run", view.RunID(),
					"node", view.NodeID(),
					"duration", time.Since(start),
					"result_type", fmt.Sprintf("%T", result))
			}
			return result, err
		})
	}
}

// Timing reports each invocation's duration to a callback.
func Timing(report func(node string, d time.Duration, err error)) Middleware {
	return func(h graphline.Handler) graphline.Handler {
		return graphline.HandlerFunc(func(ctx context.Context, input any, view *graphline.RunView, config map[string]any) (any, error) {
			start := time.Now()
			result, err := h.Execute(ctx, input, view, config)
			report(view.NodeID(), time.Since(start), err)
			return result, err
		})
	}
}

// Recovery converts a handler panic into an ordinary handler error. The
// executor already guards against panics; Recovery exists for handlers used
// outside an executor, e.g. in tests or direct invocation.
func Recovery() Middleware {
	return func(h graphline.Handler) graphline.Handler {
		return graphline.HandlerFunc(func(ctx context.Context, input any, view *graphline.RunView, config map[string]any) (result any, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("handler panicked: %v", r)
				}
			}()
			return h.Execute(ctx, input, view, config)
		})
	}
}
