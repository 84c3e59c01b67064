package graphline

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ExecuteAll runs several independent requests concurrently and returns
// their results in request order. Each request gets its own run and its own
// persistence keys, so unrelated runs never contend beyond the store itself.
//
// limit bounds concurrency; limit <= 0 means unbounded. Execute never
// returns an error, so ExecuteAll blocks only on ctx.
func (e *Executor) ExecuteAll(ctx context.Context, reqs []Request, limit int) []*Result {
	results := make([]*Result, len(reqs))
	if len(reqs) == 0 {
		return results
	}

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, req := range reqs {
		g.Go(func() error {
			results[i] = e.Execute(ctx, req)
			return nil
		})
	}

	// Only user callbacks could fail, and those don't propagate errors.
	_ = g.Wait()
	return results
}
