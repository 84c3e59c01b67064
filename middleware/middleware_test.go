package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphline/graphline"
)

func testView() *graphline.RunView {
	return graphline.NewRunView("run-1", "g", nil, &graphline.NodeState{ID: "n"})
}

func appendHandler(log *[]string, name string) graphline.Handler {
	return graphline.HandlerFunc(func(_ context.Context, input any, _ *graphline.RunView, _ map[string]any) (any, error) {
		*log = append(*log, name)
		return input, nil
	})
}

func appendMiddleware(log *[]string, name string) Middleware {
	return func(h graphline.Handler) graphline.Handler {
		return graphline.HandlerFunc(func(ctx context.Context, input any, view *graphline.RunView, config map[string]any) (any, error) {
			*log = append(*log, name)
			return h.Execute(ctx, input, view, config)
		})
	}
}

func TestChainOrder(t *testing.T) {
	var log []string
	h := Chain(
		appendMiddleware(&log, "outer"),
		appendMiddleware(&log, "inner"),
	)(appendHandler(&log, "handler"))

	_, err := h.Execute(context.Background(), nil, testView(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner", "handler"}, log)
}

func TestApplyOrder(t *testing.T) {
	var log []string
	h := Apply(appendHandler(&log, "handler"),
		appendMiddleware(&log, "first"),
		appendMiddleware(&log, "second"),
	)

	_, err := h.Execute(context.Background(), nil, testView(), nil)
	require.NoError(t, err)
	// Apply wraps left to right, so the last middleware is outermost.
	assert.Equal(t, []string{"second", "first", "handler"}, log)
}

func TestTiming(t *testing.T) {
	var gotNode string
	var gotErr error
	calls := 0
	mw := Timing(func(node string, d time.Duration, err error) {
		calls++
		gotNode = node
		gotErr = err
	})

	h := mw(graphline.Passthrough())
	out, err := h.Execute(context.Background(), "in", testView(), nil)
	require.NoError(t, err)
	assert.Equal(t, "in", out)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "n", gotNode)
	assert.NoError(t, gotErr)

	boom := errors.New("boom")
	h = mw(graphline.HandlerFunc(func(context.Context, any, *graphline.RunView, map[string]any) (any, error) {
		return nil, boom
	}))
	_, err = h.Execute(context.Background(), nil, testView(), nil)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, gotErr, boom)
}

func TestRecovery(t *testing.T) {
	h := Recovery()(graphline.HandlerFunc(func(context.Context, any, *graphline.RunView, map[string]any) (any, error) {
		panic("unexpected state")
	}))

	out, err := h.Execute(context.Background(), nil, testView(), nil)
	assert.Nil(t, out)
	assert.ErrorContains(t, err, "unexpected state")
}

func TestLoggingPassesThrough(t *testing.T) {
	h := Logging(graphline.NopLogger{})(graphline.Passthrough())
	out, err := h.Execute(context.Background(), map[string]any{"k": "v"}, testView(), nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": "v"}, out)
}

func TestMetricsInstrument(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	h := m.Instrument()(graphline.Passthrough())
	_, err := h.Execute(context.Background(), nil, testView(), nil)
	require.NoError(t, err)
	_, _ = h.Execute(context.Background(), nil, testView(), nil)

	failing := m.Instrument()(graphline.HandlerFunc(func(context.Context, any, *graphline.RunView, map[string]any) (any, error) {
		return nil, errors.New("boom")
	}))
	_, err = failing.Execute(context.Background(), nil, testView(), nil)
	require.Error(t, err)

	assert.Equal(t, float64(2), testutil.ToFloat64(
		m.executions.WithLabelValues("g", "n", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.executions.WithLabelValues("g", "n", "error")))
}

func TestMetricsObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveRun("g", graphline.RunMetrics{
		Tokens: graphline.TokenUsage{Prompt: 100, Completion: 40, Total: 140},
	})
	m.ObserveRun("g", graphline.RunMetrics{
		Tokens: graphline.TokenUsage{Prompt: 10, Completion: 5, Total: 15},
	})

	assert.Equal(t, float64(110), testutil.ToFloat64(
		m.tokens.WithLabelValues("g", "prompt")))
	assert.Equal(t, float64(45), testutil.ToFloat64(
		m.tokens.WithLabelValues("g", "completion")))
}
