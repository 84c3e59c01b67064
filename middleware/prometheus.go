package middleware

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/graphline/graphline"
)

// Metrics holds the Prometheus collectors for handler execution.
type Metrics struct {
	executions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	tokens     *prometheus.CounterVec
}

// NewMetrics registers handler collectors with reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphline",
			Name:      "handler_executions_total",
			Help:      "Handler invocations by graph, node and outcome.",
		}, []string{"graph", "node", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "graphline",
			Name:      "handler_duration_seconds",
			Help:      "Handler execution latency.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"graph", "node"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphline",
			Name:      "provider_tokens_total",
			Help:      "Provider tokens consumed, by graph and direction.",
		}, []string{"graph", "direction"}),
	}
	reg.MustRegister(m.executions, m.duration, m.tokens)
	return m
}

// Instrument produces a middleware that records executions, latencies and
// token deltas for every wrapped handler.
func (m *Metrics) Instrument() Middleware {
	return func(h graphline.Handler) graphline.Handler {
		return graphline.HandlerFunc(func(ctx context.Context, input any, view *graphline.RunView, config map[string]any) (any, error) {
			start := time.Now()
			result, err := h.Execute(ctx, input, view, config)
			elapsed := time.Since(start)

			outcome := "success"
			if err != nil {
				outcome = "error"
			}
			m.executions.WithLabelValues(view.GraphID(), view.NodeID(), outcome).Inc()
			m.duration.WithLabelValues(view.GraphID(), view.NodeID()).Observe(elapsed.Seconds())
			return result, err
		})
	}
}

// ObserveRun records a finished run's aggregated token usage. Call it from a
// request callback or after Execute returns.
func (m *Metrics) ObserveRun(graphID string, metrics graphline.RunMetrics) {
	m.tokens.WithLabelValues(graphID, "prompt").Add(float64(metrics.Tokens.Prompt))
	m.tokens.WithLabelValues(graphID, "completion").Add(float64(metrics.Tokens.Completion))
}
