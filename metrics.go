package graphline

import "time"

// NodeSummary is the per-node line of an aggregated run summary.
type NodeSummary struct {
	Status   NodeStatus    `json:"status"`
	Duration time.Duration `json:"duration"`
	Tokens   TokenUsage    `json:"tokenUsage,omitempty"`
	Retries  int           `json:"retryCount,omitempty"`
}

// RunMetrics is the aggregated view of a finished run: total provider token
// usage, summed node durations, and a per-node breakdown.
type RunMetrics struct {
	Tokens        TokenUsage             `json:"tokenUsage"`
	TotalDuration time.Duration          `json:"totalDuration"`
	Nodes         map[string]NodeSummary `json:"nodeMetrics"`
}

// AggregateMetrics rolls the run's node states up into a RunMetrics. Nodes
// that never left PENDING are skipped from the breakdown.
func AggregateMetrics(run *Run) RunMetrics {
	m := RunMetrics{Nodes: make(map[string]NodeSummary)}
	for id, ns := range run.Nodes {
		if ns.Status == NodePending {
			continue
		}
		summary := NodeSummary{Status: ns.Status, Retries: ns.Retries}
		if ns.Metrics != nil {
			summary.Duration = ns.Metrics.Duration
			summary.Tokens = ns.Metrics.Tokens
			m.Tokens.Add(ns.Metrics.Tokens)
			m.TotalDuration += ns.Metrics.Duration
		}
		m.Nodes[id] = summary
	}
	return m
}
