package graphline

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle status of a run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// NodeStatus is the lifecycle status of a single node within a run.
type NodeStatus string

const (
	NodePending   NodeStatus = "pending"
	NodeRunning   NodeStatus = "running"
	NodeCompleted NodeStatus = "completed"
	NodeFailed    NodeStatus = "failed"
	NodeCancelled NodeStatus = "cancelled"
)

// TokenUsage counts generative-provider token consumption for one node or,
// aggregated, for a whole run.
type TokenUsage struct {
	Prompt     int `json:"promptTokens"`
	Completion int `json:"completionTokens"`
	Total      int `json:"totalTokens"`
}

// Add accumulates other into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.Prompt += other.Prompt
	u.Completion += other.Completion
	u.Total += other.Total
}

// NodeMetrics holds per-node measurements recorded during execution.
type NodeMetrics struct {
	Duration time.Duration `json:"duration"`
	Tokens   TokenUsage    `json:"tokenUsage"`
}

// NodeState tracks one node's progress within a run. Result is the opaque
// payload the handler produced; it becomes the input of the next node.
type NodeState struct {
	ID        string       `json:"id"`
	Status    NodeStatus   `json:"status"`
	StartTime *time.Time   `json:"startTime,omitempty"`
	EndTime   *time.Time   `json:"endTime,omitempty"`
	Retries   int          `json:"retryCount"`
	Error     string       `json:"error,omitempty"`
	Result    any          `json:"result,omitempty"`
	Metrics   *NodeMetrics `json:"metrics,omitempty"`
}

// Run is the mutable state of one graph execution. It is owned exclusively
// by the executor driving it; snapshots taken via Snapshot are safe to share.
type Run struct {
	ID          string                `json:"id"`
	GraphID     string                `json:"graphId"`
	Status      RunStatus             `json:"status"`
	StartTime   time.Time             `json:"startTime"`
	EndTime     *time.Time            `json:"endTime,omitempty"`
	Nodes       map[string]*NodeState `json:"nodes"`
	CurrentNode string                `json:"currentNode,omitempty"`
	Inputs      any                   `json:"inputs,omitempty"`
	Outputs     any                   `json:"outputs,omitempty"`
	Error       string                `json:"error,omitempty"`
	ErrorCode   Code                  `json:"errorCode,omitempty"`
}

// newRun creates a pending run for the graph with one PENDING NodeState per
// graph node.
func newRun(g *Graph, inputs any) *Run {
	r := &Run{
		ID:        uuid.NewString(),
		GraphID:   g.ID,
		Status:    RunPending,
		StartTime: time.Now(),
		Nodes:     make(map[string]*NodeState, len(g.Nodes)),
		Inputs:    inputs,
	}
	for _, n := range g.Nodes {
		r.Nodes[n.ID] = &NodeState{ID: n.ID, Status: NodePending}
	}
	return r
}

// Snapshot returns a deep copy of the run's bookkeeping. Node results are
// copied by reference; handlers must treat emitted results as immutable.
func (r *Run) Snapshot() *Run {
	cp := *r
	cp.Nodes = make(map[string]*NodeState, len(r.Nodes))
	for id, ns := range r.Nodes {
		n := *ns
		if ns.StartTime != nil {
			t := *ns.StartTime
			n.StartTime = &t
		}
		if ns.EndTime != nil {
			t := *ns.EndTime
			n.EndTime = &t
		}
		if ns.Metrics != nil {
			m := *ns.Metrics
			n.Metrics = &m
		}
		cp.Nodes[id] = &n
	}
	if r.EndTime != nil {
		t := *r.EndTime
		cp.EndTime = &t
	}
	return &cp
}

// RunView is the handler-facing window onto a run. Handlers may read run
// identity and the original inputs and may attach metrics to their own node,
// but cannot see or mutate other nodes' state.
type RunView struct {
	runID   string
	graphID string
	inputs  any
	node    *NodeState
}

// NewRunView builds a handler-facing view. The executor creates views
// internally; this constructor exists for handler tests and for embedding
// handlers in other runtimes.
func NewRunView(runID, graphID string, inputs any, node *NodeState) *RunView {
	return &RunView{runID: runID, graphID: graphID, inputs: inputs, node: node}
}

// RunID returns the id of the current run.
func (v *RunView) RunID() string { return v.runID }

// GraphID returns the id of the graph being executed.
func (v *RunView) GraphID() string { return v.graphID }

// Inputs returns the original request inputs.
func (v *RunView) Inputs() any { return v.inputs }

// NodeID returns the id of the node being executed.
func (v *RunView) NodeID() string { return v.node.ID }

// Retries returns how many times this node has been re-entered via RETRY
// edges during the current run.
func (v *RunView) Retries() int { return v.node.Retries }

// RecordTokens attaches provider token usage to the current node's metrics.
// Repeated calls accumulate.
func (v *RunView) RecordTokens(usage TokenUsage) {
	if v.node.Metrics == nil {
		v.node.Metrics = &NodeMetrics{}
	}
	v.node.Metrics.Tokens.Add(usage)
}
