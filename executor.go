package graphline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Request describes one pipeline execution.
type Request struct {
	// GraphID names the registered graph to execute.
	GraphID string

	// Inputs is the payload handed to the start node's handler.
	Inputs any

	// Timeout bounds the whole run. Zero uses the executor default; both
	// zero means no deadline.
	Timeout time.Duration

	// Metadata is attached to the result untouched.
	Metadata map[string]string

	// Callback, if set, is invoked with a snapshot of the terminal run
	// before Execute returns.
	Callback func(*Run)
}

// Result is the terminal outcome of a run. Execute always returns a Result,
// success and failure alike; Status and ErrorCode tell them apart.
type Result struct {
	ID        string            `json:"id"`
	GraphID   string            `json:"graphId"`
	Status    RunStatus         `json:"status"`
	StartTime time.Time         `json:"startTime"`
	EndTime   time.Time         `json:"endTime"`
	Duration  time.Duration     `json:"duration"`
	Outputs   any               `json:"outputs,omitempty"`
	Error     string            `json:"error,omitempty"`
	ErrorCode Code              `json:"errorCode,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Metrics   RunMetrics        `json:"metrics"`
}

// Executor drives runs through registered graphs. It supports any number of
// concurrent independent runs; within one run, nodes execute strictly
// sequentially. Registries are frozen the first time Execute is called.
type Executor struct {
	handlers  *HandlerRegistry
	graphs    *GraphRegistry
	evaluator *Evaluator
	runStore  RunStore
	logger    Logger

	snapshotTTL    time.Duration
	resultTTL      time.Duration
	defaultTimeout time.Duration
	maxNodeVisits  int

	freezeOnce sync.Once
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the executor's logger.
func WithLogger(logger Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithRunStore enables run-state persistence. Without one, runs execute
// without writing snapshots or results.
func WithRunStore(rs RunStore) ExecutorOption {
	return func(e *Executor) {
		e.runStore = rs
	}
}

// WithSnapshotTTL overrides the retention for intermediate snapshots.
func WithSnapshotTTL(ttl time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.snapshotTTL = ttl
	}
}

// WithResultTTL overrides the retention for terminal results.
func WithResultTTL(ttl time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.resultTTL = ttl
	}
}

// WithDefaultTimeout sets a deadline applied to runs whose request does not
// carry its own.
func WithDefaultTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.defaultTimeout = d
	}
}

// WithMaxNodeVisits bounds how many times a single node may execute within
// one run. RETRY edges may legitimately revisit a node; the bound keeps a
// mis-declared retry loop from spinning forever.
func WithMaxNodeVisits(n int) ExecutorOption {
	return func(e *Executor) {
		e.maxNodeVisits = n
	}
}

// NewExecutor creates an executor over the given registries.
func NewExecutor(handlers *HandlerRegistry, graphs *GraphRegistry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		handlers:       handlers,
		graphs:         graphs,
		logger:         NopLogger{},
		snapshotTTL:    DefaultSnapshotTTL,
		resultTTL:      DefaultResultTTL,
		maxNodeVisits:  25,
		defaultTimeout: 0,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.evaluator = NewEvaluator(e.logger)
	return e
}

// Execute runs the requested graph to completion and returns its terminal
// result. It never panics and never returns an error: configuration
// problems (unknown graph, no start node) come back as failed results with
// zero duration, and handler failures either route through ERROR edges or
// end the run with status failed.
func (e *Executor) Execute(ctx context.Context, req Request) *Result {
	e.freezeOnce.Do(func() {
		e.handlers.freeze()
		e.graphs.freeze()
	})

	graph, err := e.graphs.Resolve(req.GraphID)
	if err != nil {
		return e.configFailure(req, err)
	}
	start, err := graph.StartNode()
	if err != nil {
		return e.configFailure(req, err)
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = e.defaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	run := newRun(graph, req.Inputs)
	run.Status = RunRunning
	run.CurrentNode = start.ID

	e.logger.Info(ctx, "run started", "run", run.ID, "graph", graph.ID)
	e.persistSnapshot(ctx, run)

	e.drive(ctx, graph, run)

	now := time.Now()
	run.EndTime = &now
	run.CurrentNode = ""

	result := &Result{
		ID:        run.ID,
		GraphID:   run.GraphID,
		Status:    run.Status,
		StartTime: run.StartTime,
		EndTime:   now,
		Duration:  now.Sub(run.StartTime),
		Outputs:   run.Outputs,
		Error:     run.Error,
		ErrorCode: run.ErrorCode,
		Metadata:  req.Metadata,
		Metrics:   AggregateMetrics(run),
	}

	e.persistSnapshot(ctx, run)
	e.persistResult(ctx, result)

	e.logger.Info(ctx, "run finished",
		"run", run.ID,
		"graph", run.GraphID,
		"status", run.Status,
		"duration", result.Duration)

	if req.Callback != nil {
		req.Callback(run.Snapshot())
	}
	return result
}

// drive is the control loop: execute the current node, pick the next edge,
// persist, repeat. It mutates run in place and sets its terminal status.
func (e *Executor) drive(ctx context.Context, graph *Graph, run *Run) {
	currentInput := run.Inputs

	for run.CurrentNode != "" {
		node := graph.NodeByID(run.CurrentNode)
		ns := run.Nodes[node.ID]

		if err := ctx.Err(); err != nil {
			e.cancelRun(run, ns, err)
			return
		}
		if e.maxNodeVisits > 0 && ns.Retries >= e.maxNodeVisits {
			run.Status = RunFailed
			run.ErrorCode = CodeLoopDetected
			run.Error = fmt.Sprintf("node %s exceeded %d visits", node.ID, e.maxNodeVisits)
			return
		}

		result, nodeErr := e.executeNode(ctx, run, node, ns, currentInput)
		e.persistSnapshot(ctx, run)

		if nodeErr != nil {
			if errors.Is(nodeErr, context.Canceled) || errors.Is(nodeErr, context.DeadlineExceeded) {
				e.cancelRun(run, ns, nodeErr)
				return
			}
			envelope := errorEnvelope(nodeErr, currentInput)
			next := e.selectEdge(ctx, graph.EdgesFrom(node.ID), envelope, EdgeError)
			if next == nil {
				run.Status = RunFailed
				run.Error = nodeErr.Error()
				run.ErrorCode = CodeOf(nodeErr)
				if run.ErrorCode == "" {
					run.ErrorCode = CodeHandlerError
				}
				return
			}
			e.logger.Info(ctx, "routing via error edge",
				"run", run.ID, "from", node.ID, "to", next.To, "error", nodeErr)
			currentInput = envelope
			e.advance(run, next)
			continue
		}

		currentInput = result

		// An end node runs its handler like any other node and then
		// terminates the run; its result is the run output.
		if node.Type == NodeEnd {
			run.Outputs = result
			run.Status = RunCompleted
			return
		}

		next := e.selectEdge(ctx, graph.EdgesFrom(node.ID), result, EdgeSuccess)
		if next == nil {
			// Stopping at a non-end node is a dead end, not a success.
			run.Status = RunFailed
			run.ErrorCode = CodeDeadEnd
			run.Error = fmt.Sprintf("node %s completed but no outgoing edge matched", node.ID)
			return
		}
		e.advance(run, next)
	}
}

// executeNode runs one node's handler and records the outcome on its state.
func (e *Executor) executeNode(ctx context.Context, run *Run, node *Node, ns *NodeState, input any) (any, error) {
	start := time.Now()
	ns.Status = NodeRunning
	ns.StartTime = &start
	run.CurrentNode = node.ID

	e.logger.Debug(ctx, "executing node", "run", run.ID, "node", node.ID, "type", node.Type)

	handler, err := e.resolveHandler(node)
	if err != nil {
		e.finishNode(ns, start, nil, err)
		return nil, newError(CodeHandlerNotFound, node.ID, fmt.Sprintf("handler %q is not registered", node.HandlerKey), err)
	}

	view := &RunView{runID: run.ID, graphID: run.GraphID, inputs: run.Inputs, node: ns}
	result, err := invoke(ctx, handler, input, view, node.Config)
	e.finishNode(ns, start, result, err)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, newError(CodeHandlerError, node.ID, "handler failed", err)
	}
	return result, nil
}

// invoke calls the handler, converting a panic into an ordinary handler
// error so nothing escapes Execute.
func invoke(ctx context.Context, h Handler, input any, view *RunView, config map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h.Execute(ctx, input, view, config)
}

func (e *Executor) resolveHandler(node *Node) (Handler, error) {
	if node.HandlerKey == "" {
		return Passthrough(), nil
	}
	return e.handlers.Resolve(node.HandlerKey)
}

// finishNode closes out a node's state after its handler returns, folding
// the measured duration into any metrics the handler attached via RunView.
func (e *Executor) finishNode(ns *NodeState, start time.Time, result any, err error) {
	end := time.Now()
	ns.EndTime = &end
	if ns.Metrics == nil {
		ns.Metrics = &NodeMetrics{}
	}
	ns.Metrics.Duration = end.Sub(start)
	if err != nil {
		ns.Status = NodeFailed
		ns.Error = err.Error()
		return
	}
	ns.Status = NodeCompleted
	ns.Result = result
}

// selectEdge picks the next edge per the tie-break rule: edges of the
// preferred kind are evaluated first in declaration order, then all
// remaining kinds in declaration order; the first edge whose condition
// matches (or is absent) wins.
func (e *Executor) selectEdge(ctx context.Context, edges []Edge, result any, preferred EdgeKind) *Edge {
	for i := range edges {
		if edges[i].Kind != preferred {
			continue
		}
		if e.evaluator.Evaluate(ctx, edges[i].Condition, result) {
			return &edges[i]
		}
	}
	for i := range edges {
		if edges[i].Kind == preferred {
			continue
		}
		// After a failure only error edges may fire; everything else
		// is reserved for the success path.
		if preferred == EdgeError {
			continue
		}
		if e.evaluator.Evaluate(ctx, edges[i].Condition, result) {
			return &edges[i]
		}
	}
	return nil
}

// advance moves the run to the edge's target, resetting the target's state
// when the edge re-enters an already-executed node.
func (e *Executor) advance(run *Run, edge *Edge) {
	target := run.Nodes[edge.To]
	if target.Status != NodePending {
		target.Retries++
		target.Status = NodePending
		target.Error = ""
		target.Result = nil
	}
	run.CurrentNode = edge.To
}

func (e *Executor) cancelRun(run *Run, ns *NodeState, cause error) {
	ns.Status = NodeCancelled
	run.Status = RunCancelled
	run.Error = cause.Error()
	if errors.Is(cause, context.DeadlineExceeded) {
		run.ErrorCode = CodeDeadlineExceeded
	} else {
		run.ErrorCode = CodeCancelled
	}
}

// configFailure builds the uniform failed result for errors that occur
// before a run exists.
func (e *Executor) configFailure(req Request, err error) *Result {
	now := time.Now()
	return &Result{
		GraphID:   req.GraphID,
		Status:    RunFailed,
		StartTime: now,
		EndTime:   now,
		Error:     err.Error(),
		ErrorCode: CodeOf(err),
		Metadata:  req.Metadata,
		Metrics:   RunMetrics{Nodes: map[string]NodeSummary{}},
	}
}

func (e *Executor) persistSnapshot(ctx context.Context, run *Run) {
	if e.runStore == nil {
		return
	}
	if err := e.runStore.SaveSnapshot(ctx, run.Snapshot(), e.snapshotTTL); err != nil {
		e.logger.Error(ctx, "snapshot persist failed", "run", run.ID, "error", err)
	}
}

func (e *Executor) persistResult(ctx context.Context, result *Result) {
	if e.runStore == nil {
		return
	}
	if err := e.runStore.SaveResult(ctx, result, e.resultTTL); err != nil {
		e.logger.Error(ctx, "result persist failed", "run", result.ID, "error", err)
	}
}

// errorEnvelope is both what ERROR-edge conditions evaluate against and the
// input delivered to the error-path node: the failed node produced no
// result, so conditions see the error and the failing node's input instead.
func errorEnvelope(err error, input any) map[string]any {
	return map[string]any{
		"error":     err.Error(),
		"errorCode": string(CodeOf(err)),
		"input":     input,
	}
}
