package graphline

import (
	"errors"
	"fmt"
)

// Code is a structured error code carried on engine errors and surfaced on
// failed results. The origin system exposed only free-text messages; codes
// give callers something stable to branch on.
type Code string

const (
	CodeGraphNotFound    Code = "graph_not_found"
	CodeNoStartNode      Code = "no_start_node"
	CodeInvalidGraph     Code = "invalid_graph"
	CodeHandlerNotFound  Code = "handler_not_found"
	CodeHandlerError     Code = "handler_error"
	CodeDeadEnd          Code = "dead_end"
	CodeCancelled        Code = "cancelled"
	CodeDeadlineExceeded Code = "deadline_exceeded"
	CodeRegistryFrozen   Code = "registry_frozen"
	CodeLoopDetected     Code = "loop_detected"
)

// Error is the engine's error type. Node is the id of the node the error is
// attributed to, empty for graph-level errors.
type Error struct {
	Code Code
	Node string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Node != "" && e.Err != nil:
		return fmt.Sprintf("graphline: %s: node %s: %s: %v", e.Code, e.Node, e.Msg, e.Err)
	case e.Node != "":
		return fmt.Sprintf("graphline: %s: node %s: %s", e.Code, e.Node, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("graphline: %s: %s: %v", e.Code, e.Msg, e.Err)
	default:
		return fmt.Sprintf("graphline: %s: %s", e.Code, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is against another *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func newError(code Code, node, msg string, err error) *Error {
	return &Error{Code: code, Node: node, Msg: msg, Err: err}
}

// CodeOf returns the structured code of err, or the empty string if err does
// not carry one.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Sentinel values for use with errors.Is.
var (
	// ErrGraphNotFound is returned when a run references an unregistered graph.
	ErrGraphNotFound = &Error{Code: CodeGraphNotFound, Msg: "graph not found"}

	// ErrHandlerNotFound is returned when a node's handler key is not registered.
	ErrHandlerNotFound = &Error{Code: CodeHandlerNotFound, Msg: "handler not found"}

	// ErrNoStartNode is returned when a graph has no usable start node.
	ErrNoStartNode = &Error{Code: CodeNoStartNode, Msg: "no start node"}

	// ErrDeadEnd is returned when a non-end node completes but no outgoing
	// edge matches its result.
	ErrDeadEnd = &Error{Code: CodeDeadEnd, Msg: "no matching edge"}

	// ErrRegistryFrozen is returned on registration after execution has begun.
	ErrRegistryFrozen = &Error{Code: CodeRegistryFrozen, Msg: "registry is frozen"}
)
