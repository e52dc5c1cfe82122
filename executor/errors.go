package executor

import "errors"

var (
	// ErrVisitCapExceeded is returned when a node's max_node_visits would be exceeded.
	ErrVisitCapExceeded = errors.New("executor: visit cap exceeded")
	// ErrStateConflict is returned when parallel branches write the same key under incompatible isolation.
	ErrStateConflict = errors.New("executor: state conflict")
	// ErrNoHandlerForNodeType is returned when a GraphExecutor has no handler registered for a node's type.
	ErrNoHandlerForNodeType = errors.New("executor: no handler for node type")
	// ErrNodeFailedNoFallback is returned when a node fails and no on_failure edge matches.
	ErrNodeFailedNoFallback = errors.New("executor: node failed with no on_failure edge")
)
