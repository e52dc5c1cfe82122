package graph

import "errors"

// ErrConfigError wraps every rejection raised while loading a GraphSpec,
// before any execution starts.
var ErrConfigError = errors.New("graph: invalid configuration")

var (
	ErrEmptyGraph          = errors.New("graph: nodes list is empty")
	ErrMissingEntryNode    = errors.New("graph: entry_node is not a declared node")
	ErrDanglingEdge        = errors.New("graph: edge references an undeclared node")
	ErrDuplicateNodeID     = errors.New("graph: duplicate node id")
	ErrNoExitFromOnSuccess = errors.New("graph: cyclic on_success edges with no exit")
)
