// Package graph defines the immutable specification types that describe an
// agent: nodes, edges, entry points, and the per-run Execution record that
// tracks progress through them.
package graph

// NodeType tags which executor handler runs a NodeSpec. The executor never
// inspects the tag beyond selecting the handler for it.
type NodeType string

const (
	NodeTypeEventLoop NodeType = "event_loop"
	NodeTypeFunction  NodeType = "function"
)

// NodeSpec is one node in a Graph. It is immutable after the Graph is loaded.
type NodeSpec struct {
	ID               string
	Type             NodeType
	InputKeys        []string
	OutputKeys       []OutputKey
	PermittedTools   []string
	MaxRetries       int
	MaxNodeVisits    int // 0 = unbounded
	MaxIterations    int // 0 = unbounded, EventLoop only
	SuccessCriteria  string
	SystemPrompt     string
	ClientFacing     bool
}

// OutputKey declares one key a node may set via the set_output synthetic
// tool. Nullable keys are not required for a judge ACCEPT verdict.
type OutputKey struct {
	Name     string
	Nullable bool
}

// EdgeCondition selects when an EdgeSpec fires during edge evaluation.
type EdgeCondition string

const (
	EdgeAlways      EdgeCondition = "always"
	EdgeOnSuccess   EdgeCondition = "on_success"
	EdgeOnFailure   EdgeCondition = "on_failure"
	EdgeConditional EdgeCondition = "conditional"
	EdgeRouter      EdgeCondition = "router"
)

// Predicate evaluates a conditional edge against the shared-state reader
// presented to it. Implementations must not mutate state.
type Predicate func(state StateReader) bool

// StateReader is the minimal read surface a Predicate needs. state.SharedState
// satisfies it; kept here to avoid an import cycle between graph and state.
type StateReader interface {
	Get(key string) (value any, ok bool)
}

// EdgeSpec connects two nodes. Edges are evaluated in ascending Priority,
// ties broken by declaration order (their index in GraphSpec.Edges).
type EdgeSpec struct {
	Source    string
	Target    string
	Condition EdgeCondition
	Priority  int
	Predicate Predicate // only consulted when Condition == EdgeConditional
}

// EntryPointSpec binds an external trigger source to a target node.
type EntryPointSpec struct {
	ID          string
	TriggerKind string // manual | webhook | timer | event
	TargetNode  string
	Routing     map[string]any
}

// GraphSpec is an immutable agent graph specification.
type GraphSpec struct {
	ID          string
	Nodes       []NodeSpec
	Edges       []EdgeSpec
	EntryNode   string
	EntryPoints []EntryPointSpec
}

// NodeByID returns the node with the given id, or false if absent.
func (g GraphSpec) NodeByID(id string) (NodeSpec, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeSpec{}, false
}

// OutgoingEdges returns edges sourced from id, sorted ascending by Priority
// with ties broken by declaration order.
func (g GraphSpec) OutgoingEdges(id string) []EdgeSpec {
	out := make([]EdgeSpec, 0, 4)
	for _, e := range g.Edges {
		if e.Source == id {
			out = append(out, e)
		}
	}
	// Stable sort by Priority; declaration order (already preserved by range)
	// breaks ties since the sort is stable.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Priority < out[j-1].Priority; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
