// Package executor implements GraphExecutor: it walks a graph.GraphSpec
// from its entry node for one graph.Execution, dispatching each node to a
// type-specific handler, applying declared output keys, evaluating outgoing
// edges, and fanning out parallel branches.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hiveagent/hive/eventbus"
	"github.com/hiveagent/hive/graph"
	"github.com/hiveagent/hive/node"
	"github.com/hiveagent/hive/state"
	"github.com/hiveagent/hive/toolreg"
)

// FunctionHandler executes a NodeTypeFunction node synchronously.
type FunctionHandler func(ctx context.Context, execID string, sharedState *state.SharedState) (map[string]any, error)

// RouterResolver picks the target node id for a router edge by consulting
// an LLM; ok is false if the edge should not match.
type RouterResolver func(ctx context.Context, edge graph.EdgeSpec, nodeResult node.NodeResult) (target string, ok bool)

// EventLoopRunner runs an event_loop node to completion. node.EventLoopNode
// satisfies this.
type EventLoopRunner interface {
	Run(ctx context.Context, req node.RunRequest) (node.NodeResult, error)
}

// GraphExecutor walks one graph.GraphSpec for one graph.Execution.
type GraphExecutor struct {
	eventLoop      EventLoopRunner
	functions      map[string]FunctionHandler
	toolDefsByNode func(nodeID string) []toolreg.ToolDefinition
	router         RouterResolver
	logger         *slog.Logger
}

// New constructs a GraphExecutor. functions maps node ids to their
// FunctionHandler for NodeTypeFunction nodes; toolDefsByNode resolves the
// permitted tool definitions (including synthetics) advertised to an
// event_loop node.
func New(eventLoop EventLoopRunner, functions map[string]FunctionHandler, toolDefsByNode func(string) []toolreg.ToolDefinition, router RouterResolver, logger *slog.Logger) *GraphExecutor {
	if functions == nil {
		functions = map[string]FunctionHandler{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GraphExecutor{eventLoop: eventLoop, functions: functions, toolDefsByNode: toolDefsByNode, router: router, logger: logger}
}

// Execute walks g from exec.CurrentNode (or g.EntryNode if unset) to a
// terminal status, publishing lifecycle and per-node events on bus (already
// scoped to graph_id/stream_id by the caller — typically an
// ExecutionStream's child bus).
func (x *GraphExecutor) Execute(ctx context.Context, g graph.GraphSpec, exec graph.Execution, bus *eventbus.Bus, sharedState *state.SharedState) (graph.Execution, error) {
	if exec.CurrentNode == "" {
		exec.CurrentNode = g.EntryNode
	}
	if err := exec.TransitionStatus(graph.ExecutionRunning); err != nil {
		return exec, err
	}

	bus.Publish(eventbus.Event{Type: eventbus.EventExecutionStarted, ExecutionID: exec.ExecutionID, Data: map[string]any{"input": exec.Input}})

	finalExec, err := x.walk(ctx, g, exec, bus, sharedState, true)

	switch {
	case err == nil:
		_ = finalExec.TransitionStatus(graph.ExecutionCompleted)
		bus.Publish(eventbus.Event{Type: eventbus.EventExecutionCompleted, ExecutionID: finalExec.ExecutionID, Data: map[string]any{"output": finalExec.Outputs}})
	case ctx.Err() != nil:
		_ = finalExec.TransitionStatus(graph.ExecutionCancelled)
	default:
		_ = finalExec.TransitionStatus(graph.ExecutionFailed)
		bus.Publish(eventbus.Event{Type: eventbus.EventExecutionFailed, ExecutionID: finalExec.ExecutionID, Data: map[string]any{"error": err.Error()}})
	}
	return finalExec, err
}

// walk runs the core per-node loop starting at exec.CurrentNode until a
// terminal edge fires (execution completes) or a node fails with no
// on_failure edge (execution fails). commit selects whether a node's
// output-key writes land on sharedState as they happen (the top-level
// caller) or are only staged into exec.Outputs for a parallel branch to
// merge at its join (see runParallel/mergeBranches): staging keeps a
// losing branch's writes from ever publishing state_changed before the
// conflict they cause is detected.
func (x *GraphExecutor) walk(ctx context.Context, g graph.GraphSpec, exec graph.Execution, bus *eventbus.Bus, sharedState *state.SharedState, commit bool) (graph.Execution, error) {
	current := exec.CurrentNode
	for {
		if err := ctx.Err(); err != nil {
			return exec, err
		}

		nodeSpec, ok := g.NodeByID(current)
		if !ok {
			return exec, fmt.Errorf("executor: unknown node %q", current)
		}

		if exec.VisitExceedsCap(nodeSpec) {
			return exec, fmt.Errorf("%w: node=%q", ErrVisitCapExceeded, nodeSpec.ID)
		}
		exec.RecordVisit(nodeSpec.ID)
		exec.CurrentNode = nodeSpec.ID

		result, runErr := x.runNodeWithRetry(ctx, nodeSpec, exec, bus, sharedState)
		if runErr == nil && result.Status == node.NodeStatusSuccess {
			for key, value := range result.Outputs {
				exec.Outputs[key] = value
				if commit {
					sharedState.Set(exec.ExecutionID, key, value)
				}
			}
		}

		edges := g.OutgoingEdges(nodeSpec.ID)
		matches := x.matchingEdges(ctx, edges, result, exec, sharedState)

		if len(matches) == 0 {
			if result.Status != node.NodeStatusSuccess {
				return exec, fmt.Errorf("%w: node=%q status=%s", ErrNodeFailedNoFallback, nodeSpec.ID, result.Status)
			}
			return exec, nil
		}

		if len(matches) > 1 {
			merged, err := x.runParallel(ctx, g, exec, matches, bus, sharedState)
			if err != nil {
				return exec, err
			}
			return merged, nil
		}

		edge := matches[0]
		bus.Publish(eventbus.Event{
			Type: eventbus.EventEdgeTraversed,
			Data: map[string]any{"source": edge.Source, "target": edge.Target, "edge_condition": edge.Condition},
		})
		current = edge.Target
	}
}

// matchingEdges evaluates edges in priority order and returns every edge at
// the priority of the first match — a singleton unless several equal-
// priority always/on_success edges fire, which is the parallel fan-out case.
func (x *GraphExecutor) matchingEdges(ctx context.Context, edges []graph.EdgeSpec, result node.NodeResult, exec graph.Execution, sharedState *state.SharedState) []graph.EdgeSpec {
	for i, edge := range edges {
		if !x.edgeFires(ctx, edge, result, exec, sharedState) {
			continue
		}
		group := []graph.EdgeSpec{edge}
		for j := i + 1; j < len(edges); j++ {
			if edges[j].Priority != edge.Priority {
				break
			}
			if (edge.Condition == graph.EdgeAlways || edge.Condition == graph.EdgeOnSuccess) &&
				edges[j].Condition == edge.Condition && x.edgeFires(ctx, edges[j], result, exec, sharedState) {
				group = append(group, edges[j])
			}
		}
		return group
	}
	return nil
}

func (x *GraphExecutor) edgeFires(ctx context.Context, edge graph.EdgeSpec, result node.NodeResult, exec graph.Execution, sharedState *state.SharedState) bool {
	switch edge.Condition {
	case graph.EdgeAlways:
		return true
	case graph.EdgeOnSuccess:
		return result.Status == node.NodeStatusSuccess
	case graph.EdgeOnFailure:
		return result.Status == node.NodeStatusFailed || result.Status == node.NodeStatusEscalated
	case graph.EdgeConditional:
		if edge.Predicate == nil {
			return false
		}
		return edge.Predicate(overlayReader{overlay: exec.Outputs, base: sharedState})
	case graph.EdgeRouter:
		if x.router == nil {
			return false
		}
		target, ok := x.router(ctx, edge, result)
		return ok && target == edge.Target
	default:
		return false
	}
}

// overlayReader lets a not-yet-committed branch see its own staged writes
// when evaluating a conditional edge, falling back to sharedState for
// everything it has not itself written this walk.
type overlayReader struct {
	overlay map[string]any
	base    graph.StateReader
}

func (r overlayReader) Get(key string) (any, bool) {
	if v, ok := r.overlay[key]; ok {
		return v, true
	}
	return r.base.Get(key)
}
