package executor

import (
	"context"
	"fmt"

	"github.com/hiveagent/hive/eventbus"
	"github.com/hiveagent/hive/graph"
	"github.com/hiveagent/hive/node"
	"github.com/hiveagent/hive/state"
)

// runNodeWithRetry runs nodeSpec, retrying from a fresh NodeConversation up
// to nodeSpec.MaxRetries times on a failed (not escalated or cancelled)
// result before handing control back to walk for edge evaluation.
func (x *GraphExecutor) runNodeWithRetry(ctx context.Context, nodeSpec graph.NodeSpec, exec graph.Execution, bus *eventbus.Bus, sharedState *state.SharedState) (node.NodeResult, error) {
	var (
		result node.NodeResult
		err    error
	)
	attempts := nodeSpec.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			bus.Publish(eventbus.Event{
				Type:   eventbus.EventNodeRetry,
				NodeID: nodeSpec.ID,
				Data:   map[string]any{"attempt": attempt},
			})
		}
		result, err = x.runNodeOnce(ctx, nodeSpec, exec, bus, sharedState)
		if err != nil {
			return result, err // context cancellation or unrecoverable dispatch error
		}
		if result.Status != node.NodeStatusFailed {
			return result, nil
		}
	}
	return result, nil
}

// runNodeOnce dispatches nodeSpec to the handler for its type. err is
// non-nil only for a dispatch-level failure (unknown type, ctx cancelled);
// a node's own business failure is reported through result.Status instead.
func (x *GraphExecutor) runNodeOnce(ctx context.Context, nodeSpec graph.NodeSpec, exec graph.Execution, bus *eventbus.Bus, sharedState *state.SharedState) (node.NodeResult, error) {
	switch nodeSpec.Type {
	case graph.NodeTypeEventLoop:
		return x.runEventLoopNode(ctx, nodeSpec, exec, bus)
	case graph.NodeTypeFunction:
		return x.runFunctionNode(ctx, nodeSpec, exec, bus, sharedState)
	default:
		return node.NodeResult{Status: node.NodeStatusFailed}, fmt.Errorf("%w: %q", ErrNoHandlerForNodeType, nodeSpec.Type)
	}
}

func (x *GraphExecutor) runEventLoopNode(ctx context.Context, nodeSpec graph.NodeSpec, exec graph.Execution, bus *eventbus.Bus) (node.NodeResult, error) {
	if x.eventLoop == nil {
		return node.NodeResult{Status: node.NodeStatusFailed}, fmt.Errorf("%w: event_loop", ErrNoHandlerForNodeType)
	}

	req := node.RunRequest{
		NodeID:          nodeSpec.ID,
		SystemPrompt:    nodeSpec.SystemPrompt,
		ClientFacing:    nodeSpec.ClientFacing,
		MaxIterations:   nodeSpec.MaxIterations,
		Conversation:    node.New(),
		Bus:             bus,
		ExecutionID:     exec.ExecutionID,
		SuccessCriteria: nodeSpec.SuccessCriteria,
	}
	hooks := hooksFromContext(ctx)
	req.PauseGate = hooks.PauseGate
	if hooks.Await != nil {
		req.Await = func(ctx context.Context) (string, error) {
			return hooks.Await(ctx, nodeSpec.ID)
		}
	}
	for _, k := range nodeSpec.OutputKeys {
		req.OutputKeys = append(req.OutputKeys, node.OutputKey(k.Name, k.Nullable))
	}
	if x.toolDefsByNode != nil {
		req.ToolDefinitions = x.toolDefsByNode(nodeSpec.ID)
	}

	result, err := x.eventLoop.Run(ctx, req)
	if err != nil && ctx.Err() == nil && result.Status != node.NodeStatusCancelled {
		// The node's own failure or escalation; result.Error carries it.
		return result, nil
	}
	return result, err
}

func (x *GraphExecutor) runFunctionNode(ctx context.Context, nodeSpec graph.NodeSpec, exec graph.Execution, bus *eventbus.Bus, sharedState *state.SharedState) (node.NodeResult, error) {
	handler, ok := x.functions[nodeSpec.ID]
	if !ok {
		return node.NodeResult{Status: node.NodeStatusFailed}, fmt.Errorf("%w: function node %q", ErrNoHandlerForNodeType, nodeSpec.ID)
	}

	bus.Publish(eventbus.Event{Type: eventbus.EventNodeLoopStarted, NodeID: nodeSpec.ID})
	outputs, err := handler(ctx, exec.ExecutionID, sharedState)
	if err != nil {
		bus.Publish(eventbus.Event{
			Type: eventbus.EventNodeLoopCompleted, NodeID: nodeSpec.ID,
			Data: map[string]any{"status": node.NodeStatusFailed, "iterations": 1, "error": err.Error()},
		})
		return node.NodeResult{Status: node.NodeStatusFailed, Error: err, Iterations: 1}, nil
	}
	bus.Publish(eventbus.Event{
		Type: eventbus.EventNodeLoopCompleted, NodeID: nodeSpec.ID,
		Data: map[string]any{"status": node.NodeStatusSuccess, "iterations": 1},
	})
	return node.NodeResult{Status: node.NodeStatusSuccess, Outputs: outputs, Iterations: 1}, nil
}
