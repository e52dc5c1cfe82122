package node

import (
	"context"

	"github.com/hiveagent/hive/toolreg"
)

// ModelRequest is the minimal LLM input contract required by the loop.
type ModelRequest struct {
	Messages []Turn
	Tools    []toolreg.ToolDefinition
}

// StreamChunk is one increment of a streaming model turn. Exactly one of
// TextDelta/ReasoningDelta is set on intermediate chunks; Final is set
// (with the complete assistant Turn) on the terminal chunk.
type StreamChunk struct {
	TextDelta      string
	ReasoningDelta string
	Final          bool
	Message        Turn
}

// Model produces assistant turns, streaming text as it is generated.
type Model interface {
	Stream(ctx context.Context, request ModelRequest) (<-chan StreamChunk, <-chan error)
}

// ToolExecutor resolves and executes non-synthetic tool calls.
type ToolExecutor interface {
	Execute(ctx context.Context, call toolreg.ToolCall) (toolreg.ToolResult, error)
}

// NodeStatus is the terminal disposition of one EventLoopNode.Run call.
type NodeStatus string

const (
	NodeStatusSuccess   NodeStatus = "success"
	NodeStatusFailed    NodeStatus = "failed"
	NodeStatusEscalated NodeStatus = "escalated"
	NodeStatusCancelled NodeStatus = "cancelled"
)

// NodeResult is EventLoopNode's public contract return value.
type NodeResult struct {
	Outputs    map[string]any
	Status     NodeStatus
	Iterations int
	Error      error
}
