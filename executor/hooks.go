package executor

import (
	"context"

	"github.com/hiveagent/hive/node"
)

// Hooks lets a caller above GraphExecutor (an ExecutionStream) thread
// pause/resume and chat-injection into whichever event_loop node the walk
// is currently running, without GraphExecutor itself knowing about sessions.
type Hooks struct {
	PauseGate node.PauseGate
	Await     func(ctx context.Context, nodeID string) (string, error)
}

type hooksKey struct{}

// WithHooks attaches h to ctx; runEventLoopNode reads it back when building
// a node.RunRequest. A ctx with no attached Hooks leaves PauseGate and Await
// nil: the node never pauses, and a client-facing node that waits for input
// blocks until ctx is done.
func WithHooks(ctx context.Context, h Hooks) context.Context {
	return context.WithValue(ctx, hooksKey{}, h)
}

func hooksFromContext(ctx context.Context) Hooks {
	h, _ := ctx.Value(hooksKey{}).(Hooks)
	return h
}
