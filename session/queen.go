package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hiveagent/hive/eventbus"
	"github.com/hiveagent/hive/node"
)

// DefaultQueenSystemPrompt is used when a session is created without an
// explicit queen prompt override.
const DefaultQueenSystemPrompt = "You are the queen: a persistent conversational agent for this session. " +
	"Greet the user, answer questions, and delegate work to a worker graph when the user asks for it."

// Queen is the always-on conversational executor every session owns: a
// client-facing EventLoopNode with unbounded iterations that receives chat
// directly rather than through Stream.Inject.
type Queen struct {
	loop        *node.EventLoopNode
	conv        *node.NodeConversation
	bus         *eventbus.Bus
	executionID string
	prompt      string

	mu      sync.Mutex
	inputCh chan string
	blocked bool

	done   chan struct{}
	result node.NodeResult
	runErr error
}

func newQueen(loop *node.EventLoopNode, bus *eventbus.Bus, executionID, prompt string) *Queen {
	if prompt == "" {
		prompt = DefaultQueenSystemPrompt
	}
	return &Queen{
		loop:        loop,
		conv:        node.New(),
		bus:         bus,
		executionID: executionID,
		prompt:      prompt,
		done:        make(chan struct{}),
	}
}

// Start runs the queen's event loop in a goroutine until it exits: on ctx
// cancellation (session teardown), on a model error, or on a judge verdict
// that ends the node. Text-only turns always suspend for chat input and
// never reach the judge; with no declared output keys, an ACCEPT ends the
// loop at once.
func (q *Queen) Start(ctx context.Context, logger *slog.Logger) {
	go func() {
		result, err := q.loop.Run(ctx, node.RunRequest{
			NodeID:        "queen",
			SystemPrompt:  q.prompt,
			ClientFacing:  true,
			MaxIterations: 0,
			Conversation:  q.conv,
			Bus:           q.bus,
			ExecutionID:   q.executionID,
			Await:         q.awaitInput,
		})
		q.mu.Lock()
		q.result = result
		q.runErr = err
		q.mu.Unlock()
		close(q.done)
		if err != nil && logger != nil {
			logger.Debug("queen loop exited", slog.String("error", err.Error()))
		}
	}()
}

// Chat delivers message as the queen's next conversational turn. It reports
// whether the queen was actually waiting for input (false if the queen's
// loop has already exited).
func (q *Queen) Chat(message string) bool {
	q.mu.Lock()
	if !q.blocked {
		q.mu.Unlock()
		return false
	}
	ch := q.inputCh
	q.blocked = false
	q.inputCh = nil
	q.mu.Unlock()

	select {
	case ch <- message:
		return true
	default:
		return false
	}
}

// Blocked reports whether the queen is currently awaiting a chat message.
func (q *Queen) Blocked() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.blocked
}

// Active reports whether the queen's loop is still running.
func (q *Queen) Active() bool {
	select {
	case <-q.done:
		return false
	default:
		return true
	}
}

func (q *Queen) awaitInput(ctx context.Context) (string, error) {
	ch := make(chan string, 1)
	q.mu.Lock()
	q.inputCh = ch
	q.blocked = true
	q.mu.Unlock()

	select {
	case msg := <-ch:
		return msg, nil
	case <-ctx.Done():
		q.mu.Lock()
		q.blocked = false
		q.inputCh = nil
		q.mu.Unlock()
		return "", ctx.Err()
	}
}
