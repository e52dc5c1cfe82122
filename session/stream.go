package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/hiveagent/hive/eventbus"
	"github.com/hiveagent/hive/executor"
	"github.com/hiveagent/hive/graph"
	"github.com/hiveagent/hive/state"
)

// Stream is one live execution of a graph for a given entry point. It owns
// the execution id, the cancellation signal, and a scope-stamping child bus
// shared with the GraphExecutor that drives it.
type Stream struct {
	ExecutionID string
	GraphID     string
	StreamID    string

	bus    *eventbus.Bus
	gx     *executor.GraphExecutor
	spec   graph.GraphSpec
	shared *state.SharedState
	logger *slog.Logger

	mu          sync.Mutex
	status      graph.ExecutionStatus
	cancel      context.CancelFunc
	pauseCh     chan struct{} // non-nil while paused
	blockedNode string
	inputCh     chan string

	done      chan struct{}
	finalExec graph.Execution
	runErr    error
}

// newExecutionID mints a fresh execution id.
func newExecutionID() string {
	return uuid.NewString()
}

// newStream constructs a Stream bound to graphID/entryPointID, deriving its
// own scoped child bus from parentBus so every event it or its GraphExecutor
// publishes carries graph_id and stream_id automatically.
func newStream(parentBus *eventbus.Bus, gx *executor.GraphExecutor, spec graph.GraphSpec, shared *state.SharedState, streamID string, logger *slog.Logger) *Stream {
	executionID := newExecutionID()
	return &Stream{
		ExecutionID: executionID,
		GraphID:     spec.ID,
		StreamID:    streamID,
		bus:         parentBus.Child(eventbus.Scope{GraphID: spec.ID, StreamID: streamID}),
		gx:          gx,
		spec:        spec,
		shared:      shared,
		logger:      logger,
		status:      graph.ExecutionPending,
		done:        make(chan struct{}),
	}
}

// Start launches the execution in a new goroutine from the given input (or,
// for a resumed execution, from a restored graph.Execution). It returns
// immediately; callers wait on Done/Status or subscribe to the bus. The
// execution keeps parent's values but not its cancellation: it ends only by
// running to completion or through Cancel.
func (s *Stream) Start(parent context.Context, initial graph.Execution) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	s.mu.Lock()
	s.cancel = cancel
	s.status = initial.Status
	s.mu.Unlock()

	hooked := executor.WithHooks(ctx, executor.Hooks{
		PauseGate: s.pauseGate,
		Await:     s.awaitInput,
	})

	go func() {
		final, err := s.gx.Execute(hooked, s.spec, initial, s.bus, s.shared)
		s.mu.Lock()
		s.finalExec = final
		s.runErr = err
		s.status = final.Status
		s.mu.Unlock()
		close(s.done)
	}()
}

// Done reports the channel that closes once the execution reaches a
// terminal status or is cancelled.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Status returns the execution's current lifecycle status and, once
// terminal, its accumulated outputs.
func (s *Stream) Status() (graph.ExecutionStatus, map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pauseCh != nil {
		return graph.ExecutionPaused, s.finalExec.Outputs
	}
	return s.status, s.finalExec.Outputs
}

// Snapshot returns the graph.Execution recorded when Execute returned, for
// checkpointing. While the run is still going it returns a zero Execution.
func (s *Stream) Snapshot() graph.Execution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalExec
}

// Pause suspends the execution before its next suspension point (the start
// of the next node iteration, or the next pause-gate check inside one).
// It is idempotent: pausing an already-paused stream is a no-op.
func (s *Stream) Pause() {
	s.mu.Lock()
	if s.pauseCh != nil {
		s.mu.Unlock()
		return
	}
	s.pauseCh = make(chan struct{})
	s.mu.Unlock()
	s.bus.Publish(eventbus.Event{Type: eventbus.EventExecutionPaused, ExecutionID: s.ExecutionID})
}

// Resume lifts a pause. It is idempotent: resuming a stream that is not
// paused is a no-op.
func (s *Stream) Resume() {
	s.mu.Lock()
	ch := s.pauseCh
	s.pauseCh = nil
	s.mu.Unlock()
	if ch == nil {
		return
	}
	close(ch)
	s.bus.Publish(eventbus.Event{Type: eventbus.EventExecutionResumed, ExecutionID: s.ExecutionID})
}

// Cancel terminates the execution. Unlike Pause, this is not resumable:
// the in-flight node observes ctx.Done and the stream finishes cancelled.
func (s *Stream) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Inject delivers content to the node currently blocked on
// client_input_requested, if its id matches nodeID. It reports whether
// delivery happened.
func (s *Stream) Inject(nodeID, content string) bool {
	s.mu.Lock()
	if s.blockedNode == "" || s.blockedNode != nodeID {
		s.mu.Unlock()
		return false
	}
	ch := s.inputCh
	s.blockedNode = ""
	s.inputCh = nil
	s.mu.Unlock()

	select {
	case ch <- content:
		return true
	default:
		return false
	}
}

// BlockedNode reports the node id currently awaiting client input, if any.
func (s *Stream) BlockedNode() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blockedNode, s.blockedNode != ""
}

func (s *Stream) pauseGate(ctx context.Context) error {
	for {
		s.mu.Lock()
		ch := s.pauseCh
		s.mu.Unlock()
		if ch == nil {
			return nil
		}
		select {
		case <-ch:
			continue
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Stream) awaitInput(ctx context.Context, nodeID string) (string, error) {
	ch := make(chan string, 1)
	s.mu.Lock()
	s.blockedNode = nodeID
	s.inputCh = ch
	s.mu.Unlock()

	select {
	case content := <-ch:
		return content, nil
	case <-ctx.Done():
		s.mu.Lock()
		if s.blockedNode == nodeID {
			s.blockedNode = ""
			s.inputCh = nil
		}
		s.mu.Unlock()
		return "", ctx.Err()
	}
}
