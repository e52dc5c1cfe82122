package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/hiveagent/hive/checkpoint"
	"github.com/hiveagent/hive/eventbus"
	"github.com/hiveagent/hive/graph"
	"github.com/hiveagent/hive/judge"
	"github.com/hiveagent/hive/node"
	"github.com/hiveagent/hive/state"
)

// Status is a session's coarse lifecycle, per spec.md §3: Created →
// (optional) WorkerLoaded → (optional) WorkerUnloaded → Stopped.
type Status string

const (
	StatusCreated        Status = "created"
	StatusWorkerLoaded   Status = "worker_loaded"
	StatusWorkerUnloaded Status = "worker_unloaded"
	StatusStopped        Status = "stopped"
)

// Session owns one EventBus, one SharedState, an always-on Queen, and an
// optional Worker + HealthJudge pair.
type Session struct {
	ID     string
	bus    *eventbus.Bus
	shared *state.SharedState
	queen  *Queen
	logger *slog.Logger

	mu            sync.Mutex
	status        Status
	worker        *Worker
	health        *HealthJudge
	cancel        context.CancelFunc
	loadingWorker bool
}

// QueenConfig supplies the model/tools/judge a session's queen runs with.
// A Manager holds one QueenConfig shared by every session it creates.
type QueenConfig struct {
	Model         node.Model
	ToolExecutor  node.ToolExecutor
	JudgeProtocol *judge.Protocol
	SystemPrompt  string
}

// Manager owns every live Session, namespaced by session id. It is the
// only place session state lives; never hold a *Session across a
// goroutine boundary without going back through the Manager, since
// Destroy invalidates it.
type Manager struct {
	mu             sync.RWMutex
	sessions       map[string]*Session
	checkpoints    checkpoint.Store
	queenConfig    QueenConfig
	isolation      state.Isolation
	healthInterval time.Duration
	logger         *slog.Logger
	loadGroup      singleflight.Group
}

// NewManager constructs a Manager. checkpoints may be nil, in which case
// Checkpoint, and Resume/Replay against a checkpoint id, fail with
// checkpoint.ErrNotFound.
func NewManager(checkpoints checkpoint.Store, queenConfig QueenConfig, isolation state.Isolation, healthInterval time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions:       make(map[string]*Session),
		checkpoints:    checkpoints,
		queenConfig:    queenConfig,
		isolation:      isolation,
		healthInterval: healthInterval,
		logger:         logger,
	}
}

// Create starts a new session. An empty id mints a fresh uuid.
func (m *Manager) Create(id string) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	if _, exists := m.sessions[id]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrSessionExists, id)
	}

	logger := m.logger.With(slog.String("session_id", id))
	bus := eventbus.New(logger)
	shared := state.New(m.isolation, bus)

	ctx, cancel := context.WithCancel(context.Background())
	queenBus := bus.Child(eventbus.Scope{StreamID: "queen"})
	var loop *node.EventLoopNode
	if m.queenConfig.Model != nil && m.queenConfig.ToolExecutor != nil {
		var err error
		loop, err = node.NewEventLoopNode(m.queenConfig.Model, m.queenConfig.ToolExecutor, m.queenConfig.JudgeProtocol, logger)
		if err != nil {
			m.mu.Unlock()
			cancel()
			return nil, err
		}
	}

	sess := &Session{
		ID:     id,
		bus:    bus,
		shared: shared,
		logger: logger,
		status: StatusCreated,
		cancel: cancel,
	}
	if loop != nil {
		sess.queen = newQueen(loop, queenBus, uuid.NewString(), m.queenConfig.SystemPrompt)
		sess.queen.Start(ctx, logger)
	}

	m.sessions[id] = sess
	m.mu.Unlock()

	logger.Info("session created")
	return sess, nil
}

// Get returns the session for id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Destroy cancels all active streams and the queen, then removes the
// session. This is stop_session in spec.md §4.7.
func (m *Manager) Destroy(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	sess.mu.Lock()
	worker := sess.worker
	health := sess.health
	sess.worker = nil
	sess.health = nil
	sess.status = StatusStopped
	sess.mu.Unlock()

	if health != nil {
		health.Stop()
	}
	if worker != nil {
		worker.Shutdown()
	}
	sess.cancel()
	sess.logger.Info("session destroyed")
	return nil
}

// LoadWorker attaches an AgentSpec's graphs and an optional HealthJudge to
// a session. Concurrent LoadWorker calls racing on the same session id
// collapse onto a single load via singleflight.
func (m *Manager) LoadWorker(sessionID string, spec AgentSpec) error {
	_, err, _ := m.loadGroup.Do(sessionID, func() (any, error) {
		sess, ok := m.Get(sessionID)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, sessionID)
		}

		sess.mu.Lock()
		if sess.worker != nil {
			sess.mu.Unlock()
			return nil, fmt.Errorf("%w: session %q", ErrWorkerBusy, sessionID)
		}
		sess.loadingWorker = true
		sess.mu.Unlock()
		defer func() {
			sess.mu.Lock()
			sess.loadingWorker = false
			sess.mu.Unlock()
		}()

		workerBus := sess.bus.Child(eventbus.Scope{})
		worker, err := newWorker(spec, workerBus, sess.shared, sess.logger)
		if err != nil {
			return nil, err
		}

		health := newHealthJudge(workerBus, m.healthInterval, sess.logger)
		if err := health.Start(); err != nil {
			return nil, err
		}

		sess.mu.Lock()
		sess.worker = worker
		sess.health = health
		sess.status = StatusWorkerLoaded
		sess.mu.Unlock()

		sess.logger.Info("worker loaded", slog.String("agent_id", spec.ID))
		return nil, nil
	})
	return err
}

// UnloadWorker tears down the worker and its health judge; the queen
// survives. A no-op if no worker is loaded.
func (m *Manager) UnloadWorker(sessionID string) error {
	sess, ok := m.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, sessionID)
	}

	sess.mu.Lock()
	worker := sess.worker
	health := sess.health
	sess.worker = nil
	sess.health = nil
	if worker != nil {
		sess.status = StatusWorkerUnloaded
	}
	sess.mu.Unlock()

	if worker == nil {
		return nil
	}
	if health != nil {
		health.Stop()
	}
	worker.Shutdown()
	sess.logger.Info("worker unloaded")
	return nil
}

// Trigger starts a new worker execution from entryPointID.
func (m *Manager) Trigger(ctx context.Context, sessionID, entryPointID string, input map[string]any) (string, error) {
	sess, worker, err := m.requireWorker(sessionID)
	if err != nil {
		return "", err
	}
	s, err := worker.Trigger(ctx, entryPointID, input)
	if err != nil {
		return "", err
	}
	sess.logger.Info("execution triggered", slog.String("execution_id", s.ExecutionID), slog.String("entry_point", entryPointID))
	return s.ExecutionID, nil
}

// Inject delivers content to a node blocked on client_input_requested. If
// executionID is empty, it targets whichever stream is currently blocked
// on nodeID, mirroring Chat's worker-priority routing.
func (m *Manager) Inject(sessionID, executionID, nodeID, content string) (bool, error) {
	_, worker, err := m.requireWorker(sessionID)
	if err != nil {
		return false, err
	}

	if executionID == "" {
		s, blockedNode, blocked := worker.BlockedStream()
		if !blocked || blockedNode != nodeID {
			return false, nil
		}
		return s.Inject(nodeID, content), nil
	}

	s, ok := worker.Stream(executionID)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrExecutionNotFound, executionID)
	}
	return s.Inject(nodeID, content), nil
}

// ChatResult reports which executor received a chat message.
type ChatResult struct {
	Status    string // "injected" | "queen"
	Delivered bool
}

// Chat routes message by priority: a worker execution blocked on
// client_input_requested first, the queen second, an error if neither.
func (m *Manager) Chat(sessionID, message string) (ChatResult, error) {
	sess, ok := m.Get(sessionID)
	if !ok {
		return ChatResult{}, fmt.Errorf("%w: %q", ErrSessionNotFound, sessionID)
	}

	sess.mu.Lock()
	worker := sess.worker
	queen := sess.queen
	sess.mu.Unlock()

	if worker != nil {
		if s, nodeID, blocked := worker.BlockedStream(); blocked {
			delivered := s.Inject(nodeID, message)
			return ChatResult{Status: "injected", Delivered: delivered}, nil
		}
	}

	if queen != nil && queen.Active() {
		delivered := queen.Chat(message)
		return ChatResult{Status: "queen", Delivered: delivered}, nil
	}

	return ChatResult{}, ErrChatUnavailable
}

// Stop suspends a live execution. spec.md's own scenario for stop/resume
// (§8, scenario 4) pins this to pause-and-resume, not a terminal cancel.
func (m *Manager) Stop(sessionID, executionID string) error {
	_, worker, err := m.requireWorker(sessionID)
	if err != nil {
		return err
	}
	s, ok := worker.Stream(executionID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrExecutionNotFound, executionID)
	}
	s.Pause()
	return nil
}

// Resume continues a paused live execution (checkpointID == "") or restores
// one from a persisted checkpoint and starts a new Stream for it.
func (m *Manager) Resume(ctx context.Context, sessionID, checkpointID string) (string, error) {
	sess, worker, err := m.requireWorker(sessionID)
	if err != nil {
		return "", err
	}

	if checkpointID == "" {
		for _, s := range worker.Streams() {
			if status, _ := s.Status(); status == graph.ExecutionPaused {
				s.Resume()
				return s.ExecutionID, nil
			}
		}
		return "", fmt.Errorf("%w: no paused execution for session %q", ErrExecutionNotFound, sessionID)
	}

	exec, err := m.restoreExecution(ctx, sess, checkpointID)
	if err != nil {
		return "", err
	}
	s, err := worker.Resume(ctx, exec)
	if err != nil {
		return "", err
	}
	return s.ExecutionID, nil
}

// Replay restores a checkpoint into a fresh, independently-running Stream
// without disturbing any execution already live for the session.
func (m *Manager) Replay(ctx context.Context, sessionID, checkpointID string) (string, error) {
	sess, worker, err := m.requireWorker(sessionID)
	if err != nil {
		return "", err
	}
	exec, err := m.restoreExecution(ctx, sess, checkpointID)
	if err != nil {
		return "", err
	}
	exec.ExecutionID = uuid.NewString()
	s, err := worker.Resume(ctx, exec)
	if err != nil {
		return "", err
	}
	return s.ExecutionID, nil
}

func (m *Manager) restoreExecution(ctx context.Context, sess *Session, checkpointID string) (graph.Execution, error) {
	if m.checkpoints == nil {
		return graph.Execution{}, checkpoint.ErrNotFound
	}
	cp, err := m.checkpoints.Load(ctx, sess.ID, checkpointID)
	if err != nil {
		return graph.Execution{}, err
	}
	sess.shared.Restore(state.Snapshot{Values: cp.SharedStateSnapshot})
	return graph.Execution{
		ExecutionID: cp.ExecutionID,
		CurrentNode: cp.CurrentNode,
		VisitCounts: cp.VisitCounts,
		Outputs:     make(map[string]any),
		Status:      graph.ExecutionPaused,
	}, nil
}

// Checkpoint persists the current snapshot of a live execution.
func (m *Manager) Checkpoint(ctx context.Context, sessionID, executionID string) (string, error) {
	if m.checkpoints == nil {
		return "", checkpoint.ErrNotFound
	}
	sess, worker, err := m.requireWorker(sessionID)
	if err != nil {
		return "", err
	}
	s, ok := worker.Stream(executionID)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrExecutionNotFound, executionID)
	}
	exec := s.Snapshot()
	cp := checkpoint.Checkpoint{
		CheckpointID:        uuid.NewString(),
		SessionID:           sess.ID,
		ExecutionID:         exec.ExecutionID,
		CreatedAt:           time.Now(),
		SharedStateSnapshot: sess.shared.Snapshot().Values,
		CurrentNode:         exec.CurrentNode,
		VisitCounts:         exec.VisitCounts,
	}
	if err := m.checkpoints.Save(ctx, cp); err != nil {
		return "", err
	}
	return cp.CheckpointID, nil
}

// Subscribe registers handler for events matching filter on sessionID's
// bus. An empty filter defaults to eventbus.DefaultClientFilter().
func (m *Manager) Subscribe(sessionID string, filter eventbus.Filter, handler eventbus.Handler) (eventbus.Handle, error) {
	sess, ok := m.Get(sessionID)
	if !ok {
		return eventbus.Handle{}, fmt.Errorf("%w: %q", ErrSessionNotFound, sessionID)
	}
	if len(filter.EventTypes) == 0 {
		filter.EventTypes = eventbus.DefaultClientFilter()
	}
	return sess.bus.Subscribe(filter, handler)
}

// Unsubscribe is idempotent per eventbus.Bus.Unsubscribe.
func (m *Manager) Unsubscribe(sessionID string, h eventbus.Handle) error {
	sess, ok := m.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, sessionID)
	}
	return sess.bus.Unsubscribe(h)
}

func (m *Manager) requireWorker(sessionID string) (*Session, *Worker, error) {
	sess, ok := m.Get(sessionID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrSessionNotFound, sessionID)
	}
	sess.mu.Lock()
	worker := sess.worker
	sess.mu.Unlock()
	if worker == nil {
		return nil, nil, fmt.Errorf("%w: session %q", ErrNoWorker, sessionID)
	}
	return sess, worker, nil
}

// Status reports a session's coarse lifecycle status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// HasWorker reports whether a worker is currently loaded.
func (s *Session) HasWorker() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.worker != nil
}

// Worker returns the currently loaded worker, if any.
func (s *Session) Worker() (*Worker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.worker, s.worker != nil
}

// LoadingWorker reports whether a LoadWorker call is in flight for this
// session, for the HTTP layer's 202 {loading:true} response.
func (s *Session) LoadingWorker() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadingWorker
}
