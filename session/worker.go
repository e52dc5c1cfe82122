package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hiveagent/hive/eventbus"
	"github.com/hiveagent/hive/executor"
	"github.com/hiveagent/hive/graph"
	"github.com/hiveagent/hive/judge"
	"github.com/hiveagent/hive/node"
	"github.com/hiveagent/hive/state"
	"github.com/hiveagent/hive/toolreg"
)

// AgentSpec describes the graphs, model, and tools load_worker wires up for
// one session. A worker may hold more than one graph; entry points across
// all of them share one trigger namespace.
type AgentSpec struct {
	ID              string
	Graphs          []graph.GraphSpec
	Model           node.Model
	Tools           *toolreg.Registry
	ToolExecutor    node.ToolExecutor // defaults to Tools if nil and Tools is set
	JudgeProtocol   *judge.Protocol
	Router          executor.RouterResolver
	FunctionsByNode map[string]map[string]executor.FunctionHandler // graphID -> nodeID -> handler
}

type entryPointBinding struct {
	graphID    string
	targetNode string
}

// Worker is the optional per-session runtime loading one or more graphs,
// created by Manager.LoadWorker and destroyed by Manager.UnloadWorker.
type Worker struct {
	id          string
	spec        AgentSpec
	graphs      map[string]graph.GraphSpec
	executors   map[string]*executor.GraphExecutor
	entryPoints map[string]entryPointBinding
	bus         *eventbus.Bus
	shared      *state.SharedState
	logger      *slog.Logger

	mu      sync.Mutex
	streams map[string]*Stream
}

func newWorker(spec AgentSpec, bus *eventbus.Bus, shared *state.SharedState, logger *slog.Logger) (*Worker, error) {
	if len(spec.Graphs) == 0 {
		return nil, fmt.Errorf("%w: agent spec declares no graphs", ErrConfigError)
	}

	w := &Worker{
		id:          spec.ID,
		spec:        spec,
		graphs:      make(map[string]graph.GraphSpec, len(spec.Graphs)),
		executors:   make(map[string]*executor.GraphExecutor, len(spec.Graphs)),
		entryPoints: make(map[string]entryPointBinding),
		bus:         bus,
		shared:      shared,
		logger:      logger,
		streams:     make(map[string]*Stream),
	}

	toolExec := spec.ToolExecutor
	if toolExec == nil && spec.Tools != nil {
		toolExec = registryToolExecutor{spec.Tools}
	}

	for _, g := range spec.Graphs {
		if err := graph.Validate(g); err != nil {
			return nil, err
		}
		w.graphs[g.ID] = g
		for _, ep := range g.EntryPoints {
			w.entryPoints[ep.ID] = entryPointBinding{graphID: g.ID, targetNode: ep.TargetNode}
		}

		var eventLoop executor.EventLoopRunner
		if spec.Model != nil && toolExec != nil {
			loopNode, err := node.NewEventLoopNode(spec.Model, toolExec, spec.JudgeProtocol, logger)
			if err != nil {
				return nil, err
			}
			eventLoop = loopNode
		}

		var toolDefs func(string) []toolreg.ToolDefinition
		if spec.Tools != nil {
			toolDefs = func(nodeID string) []toolreg.ToolDefinition {
				n, ok := g.NodeByID(nodeID)
				if !ok {
					return nil
				}
				return spec.Tools.Definitions(n.PermittedTools)
			}
		}

		functions := spec.FunctionsByNode[g.ID]

		w.executors[g.ID] = executor.New(eventLoop, functions, toolDefs, spec.Router, logger)
	}

	return w, nil
}

// registryToolExecutor adapts *toolreg.Registry to node.ToolExecutor.
type registryToolExecutor struct{ reg *toolreg.Registry }

func (r registryToolExecutor) Execute(ctx context.Context, call toolreg.ToolCall) (toolreg.ToolResult, error) {
	return r.reg.Execute(ctx, call)
}

// Trigger starts a new Stream at the node bound to entryPointID.
func (w *Worker) Trigger(ctx context.Context, entryPointID string, input map[string]any) (*Stream, error) {
	binding, ok := w.entryPoints[entryPointID]
	if !ok {
		return nil, fmt.Errorf("%w: entry point %q", ErrEntryPointNotFound, entryPointID)
	}
	g := w.graphs[binding.graphID]
	gx := w.executors[binding.graphID]

	s := newStream(w.bus, gx, g, w.shared, entryPointID, w.logger)
	initial := graph.NewExecution(s.ExecutionID, g.ID, entryPointID, input)
	initial.CurrentNode = binding.targetNode

	w.mu.Lock()
	w.streams[s.ExecutionID] = s
	w.mu.Unlock()

	s.Start(ctx, initial)
	return s, nil
}

// Resume restarts execution from a restored checkpoint's graph.Execution.
func (w *Worker) Resume(ctx context.Context, exec graph.Execution) (*Stream, error) {
	g, ok := w.graphs[exec.GraphID]
	if !ok {
		return nil, fmt.Errorf("%w: graph %q", ErrGraphNotFound, exec.GraphID)
	}
	gx := w.executors[exec.GraphID]
	s := newStream(w.bus, gx, g, w.shared, exec.StreamID, w.logger)
	s.ExecutionID = exec.ExecutionID
	if exec.Status.IsTerminal() {
		exec.Status = graph.ExecutionPaused
	}

	w.mu.Lock()
	w.streams[s.ExecutionID] = s
	w.mu.Unlock()

	s.Start(ctx, exec)
	return s, nil
}

// Graph returns the loaded GraphSpec for id, for topology inspection.
func (w *Worker) Graph(id string) (graph.GraphSpec, bool) {
	g, ok := w.graphs[id]
	return g, ok
}

// Stream looks up a live or completed execution by id.
func (w *Worker) Stream(executionID string) (*Stream, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.streams[executionID]
	return s, ok
}

// BlockedStream returns the first stream currently blocked on
// client_input_requested, used by chat-routing priority.
func (w *Worker) BlockedStream() (*Stream, string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.streams {
		if nodeID, ok := s.BlockedNode(); ok {
			return s, nodeID, true
		}
	}
	return nil, "", false
}

// Streams returns every stream the worker has ever started, live or done.
func (w *Worker) Streams() []*Stream {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*Stream, 0, len(w.streams))
	for _, s := range w.streams {
		out = append(out, s)
	}
	return out
}

// Shutdown cancels every live stream.
func (w *Worker) Shutdown() {
	w.mu.Lock()
	streams := make([]*Stream, 0, len(w.streams))
	for _, s := range w.streams {
		streams = append(streams, s)
	}
	w.mu.Unlock()
	for _, s := range streams {
		s.Cancel()
	}
}
