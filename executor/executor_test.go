package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hiveagent/hive/eventbus"
	"github.com/hiveagent/hive/graph"
	"github.com/hiveagent/hive/judge"
	"github.com/hiveagent/hive/node"
	"github.com/hiveagent/hive/node/nodetest"
	"github.com/hiveagent/hive/state"
	"github.com/hiveagent/hive/toolreg"
)

func acceptAllJudge() *judge.Protocol {
	return judge.New([]judge.EvaluationRule{
		{ID: "accept", Priority: 1, Action: judge.ACCEPT, Condition: func(judge.EvalContext) bool { return true }},
	}, nil, 0.7)
}

func setOutputNode(id, key, value string) (graph.NodeSpec, *nodetest.ScriptedModel) {
	model := nodetest.NewScriptedModel(node.Turn{
		Role: node.RoleAssistant,
		ToolCalls: []toolreg.ToolCall{
			{ID: "1", Name: toolreg.SetOutputTool, Arguments: map[string]any{"key": key, "value": value}},
		},
	})
	spec := graph.NodeSpec{
		ID:            id,
		Type:          graph.NodeTypeEventLoop,
		MaxIterations: 5,
		OutputKeys:    []graph.OutputKey{{Name: key}},
	}
	return spec, model
}

func newLoopRunner(t *testing.T, model *nodetest.ScriptedModel) *node.EventLoopNode {
	t.Helper()
	loopNode, err := node.NewEventLoopNode(model, nodetest.NewMapToolExecutor(nil), acceptAllJudge(), nil)
	if err != nil {
		t.Fatalf("new event loop node: %v", err)
	}
	return loopNode
}

func TestExecuteLinearGraph(t *testing.T) {
	a, modelA := setOutputNode("a", "first", "1")
	b, modelB := setOutputNode("b", "second", "2")
	g := graph.GraphSpec{
		ID:        "g1",
		EntryNode: "a",
		Nodes:     []graph.NodeSpec{a, b},
		Edges:     []graph.EdgeSpec{{Source: "a", Target: "b", Condition: graph.EdgeOnSuccess}},
	}

	bus := eventbus.New(nil)
	sharedState := state.New(state.Shared, bus)

	callCount := 0
	eventLoop := &dispatchingRunner{byNode: map[string]func() (node.NodeResult, error){
		"a": scriptedRun(newLoopRunner(t, modelA)),
		"b": scriptedRun(newLoopRunner(t, modelB)),
	}, calls: &callCount}

	x := New(eventLoop, nil, nil, nil, nil)
	exec := graph.NewExecution("exec-1", "g1", "entry", nil)
	final, err := x.Execute(context.Background(), g, exec, bus, sharedState)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if final.Status != graph.ExecutionCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}
	if final.Outputs["first"] != "1" || final.Outputs["second"] != "2" {
		t.Fatalf("unexpected outputs: %+v", final.Outputs)
	}
	if callCount != 2 {
		t.Fatalf("expected 2 node dispatches, got %d", callCount)
	}
}

func TestExecuteNodeRetryThenSucceeds(t *testing.T) {
	attempts := 0
	failThenSucceed := &dispatchingRunner{byNode: map[string]func() (node.NodeResult, error){
		"a": func() (node.NodeResult, error) {
			attempts++
			if attempts < 2 {
				return node.NodeResult{Status: node.NodeStatusFailed}, nil
			}
			return node.NodeResult{Status: node.NodeStatusSuccess, Outputs: map[string]any{"ok": true}}, nil
		},
	}, calls: new(int)}

	g := graph.GraphSpec{
		ID:        "g2",
		EntryNode: "a",
		Nodes:     []graph.NodeSpec{{ID: "a", Type: graph.NodeTypeEventLoop, MaxRetries: 2}},
	}
	bus := eventbus.New(nil)
	sharedState := state.New(state.Shared, bus)
	x := New(failThenSucceed, nil, nil, nil, nil)

	final, err := x.Execute(context.Background(), g, graph.NewExecution("exec-2", "g2", "entry", nil), bus, sharedState)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if final.Status != graph.ExecutionCompleted {
		t.Fatalf("expected completed after retry, got %s", final.Status)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestExecuteNodeFailsWithNoFallbackEdge(t *testing.T) {
	alwaysFails := &dispatchingRunner{byNode: map[string]func() (node.NodeResult, error){
		"a": func() (node.NodeResult, error) { return node.NodeResult{Status: node.NodeStatusFailed}, nil },
	}, calls: new(int)}

	g := graph.GraphSpec{ID: "g3", EntryNode: "a", Nodes: []graph.NodeSpec{{ID: "a", Type: graph.NodeTypeEventLoop}}}
	bus := eventbus.New(nil)
	sharedState := state.New(state.Shared, bus)
	x := New(alwaysFails, nil, nil, nil, nil)

	_, err := x.Execute(context.Background(), g, graph.NewExecution("exec-3", "g3", "entry", nil), bus, sharedState)
	if !errors.Is(err, ErrNodeFailedNoFallback) {
		t.Fatalf("expected ErrNodeFailedNoFallback, got %v", err)
	}
}

func TestExecuteVisitCapExceeded(t *testing.T) {
	loopsForever := &dispatchingRunner{byNode: map[string]func() (node.NodeResult, error){
		"a": func() (node.NodeResult, error) { return node.NodeResult{Status: node.NodeStatusSuccess}, nil },
	}, calls: new(int)}

	g := graph.GraphSpec{
		ID:        "g4",
		EntryNode: "a",
		Nodes:     []graph.NodeSpec{{ID: "a", Type: graph.NodeTypeEventLoop, MaxNodeVisits: 1}},
		Edges:     []graph.EdgeSpec{{Source: "a", Target: "a", Condition: graph.EdgeOnSuccess}},
	}
	bus := eventbus.New(nil)
	sharedState := state.New(state.Shared, bus)
	x := New(loopsForever, nil, nil, nil, nil)

	_, err := x.Execute(context.Background(), g, graph.NewExecution("exec-4", "g4", "entry", nil), bus, sharedState)
	if !errors.Is(err, ErrVisitCapExceeded) {
		t.Fatalf("expected ErrVisitCapExceeded, got %v", err)
	}
}

func TestExecuteParallelFanOutConflictUnderShared(t *testing.T) {
	branches := &dispatchingRunner{byNode: map[string]func() (node.NodeResult, error){
		"left":  func() (node.NodeResult, error) { return node.NodeResult{Status: node.NodeStatusSuccess, Outputs: map[string]any{"winner": "left"}}, nil },
		"right": func() (node.NodeResult, error) { return node.NodeResult{Status: node.NodeStatusSuccess, Outputs: map[string]any{"winner": "right"}}, nil },
	}, calls: new(int)}

	g := graph.GraphSpec{
		ID:        "g5",
		EntryNode: "start",
		Nodes: []graph.NodeSpec{
			{ID: "start", Type: graph.NodeTypeEventLoop},
			{ID: "left", Type: graph.NodeTypeEventLoop},
			{ID: "right", Type: graph.NodeTypeEventLoop},
		},
		Edges: []graph.EdgeSpec{
			{Source: "start", Target: "left", Condition: graph.EdgeAlways, Priority: 1},
			{Source: "start", Target: "right", Condition: graph.EdgeAlways, Priority: 1},
		},
	}
	branches.byNode["start"] = func() (node.NodeResult, error) { return node.NodeResult{Status: node.NodeStatusSuccess}, nil }

	bus := eventbus.New(nil)
	sharedState := state.New(state.Shared, bus)
	x := New(branches, nil, nil, nil, nil)

	conflict := make(chan eventbus.Event, 1)
	_, subErr := bus.Subscribe(eventbus.Filter{EventTypes: []eventbus.EventType{eventbus.EventStateConflict}}, func(e eventbus.Event) {
		conflict <- e
	})
	if subErr != nil {
		t.Fatalf("subscribe: %v", subErr)
	}

	_, err := x.Execute(context.Background(), g, graph.NewExecution("exec-5", "g5", "entry", nil), bus, sharedState)
	if !errors.Is(err, ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict, got %v", err)
	}

	select {
	case e := <-conflict:
		if e.Data["key"] != "winner" {
			t.Fatalf("expected conflict event for key=winner, got %v", e.Data["key"])
		}
	case <-time.After(time.Second):
		t.Fatal("expected state_conflict event, none delivered")
	}
}

func TestExecuteParallelFanOutSynchronizedLastWriterWins(t *testing.T) {
	branches := &dispatchingRunner{byNode: map[string]func() (node.NodeResult, error){
		"start": func() (node.NodeResult, error) { return node.NodeResult{Status: node.NodeStatusSuccess}, nil },
		"left":  func() (node.NodeResult, error) { return node.NodeResult{Status: node.NodeStatusSuccess, Outputs: map[string]any{"winner": "left"}}, nil },
		"right": func() (node.NodeResult, error) { return node.NodeResult{Status: node.NodeStatusSuccess, Outputs: map[string]any{"winner": "right"}}, nil },
	}, calls: new(int)}

	g := graph.GraphSpec{
		ID:        "g6",
		EntryNode: "start",
		Nodes: []graph.NodeSpec{
			{ID: "start", Type: graph.NodeTypeEventLoop},
			{ID: "left", Type: graph.NodeTypeEventLoop},
			{ID: "right", Type: graph.NodeTypeEventLoop},
		},
		Edges: []graph.EdgeSpec{
			{Source: "start", Target: "left", Condition: graph.EdgeAlways, Priority: 1},
			{Source: "start", Target: "right", Condition: graph.EdgeAlways, Priority: 1},
		},
	}

	bus := eventbus.New(nil)
	sharedState := state.New(state.Synchronized, bus)
	x := New(branches, nil, nil, nil, nil)

	final, err := x.Execute(context.Background(), g, graph.NewExecution("exec-6", "g6", "entry", nil), bus, sharedState)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if final.Status != graph.ExecutionCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}
	if final.Outputs["winner"] != "right" {
		t.Fatalf("expected the later branch's winner=right to survive the merge: %+v", final.Outputs)
	}
}

func TestExecuteFunctionNode(t *testing.T) {
	g := graph.GraphSpec{ID: "g7", EntryNode: "fn", Nodes: []graph.NodeSpec{{ID: "fn", Type: graph.NodeTypeFunction}}}
	fns := map[string]FunctionHandler{
		"fn": func(ctx context.Context, execID string, sharedState *state.SharedState) (map[string]any, error) {
			return map[string]any{"done": true}, nil
		},
	}
	bus := eventbus.New(nil)
	sharedState := state.New(state.Shared, bus)
	x := New(nil, fns, nil, nil, nil)

	final, err := x.Execute(context.Background(), g, graph.NewExecution("exec-7", "g7", "entry", nil), bus, sharedState)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if final.Outputs["done"] != true {
		t.Fatalf("expected function output to be applied, got %+v", final.Outputs)
	}
}

// dispatchingRunner is a test double for EventLoopRunner that looks up its
// canned result by req.NodeID, letting a single GraphExecutor.Execute call
// exercise several distinctly-behaving nodes.
type dispatchingRunner struct {
	byNode map[string]func() (node.NodeResult, error)
	calls  *int
}

func (d *dispatchingRunner) Run(ctx context.Context, req node.RunRequest) (node.NodeResult, error) {
	*d.calls++
	fn, ok := d.byNode[req.NodeID]
	if !ok {
		return node.NodeResult{Status: node.NodeStatusFailed}, errors.New("dispatchingRunner: no script for node " + req.NodeID)
	}
	return fn()
}

// scriptedRun adapts a real *node.EventLoopNode into the byNode map's
// niladic function shape used above.
func scriptedRun(n *node.EventLoopNode) func() (node.NodeResult, error) {
	return func() (node.NodeResult, error) {
		return n.Run(context.Background(), node.RunRequest{
			NodeID:        "unused",
			MaxIterations: 5,
			Conversation:  node.New(),
			Bus:           eventbus.New(nil),
		})
	}
}
