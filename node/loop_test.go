package node_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hiveagent/hive/eventbus"
	"github.com/hiveagent/hive/judge"
	. "github.com/hiveagent/hive/node"
	"github.com/hiveagent/hive/node/nodetest"
	"github.com/hiveagent/hive/toolreg"
)

func acceptAllJudge() *judge.Protocol {
	return judge.New([]judge.EvaluationRule{
		{ID: "accept", Priority: 1, Action: judge.ACCEPT, Condition: func(judge.EvalContext) bool { return true }},
	}, nil, 0.7)
}

func TestEventLoopNodeSuccessViaSetOutput(t *testing.T) {
	model := nodetest.NewScriptedModel(Turn{
		Role: RoleAssistant,
		ToolCalls: []toolreg.ToolCall{
			{ID: "1", Name: toolreg.SetOutputTool, Arguments: map[string]any{"key": "answer", "value": "42"}},
		},
	})
	tools := nodetest.NewMapToolExecutor(nil)
	loopNode, err := NewEventLoopNode(model, tools, acceptAllJudge(), nil)
	if err != nil {
		t.Fatalf("new event loop node: %v", err)
	}

	bus := eventbus.New(nil)
	req := RunRequest{
		NodeID:        "n1",
		MaxIterations: 5,
		Conversation:  New(),
		Bus:           bus,
	}
	req.OutputKeys = append(req.OutputKeys, OutputKey("answer", false))
	result, err := loopNode.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != NodeStatusSuccess {
		t.Fatalf("expected success, got %s (err=%v)", result.Status, result.Error)
	}
	if result.Outputs["answer"] != "42" {
		t.Fatalf("expected output answer=42, got %v", result.Outputs)
	}
}

func TestEventLoopNodeStallDetection(t *testing.T) {
	sameText := Turn{Role: RoleAssistant, Content: "I am thinking about it."}
	model := nodetest.NewScriptedModel(sameText, sameText, sameText)
	tools := nodetest.NewMapToolExecutor(nil)
	loopNode, err := NewEventLoopNode(model, tools, acceptAllJudge(), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	// The model never sets the required key, so each ACCEPT is turned into
	// a retry and the node keeps iterating until the stall check fires.
	req := RunRequest{
		NodeID:        "n1",
		MaxIterations: 10,
		Conversation:  New(),
		Bus:           eventbus.New(nil),
	}
	req.OutputKeys = append(req.OutputKeys, OutputKey("answer", false))
	result, err := loopNode.Run(context.Background(), req)
	if !errors.Is(err, ErrStalled) {
		t.Fatalf("expected ErrStalled, got %v", err)
	}
	if result.Status != NodeStatusFailed {
		t.Fatalf("expected failed status, got %s", result.Status)
	}
}

func TestEventLoopNodeToolDoomLoop(t *testing.T) {
	call := toolreg.ToolCall{ID: "x", Name: "search", Arguments: map[string]any{"q": "foo"}}
	turn := Turn{Role: RoleAssistant, ToolCalls: []toolreg.ToolCall{call}}
	model := nodetest.NewScriptedModel(turn, turn, turn, turn, turn)
	tools := nodetest.NewMapToolExecutor(map[string][]toolreg.ToolResult{
		"search": {
			{Content: "ok"}, {Content: "ok"}, {Content: "ok"}, {Content: "ok"}, {Content: "ok"},
		},
	})
	loopNode, err := NewEventLoopNode(model, tools, acceptAllJudge(), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	result, err := loopNode.Run(context.Background(), RunRequest{
		NodeID:        "n1",
		MaxIterations: 10,
		Conversation:  New(),
		Bus:           eventbus.New(nil),
	})
	if !errors.Is(err, ErrToolDoomLoop) {
		t.Fatalf("expected ErrToolDoomLoop, got %v", err)
	}
	if result.Status != NodeStatusFailed {
		t.Fatalf("expected failed status, got %s", result.Status)
	}
}

func TestEventLoopNodeIterationBudgetExhausted(t *testing.T) {
	turn := Turn{Role: RoleAssistant, ToolCalls: []toolreg.ToolCall{{ID: "1", Name: "noop"}}}
	turns := make([]Turn, 0, 5)
	for i := 0; i < 5; i++ {
		turns = append(turns, turn)
	}
	model := nodetest.NewScriptedModel(turns...)
	results := make([]toolreg.ToolResult, 0, 5)
	for i := 0; i < 5; i++ {
		results = append(results, toolreg.ToolResult{Content: "ok"})
	}
	tools := nodetest.NewMapToolExecutor(map[string][]toolreg.ToolResult{"noop": results})
	loopNode, err := NewEventLoopNode(model, tools, acceptAllJudge(), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	result, err := loopNode.Run(context.Background(), RunRequest{
		NodeID:        "n1",
		MaxIterations: 2,
		Conversation:  New(),
		Bus:           eventbus.New(nil),
	})
	if !errors.Is(err, ErrIterationBudgetExhausted) {
		t.Fatalf("expected ErrIterationBudgetExhausted, got %v", err)
	}
	if result.Status != NodeStatusFailed {
		t.Fatalf("expected failed status, got %s", result.Status)
	}
}

func TestEventLoopNodeClientFacingAwaitsInjection(t *testing.T) {
	model := nodetest.NewScriptedModel(
		Turn{Role: RoleAssistant, Content: "what is your name?"},
		Turn{Role: RoleAssistant, ToolCalls: []toolreg.ToolCall{
			{ID: "1", Name: toolreg.SetOutputTool, Arguments: map[string]any{"key": "name", "value": "Alice"}},
		}},
	)
	tools := nodetest.NewMapToolExecutor(nil)
	loopNode, err := NewEventLoopNode(model, tools, acceptAllJudge(), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	req := RunRequest{
		NodeID:        "n1",
		ClientFacing:  true,
		MaxIterations: 5,
		Conversation:  New(),
		Bus:           eventbus.New(nil),
		Await: func(ctx context.Context) (string, error) {
			return "Alice", nil
		},
	}
	req.OutputKeys = append(req.OutputKeys, OutputKey("name", false))
	result, err := loopNode.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != NodeStatusSuccess || result.Outputs["name"] != "Alice" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestEventLoopNodeCancellation(t *testing.T) {
	model := nodetest.NewScriptedModel(Turn{Role: RoleAssistant, Content: "hi"})
	tools := nodetest.NewMapToolExecutor(nil)
	loopNode, err := NewEventLoopNode(model, tools, acceptAllJudge(), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	result, _ := loopNode.Run(ctx, RunRequest{
		NodeID:       "n1",
		ClientFacing: true,
		Conversation: New(),
		Bus:          eventbus.New(nil),
	})
	if result.Status != NodeStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", result.Status)
	}
}
