// Package nodetest provides a deterministic test harness for EventLoopNode:
// a scripted model that replays a fixed sequence of turns and a map-backed
// tool executor, mirroring the teacher corpus's adapters/modeltest package.
package nodetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/hiveagent/hive/node"
	"github.com/hiveagent/hive/toolreg"
)

// ScriptedModel replays Turns in order, one per Stream call, ignoring the
// request's Messages/Tools. It is safe for concurrent use by a single
// EventLoopNode run (calls are serialized by the loop itself).
type ScriptedModel struct {
	mu    sync.Mutex
	turns []node.Turn
	next  int
}

// NewScriptedModel returns a model that yields turns in order.
func NewScriptedModel(turns ...node.Turn) *ScriptedModel {
	return &ScriptedModel{turns: turns}
}

func (m *ScriptedModel) Stream(ctx context.Context, _ node.ModelRequest) (<-chan node.StreamChunk, <-chan error) {
	chunks := make(chan node.StreamChunk, 2)
	errs := make(chan error, 1)

	m.mu.Lock()
	if m.next >= len(m.turns) {
		m.mu.Unlock()
		errs <- fmt.Errorf("nodetest: scripted model exhausted after %d turns", len(m.turns))
		close(chunks)
		close(errs)
		return chunks, errs
	}
	turn := m.turns[m.next]
	m.next++
	m.mu.Unlock()

	go func() {
		defer close(chunks)
		defer close(errs)
		if turn.Content != "" {
			select {
			case chunks <- node.StreamChunk{TextDelta: turn.Content}:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		select {
		case chunks <- node.StreamChunk{Final: true, Message: turn}:
		case <-ctx.Done():
			errs <- ctx.Err()
		}
	}()
	return chunks, errs
}

// MapToolExecutor resolves tool calls by name against a fixed map of
// canned results, optionally a sequence per name for multi-call scripts.
type MapToolExecutor struct {
	mu      sync.Mutex
	results map[string][]toolreg.ToolResult
}

// NewMapToolExecutor builds an executor from name -> ordered results.
func NewMapToolExecutor(results map[string][]toolreg.ToolResult) *MapToolExecutor {
	return &MapToolExecutor{results: results}
}

func (e *MapToolExecutor) Execute(_ context.Context, call toolreg.ToolCall) (toolreg.ToolResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	queue := e.results[call.Name]
	if len(queue) == 0 {
		return toolreg.ToolResult{}, fmt.Errorf("nodetest: no scripted result for tool %q", call.Name)
	}
	result := queue[0]
	e.results[call.Name] = queue[1:]
	if result.CallID == "" {
		result.CallID = call.ID
	}
	if result.Name == "" {
		result.Name = call.Name
	}
	return result, nil
}
