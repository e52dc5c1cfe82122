// Package toolreg is the tool registry: name to handler, plus the two
// synthetic tools (set_output, escalate_to_coder) that every EventLoopNode
// advertises. Synthetic tools are real registry entries — so LLM-side
// prompts that advertise them stay truthful — but EventLoopNode
// short-circuits their calls into the runtime instead of invoking a
// registered handler for them.
package toolreg

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrToolUnregistered = errors.New("toolreg: tool is not registered")
	ErrNilHandler       = errors.New("toolreg: tool handler is nil")
	ErrToolNameEmpty    = errors.New("toolreg: tool name is empty")
)

const (
	SetOutputTool       = "set_output"
	EscalateToCoderTool = "escalate_to_coder"
)

// ToolDefinition declares a callable capability exposed to the model.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolCall is requested by an assistant turn.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolResult is the normalized output of executing one ToolCall.
type ToolResult struct {
	CallID  string
	Name    string
	Content string
	IsError bool
}

// Handler executes one tool call using parsed arguments and returns the
// tool's text content.
type Handler func(ctx context.Context, arguments map[string]any) (string, error)

// Registry stores handlers by tool name and definitions for advertisement.
type Registry struct {
	mu          sync.RWMutex
	handlers    map[string]Handler
	definitions map[string]ToolDefinition
	synthetic   map[string]bool
}

// New creates a Registry pre-populated with the two synthetic tool
// definitions. Their handlers are intentionally absent: EventLoopNode
// intercepts calls to these names before ever consulting the registry.
func New() *Registry {
	r := &Registry{
		handlers:    make(map[string]Handler),
		definitions: make(map[string]ToolDefinition),
		synthetic:   make(map[string]bool),
	}
	r.registerSynthetic(ToolDefinition{
		Name:        SetOutputTool,
		Description: "Record a node output key. This is the only way to set an output key.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"key":   map[string]any{"type": "string"},
				"value": map[string]any{},
			},
			"required": []string{"key", "value"},
		},
	})
	r.registerSynthetic(ToolDefinition{
		Name:        EscalateToCoderTool,
		Description: "Escalate this node to a human or higher-capability agent, ending the node as escalated.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"reason":  map[string]any{"type": "string"},
				"context": map[string]any{"type": "string"},
			},
			"required": []string{"reason"},
		},
	})
	return r
}

func (r *Registry) registerSynthetic(def ToolDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.definitions[def.Name] = def
	r.synthetic[def.Name] = true
}

// Register adds a real tool with its definition and handler.
func (r *Registry) Register(def ToolDefinition, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.definitions[def.Name] = def
	r.handlers[def.Name] = handler
}

// IsSynthetic reports whether name is one of the engine's synthetic tools.
func (r *Registry) IsSynthetic(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.synthetic[name]
}

// Definitions returns the definitions for the given tool names, in order,
// skipping unknown names. Pass nil to get every registered definition.
func (r *Registry) Definitions(names []string) []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if names == nil {
		out := make([]ToolDefinition, 0, len(r.definitions))
		for _, def := range r.definitions {
			out = append(out, def)
		}
		return out
	}
	out := make([]ToolDefinition, 0, len(names))
	for _, name := range names {
		if def, ok := r.definitions[name]; ok {
			out = append(out, def)
		}
	}
	return out
}

// Execute runs a non-synthetic tool call. Callers must intercept synthetic
// tool names before calling Execute; calling it with a synthetic name
// returns ErrToolUnregistered since no handler is ever registered for one.
func (r *Registry) Execute(ctx context.Context, call ToolCall) (ToolResult, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ToolResult{}, ctxErr
	}
	if call.Name == "" {
		return ToolResult{}, fmt.Errorf("%w: call %q", ErrToolNameEmpty, call.ID)
	}

	r.mu.RLock()
	handler, ok := r.handlers[call.Name]
	r.mu.RUnlock()
	if !ok {
		return ToolResult{}, fmt.Errorf("%w: %q", ErrToolUnregistered, call.Name)
	}
	if handler == nil {
		return ToolResult{}, fmt.Errorf("%w: %q", ErrNilHandler, call.Name)
	}

	content, err := handler(ctx, call.Arguments)
	if err != nil {
		return ToolResult{}, err
	}
	return ToolResult{CallID: call.ID, Name: call.Name, Content: content}, nil
}
