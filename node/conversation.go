// Package node implements EventLoopNode, the bounded multi-turn LLM+tool
// loop that drives one node invocation, plus NodeConversation, the
// append-only turn log it runs over.
package node

import (
	"sync"
	"time"

	"github.com/hiveagent/hive/toolreg"
)

// Role identifies the author of a Turn.
type Role string

const (
	RoleSystem     Role = "system"
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool_result"
)

// Turn is one entry in a NodeConversation.
type Turn struct {
	Role       Role
	Content    string
	Metadata   map[string]any
	Timestamp  time.Time
	ToolCalls  []toolreg.ToolCall // set on assistant turns that request tools
	ToolCallID string             // set on tool_result turns
	ToolName   string             // set on tool_result turns
	IsError    bool               // set on tool_result turns
}

// NodeConversation is the append-only turn log for one in-flight node
// invocation. It is cleared when the node completes and is not persisted
// across node boundaries; its declared output keys are summarized into
// shared state instead.
type NodeConversation struct {
	mu    sync.Mutex
	turns []Turn
}

// New creates an empty NodeConversation.
func New() *NodeConversation {
	return &NodeConversation{}
}

// Append adds a turn, stamping Timestamp if unset.
func (c *NodeConversation) Append(t Turn) {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, t)
}

// Turns returns a copy of the turn log.
func (c *NodeConversation) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len reports the number of turns recorded so far.
func (c *NodeConversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// Clear empties the turn log. Called when the node completes.
func (c *NodeConversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = nil
}

// LastAssistantTexts returns up to n of the most recent assistant turns'
// Content, most recent last, used by stall detection.
func (c *NodeConversation) LastAssistantTexts(n int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, n)
	for i := len(c.turns) - 1; i >= 0 && len(out) < n; i-- {
		if c.turns[i].Role == RoleAssistant {
			out = append([]string{c.turns[i].Content}, out...)
		}
	}
	return out
}
