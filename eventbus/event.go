// Package eventbus implements the typed publish/subscribe core that every
// other component uses to observe runtime state changes.
package eventbus

import "time"

// EventType is a member of the closed set of event names the runtime emits.
type EventType string

const (
	EventExecutionStarted   EventType = "execution_started"
	EventExecutionCompleted EventType = "execution_completed"
	EventExecutionFailed    EventType = "execution_failed"
	EventExecutionPaused    EventType = "execution_paused"
	EventExecutionResumed   EventType = "execution_resumed"

	EventNodeLoopStarted   EventType = "node_loop_started"
	EventNodeLoopIteration EventType = "node_loop_iteration"
	EventNodeLoopCompleted EventType = "node_loop_completed"

	EventLLMTextDelta         EventType = "llm_text_delta"
	EventLLMReasoningDelta    EventType = "llm_reasoning_delta"
	EventToolCallStarted      EventType = "tool_call_started"
	EventToolCallCompleted    EventType = "tool_call_completed"
	EventClientOutputDelta    EventType = "client_output_delta"
	EventClientInputRequested EventType = "client_input_requested"

	EventNodeInternalOutput EventType = "node_internal_output"
	EventNodeInputBlocked   EventType = "node_input_blocked"
	EventNodeStalled        EventType = "node_stalled"
	EventNodeRetry          EventType = "node_retry"
	EventNodeToolDoomLoop   EventType = "node_tool_doom_loop"

	EventJudgeVerdict  EventType = "judge_verdict"
	EventOutputKeySet  EventType = "output_key_set"
	EventEdgeTraversed EventType = "edge_traversed"

	EventStateChanged  EventType = "state_changed"
	EventStateConflict EventType = "state_conflict"

	EventGoalProgress EventType = "goal_progress"
	EventGoalAchieved EventType = "goal_achieved"

	EventConstraintViolation        EventType = "constraint_violation"
	EventWorkerEscalationTicket     EventType = "worker_escalation_ticket"
	EventQueenInterventionRequested EventType = "queen_intervention_requested"
	EventEscalationRequested        EventType = "escalation_requested"
	EventWebhookReceived            EventType = "webhook_received"
	EventCustom                     EventType = "custom"

	// Reserved for future node-loop/context features; no current emitter.
	EventStreamStarted    EventType = "stream_started"
	EventContextCompacted EventType = "context_compacted"
)

// Event is the envelope every component publishes. The identity tuple
// (GraphID, StreamID, NodeID, ExecutionID) uniquely locates an event.
type Event struct {
	Type          EventType      `json:"type"`
	StreamID      string         `json:"stream_id"`
	NodeID        string         `json:"node_id,omitempty"`
	ExecutionID   string         `json:"execution_id,omitempty"`
	GraphID       string         `json:"graph_id,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlation_id,omitempty"`
}

// Clone returns a deep copy safe to hand to independent subscribers.
func Clone(in Event) Event {
	out := in
	if in.Data != nil {
		out.Data = make(map[string]any, len(in.Data))
		for k, v := range in.Data {
			out.Data[k] = v
		}
	}
	return out
}
