package eventbus

// Filter selects which published events reach a subscription. All set
// fields are AND-combined; EventTypes is OR-combined internally (an event
// matches if its type is any of the listed types). A zero Filter matches
// every event.
type Filter struct {
	EventTypes  []EventType
	StreamID    string
	NodeID      string
	ExecutionID string
	GraphID     string
}

func (f Filter) matches(e Event) bool {
	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if t == e.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.StreamID != "" && f.StreamID != e.StreamID {
		return false
	}
	if f.NodeID != "" && f.NodeID != e.NodeID {
		return false
	}
	if f.ExecutionID != "" && f.ExecutionID != e.ExecutionID {
		return false
	}
	if f.GraphID != "" && f.GraphID != e.GraphID {
		return false
	}
	return true
}

// DefaultClientFilter is the canonical set of client-relevant event types
// an SSE subscription defaults to when the caller supplies no EventTypes.
func DefaultClientFilter() []EventType {
	return []EventType{
		EventExecutionStarted, EventExecutionCompleted, EventExecutionFailed,
		EventExecutionPaused, EventExecutionResumed,
		EventNodeLoopStarted, EventNodeLoopIteration, EventNodeLoopCompleted,
		EventClientOutputDelta, EventClientInputRequested,
		EventJudgeVerdict, EventOutputKeySet, EventEdgeTraversed,
		EventStateConflict, EventGoalProgress, EventGoalAchieved,
		EventConstraintViolation, EventWorkerEscalationTicket,
		EventQueenInterventionRequested, EventEscalationRequested,
	}
}
