package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hiveagent/hive/eventbus"
	"github.com/hiveagent/hive/judge"
	"github.com/hiveagent/hive/policy/retry"
	"github.com/hiveagent/hive/toolreg"
)

// DefaultMaxRetries is the transient-LLM-error retry budget used when a
// RunRequest does not set one.
const DefaultMaxRetries = 3

// PauseGate blocks until the owning ExecutionStream is not paused, or
// returns ctx.Err() if ctx is done first. A nil PauseGate never blocks.
type PauseGate func(ctx context.Context) error

// InputAwait blocks awaiting an injected chat message for a node suspended
// on client_input_requested. It returns ctx.Err() if ctx is done first.
type InputAwait func(ctx context.Context) (string, error)

// RunRequest is EventLoopNode's per-invocation input.
type RunRequest struct {
	NodeID          string
	SystemPrompt    string
	ClientFacing    bool
	MaxIterations   int // 0 = unbounded
	MaxRetries      int // 0 = DefaultMaxRetries
	OutputKeys      []graphOutputKey
	Conversation    *NodeConversation
	ToolDefinitions []toolreg.ToolDefinition
	Bus             *eventbus.Bus // already scoped to graph_id/stream_id
	ExecutionID     string
	SuccessCriteria string
	Principles      string
	PauseGate       PauseGate
	Await           InputAwait
}

// graphOutputKey mirrors graph.OutputKey's shape without importing graph,
// to keep node free of a dependency on the graph package; executor converts.
type graphOutputKey struct {
	Name     string
	Nullable bool
}

// OutputKey constructs a graphOutputKey; executor uses this when building a RunRequest.
func OutputKey(name string, nullable bool) graphOutputKey {
	return graphOutputKey{Name: name, Nullable: nullable}
}

// EventLoopNode drives one node's bounded LLM+tool loop.
type EventLoopNode struct {
	model  Model
	tools  ToolExecutor
	judge  *judge.Protocol
	logger *slog.Logger
}

// NewEventLoopNode constructs an EventLoopNode. judgeProtocol may be nil,
// in which case every non-implicit iteration is treated as RETRY.
func NewEventLoopNode(model Model, tools ToolExecutor, judgeProtocol *judge.Protocol, logger *slog.Logger) (*EventLoopNode, error) {
	if model == nil {
		return nil, ErrMissingModel
	}
	if tools == nil {
		return nil, ErrMissingToolExecutor
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventLoopNode{model: model, tools: tools, judge: judgeProtocol, logger: logger}, nil
}

func (l *EventLoopNode) emit(req RunRequest, eventType eventbus.EventType, data map[string]any) {
	if req.Bus == nil {
		return
	}
	req.Bus.Publish(eventbus.Event{
		Type:        eventType,
		NodeID:      req.NodeID,
		ExecutionID: req.ExecutionID,
		Data:        data,
	})
}

// Run executes the node's iteration loop to completion, to a pathology
// failure, to escalation, or to cancellation.
func (l *EventLoopNode) Run(ctx context.Context, req RunRequest) (NodeResult, error) {
	if req.Conversation == nil {
		req.Conversation = New()
	}
	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	outputs := make(map[string]any)
	setKeys := make(map[string]bool)
	doom := &doomLoopTracker{}

	requiredKeys := make([]string, 0, len(req.OutputKeys))
	for _, k := range req.OutputKeys {
		if !k.Nullable {
			requiredKeys = append(requiredKeys, k.Name)
		}
	}

	l.emit(req, eventbus.EventNodeLoopStarted, map[string]any{"max_iterations": req.MaxIterations})

	iteration := 0
	for {
		if req.PauseGate != nil {
			if err := req.PauseGate(ctx); err != nil {
				return l.cancelled(req, iteration, outputs, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return l.cancelled(req, iteration, outputs, err)
		}

		iteration++
		if req.MaxIterations > 0 && iteration > req.MaxIterations {
			return l.fail(req, iteration, outputs, ErrIterationBudgetExhausted)
		}
		l.emit(req, eventbus.EventNodeLoopIteration, map[string]any{"iteration": iteration})

		assistant, stallTexts, err := l.generateWithRetry(ctx, req, outputs, iteration, maxRetries)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return l.cancelled(req, iteration, outputs, err)
			}
			return l.fail(req, iteration, outputs, err)
		}

		req.Conversation.Append(Turn{Role: RoleAssistant, Content: assistant.Content, ToolCalls: assistant.ToolCalls})

		if detectStall(stallTexts, assistant.Content, len(assistant.ToolCalls) > 0) {
			l.emit(req, eventbus.EventNodeStalled, map[string]any{"reason": "assistant content repeated across 3 turns with no tool calls"})
			return l.fail(req, iteration, outputs, ErrStalled)
		}

		if len(assistant.ToolCalls) == 0 {
			if req.ClientFacing {
				l.emit(req, eventbus.EventClientInputRequested, map[string]any{"prompt": assistant.Content})
				input, err := l.awaitInput(ctx, req)
				if err != nil {
					return l.cancelled(req, iteration, outputs, err)
				}
				req.Conversation.Append(Turn{Role: RoleUser, Content: input})
				continue
			}
			// Not client-facing and no tool calls: fall through to judge.
		}

		calls, results, escalated, escalateErr := l.runToolCalls(ctx, req, assistant.ToolCalls, outputs, setKeys)
		if escalated {
			l.emit(req, eventbus.EventNodeLoopCompleted, map[string]any{"status": NodeStatusEscalated, "iterations": iteration})
			return NodeResult{Outputs: outputs, Status: NodeStatusEscalated, Iterations: iteration, Error: escalateErr}, escalateErr
		}
		if err := ctx.Err(); err != nil {
			return l.cancelled(req, iteration, outputs, err)
		}

		if detected, shouldFail := doom.observe(calls, results); detected {
			if shouldFail {
				l.emit(req, eventbus.EventNodeToolDoomLoop, map[string]any{"description": "same tool call recurred with non-error results", "terminal": true})
				return l.fail(req, iteration, outputs, ErrToolDoomLoop)
			}
			l.emit(req, eventbus.EventNodeToolDoomLoop, map[string]any{"description": "same tool call recurred with non-error results", "terminal": false})
			req.Conversation.Append(Turn{Role: RoleUser, Content: "You have called the same tool with the same arguments multiple times in a row. Try a different approach or call set_output if you are done."})
			continue
		}

		if hasNonSyntheticToolCalls(assistant.ToolCalls) {
			l.emit(req, eventbus.EventJudgeVerdict, map[string]any{"action": judge.CONTINUE, "judge_type": judge.JudgeTypeImplicit, "iteration": iteration})
			continue
		}

		verdict, err := l.evaluate(ctx, req, iteration, setKeys, requiredKeys)
		if err != nil {
			return l.fail(req, iteration, outputs, err)
		}
		l.emit(req, eventbus.EventJudgeVerdict, map[string]any{"action": verdict.Action, "feedback": verdict.Feedback, "judge_type": verdict.JudgeType, "iteration": verdict.Iteration})

		switch verdict.Action {
		case judge.ACCEPT:
			missing := missingKeys(requiredKeys, setKeys)
			if len(missing) == 0 {
				l.emit(req, eventbus.EventNodeLoopCompleted, map[string]any{"status": NodeStatusSuccess, "iterations": iteration})
				return NodeResult{Outputs: outputs, Status: NodeStatusSuccess, Iterations: iteration}, nil
			}
			feedback := fmt.Sprintf("missing keys: %s", strings.Join(missing, ", "))
			l.emit(req, eventbus.EventJudgeVerdict, map[string]any{"action": judge.RETRY, "feedback": feedback, "judge_type": verdict.JudgeType, "iteration": iteration})
			req.Conversation.Append(Turn{Role: RoleUser, Content: feedback})
		case judge.RETRY:
			req.Conversation.Append(Turn{Role: RoleUser, Content: verdict.Feedback})
		case judge.ESCALATE:
			l.emit(req, eventbus.EventEscalationRequested, map[string]any{"reason": verdict.Feedback})
			l.emit(req, eventbus.EventNodeLoopCompleted, map[string]any{"status": NodeStatusEscalated, "iterations": iteration})
			return NodeResult{Outputs: outputs, Status: NodeStatusEscalated, Iterations: iteration}, nil
		case judge.CONTINUE:
			// fall through to next iteration
		}
	}
}

func (l *EventLoopNode) awaitInput(ctx context.Context, req RunRequest) (string, error) {
	if req.Await == nil {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return req.Await(ctx)
}

func (l *EventLoopNode) generateWithRetry(ctx context.Context, req RunRequest, outputsSoFar map[string]any, iteration, maxRetries int) (Turn, []string, error) {
	systemPrompt := ComposeSystemPrompt(req.SystemPrompt, outputsSoFar, time.Now())
	messages := make([]Turn, 0, req.Conversation.Len()+1)
	messages = append(messages, Turn{Role: RoleSystem, Content: systemPrompt})
	messages = append(messages, req.Conversation.Turns()...)
	stallTexts := req.Conversation.LastAssistantTexts(2)

	cfg := retry.Config{MaxAttempts: maxRetries + 1}
	assistant, err := retry.Do(ctx, cfg,
		func(retryCount int, retryErr error) {
			l.emit(req, eventbus.EventNodeRetry, map[string]any{"retry_count": retryCount, "max_retries": maxRetries, "error": retryErr.Error()})
		},
		func(ctx context.Context, _ int) (Turn, error) {
			return l.streamOnce(ctx, req, messages, iteration)
		})
	if err != nil {
		return Turn{}, nil, err
	}
	return assistant, stallTexts, nil
}

func (l *EventLoopNode) streamOnce(ctx context.Context, req RunRequest, messages []Turn, iteration int) (Turn, error) {
	chunks, errs := l.model.Stream(ctx, ModelRequest{Messages: messages, Tools: req.ToolDefinitions})
	var accumulated strings.Builder
	var final Turn
	haveFinal := false

	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				if haveFinal {
					return final, nil
				}
				select {
				case err := <-errs:
					if err != nil {
						return Turn{}, err
					}
				default:
				}
				return final, nil
			}
			if chunk.Final {
				final = chunk.Message
				if final.Role == "" {
					final.Role = RoleAssistant
				}
				haveFinal = true
				continue
			}
			if chunk.TextDelta != "" {
				accumulated.WriteString(chunk.TextDelta)
				eventType := eventbus.EventLLMTextDelta
				if req.ClientFacing {
					eventType = eventbus.EventClientOutputDelta
				}
				l.emit(req, eventType, map[string]any{
					"content":   chunk.TextDelta,
					"snapshot":  accumulated.String(),
					"iteration": iteration,
				})
			}
			if chunk.ReasoningDelta != "" {
				l.emit(req, eventbus.EventLLMReasoningDelta, map[string]any{"content": chunk.ReasoningDelta})
			}
		case err := <-errs:
			if err != nil {
				return Turn{}, err
			}
		case <-ctx.Done():
			return Turn{}, ctx.Err()
		}
	}
}

func (l *EventLoopNode) runToolCalls(ctx context.Context, req RunRequest, calls []toolreg.ToolCall, outputs map[string]any, setKeys map[string]bool) (executedCalls []toolreg.ToolCall, results []toolreg.ToolResult, escalated bool, escalateErr error) {
	for _, call := range calls {
		if err := ctx.Err(); err != nil {
			return executedCalls, results, false, nil
		}

		l.emit(req, eventbus.EventToolCallStarted, map[string]any{"tool_use_id": call.ID, "tool_name": call.Name, "tool_input": call.Arguments})

		var result toolreg.ToolResult
		switch call.Name {
		case toolreg.SetOutputTool:
			key, _ := call.Arguments["key"].(string)
			value := call.Arguments["value"]
			outputs[key] = value
			setKeys[key] = true
			l.emit(req, eventbus.EventOutputKeySet, map[string]any{"key": key, "value": value})
			result = toolreg.ToolResult{CallID: call.ID, Name: call.Name, Content: "ok"}
		case toolreg.EscalateToCoderTool:
			reason, _ := call.Arguments["reason"].(string)
			escCtx, _ := call.Arguments["context"].(string)
			l.emit(req, eventbus.EventEscalationRequested, map[string]any{"reason": reason, "context": escCtx})
			req.Conversation.Append(Turn{Role: RoleToolResult, Content: "escalated", ToolCallID: call.ID, ToolName: call.Name})
			return executedCalls, results, true, fmt.Errorf("node: escalated to coder: %s", reason)
		default:
			executed, err := l.tools.Execute(ctx, call)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return executedCalls, results, false, nil
				}
				result = toolreg.ToolResult{CallID: call.ID, Name: call.Name, Content: err.Error(), IsError: true}
			} else {
				result = executed
			}
		}
		if result.CallID == "" {
			result.CallID = call.ID
		}
		if result.Name == "" {
			result.Name = call.Name
		}

		l.emit(req, eventbus.EventToolCallCompleted, map[string]any{"tool_use_id": call.ID, "tool_name": call.Name, "result": result.Content, "is_error": result.IsError})
		req.Conversation.Append(Turn{Role: RoleToolResult, Content: result.Content, ToolCallID: result.CallID, ToolName: result.Name, IsError: result.IsError})

		executedCalls = append(executedCalls, call)
		results = append(results, result)
	}
	return executedCalls, results, false, nil
}

func (l *EventLoopNode) evaluate(ctx context.Context, req RunRequest, iteration int, setKeys map[string]bool, requiredKeys []string) (judge.Verdict, error) {
	if l.judge == nil {
		return judge.Verdict{Action: judge.RETRY, JudgeType: judge.JudgeTypeLLM, Iteration: iteration, Feedback: "no judge configured"}, nil
	}
	transcript := make([]judge.TranscriptTurn, 0, req.Conversation.Len())
	for _, t := range req.Conversation.Turns() {
		transcript = append(transcript, judge.TranscriptTurn{Role: string(t.Role), Content: t.Content})
	}
	return l.judge.Evaluate(ctx, judge.EvalContext{
		NodeID:             req.NodeID,
		SuccessCriteria:    req.SuccessCriteria,
		Principles:         req.Principles,
		Transcript:         transcript,
		RequiredOutputKeys: requiredKeys,
		SetOutputKeys:      setKeys,
		Iteration:          iteration,
	})
}

func (l *EventLoopNode) fail(req RunRequest, iteration int, outputs map[string]any, err error) (NodeResult, error) {
	l.logger.Warn("node loop failed", slog.String("node_id", req.NodeID), slog.Int("iteration", iteration), slog.Any("error", err))
	l.emit(req, eventbus.EventNodeLoopCompleted, map[string]any{"status": NodeStatusFailed, "iterations": iteration, "error": err.Error()})
	return NodeResult{Outputs: outputs, Status: NodeStatusFailed, Iterations: iteration, Error: err}, err
}

func (l *EventLoopNode) cancelled(req RunRequest, iteration int, outputs map[string]any, err error) (NodeResult, error) {
	l.emit(req, eventbus.EventNodeLoopCompleted, map[string]any{"status": NodeStatusCancelled, "iterations": iteration})
	return NodeResult{Outputs: outputs, Status: NodeStatusCancelled, Iterations: iteration, Error: err}, err
}

func hasNonSyntheticToolCalls(calls []toolreg.ToolCall) bool {
	for _, c := range calls {
		if c.Name != toolreg.SetOutputTool && c.Name != toolreg.EscalateToCoderTool {
			return true
		}
	}
	return false
}

func missingKeys(required []string, set map[string]bool) []string {
	missing := make([]string, 0)
	for _, k := range required {
		if !set[k] {
			missing = append(missing, k)
		}
	}
	return missing
}
