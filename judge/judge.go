// Package judge implements the triangulated verdict protocol that gates
// node completion: a deterministic rule stage, then an LLM stage, with the
// engine itself handling the cheapest case (implicit CONTINUE) before ever
// calling into this package.
package judge

import (
	"context"
	"fmt"
)

// Action is the judge's decision for one node iteration.
type Action string

const (
	ACCEPT   Action = "ACCEPT"
	RETRY    Action = "RETRY"
	ESCALATE Action = "ESCALATE"
	CONTINUE Action = "CONTINUE"
)

// JudgeType records which stage produced a Verdict.
type JudgeType string

const (
	JudgeTypeRule     JudgeType = "rule"
	JudgeTypeLLM      JudgeType = "llm"
	JudgeTypeImplicit JudgeType = "implicit"
)

// Verdict is the outcome of one Evaluate call.
type Verdict struct {
	Action    Action
	Feedback  string
	JudgeType JudgeType
	Iteration int
}

// TranscriptTurn is a judge's-eye view of one conversation turn: just
// enough to evaluate rules and prompt an LLM judge, without coupling this
// package to node.Turn.
type TranscriptTurn struct {
	Role    string
	Content string
}

// EvalContext is everything a judge stage needs to produce a verdict for
// one iteration.
type EvalContext struct {
	NodeID             string
	SuccessCriteria    string
	Principles         string
	Transcript         []TranscriptTurn
	RequiredOutputKeys []string
	SetOutputKeys      map[string]bool
	Iteration          int
}

// MissingOutputKeys returns the RequiredOutputKeys not present in SetOutputKeys.
func (c EvalContext) MissingOutputKeys() []string {
	missing := make([]string, 0)
	for _, key := range c.RequiredOutputKeys {
		if !c.SetOutputKeys[key] {
			missing = append(missing, key)
		}
	}
	return missing
}

// EvaluationRule is one deterministic rule stage entry. Rules are evaluated
// in descending Priority; the first matching Condition returns its Action
// as a definitive verdict, at no LLM cost.
type EvaluationRule struct {
	ID        string
	Condition func(EvalContext) bool
	Action    Action
	Priority  int
}

// LLMJudge is the streaming-completion-backed second stage, consulted only
// when no rule matched.
type LLMJudge interface {
	Judge(ctx context.Context, evalCtx EvalContext) (action Action, confidence float64, feedback string, err error)
}

// Protocol runs the rule stage then, if nothing matched, the LLM stage.
// The caller (EventLoopNode) is responsible for the implicit CONTINUE
// shortcut; Protocol.Evaluate is never consulted for an iteration where
// that shortcut applies.
type Protocol struct {
	rules     []EvaluationRule
	llm       LLMJudge
	threshold float64
}

// New constructs a Protocol. rules need not be pre-sorted; Evaluate sorts a
// copy by descending priority. confidenceThreshold defaults to 0.7 if <= 0.
func New(rules []EvaluationRule, llm LLMJudge, confidenceThreshold float64) *Protocol {
	if confidenceThreshold <= 0 {
		confidenceThreshold = 0.7
	}
	sorted := append([]EvaluationRule(nil), rules...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Priority > sorted[j-1].Priority; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return &Protocol{rules: sorted, llm: llm, threshold: confidenceThreshold}
}

// Evaluate runs the rule stage, falling back to the LLM stage when no rule
// matches. If the LLM stage's confidence is below threshold, the verdict is
// ESCALATE with feedback "low confidence".
func (p *Protocol) Evaluate(ctx context.Context, evalCtx EvalContext) (Verdict, error) {
	for _, rule := range p.rules {
		if rule.Condition != nil && rule.Condition(evalCtx) {
			return Verdict{Action: rule.Action, JudgeType: JudgeTypeRule, Iteration: evalCtx.Iteration}, nil
		}
	}

	if p.llm == nil {
		return Verdict{Action: RETRY, JudgeType: JudgeTypeLLM, Iteration: evalCtx.Iteration, Feedback: "no llm judge configured"}, nil
	}

	action, confidence, feedback, err := p.llm.Judge(ctx, evalCtx)
	if err != nil {
		return Verdict{}, fmt.Errorf("judge: llm stage: %w", err)
	}
	if confidence < p.threshold {
		return Verdict{Action: ESCALATE, JudgeType: JudgeTypeLLM, Feedback: "low confidence", Iteration: evalCtx.Iteration}, nil
	}
	return Verdict{Action: action, JudgeType: JudgeTypeLLM, Feedback: feedback, Iteration: evalCtx.Iteration}, nil
}
