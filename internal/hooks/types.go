// Package hooks implements the HookChain observer contract (spec.md
// §4.4): a fail-open sequence of side-effecting callbacks the AgentLoop
// invokes at fixed points. Grounded on the teacher's internal/hooks
// package (registry.go's panic-recovering, log-and-continue dispatch;
// tool_hooks.go's before/after tool-call shape) but restructured from a
// generic string-keyed pub/sub event bus to the spec's fixed set of nine
// typed hook points, since the AgentLoop's call sites are known and
// static rather than dynamically discovered plugin events.
package hooks

import (
	"context"

	"github.com/agentruntime/core/internal/tools"
	"github.com/agentruntime/core/pkg/models"
)

// Usage is the token/cost accounting reported after a model call
// returns, passed to RecordLLMUsage.
type Usage struct {
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// BudgetDecision is CheckBudget's verdict.
type BudgetDecision struct {
	Allowed      bool
	Reason       string
	RemainingUSD *float64
}

// Pricing is per-million-token pricing for a model, returned by
// GetModelPricing so the runtime can estimate a call's cost before (and
// account it after) invoking the model.
type Pricing struct {
	InputPerMillionUSD  float64
	OutputPerMillionUSD float64
}

// ToolCallContext describes a pending or completed tool call for
// BeforeToolCall/AfterToolCall.
type ToolCallContext struct {
	SessionID string
	AgentID   string
	OrgID     string
	CallID    string
	ToolName  string
	Input     []byte
}

// ToolCallDecision is BeforeToolCall's verdict. A disallowed call is
// recorded with a synthetic error tool_result rather than dispatched.
type ToolCallDecision struct {
	Allowed            bool
	Reason             string
	ModifiedParameters []byte
}

// Hook is the full set of HookChain callback points. All methods are
// optional: embed BaseHook and override only the ones a concrete hook
// needs. Every method must fail open — Chain recovers panics and logs
// errors without aborting the turn, but a Hook that blocks indefinitely
// will stall the AgentLoop, so implementations should respect ctx.
type Hook interface {
	OnSessionStart(ctx context.Context, sessionID, agentID, orgID string)
	BeforeLLMCall(ctx context.Context, messages []models.Message, agentID, sessionID string) ([]models.Message, error)
	CheckBudget(ctx context.Context, agentID, orgID string, estTokens int) (BudgetDecision, error)
	RecordLLMUsage(ctx context.Context, agentID, orgID string, usage Usage)
	GetModelPricing(ctx context.Context, provider, modelID string) (*Pricing, bool)
	BeforeToolCall(ctx context.Context, call ToolCallContext) (ToolCallDecision, error)
	AfterToolCall(ctx context.Context, call ToolCallContext, result tools.Result)
	OnContextCompaction(ctx context.Context, sessionID, agentID, summary string)
	OnSessionEnd(ctx context.Context, sessionID, agentID, orgID string)
}

// BaseHook is a no-op implementation of every Hook method. Concrete
// hooks embed it and override only what they care about.
type BaseHook struct{}

func (BaseHook) OnSessionStart(ctx context.Context, sessionID, agentID, orgID string) {}

func (BaseHook) BeforeLLMCall(ctx context.Context, messages []models.Message, agentID, sessionID string) ([]models.Message, error) {
	return messages, nil
}

func (BaseHook) CheckBudget(ctx context.Context, agentID, orgID string, estTokens int) (BudgetDecision, error) {
	return BudgetDecision{Allowed: true}, nil
}

func (BaseHook) RecordLLMUsage(ctx context.Context, agentID, orgID string, usage Usage) {}

func (BaseHook) GetModelPricing(ctx context.Context, provider, modelID string) (*Pricing, bool) {
	return nil, false
}

func (BaseHook) BeforeToolCall(ctx context.Context, call ToolCallContext) (ToolCallDecision, error) {
	return ToolCallDecision{Allowed: true}, nil
}

func (BaseHook) AfterToolCall(ctx context.Context, call ToolCallContext, result tools.Result) {}

func (BaseHook) OnContextCompaction(ctx context.Context, sessionID, agentID, summary string) {}

func (BaseHook) OnSessionEnd(ctx context.Context, sessionID, agentID, orgID string) {}
