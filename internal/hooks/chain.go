package hooks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentruntime/core/internal/tools"
	"github.com/agentruntime/core/pkg/models"
)

// Chain dispatches each HookChain call point to every registered Hook in
// order. It is the AgentLoop's single entry point into the hook system —
// the loop never calls a Hook directly. Every dispatch recovers panics
// and logs errors (fail-open, per spec.md §4.4); only BeforeLLMCall,
// CheckBudget, and BeforeToolCall return a value the caller acts on, and
// a failing hook there is treated as its neutral default (unmodified
// messages, allowed=true) rather than aborting the turn.
type Chain struct {
	hooks  []Hook
	logger *slog.Logger
}

// NewChain builds a Chain over hooks, invoked in the given order.
func NewChain(logger *slog.Logger, hooks ...Hook) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{hooks: hooks, logger: logger.With("component", "hooks")}
}

func (c *Chain) recoverAndLog(point string) {
	if r := recover(); r != nil {
		c.logger.Warn("hook panicked", "point", point, "panic", fmt.Sprintf("%v", r))
	}
}

// OnSessionStart fires onSessionStart on every hook, fire-and-forget.
func (c *Chain) OnSessionStart(ctx context.Context, sessionID, agentID, orgID string) {
	for _, h := range c.hooks {
		c.callOnSessionStart(ctx, h, sessionID, agentID, orgID)
	}
}

func (c *Chain) callOnSessionStart(ctx context.Context, h Hook, sessionID, agentID, orgID string) {
	defer c.recoverAndLog("onSessionStart")
	h.OnSessionStart(ctx, sessionID, agentID, orgID)
}

// BeforeLLMCall threads messages through every hook in order, each one
// seeing the prior hook's (possibly modified) output. A hook that
// returns an error is logged and skipped — its input passes through
// unmodified.
func (c *Chain) BeforeLLMCall(ctx context.Context, messages []models.Message, agentID, sessionID string) []models.Message {
	current := messages
	for _, h := range c.hooks {
		current = c.callBeforeLLMCall(ctx, h, current, agentID, sessionID)
	}
	return current
}

func (c *Chain) callBeforeLLMCall(ctx context.Context, h Hook, messages []models.Message, agentID, sessionID string) (result []models.Message) {
	result = messages
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("hook panicked", "point", "beforeLLMCall", "panic", fmt.Sprintf("%v", r))
			result = messages
		}
	}()
	modified, err := h.BeforeLLMCall(ctx, messages, agentID, sessionID)
	if err != nil {
		c.logger.Warn("hook error", "point", "beforeLLMCall", "error", err)
		return messages
	}
	return modified
}

// CheckBudget asks every hook in order; the first denial wins (the most
// conservative hook controls). A hook error is treated as "allowed" for
// that hook (fail-open) and logged.
func (c *Chain) CheckBudget(ctx context.Context, agentID, orgID string, estTokens int) BudgetDecision {
	decision := BudgetDecision{Allowed: true}
	for _, h := range c.hooks {
		d := c.callCheckBudget(ctx, h, agentID, orgID, estTokens)
		if !d.Allowed {
			return d
		}
		if d.RemainingUSD != nil {
			decision.RemainingUSD = d.RemainingUSD
		}
	}
	return decision
}

func (c *Chain) callCheckBudget(ctx context.Context, h Hook, agentID, orgID string, estTokens int) (decision BudgetDecision) {
	decision = BudgetDecision{Allowed: true}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("hook panicked", "point", "checkBudget", "panic", fmt.Sprintf("%v", r))
			decision = BudgetDecision{Allowed: true}
		}
	}()
	d, err := h.CheckBudget(ctx, agentID, orgID, estTokens)
	if err != nil {
		c.logger.Warn("hook error", "point", "checkBudget", "error", err)
		return BudgetDecision{Allowed: true}
	}
	return d
}

// RecordLLMUsage fans out to every hook, fire-and-forget.
func (c *Chain) RecordLLMUsage(ctx context.Context, agentID, orgID string, usage Usage) {
	for _, h := range c.hooks {
		c.callRecordLLMUsage(ctx, h, agentID, orgID, usage)
	}
}

func (c *Chain) callRecordLLMUsage(ctx context.Context, h Hook, agentID, orgID string, usage Usage) {
	defer c.recoverAndLog("recordLLMUsage")
	h.RecordLLMUsage(ctx, agentID, orgID, usage)
}

// GetModelPricing returns the first non-nil pricing any hook supplies;
// the caller falls back to a built-in table when none do.
func (c *Chain) GetModelPricing(ctx context.Context, provider, modelID string) (*Pricing, bool) {
	for _, h := range c.hooks {
		if pricing, ok := c.callGetModelPricing(ctx, h, provider, modelID); ok {
			return pricing, true
		}
	}
	return nil, false
}

func (c *Chain) callGetModelPricing(ctx context.Context, h Hook, provider, modelID string) (pricing *Pricing, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("hook panicked", "point", "getModelPricing", "panic", fmt.Sprintf("%v", r))
			pricing, ok = nil, false
		}
	}()
	return h.GetModelPricing(ctx, provider, modelID)
}

// BeforeToolCall asks every hook in order; the first denial wins.
func (c *Chain) BeforeToolCall(ctx context.Context, call ToolCallContext) ToolCallDecision {
	decision := ToolCallDecision{Allowed: true, ModifiedParameters: call.Input}
	for _, h := range c.hooks {
		d := c.callBeforeToolCall(ctx, h, call)
		if !d.Allowed {
			return d
		}
		if d.ModifiedParameters != nil {
			decision.ModifiedParameters = d.ModifiedParameters
			call.Input = d.ModifiedParameters
		}
	}
	return decision
}

func (c *Chain) callBeforeToolCall(ctx context.Context, h Hook, call ToolCallContext) (decision ToolCallDecision) {
	decision = ToolCallDecision{Allowed: true, ModifiedParameters: call.Input}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("hook panicked", "point", "beforeToolCall", "panic", fmt.Sprintf("%v", r))
			decision = ToolCallDecision{Allowed: true, ModifiedParameters: call.Input}
		}
	}()
	d, err := h.BeforeToolCall(ctx, call)
	if err != nil {
		c.logger.Warn("hook error", "point", "beforeToolCall", "error", err)
		return ToolCallDecision{Allowed: true, ModifiedParameters: call.Input}
	}
	return d
}

// AfterToolCall fans out to every hook, fire-and-forget (typically used
// to persist a ToolCallRecord).
func (c *Chain) AfterToolCall(ctx context.Context, call ToolCallContext, result tools.Result) {
	for _, h := range c.hooks {
		c.callAfterToolCall(ctx, h, call, result)
	}
}

func (c *Chain) callAfterToolCall(ctx context.Context, h Hook, call ToolCallContext, result tools.Result) {
	defer c.recoverAndLog("afterToolCall")
	h.AfterToolCall(ctx, call, result)
}

// OnContextCompaction fans out to every hook, fire-and-forget.
func (c *Chain) OnContextCompaction(ctx context.Context, sessionID, agentID, summary string) {
	for _, h := range c.hooks {
		c.callOnContextCompaction(ctx, h, sessionID, agentID, summary)
	}
}

func (c *Chain) callOnContextCompaction(ctx context.Context, h Hook, sessionID, agentID, summary string) {
	defer c.recoverAndLog("onContextCompaction")
	h.OnContextCompaction(ctx, sessionID, agentID, summary)
}

// OnSessionEnd fans out to every hook, fire-and-forget.
func (c *Chain) OnSessionEnd(ctx context.Context, sessionID, agentID, orgID string) {
	for _, h := range c.hooks {
		c.callOnSessionEnd(ctx, h, sessionID, agentID, orgID)
	}
}

func (c *Chain) callOnSessionEnd(ctx context.Context, h Hook, sessionID, agentID, orgID string) {
	defer c.recoverAndLog("onSessionEnd")
	h.OnSessionEnd(ctx, sessionID, agentID, orgID)
}
