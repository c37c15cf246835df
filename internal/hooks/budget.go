package hooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// BudgetHook is a default CheckBudget implementation: a per-agent token
// bucket over estimated tokens per call, plus an optional hard
// dollar-cost ceiling per agent. It has no teacher precedent — the
// teacher's budget enforcement lives behind a database-backed cost
// ledger this module does not have — so it is grounded directly on
// golang.org/x/time/rate's limiter rather than on any example file.
type BudgetHook struct {
	BaseHook

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	tokensPerSecond rate.Limit
	burstTokens     int

	maxCostUSD float64
	spentUSD   map[string]float64
}

// NewBudgetHook builds a BudgetHook that allows up to tokensPerSecond
// estimated tokens per agent, bursting to burstTokens, and denies once
// an agent's recorded spend crosses maxCostUSD (0 disables the cost
// ceiling).
func NewBudgetHook(tokensPerSecond float64, burstTokens int, maxCostUSD float64) *BudgetHook {
	return &BudgetHook{
		limiters:        make(map[string]*rate.Limiter),
		tokensPerSecond: rate.Limit(tokensPerSecond),
		burstTokens:     burstTokens,
		maxCostUSD:      maxCostUSD,
		spentUSD:        make(map[string]float64),
	}
}

func (b *BudgetHook) limiterFor(agentID string) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.limiters[agentID]
	if !ok {
		l = rate.NewLimiter(b.tokensPerSecond, b.burstTokens)
		b.limiters[agentID] = l
	}
	return l
}

// CheckBudget denies the call when the agent's cumulative spend has
// crossed maxCostUSD, or when estTokens would exceed the agent's
// available rate-limit burst. It never blocks — callers that want to
// wait for capacity should not use this hook.
func (b *BudgetHook) CheckBudget(ctx context.Context, agentID, orgID string, estTokens int) (BudgetDecision, error) {
	b.mu.Lock()
	spent := b.spentUSD[agentID]
	b.mu.Unlock()

	if b.maxCostUSD > 0 && spent >= b.maxCostUSD {
		remaining := 0.0
		return BudgetDecision{
			Allowed:      false,
			Reason:       fmt.Sprintf("agent %s has spent $%.4f of its $%.4f budget", agentID, spent, b.maxCostUSD),
			RemainingUSD: &remaining,
		}, nil
	}

	limiter := b.limiterFor(agentID)
	if !limiter.AllowN(time.Now(), estTokens) {
		return BudgetDecision{
			Allowed: false,
			Reason:  fmt.Sprintf("agent %s exceeded its token rate limit (estimated %d tokens)", agentID, estTokens),
		}, nil
	}

	var remaining *float64
	if b.maxCostUSD > 0 {
		r := b.maxCostUSD - spent
		remaining = &r
	}
	return BudgetDecision{Allowed: true, RemainingUSD: remaining}, nil
}

// RecordLLMUsage accumulates an agent's spend so later CheckBudget
// calls can enforce the cost ceiling.
func (b *BudgetHook) RecordLLMUsage(ctx context.Context, agentID, orgID string, usage Usage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.spentUSD[agentID] += usage.CostUSD
}
