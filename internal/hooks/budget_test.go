package hooks

import (
	"context"
	"testing"
)

func TestBudgetHookDeniesOverRateLimit(t *testing.T) {
	h := NewBudgetHook(10, 10, 0)
	ctx := context.Background()

	first, err := h.CheckBudget(ctx, "agent-1", "org-1", 10)
	if err != nil || !first.Allowed {
		t.Fatalf("first call = %v, %v, want allowed", first, err)
	}

	second, err := h.CheckBudget(ctx, "agent-1", "org-1", 5)
	if err != nil {
		t.Fatalf("CheckBudget() error = %v", err)
	}
	if second.Allowed {
		t.Fatal("expected second call to exceed the burst and be denied")
	}
}

func TestBudgetHookTracksPerAgentIndependently(t *testing.T) {
	h := NewBudgetHook(10, 10, 0)
	ctx := context.Background()

	h.CheckBudget(ctx, "agent-1", "org-1", 10)
	d, err := h.CheckBudget(ctx, "agent-2", "org-1", 10)
	if err != nil || !d.Allowed {
		t.Fatalf("agent-2 should have its own independent budget, got %v, %v", d, err)
	}
}

func TestBudgetHookDeniesOverCostCeiling(t *testing.T) {
	h := NewBudgetHook(1000, 1000, 1.0)
	ctx := context.Background()

	h.RecordLLMUsage(ctx, "agent-1", "org-1", Usage{InputTokens: 100, OutputTokens: 100, CostUSD: 1.5})

	d, err := h.CheckBudget(ctx, "agent-1", "org-1", 1)
	if err != nil {
		t.Fatalf("CheckBudget() error = %v", err)
	}
	if d.Allowed {
		t.Fatal("expected denial once spend crosses the cost ceiling")
	}
}

func TestBudgetHookAllowsUnderCostCeiling(t *testing.T) {
	h := NewBudgetHook(1000, 1000, 10.0)
	ctx := context.Background()

	h.RecordLLMUsage(ctx, "agent-1", "org-1", Usage{CostUSD: 1.0})

	d, err := h.CheckBudget(ctx, "agent-1", "org-1", 1)
	if err != nil || !d.Allowed {
		t.Fatalf("CheckBudget() = %v, %v, want allowed", d, err)
	}
	if d.RemainingUSD == nil || *d.RemainingUSD != 9.0 {
		t.Errorf("RemainingUSD = %v, want 9.0", d.RemainingUSD)
	}
}
