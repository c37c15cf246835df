// Package agentloop implements the per-session turn state machine of
// spec.md §4.5: one model call plus any resulting tool executions per
// turn, driven to completion, budget exhaustion, compaction, or failure.
// Grounded on the teacher's internal/agent.AgenticLoop (loop.go) —
// Run's goroutine-plus-channel shape, its phase sequence
// (init/stream/execute-tools/continue/complete), and its
// persist-after-every-phase discipline are the direct model, adapted
// from the teacher's fixed Anthropic/OpenAI HTTP providers to the
// provider-agnostic ModelClient/HookChain/ToolExecutor collaborators
// the spec defines.
package agentloop

import (
	"time"

	"github.com/agentruntime/core/internal/modelclient"
)

// Status is the terminal (or current) disposition of a Run.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusPaused    Status = "paused"
)

// AgentConfig parameterizes one session's AgentLoop: the system prompt,
// model selection, available tools, and the limits that bound a run.
type AgentConfig struct {
	// Provider/Model select the ModelClient and the model id passed to
	// every Call.
	Provider string
	Model    string

	// SystemPrompt is prepended as context to every model call; it is
	// never counted against the message list compaction preserves (the
	// spec's "preserve every system-role message" rule applies to
	// system-role messages already in the list, not this field).
	SystemPrompt string

	// Tools lists the tool definitions offered to the model.
	Tools []modelclient.ToolDef

	// MaxTurns caps the number of turns in a run (0 = unlimited).
	MaxTurns int

	// MaxTokensPerCall bounds a single model call's output.
	MaxTokensPerCall int

	// ContextWindowSize is the model's total token budget, used to
	// compute the compaction trigger. 0 selects a per-model default via
	// internal/context.NewWindowForModel.
	ContextWindowSize int

	// CompactionThreshold is the fraction of ContextWindowSize at which
	// compaction triggers. Default 0.8.
	CompactionThreshold float64

	// BudgetWarningThreshold is the RemainingUSD below which a
	// budget_warning event fires even though the call is still allowed.
	BudgetWarningThreshold float64

	// EnableThinking/ThinkingBudgetTokens pass through to CallOptions.
	EnableThinking       bool
	ThinkingBudgetTokens int

	// KeepLastMessages is how many of the most recent messages
	// compaction preserves verbatim. Default 10.
	KeepLastMessages int

	// ToolTimeout is not read by the loop; a tool execution is bounded
	// only by the tools.Executor's own ExecutorConfig timeouts.
	ToolTimeout time.Duration
}

// DefaultAgentConfig returns the spec's documented defaults.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		MaxTokensPerCall:       4096,
		CompactionThreshold:    0.8,
		BudgetWarningThreshold: 1.0,
		KeepLastMessages:       10,
	}
}

func sanitizeConfig(cfg AgentConfig) AgentConfig {
	defaults := DefaultAgentConfig()
	if cfg.MaxTokensPerCall <= 0 {
		cfg.MaxTokensPerCall = defaults.MaxTokensPerCall
	}
	if cfg.CompactionThreshold <= 0 {
		cfg.CompactionThreshold = defaults.CompactionThreshold
	}
	if cfg.KeepLastMessages <= 0 {
		cfg.KeepLastMessages = defaults.KeepLastMessages
	}
	if cfg.MaxTurns < 0 {
		cfg.MaxTurns = 0
	}
	return cfg
}
