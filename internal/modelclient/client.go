// Package modelclient provides the provider-agnostic streaming inference
// client the AgentLoop depends on (spec.md §4.2). Adapters translate the
// canonical Message/Block model to each provider's wire shape; the core
// never depends on a provider SDK directly, following the teacher's
// internal/agent.LLMProvider boundary (internal/agent/provider_types.go).
package modelclient

import (
	"context"
	"encoding/json"

	"github.com/agentruntime/core/pkg/models"
)

// StopReason is why a model call's stream ended.
type StopReason string

const (
	StopEndTurn       StopReason = "end_turn"
	StopToolUse       StopReason = "tool_use"
	StopMaxTokens     StopReason = "max_tokens"
	StopContentFilter StopReason = "content_filter"
	StopError         StopReason = "error"

	// StopCancelled marks a stream that ended because its context was
	// cancelled mid-flight. Distinct from StopError: cancellation is an
	// orderly pause (spec.md's "cancellation is never a failure"), not a
	// model or transport fault, so callers must route it differently.
	StopCancelled StopReason = "cancelled"
)

// DeltaType discriminates a Delta's payload, mirroring spec.md §4.2's
// stream alphabet.
type DeltaType string

const (
	DeltaText          DeltaType = "text_delta"
	DeltaThinking      DeltaType = "thinking_delta"
	DeltaToolUseStart  DeltaType = "tool_use_start"
	DeltaToolUseInput  DeltaType = "tool_use_input_delta"
	DeltaToolUseEnd    DeltaType = "tool_use_end"
	DeltaUsage         DeltaType = "usage"
	DeltaStop          DeltaType = "stop"
)

// Delta is one event in a ModelClient stream. Only the fields relevant
// to Type are populated.
type Delta struct {
	Type DeltaType

	// Text carries the text_delta or thinking_delta body.
	Text string

	// ToolUseID/ToolName identify a tool_use_start; ToolUseID recurs on
	// every tool_use_input_delta/tool_use_end for the same call.
	ToolUseID string
	ToolName  string

	// PartialInput carries one tool_use_input_delta fragment (to be
	// concatenated and parsed as JSON once tool_use_end arrives).
	PartialInput string

	// FinalInput carries the complete, valid JSON input of a
	// tool_use_end.
	FinalInput json.RawMessage

	// InputTokens/OutputTokens populate a usage delta.
	InputTokens  int
	OutputTokens int

	// StopReason populates a stop delta.
	StopReason StopReason

	// Err is non-nil only on a stop delta with StopReason=error.
	Err error
}

// ToolDef describes one tool available to a model call, independent of
// the ToolRegistry's richer internal Tool type (spec.md §4.3).
type ToolDef struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// CallOptions carries the generation parameters of a single ModelClient
// call.
type CallOptions struct {
	MaxTokens            int
	EnableThinking       bool
	ThinkingBudgetTokens int
	Temperature          *float64
}

// ModelClient issues a streaming inference call and yields a typed delta
// sequence. Implementations must be safe for concurrent use and must
// observe ctx cancellation promptly at every suspension point.
type ModelClient interface {
	// Call streams one model turn. The returned channel is closed after
	// a stop delta (success or error) or when ctx is cancelled. Call
	// never panics. A failure before a stream is delivered (an invalid
	// request conversion, an exhausted retry budget) is returned as the
	// error; a failure after that surfaces as a DeltaStop{StopError}.
	Call(ctx context.Context, model string, system string, messages []models.Message, tools []ToolDef, opts CallOptions) (<-chan Delta, error)

	// Name identifies the provider for logging/metrics ("anthropic",
	// "openai", "bedrock").
	Name() string
}
