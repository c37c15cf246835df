package models

import "time"

// EventType identifies the kind of Event on the per-session event bus
// (spec.md §4.7).
type EventType string

const (
	EventSessionStart    EventType = "session_start"
	EventSessionResumed  EventType = "session_resumed"
	EventTurnStart       EventType = "turn_start"
	EventTextDelta       EventType = "text_delta"
	EventThinkingDelta   EventType = "thinking_delta"
	EventToolCallStart   EventType = "tool_call_start"
	EventToolCallEnd     EventType = "tool_call_end"
	EventTurnEnd         EventType = "turn_end"
	EventCheckpoint      EventType = "checkpoint"
	EventHeartbeat       EventType = "heartbeat"
	EventBudgetWarning   EventType = "budget_warning"
	EventBudgetExceeded  EventType = "budget_exceeded"
	EventError           EventType = "error"
	EventSessionEnd      EventType = "session_end"
)

// Event is the unified event emitted on a session's event-bus channel.
// Following the teacher's single-discriminator-with-optional-payloads
// design: exactly one of the payload fields below is populated for a
// given Type.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Time      time.Time `json:"time"`

	// Sequence is monotonic per-session, for subscriber ordering.
	Sequence uint64 `json:"sequence"`

	TurnIndex int `json:"turn_index,omitempty"`

	Delta    *DeltaPayload    `json:"delta,omitempty"`
	Tool     *ToolPayload     `json:"tool,omitempty"`
	Budget   *BudgetPayload   `json:"budget,omitempty"`
	Error    *ErrorPayload    `json:"error,omitempty"`
	Checkpoint *CheckpointPayload `json:"checkpoint,omitempty"`
}

// DeltaPayload carries a text_delta or thinking_delta chunk.
type DeltaPayload struct {
	Text string `json:"text"`
}

// ToolPayload describes a tool_call_start/tool_call_end event.
type ToolPayload struct {
	CallID   string `json:"call_id"`
	ToolName string `json:"tool_name"`
	Success  bool   `json:"success,omitempty"`
	IsError  bool   `json:"is_error,omitempty"`
}

// BudgetPayload describes a budget_warning/budget_exceeded event.
type BudgetPayload struct {
	Reason       string  `json:"reason,omitempty"`
	RemainingUSD float64 `json:"remaining_usd,omitempty"`
}

// ErrorPayload standardizes an error event.
type ErrorPayload struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

// CheckpointPayload reports a completed (replaceMessages, touchSession)
// write.
type CheckpointPayload struct {
	MessageCount int `json:"message_count"`
	TurnCount    int `json:"turn_count"`
}
