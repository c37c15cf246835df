package models

import "time"

// FollowUpStatus is the lifecycle state of a scheduled FollowUp.
type FollowUpStatus string

const (
	FollowUpPending   FollowUpStatus = "pending"
	FollowUpFired     FollowUpStatus = "fired"
	FollowUpCancelled FollowUpStatus = "cancelled"
)

// FollowUp is a scheduled future message, delivered at or after
// ExecuteAt by the Runtime's follow-up scheduler. It fires once unless
// Every is set.
type FollowUp struct {
	ID        string         `json:"id"`
	AgentID   string         `json:"agent_id"`
	SessionID string         `json:"session_id,omitempty"`
	Message   string         `json:"message"`
	ExecuteAt time.Time      `json:"execute_at"`
	Status    FollowUpStatus `json:"status"`

	// Every is an optional cron expression (supplemented feature, see
	// SPEC_FULL.md): when set, a fired follow-up is rescheduled to the
	// next matching time instead of terminating at Fired. A follow-up
	// without Every always fires exactly once.
	Every string `json:"every,omitempty"`
}
