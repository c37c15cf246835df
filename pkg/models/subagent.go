package models

import "time"

// SubAgentStatus is the lifecycle state of a SubAgentLink.
type SubAgentStatus string

const (
	SubAgentActive    SubAgentStatus = "active"
	SubAgentCompleted SubAgentStatus = "completed"
	SubAgentCancelled SubAgentStatus = "cancelled"
)

// SubAgentLink records a parent-session -> child-session relationship
// created by Runtime.spawnSubAgent. When the parent terminates, every
// active child link is cancelled transitively.
type SubAgentLink struct {
	ID              string         `json:"id"`
	ParentSessionID string         `json:"parent_session_id"`
	ChildSessionID  string         `json:"child_session_id"`
	Task            string         `json:"task"`
	Status          SubAgentStatus `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
}
