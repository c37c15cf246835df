// Package models defines the core domain types shared by every component
// of the agent runtime: Store, ModelClient, ToolExecutor, HookChain,
// AgentLoop, Runtime, and the event bus.
package models

import "time"

// SessionStatus is the lifecycle state of a Session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionStale     SessionStatus = "stale"
)

// Terminal reports whether a status is a terminal state. Terminal states
// are monotonic: a session never transitions back to active except via
// explicit resume, which does not change status back through this check —
// resume resets LastHeartbeatAt on an active session directly.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionCompleted, SessionFailed, SessionStale:
		return true
	default:
		return false
	}
}

// Session is a unit of agent execution: an ordered Message log plus the
// metadata the Runtime and AgentLoop use to drive it.
type Session struct {
	ID       string `json:"id"`
	AgentID  string `json:"agent_id"`
	OrgID    string `json:"org_id"`

	// ParentSessionID is set for sessions created via spawnSubAgent.
	ParentSessionID string `json:"parent_session_id,omitempty"`

	Status SessionStatus `json:"status"`

	// TurnCount is monotonic: it never decreases.
	TurnCount int `json:"turn_count"`

	// TokenCount is a running estimate of tokens consumed by the session.
	TokenCount int `json:"token_count"`

	CreatedAt        time.Time `json:"created_at"`
	LastHeartbeatAt  time.Time `json:"last_heartbeat_at"`

	// Messages holds the full dialogue. getSession returns it populated;
	// listSessions omits it (metadata only).
	Messages []Message `json:"messages,omitempty"`
}

// SessionFilter narrows a listSessions call.
type SessionFilter struct {
	Status SessionStatus
	Limit  int
}

// NewSession constructs a Session in the initial active state, as
// createSession's contract requires (status=active, turn=0, heartbeat=now).
func NewSession(id, agentID, orgID, parentSessionID string, now time.Time) *Session {
	return &Session{
		ID:              id,
		AgentID:         agentID,
		OrgID:           orgID,
		ParentSessionID: parentSessionID,
		Status:          SessionActive,
		CreatedAt:       now,
		LastHeartbeatAt: now,
	}
}
