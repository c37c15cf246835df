// Package store provides durable, crash-safe persistence for Sessions,
// Messages, ToolCallRecords, FollowUps, and UsageCounters (spec.md §4.1).
package store

import (
	"context"

	"github.com/agentruntime/core/pkg/models"
)

// Store is the persistence facade every other component depends on.
// Implementations must make each method individually atomic; there are
// no partial writes of a message list. Sessions, messages, and related
// records are implementation detail past this interface — callers must
// not assume a particular storage engine.
type Store interface {
	// CreateSession returns a new Session with status=active, turn=0,
	// heartbeat=now.
	CreateSession(ctx context.Context, agentID, orgID, parentSessionID string) (*models.Session, error)

	// GetSession returns a Session with its full message list, or a
	// NotFound error.
	GetSession(ctx context.Context, id string) (*models.Session, error)

	// ListSessions returns session metadata only (no messages).
	ListSessions(ctx context.Context, agentID string, filter models.SessionFilter) ([]*models.Session, error)

	// UpdateSession atomically applies the given field updates. nil
	// pointers leave the corresponding field unchanged. Status
	// transition validity is the caller's responsibility.
	UpdateSession(ctx context.Context, id string, update SessionUpdate) error

	// ReplaceMessages atomically replaces a session's whole message
	// list. Used at every checkpoint.
	ReplaceMessages(ctx context.Context, id string, messages []models.Message) error

	// TouchSession updates LastHeartbeatAt to now, optionally also
	// setting token/turn counts. Cheap; called every turn and on every
	// heartbeat tick.
	TouchSession(ctx context.Context, id string, update SessionUpdate) error

	// AppendMessage appends a single message to a session's log.
	AppendMessage(ctx context.Context, id string, msg models.Message) error

	// FindActiveSessions returns every session with status=active, for
	// crash-recovery resume at Runtime start.
	FindActiveSessions(ctx context.Context) ([]*models.Session, error)

	// MarkStaleSessions sets status=stale for every active session whose
	// heartbeat is older than timeoutMs, returning the changed ids.
	MarkStaleSessions(ctx context.Context, timeoutMs int64) ([]string, error)

	// ToolCallRecord CRUD (written by HookChain.afterToolCall).
	RecordToolCall(ctx context.Context, record models.ToolCallRecord) error
	ListToolCalls(ctx context.Context, sessionID string) ([]models.ToolCallRecord, error)

	// FollowUp CRUD (Runtime.scheduleFollowUp / the follow-up scheduler).
	CreateFollowUp(ctx context.Context, f models.FollowUp) (*models.FollowUp, error)
	GetFollowUp(ctx context.Context, id string) (*models.FollowUp, error)
	ListPendingFollowUps(ctx context.Context) ([]models.FollowUp, error)
	ListFollowUps(ctx context.Context, agentID string) ([]models.FollowUp, error)
	UpdateFollowUpStatus(ctx context.Context, id string, status models.FollowUpStatus, nextExecuteAt *models.FollowUp) error
	CancelFollowUp(ctx context.Context, id string) (bool, error)

	// SubAgentLink CRUD.
	CreateSubAgentLink(ctx context.Context, link models.SubAgentLink) error
	ListActiveChildren(ctx context.Context, parentSessionID string) ([]models.SubAgentLink, error)
	SetSubAgentStatus(ctx context.Context, id string, status models.SubAgentStatus) error

	// UsageCounter CRUD (HookChain.recordLLMUsage default implementation).
	AddUsage(ctx context.Context, orgID, day string, usage models.Usage, costUSD float64) error
	GetUsage(ctx context.Context, orgID, day string) (*models.UsageCounter, error)
}

// SessionUpdate is a set of optional field updates for UpdateSession and
// TouchSession. A nil pointer leaves the field unchanged.
type SessionUpdate struct {
	Status     *models.SessionStatus
	TokenCount *int
	TurnCount  *int
}
