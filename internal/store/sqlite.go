package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/agentruntime/core/internal/runtimeerr"
	"github.com/agentruntime/core/pkg/models"
)

// SQLiteStore implements Store against a local SQLite file, for
// single-process deployments and tests that want real persistence
// semantics without a database server. WAL mode lets the Runtime's
// heartbeat writer and a concurrent reader (e.g. a status CLI) avoid
// lock contention.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) a SQLite database file at
// path and runs migrations. Use ":memory:" for an ephemeral database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	store := &SQLiteStore{db: db}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite schema: %w", err)
	}
	return store, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	org_id TEXT NOT NULL,
	parent_session_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	turn_count INTEGER NOT NULL DEFAULT 0,
	token_count INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	last_heartbeat_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_agent_status ON sessions (agent_id, status);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages (session_id);

CREATE TABLE IF NOT EXISTS tool_calls (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	turn_index INTEGER NOT NULL,
	tool_name TEXT NOT NULL,
	input TEXT NOT NULL,
	result TEXT NOT NULL,
	success INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	started_at DATETIME NOT NULL,
	ended_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tool_calls_session ON tool_calls (session_id);

CREATE TABLE IF NOT EXISTS follow_ups (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	session_id TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL,
	execute_at DATETIME NOT NULL,
	status TEXT NOT NULL,
	every TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_follow_ups_status_execute ON follow_ups (status, execute_at);

CREATE TABLE IF NOT EXISTS sub_agent_links (
	id TEXT PRIMARY KEY,
	parent_session_id TEXT NOT NULL,
	child_session_id TEXT NOT NULL,
	task TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sub_agent_links_parent ON sub_agent_links (parent_session_id, status);

CREATE TABLE IF NOT EXISTS usage_counters (
	org_id TEXT NOT NULL,
	day TEXT NOT NULL,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost_usd REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (org_id, day)
);
`

func (s *SQLiteStore) CreateSession(ctx context.Context, agentID, orgID, parentSessionID string) (*models.Session, error) {
	session := models.NewSession(uuid.NewString(), agentID, orgID, parentSessionID, time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, agent_id, org_id, parent_session_id, status, turn_count, token_count, created_at, last_heartbeat_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, session.ID, session.AgentID, session.OrgID, session.ParentSessionID, session.Status,
		session.TurnCount, session.TokenCount, session.CreatedAt, session.LastHeartbeatAt)
	if err != nil {
		return nil, runtimeerr.New("store.CreateSession", runtimeerr.Internal, err)
	}
	return session, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	session := &models.Session{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, org_id, parent_session_id, status, turn_count, token_count, created_at, last_heartbeat_at
		FROM sessions WHERE id = ?
	`, id).Scan(&session.ID, &session.AgentID, &session.OrgID, &session.ParentSessionID, &session.Status,
		&session.TurnCount, &session.TokenCount, &session.CreatedAt, &session.LastHeartbeatAt)
	if err == sql.ErrNoRows {
		return nil, runtimeerr.New("store.GetSession", runtimeerr.NotFound, err)
	}
	if err != nil {
		return nil, runtimeerr.New("store.GetSession", runtimeerr.Internal, err)
	}

	messages, err := s.loadMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	session.Messages = messages
	return session, nil
}

func (s *SQLiteStore) loadMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, created_at FROM messages
		WHERE session_id = ? ORDER BY rowid ASC
	`, sessionID)
	if err != nil {
		return nil, runtimeerr.New("store.loadMessages", runtimeerr.Internal, err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var msg models.Message
		var contentJSON string
		if err := rows.Scan(&msg.ID, &msg.Role, &contentJSON, &msg.CreatedAt); err != nil {
			return nil, runtimeerr.New("store.loadMessages", runtimeerr.Internal, err)
		}
		if err := json.Unmarshal([]byte(contentJSON), &msg.Content); err != nil {
			return nil, runtimeerr.New("store.loadMessages", runtimeerr.Internal, err)
		}
		msg.SessionID = sessionID
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListSessions(ctx context.Context, agentID string, filter models.SessionFilter) ([]*models.Session, error) {
	query := `SELECT id, agent_id, org_id, parent_session_id, status, turn_count, token_count, created_at, last_heartbeat_at FROM sessions WHERE 1=1`
	var args []interface{}
	if agentID != "" {
		query += " AND agent_id = ?"
		args = append(args, agentID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, runtimeerr.New("store.ListSessions", runtimeerr.Internal, err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		session := &models.Session{}
		if err := rows.Scan(&session.ID, &session.AgentID, &session.OrgID, &session.ParentSessionID, &session.Status,
			&session.TurnCount, &session.TokenCount, &session.CreatedAt, &session.LastHeartbeatAt); err != nil {
			return nil, runtimeerr.New("store.ListSessions", runtimeerr.Internal, err)
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, id string, update SessionUpdate) error {
	var status, turnCount, tokenCount interface{}
	if update.Status != nil {
		status = *update.Status
	}
	if update.TurnCount != nil {
		turnCount = *update.TurnCount
	}
	if update.TokenCount != nil {
		tokenCount = *update.TokenCount
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
			status = COALESCE(?, status),
			turn_count = COALESCE(?, turn_count),
			token_count = COALESCE(?, token_count)
		WHERE id = ?
	`, status, turnCount, tokenCount, id)
	if err != nil {
		return runtimeerr.New("store.UpdateSession", runtimeerr.Internal, err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return runtimeerr.New("store.UpdateSession", runtimeerr.NotFound, nil)
	}
	return nil
}

func (s *SQLiteStore) ReplaceMessages(ctx context.Context, id string, messages []models.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return runtimeerr.New("store.ReplaceMessages", runtimeerr.Internal, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return runtimeerr.New("store.ReplaceMessages", runtimeerr.Internal, err)
	}
	for _, msg := range messages {
		contentJSON, err := json.Marshal(msg.Content)
		if err != nil {
			return runtimeerr.New("store.ReplaceMessages", runtimeerr.Internal, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)
		`, msg.ID, id, msg.Role, string(contentJSON), msg.CreatedAt); err != nil {
			return runtimeerr.New("store.ReplaceMessages", runtimeerr.Internal, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return runtimeerr.New("store.ReplaceMessages", runtimeerr.Internal, err)
	}
	return nil
}

func (s *SQLiteStore) TouchSession(ctx context.Context, id string, update SessionUpdate) error {
	var status, turnCount, tokenCount interface{}
	if update.Status != nil {
		status = *update.Status
	}
	if update.TurnCount != nil {
		turnCount = *update.TurnCount
	}
	if update.TokenCount != nil {
		tokenCount = *update.TokenCount
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
			last_heartbeat_at = ?,
			status = COALESCE(?, status),
			turn_count = COALESCE(?, turn_count),
			token_count = COALESCE(?, token_count)
		WHERE id = ?
	`, time.Now(), status, turnCount, tokenCount, id)
	if err != nil {
		return runtimeerr.New("store.TouchSession", runtimeerr.Internal, err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return runtimeerr.New("store.TouchSession", runtimeerr.NotFound, nil)
	}
	return nil
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, id string, msg models.Message) error {
	contentJSON, err := json.Marshal(msg.Content)
	if err != nil {
		return runtimeerr.New("store.AppendMessage", runtimeerr.Internal, err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return runtimeerr.New("store.AppendMessage", runtimeerr.Internal, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)
	`, msg.ID, id, msg.Role, string(contentJSON), msg.CreatedAt); err != nil {
		return runtimeerr.New("store.AppendMessage", runtimeerr.Internal, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET last_heartbeat_at = ? WHERE id = ?`, time.Now(), id); err != nil {
		return runtimeerr.New("store.AppendMessage", runtimeerr.Internal, err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) FindActiveSessions(ctx context.Context) ([]*models.Session, error) {
	return s.ListSessions(ctx, "", models.SessionFilter{Status: models.SessionActive})
}

func (s *SQLiteStore) MarkStaleSessions(ctx context.Context, timeoutMs int64) ([]string, error) {
	cutoff := time.Now().Add(-time.Duration(timeoutMs) * time.Millisecond)
	rows, err := s.db.QueryContext(ctx, `
		UPDATE sessions SET status = ? WHERE status = ? AND last_heartbeat_at < ? RETURNING id
	`, models.SessionStale, models.SessionActive, cutoff)
	if err != nil {
		return nil, runtimeerr.New("store.MarkStaleSessions", runtimeerr.Internal, err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, runtimeerr.New("store.MarkStaleSessions", runtimeerr.Internal, err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, runtimeerr.New("store.MarkStaleSessions", runtimeerr.Internal, err)
	}
	return ids, nil
}

func (s *SQLiteStore) RecordToolCall(ctx context.Context, record models.ToolCallRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_calls (id, session_id, agent_id, turn_index, tool_name, input, result, success, duration_ms, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, record.ID, record.SessionID, record.AgentID, record.TurnIndex, record.ToolName, string(record.Input),
		record.Result, record.Success, record.Duration.Milliseconds(), record.StartedAt, record.EndedAt)
	if err != nil {
		return runtimeerr.New("store.RecordToolCall", runtimeerr.Internal, err)
	}
	return nil
}

func (s *SQLiteStore) ListToolCalls(ctx context.Context, sessionID string) ([]models.ToolCallRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, agent_id, turn_index, tool_name, input, result, success, duration_ms, started_at, ended_at
		FROM tool_calls WHERE session_id = ? ORDER BY started_at ASC
	`, sessionID)
	if err != nil {
		return nil, runtimeerr.New("store.ListToolCalls", runtimeerr.Internal, err)
	}
	defer rows.Close()

	var out []models.ToolCallRecord
	for rows.Next() {
		var r models.ToolCallRecord
		var input string
		var durationMs int64
		if err := rows.Scan(&r.ID, &r.SessionID, &r.AgentID, &r.TurnIndex, &r.ToolName, &input,
			&r.Result, &r.Success, &durationMs, &r.StartedAt, &r.EndedAt); err != nil {
			return nil, runtimeerr.New("store.ListToolCalls", runtimeerr.Internal, err)
		}
		r.Input = []byte(input)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateFollowUp(ctx context.Context, f models.FollowUp) (*models.FollowUp, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Status == "" {
		f.Status = models.FollowUpPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO follow_ups (id, agent_id, session_id, message, execute_at, status, every)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.AgentID, f.SessionID, f.Message, f.ExecuteAt, f.Status, f.Every)
	if err != nil {
		return nil, runtimeerr.New("store.CreateFollowUp", runtimeerr.Internal, err)
	}
	return &f, nil
}

func (s *SQLiteStore) GetFollowUp(ctx context.Context, id string) (*models.FollowUp, error) {
	f := &models.FollowUp{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, session_id, message, execute_at, status, every FROM follow_ups WHERE id = ?
	`, id).Scan(&f.ID, &f.AgentID, &f.SessionID, &f.Message, &f.ExecuteAt, &f.Status, &f.Every)
	if err == sql.ErrNoRows {
		return nil, runtimeerr.New("store.GetFollowUp", runtimeerr.NotFound, err)
	}
	if err != nil {
		return nil, runtimeerr.New("store.GetFollowUp", runtimeerr.Internal, err)
	}
	return f, nil
}

func (s *SQLiteStore) listFollowUps(ctx context.Context, query string, args ...interface{}) ([]models.FollowUp, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, runtimeerr.New("store.listFollowUps", runtimeerr.Internal, err)
	}
	defer rows.Close()

	var out []models.FollowUp
	for rows.Next() {
		var f models.FollowUp
		if err := rows.Scan(&f.ID, &f.AgentID, &f.SessionID, &f.Message, &f.ExecuteAt, &f.Status, &f.Every); err != nil {
			return nil, runtimeerr.New("store.listFollowUps", runtimeerr.Internal, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListPendingFollowUps(ctx context.Context) ([]models.FollowUp, error) {
	return s.listFollowUps(ctx, `
		SELECT id, agent_id, session_id, message, execute_at, status, every
		FROM follow_ups WHERE status = ? ORDER BY execute_at ASC
	`, models.FollowUpPending)
}

func (s *SQLiteStore) ListFollowUps(ctx context.Context, agentID string) ([]models.FollowUp, error) {
	return s.listFollowUps(ctx, `
		SELECT id, agent_id, session_id, message, execute_at, status, every
		FROM follow_ups WHERE agent_id = ? ORDER BY execute_at ASC
	`, agentID)
}

func (s *SQLiteStore) UpdateFollowUpStatus(ctx context.Context, id string, status models.FollowUpStatus, next *models.FollowUp) error {
	newStatus := status
	var res sql.Result
	var err error
	if next != nil {
		newStatus = models.FollowUpPending
		res, err = s.db.ExecContext(ctx, `UPDATE follow_ups SET status = ?, execute_at = ? WHERE id = ?`, newStatus, next.ExecuteAt, id)
	} else {
		res, err = s.db.ExecContext(ctx, `UPDATE follow_ups SET status = ? WHERE id = ?`, newStatus, id)
	}
	if err != nil {
		return runtimeerr.New("store.UpdateFollowUpStatus", runtimeerr.Internal, err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return runtimeerr.New("store.UpdateFollowUpStatus", runtimeerr.NotFound, nil)
	}
	return nil
}

func (s *SQLiteStore) CancelFollowUp(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE follow_ups SET status = ? WHERE id = ? AND status = ?
	`, models.FollowUpCancelled, id, models.FollowUpPending)
	if err != nil {
		return false, runtimeerr.New("store.CancelFollowUp", runtimeerr.Internal, err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

func (s *SQLiteStore) CreateSubAgentLink(ctx context.Context, link models.SubAgentLink) error {
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sub_agent_links (id, parent_session_id, child_session_id, task, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, link.ID, link.ParentSessionID, link.ChildSessionID, link.Task, link.Status, link.CreatedAt)
	if err != nil {
		return runtimeerr.New("store.CreateSubAgentLink", runtimeerr.Internal, err)
	}
	return nil
}

func (s *SQLiteStore) ListActiveChildren(ctx context.Context, parentSessionID string) ([]models.SubAgentLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_session_id, child_session_id, task, status, created_at
		FROM sub_agent_links WHERE parent_session_id = ? AND status = ?
	`, parentSessionID, models.SubAgentActive)
	if err != nil {
		return nil, runtimeerr.New("store.ListActiveChildren", runtimeerr.Internal, err)
	}
	defer rows.Close()

	var out []models.SubAgentLink
	for rows.Next() {
		var l models.SubAgentLink
		if err := rows.Scan(&l.ID, &l.ParentSessionID, &l.ChildSessionID, &l.Task, &l.Status, &l.CreatedAt); err != nil {
			return nil, runtimeerr.New("store.ListActiveChildren", runtimeerr.Internal, err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SetSubAgentStatus(ctx context.Context, id string, status models.SubAgentStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sub_agent_links SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return runtimeerr.New("store.SetSubAgentStatus", runtimeerr.Internal, err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return runtimeerr.New("store.SetSubAgentStatus", runtimeerr.NotFound, nil)
	}
	return nil
}

func (s *SQLiteStore) AddUsage(ctx context.Context, orgID, day string, usage models.Usage, costUSD float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_counters (org_id, day, input_tokens, output_tokens, cost_usd)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (org_id, day) DO UPDATE SET
			input_tokens = input_tokens + excluded.input_tokens,
			output_tokens = output_tokens + excluded.output_tokens,
			cost_usd = cost_usd + excluded.cost_usd
	`, orgID, day, usage.InputTokens, usage.OutputTokens, costUSD)
	if err != nil {
		return runtimeerr.New("store.AddUsage", runtimeerr.Internal, err)
	}
	return nil
}

func (s *SQLiteStore) GetUsage(ctx context.Context, orgID, day string) (*models.UsageCounter, error) {
	u := &models.UsageCounter{OrgID: orgID, Day: day}
	err := s.db.QueryRowContext(ctx, `
		SELECT input_tokens, output_tokens, cost_usd FROM usage_counters WHERE org_id = ? AND day = ?
	`, orgID, day).Scan(&u.InputTokens, &u.OutputTokens, &u.CostUSD)
	if err == sql.ErrNoRows {
		return u, nil
	}
	if err != nil {
		return nil, runtimeerr.New("store.GetUsage", runtimeerr.Internal, err)
	}
	return u, nil
}
