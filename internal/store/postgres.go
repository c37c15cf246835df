package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/agentruntime/core/internal/runtimeerr"
	"github.com/agentruntime/core/pkg/models"
)

// PostgresConfig holds connection parameters for the durable Store.
type PostgresConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPostgresConfig returns sane local-dev defaults.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Database:        "agentruntime",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// PostgresStore implements Store against Postgres (or any postgres-wire
// compatible database) via database/sql and lib/pq.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool and verifies connectivity.
func NewPostgresStore(cfg *PostgresConfig) (*PostgresStore, error) {
	if cfg == nil {
		cfg = DefaultPostgresConfig()
	}
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode, int(cfg.ConnectTimeout.Seconds()),
	)
	return newPostgresStoreWithDSN(dsn, cfg)
}

// NewPostgresStoreFromDSN opens a connection pool using a raw DSN.
func NewPostgresStoreFromDSN(dsn string, cfg *PostgresConfig) (*PostgresStore, error) {
	if cfg == nil {
		cfg = DefaultPostgresConfig()
	}
	return newPostgresStoreWithDSN(dsn, cfg)
}

func newPostgresStoreWithDSN(dsn string, cfg *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate postgres schema: %w", err)
	}
	return store, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, postgresSchema)
	return err
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	org_id TEXT NOT NULL,
	parent_session_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	turn_count INT NOT NULL DEFAULT 0,
	token_count INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	last_heartbeat_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_agent_status ON sessions (agent_id, status);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	seq BIGSERIAL
);
CREATE INDEX IF NOT EXISTS idx_messages_session_seq ON messages (session_id, seq);

CREATE TABLE IF NOT EXISTS tool_calls (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	turn_index INT NOT NULL,
	tool_name TEXT NOT NULL,
	input JSONB NOT NULL,
	result TEXT NOT NULL,
	success BOOLEAN NOT NULL,
	duration_ms BIGINT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	ended_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tool_calls_session ON tool_calls (session_id);

CREATE TABLE IF NOT EXISTS follow_ups (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	session_id TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL,
	execute_at TIMESTAMPTZ NOT NULL,
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
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sub_agent_links_parent ON sub_agent_links (parent_session_id, status);

CREATE TABLE IF NOT EXISTS usage_counters (
	org_id TEXT NOT NULL,
	day TEXT NOT NULL,
	input_tokens BIGINT NOT NULL DEFAULT 0,
	output_tokens BIGINT NOT NULL DEFAULT 0,
	cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (org_id, day)
);
`

func (s *PostgresStore) CreateSession(ctx context.Context, agentID, orgID, parentSessionID string) (*models.Session, error) {
	session := models.NewSession(uuid.NewString(), agentID, orgID, parentSessionID, time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, agent_id, org_id, parent_session_id, status, turn_count, token_count, created_at, last_heartbeat_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, session.ID, session.AgentID, session.OrgID, session.ParentSessionID, session.Status,
		session.TurnCount, session.TokenCount, session.CreatedAt, session.LastHeartbeatAt)
	if err != nil {
		return nil, runtimeerr.New("store.CreateSession", runtimeerr.Internal, err)
	}
	return session, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	session := &models.Session{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, org_id, parent_session_id, status, turn_count, token_count, created_at, last_heartbeat_at
		FROM sessions WHERE id = $1
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

func (s *PostgresStore) loadMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, created_at FROM messages
		WHERE session_id = $1 ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, runtimeerr.New("store.loadMessages", runtimeerr.Internal, err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var msg models.Message
		var contentJSON []byte
		if err := rows.Scan(&msg.ID, &msg.Role, &contentJSON, &msg.CreatedAt); err != nil {
			return nil, runtimeerr.New("store.loadMessages", runtimeerr.Internal, err)
		}
		if err := json.Unmarshal(contentJSON, &msg.Content); err != nil {
			return nil, runtimeerr.New("store.loadMessages", runtimeerr.Internal, err)
		}
		msg.SessionID = sessionID
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListSessions(ctx context.Context, agentID string, filter models.SessionFilter) ([]*models.Session, error) {
	query := `SELECT id, agent_id, org_id, parent_session_id, status, turn_count, token_count, created_at, last_heartbeat_at FROM sessions WHERE 1=1`
	var args []interface{}
	n := 1
	if agentID != "" {
		query += fmt.Sprintf(" AND agent_id = $%d", n)
		args = append(args, agentID)
		n++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", n)
		args = append(args, filter.Status)
		n++
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", n)
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

func (s *PostgresStore) UpdateSession(ctx context.Context, id string, update SessionUpdate) error {
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
			status = COALESCE($1, status),
			turn_count = COALESCE($2, turn_count),
			token_count = COALESCE($3, token_count)
		WHERE id = $4
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

func (s *PostgresStore) ReplaceMessages(ctx context.Context, id string, messages []models.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return runtimeerr.New("store.ReplaceMessages", runtimeerr.Internal, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = $1`, id); err != nil {
		return runtimeerr.New("store.ReplaceMessages", runtimeerr.Internal, err)
	}
	for _, msg := range messages {
		contentJSON, err := json.Marshal(msg.Content)
		if err != nil {
			return runtimeerr.New("store.ReplaceMessages", runtimeerr.Internal, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, session_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5)
		`, msg.ID, id, msg.Role, contentJSON, msg.CreatedAt); err != nil {
			return runtimeerr.New("store.ReplaceMessages", runtimeerr.Internal, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return runtimeerr.New("store.ReplaceMessages", runtimeerr.Internal, err)
	}
	return nil
}

func (s *PostgresStore) TouchSession(ctx context.Context, id string, update SessionUpdate) error {
	now := time.Now()
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
			last_heartbeat_at = $1,
			status = COALESCE($2, status),
			turn_count = COALESCE($3, turn_count),
			token_count = COALESCE($4, token_count)
		WHERE id = $5
	`, now, status, turnCount, tokenCount, id)
	if err != nil {
		return runtimeerr.New("store.TouchSession", runtimeerr.Internal, err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return runtimeerr.New("store.TouchSession", runtimeerr.NotFound, nil)
	}
	return nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, id string, msg models.Message) error {
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
		INSERT INTO messages (id, session_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5)
	`, msg.ID, id, msg.Role, contentJSON, msg.CreatedAt); err != nil {
		return runtimeerr.New("store.AppendMessage", runtimeerr.Internal, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET last_heartbeat_at = $1 WHERE id = $2`, time.Now(), id); err != nil {
		return runtimeerr.New("store.AppendMessage", runtimeerr.Internal, err)
	}
	return tx.Commit()
}

func (s *PostgresStore) FindActiveSessions(ctx context.Context) ([]*models.Session, error) {
	return s.ListSessions(ctx, "", models.SessionFilter{Status: models.SessionActive})
}

func (s *PostgresStore) MarkStaleSessions(ctx context.Context, timeoutMs int64) ([]string, error) {
	cutoff := time.Now().Add(-time.Duration(timeoutMs) * time.Millisecond)
	rows, err := s.db.QueryContext(ctx, `
		UPDATE sessions SET status = $1 WHERE status = $2 AND last_heartbeat_at < $3 RETURNING id
	`, models.SessionStale, models.SessionActive, cutoff)
	if err != nil {
		return nil, runtimeerr.New("store.MarkStaleSessions", runtimeerr.Internal, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, runtimeerr.New("store.MarkStaleSessions", runtimeerr.Internal, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) RecordToolCall(ctx context.Context, record models.ToolCallRecord) error {
	inputJSON, err := json.Marshal(record.Input)
	if err != nil {
		return runtimeerr.New("store.RecordToolCall", runtimeerr.Internal, err)
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tool_calls (id, session_id, agent_id, turn_index, tool_name, input, result, success, duration_ms, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, record.ID, record.SessionID, record.AgentID, record.TurnIndex, record.ToolName, inputJSON,
		record.Result, record.Success, record.Duration.Milliseconds(), record.StartedAt, record.EndedAt)
	if err != nil {
		return runtimeerr.New("store.RecordToolCall", runtimeerr.Internal, err)
	}
	return nil
}

func (s *PostgresStore) ListToolCalls(ctx context.Context, sessionID string) ([]models.ToolCallRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, agent_id, turn_index, tool_name, input, result, success, duration_ms, started_at, ended_at
		FROM tool_calls WHERE session_id = $1 ORDER BY started_at ASC
	`, sessionID)
	if err != nil {
		return nil, runtimeerr.New("store.ListToolCalls", runtimeerr.Internal, err)
	}
	defer rows.Close()

	var out []models.ToolCallRecord
	for rows.Next() {
		var r models.ToolCallRecord
		var inputJSON []byte
		var durationMs int64
		if err := rows.Scan(&r.ID, &r.SessionID, &r.AgentID, &r.TurnIndex, &r.ToolName, &inputJSON,
			&r.Result, &r.Success, &durationMs, &r.StartedAt, &r.EndedAt); err != nil {
			return nil, runtimeerr.New("store.ListToolCalls", runtimeerr.Internal, err)
		}
		r.Input = inputJSON
		r.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateFollowUp(ctx context.Context, f models.FollowUp) (*models.FollowUp, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Status == "" {
		f.Status = models.FollowUpPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO follow_ups (id, agent_id, session_id, message, execute_at, status, every)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, f.ID, f.AgentID, f.SessionID, f.Message, f.ExecuteAt, f.Status, f.Every)
	if err != nil {
		return nil, runtimeerr.New("store.CreateFollowUp", runtimeerr.Internal, err)
	}
	return &f, nil
}

func (s *PostgresStore) scanFollowUp(row *sql.Row) (*models.FollowUp, error) {
	f := &models.FollowUp{}
	err := row.Scan(&f.ID, &f.AgentID, &f.SessionID, &f.Message, &f.ExecuteAt, &f.Status, &f.Every)
	if err == sql.ErrNoRows {
		return nil, runtimeerr.New("store.GetFollowUp", runtimeerr.NotFound, err)
	}
	if err != nil {
		return nil, runtimeerr.New("store.GetFollowUp", runtimeerr.Internal, err)
	}
	return f, nil
}

func (s *PostgresStore) GetFollowUp(ctx context.Context, id string) (*models.FollowUp, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, session_id, message, execute_at, status, every FROM follow_ups WHERE id = $1
	`, id)
	return s.scanFollowUp(row)
}

func (s *PostgresStore) listFollowUps(ctx context.Context, query string, args ...interface{}) ([]models.FollowUp, error) {
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

func (s *PostgresStore) ListPendingFollowUps(ctx context.Context) ([]models.FollowUp, error) {
	return s.listFollowUps(ctx, `
		SELECT id, agent_id, session_id, message, execute_at, status, every
		FROM follow_ups WHERE status = $1 ORDER BY execute_at ASC
	`, models.FollowUpPending)
}

func (s *PostgresStore) ListFollowUps(ctx context.Context, agentID string) ([]models.FollowUp, error) {
	return s.listFollowUps(ctx, `
		SELECT id, agent_id, session_id, message, execute_at, status, every
		FROM follow_ups WHERE agent_id = $1 ORDER BY execute_at ASC
	`, agentID)
}

func (s *PostgresStore) UpdateFollowUpStatus(ctx context.Context, id string, status models.FollowUpStatus, next *models.FollowUp) error {
	newStatus := status
	var executeAt interface{}
	if next != nil {
		newStatus = models.FollowUpPending
		executeAt = next.ExecuteAt
	}
	var res sql.Result
	var err error
	if executeAt != nil {
		res, err = s.db.ExecContext(ctx, `UPDATE follow_ups SET status = $1, execute_at = $2 WHERE id = $3`, newStatus, executeAt, id)
	} else {
		res, err = s.db.ExecContext(ctx, `UPDATE follow_ups SET status = $1 WHERE id = $2`, newStatus, id)
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

func (s *PostgresStore) CancelFollowUp(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE follow_ups SET status = $1 WHERE id = $2 AND status = $3
	`, models.FollowUpCancelled, id, models.FollowUpPending)
	if err != nil {
		return false, runtimeerr.New("store.CancelFollowUp", runtimeerr.Internal, err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

func (s *PostgresStore) CreateSubAgentLink(ctx context.Context, link models.SubAgentLink) error {
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sub_agent_links (id, parent_session_id, child_session_id, task, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, link.ID, link.ParentSessionID, link.ChildSessionID, link.Task, link.Status, link.CreatedAt)
	if err != nil {
		return runtimeerr.New("store.CreateSubAgentLink", runtimeerr.Internal, err)
	}
	return nil
}

func (s *PostgresStore) ListActiveChildren(ctx context.Context, parentSessionID string) ([]models.SubAgentLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_session_id, child_session_id, task, status, created_at
		FROM sub_agent_links WHERE parent_session_id = $1 AND status = $2
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

func (s *PostgresStore) SetSubAgentStatus(ctx context.Context, id string, status models.SubAgentStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sub_agent_links SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return runtimeerr.New("store.SetSubAgentStatus", runtimeerr.Internal, err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return runtimeerr.New("store.SetSubAgentStatus", runtimeerr.NotFound, nil)
	}
	return nil
}

func (s *PostgresStore) AddUsage(ctx context.Context, orgID, day string, usage models.Usage, costUSD float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_counters (org_id, day, input_tokens, output_tokens, cost_usd)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (org_id, day) DO UPDATE SET
			input_tokens = usage_counters.input_tokens + EXCLUDED.input_tokens,
			output_tokens = usage_counters.output_tokens + EXCLUDED.output_tokens,
			cost_usd = usage_counters.cost_usd + EXCLUDED.cost_usd
	`, orgID, day, usage.InputTokens, usage.OutputTokens, costUSD)
	if err != nil {
		return runtimeerr.New("store.AddUsage", runtimeerr.Internal, err)
	}
	return nil
}

func (s *PostgresStore) GetUsage(ctx context.Context, orgID, day string) (*models.UsageCounter, error) {
	u := &models.UsageCounter{OrgID: orgID, Day: day}
	err := s.db.QueryRowContext(ctx, `
		SELECT input_tokens, output_tokens, cost_usd FROM usage_counters WHERE org_id = $1 AND day = $2
	`, orgID, day).Scan(&u.InputTokens, &u.OutputTokens, &u.CostUSD)
	if err == sql.ErrNoRows {
		return u, nil
	}
	if err != nil {
		return nil, runtimeerr.New("store.GetUsage", runtimeerr.Internal, err)
	}
	return u, nil
}
