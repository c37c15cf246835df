package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/agentruntime/core/pkg/models"
)

func setupMockPostgres(t *testing.T) (sqlmock.Sqlmock, *PostgresStore) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return mock, &PostgresStore{db: db}
}

func TestPostgresStoreCreateSession(t *testing.T) {
	mock, store := setupMockPostgres(t)

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs(sqlmock.AnyArg(), "agent-1", "org-1", "", models.SessionActive, 0, 0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	session, err := store.CreateSession(context.Background(), "agent-1", "org-1", "")
	require.NoError(t, err)
	require.Equal(t, "agent-1", session.AgentID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGetSessionNotFound(t *testing.T) {
	mock, store := setupMockPostgres(t)

	mock.ExpectQuery("SELECT id, agent_id, org_id, parent_session_id, status, turn_count, token_count, created_at, last_heartbeat_at").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetSession(context.Background(), "missing")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGetSession(t *testing.T) {
	mock, store := setupMockPostgres(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "agent_id", "org_id", "parent_session_id", "status", "turn_count", "token_count", "created_at", "last_heartbeat_at"}).
		AddRow("s1", "agent-1", "org-1", "", models.SessionActive, 2, 150, now, now)
	mock.ExpectQuery("SELECT id, agent_id, org_id, parent_session_id, status, turn_count, token_count, created_at, last_heartbeat_at").
		WithArgs("s1").
		WillReturnRows(rows)

	msgRows := sqlmock.NewRows([]string{"id", "role", "content", "created_at"}).
		AddRow("m1", "user", `[{"type":"text","text":"hi"}]`, now)
	mock.ExpectQuery("SELECT id, role, content, created_at FROM messages").
		WithArgs("s1").
		WillReturnRows(msgRows)

	session, err := store.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, 2, session.TurnCount)
	require.Len(t, session.Messages, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreAddUsage(t *testing.T) {
	mock, store := setupMockPostgres(t)

	mock.ExpectExec("INSERT INTO usage_counters").
		WithArgs("org-1", "2026-07-31", 10, 5, 0.01).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.AddUsage(context.Background(), "org-1", "2026-07-31", models.Usage{InputTokens: 10, OutputTokens: 5}, 0.01)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
