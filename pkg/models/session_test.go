package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewSession(t *testing.T) {
	now := time.Now()
	s := NewSession("sess_1", "agent_1", "org_1", "", now)

	require.Equal(t, SessionActive, s.Status)
	require.Equal(t, 0, s.TurnCount)
	require.Equal(t, now, s.LastHeartbeatAt)
	require.Empty(t, s.ParentSessionID)
}

func TestSessionStatusTerminal(t *testing.T) {
	require.False(t, SessionActive.Terminal())
	require.False(t, SessionPaused.Terminal())
	require.True(t, SessionCompleted.Terminal())
	require.True(t, SessionFailed.Terminal())
	require.True(t, SessionStale.Terminal())
}
