package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/agentruntime/core/pkg/models"
	"github.com/google/uuid"
)

// TestStartResumesActiveSessionWithHistory drives spec.md §4.5's
// crash-recovery path through a live Runtime: a session the Store
// already reports active (as if the previous process crashed
// mid-turn) must be picked up by Start, get the synthetic restart
// notice appended, and run its loop to completion.
func TestStartResumesActiveSessionWithHistory(t *testing.T) {
	rt, fs := newTestRuntime(newFakeClock(time.Now()))

	ctx := context.Background()
	session, err := fs.CreateSession(ctx, "agent-1", "org-1", "")
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	seedMsg := models.NewTextMessage(uuid.NewString(), session.ID, models.RoleUser, "where were we?", time.Now())
	if err := fs.ReplaceMessages(ctx, session.ID, []models.Message{seedMsg}); err != nil {
		t.Fatalf("seed messages: %v", err)
	}

	if err := rt.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer rt.Stop(context.Background())

	resumed := waitForSessionStatus(t, fs, session.ID, models.SessionCompleted, time.Second)
	if len(resumed.Messages) < 2 {
		t.Fatalf("expected the resume notice appended after the seeded message, got %d messages", len(resumed.Messages))
	}
	foundNotice := false
	for _, m := range resumed.Messages {
		if m.Role == models.RoleSystem && m.Text() != "" {
			foundNotice = true
		}
	}
	if !foundNotice {
		t.Fatalf("expected a synthetic restart notice among %+v", resumed.Messages)
	}
}

// TestStartMarksUnresumableSessionFailed covers the other branch of
// resumeActiveSessions: a session with no message history cannot be
// resumed and must be marked failed, synchronously, before Start
// returns.
func TestStartMarksUnresumableSessionFailed(t *testing.T) {
	rt, fs := newTestRuntime(newFakeClock(time.Now()))

	ctx := context.Background()
	session, err := fs.CreateSession(ctx, "agent-1", "org-1", "")
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}

	if err := rt.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer rt.Stop(context.Background())

	final, err := fs.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if final.Status != models.SessionFailed {
		t.Fatalf("expected unresumable session marked failed, got %s", final.Status)
	}
}

// TestStaleTickCancelsAndDropsActiveSession drives a stale-session tick
// through a live Runtime (spec.md §4.6/E7): a session whose heartbeat
// has gone quiet must have its loop cancelled and its activeSessions
// entry dropped the moment the stale timer fires, not just have its
// Store row flipped to stale.
func TestStaleTickCancelsAndDropsActiveSession(t *testing.T) {
	clock := newFakeClock(time.Now())
	rt, fs := newTestRuntime(clock)
	release := make(chan struct{})
	rt.deps.Models["fake"] = &blockingClient{name: "fake", release: release}
	defer close(release)

	session, err := rt.Spawn(context.Background(), SpawnOptions{AgentID: "agent-1", OrgID: "org-1"})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer rt.Stop(context.Background())

	deadline := time.Now().Add(time.Second)
	for rt.GetActiveSessionCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if rt.GetActiveSessionCount() == 0 {
		t.Fatal("expected the spawned session to be tracked as active before the stale tick")
	}

	// Back-date the session's heartbeat past the stale timeout so the
	// next tick's MarkStaleSessions picks it up, without needing the
	// fake clock's Now() (the Store layer's staleness cutoff is wall-clock
	// based, same as the real SQLite/Postgres implementations).
	fs.mu.Lock()
	fs.sessions[session.ID].LastHeartbeatAt = time.Now().Add(-2 * rt.config.StaleSessionTimeout)
	fs.mu.Unlock()

	clock.Advance(rt.config.StaleSessionTimeout)

	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if rt.GetActiveSessionCount() == 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if rt.GetActiveSessionCount() != 0 {
		t.Fatal("expected the stale tick to drop the session from activeSessions")
	}

	final, err := fs.GetSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if final.Status != models.SessionStale {
		t.Fatalf("expected session status stale, got %s", final.Status)
	}
}
