package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentruntime/core/pkg/models"
)

type staticResolver struct {
	agentID string
	err     error
}

func (r staticResolver) ResolveAgentIDForSender(ctx context.Context, from string) (string, error) {
	return r.agentID, r.err
}

func TestHandleInboundEmailWithoutResolverIsRejected(t *testing.T) {
	rt, _ := newTestRuntime(newFakeClock(time.Now()))
	_, err := rt.HandleInboundEmail(context.Background(), InboundEmail{From: "a@example.com", Body: "hi"})
	if err == nil {
		t.Fatal("expected an error when no AgentResolver is configured")
	}
}

func TestHandleInboundEmailUnresolvableSenderIsRejected(t *testing.T) {
	rt, _ := newTestRuntime(newFakeClock(time.Now()))
	rt.deps.EmailResolver = staticResolver{err: errors.New("no such sender")}
	_, err := rt.HandleInboundEmail(context.Background(), InboundEmail{From: "nobody@example.com", Body: "hi"})
	if err == nil {
		t.Fatal("expected an error for an unresolvable sender")
	}
}

func TestHandleInboundEmailSpawnsWhenNoActiveSession(t *testing.T) {
	rt, fs := newTestRuntime(newFakeClock(time.Now()))
	rt.deps.EmailResolver = staticResolver{agentID: "agent-1"}

	result, err := rt.HandleInboundEmail(context.Background(), InboundEmail{From: "a@example.com", Body: "please help"})
	if err != nil {
		t.Fatalf("HandleInboundEmail: %v", err)
	}
	if !result.Created {
		t.Fatal("expected a new session to be created when none is active")
	}
	session, err := fs.GetSession(context.Background(), result.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if session.Messages[0].Text() != "please help" {
		t.Fatalf("expected the email body to seed the new session, got %+v", session.Messages)
	}
}

func TestHandleInboundEmailDeliversToExistingActiveSession(t *testing.T) {
	rt, fs := newTestRuntime(newFakeClock(time.Now()))
	rt.deps.EmailResolver = staticResolver{agentID: "agent-1"}
	rt.deps.Models["fake"] = &blockingClient{name: "fake", release: make(chan struct{})}

	session, err := rt.Spawn(context.Background(), SpawnOptions{AgentID: "agent-1", OrgID: "org-1"})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	result, err := rt.HandleInboundEmail(context.Background(), InboundEmail{From: "a@example.com", Body: "follow-up question"})
	if err != nil {
		t.Fatalf("HandleInboundEmail: %v", err)
	}
	if result.Created {
		t.Fatal("expected the existing active session to be reused, not a new one created")
	}
	if result.SessionID != session.ID {
		t.Fatalf("expected delivery to session %s, got %s", session.ID, result.SessionID)
	}

	full, err := fs.GetSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	found := false
	for _, m := range full.Messages {
		if m.Role == models.RoleUser && m.Text() == "follow-up question" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the email body to be steered into the existing session")
	}
}
