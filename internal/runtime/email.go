package runtime

import (
	"context"
	"fmt"

	"github.com/agentruntime/core/internal/runtimeerr"
	"github.com/agentruntime/core/pkg/models"
)

// AgentResolver maps an inbound email's sender address to the agent id
// that owns it (spec.md §4.6: "handleInboundEmail maps sender→agent via
// Store"). The core has no Store method for this mapping — sender/agent
// identity is outside the entity shapes of §3 — so it is an optional
// collaborator a caller wires in, not a Store capability.
type AgentResolver interface {
	ResolveAgentIDForSender(ctx context.Context, from string) (agentID string, err error)
}

// InboundEmail is one received message handed to HandleInboundEmail.
type InboundEmail struct {
	From    string
	Subject string
	Body    string
}

// InboundEmailResult reports which agent/session an email was routed to.
type InboundEmailResult struct {
	AgentID   string
	SessionID string
	Created   bool
}

// HandleInboundEmail is the inbound email adapter (spec.md §4.6): find
// the owning agent, find an active session or create one, and deliver
// the body via SendMessage. It is not part of the AgentLoop.
func (r *Runtime) HandleInboundEmail(ctx context.Context, email InboundEmail) (*InboundEmailResult, error) {
	if r.deps.EmailResolver == nil {
		return nil, runtimeerr.New("runtime.handleInboundEmail", runtimeerr.PreconditionFailed,
			fmt.Errorf("no agent resolver configured for the email channel"))
	}
	agentID, err := r.deps.EmailResolver.ResolveAgentIDForSender(ctx, email.From)
	if err != nil {
		return nil, runtimeerr.New("runtime.handleInboundEmail", runtimeerr.NotFound, err)
	}

	sessions, err := r.deps.Store.ListSessions(ctx, agentID, models.SessionFilter{Status: models.SessionActive, Limit: 1})
	if err != nil {
		return nil, runtimeerr.New("runtime.handleInboundEmail", runtimeerr.Internal, err)
	}

	if len(sessions) > 0 {
		sid := sessions[0].ID
		if err := r.SendMessage(ctx, sid, email.Body); err != nil {
			return nil, err
		}
		return &InboundEmailResult{AgentID: agentID, SessionID: sid}, nil
	}

	session, err := r.Spawn(ctx, SpawnOptions{AgentID: agentID, InitialMessage: email.Body})
	if err != nil {
		return nil, err
	}
	return &InboundEmailResult{AgentID: agentID, SessionID: session.ID, Created: true}, nil
}
