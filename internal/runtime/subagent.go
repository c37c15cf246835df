package runtime

import (
	"context"
	"fmt"

	"github.com/agentruntime/core/internal/modelclient"
	"github.com/agentruntime/core/internal/runtimeerr"
	"github.com/agentruntime/core/pkg/models"
	"github.com/google/uuid"
)

// SubAgentOptions parameterizes SpawnSubAgent (spec.md §4.6's
// spawnSubAgent({parentSid, task, agentId?, model?})).
type SubAgentOptions struct {
	ParentSessionID string
	Task            string

	// AgentID defaults to the parent session's agent id.
	AgentID string

	Provider     string
	Model        string
	SystemPrompt string
	Tools        []modelclient.ToolDef
}

// SubAgentResult is SpawnSubAgent's outcome: {id, childSid, status}.
type SubAgentResult struct {
	ID             string
	ChildSessionID string
	Status         models.SubAgentStatus
}

// SpawnSubAgent validates the parent exists and is under the
// depth/fan-out cap, then spawns a child session whose first message is
// "[Sub-Agent Task] <task>" and records a SubAgentLink.
func (r *Runtime) SpawnSubAgent(ctx context.Context, opts SubAgentOptions) (*SubAgentResult, error) {
	parent, err := r.deps.Store.GetSession(ctx, opts.ParentSessionID)
	if err != nil {
		return nil, runtimeerr.New("runtime.spawnSubAgent", runtimeerr.NotFound, err)
	}

	depth, err := r.subAgentDepth(ctx, parent)
	if err != nil {
		return nil, err
	}
	if depth >= r.config.MaxSubAgentDepth {
		return nil, runtimeerr.New("runtime.spawnSubAgent", runtimeerr.PreconditionFailed,
			fmt.Errorf("sub-agent depth limit (%d) reached", r.config.MaxSubAgentDepth))
	}

	siblings, err := r.deps.Store.ListActiveChildren(ctx, opts.ParentSessionID)
	if err != nil {
		return nil, runtimeerr.New("runtime.spawnSubAgent", runtimeerr.Internal, err)
	}
	if len(siblings) >= r.config.MaxSubAgentFanout {
		return nil, runtimeerr.New("runtime.spawnSubAgent", runtimeerr.PreconditionFailed,
			fmt.Errorf("sub-agent fan-out limit (%d) reached", r.config.MaxSubAgentFanout))
	}

	agentID := opts.AgentID
	if agentID == "" {
		agentID = parent.AgentID
	}

	child, err := r.Spawn(ctx, SpawnOptions{
		AgentID:         agentID,
		OrgID:           parent.OrgID,
		ParentSessionID: parent.ID,
		Provider:        opts.Provider,
		Model:           opts.Model,
		SystemPrompt:    opts.SystemPrompt,
		Tools:           opts.Tools,
		InitialMessage:  fmt.Sprintf("[Sub-Agent Task] %s", opts.Task),
	})
	if err != nil {
		return nil, err
	}

	link := models.SubAgentLink{
		ID:              uuid.NewString(),
		ParentSessionID: parent.ID,
		ChildSessionID:  child.ID,
		Task:            opts.Task,
		Status:          models.SubAgentActive,
		CreatedAt:       r.deps.Clock.Now(),
	}
	if err := r.deps.Store.CreateSubAgentLink(ctx, link); err != nil {
		return nil, runtimeerr.New("runtime.spawnSubAgent", runtimeerr.Internal, err)
	}

	return &SubAgentResult{ID: link.ID, ChildSessionID: child.ID, Status: link.Status}, nil
}

// subAgentDepth walks the ParentSessionID chain, counting hops to the
// root session. depth+1 guards against a broken chain (should never
// happen given the Store's invariants) turning into an infinite loop.
func (r *Runtime) subAgentDepth(ctx context.Context, session *models.Session) (int, error) {
	depth := 0
	current := session
	for current.ParentSessionID != "" {
		depth++
		if depth > r.config.MaxSubAgentDepth+1 {
			return depth, nil
		}
		parent, err := r.deps.Store.GetSession(ctx, current.ParentSessionID)
		if err != nil {
			return depth, runtimeerr.New("runtime.spawnSubAgent", runtimeerr.Internal, err)
		}
		current = parent
	}
	return depth, nil
}
