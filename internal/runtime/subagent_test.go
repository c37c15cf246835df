package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/agentruntime/core/pkg/models"
)

func TestSpawnSubAgentRecordsLinkAndSeedsTaskMessage(t *testing.T) {
	rt, fs := newTestRuntime(newFakeClock(time.Now()))
	parent, err := rt.Spawn(context.Background(), SpawnOptions{AgentID: "agent-1", OrgID: "org-1"})
	if err != nil {
		t.Fatalf("Spawn parent: %v", err)
	}
	waitForSessionStatus(t, fs, parent.ID, models.SessionCompleted, time.Second)

	result, err := rt.SpawnSubAgent(context.Background(), SubAgentOptions{
		ParentSessionID: parent.ID,
		Task:            "summarize the quarterly report",
	})
	if err != nil {
		t.Fatalf("SpawnSubAgent: %v", err)
	}
	if result.Status != models.SubAgentActive {
		t.Fatalf("expected a newly created link to be active, got %s", result.Status)
	}

	child, err := fs.GetSession(context.Background(), result.ChildSessionID)
	if err != nil {
		t.Fatalf("GetSession(child): %v", err)
	}
	if child.AgentID != parent.AgentID {
		t.Fatalf("expected child to inherit parent's agent id, got %s", child.AgentID)
	}
	if len(child.Messages) == 0 || child.Messages[0].Text() != "[Sub-Agent Task] summarize the quarterly report" {
		t.Fatalf("expected the child's first message to be the sub-agent task marker, got %+v", child.Messages)
	}

	links, err := fs.ListActiveChildren(context.Background(), parent.ID)
	if err != nil {
		t.Fatalf("ListActiveChildren: %v", err)
	}
	if len(links) != 1 || links[0].ID != result.ID {
		t.Fatalf("expected exactly one active link matching %s, got %+v", result.ID, links)
	}
}

func TestSpawnSubAgentEnforcesFanoutCap(t *testing.T) {
	rt, fs := newTestRuntime(newFakeClock(time.Now()))
	rt.config.MaxSubAgentFanout = 1

	parent, err := rt.Spawn(context.Background(), SpawnOptions{AgentID: "agent-1", OrgID: "org-1"})
	if err != nil {
		t.Fatalf("Spawn parent: %v", err)
	}
	waitForSessionStatus(t, fs, parent.ID, models.SessionCompleted, time.Second)

	if _, err := rt.SpawnSubAgent(context.Background(), SubAgentOptions{ParentSessionID: parent.ID, Task: "first"}); err != nil {
		t.Fatalf("first SpawnSubAgent: %v", err)
	}
	if _, err := rt.SpawnSubAgent(context.Background(), SubAgentOptions{ParentSessionID: parent.ID, Task: "second"}); err == nil {
		t.Fatal("expected the second sub-agent to be rejected by the fan-out cap")
	}
}

func TestSpawnSubAgentEnforcesDepthCap(t *testing.T) {
	rt, fs := newTestRuntime(newFakeClock(time.Now()))
	rt.config.MaxSubAgentDepth = 1

	root, err := rt.Spawn(context.Background(), SpawnOptions{AgentID: "agent-1", OrgID: "org-1"})
	if err != nil {
		t.Fatalf("Spawn root: %v", err)
	}
	waitForSessionStatus(t, fs, root.ID, models.SessionCompleted, time.Second)

	level1, err := rt.SpawnSubAgent(context.Background(), SubAgentOptions{ParentSessionID: root.ID, Task: "level 1"})
	if err != nil {
		t.Fatalf("SpawnSubAgent level 1: %v", err)
	}
	waitForSessionStatus(t, fs, level1.ChildSessionID, models.SessionCompleted, time.Second)

	if _, err := rt.SpawnSubAgent(context.Background(), SubAgentOptions{ParentSessionID: level1.ChildSessionID, Task: "level 2"}); err == nil {
		t.Fatal("expected a sub-agent of a sub-agent to be rejected once depth 1 is reached")
	}
}
