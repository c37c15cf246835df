package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/agentruntime/core/internal/runtimeerr"
	"github.com/agentruntime/core/internal/store"
	"github.com/agentruntime/core/pkg/models"
	"github.com/google/uuid"
)

// fakeStore is a minimal in-memory store.Store for runtime package
// tests. It implements the full interface; most of it is simple map
// bookkeeping, since the Runtime's own logic is what's under test here,
// not persistence correctness (that lives in internal/store's own tests).
type fakeStore struct {
	mu        sync.Mutex
	sessions  map[string]*models.Session
	followUps map[string]*models.FollowUp
	links     map[string]*models.SubAgentLink
	toolCalls map[string][]models.ToolCallRecord
	usage     map[string]*models.UsageCounter
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:  make(map[string]*models.Session),
		followUps: make(map[string]*models.FollowUp),
		links:     make(map[string]*models.SubAgentLink),
		toolCalls: make(map[string][]models.ToolCallRecord),
		usage:     make(map[string]*models.UsageCounter),
	}
}

func (s *fakeStore) CreateSession(ctx context.Context, agentID, orgID, parentSessionID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := models.NewSession(uuid.NewString(), agentID, orgID, parentSessionID, time.Now())
	cp := *session
	s.sessions[session.ID] = &cp
	out := *session
	return &out, nil
}

func (s *fakeStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, runtimeerr.New("fakeStore.GetSession", runtimeerr.NotFound, nil)
	}
	out := *session
	out.Messages = append([]models.Message(nil), session.Messages...)
	return &out, nil
}

func (s *fakeStore) ListSessions(ctx context.Context, agentID string, filter models.SessionFilter) ([]*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Session
	for _, session := range s.sessions {
		if session.AgentID != agentID {
			continue
		}
		if filter.Status != "" && session.Status != filter.Status {
			continue
		}
		cp := *session
		cp.Messages = nil
		out = append(out, &cp)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateSession(ctx context.Context, id string, update store.SessionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return runtimeerr.New("fakeStore.UpdateSession", runtimeerr.NotFound, nil)
	}
	if update.Status != nil {
		session.Status = *update.Status
	}
	if update.TokenCount != nil {
		session.TokenCount = *update.TokenCount
	}
	if update.TurnCount != nil {
		session.TurnCount = *update.TurnCount
	}
	return nil
}

func (s *fakeStore) ReplaceMessages(ctx context.Context, id string, messages []models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return runtimeerr.New("fakeStore.ReplaceMessages", runtimeerr.NotFound, nil)
	}
	session.Messages = append([]models.Message(nil), messages...)
	return nil
}

func (s *fakeStore) TouchSession(ctx context.Context, id string, update store.SessionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return runtimeerr.New("fakeStore.TouchSession", runtimeerr.NotFound, nil)
	}
	session.LastHeartbeatAt = time.Now()
	if update.TurnCount != nil {
		session.TurnCount = *update.TurnCount
	}
	return nil
}

func (s *fakeStore) AppendMessage(ctx context.Context, id string, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return runtimeerr.New("fakeStore.AppendMessage", runtimeerr.NotFound, nil)
	}
	session.Messages = append(session.Messages, msg)
	return nil
}

func (s *fakeStore) FindActiveSessions(ctx context.Context) ([]*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Session
	for _, session := range s.sessions {
		if session.Status == models.SessionActive {
			cp := *session
			cp.Messages = append([]models.Message(nil), session.Messages...)
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkStaleSessions(ctx context.Context, timeoutMs int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-time.Duration(timeoutMs) * time.Millisecond)
	var ids []string
	for id, session := range s.sessions {
		if session.Status == models.SessionActive && session.LastHeartbeatAt.Before(cutoff) {
			session.Status = models.SessionStale
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *fakeStore) RecordToolCall(ctx context.Context, record models.ToolCallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolCalls[record.SessionID] = append(s.toolCalls[record.SessionID], record)
	return nil
}

func (s *fakeStore) ListToolCalls(ctx context.Context, sessionID string) ([]models.ToolCallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toolCalls[sessionID], nil
}

func (s *fakeStore) CreateFollowUp(ctx context.Context, f models.FollowUp) (*models.FollowUp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := f
	s.followUps[f.ID] = &cp
	out := f
	return &out, nil
}

func (s *fakeStore) GetFollowUp(ctx context.Context, id string) (*models.FollowUp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.followUps[id]
	if !ok {
		return nil, runtimeerr.New("fakeStore.GetFollowUp", runtimeerr.NotFound, nil)
	}
	out := *f
	return &out, nil
}

func (s *fakeStore) ListPendingFollowUps(ctx context.Context) ([]models.FollowUp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.FollowUp
	for _, f := range s.followUps {
		if f.Status == models.FollowUpPending {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (s *fakeStore) ListFollowUps(ctx context.Context, agentID string) ([]models.FollowUp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.FollowUp
	for _, f := range s.followUps {
		if f.AgentID == agentID {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateFollowUpStatus(ctx context.Context, id string, status models.FollowUpStatus, next *models.FollowUp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.followUps[id]
	if !ok {
		return runtimeerr.New("fakeStore.UpdateFollowUpStatus", runtimeerr.NotFound, nil)
	}
	f.Status = status
	if next != nil {
		f.ExecuteAt = next.ExecuteAt
	}
	return nil
}

func (s *fakeStore) CancelFollowUp(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.followUps[id]
	if !ok || f.Status != models.FollowUpPending {
		return false, nil
	}
	f.Status = models.FollowUpCancelled
	return true, nil
}

func (s *fakeStore) CreateSubAgentLink(ctx context.Context, link models.SubAgentLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := link
	s.links[link.ID] = &cp
	return nil
}

func (s *fakeStore) ListActiveChildren(ctx context.Context, parentSessionID string) ([]models.SubAgentLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SubAgentLink
	for _, link := range s.links {
		if link.ParentSessionID == parentSessionID && link.Status == models.SubAgentActive {
			out = append(out, *link)
		}
	}
	return out, nil
}

func (s *fakeStore) SetSubAgentStatus(ctx context.Context, id string, status models.SubAgentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[id]
	if !ok {
		return runtimeerr.New("fakeStore.SetSubAgentStatus", runtimeerr.NotFound, nil)
	}
	link.Status = status
	return nil
}

func (s *fakeStore) AddUsage(ctx context.Context, orgID, day string, usage models.Usage, costUSD float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := orgID + "/" + day
	counter, ok := s.usage[key]
	if !ok {
		counter = &models.UsageCounter{OrgID: orgID, Day: day}
		s.usage[key] = counter
	}
	counter.InputTokens += int64(usage.InputTokens)
	counter.OutputTokens += int64(usage.OutputTokens)
	counter.CostUSD += costUSD
	return nil
}

func (s *fakeStore) GetUsage(ctx context.Context, orgID, day string) (*models.UsageCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counter, ok := s.usage[orgID+"/"+day]
	if !ok {
		return &models.UsageCounter{OrgID: orgID, Day: day}, nil
	}
	out := *counter
	return &out, nil
}
