package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentruntime/core/internal/runtimeerr"
	"github.com/agentruntime/core/pkg/models"
)

// MemoryStore is an in-memory Store implementation for tests and local
// runs. All reads return deep copies so callers cannot mutate internal
// state through a returned pointer.
type MemoryStore struct {
	mu sync.RWMutex

	sessions map[string]*models.Session
	messages map[string][]models.Message
	toolCalls map[string][]models.ToolCallRecord
	followUps map[string]*models.FollowUp
	subAgents map[string][]*models.SubAgentLink
	usage     map[string]*models.UsageCounter

	now func() time.Time
}

// NewMemoryStore creates an empty in-memory Store. now defaults to
// time.Now; tests may override it via NewMemoryStoreWithClock.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock creates an in-memory Store with an injectable
// clock, for deterministic tests of heartbeat/stale timing.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[string]*models.Session),
		messages:  make(map[string][]models.Message),
		toolCalls: make(map[string][]models.ToolCallRecord),
		followUps: make(map[string]*models.FollowUp),
		subAgents: make(map[string][]*models.SubAgentLink),
		usage:     make(map[string]*models.UsageCounter),
		now:       now,
	}
}

func cloneSession(s *models.Session) *models.Session {
	clone := *s
	clone.Messages = nil
	return &clone
}

func (m *MemoryStore) CreateSession(ctx context.Context, agentID, orgID, parentSessionID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	session := models.NewSession(id, agentID, orgID, parentSessionID, m.now())
	m.sessions[id] = session
	m.messages[id] = nil
	return cloneSession(session), nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, runtimeerr.New("store.GetSession", runtimeerr.NotFound, nil)
	}
	out := cloneSession(session)
	out.Messages = append([]models.Message(nil), m.messages[id]...)
	return out, nil
}

func (m *MemoryStore) ListSessions(ctx context.Context, agentID string, filter models.SessionFilter) ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Session
	for _, s := range m.sessions {
		if agentID != "" && s.AgentID != agentID {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		out = append(out, cloneSession(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func applySessionUpdate(s *models.Session, update SessionUpdate) {
	if update.Status != nil {
		s.Status = *update.Status
	}
	if update.TokenCount != nil {
		s.TokenCount = *update.TokenCount
	}
	if update.TurnCount != nil {
		s.TurnCount = *update.TurnCount
	}
}

func (m *MemoryStore) UpdateSession(ctx context.Context, id string, update SessionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return runtimeerr.New("store.UpdateSession", runtimeerr.NotFound, nil)
	}
	applySessionUpdate(s, update)
	return nil
}

func (m *MemoryStore) ReplaceMessages(ctx context.Context, id string, messages []models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return runtimeerr.New("store.ReplaceMessages", runtimeerr.NotFound, nil)
	}
	m.messages[id] = append([]models.Message(nil), messages...)
	return nil
}

func (m *MemoryStore) TouchSession(ctx context.Context, id string, update SessionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return runtimeerr.New("store.TouchSession", runtimeerr.NotFound, nil)
	}
	s.LastHeartbeatAt = m.now()
	applySessionUpdate(s, update)
	return nil
}

func (m *MemoryStore) AppendMessage(ctx context.Context, id string, msg models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return runtimeerr.New("store.AppendMessage", runtimeerr.NotFound, nil)
	}
	m.messages[id] = append(m.messages[id], msg)
	return nil
}

func (m *MemoryStore) FindActiveSessions(ctx context.Context) ([]*models.Session, error) {
	return m.ListSessions(ctx, "", models.SessionFilter{Status: models.SessionActive})
}

func (m *MemoryStore) MarkStaleSessions(ctx context.Context, timeoutMs int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-time.Duration(timeoutMs) * time.Millisecond)
	var changed []string
	for id, s := range m.sessions {
		if s.Status == models.SessionActive && s.LastHeartbeatAt.Before(cutoff) {
			s.Status = models.SessionStale
			changed = append(changed, id)
		}
	}
	sort.Strings(changed)
	return changed, nil
}

func (m *MemoryStore) RecordToolCall(ctx context.Context, record models.ToolCallRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolCalls[record.SessionID] = append(m.toolCalls[record.SessionID], record)
	return nil
}

func (m *MemoryStore) ListToolCalls(ctx context.Context, sessionID string) ([]models.ToolCallRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.ToolCallRecord(nil), m.toolCalls[sessionID]...), nil
}

func (m *MemoryStore) CreateFollowUp(ctx context.Context, f models.FollowUp) (*models.FollowUp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Status == "" {
		f.Status = models.FollowUpPending
	}
	clone := f
	m.followUps[f.ID] = &clone
	out := clone
	return &out, nil
}

func (m *MemoryStore) GetFollowUp(ctx context.Context, id string) (*models.FollowUp, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.followUps[id]
	if !ok {
		return nil, runtimeerr.New("store.GetFollowUp", runtimeerr.NotFound, nil)
	}
	out := *f
	return &out, nil
}

func (m *MemoryStore) ListPendingFollowUps(ctx context.Context) ([]models.FollowUp, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.FollowUp
	for _, f := range m.followUps {
		if f.Status == models.FollowUpPending {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecuteAt.Before(out[j].ExecuteAt) })
	return out, nil
}

func (m *MemoryStore) ListFollowUps(ctx context.Context, agentID string) ([]models.FollowUp, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.FollowUp
	for _, f := range m.followUps {
		if agentID == "" || f.AgentID == agentID {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecuteAt.Before(out[j].ExecuteAt) })
	return out, nil
}

func (m *MemoryStore) UpdateFollowUpStatus(ctx context.Context, id string, status models.FollowUpStatus, next *models.FollowUp) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.followUps[id]
	if !ok {
		return runtimeerr.New("store.UpdateFollowUpStatus", runtimeerr.NotFound, nil)
	}
	f.Status = status
	if next != nil {
		f.ExecuteAt = next.ExecuteAt
		f.Status = models.FollowUpPending
	}
	return nil
}

func (m *MemoryStore) CancelFollowUp(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.followUps[id]
	if !ok || f.Status != models.FollowUpPending {
		return false, nil
	}
	f.Status = models.FollowUpCancelled
	return true, nil
}

func (m *MemoryStore) CreateSubAgentLink(ctx context.Context, link models.SubAgentLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	clone := link
	m.subAgents[link.ParentSessionID] = append(m.subAgents[link.ParentSessionID], &clone)
	return nil
}

func (m *MemoryStore) ListActiveChildren(ctx context.Context, parentSessionID string) ([]models.SubAgentLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.SubAgentLink
	for _, link := range m.subAgents[parentSessionID] {
		if link.Status == models.SubAgentActive {
			out = append(out, *link)
		}
	}
	return out, nil
}

func (m *MemoryStore) SetSubAgentStatus(ctx context.Context, id string, status models.SubAgentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, links := range m.subAgents {
		for _, link := range links {
			if link.ID == id {
				link.Status = status
				return nil
			}
		}
	}
	return runtimeerr.New("store.SetSubAgentStatus", runtimeerr.NotFound, nil)
}

func (m *MemoryStore) AddUsage(ctx context.Context, orgID, day string, usage models.Usage, costUSD float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := orgID + ":" + day
	counter, ok := m.usage[key]
	if !ok {
		counter = &models.UsageCounter{OrgID: orgID, Day: day}
		m.usage[key] = counter
	}
	counter.InputTokens += int64(usage.InputTokens)
	counter.OutputTokens += int64(usage.OutputTokens)
	counter.CostUSD += costUSD
	return nil
}

func (m *MemoryStore) GetUsage(ctx context.Context, orgID, day string) (*models.UsageCounter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := orgID + ":" + day
	counter, ok := m.usage[key]
	if !ok {
		return &models.UsageCounter{OrgID: orgID, Day: day}, nil
	}
	out := *counter
	return &out, nil
}
