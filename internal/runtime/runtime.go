// Package runtime implements the process-wide supervisor of spec.md
// §4.6: spawning sessions, resuming them after a crash, heartbeat/stale
// detection, sub-agent tracking, the follow-up scheduler, and the
// inbound-email adapter. Grounded on the teacher's internal/tasks.Scheduler
// (config/Start/Stop/tick-loop idiom) and internal/gateway/lifecycle.go
// (inline ticker+select+WaitGroup loops), generalized from a single
// poll-for-due-work loop to three independently-ticking supervisory
// loops plus a per-session cooperative task the Runtime itself spawns
// and tracks.
package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentruntime/core/internal/agentloop"
	"github.com/agentruntime/core/internal/eventbus"
	"github.com/agentruntime/core/internal/hooks"
	"github.com/agentruntime/core/internal/modelclient"
	"github.com/agentruntime/core/internal/observability"
	"github.com/agentruntime/core/internal/runtimeerr"
	"github.com/agentruntime/core/internal/store"
	"github.com/agentruntime/core/internal/tools"
	"github.com/agentruntime/core/pkg/models"
	"github.com/google/uuid"
)

// Deps bundles the Runtime's collaborators. Store and Models are
// required; the rest degrade gracefully when nil, matching agentloop.Deps.
type Deps struct {
	Store    store.Store
	Models   map[string]modelclient.ModelClient
	Executor *tools.Executor
	Hooks    *hooks.Chain
	Events   *eventbus.Bus
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Tracer   *observability.Tracer
	Clock    Clock

	// EmailResolver enables HandleInboundEmail (spec.md §4.6's "if
	// configured" email channel). Nil disables the channel.
	EmailResolver AgentResolver
}

// SpawnOptions parameterizes Spawn. Provider/Model fall back to
// Config.DefaultModel when empty (spec.md §6: "used when spawnSession
// omits a model").
type SpawnOptions struct {
	AgentID         string
	OrgID           string
	ParentSessionID string

	Provider string
	Model    string

	SystemPrompt string
	Tools        []modelclient.ToolDef
	MaxTurns     int

	// InitialMessage, if set, is appended as the session's first
	// user-role message before the loop starts.
	InitialMessage string
}

// sessionHandle is what Runtime.activeSessions holds per live session:
// the cancellation handle spec.md §5 requires, plus the steering
// channel the loop drains every turn.
type sessionHandle struct {
	cancel   context.CancelFunc
	steering chan string
}

// spawnedConfig is cached per session so SendMessage can restart a loop
// that has exited without the caller re-supplying provider/model/tools.
type spawnedConfig struct {
	provider string
	config   agentloop.AgentConfig
}

// Runtime is the process-wide supervisor. One Runtime drives every
// session in the process; Store is the only thing two Runtime instances
// could usefully share.
type Runtime struct {
	deps   Deps
	config Config

	mu             sync.RWMutex
	activeSessions map[string]*sessionHandle
	sessionConfigs map[string]spawnedConfig

	followUps *followUpScheduler

	baseCtx    context.Context
	baseCancel context.CancelFunc

	wg      sync.WaitGroup
	running bool
	runMu   sync.Mutex
}

// New constructs a Runtime. It does not start any timers or resume any
// sessions; call Start for that.
func New(deps Deps, config Config) *Runtime {
	if deps.Hooks == nil {
		deps.Hooks = hooks.NewChain(nil)
	}
	if deps.Events == nil {
		deps.Events = eventbus.NewBus()
	}
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger(observability.LogConfig{})
	}
	if deps.Tracer == nil {
		deps.Tracer, _ = observability.NewTracer(observability.TraceConfig{ServiceName: "agentruntime"})
	}
	if deps.Clock == nil {
		deps.Clock = NewSystemClock()
	}
	r := &Runtime{
		deps:           deps,
		config:         sanitizeConfig(config),
		activeSessions: make(map[string]*sessionHandle),
		sessionConfigs: make(map[string]spawnedConfig),
	}
	r.followUps = newFollowUpScheduler(r)
	return r
}

// Start begins the heartbeat/stale/keepalive timers, the follow-up
// scheduler, and — if ResumeOnStartup is set — resumes every session
// the Store reports active (spec.md §4.5's crash-recovery paragraph).
// Mirrors the teacher's Scheduler.Start: idempotent, mutex-guarded.
func (r *Runtime) Start(ctx context.Context) error {
	r.runMu.Lock()
	if r.running {
		r.runMu.Unlock()
		return nil
	}
	r.running = true
	r.runMu.Unlock()

	r.baseCtx, r.baseCancel = context.WithCancel(context.Background())

	if r.config.ResumeOnStartup {
		if err := r.resumeActiveSessions(ctx); err != nil {
			r.deps.Logger.Error(ctx, "failed to resume active sessions", "error", err)
		}
	}

	r.wg.Add(1)
	go r.heartbeatLoop(r.baseCtx)
	r.wg.Add(1)
	go r.staleLoop(r.baseCtx)
	r.wg.Add(1)
	go r.keepaliveLoop(r.baseCtx)

	r.followUps.start(r.baseCtx)

	return nil
}

// Stop cancels every active session, stops the timers, and waits (up to
// ctx's deadline) for the supervisory goroutines to exit. Per-session
// loop goroutines are cancelled but not waited on individually — each
// cleans up its own activeSessions entry on exit.
func (r *Runtime) Stop(ctx context.Context) error {
	r.runMu.Lock()
	if !r.running {
		r.runMu.Unlock()
		return nil
	}
	r.running = false
	r.runMu.Unlock()

	r.mu.RLock()
	handles := make([]*sessionHandle, 0, len(r.activeSessions))
	for _, h := range r.activeSessions {
		handles = append(handles, h)
	}
	r.mu.RUnlock()
	for _, h := range handles {
		h.cancel()
	}

	r.followUps.stop()

	if r.baseCancel != nil {
		r.baseCancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Spawn allocates a new session, resolves its model provider, and
// starts its AgentLoop in its own goroutine (spec.md §4.6's Spawn
// responsibility).
func (r *Runtime) Spawn(ctx context.Context, opts SpawnOptions) (*models.Session, error) {
	provider, modelID, client, err := r.resolveModel(opts.Provider, opts.Model)
	if err != nil {
		return nil, err
	}

	session, err := r.deps.Store.CreateSession(ctx, opts.AgentID, opts.OrgID, opts.ParentSessionID)
	if err != nil {
		return nil, runtimeerr.New("runtime.spawn", runtimeerr.Internal, err)
	}

	if opts.InitialMessage != "" {
		msg := models.NewTextMessage(uuid.NewString(), session.ID, models.RoleUser, opts.InitialMessage, r.deps.Clock.Now())
		if err := r.deps.Store.AppendMessage(ctx, session.ID, msg); err != nil {
			return nil, runtimeerr.New("runtime.spawn", runtimeerr.Internal, err)
		}
		session.Messages = append(session.Messages, msg)
	}

	cfg := agentloop.AgentConfig{
		Provider:     provider,
		Model:        modelID,
		SystemPrompt: opts.SystemPrompt,
		Tools:        opts.Tools,
		MaxTurns:     opts.MaxTurns,
	}

	r.publish(session.ID, models.EventSessionStart)
	r.startLoop(session, client, cfg)
	return session, nil
}

// SendMessage appends a user message and, if the session's loop is
// still running, steers it rather than waiting for it to exit; if the
// loop has already exited, a new one is started with the augmented
// history (spec.md §4.6's SendMessage responsibility, generalized per
// SPEC_FULL.md's supplemented steering feature).
func (r *Runtime) SendMessage(ctx context.Context, sessionID, text string) error {
	r.mu.RLock()
	handle, live := r.activeSessions[sessionID]
	r.mu.RUnlock()

	if live {
		select {
		case handle.steering <- text:
		default:
			r.deps.Logger.Warn(ctx, "steering channel full, message dropped", "session_id", sessionID)
		}
		return nil
	}

	session, err := r.deps.Store.GetSession(ctx, sessionID)
	if err != nil {
		return runtimeerr.New("runtime.sendMessage", runtimeerr.NotFound, err)
	}

	msg := models.NewTextMessage(uuid.NewString(), sessionID, models.RoleUser, text, r.deps.Clock.Now())
	if err := r.deps.Store.AppendMessage(ctx, sessionID, msg); err != nil {
		return runtimeerr.New("runtime.sendMessage", runtimeerr.Internal, err)
	}
	session.Messages = append(session.Messages, msg)

	r.mu.RLock()
	spawned, ok := r.sessionConfigs[sessionID]
	r.mu.RUnlock()
	if !ok {
		return runtimeerr.New("runtime.sendMessage", runtimeerr.PreconditionFailed,
			fmt.Errorf("session %s has no cached agent config to resume", sessionID))
	}
	client, ok := r.deps.Models[spawned.provider]
	if !ok {
		return runtimeerr.New("runtime.sendMessage", runtimeerr.Unauthenticated,
			fmt.Errorf("no model client configured for provider %q", spawned.provider))
	}

	active := models.SessionActive
	if err := r.deps.Store.UpdateSession(ctx, sessionID, store.SessionUpdate{Status: &active}); err != nil {
		return runtimeerr.New("runtime.sendMessage", runtimeerr.Internal, err)
	}
	session.Status = models.SessionActive

	r.startLoop(session, client, spawned.config)
	return nil
}

// Terminate cancels the session's loop (if live), marks it completed,
// and cancels every active sub-agent child transitively.
func (r *Runtime) Terminate(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	handle, live := r.activeSessions[sessionID]
	delete(r.activeSessions, sessionID)
	r.mu.Unlock()
	if live {
		handle.cancel()
	}

	completed := models.SessionCompleted
	if err := r.deps.Store.UpdateSession(ctx, sessionID, store.SessionUpdate{Status: &completed}); err != nil {
		return runtimeerr.New("runtime.terminate", runtimeerr.Internal, err)
	}
	r.publish(sessionID, models.EventSessionEnd)

	children, err := r.deps.Store.ListActiveChildren(ctx, sessionID)
	if err != nil {
		return runtimeerr.New("runtime.terminate", runtimeerr.Internal, err)
	}
	for _, child := range children {
		if err := r.Terminate(ctx, child.ChildSessionID); err != nil {
			r.deps.Logger.Warn(ctx, "failed to cancel sub-agent child on parent termination",
				"parent_session_id", sessionID, "child_session_id", child.ChildSessionID, "error", err)
			continue
		}
		if err := r.deps.Store.SetSubAgentStatus(ctx, child.ID, models.SubAgentCancelled); err != nil {
			r.deps.Logger.Warn(ctx, "failed to mark sub-agent link cancelled",
				"link_id", child.ID, "error", err)
		}
	}
	return nil
}

// GetSession returns a session with its full message list.
func (r *Runtime) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	return r.deps.Store.GetSession(ctx, sessionID)
}

// ListSessions returns session metadata (no messages) for agentID.
func (r *Runtime) ListSessions(ctx context.Context, agentID string, filter models.SessionFilter) ([]*models.Session, error) {
	return r.deps.Store.ListSessions(ctx, agentID, filter)
}

// GetActiveSessionCount returns the number of sessions with a running
// loop in this process.
func (r *Runtime) GetActiveSessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.activeSessions)
}

func (r *Runtime) resolveModel(provider, model string) (string, string, modelclient.ModelClient, error) {
	if provider == "" {
		provider = r.config.DefaultModel.Provider
	}
	if model == "" {
		model = r.config.DefaultModel.Model
	}
	client, ok := r.deps.Models[provider]
	if !ok {
		return "", "", nil, runtimeerr.New("runtime.resolveModel", runtimeerr.Unauthenticated,
			fmt.Errorf("no model client configured for provider %q", provider))
	}
	return provider, model, client, nil
}

// startLoop registers the session's cancel handle and steering channel,
// then runs its AgentLoop to completion in its own goroutine. Only one
// loop per session ever runs concurrently — Spawn and SendMessage are
// each called by a single logical caller for a given session.
func (r *Runtime) startLoop(session *models.Session, client modelclient.ModelClient, cfg agentloop.AgentConfig) {
	ctx, cancel := context.WithCancel(r.baseCtx)
	steering := make(chan string, r.config.SteeringBufferSize)

	r.mu.Lock()
	r.activeSessions[session.ID] = &sessionHandle{cancel: cancel, steering: steering}
	r.sessionConfigs[session.ID] = spawnedConfig{provider: cfg.Provider, config: cfg}
	r.mu.Unlock()

	loop := agentloop.New(agentloop.Deps{
		Store:    r.deps.Store,
		Model:    client,
		Executor: r.deps.Executor,
		Hooks:    r.deps.Hooks,
		Events:   r.deps.Events,
		Logger:   r.deps.Logger,
		Metrics:  r.deps.Metrics,
		Tracer:   r.deps.Tracer,
		Steering: steering,
	}, cfg)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.cleanupSession(session.ID)

		result := loop.Run(ctx, session)
		if result.Err != nil && result.Status == agentloop.StatusFailed {
			r.deps.Logger.Error(context.Background(), "session loop ended in failure",
				"session_id", session.ID, "error", result.Err)
		}
	}()
}

func (r *Runtime) cleanupSession(sessionID string) {
	r.mu.Lock()
	delete(r.activeSessions, sessionID)
	r.mu.Unlock()
}

// resumeActiveSessions implements spec.md §4.5's crash-recovery
// paragraph: every session the Store reports active is either resumed
// (non-empty message list, gets the synthetic restart notice) or marked
// failed (empty message list).
func (r *Runtime) resumeActiveSessions(ctx context.Context) error {
	sessions, err := r.deps.Store.FindActiveSessions(ctx)
	if err != nil {
		return runtimeerr.New("runtime.resumeActiveSessions", runtimeerr.Internal, err)
	}
	for _, session := range sessions {
		if ok, _ := agentloop.CanResume(session); !ok {
			failed := models.SessionFailed
			if err := r.deps.Store.UpdateSession(ctx, session.ID, store.SessionUpdate{Status: &failed}); err != nil {
				r.deps.Logger.Warn(ctx, "failed to mark unresumable session failed", "session_id", session.ID, "error", err)
			}
			continue
		}

		full, err := r.deps.Store.GetSession(ctx, session.ID)
		if err != nil {
			r.deps.Logger.Warn(ctx, "failed to load session for resume", "session_id", session.ID, "error", err)
			continue
		}
		agentloop.ResumeAfterRestart(full, r.deps.Clock.Now())
		if err := r.deps.Store.AppendMessage(ctx, full.ID, full.Messages[len(full.Messages)-1]); err != nil {
			r.deps.Logger.Warn(ctx, "failed to persist resume notice", "session_id", full.ID, "error", err)
		}

		provider, modelID, client, err := r.resolveModel("", "")
		if err != nil {
			r.deps.Logger.Warn(ctx, "cannot resume session: no default model configured", "session_id", full.ID, "error", err)
			continue
		}
		cfg := agentloop.AgentConfig{Provider: provider, Model: modelID}
		r.publish(full.ID, models.EventSessionResumed)
		r.startLoop(full, client, cfg)
	}
	return nil
}

func (r *Runtime) publish(sessionID string, eventType models.EventType) {
	if r.deps.Events == nil {
		return
	}
	r.deps.Events.Publish(sessionID, models.Event{Type: eventType, SessionID: sessionID, Time: r.deps.Clock.Now()})
}

func (r *Runtime) heartbeatLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := r.deps.Clock.NewTicker(r.config.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			r.touchActiveSessions(ctx)
		}
	}
}

func (r *Runtime) touchActiveSessions(ctx context.Context) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.activeSessions))
	for id := range r.activeSessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	for _, id := range ids {
		if err := r.deps.Store.TouchSession(ctx, id, store.SessionUpdate{}); err != nil {
			r.deps.Logger.Warn(ctx, "heartbeat tick touch failed", "session_id", id, "error", err)
		}
	}
}

func (r *Runtime) staleLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := r.deps.Clock.NewTicker(r.config.StaleSessionTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			r.markStale(ctx)
		}
	}
}

func (r *Runtime) markStale(ctx context.Context) {
	ids, err := r.deps.Store.MarkStaleSessions(ctx, r.config.StaleSessionTimeout.Milliseconds())
	if err != nil {
		r.deps.Logger.Warn(ctx, "mark stale sessions failed", "error", err)
		return
	}
	r.mu.Lock()
	for _, id := range ids {
		if handle, ok := r.activeSessions[id]; ok {
			handle.cancel()
			delete(r.activeSessions, id)
		}
	}
	r.mu.Unlock()
}

func (r *Runtime) keepaliveLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := r.deps.Clock.NewTicker(r.config.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			r.emitKeepalives()
		}
	}
}

func (r *Runtime) emitKeepalives() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.activeSessions))
	for id := range r.activeSessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	for _, id := range ids {
		r.publish(id, models.EventHeartbeat)
	}
}
