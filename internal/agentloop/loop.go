package agentloop

import (
	"context"
	"fmt"
	"time"

	agentctx "github.com/agentruntime/core/internal/context"
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

// Deps bundles the AgentLoop's collaborators. All fields except Store
// and Model are optional; a nil Hooks/Events/Metrics/Logger degrades
// gracefully (no hook side effects, no published events, no metrics, a
// discarding logger) rather than panicking, so tests can exercise the
// loop with a minimal fixture.
type Deps struct {
	Store    store.Store
	Model    modelclient.ModelClient
	Executor *tools.Executor
	Hooks    *hooks.Chain
	Events   *eventbus.Bus
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Tracer   *observability.Tracer

	// Steering, when set by the Runtime, carries messages sent to this
	// session while its loop is already running (SendMessage's
	// generalized behavior: steer a live loop instead of only starting
	// a new one once the old has exited). Drained at the top of every
	// turn, before beforeLLMCall.
	Steering <-chan string
}

// Loop runs one session's turn-by-turn state machine to completion,
// pause, or failure (spec.md §4.5). Grounded on the teacher's
// AgenticLoop.Run, generalized from the teacher's single fixed provider
// pair and channel-of-chunks API to the provider-agnostic ModelClient
// and a synchronous Run the Runtime supervises with its own goroutine.
type Loop struct {
	deps   Deps
	config AgentConfig
}

// New constructs a Loop. config is sanitized against DefaultAgentConfig
// for any unset numeric field.
func New(deps Deps, config AgentConfig) *Loop {
	if deps.Hooks == nil {
		deps.Hooks = hooks.NewChain(nil)
	}
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger(observability.LogConfig{})
	}
	if deps.Tracer == nil {
		deps.Tracer, _ = observability.NewTracer(observability.TraceConfig{ServiceName: "agentloop"})
	}
	return &Loop{deps: deps, config: sanitizeConfig(config)}
}

// RunResult is Run's outcome.
type RunResult struct {
	Status         Status
	TurnCount      int
	LastStopReason modelclient.StopReason
	Err            error
}

// maxCompactionRetries bounds step 4's "return to step 3" re-entry: if
// compaction doesn't shrink the estimate below threshold (a degenerate
// config, or a single message larger than the whole budget), the loop
// gives up rather than spinning forever.
const maxCompactionRetries = 3

// Run drives session through turns until it completes, is paused by
// context cancellation, exhausts its budget, hits maxTurns, or fails.
// Run is synchronous; the Runtime is expected to call it from its own
// per-session goroutine (spec.md §5: one cooperative task per session).
func (l *Loop) Run(ctx context.Context, session *models.Session) RunResult {
	if l.deps.Model == nil {
		return RunResult{Status: StatusFailed, Err: ErrNoModelClient}
	}
	if session == nil {
		return RunResult{Status: StatusFailed, Err: ErrNilSession}
	}

	windowSize := l.config.ContextWindowSize
	if windowSize <= 0 {
		windowSize = agentctx.NewWindowForModel(l.config.Model).Info().TotalTokens
	}

	for {
		select {
		case <-ctx.Done():
			l.pause(ctx, session)
			return RunResult{Status: StatusPaused, TurnCount: session.TurnCount, Err: ctx.Err()}
		default:
		}

		turnStart := time.Now()
		session.TurnCount++
		turnCtx, turnSpan := l.deps.Tracer.TraceTurn(ctx, session.ID, session.TurnCount)
		l.touchHeartbeat(turnCtx, session)
		l.publishSimple(session, models.EventTurnStart)
		l.drainSteering(session)

		working := l.deps.Hooks.BeforeLLMCall(turnCtx, session.Messages, session.AgentID, session.ID)

		if compacted, ok := l.maybeCompact(turnCtx, session, working, windowSize); ok {
			working = compacted
		}

		estTokens := estimateTokens(working)
		decision := l.deps.Hooks.CheckBudget(turnCtx, session.AgentID, session.OrgID, estTokens)
		if !decision.Allowed {
			l.publishBudget(session, models.EventBudgetExceeded, decision.Reason, decision.RemainingUSD)
			turnSpan.End()
			return l.finish(ctx, session, StatusCompleted, modelclient.StopReason("budget_exceeded"), nil)
		}
		if decision.RemainingUSD != nil && *decision.RemainingUSD < l.config.BudgetWarningThreshold {
			l.publishBudget(session, models.EventBudgetWarning, "remaining budget below warning threshold", decision.RemainingUSD)
		}

		result, err := l.callModel(turnCtx, session, working)
		if err != nil && result.Message.ID == "" {
			l.deps.Tracer.RecordError(turnSpan, err)
			turnSpan.End()
			l.deps.Logger.Error(ctx, "model call failed", "session_id", session.ID, "error", err)
			return l.finish(ctx, session, StatusFailed, modelclient.StopError, err)
		}

		session.Messages = append(working, result.Message)
		cost := l.estimateCost(ctx, l.deps.Model.Name(), l.config.Model, result.Usage)
		l.deps.Hooks.RecordLLMUsage(turnCtx, session.AgentID, session.OrgID, hooks.Usage{
			InputTokens:  result.Usage.InputTokens,
			OutputTokens: result.Usage.OutputTokens,
			CostUSD:      cost,
		})
		if l.deps.Metrics != nil {
			l.deps.Metrics.ModelCostUSD.WithLabelValues(l.deps.Model.Name(), l.config.Model).Add(cost)
			l.deps.Metrics.TurnDurationSeconds.WithLabelValues(session.AgentID).Observe(time.Since(turnStart).Seconds())
		}

		switch result.StopReason {
		case modelclient.StopEndTurn:
			l.publishSimple(session, models.EventTurnEnd)
			l.checkpoint(turnCtx, session)
			turnSpan.End()
			return l.finish(ctx, session, StatusCompleted, result.StopReason, nil)

		case modelclient.StopToolUse:
			toolResultMsg := l.runTools(turnCtx, session, result.Message)
			session.Messages = append(session.Messages, toolResultMsg)
			l.checkpoint(turnCtx, session)

		case modelclient.StopMaxTokens:
			// Compaction is re-evaluated at the top of the next
			// iteration's step 3/4 against the now-larger message list.

		case modelclient.StopCancelled:
			turnSpan.End()
			l.pause(ctx, session)
			return RunResult{Status: StatusPaused, TurnCount: session.TurnCount, LastStopReason: result.StopReason, Err: err}

		default:
			l.deps.Tracer.RecordError(turnSpan, err)
			l.deps.Logger.Error(ctx, "model stream ended in error", "session_id", session.ID, "stop_reason", result.StopReason)
			turnSpan.End()
			return l.finish(ctx, session, StatusFailed, result.StopReason, err)
		}

		turnSpan.End()
		if l.config.MaxTurns > 0 && session.TurnCount >= l.config.MaxTurns {
			return l.finish(ctx, session, StatusCompleted, modelclient.StopReason("max_turns"), nil)
		}
	}
}

// drainSteering appends any messages queued by a concurrent SendMessage
// call as user-role messages, in arrival order, before the turn builds
// its working message list. Non-blocking: an empty channel (or no
// channel at all) is a no-op.
func (l *Loop) drainSteering(session *models.Session) {
	if l.deps.Steering == nil {
		return
	}
	for {
		select {
		case text, ok := <-l.deps.Steering:
			if !ok {
				return
			}
			session.Messages = append(session.Messages, models.NewTextMessage(
				uuid.NewString(), session.ID, models.RoleUser, text, time.Now(),
			))
		default:
			return
		}
	}
}

// maybeCompact runs compaction when working's estimated size crosses
// compactionThreshold * windowSize (spec.md §4.5 step 4). It retries at
// most maxCompactionRetries times against its own output, guarding
// against a config where a single message already exceeds the budget.
func (l *Loop) maybeCompact(ctx context.Context, session *models.Session, working []models.Message, windowSize int) ([]models.Message, bool) {
	if windowSize <= 0 {
		return working, false
	}
	threshold := l.config.CompactionThreshold * float64(windowSize)
	current := working
	compacted := false

	for i := 0; i < maxCompactionRetries; i++ {
		if float64(estimateTokens(current)) <= threshold {
			break
		}
		next := compact(current, l.config.KeepLastMessages, session.ID)
		if len(next) == len(current) {
			break
		}
		current = next
		compacted = true
		summary := ""
		if len(next) > 0 {
			summary = next[0].Text()
		}
		l.deps.Hooks.OnContextCompaction(ctx, session.ID, session.AgentID, summary)
	}

	if compacted {
		session.Messages = current
	}
	return current, compacted
}

// finish emits session_end, persists the terminal status, and returns a
// RunResult. Budget/maxTurns exits use StatusCompleted per spec.md's
// "budget terminations are not failures" rule.
func (l *Loop) finish(ctx context.Context, session *models.Session, status Status, stopReason modelclient.StopReason, err error) RunResult {
	l.setStatus(ctx, session, sessionStatusFor(status))
	l.publishSimple(session, models.EventSessionEnd)
	l.deps.Hooks.OnSessionEnd(ctx, session.ID, session.AgentID, session.OrgID)
	return RunResult{Status: status, TurnCount: session.TurnCount, LastStopReason: stopReason, Err: err}
}

func (l *Loop) pause(ctx context.Context, session *models.Session) {
	l.setStatus(ctx, session, models.SessionPaused)
}

func sessionStatusFor(status Status) models.SessionStatus {
	switch status {
	case StatusCompleted:
		return models.SessionCompleted
	case StatusFailed:
		return models.SessionFailed
	case StatusPaused:
		return models.SessionPaused
	default:
		return models.SessionActive
	}
}

func (l *Loop) setStatus(ctx context.Context, session *models.Session, status models.SessionStatus) {
	session.Status = status
	if l.deps.Store == nil {
		return
	}
	if err := l.deps.Store.UpdateSession(ctx, session.ID, store.SessionUpdate{Status: &status}); err != nil {
		l.deps.Logger.Warn(ctx, "failed to persist session status", "session_id", session.ID, "status", status, "error", err)
	}
	if l.deps.Metrics != nil {
		l.deps.Metrics.SessionTransitions.WithLabelValues(string(status)).Inc()
	}
}

// touchHeartbeat updates LastHeartbeatAt and persists the turn counter
// (spec.md §4.5 step 2: "Emit a heartbeat (touchSession)").
func (l *Loop) touchHeartbeat(ctx context.Context, session *models.Session) {
	session.LastHeartbeatAt = time.Now()
	if l.deps.Store == nil {
		return
	}
	turnCount := session.TurnCount
	if err := l.deps.Store.TouchSession(ctx, session.ID, store.SessionUpdate{TurnCount: &turnCount}); err != nil {
		l.deps.Logger.Warn(ctx, "heartbeat touch failed", "session_id", session.ID, "error", err)
	}
}

// checkpoint persists the full message list and touches the heartbeat as
// one logical unit (spec.md §4.5's checkpoint paragraph). A failure here
// is logged, not fatal: the loop continues, and a crash before the next
// successful checkpoint simply re-executes the turn's tool calls on
// resume (at-least-once).
func (l *Loop) checkpoint(ctx context.Context, session *models.Session) {
	ctx, span := l.deps.Tracer.TraceCheckpoint(ctx, session.ID)
	defer span.End()

	start := time.Now()
	var err error
	if l.deps.Store != nil {
		if err = l.deps.Store.ReplaceMessages(ctx, session.ID, session.Messages); err == nil {
			turnCount := session.TurnCount
			err = l.deps.Store.TouchSession(ctx, session.ID, store.SessionUpdate{TurnCount: &turnCount})
		}
	}

	if err != nil {
		l.deps.Tracer.RecordError(span, err)
	}
	if l.deps.Metrics != nil {
		l.deps.Metrics.CheckpointDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			l.deps.Metrics.CheckpointErrors.Inc()
		}
	}
	if err != nil {
		l.deps.Logger.Error(ctx, "checkpoint failed, continuing with in-memory state", "session_id", session.ID, "error", err)
		return
	}

	if l.deps.Events == nil {
		return
	}
	l.deps.Events.Publish(session.ID, models.Event{
		Type:      models.EventCheckpoint,
		TurnIndex: session.TurnCount,
		Checkpoint: &models.CheckpointPayload{
			MessageCount: len(session.Messages),
			TurnCount:    session.TurnCount,
		},
	})
}

func (l *Loop) publishSimple(session *models.Session, eventType models.EventType) {
	if l.deps.Events == nil {
		return
	}
	l.deps.Events.Publish(session.ID, models.Event{Type: eventType, TurnIndex: session.TurnCount})
}

func (l *Loop) publishBudget(session *models.Session, eventType models.EventType, reason string, remainingUSD *float64) {
	payload := &models.BudgetPayload{Reason: reason}
	if remainingUSD != nil {
		payload.RemainingUSD = *remainingUSD
	}
	if l.deps.Events == nil {
		return
	}
	l.deps.Events.Publish(session.ID, models.Event{Type: eventType, TurnIndex: session.TurnCount, Budget: payload})
}

// estimateTokens sums the char/4 fallback estimate across messages,
// matching spec.md §4.2's conservative estimator used anywhere an exact
// provider token count isn't available.
func estimateTokens(messages []models.Message) int {
	total := 0
	for _, m := range messages {
		total += m.EstimateTokens()
	}
	return total
}

// ResumeAfterRestart appends the synthetic resume notice spec.md §4.5's
// crash-recovery paragraph requires, for a session the Runtime found
// with status=active and a non-empty message list at process start.
func ResumeAfterRestart(session *models.Session, now time.Time) {
	notice := fmt.Sprintf("Session resumed after process restart. Continue where you left off. Current time: %s.", now.UTC().Format(time.RFC3339))
	session.Messages = append(session.Messages, models.NewTextMessage(
		uuid.NewString(), session.ID, models.RoleSystem, notice, now,
	))
}

// errNotResumable classifies a session the Runtime cannot resume
// (spec.md: "Sessions with empty messages are marked failed").
var errNotResumable = runtimeerr.New("agentloop.resume", runtimeerr.PreconditionFailed, fmt.Errorf("session has no message history to resume"))

// CanResume reports whether session is eligible for crash-recovery
// resume, and the error to record against it when it isn't.
func CanResume(session *models.Session) (bool, error) {
	if len(session.Messages) == 0 {
		return false, errNotResumable
	}
	return true, nil
}
