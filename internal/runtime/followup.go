package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/agentruntime/core/internal/runtimeerr"
	"github.com/agentruntime/core/pkg/models"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// followUpSafetyInterval bounds how long the scheduler ever sleeps
// without a due follow-up or an explicit wake, so a missed wake signal
// (there shouldn't be one — wakeUp is called on every schedule/cancel)
// can't leave a follow-up stranded indefinitely.
const followUpSafetyInterval = time.Minute

// cronParser validates the optional Every field's recurring schedule
// (SPEC_FULL.md's supplemented recurring-follow-up feature). Only the
// parser is used — the scheduling itself is this package's own
// single-timer loop, not cron's own run-loop.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// followUpScheduler is the single timer that wakes at the earliest
// pending follow-up's ExecuteAt (spec.md §4.6's follow-up scheduler).
type followUpScheduler struct {
	runtime *Runtime

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wake    chan struct{}
	wg      sync.WaitGroup
}

func newFollowUpScheduler(r *Runtime) *followUpScheduler {
	return &followUpScheduler{runtime: r, wake: make(chan struct{}, 1)}
}

func (s *followUpScheduler) start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)
}

func (s *followUpScheduler) stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *followUpScheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	timer := s.runtime.deps.Clock.NewTimer(s.nextDelay(ctx))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-s.wake:
			timer.Reset(s.nextDelay(ctx))
		case <-timer.C():
			s.fireDue(ctx)
			timer.Reset(s.nextDelay(ctx))
		}
	}
}

func (s *followUpScheduler) wakeUp() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// nextDelay is the earliest pending follow-up's ExecuteAt minus now,
// clamped to [0, followUpSafetyInterval].
func (s *followUpScheduler) nextDelay(ctx context.Context) time.Duration {
	pending, err := s.runtime.deps.Store.ListPendingFollowUps(ctx)
	if err != nil || len(pending) == 0 {
		return followUpSafetyInterval
	}
	earliest := pending[0].ExecuteAt
	for _, f := range pending[1:] {
		if f.ExecuteAt.Before(earliest) {
			earliest = f.ExecuteAt
		}
	}
	d := earliest.Sub(s.runtime.deps.Clock.Now())
	if d < 0 {
		d = 0
	}
	if d > followUpSafetyInterval {
		d = followUpSafetyInterval
	}
	return d
}

func (s *followUpScheduler) fireDue(ctx context.Context) {
	pending, err := s.runtime.deps.Store.ListPendingFollowUps(ctx)
	if err != nil {
		s.runtime.deps.Logger.Warn(ctx, "failed to list pending follow-ups", "error", err)
		return
	}
	now := s.runtime.deps.Clock.Now()
	for _, f := range pending {
		if f.ExecuteAt.After(now) {
			continue
		}
		s.fire(ctx, f)
	}
}

// fire delivers one follow-up's message via sendMessage (or a new
// session if none is active), transitions it to fired, and reschedules
// it to the next cron occurrence if it is recurring.
func (s *followUpScheduler) fire(ctx context.Context, f models.FollowUp) {
	delivered := false
	if f.SessionID != "" {
		if err := s.runtime.SendMessage(ctx, f.SessionID, f.Message); err != nil {
			s.runtime.deps.Logger.Warn(ctx, "follow-up delivery via sendMessage failed, spawning a new session instead",
				"follow_up_id", f.ID, "error", err)
		} else {
			delivered = true
		}
	}
	if !delivered {
		if _, err := s.runtime.Spawn(ctx, SpawnOptions{AgentID: f.AgentID, InitialMessage: f.Message}); err != nil {
			s.runtime.deps.Logger.Error(ctx, "follow-up delivery failed: could not spawn a session",
				"follow_up_id", f.ID, "error", err)
			return
		}
	}

	status := models.FollowUpFired
	var next *models.FollowUp
	if f.Every != "" {
		if schedule, err := cronParser.Parse(f.Every); err == nil {
			status = models.FollowUpPending
			next = &models.FollowUp{ExecuteAt: schedule.Next(s.runtime.deps.Clock.Now())}
		} else {
			s.runtime.deps.Logger.Warn(ctx, "invalid recurring follow-up cron expression, firing once",
				"follow_up_id", f.ID, "every", f.Every, "error", err)
		}
	}
	if err := s.runtime.deps.Store.UpdateFollowUpStatus(ctx, f.ID, status, next); err != nil {
		s.runtime.deps.Logger.Warn(ctx, "failed to update follow-up status after firing", "follow_up_id", f.ID, "error", err)
	}
}

// ScheduleFollowUp creates a FollowUp and wakes the scheduler so it can
// re-evaluate its next wake time immediately, rather than waiting up to
// followUpSafetyInterval to notice a newly-created due date.
func (r *Runtime) ScheduleFollowUp(ctx context.Context, agentID, sessionID, message string, executeAt time.Time, every string) (string, error) {
	f := models.FollowUp{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		SessionID: sessionID,
		Message:   message,
		ExecuteAt: executeAt,
		Status:    models.FollowUpPending,
		Every:     every,
	}
	created, err := r.deps.Store.CreateFollowUp(ctx, f)
	if err != nil {
		return "", runtimeerr.New("runtime.scheduleFollowUp", runtimeerr.Internal, err)
	}
	r.followUps.wakeUp()
	return created.ID, nil
}

// CancelFollowUp cancels a pending follow-up. Reports false, without
// error, for an id that is already fired or cancelled.
func (r *Runtime) CancelFollowUp(ctx context.Context, id string) (bool, error) {
	ok, err := r.deps.Store.CancelFollowUp(ctx, id)
	if err != nil {
		return false, runtimeerr.New("runtime.cancelFollowUp", runtimeerr.Internal, err)
	}
	if ok {
		r.followUps.wakeUp()
	}
	return ok, nil
}
