// Package eventbus implements the per-session event fan-out of spec.md
// §4.7: best-effort delivery to subscribers, with slow subscribers
// dropped rather than allowed to stall the publishing session. Grounded
// on the teacher's internal/agent/event_sink.go — BackpressureSink's
// "block on full for the handful of lifecycle events that matter, drop
// on full for everything else" policy is adapted here into a single
// per-subscriber non-blocking send, since the event bus has no
// high/low-priority split in the spec's alphabet.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentruntime/core/pkg/models"
)

// DefaultSubscriberBuffer is the channel capacity given to each new
// subscriber. A subscriber that falls this far behind starts losing
// events; the Store remains the authoritative record.
const DefaultSubscriberBuffer = 256

type subscriber struct {
	ch      chan models.Event
	dropped uint64
}

type sessionTopic struct {
	mu          sync.Mutex
	subscribers map[int]*subscriber
	nextID      int
	sequence    uint64
}

// Bus is a process-wide registry of per-session event topics. It is safe
// for concurrent use by the one AgentLoop goroutine that publishes to a
// given session and by any number of subscriber goroutines.
type Bus struct {
	mu       sync.RWMutex
	sessions map[string]*sessionTopic
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{sessions: make(map[string]*sessionTopic)}
}

func (b *Bus) topic(sessionID string, create bool) *sessionTopic {
	b.mu.RLock()
	t, ok := b.sessions[sessionID]
	b.mu.RUnlock()
	if ok || !create {
		return t
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok = b.sessions[sessionID]; ok {
		return t
	}
	t = &sessionTopic{subscribers: make(map[int]*subscriber)}
	b.sessions[sessionID] = t
	return t
}

// Publish stamps event with the next per-session sequence number and
// time (if unset) and delivers it to every current subscriber of
// sessionID. Delivery never blocks: a subscriber whose buffer is full
// has this event dropped and its dropped counter incremented.
func (b *Bus) Publish(sessionID string, event models.Event) {
	t := b.topic(sessionID, true)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.sequence++
	event.SessionID = sessionID
	event.Sequence = t.sequence
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	for _, s := range t.subscribers {
		select {
		case s.ch <- event:
		default:
			atomic.AddUint64(&s.dropped, 1)
		}
	}
}

// Subscribe registers a new subscriber for sessionID and returns its
// delivery channel plus an unsubscribe function. The caller must call
// unsubscribe when done to release the channel.
func (b *Bus) Subscribe(sessionID string) (<-chan models.Event, func()) {
	t := b.topic(sessionID, true)

	t.mu.Lock()
	id := t.nextID
	t.nextID++
	sub := &subscriber{ch: make(chan models.Event, DefaultSubscriberBuffer)}
	t.subscribers[id] = sub
	t.mu.Unlock()

	unsubscribe := func() {
		t.mu.Lock()
		_, ok := t.subscribers[id]
		delete(t.subscribers, id)
		t.mu.Unlock()
		if ok {
			close(sub.ch)
		}
	}
	return sub.ch, unsubscribe
}

// SubscriberCount reports how many subscribers are currently attached to
// sessionID.
func (b *Bus) SubscriberCount(sessionID string) int {
	t := b.topic(sessionID, false)
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subscribers)
}

// CloseSession drops the topic for sessionID entirely, closing every
// remaining subscriber channel. Called once a session reaches a
// terminal state and no further events will be published for it.
func (b *Bus) CloseSession(sessionID string) {
	b.mu.Lock()
	t, ok := b.sessions[sessionID]
	if ok {
		delete(b.sessions, sessionID)
	}
	b.mu.Unlock()
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for id, s := range t.subscribers {
		close(s.ch)
		delete(t.subscribers, id)
	}
}
