package eventbus

import (
	"testing"
	"time"

	"github.com/agentruntime/core/pkg/models"
)

func TestBusDeliversToSubscriber(t *testing.T) {
	bus := NewBus()
	ch, unsubscribe := bus.Subscribe("sess-1")
	defer unsubscribe()

	bus.Publish("sess-1", models.Event{Type: models.EventTurnStart})

	select {
	case ev := <-ch:
		if ev.Type != models.EventTurnStart {
			t.Errorf("Type = %v, want turn_start", ev.Type)
		}
		if ev.SessionID != "sess-1" {
			t.Errorf("SessionID = %q, want sess-1", ev.SessionID)
		}
		if ev.Sequence != 1 {
			t.Errorf("Sequence = %d, want 1", ev.Sequence)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBusSequenceIsMonotonicPerSession(t *testing.T) {
	bus := NewBus()
	ch, unsubscribe := bus.Subscribe("sess-1")
	defer unsubscribe()

	for i := 0; i < 3; i++ {
		bus.Publish("sess-1", models.Event{Type: models.EventHeartbeat})
	}

	var seqs []uint64
	for i := 0; i < 3; i++ {
		ev := <-ch
		seqs = append(seqs, ev.Sequence)
	}
	for i, s := range seqs {
		if s != uint64(i+1) {
			t.Errorf("seqs[%d] = %d, want %d", i, s, i+1)
		}
	}
}

func TestBusFansOutToMultipleSubscribers(t *testing.T) {
	bus := NewBus()
	ch1, unsub1 := bus.Subscribe("sess-1")
	defer unsub1()
	ch2, unsub2 := bus.Subscribe("sess-1")
	defer unsub2()

	bus.Publish("sess-1", models.Event{Type: models.EventTurnStart})

	for _, ch := range []<-chan models.Event{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fan-out delivery")
		}
	}
}

func TestBusDropsForSlowSubscriberRatherThanBlocking(t *testing.T) {
	bus := NewBus()
	_, unsubscribe := bus.Subscribe("sess-1")
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < DefaultSubscriberBuffer+50; i++ {
			bus.Publish("sess-1", models.Event{Type: models.EventHeartbeat})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	ch, unsubscribe := bus.Subscribe("sess-1")
	unsubscribe()

	bus.Publish("sess-1", models.Event{Type: models.EventTurnStart})

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}

func TestBusCloseSessionClosesAllSubscribers(t *testing.T) {
	bus := NewBus()
	ch1, _ := bus.Subscribe("sess-1")
	ch2, _ := bus.Subscribe("sess-1")

	bus.CloseSession("sess-1")

	for _, ch := range []<-chan models.Event{ch1, ch2} {
		if _, ok := <-ch; ok {
			t.Fatal("expected channel closed after CloseSession")
		}
	}
	if got := bus.SubscriberCount("sess-1"); got != 0 {
		t.Errorf("SubscriberCount = %d, want 0", got)
	}
}

func TestBusIndependentSessionsDoNotInterfere(t *testing.T) {
	bus := NewBus()
	chA, unsubA := bus.Subscribe("sess-a")
	defer unsubA()
	chB, unsubB := bus.Subscribe("sess-b")
	defer unsubB()

	bus.Publish("sess-a", models.Event{Type: models.EventTurnStart})

	select {
	case <-chA:
	case <-time.After(time.Second):
		t.Fatal("expected sess-a to receive its event")
	}

	select {
	case ev := <-chB:
		t.Fatalf("sess-b should not receive sess-a's event, got %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
