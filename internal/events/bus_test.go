package events

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventDecision, 1)
	defer unsub()

	b.Publish(EventDecision, "payload")

	select {
	case got := <-ch:
		if got != "payload" {
			t.Fatalf("got %v, expected payload", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	b := NewBus()
	_, unsub := b.Subscribe(EventPriceTick, 1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		// buffer of one, second publish must be dropped not block
		b.Publish(EventPriceTick, 1)
		b.Publish(EventPriceTick, 2)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventRiskAlert, 1)
	if b.Subscribers(EventRiskAlert) != 1 {
		t.Fatalf("subscribers=%d, expected 1", b.Subscribers(EventRiskAlert))
	}
	unsub()
	if b.Subscribers(EventRiskAlert) != 0 {
		t.Fatalf("subscribers=%d after unsubscribe, expected 0", b.Subscribers(EventRiskAlert))
	}

	// a second unsubscribe is a no-op
	unsub()

	if _, ok := <-ch; ok {
		t.Fatal("channel still open after unsubscribe")
	}

	// publishing to a topic with no subscribers is a no-op
	b.Publish(EventRiskAlert, "ignored")
}
