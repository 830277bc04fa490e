package bus

import (
	"context"
	"testing"
	"time"
)

func TestPublishReachesSubscriber(t *testing.T) {
	mb := NewEventBus()
	t.Cleanup(mb.Close)

	events, unsubscribe := mb.Subscribe(context.Background(), 4)
	t.Cleanup(unsubscribe)

	ok := mb.Publish(context.Background(), Event{
		Type:     EventRunStarted,
		TaskName: "daily-sales",
		RunID:    "run-1",
	})
	if !ok {
		t.Fatal("expected publish to succeed")
	}

	select {
	case event := <-events:
		if event.Type != EventRunStarted {
			t.Fatalf("event type = %q, want %q", event.Type, EventRunStarted)
		}
		if event.TaskName != "daily-sales" {
			t.Fatalf("task name = %q, want %q", event.TaskName, "daily-sales")
		}
		if event.At.IsZero() {
			t.Fatal("expected publish to stamp event time")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	mb := NewEventBus()
	t.Cleanup(mb.Close)

	_, unsubscribe := mb.Subscribe(context.Background(), 1)
	t.Cleanup(unsubscribe)

	// Buffer of one: the second publish must not block.
	done := make(chan struct{})
	go func() {
		mb.Publish(context.Background(), Event{Type: EventDeliverySucceeded})
		mb.Publish(context.Background(), Event{Type: EventDeliverySucceeded})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}

func TestPublishAfterCloseFails(t *testing.T) {
	mb := NewEventBus()
	mb.Close()

	if ok := mb.Publish(context.Background(), Event{Type: EventRunFailed}); ok {
		t.Fatal("expected publish after close to fail")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	mb := NewEventBus()
	t.Cleanup(mb.Close)

	events, unsubscribe := mb.Subscribe(context.Background(), 4)
	unsubscribe()

	if _, open := <-events; open {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}

func TestPublishDuringUnsubscribeAndClose(t *testing.T) {
	mb := NewEventBus()

	// Full subscriber buffers force every publish into the send path while
	// subscribers churn and the bus shuts down underneath it.
	churn := make(chan struct{})
	go func() {
		defer close(churn)
		for i := 0; i < 200; i++ {
			_, unsubscribe := mb.Subscribe(context.Background(), 1)
			unsubscribe()
		}
		mb.Close()
	}()

	for i := 0; i < 500; i++ {
		mb.Publish(context.Background(), Event{Type: EventDeliverySucceeded})
	}

	select {
	case <-churn:
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber churn did not finish")
	}

	if ok := mb.Publish(context.Background(), Event{Type: EventRunCompleted}); ok {
		t.Fatal("expected publish after close to fail")
	}
}

func TestSubscribeContextCancelUnsubscribes(t *testing.T) {
	mb := NewEventBus()
	t.Cleanup(mb.Close)

	ctx, cancel := context.WithCancel(context.Background())
	events, _ := mb.Subscribe(ctx, 4)
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, open := <-events:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("subscriber channel not closed after context cancel")
		}
	}
}
