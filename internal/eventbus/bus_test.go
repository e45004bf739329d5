package eventbus

import "testing"

func TestPublishOrderToSubscriber(t *testing.T) {
	b := New()
	sub := b.Subscribe(8)

	kinds := []Kind{PlanningStarted, PlanCreated, TaskStarted, TaskCompleted, ExecutionCompleted}
	for _, k := range kinds {
		b.Publish(Event{Kind: k, SessionID: "s1"})
	}

	for _, want := range kinds {
		got := <-sub
		if got.Kind != want {
			t.Fatalf("got %s, want %s", got.Kind, want)
		}
		if got.SessionID != "s1" {
			t.Fatalf("got session %q, want s1", got.SessionID)
		}
	}
}

func TestTapReceivesEverySubscriberEvent(t *testing.T) {
	b := New()
	tap := b.Tap(4)
	sub := b.Subscribe(4)

	b.Publish(Event{Kind: TaskStarted, SessionID: "s1"})

	if ev := <-sub; ev.Kind != TaskStarted {
		t.Fatalf("subscriber got %s", ev.Kind)
	}
	if ev := <-tap; ev.Kind != TaskStarted {
		t.Fatalf("tap got %s", ev.Kind)
	}
}

func TestPublishDropsOnFullChannelWithoutBlocking(t *testing.T) {
	b := New()
	sub := b.Subscribe(1)

	b.Publish(Event{Kind: TaskStarted, SessionID: "s1"})
	// Buffer is now full (capacity 1, unread). This must not block.
	done := make(chan struct{})
	go func() {
		b.Publish(Event{Kind: TaskCompleted, SessionID: "s1"})
		close(done)
	}()
	<-done

	// Only the first event is observable; the second was dropped.
	ev := <-sub
	if ev.Kind != TaskStarted {
		t.Fatalf("got %s, want %s", ev.Kind, TaskStarted)
	}
	select {
	case extra := <-sub:
		t.Fatalf("unexpected extra event delivered: %v", extra)
	default:
	}
}

func TestCloseClosesAllChannels(t *testing.T) {
	b := New()
	sub := b.Subscribe(1)
	tap := b.Tap(1)
	b.Close()

	if _, ok := <-sub; ok {
		t.Fatal("expected subscriber channel to be closed")
	}
	if _, ok := <-tap; ok {
		t.Fatal("expected tap channel to be closed")
	}
}
