package bus

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestPublishFiltersByTopic(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	agents := b.Subscribe(ctx, AgentsUpdated)
	all := b.Subscribe(ctx)

	b.Publish(ModeChanged, "split")
	b.Publish(AgentsUpdated, nil)

	select {
	case ev := <-agents:
		if ev.Topic != AgentsUpdated {
			t.Errorf("topic = %q, want %q", ev.Topic, AgentsUpdated)
		}
	case <-time.After(time.Second):
		t.Fatal("no agents-updated event")
	}
	select {
	case ev := <-agents:
		t.Errorf("unexpected event %q", ev.Topic)
	default:
	}

	first, second := <-all, <-all
	if first.Topic != ModeChanged || second.Topic != AgentsUpdated {
		t.Errorf("all = %q, %q", first.Topic, second.Topic)
	}
	if first.ID == "" || first.ID == second.ID {
		t.Errorf("event ids = %q, %q", first.ID, second.ID)
	}
}

func TestSubscribeClosesOnCancel(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx, Escape)
	if b.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount() = %d", b.SubscriberCount())
	}
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Errorf("received event after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
	if b.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() after cancel = %d", b.SubscriberCount())
	}
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := b.Subscribe(ctx, ViewChanged)

	done := make(chan struct{})
	go func() {
		for i := 0; i < SubscriberBuffer*2; i++ {
			b.Publish(ViewChanged, i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if got := len(ch); got != SubscriberBuffer {
		t.Errorf("queued = %d, want %d", got, SubscriberBuffer)
	}
}

func TestLayersEscapeDismissesTopmost(t *testing.T) {
	r := NewLayers()
	var dismissed []string
	r.Open("settings", func() { dismissed = append(dismissed, "settings") })
	confirm := r.Open("confirm", func() { dismissed = append(dismissed, "confirm") })

	if top, _ := r.Top(); top != "confirm" {
		t.Errorf("Top() = %q, want confirm", top)
	}
	r.Handle(Event{Topic: Escape})
	if len(dismissed) != 1 || dismissed[0] != "confirm" {
		t.Errorf("dismissed = %v", dismissed)
	}
	// Closing an already dismissed layer is a no-op.
	confirm.Close()
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}

	r.Handle(Event{Topic: Escape})
	r.Handle(Event{Topic: Escape})
	if len(dismissed) != 2 || r.Len() != 0 {
		t.Errorf("dismissed = %v, Len() = %d", dismissed, r.Len())
	}
}

func TestLayersCloseDeregisters(t *testing.T) {
	r := NewLayers()
	called := false
	l := r.Open("picker", func() { called = true })
	l.Close()
	if _, ok := r.DismissTop(); ok {
		t.Errorf("DismissTop() found a closed layer")
	}
	if called {
		t.Errorf("Close() ran the dismiss hook")
	}
}

func TestLayersResetDismissesAllTopmostFirst(t *testing.T) {
	b := New()
	r := NewLayers()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var order []string
	done := make(chan struct{})
	record := func(name string) func() {
		return func() {
			mu.Lock()
			order = append(order, name)
			if len(order) == 3 {
				close(done)
			}
			mu.Unlock()
		}
	}
	r.Open("a", record("a"))
	r.Open("b", record("b"))
	r.Open("c", record("c"))
	r.Listen(ctx, b)

	b.Publish(ResetUIState, nil)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("layers not dismissed")
	}
	mu.Lock()
	defer mu.Unlock()
	if order[0] != "c" || order[2] != "a" {
		t.Errorf("dismiss order = %v, want c b a", order)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d", r.Len())
	}
}
