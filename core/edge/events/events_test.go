package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	fail     bool
}

func (p *fakePublisher) Publish(suffix string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := payload.(Event); !ok {
		return errors.New("unexpected payload")
	}
	p.subjects = append(p.subjects, suffix)
	if p.fail {
		return errors.New("bus down")
	}
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subjects)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestHubDeliversToPublisherAndSubscribers(t *testing.T) {
	pub := &fakePublisher{}
	hub := NewHub(pub)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	sub := hub.Subscribe()
	hub.Emit(Event{Type: TypeRequest, Path: "/cdn/demo", Status: 200})

	select {
	case evt := <-sub.C:
		if evt.Path != "/cdn/demo" || evt.Time.IsZero() {
			t.Fatalf("unexpected event %+v", evt)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	waitFor(t, func() bool { return pub.count() == 1 })
	hub.Unsubscribe(sub)
	if hub.Subscribers() != 0 {
		t.Fatalf("expected no subscribers")
	}
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	hub := NewHub(nil)
	sub := hub.Subscribe()
	for i := 0; i < subscriberBuffer+1; i++ {
		hub.deliver(Event{Type: TypeRequest})
	}
	if hub.Subscribers() != 0 {
		t.Fatalf("expected slow subscriber removed")
	}
	n := 0
	for range sub.C {
		n++
	}
	if n != subscriberBuffer {
		t.Fatalf("expected %d buffered events, got %d", subscriberBuffer, n)
	}
	hub.Unsubscribe(sub)
}

func TestEmitNeverBlocks(t *testing.T) {
	hub := NewHub(nil)
	for i := 0; i < defaultBuffer+10; i++ {
		hub.Emit(Event{Type: TypeError})
	}
	if hub.Dropped() != 10 {
		t.Fatalf("expected 10 dropped, got %d", hub.Dropped())
	}
	var nilHub *Hub
	nilHub.Emit(Event{})
}

func TestRunClosesSubscribersOnShutdown(t *testing.T) {
	hub := NewHub(&fakePublisher{fail: true})
	sub := hub.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	hub.Emit(Event{Type: TypeError})
	<-sub.C
	cancel()
	<-done
	if _, ok := <-sub.C; ok {
		t.Fatalf("expected closed subscription")
	}
}
