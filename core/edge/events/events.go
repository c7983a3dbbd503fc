// Package events fans edge request and error events out to the NATS bus and
// to live admin stream subscribers.
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cordum/packedge/core/infra/logging"
)

const (
	TypeRequest = "request"
	TypeError   = "error"

	defaultBuffer    = 512
	subscriberBuffer = 100
)

// Event describes one finished request or one internal failure.
type Event struct {
	Type       string    `json:"type"`
	RequestID  string    `json:"requestId"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Route      string    `json:"route,omitempty"`
	Status     int       `json:"status"`
	Code       string    `json:"code,omitempty"`
	ErrorID    string    `json:"errorId,omitempty"`
	DurationMs int64     `json:"durationMs"`
	Time       time.Time `json:"time"`
}

// Publisher forwards events to an external bus. *bus.NatsBus satisfies it.
type Publisher interface {
	Publish(suffix string, payload any) error
}

// Subscription receives events until it is closed or falls behind.
type Subscription struct {
	C <-chan Event

	ch   chan Event
	once sync.Once
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

// Hub buffers events and delivers them off the request path. Emit never
// blocks; events are dropped when the buffer is full.
type Hub struct {
	in        chan Event
	publisher Publisher
	dropped   atomic.Uint64

	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// NewHub returns a hub. publisher may be nil.
func NewHub(publisher Publisher) *Hub {
	return &Hub{
		in:        make(chan Event, defaultBuffer),
		publisher: publisher,
		subs:      make(map[*Subscription]struct{}),
	}
}

// Emit queues evt for delivery.
func (h *Hub) Emit(evt Event) {
	if h == nil {
		return
	}
	if evt.Time.IsZero() {
		evt.Time = time.Now().UTC()
	}
	select {
	case h.in <- evt:
	default:
		h.dropped.Add(1)
	}
}

// Dropped is the number of events discarded because the hub was saturated.
func (h *Hub) Dropped() uint64 {
	if h == nil {
		return 0
	}
	return h.dropped.Load()
}

// Subscribe registers a live subscriber.
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan Event, subscriberBuffer)
	sub := &Subscription{C: ch, ch: ch}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
	sub.close()
}

// Subscribers is the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Run delivers queued events until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case evt := <-h.in:
			h.deliver(evt)
		}
	}
}

func (h *Hub) deliver(evt Event) {
	if h.publisher != nil {
		if err := h.publisher.Publish(evt.Type, evt); err != nil {
			logging.Warn("edge-events", "publish failed", "type", evt.Type, "error", err)
		}
	}

	var slow []*Subscription
	h.mu.RLock()
	for sub := range h.subs {
		select {
		case sub.ch <- evt:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	if len(slow) > 0 {
		h.mu.Lock()
		for _, sub := range slow {
			delete(h.subs, sub)
		}
		h.mu.Unlock()
		for _, sub := range slow {
			sub.close()
		}
		logging.Warn("edge-events", "dropped slow subscribers", "count", len(slow))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*Subscription]struct{})
	h.mu.Unlock()
	for sub := range subs {
		sub.close()
	}
}
