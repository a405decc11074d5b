package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Message is a single chat message. Text is already trimmed by the ingest
// side; the hub never alters it.
type Message struct {
	Text string
}

// Callback receives a published message. A non-nil error marks the
// subscriber as gone and removes it from the hub. A callback runs with its
// subscription locked and must not call Publish, or Unsubscribe on its own
// handle.
type Callback func(Message) error

// Handle identifies a registration. The zero Handle is never issued.
type Handle uint64

// Stats is a point-in-time view of the hub counters.
type Stats struct {
	Subscribers int
	Published   uint64
	Delivered   uint64
	Failed      uint64
}

// drainPoll is how often Shutdown re-checks the subscriber count.
const drainPoll = 10 * time.Millisecond

type subscription struct {
	id Handle
	fn Callback

	// mu is held for the duration of a delivery; active flips to false
	// under it so that Unsubscribe waits out an in-flight delivery.
	mu     sync.Mutex
	active bool
}

// Hub fans published messages out to every registered subscriber.
// The zero value is not usable; call New.
type Hub struct {
	// dispatchMu serializes Publish so that every subscriber observes
	// messages in the same order.
	dispatchMu sync.Mutex

	mu     sync.RWMutex
	subs   []*subscription
	nextID Handle

	done      chan struct{}
	closeOnce sync.Once

	published atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
}

// New returns an empty Hub.
func New() *Hub {
	return &Hub{done: make(chan struct{})}
}

// Subscribe registers fn and returns a handle for Unsubscribe.
func (h *Hub) Subscribe(fn Callback) Handle {
	sub := &subscription{fn: fn, active: true}

	h.mu.Lock()
	h.nextID++
	sub.id = h.nextID
	h.subs = append(h.subs, sub)
	count := len(h.subs)
	h.mu.Unlock()

	slog.Debug("hub: subscriber registered", "handle", sub.id, "subscribers", count)
	return sub.id
}

// Unsubscribe removes the subscriber registered under id. Unknown or
// already removed handles are ignored. If a delivery to this subscriber is
// in progress, Unsubscribe blocks until it finishes.
func (h *Hub) Unsubscribe(id Handle) {
	sub, count := h.remove(id)
	if sub == nil {
		return
	}

	sub.mu.Lock()
	sub.active = false
	sub.mu.Unlock()

	slog.Debug("hub: subscriber removed", "handle", id, "subscribers", count)
}

// Publish delivers msg to every subscriber registered when the dispatch
// starts, in registration order, and returns the number of successful
// deliveries.
func (h *Hub) Publish(msg Message) int {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()

	targets := h.snapshot()
	h.published.Add(1)

	delivered := 0
	for _, sub := range targets {
		ok, err := sub.invoke(msg)
		if err != nil {
			h.failed.Add(1)
			slog.Debug("hub: delivery failed, dropping subscriber", "handle", sub.id, "err", err)
			h.Unsubscribe(sub.id)
			continue
		}
		if ok {
			delivered++
		}
	}

	h.delivered.Add(uint64(delivered))
	return delivered
}

// Len returns the number of registered subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Stats returns the current counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Subscribers: h.Len(),
		Published:   h.published.Load(),
		Delivered:   h.delivered.Load(),
		Failed:      h.failed.Load(),
	}
}

// Done is closed once Close has been called. Streaming handlers select on it
// to end their subscriber lifetime at server shutdown.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Close signals every streaming handler to return. It is safe to call more
// than once. Subscribe and Publish keep working after Close.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		slog.Info("hub: closing", "subscribers", h.Len())
	})
}

// Shutdown closes the hub and waits until every subscriber has unsubscribed.
// It returns ctx.Err() if the context ends first.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.Close()

	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()

	for h.Len() > 0 {
		select {
		case <-ctx.Done():
			slog.Warn("hub: shutdown timed out", "subscribers", h.Len())
			return ctx.Err()
		case <-ticker.C:
		}
	}

	slog.Info("hub: shutdown complete")
	return nil
}

func (h *Hub) snapshot() []*subscription {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]*subscription(nil), h.subs...)
}

func (h *Hub) remove(id Handle) (*subscription, int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, sub := range h.subs {
		if sub.id == id {
			h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
			return sub, len(h.subs)
		}
	}
	return nil, len(h.subs)
}

// invoke runs the callback unless the subscription has been deactivated.
// A panic in the callback is reported as an error.
func (s *subscription) invoke(msg Message) (ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return false, nil
	}

	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("hub: subscriber %d panicked: %v", s.id, r)
		}
	}()

	if err = s.fn(msg); err != nil {
		return false, err
	}
	return true, nil
}
