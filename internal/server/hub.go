// Package server coordinates broadcast fan-out for the presence relay
// via the Hub type. Each session holds its own subscription; delivery is
// deliberately lossy for subscribers that fall behind.
package server

import (
	"log"
	"sync"
)

// Hub distributes server messages to every currently subscribed session.
// Each subscription buffers up to the configured capacity; when a
// subscriber lags past it, the oldest unread message is evicted so the
// publisher never blocks. A missed UserUpdate is superseded by the next
// full snapshot, and FileActivityUpdate events are advisory, so lag is
// never treated as an error.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*Subscription]struct{}
	closed      bool
}

// Subscription is a per-session handle receiving a private stream of
// broadcast messages published after the subscription was created.
type Subscription struct {
	ch chan ServerMessage
}

// C returns the receive side of the subscription. The channel is closed
// when the subscription is released or the hub shuts down.
func (s *Subscription) C() <-chan ServerMessage {
	return s.ch
}

// NewHub creates a Hub with no subscribers.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a new subscription observing only future
// publications. Subscribing to a hub that has shut down yields a handle
// whose channel is already closed.
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{
		ch: make(chan ServerMessage, currentConfig().SubscriberBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(sub.ch)
		return sub
	}
	h.subscribers[sub] = struct{}{}
	return sub
}

// Unsubscribe releases a subscription and closes its channel. Safe to
// call for a handle the hub no longer tracks.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subscribers[sub]; !ok {
		return
	}
	delete(h.subscribers, sub)
	close(sub.ch)
}

// Publish delivers msg to every current subscriber. A subscriber whose
// buffer is full loses its oldest unread message and resumes from the
// next available one.
func (h *Hub) Publish(msg ServerMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}
	publishedMessages.WithLabelValues(msg.Type).Inc()

	for sub := range h.subscribers {
		select {
		case sub.ch <- msg:
			continue
		default:
		}

		// Buffer full: evict the oldest entry, then retry once. The
		// second send can still lose the race against a concurrent
		// publisher, which just means this message is the one dropped.
		select {
		case <-sub.ch:
			droppedBroadcasts.Inc()
		default:
		}
		select {
		case sub.ch <- msg:
		default:
			droppedBroadcasts.Inc()
		}
	}
}

// SubscriberCount reports the number of active subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Shutdown releases every subscription and rejects future publications.
// Sessions observe the closed channel and stop their write pumps.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for sub := range h.subscribers {
		close(sub.ch)
	}
	h.subscribers = make(map[*Subscription]struct{})
	log.Println("Hub shut down; all subscriptions released")
}
