// Package events fans cart change notifications out to in-process subscribers.
package events

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vyrodovalexey/storecart/internal/model"
)

// DefaultBufferSize is the per-subscriber event buffer.
const DefaultBufferSize = 16

var eventsDroppedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "cart_events_dropped_total",
		Help: "Cart events dropped because a subscriber buffer was full",
	},
)

// Hub routes cart events to subscribers of the event's store.
// Publish never blocks; a subscriber that falls behind loses events.
type Hub struct {
	mu         sync.RWMutex
	subs       map[string]map[*Subscription]struct{}
	bufferSize int
	closed     bool
}

// Subscription receives events for one store, optionally narrowed to one user.
type Subscription struct {
	storeID string
	userID  string
	ch      chan model.CartEvent
	hub     *Hub
	once    sync.Once
}

// NewHub creates a Hub. A non-positive bufferSize selects DefaultBufferSize.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		subs:       make(map[string]map[*Subscription]struct{}),
		bufferSize: bufferSize,
	}
}

// Subscribe registers a subscription for storeID. An empty userID receives
// events for every user of the store. Subscribing to a closed hub returns a
// subscription whose channel is already closed.
func (h *Hub) Subscribe(storeID, userID string) *Subscription {
	sub := &Subscription{
		storeID: storeID,
		userID:  userID,
		ch:      make(chan model.CartEvent, h.bufferSize),
		hub:     h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		sub.once.Do(func() { close(sub.ch) })
		return sub
	}

	if h.subs[storeID] == nil {
		h.subs[storeID] = make(map[*Subscription]struct{})
	}
	h.subs[storeID][sub] = struct{}{}

	return sub
}

// Publish delivers evt to every matching subscriber without blocking.
func (h *Hub) Publish(evt model.CartEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[evt.StoreID] {
		if sub.userID != "" && sub.userID != evt.UserID {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			eventsDroppedTotal.Inc()
		}
	}
}

// SubscriberCount returns the number of subscriptions for storeID.
func (h *Hub) SubscriberCount(storeID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[storeID])
}

// Close closes every subscription and rejects future ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for storeID, subs := range h.subs {
		for sub := range subs {
			sub.once.Do(func() { close(sub.ch) })
		}
		delete(h.subs, storeID)
	}
}

// Events returns the channel the subscription receives on. It is closed when
// the subscription or the hub is closed.
func (s *Subscription) Events() <-chan model.CartEvent {
	return s.ch
}

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()

	if subs, ok := s.hub.subs[s.storeID]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(s.hub.subs, s.storeID)
		}
	}
	s.once.Do(func() { close(s.ch) })
}
