package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"jamlink/internal/core/domain"
)

// Subscription receives events published after it was created. C is closed
// by Unsubscribe or Close.
type Subscription struct {
	ID string
	C  <-chan *domain.Event

	ch      chan *domain.Event
	filter  map[domain.EventType]struct{}
	dropped int
}

func (s *Subscription) wants(t domain.EventType) bool {
	if len(s.filter) == 0 {
		return true
	}
	_, ok := s.filter[t]
	return ok
}

// Hub fans events out to in-process subscribers. Publish never blocks: a
// subscriber whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	buffer int
	closed bool
	logger *zap.SugaredLogger
}

// NewHub gives each subscriber a channel of buffer events.
func NewHub(buffer int, logger *zap.SugaredLogger) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{
		subs:   make(map[string]*Subscription),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a subscriber for the given types, or for all types
// when none are given.
func (h *Hub) Subscribe(types ...domain.EventType) *Subscription {
	ch := make(chan *domain.Event, h.buffer)
	sub := &Subscription{
		ID:     uuid.New().String(),
		C:      ch,
		ch:     ch,
		filter: make(map[domain.EventType]struct{}, len(types)),
	}
	for _, t := range types {
		sub.filter[t] = struct{}{}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return sub
	}
	h.subs[sub.ID] = sub
	h.logger.Debugw("Subscriber added", "subscriber_id", sub.ID, "types", types)
	return sub
}

// Unsubscribe closes the subscriber channel. Unknown ids are ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(sub.ch)
	h.logger.Debugw("Subscriber removed", "subscriber_id", id, "dropped", sub.dropped)
}

// Publish never blocks. A subscriber with a full buffer misses the event.
func (h *Hub) Publish(ctx context.Context, event *domain.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			sub.dropped++
			h.logger.Warnw("Subscriber buffer full, dropping event",
				"subscriber_id", sub.ID,
				"type", event.Type,
				"dropped", sub.dropped,
			)
		}
	}
	return nil
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends all subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
}
