// Package notify delivers best-effort, at-most-once events to users who are
// currently connected. Nothing is queued or persisted for absent users.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/baharkarakas/ledger-backend/internal/metrics"
)

// Event is pushed to the receiver of a successful transfer.
type Event struct {
	Type      string      `json:"type"`
	Amount    json.Number `json:"amount"`
	From      string      `json:"from"`
	Message   string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
}

type Publisher interface {
	Publish(ctx context.Context, userID string, ev Event) error
}

type subscription struct{ ch chan Event }

// Hub fans events out to the subscriptions held by this process.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscription]struct{}
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{subs: make(map[string]map[*subscription]struct{}), buffer: buffer}
}

// Subscribe registers a channel for userID. The returned func removes the
// subscription and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(userID string) (<-chan Event, func()) {
	s := &subscription{ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*subscription]struct{})
	}
	h.subs[userID][s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], s)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(s.ch)
		})
	}
}

// Subscribers returns how many live subscriptions userID has.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Publish never blocks: a subscriber whose buffer is full misses the event.
func (h *Hub) Publish(_ context.Context, userID string, ev Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := h.subs[userID]
	if len(subs) == 0 {
		metrics.NotificationsTotal.WithLabelValues("no_subscriber").Inc()
		return nil
	}
	for s := range subs {
		select {
		case s.ch <- ev:
			metrics.NotificationsTotal.WithLabelValues("delivered").Inc()
		default:
			metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
		}
	}
	return nil
}
