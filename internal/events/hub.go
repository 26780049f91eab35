// Package events fans analysis results out to live subscribers such as the
// WebSocket stream.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"eeg-stress-api/internal/storage"
)

// Event types.
const (
	TypeAnalysisCompleted = "analysis.completed"
	TypeAnalysisFailed    = "analysis.failed"
	TypeModelState        = "model.state"
)

const (
	defaultBuffer = 64
	dropLogEvery  = 100
)

// Event is one message on the hub.
type Event struct {
	Type       string                  `json:"type"`
	Time       time.Time               `json:"time"`
	Analysis   *storage.AnalysisRecord `json:"analysis,omitempty"`
	ModelState string                  `json:"model_state,omitempty"`
}

// MetricsInterface defines metrics methods needed by the hub
type MetricsInterface interface {
	EventsPublishedInc()
	EventsDroppedInc()
	SubscribersSet(float64)
}

// Hub is an in-memory broadcaster. Publish never blocks: a subscriber whose
// buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	buffer  int
	closed  bool
	dropped atomic.Uint64
	metrics MetricsInterface
}

func NewHub(buffer int, metrics MetricsInterface) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subs:    make(map[*Subscription]struct{}),
		buffer:  buffer,
		metrics: metrics,
	}
}

// Publish delivers ev to every subscriber with room and returns how many
// received it.
func (h *Hub) Publish(ev Event) int {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.metrics != nil {
		h.metrics.EventsPublishedInc()
	}

	delivered := 0
	for s := range h.subs {
		select {
		case s.ch <- ev:
			delivered++
		default:
			if h.metrics != nil {
				h.metrics.EventsDroppedInc()
			}
			if n := h.dropped.Add(1); n%dropLogEvery == 1 {
				log.Warn().Str("type", ev.Type).Uint64("dropped", n).Msg("event subscriber too slow, dropping events")
			}
		}
	}
	return delivered
}

// Subscribe registers a new subscriber. After Close the returned subscription
// is already closed.
func (h *Hub) Subscribe() *Subscription {
	s := &Subscription{hub: h, ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		s.closed = true
		close(s.ch)
		return s
	}
	h.subs[s] = struct{}{}
	h.reportSubscribersLocked()
	return s
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		s.closed = true
		close(s.ch)
		delete(h.subs, s)
	}
	h.reportSubscribersLocked()
}

func (h *Hub) reportSubscribersLocked() {
	if h.metrics != nil {
		h.metrics.SubscribersSet(float64(len(h.subs)))
	}
}

// Subscription receives events until closed.
type Subscription struct {
	hub    *Hub
	ch     chan Event
	closed bool // guarded by hub.mu
}

// C is closed when the subscription or the hub is closed.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	delete(s.hub.subs, s)
	close(s.ch)
	s.hub.reportSubscribersLocked()
}
