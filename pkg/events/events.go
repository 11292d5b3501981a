// Package events provides in-process event delivery for the streaming
// endpoint. Each pipeline run publishes to its session channel; SSE
// handlers subscribe, relay, and unsubscribe on disconnect.
package events

import (
	"log/slog"
	"sync"
	"time"
)

// Event types emitted over a session channel during a pipeline run.
const (
	EventTypeStatus = "status" // stage transition
	EventTypeAudit  = "audit"  // audit verdict and badge
	EventTypeToken  = "token"  // answer chunk
	EventTypeDone   = "done"   // terminal: full result envelope
	EventTypeError  = "error"  // terminal: run failed
)

// Event is one message on a session channel.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// subscriberBuffer bounds each subscriber's pending queue. A subscriber
// that falls this far behind starts losing events rather than blocking
// the publisher.
const subscriberBuffer = 64

// Broker fans session events out to subscribers. Publishing never blocks:
// slow subscribers drop events.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[chan Event]struct{}
	logger *slog.Logger
}

// NewBroker creates an empty broker.
func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		subs:   make(map[string]map[chan Event]struct{}),
		logger: logger,
	}
}

// Subscribe registers a new subscriber for a session channel and returns
// the event channel plus its cancel function. Cancel is idempotent and
// closes the channel.
func (b *Broker) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	set, ok := b.subs[sessionID]
	if !ok {
		set = make(map[chan Event]struct{})
		b.subs[sessionID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if set, ok := b.subs[sessionID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(b.subs, sessionID)
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber of the session. Events to
// full subscriber queues are dropped and logged.
func (b *Broker) Publish(sessionID, eventType string, data any) {
	ev := Event{
		Type:      eventType,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[sessionID] {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("Event dropped for slow subscriber",
				"session_id", sessionID, "type", eventType)
		}
	}
}

// SubscriberCount returns the number of live subscribers for a session.
func (b *Broker) SubscriberCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}
