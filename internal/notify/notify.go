// Package notify delivers entity invalidation events to in-process
// subscribers and, optionally, an MQTT broker.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"music-enricher/internal/metrics"
)

// EventInvalidated is sent when a reconciliation changed an entity's provider data.
const EventInvalidated = "entity.invalidated"

// Invalidation is the payload of EventInvalidated.
type Invalidation struct {
	EntityID int64  `json:"entity_id"`
	Kind     string `json:"kind"`
	Provider string `json:"provider"`
	RecordID string `json:"record_id"`
	Reason   string `json:"reason"`
}

// Invalidation reasons
const (
	ReasonConnected    = "connected"
	ReasonUpdated      = "updated"
	ReasonDiscovered   = "discovered"
	ReasonReconnected  = "reconnected"
	ReasonDisconnected = "disconnected"
)

// Notifier sends events.
type Notifier interface {
	Send(ctx context.Context, eventType string, payload any) error
}

// Event is what Bus subscribers receive.
type Event struct {
	Type    string
	Payload any
}

// Bus broadcasts events to in-process subscribers. Slow subscribers lose
// events rather than block the sender.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	next    int
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger, m *metrics.Metrics) *Bus {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bus{subs: make(map[int]chan Event), logger: logger, metrics: m}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// function unsubscribes and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Send implements Notifier.
func (b *Bus) Send(ctx context.Context, eventType string, payload any) error {
	ev := Event{Type: eventType, Payload: payload}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("subscriber buffer full, event dropped",
				slog.Int("subscriber", id),
				slog.String("type", eventType))
		}
	}
	b.metrics.EventSent(eventType)
	return nil
}

// Multi fans an event out to several notifiers and joins their errors.
type Multi []Notifier

// Send implements Notifier.
func (m Multi) Send(ctx context.Context, eventType string, payload any) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, eventType, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Send(context.Context, string, any) error { return nil }
