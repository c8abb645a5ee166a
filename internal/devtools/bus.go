// Package devtools implements the one piece of process-wide state spec.md
// allows (§5 shared state (c), §9 "Global state"): a bounded
// multi-producer/single-consumer event bus that every connection's plugins
// push onto, drained by attached devtools dashboards over the local
// WebSocket router.
package devtools

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Event is one devtools-visible occurrence: a request/response pair, a
// tunnel byte-count update, or a plugin-emitted annotation.
type Event struct {
	Timestamp time.Time       `json:"timestamp"`
	ConnID    string          `json:"conn_id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
}

// Bus is a bounded FIFO channel wrapper: multiple connection goroutines
// publish concurrently, a single consumer goroutine per attached dashboard
// drains it. Capacity is fixed at construction; a full bus drops the
// event being published (queued events are kept) rather than blocking a
// publisher, since devtools
// visibility must never slow down the proxy's hot path.
type Bus struct {
	ch     chan Event
	logger *zap.Logger
}

// New constructs a Bus with the given bounded capacity.
func New(capacity int, logger *zap.Logger) *Bus {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Bus{ch: make(chan Event, capacity), logger: logger}
}

// Publish enqueues an event, non-blocking: if the bus is full the event is
// dropped and logged at debug level rather than backpressuring the caller.
func (b *Bus) Publish(ev Event) {
	select {
	case b.ch <- ev:
	default:
		if b.logger != nil {
			b.logger.Debug("devtools: event dropped, bus full", zap.String("kind", ev.Kind))
		}
	}
}

// Subscribe returns the receive-only channel a single dashboard consumer
// drains. Calling Subscribe more than once is legal (each attached
// dashboard gets the same channel and races with others for events),
// matching spec.md's framing of the bus as bounded rather than
// fanned-out-per-consumer.
func (b *Bus) Subscribe() <-chan Event { return b.ch }

// Len reports the number of currently queued events, used for metrics.
func (b *Bus) Len() int { return len(b.ch) }
