// Package events carries the decision core's notifications to
// configured sinks without ever blocking the scheduler.
package events

import (
	"context"
	"sync/atomic"
	"time"

	"airbrain/internal/logger"
	"airbrain/pkg/models"
)

const defaultBuffer = 256

// Sink receives published events.
type Sink interface {
	WriteEvents(events []models.Event) error
	Close() error
}

// Bus is a buffered fan-out. Publish drops when the buffer is full;
// delivery happens in the Run goroutine.
type Bus struct {
	ch      chan models.Event
	sinks   []Sink
	dropped atomic.Int64
}

// NewBus creates a bus over the given sinks.
func NewBus(buffer int, sinks ...Sink) *Bus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Bus{
		ch:    make(chan models.Event, buffer),
		sinks: sinks,
	}
}

// Publish enqueues an event. Never blocks: a full buffer drops the
// event and counts it.
func (b *Bus) Publish(ev models.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	select {
	case b.ch <- ev:
	default:
		if n := b.dropped.Add(1); n == 1 || n%100 == 0 {
			logger.Warnf("event bus full, dropped %d events", n)
		}
	}
}

// Dropped returns how many events were discarded.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Run delivers events until the context is cancelled, then drains the
// buffer before returning.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev := <-b.ch:
					b.deliver(ev)
				default:
					return
				}
			}
		case ev := <-b.ch:
			b.deliver(ev)
		}
	}
}

func (b *Bus) deliver(ev models.Event) {
	for _, sink := range b.sinks {
		if err := sink.WriteEvents([]models.Event{ev}); err != nil {
			logger.Errorf("event sink write failed: %v", err)
		}
	}
}

// Close closes all sinks.
func (b *Bus) Close() error {
	var firstErr error
	for _, sink := range b.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
