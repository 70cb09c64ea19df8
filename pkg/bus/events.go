package bus

import (
	"context"
	"sync"
	"time"
)

type EventType string

const (
	EventDeliveryReceived  EventType = "delivery_received"
	EventDeliveryProcessed EventType = "delivery_processed"
	EventDeliveryFailed    EventType = "delivery_failed"
)

type Event struct {
	Type    EventType         `json:"type"`
	At      time.Time         `json:"at"`
	Tenant  string            `json:"tenant,omitempty"`
	Channel string            `json:"channel,omitempty"`
	Payload map[string]string `json:"payload,omitempty"`
	Error   string            `json:"error,omitempty"`
}

func (b *DeliveryBus) PublishEvent(ctx context.Context, event Event) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return false
	case <-b.done:
		return false
	default:
	}

	// Sends stay under the read lock: unsubscribe and Close take the write
	// lock before closing a channel, so a send can never hit a closed one.
	// Sends are non-blocking, so holding the lock cannot stall.
	b.mu.RLock()
	for _, ch := range b.eventSubscribers {
		select {
		case ch <- event:
		default:
			// Drop instead of blocking the publisher on slow subscribers.
		}
	}
	b.mu.RUnlock()

	return true
}

func (b *DeliveryBus) SubscribeEvents(ctx context.Context, buffer int) (<-chan Event, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	ch := make(chan Event, buffer)

	b.mu.Lock()
	select {
	case <-b.done:
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}

	id := b.nextEventSubscriberID
	b.nextEventSubscriberID++
	b.eventSubscribers[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			if eventCh, ok := b.eventSubscribers[id]; ok {
				delete(b.eventSubscribers, id)
				close(eventCh)
			}
			b.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-b.done:
			unsubscribe()
		}
	}()

	return ch, unsubscribe
}
