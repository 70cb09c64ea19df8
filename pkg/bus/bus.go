// Package bus carries accepted webhook deliveries from the HTTP handlers to
// the gateway worker, plus an event fan-out for observers.
package bus

import (
	"context"
	"sync"
)

const defaultBufferSize = 100

type DeliveryBus struct {
	deliveries chan Delivery

	eventSubscribers      map[uint64]chan Event
	nextEventSubscriberID uint64

	done      chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
}

func NewDeliveryBus() *DeliveryBus {
	return &DeliveryBus{
		deliveries:       make(chan Delivery, defaultBufferSize),
		eventSubscribers: make(map[uint64]chan Event),
		done:             make(chan struct{}),
	}
}

// PublishDelivery queues one delivery for the worker. Returns false when the
// bus is closed or the context is done before the queue accepts it.
func (b *DeliveryBus) PublishDelivery(ctx context.Context, delivery Delivery) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return false
	case <-b.done:
		return false
	default:
	}

	select {
	case <-ctx.Done():
		return false
	case <-b.done:
		return false
	case b.deliveries <- delivery:
		return true
	}
}

// ConsumeDelivery blocks until a delivery is available, the context is done,
// or the bus is closed. A closed bus keeps handing out deliveries that were
// queued before the close so consumers can drain it.
func (b *DeliveryBus) ConsumeDelivery(ctx context.Context) (Delivery, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return Delivery{}, false
	case delivery := <-b.deliveries:
		return delivery, true
	case <-b.done:
		select {
		case delivery := <-b.deliveries:
			return delivery, true
		default:
			return Delivery{}, false
		}
	}
}

// Pending reports the number of queued, unconsumed deliveries.
func (b *DeliveryBus) Pending() int {
	return len(b.deliveries)
}

func (b *DeliveryBus) Close() {
	b.closeOnce.Do(func() {
		close(b.done)

		b.mu.Lock()
		for id, ch := range b.eventSubscribers {
			close(ch)
			delete(b.eventSubscribers, id)
		}
		b.mu.Unlock()
	})
}
