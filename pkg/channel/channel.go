package channel

import (
	"context"

	"github.com/go-chi/chi/v5"

	"fbgate/pkg/bus"
)

// Adapter binds one messaging platform's webhook surface into the gateway.
type Adapter interface {
	Name() string
	Mount(r chi.Router)
}

// Processor runs the downstream pipeline for one queued delivery. The gateway
// worker invokes it after the HTTP caller has already been acked.
type Processor interface {
	Process(ctx context.Context, delivery bus.Delivery) error
}
