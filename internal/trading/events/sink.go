// Package events fans applied order events out to observers: an in-process
// bus and a Redis publisher.
package events

import (
	"context"

	"github.com/Aidin1998/orderexec/internal/trading/model"
)

// Sink receives every applied order event. Publish is fire-and-forget from
// the handler's point of view; a returned error is only counted and logged.
type Sink interface {
	Name() string
	Publish(ctx context.Context, e *model.OrderEvent) error
}

var _ Sink = (*OrderEventBus)(nil)
