package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusNew, OrderStatusSubmitted, true},
		{OrderStatusNew, OrderStatusInvalid, true},
		{OrderStatusNew, OrderStatusCancelPending, false},
		{OrderStatusSubmitted, OrderStatusNew, false},
		{OrderStatusSubmitted, OrderStatusUpdateSubmitted, true},
		{OrderStatusSubmitted, OrderStatusPartiallyFilled, true},
		{OrderStatusUpdateSubmitted, OrderStatusSubmitted, true},
		{OrderStatusUpdateSubmitted, OrderStatusFilled, true},
		{OrderStatusPartiallyFilled, OrderStatusSubmitted, false},
		{OrderStatusPartiallyFilled, OrderStatusNew, false},
		{OrderStatusPartiallyFilled, OrderStatusUpdateSubmitted, true},
		{OrderStatusPartiallyFilled, OrderStatusPartiallyFilled, true},
		{OrderStatusCancelPending, OrderStatusCanceled, true},
		{OrderStatusCancelPending, OrderStatusFilled, true},
		{OrderStatusCancelPending, OrderStatusSubmitted, true},
		{OrderStatusCancelPending, OrderStatusNew, false},
		{OrderStatusFilled, OrderStatusCanceled, false},
		{OrderStatusCanceled, OrderStatusSubmitted, false},
		{OrderStatusInvalid, OrderStatusInvalid, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}
