package transaction

import (
	"testing"

	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/stretchr/testify/assert"
)

func TestCancelPendingTracksFallback(t *testing.T) {
	c := newCancelPending()
	c.Set(1, model.OrderStatusSubmitted)
	assert.True(t, c.Contains(1))

	c.UpdateOrRemove(1, model.OrderStatusCancelPending)
	c.UpdateOrRemove(1, model.OrderStatusUpdateSubmitted)
	assert.Equal(t, model.OrderStatusUpdateSubmitted, c.RemoveAndFallback(1))
	assert.False(t, c.Contains(1))
	assert.Equal(t, model.OrderStatusNone, c.RemoveAndFallback(1))
}

func TestCancelPendingStopsOnFillOrClose(t *testing.T) {
	for _, status := range []model.OrderStatus{
		model.OrderStatusPartiallyFilled,
		model.OrderStatusFilled,
		model.OrderStatusCanceled,
		model.OrderStatusInvalid,
	} {
		c := newCancelPending()
		c.Set(7, model.OrderStatusSubmitted)
		c.UpdateOrRemove(7, status)
		assert.False(t, c.Contains(7), status)
	}
}

func TestCancelPendingIgnoresUntracked(t *testing.T) {
	c := newCancelPending()
	c.UpdateOrRemove(3, model.OrderStatusSubmitted)
	assert.Equal(t, 0, c.Len())
	c.Remove(3)
	assert.Equal(t, 0, c.Len())
}
