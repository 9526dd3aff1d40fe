package transaction

import (
	"sync"

	"github.com/Aidin1998/orderexec/internal/trading/model"
)

// cancelPending remembers the status an order had before a cancel was
// accepted, so a cancel the venue refuses can be rolled back and a fill that
// races the cancel can be told one was in flight.
type cancelPending struct {
	mu       sync.Mutex
	statuses map[int]model.OrderStatus
}

func newCancelPending() *cancelPending {
	return &cancelPending{statuses: make(map[int]model.OrderStatus)}
}

// Set records the pre-cancel status of an order.
func (c *cancelPending) Set(orderID int, status model.OrderStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[orderID] = status
}

// Contains reports whether a cancel is in flight for the order.
func (c *cancelPending) Contains(orderID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.statuses[orderID]
	return ok
}

// UpdateOrRemove follows the status the venue reports while the cancel is in
// flight. Fills and terminal statuses end tracking; any other status becomes
// the new fallback.
func (c *cancelPending) UpdateOrRemove(orderID int, status model.OrderStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.statuses[orderID]; !ok {
		return
	}
	switch {
	case status.IsClosed(), status.IsFill():
		delete(c.statuses, orderID)
	case status != model.OrderStatusCancelPending:
		c.statuses[orderID] = status
	}
}

// RemoveAndFallback stops tracking the order and returns the status to restore.
// It returns OrderStatusNone when the order was not tracked.
func (c *cancelPending) RemoveAndFallback(orderID int) model.OrderStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	status, ok := c.statuses[orderID]
	if !ok {
		return model.OrderStatusNone
	}
	delete(c.statuses, orderID)
	return status
}

// Remove drops the order without returning a fallback.
func (c *cancelPending) Remove(orderID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.statuses, orderID)
}

func (c *cancelPending) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.statuses)
}
