package orderqueue

import (
	"context"
	"sync"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/Aidin1998/orderexec/pkg/metrics"
	"go.uber.org/zap"
)

// BusyQueue is an unbounded in-memory Queue. The busy flag covers both
// queued requests and the one the worker is processing, so WaitIdle only
// returns once every request enqueued before the call has been handled.
type BusyQueue struct {
	// enqueueMu keeps journal order and queue order the same
	enqueueMu sync.Mutex

	mu         sync.Mutex
	items      []model.OrderRequest
	processing int
	closed     bool
	ready      chan struct{}
	idle       chan struct{}

	journal Journal
	logger  *zap.Logger
}

// NewBusyQueue creates an empty queue. journal may be nil.
func NewBusyQueue(journal Journal, logger *zap.Logger) *BusyQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	idle := make(chan struct{})
	close(idle)
	return &BusyQueue{
		items:   make([]model.OrderRequest, 0),
		ready:   make(chan struct{}, 1),
		idle:    idle,
		journal: journal,
		logger:  logger,
	}
}

// Enqueue adds a request to the tail of the queue. The request is journaled
// before the worker can see it, so its acknowledgement always finds it.
func (q *BusyQueue) Enqueue(req model.OrderRequest) error {
	q.enqueueMu.Lock()
	defer q.enqueueMu.Unlock()

	if q.isClosed() {
		return ErrQueueClosed
	}
	if q.journal != nil {
		if err := q.journal.Append(context.Background(), req); err != nil {
			q.logger.Warn("failed to journal order request",
				zap.String("request_id", req.ID().String()), zap.Error(err))
		}
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.Acknowledge(req)
		return ErrQueueClosed
	}
	if !q.busyLocked() {
		q.idle = make(chan struct{})
	}
	q.items = append(q.items, req)
	depth := len(q.items)
	q.mu.Unlock()

	metrics.QueueDepth.Set(float64(depth))
	q.signal()
	return nil
}

// Dequeue removes and returns the oldest request
func (q *BusyQueue) Dequeue(ctx context.Context) (model.OrderRequest, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			req := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.processing++
			remaining := len(q.items)
			q.mu.Unlock()

			metrics.QueueDepth.Set(float64(remaining))
			if remaining > 0 {
				q.signal()
			}
			return req, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.ready:
		}
	}
}

// Done releases the busy flag held by the last dequeued request.
func (q *BusyQueue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.processing > 0 {
		q.processing--
	}
	if !q.busyLocked() {
		q.closeIdleLocked()
	}
}

// Acknowledge marks a request as completed in the journal.
func (q *BusyQueue) Acknowledge(req model.OrderRequest) {
	if q.journal == nil {
		return
	}
	if err := q.journal.Acknowledge(context.Background(), req); err != nil {
		q.logger.Warn("failed to acknowledge order request",
			zap.String("request_id", req.ID().String()), zap.Error(err))
	}
}

func (q *BusyQueue) IsBusy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.busyLocked()
}

// WaitIdle blocks until the queue is idle or the timeout expires.
func (q *BusyQueue) WaitIdle(timeout time.Duration) bool {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-idle:
		return true
	case <-timer.C:
		return false
	}
}

// Size returns the number of queued requests, excluding the one in process
func (q *BusyQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting requests. Requests already queued can still be
// dequeued; Dequeue returns ErrQueueClosed once the queue is empty.
func (q *BusyQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	if !q.busyLocked() {
		q.closeIdleLocked()
	}
	q.mu.Unlock()
	q.signal()
	return nil
}

func (q *BusyQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *BusyQueue) busyLocked() bool {
	return len(q.items) > 0 || q.processing > 0
}

func (q *BusyQueue) closeIdleLocked() {
	select {
	case <-q.idle:
	default:
		close(q.idle)
	}
}

func (q *BusyQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
