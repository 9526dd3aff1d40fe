// Package orderqueue holds the request queue drained by the transaction
// handler's worker and the optional on-disk journal of queued requests.
package orderqueue

import (
	"context"
	"errors"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/model"
)

// ErrQueueClosed is returned by Enqueue and Dequeue once the queue is closed.
var ErrQueueClosed = errors.New("order request queue is closed")

// Queue is a multi-producer FIFO of order requests with busy tracking.
// A request dequeued by the worker keeps the queue busy until Done.
type Queue interface {
	// Enqueue appends the request.
	Enqueue(req model.OrderRequest) error

	// Dequeue blocks until a request is available, ctx is done or the queue is closed.
	Dequeue(ctx context.Context) (model.OrderRequest, error)

	// Done marks the last dequeued request as fully processed.
	Done()

	// Acknowledge removes a completed request from the journal, if any.
	Acknowledge(req model.OrderRequest)

	// IsBusy reports whether requests are queued or in process.
	IsBusy() bool

	// WaitIdle waits up to timeout for the queue to become idle.
	WaitIdle(timeout time.Duration) bool

	Size() int
	Close() error
}

var _ Queue = (*BusyQueue)(nil)

// Journal persists queued requests so a restarted process can report those
// that were never completed.
type Journal interface {
	Append(ctx context.Context, req model.OrderRequest) error
	Acknowledge(ctx context.Context, req model.OrderRequest) error
	ReplayPending(ctx context.Context) ([]JournalEntry, error)
	Close() error
}
