package transaction

import (
	"sync"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/model"
)

// notifier hands applied events to observers and sinks on one goroutine.
// Events are pushed while the handler lock is held, so delivery order is
// application order. Observers may call back into the handler; they only
// ever enqueue more events.
type notifier struct {
	deliver func(*model.OrderEvent)

	mu       sync.Mutex
	wake     chan struct{}
	pending  []*model.OrderEvent
	inFlight bool
	idle     chan struct{}
	closed   bool
	done     chan struct{}
}

func newNotifier(deliver func(*model.OrderEvent)) *notifier {
	idle := make(chan struct{})
	close(idle)
	n := &notifier{
		deliver: deliver,
		wake:    make(chan struct{}, 1),
		idle:    idle,
		done:    make(chan struct{}),
	}
	go n.run()
	return n
}

// push queues events for delivery. After close they are delivered on the
// caller's goroutine.
func (n *notifier) push(evts []*model.OrderEvent) {
	if len(evts) == 0 {
		return
	}
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		for _, e := range evts {
			n.deliver(e)
		}
		return
	}
	if !n.busyLocked() {
		n.idle = make(chan struct{})
	}
	n.pending = append(n.pending, evts...)
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *notifier) run() {
	defer close(n.done)
	for {
		n.mu.Lock()
		batch := n.pending
		n.pending = nil
		n.inFlight = len(batch) > 0
		closed := n.closed
		n.mu.Unlock()

		if len(batch) == 0 {
			if closed {
				return
			}
			<-n.wake
			continue
		}
		for _, e := range batch {
			n.deliver(e)
		}

		n.mu.Lock()
		n.inFlight = false
		if !n.busyLocked() {
			close(n.idle)
		}
		n.mu.Unlock()
	}
}

func (n *notifier) busyLocked() bool {
	return n.inFlight || len(n.pending) > 0
}

// waitIdle blocks until every pushed event was delivered or the timeout
// expires.
func (n *notifier) waitIdle(timeout time.Duration) bool {
	n.mu.Lock()
	idle := n.idle
	n.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-idle:
		return true
	case <-timer.C:
		return false
	}
}

// close delivers what is still queued and stops the goroutine, waiting at
// most timeout.
func (n *notifier) close(timeout time.Duration) bool {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return true
	}
	n.closed = true
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-n.done:
		return true
	case <-timer.C:
		return false
	}
}
