package events

import (
	"context"
	"errors"
	"sync"

	"github.com/Aidin1998/orderexec/internal/trading/model"
	"go.uber.org/zap"
)

// ErrBusClosed is returned by Publish after Close.
var ErrBusClosed = errors.New("order event bus is closed")

const defaultSubscriberBuffer = 256

// Handler receives order events in the order they were published.
type Handler func(*model.OrderEvent)

type subscription struct {
	topic   Topic
	handler Handler
	ch      chan *model.OrderEvent
	stop    sync.Once
}

func (s *subscription) close() {
	s.stop.Do(func() { close(s.ch) })
}

// OrderEventBus fans applied order events out to in-process subscribers.
// Every subscriber has its own goroutine and buffer: it sees events in
// publish order and a slow subscriber only delays itself. When its buffer is
// full the event is dropped for that subscriber and counted.
type OrderEventBus struct {
	logger  *zap.Logger
	buffer  int
	mu      sync.RWMutex
	subs    map[Topic][]*subscription
	closed  bool
	wg      sync.WaitGroup
	metrics *EventBusMetrics
}

// NewOrderEventBus creates a bus. buffer is the per-subscriber queue length.
func NewOrderEventBus(logger *zap.Logger, buffer int) *OrderEventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &OrderEventBus{
		logger:  logger,
		buffer:  buffer,
		subs:    make(map[Topic][]*subscription),
		metrics: &EventBusMetrics{},
	}
}

func (b *OrderEventBus) Name() string { return "bus" }

// Publish queues the event for every subscriber of each topic it belongs to.
func (b *OrderEventBus) Publish(_ context.Context, e *model.OrderEvent) error {
	b.metrics.Published.Add(1)
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	for _, topic := range TopicsOf(e) {
		for _, s := range b.subs[topic] {
			select {
			case s.ch <- e.Clone():
			default:
				b.metrics.Dropped.Add(1)
				b.logger.Warn("Subscriber buffer full, dropping order event",
					zap.String("topic", string(topic)), zap.Int("order_id", e.OrderID), zap.Int("event_id", e.ID))
			}
		}
	}
	return nil
}

// Subscribe registers handler for topic and returns a function that removes it.
func (b *OrderEventBus) Subscribe(topic Topic, handler Handler) (unsubscribe func()) {
	s := &subscription{topic: topic, handler: handler, ch: make(chan *model.OrderEvent, b.buffer)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.logger.Warn("Subscribe on closed order event bus", zap.String("topic", string(topic)))
		return func() {}
	}
	b.subs[topic] = append(b.subs[topic], s)
	b.wg.Add(1)
	b.mu.Unlock()

	go b.deliverLoop(s)
	b.logger.Debug("Subscribed handler to topic", zap.String("topic", string(topic)))
	return func() { b.unsubscribe(s) }
}

func (b *OrderEventBus) unsubscribe(s *subscription) {
	b.mu.Lock()
	subs := b.subs[s.topic]
	for i, cur := range subs {
		if cur == s {
			b.subs[s.topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	s.close()
}

func (b *OrderEventBus) deliverLoop(s *subscription) {
	defer b.wg.Done()
	for e := range s.ch {
		b.deliver(s, e)
	}
}

func (b *OrderEventBus) deliver(s *subscription, e *model.OrderEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.Failed.Add(1)
			b.logger.Error("Order event handler panic", zap.Any("recover", r),
				zap.String("topic", string(s.topic)), zap.Int("order_id", e.OrderID))
		}
	}()
	s.handler(e)
	b.metrics.Delivered.Add(1)
}

// Close stops accepting events and waits for subscribers to drain their
// buffers.
func (b *OrderEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, s := range subs {
			s.close()
		}
	}
	b.subs = nil
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

// Metrics returns current bus counters.
func (b *OrderEventBus) Metrics() MetricsSnapshot {
	return b.metrics.Snapshot()
}
