// Package transaction is the order-execution core: producers submit, update
// and cancel orders through a Handler, a single worker applies the requests
// against the venue, and every resulting order event is applied to the order
// and its ticket under one lock before being handed to observers.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/brokerage"
	"github.com/Aidin1998/orderexec/internal/trading/events"
	"github.com/Aidin1998/orderexec/internal/trading/fills"
	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/Aidin1998/orderexec/internal/trading/orderqueue"
	"github.com/Aidin1998/orderexec/internal/trading/risk"
	"github.com/Aidin1998/orderexec/internal/trading/securities"
	"github.com/Aidin1998/orderexec/pkg/metrics"
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
	"go.uber.org/zap"
)

// ErrNotActive is reported when the handler has stopped processing.
var ErrNotActive = errors.New("transaction handler is not active")

// Config holds the handler's timing and retention settings.
type Config struct {
	// TicketWaitTimeout bounds how long Submit waits for the order to be attached.
	TicketWaitTimeout time.Duration

	// ExitTimeout bounds how long Exit waits for the queue to drain.
	ExitTimeout time.Duration

	// SyncWaitTimeout bounds the queue wait in ProcessSynchronousEvents.
	SyncWaitTimeout time.Duration

	LiveMode            bool
	MaxOrdersToKeep     int
	CashSyncInterval    time.Duration
	CashSyncQuietPeriod time.Duration
	MaxCashSyncAttempts int
}

// DefaultConfig returns the settings used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		TicketWaitTimeout:   time.Second,
		ExitTimeout:         30 * time.Second,
		SyncWaitTimeout:     10 * time.Second,
		MaxOrdersToKeep:     10000,
		CashSyncInterval:    24 * time.Hour,
		CashSyncQuietPeriod: 10 * time.Second,
		MaxCashSyncAttempts: 5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TicketWaitTimeout <= 0 {
		c.TicketWaitTimeout = d.TicketWaitTimeout
	}
	if c.ExitTimeout <= 0 {
		c.ExitTimeout = d.ExitTimeout
	}
	if c.SyncWaitTimeout <= 0 {
		c.SyncWaitTimeout = d.SyncWaitTimeout
	}
	if c.MaxOrdersToKeep <= 0 {
		c.MaxOrdersToKeep = d.MaxOrdersToKeep
	}
	if c.CashSyncInterval <= 0 {
		c.CashSyncInterval = d.CashSyncInterval
	}
	if c.CashSyncQuietPeriod <= 0 {
		c.CashSyncQuietPeriod = d.CashSyncQuietPeriod
	}
	if c.MaxCashSyncAttempts <= 0 {
		c.MaxCashSyncAttempts = d.MaxCashSyncAttempts
	}
	return c
}

// Deps are the collaborators the handler consumes. Venue and Securities are
// required; the rest fall back to permissive defaults.
type Deps struct {
	Venue       brokerage.Venue
	Securities  *securities.Manager
	Portfolio   *risk.Portfolio
	BuyingPower risk.BuyingPowerModel
	Shortable   risk.ShortableProvider
	Capability  brokerage.CapabilityModel
	Exercise    fills.ExerciseModel
	Clock       securities.Clock
	Queue       orderqueue.Queue
	Sinks       []events.Sink

	// OnRuntimeError is called once when the worker hits a fault it cannot
	// recover from.
	OnRuntimeError func(error)
}

// Handler owns every order and ticket of one strategy.
type Handler struct {
	cfg    Config
	logger *zap.Logger
	warn   *onceLogger

	venue       brokerage.Venue
	secs        *securities.Manager
	portfolio   *risk.Portfolio
	buyingPower risk.BuyingPowerModel
	shortable   risk.ShortableProvider
	capability  brokerage.CapabilityModel
	exercise    fills.ExerciseModel
	clock       securities.Clock
	queue       orderqueue.Queue
	sinks       []events.Sink

	onRuntimeError func(error)

	// mu guards everything below up to nextOrderID
	mu              sync.Mutex
	orders          *btree.Map[int, *model.Order]
	openOrders      *btree.Map[int, *model.Order]
	tickets         *btree.Map[int, *model.OrderTicket]
	eventSeq        map[int]int
	pendingMessages map[int]string
	lastFillTime    time.Time
	lastCashSync    time.Time
	cashSyncErrors  int

	nextOrderID atomic.Int64
	cancels     *cancelPending
	notifier    *notifier

	subMu              sync.RWMutex
	orderEventHandlers []func(*model.OrderEvent)
	assignmentHandlers []func(*model.OrderEvent)

	active     atomic.Bool
	warmingUp  atomic.Bool
	failOnce   sync.Once
	stopWorker context.CancelFunc
	workerDone chan struct{}
}

var (
	_ model.OrderProcessor       = (*Handler)(nil)
	_ model.OpenQuantityProvider = (*Handler)(nil)
	_ brokerage.MessageSink      = (*Handler)(nil)
)

// NewHandler wires the handler to its venue. Call Start to run the worker.
func NewHandler(cfg Config, deps Deps, logger *zap.Logger) (*Handler, error) {
	if deps.Venue == nil {
		return nil, errors.New("transaction handler requires a venue")
	}
	if deps.Securities == nil {
		return nil, errors.New("transaction handler requires a securities manager")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.BuyingPower == nil {
		deps.BuyingPower = risk.NullBuyingPowerModel{}
	}
	if deps.Shortable == nil {
		deps.Shortable = risk.NullShortableProvider{}
	}
	if deps.Capability == nil {
		deps.Capability = brokerage.DefaultCapabilityModel{}
	}
	if deps.Exercise == nil {
		deps.Exercise = fills.DefaultExerciseModel{}
	}
	if deps.Clock == nil {
		deps.Clock = securities.RealClock{}
	}
	if deps.Queue == nil {
		deps.Queue = orderqueue.NewBusyQueue(nil, logger)
	}

	h := &Handler{
		cfg:             cfg.withDefaults(),
		logger:          logger.With(zap.String("component", "transaction_handler")),
		venue:           deps.Venue,
		secs:            deps.Securities,
		portfolio:       deps.Portfolio,
		buyingPower:     deps.BuyingPower,
		shortable:       deps.Shortable,
		capability:      deps.Capability,
		exercise:        deps.Exercise,
		clock:           deps.Clock,
		queue:           deps.Queue,
		sinks:           deps.Sinks,
		onRuntimeError:  deps.OnRuntimeError,
		orders:          btree.NewMap[int, *model.Order](32),
		openOrders:      btree.NewMap[int, *model.Order](32),
		tickets:         btree.NewMap[int, *model.OrderTicket](32),
		eventSeq:        make(map[int]int),
		pendingMessages: make(map[int]string),
		cancels:         newCancelPending(),
	}
	h.warn = newOnceLogger(h.logger)
	h.notifier = newNotifier(h.deliver)
	deps.Venue.SetSink(h)
	return h, nil
}

// Start launches the worker goroutine.
func (h *Handler) Start(ctx context.Context) error {
	if h.active.Load() {
		return errors.New("transaction handler already started")
	}
	workerCtx, cancel := context.WithCancel(ctx)
	h.stopWorker = cancel
	h.workerDone = make(chan struct{})
	h.active.Store(true)
	go h.run(workerCtx)
	h.logger.Info("Transaction handler started", zap.String("venue", h.venue.Name()), zap.Bool("live", h.cfg.LiveMode))
	return nil
}

// Exit waits for queued requests to drain, then stops the worker. In-flight
// venue calls are not awaited beyond ExitTimeout.
func (h *Handler) Exit() {
	if !h.queue.WaitIdle(h.cfg.ExitTimeout) {
		h.logger.Warn("Request queue did not drain before exit timeout",
			zap.Int("pending", h.queue.Size()), zap.Duration("timeout", h.cfg.ExitTimeout))
	}
	_ = h.queue.Close()
	if h.stopWorker != nil {
		h.stopWorker()
		select {
		case <-h.workerDone:
		case <-time.After(h.cfg.ExitTimeout):
			h.logger.Warn("Worker did not stop before exit timeout")
		}
	}
	if !h.notifier.close(h.cfg.ExitTimeout) {
		h.logger.Warn("Order event observers did not drain before exit timeout")
	}
	h.active.Store(false)
	h.logger.Info("Transaction handler stopped")
}

// IsActive is false once Exit ran or the worker failed.
func (h *Handler) IsActive() bool { return h.active.Load() }

// SetWarmingUp toggles rejection of submits while the strategy warms up.
func (h *Handler) SetWarmingUp(v bool) { h.warmingUp.Store(v) }

// OnOrderEvent registers an observer for every applied order event.
// Observers run on one goroutine, outside the handler lock, in the order
// events were applied. A slow observer delays every later event.
func (h *Handler) OnOrderEvent(fn func(*model.OrderEvent)) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	h.orderEventHandlers = append(h.orderEventHandlers, fn)
}

// OnAssignment registers an observer for option assignment events.
func (h *Handler) OnAssignment(fn func(*model.OrderEvent)) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	h.assignmentHandlers = append(h.assignmentHandlers, fn)
}

// fail reports a fatal worker fault once and marks the handler inactive.
func (h *Handler) fail(err error) {
	h.failOnce.Do(func() {
		h.active.Store(false)
		h.logger.Error("Transaction handler stopped on runtime error", zap.Error(err))
		if h.onRuntimeError != nil {
			h.onRuntimeError(err)
		}
	})
}

// Orders

func (h *Handler) OrdersCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.orders.Len()
}

// GetOrderByID returns a clone of the order, or nil.
func (h *Handler) GetOrderByID(orderID int) *model.Order {
	h.mu.Lock()
	defer h.mu.Unlock()
	order, ok := h.orders.Get(orderID)
	if !ok {
		return nil
	}
	return order.Clone()
}

func (h *Handler) GetOrderByBrokerageID(brokerageID string) *model.Order {
	h.mu.Lock()
	defer h.mu.Unlock()
	var found *model.Order
	h.orders.Scan(func(_ int, o *model.Order) bool {
		for _, id := range o.BrokerIDs {
			if id == brokerageID {
				found = o.Clone()
				return false
			}
		}
		return true
	})
	return found
}

// GetOrders returns clones of all orders matching filter, ordered by id.
func (h *Handler) GetOrders(filter model.OrderFilter) []*model.Order {
	h.mu.Lock()
	defer h.mu.Unlock()
	return collectOrders(h.orders, filter)
}

// GetOpenOrders returns clones of the orders not yet in a terminal status.
func (h *Handler) GetOpenOrders(filter model.OrderFilter) []*model.Order {
	h.mu.Lock()
	defer h.mu.Unlock()
	return collectOrders(h.openOrders, filter)
}

func collectOrders(m *btree.Map[int, *model.Order], filter model.OrderFilter) []*model.Order {
	out := make([]*model.Order, 0)
	m.Scan(func(_ int, o *model.Order) bool {
		if filter == nil || filter(o) {
			out = append(out, o.Clone())
		}
		return true
	})
	return out
}

func (h *Handler) GetOrderTicket(orderID int) *model.OrderTicket {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, _ := h.tickets.Get(orderID)
	return t
}

func (h *Handler) GetOrderTickets(filter func(*model.OrderTicket) bool) []*model.OrderTicket {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.collectTicketsLocked(filter, false)
}

func (h *Handler) GetOpenOrderTickets(filter func(*model.OrderTicket) bool) []*model.OrderTicket {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.collectTicketsLocked(filter, true)
}

func (h *Handler) collectTicketsLocked(filter func(*model.OrderTicket) bool, openOnly bool) []*model.OrderTicket {
	out := make([]*model.OrderTicket, 0)
	h.tickets.Scan(func(_ int, t *model.OrderTicket) bool {
		if openOnly && t.Status().IsClosed() {
			return true
		}
		if filter == nil || filter(t) {
			out = append(out, t)
		}
		return true
	})
	return out
}

// OpenOrdersRemainingQuantity sums the unfilled quantity of open tickets.
func (h *Handler) OpenOrdersRemainingQuantity(filter func(*model.OrderTicket) bool) decimal.Decimal {
	total := decimal.Zero
	for _, t := range h.GetOpenOrderTickets(filter) {
		total = total.Add(t.QuantityRemaining())
	}
	return total
}

func (h *Handler) openQuantityLocked(symbol string) decimal.Decimal {
	total := decimal.Zero
	for _, t := range h.collectTicketsLocked(func(t *model.OrderTicket) bool { return t.Symbol() == symbol }, true) {
		total = total.Add(t.QuantityRemaining())
	}
	return total
}

func (h *Handler) String() string {
	return fmt.Sprintf("TransactionHandler(venue=%s, orders=%d, active=%t)", h.venue.Name(), h.OrdersCount(), h.IsActive())
}

// deliver runs on the notifier goroutine, one event at a time.
func (h *Handler) deliver(e *model.OrderEvent) {
	h.subMu.RLock()
	onEvent := append([]func(*model.OrderEvent){}, h.orderEventHandlers...)
	onAssignment := append([]func(*model.OrderEvent){}, h.assignmentHandlers...)
	h.subMu.RUnlock()

	for _, fn := range onEvent {
		h.safeCall("order_event", fn, e)
	}
	if e.IsAssignment {
		for _, fn := range onAssignment {
			h.safeCall("assignment", fn, e)
		}
	}
	for _, sink := range h.sinks {
		h.publish(sink, e)
	}
}

func (h *Handler) safeCall(kind string, fn func(*model.OrderEvent), e *model.OrderEvent) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Order event observer panicked",
				zap.String("observer", kind), zap.Int("order_id", e.OrderID), zap.Any("recover", r))
		}
	}()
	fn(e.Clone())
}

func (h *Handler) publish(sink events.Sink, e *model.OrderEvent) {
	defer func() {
		if r := recover(); r != nil {
			metrics.SinkFailures.WithLabelValues(sink.Name()).Inc()
			h.logger.Error("Order event sink panicked", zap.String("sink", sink.Name()), zap.Any("recover", r))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sink.Publish(ctx, e.Clone()); err != nil {
		metrics.SinkFailures.WithLabelValues(sink.Name()).Inc()
		h.logger.Warn("Failed to publish order event",
			zap.String("sink", sink.Name()), zap.Int("order_id", e.OrderID), zap.Error(err))
	}
}
