package brokerage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/fills"
	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/Aidin1998/orderexec/internal/trading/risk"
	"github.com/Aidin1998/orderexec/internal/trading/securities"
	"github.com/tidwall/btree"
	"go.uber.org/zap"
)

const (
	expiredMessage   = "The order has expired."
	triggeredMessage = "Trigger price reached, order armed."
)

// SimulatedConfig wires the models a simulated venue evaluates orders with.
// Nil models fall back to the defaults.
type SimulatedConfig struct {
	Securities  *securities.Manager
	Portfolio   *risk.Portfolio
	Clock       securities.Clock
	FillModel   fills.Model
	Exercise    fills.ExerciseModel
	Fees        fills.FeeModel
	Slippage    fills.SlippageModel
	Capability  CapabilityModel
	BuyingPower risk.BuyingPowerModel
	StaleSpan   time.Duration
}

// SimulatedVenue keeps its own copies of working orders and fills them from
// the securities' market-data caches whenever Scan runs.
type SimulatedVenue struct {
	cfg    SimulatedConfig
	logger *zap.Logger

	// scanMu serializes Scan with UpdateOrder and CancelOrder
	scanMu sync.Mutex

	mu        sync.Mutex
	pending   *btree.Map[int, *model.Order]
	sink      MessageSink
	connected bool
}

// NewSimulatedVenue creates a disconnected simulated venue.
func NewSimulatedVenue(cfg SimulatedConfig, logger *zap.Logger) *SimulatedVenue {
	if cfg.Clock == nil {
		cfg.Clock = securities.RealClock{}
	}
	if cfg.FillModel == nil {
		cfg.FillModel = fills.NewFillModel()
	}
	if cfg.Exercise == nil {
		cfg.Exercise = fills.DefaultExerciseModel{}
	}
	if cfg.Fees == nil {
		cfg.Fees = fills.NoFee{}
	}
	if cfg.Slippage == nil {
		cfg.Slippage = fills.NoSlippage{}
	}
	if cfg.Capability == nil {
		cfg.Capability = DefaultCapabilityModel{}
	}
	if cfg.BuyingPower == nil {
		cfg.BuyingPower = risk.NullBuyingPowerModel{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimulatedVenue{
		cfg:     cfg,
		logger:  logger.With(zap.String("venue", "simulated")),
		pending: btree.NewMap[int, *model.Order](32),
	}
}

func (v *SimulatedVenue) Name() string { return "simulated" }

func (v *SimulatedVenue) Connect(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.connected = true
	return nil
}

func (v *SimulatedVenue) Disconnect() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.connected = false
	return nil
}

func (v *SimulatedVenue) IsConnected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.connected
}

func (v *SimulatedVenue) SetSink(sink MessageSink) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sink = sink
}

// PendingCount is the number of working orders held by the venue.
func (v *SimulatedVenue) PendingCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pending.Len()
}

// PlaceOrder accepts a new order, assigns its broker id and reports it
// Submitted.
func (v *SimulatedVenue) PlaceOrder(_ context.Context, order *model.Order) error {
	v.mu.Lock()
	if !v.connected {
		v.mu.Unlock()
		return ErrNotConnected
	}
	if _, exists := v.pending.Get(order.ID); exists {
		v.mu.Unlock()
		return fmt.Errorf("order %d already placed", order.ID)
	}
	order.BrokerIDs = append(order.BrokerIDs, fmt.Sprintf("sim-%d", order.ID))
	clone := order.Clone()
	clone.Status = model.OrderStatusSubmitted
	v.pending.Set(order.ID, clone)
	v.mu.Unlock()

	e := model.NewOrderEvent(clone, v.cfg.Clock.Now(), model.OrderFee{}, "")
	v.emit(OrderEventsMessage{Events: []*model.OrderEvent{e}})
	return nil
}

// UpdateOrder replaces the working copy, keeping its trigger state.
func (v *SimulatedVenue) UpdateOrder(_ context.Context, order *model.Order) error {
	v.scanMu.Lock()
	defer v.scanMu.Unlock()

	v.mu.Lock()
	if !v.connected {
		v.mu.Unlock()
		return ErrNotConnected
	}
	prev, ok := v.pending.Get(order.ID)
	if !ok {
		v.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrOrderNotFound, order.ID)
	}
	clone := order.Clone()
	clone.BrokerIDs = prev.BrokerIDs
	clone.Status = model.OrderStatusUpdateSubmitted
	if prev.Armed() {
		clone.Arm()
	}
	v.pending.Set(order.ID, clone)
	v.mu.Unlock()

	e := model.NewOrderEvent(clone, v.cfg.Clock.Now(), model.OrderFee{}, "")
	v.emit(OrderEventsMessage{Events: []*model.OrderEvent{e}})
	return nil
}

// CancelOrder removes a working order and reports it Canceled.
func (v *SimulatedVenue) CancelOrder(_ context.Context, order *model.Order) error {
	v.scanMu.Lock()
	defer v.scanMu.Unlock()

	v.mu.Lock()
	if !v.connected {
		v.mu.Unlock()
		return ErrNotConnected
	}
	working, ok := v.pending.Delete(order.ID)
	v.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrOrderNotFound, order.ID)
	}

	working.Status = model.OrderStatusCanceled
	e := model.NewOrderEvent(working, v.cfg.Clock.Now(), model.OrderFee{}, "")
	v.emit(OrderEventsMessage{Events: []*model.OrderEvent{e}})
	return nil
}

// Scan evaluates every working order once against the current market data.
// Non-market orders are never filled in the scan of the instant they were
// placed.
func (v *SimulatedVenue) Scan(ctx context.Context) {
	v.scanMu.Lock()
	defer v.scanMu.Unlock()

	now := v.cfg.Clock.Now()
	for _, order := range v.snapshot() {
		if ctx.Err() != nil {
			return
		}
		events := v.evaluate(order, now)
		if len(events) > 0 {
			v.emit(OrderEventsMessage{Events: events})
		}
	}
}

func (v *SimulatedVenue) snapshot() []*model.Order {
	v.mu.Lock()
	defer v.mu.Unlock()
	orders := make([]*model.Order, 0, v.pending.Len())
	v.pending.Scan(func(_ int, o *model.Order) bool {
		orders = append(orders, o)
		return true
	})
	return orders
}

// stillPending guards against an order canceled or replaced while the scan
// was running.
func (v *SimulatedVenue) stillPending(order *model.Order) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	cur, ok := v.pending.Get(order.ID)
	return ok && cur == order
}

func (v *SimulatedVenue) remove(order *model.Order) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if cur, ok := v.pending.Get(order.ID); ok && cur == order {
		v.pending.Delete(order.ID)
	}
}

func (v *SimulatedVenue) evaluate(order *model.Order, now time.Time) []*model.OrderEvent {
	if !v.stillPending(order) {
		return nil
	}
	if order.Status.IsClosed() {
		v.remove(order)
		return nil
	}

	sec, ok := v.cfg.Securities.Get(order.Symbol)
	if !ok {
		v.remove(order)
		order.Status = model.OrderStatusInvalid
		return []*model.OrderEvent{model.NewOrderEvent(order, now, model.OrderFee{},
			fmt.Sprintf("Security %s was removed before the order could be filled.", order.Symbol))}
	}

	if order.Type() != model.OrderTypeMarket && order.Type() != model.OrderTypeLiquidation && !order.Time.Before(now) {
		return nil
	}

	if fills.IsExpired(sec, order, now) {
		v.remove(order)
		order.Status = model.OrderStatusCanceled
		return []*model.OrderEvent{model.NewOrderEvent(order, now, model.OrderFee{}, expiredMessage)}
	}

	if order.Type() == model.OrderTypeOptionExercise {
		return v.exercise(sec, order, now)
	}

	if !v.cfg.Capability.CanExecuteOrder(sec, order) {
		return nil
	}

	if v.cfg.Portfolio != nil {
		if ok, reason := v.cfg.BuyingPower.HasSufficientBuyingPower(v.cfg.Portfolio, sec, order); !ok {
			v.remove(order)
			order.Status = model.OrderStatusInvalid
			return []*model.OrderEvent{model.NewOrderEvent(order, now, model.OrderFee{}, reason)}
		}
	}

	wasArmed := order.Armed()
	fillEvents, err := v.cfg.FillModel.Fill(fills.Parameters{
		Security:           sec,
		Order:              order,
		Now:                now,
		StalePriceTimeSpan: v.cfg.StaleSpan,
		Slippage:           v.cfg.Slippage,
	})
	if err != nil {
		v.logger.Error("fill model failed", zap.Int("order_id", order.ID), zap.String("symbol", order.Symbol), zap.Error(err))
		v.emit(VenueMessage{Kind: VenueError, Code: "FillModelError",
			Text: fmt.Sprintf("Order %d: %v", order.ID, err)})
		return nil
	}

	out := make([]*model.OrderEvent, 0, len(fillEvents))
	for _, fill := range fillEvents {
		armedNow := order.Armed() && !wasArmed
		if fill.Status == order.Status && fill.FillQuantity.IsZero() && !armedNow {
			continue
		}
		if armedNow && fill.FillQuantity.IsZero() && fill.Message == "" {
			fill.Message = triggeredMessage
		}
		wasArmed = order.Armed()
		fill.TriggerArmed = order.Armed()
		if fill.Status.IsFill() {
			fill.Fee = v.cfg.Fees.OrderFee(sec, order, fill)
		}
		if fill.Status == model.OrderStatusFilled {
			v.remove(order)
		}
		order.Status = fill.Status
		out = append(out, fill)
	}
	return out
}

func (v *SimulatedVenue) exercise(option *securities.Security, order *model.Order, now time.Time) []*model.OrderEvent {
	var underlying *securities.Security
	if option.Option != nil {
		underlying, _ = v.cfg.Securities.Get(option.Option.Underlying)
	}
	v.remove(order)
	order.Status = model.OrderStatusFilled
	return v.cfg.Exercise.Exercise(option, underlying, order, now)
}

func (v *SimulatedVenue) emit(msg Message) {
	v.mu.Lock()
	sink := v.sink
	v.mu.Unlock()
	if sink != nil {
		sink.OnVenueMessage(msg)
	}
}
