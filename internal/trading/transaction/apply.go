package transaction

import (
	"fmt"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/brokerage"
	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/Aidin1998/orderexec/pkg/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// applyLocked is the single mutation path for order state. Events for
// unknown orders are logged and dropped. Callers hold mu; applied events are
// queued for observers and sinks in the same order.
func (h *Handler) applyLocked(evts ...*model.OrderEvent) {
	applied := make([]*model.OrderEvent, 0, len(evts))
	for _, e := range evts {
		if e == nil {
			continue
		}
		order, ok := h.orders.Get(e.OrderID)
		if !ok {
			h.logger.Warn("Dropping event for unknown order", zap.Int("order_id", e.OrderID), zap.String("status", string(e.Status)))
			continue
		}

		h.eventSeq[order.ID]++
		e.ID = h.eventSeq[order.ID]
		if msg, ok := h.pendingMessages[order.ID]; ok {
			delete(h.pendingMessages, order.ID)
			if e.Message == "" {
				e.Message = msg
			} else {
				e.Message = msg + " " + e.Message
			}
		}
		if e.TriggerArmed {
			order.Arm()
		}

		pendingCancel := h.cancels.Contains(order.ID)
		h.cancels.UpdateOrRemove(order.ID, e.Status)
		switch {
		case e.Status == model.OrderStatusNone:
			e.Status = order.Status
		case pendingCancel && e.Status.IsOpen() && !e.Status.IsFill() && e.Status != model.OrderStatusCancelPending:
			// venue acknowledgements do not undo a pending cancel
			e.Status = order.Status
		case !model.CanTransition(order.Status, e.Status):
			h.logger.Warn("Ignoring order status change not allowed from the current status",
				zap.Int("order_id", order.ID), zap.String("status", string(order.Status)),
				zap.String("event_status", string(e.Status)), zap.String("fill_quantity", e.FillQuantity.String()))
			e.Status = order.Status
		default:
			order.Status = e.Status
		}

		switch e.Status {
		case model.OrderStatusCanceled:
			order.CanceledTime = e.UTCTime
		case model.OrderStatusUpdateSubmitted:
			order.LastUpdateTime = e.UTCTime
		}
		if !e.FillQuantity.IsZero() {
			order.LastFillTime = e.UTCTime
			h.lastFillTime = h.clock.Now()
			h.processFillLocked(e)
		}
		if order.Status.IsClosed() {
			h.openOrders.Delete(order.ID)
		}

		if e.Symbol == order.Symbol {
			e.Quantity = order.Quantity
			e.LimitPrice = order.LimitPrice()
			e.StopPrice = order.StopPrice()
			e.TriggerPrice = order.TriggerPrice()
		}

		if ticket, ok := h.tickets.Get(order.ID); ok {
			ticket.AddOrderEvent(e)
			_ = ticket.SetOrder(order)
			if !e.FillQuantity.IsZero() && order.Type() != model.OrderTypeOptionExercise {
				order.Price = ticket.AverageFillPrice()
			}
		}

		metrics.OrderEvents.WithLabelValues(string(e.Status)).Inc()
		h.logger.Debug("Order event applied", zap.Stringer("event", e))
		applied = append(applied, e)
	}
	metrics.OpenOrders.Set(float64(h.openOrders.Len()))
	h.notifier.push(applied)
}

func (h *Handler) processFillLocked(e *model.OrderEvent) {
	if h.portfolio == nil {
		return
	}
	sec, ok := h.secs.Get(e.Symbol)
	if !ok {
		h.logger.Warn("Fill for unregistered security not applied to portfolio",
			zap.Int("order_id", e.OrderID), zap.String("symbol", e.Symbol))
		return
	}
	h.portfolio.ProcessFill(sec, e)
}

// OnVenueMessage is the venue's entry point. It never lets a panic escape.
func (h *Handler) OnVenueMessage(msg brokerage.Message) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Venue message handling panicked", zap.Any("recover", r), zap.String("message", fmt.Sprintf("%T", msg)))
		}
	}()

	switch m := msg.(type) {
	case brokerage.OrderEventsMessage:
		h.mu.Lock()
		h.applyLocked(m.Events...)
		h.mu.Unlock()
	case brokerage.AccountChangedMessage:
		h.handleAccountChanged(m)
	case brokerage.OptionAssignedMessage:
		h.handleOptionAssigned(m)
	case brokerage.OptionNotificationMessage:
		h.handleOptionNotification(m)
	case brokerage.DelistingMessage:
		h.handleDelisting(m)
	case brokerage.VenueMessage:
		h.handleVenueNotice(m)
	default:
		h.logger.Warn("Unknown venue message", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (h *Handler) handleAccountChanged(m brokerage.AccountChangedMessage) {
	h.logger.Info("Venue pushed account balance",
		zap.String("currency", m.Currency), zap.String("cash", m.Cash.String()))
	if h.portfolio != nil {
		h.portfolio.SetCash(m.Currency, m.Cash)
	}
}

func (h *Handler) handleVenueNotice(m brokerage.VenueMessage) {
	fields := []zap.Field{zap.String("venue", h.venue.Name()), zap.String("code", m.Code), zap.String("text", m.Text)}
	switch m.Kind {
	case brokerage.VenueError:
		h.logger.Error("Venue error", fields...)
	case brokerage.VenueWarning, brokerage.VenueDisconnect:
		h.logger.Warn("Venue warning", fields...)
	default:
		h.logger.Info("Venue message", fields...)
	}
}

// handleOptionAssigned books the assignment of a short option position.
func (h *Handler) handleOptionAssigned(m brokerage.OptionAssignedMessage) {
	if m.Event == nil {
		return
	}
	h.runExercise(m.Event.Symbol, m.Event.FillQuantity.Abs(), "Option Assignment", true)
}

// handleOptionNotification reconciles the holding with the position the
// venue reports after an exercise or expiry.
func (h *Handler) handleOptionNotification(m brokerage.OptionNotificationMessage) {
	sec, ok := h.secs.Get(m.Symbol)
	if !ok {
		h.logger.Warn("Option notification for unknown symbol", zap.String("symbol", m.Symbol))
		return
	}
	holding := sec.Holdings().Quantity
	if holding.Equal(m.Position) {
		return
	}
	h.runExercise(m.Symbol, m.Position.Sub(holding), "Option Exercise/Expiry", false)
}

// runExercise synthesizes an exercise order for quantity contracts of the
// option and applies the exercise model's events.
func (h *Handler) runExercise(symbol string, quantity decimal.Decimal, tag string, assignment bool) {
	option, ok := h.secs.Get(symbol)
	if !ok || option.Option == nil {
		h.logger.Warn("Exercise for a symbol that is not a registered option", zap.String("symbol", symbol))
		return
	}
	underlying, _ := h.secs.Get(option.Option.Underlying)
	now := h.clock.Now()

	h.mu.Lock()
	order := h.synthesizeLocked(symbol, quantity, &model.OptionExerciseTerms{}, tag, now)
	evts := h.exercise.Exercise(option, underlying, order.Clone(), now)
	for _, e := range evts {
		if assignment {
			e.IsAssignment = true
		}
	}
	h.applyLocked(evts...)
	h.mu.Unlock()

	h.logger.Info("Option exercise applied",
		zap.String("symbol", symbol), zap.String("quantity", quantity.String()), zap.Bool("assignment", assignment))
}

// synthesizeLocked registers an order the strategy never submitted, already
// accepted by the venue.
func (h *Handler) synthesizeLocked(symbol string, quantity decimal.Decimal, terms model.Terms, tag string, now time.Time) *model.Order {
	id := int(h.nextOrderID.Add(1))
	req := model.NewSubmitOrderRequest(symbol, quantity, terms, model.GoodTilCanceled, tag, now)
	req.SetOrderID(id)
	req.SetResponse(model.SuccessResponse(req), model.RequestProcessed)

	order := model.NewOrder(id, req)
	order.Status = model.OrderStatusSubmitted
	if sec, ok := h.secs.Get(symbol); ok {
		order.PriceCurrency = sec.Properties.QuoteCurrency
	}
	ticket := model.NewOrderTicket(h, req)
	h.orders.Set(id, order)
	h.openOrders.Set(id, order)
	h.tickets.Set(id, ticket)
	_ = ticket.SetOrder(order)
	return order
}

// handleDelisting cancels open orders on a delisted symbol and liquidates
// the remaining holding at the last price.
func (h *Handler) handleDelisting(m brokerage.DelistingMessage) {
	if m.Kind == brokerage.DelistingWarning {
		h.logger.Warn("Delisting warning", zap.String("symbol", m.Symbol), zap.Time("time", m.Time))
		return
	}
	sec, ok := h.secs.Get(m.Symbol)
	if !ok {
		h.logger.Warn("Delisting for unknown symbol", zap.String("symbol", m.Symbol))
		return
	}

	for _, o := range h.GetOpenOrders(model.BySymbol(m.Symbol)) {
		req := model.NewCancelOrderRequest(o.ID, "Delisted", h.clock.Now())
		h.Cancel(req)
		if resp := req.Response(); resp.IsError() {
			h.logger.Warn("Could not cancel order on delisted symbol",
				zap.Int("order_id", o.ID), zap.String("reason", resp.ErrorMessage))
		}
	}

	quantity := sec.Holdings().Quantity
	if !quantity.IsZero() {
		price := m.Price
		if price.IsZero() {
			price = sec.Price()
		}
		now := h.clock.Now()

		h.mu.Lock()
		order := h.synthesizeLocked(m.Symbol, quantity.Neg(), &model.LiquidationTerms{}, "Liquidate from delisting", now)
		e := model.NewOrderEvent(order, now, model.OrderFee{Currency: sec.Properties.QuoteCurrency}, "Liquidated due to security delisting.")
		e.Status = model.OrderStatusFilled
		e.FillPrice = price
		e.FillQuantity = order.Quantity
		h.applyLocked(e)
		h.mu.Unlock()
	}
	sec.SetTradable(false)

	h.logger.Info("Security delisted", zap.String("symbol", m.Symbol), zap.String("liquidated", quantity.String()))
}
