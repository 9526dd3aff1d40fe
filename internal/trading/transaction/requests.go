package transaction

import (
	"fmt"

	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/Aidin1998/orderexec/internal/trading/risk"
	"github.com/Aidin1998/orderexec/pkg/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const cancelInProgressMessage = "Cancellation is already in progress."

// Submit registers a ticket for the request and queues it. Checks that can
// fail before queueing produce an Invalid order right away; the ticket is
// returned either way. On success Submit waits up to TicketWaitTimeout for
// the worker to attach the order.
func (h *Handler) Submit(req *model.SubmitOrderRequest) *model.OrderTicket {
	id := int(h.nextOrderID.Add(1))
	req.SetOrderID(id)

	if resp, rejected := h.preSubmitCheck(req); rejected {
		return h.rejectSubmit(req, resp)
	}

	ticket := model.NewOrderTicket(h, req)
	h.mu.Lock()
	h.tickets.Set(id, ticket)
	h.mu.Unlock()

	if err := h.queue.Enqueue(req); err != nil {
		h.logger.Error("Failed to queue submit request", zap.Int("order_id", id), zap.Error(err))
		h.mu.Lock()
		h.tickets.Delete(id)
		h.mu.Unlock()
		return h.rejectSubmit(req, model.ErrorResponse(req, model.ErrorProcessingError, err.Error()))
	}

	if !ticket.WaitOrderSet(h.cfg.TicketWaitTimeout) {
		h.logger.Warn("Order was not attached to its ticket in time",
			zap.Int("order_id", id), zap.Duration("timeout", h.cfg.TicketWaitTimeout))
	}
	return ticket
}

func (h *Handler) preSubmitCheck(req *model.SubmitOrderRequest) (model.OrderResponse, bool) {
	if !h.IsActive() {
		return model.ErrorResponse(req, model.ErrorProcessingError, ErrNotActive.Error()), true
	}
	if h.warmingUp.Load() {
		return model.WarmingUpResponse(req), true
	}
	if req.Quantity.IsZero() {
		return model.ZeroQuantityResponse(req), true
	}
	if req.Quantity.IsNegative() {
		h.mu.Lock()
		ok := h.shortableLocked(req.Symbol, req.Quantity)
		h.mu.Unlock()
		if !ok {
			return model.ErrorResponse(req, model.ErrorExceedsShortableQuantity,
				fmt.Sprintf("Order exceeds shortable quantity for %s.", req.Symbol)), true
		}
	}
	return model.OrderResponse{}, false
}

// shortableLocked checks a quantity against the symbol's shortable limit,
// counting the current holding and the unfilled part of open orders.
func (h *Handler) shortableLocked(symbol string, quantity decimal.Decimal) bool {
	holding := decimal.Zero
	if sec, ok := h.secs.Get(symbol); ok {
		holding = sec.Holdings().Quantity
	}
	return risk.Shortable(h.shortable, symbol, quantity, holding, h.openQuantityLocked(symbol))
}

// rejectSubmit records an Invalid order for a submit refused before it was
// queued, so the caller still gets a ticket with an explanatory event.
func (h *Handler) rejectSubmit(req *model.SubmitOrderRequest, resp model.OrderResponse) *model.OrderTicket {
	ticket := model.NewInvalidOrderTicket(h, req, resp)
	order := model.NewOrder(req.OrderID(), req)

	h.mu.Lock()
	h.orders.Set(order.ID, order)
	h.openOrders.Set(order.ID, order)
	h.tickets.Set(order.ID, ticket)
	_ = ticket.SetOrder(order)
	e := model.NewOrderEvent(order, h.clock.Now(), model.OrderFee{}, resp.ErrorMessage)
	e.Status = model.OrderStatusInvalid
	h.applyLocked(e)
	h.mu.Unlock()

	h.logger.Warn("Order rejected before queueing",
		zap.Int("order_id", order.ID), zap.String("symbol", order.Symbol),
		zap.String("code", string(resp.ErrorCode)), zap.String("reason", resp.ErrorMessage))
	metrics.OrderRequests.WithLabelValues(string(model.RequestSubmit), responseCode(resp)).Inc()
	return ticket
}

// Update validates the request against the order's current status and
// queues it. The returned ticket is nil when the order id is unknown.
func (h *Handler) Update(req *model.UpdateOrderRequest) *model.OrderTicket {
	h.mu.Lock()
	ticket, ok := h.tickets.Get(req.OrderID())
	if !ok {
		h.mu.Unlock()
		req.SetResponse(model.UnableToFindOrderResponse(req), model.RequestError)
		return nil
	}
	order, ok := h.orders.Get(req.OrderID())
	if !ok {
		h.mu.Unlock()
		req.SetResponse(model.InvalidNewStatusResponse(req, &model.Order{ID: req.OrderID(), Status: model.OrderStatusNew}), model.RequestError)
		return ticket
	}
	if resp, rejected := h.updateStatusCheck(req, order); rejected {
		h.mu.Unlock()
		req.SetResponse(resp, model.RequestError)
		return ticket
	}
	ticket.AddUpdateRequest(req)
	req.SetResponse(model.SuccessResponse(req), model.RequestProcessing)
	h.mu.Unlock()

	if err := h.queue.Enqueue(req); err != nil {
		req.SetResponse(model.ErrorResponse(req, model.ErrorProcessingError, err.Error()), model.RequestError)
	}
	return ticket
}

// updateStatusCheck is shared by the producer and the worker since the
// order may have moved on while the request was queued.
func (h *Handler) updateStatusCheck(req *model.UpdateOrderRequest, order *model.Order) (model.OrderResponse, bool) {
	switch {
	case order.Status.IsClosed():
		return model.InvalidStatusResponse(req, order), true
	case order.Status == model.OrderStatusNew:
		return model.InvalidNewStatusResponse(req, order), true
	}
	if req.Quantity.Valid {
		delta := req.Quantity.Decimal.Sub(order.Quantity)
		if delta.IsNegative() && !h.shortableLocked(order.Symbol, delta) {
			return model.ErrorResponse(req, model.ErrorExceedsShortableQuantity,
				fmt.Sprintf("Order update exceeds shortable quantity for %s.", order.Symbol)), true
		}
	}
	return model.OrderResponse{}, false
}

// Cancel flips the order to CancelPending and queues the request. Only the
// first of several concurrent cancels for one order is accepted. The returned
// ticket is nil when the order id is unknown.
func (h *Handler) Cancel(req *model.CancelOrderRequest) *model.OrderTicket {
	h.mu.Lock()
	ticket, ok := h.tickets.Get(req.OrderID())
	if !ok {
		h.mu.Unlock()
		req.SetResponse(model.UnableToFindOrderResponse(req), model.RequestError)
		return nil
	}
	order, ok := h.orders.Get(req.OrderID())
	if !ok {
		h.mu.Unlock()
		req.SetResponse(model.InvalidNewStatusResponse(req, &model.Order{ID: req.OrderID(), Status: model.OrderStatusNew}), model.RequestError)
		return ticket
	}
	switch {
	case order.Status.IsClosed():
		h.mu.Unlock()
		req.SetResponse(model.InvalidStatusResponse(req, order), model.RequestError)
		return ticket
	case order.Status == model.OrderStatusNew:
		h.mu.Unlock()
		req.SetResponse(model.InvalidNewStatusResponse(req, order), model.RequestError)
		return ticket
	}
	if !ticket.TrySetCancelRequest(req) {
		h.mu.Unlock()
		req.SetResponse(model.ErrorResponse(req, model.ErrorInvalidRequest, cancelInProgressMessage), model.RequestError)
		return ticket
	}

	h.cancels.Set(order.ID, order.Status)
	e := model.NewOrderEvent(order, h.clock.Now(), model.OrderFee{}, "")
	e.Status = model.OrderStatusCancelPending
	h.applyLocked(e)
	req.SetResponse(model.SuccessResponse(req), model.RequestProcessing)
	h.mu.Unlock()

	if err := h.queue.Enqueue(req); err != nil {
		h.restoreAfterFailedCancel(req, err.Error())
	}
	return ticket
}
