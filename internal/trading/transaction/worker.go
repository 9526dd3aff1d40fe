package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/brokerage"
	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/Aidin1998/orderexec/internal/trading/orderqueue"
	"github.com/Aidin1998/orderexec/pkg/metrics"
	"go.uber.org/zap"
)

// run is the single consumer of the request queue.
func (h *Handler) run(ctx context.Context) {
	defer close(h.workerDone)
	for {
		req, err := h.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, orderqueue.ErrQueueClosed) || ctx.Err() != nil {
				return
			}
			h.fail(fmt.Errorf("order request queue: %w", err))
			return
		}
		h.process(ctx, req)
	}
}

// process handles one request to completion. A panic is contained to the
// request and reported as a ProcessingError.
func (h *Handler) process(ctx context.Context, req model.OrderRequest) {
	start := time.Now()
	defer h.queue.Done()
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Order request processing panicked",
				zap.String("kind", string(req.Kind())), zap.Int("order_id", req.OrderID()), zap.Any("recover", r))
			req.SetResponse(model.ErrorResponse(req, model.ErrorProcessingError, fmt.Sprint(r)), model.RequestError)
		}
		h.queue.Acknowledge(req)
		metrics.OrderRequests.WithLabelValues(string(req.Kind()), responseCode(req.Response())).Inc()
		metrics.RequestLatency.WithLabelValues(string(req.Kind())).Observe(time.Since(start).Seconds())
	}()

	switch r := req.(type) {
	case *model.SubmitOrderRequest:
		h.handleSubmit(ctx, r)
	case *model.UpdateOrderRequest:
		h.handleUpdate(ctx, r)
	case *model.CancelOrderRequest:
		h.handleCancel(ctx, r)
	default:
		req.SetResponse(model.ErrorResponse(req, model.ErrorInvalidRequest,
			fmt.Sprintf("Unsupported request kind %s.", req.Kind())), model.RequestError)
	}

	if scanner, ok := h.venue.(brokerage.Scanner); ok {
		scanner.Scan(ctx)
	}
}

func responseCode(resp model.OrderResponse) string {
	if resp.ErrorCode == model.ErrorNone {
		return "OK"
	}
	return string(resp.ErrorCode)
}

func (h *Handler) handleSubmit(ctx context.Context, req *model.SubmitOrderRequest) {
	now := h.clock.Now()

	h.mu.Lock()
	ticket, ok := h.tickets.Get(req.OrderID())
	if !ok {
		h.mu.Unlock()
		req.SetResponse(model.UnableToFindOrderResponse(req), model.RequestError)
		return
	}
	if _, exists := h.orders.Get(req.OrderID()); exists {
		h.mu.Unlock()
		req.SetResponse(model.ErrorResponse(req, model.ErrorOrderAlreadyExists,
			fmt.Sprintf("Cannot process submit request because order with id %d already exists.", req.OrderID())), model.RequestError)
		return
	}

	order := model.NewOrder(req.OrderID(), req)
	h.orders.Set(order.ID, order)
	h.openOrders.Set(order.ID, order)

	sec, ok := h.secs.Get(order.Symbol)
	if !ok {
		_ = ticket.SetOrder(order)
		h.invalidateLocked(order, req, model.ErrorInvalidRequest,
			fmt.Sprintf("Order Error: id: [%d], Security %s is not registered.", order.ID, order.Symbol))
		h.mu.Unlock()
		return
	}
	if order.PriceCurrency == "" {
		order.PriceCurrency = sec.Properties.QuoteCurrency
	}
	bid, ask := sec.BidAsk()
	order.SubmissionData = &model.SubmissionData{BidPrice: bid, AskPrice: ask, LastPrice: sec.Price()}

	warnings := roundOrder(order, sec)
	for _, w := range warnings {
		h.warn.Warn(order.Symbol+w, w, zap.String("symbol", order.Symbol))
		h.addPendingMessageLocked(order.ID, w)
	}
	_ = ticket.SetOrder(order)

	if order.Quantity.IsZero() {
		h.invalidateLocked(order, req, model.ErrorZeroQuantity,
			fmt.Sprintf("Unable to submit order with id %d that has zero quantity.", order.ID))
		h.mu.Unlock()
		return
	}
	proposed := order.Clone()
	h.mu.Unlock()

	if ok, reason := h.buyingPower.HasSufficientBuyingPower(h.portfolio, sec, proposed); !ok {
		h.invalidate(order.ID, req, model.ErrorInsufficientBuyingPower, reason)
		return
	}
	if ok, reason := h.capability.CanSubmitOrder(sec, proposed); !ok {
		h.invalidate(order.ID, req, model.ErrorBrokerageModelRefusedToSubmitOrder,
			fmt.Sprintf("BrokerageModel declared unable to submit order: [%d] %s", order.ID, reason))
		return
	}

	if err := h.venue.PlaceOrder(ctx, proposed); err != nil {
		h.logger.Error("Venue failed to place order", zap.Int("order_id", order.ID), zap.Error(err))
		h.invalidate(order.ID, req, model.ErrorBrokerageFailedToSubmitOrder,
			fmt.Sprintf("Brokerage failed to place order: [%d] %v", order.ID, err))
		return
	}

	h.mu.Lock()
	order.BrokerIDs = proposed.BrokerIDs
	h.mu.Unlock()

	req.SetResponse(model.SuccessResponse(req), model.RequestProcessed)
	h.logger.Debug("Order submitted",
		zap.Int("order_id", order.ID), zap.String("symbol", order.Symbol),
		zap.String("type", string(order.Type())), zap.String("quantity", order.Quantity.String()),
		zap.Duration("submit_delay", now.Sub(req.Time())))
}

func (h *Handler) handleUpdate(ctx context.Context, req *model.UpdateOrderRequest) {
	h.mu.Lock()
	order, ok := h.orders.Get(req.OrderID())
	if !ok {
		h.mu.Unlock()
		req.SetResponse(model.UnableToFindOrderResponse(req), model.RequestError)
		return
	}
	if resp, rejected := h.updateStatusCheck(req, order); rejected {
		h.mu.Unlock()
		req.SetResponse(resp, model.RequestError)
		return
	}
	sec, ok := h.secs.Get(order.Symbol)
	if !ok {
		h.mu.Unlock()
		req.SetResponse(model.ErrorResponse(req, model.ErrorInvalidRequest,
			fmt.Sprintf("Security %s is not registered.", order.Symbol)), model.RequestError)
		return
	}

	current := order.Clone()
	proposed := order.Clone()
	proposed.ApplyUpdate(req)
	warnings := roundOrder(proposed, sec)
	if proposed.Quantity.IsZero() {
		h.mu.Unlock()
		req.SetResponse(model.ZeroQuantityResponse(req), model.RequestError)
		return
	}
	h.mu.Unlock()

	if ok, reason := h.capability.CanUpdateOrder(sec, current, req); !ok {
		req.SetResponse(model.ErrorResponse(req, model.ErrorBrokerageModelRefusedToUpdateOrder,
			fmt.Sprintf("OrderID: %d %s", order.ID, reason)), model.RequestError)
		return
	}

	if err := h.venue.UpdateOrder(ctx, proposed); err != nil {
		h.logger.Error("Venue failed to update order", zap.Int("order_id", order.ID), zap.Error(err))
		req.SetResponse(model.ErrorResponse(req, model.ErrorBrokerageFailedToUpdateOrder,
			fmt.Sprintf("Brokerage failed to update order with id %d: %v", order.ID, err)), model.RequestError)
		return
	}

	h.mu.Lock()
	if !order.Status.IsClosed() {
		order.Quantity = proposed.Quantity
		order.Tag = proposed.Tag
		armed := order.Armed()
		order.Terms = proposed.Terms
		if armed {
			order.Arm()
		}
		order.LastUpdateTime = h.clock.Now()
		for _, w := range warnings {
			h.warn.Warn(order.Symbol+w, w, zap.String("symbol", order.Symbol))
			h.addPendingMessageLocked(order.ID, w)
		}
		if ticket, ok := h.tickets.Get(order.ID); ok {
			_ = ticket.SetOrder(order)
		}
	}
	h.mu.Unlock()

	req.SetResponse(model.SuccessResponse(req), model.RequestProcessed)
}

func (h *Handler) handleCancel(ctx context.Context, req *model.CancelOrderRequest) {
	h.mu.Lock()
	order, ok := h.orders.Get(req.OrderID())
	if !ok {
		h.mu.Unlock()
		req.SetResponse(model.UnableToFindOrderResponse(req), model.RequestError)
		return
	}
	if order.Status.IsClosed() {
		// a fill or expiry won the race with this cancel
		h.cancels.Remove(order.ID)
		h.mu.Unlock()
		req.SetResponse(model.InvalidStatusResponse(req, order), model.RequestError)
		return
	}
	target := order.Clone()
	h.mu.Unlock()

	if err := h.venue.CancelOrder(ctx, target); err != nil {
		h.logger.Error("Venue failed to cancel order", zap.Int("order_id", target.ID), zap.Error(err))
		h.restoreAfterFailedCancel(req, err.Error())
		return
	}
	req.SetResponse(model.SuccessResponse(req), model.RequestProcessed)
}

// restoreAfterFailedCancel puts the order back into its pre-cancel status.
func (h *Handler) restoreAfterFailedCancel(req *model.CancelOrderRequest, reason string) {
	h.mu.Lock()
	fallback := h.cancels.RemoveAndFallback(req.OrderID())
	order, ok := h.orders.Get(req.OrderID())
	if ok && fallback != model.OrderStatusNone && order.Status == model.OrderStatusCancelPending {
		e := model.NewOrderEvent(order, h.clock.Now(), model.OrderFee{},
			fmt.Sprintf("Brokerage failed to cancel order: %s", reason))
		e.Status = fallback
		h.applyLocked(e)
	}
	h.mu.Unlock()

	req.SetResponse(model.ErrorResponse(req, model.ErrorBrokerageFailedToCancelOrder,
		fmt.Sprintf("Brokerage failed to cancel order with id %d: %s", req.OrderID(), reason)), model.RequestError)
}

// invalidate marks a known order Invalid after a worker-side check failed.
func (h *Handler) invalidate(orderID int, req model.OrderRequest, code model.ErrorCode, message string) {
	h.mu.Lock()
	order, ok := h.orders.Get(orderID)
	if ok {
		h.invalidateLocked(order, req, code, message)
	} else {
		req.SetResponse(model.ErrorResponse(req, code, message), model.RequestError)
	}
	h.mu.Unlock()
}

func (h *Handler) invalidateLocked(order *model.Order, req model.OrderRequest, code model.ErrorCode, message string) {
	h.logger.Warn("Order invalidated",
		zap.Int("order_id", order.ID), zap.String("symbol", order.Symbol),
		zap.String("code", string(code)), zap.String("reason", message))
	e := model.NewOrderEvent(order, h.clock.Now(), model.OrderFee{}, message)
	e.Status = model.OrderStatusInvalid
	h.applyLocked(e)
	req.SetResponse(model.ErrorResponse(req, code, message), model.RequestError)
}

func (h *Handler) addPendingMessageLocked(orderID int, msg string) {
	if prev, ok := h.pendingMessages[orderID]; ok {
		msg = prev + " " + msg
	}
	h.pendingMessages[orderID] = msg
}
