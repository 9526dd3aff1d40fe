package model

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// RequestProcessor routes ticket convenience calls back to the handler that
// owns the order.
type RequestProcessor interface {
	Update(req *UpdateOrderRequest) *OrderTicket
	Cancel(req *CancelOrderRequest) *OrderTicket
}

// OrderTicket is the producer-facing handle of one order.
type OrderTicket struct {
	mu        sync.Mutex
	processor RequestProcessor

	orderID   int
	symbol    string
	orderType OrderType
	quantity  decimal.Decimal
	time      time.Time
	tag       string
	status    OrderStatus

	submitRequest  *SubmitOrderRequest
	updateRequests []*UpdateOrderRequest
	cancelRequest  *CancelOrderRequest

	order            *Order
	events           []*OrderEvent
	quantityFilled   decimal.Decimal
	averageFillPrice decimal.Decimal

	orderSet     chan struct{}
	orderSetOnce sync.Once
}

// NewOrderTicket creates the ticket for a submit request.
func NewOrderTicket(processor RequestProcessor, submit *SubmitOrderRequest) *OrderTicket {
	orderType := OrderTypeMarket
	if submit.Terms != nil {
		orderType = submit.Terms.Type()
	}
	return &OrderTicket{
		processor:     processor,
		orderID:       submit.OrderID(),
		symbol:        submit.Symbol,
		orderType:     orderType,
		quantity:      submit.Quantity,
		time:          submit.Time(),
		tag:           submit.Tag(),
		status:        OrderStatusNew,
		submitRequest: submit,
		orderSet:      make(chan struct{}),
	}
}

// NewInvalidOrderTicket creates a ticket for a submit rejected before queueing.
func NewInvalidOrderTicket(processor RequestProcessor, submit *SubmitOrderRequest, response OrderResponse) *OrderTicket {
	submit.SetResponse(response, RequestError)
	t := NewOrderTicket(processor, submit)
	t.status = OrderStatusInvalid
	return t
}

func (t *OrderTicket) OrderID() int         { return t.orderID }
func (t *OrderTicket) Symbol() string       { return t.symbol }
func (t *OrderTicket) OrderType() OrderType { return t.orderType }
func (t *OrderTicket) Time() time.Time      { return t.time }

// Quantity returns the current order quantity, or the requested one before
// the order is attached.
func (t *OrderTicket) Quantity() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.quantity
}

func (t *OrderTicket) Tag() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tag
}

func (t *OrderTicket) Status() OrderStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *OrderTicket) QuantityFilled() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.quantityFilled
}

func (t *OrderTicket) AverageFillPrice() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.averageFillPrice
}

// QuantityRemaining is the unfilled part of the order quantity.
func (t *OrderTicket) QuantityRemaining() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.quantity.Sub(t.quantityFilled)
}

func (t *OrderTicket) SubmitRequest() *SubmitOrderRequest { return t.submitRequest }

func (t *OrderTicket) UpdateRequests() []*UpdateOrderRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*UpdateOrderRequest(nil), t.updateRequests...)
}

func (t *OrderTicket) CancelRequest() *CancelOrderRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelRequest
}

// OrderEvents returns the applied events in application order.
func (t *OrderTicket) OrderEvents() []*OrderEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*OrderEvent, len(t.events))
	for i, e := range t.events {
		out[i] = e.Clone()
	}
	return out
}

// SetOrder attaches the handler's order. Attaching again with the same id
// replaces the reference; a different id is rejected.
func (t *OrderTicket) SetOrder(order *Order) error {
	t.mu.Lock()
	if t.order != nil && t.order.ID != order.ID {
		t.mu.Unlock()
		return fmt.Errorf("order id mismatch: ticket has %d, got %d", t.order.ID, order.ID)
	}
	t.order = order
	t.quantity = order.Quantity
	if !t.status.IsClosed() {
		t.status = order.Status
	}
	t.mu.Unlock()

	t.orderSetOnce.Do(func() { close(t.orderSet) })
	return nil
}

// OrderSet is closed once an order has been attached.
func (t *OrderTicket) OrderSet() <-chan struct{} { return t.orderSet }

// WaitOrderSet blocks up to timeout for the order to be attached.
func (t *OrderTicket) WaitOrderSet(timeout time.Duration) bool {
	select {
	case <-t.orderSet:
		return true
	case <-time.After(timeout):
		return false
	}
}

// HasOrder reports whether the order has been attached.
func (t *OrderTicket) HasOrder() bool {
	select {
	case <-t.orderSet:
		return true
	default:
		return false
	}
}

// AddOrderEvent appends an applied event and updates the running fill
// statistics.
func (t *OrderTicket) AddOrderEvent(e *OrderEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.events = append(t.events, e)
	if !t.status.IsClosed() {
		t.status = e.Status
	}
	if !e.Quantity.IsZero() {
		t.quantity = e.Quantity
	}
	if e.FillQuantity.IsZero() || t.orderType == OrderTypeOptionExercise {
		return
	}

	// weighted average of fill prices
	filled := t.quantityFilled.Add(e.FillQuantity)
	if filled.IsZero() {
		t.averageFillPrice = decimal.Zero
	} else {
		total := t.averageFillPrice.Mul(t.quantityFilled).Add(e.FillPrice.Mul(e.FillQuantity))
		t.averageFillPrice = total.Div(filled)
	}
	t.quantityFilled = filled
}

// AddUpdateRequest records an accepted update and its new tag.
func (t *OrderTicket) AddUpdateRequest(req *UpdateOrderRequest) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.updateRequests = append(t.updateRequests, req)
	if req.Tag() != "" {
		t.tag = req.Tag()
	}
}

// TrySetCancelRequest records the cancel request. Only the first caller wins.
func (t *OrderTicket) TrySetCancelRequest(req *CancelOrderRequest) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelRequest != nil && t.cancelRequest.Status() != RequestError {
		return false
	}
	t.cancelRequest = req
	return true
}

// Update submits an update request for this order and returns its response
// as of the moment it was accepted or rejected.
func (t *OrderTicket) Update(fields UpdateFields) OrderResponse {
	req := NewUpdateOrderRequest(t.orderID, fields, time.Now().UTC())
	t.processor.Update(req)
	return req.Response()
}

// UpdateQuantity is shorthand for updating only the quantity.
func (t *OrderTicket) UpdateQuantity(quantity decimal.Decimal, tag string) OrderResponse {
	return t.Update(UpdateFields{Quantity: decimal.NewNullDecimal(quantity), Tag: tag})
}

// UpdateLimitPrice is shorthand for updating only the limit price.
func (t *OrderTicket) UpdateLimitPrice(price decimal.Decimal, tag string) OrderResponse {
	return t.Update(UpdateFields{LimitPrice: decimal.NewNullDecimal(price), Tag: tag})
}

// Cancel submits a cancel request for this order.
func (t *OrderTicket) Cancel(tag string) OrderResponse {
	req := NewCancelOrderRequest(t.orderID, tag, time.Now().UTC())
	t.processor.Cancel(req)
	return req.Response()
}

func (t *OrderTicket) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fmt.Sprintf("OrderID: %d Symbol: %s Type: %s Quantity: %s Filled: %s Status: %s",
		t.orderID, t.symbol, t.orderType, t.quantity, t.quantityFilled, t.status)
}
