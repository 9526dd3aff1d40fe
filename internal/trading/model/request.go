package model

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RequestKind identifies the request variant.
type RequestKind string

const (
	RequestSubmit RequestKind = "SUBMIT"
	RequestUpdate RequestKind = "UPDATE"
	RequestCancel RequestKind = "CANCEL"
)

// RequestStatus tracks a request through the queue.
type RequestStatus int

const (
	RequestUnprocessed RequestStatus = iota
	RequestProcessing
	RequestProcessed
	RequestError
)

func (s RequestStatus) String() string {
	switch s {
	case RequestProcessing:
		return "processing"
	case RequestProcessed:
		return "processed"
	case RequestError:
		return "error"
	}
	return "unprocessed"
}

// OrderRequest is the common surface of submit, update and cancel requests.
type OrderRequest interface {
	Kind() RequestKind
	ID() uuid.UUID
	OrderID() int
	Time() time.Time
	Tag() string
	Status() RequestStatus
	Response() OrderResponse
	SetResponse(resp OrderResponse, status RequestStatus)
	Done() <-chan struct{}
}

type requestState struct {
	id      uuid.UUID
	orderID int
	time    time.Time
	tag     string

	mu       sync.Mutex
	status   RequestStatus
	response OrderResponse
	done     chan struct{}
}

func newRequestState(orderID int, t time.Time, tag string) *requestState {
	return &requestState{
		id:       uuid.New(),
		orderID:  orderID,
		time:     t,
		tag:      tag,
		response: UnprocessedResponse(),
		done:     make(chan struct{}),
	}
}

func (r *requestState) ID() uuid.UUID   { return r.id }
func (r *requestState) Time() time.Time { return r.time }
func (r *requestState) Tag() string     { return r.tag }

func (r *requestState) OrderID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orderID
}

func (r *requestState) Status() RequestStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *requestState) Response() OrderResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.response
}

// SetResponse records the outcome. Reaching Processed or Error closes Done.
func (r *requestState) SetResponse(resp OrderResponse, status RequestStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == RequestProcessed || r.status == RequestError {
		return
	}
	r.response = resp
	r.status = status
	if status == RequestProcessed || status == RequestError {
		close(r.done)
	}
}

// Done is closed once the request has been fully processed.
func (r *requestState) Done() <-chan struct{} { return r.done }

// SubmitOrderRequest asks for a new order.
type SubmitOrderRequest struct {
	*requestState
	Symbol        string
	Quantity      decimal.Decimal
	Terms         Terms
	TimeInForce   TimeInForce
	PriceCurrency string
}

// NewSubmitOrderRequest builds a submit request; the order id is assigned by
// the handler.
func NewSubmitOrderRequest(symbol string, quantity decimal.Decimal, terms Terms, tif TimeInForce, tag string, t time.Time) *SubmitOrderRequest {
	return &SubmitOrderRequest{
		requestState: newRequestState(0, t, tag),
		Symbol:       symbol,
		Quantity:     quantity,
		Terms:        terms,
		TimeInForce:  tif,
	}
}

func (*SubmitOrderRequest) Kind() RequestKind { return RequestSubmit }

// SetOrderID assigns the order id once the handler has allocated it.
func (r *SubmitOrderRequest) SetOrderID(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orderID = id
}

// UpdateOrderRequest changes quantity, prices or tag of a working order.
// Unset fields are left unchanged.
type UpdateOrderRequest struct {
	*requestState
	Quantity     decimal.NullDecimal
	LimitPrice   decimal.NullDecimal
	StopPrice    decimal.NullDecimal
	TriggerPrice decimal.NullDecimal
}

// UpdateFields is the caller-supplied part of an update request.
type UpdateFields struct {
	Quantity     decimal.NullDecimal
	LimitPrice   decimal.NullDecimal
	StopPrice    decimal.NullDecimal
	TriggerPrice decimal.NullDecimal
	Tag          string
}

func NewUpdateOrderRequest(orderID int, fields UpdateFields, t time.Time) *UpdateOrderRequest {
	return &UpdateOrderRequest{
		requestState: newRequestState(orderID, t, fields.Tag),
		Quantity:     fields.Quantity,
		LimitPrice:   fields.LimitPrice,
		StopPrice:    fields.StopPrice,
		TriggerPrice: fields.TriggerPrice,
	}
}

func (*UpdateOrderRequest) Kind() RequestKind { return RequestUpdate }

// CancelOrderRequest asks for a working order to be canceled.
type CancelOrderRequest struct {
	*requestState
}

func NewCancelOrderRequest(orderID int, tag string, t time.Time) *CancelOrderRequest {
	return &CancelOrderRequest{requestState: newRequestState(orderID, t, tag)}
}

func (*CancelOrderRequest) Kind() RequestKind { return RequestCancel }
