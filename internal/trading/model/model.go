// Package model holds the order lifecycle types shared by the transaction
// handler, the fill models and the venue adapters.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType identifies the terms variant carried by an order.
type OrderType string

const (
	OrderTypeMarket         OrderType = "MARKET"
	OrderTypeLimit          OrderType = "LIMIT"
	OrderTypeStopMarket     OrderType = "STOP_MARKET"
	OrderTypeStopLimit      OrderType = "STOP_LIMIT"
	OrderTypeLimitIfTouched OrderType = "LIMIT_IF_TOUCHED"
	OrderTypeMarketOnOpen   OrderType = "MARKET_ON_OPEN"
	OrderTypeMarketOnClose  OrderType = "MARKET_ON_CLOSE"

	// Synthesized by the handler, never submitted by a strategy.
	OrderTypeOptionExercise OrderType = "OPTION_EXERCISE"
	OrderTypeLiquidation    OrderType = "LIQUIDATION"
)

// OrderStatus is a position in the order state machine.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusSubmitted       OrderStatus = "SUBMITTED"
	OrderStatusUpdateSubmitted OrderStatus = "UPDATE_SUBMITTED"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusCancelPending   OrderStatus = "CANCEL_PENDING"
	OrderStatusInvalid         OrderStatus = "INVALID"
	OrderStatusNone            OrderStatus = ""
)

// IsClosed reports whether the status is terminal.
func (s OrderStatus) IsClosed() bool {
	return s == OrderStatusFilled || s == OrderStatusCanceled || s == OrderStatusInvalid
}

// IsOpen reports whether the order can still trade.
func (s OrderStatus) IsOpen() bool {
	return !s.IsClosed()
}

// IsFill reports whether an event with this status carries a fill.
func (s OrderStatus) IsFill() bool {
	return s == OrderStatusFilled || s == OrderStatusPartiallyFilled
}

// Direction is derived from the sign of the order quantity.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
	DirectionHold Direction = "HOLD"
)

// DirectionOf returns the direction implied by a signed quantity.
func DirectionOf(quantity decimal.Decimal) Direction {
	switch quantity.Sign() {
	case 1:
		return DirectionBuy
	case -1:
		return DirectionSell
	default:
		return DirectionHold
	}
}

// TimeInForceKind selects how long an order stays working.
type TimeInForceKind string

const (
	TimeInForceGTC TimeInForceKind = "GTC" // Good Till Canceled
	TimeInForceDay TimeInForceKind = "DAY" // Expires at the close of the submission day
	TimeInForceGTD TimeInForceKind = "GTD" // Good Till Date
)

// TimeInForce pairs a kind with the expiry used by GTD.
type TimeInForce struct {
	Kind   TimeInForceKind `json:"kind"`
	Expiry time.Time       `json:"expiry,omitempty"`
}

// GoodTilCanceled is the default time in force.
var GoodTilCanceled = TimeInForce{Kind: TimeInForceGTC}

// Day returns a day time in force.
func Day() TimeInForce { return TimeInForce{Kind: TimeInForceDay} }

// GoodTilDate returns a GTD time in force expiring at the given date.
func GoodTilDate(expiry time.Time) TimeInForce {
	return TimeInForce{Kind: TimeInForceGTD, Expiry: expiry}
}

// SubmissionData records the market at the instant the order was accepted.
type SubmissionData struct {
	BidPrice  decimal.Decimal `json:"bid_price"`
	AskPrice  decimal.Decimal `json:"ask_price"`
	LastPrice decimal.Decimal `json:"last_price"`
}

// Order is the handler-owned lifecycle record of one order. Producers only
// ever see clones.
type Order struct {
	ID             int             `json:"id"`
	BrokerIDs      []string        `json:"broker_ids,omitempty"`
	Symbol         string          `json:"symbol"`
	Quantity       decimal.Decimal `json:"quantity"`
	Terms          Terms           `json:"-"`
	Status         OrderStatus     `json:"status"`
	TimeInForce    TimeInForce     `json:"time_in_force"`
	PriceCurrency  string          `json:"price_currency"`
	Tag            string          `json:"tag,omitempty"`
	Price          decimal.Decimal `json:"price"`
	Time           time.Time       `json:"time"`
	LastUpdateTime time.Time       `json:"last_update_time,omitempty"`
	LastFillTime   time.Time       `json:"last_fill_time,omitempty"`
	CanceledTime   time.Time       `json:"canceled_time,omitempty"`
	SubmissionData *SubmissionData `json:"submission_data,omitempty"`
}

// Type returns the order type of the terms variant.
func (o *Order) Type() OrderType {
	if o.Terms == nil {
		return OrderTypeMarket
	}
	return o.Terms.Type()
}

// Direction returns the trade direction.
func (o *Order) Direction() Direction {
	return DirectionOf(o.Quantity)
}

// AbsoluteQuantity returns |Quantity|.
func (o *Order) AbsoluteQuantity() decimal.Decimal {
	return o.Quantity.Abs()
}

// LimitPrice returns the limit price for the variants that carry one.
func (o *Order) LimitPrice() decimal.NullDecimal {
	switch t := o.Terms.(type) {
	case *LimitTerms:
		return decimal.NewNullDecimal(t.LimitPrice)
	case *StopLimitTerms:
		return decimal.NewNullDecimal(t.LimitPrice)
	case *LimitIfTouchedTerms:
		return decimal.NewNullDecimal(t.LimitPrice)
	}
	return decimal.NullDecimal{}
}

// StopPrice returns the stop price for the variants that carry one.
func (o *Order) StopPrice() decimal.NullDecimal {
	switch t := o.Terms.(type) {
	case *StopMarketTerms:
		return decimal.NewNullDecimal(t.StopPrice)
	case *StopLimitTerms:
		return decimal.NewNullDecimal(t.StopPrice)
	}
	return decimal.NullDecimal{}
}

// TriggerPrice returns the trigger price of a limit-if-touched order.
func (o *Order) TriggerPrice() decimal.NullDecimal {
	if t, ok := o.Terms.(*LimitIfTouchedTerms); ok {
		return decimal.NewNullDecimal(t.TriggerPrice)
	}
	return decimal.NullDecimal{}
}

// Clone returns a deep copy safe to hand to another goroutine.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	if o.Terms != nil {
		c.Terms = o.Terms.Clone()
	}
	if o.BrokerIDs != nil {
		c.BrokerIDs = append([]string(nil), o.BrokerIDs...)
	}
	if o.SubmissionData != nil {
		sd := *o.SubmissionData
		c.SubmissionData = &sd
	}
	return &c
}

// Armed reports whether a two-phase order has been triggered.
func (o *Order) Armed() bool {
	switch t := o.Terms.(type) {
	case *StopLimitTerms:
		return t.Trigger == Armed
	case *LimitIfTouchedTerms:
		return t.Trigger == Armed
	}
	return false
}

// Arm marks a two-phase order as triggered. It is a no-op for other types.
func (o *Order) Arm() {
	switch t := o.Terms.(type) {
	case *StopLimitTerms:
		t.Trigger = Armed
	case *LimitIfTouchedTerms:
		t.Trigger = Armed
	}
}

// ApplyUpdate copies the fields set on the request onto the order.
func (o *Order) ApplyUpdate(req *UpdateOrderRequest) {
	if req.Quantity.Valid {
		o.Quantity = req.Quantity.Decimal
	}
	if req.Tag() != "" {
		o.Tag = req.Tag()
	}
	switch t := o.Terms.(type) {
	case *LimitTerms:
		if req.LimitPrice.Valid {
			t.LimitPrice = req.LimitPrice.Decimal
		}
	case *StopMarketTerms:
		if req.StopPrice.Valid {
			t.StopPrice = req.StopPrice.Decimal
		}
	case *StopLimitTerms:
		if req.StopPrice.Valid {
			t.StopPrice = req.StopPrice.Decimal
		}
		if req.LimitPrice.Valid {
			t.LimitPrice = req.LimitPrice.Decimal
		}
	case *LimitIfTouchedTerms:
		if req.TriggerPrice.Valid {
			t.TriggerPrice = req.TriggerPrice.Decimal
		}
		if req.LimitPrice.Valid {
			t.LimitPrice = req.LimitPrice.Decimal
		}
	}
}

// NewOrder builds a New order from a submit request.
func NewOrder(id int, req *SubmitOrderRequest) *Order {
	terms := req.Terms
	if terms == nil {
		terms = &MarketTerms{}
	}
	tif := req.TimeInForce
	if tif.Kind == "" {
		tif = GoodTilCanceled
	}
	return &Order{
		ID:            id,
		Symbol:        req.Symbol,
		Quantity:      req.Quantity,
		Terms:         terms.Clone(),
		Status:        OrderStatusNew,
		TimeInForce:   tif,
		PriceCurrency: req.PriceCurrency,
		Tag:           req.Tag(),
		Time:          req.Time(),
	}
}

// OrderFilter selects orders in GetOrders queries. Nil fields match anything.
type OrderFilter func(*Order) bool

// BySymbol filters orders for one symbol.
func BySymbol(symbol string) OrderFilter {
	return func(o *Order) bool { return o.Symbol == symbol }
}

// ByStatus filters orders with one of the given statuses.
func ByStatus(statuses ...OrderStatus) OrderFilter {
	return func(o *Order) bool {
		for _, s := range statuses {
			if o.Status == s {
				return true
			}
		}
		return false
	}
}
