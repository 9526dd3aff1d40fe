package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderFee is the fee charged on a fill.
type OrderFee struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// OrderEvent records one state change of an order.
type OrderEvent struct {
	OrderID           int                 `json:"order_id"`
	ID                int                 `json:"id"`
	Symbol            string              `json:"symbol"`
	UTCTime           time.Time           `json:"utc_time"`
	Status            OrderStatus         `json:"status"`
	Direction         Direction           `json:"direction"`
	FillPrice         decimal.Decimal     `json:"fill_price"`
	FillPriceCurrency string              `json:"fill_price_currency,omitempty"`
	FillQuantity      decimal.Decimal     `json:"fill_quantity"`
	Fee               OrderFee            `json:"fee"`
	Message           string              `json:"message,omitempty"`
	IsAssignment      bool                `json:"is_assignment,omitempty"`
	TriggerArmed      bool                `json:"trigger_armed,omitempty"`
	Quantity          decimal.Decimal     `json:"quantity"`
	LimitPrice        decimal.NullDecimal `json:"limit_price"`
	StopPrice         decimal.NullDecimal `json:"stop_price"`
	TriggerPrice      decimal.NullDecimal `json:"trigger_price"`
}

// NewOrderEvent creates an event for the order with no fill.
func NewOrderEvent(order *Order, utcTime time.Time, fee OrderFee, message string) *OrderEvent {
	return &OrderEvent{
		OrderID:           order.ID,
		Symbol:            order.Symbol,
		UTCTime:           utcTime,
		Status:            order.Status,
		Direction:         order.Direction(),
		FillPriceCurrency: order.PriceCurrency,
		Fee:               fee,
		Message:           message,
		Quantity:          order.Quantity,
	}
}

// AbsoluteFillQuantity returns |FillQuantity|.
func (e *OrderEvent) AbsoluteFillQuantity() decimal.Decimal {
	return e.FillQuantity.Abs()
}

// AppendMessage adds text to the event message, separated by a space.
func (e *OrderEvent) AppendMessage(msg string) {
	if msg == "" {
		return
	}
	if e.Message == "" {
		e.Message = msg
		return
	}
	e.Message = e.Message + " " + msg
}

// Clone returns a copy of the event.
func (e *OrderEvent) Clone() *OrderEvent {
	c := *e
	return &c
}

func (e *OrderEvent) String() string {
	s := fmt.Sprintf("%s OrderID: %d EventID: %d Symbol: %s Status: %s Quantity: %s",
		e.UTCTime.Format(time.RFC3339), e.OrderID, e.ID, e.Symbol, e.Status, e.Quantity)
	if !e.FillQuantity.IsZero() {
		s += fmt.Sprintf(" FillQuantity: %s FillPrice: %s %s", e.FillQuantity, e.FillPrice, e.FillPriceCurrency)
	}
	if !e.Fee.Amount.IsZero() {
		s += fmt.Sprintf(" OrderFee: %s %s", e.Fee.Amount, e.Fee.Currency)
	}
	if e.Message != "" {
		s += " Message: " + e.Message
	}
	return s
}
