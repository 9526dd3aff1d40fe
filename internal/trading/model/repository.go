package model

import "github.com/shopspring/decimal"

// OrderProvider is the read side of the transaction handler. Returned orders
// are clones.
type OrderProvider interface {
	OrdersCount() int
	GetOrderByID(orderID int) *Order
	GetOrderByBrokerageID(brokerageID string) *Order
	GetOrders(filter OrderFilter) []*Order
	GetOpenOrders(filter OrderFilter) []*Order
	GetOrderTicket(orderID int) *OrderTicket
	GetOrderTickets(filter func(*OrderTicket) bool) []*OrderTicket
	GetOpenOrderTickets(filter func(*OrderTicket) bool) []*OrderTicket
}

// OrderProcessor combines request processing with the read side.
type OrderProcessor interface {
	OrderProvider
	RequestProcessor
	Submit(req *SubmitOrderRequest) *OrderTicket
}

// OpenQuantityProvider exposes the unfilled quantity of working orders.
type OpenQuantityProvider interface {
	OpenOrdersRemainingQuantity(filter func(*OrderTicket) bool) decimal.Decimal
}
