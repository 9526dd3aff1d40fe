// Package brokerage defines the boundary between the transaction handler and
// a trading venue, plus a simulated venue that fills orders from market data.
package brokerage

import (
	"context"
	"errors"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConnected is returned by venue calls made before Connect.
	ErrNotConnected = errors.New("venue is not connected")
	// ErrOrderNotFound is returned when the venue has no working order with the id.
	ErrOrderNotFound = errors.New("venue has no working order with this id")
)

// Venue is a live or simulated order destination. Outcomes of order calls
// arrive asynchronously as messages on the sink set with SetSink; the calls
// themselves only report whether the request was accepted for transmission.
// PlaceOrder may append the venue's ids to order.BrokerIDs.
type Venue interface {
	Name() string
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool

	PlaceOrder(ctx context.Context, order *model.Order) error
	UpdateOrder(ctx context.Context, order *model.Order) error
	CancelOrder(ctx context.Context, order *model.Order) error

	SetSink(sink MessageSink)
}

// Scanner is implemented by simulated venues that evaluate their working
// orders against the latest market data on demand.
type Scanner interface {
	Scan(ctx context.Context)
}

// CashSyncer is implemented by live venues that can report account balances.
type CashSyncer interface {
	CashBalances(ctx context.Context) (map[string]decimal.Decimal, error)
}

// MessageSink receives everything a venue pushes. Implementations must be
// safe for concurrent use and must not block for long.
type MessageSink interface {
	OnVenueMessage(msg Message)
}

// Message is one of the typed venue notifications below.
type Message interface {
	venueMessage()
}

// OrderEventsMessage carries status changes and fills, in order.
type OrderEventsMessage struct {
	Events []*model.OrderEvent
}

// AccountChangedMessage is a cash balance pushed by the venue.
type AccountChangedMessage struct {
	Currency string
	Cash     decimal.Decimal
}

// OptionAssignedMessage reports that a short option position was assigned.
type OptionAssignedMessage struct {
	Event *model.OrderEvent
}

// OptionNotificationMessage reports the venue's view of an option position,
// typically after exercise or expiry.
type OptionNotificationMessage struct {
	Symbol   string
	Position decimal.Decimal
}

// DelistingKind is warning ahead of a delisting or the delisting itself.
type DelistingKind string

const (
	DelistingWarning DelistingKind = "warning"
	Delisted         DelistingKind = "delisted"
)

// DelistingMessage announces that a symbol stops trading.
type DelistingMessage struct {
	Symbol string
	Time   time.Time
	Kind   DelistingKind
	Price  decimal.Decimal
}

// VenueMessageKind classifies free-form venue notices.
type VenueMessageKind string

const (
	VenueInformation VenueMessageKind = "information"
	VenueWarning     VenueMessageKind = "warning"
	VenueError       VenueMessageKind = "error"
	VenueDisconnect  VenueMessageKind = "disconnect"
	VenueReconnect   VenueMessageKind = "reconnect"
)

// VenueMessage is an informational, warning or error notice.
type VenueMessage struct {
	Kind VenueMessageKind
	Code string
	Text string
}

func (OrderEventsMessage) venueMessage()        {}
func (AccountChangedMessage) venueMessage()     {}
func (OptionAssignedMessage) venueMessage()     {}
func (OptionNotificationMessage) venueMessage() {}
func (DelistingMessage) venueMessage()          {}
func (VenueMessage) venueMessage()              {}
