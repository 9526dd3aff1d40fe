// Package securities describes tradable instruments: symbol properties,
// exchange calendars, holdings and the per-security market data cache.
package securities

import (
	"errors"
	"sync"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/marketdata"
	"github.com/shopspring/decimal"
)

// ErrSecurityNotFound is returned when a symbol is not registered.
var ErrSecurityNotFound = errors.New("security not found")

// SecurityType is the asset class.
type SecurityType string

const (
	TypeEquity SecurityType = "equity"
	TypeOption SecurityType = "option"
	TypeFuture SecurityType = "future"
	TypeForex  SecurityType = "forex"
	TypeCrypto SecurityType = "crypto"
)

// SymbolProperties are the contract terms used for rounding and valuation.
type SymbolProperties struct {
	LotSize               decimal.Decimal
	MinimumPriceVariation decimal.Decimal
	ContractMultiplier    decimal.Decimal
	QuoteCurrency         string
}

// DefaultSymbolProperties trades in whole units priced to the cent.
func DefaultSymbolProperties() SymbolProperties {
	return SymbolProperties{
		LotSize:               decimal.NewFromInt(1),
		MinimumPriceVariation: decimal.NewFromFloat(0.01),
		ContractMultiplier:    decimal.NewFromInt(1),
		QuoteCurrency:         "USD",
	}
}

// OptionRight is call or put.
type OptionRight string

const (
	Call OptionRight = "call"
	Put  OptionRight = "put"
)

// OptionContract describes the option terms of an option security.
type OptionContract struct {
	Underlying string
	Right      OptionRight
	Strike     decimal.Decimal
	Expiry     time.Time
}

// Holding is the current position in a security.
type Holding struct {
	Quantity     decimal.Decimal `json:"quantity"`
	AveragePrice decimal.Decimal `json:"average_price"`
}

// Security is one tradable instrument.
type Security struct {
	Symbol          string
	Type            SecurityType
	Properties      SymbolProperties
	Exchange        *ExchangeHours
	PrimaryExchange string
	ExtendedHours   bool
	Option          *OptionContract
	Cache           marketdata.Cache

	mu       sync.RWMutex
	holding  Holding
	tradable bool
}

// New creates a tradable security with a fresh memory cache.
func New(symbol string, typ SecurityType, props SymbolProperties, exchange *ExchangeHours, subscriptions ...marketdata.DataType) *Security {
	if exchange == nil {
		exchange = AlwaysOpen(time.UTC)
	}
	if len(subscriptions) == 0 {
		subscriptions = []marketdata.DataType{marketdata.TypeTradeBar}
	}
	if props.ContractMultiplier.IsZero() {
		props.ContractMultiplier = decimal.NewFromInt(1)
	}
	return &Security{
		Symbol:     symbol,
		Type:       typ,
		Properties: props,
		Exchange:   exchange,
		Cache:      marketdata.NewMemoryCache(subscriptions...),
		tradable:   true,
	}
}

// LocalTime converts a UTC instant into exchange local time.
func (s *Security) LocalTime(utc time.Time) time.Time {
	return s.Exchange.Local(utc)
}

// Price is the last known price.
func (s *Security) Price() decimal.Decimal {
	return s.Cache.Price()
}

// BidAsk returns the last quote from ticks or the quote bar, falling back to the price.
func (s *Security) BidAsk() (bid, ask decimal.Decimal) {
	bid, ask = s.Price(), s.Price()
	if qb, ok := s.Cache.QuoteBar(); ok {
		if qb.Bid != nil {
			bid = qb.Bid.Close
		}
		if qb.Ask != nil {
			ask = qb.Ask.Close
		}
	}
	ticks := s.Cache.Ticks()
	for i := len(ticks) - 1; i >= 0; i-- {
		if ticks[i].Type != marketdata.TickQuote {
			continue
		}
		if ticks[i].BidPrice.IsPositive() {
			bid = ticks[i].BidPrice
		}
		if ticks[i].AskPrice.IsPositive() {
			ask = ticks[i].AskPrice
		}
		break
	}
	return bid, ask
}

func (s *Security) Holdings() Holding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.holding
}

// SetHoldings overwrites the position.
func (s *Security) SetHoldings(h Holding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holding = h
}

// ApplyFill adjusts the position by a signed fill quantity at a price.
func (s *Security) ApplyFill(quantity, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.holding.Quantity
	next := prev.Add(quantity)
	switch {
	case next.IsZero():
		s.holding = Holding{}
	case prev.IsZero() || prev.Sign() != next.Sign():
		s.holding = Holding{Quantity: next, AveragePrice: price}
	case prev.Sign() == quantity.Sign():
		// adding to the position
		total := s.holding.AveragePrice.Mul(prev).Add(price.Mul(quantity))
		s.holding = Holding{Quantity: next, AveragePrice: total.Div(next)}
	default:
		s.holding.Quantity = next
	}
}

func (s *Security) IsTradable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tradable
}

// SetTradable marks the security (un)tradable, e.g. after delisting.
func (s *Security) SetTradable(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tradable = v
}

// Manager is the registry of securities keyed by symbol.
type Manager struct {
	mu    sync.RWMutex
	items map[string]*Security
}

func NewManager() *Manager {
	return &Manager{items: make(map[string]*Security)}
}

// Add registers or replaces a security.
func (m *Manager) Add(s *Security) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[s.Symbol] = s
}

// Remove drops a security from the registry.
func (m *Manager) Remove(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, symbol)
}

func (m *Manager) Get(symbol string) (*Security, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.items[symbol]
	return s, ok
}

// All returns every registered security.
func (m *Manager) All() []*Security {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Security, 0, len(m.items))
	for _, s := range m.items {
		out = append(out, s)
	}
	return out
}
