// Package marketdata holds the per-security cache of the latest ticks and
// bars the fill models price against.
package marketdata

import (
	"time"

	"github.com/shopspring/decimal"
)

// DataType names a subscribed data stream.
type DataType string

const (
	TypeTick     DataType = "tick"
	TypeTradeBar DataType = "tradebar"
	TypeQuoteBar DataType = "quotebar"
)

// TickType separates trade prints from quote updates.
type TickType string

const (
	TickTrade TickType = "trade"
	TickQuote TickType = "quote"
)

// TradeCondition is the exchange sale-condition bit set of a trade tick.
type TradeCondition uint32

const (
	ConditionRegular TradeCondition = 1 << iota
	ConditionOfficialOpen
	ConditionOfficialClose
	ConditionOpeningPrints
	ConditionClosingPrints
	ConditionIntermarketSweep
	ConditionOddLot
)

// Data is any cached market data point.
type Data interface {
	GetSymbol() string
	// Start of the period the data covers.
	Start() time.Time
	// End of the period; the instant the data became known.
	End() time.Time
	// Value is the representative price.
	Value() decimal.Decimal
}

// Tick is a single trade print or quote update.
type Tick struct {
	Symbol    string          `json:"symbol"`
	Time      time.Time       `json:"time"`
	Type      TickType        `json:"type"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	BidPrice  decimal.Decimal `json:"bid_price"`
	AskPrice  decimal.Decimal `json:"ask_price"`
	BidSize   decimal.Decimal `json:"bid_size"`
	AskSize   decimal.Decimal `json:"ask_size"`
	Exchange  string          `json:"exchange"`
	Condition TradeCondition  `json:"condition"`
}

func (t *Tick) GetSymbol() string { return t.Symbol }
func (t *Tick) Start() time.Time  { return t.Time }
func (t *Tick) End() time.Time    { return t.Time }

// Value is the trade price, or the quote mid when only bid/ask are set.
func (t *Tick) Value() decimal.Decimal {
	if t.Type == TickQuote {
		switch {
		case t.BidPrice.IsPositive() && t.AskPrice.IsPositive():
			return t.BidPrice.Add(t.AskPrice).Div(decimal.NewFromInt(2))
		case t.BidPrice.IsPositive():
			return t.BidPrice
		default:
			return t.AskPrice
		}
	}
	return t.Price
}

// HasCondition reports whether the tick carries exactly the given flags.
func (t *Tick) HasCondition(c TradeCondition) bool {
	return t.Condition == c
}

// Bar is an OHLC price range.
type Bar struct {
	Open  decimal.Decimal `json:"open"`
	High  decimal.Decimal `json:"high"`
	Low   decimal.Decimal `json:"low"`
	Close decimal.Decimal `json:"close"`
}

// TradeBar aggregates trade prints over a period.
type TradeBar struct {
	Symbol  string          `json:"symbol"`
	Time    time.Time       `json:"time"`
	EndTime time.Time       `json:"end_time"`
	Volume  decimal.Decimal `json:"volume"`
	Bar
}

func (b *TradeBar) GetSymbol() string      { return b.Symbol }
func (b *TradeBar) Start() time.Time       { return b.Time }
func (b *TradeBar) End() time.Time         { return b.EndTime }
func (b *TradeBar) Value() decimal.Decimal { return b.Close }

// QuoteBar aggregates bid and ask over a period. Either side may be missing.
type QuoteBar struct {
	Symbol  string    `json:"symbol"`
	Time    time.Time `json:"time"`
	EndTime time.Time `json:"end_time"`
	Bid     *Bar      `json:"bid,omitempty"`
	Ask     *Bar      `json:"ask,omitempty"`
}

func (b *QuoteBar) GetSymbol() string { return b.Symbol }
func (b *QuoteBar) Start() time.Time  { return b.Time }
func (b *QuoteBar) End() time.Time    { return b.EndTime }
func (b *QuoteBar) Value() decimal.Decimal {
	return b.Mid().Close
}

// Mid returns the bar of bid/ask midpoints, or the one side present.
func (b *QuoteBar) Mid() Bar {
	switch {
	case b.Bid != nil && b.Ask != nil:
		two := decimal.NewFromInt(2)
		return Bar{
			Open:  b.Bid.Open.Add(b.Ask.Open).Div(two),
			High:  b.Bid.High.Add(b.Ask.High).Div(two),
			Low:   b.Bid.Low.Add(b.Ask.Low).Div(two),
			Close: b.Bid.Close.Add(b.Ask.Close).Div(two),
		}
	case b.Bid != nil:
		return *b.Bid
	case b.Ask != nil:
		return *b.Ask
	}
	return Bar{}
}
