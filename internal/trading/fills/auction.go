package fills

import (
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/marketdata"
	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/Aidin1998/orderexec/internal/trading/securities"
	"github.com/shopspring/decimal"
)

// Fallback messages attached when the official auction print is missing.
const (
	MessageFillWithLastTrade = "Fill with last Trade data"
	MessageFillWithLastQuote = "Fill with last Quote data"
)

const (
	officialOpen  = marketdata.ConditionRegular | marketdata.ConditionOfficialOpen
	openingPrints = marketdata.ConditionRegular | marketdata.ConditionOpeningPrints
	officialClose = marketdata.ConditionRegular | marketdata.ConditionOfficialClose
	closingPrints = marketdata.ConditionRegular | marketdata.ConditionClosingPrints
)

func (m *FillModel) auctionWait() time.Duration {
	if m.AuctionWait <= 0 {
		return DefaultAuctionWait
	}
	return m.AuctionWait
}

func isAuctionPrint(sec *securities.Security, t marketdata.Tick, flags ...marketdata.TradeCondition) bool {
	if sec.PrimaryExchange != "" && t.Exchange != sec.PrimaryExchange {
		return false
	}
	for _, f := range flags {
		if t.HasCondition(f) {
			return true
		}
	}
	return false
}

// quoteFallback prices the order from the best-effort quote with slippage.
func quoteFallback(p Parameters) (decimal.Decimal, string, error) {
	side := sideAsk
	if p.Order.Direction() == model.DirectionSell {
		side = sideBid
	}
	price, msg, err := bestEffortPrice(p.Security, p.Now, p.staleSpan(), side)
	if err != nil {
		return decimal.Zero, "", err
	}
	if side == sideAsk {
		price = price.Add(p.slippage())
	} else {
		price = price.Sub(p.slippage())
	}
	return price, msg, nil
}

// MarketOnOpenFill fills at the official opening print. It never fills on
// the bar the order was placed in nor on the submission date when the order
// was placed during market hours.
func (m *FillModel) MarketOnOpenFill(p Parameters) (*model.OrderEvent, error) {
	order, sec := p.Order, p.Security
	fill := newFill(p)
	if order.Status == model.OrderStatusCanceled {
		return fill, nil
	}

	last := sec.Cache.LastData()
	if last == nil || !last.End().After(order.Time) {
		return fill, nil
	}
	orderLocal := sec.LocalTime(order.Time)
	if sec.Exchange.IsOpen(order.Time, false) && sameDate(orderLocal, sec.LocalTime(last.End())) {
		return fill, nil
	}
	if !isExchangeOpen(sec, p.Now, false) {
		return fill, nil
	}

	var price decimal.Decimal
	cache := sec.Cache
	switch {
	case cache.HasSubscription(marketdata.TypeTick):
		var trades []marketdata.Tick
		for _, t := range cache.Ticks() {
			if t.Type == marketdata.TickTrade && t.Price.IsPositive() && sec.Exchange.IsOpen(t.Time, false) && t.Time.After(order.Time) {
				trades = append(trades, t)
			}
		}
		for _, t := range trades {
			if isAuctionPrint(sec, t, officialOpen, openingPrints) {
				price = t.Price
				break
			}
		}
		if price.IsZero() {
			open, ok := sec.Exchange.MarketOpen(p.Now)
			if ok && sec.LocalTime(p.Now).Before(open.Add(m.auctionWait())) {
				return fill, nil
			}
			if len(trades) > 0 {
				price = trades[len(trades)-1].Price
				fill.AppendMessage(MessageFillWithLastTrade)
			}
		}
	case cache.HasSubscription(marketdata.TypeTradeBar):
		if tb, ok := cache.TradeBar(); ok {
			// placed during the bar's aggregation: its open predates the order
			if tb.Time.Before(order.Time) {
				return fill, nil
			}
			if tb.EndTime.Sub(tb.Time) < time.Hour && !sec.Exchange.IsOpen(tb.Time, false) {
				return fill, nil
			}
			price = tb.Open
		}
	}

	if price.IsZero() {
		quote, msg, err := quoteFallback(p)
		if err != nil {
			return nil, err
		}
		price = quote
		fill.AppendMessage(msg)
		fill.AppendMessage(MessageFillWithLastQuote)
	}

	setFilled(fill, order, price)
	return fill, nil
}

// MarketOnCloseFill waits for the first market close after the order time
// and fills at the official closing print, falling back to the last trade
// after the auction wait.
func (m *FillModel) MarketOnCloseFill(p Parameters) (*model.OrderEvent, error) {
	order, sec := p.Order, p.Security
	fill := newFill(p)
	if order.Status == model.OrderStatusCanceled {
		return fill, nil
	}

	nextClose, err := sec.Exchange.NextMarketClose(order.Time, false)
	if err != nil {
		return fill, nil
	}
	local := sec.LocalTime(p.Now)
	if local.Before(nextClose) {
		return fill, nil
	}

	var price decimal.Decimal
	cache := sec.Cache
	if cache.HasSubscription(marketdata.TypeTick) {
		var official, lastAny *marketdata.Tick
		for _, t := range cache.Ticks() {
			t := t
			if t.Type != marketdata.TickTrade || !t.Price.IsPositive() || !t.Time.After(order.Time) {
				continue
			}
			lastAny = &t
			if isAuctionPrint(sec, t, officialClose, closingPrints) {
				official = &t
			}
		}
		switch {
		case official != nil:
			price = official.Price
		case local.Before(nextClose.Add(m.auctionWait())):
			return fill, nil
		case lastAny != nil:
			price = lastAny.Price
			fill.AppendMessage(MessageFillWithLastTrade)
		}
	}

	if price.IsZero() && cache.HasSubscription(marketdata.TypeTradeBar) {
		if tb, ok := cache.TradeBar(); ok {
			if !tb.EndTime.After(order.Time) {
				return fill, nil
			}
			price = tb.Close
			fill.AppendMessage(MessageFillWithLastTrade)
		}
	}

	if price.IsZero() {
		quote, msg, err := quoteFallback(p)
		if err != nil {
			return nil, err
		}
		price = quote
		fill.AppendMessage(msg)
		fill.AppendMessage(MessageFillWithLastQuote)
	}

	setFilled(fill, order, price)
	return fill, nil
}
