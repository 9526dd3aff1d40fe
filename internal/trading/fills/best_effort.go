package fills

import (
	"fmt"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/marketdata"
	"github.com/Aidin1998/orderexec/internal/trading/securities"
	"github.com/shopspring/decimal"
)

type quoteSide int

const (
	sideBid quoteSide = iota
	sideAsk
)

func (s quoteSide) String() string {
	if s == sideAsk {
		return "ask"
	}
	return "bid"
}

func staleMessage(sec *securities.Security, end time.Time) string {
	return fmt.Sprintf("Warning: fill at stale price (%s %s)", sec.LocalTime(end).Format("2006-01-02 15:04:05"), sec.Symbol)
}

func tradeDataMessage(sec *securities.Security, now time.Time, source string) string {
	return fmt.Sprintf("Warning: No quote information available at %s %s, order filled using %s data",
		sec.LocalTime(now).Format("2006-01-02 15:04:05"), sec.Symbol, source)
}

// bestEffortPrice walks quote tick, quote bar, trade tick and trade bar, in
// that order. A price whose end time is within the stale span of now is
// returned at once; otherwise the freshest candidate found is used with a
// warning message.
func bestEffortPrice(sec *securities.Security, now time.Time, staleSpan time.Duration, side quoteSide) (decimal.Decimal, string, error) {
	cache := sec.Cache
	cutoff := now.Add(-staleSpan)

	var (
		price   decimal.Decimal
		message string
		baseEnd time.Time
		found   bool
	)
	fresh := func(end time.Time) bool { return !end.Before(cutoff) }
	newer := func(end time.Time) bool { return !found || end.After(baseEnd) }

	tickSubscribed := cache.HasSubscription(marketdata.TypeTick)
	var ticks []marketdata.Tick
	if tickSubscribed {
		ticks = cache.Ticks()
		for i := len(ticks) - 1; i >= 0; i-- {
			t := ticks[i]
			if t.Type != marketdata.TickQuote {
				continue
			}
			p := t.BidPrice
			if side == sideAsk {
				p = t.AskPrice
			}
			if !p.IsPositive() {
				continue
			}
			if fresh(t.Time) {
				return p, "", nil
			}
			price, baseEnd, found = p, t.Time, true
			message = staleMessage(sec, t.Time)
			break
		}
	}

	if cache.HasSubscription(marketdata.TypeQuoteBar) {
		if qb, ok := cache.QuoteBar(); ok && newer(qb.EndTime) {
			p := qb.Mid().Close
			if side == sideAsk && qb.Ask != nil {
				p = qb.Ask.Close
			} else if side == sideBid && qb.Bid != nil {
				p = qb.Bid.Close
			}
			if fresh(qb.EndTime) {
				return p, "", nil
			}
			price, baseEnd, found = p, qb.EndTime, true
			message = staleMessage(sec, qb.EndTime)
		}
	}

	if tickSubscribed {
		if trade, ok := lastTrade(ticks); ok && newer(trade.Time) {
			message = tradeDataMessage(sec, now, "Trade tick")
			if fresh(trade.Time) {
				return trade.Price, message, nil
			}
			price, baseEnd, found = trade.Price, trade.Time, true
		}
	}

	if cache.HasSubscription(marketdata.TypeTradeBar) {
		if tb, ok := cache.TradeBar(); ok && newer(tb.EndTime) {
			message = tradeDataMessage(sec, now, "TradeBar")
			if fresh(tb.EndTime) {
				return tb.Close, message, nil
			}
			price, baseEnd, found = tb.Close, tb.EndTime, true
		}
	}

	if found {
		return price, message, nil
	}
	return decimal.Zero, "", fmt.Errorf("%w: cannot get %s price to fill %s", ErrNoMarketData, side, sec.Symbol)
}
