package fills

import (
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/marketdata"
	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/Aidin1998/orderexec/internal/trading/securities"
	"github.com/shopspring/decimal"
)

// Prices is a snapshot of one price range for one instrument, read once per
// fill attempt.
type Prices struct {
	EndTime time.Time
	Current decimal.Decimal
	Open    decimal.Decimal
	High    decimal.Decimal
	Low     decimal.Decimal
	Close   decimal.Decimal
}

func pricesFromBar(end time.Time, b marketdata.Bar) Prices {
	return Prices{EndTime: end, Current: b.Close, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close}
}

func pricesFromPrice(end time.Time, p decimal.Decimal) Prices {
	return Prices{EndTime: end, Current: p, Open: p, High: p, Low: p, Close: p}
}

// GetPrices reads the side of the market the order would trade against,
// preferring ticks, then quote bars, then trade bars, and only from
// subscribed data types.
func GetPrices(sec *securities.Security, direction model.Direction) Prices {
	cache := sec.Cache
	var end time.Time
	if last := cache.LastData(); last != nil {
		end = last.End()
	}
	fallback := Prices{
		EndTime: end,
		Current: cache.Price(),
		Open:    cache.Open(),
		High:    cache.High(),
		Low:     cache.Low(),
		Close:   cache.Close(),
	}
	if direction == model.DirectionHold {
		return fallback
	}

	if cache.HasSubscription(marketdata.TypeTick) {
		if tick, ok := cache.LastTick(); ok {
			price := tick.AskPrice
			if direction == model.DirectionSell {
				price = tick.BidPrice
			}
			if !price.IsZero() {
				return pricesFromPrice(tick.Time, price)
			}
			// no spread on this tick, try the trade price
			if !tick.Price.IsZero() {
				return pricesFromPrice(tick.Time, tick.Price)
			}
		}
	}

	if cache.HasSubscription(marketdata.TypeQuoteBar) {
		if qb, ok := cache.QuoteBar(); ok {
			side := qb.Ask
			if direction == model.DirectionSell {
				side = qb.Bid
			}
			if side != nil {
				return pricesFromBar(qb.EndTime, *side)
			}
		}
	}

	if cache.HasSubscription(marketdata.TypeTradeBar) {
		if tb, ok := cache.TradeBar(); ok {
			return pricesFromBar(tb.EndTime, tb.Bar)
		}
	}

	return fallback
}
