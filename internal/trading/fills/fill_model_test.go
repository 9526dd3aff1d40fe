package fills

import (
	"errors"
	"testing"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/marketdata"
	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/Aidin1998/orderexec/internal/trading/securities"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var t0 = time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newSecurity(exchange *securities.ExchangeHours, types ...marketdata.DataType) (*securities.Security, *marketdata.MemoryCache) {
	sec := securities.New("SPY", securities.TypeEquity, securities.DefaultSymbolProperties(), exchange, types...)
	return sec, sec.Cache.(*marketdata.MemoryCache)
}

func newOrder(qty string, terms model.Terms, at time.Time) *model.Order {
	req := model.NewSubmitOrderRequest("SPY", d(qty), terms, model.GoodTilCanceled, "", at)
	return model.NewOrder(1, req)
}

func tradeBar(start time.Time, period time.Duration, o, h, l, c string) marketdata.TradeBar {
	return marketdata.TradeBar{
		Symbol:  "SPY",
		Time:    start,
		EndTime: start.Add(period),
		Bar:     marketdata.Bar{Open: d(o), High: d(h), Low: d(l), Close: d(c)},
	}
}

func quoteBar(start time.Time, period time.Duration, bid, ask string) marketdata.QuoteBar {
	b, a := d(bid), d(ask)
	return marketdata.QuoteBar{
		Symbol:  "SPY",
		Time:    start,
		EndTime: start.Add(period),
		Bid:     &marketdata.Bar{Open: b, High: b, Low: b, Close: b},
		Ask:     &marketdata.Bar{Open: a, High: a, Low: a, Close: a},
	}
}

func fillOne(t *testing.T, m *FillModel, p Parameters) *model.OrderEvent {
	t.Helper()
	events, err := m.Fill(p)
	require.NoError(t, err)
	require.Len(t, events, 1)
	return events[0]
}

func TestLimitBuyFillsAtLimitOrBetter(t *testing.T) {
	sec, cache := newSecurity(nil)
	order := newOrder("10", &model.LimitTerms{LimitPrice: d("101")}, t0)
	cache.SetTradeBar(tradeBar(t0, time.Minute, "100", "102", "99", "101"))

	fill := fillOne(t, NewFillModel(), Parameters{Security: sec, Order: order, Now: t0.Add(time.Minute)})

	assert.Equal(t, model.OrderStatusFilled, fill.Status)
	assert.True(t, fill.FillPrice.Equal(d("101")), fill.FillPrice.String())
	assert.True(t, fill.FillQuantity.Equal(d("10")))
}

func TestLimitSellNotCrossed(t *testing.T) {
	sec, cache := newSecurity(nil)
	order := newOrder("-10", &model.LimitTerms{LimitPrice: d("103")}, t0)
	cache.SetTradeBar(tradeBar(t0, time.Minute, "100", "102", "99", "101"))

	fill := fillOne(t, NewFillModel(), Parameters{Security: sec, Order: order, Now: t0.Add(time.Minute)})

	assert.Equal(t, model.OrderStatusNew, fill.Status)
	assert.True(t, fill.FillQuantity.IsZero())
}

func TestNoFillOnDataNotNewerThanOrder(t *testing.T) {
	sec, cache := newSecurity(nil)
	// bar ends exactly at the order time
	cache.SetTradeBar(tradeBar(t0.Add(-time.Minute), time.Minute, "100", "102", "90", "101"))
	m := NewFillModel()

	for _, terms := range []model.Terms{
		&model.LimitTerms{LimitPrice: d("101")},
		&model.StopMarketTerms{StopPrice: d("101")},
		&model.StopLimitTerms{StopPrice: d("101"), LimitPrice: d("103")},
	} {
		order := newOrder("10", terms, t0)
		fill := fillOne(t, m, Parameters{Security: sec, Order: order, Now: t0})
		assert.True(t, fill.FillQuantity.IsZero(), order.Type())
	}
}

func TestLimitFillPriceNeverWorseThanLimit(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		low := rapid.IntRange(50, 150).Draw(rt, "low")
		high := low + rapid.IntRange(0, 50).Draw(rt, "range")
		limit := rapid.IntRange(40, 210).Draw(rt, "limit")
		buy := rapid.Bool().Draw(rt, "buy")

		sec, cache := newSecurity(nil)
		qty := "5"
		if !buy {
			qty = "-5"
		}
		limitPrice := decimal.NewFromInt(int64(limit))
		order := newOrder(qty, &model.LimitTerms{LimitPrice: limitPrice}, t0)
		lo, hi := decimal.NewFromInt(int64(low)), decimal.NewFromInt(int64(high))
		cache.SetTradeBar(marketdata.TradeBar{
			Symbol: "SPY", Time: t0, EndTime: t0.Add(time.Minute),
			Bar: marketdata.Bar{Open: lo, High: hi, Low: lo, Close: hi},
		})

		events, err := NewFillModel().Fill(Parameters{Security: sec, Order: order, Now: t0.Add(time.Minute)})
		if err != nil {
			rt.Fatalf("fill: %v", err)
		}
		fill := events[0]
		filled := fill.Status == model.OrderStatusFilled
		crossed := (buy && lo.LessThan(limitPrice)) || (!buy && hi.GreaterThan(limitPrice))
		if filled != crossed {
			rt.Fatalf("filled=%v crossed=%v", filled, crossed)
		}
		if !filled {
			return
		}
		if buy && fill.FillPrice.GreaterThan(limitPrice) {
			rt.Fatalf("buy filled at %s above limit %s", fill.FillPrice, limitPrice)
		}
		if !buy && fill.FillPrice.LessThan(limitPrice) {
			rt.Fatalf("sell filled at %s below limit %s", fill.FillPrice, limitPrice)
		}
	})
}

func TestMarketFillUsesFreshQuote(t *testing.T) {
	sec, cache := newSecurity(nil, marketdata.TypeQuoteBar)
	order := newOrder("3", &model.MarketTerms{}, t0)
	cache.SetQuoteBar(quoteBar(t0, time.Minute, "99.9", "100.1"))

	fill := fillOne(t, NewFillModel(), Parameters{
		Security: sec, Order: order, Now: t0.Add(time.Minute),
		Slippage: ConstantSlippage{Percent: d("0.01")},
	})

	assert.Equal(t, model.OrderStatusFilled, fill.Status)
	// ask 100.1 plus 1% of the mid price
	assert.True(t, fill.FillPrice.Equal(d("101.1")), fill.FillPrice.String())
	assert.Empty(t, fill.Message)
}

func TestMarketFillStaleQuoteWarns(t *testing.T) {
	sec, cache := newSecurity(nil, marketdata.TypeQuoteBar)
	order := newOrder("-3", &model.MarketTerms{}, t0)
	cache.SetQuoteBar(quoteBar(t0.Add(-3*time.Hour), time.Minute, "99.9", "100.1"))

	fill := fillOne(t, NewFillModel(), Parameters{Security: sec, Order: order, Now: t0})

	assert.Equal(t, model.OrderStatusFilled, fill.Status)
	assert.True(t, fill.FillPrice.Equal(d("99.9")))
	assert.Contains(t, fill.Message, "Warning: fill at stale price")
}

func TestMarketFillFromTradeDataWarns(t *testing.T) {
	sec, cache := newSecurity(nil, marketdata.TypeTradeBar)
	order := newOrder("1", &model.MarketTerms{}, t0)
	cache.SetTradeBar(tradeBar(t0, time.Minute, "100", "101", "99", "100.5"))

	fill := fillOne(t, NewFillModel(), Parameters{Security: sec, Order: order, Now: t0.Add(time.Minute)})

	assert.True(t, fill.FillPrice.Equal(d("100.5")))
	assert.Contains(t, fill.Message, "No quote information available")
}

func TestMarketFillWithoutDataFails(t *testing.T) {
	sec, _ := newSecurity(nil, marketdata.TypeQuoteBar)
	order := newOrder("1", &model.MarketTerms{}, t0)

	_, err := NewFillModel().Fill(Parameters{Security: sec, Order: order, Now: t0})
	assert.True(t, errors.Is(err, ErrNoMarketData), err)
}

func TestCanceledOrderNeverFills(t *testing.T) {
	sec, cache := newSecurity(nil, marketdata.TypeQuoteBar)
	cache.SetQuoteBar(quoteBar(t0, time.Minute, "99.9", "100.1"))
	order := newOrder("1", &model.MarketTerms{}, t0)
	order.Status = model.OrderStatusCanceled

	fill := fillOne(t, NewFillModel(), Parameters{Security: sec, Order: order, Now: t0.Add(time.Minute)})
	assert.Equal(t, model.OrderStatusCanceled, fill.Status)
	assert.True(t, fill.FillQuantity.IsZero())
}

func TestStopMarketSellTriggers(t *testing.T) {
	sec, cache := newSecurity(nil)
	order := newOrder("-10", &model.StopMarketTerms{StopPrice: d("99.5")}, t0)
	cache.SetTradeBar(tradeBar(t0, time.Minute, "100", "100", "99", "99.8"))

	fill := fillOne(t, NewFillModel(), Parameters{Security: sec, Order: order, Now: t0.Add(time.Minute)})

	assert.Equal(t, model.OrderStatusFilled, fill.Status)
	assert.True(t, fill.FillPrice.Equal(d("99.5")), fill.FillPrice.String())
}

func TestStopLimitArmsThenFills(t *testing.T) {
	sec, cache := newSecurity(nil)
	order := newOrder("10", &model.StopLimitTerms{StopPrice: d("101"), LimitPrice: d("102")}, t0)
	terms := order.Terms.(*model.StopLimitTerms)
	m := NewFillModel()

	// crosses the stop but closes above the limit
	cache.SetTradeBar(tradeBar(t0, time.Minute, "100", "101.5", "100", "102.5"))
	fill := fillOne(t, m, Parameters{Security: sec, Order: order, Now: t0.Add(time.Minute)})
	assert.True(t, fill.FillQuantity.IsZero())
	assert.Equal(t, model.Armed, terms.Trigger)
	assert.True(t, order.Armed())

	// back below the stop: the arm state is sticky
	cache.SetTradeBar(tradeBar(t0.Add(time.Minute), time.Minute, "101", "101.9", "100", "101.5"))
	fill = fillOne(t, m, Parameters{Security: sec, Order: order, Now: t0.Add(2 * time.Minute)})
	assert.Equal(t, model.OrderStatusFilled, fill.Status)
	assert.True(t, fill.FillPrice.Equal(d("101.9")), fill.FillPrice.String())
}

func TestLimitIfTouchedSell(t *testing.T) {
	sec, cache := newSecurity(nil, marketdata.TypeTradeBar, marketdata.TypeQuoteBar)
	order := newOrder("-2", &model.LimitIfTouchedTerms{TriggerPrice: d("105"), LimitPrice: d("104")}, t0)
	terms := order.Terms.(*model.LimitIfTouchedTerms)
	m := NewFillModel()

	cache.SetTradeBar(tradeBar(t0, time.Minute, "103", "105", "103", "104"))
	cache.SetQuoteBar(quoteBar(t0, time.Minute, "103.9", "104.1"))
	fill := fillOne(t, m, Parameters{Security: sec, Order: order, Now: t0.Add(time.Minute)})
	assert.True(t, fill.FillQuantity.IsZero())
	assert.Equal(t, model.Armed, terms.Trigger)

	cache.SetTradeBar(tradeBar(t0.Add(time.Minute), time.Minute, "103", "103.5", "100", "103"))
	cache.SetQuoteBar(quoteBar(t0.Add(time.Minute), time.Minute, "104.2", "104.4"))
	fill = fillOne(t, m, Parameters{Security: sec, Order: order, Now: t0.Add(2 * time.Minute)})
	assert.Equal(t, model.OrderStatusFilled, fill.Status)
	assert.True(t, fill.FillPrice.Equal(d("104")))
}

func TestUnsupportedOrderType(t *testing.T) {
	sec, _ := newSecurity(nil)
	order := newOrder("1", &model.OptionExerciseTerms{}, t0)
	_, err := NewFillModel().Fill(Parameters{Security: sec, Order: order, Now: t0})
	assert.True(t, errors.Is(err, ErrUnsupportedOrderType))
}

func TestFeeModels(t *testing.T) {
	sec, _ := newSecurity(nil)
	order := newOrder("10", &model.MarketTerms{}, t0)
	fill := &model.OrderEvent{FillQuantity: d("-10")}

	fee := PerUnitFee{PerUnit: d("0.005"), Minimum: d("1")}.OrderFee(sec, order, fill)
	assert.True(t, fee.Amount.Equal(d("1")))
	assert.Equal(t, "USD", fee.Currency)

	fill.FillQuantity = d("1000")
	fee = PerUnitFee{PerUnit: d("0.005"), Minimum: d("1")}.OrderFee(sec, order, fill)
	assert.True(t, fee.Amount.Equal(d("5")))

	assert.True(t, NoFee{}.OrderFee(sec, order, fill).Amount.IsZero())
}
