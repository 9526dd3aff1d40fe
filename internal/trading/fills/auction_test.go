package fills

import (
	"testing"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/marketdata"
	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/Aidin1998/orderexec/internal/trading/securities"
	"github.com/stretchr/testify/assert"
)

// Monday 2024-03-04 in New York.
func nyTime(eh *securities.ExchangeHours, day, hour, minute, second int) time.Time {
	return time.Date(2024, 3, day, hour, minute, second, 0, eh.Location).UTC()
}

func TestMarketOnCloseWaitsForClose(t *testing.T) {
	eh := securities.USEquityHours()
	sec, cache := newSecurity(eh, marketdata.TypeTradeBar)
	order := newOrder("10", &model.MarketOnCloseTerms{}, nyTime(eh, 4, 15, 55, 0))
	m := NewFillModel()

	cache.SetTradeBar(tradeBar(nyTime(eh, 4, 15, 57, 0), time.Minute, "100", "100.2", "99.9", "100.1"))
	fill := fillOne(t, m, Parameters{Security: sec, Order: order, Now: nyTime(eh, 4, 15, 58, 0)})
	assert.True(t, fill.FillQuantity.IsZero())

	cache.SetTradeBar(tradeBar(nyTime(eh, 4, 15, 59, 0), time.Minute, "100.1", "101.2", "100", "101"))
	fill = fillOne(t, m, Parameters{Security: sec, Order: order, Now: nyTime(eh, 4, 16, 0, 0)})
	assert.Equal(t, model.OrderStatusFilled, fill.Status)
	assert.True(t, fill.FillPrice.Equal(d("101")))
	assert.Contains(t, fill.Message, MessageFillWithLastTrade)
}

func TestMarketOnCloseOfficialPrint(t *testing.T) {
	eh := securities.USEquityHours()
	sec, cache := newSecurity(eh, marketdata.TypeTick)
	sec.PrimaryExchange = "NYSE"
	order := newOrder("-5", &model.MarketOnCloseTerms{}, nyTime(eh, 4, 15, 55, 0))

	cache.AddTick(marketdata.Tick{Symbol: "SPY", Time: nyTime(eh, 4, 15, 59, 59), Type: marketdata.TickTrade,
		Price: d("100"), Exchange: "ARCA", Condition: marketdata.ConditionRegular})
	cache.AddTick(marketdata.Tick{Symbol: "SPY", Time: nyTime(eh, 4, 16, 0, 0), Type: marketdata.TickTrade,
		Price: d("100.7"), Exchange: "NYSE", Condition: marketdata.ConditionRegular | marketdata.ConditionOfficialClose})

	fill := fillOne(t, NewFillModel(), Parameters{Security: sec, Order: order, Now: nyTime(eh, 4, 16, 0, 30)})
	assert.Equal(t, model.OrderStatusFilled, fill.Status)
	assert.True(t, fill.FillPrice.Equal(d("100.7")))
	assert.Empty(t, fill.Message)
}

func TestMarketOnCloseFallsBackAfterAuctionWait(t *testing.T) {
	eh := securities.USEquityHours()
	sec, cache := newSecurity(eh, marketdata.TypeTick)
	sec.PrimaryExchange = "NYSE"
	order := newOrder("5", &model.MarketOnCloseTerms{}, nyTime(eh, 4, 15, 55, 0))
	m := NewFillModel()

	cache.AddTick(marketdata.Tick{Symbol: "SPY", Time: nyTime(eh, 4, 15, 59, 59), Type: marketdata.TickTrade,
		Price: d("100"), Exchange: "ARCA", Condition: marketdata.ConditionRegular})

	fill := fillOne(t, m, Parameters{Security: sec, Order: order, Now: nyTime(eh, 4, 16, 0, 30)})
	assert.True(t, fill.FillQuantity.IsZero())

	fill = fillOne(t, m, Parameters{Security: sec, Order: order, Now: nyTime(eh, 4, 16, 1, 0)})
	assert.Equal(t, model.OrderStatusFilled, fill.Status)
	assert.True(t, fill.FillPrice.Equal(d("100")))
	assert.Equal(t, MessageFillWithLastTrade, fill.Message)
}

func TestMarketOnOpenFillsAtNextOpen(t *testing.T) {
	eh := securities.USEquityHours()
	sec, cache := newSecurity(eh, marketdata.TypeTradeBar)
	// placed after Monday's close
	order := newOrder("10", &model.MarketOnOpenTerms{}, nyTime(eh, 4, 17, 0, 0))
	m := NewFillModel()

	fill := fillOne(t, m, Parameters{Security: sec, Order: order, Now: nyTime(eh, 4, 17, 30, 0)})
	assert.True(t, fill.FillQuantity.IsZero())

	cache.SetTradeBar(tradeBar(nyTime(eh, 5, 9, 30, 0), time.Minute, "100.5", "101", "100", "100.8"))
	fill = fillOne(t, m, Parameters{Security: sec, Order: order, Now: nyTime(eh, 5, 9, 31, 0)})
	assert.Equal(t, model.OrderStatusFilled, fill.Status)
	assert.True(t, fill.FillPrice.Equal(d("100.5")))
}

func TestMarketOnOpenNotSameSession(t *testing.T) {
	eh := securities.USEquityHours()
	sec, cache := newSecurity(eh, marketdata.TypeTradeBar)
	order := newOrder("10", &model.MarketOnOpenTerms{}, nyTime(eh, 4, 10, 0, 0))

	cache.SetTradeBar(tradeBar(nyTime(eh, 4, 10, 0, 0), time.Minute, "100.5", "101", "100", "100.8"))
	fill := fillOne(t, NewFillModel(), Parameters{Security: sec, Order: order, Now: nyTime(eh, 4, 10, 1, 0)})
	assert.True(t, fill.FillQuantity.IsZero())
}

func TestIsExpired(t *testing.T) {
	eh := securities.USEquityHours()
	sec, _ := newSecurity(eh)

	day := newOrder("1", &model.LimitTerms{LimitPrice: d("1")}, nyTime(eh, 4, 10, 0, 0))
	day.TimeInForce = model.Day()
	assert.False(t, IsExpired(sec, day, nyTime(eh, 4, 15, 59, 0)))
	assert.True(t, IsExpired(sec, day, nyTime(eh, 4, 16, 0, 0)))

	gtd := newOrder("1", &model.LimitTerms{LimitPrice: d("1")}, nyTime(eh, 4, 10, 0, 0))
	gtd.TimeInForce = model.GoodTilDate(time.Date(2024, 3, 6, 0, 0, 0, 0, eh.Location))
	assert.False(t, IsExpired(sec, gtd, nyTime(eh, 6, 15, 0, 0)))
	assert.True(t, IsExpired(sec, gtd, nyTime(eh, 6, 16, 0, 0)))

	gtc := newOrder("1", &model.LimitTerms{LimitPrice: d("1")}, nyTime(eh, 4, 10, 0, 0))
	assert.False(t, IsExpired(sec, gtc, nyTime(eh, 20, 16, 0, 0)))

	crypto := securities.New("BTCUSD", securities.TypeCrypto, securities.DefaultSymbolProperties(), nil)
	cday := newOrder("1", &model.LimitTerms{LimitPrice: d("1")}, time.Date(2024, 3, 4, 23, 0, 0, 0, time.UTC))
	cday.TimeInForce = model.Day()
	assert.False(t, IsExpired(crypto, cday, time.Date(2024, 3, 4, 23, 59, 0, 0, time.UTC)))
	assert.True(t, IsExpired(crypto, cday, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)))
}

func optionPair(right securities.OptionRight, underlyingClose string) (*securities.Security, *securities.Security) {
	underlying, cache := newSecurity(nil)
	cache.SetTradeBar(tradeBar(t0, time.Minute, underlyingClose, underlyingClose, underlyingClose, underlyingClose))

	props := securities.DefaultSymbolProperties()
	props.ContractMultiplier = d("100")
	option := securities.New("SPY240315C100", securities.TypeOption, props, nil)
	option.Option = &securities.OptionContract{Underlying: "SPY", Right: right, Strike: d("100"), Expiry: t0}
	return option, underlying
}

func TestExerciseLongCallInTheMoney(t *testing.T) {
	option, underlying := optionPair(securities.Call, "110")
	order := newOrder("-1", &model.OptionExerciseTerms{}, t0)
	order.Symbol = option.Symbol

	events := DefaultExerciseModel{}.Exercise(option, underlying, order, t0)
	if assert.Len(t, events, 2) {
		assert.Equal(t, option.Symbol, events[0].Symbol)
		assert.True(t, events[0].FillPrice.IsZero())
		assert.True(t, events[0].FillQuantity.Equal(d("-1")))
		assert.False(t, events[0].IsAssignment)

		assert.Equal(t, "SPY", events[1].Symbol)
		assert.True(t, events[1].FillQuantity.Equal(d("100")))
		assert.True(t, events[1].FillPrice.Equal(d("100")))
		assert.Equal(t, model.DirectionBuy, events[1].Direction)
	}
}

func TestAssignmentShortPut(t *testing.T) {
	option, underlying := optionPair(securities.Put, "90")
	order := newOrder("1", &model.OptionExerciseTerms{}, t0)

	events := DefaultExerciseModel{}.Exercise(option, underlying, order, t0)
	if assert.Len(t, events, 2) {
		assert.True(t, events[0].IsAssignment)
		assert.True(t, events[1].IsAssignment)
		assert.True(t, events[1].FillQuantity.Equal(d("100")))
	}
}

func TestExerciseOutOfTheMoney(t *testing.T) {
	option, underlying := optionPair(securities.Call, "95")
	order := newOrder("-1", &model.OptionExerciseTerms{}, t0)

	events := DefaultExerciseModel{}.Exercise(option, underlying, order, t0)
	assert.Len(t, events, 1)
	assert.Equal(t, model.OrderStatusFilled, events[0].Status)
}
