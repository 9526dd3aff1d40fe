package brokerage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/fills"
	"github.com/Aidin1998/orderexec/internal/trading/marketdata"
	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/Aidin1998/orderexec/internal/trading/risk"
	"github.com/Aidin1998/orderexec/internal/trading/securities"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu       sync.Mutex
	events   []*model.OrderEvent
	messages []Message
}

func (s *recordingSink) OnVenueMessage(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	if m, ok := msg.(OrderEventsMessage); ok {
		s.events = append(s.events, m.Events...)
	}
}

func (s *recordingSink) last() *model.OrderEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return nil
	}
	return s.events[len(s.events)-1]
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type fixture struct {
	venue *SimulatedVenue
	sink  *recordingSink
	clock *securities.ManualClock
	secs  *securities.Manager
	spy   *securities.Security
	cache *marketdata.MemoryCache
}

var start = time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	secs := securities.NewManager()
	spy := securities.New("SPY", securities.TypeEquity, securities.DefaultSymbolProperties(), nil)
	secs.Add(spy)
	clock := securities.NewManualClock(start)
	sink := &recordingSink{}
	venue := NewSimulatedVenue(SimulatedConfig{
		Securities: secs,
		Clock:      clock,
		Fees:       fills.ConstantFee{Amount: dec("1")},
	}, nil)
	venue.SetSink(sink)
	require.NoError(t, venue.Connect(context.Background()))
	return &fixture{venue: venue, sink: sink, clock: clock, secs: secs, spy: spy, cache: spy.Cache.(*marketdata.MemoryCache)}
}

func (f *fixture) bar(o, h, l, c string) {
	now := f.clock.Now()
	f.cache.SetTradeBar(marketdata.TradeBar{
		Symbol: "SPY", Time: now.Add(-time.Minute), EndTime: now,
		Bar: marketdata.Bar{Open: dec(o), High: dec(h), Low: dec(l), Close: dec(c)},
	})
}

func (f *fixture) order(id int, qty string, terms model.Terms) *model.Order {
	req := model.NewSubmitOrderRequest("SPY", dec(qty), terms, model.GoodTilCanceled, "", f.clock.Now())
	return model.NewOrder(id, req)
}

func TestPlaceOrderRequiresConnection(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.venue.Disconnect())
	err := f.venue.PlaceOrder(context.Background(), f.order(1, "1", &model.MarketTerms{}))
	assert.True(t, errors.Is(err, ErrNotConnected))
}

func TestMarketOrderFillsOnScan(t *testing.T) {
	f := newFixture(t)
	f.bar("100", "101", "99", "100.5")
	ctx := context.Background()

	require.NoError(t, f.venue.PlaceOrder(ctx, f.order(1, "10", &model.MarketTerms{})))
	require.Equal(t, model.OrderStatusSubmitted, f.sink.last().Status)

	f.venue.Scan(ctx)
	fill := f.sink.last()
	assert.Equal(t, model.OrderStatusFilled, fill.Status)
	assert.True(t, fill.FillPrice.Equal(dec("100.5")))
	assert.True(t, fill.Fee.Amount.Equal(dec("1")))
	assert.Equal(t, 0, f.venue.PendingCount())
}

func TestLimitOrderWaitsForNextInstant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.venue.PlaceOrder(ctx, f.order(1, "10", &model.LimitTerms{LimitPrice: dec("101")})))
	f.bar("100", "102", "99", "101")

	f.venue.Scan(ctx)
	assert.Equal(t, 1, f.sink.count(), "only the submitted event")

	f.clock.Advance(time.Minute)
	f.bar("100", "102", "99", "101")
	f.venue.Scan(ctx)
	assert.Equal(t, model.OrderStatusFilled, f.sink.last().Status)
}

func TestUpdateKeepsTriggerState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(1, "10", &model.StopLimitTerms{StopPrice: dec("101"), LimitPrice: dec("102")})
	require.NoError(t, f.venue.PlaceOrder(ctx, order))

	f.clock.Advance(time.Minute)
	f.bar("100", "101.5", "100", "102.5")
	f.venue.Scan(ctx)
	require.Equal(t, 2, f.sink.count(), "armed but not filled")
	armed := f.sink.last()
	assert.Equal(t, model.OrderStatusSubmitted, armed.Status)
	assert.True(t, armed.TriggerArmed)
	assert.True(t, armed.FillQuantity.IsZero())

	// staying armed is not news
	f.venue.Scan(ctx)
	assert.Equal(t, 2, f.sink.count())

	update := order.Clone()
	update.Terms.(*model.StopLimitTerms).LimitPrice = dec("103")
	require.NoError(t, f.venue.UpdateOrder(ctx, update))
	assert.Equal(t, model.OrderStatusUpdateSubmitted, f.sink.last().Status)

	// never touches the stop: fills only because the trigger was kept
	f.clock.Advance(time.Minute)
	f.bar("100.5", "100.9", "100", "100.5")
	f.venue.Scan(ctx)
	fill := f.sink.last()
	assert.Equal(t, model.OrderStatusFilled, fill.Status)
	assert.True(t, fill.TriggerArmed)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(1, "10", &model.LimitTerms{LimitPrice: dec("90")})
	require.NoError(t, f.venue.PlaceOrder(ctx, order))

	require.NoError(t, f.venue.CancelOrder(ctx, order))
	assert.Equal(t, model.OrderStatusCanceled, f.sink.last().Status)
	assert.True(t, errors.Is(f.venue.CancelOrder(ctx, order), ErrOrderNotFound))
}

func TestDayOrderExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := model.NewSubmitOrderRequest("SPY", dec("1"), &model.LimitTerms{LimitPrice: dec("1")}, model.Day(), "", f.clock.Now())
	require.NoError(t, f.venue.PlaceOrder(ctx, model.NewOrder(1, req)))

	f.clock.Set(start.Add(10 * time.Hour))
	f.bar("100", "100", "100", "100")
	f.venue.Scan(ctx)

	e := f.sink.last()
	assert.Equal(t, model.OrderStatusCanceled, e.Status)
	assert.Equal(t, "The order has expired.", e.Message)
}

func TestRemovedSecurityInvalidatesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.venue.PlaceOrder(ctx, f.order(1, "1", &model.LimitTerms{LimitPrice: dec("1")})))
	f.secs.Remove("SPY")

	f.venue.Scan(ctx)
	assert.Equal(t, model.OrderStatusInvalid, f.sink.last().Status)
}

func TestInsufficientBuyingPowerAtFill(t *testing.T) {
	secs := securities.NewManager()
	spy := securities.New("SPY", securities.TypeEquity, securities.DefaultSymbolProperties(), nil)
	secs.Add(spy)
	clock := securities.NewManualClock(start)
	sink := &recordingSink{}
	venue := NewSimulatedVenue(SimulatedConfig{
		Securities:  secs,
		Clock:       clock,
		Portfolio:   risk.NewPortfolio(secs, "USD", dec("100")),
		BuyingPower: risk.NewCashBuyingPowerModel(),
	}, nil)
	venue.SetSink(sink)
	ctx := context.Background()
	require.NoError(t, venue.Connect(ctx))

	spy.Cache.(*marketdata.MemoryCache).SetTradeBar(marketdata.TradeBar{
		Symbol: "SPY", Time: start.Add(-time.Minute), EndTime: start,
		Bar: marketdata.Bar{Open: dec("50"), High: dec("50"), Low: dec("50"), Close: dec("50")},
	})
	req := model.NewSubmitOrderRequest("SPY", dec("10"), &model.MarketTerms{}, model.GoodTilCanceled, "", start)
	require.NoError(t, venue.PlaceOrder(ctx, model.NewOrder(1, req)))
	venue.Scan(ctx)

	e := sink.last()
	assert.Equal(t, model.OrderStatusInvalid, e.Status)
	assert.Contains(t, e.Message, "Insufficient buying power")
}

func TestOptionExerciseOnScan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bar("110", "110", "110", "110")

	props := securities.DefaultSymbolProperties()
	props.ContractMultiplier = dec("100")
	option := securities.New("SPY_C100", securities.TypeOption, props, nil)
	option.Option = &securities.OptionContract{Underlying: "SPY", Right: securities.Call, Strike: dec("100"), Expiry: start}
	f.secs.Add(option)

	req := model.NewSubmitOrderRequest("SPY_C100", dec("-1"), &model.OptionExerciseTerms{}, model.GoodTilCanceled, "", start)
	require.NoError(t, f.venue.PlaceOrder(ctx, model.NewOrder(1, req)))

	f.clock.Advance(time.Minute)
	f.venue.Scan(ctx)

	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	require.Len(t, f.sink.events, 3)
	assert.Equal(t, "SPY_C100", f.sink.events[1].Symbol)
	assert.Equal(t, "SPY", f.sink.events[2].Symbol)
	assert.True(t, f.sink.events[2].FillQuantity.Equal(dec("100")))
}

func TestDefaultCapabilityModel(t *testing.T) {
	m := DefaultCapabilityModel{}
	crypto := securities.New("BTCUSD", securities.TypeCrypto, securities.DefaultSymbolProperties(), nil)
	req := model.NewSubmitOrderRequest("BTCUSD", dec("1"), &model.MarketOnCloseTerms{}, model.GoodTilCanceled, "", start)
	ok, reason := m.CanSubmitOrder(crypto, model.NewOrder(1, req))
	assert.False(t, ok)
	assert.NotEmpty(t, reason)

	market := model.NewOrder(2, model.NewSubmitOrderRequest("BTCUSD", dec("1"), &model.MarketTerms{}, model.GoodTilCanceled, "", start))
	update := model.NewUpdateOrderRequest(2, model.UpdateFields{Quantity: decimal.NewNullDecimal(dec("2"))}, start)
	ok, _ = m.CanUpdateOrder(crypto, market, update)
	assert.False(t, ok)

	tagOnly := model.NewUpdateOrderRequest(2, model.UpdateFields{Tag: "x"}, start)
	ok, _ = m.CanUpdateOrder(crypto, market, tagOnly)
	assert.True(t, ok)
}
