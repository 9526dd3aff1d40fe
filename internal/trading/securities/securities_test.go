package securities

import (
	"errors"
	"testing"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/marketdata"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ny(eh *ExchangeHours, month time.Month, day, hour, minute int) time.Time {
	return time.Date(2024, month, day, hour, minute, 0, 0, eh.Location)
}

func TestUSEquityHoursIsOpen(t *testing.T) {
	eh := USEquityHours()

	assert.False(t, eh.IsOpen(ny(eh, 3, 4, 9, 29), false))
	assert.True(t, eh.IsOpen(ny(eh, 3, 4, 9, 29), true))
	assert.True(t, eh.IsOpen(ny(eh, 3, 4, 9, 30), false))
	assert.False(t, eh.IsOpen(ny(eh, 3, 4, 16, 0), false))
	assert.True(t, eh.IsOpen(ny(eh, 3, 4, 16, 0), true))
	// Saturday
	assert.False(t, eh.IsOpen(ny(eh, 3, 9, 12, 0), true))
}

func TestNextMarketCloseAndOpen(t *testing.T) {
	eh := USEquityHours()

	closeAt, err := eh.NextMarketClose(ny(eh, 3, 8, 15, 0), false)
	require.NoError(t, err)
	assert.True(t, closeAt.Equal(ny(eh, 3, 8, 16, 0)))

	// Friday after close rolls over the weekend
	closeAt, err = eh.NextMarketClose(ny(eh, 3, 8, 16, 0), false)
	require.NoError(t, err)
	assert.True(t, closeAt.Equal(ny(eh, 3, 11, 16, 0)))

	openAt, err := eh.NextMarketOpen(ny(eh, 3, 8, 17, 0), false)
	require.NoError(t, err)
	assert.True(t, openAt.Equal(ny(eh, 3, 11, 9, 30)))

	// DST starts on 2024-03-10; the wall clock open is unchanged
	assert.Equal(t, 9, openAt.Hour())
	assert.Equal(t, 30, openAt.Minute())
}

func TestHolidaysAndEarlyCloses(t *testing.T) {
	eh := USEquityHours()
	eh.Holidays[dateKey(ny(eh, 7, 4, 0, 0))] = struct{}{}
	eh.EarlyCloses[dateKey(ny(eh, 7, 3, 0, 0))] = 13 * time.Hour

	assert.False(t, eh.IsDateOpen(ny(eh, 7, 4, 12, 0)))
	assert.False(t, eh.IsOpen(ny(eh, 7, 3, 13, 30), true))

	closeAt, err := eh.NextMarketClose(ny(eh, 7, 3, 10, 0), false)
	require.NoError(t, err)
	assert.True(t, closeAt.Equal(ny(eh, 7, 3, 13, 0)))
}

func TestAlwaysOpen(t *testing.T) {
	eh := AlwaysOpen(nil)
	assert.True(t, eh.IsOpen(time.Date(2024, 3, 9, 3, 0, 0, 0, time.UTC), false))
	_, err := eh.NextMarketClose(time.Now(), false)
	assert.True(t, errors.Is(err, ErrNoMarketSession))
}

func TestIsOpenDuring(t *testing.T) {
	eh := USEquityHours()
	assert.True(t, eh.IsOpenDuring(ny(eh, 3, 4, 9, 0), ny(eh, 3, 4, 10, 0), false))
	assert.False(t, eh.IsOpenDuring(ny(eh, 3, 4, 16, 0), ny(eh, 3, 4, 17, 0), false))
	assert.True(t, eh.IsOpenDuring(ny(eh, 3, 4, 16, 0), ny(eh, 3, 4, 17, 0), true))
}

func TestApplyFillTracksAveragePrice(t *testing.T) {
	sec := New("SPY", TypeEquity, DefaultSymbolProperties(), nil)

	sec.ApplyFill(decimal.NewFromInt(10), decimal.NewFromInt(100))
	sec.ApplyFill(decimal.NewFromInt(10), decimal.NewFromInt(110))
	h := sec.Holdings()
	assert.True(t, h.Quantity.Equal(decimal.NewFromInt(20)))
	assert.True(t, h.AveragePrice.Equal(decimal.NewFromInt(105)))

	sec.ApplyFill(decimal.NewFromInt(-5), decimal.NewFromInt(120))
	assert.True(t, sec.Holdings().AveragePrice.Equal(decimal.NewFromInt(105)))

	// flip to short resets the average
	sec.ApplyFill(decimal.NewFromInt(-25), decimal.NewFromInt(90))
	h = sec.Holdings()
	assert.True(t, h.Quantity.Equal(decimal.NewFromInt(-10)))
	assert.True(t, h.AveragePrice.Equal(decimal.NewFromInt(90)))
}

func TestManager(t *testing.T) {
	m := NewManager()
	m.Add(New("SPY", TypeEquity, DefaultSymbolProperties(), nil))
	m.Add(New("QQQ", TypeEquity, DefaultSymbolProperties(), nil))

	_, ok := m.Get("SPY")
	assert.True(t, ok)
	m.Remove("SPY")
	_, ok = m.Get("SPY")
	assert.False(t, ok)
	assert.Len(t, m.All(), 1)
}

func TestManualClockNeverGoesBack(t *testing.T) {
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)
	c.Advance(time.Minute)
	c.Set(start)
	assert.True(t, c.Now().Equal(start.Add(time.Minute)))
}

const registryYAML = `
exchanges:
  nyse:
    timezone: America/New_York
    sessions:
      - {kind: market, start: "09:30", end: "16:00"}
    holidays: ["2024-07-04"]
    early_closes: {"2024-07-03": "13:00"}
  crypto:
    always_open: true
securities:
  - symbol: SPY
    exchange: nyse
    primary_exchange: NYSE
    subscriptions: [tick, quotebar]
  - symbol: BTCUSD
    type: crypto
    exchange: crypto
    lot_size: "0.0001"
  - symbol: SPY240315C500
    type: option
    exchange: nyse
    contract_multiplier: "100"
    option: {underlying: SPY, right: Call, strike: "500", expiry: "2024-03-15"}
`

func TestLoadRegistry(t *testing.T) {
	m, err := Load([]byte(registryYAML))
	require.NoError(t, err)

	spy, ok := m.Get("SPY")
	require.True(t, ok)
	assert.Equal(t, "NYSE", spy.PrimaryExchange)
	assert.True(t, spy.Cache.HasSubscription(marketdata.TypeTick))
	assert.False(t, spy.Cache.HasSubscription(marketdata.TypeTradeBar))
	assert.False(t, spy.Exchange.IsDateOpen(time.Date(2024, 7, 4, 12, 0, 0, 0, spy.Exchange.Location)))

	btc, ok := m.Get("BTCUSD")
	require.True(t, ok)
	assert.True(t, btc.Properties.LotSize.Equal(decimal.RequireFromString("0.0001")))
	assert.True(t, btc.Cache.HasSubscription(marketdata.TypeTradeBar))

	opt, ok := m.Get("SPY240315C500")
	require.True(t, ok)
	require.NotNil(t, opt.Option)
	assert.Equal(t, Call, opt.Option.Right)
	assert.True(t, opt.Properties.ContractMultiplier.Equal(decimal.NewFromInt(100)))
}

func TestLoadRegistryRejectsUnknownExchange(t *testing.T) {
	_, err := Load([]byte("securities:\n  - symbol: X\n    exchange: nope\n"))
	assert.Error(t, err)
}
