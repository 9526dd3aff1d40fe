package risk

import (
	"testing"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/marketdata"
	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/Aidin1998/orderexec/internal/trading/securities"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func setup(cash string, price string) (*Portfolio, *securities.Security) {
	mgr := securities.NewManager()
	sec := securities.New("SPY", securities.TypeEquity, securities.DefaultSymbolProperties(), nil)
	now := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	p := dec(price)
	sec.Cache.(*marketdata.MemoryCache).SetTradeBar(marketdata.TradeBar{
		Symbol: "SPY", Time: now, EndTime: now.Add(time.Minute),
		Bar: marketdata.Bar{Open: p, High: p, Low: p, Close: p},
	})
	mgr.Add(sec)
	return NewPortfolio(mgr, "USD", dec(cash)), sec
}

func order(qty string, terms model.Terms) *model.Order {
	req := model.NewSubmitOrderRequest("SPY", dec(qty), terms, model.GoodTilCanceled, "", time.Now())
	return model.NewOrder(1, req)
}

func TestCashBuyingPower(t *testing.T) {
	p, sec := setup("1000", "100")
	m := NewCashBuyingPowerModel()

	ok, _ := m.HasSufficientBuyingPower(p, sec, order("10", &model.MarketTerms{}))
	assert.True(t, ok)

	ok, reason := m.HasSufficientBuyingPower(p, sec, order("11", &model.MarketTerms{}))
	assert.False(t, ok)
	assert.Contains(t, reason, "Insufficient buying power")

	// limit price below market makes it affordable
	ok, _ = m.HasSufficientBuyingPower(p, sec, order("11", &model.LimitTerms{LimitPrice: dec("90")}))
	assert.True(t, ok)
}

func TestCashBuyingPowerReducingOrdersAlwaysPass(t *testing.T) {
	p, sec := setup("0", "100")
	sec.SetHoldings(securities.Holding{Quantity: dec("50"), AveragePrice: dec("90")})
	m := NewCashBuyingPowerModel()

	ok, _ := m.HasSufficientBuyingPower(p, sec, order("-50", &model.MarketTerms{}))
	assert.True(t, ok)

	// flipping to short needs cash for the opening part
	ok, _ = m.HasSufficientBuyingPower(p, sec, order("-60", &model.MarketTerms{}))
	assert.False(t, ok)
}

func TestPortfolioProcessFill(t *testing.T) {
	p, sec := setup("10000", "100")
	p.ProcessFill(sec, &model.OrderEvent{
		FillQuantity: dec("10"), FillPrice: dec("100"),
		Fee: model.OrderFee{Amount: dec("1"), Currency: "USD"},
	})

	assert.True(t, p.Cash("USD").Equal(dec("8999")))
	assert.True(t, p.Holding("SPY").Quantity.Equal(dec("10")))
	assert.True(t, p.TotalValue().Equal(dec("9999")))

	p.SetCash("EUR", dec("5"))
	assert.Len(t, p.CashBook(), 2)
}

func TestShortable(t *testing.T) {
	provider := NewLocalShortableProvider()
	assert.True(t, Shortable(provider, "SPY", dec("-1000"), decimal.Zero, decimal.Zero))

	provider.SetShortableQuantity("SPY", dec("100"))
	assert.True(t, Shortable(provider, "SPY", dec("-100"), decimal.Zero, decimal.Zero))
	assert.False(t, Shortable(provider, "SPY", dec("-101"), decimal.Zero, decimal.Zero))
	// open sell orders count against the limit
	assert.False(t, Shortable(provider, "SPY", dec("-60"), decimal.Zero, dec("-50")))
	// already at the limit
	assert.False(t, Shortable(provider, "SPY", decimal.Zero, dec("-100"), decimal.Zero))

	provider.RemoveLimit("SPY")
	assert.True(t, Shortable(provider, "SPY", dec("-101"), decimal.Zero, decimal.Zero))
	assert.True(t, Shortable(NullShortableProvider{}, "SPY", dec("-1"), decimal.Zero, decimal.Zero))
}
