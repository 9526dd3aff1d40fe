package transaction

import (
	"testing"

	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/Aidin1998/orderexec/internal/trading/securities"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRoundToLot(t *testing.T) {
	cases := []struct {
		qty, lot, want string
	}{
		{"107", "100", "100"},
		{"-107", "100", "-100"},
		{"5", "100", "0"},
		{"1.2345", "0.01", "1.23"},
		{"3", "0", "3"},
	}
	for _, tc := range cases {
		got := roundToLot(dec(tc.qty), dec(tc.lot))
		assert.True(t, got.Equal(dec(tc.want)), "%s lot %s: got %s", tc.qty, tc.lot, got)
	}
}

func TestRoundToLotProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		qty := decimal.NewFromInt(rapid.Int64Range(-100000, 100000).Draw(rt, "qty"))
		lot := decimal.NewFromInt(rapid.Int64Range(1, 1000).Draw(rt, "lot"))

		got := roundToLot(qty, lot)
		if !got.Mod(lot).IsZero() {
			rt.Fatalf("%s is not a multiple of %s", got, lot)
		}
		if got.Abs().GreaterThan(qty.Abs()) {
			rt.Fatalf("rounding grew |%s| to |%s|", qty, got)
		}
		if qty.Sub(got).Abs().GreaterThanOrEqual(lot) {
			rt.Fatalf("%s moved more than one lot from %s", got, qty)
		}
		if !got.IsZero() && got.Sign() != qty.Sign() {
			rt.Fatalf("sign flipped: %s -> %s", qty, got)
		}
	})
}

func TestRoundToTick(t *testing.T) {
	tick := dec("0.05")
	assert.True(t, roundToTick(dec("10.02"), tick).Equal(dec("10")))
	assert.True(t, roundToTick(dec("10.03"), tick).Equal(dec("10.05")))
	// ties go to the even multiple
	assert.True(t, roundToTick(dec("10.025"), tick).Equal(dec("10")))
	assert.True(t, roundToTick(dec("10.075"), tick).Equal(dec("10.1")))
	assert.True(t, roundToTick(dec("10.03"), decimal.Zero).Equal(dec("10.03")))
}

func TestRoundOrderReportsEachAdjustment(t *testing.T) {
	props := securities.DefaultSymbolProperties()
	props.LotSize = dec("10")
	sec := securities.New("SPY", securities.TypeEquity, props, nil)

	req := model.NewSubmitOrderRequest("SPY", dec("25"),
		&model.StopLimitTerms{StopPrice: dec("101.004"), LimitPrice: dec("101.5")},
		model.GoodTilCanceled, "", start)
	order := model.NewOrder(1, req)

	warnings := roundOrder(order, sec)
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "lot size of 10")
	assert.Contains(t, warnings[1], "StopPrice was rounded to 101 from 101.004")
	assert.True(t, order.Quantity.Equal(dec("20")))
	assert.True(t, order.StopPrice().Decimal.Equal(dec("101")))
	assert.True(t, order.LimitPrice().Decimal.Equal(dec("101.5")))
}
