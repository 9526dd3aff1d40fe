package transaction

import (
	"fmt"

	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/Aidin1998/orderexec/internal/trading/securities"
	"github.com/shopspring/decimal"
)

// roundToLot truncates a quantity toward zero to a multiple of lot.
func roundToLot(quantity, lot decimal.Decimal) decimal.Decimal {
	if !lot.IsPositive() {
		return quantity
	}
	return quantity.Sub(quantity.Mod(lot))
}

// roundToTick rounds a price to the nearest multiple of tick, ties to even.
func roundToTick(price, tick decimal.Decimal) decimal.Decimal {
	if !tick.IsPositive() {
		return price
	}
	return price.Div(tick).RoundBank(0).Mul(tick)
}

func lotSizeMessage(lot decimal.Decimal) string {
	return fmt.Sprintf("Warning: Due to brokerage limitations, orders will be rounded to the nearest lot size of %s", lot)
}

// roundOrder applies lot and tick rounding to the order in place and returns
// the warnings to attach to its next event.
func roundOrder(order *model.Order, sec *securities.Security) []string {
	var warnings []string
	props := sec.Properties

	rounded := roundToLot(order.Quantity, props.LotSize)
	if !rounded.Equal(order.Quantity) {
		warnings = append(warnings, lotSizeMessage(props.LotSize))
		order.Quantity = rounded
	}

	tick := props.MinimumPriceVariation
	roundField := func(name string, p *decimal.Decimal) {
		r := roundToTick(*p, tick)
		if !r.Equal(*p) {
			warnings = append(warnings, fmt.Sprintf(
				"Warning: To meet brokerage precision requirements, order %s was rounded to %s from %s",
				name, r, *p))
			*p = r
		}
	}
	switch t := order.Terms.(type) {
	case *model.LimitTerms:
		roundField("LimitPrice", &t.LimitPrice)
	case *model.StopMarketTerms:
		roundField("StopPrice", &t.StopPrice)
	case *model.StopLimitTerms:
		roundField("StopPrice", &t.StopPrice)
		roundField("LimitPrice", &t.LimitPrice)
	case *model.LimitIfTouchedTerms:
		roundField("TriggerPrice", &t.TriggerPrice)
		roundField("LimitPrice", &t.LimitPrice)
	}
	return warnings
}
