// Package risk holds the portfolio and the buying-power and shortable
// checks the transaction handler consults before placing orders.
package risk

import (
	"fmt"

	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/Aidin1998/orderexec/internal/trading/securities"
	"github.com/shopspring/decimal"
)

// BuyingPowerModel decides whether the portfolio can carry an order.
// reason is set when sufficient is false.
type BuyingPowerModel interface {
	HasSufficientBuyingPower(p *Portfolio, sec *securities.Security, order *model.Order) (sufficient bool, reason string)
}

// NullBuyingPowerModel accepts every order.
type NullBuyingPowerModel struct{}

func (NullBuyingPowerModel) HasSufficientBuyingPower(*Portfolio, *securities.Security, *model.Order) (bool, string) {
	return true, ""
}

// CashBuyingPowerModel requires the full order value in cash for any order
// that opens or increases a position. Orders that only reduce a position
// always pass. Leverage scales the available cash.
type CashBuyingPowerModel struct {
	Leverage decimal.Decimal
}

func NewCashBuyingPowerModel() *CashBuyingPowerModel {
	return &CashBuyingPowerModel{Leverage: decimal.NewFromInt(1)}
}

func (m *CashBuyingPowerModel) HasSufficientBuyingPower(p *Portfolio, sec *securities.Security, order *model.Order) (bool, string) {
	holding := sec.Holdings().Quantity
	if reducesPosition(holding, order.Quantity) {
		return true, ""
	}

	price := orderPrice(sec, order)
	if !price.IsPositive() {
		return false, fmt.Sprintf("Order Error: id: [%d], no price available for %s to compute the order value.", order.ID, sec.Symbol)
	}

	// only the part beyond the closing quantity opens new exposure
	opening := order.Quantity.Abs()
	if !holding.IsZero() && holding.Sign() != order.Quantity.Sign() {
		opening = opening.Sub(holding.Abs())
	}
	required := opening.Mul(price).Mul(sec.Properties.ContractMultiplier)

	leverage := m.Leverage
	if !leverage.IsPositive() {
		leverage = decimal.NewFromInt(1)
	}
	available := p.Cash(sec.Properties.QuoteCurrency).Mul(leverage)
	if required.GreaterThan(available) {
		return false, fmt.Sprintf("Order Error: id: [%d], Insufficient buying power to complete order (Value:%s), Reason: Initial Margin: %s, Free Margin: %s.",
			order.ID, order.Quantity.Mul(price).StringFixed(2), required.StringFixed(2), available.StringFixed(2))
	}
	return true, ""
}

func reducesPosition(holding, quantity decimal.Decimal) bool {
	if holding.IsZero() || holding.Sign() == quantity.Sign() {
		return false
	}
	return quantity.Abs().LessThanOrEqual(holding.Abs())
}

// orderPrice is the price the order is expected to trade at.
func orderPrice(sec *securities.Security, order *model.Order) decimal.Decimal {
	if lp := order.LimitPrice(); lp.Valid {
		return lp.Decimal
	}
	if sp := order.StopPrice(); sp.Valid {
		return sp.Decimal
	}
	return sec.Price()
}
