package fills

import (
	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/Aidin1998/orderexec/internal/trading/securities"
	"github.com/shopspring/decimal"
)

// SlippageModel approximates the adverse price move of a fill.
type SlippageModel interface {
	Approximation(sec *securities.Security, order *model.Order) decimal.Decimal
}

// NoSlippage never moves the price.
type NoSlippage struct{}

func (NoSlippage) Approximation(*securities.Security, *model.Order) decimal.Decimal {
	return decimal.Zero
}

// ConstantSlippage moves the price by a fixed fraction of the security price.
type ConstantSlippage struct {
	Percent decimal.Decimal
}

func (m ConstantSlippage) Approximation(sec *securities.Security, _ *model.Order) decimal.Decimal {
	return sec.Price().Mul(m.Percent)
}

// FeeModel prices the fee of a fill.
type FeeModel interface {
	OrderFee(sec *securities.Security, order *model.Order, fill *model.OrderEvent) model.OrderFee
}

// NoFee charges nothing.
type NoFee struct{}

func (NoFee) OrderFee(sec *securities.Security, _ *model.Order, _ *model.OrderEvent) model.OrderFee {
	return model.OrderFee{Amount: decimal.Zero, Currency: sec.Properties.QuoteCurrency}
}

// ConstantFee charges a flat amount per order fill.
type ConstantFee struct {
	Amount   decimal.Decimal
	Currency string
}

func (m ConstantFee) OrderFee(sec *securities.Security, _ *model.Order, _ *model.OrderEvent) model.OrderFee {
	currency := m.Currency
	if currency == "" {
		currency = sec.Properties.QuoteCurrency
	}
	return model.OrderFee{Amount: m.Amount, Currency: currency}
}

// PerUnitFee charges per unit filled with an optional minimum.
type PerUnitFee struct {
	PerUnit  decimal.Decimal
	Minimum  decimal.Decimal
	Currency string
}

func (m PerUnitFee) OrderFee(sec *securities.Security, _ *model.Order, fill *model.OrderEvent) model.OrderFee {
	currency := m.Currency
	if currency == "" {
		currency = sec.Properties.QuoteCurrency
	}
	amount := fill.AbsoluteFillQuantity().Mul(m.PerUnit)
	if amount.LessThan(m.Minimum) {
		amount = m.Minimum
	}
	return model.OrderFee{Amount: amount, Currency: currency}
}
