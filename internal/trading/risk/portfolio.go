package risk

import (
	"sync"

	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/Aidin1998/orderexec/internal/trading/securities"
	"github.com/shopspring/decimal"
)

// Portfolio is the cash book plus the holdings kept on each security.
type Portfolio struct {
	AccountCurrency string

	securities *securities.Manager
	cash       map[string]decimal.Decimal // currency -> amount
	mu         sync.RWMutex
}

func NewPortfolio(secs *securities.Manager, accountCurrency string, startingCash decimal.Decimal) *Portfolio {
	if accountCurrency == "" {
		accountCurrency = "USD"
	}
	return &Portfolio{
		AccountCurrency: accountCurrency,
		securities:      secs,
		cash:            map[string]decimal.Decimal{accountCurrency: startingCash},
	}
}

// Cash returns the balance held in the currency.
func (p *Portfolio) Cash(currency string) decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash[currency]
}

// CashBook returns a copy of all balances.
func (p *Portfolio) CashBook() map[string]decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(p.cash))
	for k, v := range p.cash {
		out[k] = v
	}
	return out
}

// SetCash overwrites a balance, used when the venue pushes account state.
func (p *Portfolio) SetCash(currency string, amount decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cash[currency] = amount
}

// ProcessFill should be called after every fill.
func (p *Portfolio) ProcessFill(sec *securities.Security, e *model.OrderEvent) {
	if e.FillQuantity.IsZero() && e.Fee.Amount.IsZero() {
		return
	}
	sec.ApplyFill(e.FillQuantity, e.FillPrice)

	quote := sec.Properties.QuoteCurrency
	cost := e.FillQuantity.Mul(e.FillPrice).Mul(sec.Properties.ContractMultiplier)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.cash[quote] = p.cash[quote].Sub(cost)
	if !e.Fee.Amount.IsZero() {
		currency := e.Fee.Currency
		if currency == "" {
			currency = quote
		}
		p.cash[currency] = p.cash[currency].Sub(e.Fee.Amount)
	}
}

// Holding returns the position in a symbol.
func (p *Portfolio) Holding(symbol string) securities.Holding {
	sec, ok := p.securities.Get(symbol)
	if !ok {
		return securities.Holding{}
	}
	return sec.Holdings()
}

// TotalValue is cash in the account currency plus the marked value of all
// holdings quoted in it.
func (p *Portfolio) TotalValue() decimal.Decimal {
	total := p.Cash(p.AccountCurrency)
	for _, sec := range p.securities.All() {
		if sec.Properties.QuoteCurrency != p.AccountCurrency {
			continue
		}
		h := sec.Holdings()
		total = total.Add(h.Quantity.Mul(sec.Price()).Mul(sec.Properties.ContractMultiplier))
	}
	return total
}
