package risk

import (
	"sync"

	"github.com/shopspring/decimal"
)

// ShortableProvider reports how many units of a symbol may be sold short.
// limited is false when the venue imposes no limit.
type ShortableProvider interface {
	ShortableQuantity(symbol string) (qty decimal.Decimal, limited bool)
}

// NullShortableProvider allows unlimited shorting.
type NullShortableProvider struct{}

func (NullShortableProvider) ShortableQuantity(string) (decimal.Decimal, bool) {
	return decimal.Zero, false
}

// LocalShortableProvider holds per-symbol shortable limits set by the operator.
// Symbols without a limit are unlimited.
type LocalShortableProvider struct {
	limits map[string]decimal.Decimal
	mu     sync.RWMutex
}

func NewLocalShortableProvider() *LocalShortableProvider {
	return &LocalShortableProvider{
		limits: make(map[string]decimal.Decimal),
	}
}

func (p *LocalShortableProvider) SetShortableQuantity(symbol string, qty decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limits[symbol] = qty
}

func (p *LocalShortableProvider) RemoveLimit(symbol string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.limits, symbol)
}

func (p *LocalShortableProvider) ShortableQuantity(symbol string) (decimal.Decimal, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	qty, ok := p.limits[symbol]
	return qty, ok
}

// Shortable reports whether selling quantity more units short keeps the
// position, including the remaining quantity of other open orders, within the
// shortable limit.
func Shortable(provider ShortableProvider, symbol string, quantity, holding, openOrders decimal.Decimal) bool {
	if provider == nil {
		return true
	}
	limit, limited := provider.ShortableQuantity(symbol)
	if !limited {
		return true
	}
	floor := limit.Neg()
	current := holding.Add(openOrders)
	// nothing left to short even for a zero quantity
	if current.LessThanOrEqual(floor) {
		return false
	}
	return current.Sub(quantity.Abs()).GreaterThanOrEqual(floor)
}
