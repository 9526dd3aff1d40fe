package marketdata

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Cache is the read side the fill models use. One cache exists per security.
type Cache interface {
	// HasSubscription reports whether the security is subscribed to the data type.
	HasSubscription(t DataType) bool
	// Ticks returns the ticks received since the last Reset, oldest first.
	Ticks() []Tick
	LastTick() (Tick, bool)
	QuoteBar() (QuoteBar, bool)
	TradeBar() (TradeBar, bool)
	// LastData is the most recently stored data point of any type.
	LastData() Data
	Price() decimal.Decimal
	Open() decimal.Decimal
	High() decimal.Decimal
	Low() decimal.Decimal
	Close() decimal.Decimal
}

// MemoryCache is a concurrency-safe in-memory Cache.
type MemoryCache struct {
	mu         sync.RWMutex
	subscribed map[DataType]bool
	ticks      []Tick
	maxTicks   int
	quoteBar   *QuoteBar
	tradeBar   *TradeBar
	last       Data
	price      decimal.Decimal
	open       decimal.Decimal
	high       decimal.Decimal
	low        decimal.Decimal
	close      decimal.Decimal
}

// NewMemoryCache creates a cache subscribed to the given data types.
func NewMemoryCache(types ...DataType) *MemoryCache {
	c := &MemoryCache{subscribed: make(map[DataType]bool), maxTicks: 1000}
	for _, t := range types {
		c.subscribed[t] = true
	}
	return c
}

// Subscribe adds a data type subscription.
func (c *MemoryCache) Subscribe(t DataType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed[t] = true
}

func (c *MemoryCache) HasSubscription(t DataType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscribed[t]
}

// AddTick stores a tick and refreshes the summary prices.
func (c *MemoryCache) AddTick(t Tick) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = append(c.ticks, t)
	if len(c.ticks) > c.maxTicks {
		c.ticks = c.ticks[len(c.ticks)-c.maxTicks:]
	}
	stored := c.ticks[len(c.ticks)-1]
	c.last = &stored
	v := t.Value()
	if !v.IsPositive() {
		return
	}
	c.price = v
	c.close = v
	if c.open.IsZero() {
		c.open = v
	}
	if v.GreaterThan(c.high) {
		c.high = v
	}
	if c.low.IsZero() || v.LessThan(c.low) {
		c.low = v
	}
}

// SetTradeBar stores the latest trade bar.
func (c *MemoryCache) SetTradeBar(b TradeBar) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tradeBar = &b
	c.last = &b
	c.setBar(b.Bar)
}

// SetQuoteBar stores the latest quote bar. Trade bar prices take precedence
// for the summary fields when both are subscribed.
func (c *MemoryCache) SetQuoteBar(b QuoteBar) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quoteBar = &b
	c.last = &b
	if c.tradeBar == nil || !c.subscribed[TypeTradeBar] {
		c.setBar(b.Mid())
	}
}

func (c *MemoryCache) setBar(b Bar) {
	c.open, c.high, c.low, c.close = b.Open, b.High, b.Low, b.Close
	c.price = b.Close
}

// Reset clears the tick list; called at the start of each time slice.
func (c *MemoryCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = nil
}

func (c *MemoryCache) Ticks() []Tick {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Tick(nil), c.ticks...)
}

func (c *MemoryCache) LastTick() (Tick, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.ticks) == 0 {
		return Tick{}, false
	}
	return c.ticks[len(c.ticks)-1], true
}

func (c *MemoryCache) QuoteBar() (QuoteBar, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.quoteBar == nil {
		return QuoteBar{}, false
	}
	return *c.quoteBar, true
}

func (c *MemoryCache) TradeBar() (TradeBar, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tradeBar == nil {
		return TradeBar{}, false
	}
	return *c.tradeBar, true
}

func (c *MemoryCache) LastData() Data {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

func (c *MemoryCache) Price() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.price
}

func (c *MemoryCache) Open() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

func (c *MemoryCache) High() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.high
}

func (c *MemoryCache) Low() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.low
}

func (c *MemoryCache) Close() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.close
}
