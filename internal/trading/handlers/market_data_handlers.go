package handlers

import (
	"net/http"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/marketdata"
	"github.com/Aidin1998/orderexec/internal/trading/securities"
	"github.com/Aidin1998/orderexec/internal/trading/transaction"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// cacheWriter is the write side of a security's market data cache.
type cacheWriter interface {
	AddTick(t marketdata.Tick)
	SetTradeBar(b marketdata.TradeBar)
	SetQuoteBar(b marketdata.QuoteBar)
	Reset()
}

var _ cacheWriter = (*marketdata.MemoryCache)(nil)

// MarketDataHandler feeds prices into the security caches the fill models
// read, and reports the cached prices back.
type MarketDataHandler struct {
	secs      *securities.Manager
	clock     *securities.ManualClock
	processor *transaction.Handler
	logger    *zap.Logger
}

// NewMarketDataHandler creates a new market data handler. clock may be nil
// when the process runs on the wall clock; processor may be nil when the
// caller drives synchronous processing itself.
func NewMarketDataHandler(secs *securities.Manager, clock *securities.ManualClock, processor *transaction.Handler, logger *zap.Logger) *MarketDataHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarketDataHandler{
		secs:      secs,
		clock:     clock,
		processor: processor,
		logger:    logger.With(zap.String("component", "marketdata_api")),
	}
}

// SliceRequest is the market data for one instant. Ticks of every symbol in
// the slice replace the ones from the previous slice.
type SliceRequest struct {
	Time      time.Time             `json:"time" binding:"required"`
	TradeBars []marketdata.TradeBar `json:"trade_bars,omitempty"`
	QuoteBars []marketdata.QuoteBar `json:"quote_bars,omitempty"`
	Ticks     []marketdata.Tick     `json:"ticks,omitempty"`
}

// SliceResponse reports what was stored.
type SliceResponse struct {
	Time     time.Time `json:"time"`
	Stored   int       `json:"stored"`
	Unknown  []string  `json:"unknown_symbols,omitempty"`
	Symbols  []string  `json:"symbols"`
	Advanced bool      `json:"clock_advanced"`
}

// PriceResponse represents the cached prices of one security
type PriceResponse struct {
	Symbol   string          `json:"symbol" example:"SPY"`
	Price    decimal.Decimal `json:"price" example:"512.34"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Holding  string          `json:"holding"`
	Tradable bool            `json:"tradable"`
	Time     *time.Time      `json:"time,omitempty"`
}

// PostSlice stores a slice of market data
// @Summary Ingest market data
// @Description Store trade bars, quote bars and ticks, advance the simulation clock and run a fill scan
// @Tags Market Data
// @Accept json
// @Produce json
// @Param request body SliceRequest true "Market data slice"
// @Success 200 {object} SliceResponse "Slice stored"
// @Failure 400 {object} ErrorResponse "Invalid request format"
// @Router /v1/marketdata/slices [post]
func (h *MarketDataHandler) PostSlice(c *gin.Context) {
	var req SliceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid market data slice", zap.Error(err))
		writeError(c, http.StatusBadRequest, "invalid_request", "Invalid request format", err.Error())
		return
	}

	resp := SliceResponse{Time: req.Time.UTC(), Symbols: []string{}}
	seen := make(map[string]bool)
	reset := make(map[string]bool)
	cacheFor := func(symbol string) cacheWriter {
		sec, ok := h.secs.Get(symbol)
		if !ok {
			if !seen[symbol] {
				resp.Unknown = append(resp.Unknown, symbol)
			}
			seen[symbol] = true
			return nil
		}
		w, ok := sec.Cache.(cacheWriter)
		if !ok {
			return nil
		}
		if !seen[symbol] {
			resp.Symbols = append(resp.Symbols, symbol)
		}
		seen[symbol] = true
		return w
	}

	for _, b := range req.TradeBars {
		if w := cacheFor(b.Symbol); w != nil {
			w.SetTradeBar(b)
			resp.Stored++
		}
	}
	for _, b := range req.QuoteBars {
		if w := cacheFor(b.Symbol); w != nil {
			w.SetQuoteBar(b)
			resp.Stored++
		}
	}
	for _, t := range req.Ticks {
		w := cacheFor(t.Symbol)
		if w == nil {
			continue
		}
		if !reset[t.Symbol] {
			w.Reset()
			reset[t.Symbol] = true
		}
		w.AddTick(t)
		resp.Stored++
	}

	if h.clock != nil {
		before := h.clock.Now()
		h.clock.Set(req.Time)
		resp.Advanced = h.clock.Now().After(before)
	}
	if len(resp.Unknown) > 0 {
		h.logger.Warn("Market data for unknown symbols ignored", zap.Strings("symbols", resp.Unknown))
	}
	if h.processor != nil {
		h.processor.ProcessSynchronousEvents(c.Request.Context())
	}

	c.JSON(http.StatusOK, resp)
}

// GetPrice returns the cached prices of a security
// @Summary Get cached prices
// @Tags Market Data
// @Produce json
// @Param symbol path string true "Symbol"
// @Success 200 {object} PriceResponse "Cached prices"
// @Failure 404 {object} ErrorResponse "Unknown symbol"
// @Router /v1/marketdata/{symbol} [get]
func (h *MarketDataHandler) GetPrice(c *gin.Context) {
	symbol := c.Param("symbol")
	sec, ok := h.secs.Get(symbol)
	if !ok {
		writeError(c, http.StatusNotFound, "symbol_not_found", "Unknown symbol", symbol)
		return
	}
	cache := sec.Cache
	resp := PriceResponse{
		Symbol:   sec.Symbol,
		Price:    cache.Price(),
		Open:     cache.Open(),
		High:     cache.High(),
		Low:      cache.Low(),
		Close:    cache.Close(),
		Holding:  sec.Holdings().Quantity.String(),
		Tradable: sec.IsTradable(),
	}
	if last := cache.LastData(); last != nil {
		end := last.End()
		resp.Time = &end
	}
	c.JSON(http.StatusOK, resp)
}
