// Package fills decides whether a simulated order fills against the latest
// market data and at what price.
package fills

import (
	"errors"
	"fmt"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/marketdata"
	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/Aidin1998/orderexec/internal/trading/securities"
	"github.com/shopspring/decimal"
)

// ErrNoMarketData means no subscribed data type produced a price. It points
// at a subscription misconfiguration and is not retried.
var ErrNoMarketData = errors.New("no market data to fill order")

// ErrUnsupportedOrderType is returned for variants the fill model does not price.
var ErrUnsupportedOrderType = errors.New("unsupported order type for fill model")

// DefaultStalePriceTimeSpan is the age after which a price is considered stale.
const DefaultStalePriceTimeSpan = time.Hour

// DefaultAuctionWait is how long market-on-open/close orders wait for the
// official auction print before falling back to the last price.
const DefaultAuctionWait = time.Minute

// Parameters is everything one fill attempt reads.
type Parameters struct {
	Security *securities.Security
	// Order is the simulated venue's copy; the trigger sub-state of
	// two-phase orders is advanced on it in place.
	Order              *model.Order
	Now                time.Time
	StalePriceTimeSpan time.Duration
	Slippage           SlippageModel
}

func (p Parameters) slippage() decimal.Decimal {
	if p.Slippage == nil {
		return decimal.Zero
	}
	return p.Slippage.Approximation(p.Security, p.Order)
}

func (p Parameters) staleSpan() time.Duration {
	if p.StalePriceTimeSpan <= 0 {
		return DefaultStalePriceTimeSpan
	}
	return p.StalePriceTimeSpan
}

// Model fills orders. Returned events with an unchanged status and zero fill
// quantity mean "no fill yet".
type Model interface {
	Fill(p Parameters) ([]*model.OrderEvent, error)
}

// FillModel is the default price-bar/quote fill model.
type FillModel struct {
	AuctionWait time.Duration
}

// NewFillModel returns a fill model with the default auction wait.
func NewFillModel() *FillModel {
	return &FillModel{AuctionWait: DefaultAuctionWait}
}

// Fill dispatches on the order terms.
func (m *FillModel) Fill(p Parameters) ([]*model.OrderEvent, error) {
	var (
		fill *model.OrderEvent
		err  error
	)
	switch terms := p.Order.Terms.(type) {
	case *model.MarketTerms, *model.LiquidationTerms:
		fill, err = m.MarketFill(p)
	case *model.LimitTerms:
		fill = m.LimitFill(p, terms)
	case *model.StopMarketTerms:
		fill = m.StopMarketFill(p, terms)
	case *model.StopLimitTerms:
		fill = m.StopLimitFill(p, terms)
	case *model.LimitIfTouchedTerms:
		fill, err = m.LimitIfTouchedFill(p, terms)
	case *model.MarketOnOpenTerms:
		fill, err = m.MarketOnOpenFill(p)
	case *model.MarketOnCloseTerms:
		fill, err = m.MarketOnCloseFill(p)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOrderType, p.Order.Type())
	}
	if err != nil {
		return nil, err
	}
	return []*model.OrderEvent{fill}, nil
}

func newFill(p Parameters) *model.OrderEvent {
	return model.NewOrderEvent(p.Order, p.Now, model.OrderFee{Currency: p.Security.Properties.QuoteCurrency}, "")
}

func setFilled(fill *model.OrderEvent, order *model.Order, price decimal.Decimal) {
	fill.Status = model.OrderStatusFilled
	fill.FillPrice = price
	fill.FillQuantity = order.Quantity
}

// MarketFill fills the full quantity at the best-effort quote plus slippage.
func (m *FillModel) MarketFill(p Parameters) (*model.OrderEvent, error) {
	order, sec := p.Order, p.Security
	fill := newFill(p)
	if order.Status == model.OrderStatusCanceled {
		return fill, nil
	}
	if !isExchangeOpen(sec, p.Now, false) {
		return fill, nil
	}

	slip := p.slippage()
	var (
		price decimal.Decimal
		msg   string
		err   error
	)
	switch order.Direction() {
	case model.DirectionBuy:
		price, msg, err = bestEffortPrice(sec, p.Now, p.staleSpan(), sideAsk)
		price = price.Add(slip)
	case model.DirectionSell:
		price, msg, err = bestEffortPrice(sec, p.Now, p.staleSpan(), sideBid)
		price = price.Sub(slip)
	default:
		return fill, nil
	}
	if err != nil {
		return nil, err
	}

	fill.AppendMessage(msg)
	setFilled(fill, order, price)
	return fill, nil
}

// LimitFill fills when the opposite extreme of the bar crosses the limit, at
// a price never better than the limit for the trader.
func (m *FillModel) LimitFill(p Parameters, terms *model.LimitTerms) *model.OrderEvent {
	order, sec := p.Order, p.Security
	fill := newFill(p)
	if order.Status == model.OrderStatusCanceled {
		return fill
	}
	if !isExchangeOpen(sec, p.Now, sec.ExtendedHours) {
		return fill
	}

	prices := GetPrices(sec, order.Direction())
	if !prices.EndTime.After(order.Time) {
		return fill
	}

	switch order.Direction() {
	case model.DirectionBuy:
		if prices.Low.LessThan(terms.LimitPrice) {
			setFilled(fill, order, decimal.Min(prices.High, terms.LimitPrice))
		}
	case model.DirectionSell:
		if prices.High.GreaterThan(terms.LimitPrice) {
			setFilled(fill, order, decimal.Max(prices.Low, terms.LimitPrice))
		}
	}
	return fill
}

// StopMarketFill fills once the stop is crossed, at the worse of the stop
// and the slipped current price.
func (m *FillModel) StopMarketFill(p Parameters, terms *model.StopMarketTerms) *model.OrderEvent {
	order, sec := p.Order, p.Security
	fill := newFill(p)
	if order.Status == model.OrderStatusCanceled {
		return fill
	}
	if !isExchangeOpen(sec, p.Now, false) {
		return fill
	}

	prices := GetPrices(sec, order.Direction())
	if !prices.EndTime.After(order.Time) {
		return fill
	}

	slip := p.slippage()
	switch order.Direction() {
	case model.DirectionSell:
		if prices.Low.LessThan(terms.StopPrice) {
			setFilled(fill, order, decimal.Min(terms.StopPrice, prices.Current.Sub(slip)))
		}
	case model.DirectionBuy:
		if prices.High.GreaterThan(terms.StopPrice) {
			setFilled(fill, order, decimal.Max(terms.StopPrice, prices.Current.Add(slip)))
		}
	}
	return fill
}

// StopLimitFill arms once the stop is crossed and then fills as a limit
// using the current price, since the bar extreme may predate the trigger.
func (m *FillModel) StopLimitFill(p Parameters, terms *model.StopLimitTerms) *model.OrderEvent {
	order, sec := p.Order, p.Security
	fill := newFill(p)
	if order.Status == model.OrderStatusCanceled {
		return fill
	}
	if !isExchangeOpen(sec, p.Now, false) {
		return fill
	}

	prices := GetPrices(sec, order.Direction())
	if !prices.EndTime.After(order.Time) {
		return fill
	}

	switch order.Direction() {
	case model.DirectionBuy:
		if terms.Trigger == model.Armed || prices.High.GreaterThan(terms.StopPrice) {
			terms.Trigger = model.Armed
			if prices.Current.LessThan(terms.LimitPrice) {
				setFilled(fill, order, decimal.Min(prices.High, terms.LimitPrice))
			}
		}
	case model.DirectionSell:
		if terms.Trigger == model.Armed || prices.Low.LessThan(terms.StopPrice) {
			terms.Trigger = model.Armed
			if prices.Current.GreaterThan(terms.LimitPrice) {
				setFilled(fill, order, decimal.Max(prices.Low, terms.LimitPrice))
			}
		}
	}
	return fill
}

// LimitIfTouchedFill arms when trade prices touch the trigger and then fills
// at the limit once the quote satisfies it.
func (m *FillModel) LimitIfTouchedFill(p Parameters, terms *model.LimitIfTouchedTerms) (*model.OrderEvent, error) {
	order, sec := p.Order, p.Security
	fill := newFill(p)
	if order.Status == model.OrderStatusCanceled {
		return fill, nil
	}
	if !isExchangeOpen(sec, p.Now, sec.ExtendedHours) {
		return fill, nil
	}

	var (
		tradeHigh, tradeLow decimal.Decimal
		end                 time.Time
	)
	cache := sec.Cache
	if cache.HasSubscription(marketdata.TypeTick) {
		if trade, ok := lastTrade(cache.Ticks()); ok {
			tradeHigh, tradeLow, end = trade.Price, trade.Price, trade.Time
		}
	} else if cache.HasSubscription(marketdata.TypeTradeBar) {
		if tb, ok := cache.TradeBar(); ok {
			tradeHigh, tradeLow, end = tb.High, tb.Low, tb.EndTime
		}
	}
	if !end.After(order.Time) {
		return fill, nil
	}

	switch order.Direction() {
	case model.DirectionSell:
		if terms.Trigger == model.Armed || tradeHigh.GreaterThanOrEqual(terms.TriggerPrice) {
			terms.Trigger = model.Armed
			bid, msg, err := bestEffortPrice(sec, p.Now, p.staleSpan(), sideBid)
			if err != nil {
				return nil, err
			}
			if bid.GreaterThanOrEqual(terms.LimitPrice) {
				setFilled(fill, order, terms.LimitPrice)
				fill.AppendMessage(msg)
			}
		}
	case model.DirectionBuy:
		if terms.Trigger == model.Armed || tradeLow.LessThanOrEqual(terms.TriggerPrice) {
			terms.Trigger = model.Armed
			ask, msg, err := bestEffortPrice(sec, p.Now, p.staleSpan(), sideAsk)
			if err != nil {
				return nil, err
			}
			if ask.LessThanOrEqual(terms.LimitPrice) {
				setFilled(fill, order, terms.LimitPrice)
				fill.AppendMessage(msg)
			}
		}
	}
	return fill, nil
}

// isExchangeOpen checks the calendar at now; when closed it still allows a
// fill if the last bar of the same date straddles an open period.
func isExchangeOpen(sec *securities.Security, now time.Time, extended bool) bool {
	if sec.Exchange.IsOpen(now, extended) {
		return true
	}
	last := sec.Cache.LastData()
	if last == nil {
		return false
	}
	if !sameDate(sec.LocalTime(now), sec.LocalTime(last.End())) {
		return false
	}
	return sec.Exchange.IsOpenDuring(last.Start(), last.End(), extended)
}

func lastTrade(ticks []marketdata.Tick) (marketdata.Tick, bool) {
	for i := len(ticks) - 1; i >= 0; i-- {
		if ticks[i].Type == marketdata.TickTrade && ticks[i].Price.IsPositive() {
			return ticks[i], true
		}
	}
	return marketdata.Tick{}, false
}
