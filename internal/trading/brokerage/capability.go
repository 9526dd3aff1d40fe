package brokerage

import (
	"fmt"

	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/Aidin1998/orderexec/internal/trading/securities"
)

// CapabilityModel says which orders a venue accepts. A refusal carries a
// message for the order event.
type CapabilityModel interface {
	CanSubmitOrder(sec *securities.Security, order *model.Order) (bool, string)
	CanUpdateOrder(sec *securities.Security, order *model.Order, req *model.UpdateOrderRequest) (bool, string)
	CanExecuteOrder(sec *securities.Security, order *model.Order) bool
}

// DefaultCapabilityModel accepts the common order types and rejects the
// combinations a typical venue refuses.
type DefaultCapabilityModel struct{}

func (DefaultCapabilityModel) CanSubmitOrder(sec *securities.Security, order *model.Order) (bool, string) {
	switch order.Type() {
	case model.OrderTypeMarketOnOpen, model.OrderTypeMarketOnClose:
		if sec.Type == securities.TypeCrypto || sec.Type == securities.TypeForex {
			return false, fmt.Sprintf("%s orders are not supported for %s securities.", order.Type(), sec.Type)
		}
	case model.OrderTypeOptionExercise:
		if sec.Type != securities.TypeOption {
			return false, fmt.Sprintf("Option exercise orders are not supported for %s securities.", sec.Type)
		}
	}
	if order.TimeInForce.Kind == model.TimeInForceGTD && !order.TimeInForce.Expiry.After(order.Time) {
		return false, "The GoodTilDate expiry must be after the order time."
	}
	return true, ""
}

func (DefaultCapabilityModel) CanUpdateOrder(_ *securities.Security, order *model.Order, req *model.UpdateOrderRequest) (bool, string) {
	switch order.Type() {
	case model.OrderTypeMarket, model.OrderTypeMarketOnOpen, model.OrderTypeMarketOnClose,
		model.OrderTypeOptionExercise, model.OrderTypeLiquidation:
		if req.Quantity.Valid || req.LimitPrice.Valid || req.StopPrice.Valid || req.TriggerPrice.Valid {
			return false, fmt.Sprintf("%s orders cannot be updated.", order.Type())
		}
	}
	return true, ""
}

func (DefaultCapabilityModel) CanExecuteOrder(*securities.Security, *model.Order) bool {
	return true
}
