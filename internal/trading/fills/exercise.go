package fills

import (
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/Aidin1998/orderexec/internal/trading/securities"
	"github.com/shopspring/decimal"
)

const exerciseMessage = "Option Exercise/Assignment/Expiry"

// ExerciseModel produces the events of an option exercise order.
type ExerciseModel interface {
	Exercise(option, underlying *securities.Security, order *model.Order, now time.Time) []*model.OrderEvent
}

// DefaultExerciseModel settles physically: the option position is closed at
// zero and, when in the money, the underlying is delivered at the strike.
type DefaultExerciseModel struct{}

// InTheMoney reports whether the option would be auto-exercised at price.
func InTheMoney(contract *securities.OptionContract, price decimal.Decimal) bool {
	if contract == nil {
		return false
	}
	if contract.Right == securities.Call {
		return price.GreaterThan(contract.Strike)
	}
	return price.LessThan(contract.Strike)
}

// ExerciseQuantity converts an exercise order quantity into the underlying
// quantity delivered. Closing a long call (negative quantity) buys the underlying.
func ExerciseQuantity(option *securities.Security, orderQuantity decimal.Decimal) decimal.Decimal {
	q := orderQuantity.Neg().Mul(option.Properties.ContractMultiplier)
	if option.Option != nil && option.Option.Right == securities.Put {
		q = q.Neg()
	}
	return q
}

func (DefaultExerciseModel) Exercise(option, underlying *securities.Security, order *model.Order, now time.Time) []*model.OrderEvent {
	itm := false
	if underlying != nil {
		itm = InTheMoney(option.Option, underlying.Price())
	}
	assignment := itm && order.Quantity.IsPositive()

	optionEvent := model.NewOrderEvent(order, now, model.OrderFee{Currency: option.Properties.QuoteCurrency}, exerciseMessage)
	optionEvent.Status = model.OrderStatusFilled
	optionEvent.FillPrice = decimal.Zero
	optionEvent.FillQuantity = order.Quantity
	optionEvent.IsAssignment = assignment
	events := []*model.OrderEvent{optionEvent}

	if itm && underlying != nil {
		qty := ExerciseQuantity(option, order.Quantity)
		e := model.NewOrderEvent(order, now, model.OrderFee{Currency: underlying.Properties.QuoteCurrency}, exerciseMessage)
		e.Symbol = underlying.Symbol
		e.Status = model.OrderStatusFilled
		e.Direction = model.DirectionOf(qty)
		e.FillPrice = option.Option.Strike
		e.FillQuantity = qty
		e.IsAssignment = assignment
		events = append(events, e)
	}
	return events
}
