package model

// transitions lists the status changes an order may make. Closed statuses
// have no entry. CancelPending back to an open status is the rollback of a
// cancel the venue refused.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusNew: {
		OrderStatusSubmitted, OrderStatusPartiallyFilled, OrderStatusFilled,
		OrderStatusCanceled, OrderStatusInvalid,
	},
	OrderStatusSubmitted: {
		OrderStatusUpdateSubmitted, OrderStatusPartiallyFilled, OrderStatusFilled,
		OrderStatusCancelPending, OrderStatusCanceled, OrderStatusInvalid,
	},
	OrderStatusUpdateSubmitted: {
		OrderStatusSubmitted, OrderStatusPartiallyFilled, OrderStatusFilled,
		OrderStatusCancelPending, OrderStatusCanceled, OrderStatusInvalid,
	},
	OrderStatusPartiallyFilled: {
		OrderStatusUpdateSubmitted, OrderStatusFilled,
		OrderStatusCancelPending, OrderStatusCanceled, OrderStatusInvalid,
	},
	OrderStatusCancelPending: {
		OrderStatusCanceled, OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusInvalid,
		OrderStatusSubmitted, OrderStatusUpdateSubmitted,
	},
}

// CanTransition reports whether an order in status from may move to status
// to. Staying in the same status is always allowed.
func CanTransition(from, to OrderStatus) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
