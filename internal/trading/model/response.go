package model

import "fmt"

// ErrorCode classifies why a request was rejected.
type ErrorCode string

const (
	ErrorNone                               ErrorCode = ""
	ErrorProcessingError                    ErrorCode = "PROCESSING_ERROR"
	ErrorOrderAlreadyExists                 ErrorCode = "ORDER_ALREADY_EXISTS"
	ErrorInsufficientBuyingPower            ErrorCode = "INSUFFICIENT_BUYING_POWER"
	ErrorBrokerageModelRefusedToSubmitOrder ErrorCode = "BROKERAGE_MODEL_REFUSED_TO_SUBMIT_ORDER"
	ErrorBrokerageFailedToSubmitOrder       ErrorCode = "BROKERAGE_FAILED_TO_SUBMIT_ORDER"
	ErrorBrokerageFailedToUpdateOrder       ErrorCode = "BROKERAGE_FAILED_TO_UPDATE_ORDER"
	ErrorBrokerageModelRefusedToUpdateOrder ErrorCode = "BROKERAGE_MODEL_REFUSED_TO_UPDATE_ORDER"
	ErrorBrokerageFailedToCancelOrder       ErrorCode = "BROKERAGE_FAILED_TO_CANCEL_ORDER"
	ErrorInvalidOrderStatus                 ErrorCode = "INVALID_ORDER_STATUS"
	ErrorUnableToFindOrder                  ErrorCode = "UNABLE_TO_FIND_ORDER"
	ErrorZeroQuantity                       ErrorCode = "ZERO_QUANTITY"
	ErrorInvalidRequest                     ErrorCode = "INVALID_REQUEST"
	ErrorInvalidNewOrderStatus              ErrorCode = "INVALID_NEW_ORDER_STATUS"
	ErrorAlgorithmWarmingUp                 ErrorCode = "ALGORITHM_WARMING_UP"
	ErrorExceedsShortableQuantity           ErrorCode = "EXCEEDS_SHORTABLE_QUANTITY"
)

// OrderResponse is the outcome attached to a request.
type OrderResponse struct {
	OrderID      int       `json:"order_id"`
	ErrorCode    ErrorCode `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	IsProcessed  bool      `json:"is_processed"`
}

// IsSuccess is true for a processed response without an error code.
func (r OrderResponse) IsSuccess() bool {
	return r.IsProcessed && r.ErrorCode == ErrorNone
}

// IsError is true for a processed response carrying an error code.
func (r OrderResponse) IsError() bool {
	return r.IsProcessed && r.ErrorCode != ErrorNone
}

func (r OrderResponse) String() string {
	if !r.IsProcessed {
		return "Unprocessed"
	}
	if r.IsError() {
		return fmt.Sprintf("Error: %s - %s", r.ErrorCode, r.ErrorMessage)
	}
	return "Success"
}

// UnprocessedResponse is the initial response of every request.
func UnprocessedResponse() OrderResponse {
	return OrderResponse{}
}

// SuccessResponse marks the request as accepted.
func SuccessResponse(req OrderRequest) OrderResponse {
	return OrderResponse{OrderID: req.OrderID(), IsProcessed: true}
}

// ErrorResponse marks the request as rejected with a reason.
func ErrorResponse(req OrderRequest, code ErrorCode, message string) OrderResponse {
	return OrderResponse{OrderID: req.OrderID(), ErrorCode: code, ErrorMessage: message, IsProcessed: true}
}

// InvalidStatusResponse rejects a request against a closed order.
func InvalidStatusResponse(req OrderRequest, order *Order) OrderResponse {
	return ErrorResponse(req, ErrorInvalidOrderStatus,
		fmt.Sprintf("Unable to update order with id %d because it already has %s status.", order.ID, order.Status))
}

// InvalidNewStatusResponse rejects a request against an order the venue has not acknowledged.
func InvalidNewStatusResponse(req OrderRequest, order *Order) OrderResponse {
	return ErrorResponse(req, ErrorInvalidNewOrderStatus,
		fmt.Sprintf("Unable to update or cancel order with id %d and status %s because the submit confirmation has not been received yet.", order.ID, order.Status))
}

// UnableToFindOrderResponse rejects a request for an unknown order id.
func UnableToFindOrderResponse(req OrderRequest) OrderResponse {
	return ErrorResponse(req, ErrorUnableToFindOrder,
		fmt.Sprintf("Unable to locate order with id %d.", req.OrderID()))
}

// ZeroQuantityResponse rejects a request whose quantity is zero.
func ZeroQuantityResponse(req OrderRequest) OrderResponse {
	return ErrorResponse(req, ErrorZeroQuantity,
		"Unable to add order for zero quantity.")
}

// WarmingUpResponse rejects requests issued during warm up.
func WarmingUpResponse(req OrderRequest) OrderResponse {
	return ErrorResponse(req, ErrorAlgorithmWarmingUp,
		fmt.Sprintf("%s requests are not allowed during warm up.", req.Kind()))
}
