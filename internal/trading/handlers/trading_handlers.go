// Package handlers provides HTTP handlers for order execution
package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/Aidin1998/orderexec/internal/trading/securities"
	"github.com/Aidin1998/orderexec/internal/trading/transaction"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// defaultResponseTimeout bounds how long a request waits for the worker
// before answering 202 with the response known so far.
const defaultResponseTimeout = 5 * time.Second

// TradingHandler handles order requests over HTTP
type TradingHandler struct {
	processor       *transaction.Handler
	clock           securities.Clock
	logger          *zap.Logger
	responseTimeout time.Duration
}

// NewTradingHandler creates a new trading handler
func NewTradingHandler(processor *transaction.Handler, clock securities.Clock, logger *zap.Logger) *TradingHandler {
	if clock == nil {
		clock = securities.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TradingHandler{
		processor:       processor,
		clock:           clock,
		logger:          logger.With(zap.String("component", "trading_api")),
		responseTimeout: defaultResponseTimeout,
	}
}

// await waits for the worker to finish the request, the client to go away
// or the response timeout, whichever comes first.
func (h *TradingHandler) await(c *gin.Context, req model.OrderRequest) (model.OrderResponse, bool) {
	timer := time.NewTimer(h.responseTimeout)
	defer timer.Stop()
	select {
	case <-req.Done():
		return req.Response(), true
	case <-c.Request.Context().Done():
	case <-timer.C:
	}
	return req.Response(), false
}

// PlaceOrderRequest represents order placement request. A negative quantity sells.
type PlaceOrderRequest struct {
	Symbol       string          `json:"symbol" binding:"required,max=64"`
	Quantity     decimal.Decimal `json:"quantity"`
	Type         model.OrderType `json:"type" binding:"omitempty,oneof=MARKET LIMIT STOP_MARKET STOP_LIMIT LIMIT_IF_TOUCHED MARKET_ON_OPEN MARKET_ON_CLOSE"`
	LimitPrice   decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice    decimal.Decimal `json:"stop_price,omitempty"`
	TriggerPrice decimal.Decimal `json:"trigger_price,omitempty"`
	TimeInForce  string          `json:"time_in_force,omitempty" binding:"omitempty,oneof=GTC DAY GTD"`
	Expiry       *time.Time      `json:"expiry,omitempty"`
	Tag          string          `json:"tag,omitempty" binding:"max=128"`
}

// UpdateOrderRequest represents an order amendment. Omitted fields are kept.
type UpdateOrderRequest struct {
	Quantity     *decimal.Decimal `json:"quantity,omitempty"`
	LimitPrice   *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice    *decimal.Decimal `json:"stop_price,omitempty"`
	TriggerPrice *decimal.Decimal `json:"trigger_price,omitempty"`
	Tag          string           `json:"tag,omitempty" binding:"max=128"`
}

// ListOrdersRequest represents order listing request
type ListOrdersRequest struct {
	Symbol   string `form:"symbol"`
	Status   string `form:"status"`
	Page     int    `form:"page,default=1" binding:"min=1"`
	PageSize int    `form:"page_size,default=50" binding:"min=1,max=1000"`
}

// TicketResponse is a snapshot of an order ticket together with the
// response of the request that produced it.
type TicketResponse struct {
	OrderID           int                 `json:"order_id"`
	Symbol            string              `json:"symbol"`
	Type              model.OrderType     `json:"type"`
	Status            model.OrderStatus   `json:"status"`
	Quantity          decimal.Decimal     `json:"quantity"`
	QuantityFilled    decimal.Decimal     `json:"quantity_filled"`
	QuantityRemaining decimal.Decimal     `json:"quantity_remaining"`
	AverageFillPrice  decimal.Decimal     `json:"average_fill_price"`
	Tag               string              `json:"tag,omitempty"`
	Time              time.Time           `json:"time"`
	Response          model.OrderResponse `json:"response"`
}

func newTicketResponse(t *model.OrderTicket, resp model.OrderResponse) TicketResponse {
	return TicketResponse{
		OrderID:           t.OrderID(),
		Symbol:            t.Symbol(),
		Type:              t.OrderType(),
		Status:            t.Status(),
		Quantity:          t.Quantity(),
		QuantityFilled:    t.QuantityFilled(),
		QuantityRemaining: t.QuantityRemaining(),
		AverageFillPrice:  t.AverageFillPrice(),
		Tag:               t.Tag(),
		Time:              t.Time(),
		Response:          resp,
	}
}

func (r PlaceOrderRequest) timeInForce() model.TimeInForce {
	switch model.TimeInForceKind(r.TimeInForce) {
	case model.TimeInForceDay:
		return model.Day()
	case model.TimeInForceGTD:
		if r.Expiry != nil {
			return model.GoodTilDate(r.Expiry.UTC())
		}
	}
	return model.GoodTilCanceled
}

// PlaceOrder handles order placement requests
// @Summary Place a new order
// @Description Submit an order to the execution handler
// @Tags Orders
// @Accept json
// @Produce json
// @Param request body PlaceOrderRequest true "Order placement request"
// @Success 201 {object} TicketResponse "Order submitted to the venue"
// @Success 202 {object} TicketResponse "Order queued, not yet processed"
// @Failure 400 {object} ErrorResponse "Invalid request format"
// @Failure 422 {object} ErrorResponse "Order rejected"
// @Failure 503 {object} ErrorResponse "Warming up"
// @Router /v1/orders [post]
func (h *TradingHandler) PlaceOrder(c *gin.Context) {
	var req PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid order placement request", zap.Error(err))
		writeError(c, http.StatusBadRequest, "invalid_request", "Invalid request format", err.Error())
		return
	}
	if model.TimeInForceKind(req.TimeInForce) == model.TimeInForceGTD && req.Expiry == nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "GTD orders require an expiry", nil)
		return
	}

	terms, err := model.TermsSpec{
		Type:         req.Type,
		LimitPrice:   req.LimitPrice,
		StopPrice:    req.StopPrice,
		TriggerPrice: req.TriggerPrice,
	}.Build()
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_order_type", "Unsupported order type", err.Error())
		return
	}

	submit := model.NewSubmitOrderRequest(req.Symbol, req.Quantity, terms, req.timeInForce(), req.Tag, h.clock.Now())
	ticket := h.processor.Submit(submit)
	resp, done := h.await(c, submit)
	body := newTicketResponse(ticket, resp)

	if resp.IsError() {
		h.logger.Info("Order rejected",
			zap.Int("order_id", ticket.OrderID()),
			zap.String("symbol", req.Symbol),
			zap.String("code", string(resp.ErrorCode)),
		)
		writeError(c, statusForCode(resp.ErrorCode), string(resp.ErrorCode), resp.ErrorMessage, body)
		return
	}

	h.logger.Info("Order placed",
		zap.Int("order_id", ticket.OrderID()),
		zap.String("symbol", req.Symbol),
		zap.String("quantity", req.Quantity.String()),
		zap.String("status", string(body.Status)),
	)
	if !done {
		c.JSON(http.StatusAccepted, body)
		return
	}
	c.JSON(http.StatusCreated, body)
}

// UpdateOrder handles order amendment requests
// @Summary Update an order
// @Description Change quantity, prices or tag of a working order
// @Tags Orders
// @Accept json
// @Produce json
// @Param id path int true "Order ID"
// @Param request body UpdateOrderRequest true "Fields to change"
// @Success 200 {object} TicketResponse "Update applied"
// @Success 202 {object} TicketResponse "Update queued, not yet processed"
// @Failure 400 {object} ErrorResponse "Invalid order ID or body"
// @Failure 404 {object} ErrorResponse "Order not found"
// @Failure 409 {object} ErrorResponse "Order cannot be updated in its current status"
// @Router /v1/orders/{id} [patch]
func (h *TradingHandler) UpdateOrder(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}
	var body UpdateOrderRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "Invalid request format", err.Error())
		return
	}

	req := model.NewUpdateOrderRequest(orderID, model.UpdateFields{
		Quantity:     nullDecimal(body.Quantity),
		LimitPrice:   nullDecimal(body.LimitPrice),
		StopPrice:    nullDecimal(body.StopPrice),
		TriggerPrice: nullDecimal(body.TriggerPrice),
		Tag:          body.Tag,
	}, h.clock.Now())
	ticket := h.processor.Update(req)
	h.respondToChange(c, ticket, req)
}

// CancelOrder handles order cancellation requests
// @Summary Cancel an order
// @Description Cancel a working order. The order moves to CANCEL_PENDING until the venue confirms.
// @Tags Orders
// @Produce json
// @Param id path int true "Order ID"
// @Param tag query string false "Tag recorded with the cancellation"
// @Success 200 {object} TicketResponse "Cancel processed"
// @Success 202 {object} TicketResponse "Cancel queued, not yet processed"
// @Failure 400 {object} ErrorResponse "Invalid order ID or cancel already in progress"
// @Failure 404 {object} ErrorResponse "Order not found"
// @Failure 409 {object} ErrorResponse "Order cannot be canceled in its current status"
// @Router /v1/orders/{id} [delete]
func (h *TradingHandler) CancelOrder(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}
	req := model.NewCancelOrderRequest(orderID, c.Query("tag"), h.clock.Now())
	ticket := h.processor.Cancel(req)
	h.respondToChange(c, ticket, req)
}

func (h *TradingHandler) respondToChange(c *gin.Context, ticket *model.OrderTicket, req model.OrderRequest) {
	resp, done := h.await(c, req)
	if ticket == nil {
		writeError(c, http.StatusNotFound, string(model.ErrorUnableToFindOrder), resp.ErrorMessage, nil)
		return
	}
	body := newTicketResponse(ticket, resp)
	if resp.IsError() {
		status := statusForCode(resp.ErrorCode)
		if resp.ErrorCode == model.ErrorInvalidRequest {
			status = http.StatusBadRequest
		}
		writeError(c, status, string(resp.ErrorCode), resp.ErrorMessage, body)
		return
	}
	if !done {
		c.JSON(http.StatusAccepted, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

// GetOrders handles order listing requests
// @Summary List orders
// @Description Retrieve orders with optional filtering, ordered by id
// @Tags Orders
// @Produce json
// @Param symbol query string false "Symbol"
// @Param status query string false "Comma separated statuses" example(SUBMITTED,PARTIALLY_FILLED)
// @Param page query int false "Page number" default(1) minimum(1)
// @Param page_size query int false "Page size" default(50) minimum(1) maximum(1000)
// @Success 200 {object} map[string]interface{} "Orders retrieved successfully"
// @Failure 400 {object} ErrorResponse "Invalid request parameters"
// @Router /v1/orders [get]
func (h *TradingHandler) GetOrders(c *gin.Context) {
	h.listOrders(c, h.processor.GetOrders)
}

// GetOpenOrders handles open order listing requests
// @Summary List open orders
// @Tags Orders
// @Produce json
// @Param symbol query string false "Symbol"
// @Success 200 {object} map[string]interface{} "Open orders"
// @Router /v1/open-orders [get]
func (h *TradingHandler) GetOpenOrders(c *gin.Context) {
	h.listOrders(c, h.processor.GetOpenOrders)
}

func (h *TradingHandler) listOrders(c *gin.Context, source func(model.OrderFilter) []*model.Order) {
	var req ListOrdersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid order listing request", zap.Error(err))
		writeError(c, http.StatusBadRequest, "invalid_request", "Invalid query parameters", err.Error())
		return
	}

	orders := source(orderFilter(req))
	total := len(orders)
	offset := min((req.Page-1)*req.PageSize, total)
	end := min(offset+req.PageSize, total)

	c.JSON(http.StatusOK, gin.H{
		"orders": orders[offset:end],
		"pagination": gin.H{
			"page":        req.Page,
			"page_size":   req.PageSize,
			"total":       total,
			"total_pages": (total + req.PageSize - 1) / req.PageSize,
		},
	})
}

func orderFilter(req ListOrdersRequest) model.OrderFilter {
	var filters []model.OrderFilter
	if req.Symbol != "" {
		filters = append(filters, model.BySymbol(req.Symbol))
	}
	if req.Status != "" {
		var statuses []model.OrderStatus
		for _, s := range strings.Split(req.Status, ",") {
			statuses = append(statuses, model.OrderStatus(strings.ToUpper(strings.TrimSpace(s))))
		}
		filters = append(filters, model.ByStatus(statuses...))
	}
	if len(filters) == 0 {
		return nil
	}
	return func(o *model.Order) bool {
		for _, f := range filters {
			if !f(o) {
				return false
			}
		}
		return true
	}
}

// GetOrder handles single order retrieval requests
// @Summary Get order details
// @Tags Orders
// @Produce json
// @Param id path int true "Order ID"
// @Success 200 {object} model.Order "Order details"
// @Failure 400 {object} ErrorResponse "Invalid order ID"
// @Failure 404 {object} ErrorResponse "Order not found"
// @Router /v1/orders/{id} [get]
func (h *TradingHandler) GetOrder(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}
	order := h.processor.GetOrderByID(orderID)
	if order == nil {
		writeError(c, http.StatusNotFound, "order_not_found", "Order not found", nil)
		return
	}
	c.JSON(http.StatusOK, order)
}

// GetOrderEvents returns the events applied to an order, oldest first
// @Summary Get order events
// @Tags Orders
// @Produce json
// @Param id path int true "Order ID"
// @Success 200 {array} model.OrderEvent "Order events"
// @Failure 404 {object} ErrorResponse "Order not found"
// @Router /v1/orders/{id}/events [get]
func (h *TradingHandler) GetOrderEvents(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}
	ticket := h.processor.GetOrderTicket(orderID)
	if ticket == nil {
		writeError(c, http.StatusNotFound, "order_not_found", "Order not found", nil)
		return
	}
	c.JSON(http.StatusOK, ticket.OrderEvents())
}

// GetOrderByBrokerageID looks an order up by the id the venue assigned
// @Summary Get order by venue id
// @Tags Orders
// @Produce json
// @Param broker_id path string true "Venue order ID"
// @Success 200 {object} model.Order "Order details"
// @Failure 404 {object} ErrorResponse "Order not found"
// @Router /v1/brokerage-orders/{broker_id} [get]
func (h *TradingHandler) GetOrderByBrokerageID(c *gin.Context) {
	order := h.processor.GetOrderByBrokerageID(c.Param("broker_id"))
	if order == nil {
		writeError(c, http.StatusNotFound, "order_not_found", "Order not found", nil)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *TradingHandler) orderID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, "invalid_order_id", "Invalid order ID format", c.Param("id"))
		return 0, false
	}
	return id, true
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}
