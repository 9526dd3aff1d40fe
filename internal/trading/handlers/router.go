package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthFunc reports whether the process can take requests.
type HealthFunc func() bool

// NewRouter wires the order and market data endpoints, /health and /metrics.
// marketData may be nil.
func NewRouter(trading *TradingHandler, marketData *MarketDataHandler, healthy HealthFunc, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery(), MetricsMiddleware(), RequestLogger(logger))

	r.GET("/health", func(c *gin.Context) {
		if healthy != nil && !healthy() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	orders := v1.Group("/orders")
	orders.POST("", trading.PlaceOrder)
	orders.GET("", trading.GetOrders)
	orders.GET("/:id", trading.GetOrder)
	orders.GET("/:id/events", trading.GetOrderEvents)
	orders.PATCH("/:id", trading.UpdateOrder)
	orders.DELETE("/:id", trading.CancelOrder)
	v1.GET("/open-orders", trading.GetOpenOrders)
	v1.GET("/brokerage-orders/:broker_id", trading.GetOrderByBrokerageID)

	if marketData != nil {
		md := v1.Group("/marketdata")
		md.POST("/slices", marketData.PostSlice)
		md.GET("/:symbol", marketData.GetPrice)
	}
	return r
}
