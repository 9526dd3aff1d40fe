package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/Aidin1998/orderexec/pkg/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse is the standard error body of the API
//
// Example:
//
//	{
//	  "error": "ZERO_QUANTITY",
//	  "message": "Unable to submit order with zero quantity.",
//	  "details": {"order_id": 7}
//	}
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func writeError(c *gin.Context, status int, code, message string, details interface{}) {
	c.JSON(status, ErrorResponse{
		Error:   code,
		Message: message,
		Details: details,
	})
}

// statusForCode maps a request error code to an HTTP status.
func statusForCode(code model.ErrorCode) int {
	switch code {
	case model.ErrorNone:
		return http.StatusOK
	case model.ErrorUnableToFindOrder:
		return http.StatusNotFound
	case model.ErrorInvalidOrderStatus, model.ErrorInvalidNewOrderStatus, model.ErrorOrderAlreadyExists:
		return http.StatusConflict
	case model.ErrorAlgorithmWarmingUp:
		return http.StatusServiceUnavailable
	case model.ErrorBrokerageFailedToSubmitOrder, model.ErrorBrokerageFailedToUpdateOrder, model.ErrorBrokerageFailedToCancelOrder:
		return http.StatusBadGateway
	case model.ErrorProcessingError:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

// MetricsMiddleware records HTTP request counts and durations for Prometheus
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		// route template, not the raw path, to keep label cardinality bounded
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		status := fmt.Sprintf("%d", c.Writer.Status())
		metrics.HTTPRequestsTotal.WithLabelValues(path, method, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(path, method).Observe(time.Since(start).Seconds())
	}
}

// RequestLogger logs every request at debug level and server errors at error level.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("HTTP request failed", fields...)
			return
		}
		logger.Debug("HTTP request", fields...)
	}
}
