package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrderRequests counts processed order requests by kind (submit/update/cancel) and response code
var OrderRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "orderexec_order_requests_total",
		Help: "Total number of order requests processed by the transaction handler",
	},
	[]string{"kind", "code"},
)

// RequestLatency records how long the worker took to process a request
var RequestLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "orderexec_request_latency_seconds",
		Help:    "Time in seconds the worker spent processing a request",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"kind"},
)

// OrderEvents counts applied order events by resulting status
var OrderEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "orderexec_order_events_total",
		Help: "Total number of order events applied",
	},
	[]string{"status"},
)

// Queue and order book gauges
var (
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orderexec_request_queue_depth",
			Help: "Number of order requests waiting for the worker",
		},
	)

	OpenOrders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orderexec_open_orders",
			Help: "Number of orders in a non-terminal status",
		},
	)

	SinkFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderexec_sink_failures_total",
			Help: "Order events a notification sink failed to publish",
		},
		[]string{"sink"},
	)
)

// HTTP API
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderexec_http_requests_total",
			Help: "HTTP requests served by route, method and status",
		},
		[]string{"path", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orderexec_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

func init() {
	prometheus.MustRegister(OrderRequests, RequestLatency, OrderEvents)
	prometheus.MustRegister(QueueDepth, OpenOrders, SinkFailures)
	prometheus.MustRegister(HTTPRequestsTotal, HTTPRequestDuration)
}
