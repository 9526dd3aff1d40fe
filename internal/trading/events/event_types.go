package events

import (
	"strings"

	"github.com/Aidin1998/orderexec/internal/trading/model"
)

// Topic partitions the order event stream on the bus.
type Topic string

const (
	TopicOrderStatus Topic = "order_status" // every applied event
	TopicOrderFill   Topic = "order_fill"
	TopicAssignment  Topic = "assignment"
)

// TypeOf names an order event by its resulting status, e.g. ORDER_FILLED.
func TypeOf(e *model.OrderEvent) string {
	if e.Status == model.OrderStatusNone {
		return "ORDER_EVENT"
	}
	return "ORDER_" + strings.ToUpper(string(e.Status))
}

// TopicsOf lists the topics an event is delivered on. Every event goes to
// TopicOrderStatus; fills and assignments are also routed to their own topic.
func TopicsOf(e *model.OrderEvent) []Topic {
	topics := []Topic{TopicOrderStatus}
	if !e.FillQuantity.IsZero() {
		topics = append(topics, TopicOrderFill)
	}
	if e.IsAssignment {
		topics = append(topics, TopicAssignment)
	}
	return topics
}
