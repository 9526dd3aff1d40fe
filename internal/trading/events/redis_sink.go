package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisChannel is the pub/sub channel order events are published on.
const DefaultRedisChannel = "orderexec:order_events"

// RedisSink publishes every order event on a pub/sub channel and keeps the
// latest status of each order in a hash so dashboards can poll it.
type RedisSink struct {
	client     *redis.Client
	channel    string
	expiration time.Duration
}

var _ Sink = (*RedisSink)(nil)

func NewRedisSink(client *redis.Client, channel string, expiration time.Duration) *RedisSink {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisSink{
		client:     client,
		channel:    channel,
		expiration: expiration,
	}
}

func (s *RedisSink) Name() string { return "redis" }

// orderKey returns the Redis key holding an order's latest state
func (s *RedisSink) orderKey(orderID int) string {
	return fmt.Sprintf("orderexec:order:%d", orderID)
}

// Publish writes the status hash and publishes the event in one pipeline
func (s *RedisSink) Publish(ctx context.Context, e *model.OrderEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	key := s.orderKey(e.OrderID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"symbol", e.Symbol,
			"status", string(e.Status),
			"quantity", e.Quantity.String(),
			"last_event_id", e.ID,
			"updated_at", e.UTCTime.Format(time.RFC3339Nano),
		)
		if e.Status.IsFill() {
			pipe.HSet(ctx, key, "last_fill_price", e.FillPrice.String())
		}
		if s.expiration > 0 {
			pipe.Expire(ctx, key, s.expiration)
		}
		pipe.Publish(ctx, s.channel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish order event %d/%d to redis: %w", e.OrderID, e.ID, err)
	}
	return nil
}

// LatestStatus reads back the status hash of one order.
func (s *RedisSink) LatestStatus(ctx context.Context, orderID int) (map[string]string, error) {
	fields, err := s.client.HGetAll(ctx, s.orderKey(orderID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read order %d status: %w", orderID, err)
	}
	return fields, nil
}
