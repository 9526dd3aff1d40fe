package events

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filledEvent() *model.OrderEvent {
	return &model.OrderEvent{
		OrderID:      7,
		ID:           2,
		Symbol:       "SPY",
		UTCTime:      time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC),
		Status:       model.OrderStatusFilled,
		FillPrice:    decimal.NewFromInt(100),
		FillQuantity: decimal.NewFromInt(10),
		Quantity:     decimal.NewFromInt(10),
	}
}

func collect(bus *OrderEventBus, topic Topic) func() []*model.OrderEvent {
	var mu sync.Mutex
	var got []*model.OrderEvent
	bus.Subscribe(topic, func(e *model.OrderEvent) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	})
	return func() []*model.OrderEvent {
		mu.Lock()
		defer mu.Unlock()
		return append([]*model.OrderEvent(nil), got...)
	}
}

func TestOrderEventBusRoutesByTopic(t *testing.T) {
	bus := NewOrderEventBus(nil, 8)
	status := collect(bus, TopicOrderStatus)
	fill := collect(bus, TopicOrderFill)
	assignment := collect(bus, TopicAssignment)

	submitted := filledEvent()
	submitted.Status = model.OrderStatusSubmitted
	submitted.FillQuantity = decimal.Zero
	assigned := filledEvent()
	assigned.IsAssignment = true

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, submitted))
	require.NoError(t, bus.Publish(ctx, filledEvent()))
	require.NoError(t, bus.Publish(ctx, assigned))
	require.NoError(t, bus.Close())

	assert.Len(t, status(), 3)
	assert.Len(t, fill(), 2)
	require.Len(t, assignment(), 1)
	assert.True(t, assignment()[0].IsAssignment)
	assert.Equal(t, "ORDER_FILLED", TypeOf(fill()[0]))
}

func TestOrderEventBusKeepsPublishOrder(t *testing.T) {
	bus := NewOrderEventBus(nil, 128)
	got := collect(bus, TopicOrderStatus)

	for i := 1; i <= 100; i++ {
		e := filledEvent()
		e.ID = i
		require.NoError(t, bus.Publish(context.Background(), e))
	}
	require.NoError(t, bus.Close())

	events := got()
	require.Len(t, events, 100)
	for i, e := range events {
		assert.Equal(t, i+1, e.ID)
	}
}

func TestOrderEventBusRecoversPanics(t *testing.T) {
	bus := NewOrderEventBus(nil, 4)
	bus.Subscribe(TopicOrderStatus, func(*model.OrderEvent) { panic("boom") })
	got := collect(bus, TopicOrderStatus)

	require.NoError(t, bus.Publish(context.Background(), filledEvent()))
	require.NoError(t, bus.Close())

	assert.Len(t, got(), 1)
	m := bus.Metrics()
	assert.Equal(t, int64(1), m.Published)
	assert.Equal(t, int64(1), m.Failed)
	assert.Equal(t, int64(1), m.Delivered)
}

func TestOrderEventBusDropsWhenSubscriberFallsBehind(t *testing.T) {
	bus := NewOrderEventBus(nil, 1)
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	bus.Subscribe(TopicOrderStatus, func(*model.OrderEvent) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
	})

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, filledEvent()))
	<-entered
	require.NoError(t, bus.Publish(ctx, filledEvent())) // buffered
	require.NoError(t, bus.Publish(ctx, filledEvent())) // dropped
	close(release)
	require.NoError(t, bus.Close())

	m := bus.Metrics()
	assert.Equal(t, int64(1), m.Dropped)
	assert.Equal(t, int64(2), m.Delivered)
}

func TestOrderEventBusUnsubscribeAndClose(t *testing.T) {
	bus := NewOrderEventBus(nil, 4)
	var calls atomic.Int64
	unsubscribe := bus.Subscribe(TopicOrderStatus, func(*model.OrderEvent) { calls.Add(1) })
	unsubscribe()
	unsubscribe()

	require.NoError(t, bus.Publish(context.Background(), filledEvent()))
	require.NoError(t, bus.Close())
	assert.Equal(t, int64(0), calls.Load())
	assert.ErrorIs(t, bus.Publish(context.Background(), filledEvent()), ErrBusClosed)
}

func TestRedisSink(t *testing.T) {
	addr := os.Getenv("ORDEREXEC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ORDEREXEC_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	ctx := context.Background()

	sink := NewRedisSink(client, "orderexec:test", time.Minute)
	sub := client.Subscribe(ctx, "orderexec:test")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, sink.Publish(ctx, filledEvent()))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Contains(t, msg.Payload, `"order_id":7`)

	fields, err := sink.LatestStatus(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, string(model.OrderStatusFilled), fields["status"])
	assert.Equal(t, "100", fields["last_fill_price"])
}
