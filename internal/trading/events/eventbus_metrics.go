package events

import "sync/atomic"

// EventBusMetrics counts bus traffic across subscriber goroutines.
type EventBusMetrics struct {
	Published atomic.Int64
	Delivered atomic.Int64
	Failed    atomic.Int64
	Dropped   atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of EventBusMetrics
type MetricsSnapshot struct {
	Published int64
	Delivered int64
	Failed    int64
	Dropped   int64
}

func (m *EventBusMetrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Published: m.Published.Load(),
		Delivered: m.Delivered.Load(),
		Failed:    m.Failed.Load(),
		Dropped:   m.Dropped.Load(),
	}
}
