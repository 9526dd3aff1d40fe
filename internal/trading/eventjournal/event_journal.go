// Package eventjournal is a write-ahead log of applied order events, kept as
// line-delimited JSON so a restarted process can see which orders were still
// working when it stopped.
package eventjournal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event type constants
const (
	EventTypeOrderEvent = "ORDER_EVENT"
	EventTypeCheckpoint = "CHECKPOINT"
)

// WALEvent is one journal line.
type WALEvent struct {
	ID        uuid.UUID         `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	Symbol    string            `json:"symbol,omitempty"`
	OrderID   int               `json:"order_id,omitempty"`
	Status    model.OrderStatus `json:"status,omitempty"`
	Event     *model.OrderEvent `json:"event,omitempty"`
	Data      interface{}       `json:"data,omitempty"`
}

func newOrderWALEvent(e *model.OrderEvent) *WALEvent {
	return &WALEvent{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		EventType: EventTypeOrderEvent,
		Symbol:    e.Symbol,
		OrderID:   e.OrderID,
		Status:    e.Status,
		Event:     e,
	}
}

// ReplayHandler is called for each decoded event. Returning false stops the
// replay; an error with true is logged and the replay goes on.
type ReplayHandler func(*WALEvent) (bool, error)

// replay streams events from r into handler, skipping corrupted lines.
func replay(ctx context.Context, r io.Reader, log *zap.Logger, handler ReplayHandler) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	eventCount := 0
	errorCount := 0

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			log.Warn("Replay cancelled by context", zap.Int("eventCount", eventCount))
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var event WALEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			errorCount++
			log.Error("Failed to unmarshal event during replay",
				zap.Error(err),
				zap.String("line", line[:min(100, len(line))]),
				zap.Int("eventCount", eventCount))
			continue
		}
		eventCount++

		shouldContinue, err := handler(&event)
		if err != nil {
			log.Error("Handler error during replay",
				zap.Error(err),
				zap.String("eventType", event.EventType),
				zap.Int("eventCount", eventCount))
			if !shouldContinue {
				return fmt.Errorf("replay stopped due to handler error: %w", err)
			}
		}
		if !shouldContinue {
			log.Info("Replay stopped by handler", zap.Int("eventCount", eventCount))
			break
		}
		if eventCount%1000 == 0 {
			log.Info("Replay progress", zap.Int("eventsProcessed", eventCount))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading journal during replay: %w", err)
	}

	log.Info("Event replay completed",
		zap.Int("totalEvents", eventCount),
		zap.Int("errorCount", errorCount))
	return nil
}
