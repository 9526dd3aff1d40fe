// Package auditlog persists every applied order event to a SQL table through
// GORM. The table is append-only; an order's history is its rows in event id
// order.
package auditlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/events"
	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNoEvents is returned when an order has no recorded events.
var ErrNoEvents = errors.New("no audit events for order")

// OrderEventRecord is one row of the audit trail. Decimals are stored as
// strings so prices round-trip exactly.
type OrderEventRecord struct {
	RowID        uint      `gorm:"primaryKey;autoIncrement"`
	OrderID      int       `gorm:"not null;uniqueIndex:idx_order_event"`
	EventID      int       `gorm:"not null;uniqueIndex:idx_order_event"`
	Symbol       string    `gorm:"size:64;not null;index"`
	Status       string    `gorm:"size:32;not null"`
	Direction    string    `gorm:"size:8"`
	Quantity     string    `gorm:"size:64"`
	FillQuantity string    `gorm:"size:64"`
	FillPrice    string    `gorm:"size:64"`
	Currency     string    `gorm:"size:16"`
	FeeAmount    string    `gorm:"size:64"`
	FeeCurrency  string    `gorm:"size:16"`
	Message      string    `gorm:"type:text"`
	IsAssignment bool      `gorm:"not null;default:false"`
	EventTime    time.Time `gorm:"not null;index"`
	CreatedAt    time.Time
}

// TableName keeps the table name stable regardless of the struct name.
func (OrderEventRecord) TableName() string { return "order_event_audit" }

// Store implements events.Sink on top of a GORM database.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ events.Sink = (*Store)(nil)

// Open connects to a SQLite database (a file path or ":memory:") and
// migrates the audit table.
func Open(dsn string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	// one connection: SQLite has a single writer and each ":memory:"
	// connection would otherwise be its own database
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return NewStore(db, log)
}

// NewStore wraps an existing connection and migrates the audit table.
func NewStore(db *gorm.DB, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := db.AutoMigrate(&OrderEventRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate audit table: %w", err)
	}
	return &Store{db: db, logger: log.With(zap.String("component", "auditlog"))}, nil
}

func (s *Store) Name() string { return "auditlog" }

// Publish records the event.
func (s *Store) Publish(ctx context.Context, e *model.OrderEvent) error {
	rec := toRecord(e)
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		s.logger.Error("Failed to record order event",
			zap.Error(err), zap.Int("order_id", e.OrderID), zap.Int("event_id", e.ID))
		return fmt.Errorf("failed to record order event: %w", err)
	}
	s.logger.Debug("Order event recorded", zap.Int("order_id", e.OrderID), zap.Int("event_id", e.ID))
	return nil
}

// EventsForOrder returns the recorded history of one order.
func (s *Store) EventsForOrder(ctx context.Context, orderID int) ([]*model.OrderEvent, error) {
	var recs []OrderEventRecord
	if err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("event_id ASC").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to get order events: %w", err)
	}
	return fromRecords(recs), nil
}

// EventsBySymbol returns events of a symbol at or after since, oldest first.
func (s *Store) EventsBySymbol(ctx context.Context, symbol string, since time.Time, limit int) ([]*model.OrderEvent, error) {
	q := s.db.WithContext(ctx).
		Where("symbol = ? AND event_time >= ?", symbol, since).
		Order("event_time ASC").
		Order("row_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []OrderEventRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to get events by symbol: %w", err)
	}
	return fromRecords(recs), nil
}

// LatestStatus returns the status of the order's most recent event.
func (s *Store) LatestStatus(ctx context.Context, orderID int) (model.OrderStatus, error) {
	var rec OrderEventRecord
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("event_id DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.OrderStatusNone, fmt.Errorf("%w: %d", ErrNoEvents, orderID)
	}
	if err != nil {
		return model.OrderStatusNone, fmt.Errorf("failed to get latest status: %w", err)
	}
	return model.OrderStatus(rec.Status), nil
}

// FilledQuantity sums the fill quantity recorded for an order.
func (s *Store) FilledQuantity(ctx context.Context, orderID int) (decimal.Decimal, error) {
	evts, err := s.EventsForOrder(ctx, orderID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, e := range evts {
		if e.Symbol == evts[0].Symbol {
			total = total.Add(e.FillQuantity)
		}
	}
	return total, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRecord(e *model.OrderEvent) *OrderEventRecord {
	return &OrderEventRecord{
		OrderID:      e.OrderID,
		EventID:      e.ID,
		Symbol:       e.Symbol,
		Status:       string(e.Status),
		Direction:    string(e.Direction),
		Quantity:     e.Quantity.String(),
		FillQuantity: e.FillQuantity.String(),
		FillPrice:    e.FillPrice.String(),
		Currency:     e.FillPriceCurrency,
		FeeAmount:    e.Fee.Amount.String(),
		FeeCurrency:  e.Fee.Currency,
		Message:      e.Message,
		IsAssignment: e.IsAssignment,
		EventTime:    e.UTCTime.UTC(),
	}
}

func fromRecords(recs []OrderEventRecord) []*model.OrderEvent {
	out := make([]*model.OrderEvent, 0, len(recs))
	for i := range recs {
		out = append(out, fromRecord(&recs[i]))
	}
	return out
}

func fromRecord(r *OrderEventRecord) *model.OrderEvent {
	return &model.OrderEvent{
		OrderID:           r.OrderID,
		ID:                r.EventID,
		Symbol:            r.Symbol,
		UTCTime:           r.EventTime.UTC(),
		Status:            model.OrderStatus(r.Status),
		Direction:         model.Direction(r.Direction),
		Quantity:          parseDecimal(r.Quantity),
		FillQuantity:      parseDecimal(r.FillQuantity),
		FillPrice:         parseDecimal(r.FillPrice),
		FillPriceCurrency: r.Currency,
		Fee:               model.OrderFee{Amount: parseDecimal(r.FeeAmount), Currency: r.FeeCurrency},
		Message:           r.Message,
		IsAssignment:      r.IsAssignment,
	}
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
