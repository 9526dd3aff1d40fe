package auditlog

import (
	"context"
	"testing"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type StoreSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
	t0    time.Time
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	store, err := Open(":memory:", nil)
	s.Require().NoError(err)
	s.store = store
	s.ctx = context.Background()
	s.t0 = time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
}

func (s *StoreSuite) TearDownTest() {
	s.NoError(s.store.Close())
}

func (s *StoreSuite) record(orderID, eventID int, status model.OrderStatus, fill string, at time.Duration) {
	e := &model.OrderEvent{
		OrderID:      orderID,
		ID:           eventID,
		Symbol:       "SPY",
		UTCTime:      s.t0.Add(at),
		Status:       status,
		Direction:    model.DirectionBuy,
		Quantity:     decimal.NewFromInt(10),
		FillQuantity: decimal.RequireFromString(fill),
		FillPrice:    decimal.RequireFromString("100.125"),
		Fee:          model.OrderFee{Amount: decimal.NewFromInt(1), Currency: "USD"},
	}
	s.Require().NoError(s.store.Publish(s.ctx, e))
}

func (s *StoreSuite) TestHistoryIsOrderedAndExact() {
	s.record(1, 2, model.OrderStatusPartiallyFilled, "4", time.Second)
	s.record(1, 1, model.OrderStatusSubmitted, "0", 0)
	s.record(1, 3, model.OrderStatusFilled, "6", 2*time.Second)

	evts, err := s.store.EventsForOrder(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(evts, 3)
	s.Equal([]int{1, 2, 3}, []int{evts[0].ID, evts[1].ID, evts[2].ID})
	s.True(evts[2].FillPrice.Equal(decimal.RequireFromString("100.125")))
	s.Equal("USD", evts[2].Fee.Currency)

	filled, err := s.store.FilledQuantity(s.ctx, 1)
	s.Require().NoError(err)
	s.True(filled.Equal(decimal.NewFromInt(10)))
}

func (s *StoreSuite) TestLatestStatus() {
	s.record(7, 1, model.OrderStatusSubmitted, "0", 0)
	s.record(7, 2, model.OrderStatusCanceled, "0", time.Second)

	status, err := s.store.LatestStatus(s.ctx, 7)
	s.Require().NoError(err)
	s.Equal(model.OrderStatusCanceled, status)

	_, err = s.store.LatestStatus(s.ctx, 99)
	s.ErrorIs(err, ErrNoEvents)
}

func (s *StoreSuite) TestDuplicateEventRejected() {
	s.record(1, 1, model.OrderStatusSubmitted, "0", 0)
	e := &model.OrderEvent{OrderID: 1, ID: 1, Symbol: "SPY", UTCTime: s.t0, Status: model.OrderStatusSubmitted}
	s.Error(s.store.Publish(s.ctx, e))
}

func (s *StoreSuite) TestEventsBySymbolSince() {
	s.record(1, 1, model.OrderStatusSubmitted, "0", 0)
	s.record(2, 1, model.OrderStatusSubmitted, "0", time.Minute)
	s.record(2, 2, model.OrderStatusFilled, "10", 2*time.Minute)

	evts, err := s.store.EventsBySymbol(s.ctx, "SPY", s.t0.Add(time.Minute), 0)
	s.Require().NoError(err)
	s.Len(evts, 2)

	evts, err = s.store.EventsBySymbol(s.ctx, "SPY", s.t0, 1)
	s.Require().NoError(err)
	s.Len(evts, 1)
	s.Equal(1, evts[0].OrderID)
}

func TestRecordRoundTripKeepsAssignmentFlag(t *testing.T) {
	e := &model.OrderEvent{
		OrderID: 3, ID: 2, Symbol: "SPY_C100", Status: model.OrderStatusFilled,
		IsAssignment: true, FillQuantity: decimal.NewFromInt(1),
		UTCTime: time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC),
	}
	got := fromRecord(toRecord(e))
	assert.True(t, got.IsAssignment)
	assert.True(t, got.FillQuantity.Equal(decimal.NewFromInt(1)))
	require.Equal(t, e.UTCTime, got.UTCTime)
}
