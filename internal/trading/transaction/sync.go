package transaction

import (
	"context"
	"fmt"

	"github.com/Aidin1998/orderexec/internal/trading/brokerage"
	"github.com/Aidin1998/orderexec/internal/trading/model"
	"go.uber.org/zap"
)

// ProcessSynchronousEvents is called by the owner once per time step. It
// waits (bounded) for queued requests, lets a simulated venue scan its
// working orders and, in live mode, syncs cash and trims old orders. Before
// returning it waits for observers to see every event applied so far.
func (h *Handler) ProcessSynchronousEvents(ctx context.Context) {
	defer func() {
		if !h.notifier.waitIdle(h.cfg.SyncWaitTimeout) {
			h.logger.Warn("Order event observers still busy after sync wait", zap.Duration("timeout", h.cfg.SyncWaitTimeout))
		}
	}()

	if !h.queue.WaitIdle(h.cfg.SyncWaitTimeout) {
		h.logger.Warn("Request queue still busy after sync wait",
			zap.Int("pending", h.queue.Size()), zap.Duration("timeout", h.cfg.SyncWaitTimeout))
	}

	if scanner, ok := h.venue.(brokerage.Scanner); ok {
		scanner.Scan(ctx)
	}

	if !h.cfg.LiveMode {
		return
	}
	h.syncCash(ctx)
	h.trimClosedOrders()
}

// syncCash pulls balances from a live venue. It only runs once per interval
// and after a quiet period with no fills, so a pushed balance cannot race
// a fill that is still in flight.
func (h *Handler) syncCash(ctx context.Context) {
	syncer, ok := h.venue.(brokerage.CashSyncer)
	if !ok || h.portfolio == nil {
		return
	}
	now := h.clock.Now()

	h.mu.Lock()
	due := h.lastCashSync.IsZero() || now.Sub(h.lastCashSync) >= h.cfg.CashSyncInterval
	quiet := h.lastFillTime.IsZero() || now.Sub(h.lastFillTime) >= h.cfg.CashSyncQuietPeriod
	h.mu.Unlock()
	if !due {
		return
	}
	if !quiet {
		h.logger.Debug("Delaying cash sync until fills settle")
		return
	}

	balances, err := syncer.CashBalances(ctx)
	if err != nil {
		h.mu.Lock()
		h.cashSyncErrors++
		attempts := h.cashSyncErrors
		h.mu.Unlock()
		h.logger.Warn("Cash sync failed", zap.Int("attempt", attempts), zap.Error(err))
		if attempts >= h.cfg.MaxCashSyncAttempts {
			h.fail(fmt.Errorf("cash sync failed %d times: %w", attempts, err))
		}
		return
	}

	for currency, amount := range balances {
		h.portfolio.SetCash(currency, amount)
	}
	h.mu.Lock()
	h.cashSyncErrors = 0
	h.lastCashSync = now
	h.mu.Unlock()
	h.logger.Info("Cash synced from venue", zap.Int("currencies", len(balances)))
}

// trimClosedOrders drops the oldest closed orders and their tickets once
// more than MaxOrdersToKeep are held.
func (h *Handler) trimClosedOrders() {
	h.mu.Lock()
	defer h.mu.Unlock()

	excess := h.orders.Len() - h.cfg.MaxOrdersToKeep
	if excess <= 0 {
		return
	}
	victims := make([]int, 0, excess)
	h.orders.Scan(func(id int, o *model.Order) bool {
		if o.Status.IsClosed() {
			victims = append(victims, id)
		}
		return len(victims) < excess
	})
	for _, id := range victims {
		h.orders.Delete(id)
		h.tickets.Delete(id)
		delete(h.eventSeq, id)
		delete(h.pendingMessages, id)
		h.cancels.Remove(id)
	}
	h.logger.Debug("Trimmed closed orders", zap.Int("removed", len(victims)), zap.Int("kept", h.orders.Len()))
}
