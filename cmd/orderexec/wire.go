package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/auditlog"
	"github.com/Aidin1998/orderexec/internal/trading/brokerage"
	"github.com/Aidin1998/orderexec/internal/trading/config"
	"github.com/Aidin1998/orderexec/internal/trading/eventjournal"
	"github.com/Aidin1998/orderexec/internal/trading/events"
	"github.com/Aidin1998/orderexec/internal/trading/fills"
	"github.com/Aidin1998/orderexec/internal/trading/messaging"
	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/Aidin1998/orderexec/internal/trading/orderqueue"
	"github.com/Aidin1998/orderexec/internal/trading/risk"
	"github.com/Aidin1998/orderexec/internal/trading/securities"
	"github.com/Aidin1998/orderexec/internal/trading/transaction"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// application holds everything the transaction handler depends on besides
// its configuration.
type application struct {
	logger      *zap.Logger
	venue       *brokerage.SimulatedVenue
	portfolio   *risk.Portfolio
	buyingPower risk.BuyingPowerModel
	queue       *orderqueue.BusyQueue
	sinks       []events.Sink
	journal     *eventjournal.FileJournal
	closers     []func() error
}

func wire(ctx context.Context, cfg *config.TradingConfig, secs *securities.Manager, clock securities.Clock, logger *zap.Logger) (*application, error) {
	app := &application{logger: logger}
	app.portfolio = risk.NewPortfolio(secs, cfg.Account.Currency, cfg.StartingCash())
	if cfg.Account.CashBuyingPower {
		app.buyingPower = risk.NewCashBuyingPowerModel()
	}

	app.venue = brokerage.NewSimulatedVenue(brokerage.SimulatedConfig{
		Securities:  secs,
		Portfolio:   app.portfolio,
		Clock:       clock,
		Fees:        feeModel(cfg.Simulation),
		Slippage:    slippageModel(cfg.Simulation),
		BuyingPower: app.buyingPower,
		StaleSpan:   cfg.Simulation.StalePriceSpan,
	}, logger)
	if err := app.venue.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect venue: %w", err)
	}
	app.closers = append(app.closers, app.venue.Disconnect)

	var queueJournal orderqueue.Journal
	if cfg.QueueJournal.Enabled {
		j, err := orderqueue.NewBadgerJournal(cfg.QueueJournal.Dir)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("failed to open queue journal: %w", err)
		}
		app.closers = append(app.closers, j.Close)
		reportUnfinishedRequests(ctx, j, logger)
		queueJournal = j
	}
	app.queue = orderqueue.NewBusyQueue(queueJournal, logger)

	if err := app.wireSinks(ctx, cfg); err != nil {
		app.close()
		return nil, err
	}
	return app, nil
}

func (app *application) wireSinks(ctx context.Context, cfg *config.TradingConfig) error {
	logger := app.logger

	journal, err := eventjournal.NewFileJournal(cfg.ToJournalConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to open event journal: %w", err)
	}
	app.journal = journal
	app.closers = append(app.closers, journal.Close)
	app.sinks = append(app.sinks, journal)
	if pending, err := journal.ReplayPending(ctx); err != nil {
		logger.Error("Failed to replay event journal", zap.Error(err))
	} else if len(pending) > 0 {
		for _, e := range pending {
			logger.Warn("Order was still open when the previous run stopped",
				zap.Int("order_id", e.OrderID),
				zap.String("symbol", e.Symbol),
				zap.String("status", string(e.Status)),
				zap.Time("last_event", e.UTCTime))
		}
	}

	bus := events.NewOrderEventBus(logger, 0)
	bus.Subscribe(events.TopicAssignment, func(e *model.OrderEvent) {
		logger.Info("Option assignment", zap.Int("order_id", e.OrderID), zap.String("symbol", e.Symbol),
			zap.String("quantity", e.FillQuantity.String()))
	})
	app.closers = append(app.closers, bus.Close)
	app.sinks = append(app.sinks, bus)

	if cfg.Kafka.Enabled {
		sink, err := messaging.NewKafkaSink(cfg.Kafka.ToKafkaConfig(), logger)
		if err != nil {
			return fmt.Errorf("failed to create kafka sink: %w", err)
		}
		app.closers = append(app.closers, sink.Close)
		app.sinks = append(app.sinks, sink)
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(cfg.Redis.RedisOptions())
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = client.Close()
			return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		app.closers = append(app.closers, client.Close)
		app.sinks = append(app.sinks, events.NewRedisSink(client, cfg.Redis.Channel, cfg.Redis.Expiration))
	}

	if cfg.Audit.Enabled {
		store, err := auditlog.Open(cfg.Audit.DSN, logger)
		if err != nil {
			return err
		}
		app.closers = append(app.closers, store.Close)
		app.sinks = append(app.sinks, store)
	}

	names := make([]string, 0, len(app.sinks))
	for _, s := range app.sinks {
		names = append(names, s.Name())
	}
	logger.Info("Order event sinks wired", zap.Strings("sinks", names))
	return nil
}

// checkpoint records the orders still open at shutdown.
func (app *application) checkpoint(ctx context.Context, processor *transaction.Handler) {
	if app.journal == nil {
		return
	}
	open := processor.GetOpenOrders(nil)
	ids := make([]int, 0, len(open))
	for _, o := range open {
		ids = append(ids, o.ID)
	}
	if err := app.journal.WriteCheckpoint(ctx, ids); err != nil {
		app.logger.Error("Failed to write shutdown checkpoint", zap.Error(err))
	}
}

// close releases resources in reverse order of acquisition.
func (app *application) close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Error("Failed to close resource", zap.Error(err))
		}
	}
	app.closers = nil
}

func reportUnfinishedRequests(ctx context.Context, j *orderqueue.BadgerJournal, logger *zap.Logger) {
	entries, err := j.ReplayPending(ctx)
	if err != nil {
		logger.Error("Failed to read queue journal", zap.Error(err))
		return
	}
	for _, e := range entries {
		logger.Warn("Request was queued but not processed before the previous run stopped",
			zap.String("request_id", e.RequestID),
			zap.String("kind", string(e.Kind)),
			zap.Int("order_id", e.OrderID),
			zap.String("symbol", e.Symbol))
	}
}

func feeModel(cfg config.SimulationConfig) fills.FeeModel {
	perOrder := parseOrZero(cfg.FeePerOrder)
	perUnit := parseOrZero(cfg.FeePerUnit)
	switch {
	case perUnit.IsPositive():
		return fills.PerUnitFee{PerUnit: perUnit, Minimum: perOrder}
	case perOrder.IsPositive():
		return fills.ConstantFee{Amount: perOrder}
	}
	return nil
}

func slippageModel(cfg config.SimulationConfig) fills.SlippageModel {
	if pct := parseOrZero(cfg.SlippagePct); pct.IsPositive() {
		return fills.ConstantSlippage{Percent: pct}
	}
	return nil
}

// parseOrZero is used on values the config validator already checked.
func parseOrZero(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
