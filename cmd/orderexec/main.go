package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/config"
	"github.com/Aidin1998/orderexec/internal/trading/handlers"
	"github.com/Aidin1998/orderexec/internal/trading/securities"
	"github.com/Aidin1998/orderexec/internal/trading/transaction"
	"github.com/Aidin1998/orderexec/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	// Bootstrap logger until the configured level is known
	bootLogger, err := logger.NewLogger("info")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	cfg, err := config.Load(bootLogger, *configPath)
	if err != nil {
		bootLogger.Fatal("Failed to load configuration", zap.Error(err))
	}
	zapLogger, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	secs := securities.NewManager()
	if cfg.SecuritiesFile != "" {
		secs, err = securities.LoadFile(cfg.SecuritiesFile)
		if err != nil {
			zapLogger.Fatal("Failed to load securities", zap.Error(err), zap.String("file", cfg.SecuritiesFile))
		}
	} else {
		zapLogger.Warn("No securities file configured, every submit will be rejected")
	}
	zapLogger.Info("Securities loaded", zap.Int("count", len(secs.All())))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Simulation runs on the clock the market data feed advances
	var clock securities.Clock = securities.RealClock{}
	var dataClock *securities.ManualClock
	if !cfg.Handler.LiveMode {
		dataClock = securities.NewManualClock(time.Now().UTC())
		clock = dataClock
	}

	app, err := wire(ctx, cfg, secs, clock, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to wire order execution", zap.Error(err))
	}
	defer app.close()

	fatal := make(chan error, 1)
	processor, err := transaction.NewHandler(cfg.ToHandlerConfig(), transaction.Deps{
		Venue:       app.venue,
		Securities:  secs,
		Portfolio:   app.portfolio,
		BuyingPower: app.buyingPower,
		Clock:       clock,
		Queue:       app.queue,
		Sinks:       app.sinks,
		OnRuntimeError: func(err error) {
			select {
			case fatal <- err:
			default:
			}
		},
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create transaction handler", zap.Error(err))
	}
	if err := processor.Start(ctx); err != nil {
		zapLogger.Fatal("Failed to start transaction handler", zap.Error(err))
	}

	// Synchronous processing: scan the venue, sync cash and trim history
	ticker := time.NewTicker(cfg.Handler.SyncInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				processor.ProcessSynchronousEvents(ctx)
			}
		}
	}()

	router := handlers.NewRouter(
		handlers.NewTradingHandler(processor, clock, zapLogger),
		handlers.NewMarketDataHandler(secs, dataClock, processor, zapLogger),
		processor.IsActive,
		zapLogger,
	)
	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		zapLogger.Info("Starting API server", zap.String("addr", cfg.HTTP.Addr), zap.Bool("live_mode", cfg.Handler.LiveMode))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Error("API server failed", zap.Error(err))
			select {
			case fatal <- err:
			default:
			}
		}
	}()

	// Wait for interrupt or a fatal runtime error to shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		zapLogger.Info("Shutting down server...", zap.String("signal", sig.String()))
	case err := <-fatal:
		zapLogger.Error("Shutting down after runtime error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Handler.ExitTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Failed to shut down API server", zap.Error(err))
	}

	processor.Exit()
	stop()
	app.checkpoint(shutdownCtx, processor)

	zapLogger.Info("Server exited properly")
}
