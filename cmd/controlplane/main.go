// Package main is the entry point for the trading control plane
// server: it wires the Strategy Scheduler, Risk Manager, Signal
// Executor and Strategy Optimiser behind the HTTP/WebSocket control
// surface and serves them until SIGINT/SIGTERM. Grounded on the
// teacher's cmd/server/main.go flag parsing, setupLogger and graceful
// shutdown idiom, stripped of the PhD-subsystem wiring (autonomous
// agents, blockchain clients, regime detection) that file coordinated.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/atlas-tradeops/control-plane/internal/api"
	"github.com/atlas-tradeops/control-plane/internal/clock"
	"github.com/atlas-tradeops/control-plane/internal/config"
	"github.com/atlas-tradeops/control-plane/internal/execution"
	"github.com/atlas-tradeops/control-plane/internal/memstore"
	"github.com/atlas-tradeops/control-plane/internal/optimizer"
	"github.com/atlas-tradeops/control-plane/internal/paperbroker"
	"github.com/atlas-tradeops/control-plane/internal/risk"
	"github.com/atlas-tradeops/control-plane/internal/scheduler"
	"github.com/atlas-tradeops/control-plane/internal/telemetry"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address for the control surface")
	metricsAddr := flag.String("metrics-addr", ":9090", "HTTP listen address for the Prometheus /metrics endpoint")
	configPath := flag.String("config", "", "path to a YAML config file (defaults are used if empty)")
	logLevel := flag.String("log-level", "", "overrides logging.level from config (debug, info, warn, error)")
	startingCash := flag.Float64("starting-cash", 100000, "starting cash balance for the built-in paper broker")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	logger := setupLogger(cfg.Logging.Level)
	defer logger.Sync()

	logger.Info("starting control plane",
		zap.String("addr", *addr),
		zap.String("metricsAddr", *metricsAddr),
		zap.Int("schedulerWorkerPool", cfg.Scheduler.WorkerPoolSize),
	)

	realClock := clock.Real{}
	store := memstore.New(logger)

	prices := paperbroker.NewSyntheticSource(map[string]decimal.Decimal{
		"AAPL":  decimal.NewFromInt(190),
		"MSFT":  decimal.NewFromInt(420),
		"GOOGL": decimal.NewFromInt(165),
		"AMZN":  decimal.NewFromInt(185),
		"NVDA":  decimal.NewFromInt(120),
	})
	broker := paperbroker.New(logger, realClock, prices, decimal.NewFromFloat(*startingCash))

	hub := api.NewHub(logger)
	riskMgr := risk.NewManager(logger, realClock)
	executor := execution.New(logger, realClock, riskMgr, store, hub, broker, broker)

	schedulerCfg := scheduler.Config{
		TickPeriod:       cfg.TickPeriod(),
		WorkerPoolSize:   cfg.Scheduler.WorkerPoolSize,
		MinCheckInterval: cfg.MinCheckInterval(),
		ShutdownTimeout:  30 * time.Second,
	}
	sched := scheduler.New(logger, realClock, schedulerCfg, store, prices, broker, riskMgr, executor, hub)

	opt := optimizer.New(logger, optimizer.DefaultConfig(runtime.NumCPU()), store, prices, hub)

	telemetry.Init()
	apiCfg := api.DefaultConfig()
	apiCfg.Addr = *addr
	apiCfg.MinCheckInterval = cfg.MinCheckInterval()
	apiCfg.DefaultPositionSizePct = decimal.NewFromFloat(cfg.Risk.DefaultPositionSizePct)
	server := api.NewServer(logger, apiCfg, store, broker, opt, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)

	metricsServer := &http.Server{Addr: *metricsAddr, Handler: telemetryHandler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("api server stopped", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received")

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("error during api server shutdown", zap.Error(err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during metrics server shutdown", zap.Error(err))
	}

	logger.Info("control plane stopped")
}

func telemetryHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler())
	return mux
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
