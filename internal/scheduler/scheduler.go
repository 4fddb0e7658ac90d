// Package scheduler runs the fixed-cadence tick loop that drives every
// ACTIVE LiveStrategy through fetch-bars -> indicators -> signal ->
// risk -> execute. Grounded on the teacher's internal/orchestrator
// Start/Stop/ticker-loop shape and internal/workers.Pool for bounded
// concurrency, stripped of the PhD-subsystem wiring (event bus, regime
// detection, Monte Carlo, walk-forward optimisation) those two files
// coordinated, none of which survive in this design.
package scheduler

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-tradeops/control-plane/internal/audit"
	"github.com/atlas-tradeops/control-plane/internal/clock"
	"github.com/atlas-tradeops/control-plane/internal/execution"
	"github.com/atlas-tradeops/control-plane/internal/indicator"
	"github.com/atlas-tradeops/control-plane/internal/risk"
	"github.com/atlas-tradeops/control-plane/internal/signalgen"
	"github.com/atlas-tradeops/control-plane/internal/telemetry"
	"github.com/atlas-tradeops/control-plane/internal/workers"
	"github.com/atlas-tradeops/control-plane/pkg/contracts"
	"github.com/atlas-tradeops/control-plane/pkg/types"
)

// maxConsecutiveFailures is the threshold at which a LiveStrategy is
// transitioned to ERROR and stops being scheduled.
const maxConsecutiveFailures = 5

// historyBarsRequested is how many bars of history the scheduler asks
// for on every check; generous enough for every indicator's warm-up
// (Ichimoku's default Senkou-B(52)+displacement(26) needs the most).
const historyBarsRequested = 250

// Config controls the scheduler's cadence and concurrency.
type Config struct {
	TickPeriod        time.Duration
	WorkerPoolSize    int
	MinCheckInterval  time.Duration
	ShutdownTimeout   time.Duration
}

// DefaultConfig matches the design's stated defaults.
func DefaultConfig() Config {
	return Config{
		TickPeriod:       60 * time.Second,
		WorkerPoolSize:   8,
		MinCheckInterval: 60 * time.Second,
		ShutdownTimeout:  30 * time.Second,
	}
}

// Scheduler is the M1 Strategy Scheduler.
type Scheduler struct {
	logger *zap.Logger
	clock  clock.Clock
	cfg    Config

	store    contracts.StateStore
	data     contracts.MarketDataSource
	broker   contracts.BrokerClient
	riskMgr  *risk.Manager
	executor *execution.Executor
	notify   contracts.NotificationSink

	pool *workers.Pool

	mu       sync.Mutex
	inFlight map[string]bool

	stopCh chan struct{}
	done   chan struct{}
}

// New creates a Scheduler. A LiveStrategy's AutoExecute flag decides
// only whether its non-HOLD signals are handed to executor; every such
// call runs against the paper broker (see checkSymbol).
func New(logger *zap.Logger, c clock.Clock, cfg Config, store contracts.StateStore, data contracts.MarketDataSource, broker contracts.BrokerClient, riskMgr *risk.Manager, executor *execution.Executor, notify contracts.NotificationSink) *Scheduler {
	pool := workers.NewPool(logger.Named("scheduler.pool"), &workers.PoolConfig{
		Name:            "scheduler",
		NumWorkers:      cfg.WorkerPoolSize,
		QueueSize:       cfg.WorkerPoolSize * 10,
		TaskTimeout:     cfg.TickPeriod,
		ShutdownTimeout: cfg.ShutdownTimeout,
		PanicRecovery:   true,
	})

	return &Scheduler{
		logger:   logger.Named("scheduler"),
		clock:    c,
		cfg:      cfg,
		store:    store,
		data:     data,
		broker:   broker,
		riskMgr:  riskMgr,
		executor: executor,
		notify:   notify,
		pool:     pool,
		inFlight: make(map[string]bool),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the tick loop until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.pool.Start()
	go s.loop(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Stop signals the loop to exit and then stops the worker pool.
// Stopping the pool cancels its context: workers take no further queued
// checks and stop waiting on running ones, so a check still running
// when Stop returns carries on in the background. ShutdownTimeout
// bounds only the wait for the workers themselves to exit.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.done
	if err := s.pool.Stop(); err != nil {
		s.logger.Warn("scheduler pool did not drain cleanly", zap.Error(err))
	}
}

// tick dispatches one check cycle for every ACTIVE LiveStrategy whose
// cadence is due. CheckInterval is a floor, not a fixed period: a
// strategy is only dispatched if at least CheckInterval has elapsed
// since its LastCheck, even though every strategy is polled once per
// TickPeriod.
func (s *Scheduler) tick(ctx context.Context) {
	strategies, err := s.store.ListActiveLiveStrategies(ctx)
	if err != nil {
		s.logger.Error("failed to list active live strategies", zap.Error(err))
		return
	}

	now := s.clock.Now()
	for _, ls := range strategies {
		ls := ls
		interval := ls.CheckInterval
		if interval < s.cfg.MinCheckInterval {
			interval = s.cfg.MinCheckInterval
		}
		if ls.LastCheck != nil && now.Sub(*ls.LastCheck) < interval {
			continue
		}

		if !s.claim(ls.ID) {
			continue // previous check for this strategy is still running
		}

		err := s.pool.SubmitFunc(func() error {
			defer s.release(ls.ID)
			s.checkOne(ctx, ls)
			return nil
		})
		if err != nil {
			s.release(ls.ID)
			s.logger.Warn("scheduler pool saturated, dropping this tick for strategy", zap.String("liveStrategyId", ls.ID), zap.Error(err))
		}
	}
}

func (s *Scheduler) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[id] {
		return false
	}
	s.inFlight[id] = true
	telemetry.SetInFlightStrategies(len(s.inFlight))
	return true
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
	telemetry.SetInFlightStrategies(len(s.inFlight))
}

// checkOne runs the M2 check pipeline for one LiveStrategy across every
// symbol it watches. LastCheck is advanced before any per-symbol work
// starts so a worker that panics partway through still moves the
// strategy's cadence clock forward instead of being retried every tick.
func (s *Scheduler) checkOne(ctx context.Context, ls types.LiveStrategy) {
	start := s.clock.Now()
	defer func() {
		telemetry.ObserveTickDuration(s.clock.Now().Sub(start).Seconds())
	}()

	now := start
	ls.LastCheck = &now
	if err := s.store.PutLiveStrategy(ctx, ls); err != nil {
		s.logger.Error("failed to advance last_check", zap.Error(err))
	}

	strategy, err := s.store.GetStrategy(ctx, ls.StrategyID)
	if err != nil {
		s.recordFailure(ctx, ls, "load strategy: "+err.Error())
		return
	}

	var lastErr error
	for _, symbol := range ls.Symbols {
		if err := s.checkSymbol(ctx, ls, strategy, symbol, now); err != nil {
			lastErr = err
		}
	}

	if lastErr != nil {
		s.recordFailure(ctx, ls, lastErr.Error())
		return
	}

	diff := contracts.LiveStrategyDiff{SetLastCheck: &now, ResetConsecutiveFailedTicks: true}
	if err := s.store.RecordAuditAndUpdateCounters(ctx, auditNoopCheck(now, ls), ls.ID, diff); err != nil {
		s.logger.Error("failed to record successful check", zap.Error(err))
	}
}

func (s *Scheduler) checkSymbol(ctx context.Context, ls types.LiveStrategy, strategy types.Strategy, symbol string, now time.Time) error {
	bars, err := s.data.GetBars(ctx, symbol, types.Timeframe1Day, now.AddDate(0, 0, -historyBarsRequested), now, historyBarsRequested)
	if err != nil {
		return err
	}

	snap, err := indicator.BuildSnapshot(bars, strategy.Type, strategy.Parameters)
	if err != nil {
		return err
	}

	positions, err := s.broker.ListPositions(ctx)
	if err != nil {
		return err
	}
	hasPosition := false
	for _, pos := range positions {
		if pos.Symbol == symbol {
			hasPosition = true
			break
		}
	}

	result, err := signalgen.Generate(strategy.Type, strategy.Parameters, snap, hasPosition)
	if err != nil {
		return err
	}

	sig := types.Signal{
		LiveStrategyID: ls.ID,
		Symbol:         symbol,
		Timestamp:      now,
		Type:           result.Type,
		Strength:       result.Strength,
		Reasoning:      result.Reasoning,
		Indicators:     result.Indicators,
	}
	if err := s.store.PutSignal(ctx, sig); err != nil {
		s.logger.Error("failed to persist signal", zap.Error(err))
	}

	telemetry.RecordSignal(string(result.Type))

	if result.Type == types.SignalTypeHold {
		return nil
	}

	signalDiff := contracts.LiveStrategyDiff{TotalSignalsDelta: 1, SetLastSignalAt: &now}
	if err := s.store.RecordAuditAndUpdateCounters(ctx, signalAudit(now, ls, symbol, result), ls.ID, signalDiff); err != nil {
		s.logger.Error("failed to record signal audit", zap.Error(err))
	}

	if !ls.AutoExecute {
		return nil
	}

	account, err := s.broker.GetAccount(ctx)
	if err != nil {
		return err
	}
	pf := portfolioFromAccount(account, positions, symbol)

	rules, err := s.store.ListActiveRiskRules(ctx, ls.Owner, ls.StrategyID)
	if err != nil {
		return err
	}

	// UsePaper is always true: there is no per-LiveStrategy paper/live
	// selector yet, so auto-execution never routes to the live broker
	// even when AutoExecute is set.
	execResult, err := s.executor.Execute(ctx, sig, ls, rules, pf, execution.Options{UsePaper: true})
	if err != nil {
		return err
	}
	if !execResult.Success {
		s.logger.Warn("signal execution did not result in a trade",
			zap.String("liveStrategyId", ls.ID), zap.String("symbol", symbol), zap.String("reason", execResult.Error))
	}
	return nil
}

func (s *Scheduler) recordFailure(ctx context.Context, ls types.LiveStrategy, reason string) {
	now := s.clock.Now()
	diff := contracts.LiveStrategyDiff{
		ErrorCountDelta:             1,
		ConsecutiveFailedTicksDelta: 1,
		SetLastCheck:                &now,
		SetLastError:                &reason,
	}
	if ls.ConsecutiveFailedTicks+1 >= maxConsecutiveFailures {
		errored := types.LiveStrategyStatusError
		diff.SetStatus = &errored
	}

	if err := s.store.RecordAuditAndUpdateCounters(ctx, types.TradeAuditLog{
		Timestamp: now, Owner: ls.Owner, EventType: types.AuditEventError,
		StrategyID: ls.StrategyID, Details: map[string]any{"reason": reason},
	}, ls.ID, diff); err != nil {
		s.logger.Error("failed to record check failure", zap.Error(err))
	}

	if diff.SetStatus != nil && s.notify != nil {
		_ = s.notify.Notify(ctx, ls.Owner, types.NotificationHigh, "Strategy disabled after repeated failures",
			"live strategy "+ls.ID+" moved to ERROR after "+strconv.Itoa(maxConsecutiveFailures)+" consecutive failed checks: "+reason, nil)
	}
}

func portfolioFromAccount(acct types.Account, positions []types.Position, symbol string) risk.Portfolio {
	gross := decimal.Zero
	hasSymbol := false
	for _, p := range positions {
		gross = gross.Add(p.Quantity.Mul(p.CurrentPrice).Abs())
		if p.Symbol == symbol {
			hasSymbol = true
		}
	}
	return risk.Portfolio{
		Equity:        acct.Equity,
		Cash:          acct.Cash,
		BuyingPower:   acct.BuyingPower,
		PeakEquity:    acct.PeakEquity,
		DailyPnL:      acct.DailyPnL,
		GrossExposure: gross,
		OpenPositions: len(positions),
		HasSymbol:     hasSymbol,
	}
}

func auditNoopCheck(now time.Time, ls types.LiveStrategy) types.TradeAuditLog {
	return audit.Entry(now, ls.Owner, types.AuditEventSignal, ls.StrategyID, "", "", decimal.Zero, decimal.Zero, "",
		map[string]any{"check": "completed"})
}

func signalAudit(now time.Time, ls types.LiveStrategy, symbol string, result signalgen.Result) types.TradeAuditLog {
	side := types.OrderSideBuy
	if result.Type == types.SignalTypeSell {
		side = types.OrderSideSell
	}
	entry := audit.Signal(now, ls.Owner, ls.StrategyID, symbol, side, result.Strength)
	entry.Details["reasoning"] = result.Reasoning
	return entry
}
