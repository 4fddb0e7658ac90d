// Package optimizer implements the Strategy Optimiser: for a set of
// symbols, strategies, a date range and initial capital, it backtests
// every (symbol, strategy) pair in parallel, scores each result with
// the composite formula and ranks them per symbol. Grounded on the
// teacher's internal/optimization.Optimizer (ParallelWorkers/semaphore
// fan-out, ObjectiveFunc-style per-candidate evaluation) narrowed from
// genetic/Bayesian/grid search down to a literal grid over
// (symbol x strategy), since that is the entire search space this
// design asks for.
package optimizer

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-tradeops/control-plane/internal/indicator"
	"github.com/atlas-tradeops/control-plane/internal/signalgen"
	"github.com/atlas-tradeops/control-plane/internal/telemetry"
	"github.com/atlas-tradeops/control-plane/pkg/contracts"
	"github.com/atlas-tradeops/control-plane/pkg/types"
	"github.com/atlas-tradeops/control-plane/pkg/utils"
)

// Config controls the optimiser's concurrency.
type Config struct {
	WorkerPoolSize int
}

// DefaultConfig sizes the worker pool to available cores, matching the
// teacher's ParallelWorkers default reasoning.
func DefaultConfig(numCPU int) Config {
	if numCPU < 1 {
		numCPU = 1
	}
	return Config{WorkerPoolSize: numCPU}
}

// Optimizer is the T1 Strategy Optimiser.
type Optimizer struct {
	logger *zap.Logger
	cfg    Config
	store  contracts.StateStore
	data   contracts.MarketDataSource
	notify contracts.NotificationSink
}

// New creates an Optimizer.
func New(logger *zap.Logger, cfg Config, store contracts.StateStore, data contracts.MarketDataSource, notify contracts.NotificationSink) *Optimizer {
	return &Optimizer{logger: logger.Named("optimizer"), cfg: cfg, store: store, data: data, notify: notify}
}

// candidate is one (symbol, strategy) backtest unit.
type candidate struct {
	symbol   string
	strategy types.Strategy
}

// RunJob executes an OptimizationJob end to end: advances its status
// PENDING -> RUNNING -> COMPLETED/FAILED, persisting the transition and
// final ranked results via the StateStore. Intended to be invoked from
// a goroutine the caller does not wait on (the job contract is
// asynchronous).
func (o *Optimizer) RunJob(ctx context.Context, job types.OptimizationJob, strategies []types.Strategy) {
	start := time.Now()
	defer func() { telemetry.ObserveOptimizerJobDuration(time.Since(start).Seconds()) }()

	job.Status = types.OptimizationJobRunning
	if err := o.store.PutOptimizationJob(ctx, job); err != nil {
		o.logger.Error("failed to mark job running", zap.String("jobId", job.ID), zap.Error(err))
		return
	}

	candidates := make([]candidate, 0, len(job.Symbols)*len(strategies))
	for _, symbol := range job.Symbols {
		for _, strat := range strategies {
			candidates = append(candidates, candidate{symbol: symbol, strategy: strat})
		}
	}

	type outcome struct {
		candidate candidate
		metrics   types.PerformanceMetrics
		err       error
	}

	results := make(chan outcome, len(candidates))
	sem := make(chan struct{}, o.cfg.WorkerPoolSize)
	var wg sync.WaitGroup

	for _, c := range candidates {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			metrics, err := o.backtest(ctx, c.symbol, c.strategy, job.StartDate, job.EndDate, job.InitialCapital)
			results <- outcome{candidate: c, metrics: metrics, err: err}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	bySymbol := make(map[string][]RankedCandidate)
	failures := 0
	for res := range results {
		if res.err != nil {
			failures++
			telemetry.RecordOptimizerCandidate("failed")
			o.logger.Warn("backtest failed", zap.String("symbol", res.candidate.symbol),
				zap.String("strategyId", res.candidate.strategy.ID), zap.Error(res.err))
			continue
		}
		telemetry.RecordOptimizerCandidate("succeeded")
		bySymbol[res.candidate.symbol] = append(bySymbol[res.candidate.symbol], RankedCandidate{
			StrategyID: res.candidate.strategy.ID,
			Parameters: res.candidate.strategy.Parameters,
			Metrics:    res.metrics,
		})
	}

	if failures == len(candidates) {
		job.Status = types.OptimizationJobFailed
		job.Error = "every backtest in the grid failed"
		now := time.Now()
		job.CompletedAt = &now
		if err := o.store.PutOptimizationJob(ctx, job); err != nil {
			o.logger.Error("failed to persist failed job", zap.Error(err))
		}
		return
	}

	var ranked []types.RankedResult
	for symbol, candidates := range bySymbol {
		ranked = append(ranked, rankBySymbol(symbol, candidates)...)
	}

	job.Status = types.OptimizationJobCompleted
	job.Results = ranked
	now := time.Now()
	job.CompletedAt = &now
	if err := o.store.PutOptimizationJob(ctx, job); err != nil {
		o.logger.Error("failed to persist completed job", zap.Error(err))
	}

	if o.notify != nil {
		_ = o.notify.Notify(ctx, job.Owner, types.NotificationMedium, "Optimisation complete",
			"ranked results are ready for job "+job.ID, nil)
	}
}

// RankedCandidate is one un-ranked backtest result awaiting normalisation
// against its symbol cohort.
type RankedCandidate struct {
	StrategyID string
	Parameters map[string]decimal.Decimal
	Metrics    types.PerformanceMetrics
}

// rankBySymbol normalises each metric within the symbol's cohort,
// computes the composite score and returns results sorted best-first.
func rankBySymbol(symbol string, candidates []RankedCandidate) []types.RankedResult {
	n := len(candidates)
	if n == 0 {
		return nil
	}

	returns := make([]decimal.Decimal, n)
	sharpes := make([]decimal.Decimal, n)
	drawdowns := make([]decimal.Decimal, n)
	winRates := make([]decimal.Decimal, n)
	for i, c := range candidates {
		returns[i] = c.Metrics.TotalReturnPct
		sharpes[i] = c.Metrics.SharpeRatio
		drawdowns[i] = c.Metrics.MaxDrawdownPct.Abs()
		winRates[i] = c.Metrics.WinRate
	}

	normReturn := minMaxNormalize(returns)
	normSharpe := minMaxNormalize(sharpes)
	normDrawdown := minMaxNormalize(drawdowns)
	normWinRate := minMaxNormalize(winRates)

	wReturn := decimal.NewFromFloat(0.30)
	wSharpe := decimal.NewFromFloat(0.30)
	wDrawdown := decimal.NewFromFloat(0.20)
	wWinRate := decimal.NewFromFloat(0.20)
	one := decimal.NewFromInt(1)

	results := make([]types.RankedResult, n)
	for i, c := range candidates {
		score := normReturn[i].Mul(wReturn).
			Add(normSharpe[i].Mul(wSharpe)).
			Add(one.Sub(normDrawdown[i]).Mul(wDrawdown)).
			Add(normWinRate[i].Mul(wWinRate))

		results[i] = types.RankedResult{
			StrategyID:     c.StrategyID,
			Symbol:         symbol,
			Parameters:     c.Parameters,
			Metrics:        c.Metrics,
			CompositeScore: score,
		}
	}

	// Sort best-first by composite score.
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].CompositeScore.GreaterThan(results[j-1].CompositeScore); j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
	for i := range results {
		results[i].Rank = i + 1
	}

	return results
}

// minMaxNormalize scales every value into [0, 1] within the slice's own
// range. A degenerate (all-equal) cohort normalises to 0.5 for every
// entry so it neither helps nor hurts the composite score.
func minMaxNormalize(values []decimal.Decimal) []decimal.Decimal {
	if len(values) == 0 {
		return nil
	}
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		min = utils.MinDecimal(min, v)
		max = utils.MaxDecimal(max, v)
	}

	out := make([]decimal.Decimal, len(values))
	spread := max.Sub(min)
	for i, v := range values {
		if spread.IsZero() {
			out[i] = decimal.NewFromFloat(0.5)
			continue
		}
		out[i] = v.Sub(min).Div(spread)
	}
	return out
}

// backtest walks a symbol's OHLCV history chronologically, computing
// indicators over the window ending at each bar and simulating fills at
// that bar's close, with no look-ahead — the same single-file,
// single-threaded walk the spec's backtest driver describes, reusing
// internal/indicator and internal/signalgen directly instead of a
// second copy of the live dispatch logic.
func (o *Optimizer) backtest(ctx context.Context, symbol string, strategy types.Strategy, start, end time.Time, initialCapital decimal.Decimal) (types.PerformanceMetrics, error) {
	bars, err := o.data.GetBars(ctx, symbol, types.Timeframe1Day, start, end, 0)
	if err != nil {
		return types.PerformanceMetrics{}, err
	}
	if len(bars) < 2 {
		return types.PerformanceMetrics{}, indicator.ErrInsufficientData
	}

	cash := initialCapital
	qty := decimal.Zero
	entryPrice := decimal.Zero
	equityCurve := make([]decimal.Decimal, 0, len(bars))
	var roundTripPnLs []decimal.Decimal
	trades := 0

	for i := 2; i <= len(bars); i++ {
		window := bars[:i]
		snap, err := indicator.BuildSnapshot(window, strategy.Type, strategy.Parameters)
		if err != nil {
			equityCurve = append(equityCurve, cash.Add(qty.Mul(window[len(window)-1].Close)))
			continue
		}

		sig, err := signalgen.Generate(strategy.Type, strategy.Parameters, snap, qty.GreaterThan(decimal.Zero))
		if err != nil {
			equityCurve = append(equityCurve, cash.Add(qty.Mul(window[len(window)-1].Close)))
			continue
		}

		price := window[len(window)-1].Close
		switch sig.Type {
		case types.SignalTypeBuy:
			if qty.IsZero() && cash.GreaterThan(decimal.Zero) {
				qty = cash.Div(price)
				entryPrice = price
				cash = decimal.Zero
				trades++
			}
		case types.SignalTypeSell:
			if qty.GreaterThan(decimal.Zero) {
				proceeds := qty.Mul(price)
				pnl := proceeds.Sub(qty.Mul(entryPrice))
				roundTripPnLs = append(roundTripPnLs, pnl)
				cash = proceeds
				qty = decimal.Zero
				trades++
			}
		}

		equityCurve = append(equityCurve, cash.Add(qty.Mul(price)))
	}

	if qty.GreaterThan(decimal.Zero) {
		last := bars[len(bars)-1].Close
		proceeds := qty.Mul(last)
		roundTripPnLs = append(roundTripPnLs, proceeds.Sub(qty.Mul(entryPrice)))
		cash = proceeds
	}

	finalEquity := cash
	totalReturn := decimal.Zero
	if initialCapital.GreaterThan(decimal.Zero) {
		totalReturn = finalEquity.Sub(initialCapital).Div(initialCapital).Mul(decimal.NewFromInt(100))
	}

	returns := utils.CalculateReturns(equityCurve)
	sharpe := utils.CalculateSharpeRatio(returns, decimal.Zero, 252)
	maxDrawdown := utils.CalculateMaxDrawdown(equityCurve)
	winRate := utils.CalculateWinRate(roundTripPnLs)
	profitFactor := utils.CalculateProfitFactor(roundTripPnLs)

	return types.PerformanceMetrics{
		TotalReturnPct: totalReturn,
		SharpeRatio:    sharpe,
		MaxDrawdownPct: maxDrawdown,
		WinRate:        winRate,
		ProfitFactor:   profitFactor,
		TotalTrades:    trades,
	}, nil
}
