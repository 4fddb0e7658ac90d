package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-tradeops/control-plane/internal/clock"
	"github.com/atlas-tradeops/control-plane/internal/execution"
	"github.com/atlas-tradeops/control-plane/internal/memstore"
	"github.com/atlas-tradeops/control-plane/internal/paperbroker"
	"github.com/atlas-tradeops/control-plane/internal/risk"
	"github.com/atlas-tradeops/control-plane/internal/scheduler"
	"github.com/atlas-tradeops/control-plane/pkg/types"
)

var errDataUnavailable = errors.New("market data unavailable")

// fakeData serves the same OHLCV series for any symbol, or fails every
// call with err when it is set.
type fakeData struct {
	bars []types.OHLCV
	err  error
}

func (f *fakeData) GetBars(ctx context.Context, symbol string, tf types.Timeframe, start, end time.Time, limit int) ([]types.OHLCV, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.bars, nil
}

func risingBars(n int, start time.Time) []types.OHLCV {
	bars := make([]types.OHLCV, n)
	price := decimal.NewFromFloat(50)
	step := decimal.NewFromFloat(0.5)
	for i := 0; i < n; i++ {
		price = price.Add(step)
		bars[i] = types.OHLCV{
			Timestamp: start.AddDate(0, 0, i),
			Open:      price, High: price.Add(decimal.NewFromFloat(1)),
			Low: price.Sub(decimal.NewFromFloat(1)), Close: price,
			Volume: decimal.NewFromFloat(1000),
		}
	}
	return bars
}

func newHarness(t *testing.T, bars []types.OHLCV) (*scheduler.Scheduler, *memstore.Store, string) {
	return newHarnessWithData(t, &fakeData{bars: bars})
}

func newHarnessWithData(t *testing.T, data *fakeData) (*scheduler.Scheduler, *memstore.Store, string) {
	t.Helper()
	logger := zap.NewNop()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFake(now)
	store := memstore.New(logger)

	strategy := types.Strategy{
		ID: "strat1", Owner: "alice", Type: types.StrategyTypeSMACrossover,
		Parameters: map[string]decimal.Decimal{
			"shortPeriod": decimal.NewFromInt(3),
			"longPeriod":  decimal.NewFromInt(5),
		},
		Symbols: []string{"AAPL"},
	}
	if err := store.PutStrategy(context.Background(), strategy); err != nil {
		t.Fatalf("seed strategy: %v", err)
	}

	ls := types.LiveStrategy{
		Owner: "alice", StrategyID: "strat1", Symbols: []string{"AAPL"},
		Status: types.LiveStrategyStatusActive, CheckInterval: time.Second,
		AutoExecute: true, PositionSizePct: decimal.NewFromFloat(0.1),
	}
	if err := store.PutLiveStrategy(context.Background(), ls); err != nil {
		t.Fatalf("seed live strategy: %v", err)
	}
	active, _ := store.ListActiveLiveStrategies(context.Background())
	lsID := active[0].ID

	prices := paperbroker.NewFixedPriceSource(map[string]decimal.Decimal{"AAPL": decimal.NewFromFloat(60)})
	broker := paperbroker.New(logger, c, prices, decimal.NewFromFloat(100000))
	riskMgr := risk.NewManager(logger, c)
	exec := execution.New(logger, c, riskMgr, store, nil, broker, broker)

	cfg := scheduler.DefaultConfig()
	cfg.MinCheckInterval = 0
	cfg.TickPeriod = 20 * time.Millisecond
	s := scheduler.New(logger, c, cfg, store, data, broker, riskMgr, exec, nil)
	return s, store, lsID
}

func TestSchedulerTickAdvancesLastCheck(t *testing.T) {
	s, store, lsID := newHarness(t, risingBars(30, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	s.Start(context.Background())
	defer s.Stop()

	time.Sleep(200 * time.Millisecond)

	updated, err := store.GetLiveStrategy(context.Background(), lsID)
	if err != nil {
		t.Fatalf("GetLiveStrategy: %v", err)
	}
	if updated.LastCheck == nil {
		t.Fatalf("expected LastCheck to be set after scheduler ran")
	}
}

func TestSchedulerRecordsConsecutiveFailuresOnDataError(t *testing.T) {
	s, store, lsID := newHarnessWithData(t, &fakeData{err: errDataUnavailable})
	s.Start(context.Background())
	defer s.Stop()

	time.Sleep(350 * time.Millisecond)

	updated, err := store.GetLiveStrategy(context.Background(), lsID)
	if err != nil {
		t.Fatalf("GetLiveStrategy: %v", err)
	}
	if updated.ConsecutiveFailedTicks == 0 {
		t.Fatalf("expected at least one recorded failure")
	}
	if updated.LastError == "" {
		t.Fatalf("expected LastError to be recorded")
	}
}
