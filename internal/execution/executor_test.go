package execution_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-tradeops/control-plane/internal/clock"
	"github.com/atlas-tradeops/control-plane/internal/execution"
	"github.com/atlas-tradeops/control-plane/internal/memstore"
	"github.com/atlas-tradeops/control-plane/internal/paperbroker"
	"github.com/atlas-tradeops/control-plane/internal/risk"
	"github.com/atlas-tradeops/control-plane/pkg/types"
)

func newExecutor(t *testing.T, startingCash float64) (*execution.Executor, *memstore.Store, string) {
	t.Helper()
	logger := zap.NewNop()
	c := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := memstore.New(logger)
	riskMgr := risk.NewManager(logger, c)
	prices := paperbroker.NewFixedPriceSource(map[string]decimal.Decimal{"AAPL": decimal.NewFromFloat(100)})
	paper := paperbroker.New(logger, c, prices, decimal.NewFromFloat(startingCash))

	ls := types.LiveStrategy{
		Owner: "alice", StrategyID: "strat1", Status: types.LiveStrategyStatusActive,
		PositionSizePct: decimal.NewFromFloat(0.1),
	}
	if err := store.PutLiveStrategy(context.Background(), ls); err != nil {
		t.Fatalf("seed live strategy: %v", err)
	}
	active, _ := store.ListActiveLiveStrategies(context.Background())
	id := active[0].ID

	exec := execution.New(logger, c, riskMgr, store, nil, paper, paper)
	return exec, store, id
}

func testSignal(lsID string) types.Signal {
	return types.Signal{
		ID: "sig1", LiveStrategyID: lsID, Symbol: "AAPL",
		Type: types.SignalTypeBuy, Strength: decimal.NewFromFloat(0.8),
		Indicators: map[string]decimal.Decimal{"close": decimal.NewFromFloat(100)},
	}
}

func TestExecuteHoldIsNoOp(t *testing.T) {
	exec, _, lsID := newExecutor(t, 100000)
	ls := types.LiveStrategy{ID: lsID, Owner: "alice"}
	sig := testSignal(lsID)
	sig.Type = types.SignalTypeHold

	result, err := exec.Execute(context.Background(), sig, ls, nil, risk.Portfolio{}, execution.Options{UsePaper: true})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success || result.OrderID != "" {
		t.Fatalf("expected no-op success, got %+v", result)
	}
}

func TestExecutePlacesOrderAndRecordsAudit(t *testing.T) {
	exec, store, lsID := newExecutor(t, 100000)
	ls, err := store.GetLiveStrategy(context.Background(), lsID)
	if err != nil {
		t.Fatalf("GetLiveStrategy: %v", err)
	}
	sig := testSignal(lsID)
	pf := risk.Portfolio{Equity: decimal.NewFromFloat(100000), BuyingPower: decimal.NewFromFloat(100000)}

	result, err := exec.Execute(context.Background(), sig, ls, nil, pf, execution.Options{UsePaper: true})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success || result.OrderID == "" {
		t.Fatalf("expected successful fill, got %+v", result)
	}

	updated, err := store.GetLiveStrategy(context.Background(), lsID)
	if err != nil {
		t.Fatalf("GetLiveStrategy: %v", err)
	}
	if updated.ExecutedTrades != 1 {
		t.Fatalf("expected ExecutedTrades=1, got %d", updated.ExecutedTrades)
	}
}

func TestExecuteBlockedByRiskRule(t *testing.T) {
	exec, store, lsID := newExecutor(t, 100000)
	ls, _ := store.GetLiveStrategy(context.Background(), lsID)
	sig := testSignal(lsID)
	pf := risk.Portfolio{Equity: decimal.NewFromFloat(100000), BuyingPower: decimal.NewFromFloat(100000)}

	rules := []types.RiskRule{{
		ID: "r1", IsActive: true, Type: types.RiskRuleMaxPositionSize,
		Threshold: decimal.NewFromFloat(1), Action: types.RiskActionBlock,
	}}

	result, err := exec.Execute(context.Background(), sig, ls, rules, pf, execution.Options{UsePaper: true})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Fatalf("expected execution to be blocked, got %+v", result)
	}

	updated, _ := store.GetLiveStrategy(context.Background(), lsID)
	if updated.ErrorCount != 1 {
		t.Fatalf("expected ErrorCount=1 after block, got %d", updated.ErrorCount)
	}
}

func TestExecuteDryRunDoesNotPlaceOrder(t *testing.T) {
	exec, store, lsID := newExecutor(t, 100000)
	ls := types.LiveStrategy{ID: lsID, Owner: "alice", PositionSizePct: decimal.NewFromFloat(0.1)}
	sig := testSignal(lsID)
	pf := risk.Portfolio{Equity: decimal.NewFromFloat(100000), BuyingPower: decimal.NewFromFloat(100000)}

	result, err := exec.Execute(context.Background(), sig, ls, nil, pf, execution.Options{DryRun: true, UsePaper: true})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success || !result.DryRun || result.OrderID != "" {
		t.Fatalf("expected dry-run success with no order placed, got %+v", result)
	}

	log, err := store.ListAuditLog(context.Background(), "alice", time.Time{}, time.Now().UTC().AddDate(1, 0, 0))
	if err != nil {
		t.Fatalf("ListAuditLog: %v", err)
	}
	if len(log) != 1 || log[0].EventType != types.AuditEventSignal {
		t.Fatalf("expected exactly one signal audit entry from dry run, got %+v", log)
	}

	updated, err := store.GetLiveStrategy(context.Background(), lsID)
	if err != nil {
		t.Fatalf("GetLiveStrategy: %v", err)
	}
	if updated.ExecutedTrades != 0 {
		t.Fatalf("expected dry run to leave counters untouched, got ExecutedTrades=%d", updated.ExecutedTrades)
	}
}
