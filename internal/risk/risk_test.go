package risk_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-tradeops/control-plane/internal/clock"
	"github.com/atlas-tradeops/control-plane/internal/risk"
	"github.com/atlas-tradeops/control-plane/pkg/types"
)

func newManager() *risk.Manager {
	return risk.NewManager(zap.NewNop(), clock.NewFake(time.Now()))
}

func TestEvaluateNoRulesApproved(t *testing.T) {
	m := newManager()
	eval := m.Evaluate(context.Background(), nil, risk.ProposedOrder{Symbol: "AAPL", Quantity: decimal.NewFromInt(10), EstimatedPrice: decimal.NewFromFloat(100)}, risk.Portfolio{})
	if !eval.Approved() {
		t.Fatalf("expected approval with no rules, got %+v", eval)
	}
}

func TestEvaluateMaxPositionSizeBlocks(t *testing.T) {
	m := newManager()
	rules := []types.RiskRule{{
		ID: "r1", IsActive: true, Type: types.RiskRuleMaxPositionSize,
		Threshold: decimal.NewFromFloat(500), Action: types.RiskActionBlock,
	}}
	proposed := risk.ProposedOrder{Symbol: "AAPL", Quantity: decimal.NewFromInt(10), EstimatedPrice: decimal.NewFromFloat(100)}
	eval := m.Evaluate(context.Background(), rules, proposed, risk.Portfolio{})
	if eval.Approved() {
		t.Fatal("expected order to be blocked")
	}
	if eval.Action != types.RiskActionBlock {
		t.Fatalf("expected BLOCK, got %s", eval.Action)
	}
}

func TestEvaluatePicksStrongestAction(t *testing.T) {
	m := newManager()
	rules := []types.RiskRule{
		{ID: "alert", IsActive: true, Type: types.RiskRuleMaxPositionSize, Threshold: decimal.NewFromFloat(1), Action: types.RiskActionAlert},
		{ID: "closeall", IsActive: true, Type: types.RiskRuleMaxLeverage, Threshold: decimal.NewFromFloat(0), Action: types.RiskActionCloseAll},
	}
	proposed := risk.ProposedOrder{Symbol: "AAPL", Quantity: decimal.NewFromInt(10), EstimatedPrice: decimal.NewFromFloat(100)}
	pf := risk.Portfolio{Equity: decimal.NewFromFloat(1000), GrossExposure: decimal.NewFromFloat(500)}
	eval := m.Evaluate(context.Background(), rules, proposed, pf)
	if eval.Action != types.RiskActionCloseAll {
		t.Fatalf("expected CLOSE_ALL to win over ALERT, got %s", eval.Action)
	}
}

func TestEvaluateReduceSizeFindsClearingQuantity(t *testing.T) {
	m := newManager()
	rules := []types.RiskRule{{
		ID: "r1", IsActive: true, Type: types.RiskRuleMaxPositionSize,
		Threshold: decimal.NewFromFloat(550), Action: types.RiskActionReduceSize,
	}}
	proposed := risk.ProposedOrder{Symbol: "AAPL", Quantity: decimal.NewFromInt(10), EstimatedPrice: decimal.NewFromFloat(100)}
	eval := m.Evaluate(context.Background(), rules, proposed, risk.Portfolio{})
	if eval.Action != types.RiskActionReduceSize {
		t.Fatalf("expected REDUCE_SIZE, got %s", eval.Action)
	}
	if !eval.AdjustedQuantity.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected adjusted quantity of 5 shares (500 notional), got %s", eval.AdjustedQuantity)
	}
}

func TestEvaluatePositionLimitCountsNewSymbol(t *testing.T) {
	m := newManager()
	rules := []types.RiskRule{{
		ID: "r1", IsActive: true, Type: types.RiskRulePositionLimit,
		Threshold: decimal.NewFromInt(3), Action: types.RiskActionBlock,
	}}
	pf := risk.Portfolio{OpenPositions: 3, HasSymbol: false}
	proposed := risk.ProposedOrder{Symbol: "MSFT", Quantity: decimal.NewFromInt(1), EstimatedPrice: decimal.NewFromFloat(10)}
	eval := m.Evaluate(context.Background(), rules, proposed, pf)
	if eval.Approved() {
		t.Fatal("expected a 4th new position to breach the position limit")
	}
}

func TestCalculatePositionSizeByPercentOfBuyingPower(t *testing.T) {
	m := newManager()
	qty, reason := m.CalculatePositionSize(risk.PositionSizeInput{
		PositionSizePct: decimal.NewFromFloat(0.1),
		BuyingPower:     decimal.NewFromFloat(10000),
		EntryPrice:      decimal.NewFromFloat(50),
	})
	if reason != "" {
		t.Fatalf("unexpected rejection: %s", reason)
	}
	if !qty.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected 20 shares (10%% of 10000 / 50), got %s", qty)
	}
}

func TestCalculatePositionSizeBelowMinimumShare(t *testing.T) {
	m := newManager()
	qty, reason := m.CalculatePositionSize(risk.PositionSizeInput{
		PositionSizePct: decimal.NewFromFloat(0.001),
		BuyingPower:     decimal.NewFromFloat(100),
		EntryPrice:      decimal.NewFromFloat(1000),
	})
	if reason == "" {
		t.Fatal("expected a rejection reason for sub-share sizing")
	}
	if !qty.IsZero() {
		t.Fatalf("expected zero quantity, got %s", qty)
	}
}

func TestCalculatePositionSizeRespectsStopLossRisk(t *testing.T) {
	m := newManager()
	qty, _ := m.CalculatePositionSize(risk.PositionSizeInput{
		PositionSizePct: decimal.NewFromFloat(1), // would otherwise buy max shares
		BuyingPower:     decimal.NewFromFloat(100000),
		EntryPrice:      decimal.NewFromFloat(100),
		StopLoss:        decimal.NewFromFloat(95),
		RiskPerTrade:    decimal.NewFromFloat(0.01),
		Equity:          decimal.NewFromFloat(10000),
	})
	// risk budget = 100, stop distance = 5 -> 20 shares, far below the pct cap
	if !qty.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected stop-loss risk sizing to cap at 20 shares, got %s", qty)
	}
}
