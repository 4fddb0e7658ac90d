package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-tradeops/control-plane/internal/memstore"
	"github.com/atlas-tradeops/control-plane/pkg/contracts"
	"github.com/atlas-tradeops/control-plane/pkg/types"
)

func TestPutAndGetLiveStrategy(t *testing.T) {
	s := memstore.New(zap.NewNop())
	ctx := context.Background()

	ls := types.LiveStrategy{Owner: "alice", Status: types.LiveStrategyStatusActive}
	if err := s.PutLiveStrategy(ctx, ls); err != nil {
		t.Fatalf("PutLiveStrategy: %v", err)
	}

	active, err := s.ListActiveLiveStrategies(ctx)
	if err != nil {
		t.Fatalf("ListActiveLiveStrategies: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active strategy, got %d", len(active))
	}
	if active[0].ID == "" {
		t.Fatal("expected generated ID")
	}

	got, err := s.GetLiveStrategy(ctx, active[0].ID)
	if err != nil {
		t.Fatalf("GetLiveStrategy: %v", err)
	}
	if got.Owner != "alice" {
		t.Fatalf("expected owner alice, got %q", got.Owner)
	}
}

func TestGetLiveStrategyNotFound(t *testing.T) {
	s := memstore.New(zap.NewNop())
	if _, err := s.GetLiveStrategy(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for missing live strategy")
	}
}

func TestRecordAuditAndUpdateCountersIsAtomic(t *testing.T) {
	s := memstore.New(zap.NewNop())
	ctx := context.Background()

	ls := types.LiveStrategy{Owner: "bob", Status: types.LiveStrategyStatusActive}
	if err := s.PutLiveStrategy(ctx, ls); err != nil {
		t.Fatalf("PutLiveStrategy: %v", err)
	}
	strategies, _ := s.ListActiveLiveStrategies(ctx)
	id := strategies[0].ID

	entry := types.TradeAuditLog{Timestamp: time.Now(), Owner: "bob", EventType: types.AuditEventOrder}
	diff := contracts.LiveStrategyDiff{ExecutedTradesDelta: 1, ResetConsecutiveFailedTicks: true}
	if err := s.RecordAuditAndUpdateCounters(ctx, entry, id, diff); err != nil {
		t.Fatalf("RecordAuditAndUpdateCounters: %v", err)
	}

	updated, err := s.GetLiveStrategy(ctx, id)
	if err != nil {
		t.Fatalf("GetLiveStrategy: %v", err)
	}
	if updated.ExecutedTrades != 1 {
		t.Fatalf("expected ExecutedTrades=1, got %d", updated.ExecutedTrades)
	}

	log, err := s.ListAuditLog(ctx, "bob", time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("ListAuditLog: %v", err)
	}
	if len(log) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(log))
	}
}

func TestRecordAuditAndUpdateCountersUnknownStrategyFails(t *testing.T) {
	s := memstore.New(zap.NewNop())
	entry := types.TradeAuditLog{Timestamp: time.Now(), Owner: "bob"}
	err := s.RecordAuditAndUpdateCounters(context.Background(), entry, "missing", contracts.LiveStrategyDiff{})
	if err == nil {
		t.Fatal("expected error for unknown live strategy")
	}
}

func TestActiveRiskRulesFilteredByOwnerAndStrategy(t *testing.T) {
	s := memstore.New(zap.NewNop())
	s.AddRiskRule(types.RiskRule{Owner: "alice", StrategyID: "s1", IsActive: true, Type: types.RiskRuleMaxDrawdown, Threshold: decimal.NewFromFloat(0.2), Action: types.RiskActionAlert})
	s.AddRiskRule(types.RiskRule{Owner: "alice", StrategyID: "s2", IsActive: true, Type: types.RiskRuleMaxDrawdown, Threshold: decimal.NewFromFloat(0.2), Action: types.RiskActionAlert})
	s.AddRiskRule(types.RiskRule{Owner: "alice", IsActive: false, Type: types.RiskRuleMaxDrawdown, Threshold: decimal.NewFromFloat(0.2), Action: types.RiskActionAlert})

	rules, err := s.ListActiveRiskRules(context.Background(), "alice", "s1")
	if err != nil {
		t.Fatalf("ListActiveRiskRules: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected 1 matching active rule, got %d", len(rules))
	}
}
