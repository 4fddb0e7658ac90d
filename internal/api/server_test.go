package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-tradeops/control-plane/internal/api"
	"github.com/atlas-tradeops/control-plane/internal/clock"
	"github.com/atlas-tradeops/control-plane/internal/memstore"
	"github.com/atlas-tradeops/control-plane/internal/optimizer"
	"github.com/atlas-tradeops/control-plane/internal/paperbroker"
	"github.com/atlas-tradeops/control-plane/pkg/types"
)

func newHarness(t *testing.T) (*httptest.Server, *memstore.Store) {
	t.Helper()
	logger := zap.NewNop()

	store := memstore.New(logger)
	prices := paperbroker.NewFixedPriceSource(map[string]decimal.Decimal{
		"AAPL": decimal.NewFromInt(100),
	})
	broker := paperbroker.New(logger, clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), prices, decimal.NewFromInt(100000))
	opt := optimizer.New(logger, optimizer.DefaultConfig(2), store, fakeMarketData{}, nil)

	server := api.NewServer(logger, api.DefaultConfig(), store, broker, opt, nil)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return ts, store
}

type fakeMarketData struct{}

func (fakeMarketData) GetBars(_ context.Context, _ string, _ types.Timeframe, _, _ time.Time, _ int) ([]types.OHLCV, error) {
	return nil, nil
}

func seedStrategy(t *testing.T, store *memstore.Store) types.Strategy {
	t.Helper()
	s := types.Strategy{
		ID:    "strat-1",
		Owner: "alice",
		Name:  "sma-crossover",
		Type:  types.StrategyTypeSMACrossover,
		Parameters: map[string]decimal.Decimal{
			"shortPeriod": decimal.NewFromInt(5),
			"longPeriod":  decimal.NewFromInt(20),
		},
		Symbols:   []string{"AAPL"},
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := store.PutStrategy(context.Background(), s); err != nil {
		t.Fatalf("seed strategy: %v", err)
	}
	return s
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newHarness(t)

	resp, err := http.Get(ts.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestQuickDeployCreatesActiveLiveStrategy(t *testing.T) {
	ts, store := newHarness(t)
	seedStrategy(t, store)

	body, _ := json.Marshal(map[string]interface{}{
		"owner":      "alice",
		"strategyId": "strat-1",
		"symbols":    []string{"AAPL"},
	})

	resp, err := http.Post(ts.URL+"/api/v1/live-strategies", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST quickDeploy: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var ls types.LiveStrategy
	if err := json.NewDecoder(resp.Body).Decode(&ls); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ls.Status != types.LiveStrategyStatusActive {
		t.Fatalf("expected ACTIVE, got %s", ls.Status)
	}
	if ls.CheckInterval != 300*time.Second {
		t.Fatalf("expected default 300s check interval, got %s", ls.CheckInterval)
	}
}

func TestQuickDeployRejectsCheckIntervalBelowFloor(t *testing.T) {
	ts, store := newHarness(t)
	seedStrategy(t, store)

	interval := 10
	body, _ := json.Marshal(map[string]interface{}{
		"owner":         "alice",
		"strategyId":    "strat-1",
		"symbols":       []string{"AAPL"},
		"checkInterval": interval,
	})

	resp, err := http.Post(ts.URL+"/api/v1/live-strategies", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST quickDeploy: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestStopThenStartRoundTripPreservesCounters(t *testing.T) {
	ts, store := newHarness(t)
	seedStrategy(t, store)

	body, _ := json.Marshal(map[string]interface{}{
		"owner":      "alice",
		"strategyId": "strat-1",
		"symbols":    []string{"AAPL"},
	})
	resp, err := http.Post(ts.URL+"/api/v1/live-strategies", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST quickDeploy: %v", err)
	}
	var deployed types.LiveStrategy
	json.NewDecoder(resp.Body).Decode(&deployed)
	resp.Body.Close()

	deployed.TotalSignals = 7
	if err := store.PutLiveStrategy(context.Background(), deployed); err != nil {
		t.Fatalf("seed counters: %v", err)
	}

	stopResp, err := http.Post(ts.URL+"/api/v1/live-strategies/"+deployed.ID+"/stop", "application/json", nil)
	if err != nil {
		t.Fatalf("POST stop: %v", err)
	}
	stopResp.Body.Close()

	startResp, err := http.Post(ts.URL+"/api/v1/live-strategies/"+deployed.ID+"/start", "application/json", nil)
	if err != nil {
		t.Fatalf("POST start: %v", err)
	}
	defer startResp.Body.Close()

	var restarted types.LiveStrategy
	if err := json.NewDecoder(startResp.Body).Decode(&restarted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if restarted.Status != types.LiveStrategyStatusActive {
		t.Fatalf("expected ACTIVE after restart, got %s", restarted.Status)
	}
	if restarted.TotalSignals != 7 {
		t.Fatalf("expected counters preserved across stop/start, got %d", restarted.TotalSignals)
	}
}

func TestDashboardRequiresOwner(t *testing.T) {
	ts, _ := newHarness(t)

	resp, err := http.Get(ts.URL + "/api/v1/dashboard")
	if err != nil {
		t.Fatalf("GET dashboard: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGetOptimizationNotFound(t *testing.T) {
	ts, _ := newHarness(t)

	resp, err := http.Get(ts.URL + "/api/v1/optimizations/does-not-exist")
	if err != nil {
		t.Fatalf("GET optimization: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
