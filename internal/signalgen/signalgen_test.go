package signalgen_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/atlas-tradeops/control-plane/internal/signalgen"
	"github.com/atlas-tradeops/control-plane/pkg/types"
)

func TestRSIOversoldBuysWithFloorStrength(t *testing.T) {
	snap := signalgen.Snapshot{RSI: decimal.NewFromInt(22)}
	params := map[string]decimal.Decimal{"oversold": decimal.NewFromInt(30), "overbought": decimal.NewFromInt(70)}

	r, err := signalgen.Generate(types.StrategyTypeRSI, params, snap, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Type != types.SignalTypeBuy {
		t.Fatalf("expected BUY, got %s", r.Type)
	}
	if r.Strength.LessThan(decimal.NewFromFloat(0.3)) {
		t.Errorf("strength %s below floor 0.3", r.Strength)
	}
}

func TestRSIOversoldHoldsWhenAlreadyPositioned(t *testing.T) {
	snap := signalgen.Snapshot{RSI: decimal.NewFromInt(22)}
	params := map[string]decimal.Decimal{"oversold": decimal.NewFromInt(30)}

	r, err := signalgen.Generate(types.StrategyTypeRSI, params, snap, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Type != types.SignalTypeHold {
		t.Fatalf("expected HOLD, got %s", r.Type)
	}
	if !r.Strength.IsZero() {
		t.Errorf("HOLD strength must be zero, got %s", r.Strength)
	}
}

func TestSMACrossoverBuyOnCrossUp(t *testing.T) {
	snap := signalgen.Snapshot{
		PrevShortMA: decimal.NewFromInt(9), PrevLongMA: decimal.NewFromInt(10),
		ShortMA: decimal.NewFromInt(11), LongMA: decimal.NewFromInt(10),
	}
	r, err := signalgen.Generate(types.StrategyTypeSMACrossover, nil, snap, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Type != types.SignalTypeBuy {
		t.Fatalf("expected BUY, got %s", r.Type)
	}
}

func TestSMACrossoverHoldsWithoutCross(t *testing.T) {
	snap := signalgen.Snapshot{
		PrevShortMA: decimal.NewFromInt(9), PrevLongMA: decimal.NewFromInt(10),
		ShortMA: decimal.NewFromInt(9), LongMA: decimal.NewFromInt(10),
	}
	r, err := signalgen.Generate(types.StrategyTypeSMACrossover, nil, snap, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Type != types.SignalTypeHold {
		t.Fatalf("expected HOLD, got %s", r.Type)
	}
}

func TestMeanReversionZScoreThresholds(t *testing.T) {
	snap := signalgen.Snapshot{Close: decimal.NewFromInt(80), SMA: decimal.NewFromInt(100), StdDev: decimal.NewFromInt(5)}
	r, err := signalgen.Generate(types.StrategyTypeMeanReversion, nil, snap, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Type != types.SignalTypeBuy {
		t.Fatalf("z=-4 should BUY, got %s", r.Type)
	}
}

func TestUnknownStrategyTypeErrors(t *testing.T) {
	_, err := signalgen.Generate(types.StrategyType("NOT_A_TYPE"), nil, signalgen.Snapshot{}, false)
	if err == nil {
		t.Fatal("expected an error for unknown strategy type")
	}
}

func TestHoldAlwaysZeroStrength(t *testing.T) {
	r, err := signalgen.Generate(types.StrategyTypeBollingerBands, nil, signalgen.Snapshot{
		Close: decimal.NewFromInt(100), BollUpper: decimal.NewFromInt(110), BollLower: decimal.NewFromInt(90),
	}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Type != types.SignalTypeHold || !r.Strength.IsZero() {
		t.Fatalf("expected HOLD with zero strength, got %s / %s", r.Type, r.Strength)
	}
}
