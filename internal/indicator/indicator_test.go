package indicator_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-tradeops/control-plane/internal/indicator"
	"github.com/atlas-tradeops/control-plane/pkg/types"
)

func bars(closes []float64) []types.OHLCV {
	out := make([]types.OHLCV, len(closes))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		d := decimal.NewFromFloat(c)
		out[i] = types.OHLCV{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      d,
			High:      d.Add(decimal.NewFromFloat(0.5)),
			Low:       d.Sub(decimal.NewFromFloat(0.5)),
			Close:     d,
			Volume:    decimal.NewFromInt(1000),
		}
	}
	return out
}

func TestSMAInsufficientData(t *testing.T) {
	_, err := indicator.SMA(bars([]float64{1, 2, 3}), 5)
	if err != indicator.ErrInsufficientData {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestSMABasic(t *testing.T) {
	series := bars([]float64{1, 2, 3, 4, 5})
	out, err := indicator.SMA(series, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := decimal.NewFromFloat(4) // (3+4+5)/3
	if !out[4].Equal(want) {
		t.Errorf("SMA(3) at last index = %s, want %s", out[4], want)
	}
}

func TestEMASeededWithSMA(t *testing.T) {
	series := bars([]float64{1, 2, 3, 4, 5})
	out, err := indicator.EMA(series, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seed := decimal.NewFromFloat(2) // SMA(3) of [1,2,3]
	if !out[2].Equal(seed) {
		t.Errorf("EMA seed at index 2 = %s, want %s", out[2], seed)
	}
}

func TestRSIAllGainsIsHundred(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = float64(i + 1)
	}
	res, err := indicator.RSI(bars(closes), 14)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	last := res.Values[len(res.Values)-1]
	if !last.Equal(decimal.NewFromInt(100)) {
		t.Errorf("RSI on strictly rising series = %s, want 100", last)
	}
}

func TestRSIInsufficientData(t *testing.T) {
	_, err := indicator.RSI(bars([]float64{1, 2, 3}), 14)
	if err != indicator.ErrInsufficientData {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestBollingerBandsBracketMiddle(t *testing.T) {
	closes := []float64{10, 11, 9, 12, 8, 13, 7, 14, 6, 15}
	res, err := indicator.Bollinger(bars(closes), 5, decimal.NewFromInt(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 4; i < len(closes); i++ {
		if !res.Upper[i].GreaterThanOrEqual(res.Middle[i]) {
			t.Errorf("upper band below middle at %d", i)
		}
		if !res.Lower[i].LessThanOrEqual(res.Middle[i]) {
			t.Errorf("lower band above middle at %d", i)
		}
	}
}

func TestATRNonNegative(t *testing.T) {
	closes := []float64{10, 10.5, 9.8, 11, 10.2, 9.5, 10.8, 11.2, 10.9, 11.5, 12, 11.7, 11.9, 12.3, 12.1}
	out, err := indicator.ATR(bars(closes), 14)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[len(out)-1].IsNegative() {
		t.Errorf("ATR must never be negative, got %s", out[len(out)-1])
	}
}

func TestDonchianHighLow(t *testing.T) {
	closes := []float64{10, 12, 8, 14, 6, 16, 4, 18, 2, 20}
	res, err := indicator.Donchian(bars(closes), 5, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.EntryHigh[9].LessThan(res.ExitLow[9]) {
		t.Errorf("entry high %s below exit low %s", res.EntryHigh[9], res.ExitLow[9])
	}
}

func TestIchimokuInsufficientData(t *testing.T) {
	_, err := indicator.Ichimoku(bars([]float64{1, 2, 3}), 9, 26, 52, 26)
	if err != indicator.ErrInsufficientData {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}
