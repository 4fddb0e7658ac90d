package paperbroker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-tradeops/control-plane/pkg/contracts"
	"github.com/atlas-tradeops/control-plane/pkg/types"
)

var (
	_ contracts.MarketDataSource = (*SyntheticSource)(nil)
	_ PriceSource                = (*SyntheticSource)(nil)
)

// SyntheticSource is a deterministic, seedless stand-in for a real
// market-data feed: it generates a smooth deterministic oscillation
// around a per-symbol base price, one daily bar per calendar day. It
// implements both contracts.MarketDataSource and PriceSource so the
// demo binary can run the Scheduler and paper Broker off a single
// collaborator without a live exchange connection, which is out of
// scope.
type SyntheticSource struct {
	mu    sync.Mutex
	bases map[string]decimal.Decimal
	cache map[string][]types.OHLCV
}

// NewSyntheticSource creates a SyntheticSource seeded with a base price
// per symbol.
func NewSyntheticSource(basePrices map[string]decimal.Decimal) *SyntheticSource {
	bases := make(map[string]decimal.Decimal, len(basePrices))
	for k, v := range basePrices {
		bases[k] = v
	}
	return &SyntheticSource{bases: bases, cache: make(map[string][]types.OHLCV)}
}

// GetBars implements contracts.MarketDataSource.
func (s *SyntheticSource) GetBars(_ context.Context, symbol string, _ types.Timeframe, start, end time.Time, limit int) ([]types.OHLCV, error) {
	base, ok := s.bases[symbol]
	if !ok {
		return nil, fmt.Errorf("paperbroker: unknown symbol %q", symbol)
	}

	start = start.Truncate(24 * time.Hour)
	end = end.Truncate(24 * time.Hour)

	var bars []types.OHLCV
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		bars = append(bars, syntheticBar(symbol, base, d))
	}
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

// LastPrice implements PriceSource by returning today's synthetic
// close.
func (s *SyntheticSource) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	bars, err := s.GetBars(ctx, symbol, types.Timeframe1Day, time.Now().UTC(), time.Now().UTC(), 1)
	if err != nil {
		return decimal.Zero, err
	}
	if len(bars) == 0 {
		return decimal.Zero, fmt.Errorf("paperbroker: no synthetic bar for %q", symbol)
	}
	return bars[len(bars)-1].Close, nil
}

// syntheticBar derives a deterministic OHLCV for (symbol, day) from the
// day count since the epoch, so repeated calls for the same day always
// return the same bar.
func syntheticBar(symbol string, base decimal.Decimal, day time.Time) types.OHLCV {
	dayIndex := day.Unix() / int64((24 * time.Hour).Seconds())
	phase := float64(dayIndex) * 0.15
	wave := decimal.NewFromFloat(0.01 * wiggle(phase))
	close := base.Mul(decimal.NewFromInt(1).Add(wave))
	open := base.Mul(decimal.NewFromInt(1).Add(wave.Div(decimal.NewFromInt(2))))
	high := decimal.Max(open, close).Mul(decimal.NewFromFloat(1.002))
	low := decimal.Min(open, close).Mul(decimal.NewFromFloat(0.998))
	return types.OHLCV{
		Timestamp: day,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    decimal.NewFromInt(1_000_000),
	}
}

// wiggle is a cheap periodic function (no math.Sin dependency pulled in
// just for a demo fixture): a triangle wave in [-1, 1].
func wiggle(phase float64) float64 {
	x := phase - float64(int64(phase/(2*3.14159265)))*2*3.14159265
	if x < 0 {
		x += 2 * 3.14159265
	}
	frac := x / (2 * 3.14159265)
	if frac < 0.5 {
		return 4*frac - 1
	}
	return 3 - 4*frac
}
