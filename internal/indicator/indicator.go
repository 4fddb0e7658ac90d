// Package indicator implements the pure indicator functions of the
// signal-generation pipeline: SMA, EMA, RSI, MACD, Bollinger Bands, ATR,
// Stochastic, Keltner Channels, Donchian Channels and Ichimoku Cloud.
// Every function is a pure transform over an ordered OHLCV series; none
// hold state or perform I/O, so the same functions serve live execution
// and the optimiser's backtest driver.
package indicator

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/atlas-tradeops/control-plane/pkg/types"
	"github.com/atlas-tradeops/control-plane/pkg/utils"
)

// ErrInsufficientData is returned instead of emitting NaN when a series
// is shorter than an indicator's warm-up requirement.
var ErrInsufficientData = errors.New("indicator: insufficient data")

func closes(bars []types.OHLCV) []decimal.Decimal {
	out := make([]decimal.Decimal, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// SMA returns the simple moving average series for period n, aligned to
// the input: result[i] is valid for i >= n-1.
func SMA(bars []types.OHLCV, n int) ([]decimal.Decimal, error) {
	if n <= 0 || len(bars) < n {
		return nil, ErrInsufficientData
	}
	cl := closes(bars)
	out := make([]decimal.Decimal, len(cl))
	sma := utils.NewSMA(n)
	for i, c := range cl {
		v := sma.Add(c)
		if i >= n-1 {
			out[i] = v
		}
	}
	return out, nil
}

// EMA returns the exponential moving average series for period n, seeded
// with SMA(n) at index n-1 per Wilder's convention. Result is valid from
// index n-1 onward.
func EMA(bars []types.OHLCV, n int) ([]decimal.Decimal, error) {
	if n <= 0 || len(bars) < n {
		return nil, ErrInsufficientData
	}
	cl := closes(bars)
	out := make([]decimal.Decimal, len(cl))

	sma := utils.NewSMA(n)
	var seed decimal.Decimal
	for i := 0; i < n; i++ {
		seed = sma.Add(cl[i])
	}
	out[n-1] = seed

	alpha := decimal.NewFromFloat(2.0 / float64(n+1))
	prev := seed
	for i := n; i < len(cl); i++ {
		cur := cl[i].Sub(prev).Mul(alpha).Add(prev)
		out[i] = cur
		prev = cur
	}
	return out, nil
}

// RSIResult holds an RSI series.
type RSIResult struct {
	Values []decimal.Decimal // RSI(n) aligned to input, valid from index n onward
}

// RSI computes Wilder's RSI(n): gain/loss averages use Wilder smoothing
// (EMA with alpha=1/n) seeded by the simple average of the first n
// differences.
func RSI(bars []types.OHLCV, n int) (RSIResult, error) {
	if n <= 0 || len(bars) < n+1 {
		return RSIResult{}, ErrInsufficientData
	}
	cl := closes(bars)
	out := make([]decimal.Decimal, len(cl))

	gainSum, lossSum := decimal.Zero, decimal.Zero
	for i := 1; i <= n; i++ {
		diff := cl[i].Sub(cl[i-1])
		if diff.IsPositive() {
			gainSum = gainSum.Add(diff)
		} else {
			lossSum = lossSum.Add(diff.Abs())
		}
	}
	nDec := decimal.NewFromInt(int64(n))
	avgGain := gainSum.Div(nDec)
	avgLoss := lossSum.Div(nDec)
	out[n] = rsiFromAverages(avgGain, avgLoss)

	for i := n + 1; i < len(cl); i++ {
		diff := cl[i].Sub(cl[i-1])
		gain, loss := decimal.Zero, decimal.Zero
		if diff.IsPositive() {
			gain = diff
		} else {
			loss = diff.Abs()
		}
		avgGain = avgGain.Mul(nDec.Sub(decimal.NewFromInt(1))).Add(gain).Div(nDec)
		avgLoss = avgLoss.Mul(nDec.Sub(decimal.NewFromInt(1))).Add(loss).Div(nDec)
		out[i] = rsiFromAverages(avgGain, avgLoss)
	}

	return RSIResult{Values: out}, nil
}

func rsiFromAverages(avgGain, avgLoss decimal.Decimal) decimal.Decimal {
	if avgLoss.IsZero() {
		return decimal.NewFromInt(100)
	}
	rs := avgGain.Div(avgLoss)
	hundred := decimal.NewFromInt(100)
	return hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
}

// MACDResult holds the MACD line and its signal line, aligned to input.
type MACDResult struct {
	MACD   []decimal.Decimal
	Signal []decimal.Decimal
}

// MACD computes EMA(fast) - EMA(slow) and an EMA(signal) of that series.
func MACD(bars []types.OHLCV, fast, slow, signal int) (MACDResult, error) {
	if slow <= fast || len(bars) < slow+signal {
		return MACDResult{}, ErrInsufficientData
	}
	emaFast, err := EMA(bars, fast)
	if err != nil {
		return MACDResult{}, err
	}
	emaSlow, err := EMA(bars, slow)
	if err != nil {
		return MACDResult{}, err
	}

	macdLine := make([]decimal.Decimal, len(bars))
	for i := slow - 1; i < len(bars); i++ {
		macdLine[i] = emaFast[i].Sub(emaSlow[i])
	}

	signalLine := make([]decimal.Decimal, len(bars))
	sig := utils.NewEMA(signal)
	seeded := false
	seedSMA := utils.NewSMA(signal)
	count := 0
	for i := slow - 1; i < len(bars); i++ {
		if !seeded {
			v := seedSMA.Add(macdLine[i])
			count++
			if count == signal {
				signalLine[i] = v
				seeded = true
				sig = utils.NewEMA(signal)
				sig.Add(v) // prime internal state identically to EMA seeding
			}
			continue
		}
		signalLine[i] = sig.Add(macdLine[i])
	}

	return MACDResult{MACD: macdLine, Signal: signalLine}, nil
}

// BollingerResult holds the middle, upper and lower bands.
type BollingerResult struct {
	Middle []decimal.Decimal
	Upper  []decimal.Decimal
	Lower  []decimal.Decimal
}

// Bollinger computes SMA(n) middle band and +-k*population-sigma bands.
func Bollinger(bars []types.OHLCV, n int, k decimal.Decimal) (BollingerResult, error) {
	if n <= 0 || len(bars) < n {
		return BollingerResult{}, ErrInsufficientData
	}
	cl := closes(bars)
	mid := make([]decimal.Decimal, len(cl))
	upper := make([]decimal.Decimal, len(cl))
	lower := make([]decimal.Decimal, len(cl))

	for i := n - 1; i < len(cl); i++ {
		window := cl[i-n+1 : i+1]
		m := utils.CalculateMean(window)
		sd := utils.CalculateStdDevPopulation(window)
		mid[i] = m
		upper[i] = m.Add(sd.Mul(k))
		lower[i] = m.Sub(sd.Mul(k))
	}
	return BollingerResult{Middle: mid, Upper: upper, Lower: lower}, nil
}

func trueRange(cur, prev types.OHLCV) decimal.Decimal {
	hl := cur.High.Sub(cur.Low)
	hc := cur.High.Sub(prev.Close).Abs()
	lc := cur.Low.Sub(prev.Close).Abs()
	return utils.MaxDecimal(hl, utils.MaxDecimal(hc, lc))
}

// ATR computes the SMA(n) of the true range series.
func ATR(bars []types.OHLCV, n int) ([]decimal.Decimal, error) {
	if n <= 0 || len(bars) < n+1 {
		return nil, ErrInsufficientData
	}
	tr := make([]decimal.Decimal, len(bars))
	for i := 1; i < len(bars); i++ {
		tr[i] = trueRange(bars[i], bars[i-1])
	}

	out := make([]decimal.Decimal, len(bars))
	sma := utils.NewSMA(n)
	for i := 1; i < len(bars); i++ {
		v := sma.Add(tr[i])
		if i >= n {
			out[i] = v
		}
	}
	return out, nil
}

// StochasticResult holds the slow %K and %D series.
type StochasticResult struct {
	SlowK []decimal.Decimal
	D     []decimal.Decimal
}

// Stochastic computes raw %K over k, smooths it by `smooth` into slow %K,
// then %D = SMA(d) of slow %K.
func Stochastic(bars []types.OHLCV, k, d, smooth int) (StochasticResult, error) {
	if k <= 0 || len(bars) < k+smooth+d-1 {
		return StochasticResult{}, ErrInsufficientData
	}
	rawK := make([]decimal.Decimal, len(bars))
	for i := k - 1; i < len(bars); i++ {
		window := bars[i-k+1 : i+1]
		lowMin, highMax := window[0].Low, window[0].High
		for _, b := range window {
			lowMin = utils.MinDecimal(lowMin, b.Low)
			highMax = utils.MaxDecimal(highMax, b.High)
		}
		rangeHL := highMax.Sub(lowMin)
		if rangeHL.IsZero() {
			rawK[i] = decimal.NewFromInt(50)
			continue
		}
		rawK[i] = bars[i].Close.Sub(lowMin).Div(rangeHL).Mul(decimal.NewFromInt(100))
	}

	slowK := make([]decimal.Decimal, len(bars))
	smaK := utils.NewSMA(smooth)
	for i := k - 1; i < len(bars); i++ {
		v := smaK.Add(rawK[i])
		if i >= k-1+smooth-1 {
			slowK[i] = v
		}
	}

	dLine := make([]decimal.Decimal, len(bars))
	smaD := utils.NewSMA(d)
	start := k - 1 + smooth - 1
	for i := start; i < len(bars); i++ {
		v := smaD.Add(slowK[i])
		if i >= start+d-1 {
			dLine[i] = v
		}
	}

	return StochasticResult{SlowK: slowK, D: dLine}, nil
}

// KeltnerResult holds the mid line and upper/lower bands.
type KeltnerResult struct {
	Mid   []decimal.Decimal
	Upper []decimal.Decimal
	Lower []decimal.Decimal
}

// Keltner computes mid = EMA(emaN), band = mid +- mult*ATR(atrN).
func Keltner(bars []types.OHLCV, emaN, atrN int, mult decimal.Decimal) (KeltnerResult, error) {
	mid, err := EMA(bars, emaN)
	if err != nil {
		return KeltnerResult{}, err
	}
	atr, err := ATR(bars, atrN)
	if err != nil {
		return KeltnerResult{}, err
	}
	start := emaN - 1
	if atrN > start {
		start = atrN
	}
	if start >= len(bars) {
		return KeltnerResult{}, ErrInsufficientData
	}

	upper := make([]decimal.Decimal, len(bars))
	lower := make([]decimal.Decimal, len(bars))
	for i := start; i < len(bars); i++ {
		if mid[i].IsZero() && atr[i].IsZero() {
			continue
		}
		upper[i] = mid[i].Add(atr[i].Mul(mult))
		lower[i] = mid[i].Sub(atr[i].Mul(mult))
	}
	return KeltnerResult{Mid: mid, Upper: upper, Lower: lower}, nil
}

// DonchianResult holds the entry-window high and exit-window low series.
type DonchianResult struct {
	EntryHigh []decimal.Decimal
	ExitLow   []decimal.Decimal
}

// Donchian computes the rolling high over entryN bars and rolling low
// over exitN bars.
func Donchian(bars []types.OHLCV, entryN, exitN int) (DonchianResult, error) {
	n := entryN
	if exitN > n {
		n = exitN
	}
	if len(bars) < n {
		return DonchianResult{}, ErrInsufficientData
	}
	entryHigh := make([]decimal.Decimal, len(bars))
	exitLow := make([]decimal.Decimal, len(bars))

	for i := entryN - 1; i < len(bars); i++ {
		window := bars[i-entryN+1 : i+1]
		high := window[0].High
		for _, b := range window {
			high = utils.MaxDecimal(high, b.High)
		}
		entryHigh[i] = high
	}
	for i := exitN - 1; i < len(bars); i++ {
		window := bars[i-exitN+1 : i+1]
		low := window[0].Low
		for _, b := range window {
			low = utils.MinDecimal(low, b.Low)
		}
		exitLow[i] = low
	}
	return DonchianResult{EntryHigh: entryHigh, ExitLow: exitLow}, nil
}

// IchimokuResult holds the five Ichimoku Cloud lines, aligned to input.
type IchimokuResult struct {
	Tenkan   []decimal.Decimal
	Kijun    []decimal.Decimal
	SenkouA  []decimal.Decimal // shifted forward 26 at the index it applies to
	SenkouB  []decimal.Decimal
	Chikou   []decimal.Decimal // shifted backward 26
}

func midpoint(bars []types.OHLCV, i, n int) decimal.Decimal {
	window := bars[i-n+1 : i+1]
	hi, lo := window[0].High, window[0].Low
	for _, b := range window {
		hi = utils.MaxDecimal(hi, b.High)
		lo = utils.MinDecimal(lo, b.Low)
	}
	return hi.Add(lo).Div(decimal.NewFromInt(2))
}

// Ichimoku computes Tenkan(9), Kijun(26), Senkou A/B displaced +26 and
// Chikou displaced -26, per the standard (9,26,52,26) parameterisation.
func Ichimoku(bars []types.OHLCV, tenkanN, kijunN, senkouBN, displacement int) (IchimokuResult, error) {
	need := senkouBN + displacement
	if len(bars) < need {
		return IchimokuResult{}, ErrInsufficientData
	}

	n := len(bars)
	tenkan := make([]decimal.Decimal, n)
	kijun := make([]decimal.Decimal, n)
	senkouA := make([]decimal.Decimal, n)
	senkouB := make([]decimal.Decimal, n)
	chikou := make([]decimal.Decimal, n)

	for i := tenkanN - 1; i < n; i++ {
		tenkan[i] = midpoint(bars, i, tenkanN)
	}
	for i := kijunN - 1; i < n; i++ {
		kijun[i] = midpoint(bars, i, kijunN)
	}
	for i := kijunN - 1; i < n; i++ {
		target := i + displacement
		if target >= n || tenkan[i].IsZero() && kijun[i].IsZero() {
			continue
		}
		if target < n {
			senkouA[target] = tenkan[i].Add(kijun[i]).Div(decimal.NewFromInt(2))
		}
	}
	for i := senkouBN - 1; i < n; i++ {
		target := i + displacement
		if target < n {
			senkouB[target] = midpoint(bars, i, senkouBN)
		}
	}
	for i := displacement; i < n; i++ {
		chikou[i-displacement] = bars[i].Close
	}

	return IchimokuResult{
		Tenkan: tenkan, Kijun: kijun, SenkouA: senkouA, SenkouB: senkouB, Chikou: chikou,
	}, nil
}
