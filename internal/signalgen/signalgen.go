// Package signalgen implements the Signal Generator: a deterministic,
// side-effect-free dispatch table mapping a strategy type, its
// parameters, and a snapshot of current/previous indicator values to a
// (signal, strength, reasoning) tuple. The same dispatch table backs
// both live execution and the optimiser's backtest driver, since it
// never touches state beyond its arguments.
package signalgen

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atlas-tradeops/control-plane/pkg/types"
	"github.com/atlas-tradeops/control-plane/pkg/utils"
)

// Snapshot carries the current and previous values of every indicator a
// strategy type might need. Fields unused by a given strategy type are
// left zero. Producing a Snapshot from OHLCV history is the caller's
// responsibility (internal/scheduler and internal/optimizer both do it
// via internal/indicator).
type Snapshot struct {
	Close     decimal.Decimal
	PrevClose decimal.Decimal

	ShortMA, PrevShortMA decimal.Decimal
	LongMA, PrevLongMA   decimal.Decimal

	RSI decimal.Decimal

	MACD, PrevMACD             decimal.Decimal
	MACDSignal, PrevMACDSignal decimal.Decimal

	BollUpper, BollLower decimal.Decimal

	ReturnN decimal.Decimal

	SMA, StdDev decimal.Decimal

	RollingMaxHighExclCurrent decimal.Decimal
	RollingMinLowExclCurrent  decimal.Decimal

	VWAP, PrevVWAP decimal.Decimal

	StochK, PrevStochK decimal.Decimal
	StochD, PrevStochD decimal.Decimal

	KeltnerUpper, KeltnerLower decimal.Decimal

	TrendEMA, PrevTrendEMA decimal.Decimal
	ChandelierStop         decimal.Decimal

	DonchianEntryHigh decimal.Decimal
	DonchianExitLow   decimal.Decimal

	Tenkan, PrevTenkan decimal.Decimal
	Kijun, PrevKijun   decimal.Decimal
	CloudTop           decimal.Decimal
	CloudBottom        decimal.Decimal
	FutureCloudTop     decimal.Decimal
	FutureCloudBottom  decimal.Decimal
}

// Result is the output tuple of Generate.
type Result struct {
	Type       types.SignalType
	Strength   decimal.Decimal
	Reasoning  string
	Indicators map[string]decimal.Decimal
}

var strengthFloor = decimal.NewFromFloat(0.3)

func hold() Result {
	return Result{Type: types.SignalTypeHold, Strength: decimal.Zero, Reasoning: "no signal", Indicators: map[string]decimal.Decimal{}}
}

func clampStrength(s decimal.Decimal) decimal.Decimal {
	s = utils.ClampDecimal(s, decimal.Zero, decimal.NewFromInt(1))
	if s.LessThan(strengthFloor) {
		return strengthFloor
	}
	return s
}

func param(params map[string]decimal.Decimal, key string, def decimal.Decimal) decimal.Decimal {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

// Generate dispatches to the per-strategy-type signal function and
// applies the uniform strength floor: every non-HOLD signal has strength
// clamped to the range [0.3, 1].
func Generate(strategyType types.StrategyType, params map[string]decimal.Decimal, snap Snapshot, hasPosition bool) (Result, error) {
	var r Result
	switch strategyType {
	case types.StrategyTypeSMACrossover:
		r = smaCrossover(snap)
	case types.StrategyTypeRSI:
		r = rsi(params, snap, hasPosition)
	case types.StrategyTypeMACD:
		r = macd(snap)
	case types.StrategyTypeBollingerBands:
		r = bollinger(snap)
	case types.StrategyTypeMomentum:
		r = momentum(params, snap)
	case types.StrategyTypeMeanReversion:
		r = meanReversion(snap)
	case types.StrategyTypeBreakout:
		r = breakout(snap)
	case types.StrategyTypeVWAP:
		r = vwap(snap)
	case types.StrategyTypeStochastic:
		r = stochastic(snap)
	case types.StrategyTypeKeltnerChannel:
		r = keltner(params, snap)
	case types.StrategyTypeATRTrailingStop:
		r = atrTrailingStop(snap)
	case types.StrategyTypeDonchianChannel:
		r = donchian(snap)
	case types.StrategyTypeIchimokuCloud:
		r = ichimoku(snap)
	case types.StrategyTypePairsTrading:
		r = meanReversion(snap) // single-instrument proxy; see component notes
	default:
		return Result{}, fmt.Errorf("signalgen: unknown strategy type %q", strategyType)
	}

	if r.Type == types.SignalTypeHold {
		r.Strength = decimal.Zero
	} else {
		r.Strength = clampStrength(r.Strength)
	}
	if r.Indicators == nil {
		r.Indicators = map[string]decimal.Decimal{}
	}
	// Every caller (position sizing, audit) needs the reference price a
	// signal was generated against, regardless of which indicators a
	// given strategy type happens to report.
	r.Indicators["close"] = snap.Close
	return r, nil
}

func crossedUp(prevA, prevB, curA, curB decimal.Decimal) bool {
	return prevA.LessThanOrEqual(prevB) && curA.GreaterThan(curB)
}

func crossedDown(prevA, prevB, curA, curB decimal.Decimal) bool {
	return prevA.GreaterThanOrEqual(prevB) && curA.LessThan(curB)
}

func smaCrossover(s Snapshot) Result {
	ind := map[string]decimal.Decimal{"shortMA": s.ShortMA, "longMA": s.LongMA}
	if crossedUp(s.PrevShortMA, s.PrevLongMA, s.ShortMA, s.LongMA) {
		strength := decimal.Zero
		if !s.LongMA.IsZero() {
			strength = s.ShortMA.Sub(s.LongMA).Abs().Div(s.LongMA).Mul(decimal.NewFromInt(20))
		}
		return Result{Type: types.SignalTypeBuy, Strength: strength, Reasoning: "short MA crossed above long MA", Indicators: ind}
	}
	if crossedDown(s.PrevShortMA, s.PrevLongMA, s.ShortMA, s.LongMA) {
		strength := decimal.Zero
		if !s.LongMA.IsZero() {
			strength = s.ShortMA.Sub(s.LongMA).Abs().Div(s.LongMA).Mul(decimal.NewFromInt(20))
		}
		return Result{Type: types.SignalTypeSell, Strength: strength, Reasoning: "short MA crossed below long MA", Indicators: ind}
	}
	return hold()
}

func rsi(params map[string]decimal.Decimal, s Snapshot, hasPosition bool) Result {
	oversold := param(params, "oversold", decimal.NewFromInt(30))
	overbought := param(params, "overbought", decimal.NewFromInt(70))
	ind := map[string]decimal.Decimal{"rsi": s.RSI}

	if s.RSI.LessThan(oversold) && !hasPosition {
		dist := oversold.Sub(s.RSI).Div(oversold)
		return Result{Type: types.SignalTypeBuy, Strength: dist, Reasoning: fmt.Sprintf("RSI %s below oversold %s", s.RSI.StringFixed(2), oversold.StringFixed(2)), Indicators: ind}
	}
	if s.RSI.GreaterThan(overbought) && hasPosition {
		dist := s.RSI.Sub(overbought).Div(overbought)
		return Result{Type: types.SignalTypeSell, Strength: dist, Reasoning: fmt.Sprintf("RSI %s above overbought %s", s.RSI.StringFixed(2), overbought.StringFixed(2)), Indicators: ind}
	}
	return hold()
}

func macd(s Snapshot) Result {
	ind := map[string]decimal.Decimal{"macd": s.MACD, "signal": s.MACDSignal}
	if crossedUp(s.PrevMACD, s.PrevMACDSignal, s.MACD, s.MACDSignal) {
		return Result{Type: types.SignalTypeBuy, Strength: decimal.NewFromFloat(0.6), Reasoning: "MACD crossed above signal", Indicators: ind}
	}
	if crossedDown(s.PrevMACD, s.PrevMACDSignal, s.MACD, s.MACDSignal) {
		return Result{Type: types.SignalTypeSell, Strength: decimal.NewFromFloat(0.6), Reasoning: "MACD crossed below signal", Indicators: ind}
	}
	return hold()
}

func bollinger(s Snapshot) Result {
	ind := map[string]decimal.Decimal{"upper": s.BollUpper, "lower": s.BollLower, "close": s.Close}
	if s.Close.LessThanOrEqual(s.BollLower) {
		return Result{Type: types.SignalTypeBuy, Strength: decimal.NewFromFloat(0.6), Reasoning: "close at or below lower Bollinger band", Indicators: ind}
	}
	if s.Close.GreaterThanOrEqual(s.BollUpper) {
		return Result{Type: types.SignalTypeSell, Strength: decimal.NewFromFloat(0.6), Reasoning: "close at or above upper Bollinger band", Indicators: ind}
	}
	return hold()
}

func momentum(params map[string]decimal.Decimal, s Snapshot) Result {
	threshold := param(params, "threshold", decimal.NewFromFloat(0.02))
	ind := map[string]decimal.Decimal{"returnN": s.ReturnN}
	if s.ReturnN.GreaterThan(threshold) {
		return Result{Type: types.SignalTypeBuy, Strength: s.ReturnN.Div(threshold).Sub(decimal.NewFromInt(1)), Reasoning: "N-period return exceeds threshold", Indicators: ind}
	}
	if s.ReturnN.LessThan(threshold.Neg()) {
		return Result{Type: types.SignalTypeSell, Strength: s.ReturnN.Abs().Div(threshold).Sub(decimal.NewFromInt(1)), Reasoning: "N-period return below negative threshold", Indicators: ind}
	}
	return hold()
}

func meanReversion(s Snapshot) Result {
	ind := map[string]decimal.Decimal{"sma": s.SMA, "stdDev": s.StdDev, "close": s.Close}
	if s.StdDev.IsZero() {
		return hold()
	}
	z := s.Close.Sub(s.SMA).Div(s.StdDev)
	two := decimal.NewFromInt(2)
	if z.LessThan(two.Neg()) {
		return Result{Type: types.SignalTypeBuy, Strength: z.Abs().Div(two), Reasoning: fmt.Sprintf("z-score %s below -2", z.StringFixed(2)), Indicators: ind}
	}
	if z.GreaterThan(two) {
		return Result{Type: types.SignalTypeSell, Strength: z.Abs().Div(two), Reasoning: fmt.Sprintf("z-score %s above +2", z.StringFixed(2)), Indicators: ind}
	}
	return hold()
}

func breakout(s Snapshot) Result {
	ind := map[string]decimal.Decimal{"rollingMaxHigh": s.RollingMaxHighExclCurrent, "rollingMinLow": s.RollingMinLowExclCurrent}
	if s.Close.GreaterThan(s.RollingMaxHighExclCurrent) {
		return Result{Type: types.SignalTypeBuy, Strength: decimal.NewFromFloat(0.7), Reasoning: "close broke above rolling high", Indicators: ind}
	}
	if s.Close.LessThan(s.RollingMinLowExclCurrent) {
		return Result{Type: types.SignalTypeSell, Strength: decimal.NewFromFloat(0.7), Reasoning: "close broke below rolling low", Indicators: ind}
	}
	return hold()
}

func vwap(s Snapshot) Result {
	ind := map[string]decimal.Decimal{"vwap": s.VWAP}
	if crossedUp(s.PrevClose, s.PrevVWAP, s.Close, s.VWAP) {
		return Result{Type: types.SignalTypeBuy, Strength: decimal.NewFromFloat(0.5), Reasoning: "close crossed above VWAP", Indicators: ind}
	}
	return hold()
}

func stochastic(s Snapshot) Result {
	oversold := decimal.NewFromInt(20)
	overbought := decimal.NewFromInt(80)
	ind := map[string]decimal.Decimal{"k": s.StochK, "d": s.StochD}
	if crossedUp(s.PrevStochK, s.PrevStochD, s.StochK, s.StochD) && s.StochK.LessThan(oversold) {
		return Result{Type: types.SignalTypeBuy, Strength: decimal.NewFromFloat(0.6), Reasoning: "%K crossed above %D in oversold territory", Indicators: ind}
	}
	if crossedDown(s.PrevStochK, s.PrevStochD, s.StochK, s.StochD) && s.StochK.GreaterThan(overbought) {
		return Result{Type: types.SignalTypeSell, Strength: decimal.NewFromFloat(0.6), Reasoning: "%K crossed below %D in overbought territory", Indicators: ind}
	}
	return hold()
}

func keltner(params map[string]decimal.Decimal, s Snapshot) Result {
	meanReversionMode := param(params, "mode", decimal.Zero).Equal(decimal.NewFromInt(1))
	ind := map[string]decimal.Decimal{"upper": s.KeltnerUpper, "lower": s.KeltnerLower}

	above := s.Close.GreaterThan(s.KeltnerUpper)
	below := s.Close.LessThan(s.KeltnerLower)
	buyReason := "close above upper Keltner band (breakout)"
	sellReason := "close below lower Keltner band (breakdown)"

	if meanReversionMode {
		above, below = below, above
		buyReason = "close below lower Keltner band (mean reversion)"
		sellReason = "close above upper Keltner band (mean reversion)"
	}
	if above {
		return Result{Type: types.SignalTypeBuy, Strength: decimal.NewFromFloat(0.6), Reasoning: buyReason, Indicators: ind}
	}
	if below {
		return Result{Type: types.SignalTypeSell, Strength: decimal.NewFromFloat(0.6), Reasoning: sellReason, Indicators: ind}
	}
	return hold()
}

func atrTrailingStop(s Snapshot) Result {
	ind := map[string]decimal.Decimal{"trendEMA": s.TrendEMA, "chandelierStop": s.ChandelierStop}
	if crossedUp(s.PrevClose, s.PrevTrendEMA, s.Close, s.TrendEMA) {
		return Result{Type: types.SignalTypeBuy, Strength: decimal.NewFromFloat(0.6), Reasoning: "close crossed above trend EMA", Indicators: ind}
	}
	if s.Close.LessThan(s.ChandelierStop) {
		return Result{Type: types.SignalTypeSell, Strength: decimal.NewFromFloat(0.6), Reasoning: "close broke below ATR trailing stop", Indicators: ind}
	}
	return hold()
}

func donchian(s Snapshot) Result {
	ind := map[string]decimal.Decimal{"entryHigh": s.DonchianEntryHigh, "exitLow": s.DonchianExitLow}
	if s.Close.GreaterThan(s.DonchianEntryHigh) {
		return Result{Type: types.SignalTypeBuy, Strength: decimal.NewFromFloat(0.6), Reasoning: "close above prior entry-period high", Indicators: ind}
	}
	if s.Close.LessThan(s.DonchianExitLow) {
		return Result{Type: types.SignalTypeSell, Strength: decimal.NewFromFloat(0.6), Reasoning: "close below prior exit-period low", Indicators: ind}
	}
	return hold()
}

func ichimoku(s Snapshot) Result {
	ind := map[string]decimal.Decimal{"tenkan": s.Tenkan, "kijun": s.Kijun}
	cloudGreen := s.FutureCloudTop.GreaterThanOrEqual(s.FutureCloudBottom)
	aboveCloud := s.Close.GreaterThan(s.CloudTop)
	belowCloud := s.Close.LessThan(s.CloudBottom)

	tkCrossUp := crossedUp(s.PrevTenkan, s.PrevKijun, s.Tenkan, s.Kijun)
	tkCrossDown := crossedDown(s.PrevTenkan, s.PrevKijun, s.Tenkan, s.Kijun)

	if tkCrossUp && aboveCloud && cloudGreen {
		return Result{Type: types.SignalTypeBuy, Strength: decimal.NewFromFloat(0.9), Reasoning: "strong BUY: Tenkan/Kijun cross above green future cloud", Indicators: ind}
	}
	if tkCrossUp {
		return Result{Type: types.SignalTypeBuy, Strength: decimal.NewFromFloat(0.4), Reasoning: "weak BUY: Tenkan crossed above Kijun", Indicators: ind}
	}
	if tkCrossDown && belowCloud && !cloudGreen {
		return Result{Type: types.SignalTypeSell, Strength: decimal.NewFromFloat(0.9), Reasoning: "strong SELL: Tenkan/Kijun cross below red future cloud", Indicators: ind}
	}
	if tkCrossDown {
		return Result{Type: types.SignalTypeSell, Strength: decimal.NewFromFloat(0.4), Reasoning: "weak SELL: Tenkan crossed below Kijun", Indicators: ind}
	}
	return hold()
}
