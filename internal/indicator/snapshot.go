package indicator

import (
	"github.com/shopspring/decimal"

	"github.com/atlas-tradeops/control-plane/internal/signalgen"
	"github.com/atlas-tradeops/control-plane/pkg/types"
	"github.com/atlas-tradeops/control-plane/pkg/utils"
)

func p(params map[string]decimal.Decimal, key string, def decimal.Decimal) decimal.Decimal {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

func pInt(params map[string]decimal.Decimal, key string, def int) int {
	if v, ok := params[key]; ok {
		return int(v.IntPart())
	}
	return def
}

// BuildSnapshot computes the indicator series a strategy type needs and
// reduces them to the current/previous pair signalgen.Generate expects.
// It is the one place the scheduler's live tick and the optimiser's
// backtest walk share so indicator math never drifts between the two
// callers.
func BuildSnapshot(bars []types.OHLCV, strategyType types.StrategyType, params map[string]decimal.Decimal) (signalgen.Snapshot, error) {
	n := len(bars)
	if n < 2 {
		return signalgen.Snapshot{}, ErrInsufficientData
	}

	snap := signalgen.Snapshot{
		Close:     bars[n-1].Close,
		PrevClose: bars[n-2].Close,
	}

	switch strategyType {
	case types.StrategyTypeSMACrossover:
		shortN := pInt(params, "shortPeriod", 10)
		longN := pInt(params, "longPeriod", 30)
		short, err := SMA(bars, shortN)
		if err != nil {
			return signalgen.Snapshot{}, err
		}
		long, err := SMA(bars, longN)
		if err != nil {
			return signalgen.Snapshot{}, err
		}
		snap.ShortMA, snap.PrevShortMA = short[n-1], short[n-2]
		snap.LongMA, snap.PrevLongMA = long[n-1], long[n-2]

	case types.StrategyTypeRSI:
		rsiN := pInt(params, "period", 14)
		res, err := RSI(bars, rsiN)
		if err != nil {
			return signalgen.Snapshot{}, err
		}
		snap.RSI = res.Values[n-1]

	case types.StrategyTypeMACD:
		fast := pInt(params, "fastPeriod", 12)
		slow := pInt(params, "slowPeriod", 26)
		signal := pInt(params, "signalPeriod", 9)
		res, err := MACD(bars, fast, slow, signal)
		if err != nil {
			return signalgen.Snapshot{}, err
		}
		snap.MACD, snap.PrevMACD = res.MACD[n-1], res.MACD[n-2]
		snap.MACDSignal, snap.PrevMACDSignal = res.Signal[n-1], res.Signal[n-2]

	case types.StrategyTypeBollingerBands:
		bn := pInt(params, "period", 20)
		k := p(params, "stdDev", decimal.NewFromInt(2))
		res, err := Bollinger(bars, bn, k)
		if err != nil {
			return signalgen.Snapshot{}, err
		}
		snap.BollUpper, snap.BollLower = res.Upper[n-1], res.Lower[n-1]

	case types.StrategyTypeMeanReversion, types.StrategyTypePairsTrading:
		mn := pInt(params, "period", 20)
		if n < mn {
			return signalgen.Snapshot{}, ErrInsufficientData
		}
		window := closes(bars[n-mn:])
		snap.SMA = utils.CalculateMean(window)
		snap.StdDev = utils.CalculateStdDevPopulation(window)

	case types.StrategyTypeVWAP:
		vn := pInt(params, "period", 20)
		if n < vn+1 {
			return signalgen.Snapshot{}, ErrInsufficientData
		}
		snap.VWAP = rollingVWAP(bars[n-vn:])
		snap.PrevVWAP = rollingVWAP(bars[n-1-vn : n-1])

	case types.StrategyTypeMomentum:
		mn := pInt(params, "period", 10)
		if n < mn+1 {
			return signalgen.Snapshot{}, ErrInsufficientData
		}
		base := bars[n-1-mn].Close
		if !base.IsZero() {
			snap.ReturnN = snap.Close.Sub(base).Div(base)
		}

	case types.StrategyTypeBreakout:
		bn := pInt(params, "period", 20)
		if n < bn+1 {
			return signalgen.Snapshot{}, ErrInsufficientData
		}
		window := bars[n-1-bn : n-1]
		hi, lo := window[0].High, window[0].Low
		for _, b := range window {
			hi = utils.MaxDecimal(hi, b.High)
			lo = utils.MinDecimal(lo, b.Low)
		}
		snap.RollingMaxHighExclCurrent = hi
		snap.RollingMinLowExclCurrent = lo

	case types.StrategyTypeStochastic:
		k := pInt(params, "kPeriod", 14)
		d := pInt(params, "dPeriod", 3)
		smooth := pInt(params, "smoothPeriod", 3)
		res, err := Stochastic(bars, k, d, smooth)
		if err != nil {
			return signalgen.Snapshot{}, err
		}
		snap.StochK, snap.PrevStochK = res.SlowK[n-1], res.SlowK[n-2]
		snap.StochD, snap.PrevStochD = res.D[n-1], res.D[n-2]

	case types.StrategyTypeKeltnerChannel:
		emaN := pInt(params, "emaPeriod", 20)
		atrN := pInt(params, "atrPeriod", 10)
		mult := p(params, "multiplier", decimal.NewFromInt(2))
		res, err := Keltner(bars, emaN, atrN, mult)
		if err != nil {
			return signalgen.Snapshot{}, err
		}
		snap.KeltnerUpper, snap.KeltnerLower = res.Upper[n-1], res.Lower[n-1]

	case types.StrategyTypeATRTrailingStop:
		trendN := pInt(params, "trendPeriod", 20)
		atrN := pInt(params, "atrPeriod", 14)
		mult := p(params, "atrMultiplier", decimal.NewFromInt(3))
		ema, err := EMA(bars, trendN)
		if err != nil {
			return signalgen.Snapshot{}, err
		}
		atr, err := ATR(bars, atrN)
		if err != nil {
			return signalgen.Snapshot{}, err
		}
		snap.TrendEMA, snap.PrevTrendEMA = ema[n-1], ema[n-2]
		if n < atrN {
			return signalgen.Snapshot{}, ErrInsufficientData
		}
		window := bars[n-atrN:]
		hi := window[0].High
		for _, b := range window {
			hi = utils.MaxDecimal(hi, b.High)
		}
		snap.ChandelierStop = hi.Sub(atr[n-1].Mul(mult))

	case types.StrategyTypeDonchianChannel:
		entryN := pInt(params, "entryPeriod", 20)
		exitN := pInt(params, "exitPeriod", 10)
		res, err := Donchian(bars, entryN, exitN)
		if err != nil {
			return signalgen.Snapshot{}, err
		}
		snap.DonchianEntryHigh = res.EntryHigh[n-2]
		snap.DonchianExitLow = res.ExitLow[n-2]

	case types.StrategyTypeIchimokuCloud:
		tenkanN := pInt(params, "tenkanPeriod", 9)
		kijunN := pInt(params, "kijunPeriod", 26)
		senkouBN := pInt(params, "senkouBPeriod", 52)
		displacement := pInt(params, "displacement", 26)
		res, err := Ichimoku(bars, tenkanN, kijunN, senkouBN, displacement)
		if err != nil {
			return signalgen.Snapshot{}, err
		}
		snap.Tenkan, snap.PrevTenkan = res.Tenkan[n-1], res.Tenkan[n-2]
		snap.Kijun, snap.PrevKijun = res.Kijun[n-1], res.Kijun[n-2]
		snap.CloudTop = utils.MaxDecimal(res.SenkouA[n-1], res.SenkouB[n-1])
		snap.CloudBottom = utils.MinDecimal(res.SenkouA[n-1], res.SenkouB[n-1])
		futureA := snap.Tenkan.Add(snap.Kijun).Div(decimal.NewFromInt(2))
		futureB := midpoint(bars, n-1, senkouBN)
		snap.FutureCloudTop = utils.MaxDecimal(futureA, futureB)
		snap.FutureCloudBottom = utils.MinDecimal(futureA, futureB)

	default:
		return signalgen.Snapshot{}, ErrInsufficientData
	}

	return snap, nil
}

func rollingVWAP(bars []types.OHLCV) decimal.Decimal {
	pv, vol := decimal.Zero, decimal.Zero
	for _, b := range bars {
		pv = pv.Add(b.Close.Mul(b.Volume))
		vol = vol.Add(b.Volume)
	}
	if vol.IsZero() {
		return decimal.Zero
	}
	return pv.Div(vol)
}
