// Package risk implements pre-trade risk rule evaluation, position
// sizing and portfolio risk metrics. It is grounded on the teacher's
// threshold-check risk manager, generalized from one fixed config to a
// per-owner, per-strategy-scoped list of RiskRule entities with
// action-precedence aggregation.
package risk

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-tradeops/control-plane/internal/clock"
	"github.com/atlas-tradeops/control-plane/internal/telemetry"
	"github.com/atlas-tradeops/control-plane/pkg/types"
	"github.com/atlas-tradeops/control-plane/pkg/utils"
)

// ProposedOrder is the input to Evaluate: the order the Signal Executor
// is about to place.
type ProposedOrder struct {
	Symbol         string
	Side           types.OrderSide
	Quantity       decimal.Decimal
	EstimatedPrice decimal.Decimal
}

func (p ProposedOrder) notional() decimal.Decimal {
	return p.Quantity.Mul(p.EstimatedPrice)
}

// Portfolio is the broker-sourced snapshot Evaluate scores rules
// against.
type Portfolio struct {
	Equity          decimal.Decimal
	Cash            decimal.Decimal
	BuyingPower     decimal.Decimal
	PeakEquity      decimal.Decimal
	DailyPnL        decimal.Decimal
	GrossExposure   decimal.Decimal
	OpenPositions   int
	HasSymbol       bool // true if proposed.Symbol is already an open position
}

// Breach records one RiskRule that the proposed order violated.
type Breach struct {
	Rule    types.RiskRule
	Detail  string
}

// Evaluation is the outcome of Evaluate: the strongest action demanded
// by any breached rule, plus every individual breach for audit.
type Evaluation struct {
	Action           types.RiskAction // empty string means no breach, order approved as-is
	Breaches         []Breach
	AdjustedQuantity decimal.Decimal // set when Action == REDUCE_SIZE
	NotificationPriority types.NotificationPriority
}

// Approved reports whether the proposed order may proceed unmodified.
func (e Evaluation) Approved() bool {
	return e.Action == "" || e.Action == types.RiskActionAlert
}

// Manager evaluates proposed orders against a caller-supplied set of
// RiskRules and computes position sizes. It holds no rule state of its
// own — rules are loaded by the caller from the StateStore. Its clock
// and mutex fields are not read by any of its methods.
type Manager struct {
	logger *zap.Logger
	clock  clock.Clock
	mu     sync.Mutex
}

// NewManager creates a Manager.
func NewManager(logger *zap.Logger, c clock.Clock) *Manager {
	return &Manager{logger: logger.Named("risk"), clock: c}
}

// Evaluate runs the five rule checks of the design, aggregates breaches
// by action precedence (CLOSE_ALL > CLOSE_POSITION > BLOCK > REDUCE_SIZE
// > ALERT), and for a REDUCE_SIZE verdict binary-searches the largest
// quantity that clears every breached dimension.
func (m *Manager) Evaluate(ctx context.Context, rules []types.RiskRule, proposed ProposedOrder, pf Portfolio) Evaluation {
	breaches := m.checkAll(rules, proposed, pf)
	if len(breaches) == 0 {
		return Evaluation{}
	}

	strongest := breaches[0].Rule.Action
	for _, b := range breaches[1:] {
		if b.Rule.Action.Stronger(strongest) {
			strongest = b.Rule.Action
		}
	}

	eval := Evaluation{Action: strongest, Breaches: breaches, NotificationPriority: priorityFor(strongest)}

	if strongest == types.RiskActionReduceSize {
		eval.AdjustedQuantity = m.reduceToClear(rules, proposed, pf)
	}

	for _, b := range breaches {
		telemetry.RecordRiskBreach(string(b.Rule.Type), string(b.Rule.Action))
	}

	m.logger.Warn("risk breach",
		zap.String("symbol", proposed.Symbol),
		zap.String("action", string(strongest)),
		zap.Int("breachCount", len(breaches)))

	return eval
}

func priorityFor(action types.RiskAction) types.NotificationPriority {
	switch action {
	case types.RiskActionCloseAll, types.RiskActionClosePosition, types.RiskActionBlock:
		return types.NotificationHigh
	case types.RiskActionReduceSize:
		return types.NotificationMedium
	default:
		return types.NotificationLow
	}
}

func (m *Manager) checkAll(rules []types.RiskRule, proposed ProposedOrder, pf Portfolio) []Breach {
	var breaches []Breach
	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		if detail, breached := checkRule(rule, proposed, pf); breached {
			breaches = append(breaches, Breach{Rule: rule, Detail: detail})
		}
	}
	return breaches
}

func checkRule(rule types.RiskRule, proposed ProposedOrder, pf Portfolio) (string, bool) {
	switch rule.Type {
	case types.RiskRuleMaxPositionSize:
		notional := proposed.notional()
		if notional.GreaterThan(rule.Threshold) {
			return fmt.Sprintf("position size %s > %s", notional.StringFixed(2), rule.Threshold.StringFixed(2)), true
		}
	case types.RiskRulePositionLimit:
		projected := pf.OpenPositions
		if !pf.HasSymbol {
			projected++
		}
		if decimal.NewFromInt(int64(projected)).GreaterThan(rule.Threshold) {
			return fmt.Sprintf("open positions %d > %s", projected, rule.Threshold.String()), true
		}
	case types.RiskRuleMaxDailyLoss:
		worstCase := proposed.notional()
		if pf.DailyPnL.Sub(worstCase).LessThanOrEqual(rule.Threshold.Neg()) {
			return fmt.Sprintf("projected daily P&L %s breaches -%s", pf.DailyPnL.Sub(worstCase).StringFixed(2), rule.Threshold.StringFixed(2)), true
		}
	case types.RiskRuleMaxDrawdown:
		if pf.PeakEquity.IsZero() {
			return "", false
		}
		dd := pf.PeakEquity.Sub(pf.Equity).Div(pf.PeakEquity)
		if dd.GreaterThan(rule.Threshold) {
			return fmt.Sprintf("drawdown %s > %s", dd.StringFixed(4), rule.Threshold.StringFixed(4)), true
		}
	case types.RiskRuleMaxLeverage:
		if pf.Equity.IsZero() {
			return "", false
		}
		lev := pf.GrossExposure.Add(proposed.notional()).Div(pf.Equity)
		if lev.GreaterThan(rule.Threshold) {
			return fmt.Sprintf("leverage %s > %s", lev.StringFixed(2), rule.Threshold.StringFixed(2)), true
		}
	}
	return "", false
}

// reduceToClear binary-searches (on whole shares) the largest quantity
// that breaches none of the rules, rounding down.
func (m *Manager) reduceToClear(rules []types.RiskRule, proposed ProposedOrder, pf Portfolio) decimal.Decimal {
	lo, hi := decimal.Zero, proposed.Quantity
	clears := func(qty decimal.Decimal) bool {
		candidate := proposed
		candidate.Quantity = qty
		return len(m.checkAll(rules, candidate, pf)) == 0
	}

	if !clears(lo) {
		return decimal.Zero
	}

	for i := 0; i < 40 && hi.Sub(lo).GreaterThan(decimal.NewFromFloat(0.5)); i++ {
		mid := lo.Add(hi).Div(decimal.NewFromInt(2)).Floor()
		if mid.Equal(lo) {
			break
		}
		if clears(mid) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo.Floor()
}

// PositionSizeInput is the input to CalculatePositionSize.
type PositionSizeInput struct {
	PositionSizePct decimal.Decimal
	BuyingPower     decimal.Decimal
	MaxPositionSize decimal.Decimal // zero means unconstrained
	EntryPrice      decimal.Decimal
	StopLoss        decimal.Decimal // zero means not set
	RiskPerTrade    decimal.Decimal
	Equity          decimal.Decimal
}

// CalculatePositionSize implements the three-way minimum of the design:
// pct-of-buying-power sizing, an absolute cash cap, and (if a stop loss
// is set) a risk-per-trade / stop-distance sizing. Result is rounded
// down to whole shares; below one share returns zero.
func (m *Manager) CalculatePositionSize(in PositionSizeInput) (decimal.Decimal, string) {
	if in.EntryPrice.IsZero() || in.PositionSizePct.IsZero() || in.BuyingPower.IsZero() {
		return decimal.Zero, "below minimum"
	}

	byPct := in.PositionSizePct.Mul(in.BuyingPower).Div(in.EntryPrice)
	candidate := byPct

	if !in.MaxPositionSize.IsZero() {
		byMaxCash := in.MaxPositionSize.Div(in.EntryPrice)
		candidate = utils.MinDecimal(candidate, byMaxCash)
	}

	if !in.StopLoss.IsZero() {
		distance := in.EntryPrice.Sub(in.StopLoss).Abs()
		if !distance.IsZero() {
			byRisk := in.RiskPerTrade.Mul(in.Equity).Div(distance)
			candidate = utils.MinDecimal(candidate, byRisk)
		}
	}

	candidate = candidate.Floor()
	if candidate.LessThan(decimal.NewFromInt(1)) {
		return decimal.Zero, "below minimum"
	}
	return candidate, ""
}

// PortfolioRiskMetrics is the scalar dashboard view of the design. On a
// broker fetch failure callers should pass a zero-valued Portfolio and
// set Err — the metrics remain zero-filled rather than raising.
type PortfolioRiskMetrics struct {
	AccountValue              decimal.Decimal
	BuyingPower               decimal.Decimal
	TotalPositionValue        decimal.Decimal
	Cash                      decimal.Decimal
	NumberOfPositions         int
	DailyPnL                  decimal.Decimal
	DailyPnLPercent           decimal.Decimal
	TotalUnrealizedPnL        decimal.Decimal
	TotalUnrealizedPnLPercent decimal.Decimal
	Leverage                  decimal.Decimal
	MaxDrawdownPercent        decimal.Decimal
	Err                       string
}

// ComputePortfolioRiskMetrics derives the dashboard view from a
// Portfolio snapshot and the open positions it was built from.
func ComputePortfolioRiskMetrics(pf Portfolio, positions []types.Position) PortfolioRiskMetrics {
	m := PortfolioRiskMetrics{
		AccountValue:      pf.Equity,
		BuyingPower:       pf.BuyingPower,
		Cash:              pf.Cash,
		NumberOfPositions: len(positions),
		DailyPnL:          pf.DailyPnL,
	}

	totalPositionValue := decimal.Zero
	totalUnrealized := decimal.Zero
	for _, p := range positions {
		totalPositionValue = totalPositionValue.Add(p.Quantity.Mul(p.CurrentPrice))
		totalUnrealized = totalUnrealized.Add(p.UnrealizedPnL)
	}
	m.TotalPositionValue = totalPositionValue
	m.TotalUnrealizedPnL = totalUnrealized

	if !pf.Equity.IsZero() {
		m.DailyPnLPercent = pf.DailyPnL.Div(pf.Equity).Mul(decimal.NewFromInt(100))
		m.TotalUnrealizedPnLPercent = totalUnrealized.Div(pf.Equity).Mul(decimal.NewFromInt(100))
		m.Leverage = pf.GrossExposure.Div(pf.Equity)
	}
	if !pf.PeakEquity.IsZero() {
		m.MaxDrawdownPercent = pf.PeakEquity.Sub(pf.Equity).Div(pf.PeakEquity).Mul(decimal.NewFromInt(100))
	}

	return m
}
