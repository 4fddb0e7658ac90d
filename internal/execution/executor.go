// Package execution implements the Signal Executor: it converts a signal
// into a sized, risk-checked order, routes it to paper or live broker,
// writes the audit trail and fires a notification. Grounded on the
// teacher's Executor.Execute (paper/live branch, retry loop), with the
// ExchangeAdapter replaced by pkg/contracts.BrokerClient and the retry
// policy pinned to base 500ms / factor 2 / cap 4 attempts.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-tradeops/control-plane/internal/audit"
	"github.com/atlas-tradeops/control-plane/internal/clock"
	"github.com/atlas-tradeops/control-plane/internal/risk"
	"github.com/atlas-tradeops/control-plane/internal/telemetry"
	"github.com/atlas-tradeops/control-plane/pkg/contracts"
	"github.com/atlas-tradeops/control-plane/pkg/types"
	"github.com/atlas-tradeops/control-plane/pkg/utils"
)

// Options controls one Execute call.
type Options struct {
	DryRun   bool
	UsePaper bool
}

// Result is the outcome of Execute.
type Result struct {
	Success         bool
	OrderID         string
	ExecutionPrice  decimal.Decimal
	Quantity        decimal.Decimal
	DryRun          bool
	Error           string
	Timestamp       time.Time
}

// Executor wires the Risk Manager, a live and a paper BrokerClient, the
// StateStore and a NotificationSink into the execute() contract.
type Executor struct {
	logger       *zap.Logger
	clock        clock.Clock
	risk         *risk.Manager
	store        contracts.StateStore
	notify       contracts.NotificationSink
	liveBroker   contracts.BrokerClient
	paperBroker  contracts.BrokerClient
	retryConfig  utils.RetryConfig
}

// New creates an Executor.
func New(logger *zap.Logger, c clock.Clock, riskMgr *risk.Manager, store contracts.StateStore, notify contracts.NotificationSink, liveBroker, paperBroker contracts.BrokerClient) *Executor {
	return &Executor{
		logger:      logger.Named("executor"),
		clock:       c,
		risk:        riskMgr,
		store:       store,
		notify:      notify,
		liveBroker:  liveBroker,
		paperBroker: paperBroker,
		retryConfig: utils.DefaultRetryConfig(),
	}
}

// Execute runs the full signal->order pipeline for one Signal belonging
// to one LiveStrategy. Business-logic outcomes (HOLD, risk block, broker
// rejection) are reported in Result. StateStore write failures are
// logged rather than returned, so the error return is always nil.
func (e *Executor) Execute(ctx context.Context, sig types.Signal, ls types.LiveStrategy, rules []types.RiskRule, pf risk.Portfolio, opts Options) (Result, error) {
	now := e.clock.Now()

	if sig.Type == types.SignalTypeHold {
		return Result{Success: true, Timestamp: now}, nil
	}

	qty := sig.Quantity
	if qty.IsZero() {
		sized, reason := e.risk.CalculatePositionSize(risk.PositionSizeInput{
			PositionSizePct: ls.PositionSizePct,
			BuyingPower:     pf.BuyingPower,
			MaxPositionSize: ls.MaxPositionSize,
			EntryPrice:      sig.Indicators["close"],
			Equity:          pf.Equity,
			RiskPerTrade:    decimal.NewFromFloat(0.01),
		})
		if sized.IsZero() {
			return Result{Success: false, Error: fmt.Sprintf("position sizing: %s", reason), Timestamp: now}, nil
		}
		qty = sized
	}

	side := types.OrderSideBuy
	if sig.Type == types.SignalTypeSell {
		side = types.OrderSideSell
	}

	proposed := risk.ProposedOrder{Symbol: sig.Symbol, Side: side, Quantity: qty, EstimatedPrice: sig.Indicators["close"]}
	verdict := e.risk.Evaluate(ctx, rules, proposed, pf)

	if verdict.Action == types.RiskActionBlock || verdict.Action == types.RiskActionClosePosition || verdict.Action == types.RiskActionCloseAll {
		reason := fmt.Sprintf("%s: %s", verdict.Action, joinBreaches(verdict.Breaches))
		e.writeAuditError(ctx, ls, sig, reason)
		if e.notify != nil {
			_ = e.notify.Notify(ctx, ls.Owner, verdict.NotificationPriority, "Order blocked by risk policy", reason, nil)
		}
		return Result{Success: false, Error: reason, Timestamp: now}, nil
	}
	if verdict.Action == types.RiskActionReduceSize {
		qty = verdict.AdjustedQuantity
		if qty.IsZero() {
			reason := "REDUCE_SIZE resolved to zero shares"
			e.writeAuditError(ctx, ls, sig, reason)
			return Result{Success: false, Error: reason, Timestamp: now}, nil
		}
	}

	if opts.DryRun {
		_ = e.store.PutSignal(ctx, sig)
		entry := audit.Signal(now, ls.Owner, ls.StrategyID, sig.Symbol, side, sig.Strength)
		if err := e.store.RecordAuditAndUpdateCounters(ctx, entry, ls.ID, contracts.LiveStrategyDiff{}); err != nil {
			e.logger.Error("failed to record dry-run signal audit", zap.Error(err))
		}
		return Result{Success: true, DryRun: true, Quantity: qty, Timestamp: now}, nil
	}

	broker := e.liveBroker
	if opts.UsePaper {
		broker = e.paperBroker
	}

	order, err := e.placeWithRetry(ctx, broker, sig.Symbol, side, qty)
	if err != nil {
		telemetry.RecordOrder(string(side), "failed")
		e.writeAuditError(ctx, ls, sig, err.Error())
		if e.notify != nil {
			_ = e.notify.Notify(ctx, ls.Owner, types.NotificationMedium, "Order placement failed", err.Error(), nil)
		}
		return Result{Success: false, Error: err.Error(), Timestamp: now}, nil
	}
	telemetry.RecordOrder(string(side), "placed")

	diff := contracts.LiveStrategyDiff{
		ExecutedTradesDelta: 1,
		SetLastTradeAt:      &now,
		ResetConsecutiveFailedTicks: true,
	}
	entry := types.TradeAuditLog{
		Timestamp:  now,
		Owner:      ls.Owner,
		EventType:  types.AuditEventOrder,
		StrategyID: ls.StrategyID,
		Symbol:     sig.Symbol,
		Side:       side,
		Quantity:   qty,
		Price:      order.AvgFillPrice,
		OrderID:    order.ID,
	}
	if err := e.store.RecordAuditAndUpdateCounters(ctx, entry, ls.ID, diff); err != nil {
		e.logger.Error("failed to record audit+counters", zap.Error(err))
	}
	if err := e.store.MarkSignalExecuted(ctx, sig.ID, order.ID); err != nil {
		e.logger.Error("failed to mark signal executed", zap.Error(err))
	}
	if e.notify != nil {
		_ = e.notify.Notify(ctx, ls.Owner, types.NotificationLow, "Order placed", fmt.Sprintf("%s %s %s", side, qty.String(), sig.Symbol), nil)
	}

	return Result{Success: true, OrderID: order.ID, ExecutionPrice: order.AvgFillPrice, Quantity: qty, Timestamp: now}, nil
}

func (e *Executor) placeWithRetry(ctx context.Context, broker contracts.BrokerClient, symbol string, side types.OrderSide, qty decimal.Decimal) (types.Order, error) {
	shouldRetry := func(err error) bool {
		var be *contracts.BrokerError
		if errors.As(err, &be) {
			return be.Transient
		}
		return false
	}

	return utils.Retry(e.retryConfig, shouldRetry, func(attempt int) (types.Order, error) {
		if attempt > 1 {
			e.logger.Warn("retrying order placement", zap.Int("attempt", attempt), zap.String("symbol", symbol))
		}
		return broker.PlaceOrder(ctx, symbol, side, qty, types.OrderTypeMarket, decimal.Zero)
	})
}

func (e *Executor) writeAuditError(ctx context.Context, ls types.LiveStrategy, sig types.Signal, reason string) {
	now := e.clock.Now()
	entry := types.TradeAuditLog{
		Timestamp:  now,
		Owner:      ls.Owner,
		EventType:  types.AuditEventError,
		StrategyID: ls.StrategyID,
		Symbol:     sig.Symbol,
		Details:    map[string]any{"reason": reason},
	}
	diff := contracts.LiveStrategyDiff{ErrorCountDelta: 1, SetLastError: &reason}
	if err := e.store.RecordAuditAndUpdateCounters(ctx, entry, ls.ID, diff); err != nil {
		e.logger.Error("failed to record error audit", zap.Error(err))
	}
}

func joinBreaches(breaches []risk.Breach) string {
	if len(breaches) == 0 {
		return ""
	}
	out := breaches[0].Detail
	for _, b := range breaches[1:] {
		out += "; " + b.Detail
	}
	return out
}
