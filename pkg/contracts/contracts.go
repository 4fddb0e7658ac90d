// Package contracts defines the external collaborators the control plane
// core consumes but does not implement in production: market data, the
// broker, persisted state and outbound notifications. Production wiring
// of these interfaces (a real exchange SDK, a relational StateStore, an
// email/SMS/websocket fan-out) lives outside this module; internal/memstore
// and internal/paperbroker provide reference implementations for tests
// and the demo binary.
package contracts

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-tradeops/control-plane/pkg/types"
)

// MarketDataSource supplies OHLCV history for a symbol and timeframe.
// Bars are strictly ascending by timestamp with no gaps within a trading
// session; entire sessions may be absent (e.g. weekends, holidays).
type MarketDataSource interface {
	GetBars(ctx context.Context, symbol string, timeframe types.Timeframe, start, end time.Time, limit int) ([]types.OHLCV, error)
}

// BrokerClient is the account, position and order-routing surface the
// Risk Manager and Signal Executor consume. Implementations may be
// shared across strategies for one owner and must be safe for concurrent
// use, or must be fronted by a per-owner serialising actor.
type BrokerClient interface {
	GetAccount(ctx context.Context) (types.Account, error)
	ListPositions(ctx context.Context) ([]types.Position, error)
	ListOrders(ctx context.Context, status types.OrderStatus) ([]types.Order, error)
	PlaceOrder(ctx context.Context, symbol string, side types.OrderSide, qty decimal.Decimal, orderType types.OrderType, limitPrice decimal.Decimal) (types.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// BrokerError carries whether a BrokerClient failure is safe to retry.
type BrokerError struct {
	Transient bool
	Err       error
}

func (e *BrokerError) Error() string { return e.Err.Error() }
func (e *BrokerError) Unwrap() error { return e.Err }

// StateStore is the persistence surface for every entity the core
// mutates. RecordAuditAndUpdateCounters is the one transactional write
// the design requires: an audit log append plus a LiveStrategy counter
// diff must never be observed half-applied.
type StateStore interface {
	ListActiveLiveStrategies(ctx context.Context) ([]types.LiveStrategy, error)
	GetLiveStrategy(ctx context.Context, id string) (types.LiveStrategy, error)
	PutLiveStrategy(ctx context.Context, ls types.LiveStrategy) error
	GetStrategy(ctx context.Context, id string) (types.Strategy, error)
	ListStrategies(ctx context.Context, owner string) ([]types.Strategy, error)
	PutStrategy(ctx context.Context, s types.Strategy) error

	PutSignal(ctx context.Context, sig types.Signal) error
	MarkSignalExecuted(ctx context.Context, signalID, orderID string) error

	ListActiveRiskRules(ctx context.Context, owner, strategyID string) ([]types.RiskRule, error)
	RecordRuleBreach(ctx context.Context, ruleID string, at time.Time) error

	PutOrder(ctx context.Context, o types.Order) error

	PutOptimizationJob(ctx context.Context, job types.OptimizationJob) error
	GetOptimizationJob(ctx context.Context, id string) (types.OptimizationJob, error)

	// RecordAuditAndUpdateCounters appends an audit entry and applies a
	// LiveStrategy counter diff atomically with respect to any other
	// reader of that LiveStrategy.
	RecordAuditAndUpdateCounters(ctx context.Context, entry types.TradeAuditLog, liveStrategyID string, diff LiveStrategyDiff) error

	ListAuditLog(ctx context.Context, owner string, from, to time.Time) ([]types.TradeAuditLog, error)
}

// LiveStrategyDiff is an additive/overwriting mutation applied to a
// LiveStrategy's counters and status by the StateStore in one
// transaction. Zero-value fields that are pointers are left untouched;
// Delta fields are added to the stored counters.
type LiveStrategyDiff struct {
	SetStatus         *types.LiveStrategyStatus
	SetLastCheck      *time.Time
	SetLastSignalAt   *time.Time
	SetLastTradeAt    *time.Time
	SetLastError      *string
	TotalSignalsDelta int
	ExecutedTradesDelta int
	ErrorCountDelta   int
	ResetConsecutiveFailedTicks bool
	ConsecutiveFailedTicksDelta int
}

// NotificationSink fans a core event out to whatever delivery channels
// (email, SMS, websocket) the deployment configures. Quiet hours and
// per-user delivery preferences are the sink's responsibility, not the
// core's.
type NotificationSink interface {
	Notify(ctx context.Context, owner string, priority types.NotificationPriority, title, body string, data map[string]any) error
}
