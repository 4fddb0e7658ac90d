package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// StrategyType is the closed set of signal-generation strategies the
// Signal Generator can dispatch to.
type StrategyType string

const (
	StrategyTypeSMACrossover    StrategyType = "SMA_CROSSOVER"
	StrategyTypeRSI             StrategyType = "RSI"
	StrategyTypeMACD            StrategyType = "MACD"
	StrategyTypeBollingerBands  StrategyType = "BOLLINGER_BANDS"
	StrategyTypeMeanReversion   StrategyType = "MEAN_REVERSION"
	StrategyTypeVWAP            StrategyType = "VWAP"
	StrategyTypeMomentum        StrategyType = "MOMENTUM"
	StrategyTypeBreakout        StrategyType = "BREAKOUT"
	StrategyTypePairsTrading    StrategyType = "PAIRS_TRADING"
	StrategyTypeStochastic      StrategyType = "STOCHASTIC"
	StrategyTypeKeltnerChannel  StrategyType = "KELTNER_CHANNEL"
	StrategyTypeATRTrailingStop StrategyType = "ATR_TRAILING_STOP"
	StrategyTypeDonchianChannel StrategyType = "DONCHIAN_CHANNEL"
	StrategyTypeIchimokuCloud   StrategyType = "ICHIMOKU_CLOUD"
)

// Strategy is the immutable-in-spirit, user-authored template that a
// LiveStrategy binds to a live execution context.
type Strategy struct {
	ID         string                 `json:"id"`
	Owner      string                 `json:"owner"`
	Name       string                 `json:"name"`
	Type       StrategyType           `json:"strategyType"`
	Parameters map[string]decimal.Decimal `json:"parameters"`
	Symbols    []string               `json:"symbols"`
	CreatedAt  time.Time              `json:"createdAt"`
}

// LiveStrategyStatus is the lifecycle state of a running strategy instance.
type LiveStrategyStatus string

const (
	LiveStrategyStatusActive  LiveStrategyStatus = "ACTIVE"
	LiveStrategyStatusPaused  LiveStrategyStatus = "PAUSED"
	LiveStrategyStatusStopped LiveStrategyStatus = "STOPPED"
	LiveStrategyStatusError   LiveStrategyStatus = "ERROR"
)

// LiveStrategy binds a Strategy template to a live execution context: the
// symbols it watches, its cadence, and its accumulated counters.
type LiveStrategy struct {
	ID                string             `json:"id"`
	Owner             string             `json:"owner"`
	StrategyID        string             `json:"strategyId"`
	Name              string             `json:"name"`
	Symbols           []string           `json:"symbols"`
	Status            LiveStrategyStatus `json:"status"`
	CheckInterval     time.Duration      `json:"checkInterval"`
	AutoExecute       bool               `json:"autoExecute"`
	MaxPositions      int                `json:"maxPositions"`
	PositionSizePct   decimal.Decimal    `json:"positionSizePct"`
	MaxPositionSize   decimal.Decimal    `json:"maxPositionSize,omitempty"`
	DailyLossLimit    decimal.Decimal    `json:"dailyLossLimit,omitempty"`
	LastCheck         *time.Time         `json:"lastCheck,omitempty"`
	LastSignalAt      *time.Time         `json:"lastSignalAt,omitempty"`
	LastTradeAt       *time.Time         `json:"lastTradeAt,omitempty"`
	TotalSignals      int                `json:"totalSignals"`
	ExecutedTrades    int                `json:"executedTrades"`
	ErrorCount        int                `json:"errorCount"`
	ConsecutiveFailedTicks int           `json:"consecutiveFailedTicks"`
	LastError         string             `json:"lastError,omitempty"`
	State             map[string]any     `json:"state,omitempty"`
}

// SignalType is the trinary outcome of the Signal Generator.
type SignalType string

const (
	SignalTypeBuy  SignalType = "BUY"
	SignalTypeSell SignalType = "SELL"
	SignalTypeHold SignalType = "HOLD"
)

// Signal is an append-only record of one Signal Generator invocation.
type Signal struct {
	ID             string          `json:"id"`
	LiveStrategyID string          `json:"liveStrategyId"`
	Symbol         string          `json:"symbol"`
	Timestamp      time.Time       `json:"timestamp"`
	Type           SignalType      `json:"signalType"`
	Strength       decimal.Decimal `json:"strength"`
	Reasoning      string          `json:"reasoning"`
	Indicators     map[string]decimal.Decimal `json:"indicators"`
	Executed       bool            `json:"executed"`
	OrderID        string          `json:"orderId,omitempty"`
	Quantity       decimal.Decimal `json:"quantity,omitempty"`
}

// RiskRuleType is the closed set of portfolio-risk checks a RiskRule can
// encode.
type RiskRuleType string

const (
	RiskRuleMaxPositionSize RiskRuleType = "MAX_POSITION_SIZE"
	RiskRuleMaxDailyLoss    RiskRuleType = "MAX_DAILY_LOSS"
	RiskRuleMaxDrawdown     RiskRuleType = "MAX_DRAWDOWN"
	RiskRulePositionLimit   RiskRuleType = "POSITION_LIMIT"
	RiskRuleMaxLeverage     RiskRuleType = "MAX_LEVERAGE"
)

// RiskAction is the remedy a breached RiskRule demands. Values are listed
// weakest first; precedence when aggregating breaches runs the other way.
type RiskAction string

const (
	RiskActionAlert         RiskAction = "ALERT"
	RiskActionReduceSize    RiskAction = "REDUCE_SIZE"
	RiskActionBlock         RiskAction = "BLOCK"
	RiskActionClosePosition RiskAction = "CLOSE_POSITION"
	RiskActionCloseAll      RiskAction = "CLOSE_ALL"
)

// actionRank orders RiskActions by precedence; higher wins when
// aggregating multiple breaches. CLOSE_ALL is strongest.
var actionRank = map[RiskAction]int{
	RiskActionAlert:         1,
	RiskActionReduceSize:    2,
	RiskActionBlock:         3,
	RiskActionClosePosition: 4,
	RiskActionCloseAll:      5,
}

// Stronger reports whether a outranks b in the BLOCK/REDUCE/ALERT
// precedence ladder.
func (a RiskAction) Stronger(b RiskAction) bool {
	return actionRank[a] > actionRank[b]
}

// RiskRule is a single user-scoped (optionally strategy-scoped) risk
// policy evaluated before every order.
type RiskRule struct {
	ID           string          `json:"id"`
	Owner        string          `json:"owner"`
	StrategyID   string          `json:"strategyId,omitempty"`
	Name         string          `json:"name"`
	Type         RiskRuleType    `json:"ruleType"`
	Threshold    decimal.Decimal `json:"threshold"`
	Action       RiskAction      `json:"action"`
	IsActive     bool            `json:"isActive"`
	BreachCount  int             `json:"breachCount"`
	LastBreachAt *time.Time      `json:"lastBreachAt,omitempty"`
}

// AuditEventType is the closed set of events the TradeAuditLog records.
type AuditEventType string

const (
	AuditEventSignal AuditEventType = "signal"
	AuditEventOrder  AuditEventType = "order"
	AuditEventFill   AuditEventType = "fill"
	AuditEventError  AuditEventType = "error"
)

// TradeAuditLog is an append-only, owner- and time-indexed audit record.
type TradeAuditLog struct {
	ID         string                 `json:"id"`
	Timestamp  time.Time              `json:"timestamp"`
	Owner      string                 `json:"owner"`
	EventType  AuditEventType         `json:"eventType"`
	StrategyID string                 `json:"strategyId,omitempty"`
	Symbol     string                 `json:"symbol,omitempty"`
	Side       OrderSide              `json:"side,omitempty"`
	Quantity   decimal.Decimal        `json:"quantity,omitempty"`
	Price      decimal.Decimal        `json:"price,omitempty"`
	OrderID    string                 `json:"orderId,omitempty"`
	Details    map[string]any         `json:"details,omitempty"`
}

// OptimizationJobStatus is the lifecycle state of an OptimizationJob.
type OptimizationJobStatus string

const (
	OptimizationJobPending   OptimizationJobStatus = "PENDING"
	OptimizationJobRunning   OptimizationJobStatus = "RUNNING"
	OptimizationJobCompleted OptimizationJobStatus = "COMPLETED"
	OptimizationJobFailed    OptimizationJobStatus = "FAILED"
)

// RankedResult is one (symbol, strategy) entry of an OptimizationJob's
// ranked results.
type RankedResult struct {
	Rank           int                    `json:"rank"`
	StrategyID     string                 `json:"strategyId"`
	Symbol         string                 `json:"symbol"`
	Parameters     map[string]decimal.Decimal `json:"parameters"`
	Metrics        PerformanceMetrics     `json:"metrics"`
	CompositeScore decimal.Decimal        `json:"compositeScore"`
}

// OptimizationJob is a request to backtest a symbol x strategy grid and
// rank the results.
type OptimizationJob struct {
	ID              string                `json:"id"`
	Owner           string                `json:"owner"`
	Symbols         []string              `json:"symbols"`
	StrategyIDs     []string              `json:"strategyIds"`
	StartDate       time.Time             `json:"startDate"`
	EndDate         time.Time             `json:"endDate"`
	InitialCapital  decimal.Decimal       `json:"initialCapital"`
	Status          OptimizationJobStatus `json:"status"`
	Results         []RankedResult        `json:"results,omitempty"`
	Error           string                `json:"error,omitempty"`
	CreatedAt       time.Time             `json:"createdAt"`
	CompletedAt     *time.Time            `json:"completedAt,omitempty"`
}

// NotificationPriority is the urgency of a NotificationSink delivery.
type NotificationPriority string

const (
	NotificationLow    NotificationPriority = "LOW"
	NotificationMedium NotificationPriority = "MEDIUM"
	NotificationHigh   NotificationPriority = "HIGH"
	NotificationUrgent NotificationPriority = "URGENT"
)
