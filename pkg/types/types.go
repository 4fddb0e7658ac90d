// Package types provides the shared domain types for the control plane.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide represents buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType represents the type of order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus represents the status of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusExpired   OrderStatus = "expired"
)

// PositionSide represents long or short position.
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// Timeframe represents a market data sampling interval.
type Timeframe string

const (
	Timeframe1Min  Timeframe = "1Min"
	Timeframe5Min  Timeframe = "5Min"
	Timeframe15Min Timeframe = "15Min"
	Timeframe1Hour Timeframe = "1Hour"
	Timeframe1Day  Timeframe = "1Day"
)

// OHLCV represents a single candlestick.
type OHLCV struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// Order represents a trading order placed with a broker.
type Order struct {
	ID             string          `json:"id"`
	LiveStrategyID string          `json:"liveStrategyId"`
	Symbol         string          `json:"symbol"`
	Side           OrderSide       `json:"side"`
	Type           OrderType       `json:"type"`
	Quantity       decimal.Decimal `json:"quantity"`
	LimitPrice     decimal.Decimal `json:"limitPrice,omitempty"`
	Status         OrderStatus     `json:"status"`
	FilledQty      decimal.Decimal `json:"filledQty"`
	AvgFillPrice   decimal.Decimal `json:"avgFillPrice"`
	Commission     decimal.Decimal `json:"commission"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	FilledAt       *time.Time      `json:"filledAt,omitempty"`
}

// Position represents an open position in an account.
type Position struct {
	Symbol        string          `json:"symbol"`
	Side          PositionSide    `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	EntryPrice    decimal.Decimal `json:"entryPrice"`
	CurrentPrice  decimal.Decimal `json:"currentPrice"`
	UnrealizedPnL decimal.Decimal `json:"unrealizedPnl"`
	RealizedPnL   decimal.Decimal `json:"realizedPnl"`
	OpenedAt      time.Time       `json:"openedAt"`
}

// Account is a BrokerClient account snapshot.
type Account struct {
	Equity       decimal.Decimal `json:"equity"`
	Cash         decimal.Decimal `json:"cash"`
	BuyingPower  decimal.Decimal `json:"buyingPower"`
	PeakEquity   decimal.Decimal `json:"peakEquity"`
	DailyPnL     decimal.Decimal `json:"dailyPnl"`
	RealizedPnL  decimal.Decimal `json:"realizedPnl"`
	AsOf         time.Time       `json:"asOf"`
}

// PerformanceMetrics summarises a backtest or optimiser run.
type PerformanceMetrics struct {
	TotalReturnPct decimal.Decimal `json:"totalReturnPct"`
	SharpeRatio    decimal.Decimal `json:"sharpeRatio"`
	MaxDrawdownPct decimal.Decimal `json:"maxDrawdownPct"`
	WinRate        decimal.Decimal `json:"winRate"`
	ProfitFactor   decimal.Decimal `json:"profitFactor"`
	TotalTrades    int             `json:"totalTrades"`
}

// EquityCurvePoint is a single point on a backtest equity curve.
type EquityCurvePoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Equity    decimal.Decimal `json:"equity"`
	Drawdown  decimal.Decimal `json:"drawdown"`
}
