// Package audit provides a thin helper for constructing TradeAuditLog
// entries. The append-only write itself belongs to the StateStore (see
// pkg/contracts.StateStore.RecordAuditAndUpdateCounters) since the
// design requires the audit append and the LiveStrategy counter bump to
// be one transaction; this package only builds well-formed entries. The
// scheduler's signal and completed-check entries and the executor's
// dry-run entry are built here; the scheduler's failure entries and the
// executor's order and error entries are TradeAuditLog literals at their
// call sites. Grounded on the
// teacher's typed-event idiom in internal/events/event_bus.go (EventType
// constants, BaseEvent) adapted from a pub/sub bus into straight-line
// entry construction.
package audit

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-tradeops/control-plane/pkg/types"
)

// Entry builds a TradeAuditLog record for the given event type.
func Entry(at time.Time, owner string, eventType types.AuditEventType, strategyID, symbol string, side types.OrderSide, qty, price decimal.Decimal, orderID string, details map[string]any) types.TradeAuditLog {
	return types.TradeAuditLog{
		Timestamp:  at,
		Owner:      owner,
		EventType:  eventType,
		StrategyID: strategyID,
		Symbol:     symbol,
		Side:       side,
		Quantity:   qty,
		Price:      price,
		OrderID:    orderID,
		Details:    details,
	}
}

// Signal builds the audit entry recorded when a non-HOLD signal is
// generated, before any order is placed.
func Signal(at time.Time, owner, strategyID, symbol string, side types.OrderSide, strength decimal.Decimal) types.TradeAuditLog {
	return Entry(at, owner, types.AuditEventSignal, strategyID, symbol, side, decimal.Zero, decimal.Zero, "", map[string]any{"strength": strength.String()})
}
