// Package paperbroker is a reference, in-memory implementation of
// pkg/contracts.BrokerClient for dry runs and tests. It simulates fills
// with a fixed slippage and commission model grounded on the teacher's
// Executor.simulateExecution (basis-point slippage against the last
// traded price plus a flat per-share commission), since no real
// exchange adapter is in scope.
package paperbroker

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-tradeops/control-plane/internal/clock"
	"github.com/atlas-tradeops/control-plane/pkg/contracts"
	"github.com/atlas-tradeops/control-plane/pkg/types"
)

// slippageBps is the simulated price impact applied against the
// reference price, in basis points, away from the trader (buys fill
// higher, sells fill lower).
var slippageBps = decimal.NewFromFloat(5)

// commissionPerShare is a flat simulated per-share commission.
var commissionPerShare = decimal.NewFromFloat(0.005)

// PriceSource supplies the reference price a simulated fill is priced
// against. In production this is the same MarketDataSource the
// scheduler already polls; tests can supply a fixed map.
type PriceSource interface {
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Broker is a paper-trading contracts.BrokerClient backed by an
// in-memory account and position book.
type Broker struct {
	logger *zap.Logger
	clock  clock.Clock
	prices PriceSource

	mu        sync.Mutex
	account   types.Account
	positions map[string]types.Position
	orders    map[string]types.Order
}

// New creates a Broker seeded with the given starting cash.
func New(logger *zap.Logger, c clock.Clock, prices PriceSource, startingCash decimal.Decimal) *Broker {
	now := c.Now()
	return &Broker{
		logger: logger.Named("paperbroker"),
		clock:  c,
		prices: prices,
		account: types.Account{
			Equity:      startingCash,
			Cash:        startingCash,
			BuyingPower: startingCash,
			PeakEquity:  startingCash,
			AsOf:        now,
		},
		positions: make(map[string]types.Position),
		orders:    make(map[string]types.Order),
	}
}

var _ contracts.BrokerClient = (*Broker)(nil)

func (b *Broker) GetAccount(ctx context.Context) (types.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acct := b.account
	acct.AsOf = b.clock.Now()
	return acct, nil
}

func (b *Broker) ListPositions(ctx context.Context) ([]types.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	return out, nil
}

func (b *Broker) ListOrders(ctx context.Context, status types.OrderStatus) ([]types.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []types.Order
	for _, o := range b.orders {
		if status == "" || o.Status == status {
			out = append(out, o)
		}
	}
	return out, nil
}

// PlaceOrder simulates an immediate market fill (limit orders are
// treated as marketable at the reference price; this broker exists for
// dry runs, not limit-queue semantics).
func (b *Broker) PlaceOrder(ctx context.Context, symbol string, side types.OrderSide, qty decimal.Decimal, orderType types.OrderType, limitPrice decimal.Decimal) (types.Order, error) {
	if qty.LessThanOrEqual(decimal.Zero) {
		return types.Order{}, &contracts.BrokerError{Transient: false, Err: fmt.Errorf("quantity must be positive, got %s", qty.String())}
	}

	ref, err := b.prices.LastPrice(ctx, symbol)
	if err != nil {
		return types.Order{}, &contracts.BrokerError{Transient: true, Err: err}
	}

	fillPrice := applySlippage(ref, side)
	commission := qty.Mul(commissionPerShare)
	notional := qty.Mul(fillPrice)

	b.mu.Lock()
	defer b.mu.Unlock()

	if side == types.OrderSideBuy && notional.Add(commission).GreaterThan(b.account.BuyingPower) {
		return types.Order{}, &contracts.BrokerError{Transient: false, Err: fmt.Errorf("insufficient buying power: need %s, have %s", notional.Add(commission).StringFixed(2), b.account.BuyingPower.StringFixed(2))}
	}

	now := b.clock.Now()
	order := types.Order{
		ID:           uuid.NewString(),
		Symbol:       symbol,
		Side:         side,
		Type:         orderType,
		Quantity:     qty,
		LimitPrice:   limitPrice,
		Status:       types.OrderStatusFilled,
		FilledQty:    qty,
		AvgFillPrice: fillPrice,
		Commission:   commission,
		CreatedAt:    now,
		UpdatedAt:    now,
		FilledAt:     &now,
	}
	b.orders[order.ID] = order

	b.applyFill(symbol, side, qty, fillPrice, commission)

	b.logger.Info("paper fill",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.String("qty", qty.String()),
		zap.String("price", fillPrice.String()))

	return order, nil
}

func (b *Broker) CancelOrder(ctx context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	order, ok := b.orders[orderID]
	if !ok {
		return &contracts.BrokerError{Transient: false, Err: fmt.Errorf("order %q not found", orderID)}
	}
	if order.Status == types.OrderStatusFilled {
		return &contracts.BrokerError{Transient: false, Err: fmt.Errorf("order %q already filled", orderID)}
	}
	order.Status = types.OrderStatusCancelled
	order.UpdatedAt = b.clock.Now()
	b.orders[orderID] = order
	return nil
}

// applyFill updates cash, buying power and the position book under the
// caller's lock. Long-only: a sell larger than the held quantity closes
// the position outright rather than opening a short.
func (b *Broker) applyFill(symbol string, side types.OrderSide, qty, price, commission decimal.Decimal) {
	now := b.clock.Now()
	pos, hasPos := b.positions[symbol]

	switch side {
	case types.OrderSideBuy:
		cost := qty.Mul(price).Add(commission)
		b.account.Cash = b.account.Cash.Sub(cost)
		if hasPos {
			totalQty := pos.Quantity.Add(qty)
			pos.EntryPrice = pos.EntryPrice.Mul(pos.Quantity).Add(qty.Mul(price)).Div(totalQty)
			pos.Quantity = totalQty
			pos.CurrentPrice = price
		} else {
			pos = types.Position{Symbol: symbol, Side: types.PositionSideLong, Quantity: qty, EntryPrice: price, CurrentPrice: price, OpenedAt: now}
		}
		b.positions[symbol] = pos

	case types.OrderSideSell:
		proceeds := qty.Mul(price).Sub(commission)
		b.account.Cash = b.account.Cash.Add(proceeds)
		if hasPos {
			closedQty := decimal.Min(qty, pos.Quantity)
			realized := closedQty.Mul(price.Sub(pos.EntryPrice))
			pos.RealizedPnL = pos.RealizedPnL.Add(realized)
			b.account.RealizedPnL = b.account.RealizedPnL.Add(realized)
			pos.Quantity = pos.Quantity.Sub(closedQty)
			pos.CurrentPrice = price
			if pos.Quantity.LessThanOrEqual(decimal.Zero) {
				delete(b.positions, symbol)
			} else {
				b.positions[symbol] = pos
			}
		}
	}

	b.recomputeEquity()
}

func (b *Broker) recomputeEquity() {
	positionsValue := decimal.Zero
	unrealized := decimal.Zero
	for symbol, pos := range b.positions {
		pos.UnrealizedPnL = pos.Quantity.Mul(pos.CurrentPrice.Sub(pos.EntryPrice))
		b.positions[symbol] = pos
		positionsValue = positionsValue.Add(pos.Quantity.Mul(pos.CurrentPrice))
		unrealized = unrealized.Add(pos.UnrealizedPnL)
	}
	b.account.Equity = b.account.Cash.Add(positionsValue)
	b.account.BuyingPower = b.account.Cash
	b.account.DailyPnL = unrealized.Add(b.account.RealizedPnL)
	if b.account.Equity.GreaterThan(b.account.PeakEquity) {
		b.account.PeakEquity = b.account.Equity
	}
	b.account.AsOf = b.clock.Now()
}

func applySlippage(ref decimal.Decimal, side types.OrderSide) decimal.Decimal {
	impact := ref.Mul(slippageBps).Div(decimal.NewFromInt(10000))
	if side == types.OrderSideBuy {
		return ref.Add(impact)
	}
	return ref.Sub(impact)
}

// FixedPriceSource is a test/demo PriceSource backed by a static map.
type FixedPriceSource struct {
	mu     sync.RWMutex
	Prices map[string]decimal.Decimal
}

// NewFixedPriceSource creates a FixedPriceSource from an initial map.
func NewFixedPriceSource(prices map[string]decimal.Decimal) *FixedPriceSource {
	if prices == nil {
		prices = make(map[string]decimal.Decimal)
	}
	return &FixedPriceSource{Prices: prices}
}

func (f *FixedPriceSource) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.Prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("paperbroker: no price for %q", symbol)
	}
	return p, nil
}

// SetPrice updates the reference price for a symbol.
func (f *FixedPriceSource) SetPrice(symbol string, price decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Prices[symbol] = price
}

var _ PriceSource = (*FixedPriceSource)(nil)
