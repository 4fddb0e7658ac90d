package paperbroker_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-tradeops/control-plane/internal/clock"
	"github.com/atlas-tradeops/control-plane/internal/paperbroker"
	"github.com/atlas-tradeops/control-plane/pkg/types"
)

func newBroker(t *testing.T, cash float64) (*paperbroker.Broker, *paperbroker.FixedPriceSource) {
	t.Helper()
	prices := paperbroker.NewFixedPriceSource(map[string]decimal.Decimal{"AAPL": decimal.NewFromFloat(100)})
	c := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	b := paperbroker.New(zap.NewNop(), c, prices, decimal.NewFromFloat(cash))
	return b, prices
}

func TestPlaceOrderBuyFillsWithSlippage(t *testing.T) {
	b, _ := newBroker(t, 100000)
	ctx := context.Background()

	order, err := b.PlaceOrder(ctx, "AAPL", types.OrderSideBuy, decimal.NewFromInt(10), types.OrderTypeMarket, decimal.Zero)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if order.Status != types.OrderStatusFilled {
		t.Fatalf("expected filled, got %s", order.Status)
	}
	if !order.AvgFillPrice.GreaterThan(decimal.NewFromFloat(100)) {
		t.Fatalf("expected buy fill above reference price due to slippage, got %s", order.AvgFillPrice)
	}

	positions, err := b.ListPositions(ctx)
	if err != nil {
		t.Fatalf("ListPositions: %v", err)
	}
	if len(positions) != 1 || !positions[0].Quantity.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected 1 position of 10 shares, got %+v", positions)
	}
}

func TestPlaceOrderInsufficientBuyingPowerFails(t *testing.T) {
	b, _ := newBroker(t, 100)
	_, err := b.PlaceOrder(context.Background(), "AAPL", types.OrderSideBuy, decimal.NewFromInt(1000), types.OrderTypeMarket, decimal.Zero)
	if err == nil {
		t.Fatal("expected insufficient buying power error")
	}
}

func TestSellClosesPositionAndRealizesPnL(t *testing.T) {
	b, prices := newBroker(t, 100000)
	ctx := context.Background()

	if _, err := b.PlaceOrder(ctx, "AAPL", types.OrderSideBuy, decimal.NewFromInt(10), types.OrderTypeMarket, decimal.Zero); err != nil {
		t.Fatalf("buy: %v", err)
	}

	prices.SetPrice("AAPL", decimal.NewFromFloat(120))
	if _, err := b.PlaceOrder(ctx, "AAPL", types.OrderSideSell, decimal.NewFromInt(10), types.OrderTypeMarket, decimal.Zero); err != nil {
		t.Fatalf("sell: %v", err)
	}

	positions, _ := b.ListPositions(ctx)
	if len(positions) != 0 {
		t.Fatalf("expected position fully closed, got %+v", positions)
	}

	acct, err := b.GetAccount(ctx)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if !acct.RealizedPnL.GreaterThan(decimal.Zero) {
		t.Fatalf("expected positive realized PnL after selling into a gain, got %s", acct.RealizedPnL)
	}
}

func TestZeroQuantityRejected(t *testing.T) {
	b, _ := newBroker(t, 100000)
	_, err := b.PlaceOrder(context.Background(), "AAPL", types.OrderSideBuy, decimal.Zero, types.OrderTypeMarket, decimal.Zero)
	if err == nil {
		t.Fatal("expected error for zero quantity")
	}
}
