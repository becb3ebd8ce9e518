package order

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ixarek/o3cripto/internal/quant"
	"github.com/ixarek/o3cripto/internal/risk"
	"github.com/ixarek/o3cripto/pkg/types"
)

type fakeExchange struct {
	prices     map[string]float64
	priceCalls int
}

func (f *fakeExchange) GetLastPrice(_ context.Context, symbol string) (float64, error) {
	f.priceCalls++
	return f.prices[symbol], nil
}

func (f *fakeExchange) GetInstrumentMeta(_ context.Context, symbol string) (types.InstrumentMeta, error) {
	tick := "0.5"
	if symbol == "ETHUSDT" {
		tick = "10"
	}
	return types.InstrumentMeta{
		Symbol:      symbol,
		QtyStep:     decimal.RequireFromString("0.001"),
		MinOrderQty: decimal.RequireFromString("0.001"),
		TickSize:    decimal.RequireFromString(tick),
	}, nil
}

func newBuilder(prices map[string]float64) (*Builder, *fakeExchange) {
	ex := &fakeExchange{prices: prices}
	return NewBuilder(risk.NewValidator(risk.DefaultLimits()), ex, quant.New(ex)), ex
}

func TestBuildEntrySizesAndQuantizes(t *testing.T) {
	b, _ := newBuilder(map[string]float64{"BTCUSDT": 114000})
	st := &types.StopTarget{StopLoss: 112000.23, TakeProfit: 118000.87}

	intent, err := b.BuildEntry(context.Background(), "BTCUSDT", types.SideBuy, 100, 10, st)
	if err != nil {
		t.Fatalf("BuildEntry returned error: %v", err)
	}
	if intent.Quantity.String() != "0.008" {
		t.Fatalf("expected qty 0.008, got %s", intent.Quantity)
	}
	if intent.Kind != types.OrderKindMarket || intent.ReduceOnly || intent.Side != types.SideBuy {
		t.Fatalf("unexpected intent %+v", intent)
	}
	if intent.StopLoss == nil || !intent.StopLoss.Equal(decimal.NewFromInt(112000)) {
		t.Fatalf("unexpected stop %v", intent.StopLoss)
	}
	if intent.TakeProfit == nil || !intent.TakeProfit.Equal(decimal.NewFromInt(118001)) {
		t.Fatalf("unexpected take %v", intent.TakeProfit)
	}
}

func TestBuildEntryQuantizesLevelsHalfUp(t *testing.T) {
	b, _ := newBuilder(nil)
	st := &types.StopTarget{StopLoss: 94.23, TakeProfit: 105.87}

	intent, err := b.BuildEntryAt(context.Background(), "BTCUSDT", types.SideBuy, 100, 10, st, 100)
	if err != nil {
		t.Fatalf("BuildEntryAt returned error: %v", err)
	}
	if !intent.StopLoss.Equal(decimal.NewFromInt(94)) || !intent.TakeProfit.Equal(decimal.NewFromInt(106)) {
		t.Fatalf("expected 94/106, got %s/%s", intent.StopLoss, intent.TakeProfit)
	}
	if intent.Quantity.String() != "10" {
		t.Fatalf("expected qty 10, got %s", intent.Quantity)
	}
}

func TestBuildEntryRejectsInvertedLevels(t *testing.T) {
	b, _ := newBuilder(map[string]float64{"BTCUSDT": 100})
	st := &types.StopTarget{StopLoss: 105, TakeProfit: 95}

	_, err := b.BuildEntry(context.Background(), "BTCUSDT", types.SideBuy, 100, 10, st)
	if !errors.Is(err, types.ErrInvalidProtectionLevels) {
		t.Fatalf("expected ErrInvalidProtectionLevels, got %v", err)
	}

	// the same levels are valid for a short
	if _, err := b.BuildEntry(context.Background(), "BTCUSDT", types.SideSell, 100, 10, st); err != nil {
		t.Fatalf("expected sell to pass, got %v", err)
	}
}

func TestBuildEntryRejectsLevelsCollapsedByTick(t *testing.T) {
	b, _ := newBuilder(nil)
	st := &types.StopTarget{StopLoss: 99, TakeProfit: 130}

	_, err := b.BuildEntryAt(context.Background(), "ETHUSDT", types.SideBuy, 100, 10, st, 100)
	if !errors.Is(err, types.ErrInvalidProtectionLevels) {
		t.Fatalf("expected ErrInvalidProtectionLevels, got %v", err)
	}
}

func TestBuildEntryRequiresProtection(t *testing.T) {
	b, ex := newBuilder(map[string]float64{"BTCUSDT": 100})
	for _, st := range []*types.StopTarget{nil, {StopLoss: 95}, {TakeProfit: 105}} {
		_, err := b.BuildEntry(context.Background(), "BTCUSDT", types.SideBuy, 100, 10, st)
		if !errors.Is(err, types.ErrMissingProtection) {
			t.Fatalf("expected ErrMissingProtection for %+v, got %v", st, err)
		}
	}
	if ex.priceCalls != 0 {
		t.Fatalf("price fetched before protection check")
	}
}

func TestBuildEntryValidatesFirst(t *testing.T) {
	b, ex := newBuilder(map[string]float64{"BTCUSDT": 100})
	st := &types.StopTarget{StopLoss: 95, TakeProfit: 105}

	_, err := b.BuildEntry(context.Background(), "BTCUSDT", types.SideBuy, 200, 10, st)
	if !errors.Is(err, types.ErrAmountOutOfRange) {
		t.Fatalf("expected ErrAmountOutOfRange, got %v", err)
	}
	_, err = b.BuildEntry(context.Background(), "DOGEUSDT", types.SideBuy, 100, 10, st)
	if !errors.Is(err, types.ErrUnsupportedSymbol) {
		t.Fatalf("expected ErrUnsupportedSymbol, got %v", err)
	}
	if ex.priceCalls != 0 {
		t.Fatalf("price fetched for an invalid trade")
	}
}

func TestBuildEntryWithoutPrice(t *testing.T) {
	b, _ := newBuilder(map[string]float64{})
	st := &types.StopTarget{StopLoss: 95, TakeProfit: 105}
	_, err := b.BuildEntry(context.Background(), "BTCUSDT", types.SideBuy, 100, 10, st)
	if !errors.Is(err, types.ErrNoPriceData) {
		t.Fatalf("expected ErrNoPriceData, got %v", err)
	}
}

func TestBuildCloseFlipsSide(t *testing.T) {
	b, _ := newBuilder(map[string]float64{"SOLUSDT": 150})

	intent, err := b.BuildClose(context.Background(), "SOLUSDT", types.SideBuy, 120, 10)
	if err != nil {
		t.Fatalf("BuildClose returned error: %v", err)
	}
	if intent.Side != types.SideSell || !intent.ReduceOnly {
		t.Fatalf("expected reduce-only sell, got %+v", intent)
	}
	if intent.StopLoss != nil || intent.TakeProfit != nil {
		t.Fatalf("close intent must not carry protection")
	}
	if intent.Quantity.String() != "8" {
		t.Fatalf("expected qty 8, got %s", intent.Quantity)
	}
}

func TestBuildRejectsNonFinitePrice(t *testing.T) {
	for _, price := range []float64{math.NaN(), math.Inf(1), -1} {
		b, _ := newBuilder(map[string]float64{"BTCUSDT": price})
		st := &types.StopTarget{StopLoss: 95, TakeProfit: 105}

		if _, err := b.BuildEntry(context.Background(), "BTCUSDT", types.SideBuy, 100, 10, st); !errors.Is(err, types.ErrNoPriceData) {
			t.Fatalf("entry at %v: expected ErrNoPriceData, got %v", price, err)
		}
		if _, err := b.BuildClose(context.Background(), "BTCUSDT", types.SideBuy, 100, 10); !errors.Is(err, types.ErrNoPriceData) {
			t.Fatalf("close at %v: expected ErrNoPriceData, got %v", price, err)
		}
	}
}

func TestBuildCloseRejectsNaNAmount(t *testing.T) {
	b, ex := newBuilder(map[string]float64{"BTCUSDT": 100})

	_, err := b.BuildClose(context.Background(), "BTCUSDT", types.SideBuy, math.NaN(), 10)
	if !errors.Is(err, types.ErrAmountOutOfRange) {
		t.Fatalf("expected ErrAmountOutOfRange, got %v", err)
	}
	if ex.priceCalls != 0 {
		t.Fatalf("rejected request must not fetch a price")
	}
}
