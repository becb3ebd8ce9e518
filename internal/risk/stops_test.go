package risk

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ixarek/o3cripto/pkg/types"
)

type fakeSource struct {
	byInterval map[int][]types.Candle
	calls      []int
}

func (f *fakeSource) GetCandles(_ context.Context, _ string, interval, limit int) ([]types.Candle, error) {
	f.calls = append(f.calls, interval)
	c := f.byInterval[interval]
	if len(c) > limit {
		c = c[:limit]
	}
	return c, nil
}

// newestFirst mimics the exchange ordering.
func newestFirst(closes []float64) []types.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]types.Candle, len(closes))
	for i, c := range closes {
		out[len(closes)-1-i] = types.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      c, High: c + 1, Low: c - 1, Close: c,
		}
	}
	return out
}

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestATRStops(t *testing.T) {
	buy := ATRStops(types.SideBuy, 100, 2)
	if !almost(buy.StopLoss, 97) || !almost(buy.TakeProfit, 105) {
		t.Fatalf("unexpected buy levels %+v", buy)
	}
	sell := ATRStops(types.SideSell, 100, 2)
	if !almost(sell.StopLoss, 103) || !almost(sell.TakeProfit, 95) {
		t.Fatalf("unexpected sell levels %+v", sell)
	}
	if !buy.Valid(types.SideBuy, 100) || !sell.Valid(types.SideSell, 100) {
		t.Fatalf("expected valid ordering")
	}
}

func TestSupportResistanceStopsBuy(t *testing.T) {
	long := newestFirst([]float64{95, 110, 100})
	shortUp := newestFirst([]float64{99, 100})
	st, err := SupportResistanceStops(types.SideBuy, 100, types.NormalizeCandles(long), types.NormalizeCandles(shortUp))
	if err != nil {
		t.Fatalf("SupportResistanceStops returned error: %v", err)
	}
	// stop = min(95, 99); take = max(110, 102)
	if !almost(st.StopLoss, 95) || !almost(st.TakeProfit, 110) {
		t.Fatalf("unexpected levels %+v", st)
	}

	tight := newestFirst([]float64{99.5, 100.5})
	shortDown := newestFirst([]float64{101, 100})
	st, _ = SupportResistanceStops(types.SideBuy, 100, types.NormalizeCandles(tight), types.NormalizeCandles(shortDown))
	if !almost(st.StopLoss, 99) || !almost(st.TakeProfit, 101) {
		t.Fatalf("expected price-based floor/ceiling, got %+v", st)
	}
}

func TestSupportResistanceStopsSell(t *testing.T) {
	tight := types.NormalizeCandles(newestFirst([]float64{99.5, 100.5}))
	down := types.NormalizeCandles(newestFirst([]float64{101, 100}))
	st, err := SupportResistanceStops(types.SideSell, 100, tight, down)
	if err != nil {
		t.Fatalf("SupportResistanceStops returned error: %v", err)
	}
	if !almost(st.StopLoss, 101) || !almost(st.TakeProfit, 98) {
		t.Fatalf("unexpected sell levels %+v", st)
	}
	if !st.Valid(types.SideSell, 100) {
		t.Fatalf("expected valid sell ordering")
	}
}

func TestSupportResistanceStopsEmptyWindow(t *testing.T) {
	_, err := SupportResistanceStops(types.SideBuy, 100, nil, newestFirst([]float64{1}))
	if !errors.Is(err, types.ErrNoPriceData) {
		t.Fatalf("expected ErrNoPriceData, got %v", err)
	}
}

func TestATRCalculatorFetchesShortInterval(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	src := &fakeSource{byInterval: map[int][]types.Candle{5: newestFirst(closes)}}
	calc := NewATRCalculator(src, 5)

	st, err := calc.Calculate(context.Background(), "BTCUSDT", types.SideBuy, 129)
	if err != nil {
		t.Fatalf("Calculate returned error: %v", err)
	}
	// true range is 2 for every step of this series
	if !almost(st.StopLoss, 126) || !almost(st.TakeProfit, 134) {
		t.Fatalf("unexpected levels %+v", st)
	}
	if len(src.calls) != 1 || src.calls[0] != 5 {
		t.Fatalf("expected one 5m fetch, got %v", src.calls)
	}
}

func TestATRCalculatorEmptyWindow(t *testing.T) {
	calc := NewATRCalculator(&fakeSource{}, 5)
	_, err := calc.Calculate(context.Background(), "BTCUSDT", types.SideBuy, 100)
	if !errors.Is(err, types.ErrNoPriceData) {
		t.Fatalf("expected ErrNoPriceData, got %v", err)
	}
}

func TestNewStopCalculator(t *testing.T) {
	src := &fakeSource{}
	c, err := NewStopCalculator("", src, 5, 60)
	if err != nil || c.Name() != StopModeATR {
		t.Fatalf("expected atr default, got %v %v", c, err)
	}
	c, err = NewStopCalculator("support_resistance", src, 5, 60)
	if err != nil || c.Name() != StopModeSupportResistance {
		t.Fatalf("expected support_resistance, got %v %v", c, err)
	}
	if _, err := NewStopCalculator("fibonacci", src, 5, 60); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestSupportResistanceCalculatorFetchesBothWindows(t *testing.T) {
	src := &fakeSource{byInterval: map[int][]types.Candle{
		60: newestFirst([]float64{90, 120, 100}),
		5:  newestFirst([]float64{98, 100}),
	}}
	calc := NewSupportResistanceCalculator(src, 60, 5)
	st, err := calc.Calculate(context.Background(), "ETHUSDT", types.SideBuy, 100)
	if err != nil {
		t.Fatalf("Calculate returned error: %v", err)
	}
	if !almost(st.StopLoss, 90) || !almost(st.TakeProfit, 120) {
		t.Fatalf("unexpected levels %+v", st)
	}
	if len(src.calls) != 2 {
		t.Fatalf("expected two fetches, got %v", src.calls)
	}
}
