package risk

import (
	"errors"
	"math"
	"testing"

	"github.com/ixarek/o3cripto/pkg/types"
)

func TestValidateAccepts(t *testing.T) {
	v := NewValidator(DefaultLimits())
	for _, tc := range []struct {
		amount   float64
		leverage int
	}{
		{100, 10}, {80, 10}, {120, 10}, {80, 15}, {60, 20},
	} {
		err := v.Validate("BTCUSDT", tc.amount, tc.leverage)
		if tc.amount == 60 {
			if !errors.Is(err, types.ErrAmountOutOfRange) {
				t.Fatalf("expected amount error for 60, got %v", err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("expected %.0f x %d to pass, got %v", tc.amount, tc.leverage, err)
		}
	}
}

func TestValidateOrder(t *testing.T) {
	v := NewValidator(DefaultLimits())
	cases := []struct {
		name     string
		symbol   string
		amount   float64
		leverage int
		want     error
	}{
		{"symbol first", "ADAUSDT", 10, 1, types.ErrUnsupportedSymbol},
		{"amount low", "BTCUSDT", 70, 10, types.ErrAmountOutOfRange},
		{"amount high", "BTCUSDT", 121, 50, types.ErrAmountOutOfRange},
		{"leverage low", "ETHUSDT", 100, 5, types.ErrLeverageOutOfRange},
		{"leverage high", "ETHUSDT", 100, 21, types.ErrLeverageOutOfRange},
		{"notional high", "SOLUSDT", 120, 20, types.ErrNotionalOutOfRange},
		{"notional boundary high", "SOLUSDT", 100, 12, nil},
		{"notional just above", "SOLUSDT", 110, 11, types.ErrNotionalOutOfRange},
	}
	for _, tc := range cases {
		err := v.Validate(tc.symbol, tc.amount, tc.leverage)
		if tc.want == nil {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", tc.name, err)
			}
			continue
		}
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
		if !types.IsValidation(err) {
			t.Fatalf("%s: expected validation error class", tc.name)
		}
	}
}

func TestValidateOutOfBoundsGrid(t *testing.T) {
	v := NewValidator(DefaultLimits())
	for amount := 50.0; amount <= 150; amount += 5 {
		for lev := 1; lev <= 30; lev++ {
			err := v.Validate("BTCUSDT", amount, lev)
			notional := amount * float64(lev)
			inBounds := amount >= 80 && amount <= 120 && lev >= 10 && lev <= 20 && notional >= 800 && notional <= 1200
			if inBounds && err != nil {
				t.Fatalf("%.0f x %d: unexpected error %v", amount, lev, err)
			}
			if !inBounds && err == nil {
				t.Fatalf("%.0f x %d: expected rejection", amount, lev)
			}
		}
	}
	for _, amount := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		for _, lev := range []int{10, 15, 20} {
			if err := v.Validate("BTCUSDT", amount, lev); !errors.Is(err, types.ErrAmountOutOfRange) {
				t.Fatalf("%v x %d: expected amount error, got %v", amount, lev, err)
			}
		}
	}
}

func TestValidateNotionalRejectsInf(t *testing.T) {
	v := NewValidator(Limits{
		AllowedSymbols: []string{"BTCUSDT"},
		MinAmountUSD:   math.Inf(-1),
		MaxAmountUSD:   math.Inf(1),
		MinLeverage:    1,
		MaxLeverage:    20,
		MinNotional:    800,
		MaxNotional:    1200,
	})
	if err := v.Validate("BTCUSDT", math.Inf(1), 10); !errors.Is(err, types.ErrNotionalOutOfRange) {
		t.Fatalf("expected notional error for +Inf, got %v", err)
	}
}

func TestValidateNormalizesSymbol(t *testing.T) {
	limits := DefaultLimits()
	limits.AllowedSymbols = []string{" btcusdt "}
	v := NewValidator(limits)
	for _, sym := range []string{"BTCUSDT", "btcusdt", " BtcUsdt"} {
		if err := v.Validate(sym, 100, 10); err != nil {
			t.Fatalf("%q: expected whitelisted symbol, got %v", sym, err)
		}
	}
	if err := v.Validate("ETHUSDT", 100, 10); !errors.Is(err, types.ErrUnsupportedSymbol) {
		t.Fatalf("expected unsupported symbol, got %v", err)
	}
}

func TestLimitsFromConfig(t *testing.T) {
	var cfg types.Config
	cfg.Risk.AllowedSymbols = []string{"xrpusdt"}
	cfg.Risk.MaxLeverage = 25
	l := LimitsFromConfig(&cfg)
	if l.MaxLeverage != 25 || l.MinLeverage != 10 {
		t.Fatalf("unexpected leverage bounds %d-%d", l.MinLeverage, l.MaxLeverage)
	}
	v := NewValidator(l)
	if err := v.Validate("XRPUSDT", 100, 10); err != nil {
		t.Fatalf("expected configured symbol to be allowed, got %v", err)
	}
	if err := v.Validate("BTCUSDT", 100, 10); !errors.Is(err, types.ErrUnsupportedSymbol) {
		t.Fatalf("expected BTCUSDT to be dropped, got %v", err)
	}
}
