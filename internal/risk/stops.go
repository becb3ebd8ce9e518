// File: internal/risk/stops.go
// ============================================
package risk

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/ixarek/o3cripto/internal/strategy"
	"github.com/ixarek/o3cripto/pkg/types"
)

const (
	StopModeATR               = "atr"
	StopModeSupportResistance = "support_resistance"

	atrStopMultiple   = 1.5
	atrTargetMultiple = 2.5
	atrPeriod         = 14
)

// CandleSource is the slice of the market data accessor stop calculators need.
type CandleSource interface {
	GetCandles(ctx context.Context, symbol string, intervalMinutes, limit int) ([]types.Candle, error)
}

// StopCalculator derives protective levels for a new position.
type StopCalculator interface {
	Name() string
	Calculate(ctx context.Context, symbol string, side types.Side, price float64) (types.StopTarget, error)
}

// ATRStops places the stop 1.5 ATR and the target 2.5 ATR away from price.
func ATRStops(side types.Side, price, atr float64) types.StopTarget {
	if side == types.SideSell {
		return types.StopTarget{
			StopLoss:   price + atrStopMultiple*atr,
			TakeProfit: price - atrTargetMultiple*atr,
		}
	}
	return types.StopTarget{
		StopLoss:   price - atrStopMultiple*atr,
		TakeProfit: price + atrTargetMultiple*atr,
	}
}

// SupportResistanceStops blends the structural levels of the long window with
// a fixed percentage floor/ceiling; the short window decides the trend.
func SupportResistanceStops(side types.Side, price float64, long, short []types.Candle) (types.StopTarget, error) {
	if len(long) == 0 || len(short) == 0 {
		return types.StopTarget{}, fmt.Errorf("support/resistance window: %w", types.ErrNoPriceData)
	}
	support, resistance, err := strategy.CalculateSupportResistance(types.Closes(long))
	if err != nil {
		return types.StopTarget{}, err
	}
	first, last := short[0].Close, short[len(short)-1].Close

	if side == types.SideSell {
		trendDown := last <= first
		targetPct := 0.99
		if trendDown {
			targetPct = 0.98
		}
		return types.StopTarget{
			StopLoss:   math.Max(resistance, price*1.01),
			TakeProfit: math.Min(support, price*targetPct),
		}, nil
	}

	trendUp := last >= first
	targetPct := 1.01
	if trendUp {
		targetPct = 1.02
	}
	return types.StopTarget{
		StopLoss:   math.Min(support, price*0.99),
		TakeProfit: math.Max(resistance, price*targetPct),
	}, nil
}

// ATRCalculator computes ATR(14) on short-interval candles.
type ATRCalculator struct {
	source   CandleSource
	interval int
	limit    int
}

func NewATRCalculator(source CandleSource, intervalMinutes int) *ATRCalculator {
	if intervalMinutes <= 0 {
		intervalMinutes = 5
	}
	return &ATRCalculator{source: source, interval: intervalMinutes, limit: 50}
}

func (c *ATRCalculator) Name() string { return StopModeATR }

func (c *ATRCalculator) Calculate(ctx context.Context, symbol string, side types.Side, price float64) (types.StopTarget, error) {
	candles, err := c.source.GetCandles(ctx, symbol, c.interval, c.limit)
	if err != nil {
		return types.StopTarget{}, fmt.Errorf("atr candles: %w", err)
	}
	if len(candles) == 0 {
		return types.StopTarget{}, fmt.Errorf("atr candles for %s: %w", symbol, types.ErrNoPriceData)
	}
	atr, err := strategy.CandleATR(types.NormalizeCandles(candles), atrPeriod)
	if err != nil {
		return types.StopTarget{}, err
	}
	if atr <= 0 {
		return types.StopTarget{}, fmt.Errorf("zero atr for %s: %w", symbol, types.ErrInsufficientData)
	}
	return ATRStops(side, price, atr), nil
}

// SupportResistanceCalculator uses a long window for levels and a short one for trend.
type SupportResistanceCalculator struct {
	source        CandleSource
	longInterval  int
	longLimit     int
	shortInterval int
	shortLimit    int
}

func NewSupportResistanceCalculator(source CandleSource, longInterval, shortInterval int) *SupportResistanceCalculator {
	if longInterval <= 0 {
		longInterval = 60
	}
	if shortInterval <= 0 {
		shortInterval = 5
	}
	return &SupportResistanceCalculator{
		source:        source,
		longInterval:  longInterval,
		longLimit:     48,
		shortInterval: shortInterval,
		shortLimit:    12,
	}
}

func (c *SupportResistanceCalculator) Name() string { return StopModeSupportResistance }

func (c *SupportResistanceCalculator) Calculate(ctx context.Context, symbol string, side types.Side, price float64) (types.StopTarget, error) {
	long, err := c.source.GetCandles(ctx, symbol, c.longInterval, c.longLimit)
	if err != nil {
		return types.StopTarget{}, fmt.Errorf("long window: %w", err)
	}
	short, err := c.source.GetCandles(ctx, symbol, c.shortInterval, c.shortLimit)
	if err != nil {
		return types.StopTarget{}, fmt.Errorf("short window: %w", err)
	}
	return SupportResistanceStops(side, price, types.NormalizeCandles(long), types.NormalizeCandles(short))
}

// NewStopCalculator picks the calculator for the configured mode.
func NewStopCalculator(mode string, source CandleSource, shortInterval, longInterval int) (StopCalculator, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", StopModeATR:
		return NewATRCalculator(source, shortInterval), nil
	case StopModeSupportResistance, "sr":
		return NewSupportResistanceCalculator(source, longInterval, shortInterval), nil
	default:
		return nil, fmt.Errorf("unknown stop mode %q", mode)
	}
}
