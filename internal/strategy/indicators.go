// File: internal/strategy/indicators.go
// ============================================
package strategy

import (
	"fmt"
	"math"

	"github.com/ixarek/o3cripto/pkg/types"
)

// CalculateSMA - Simple Moving Average of the last period values
func CalculateSMA(prices []float64, period int) (float64, error) {
	if period <= 0 || len(prices) < period {
		return 0, fmt.Errorf("sma(%d) on %d values: %w", period, len(prices), types.ErrInsufficientData)
	}

	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		sum += prices[i]
	}
	return sum / float64(period), nil
}

// CalculateEMA - Exponential Moving Average seeded with the first value.
// The whole slice is consumed, so callers pass exactly the history they mean.
func CalculateEMA(values []float64, period int) (float64, error) {
	if period <= 0 || len(values) < period {
		return 0, fmt.Errorf("ema(%d) on %d values: %w", period, len(values), types.ErrInsufficientData)
	}

	factor := 2.0 / float64(period+1)
	ema := values[0]
	for _, price := range values[1:] {
		ema = price*factor + ema*(1-factor)
	}
	return ema, nil
}

// CalculateRSI - Relative Strength Index from the simple mean of the
// trailing period gains and losses.
func CalculateRSI(prices []float64, period int) (float64, error) {
	if period <= 0 || len(prices) < period+1 {
		return 0, fmt.Errorf("rsi(%d) on %d values: %w", period, len(prices), types.ErrInsufficientData)
	}

	avgGain := 0.0
	avgLoss := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	if avgLoss == 0 {
		return 100.0, nil
	}

	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs)), nil
}

// CalculateATR - Average True Range (volatility indicator)
func CalculateATR(highs, lows, closes []float64, period int) (float64, error) {
	if len(highs) != len(closes) || len(lows) != len(closes) {
		return 0, fmt.Errorf("atr: mismatched series lengths %d/%d/%d", len(highs), len(lows), len(closes))
	}
	if period <= 0 || len(closes) < period+1 {
		return 0, fmt.Errorf("atr(%d) on %d candles: %w", period, len(closes), types.ErrInsufficientData)
	}

	sum := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		highLow := highs[i] - lows[i]
		highClose := math.Abs(highs[i] - closes[i-1])
		lowClose := math.Abs(lows[i] - closes[i-1])
		sum += math.Max(highLow, math.Max(highClose, lowClose))
	}
	return sum / float64(period), nil
}

// CandleATR is CalculateATR over an oldest-first candle slice.
func CandleATR(candles []types.Candle, period int) (float64, error) {
	return CalculateATR(types.Highs(candles), types.Lows(candles), types.Closes(candles), period)
}

// CalculateSupportResistance - lowest and highest close of the window
func CalculateSupportResistance(closes []float64) (support, resistance float64, err error) {
	if len(closes) == 0 {
		return 0, 0, fmt.Errorf("support/resistance: %w", types.ErrNoPriceData)
	}

	support = closes[0]
	resistance = closes[0]
	for _, c := range closes[1:] {
		if c < support {
			support = c
		}
		if c > resistance {
			resistance = c
		}
	}
	return support, resistance, nil
}
