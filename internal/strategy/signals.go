// File: internal/strategy/signals.go
// ============================================
package strategy

import (
	"fmt"

	"github.com/ixarek/o3cripto/pkg/types"
)

const (
	signalWindow    = 50
	shortSMAPeriod  = 5
	longSMAPeriod   = 20
	rsiPeriod       = 14
	rsiOversold     = 30.0
	rsiOverbought   = 70.0
	trendIncreasing = "increasing"
	trendDecreasing = "decreasing"
	trendUnchanged  = "unchanged"
)

// SMACrossoverSignal compares SMA(5) and SMA(20) over the last 50 closes.
func SMACrossoverSignal(candles []types.Candle) (types.Action, error) {
	closes := types.Closes(types.Tail(candles, signalWindow))

	short, err := CalculateSMA(closes, shortSMAPeriod)
	if err != nil {
		return types.ActionHold, err
	}
	long, err := CalculateSMA(closes, longSMAPeriod)
	if err != nil {
		return types.ActionHold, err
	}

	switch {
	case short > long:
		return types.ActionBuy, nil
	case short < long:
		return types.ActionSell, nil
	default:
		return types.ActionHold, nil
	}
}

// RSISignal buys oversold and sells overbought markets.
func RSISignal(candles []types.Candle) (types.Action, error) {
	rsi, err := CalculateRSI(types.Closes(types.Tail(candles, signalWindow)), rsiPeriod)
	if err != nil {
		return types.ActionHold, err
	}
	return rsiAction(rsi), nil
}

func rsiAction(rsi float64) types.Action {
	switch {
	case rsi < rsiOversold:
		return types.ActionBuy
	case rsi > rsiOverbought:
		return types.ActionSell
	default:
		return types.ActionHold
	}
}

// CombineSignals only lets a trade through when both inputs agree on a direction.
func CombineSignals(ma, rsi types.Action) types.Action {
	if ma == types.ActionHold || ma != rsi {
		return types.ActionHold
	}
	return ma
}

// CombinedSignal runs the SMA crossover and RSI signals and combines them.
func CombinedSignal(candles []types.Candle) (types.Action, error) {
	ma, err := SMACrossoverSignal(candles)
	if err != nil {
		return types.ActionHold, err
	}
	rsi, err := RSISignal(candles)
	if err != nil {
		return types.ActionHold, err
	}
	return CombineSignals(ma, rsi), nil
}

// TrendNarrative describes the move between the oldest and newest close of
// the last 50 candles. It is for logs only.
func TrendNarrative(candles []types.Candle) string {
	window := types.Tail(candles, signalWindow)
	if len(window) < 2 {
		return trendUnchanged
	}
	first, last := window[0].Close, window[len(window)-1].Close
	switch {
	case last > first:
		return fmt.Sprintf("%s (%.4f -> %.4f)", trendIncreasing, first, last)
	case last < first:
		return fmt.Sprintf("%s (%.4f -> %.4f)", trendDecreasing, first, last)
	default:
		return trendUnchanged
	}
}
