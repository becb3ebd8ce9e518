// File: internal/strategy/halfyear.go
// ============================================
package strategy

import (
	"fmt"

	"github.com/ixarek/o3cripto/pkg/types"
)

const (
	halfYearMinCandles = 200
	// a 4h bar spans 48 five-minute bars
	fourHourToFiveMinute = 48.0
	defaultTakeProfitK   = 2.0
)

// HalfYearResult carries the indicators alongside the decision for logging.
type HalfYearResult struct {
	Action types.Action
	Levels types.StopTarget
	EMA50  float64
	EMA200 float64
	RSI    float64
	ATR5m  float64
	Price  float64
}

// HalfYearSignal evaluates ~6 months of 4h candles (oldest first).
// k scales the take-profit distance in 5-minute ATR units.
func HalfYearSignal(candles []types.Candle, k float64) (HalfYearResult, error) {
	if len(candles) < halfYearMinCandles {
		return HalfYearResult{Action: types.ActionHold}, fmt.Errorf("half-year needs %d candles, got %d: %w",
			halfYearMinCandles, len(candles), types.ErrInsufficientData)
	}
	if k <= 0 {
		k = defaultTakeProfitK
	}

	closes := types.Closes(candles)
	ema50, err := CalculateEMA(closes, 50)
	if err != nil {
		return HalfYearResult{Action: types.ActionHold}, err
	}
	ema200, err := CalculateEMA(closes, 200)
	if err != nil {
		return HalfYearResult{Action: types.ActionHold}, err
	}
	rsi, err := CalculateRSI(closes, rsiPeriod)
	if err != nil {
		return HalfYearResult{Action: types.ActionHold}, err
	}
	atr, err := CandleATR(candles, 14)
	if err != nil {
		return HalfYearResult{Action: types.ActionHold}, err
	}

	res := HalfYearResult{
		EMA50:  ema50,
		EMA200: ema200,
		RSI:    rsi,
		ATR5m:  atr / fourHourToFiveMinute,
		Price:  closes[len(closes)-1],
	}

	switch {
	case ema50 > ema200 && rsi > 50:
		res.Action = types.ActionBuy
		res.Levels = types.StopTarget{StopLoss: res.Price - res.ATR5m, TakeProfit: res.Price + k*res.ATR5m}
	case ema50 < ema200 && rsi < 50:
		res.Action = types.ActionSell
		res.Levels = types.StopTarget{StopLoss: res.Price + res.ATR5m, TakeProfit: res.Price - k*res.ATR5m}
	default:
		res.Action = types.ActionHold
		res.Levels = types.StopTarget{StopLoss: res.Price, TakeProfit: res.Price}
	}
	return res, nil
}
