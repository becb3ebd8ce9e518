// File: internal/strategy/factory.go
// ============================================
package strategy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ixarek/o3cripto/pkg/types"
)

const (
	ModeCombined = "combined"
	ModeHalfYear = "half_year"

	halfYearInterval = 240
	halfYearLimit    = 250
)

var ErrUnknownStrategy = errors.New("unknown strategy")

// Strategy turns an oldest-first candle window into a decision.
type Strategy interface {
	Name() string
	// Window is the candle interval (minutes) and count the strategy needs.
	Window() (intervalMinutes, limit int)
	Evaluate(candles []types.Candle) (types.Decision, error)
}

// Params groups the knobs strategy constructors need.
type Params struct {
	CandleInterval int
	TakeProfitK    float64
}

// Build returns the strategy matching the configured mode.
func Build(mode string, params Params) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeCombined, "sma_rsi":
		return NewCombined(params.CandleInterval), nil
	case ModeHalfYear, "halfyear":
		return NewHalfYear(params.TakeProfitK), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, mode)
	}
}

// Combined requires the SMA crossover and RSI to agree.
type Combined struct {
	interval int
}

func NewCombined(intervalMinutes int) *Combined {
	if intervalMinutes <= 0 {
		intervalMinutes = 5
	}
	return &Combined{interval: intervalMinutes}
}

func (c *Combined) Name() string { return ModeCombined }

func (c *Combined) Window() (int, int) { return c.interval, signalWindow }

func (c *Combined) Evaluate(candles []types.Candle) (types.Decision, error) {
	ma, err := SMACrossoverSignal(candles)
	if err != nil {
		return types.Decision{Action: types.ActionHold}, err
	}
	rsi, err := RSISignal(candles)
	if err != nil {
		return types.Decision{Action: types.ActionHold}, err
	}
	return types.Decision{
		Action: CombineSignals(ma, rsi),
		Reason: fmt.Sprintf("sma=%s rsi=%s trend=%s", ma, rsi, TrendNarrative(candles)),
	}, nil
}

// HalfYear trades the 4h EMA50/EMA200 trend filtered by RSI and sets its own levels.
type HalfYear struct {
	k float64
}

func NewHalfYear(k float64) *HalfYear {
	if k <= 0 {
		k = defaultTakeProfitK
	}
	return &HalfYear{k: k}
}

func (h *HalfYear) Name() string { return ModeHalfYear }

func (h *HalfYear) Window() (int, int) { return halfYearInterval, halfYearLimit }

func (h *HalfYear) Evaluate(candles []types.Candle) (types.Decision, error) {
	res, err := HalfYearSignal(candles, h.k)
	if err != nil {
		return types.Decision{Action: types.ActionHold}, err
	}
	d := types.Decision{
		Action: res.Action,
		Reason: fmt.Sprintf("ema50=%.4f ema200=%.4f rsi=%.1f atr5m=%.6f", res.EMA50, res.EMA200, res.RSI, res.ATR5m),
	}
	if res.Action != types.ActionHold {
		levels := res.Levels
		d.Protection = &levels
	}
	return d, nil
}
