// File: internal/engine/adaptive.go
// ============================================
package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/ixarek/o3cripto/internal/risk"
	"github.com/ixarek/o3cripto/internal/strategy"
	"github.com/ixarek/o3cripto/pkg/types"
)

const (
	volatilityWindow = 50
	volatilityPeriod = 14
	quoteCoin        = "USDT"
)

// BalanceSource reports the wallet balance of a coin.
type BalanceSource interface {
	WalletBalance(ctx context.Context, coin string) (float64, error)
}

// StopUpdater moves the stop-loss of an open position.
type StopUpdater interface {
	SetStopLoss(ctx context.Context, symbol string, stopLoss decimal.Decimal) error
}

// Adaptive holds the optional volatility-driven knobs.
type Adaptive struct {
	DynamicSizing   bool
	RiskPct         float64
	DynamicLeverage bool
	TrailingPct     float64
	ShortInterval   int
}

func AdaptiveFromConfig(cfg *types.Config) Adaptive {
	a := Adaptive{
		DynamicSizing:   cfg.Trading.DynamicSizing,
		RiskPct:         cfg.Trading.RiskPct,
		DynamicLeverage: cfg.Trading.DynamicLeverage,
		TrailingPct:     cfg.Trading.TrailingStopPct,
		ShortInterval:   cfg.Trading.ShortInterval,
	}
	if a.RiskPct <= 0 {
		a.RiskPct = 1
	}
	if a.ShortInterval <= 0 {
		a.ShortInterval = 5
	}
	return a
}

// Volatility is ATR(14) of the short window as a percentage of the last close.
func (e *Engine) Volatility(ctx context.Context, symbol string) (float64, error) {
	candles, err := e.market.GetCandles(ctx, symbol, e.adaptive.ShortInterval, volatilityWindow)
	if err != nil {
		return 0, fmt.Errorf("volatility candles %s: %w", symbol, err)
	}
	if len(candles) == 0 {
		return 0, fmt.Errorf("volatility candles %s: %w", symbol, types.ErrNoPriceData)
	}
	candles = types.NormalizeCandles(candles)
	atr, err := strategy.CandleATR(candles, volatilityPeriod)
	if err != nil {
		return 0, err
	}
	last := candles[len(candles)-1].Close
	if last <= 0 {
		return 0, fmt.Errorf("volatility %s: %w", symbol, types.ErrNoPriceData)
	}
	return atr / last * 100, nil
}

// Size adapts amount and leverage to current volatility when enabled.
// Failures keep the configured values; the validator still has the last word.
func (e *Engine) Size(ctx context.Context, symbol string, amountUSD float64, leverage int) (float64, int) {
	if !e.adaptive.DynamicSizing && !e.adaptive.DynamicLeverage {
		return amountUSD, leverage
	}
	log := e.log.With().Str("symbol", symbol).Logger()

	vol, err := e.Volatility(ctx, symbol)
	if err != nil {
		log.Debug().Err(err).Msg("volatility unavailable, using configured size")
		return amountUSD, leverage
	}
	limits := e.validator.Limits()

	if e.adaptive.DynamicSizing {
		if bs, ok := e.exec.(BalanceSource); ok {
			balance, err := bs.WalletBalance(ctx, quoteCoin)
			if err != nil {
				log.Warn().Err(err).Msg("wallet balance unavailable")
			} else if size, err := risk.DynamicOrderSize(balance, vol, e.adaptive.RiskPct); err == nil {
				amountUSD = math.Min(math.Max(size, limits.MinAmountUSD), limits.MaxAmountUSD)
			}
		}
	}

	if e.adaptive.DynamicLeverage {
		if lev, err := risk.DynamicLeverage(leverage, vol, limits.MinLeverage, limits.MaxLeverage); err == nil {
			leverage = lev
		}
	}

	// keep notional inside bounds
	if amountUSD > 0 && amountUSD*float64(leverage) > limits.MaxNotional {
		leverage = int(limits.MaxNotional / amountUSD)
		if leverage < limits.MinLeverage {
			leverage = limits.MinLeverage
		}
	}

	log.Debug().Float64("volatility_pct", vol).Float64("amount_usd", amountUSD).Int("leverage", leverage).Msg("adaptive size")
	return amountUSD, leverage
}

// Trail tightens the stop of one position. It reports whether the stop moved.
func (e *Engine) Trail(ctx context.Context, pos types.Position) (bool, error) {
	updater, ok := e.exec.(StopUpdater)
	if !ok || e.adaptive.TrailingPct <= 0 {
		return false, nil
	}
	price, err := e.lastPrice(ctx, pos.Symbol)
	if err != nil {
		return false, err
	}
	raw, err := risk.TrailingStop(pos.Side, pos.EntryPrice, price, e.adaptive.TrailingPct, pos.StopLoss)
	if err != nil {
		return false, err
	}
	sl, err := e.quant.QuantizePrice(ctx, pos.Symbol, decimal.NewFromFloat(raw))
	if err != nil {
		return false, err
	}
	next := sl.InexactFloat64()

	tighter := false
	switch pos.Side {
	case types.SideBuy:
		tighter = next < price && (pos.StopLoss <= 0 || next > pos.StopLoss)
	case types.SideSell:
		tighter = next > price && (pos.StopLoss <= 0 || next < pos.StopLoss)
	}
	if !tighter {
		return false, nil
	}

	if err := updater.SetStopLoss(ctx, pos.Symbol, sl); err != nil {
		return false, fmt.Errorf("trail %s: %w", pos.Symbol, err)
	}
	e.log.Info().Str("symbol", pos.Symbol).Float64("old_stop", pos.StopLoss).Str("new_stop", sl.String()).Float64("price", price).Msg("trailing stop moved")
	return true, nil
}

// TrailAll runs Trail over every open position and returns the symbols whose stop moved.
func (e *Engine) TrailAll(ctx context.Context) ([]string, error) {
	lister, ok := e.exec.(PositionLister)
	if !ok || e.adaptive.TrailingPct <= 0 {
		return nil, nil
	}
	positions, err := lister.OpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("open positions: %w", err)
	}
	var moved []string
	for _, p := range positions {
		ok, err := e.Trail(ctx, p)
		if err != nil {
			e.log.Warn().Err(err).Str("symbol", p.Symbol).Msg("trailing stop failed")
			continue
		}
		if ok {
			moved = append(moved, p.Symbol)
		}
	}
	return moved, nil
}
