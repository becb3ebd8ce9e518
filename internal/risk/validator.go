// File: internal/risk/validator.go
// ============================================
package risk

import (
	"fmt"
	"strings"

	"github.com/ixarek/o3cripto/pkg/types"
)

// Limits bounds a single trade request.
type Limits struct {
	AllowedSymbols []string
	MinAmountUSD   float64
	MaxAmountUSD   float64
	MinLeverage    int
	MaxLeverage    int
	MinNotional    float64
	MaxNotional    float64
}

// DefaultLimits returns the bounds the bot ships with.
func DefaultLimits() Limits {
	return Limits{
		AllowedSymbols: []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
		MinAmountUSD:   80,
		MaxAmountUSD:   120,
		MinLeverage:    10,
		MaxLeverage:    20,
		MinNotional:    800,
		MaxNotional:    1200,
	}
}

// LimitsFromConfig overlays configured bounds on the defaults.
func LimitsFromConfig(cfg *types.Config) Limits {
	l := DefaultLimits()
	if len(cfg.Risk.AllowedSymbols) > 0 {
		l.AllowedSymbols = cfg.Risk.AllowedSymbols
	}
	if cfg.Risk.MinAmountUSD > 0 {
		l.MinAmountUSD = cfg.Risk.MinAmountUSD
	}
	if cfg.Risk.MaxAmountUSD > 0 {
		l.MaxAmountUSD = cfg.Risk.MaxAmountUSD
	}
	if cfg.Risk.MinLeverage > 0 {
		l.MinLeverage = cfg.Risk.MinLeverage
	}
	if cfg.Risk.MaxLeverage > 0 {
		l.MaxLeverage = cfg.Risk.MaxLeverage
	}
	if cfg.Risk.MinNotional > 0 {
		l.MinNotional = cfg.Risk.MinNotional
	}
	if cfg.Risk.MaxNotional > 0 {
		l.MaxNotional = cfg.Risk.MaxNotional
	}
	return l
}

// Validator is the gate every trade request passes before any side effect.
type Validator struct {
	limits  Limits
	allowed map[string]struct{}
}

func NewValidator(limits Limits) *Validator {
	allowed := make(map[string]struct{}, len(limits.AllowedSymbols))
	for _, s := range limits.AllowedSymbols {
		allowed[NormalizeSymbol(s)] = struct{}{}
	}
	return &Validator{limits: limits, allowed: allowed}
}

// NormalizeSymbol trims and upper-cases a ticker the way the exchange lists it.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Limits returns the bounds the validator enforces.
func (v *Validator) Limits() Limits { return v.limits }

// Validate checks symbol, amount, leverage and notional in that order and
// reports the first violation.
func (v *Validator) Validate(symbol string, amountUSD float64, leverage int) error {
	if _, ok := v.allowed[NormalizeSymbol(symbol)]; !ok {
		return fmt.Errorf("%w: %s", types.ErrUnsupportedSymbol, symbol)
	}
	// Bounds are written as negated inclusions so NaN fails them.
	if !(amountUSD >= v.limits.MinAmountUSD && amountUSD <= v.limits.MaxAmountUSD) {
		return fmt.Errorf("%w: %.2f not in [%.2f, %.2f]", types.ErrAmountOutOfRange,
			amountUSD, v.limits.MinAmountUSD, v.limits.MaxAmountUSD)
	}
	if leverage < v.limits.MinLeverage || leverage > v.limits.MaxLeverage {
		return fmt.Errorf("%w: %d not in [%d, %d]", types.ErrLeverageOutOfRange,
			leverage, v.limits.MinLeverage, v.limits.MaxLeverage)
	}
	notional := types.RiskParameters{Symbol: symbol, AmountUSD: amountUSD, Leverage: leverage}.Notional()
	if !(notional >= v.limits.MinNotional && notional <= v.limits.MaxNotional) {
		return fmt.Errorf("%w: %.2f not in [%.2f, %.2f]", types.ErrNotionalOutOfRange,
			notional, v.limits.MinNotional, v.limits.MaxNotional)
	}
	return nil
}

// ValidateParams is Validate for a RiskParameters value.
func (v *Validator) ValidateParams(p types.RiskParameters) error {
	return v.Validate(p.Symbol, p.AmountUSD, p.Leverage)
}
