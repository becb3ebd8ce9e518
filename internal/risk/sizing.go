// File: internal/risk/sizing.go
// ============================================
package risk

import (
	"errors"
	"math"

	"github.com/ixarek/o3cripto/pkg/types"
)

var ErrInvalidInput = errors.New("invalid sizing input")

// DynamicOrderSize spends riskPct of balance, shrinking as volatility grows.
func DynamicOrderSize(balance, volatility, riskPct float64) (float64, error) {
	if balance < 0 || volatility < 0 || riskPct <= 0 {
		return 0, ErrInvalidInput
	}
	return balance * (riskPct / 100.0) / (1 + volatility), nil
}

// DynamicLeverage scales base leverage down with volatility, clamped to [min, max].
func DynamicLeverage(base int, volatility float64, min, max int) (int, error) {
	if volatility < 0 {
		return 0, ErrInvalidInput
	}
	lev := int(float64(base) / (1 + volatility))
	if lev > max {
		lev = max
	}
	if lev < min {
		lev = min
	}
	return lev, nil
}

// TrailingStop moves the stop with price by trailPct percent, never loosening it.
// currentSL <= 0 means no stop is set yet.
func TrailingStop(side types.Side, entry, current, trailPct, currentSL float64) (float64, error) {
	if trailPct <= 0 || !side.Valid() {
		return 0, ErrInvalidInput
	}
	pct := trailPct / 100

	if side == types.SideBuy {
		stop := currentSL
		if stop <= 0 {
			stop = entry * (1 - pct)
		}
		return math.Max(stop, current*(1-pct)), nil
	}

	stop := currentSL
	if stop <= 0 {
		stop = entry * (1 + pct)
	}
	return math.Min(stop, current*(1+pct)), nil
}

// CanOpenPosition reports whether one more position fits under limit.
func CanOpenPosition(openPositions []string, limit int) bool {
	return len(openPositions) < limit
}
