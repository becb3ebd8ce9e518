package strategy

import (
	"math"
	"testing"
	"time"

	"github.com/ixarek/o3cripto/pkg/types"
)

// candlesFromCloses builds oldest-first candles with a ±1 high/low band.
func candlesFromCloses(closes []float64) []types.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]types.Candle, len(closes))
	for i, c := range closes {
		out[i] = types.Candle{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
		}
	}
	return out
}

func series(from, to float64) []float64 {
	var out []float64
	if from <= to {
		for p := from; p <= to; p++ {
			out = append(out, p)
		}
		return out
	}
	for p := from; p >= to; p-- {
		out = append(out, p)
	}
	return out
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f)", label, got, want, tol)
	}
}
