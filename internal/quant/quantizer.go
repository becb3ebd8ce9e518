// File: internal/quant/quantizer.go
// ============================================
package quant

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/ixarek/o3cripto/pkg/types"
)

var (
	ErrNegativeQuantity = errors.New("negative quantity")
	ErrNegativePrice    = errors.New("negative price")
	ErrInvalidMeta      = errors.New("invalid instrument metadata")
)

// MetaSource fetches quantization rules from the exchange.
type MetaSource interface {
	GetInstrumentMeta(ctx context.Context, symbol string) (types.InstrumentMeta, error)
}

// Quantizer rounds quantities and prices to exchange granularity.
// Metadata is fetched once per symbol and kept for the process lifetime.
type Quantizer struct {
	source MetaSource

	mu   sync.RWMutex
	meta map[string]types.InstrumentMeta
}

func New(source MetaSource) *Quantizer {
	return &Quantizer{
		source: source,
		meta:   make(map[string]types.InstrumentMeta),
	}
}

// Meta returns cached metadata, fetching it on first use.
func (q *Quantizer) Meta(ctx context.Context, symbol string) (types.InstrumentMeta, error) {
	q.mu.RLock()
	m, ok := q.meta[symbol]
	q.mu.RUnlock()
	if ok {
		return m, nil
	}

	m, err := q.source.GetInstrumentMeta(ctx, symbol)
	if err != nil {
		return types.InstrumentMeta{}, fmt.Errorf("instrument meta %s: %w", symbol, err)
	}
	if !m.QtyStep.IsPositive() || !m.TickSize.IsPositive() || m.MinOrderQty.IsNegative() {
		return types.InstrumentMeta{}, fmt.Errorf("%s step=%s tick=%s min=%s: %w",
			symbol, m.QtyStep, m.TickSize, m.MinOrderQty, ErrInvalidMeta)
	}

	// Racing first lookups store equivalent values, last write wins.
	q.mu.Lock()
	q.meta[symbol] = m
	q.mu.Unlock()
	return m, nil
}

// Invalidate drops cached metadata after the exchange changed it.
func (q *Quantizer) Invalidate(symbol string) {
	q.mu.Lock()
	delete(q.meta, symbol)
	q.mu.Unlock()
}

// QuantizeQty floors raw to the lot step and clamps it up to the minimum order size.
func (q *Quantizer) QuantizeQty(ctx context.Context, symbol string, raw decimal.Decimal) (decimal.Decimal, error) {
	if raw.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s qty %s: %w", symbol, raw, ErrNegativeQuantity)
	}
	m, err := q.Meta(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return FloorToStep(raw, m.QtyStep, m.MinOrderQty), nil
}

// QuantizePrice rounds raw half-up to the nearest tick.
func (q *Quantizer) QuantizePrice(ctx context.Context, symbol string, raw decimal.Decimal) (decimal.Decimal, error) {
	if raw.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s price %s: %w", symbol, raw, ErrNegativePrice)
	}
	m, err := q.Meta(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return RoundToTick(raw, m.TickSize), nil
}

// FloorToStep truncates to a multiple of step, never below minQty.
func FloorToStep(raw, step, minQty decimal.Decimal) decimal.Decimal {
	qty := raw.Div(step).Floor().Mul(step)
	if qty.LessThan(minQty) {
		return minQty
	}
	return qty
}

// RoundToTick rounds half away from zero to the nearest multiple of tick.
func RoundToTick(raw, tick decimal.Decimal) decimal.Decimal {
	return raw.Div(tick).Round(0).Mul(tick)
}
