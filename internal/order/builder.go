// File: internal/order/builder.go
// ============================================
package order

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/ixarek/o3cripto/internal/risk"
	"github.com/ixarek/o3cripto/pkg/types"
)

// PriceSource returns the current last traded price.
type PriceSource interface {
	GetLastPrice(ctx context.Context, symbol string) (float64, error)
}

// Quantizer rounds to exchange granularity.
type Quantizer interface {
	QuantizeQty(ctx context.Context, symbol string, raw decimal.Decimal) (decimal.Decimal, error)
	QuantizePrice(ctx context.Context, symbol string, raw decimal.Decimal) (decimal.Decimal, error)
}

// Builder assembles validated, quantized order intents.
type Builder struct {
	validator *risk.Validator
	prices    PriceSource
	quant     Quantizer
}

func NewBuilder(validator *risk.Validator, prices PriceSource, quant Quantizer) *Builder {
	return &Builder{validator: validator, prices: prices, quant: quant}
}

// BuildEntry opens a position at the current price with stop-loss and take-profit attached.
func (b *Builder) BuildEntry(ctx context.Context, symbol string, side types.Side, amountUSD float64, leverage int, st *types.StopTarget) (types.OrderIntent, error) {
	if err := b.precheck(symbol, side, amountUSD, leverage); err != nil {
		return types.OrderIntent{}, err
	}
	if err := requireProtection(st); err != nil {
		return types.OrderIntent{}, err
	}
	price, err := b.lastPrice(ctx, symbol)
	if err != nil {
		return types.OrderIntent{}, err
	}
	return b.BuildEntryAt(ctx, symbol, side, amountUSD, leverage, st, price)
}

// BuildEntryAt is BuildEntry against a price the caller already fetched.
func (b *Builder) BuildEntryAt(ctx context.Context, symbol string, side types.Side, amountUSD float64, leverage int, st *types.StopTarget, price float64) (types.OrderIntent, error) {
	if err := b.precheck(symbol, side, amountUSD, leverage); err != nil {
		return types.OrderIntent{}, err
	}
	if err := requireProtection(st); err != nil {
		return types.OrderIntent{}, err
	}
	if price <= 0 {
		return types.OrderIntent{}, fmt.Errorf("price %s: %w", symbol, types.ErrNoPriceData)
	}
	if !st.Valid(side, price) {
		return types.OrderIntent{}, fmt.Errorf("%s %s sl=%.8f entry=%.8f tp=%.8f: %w",
			side, symbol, st.StopLoss, price, st.TakeProfit, types.ErrInvalidProtectionLevels)
	}

	qty, err := b.quantity(ctx, symbol, amountUSD, leverage, price)
	if err != nil {
		return types.OrderIntent{}, err
	}
	sl, err := b.quant.QuantizePrice(ctx, symbol, decimal.NewFromFloat(st.StopLoss))
	if err != nil {
		return types.OrderIntent{}, err
	}
	tp, err := b.quant.QuantizePrice(ctx, symbol, decimal.NewFromFloat(st.TakeProfit))
	if err != nil {
		return types.OrderIntent{}, err
	}

	// a coarse tick can collapse a level onto the entry price
	quantized := types.StopTarget{StopLoss: sl.InexactFloat64(), TakeProfit: tp.InexactFloat64()}
	if !quantized.Valid(side, price) {
		return types.OrderIntent{}, fmt.Errorf("%s %s quantized sl=%s tp=%s around %.8f: %w",
			side, symbol, sl, tp, price, types.ErrInvalidProtectionLevels)
	}

	return types.OrderIntent{
		Symbol:     symbol,
		Side:       side,
		Quantity:   qty,
		Kind:       types.OrderKindMarket,
		StopLoss:   &sl,
		TakeProfit: &tp,
	}, nil
}

// BuildClose offsets a position previously opened on side.
func (b *Builder) BuildClose(ctx context.Context, symbol string, side types.Side, amountUSD float64, leverage int) (types.OrderIntent, error) {
	if err := b.precheck(symbol, side, amountUSD, leverage); err != nil {
		return types.OrderIntent{}, err
	}
	price, err := b.lastPrice(ctx, symbol)
	if err != nil {
		return types.OrderIntent{}, err
	}
	qty, err := b.quantity(ctx, symbol, amountUSD, leverage, price)
	if err != nil {
		return types.OrderIntent{}, err
	}
	return types.OrderIntent{
		Symbol:     symbol,
		Side:       side.Opposite(),
		Quantity:   qty,
		Kind:       types.OrderKindMarket,
		ReduceOnly: true,
	}, nil
}

func (b *Builder) precheck(symbol string, side types.Side, amountUSD float64, leverage int) error {
	if !side.Valid() {
		return fmt.Errorf("invalid side %q", side)
	}
	return b.validator.Validate(symbol, amountUSD, leverage)
}

func (b *Builder) lastPrice(ctx context.Context, symbol string) (float64, error) {
	price, err := b.prices.GetLastPrice(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("last price %s: %w", symbol, err)
	}
	if !(price > 0) || math.IsInf(price, 1) {
		return 0, fmt.Errorf("last price %s: %w", symbol, types.ErrNoPriceData)
	}
	return price, nil
}

// quantity sizes amount*leverage/price in exact decimal arithmetic.
func (b *Builder) quantity(ctx context.Context, symbol string, amountUSD float64, leverage int, price float64) (decimal.Decimal, error) {
	raw := decimal.NewFromFloat(amountUSD).
		Mul(decimal.NewFromInt(int64(leverage))).
		Div(decimal.NewFromFloat(price))
	return b.quant.QuantizeQty(ctx, symbol, raw)
}

func requireProtection(st *types.StopTarget) error {
	if st == nil || st.StopLoss <= 0 || st.TakeProfit <= 0 {
		return types.ErrMissingProtection
	}
	return nil
}
