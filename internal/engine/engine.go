// File: internal/engine/engine.go
// ============================================
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/ixarek/o3cripto/internal/metrics"
	"github.com/ixarek/o3cripto/internal/order"
	"github.com/ixarek/o3cripto/internal/quant"
	"github.com/ixarek/o3cripto/internal/risk"
	"github.com/ixarek/o3cripto/internal/strategy"
	"github.com/ixarek/o3cripto/pkg/types"
)

var ErrPositionLimit = errors.New("open position limit reached")

// MarketData is the read side of the exchange.
type MarketData interface {
	GetCandles(ctx context.Context, symbol string, intervalMinutes, limit int) ([]types.Candle, error)
	GetLastPrice(ctx context.Context, symbol string) (float64, error)
	GetInstrumentMeta(ctx context.Context, symbol string) (types.InstrumentMeta, error)
}

// Executor is the write side of the exchange.
type Executor interface {
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SubmitOrder(ctx context.Context, intent types.OrderIntent) (*types.OrderConfirmation, error)
}

// Notifier receives submitted orders and failures. Delivery errors are the notifier's problem.
type Notifier interface {
	NotifyOrder(conf *types.OrderConfirmation, intent types.OrderIntent, reason string)
	NotifyError(msg string)
}

// PositionLister is implemented by executors that can report open positions.
type PositionLister interface {
	OpenPositions(ctx context.Context) ([]types.Position, error)
}

type nopNotifier struct{}

func (nopNotifier) NotifyOrder(*types.OrderConfirmation, types.OrderIntent, string) {}
func (nopNotifier) NotifyError(string) {}

// Engine runs one evaluation: candles -> decision -> risk -> levels -> intent -> exchange.
type Engine struct {
	market    MarketData
	exec      Executor
	notifier  Notifier
	strategy  strategy.Strategy
	stops     risk.StopCalculator
	validator *risk.Validator
	quant     *quant.Quantizer
	builder   *order.Builder
	maxOpen   int
	adaptive  Adaptive
	log       zerolog.Logger
}

// New wires an engine from configuration. notifier may be nil.
func New(cfg *types.Config, market MarketData, exec Executor, notifier Notifier, log zerolog.Logger) (*Engine, error) {
	strat, err := strategy.Build(cfg.Trading.SignalMode, strategy.Params{
		CandleInterval: cfg.Trading.CandleInterval,
		TakeProfitK:    cfg.Trading.TakeProfitK,
	})
	if err != nil {
		return nil, err
	}
	stops, err := risk.NewStopCalculator(cfg.Trading.StopMode, market, cfg.Trading.ShortInterval, cfg.Trading.LongInterval)
	if err != nil {
		return nil, err
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}

	validator := risk.NewValidator(risk.LimitsFromConfig(cfg))
	q := quant.New(market)
	return &Engine{
		market:    market,
		exec:      exec,
		notifier:  notifier,
		strategy:  strat,
		stops:     stops,
		validator: validator,
		quant:     q,
		builder:   order.NewBuilder(validator, market, q),
		maxOpen:   cfg.Risk.MaxOpenPositions,
		adaptive:  AdaptiveFromConfig(cfg),
		log:       log.With().Str("component", "engine").Logger(),
	}, nil
}

func (e *Engine) Strategy() strategy.Strategy { return e.strategy }

func (e *Engine) Validator() *risk.Validator { return e.validator }

// Quantizer exposes the shared instrument metadata cache.
func (e *Engine) Quantizer() *quant.Quantizer { return e.quant }

// Evaluate decides and, when actionable, submits an entry for symbol.
// A nil confirmation with a nil error means Hold or not enough data yet.
func (e *Engine) Evaluate(ctx context.Context, symbol string, amountUSD float64, leverage int) (*types.OrderConfirmation, error) {
	symbol = risk.NormalizeSymbol(symbol)
	log := e.log.With().Str("symbol", symbol).Float64("amount_usd", amountUSD).Int("leverage", leverage).Logger()

	if err := e.validator.Validate(symbol, amountUSD, leverage); err != nil {
		metrics.EvaluationsTotal.WithLabelValues(symbol, metrics.OutcomeRejected).Inc()
		log.Warn().Err(err).Msg("trade rejected")
		return nil, err
	}

	decision, err := e.decide(ctx, symbol)
	if err != nil {
		return nil, e.fail(log, symbol, "decide", err)
	}
	side, ok := decision.Action.Side()
	if !ok {
		metrics.EvaluationsTotal.WithLabelValues(symbol, metrics.OutcomeHold).Inc()
		log.Info().Str("reason", decision.Reason).Msg("hold")
		return nil, nil
	}

	price, err := e.lastPrice(ctx, symbol)
	if err != nil {
		return nil, e.fail(log, symbol, "price", err)
	}

	levels, err := e.protection(ctx, symbol, side, price, decision)
	if err != nil {
		return nil, e.fail(log, symbol, "stops", err)
	}

	intent, err := e.builder.BuildEntryAt(ctx, symbol, side, amountUSD, leverage, levels, price)
	if err != nil {
		return nil, e.fail(log, symbol, "build", err)
	}

	if err := e.checkPositionLimit(ctx, symbol); err != nil {
		return nil, e.fail(log, symbol, "positions", err)
	}

	log.Info().
		Str("side", string(side)).
		Float64("price", price).
		Str("qty", intent.Quantity.String()).
		Str("stop_loss", intent.StopLoss.String()).
		Str("take_profit", intent.TakeProfit.String()).
		Str("reason", decision.Reason).
		Msg("submitting entry")

	conf, err := e.submit(ctx, intent, leverage)
	if err != nil {
		return nil, e.fail(log, symbol, "submit", err)
	}
	metrics.EvaluationsTotal.WithLabelValues(symbol, metrics.OutcomeSubmitted).Inc()
	e.notifier.NotifyOrder(conf, intent, decision.Reason)
	return conf, nil
}

// Close submits a reduce-only market order offsetting a position opened on side.
func (e *Engine) Close(ctx context.Context, symbol string, side types.Side, amountUSD float64, leverage int) (*types.OrderConfirmation, error) {
	symbol = risk.NormalizeSymbol(symbol)
	log := e.log.With().Str("symbol", symbol).Str("position_side", string(side)).Logger()

	intent, err := e.builder.BuildClose(ctx, symbol, side, amountUSD, leverage)
	if err != nil {
		return nil, e.fail(log, symbol, "build close", err)
	}
	log.Info().Str("qty", intent.Quantity.String()).Msg("submitting close")

	conf, err := e.submit(ctx, intent, leverage)
	if err != nil {
		return nil, e.fail(log, symbol, "submit close", err)
	}
	e.notifier.NotifyOrder(conf, intent, "close")
	return conf, nil
}

// decide fetches the strategy window and runs it. Short history becomes Hold.
func (e *Engine) decide(ctx context.Context, symbol string) (types.Decision, error) {
	interval, limit := e.strategy.Window()
	candles, err := e.market.GetCandles(ctx, symbol, interval, limit)
	if err != nil {
		return types.Decision{}, fmt.Errorf("candles %s %dm: %w", symbol, interval, err)
	}
	if len(candles) == 0 {
		return types.Decision{}, fmt.Errorf("candles %s %dm: %w", symbol, interval, types.ErrNoPriceData)
	}
	candles = types.NormalizeCandles(candles)

	start := time.Now()
	decision, err := e.strategy.Evaluate(candles)
	metrics.StrategyDuration.WithLabelValues(e.strategy.Name()).Observe(time.Since(start).Seconds())

	if errors.Is(err, types.ErrInsufficientData) {
		return types.Decision{Action: types.ActionHold, Reason: err.Error()}, nil
	}
	if err != nil {
		return types.Decision{}, err
	}
	metrics.SignalsTotal.WithLabelValues(symbol, e.strategy.Name(), string(decision.Action)).Inc()
	return decision, nil
}

func (e *Engine) lastPrice(ctx context.Context, symbol string) (float64, error) {
	price, err := e.market.GetLastPrice(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("last price %s: %w", symbol, err)
	}
	if !(price > 0) || math.IsInf(price, 1) {
		return 0, fmt.Errorf("last price %s: %w", symbol, types.ErrNoPriceData)
	}
	return price, nil
}

// protection prefers levels the strategy derived itself.
func (e *Engine) protection(ctx context.Context, symbol string, side types.Side, price float64, d types.Decision) (*types.StopTarget, error) {
	if d.Protection != nil {
		return d.Protection, nil
	}
	st, err := e.stops.Calculate(ctx, symbol, side, price)
	if err != nil {
		return nil, fmt.Errorf("%s levels: %w", e.stops.Name(), err)
	}
	return &st, nil
}

func (e *Engine) checkPositionLimit(ctx context.Context, symbol string) error {
	lister, ok := e.exec.(PositionLister)
	if !ok || e.maxOpen <= 0 {
		return nil
	}
	positions, err := lister.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("open positions: %w", err)
	}
	open := make([]string, 0, len(positions))
	for _, p := range positions {
		open = append(open, p.Symbol)
	}
	if !risk.CanOpenPosition(open, e.maxOpen) {
		return fmt.Errorf("%d/%d open, skipping %s: %w", len(open), e.maxOpen, symbol, ErrPositionLimit)
	}
	return nil
}

func (e *Engine) submit(ctx context.Context, intent types.OrderIntent, leverage int) (*types.OrderConfirmation, error) {
	if !intent.ReduceOnly {
		err := e.exec.SetLeverage(ctx, intent.Symbol, leverage)
		if err != nil && !errors.Is(err, types.ErrLeverageUnchanged) {
			return nil, fmt.Errorf("set leverage %s %dx: %w", intent.Symbol, leverage, err)
		}
	}
	conf, err := e.exec.SubmitOrder(ctx, intent)
	if err != nil {
		return nil, fmt.Errorf("submit %s %s: %w", intent.Side, intent.Symbol, err)
	}
	metrics.OrdersTotal.WithLabelValues(intent.Symbol, string(intent.Side), fmt.Sprint(intent.ReduceOnly)).Inc()
	return conf, nil
}

// fail classifies err for metrics and logs. Data gaps are returned but not alerted.
func (e *Engine) fail(log zerolog.Logger, symbol, stage string, err error) error {
	switch {
	case types.IsRetryable(err):
		metrics.EvaluationsTotal.WithLabelValues(symbol, metrics.OutcomeNoData).Inc()
		log.Info().Err(err).Str("stage", stage).Msg("no data yet")
		return err
	case types.IsValidation(err), errors.Is(err, ErrPositionLimit):
		metrics.EvaluationsTotal.WithLabelValues(symbol, metrics.OutcomeRejected).Inc()
		log.Warn().Err(err).Str("stage", stage).Msg("trade rejected")
		return err
	case errors.Is(err, types.ErrMissingProtection), errors.Is(err, types.ErrInvalidProtectionLevels):
		metrics.EvaluationsTotal.WithLabelValues(symbol, metrics.OutcomeDefect).Inc()
		log.Error().Err(err).Str("stage", stage).Msg("protection defect")
	default:
		metrics.EvaluationsTotal.WithLabelValues(symbol, metrics.OutcomeError).Inc()
		log.Error().Err(err).Str("stage", stage).Msg("evaluation failed")
	}
	e.notifier.NotifyError(fmt.Sprintf("%s %s: %v", symbol, stage, err))
	return err
}
