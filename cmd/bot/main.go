// File: cmd/bot/main.go
// ============================================
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ixarek/o3cripto/internal/bybit"
	"github.com/ixarek/o3cripto/internal/cache"
	"github.com/ixarek/o3cripto/internal/config"
	"github.com/ixarek/o3cripto/internal/engine"
	"github.com/ixarek/o3cripto/internal/metrics"
	"github.com/ixarek/o3cripto/internal/telegram"
	"github.com/ixarek/o3cripto/internal/util"
	"github.com/ixarek/o3cripto/pkg/types"
)

type Bot struct {
	configPath string
	config     *types.Config
	client     *bybit.Client
	cache      *cache.CandleCache
	engine     *engine.Engine
	telegram   *telegram.Notifier
	metricsSrv *http.Server
	log        zerolog.Logger
}

func NewBot(configPath string) (*Bot, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	b := &Bot{configPath: configPath}
	if err := b.apply(cfg); err != nil {
		return nil, err
	}
	if cfg.App.MetricsAddr != "" {
		b.metricsSrv = metrics.Serve(cfg.App.MetricsAddr)
		b.log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics listening")
	}
	return b, nil
}

// apply wires every component from cfg. It runs at start and on reload.
func (b *Bot) apply(cfg *types.Config) error {
	log := util.NewLogger(cfg.App.LogLevel)

	client := bybit.NewClient(bybit.OptionsFromConfig(cfg))

	var market engine.MarketData = client
	var candleCache *cache.CandleCache
	if cfg.Cache.Enabled {
		c, err := cache.New(cache.ConfigFromTypes(cfg), client, log)
		if err != nil {
			log.Warn().Err(err).Msg("candle cache unavailable, reading the exchange directly")
		} else {
			candleCache = c
			market = c
		}
	}

	notifier := telegram.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.Enabled, log)

	eng, err := engine.New(cfg, market, client, notifier, log)
	if err != nil {
		if candleCache != nil {
			_ = candleCache.Close()
		}
		return fmt.Errorf("failed to build engine: %w", err)
	}

	if b.cache != nil {
		_ = b.cache.Close()
	}
	b.config = cfg
	b.client = client
	b.cache = candleCache
	b.engine = eng
	b.telegram = notifier
	b.log = log
	return nil
}

func (b *Bot) reload() {
	cfg, err := config.Reload(b.configPath)
	if err != nil {
		b.log.Error().Err(err).Msg("config reload failed, keeping current settings")
		return
	}
	if err := b.apply(cfg); err != nil {
		b.log.Error().Err(err).Msg("config reload rejected")
		return
	}
	b.log.Info().Str("path", b.configPath).Msg("config reloaded")
}

func (b *Bot) Run(ctx context.Context) {
	b.log.Info().
		Strs("symbols", b.config.Trading.Symbols).
		Str("strategy", b.engine.Strategy().Name()).
		Str("stop_mode", b.config.Trading.StopMode).
		Float64("amount_usd", b.config.Trading.AmountUSD).
		Int("leverage", b.config.Trading.Leverage).
		Str("api", b.client.BaseURL()).
		Msg("bybit bot started")
	b.telegram.NotifyStart(b.config.Trading.Symbols, b.engine.Strategy().Name(), b.config.Trading.StopMode)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	interval := time.Duration(b.config.App.PollIntervalSecs) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	b.mainLoop(ctx)
	for {
		select {
		case <-ctx.Done():
			b.log.Info().Msg("shutting down")
			return
		case <-hup:
			b.reload()
			next := time.Duration(b.config.App.PollIntervalSecs) * time.Second
			if next != interval {
				interval = next
				ticker.Reset(interval)
			}
		case <-ticker.C:
			b.mainLoop(ctx)
		}
	}
}

func (b *Bot) mainLoop(ctx context.Context) {
	for _, symbol := range b.config.Trading.Symbols {
		if ctx.Err() != nil {
			return
		}
		b.evaluate(ctx, symbol)
	}

	moved, err := b.engine.TrailAll(ctx)
	if err != nil {
		b.log.Warn().Err(err).Msg("trailing stop pass failed")
		return
	}
	b.telegram.NotifyTrailingStop(moved)
}

func (b *Bot) evaluate(ctx context.Context, symbol string) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	amount, leverage := b.engine.Size(ctx, symbol, b.config.Trading.AmountUSD, b.config.Trading.Leverage)
	conf, err := b.engine.Evaluate(ctx, symbol, amount, leverage)
	switch {
	case err != nil && types.IsRetryable(err):
		b.log.Debug().Err(err).Str("symbol", symbol).Msg("retrying next cycle")
	case err != nil:
		b.log.Error().Err(err).Str("symbol", symbol).Msg("evaluation failed")
	case conf != nil:
		b.log.Info().
			Str("symbol", symbol).
			Str("order_id", conf.OrderID).
			Str("side", string(conf.Side)).
			Str("qty", conf.Quantity.String()).
			Msg("order submitted")
	}
}

func (b *Bot) closePosition(ctx context.Context, symbol, side string) error {
	var s types.Side
	switch strings.ToLower(side) {
	case "buy", "long":
		s = types.SideBuy
	case "sell", "short":
		s = types.SideSell
	default:
		return fmt.Errorf("side must be Buy or Sell, got %q", side)
	}
	conf, err := b.engine.Close(ctx, symbol, s, b.config.Trading.AmountUSD, b.config.Trading.Leverage)
	if err != nil {
		return err
	}
	b.log.Info().Str("symbol", symbol).Str("order_id", conf.OrderID).Msg("position closed")
	return nil
}

func (b *Bot) Shutdown() {
	if b.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.log.Warn().Err(err).Msg("metrics shutdown")
		}
	}
	if b.cache != nil {
		_ = b.cache.Close()
	}
}

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to config.yaml")
	once := flag.Bool("once", false, "run a single evaluation cycle and exit")
	closeSymbol := flag.String("close", "", "close the position on this symbol and exit")
	closeSide := flag.String("side", "Buy", "side of the position to close (Buy|Sell)")
	flag.Parse()

	bot, err := NewBot(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create bot: %v\n", err)
		os.Exit(1)
	}
	defer bot.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *closeSymbol != "":
		if err := bot.closePosition(ctx, *closeSymbol, *closeSide); err != nil {
			bot.log.Error().Err(err).Msg("close failed")
			bot.Shutdown()
			os.Exit(1)
		}
	case *once:
		bot.mainLoop(ctx)
	default:
		bot.Run(ctx)
	}
}
