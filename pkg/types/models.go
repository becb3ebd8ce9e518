// File: pkg/types/models.go
// ============================================
package types

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the bot configuration
type Config struct {
	App struct {
		LogLevel         string `yaml:"log_level"`
		MetricsAddr      string `yaml:"metrics_addr"`
		PollIntervalSecs int    `yaml:"poll_interval_secs"`
	} `yaml:"app"`

	Bybit struct {
		APIKey    string `yaml:"api_key"`
		APISecret string `yaml:"api_secret"`
		Testnet   bool   `yaml:"testnet"`
		Demo      bool   `yaml:"demo"`
		IgnoreSSL bool   `yaml:"ignore_ssl"`
		RateLimit int    `yaml:"requests_per_second"`
	} `yaml:"bybit"`

	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
		Enabled  bool   `yaml:"enabled"`
	} `yaml:"telegram"`

	Trading struct {
		Symbols        []string `yaml:"symbols"`
		AmountUSD      float64  `yaml:"amount_usd"`
		Leverage       int      `yaml:"leverage"`
		SignalMode     string   `yaml:"signal_mode"` // combined | half_year
		StopMode       string   `yaml:"stop_mode"`   // atr | support_resistance
		TakeProfitK    float64  `yaml:"take_profit_k"`
		CandleInterval int      `yaml:"candle_interval_minutes"`
		ShortInterval  int      `yaml:"short_interval_minutes"`
		LongInterval   int      `yaml:"long_interval_minutes"`

		TrailingStopPct float64 `yaml:"trailing_stop_pct"` // 0 disables trailing
		DynamicSizing   bool    `yaml:"dynamic_sizing"`
		RiskPct         float64 `yaml:"risk_pct"`
		DynamicLeverage bool    `yaml:"dynamic_leverage"`
	} `yaml:"trading"`

	Risk struct {
		AllowedSymbols   []string `yaml:"allowed_symbols"`
		MinAmountUSD     float64  `yaml:"min_amount_usd"`
		MaxAmountUSD     float64  `yaml:"max_amount_usd"`
		MinLeverage      int      `yaml:"min_leverage"`
		MaxLeverage      int      `yaml:"max_leverage"`
		MinNotional      float64  `yaml:"min_notional_usd"`
		MaxNotional      float64  `yaml:"max_notional_usd"`
		MaxOpenPositions int      `yaml:"max_open_positions"`
	} `yaml:"risk"`

	Cache struct {
		Enabled   bool   `yaml:"enabled"`
		RedisAddr string `yaml:"redis_addr"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		TTLSecs   int    `yaml:"ttl_secs"`
	} `yaml:"cache"`
}

// Candle is one OHLCV bar.
type Candle struct {
	Timestamp time.Time `json:"ts"`
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    float64   `json:"v"`
}

// NormalizeCandles returns a copy of candles ordered oldest first.
// Exchange feeds usually deliver newest first.
func NormalizeCandles(candles []Candle) []Candle {
	out := make([]Candle, len(candles))
	copy(out, candles)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Closes extracts close prices in order.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func Highs(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

func Lows(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}

// Tail returns at most the last n candles.
func Tail(candles []Candle, n int) []Candle {
	if n <= 0 || len(candles) <= n {
		return candles
	}
	return candles[len(candles)-n:]
}

// InstrumentMeta holds the exchange quantization rules for a symbol.
type InstrumentMeta struct {
	Symbol      string
	QtyStep     decimal.Decimal
	MinOrderQty decimal.Decimal
	TickSize    decimal.Decimal
}

// Action is the output of the signal engine.
type Action string

const (
	ActionBuy  Action = "Buy"
	ActionSell Action = "Sell"
	ActionHold Action = "Hold"
)

// Side is the direction of an order. Only Buy and Sell are valid.
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// Opposite flips the side, used to offset an open position.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// Side converts an actionable signal into an order side.
func (a Action) Side() (Side, bool) {
	switch a {
	case ActionBuy:
		return SideBuy, true
	case ActionSell:
		return SideSell, true
	default:
		return "", false
	}
}

// Decision is what a strategy produced for one evaluation.
// Protection is only set by strategies that derive their own levels.
type Decision struct {
	Action     Action
	Reason     string
	Protection *StopTarget
}

// RiskParameters describes the requested exposure of a trade.
type RiskParameters struct {
	Symbol    string
	AmountUSD float64
	Leverage  int
}

// Notional is the effective position value.
func (r RiskParameters) Notional() float64 {
	return r.AmountUSD * float64(r.Leverage)
}

// StopTarget holds protective levels for one trade decision.
type StopTarget struct {
	StopLoss   float64
	TakeProfit float64
}

// Valid reports whether the levels bracket entry on the correct sides.
func (st StopTarget) Valid(side Side, entry float64) bool {
	switch side {
	case SideBuy:
		return st.StopLoss < entry && entry < st.TakeProfit
	case SideSell:
		return st.TakeProfit < entry && entry < st.StopLoss
	default:
		return false
	}
}

// OrderKind is always Market for this bot.
type OrderKind string

const OrderKindMarket OrderKind = "Market"

// OrderIntent is a validated, quantized request ready for submission.
// Reduce-only intents never carry stop/target levels.
type OrderIntent struct {
	Symbol     string
	Side       Side
	Quantity   decimal.Decimal
	Kind       OrderKind
	StopLoss   *decimal.Decimal
	TakeProfit *decimal.Decimal
	ReduceOnly bool
}

// OrderConfirmation is returned by the execution collaborator.
type OrderConfirmation struct {
	OrderID     string
	Symbol      string
	Side        Side
	Quantity    decimal.Decimal
	ReduceOnly  bool
	SubmittedAt time.Time
}

// Position is an open exchange position as reported by the execution venue.
type Position struct {
	Symbol     string
	Side       Side
	Size       decimal.Decimal
	EntryPrice float64
	StopLoss   float64
	Leverage   int
}
