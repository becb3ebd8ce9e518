// File: internal/config/config.go
// ============================================
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ixarek/o3cripto/internal/risk"
	"github.com/ixarek/o3cripto/internal/strategy"
	"github.com/ixarek/o3cripto/pkg/types"
)

const DefaultPath = "config/config.yaml"

// Load reads the YAML config and overlays credentials from the process
// environment and the given .env files (".env" when none are named).
// Process environment wins over .env values.
func Load(path string, envFiles ...string) (*types.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg types.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	env, err := readEnv(envFiles)
	if err != nil {
		return nil, err
	}
	applyEnv(&cfg, env)
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// Reload re-reads the file, used when the operator edits it at runtime.
func Reload(path string, envFiles ...string) (*types.Config, error) {
	cfg, err := Load(path, envFiles...)
	if err != nil {
		return nil, fmt.Errorf("reload %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg back as YAML. Credentials are not persisted.
func Save(path string, cfg *types.Config) error {
	out := *cfg
	out.Bybit.APIKey = ""
	out.Bybit.APISecret = ""
	out.Telegram.BotToken = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyDefaults fills zero or unusable values and normalizes symbols.
// Float checks are negated so NaN falls back to the default.
func ApplyDefaults(cfg *types.Config) {
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.App.PollIntervalSecs <= 0 {
		cfg.App.PollIntervalSecs = 60
	}
	if cfg.Bybit.RateLimit <= 0 {
		cfg.Bybit.RateLimit = 10
	}
	if len(cfg.Trading.Symbols) == 0 {
		cfg.Trading.Symbols = []string{"BTCUSDT"}
	}
	for i, sym := range cfg.Trading.Symbols {
		cfg.Trading.Symbols[i] = risk.NormalizeSymbol(sym)
	}
	for i, sym := range cfg.Risk.AllowedSymbols {
		cfg.Risk.AllowedSymbols[i] = risk.NormalizeSymbol(sym)
	}
	if !(cfg.Trading.AmountUSD > 0) || math.IsInf(cfg.Trading.AmountUSD, 1) {
		cfg.Trading.AmountUSD = 100
	}
	if cfg.Trading.Leverage <= 0 {
		cfg.Trading.Leverage = 10
	}
	if cfg.Trading.SignalMode == "" {
		cfg.Trading.SignalMode = strategy.ModeCombined
	}
	if cfg.Trading.StopMode == "" {
		cfg.Trading.StopMode = risk.StopModeATR
	}
	if !(cfg.Trading.TakeProfitK > 0) || math.IsInf(cfg.Trading.TakeProfitK, 1) {
		cfg.Trading.TakeProfitK = 2.0
	}
	if cfg.Trading.CandleInterval <= 0 {
		cfg.Trading.CandleInterval = 5
	}
	if cfg.Trading.ShortInterval <= 0 {
		cfg.Trading.ShortInterval = 5
	}
	if cfg.Trading.LongInterval <= 0 {
		cfg.Trading.LongInterval = 60
	}
	if !(cfg.Trading.RiskPct > 0) || math.IsInf(cfg.Trading.RiskPct, 1) {
		cfg.Trading.RiskPct = 1
	}
	if cfg.Cache.TTLSecs <= 0 {
		cfg.Cache.TTLSecs = 30
	}
	if cfg.Cache.RedisAddr == "" {
		cfg.Cache.RedisAddr = "localhost:6379"
	}
}

func readEnv(files []string) (map[string]string, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	merged := make(map[string]string)
	for _, f := range files {
		vals, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f, err)
		}
		for k, v := range vals {
			if _, seen := merged[k]; !seen {
				merged[k] = v
			}
		}
	}
	return merged, nil
}

func applyEnv(cfg *types.Config, dotenv map[string]string) {
	get := func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return dotenv[key]
	}
	setBool := func(key string, dst *bool) {
		if v := get(key); v != "" {
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				*dst = b
			}
		}
	}

	if v := get("BYBIT_API_KEY"); v != "" {
		cfg.Bybit.APIKey = v
	}
	if v := get("BYBIT_API_SECRET"); v != "" {
		cfg.Bybit.APISecret = v
	}
	setBool("BYBIT_TESTNET", &cfg.Bybit.Testnet)
	setBool("BYBIT_DEMO", &cfg.Bybit.Demo)
	setBool("BYBIT_IGNORE_SSL", &cfg.Bybit.IgnoreSSL)

	if v := get("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := get("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := get("REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
}
