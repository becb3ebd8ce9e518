// File: internal/telegram/notifier.go
// ============================================
package telegram

import (
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ixarek/o3cripto/pkg/types"
)

const defaultAPIBase = "https://api.telegram.org"

type Notifier struct {
	botToken string
	chatID   string
	enabled  bool
	apiBase  string
	client   *http.Client
	log      zerolog.Logger
}

func NewNotifier(botToken, chatID string, enabled bool, log zerolog.Logger) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		enabled:  enabled && botToken != "" && chatID != "",
		apiBase:  defaultAPIBase,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log.With().Str("component", "telegram").Logger(),
	}
}

// WithAPIBase points the notifier at another Bot API host.
func (n *Notifier) WithAPIBase(base string) *Notifier {
	n.apiBase = strings.TrimRight(base, "/")
	return n
}

func (n *Notifier) Enabled() bool { return n.enabled }

func (n *Notifier) sendMessage(message string) error {
	if !n.enabled {
		n.log.Debug().Msg("telegram disabled, message dropped")
		return nil
	}

	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)

	data := url.Values{}
	data.Set("chat_id", n.chatID)
	data.Set("text", message)
	data.Set("parse_mode", "HTML")
	data.Set("disable_web_page_preview", "true")

	resp, err := n.client.PostForm(apiURL, data)
	if err != nil {
		n.log.Error().Err(err).Msg("telegram request failed")
		return fmt.Errorf("telegram: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		n.log.Error().Int("status", resp.StatusCode).Bytes("body", body).Msg("telegram API error")
		return fmt.Errorf("telegram API error: %s", body)
	}
	return nil
}

func (n *Notifier) NotifyStart(symbols []string, strategyName, stopMode string) {
	msg := "🤖 <b>Bybit Bot Started</b>\n\n"
	msg += fmt.Sprintf("📊 Strategy: <code>%s</code>\n", html.EscapeString(strategyName))
	msg += fmt.Sprintf("🛑 Stops: <code>%s</code>\n", html.EscapeString(stopMode))
	msg += fmt.Sprintf("💎 Symbols: %s", html.EscapeString(strings.Join(symbols, ", ")))
	_ = n.sendMessage(msg)
}

// NotifyOrder reports a submitted order.
func (n *Notifier) NotifyOrder(conf *types.OrderConfirmation, intent types.OrderIntent, reason string) {
	_ = n.sendMessage(FormatOrder(conf, intent, reason))
}

func FormatOrder(conf *types.OrderConfirmation, intent types.OrderIntent, reason string) string {
	emoji := "📈"
	title := "POSITION OPENED"
	switch {
	case intent.ReduceOnly:
		emoji, title = "🔔", "POSITION CLOSED"
	case intent.Side == types.SideSell:
		emoji = "📉"
	}

	msg := fmt.Sprintf("%s <b>%s</b>\n", emoji, title)
	msg += strings.Repeat("━", 20) + "\n\n"
	msg += fmt.Sprintf("💎 <b>%s</b> %s\n", html.EscapeString(intent.Symbol), intent.Side)
	msg += fmt.Sprintf("📦 Quantity: <code>%s</code>\n", intent.Quantity.String())
	if intent.StopLoss != nil {
		msg += fmt.Sprintf("🛑 Stop Loss: <code>%s</code>\n", intent.StopLoss.String())
	}
	if intent.TakeProfit != nil {
		msg += fmt.Sprintf("🎯 Take Profit: <code>%s</code>\n", intent.TakeProfit.String())
	}
	if conf != nil && conf.OrderID != "" {
		msg += fmt.Sprintf("🧾 Order: <code>%s</code>\n", html.EscapeString(conf.OrderID))
	}
	if reason != "" {
		msg += fmt.Sprintf("\n💡 %s", html.EscapeString(reason))
	}
	return msg
}

func (n *Notifier) NotifyTrailingStop(symbols []string) {
	if len(symbols) == 0 {
		return
	}
	msg := "🎯 <b>Trailing Stop Updated</b>\n\n"
	for _, s := range symbols {
		msg += fmt.Sprintf("• %s\n", html.EscapeString(s))
	}
	_ = n.sendMessage(msg)
}

func (n *Notifier) NotifyError(errorMsg string) {
	msg := fmt.Sprintf("⚠️ <b>Error Alert</b>\n\n%s", html.EscapeString(errorMsg))
	_ = n.sendMessage(msg)
}
