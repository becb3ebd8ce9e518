// File: internal/bybit/client.go
// ============================================
package bybit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/ixarek/o3cripto/internal/metrics"
	"github.com/ixarek/o3cripto/pkg/types"
)

const (
	mainnetURL = "https://api.bybit.com"
	testnetURL = "https://api-testnet.bybit.com"
	demoURL    = "https://api-demo.bybit.com"

	category   = "linear"
	recvWindow = "5000"
	maxKlines  = 1000

	codeLeverageNotModified = 110043
)

// APIError is a non-zero retCode in the v5 envelope.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bybit: api error %d: %s", e.Code, e.Msg)
}

type Options struct {
	APIKey            string
	APISecret         string
	Testnet           bool
	Demo              bool
	IgnoreSSL         bool
	RequestsPerSecond int
	// BaseURL overrides the network selection, mainly for tests.
	BaseURL string
}

func OptionsFromConfig(cfg *types.Config) Options {
	return Options{
		APIKey:            cfg.Bybit.APIKey,
		APISecret:         cfg.Bybit.APISecret,
		Testnet:           cfg.Bybit.Testnet,
		Demo:              cfg.Bybit.Demo,
		IgnoreSSL:         cfg.Bybit.IgnoreSSL,
		RequestsPerSecond: cfg.Bybit.RateLimit,
	}
}

// Client talks to the Bybit v5 REST API for USDT linear perpetuals.
type Client struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

func NewClient(opts Options) *Client {
	baseURL := mainnetURL
	switch {
	case opts.BaseURL != "":
		baseURL = opts.BaseURL
	case opts.Demo:
		baseURL = demoURL
	case opts.Testnet:
		baseURL = testnetURL
	}

	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}
	if opts.IgnoreSSL {
		httpClient.Transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // opt-in for intercepting proxies
		}
	}

	return &Client{
		apiKey:     opts.APIKey,
		secretKey:  opts.APISecret,
		baseURL:    baseURL,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), rps),
		now:        time.Now,
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// do sends one request and decodes result into out. Signed requests carry the
// X-BAPI headers computed over the query string (GET) or JSON body (POST).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, signed bool, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("bybit: rate limit: %w", err)
	}
	defer metrics.ObserveAPI(path, time.Now())

	u := c.baseURL + path
	payload := ""
	var reader io.Reader
	if len(query) > 0 {
		payload = query.Encode()
		u += "?" + payload
	}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("bybit: encode body: %w", err)
		}
		payload = string(raw)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("bybit: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if signed {
		ts := strconv.FormatInt(c.now().UnixMilli(), 10)
		req.Header.Set("X-BAPI-API-KEY", c.apiKey)
		req.Header.Set("X-BAPI-TIMESTAMP", ts)
		req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
		req.Header.Set("X-BAPI-SIGN", c.sign(ts+c.apiKey+recvWindow+payload))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bybit: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("bybit: %s %s: unexpected status %s: %s", method, path, resp.Status, bytes.TrimSpace(msg))
	}

	var envelope struct {
		RetCode int             `json:"retCode"`
		RetMsg  string          `json:"retMsg"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("bybit: decode response: %w", err)
	}
	if envelope.RetCode != 0 {
		return &APIError{Code: envelope.RetCode, Msg: envelope.RetMsg}
	}
	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("bybit: decode result: %w", err)
	}
	return nil
}

// GetCandles returns up to limit klines, newest first as Bybit delivers them.
func (c *Client) GetCandles(ctx context.Context, symbol string, intervalMinutes, limit int) ([]types.Candle, error) {
	if limit <= 0 || limit > maxKlines {
		limit = maxKlines
	}
	q := url.Values{}
	q.Set("category", category)
	q.Set("symbol", symbol)
	q.Set("interval", intervalParam(intervalMinutes))
	q.Set("limit", strconv.Itoa(limit))

	var result struct {
		List [][]string `json:"list"`
	}
	if err := c.do(ctx, http.MethodGet, "/v5/market/kline", q, nil, false, &result); err != nil {
		return nil, err
	}
	return parseKlines(result.List)
}

// parseKlines reads [startTime, open, high, low, close, volume, turnover] rows.
func parseKlines(rows [][]string) ([]types.Candle, error) {
	out := make([]types.Candle, 0, len(rows))
	for i, r := range rows {
		if len(r) < 6 {
			return nil, fmt.Errorf("bybit: kline[%d] has %d fields, want >=6", i, len(r))
		}
		openTime, err := strconv.ParseInt(r[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bybit: kline[%d] start: %w", i, err)
		}
		var vals [5]float64
		for j := range vals {
			vals[j], err = strconv.ParseFloat(r[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("bybit: kline[%d] field %d: %w", i, j+1, err)
			}
		}
		out = append(out, types.Candle{
			Timestamp: time.UnixMilli(openTime).UTC(),
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}
	return out, nil
}

func intervalParam(minutes int) string {
	switch minutes {
	case 1440:
		return "D"
	case 10080:
		return "W"
	case 43200:
		return "M"
	default:
		return strconv.Itoa(minutes)
	}
}

func (c *Client) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	q := url.Values{}
	q.Set("category", category)
	q.Set("symbol", symbol)

	var result struct {
		List []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := c.do(ctx, http.MethodGet, "/v5/market/tickers", q, nil, false, &result); err != nil {
		return 0, err
	}
	if len(result.List) == 0 || result.List[0].LastPrice == "" {
		return 0, fmt.Errorf("bybit: ticker %s: %w", symbol, types.ErrNoPriceData)
	}
	price, err := strconv.ParseFloat(result.List[0].LastPrice, 64)
	if err != nil {
		return 0, fmt.Errorf("bybit: ticker %s last price: %w", symbol, err)
	}
	return price, nil
}

func (c *Client) GetInstrumentMeta(ctx context.Context, symbol string) (types.InstrumentMeta, error) {
	q := url.Values{}
	q.Set("category", category)
	q.Set("symbol", symbol)

	var result struct {
		List []struct {
			Symbol        string `json:"symbol"`
			LotSizeFilter struct {
				QtyStep     string `json:"qtyStep"`
				MinOrderQty string `json:"minOrderQty"`
			} `json:"lotSizeFilter"`
			PriceFilter struct {
				TickSize string `json:"tickSize"`
			} `json:"priceFilter"`
		} `json:"list"`
	}
	if err := c.do(ctx, http.MethodGet, "/v5/market/instruments-info", q, nil, false, &result); err != nil {
		return types.InstrumentMeta{}, err
	}
	if len(result.List) == 0 {
		return types.InstrumentMeta{}, fmt.Errorf("bybit: instrument %s not found", symbol)
	}
	info := result.List[0]

	step, err := decimal.NewFromString(info.LotSizeFilter.QtyStep)
	if err != nil {
		return types.InstrumentMeta{}, fmt.Errorf("bybit: %s qtyStep: %w", symbol, err)
	}
	minQty, err := decimal.NewFromString(info.LotSizeFilter.MinOrderQty)
	if err != nil {
		return types.InstrumentMeta{}, fmt.Errorf("bybit: %s minOrderQty: %w", symbol, err)
	}
	tick, err := decimal.NewFromString(info.PriceFilter.TickSize)
	if err != nil {
		return types.InstrumentMeta{}, fmt.Errorf("bybit: %s tickSize: %w", symbol, err)
	}
	return types.InstrumentMeta{Symbol: info.Symbol, QtyStep: step, MinOrderQty: minQty, TickSize: tick}, nil
}

// SetLeverage sets the same leverage on both sides. An unchanged leverage
// comes back as types.ErrLeverageUnchanged.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	lev := strconv.Itoa(leverage)
	body := map[string]string{
		"category":     category,
		"symbol":       symbol,
		"buyLeverage":  lev,
		"sellLeverage": lev,
	}
	err := c.do(ctx, http.MethodPost, "/v5/position/set-leverage", nil, body, true, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == codeLeverageNotModified {
		return fmt.Errorf("bybit: %s %dx: %w", symbol, leverage, types.ErrLeverageUnchanged)
	}
	return err
}

type createOrderRequest struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	TimeInForce string `json:"timeInForce"`
	PositionIdx int    `json:"positionIdx"`
	ReduceOnly  bool   `json:"reduceOnly,omitempty"`
	StopLoss    string `json:"stopLoss,omitempty"`
	TakeProfit  string `json:"takeProfit,omitempty"`
	TpslMode    string `json:"tpslMode,omitempty"`
}

// SubmitOrder places a market order. Stop-loss and take-profit are attached
// to the position in full.
func (c *Client) SubmitOrder(ctx context.Context, intent types.OrderIntent) (*types.OrderConfirmation, error) {
	req := createOrderRequest{
		Category:    category,
		Symbol:      intent.Symbol,
		Side:        string(intent.Side),
		OrderType:   string(types.OrderKindMarket),
		Qty:         intent.Quantity.String(),
		TimeInForce: "IOC",
		ReduceOnly:  intent.ReduceOnly,
	}
	if intent.StopLoss != nil {
		req.StopLoss = intent.StopLoss.String()
	}
	if intent.TakeProfit != nil {
		req.TakeProfit = intent.TakeProfit.String()
	}
	if req.StopLoss != "" || req.TakeProfit != "" {
		req.TpslMode = "Full"
	}

	var result struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := c.do(ctx, http.MethodPost, "/v5/order/create", nil, req, true, &result); err != nil {
		return nil, err
	}
	return &types.OrderConfirmation{
		OrderID:     result.OrderID,
		Symbol:      intent.Symbol,
		Side:        intent.Side,
		Quantity:    intent.Quantity,
		ReduceOnly:  intent.ReduceOnly,
		SubmittedAt: c.now(),
	}, nil
}

// OpenPositions lists USDT-settled positions with a non-zero size.
func (c *Client) OpenPositions(ctx context.Context) ([]types.Position, error) {
	q := url.Values{}
	q.Set("category", category)
	q.Set("settleCoin", "USDT")

	var result struct {
		List []struct {
			Symbol   string `json:"symbol"`
			Side     string `json:"side"`
			Size     string `json:"size"`
			AvgPrice string `json:"avgPrice"`
			StopLoss string `json:"stopLoss"`
			Leverage string `json:"leverage"`
		} `json:"list"`
	}
	if err := c.do(ctx, http.MethodGet, "/v5/position/list", q, nil, true, &result); err != nil {
		return nil, err
	}

	positions := make([]types.Position, 0, len(result.List))
	for _, p := range result.List {
		size, err := decimal.NewFromString(p.Size)
		if err != nil || !size.IsPositive() {
			continue
		}
		entry, _ := strconv.ParseFloat(p.AvgPrice, 64)
		stop, _ := strconv.ParseFloat(p.StopLoss, 64)
		lev, _ := strconv.ParseFloat(p.Leverage, 64)
		positions = append(positions, types.Position{
			Symbol:     p.Symbol,
			Side:       types.Side(p.Side),
			Size:       size,
			EntryPrice: entry,
			StopLoss:   stop,
			Leverage:   int(lev),
		})
	}
	return positions, nil
}

// SetStopLoss replaces the full-position stop-loss.
func (c *Client) SetStopLoss(ctx context.Context, symbol string, stopLoss decimal.Decimal) error {
	body := map[string]any{
		"category":    category,
		"symbol":      symbol,
		"stopLoss":    stopLoss.String(),
		"tpslMode":    "Full",
		"positionIdx": 0,
	}
	return c.do(ctx, http.MethodPost, "/v5/position/trading-stop", nil, body, true, nil)
}

// WalletBalance returns the unified account wallet balance of coin.
func (c *Client) WalletBalance(ctx context.Context, coin string) (float64, error) {
	q := url.Values{}
	q.Set("accountType", "UNIFIED")
	q.Set("coin", coin)

	var result struct {
		List []struct {
			Coin []struct {
				Coin          string `json:"coin"`
				WalletBalance string `json:"walletBalance"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := c.do(ctx, http.MethodGet, "/v5/account/wallet-balance", q, nil, true, &result); err != nil {
		return 0, err
	}
	for _, acct := range result.List {
		for _, cb := range acct.Coin {
			if cb.Coin == coin {
				return strconv.ParseFloat(cb.WalletBalance, 64)
			}
		}
	}
	return 0, fmt.Errorf("bybit: no %s balance", coin)
}
