package market

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"dualinvest-core/internal/product"
)

// Client wraps REST access to Binance spot and dual investment endpoints.
// Requests are throttled client-side to stay under the exchange weight
// limits.
type Client struct {
	APIKey     string
	APISecret  string
	BaseURL    string
	HTTPClient *http.Client
	Testnet    bool

	limiter *rate.Limiter
}

// NewClient builds a REST client; testnet switches the base URL and makes
// the dual investment product list synthetic (the testnet has no earn
// endpoints).
func NewClient(apiKey, apiSecret string, testnet bool) *Client {
	base := "https://api.binance.com"
	if testnet {
		base = "https://testnet.binance.vision"
	}
	return &Client{
		APIKey:     apiKey,
		APISecret:  apiSecret,
		BaseURL:    base,
		Testnet:    testnet,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(10), 20),
	}
}

// Klines fetches the most recent candles for symbol/interval.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.get(ctx, "/api/v3/klines", params)
	if err != nil {
		return nil, err
	}

	var raw [][]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	klines := make([]Kline, 0, len(raw))
	for _, item := range raw {
		// Binance returns 12 fields per kline
		if len(item) < 7 {
			continue
		}
		klines = append(klines, Kline{
			Symbol:    symbol,
			OpenTime:  toInt64(item[0]),
			Open:      toFloat(item[1]),
			High:      toFloat(item[2]),
			Low:       toFloat(item[3]),
			Close:     toFloat(item[4]),
			Volume:    toFloat(item[5]),
			CloseTime: toInt64(item[6]),
		})
	}
	return klines, nil
}

// Price fetches the latest traded price for one symbol.
func (c *Client) Price(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.get(ctx, "/api/v3/ticker/price", params)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decode price: %w", err)
	}
	return strconv.ParseFloat(resp.Price, 64)
}

// Ticker24h fetches rolling 24h statistics for one symbol.
func (c *Client) Ticker24h(ctx context.Context, symbol string) (*Ticker24h, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.get(ctx, "/api/v3/ticker/24hr", params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Symbol             string `json:"symbol"`
		LastPrice          string `json:"lastPrice"`
		PriceChangePercent string `json:"priceChangePercent"`
		HighPrice          string `json:"highPrice"`
		LowPrice           string `json:"lowPrice"`
		Volume             string `json:"volume"`
		QuoteVolume        string `json:"quoteVolume"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode 24h ticker: %w", err)
	}

	return &Ticker24h{
		Symbol:             resp.Symbol,
		LastPrice:          parseFloat(resp.LastPrice),
		PriceChangePercent: parseFloat(resp.PriceChangePercent),
		HighPrice:          parseFloat(resp.HighPrice),
		LowPrice:           parseFloat(resp.LowPrice),
		Volume:             parseFloat(resp.Volume),
		QuoteVolume:        parseFloat(resp.QuoteVolume),
	}, nil
}

// DualInvestmentProducts lists candidate products for a symbol. On testnet
// (or without credentials) the list is synthesized from live market data,
// since the earn endpoints only exist in production.
func (c *Client) DualInvestmentProducts(ctx context.Context, symbol string) ([]product.Product, error) {
	if c.Testnet || c.APIKey == "" {
		return c.syntheticProducts(ctx, symbol)
	}

	asset := assetFromSymbol(symbol)
	var all []product.Product
	for _, optionType := range []string{"PUT", "CALL"} {
		params := url.Values{}
		params.Set("optionType", optionType)
		if optionType == "PUT" {
			params.Set("exercisedCoin", asset)
			params.Set("investCoin", "USDT")
		} else {
			params.Set("exercisedCoin", "USDT")
			params.Set("investCoin", asset)
		}
		params.Set("pageSize", "100")

		body, err := c.signedGet(ctx, "/sapi/v1/dci/product/list", params)
		if err != nil {
			return nil, err
		}

		var resp struct {
			List []struct {
				ID            string `json:"id"`
				StrikePrice   string `json:"strikePrice"`
				APR           string `json:"apr"`
				Duration      int    `json:"duration"`
				MinAmount     string `json:"minInvestAmount"`
				MaxAmount     string `json:"maxInvestAmount"`
				SettleDate    int64  `json:"settleDate"`
				OptionType    string `json:"optionType"`
				InvestCoin    string `json:"investCoin"`
				ExercisedCoin string `json:"exercisedCoin"`
			} `json:"list"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("decode dci products: %w", err)
		}

		for _, item := range resp.List {
			typ := product.BuyLow
			if item.OptionType == "CALL" {
				typ = product.SellHigh
			}
			all = append(all, product.Product{
				ID:             item.ID,
				Asset:          asset,
				Currency:       "USDT",
				Type:           typ,
				StrikePrice:    parseFloat(item.StrikePrice),
				APY:            parseFloat(item.APR),
				TermDays:       item.Duration,
				MinAmount:      parseFloat(item.MinAmount),
				MaxAmount:      parseFloat(item.MaxAmount),
				SettlementDate: time.UnixMilli(item.SettleDate).UTC(),
			})
		}
	}
	return all, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return c.do(ctx, u, false)
}

func (c *Client) signedGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", "5000")

	query := params.Encode()
	mac := hmac.New(sha256.New, []byte(c.APISecret))
	mac.Write([]byte(query))
	signature := hex.EncodeToString(mac.Sum(nil))

	u := c.BaseURL + path + "?" + query + "&signature=" + signature
	return c.do(ctx, u, true)
}

func (c *Client) do(ctx context.Context, u string, signed bool) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", c.APIKey)
	}

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("binance status %d: %s", res.StatusCode, truncate(body, 200))
	}
	return body, nil
}

func assetFromSymbol(symbol string) string {
	if len(symbol) > 4 && symbol[len(symbol)-4:] == "USDT" {
		return symbol[:len(symbol)-4]
	}
	return symbol
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case json.Number:
		f, _ := t.Float64()
		return f
	case float64:
		return t
	default:
		return 0
	}
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int64:
		return t
	case json.Number:
		i, _ := t.Int64()
		return i
	default:
		return 0
	}
}
