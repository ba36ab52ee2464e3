// Package prices fetches market data from the public CoinGecko API and
// keeps a periodically refreshed snapshot for display surfaces.
//
// Prices here are display data, not money, so float64 is fine. Anything
// that settles a wager goes through shopspring/decimal elsewhere.
package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.coingecko.com/api/v3"

	// Public API allows roughly 10-30 req/min; stay well under it.
	requestsPerMinute = 10
	maxRetries        = 3
	baseRetryWait     = 500 * time.Millisecond
)

// GlobalData is the market-wide summary from /global.
type GlobalData struct {
	ActiveCryptocurrencies int                `json:"active_cryptocurrencies"`
	Markets                int                `json:"markets"`
	TotalMarketCap         map[string]float64 `json:"total_market_cap"`
	TotalVolume            map[string]float64 `json:"total_volume"`
	MarketCapPercentage    map[string]float64 `json:"market_cap_percentage"`
	MarketCapChange24h     float64            `json:"market_cap_change_percentage_24h_usd"`
}

// Coin is one entry from /coins/markets.
type Coin struct {
	ID             string  `json:"id"`
	Symbol         string  `json:"symbol"`
	Name           string  `json:"name"`
	Image          string  `json:"image"`
	CurrentPrice   float64 `json:"current_price"`
	MarketCap      float64 `json:"market_cap"`
	MarketCapRank  int     `json:"market_cap_rank"`
	TotalVolume    float64 `json:"total_volume"`
	PriceChange24h float64 `json:"price_change_percentage_24h"`
}

// TrendingCoin is one entry from /search/trending.
type TrendingCoin struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	MarketCapRank int    `json:"market_cap_rank"`
	Thumb         string `json:"thumb"`
}

// SimplePrice is one coin's quote from /simple/price.
type SimplePrice struct {
	USD         float64 `json:"usd"`
	Change24h   float64 `json:"usd_24h_change"`
	LastUpdated int64   `json:"last_updated_at"`
}

// Client is the CoinGecko HTTP client with rate limiting and retries.
type Client struct {
	http    *http.Client
	baseURL string
	limiter *rate.Limiter
}

// NewClient creates a Client. An empty baseURL uses the production API.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: rate.NewLimiter(rate.Limit(requestsPerMinute)/60, 5),
	}
}

// Global fetches the market-wide summary.
func (c *Client) Global(ctx context.Context) (*GlobalData, error) {
	var resp struct {
		Data GlobalData `json:"data"`
	}
	if err := c.get(ctx, "/global", &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// TopCoins fetches the top n coins by market cap with 24h change.
func (c *Client) TopCoins(ctx context.Context, n int) ([]Coin, error) {
	path := fmt.Sprintf(
		"/coins/markets?vs_currency=usd&order=market_cap_desc&per_page=%d&page=1&sparkline=false&price_change_percentage=24h",
		n,
	)
	var coins []Coin
	if err := c.get(ctx, path, &coins); err != nil {
		return nil, err
	}
	return coins, nil
}

// Trending fetches the currently trending coins.
func (c *Client) Trending(ctx context.Context) ([]TrendingCoin, error) {
	var resp struct {
		Coins []struct {
			Item TrendingCoin `json:"item"`
		} `json:"coins"`
	}
	if err := c.get(ctx, "/search/trending", &resp); err != nil {
		return nil, err
	}
	coins := make([]TrendingCoin, 0, len(resp.Coins))
	for _, entry := range resp.Coins {
		coins = append(coins, entry.Item)
	}
	return coins, nil
}

// Simple fetches spot quotes for the given coin ids in USD.
func (c *Client) Simple(ctx context.Context, ids []string) (map[string]SimplePrice, error) {
	path := "/simple/price?ids=" + url.QueryEscape(strings.Join(ids, ",")) +
		"&vs_currencies=usd&include_24hr_change=true&include_last_updated_at=true"
	out := make(map[string]SimplePrice)
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Convert fetches the exchange rate of one coin quoted in another
// currency (a coingecko vs_currency code).
func (c *Client) Convert(ctx context.Context, fromID, toCurrency string) (float64, error) {
	path := "/simple/price?ids=" + url.QueryEscape(fromID) +
		"&vs_currencies=" + url.QueryEscape(toCurrency)
	out := make(map[string]map[string]float64)
	if err := c.get(ctx, path, &out); err != nil {
		return 0, err
	}
	quote, ok := out[fromID][strings.ToLower(toCurrency)]
	if !ok {
		return 0, fmt.Errorf("prices: no quote for %s in %s", fromID, toCurrency)
	}
	return quote, nil
}

// HandleConvert handles GET /api/v1/prices/convert?from=bitcoin&to=eth&amount=2
func (c *Client) HandleConvert(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		writeConvertError(w, "from and to are required", http.StatusBadRequest)
		return
	}

	amount := 1.0
	if raw := r.URL.Query().Get("amount"); raw != "" {
		var err error
		if amount, err = strconv.ParseFloat(raw, 64); err != nil || amount <= 0 {
			writeConvertError(w, "amount must be a positive number", http.StatusBadRequest)
			return
		}
	}

	quote, err := c.Convert(r.Context(), from, to)
	if err != nil {
		writeConvertError(w, "conversion unavailable", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"from":   from,
		"to":     to,
		"amount": amount,
		"rate":   quote,
		"result": amount * quote,
	})
}

func writeConvertError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// get does a GET with rate limiting and exponential backoff retries.
func (c *Client) get(ctx context.Context, path string, out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			slog.Warn("market data API throttled", "status", resp.StatusCode, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fmt.Errorf("prices: unexpected status %d for %s", resp.StatusCode, path)
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("prices: decode %s: %w", path, err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
