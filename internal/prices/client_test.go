package prices_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udoglabs/wager-engine/internal/prices"
)

func TestClient_Simple(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Contains(t, r.URL.RawQuery, "vs_currencies=usd")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"bitcoin":  {"usd": 98000.5, "usd_24h_change": 2.1, "last_updated_at": 1756700000},
			"ethereum": {"usd": 3400.0, "usd_24h_change": -1.3, "last_updated_at": 1756700000}
		}`))
	}))
	defer ts.Close()

	c := prices.NewClient(ts.URL)
	quotes, err := c.Simple(context.Background(), []string{"bitcoin", "ethereum"})
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.InDelta(t, 98000.5, quotes["bitcoin"].USD, 0.001)
	assert.InDelta(t, -1.3, quotes["ethereum"].Change24h, 0.001)
}

func TestClient_GlobalUnwrapsData(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/global", r.URL.Path)
		w.Write([]byte(`{"data": {
			"active_cryptocurrencies": 12000,
			"market_cap_percentage": {"btc": 52.3},
			"total_market_cap": {"usd": 3.2e12}
		}}`))
	}))
	defer ts.Close()

	c := prices.NewClient(ts.URL)
	global, err := c.Global(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12000, global.ActiveCryptocurrencies)
	assert.InDelta(t, 52.3, global.MarketCapPercentage["btc"], 0.001)
}

func TestClient_TrendingFlattensItems(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"coins": [
			{"item": {"id": "dogecoin", "name": "Dogecoin", "symbol": "DOGE", "market_cap_rank": 8}},
			{"item": {"id": "pepe", "name": "Pepe", "symbol": "PEPE", "market_cap_rank": 30}}
		]}`))
	}))
	defer ts.Close()

	c := prices.NewClient(ts.URL)
	trending, err := c.Trending(context.Background())
	require.NoError(t, err)
	require.Len(t, trending, 2)
	assert.Equal(t, "dogecoin", trending[0].ID)
}

func TestClient_Convert(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bitcoin": {"eth": 28.77}}`))
	}))
	defer ts.Close()

	c := prices.NewClient(ts.URL)
	rate, err := c.Convert(context.Background(), "bitcoin", "eth")
	require.NoError(t, err)
	assert.InDelta(t, 28.77, rate, 0.001)

	_, err = c.Convert(context.Background(), "bitcoin", "xyz")
	assert.Error(t, err)
}

func TestClient_HandleConvert(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bitcoin": {"eth": 28.0}}`))
	}))
	defer ts.Close()

	c := prices.NewClient(ts.URL)

	rec := httptest.NewRecorder()
	c.HandleConvert(rec, httptest.NewRequest("GET", "/prices/convert?from=bitcoin&to=eth&amount=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Rate   float64 `json:"rate"`
		Result float64 `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.InDelta(t, 28.0, body.Rate, 0.001)
	assert.InDelta(t, 56.0, body.Result, 0.001)

	rec = httptest.NewRecorder()
	c.HandleConvert(rec, httptest.NewRequest("GET", "/prices/convert?from=bitcoin", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	c.HandleConvert(rec, httptest.NewRequest("GET", "/prices/convert?from=bitcoin&to=eth&amount=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"bitcoin": {"usd": 98000}}`))
	}))
	defer ts.Close()

	c := prices.NewClient(ts.URL)
	quotes, err := c.Simple(context.Background(), []string{"bitcoin"})
	require.NoError(t, err)
	assert.InDelta(t, 98000.0, quotes["bitcoin"].USD, 0.001)
	assert.EqualValues(t, 2, calls.Load())
}

func TestPoller_KeepsStaleSnapshotOnFailure(t *testing.T) {
	healthy := atomic.Bool{}
	healthy.Store(true)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch r.URL.Path {
		case "/global":
			w.Write([]byte(`{"data": {"active_cryptocurrencies": 100}}`))
		case "/coins/markets":
			w.Write([]byte(`[{"id": "bitcoin", "current_price": 98000}]`))
		case "/search/trending":
			w.Write([]byte(`{"coins": []}`))
		default:
			w.Write([]byte(`{"bitcoin": {"usd": 98000}}`))
		}
	}))
	defer ts.Close()

	p := prices.NewPoller(prices.NewClient(ts.URL), time.Hour, []string{"bitcoin"}, 5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	require.Eventually(t, func() bool {
		return !p.Snapshot().FetchedAt.IsZero()
	}, 5*time.Second, 10*time.Millisecond)

	snap := p.Snapshot()
	require.NotNil(t, snap.Global)
	assert.Equal(t, 100, snap.Global.ActiveCryptocurrencies)
	assert.Len(t, snap.TopCoins, 1)
	assert.InDelta(t, 98000.0, snap.Spot["bitcoin"].USD, 0.001)
}
