package alerts_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udoglabs/wager-engine/internal/alerts"
	"github.com/udoglabs/wager-engine/internal/localstore"
	"github.com/udoglabs/wager-engine/internal/model"
	"github.com/udoglabs/wager-engine/internal/prices"
)

// quoteServer serves a fixed spot price for every requested coin and
// counts requests.
func quoteServer(t *testing.T, usd float64) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"bitcoin": {"usd": ` + jsonFloat(usd) + `}}`))
	}))
	t.Cleanup(ts.Close)
	return ts, &calls
}

func jsonFloat(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}

func decimalFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newService(t *testing.T, baseURL string, interval time.Duration) (*alerts.Service, *localstore.Store) {
	t.Helper()
	store, err := localstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := alerts.NewService(store, prices.NewClient(baseURL), nil, interval)
	return svc, store
}

func createAlert(t *testing.T, svc *alerts.Service, target float64, condition string) model.Alert {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/api/v1/alerts", svc.Create)

	body, _ := json.Marshal(alerts.CreateRequest{
		CoinID:      "bitcoin",
		CoinName:    "Bitcoin",
		CoinSymbol:  "BTC",
		TargetPrice: decimalFromFloat(target),
		Condition:   condition,
	})
	req := httptest.NewRequest("POST", "/api/v1/alerts", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var alert model.Alert
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &alert))
	return alert
}

func TestAlert_FiresOnceWhenCrossed(t *testing.T) {
	ts, _ := quoteServer(t, 100500)
	svc, store := newService(t, ts.URL, 10*time.Millisecond)

	created := createAlert(t, svc, 100000, model.AlertAbove)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	require.Eventually(t, func() bool {
		pending, err := store.PendingAlerts(context.Background())
		return err == nil && len(pending) == 0
	}, 5*time.Second, 10*time.Millisecond)

	all, err := store.ListAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, created.ID, all[0].ID)
	assert.True(t, all[0].Triggered)
	require.NotNil(t, all[0].TriggeredAt)
}

func TestAlert_BelowConditionNotFiredAbove(t *testing.T) {
	ts, _ := quoteServer(t, 100500)
	svc, store := newService(t, ts.URL, 10*time.Millisecond)

	createAlert(t, svc, 90000, model.AlertBelow)

	ctx, cancel := context.WithCancel(context.Background())
	go svc.Run(ctx)
	time.Sleep(100 * time.Millisecond)
	cancel()

	pending, err := store.PendingAlerts(context.Background())
	require.NoError(t, err)
	assert.Len(t, pending, 1, "below alert must stay pending while price is higher")
}

func TestAlert_NoQuoteFetchWithoutPending(t *testing.T) {
	ts, calls := quoteServer(t, 100500)
	svc, _ := newService(t, ts.URL, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go svc.Run(ctx)
	time.Sleep(100 * time.Millisecond)
	cancel()

	assert.EqualValues(t, 0, calls.Load(), "no pending alerts, no API traffic")
}

func TestAlert_CreateValidation(t *testing.T) {
	ts, _ := quoteServer(t, 1)
	svc, _ := newService(t, ts.URL, time.Hour)

	r := chi.NewRouter()
	r.Post("/api/v1/alerts", svc.Create)

	cases := []alerts.CreateRequest{
		{CoinName: "Bitcoin", TargetPrice: decimalFromFloat(1), Condition: model.AlertAbove},
		{CoinID: "bitcoin", TargetPrice: decimalFromFloat(0), Condition: model.AlertAbove},
		{CoinID: "bitcoin", TargetPrice: decimalFromFloat(1), Condition: "sideways"},
	}
	for _, tc := range cases {
		body, _ := json.Marshal(tc)
		req := httptest.NewRequest("POST", "/api/v1/alerts", bytes.NewReader(body))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	}
}

func TestAlert_DeleteMissing(t *testing.T) {
	ts, _ := quoteServer(t, 1)
	svc, _ := newService(t, ts.URL, time.Hour)

	r := chi.NewRouter()
	r.Delete("/api/v1/alerts/{alertID}", svc.Delete)

	req := httptest.NewRequest("DELETE", "/api/v1/alerts/nope", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
