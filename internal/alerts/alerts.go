// Package alerts evaluates one-shot price alerts against periodically
// fetched spot quotes.
package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/udoglabs/wager-engine/internal/hub"
	"github.com/udoglabs/wager-engine/internal/localstore"
	"github.com/udoglabs/wager-engine/internal/metrics"
	"github.com/udoglabs/wager-engine/internal/model"
	"github.com/udoglabs/wager-engine/internal/prices"
)

// Service polls spot quotes and fires pending alerts. Alerts persist in
// the local store and fire at most once.
type Service struct {
	store    *localstore.Store
	client   *prices.Client
	events   *hub.Hub // optional
	interval time.Duration
}

// NewService creates an alert service evaluating every interval.
// Pass nil for events if broadcasting is not needed.
func NewService(store *localstore.Store, client *prices.Client, events *hub.Hub, interval time.Duration) *Service {
	return &Service{
		store:    store,
		client:   client,
		events:   events,
		interval: interval,
	}
}

// Run evaluates pending alerts on every tick until ctx is cancelled.
// Must be called in a goroutine.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.evaluate(ctx)
		}
	}
}

// evaluate fetches quotes for all pending alerts and fires the ones whose
// condition holds.
func (s *Service) evaluate(ctx context.Context) {
	pending, err := s.store.PendingAlerts(ctx)
	if err != nil {
		slog.Error("failed to load pending alerts", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	ids := make([]string, 0, len(pending))
	seen := make(map[string]bool, len(pending))
	for _, a := range pending {
		if !seen[a.CoinID] {
			seen[a.CoinID] = true
			ids = append(ids, a.CoinID)
		}
	}

	quotes, err := s.client.Simple(ctx, ids)
	if err != nil {
		slog.Warn("alert quote fetch failed", "error", err)
		return
	}

	now := time.Now().UTC()
	for _, a := range pending {
		quote, ok := quotes[a.CoinID]
		if !ok {
			continue
		}
		price := decimal.NewFromFloat(quote.USD)

		fired := false
		switch a.Condition {
		case model.AlertAbove:
			fired = price.GreaterThanOrEqual(a.TargetPrice)
		case model.AlertBelow:
			fired = price.LessThanOrEqual(a.TargetPrice)
		}
		if !fired {
			continue
		}

		if err := s.store.MarkTriggered(ctx, a.ID, now); err != nil {
			slog.Error("failed to mark alert triggered", "alert_id", a.ID, "error", err)
			continue
		}

		slog.Info("price alert triggered",
			"alert_id", a.ID,
			"coin", a.CoinID,
			"condition", a.Condition,
			"target", a.TargetPrice.String(),
			"price", price.String(),
		)
		metrics.AlertsTriggered.Inc()

		if s.events != nil {
			s.events.Broadcast(hub.Event{
				Type:    hub.EventAlertTriggered,
				CoinID:  a.CoinID,
				Price:   price.String(),
				Message: a.CoinName + " crossed " + a.TargetPrice.String(),
			})
		}
	}
}

// --- HTTP handlers ---

// CreateRequest is the JSON body for alert creation.
type CreateRequest struct {
	CoinID      string          `json:"coin_id"`
	CoinName    string          `json:"coin_name"`
	CoinSymbol  string          `json:"coin_symbol"`
	TargetPrice decimal.Decimal `json:"target_price"`
	Condition   string          `json:"condition"`
}

// Create handles POST /api/v1/alerts
func (s *Service) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.CoinID == "" {
		writeError(w, "coin_id is required", http.StatusBadRequest)
		return
	}
	if !req.TargetPrice.IsPositive() {
		writeError(w, "target_price must be positive", http.StatusBadRequest)
		return
	}
	if req.Condition != model.AlertAbove && req.Condition != model.AlertBelow {
		writeError(w, `condition must be "above" or "below"`, http.StatusBadRequest)
		return
	}

	alert := &model.Alert{
		ID:          uuid.NewString(),
		CoinID:      req.CoinID,
		CoinName:    req.CoinName,
		CoinSymbol:  req.CoinSymbol,
		TargetPrice: req.TargetPrice,
		Condition:   req.Condition,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.SaveAlert(r.Context(), alert); err != nil {
		writeError(w, "failed to save alert", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(alert)
}

// List handles GET /api/v1/alerts
func (s *Service) List(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.store.ListAlerts(r.Context())
	if err != nil {
		writeError(w, "failed to list alerts", http.StatusInternalServerError)
		return
	}
	if alerts == nil {
		alerts = []model.Alert{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(alerts)
}

// Delete handles DELETE /api/v1/alerts/{alertID}
func (s *Service) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "alertID")
	if err := s.store.DeleteAlert(r.Context(), id); err != nil {
		if errors.Is(err, localstore.ErrNoValue) {
			writeError(w, "alert not found", http.StatusNotFound)
			return
		}
		writeError(w, "failed to delete alert", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
