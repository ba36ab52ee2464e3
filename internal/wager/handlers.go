package wager

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/udoglabs/wager-engine/internal/gateway"
	"github.com/udoglabs/wager-engine/internal/limits"
	"github.com/udoglabs/wager-engine/internal/metrics"
	"github.com/udoglabs/wager-engine/internal/model"
)

// CreateMarketRequest is the JSON body for market creation.
type CreateMarketRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	YesPrice    decimal.Decimal `json:"yes_price"`
	Deadline    time.Time       `json:"deadline"`
}

// PlaceWager handles POST /api/v1/wagers
func (s *Service) PlaceWager(w http.ResponseWriter, r *http.Request) {
	var req PlaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	start := time.Now()
	result, err := s.Place(r.Context(), req)
	if err != nil {
		s.writeWagerError(w, err)
		return
	}
	metrics.WagerLatency.WithLabelValues(req.Side).Observe(time.Since(start).Seconds())

	writeJSON(w, http.StatusCreated, result)
}

// writeWagerError maps placement errors to HTTP statuses.
func (s *Service) writeWagerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		metrics.WagerRejections.WithLabelValues("unauthenticated").Inc()
		writeError(w, "not authenticated", http.StatusUnauthorized)
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidSide),
		errors.Is(err, ErrMarketRequired):
		metrics.WagerRejections.WithLabelValues("validation").Inc()
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrInsufficientFunds):
		metrics.WagerRejections.WithLabelValues("insufficient_funds").Inc()
		writeError(w, "insufficient funds", http.StatusConflict)
	case errors.Is(err, ErrWagerInFlight):
		metrics.WagerRejections.WithLabelValues("in_flight").Inc()
		writeError(w, "a wager is already being placed", http.StatusConflict)
	case errors.Is(err, ErrMarketClosed),
		errors.Is(err, limits.ErrPerMarketLimitExceeded),
		errors.Is(err, limits.ErrTotalLimitExceeded):
		metrics.WagerRejections.WithLabelValues("rejected").Inc()
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, gateway.ErrNotFound):
		writeError(w, "market not found", http.StatusNotFound)
	default:
		metrics.WagerRejections.WithLabelValues("gateway").Inc()
		writeError(w, "wager could not be placed, please retry", http.StatusBadGateway)
	}
}

// CreateMarket handles POST /api/v1/markets
func (s *Service) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		writeError(w, "title is required", http.StatusBadRequest)
		return
	}

	yes := req.YesPrice
	if !yes.IsPositive() || yes.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		yes = defaultPrice
	}

	market := &model.Market{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Status:      model.MarketOpen,
		YesPrice:    yes,
		NoPrice:     decimal.NewFromInt(1).Sub(yes),
		TotalVolume: decimal.Zero,
		Deadline:    req.Deadline,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.gw.CreateMarket(r.Context(), market); err != nil {
		writeError(w, "failed to create market", http.StatusConflict)
		return
	}

	writeJSON(w, http.StatusCreated, market)
}

// ListMarkets handles GET /api/v1/markets
// Returns all markets, optionally filtered by ?category=<name>.
func (s *Service) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.gw.ListMarkets(r.Context())
	if err != nil {
		writeError(w, "failed to list markets", http.StatusBadGateway)
		return
	}
	if markets == nil {
		markets = []model.Market{}
	}

	open := 0
	for _, m := range markets {
		if m.Status == model.MarketOpen {
			open++
		}
	}
	metrics.ActiveMarkets.Set(float64(open))

	if category := r.URL.Query().Get("category"); category != "" {
		filtered := []model.Market{}
		for _, m := range markets {
			if m.Category == category {
				filtered = append(filtered, m)
			}
		}
		markets = filtered
	}

	writeJSON(w, http.StatusOK, markets)
}

// GetMarket handles GET /api/v1/markets/{marketID}
func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	market, err := s.gw.GetMarket(r.Context(), marketID)
	if err != nil {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, market)
}

// GetPortfolio handles GET /api/v1/portfolio
// Returns the bound user's positions with payout figures.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	user, err := s.binder.Current()
	if err != nil {
		writeError(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	portfolio, err := s.Portfolio(r.Context(), user.ID)
	if err != nil {
		writeError(w, "failed to build portfolio", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, portfolio)
}

// GetBalances handles GET /api/v1/balances
func (s *Service) GetBalances(w http.ResponseWriter, r *http.Request) {
	user, err := s.binder.Current()
	if err != nil {
		writeError(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	balances, err := s.gw.ListBalances(r.Context(), user.ID)
	if err != nil {
		writeError(w, "failed to load balances", http.StatusBadGateway)
		return
	}
	if balances == nil {
		balances = []model.Balance{}
	}

	writeJSON(w, http.StatusOK, balances)
}

// ListTransactions handles GET /api/v1/transactions
func (s *Service) ListTransactions(w http.ResponseWriter, r *http.Request) {
	user, err := s.binder.Current()
	if err != nil {
		writeError(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	txs, err := s.gw.ListTransactionsByUser(r.Context(), user.ID)
	if err != nil {
		writeError(w, "failed to load transactions", http.StatusBadGateway)
		return
	}
	if txs == nil {
		txs = []model.Transaction{}
	}

	writeJSON(w, http.StatusOK, txs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
