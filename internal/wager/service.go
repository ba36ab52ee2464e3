// Package wager provides the HTTP handlers and business logic for
// browsing markets, placing wagers, and querying balances and portfolios.
//
// All monetary values use shopspring/decimal — never float64 for money.
package wager

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/udoglabs/wager-engine/internal/gateway"
	"github.com/udoglabs/wager-engine/internal/hub"
	"github.com/udoglabs/wager-engine/internal/limits"
	"github.com/udoglabs/wager-engine/internal/metrics"
	"github.com/udoglabs/wager-engine/internal/model"
	"github.com/udoglabs/wager-engine/internal/odds"
	"github.com/udoglabs/wager-engine/internal/session"
)

var (
	// ErrNotAuthenticated is returned when no user is bound to the session.
	ErrNotAuthenticated = errors.New("wager: not authenticated")

	// ErrInvalidAmount is returned for zero, negative, or missing amounts.
	ErrInvalidAmount = errors.New("wager: amount must be positive")

	// ErrInvalidSide is returned when side is neither "yes" nor "no".
	ErrInvalidSide = errors.New(`wager: side must be "yes" or "no"`)

	// ErrMarketRequired is returned when no market is selected.
	ErrMarketRequired = errors.New("wager: market_id is required")

	// ErrMarketClosed is returned when the market is not open.
	ErrMarketClosed = errors.New("wager: market is not open")

	// ErrInsufficientFunds is returned when the balance cannot cover the
	// wager amount.
	ErrInsufficientFunds = errors.New("wager: insufficient funds")

	// ErrWagerInFlight is returned when the user already has a placement
	// running. Prevents a double-submit from passing the balance check
	// twice.
	ErrWagerInFlight = errors.New("wager: placement already in flight")
)

var defaultPrice = decimal.NewFromFloat(0.5)

// Service handles wager operations against the gateway. The in-flight set
// serializes placements per user (single-instance). For horizontal
// scaling, replace with distributed locking or gateway-level optimistic
// concurrency.
type Service struct {
	gw      gateway.Gateway
	binder  *session.Binder
	limiter *limits.ExposureLimiter
	symbol  string
	events  *hub.Hub // optional hub for real-time broadcasts

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewService creates a wager service settling in tokenSymbol.
// Pass nil for events if broadcasting is not needed.
func NewService(gw gateway.Gateway, binder *session.Binder, limiter *limits.ExposureLimiter, tokenSymbol string, events *hub.Hub) *Service {
	return &Service{
		gw:       gw,
		binder:   binder,
		limiter:  limiter,
		symbol:   tokenSymbol,
		events:   events,
		inflight: make(map[string]struct{}),
	}
}

// --- Request/Response types ---

// PlaceRequest is the JSON body for POST /wagers.
type PlaceRequest struct {
	MarketID string          `json:"market_id"`
	Side     string          `json:"side"` // "yes" or "no"
	Amount   decimal.Decimal `json:"amount"`
}

// PlaceResult is returned from a successful placement. Markets is the
// full market list re-fetched after the debit, so callers can refresh
// displayed odds and pools without a second round trip.
type PlaceResult struct {
	Position    *model.Position    `json:"position"`
	Transaction *model.Transaction `json:"transaction"`
	Balance     *model.Balance     `json:"balance"`
	Markets     []model.Market     `json:"markets"`
}

// Place runs the placement flow for the bound user:
//
//  1. validate the request, before any gateway call
//  2. check the settlement balance covers the amount
//  3. create the position
//  4. record the transaction referencing it
//  5. debit the balance by the wager amount
//  6. re-fetch the market list so returned odds and pools reflect the
//     new wager
//
// A success produces exactly one position, one transaction, and one
// debit. There is no compensation: a failure after step 3 leaves the
// created records in place and surfaces the error, since the gateway owns
// the authoritative state and cannot be rolled back from here.
func (s *Service) Place(ctx context.Context, req PlaceRequest) (*PlaceResult, error) {
	if req.MarketID == "" {
		return nil, ErrMarketRequired
	}
	if req.Side != model.SideYes && req.Side != model.SideNo {
		return nil, ErrInvalidSide
	}
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	user, err := s.binder.Current()
	if err != nil {
		return nil, ErrNotAuthenticated
	}

	if !s.acquire(user.ID) {
		return nil, ErrWagerInFlight
	}
	defer s.release(user.ID)

	market, err := s.gw.GetMarket(ctx, req.MarketID)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return nil, fmt.Errorf("market %s: %w", req.MarketID, gateway.ErrNotFound)
		}
		return nil, fmt.Errorf("wager: load market: %w", err)
	}
	if market.Status != model.MarketOpen {
		return nil, ErrMarketClosed
	}

	if s.limiter != nil {
		existing, err := s.stakeByMarket(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("wager: load exposure: %w", err)
		}
		if err := s.limiter.Check(market.ID, req.Amount, existing); err != nil {
			return nil, err
		}
	}

	balance, err := s.gw.GetBalance(ctx, user.ID, s.symbol)
	if err != nil {
		return nil, fmt.Errorf("wager: load balance: %w", err)
	}
	if balance.Balance.LessThan(req.Amount) {
		return nil, ErrInsufficientFunds
	}

	price := market.YesPrice
	if req.Side == model.SideNo {
		price = market.NoPrice
	}
	if !price.IsPositive() {
		price = defaultPrice
	}

	now := time.Now().UTC()
	position := &model.Position{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		MarketID:  market.ID,
		Side:      req.Side,
		Shares:    req.Amount,
		Price:     price,
		CreatedAt: now,
	}
	if err := s.gw.CreatePosition(ctx, position); err != nil {
		return nil, fmt.Errorf("wager: create position: %w", err)
	}

	// total_amount is shares×price while the balance below is debited by
	// the raw wager amount. Kept as-is to stay ledger-compatible with the
	// hosted gateway's existing records.
	tx := &model.Transaction{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		MarketID:    market.ID,
		PositionID:  position.ID,
		Type:        "buy",
		Side:        req.Side,
		Shares:      position.Shares,
		Price:       price,
		TotalAmount: position.Shares.Mul(price),
		TxHash:      newTxHash(),
		CreatedAt:   now,
	}
	if err := s.gw.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("wager: record transaction: %w", err)
	}

	if err := s.gw.SubtractBalance(ctx, user.ID, s.symbol, req.Amount); err != nil {
		if errors.Is(err, gateway.ErrInsufficientBalance) {
			return nil, ErrInsufficientFunds
		}
		return nil, fmt.Errorf("wager: debit balance: %w", err)
	}

	updated, err := s.gw.GetBalance(ctx, user.ID, s.symbol)
	if err != nil {
		return nil, fmt.Errorf("wager: reload balance: %w", err)
	}

	markets, err := s.gw.ListMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("wager: reload markets: %w", err)
	}
	for i := range markets {
		if markets[i].ID == market.ID {
			market = &markets[i]
			break
		}
	}

	slog.Info("wager placed",
		"position_id", position.ID,
		"user", user.ID,
		"market", market.ID,
		"side", req.Side,
		"amount", req.Amount.String(),
		"price", price.String(),
	)

	metrics.WagersTotal.WithLabelValues(req.Side).Inc()
	if s.events != nil {
		s.events.Broadcast(hub.Event{
			Type:     hub.EventWagerPlaced,
			MarketID: market.ID,
			Side:     req.Side,
			Amount:   req.Amount.String(),
			YesPrice: market.YesPrice.String(),
			NoPrice:  market.NoPrice.String(),
		})
	}

	return &PlaceResult{Position: position, Transaction: tx, Balance: updated, Markets: markets}, nil
}

// Portfolio builds the portfolio view for the bound user, joining each
// position with its market and the derived payout figures.
func (s *Service) Portfolio(ctx context.Context, userID string) (*model.Portfolio, error) {
	positions, err := s.gw.ListPositionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("wager: load positions: %w", err)
	}

	portfolio := &model.Portfolio{
		UserID:          userID,
		Positions:       []model.PositionDetail{},
		TotalWagered:    decimal.Zero,
		PotentialPayout: decimal.Zero,
	}

	markets := make(map[string]*model.Market)
	for _, p := range positions {
		market, ok := markets[p.MarketID]
		if !ok {
			market, err = s.gw.GetMarket(ctx, p.MarketID)
			if err != nil {
				return nil, fmt.Errorf("wager: load market %s: %w", p.MarketID, err)
			}
			markets[p.MarketID] = market
		}

		detail := model.PositionDetail{
			Position:     p,
			MarketTitle:  market.Title,
			MarketStatus: market.Status,
		}
		if o, err := odds.Decimal(p.Price); err == nil {
			detail.Odds = o
		}
		if payout, err := odds.Payout(p.Shares, p.Price); err == nil {
			detail.PotentialPayout = payout
			portfolio.PotentialPayout = portfolio.PotentialPayout.Add(payout)
		}

		portfolio.Positions = append(portfolio.Positions, detail)
		portfolio.TotalWagered = portfolio.TotalWagered.Add(p.Shares)
		portfolio.TotalWagers++
		if market.Status == model.MarketOpen {
			portfolio.ActiveWagers++
		}
	}

	return portfolio, nil
}

// stakeByMarket sums the user's existing stake per market.
func (s *Service) stakeByMarket(ctx context.Context, userID string) (map[string]decimal.Decimal, error) {
	positions, err := s.gw.ListPositionsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	stakes := make(map[string]decimal.Decimal, len(positions))
	for _, p := range positions {
		stakes[p.MarketID] = stakes[p.MarketID].Add(p.Shares)
	}
	return stakes, nil
}

func (s *Service) acquire(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[userID]; busy {
		return false
	}
	s.inflight[userID] = struct{}{}
	return true
}

func (s *Service) release(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, userID)
}

// newTxHash mints a simulated chain transaction hash.
func newTxHash() string {
	buf := make([]byte, 32)
	rand.Read(buf)
	return "0x" + hex.EncodeToString(buf)
}
