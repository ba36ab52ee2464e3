// Package model defines the core domain types shared across the wager engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market statuses as stored by the data gateway.
const (
	MarketOpen     = "open"
	MarketResolved = "resolved"
)

// Wager sides. Every position is on exactly one side of a binary market.
const (
	SideYes = "yes"
	SideNo  = "no"
)

// User is the backend record bound to an authenticated identity.
// Created once per identity on first sight, looked up thereafter.
type User struct {
	ID            string    `json:"id" db:"id"`
	IdentityID    string    `json:"identity_id" db:"identity_id"`
	WalletAddress string    `json:"wallet_address" db:"wallet_address"`
	Email         string    `json:"email" db:"email"`
	Username      string    `json:"username" db:"username"`
	AvatarURL     string    `json:"avatar_url" db:"avatar_url"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Market is a binary prediction market. Read-only from the flow's
// perspective; the gateway owns its state, including volume accounting.
type Market struct {
	ID          string          `json:"id" db:"id"`
	Title       string          `json:"title" db:"title"`
	Description string          `json:"description" db:"description"`
	Category    string          `json:"category" db:"category"`
	Status      string          `json:"status" db:"status"`
	YesPrice    decimal.Decimal `json:"yes_price" db:"yes_price"`
	NoPrice     decimal.Decimal `json:"no_price" db:"no_price"`
	TotalVolume decimal.Decimal `json:"total_volume" db:"total_volume"`
	Deadline    time.Time       `json:"deadline" db:"deadline"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// Position is an open wager on one side of a market. Created exactly once
// per placed bet and never mutated afterwards; resolution is external.
type Position struct {
	ID        string          `json:"id" db:"id"`
	UserID    string          `json:"user_id" db:"user_id"`
	MarketID  string          `json:"market_id" db:"market_id"`
	Side      string          `json:"side" db:"side"`
	Shares    decimal.Decimal `json:"shares" db:"shares"`
	Price     decimal.Decimal `json:"price" db:"price"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// Transaction is the append-only audit record written alongside a Position.
// TxHash is a synthetic settlement reference, not a real on-chain hash.
type Transaction struct {
	ID          string          `json:"id" db:"id"`
	UserID      string          `json:"user_id" db:"user_id"`
	MarketID    string          `json:"market_id" db:"market_id"`
	PositionID  string          `json:"position_id" db:"position_id"`
	Type        string          `json:"type" db:"type"` // "buy" or "sell"
	Side        string          `json:"side" db:"side"`
	Shares      decimal.Decimal `json:"shares" db:"shares"`
	Price       decimal.Decimal `json:"price" db:"price"`
	TotalAmount decimal.Decimal `json:"total_amount" db:"total_amount"`
	TxHash      string          `json:"tx_hash" db:"tx_hash"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// Balance is a user's spendable amount in one token. Mutated only through
// the gateway's add/subtract operations.
type Balance struct {
	UserID      string          `json:"user_id" db:"user_id"`
	TokenSymbol string          `json:"token_symbol" db:"token_symbol"`
	Balance     decimal.Decimal `json:"balance" db:"balance"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// PositionDetail joins a position with the market it was placed on, plus
// the derived payout figures shown in portfolio views.
type PositionDetail struct {
	Position
	MarketTitle     string          `json:"market_title"`
	MarketStatus    string          `json:"market_status"`
	Odds            decimal.Decimal `json:"odds"`
	PotentialPayout decimal.Decimal `json:"potential_payout"`
}

// Price alert conditions.
const (
	AlertAbove = "above"
	AlertBelow = "below"
)

// Alert is a one-shot price alert on a tracked coin. Once triggered it
// stays triggered; re-arming means creating a new alert.
type Alert struct {
	ID          string          `json:"id" db:"id"`
	CoinID      string          `json:"coin_id" db:"coin_id"`
	CoinName    string          `json:"coin_name" db:"coin_name"`
	CoinSymbol  string          `json:"coin_symbol" db:"coin_symbol"`
	TargetPrice decimal.Decimal `json:"target_price" db:"target_price"`
	Condition   string          `json:"condition" db:"condition"` // "above" or "below"
	Triggered   bool            `json:"triggered" db:"triggered"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	TriggeredAt *time.Time      `json:"triggered_at,omitempty" db:"triggered_at"`
}

// Portfolio aggregates a user's positions with summary statistics.
type Portfolio struct {
	UserID          string           `json:"user_id"`
	Positions       []PositionDetail `json:"positions"`
	TotalWagers     int              `json:"total_wagers"`
	ActiveWagers    int              `json:"active_wagers"`
	TotalWagered    decimal.Decimal  `json:"total_wagered"`
	PotentialPayout decimal.Decimal  `json:"potential_payout"`
}
