// Package gateway abstracts the backend data gateway: the remote resource
// collections (Users, Markets, Positions, Balances, Transactions) the wager
// flow writes through. Implementations include a remote HTTP client (hosted
// gateway), PostgreSQL (self-hosted source of truth), Redis (read-through
// cache), and in-memory (for testing and development).
package gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/udoglabs/wager-engine/internal/model"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("gateway: record not found")

	// ErrDuplicate is returned when a create collides with an existing record.
	ErrDuplicate = errors.New("gateway: record already exists")

	// ErrInsufficientBalance is returned when a subtract would take a
	// balance below zero.
	ErrInsufficientBalance = errors.New("gateway: insufficient balance")
)

// Gateway is the data-gateway interface consumed by the session binder and
// the bet placement flow.
type Gateway interface {
	// --- Users ---

	// CreateUser persists a new user record.
	CreateUser(ctx context.Context, u *model.User) error

	// GetUser retrieves a user by its ID.
	GetUser(ctx context.Context, id string) (*model.User, error)

	// FindUserByIdentity looks up the user bound to an identity id.
	// Returns ErrNotFound when no such user exists.
	FindUserByIdentity(ctx context.Context, identityID string) (*model.User, error)

	// UpdateUser overwrites the mutable profile fields of an existing user.
	UpdateUser(ctx context.Context, u *model.User) error

	// --- Markets ---

	// CreateMarket persists a new market.
	CreateMarket(ctx context.Context, m *model.Market) error

	// GetMarket retrieves a market by its ID.
	GetMarket(ctx context.Context, id string) (*model.Market, error)

	// ListMarkets returns all markets, newest first.
	ListMarkets(ctx context.Context) ([]model.Market, error)

	// --- Positions ---

	// CreatePosition persists a new position and adds its shares to the
	// market's total volume. Positions are never mutated afterwards.
	CreatePosition(ctx context.Context, p *model.Position) error

	// ListPositionsByUser returns all positions for a user, newest first.
	ListPositionsByUser(ctx context.Context, userID string) ([]model.Position, error)

	// --- Transactions ---

	// CreateTransaction appends an immutable audit record.
	CreateTransaction(ctx context.Context, t *model.Transaction) error

	// ListTransactionsByUser returns all transactions for a user, newest first.
	ListTransactionsByUser(ctx context.Context, userID string) ([]model.Transaction, error)

	// --- Balances ---

	// CreateBalance initializes a balance row for a user and token.
	CreateBalance(ctx context.Context, b *model.Balance) error

	// GetBalance retrieves a user's balance for one token.
	GetBalance(ctx context.Context, userID, tokenSymbol string) (*model.Balance, error)

	// ListBalances returns all balances for a user.
	ListBalances(ctx context.Context, userID string) ([]model.Balance, error)

	// AddBalance credits amount to a user's balance.
	AddBalance(ctx context.Context, userID, tokenSymbol string, amount decimal.Decimal) error

	// SubtractBalance debits amount from a user's balance. Returns
	// ErrInsufficientBalance rather than going negative.
	SubtractBalance(ctx context.Context, userID, tokenSymbol string, amount decimal.Decimal) error
}
