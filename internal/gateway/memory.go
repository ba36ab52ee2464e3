package gateway

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/udoglabs/wager-engine/internal/model"
)

// MemoryGateway implements Gateway with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryGateway struct {
	mu           sync.RWMutex
	users        map[string]*model.User
	markets      map[string]*model.Market
	positions    []model.Position
	transactions []model.Transaction
	balances     map[string]*model.Balance // userID + "/" + tokenSymbol
}

// NewMemoryGateway creates a new in-memory gateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		users:    make(map[string]*model.User),
		markets:  make(map[string]*model.Market),
		balances: make(map[string]*model.Balance),
	}
}

func balKey(userID, symbol string) string { return userID + "/" + symbol }

// --- Users ---

func (g *MemoryGateway) CreateUser(_ context.Context, u *model.User) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.users[u.ID]; ok {
		return fmt.Errorf("user %s: %w", u.ID, ErrDuplicate)
	}
	for _, existing := range g.users {
		if existing.IdentityID == u.IdentityID {
			return fmt.Errorf("identity %s: %w", u.IdentityID, ErrDuplicate)
		}
	}

	// Store a copy to avoid external mutation.
	cp := *u
	g.users[u.ID] = &cp
	return nil
}

func (g *MemoryGateway) GetUser(_ context.Context, id string) (*model.User, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	u, ok := g.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (g *MemoryGateway) FindUserByIdentity(_ context.Context, identityID string) (*model.User, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, u := range g.users {
		if u.IdentityID == identityID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("identity %s: %w", identityID, ErrNotFound)
}

func (g *MemoryGateway) UpdateUser(_ context.Context, u *model.User) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	existing, ok := g.users[u.ID]
	if !ok {
		return fmt.Errorf("user %s: %w", u.ID, ErrNotFound)
	}
	existing.Username = u.Username
	existing.Email = u.Email
	existing.AvatarURL = u.AvatarURL
	existing.WalletAddress = u.WalletAddress
	return nil
}

// --- Markets ---

func (g *MemoryGateway) CreateMarket(_ context.Context, m *model.Market) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.markets[m.ID]; ok {
		return fmt.Errorf("market %s: %w", m.ID, ErrDuplicate)
	}
	cp := *m
	g.markets[m.ID] = &cp
	return nil
}

func (g *MemoryGateway) GetMarket(_ context.Context, id string) (*model.Market, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	m, ok := g.markets[id]
	if !ok {
		return nil, fmt.Errorf("market %s: %w", id, ErrNotFound)
	}
	cp := *m
	return &cp, nil
}

func (g *MemoryGateway) ListMarkets(_ context.Context) ([]model.Market, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	markets := make([]model.Market, 0, len(g.markets))
	for _, m := range g.markets {
		markets = append(markets, *m)
	}
	sort.Slice(markets, func(i, j int) bool {
		return markets[i].CreatedAt.After(markets[j].CreatedAt)
	})
	return markets, nil
}

// --- Positions ---

func (g *MemoryGateway) CreatePosition(_ context.Context, p *model.Position) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	m, ok := g.markets[p.MarketID]
	if !ok {
		return fmt.Errorf("market %s: %w", p.MarketID, ErrNotFound)
	}

	g.positions = append(g.positions, *p)
	m.TotalVolume = m.TotalVolume.Add(p.Shares)
	return nil
}

func (g *MemoryGateway) ListPositionsByUser(_ context.Context, userID string) ([]model.Position, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var result []model.Position
	for i := len(g.positions) - 1; i >= 0; i-- {
		if g.positions[i].UserID == userID {
			result = append(result, g.positions[i])
		}
	}
	return result, nil
}

// --- Transactions ---

func (g *MemoryGateway) CreateTransaction(_ context.Context, t *model.Transaction) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.transactions = append(g.transactions, *t)
	return nil
}

func (g *MemoryGateway) ListTransactionsByUser(_ context.Context, userID string) ([]model.Transaction, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var result []model.Transaction
	for i := len(g.transactions) - 1; i >= 0; i-- {
		if g.transactions[i].UserID == userID {
			result = append(result, g.transactions[i])
		}
	}
	return result, nil
}

// --- Balances ---

func (g *MemoryGateway) CreateBalance(_ context.Context, b *model.Balance) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := balKey(b.UserID, b.TokenSymbol)
	if _, ok := g.balances[key]; ok {
		return fmt.Errorf("balance %s: %w", key, ErrDuplicate)
	}
	cp := *b
	cp.UpdatedAt = time.Now().UTC()
	g.balances[key] = &cp
	return nil
}

func (g *MemoryGateway) GetBalance(_ context.Context, userID, tokenSymbol string) (*model.Balance, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	b, ok := g.balances[balKey(userID, tokenSymbol)]
	if !ok {
		return nil, fmt.Errorf("balance %s/%s: %w", userID, tokenSymbol, ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (g *MemoryGateway) ListBalances(_ context.Context, userID string) ([]model.Balance, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var result []model.Balance
	for _, b := range g.balances {
		if b.UserID == userID {
			result = append(result, *b)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].TokenSymbol < result[j].TokenSymbol
	})
	return result, nil
}

func (g *MemoryGateway) AddBalance(_ context.Context, userID, tokenSymbol string, amount decimal.Decimal) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, ok := g.balances[balKey(userID, tokenSymbol)]
	if !ok {
		return fmt.Errorf("balance %s/%s: %w", userID, tokenSymbol, ErrNotFound)
	}
	b.Balance = b.Balance.Add(amount)
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (g *MemoryGateway) SubtractBalance(_ context.Context, userID, tokenSymbol string, amount decimal.Decimal) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, ok := g.balances[balKey(userID, tokenSymbol)]
	if !ok {
		return fmt.Errorf("balance %s/%s: %w", userID, tokenSymbol, ErrNotFound)
	}
	if b.Balance.LessThan(amount) {
		return fmt.Errorf("balance %s/%s: %w", userID, tokenSymbol, ErrInsufficientBalance)
	}
	b.Balance = b.Balance.Sub(amount)
	b.UpdatedAt = time.Now().UTC()
	return nil
}
