package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/udoglabs/wager-engine/internal/model"
)

// CachedGateway wraps a primary Gateway with a Redis read-through cache.
// Writes go to the primary and invalidate the cache; reads check Redis
// first then fall back to the primary.
type CachedGateway struct {
	primary Gateway
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedGateway creates a cached wrapper around a primary gateway.
func NewCachedGateway(primary Gateway, rdb *redis.Client, ttl time.Duration) *CachedGateway {
	return &CachedGateway{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func marketCacheKey(id string) string        { return fmt.Sprintf("market:%s", id) }
func userCacheKey(id string) string          { return fmt.Sprintf("user:%s", id) }
func identityCacheKey(id string) string      { return fmt.Sprintf("identity:%s", id) }
func balanceCacheKey(uid, sym string) string { return fmt.Sprintf("balance:%s:%s", uid, sym) }
func positionsCacheKey(uid string) string    { return fmt.Sprintf("positions:%s", uid) }

// --- Write-through (write to primary, invalidate cache) ---

func (g *CachedGateway) CreateUser(ctx context.Context, u *model.User) error {
	if err := g.primary.CreateUser(ctx, u); err != nil {
		return err
	}
	g.cacheJSON(ctx, userCacheKey(u.ID), u)
	g.rdb.Set(ctx, identityCacheKey(u.IdentityID), u.ID, g.ttl)
	return nil
}

func (g *CachedGateway) UpdateUser(ctx context.Context, u *model.User) error {
	if err := g.primary.UpdateUser(ctx, u); err != nil {
		return err
	}
	g.rdb.Del(ctx, userCacheKey(u.ID))
	return nil
}

func (g *CachedGateway) CreateMarket(ctx context.Context, m *model.Market) error {
	if err := g.primary.CreateMarket(ctx, m); err != nil {
		return err
	}
	g.cacheJSON(ctx, marketCacheKey(m.ID), m)
	return nil
}

func (g *CachedGateway) CreatePosition(ctx context.Context, p *model.Position) error {
	if err := g.primary.CreatePosition(ctx, p); err != nil {
		return err
	}
	// The market's volume changed and the user has a new position.
	g.rdb.Del(ctx, marketCacheKey(p.MarketID), positionsCacheKey(p.UserID))
	return nil
}

func (g *CachedGateway) CreateTransaction(ctx context.Context, t *model.Transaction) error {
	return g.primary.CreateTransaction(ctx, t)
}

func (g *CachedGateway) CreateBalance(ctx context.Context, b *model.Balance) error {
	if err := g.primary.CreateBalance(ctx, b); err != nil {
		return err
	}
	g.rdb.Del(ctx, balanceCacheKey(b.UserID, b.TokenSymbol))
	return nil
}

func (g *CachedGateway) AddBalance(ctx context.Context, userID, tokenSymbol string, amount decimal.Decimal) error {
	if err := g.primary.AddBalance(ctx, userID, tokenSymbol, amount); err != nil {
		return err
	}
	g.rdb.Del(ctx, balanceCacheKey(userID, tokenSymbol))
	return nil
}

func (g *CachedGateway) SubtractBalance(ctx context.Context, userID, tokenSymbol string, amount decimal.Decimal) error {
	if err := g.primary.SubtractBalance(ctx, userID, tokenSymbol, amount); err != nil {
		return err
	}
	g.rdb.Del(ctx, balanceCacheKey(userID, tokenSymbol))
	return nil
}

// --- Read-through (check cache first) ---

func (g *CachedGateway) GetUser(ctx context.Context, id string) (*model.User, error) {
	var cached model.User
	if g.readJSON(ctx, userCacheKey(id), &cached) {
		return &cached, nil
	}

	u, err := g.primary.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	g.cacheJSON(ctx, userCacheKey(id), u)
	return u, nil
}

func (g *CachedGateway) FindUserByIdentity(ctx context.Context, identityID string) (*model.User, error) {
	// Try cache via identity→userID mapping.
	userID, err := g.rdb.Get(ctx, identityCacheKey(identityID)).Result()
	if err == nil {
		return g.GetUser(ctx, userID)
	}

	u, err := g.primary.FindUserByIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}
	g.cacheJSON(ctx, userCacheKey(u.ID), u)
	g.rdb.Set(ctx, identityCacheKey(identityID), u.ID, g.ttl)
	return u, nil
}

func (g *CachedGateway) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	var cached model.Market
	if g.readJSON(ctx, marketCacheKey(id), &cached) {
		return &cached, nil
	}

	m, err := g.primary.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}
	g.cacheJSON(ctx, marketCacheKey(id), m)
	return m, nil
}

func (g *CachedGateway) GetBalance(ctx context.Context, userID, tokenSymbol string) (*model.Balance, error) {
	var cached model.Balance
	if g.readJSON(ctx, balanceCacheKey(userID, tokenSymbol), &cached) {
		return &cached, nil
	}

	b, err := g.primary.GetBalance(ctx, userID, tokenSymbol)
	if err != nil {
		return nil, err
	}
	g.cacheJSON(ctx, balanceCacheKey(userID, tokenSymbol), b)
	return b, nil
}

func (g *CachedGateway) ListPositionsByUser(ctx context.Context, userID string) ([]model.Position, error) {
	var cached []model.Position
	if g.readJSON(ctx, positionsCacheKey(userID), &cached) {
		return cached, nil
	}

	positions, err := g.primary.ListPositionsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	g.cacheJSON(ctx, positionsCacheKey(userID), positions)
	return positions, nil
}

// --- Passthrough (not cached) ---

func (g *CachedGateway) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return g.primary.ListMarkets(ctx)
}

func (g *CachedGateway) ListTransactionsByUser(ctx context.Context, userID string) ([]model.Transaction, error) {
	return g.primary.ListTransactionsByUser(ctx, userID)
}

func (g *CachedGateway) ListBalances(ctx context.Context, userID string) ([]model.Balance, error) {
	return g.primary.ListBalances(ctx, userID)
}

// --- Cache helpers ---

func (g *CachedGateway) cacheJSON(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		g.rdb.Set(ctx, key, data, g.ttl)
	}
}

func (g *CachedGateway) readJSON(ctx context.Context, key string, out any) bool {
	data, err := g.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, out) == nil
}
