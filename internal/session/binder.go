// Package session binds an authenticated identity to a gateway user
// record, creating and seeding the record on first login.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/udoglabs/wager-engine/internal/gateway"
	"github.com/udoglabs/wager-engine/internal/identity"
	"github.com/udoglabs/wager-engine/internal/localstore"
	"github.com/udoglabs/wager-engine/internal/model"
)

// ErrNoUser is returned when no user is bound to the session.
var ErrNoUser = errors.New("session: no bound user")

// profileKey is the local-store key caching the bound user record.
const profileKey = "user_profile"

const avatarURLFmt = "https://api.dicebear.com/7.x/avataaars/svg?seed=%s"

// Binder resolves an identity principal to exactly one gateway user,
// creating the user and its starting balance on first sight. All state
// lives on the binder instance; two binders never share a session.
type Binder struct {
	gw          gateway.Gateway
	store       *localstore.Store
	tokenSymbol string
	seedBalance decimal.Decimal

	mu      sync.Mutex
	current *model.User
}

// NewBinder creates a binder seeding new users with seedBalance of
// tokenSymbol.
func NewBinder(gw gateway.Gateway, store *localstore.Store, tokenSymbol string, seedBalance decimal.Decimal) *Binder {
	return &Binder{
		gw:          gw,
		store:       store,
		tokenSymbol: tokenSymbol,
		seedBalance: seedBalance,
	}
}

// Current returns the bound user, or ErrNoUser.
func (b *Binder) Current() (*model.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return nil, ErrNoUser
	}
	cp := *b.current
	return &cp, nil
}

// Bind resolves the principal to a user record. An existing record with
// the same identity id is adopted; otherwise a new user is created,
// re-fetched to pick up the stored form, and given the starting balance.
// Binding the same principal twice returns the same user without a second
// create.
func (b *Binder) Bind(ctx context.Context, principal *identity.Principal) (*model.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current != nil && b.current.IdentityID == principal.ID {
		cp := *b.current
		return &cp, nil
	}

	// A cached profile from an earlier run short-circuits the lookup.
	if cached := b.restoreProfile(ctx, principal.ID); cached != nil {
		b.current = cached
		cp := *cached
		return &cp, nil
	}

	existing, err := b.gw.FindUserByIdentity(ctx, principal.ID)
	switch {
	case err == nil:
		b.adopt(ctx, existing)
		cp := *existing
		return &cp, nil
	case errors.Is(err, gateway.ErrNotFound):
		// First login for this identity, fall through to create.
	default:
		return nil, fmt.Errorf("session: lookup user: %w", err)
	}

	user, err := b.createUser(ctx, principal)
	if err != nil {
		return nil, err
	}
	b.adopt(ctx, user)
	cp := *user
	return &cp, nil
}

// Clear unbinds the current user and drops the cached profile.
func (b *Binder) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = nil
	if err := b.store.DeleteValues(ctx, profileKey); err != nil {
		return fmt.Errorf("session: clear profile: %w", err)
	}
	return nil
}

func (b *Binder) createUser(ctx context.Context, principal *identity.Principal) (*model.User, error) {
	suffix := principal.ID
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}

	user := &model.User{
		ID:            uuid.NewString(),
		IdentityID:    principal.ID,
		WalletAddress: principal.Wallet.Address,
		Email:         principal.Email,
		Username:      "User" + suffix,
		AvatarURL:     fmt.Sprintf(avatarURLFmt, principal.ID),
		CreatedAt:     time.Now().UTC(),
	}

	if err := b.gw.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("session: create user: %w", err)
	}

	// Re-fetch so the bound record matches the stored form exactly.
	stored, err := b.gw.GetUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("session: fetch created user: %w", err)
	}

	if err := b.gw.CreateBalance(ctx, &model.Balance{
		UserID:      stored.ID,
		TokenSymbol: b.tokenSymbol,
		Balance:     b.seedBalance,
		UpdatedAt:   time.Now().UTC(),
	}); err != nil {
		// The user exists either way; a missing balance surfaces later as
		// insufficient funds rather than blocking login.
		slog.Error("failed to seed starting balance", "user_id", stored.ID, "error", err)
	}

	slog.Info("user created",
		"user_id", stored.ID,
		"identity_id", principal.ID,
		"username", stored.Username,
	)
	return stored, nil
}

// adopt sets the current user and caches it in the local store.
func (b *Binder) adopt(ctx context.Context, u *model.User) {
	b.current = u
	raw, err := json.Marshal(u)
	if err != nil {
		return
	}
	if err := b.store.SetValue(ctx, profileKey, string(raw)); err != nil {
		slog.Warn("failed to cache user profile", "error", err)
	}
}

// restoreProfile returns the cached profile if it belongs to identityID.
// A stale or unreadable cache is discarded.
func (b *Binder) restoreProfile(ctx context.Context, identityID string) *model.User {
	raw, err := b.store.GetValue(ctx, profileKey)
	if err != nil {
		return nil
	}
	var u model.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil || u.IdentityID != identityID {
		b.store.DeleteValues(ctx, profileKey)
		return nil
	}
	return &u
}
