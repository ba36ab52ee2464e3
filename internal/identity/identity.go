// Package identity binds the service to an external wallet-auth provider.
// The real provider is out of scope; SimProvider mints deterministic demo
// identities the way the hosted auth sandbox does.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/udoglabs/wager-engine/internal/localstore"
)

// ErrNotAuthenticated is returned when no identity session is active.
var ErrNotAuthenticated = errors.New("identity: not authenticated")

// Demo identity constants, matching the auth provider's sandbox mode.
const (
	demoWalletAddress = "0x742d35Cc6634C0532925a3b8D09A80C1f34Dd4f1"
	demoChainID       = 8453
	demoEmail         = "user@example.com"
)

// sessionKey is the local-store key holding the serialized principal.
const sessionKey = "identity_session"

// Wallet is the chain account attached to a principal.
type Wallet struct {
	Address string `json:"address"`
	ChainID int64  `json:"chain_id"`
}

// Principal is an authenticated identity as reported by the provider.
// Its ID is the stable external identifier users are looked up by.
type Principal struct {
	ID        string    `json:"id"`
	Wallet    Wallet    `json:"wallet"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Provider is the wallet-auth surface the rest of the service depends on.
type Provider interface {
	// Ready reports whether the provider finished restoring any persisted
	// session. Callers should not trust Authenticated before Ready.
	Ready() bool
	Authenticated() bool
	// Principal returns the active identity, or ErrNotAuthenticated.
	Principal() (*Principal, error)
	Login(ctx context.Context) (*Principal, error)
	Logout(ctx context.Context) error
}

// SimProvider simulates the wallet-auth provider. Sessions persist in the
// local store so a restart resumes the same identity.
type SimProvider struct {
	store *localstore.Store

	mu      sync.RWMutex
	ready   bool
	current *Principal
}

// NewSimProvider restores any persisted session from the store.
func NewSimProvider(ctx context.Context, store *localstore.Store) (*SimProvider, error) {
	p := &SimProvider{store: store}

	raw, err := store.GetValue(ctx, sessionKey)
	switch {
	case errors.Is(err, localstore.ErrNoValue):
		// No persisted session, start logged out.
	case err != nil:
		return nil, fmt.Errorf("identity: restore session: %w", err)
	default:
		var principal Principal
		if jsonErr := json.Unmarshal([]byte(raw), &principal); jsonErr != nil {
			// Corrupt session state is dropped, not fatal.
			store.DeleteValues(ctx, sessionKey)
		} else {
			p.current = &principal
		}
	}

	p.ready = true
	return p, nil
}

func (p *SimProvider) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ready
}

func (p *SimProvider) Authenticated() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current != nil
}

func (p *SimProvider) Principal() (*Principal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return nil, ErrNotAuthenticated
	}
	cp := *p.current
	return &cp, nil
}

// Login mints a new demo identity, or returns the active one unchanged.
// The identity id is derived from the login timestamp, so each cold login
// produces a distinct principal.
func (p *SimProvider) Login(ctx context.Context) (*Principal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil {
		cp := *p.current
		return &cp, nil
	}

	now := time.Now().UTC()
	principal := &Principal{
		ID: fmt.Sprintf("auth_%d", now.UnixMilli()),
		Wallet: Wallet{
			Address: demoWalletAddress,
			ChainID: demoChainID,
		},
		Email:     demoEmail,
		CreatedAt: now,
	}

	raw, err := json.Marshal(principal)
	if err != nil {
		return nil, fmt.Errorf("identity: marshal session: %w", err)
	}
	if err := p.store.SetValue(ctx, sessionKey, string(raw)); err != nil {
		return nil, fmt.Errorf("identity: persist session: %w", err)
	}

	p.current = principal
	cp := *principal
	return &cp, nil
}

// Logout drops the active session. Logging out while logged out is a no-op.
func (p *SimProvider) Logout(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return nil
	}
	if err := p.store.DeleteValues(ctx, sessionKey); err != nil {
		return fmt.Errorf("identity: clear session: %w", err)
	}
	p.current = nil
	return nil
}
