package identity_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udoglabs/wager-engine/internal/identity"
	"github.com/udoglabs/wager-engine/internal/localstore"
)

func newProvider(t *testing.T) (*identity.SimProvider, *localstore.Store) {
	t.Helper()
	store, err := localstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	p, err := identity.NewSimProvider(context.Background(), store)
	require.NoError(t, err)
	return p, store
}

func TestSimProvider_LoginLogout(t *testing.T) {
	p, _ := newProvider(t)
	ctx := context.Background()

	assert.True(t, p.Ready())
	assert.False(t, p.Authenticated())
	_, err := p.Principal()
	assert.ErrorIs(t, err, identity.ErrNotAuthenticated)

	principal, err := p.Login(ctx)
	require.NoError(t, err)
	assert.True(t, p.Authenticated())
	assert.Regexp(t, `^auth_\d+$`, principal.ID)
	assert.Equal(t, "0x742d35Cc6634C0532925a3b8D09A80C1f34Dd4f1", principal.Wallet.Address)
	assert.EqualValues(t, 8453, principal.Wallet.ChainID)
	assert.Equal(t, "user@example.com", principal.Email)

	// Second login while authenticated keeps the same identity.
	again, err := p.Login(ctx)
	require.NoError(t, err)
	assert.Equal(t, principal.ID, again.ID)

	require.NoError(t, p.Logout(ctx))
	assert.False(t, p.Authenticated())

	// Logout while logged out is a no-op.
	require.NoError(t, p.Logout(ctx))
}

func TestSimProvider_SessionSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	store, err := localstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	p1, err := identity.NewSimProvider(ctx, store)
	require.NoError(t, err)
	principal, err := p1.Login(ctx)
	require.NoError(t, err)

	// A new provider over the same store resumes the session.
	p2, err := identity.NewSimProvider(ctx, store)
	require.NoError(t, err)
	assert.True(t, p2.Authenticated())
	restored, err := p2.Principal()
	require.NoError(t, err)
	assert.Equal(t, principal.ID, restored.ID)
}

func TestSimProvider_CorruptSessionDropped(t *testing.T) {
	ctx := context.Background()
	store, err := localstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.SetValue(ctx, "identity_session", "{not json"))

	p, err := identity.NewSimProvider(ctx, store)
	require.NoError(t, err)
	assert.True(t, p.Ready())
	assert.False(t, p.Authenticated())
}
