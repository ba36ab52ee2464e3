package localstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udoglabs/wager-engine/internal/localstore"
	"github.com/udoglabs/wager-engine/internal/model"
)

func openStore(t *testing.T) *localstore.Store {
	t.Helper()
	s, err := localstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func makeAlert(id, coinID string, target float64, condition string) *model.Alert {
	return &model.Alert{
		ID:          id,
		CoinID:      coinID,
		CoinName:    "Bitcoin",
		CoinSymbol:  "BTC",
		TargetPrice: decimal.NewFromFloat(target),
		Condition:   condition,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestStore_SessionValues(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, err := s.GetValue(ctx, "identity_session")
	assert.ErrorIs(t, err, localstore.ErrNoValue)

	require.NoError(t, s.SetValue(ctx, "identity_session", `{"id":"auth_1"}`))
	require.NoError(t, s.SetValue(ctx, "user_profile", `{"id":"u1"}`))

	v, err := s.GetValue(ctx, "identity_session")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"auth_1"}`, v)

	// Upsert overwrites.
	require.NoError(t, s.SetValue(ctx, "identity_session", `{"id":"auth_2"}`))
	v, err = s.GetValue(ctx, "identity_session")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"auth_2"}`, v)

	// Both keys go in one delete.
	require.NoError(t, s.DeleteValues(ctx, "identity_session", "user_profile"))
	_, err = s.GetValue(ctx, "identity_session")
	assert.ErrorIs(t, err, localstore.ErrNoValue)
	_, err = s.GetValue(ctx, "user_profile")
	assert.ErrorIs(t, err, localstore.ErrNoValue)
}

func TestStore_AlertLifecycle(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveAlert(ctx, makeAlert("a1", "bitcoin", 100000, model.AlertAbove)))
	require.NoError(t, s.SaveAlert(ctx, makeAlert("a2", "ethereum", 2000, model.AlertBelow)))

	alerts, err := s.ListAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 2)

	pending, err := s.PendingAlerts(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	firedAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.MarkTriggered(ctx, "a1", firedAt))

	pending, err = s.PendingAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a2", pending[0].ID)

	alerts, err = s.ListAlerts(ctx)
	require.NoError(t, err)
	for _, a := range alerts {
		if a.ID == "a1" {
			assert.True(t, a.Triggered)
			require.NotNil(t, a.TriggeredAt)
		}
	}

	require.NoError(t, s.DeleteAlert(ctx, "a2"))
	assert.ErrorIs(t, s.DeleteAlert(ctx, "a2"), localstore.ErrNoValue)
}

func TestStore_TargetPriceRoundTrips(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveAlert(ctx, makeAlert("a1", "dogecoin", 0.42, model.AlertAbove)))

	alerts, err := s.ListAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.True(t, alerts[0].TargetPrice.Equal(decimal.NewFromFloat(0.42)),
		"got %s", alerts[0].TargetPrice)
}
