package gateway_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/udoglabs/wager-engine/internal/gateway"
	"github.com/udoglabs/wager-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func seedUser(t *testing.T, gw gateway.Gateway, id, identityID string) *model.User {
	t.Helper()
	u := &model.User{
		ID:            id,
		IdentityID:    identityID,
		WalletAddress: "0x742d35Cc6634C0532925a3b8D09A80C1f34Dd4f1",
		Email:         "user@example.com",
		Username:      "User" + id,
		CreatedAt:     time.Now().UTC(),
	}
	if err := gw.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return u
}

func seedOpenMarket(t *testing.T, gw gateway.Gateway, id string) *model.Market {
	t.Helper()
	m := &model.Market{
		ID:        id,
		Title:     "Will Bitcoin reach $100,000 by end of 2025?",
		Category:  "Bitcoin",
		Status:    model.MarketOpen,
		YesPrice:  d(0.5),
		NoPrice:   d(0.5),
		Deadline:  time.Now().UTC().Add(24 * time.Hour),
		CreatedAt: time.Now().UTC(),
	}
	if err := gw.CreateMarket(context.Background(), m); err != nil {
		t.Fatalf("failed to seed market: %v", err)
	}
	return m
}

func TestMemoryGateway_FindUserByIdentity(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	seedUser(t, gw, "u1", "auth_123")

	u, err := gw.FindUserByIdentity(context.Background(), "auth_123")
	if err != nil {
		t.Fatalf("expected user, got error: %v", err)
	}
	if u.ID != "u1" {
		t.Errorf("expected u1, got %s", u.ID)
	}

	_, err = gw.FindUserByIdentity(context.Background(), "auth_missing")
	if !errors.Is(err, gateway.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryGateway_DuplicateIdentityRejected(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	seedUser(t, gw, "u1", "auth_123")

	err := gw.CreateUser(context.Background(), &model.User{ID: "u2", IdentityID: "auth_123"})
	if !errors.Is(err, gateway.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestMemoryGateway_SubtractBalance(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	seedUser(t, gw, "u1", "auth_123")
	if err := gw.CreateBalance(context.Background(), &model.Balance{
		UserID: "u1", TokenSymbol: "UDOG", Balance: d(1000),
	}); err != nil {
		t.Fatalf("create balance: %v", err)
	}

	if err := gw.SubtractBalance(context.Background(), "u1", "UDOG", d(500)); err != nil {
		t.Fatalf("subtract: %v", err)
	}

	b, err := gw.GetBalance(context.Background(), "u1", "UDOG")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if !b.Balance.Equal(d(500)) {
		t.Errorf("expected 500, got %s", b.Balance)
	}

	// Overdraw is rejected and leaves the balance untouched.
	err = gw.SubtractBalance(context.Background(), "u1", "UDOG", d(501))
	if !errors.Is(err, gateway.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
	b, _ = gw.GetBalance(context.Background(), "u1", "UDOG")
	if !b.Balance.Equal(d(500)) {
		t.Errorf("balance changed on failed subtract: %s", b.Balance)
	}
}

func TestMemoryGateway_CreatePositionBumpsVolume(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	seedUser(t, gw, "u1", "auth_123")
	m := seedOpenMarket(t, gw, "m1")

	err := gw.CreatePosition(context.Background(), &model.Position{
		ID: "p1", UserID: "u1", MarketID: m.ID,
		Side: model.SideYes, Shares: d(500), Price: d(0.5),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create position: %v", err)
	}

	got, _ := gw.GetMarket(context.Background(), m.ID)
	if !got.TotalVolume.Equal(d(500)) {
		t.Errorf("expected volume 500, got %s", got.TotalVolume)
	}
}

func TestMemoryGateway_CreatePositionUnknownMarket(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	err := gw.CreatePosition(context.Background(), &model.Position{
		ID: "p1", UserID: "u1", MarketID: "nope",
		Side: model.SideYes, Shares: d(1), Price: d(0.5),
	})
	if !errors.Is(err, gateway.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryGateway_ListsNewestFirst(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	seedUser(t, gw, "u1", "auth_123")
	m := seedOpenMarket(t, gw, "m1")

	for i, id := range []string{"p1", "p2", "p3"} {
		err := gw.CreatePosition(context.Background(), &model.Position{
			ID: id, UserID: "u1", MarketID: m.ID,
			Side: model.SideYes, Shares: d(1), Price: d(0.5),
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	positions, err := gw.ListPositionsByUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list positions: %v", err)
	}
	if len(positions) != 3 {
		t.Fatalf("expected 3 positions, got %d", len(positions))
	}
	if positions[0].ID != "p3" {
		t.Errorf("expected newest first, got %s", positions[0].ID)
	}
}

func TestSeedDemoMarkets_Idempotent(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	if err := gateway.SeedDemoMarkets(context.Background(), gw); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := gateway.SeedDemoMarkets(context.Background(), gw); err != nil {
		t.Fatalf("reseed: %v", err)
	}

	markets, err := gw.ListMarkets(context.Background())
	if err != nil {
		t.Fatalf("list markets: %v", err)
	}
	if len(markets) != 3 {
		t.Errorf("expected 3 demo markets, got %d", len(markets))
	}
	for _, m := range markets {
		if m.Status != model.MarketOpen {
			t.Errorf("market %s not open: %s", m.ID, m.Status)
		}
	}
}
