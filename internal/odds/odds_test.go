package odds

import (
	"testing"

	"github.com/shopspring/decimal"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestDecimal_EvenMoney(t *testing.T) {
	o, err := Decimal(d(0.5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !o.Equal(d(2)) {
		t.Errorf("expected odds 2 at price 0.5, got %s", o)
	}
}

func TestDecimal_InvalidPrices(t *testing.T) {
	for _, p := range []float64{0, -0.1, 1.01} {
		if _, err := Decimal(d(p)); err != ErrInvalidPrice {
			t.Errorf("price %v: expected ErrInvalidPrice, got %v", p, err)
		}
	}
}

func TestPayout_HalvesAndDoubles(t *testing.T) {
	payout, err := Payout(d(500), d(0.5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !payout.Equal(d(1000)) {
		t.Errorf("expected payout 1000, got %s", payout)
	}

	// A certain outcome pays back exactly the stake.
	payout, _ = Payout(d(500), d(1))
	if !payout.Equal(d(500)) {
		t.Errorf("expected payout 500 at price 1, got %s", payout)
	}
}

func TestProfit(t *testing.T) {
	profit, err := Profit(d(500), d(0.25))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 500/0.25 = 2000 payout, 1500 profit.
	if !profit.Equal(d(1500)) {
		t.Errorf("expected profit 1500, got %s", profit)
	}
}

func TestImplied_RoundTrips(t *testing.T) {
	price := d(0.42)
	dec, err := Decimal(price)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	back, err := Implied(dec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if back.Sub(price).Abs().GreaterThan(d(0.0000001)) {
		t.Errorf("round trip drifted: %s -> %s -> %s", price, dec, back)
	}
}

func TestImplied_RejectsSubEvenOdds(t *testing.T) {
	if _, err := Implied(d(0.9)); err != ErrInvalidPrice {
		t.Errorf("expected ErrInvalidPrice, got %v", err)
	}
}
