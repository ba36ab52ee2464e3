// Package limits enforces per-market and aggregate wager exposure caps
// for a single user.
package limits

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrPerMarketLimitExceeded is returned when a wager would push a
	// single market's exposure beyond the per-market maximum.
	ErrPerMarketLimitExceeded = errors.New("limits: per-market exposure limit exceeded")

	// ErrTotalLimitExceeded is returned when a wager would push the
	// user's aggregate exposure beyond the total maximum.
	ErrTotalLimitExceeded = errors.New("limits: total exposure limit exceeded")
)

// ExposureLimiter caps how much a user can stake per market and overall.
// A zero limit disables that check.
type ExposureLimiter struct {
	// MaxPerMarket is the maximum total stake in any single market.
	MaxPerMarket decimal.Decimal

	// MaxTotal is the maximum aggregate stake across all markets.
	MaxTotal decimal.Decimal
}

// NewExposureLimiter creates a limiter with the given caps.
func NewExposureLimiter(maxPerMarket, maxTotal decimal.Decimal) *ExposureLimiter {
	return &ExposureLimiter{
		MaxPerMarket: maxPerMarket,
		MaxTotal:     maxTotal,
	}
}

// Check validates whether staking amount on marketID respects the caps,
// given the user's existing stake per market. Returns nil when within
// limits.
func (l *ExposureLimiter) Check(
	marketID string,
	amount decimal.Decimal,
	existing map[string]decimal.Decimal,
) error {
	inMarket := existing[marketID].Add(amount)
	if l.MaxPerMarket.IsPositive() && inMarket.GreaterThan(l.MaxPerMarket) {
		return ErrPerMarketLimitExceeded
	}

	if l.MaxTotal.IsPositive() {
		total := amount
		for _, stake := range existing {
			total = total.Add(stake)
		}
		if total.GreaterThan(l.MaxTotal) {
			return ErrTotalLimitExceeded
		}
	}
	return nil
}
