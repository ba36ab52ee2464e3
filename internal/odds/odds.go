// Package odds converts between prices, decimal odds, and payouts for
// binary outcome markets.
//
// A price is the implied probability of the outcome in [0, 1]. Decimal
// odds are its reciprocal: a wager of A at price P pays A/P if the
// outcome resolves in the wager's favor.
//
// All monetary values use shopspring/decimal — never float64 for money.
package odds

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInvalidPrice is returned when a price is outside (0, 1].
var ErrInvalidPrice = errors.New("odds: price must be in (0, 1]")

// Scale is the number of decimal places for derived odds and payouts.
const Scale int32 = 8

var one = decimal.NewFromInt(1)

// Valid reports whether price is a usable implied probability.
func Valid(price decimal.Decimal) bool {
	return price.GreaterThan(decimal.Zero) && price.LessThanOrEqual(one)
}

// Decimal converts a price to decimal odds (1/price).
func Decimal(price decimal.Decimal) (decimal.Decimal, error) {
	if !Valid(price) {
		return decimal.Zero, ErrInvalidPrice
	}
	return one.DivRound(price, Scale), nil
}

// Payout returns the total return of a wager at the given price,
// stake included: amount/price.
func Payout(amount, price decimal.Decimal) (decimal.Decimal, error) {
	if !Valid(price) {
		return decimal.Zero, ErrInvalidPrice
	}
	return amount.DivRound(price, Scale), nil
}

// Profit returns the net gain of a winning wager: payout minus stake.
func Profit(amount, price decimal.Decimal) (decimal.Decimal, error) {
	payout, err := Payout(amount, price)
	if err != nil {
		return decimal.Zero, err
	}
	return payout.Sub(amount), nil
}

// Implied converts decimal odds back to a price (1/odds).
func Implied(dec decimal.Decimal) (decimal.Decimal, error) {
	if dec.LessThan(one) {
		return decimal.Zero, ErrInvalidPrice
	}
	return one.DivRound(dec, Scale), nil
}
