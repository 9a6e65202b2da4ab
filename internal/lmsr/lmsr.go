// Package lmsr implements the Logarithmic Market Scoring Rule (LMSR)
// automated market maker for binary-outcome markets.
//
// Two backends are provided: Backend, the classic fixed-liquidity rule
// with loss bounded by b * ln(2), and LiquiditySensitive, which scales
// effective depth with traded volume and trade count so markets start
// responsive and stiffen as they age. The scaling intentionally voids the
// classic bounded-loss guarantee.
//
// All monetary values use shopspring/decimal — never float64 for money.
// Internal transcendental math uses the log-sum-exp trick for numerical
// stability, with results immediately converted to decimal.
//
// Reference: Hanson, R. (2003) "Combinatorial Information Market Design"
package lmsr

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidLiquidity is returned when b <= 0.
	ErrInvalidLiquidity = errors.New("lmsr: liquidity parameter b must be positive")

	// ErrInvalidAlpha is returned when the liquidity-sensitivity factor <= 0.
	ErrInvalidAlpha = errors.New("lmsr: liquidity sensitivity alpha must be positive")

	// ErrLimitExceeded is returned when a fill's average price would violate
	// the caller's limit price.
	ErrLimitExceeded = errors.New("lmsr: fill price exceeds limit")

	// ErrZeroQuantity is returned when a trade of zero shares is requested.
	ErrZeroQuantity = errors.New("lmsr: quantity must be non-zero")

	// MinPrice is the lowest allowed quoted price (probability floor).
	MinPrice = decimal.NewFromFloat(0.001)

	// MaxPrice is the highest allowed quoted price (probability ceiling).
	MaxPrice = decimal.NewFromFloat(0.999)

	// Scale is the number of decimal places for price/cost rounding.
	Scale int32 = 8
)

// Fill describes an executed trade against a market maker.
type Fill struct {
	Cost     decimal.Decimal // signed: positive = trader pays
	AvgPrice decimal.Decimal // per-share execution price
	PriceYes decimal.Decimal // post-trade YES price
	PriceNo  decimal.Decimal // post-trade NO price
}

// MarketMaker quotes and executes two-outcome trades against inexhaustible
// inventory. Implementations are safe for concurrent use.
type MarketMaker interface {
	// B returns the current effective liquidity parameter.
	B() decimal.Decimal

	// Quantities returns the cumulative signed YES and NO share quantities.
	Quantities() (qYes, qNo decimal.Decimal)

	// Price returns the instantaneous price of one side, in (0, 1).
	// Price(true) + Price(false) is always 1.
	Price(yes bool) decimal.Decimal

	// Ask quotes the signed cost of buying n shares on one side.
	Ask(yes bool, n decimal.Decimal) decimal.Decimal

	// Bid quotes the signed cost of selling n shares on one side
	// (negative = payout to the trader).
	Bid(yes bool, n decimal.Decimal) decimal.Decimal

	// Execute trades n shares on one side (negative n sells). limit caps
	// the average fill price for buys and floors it for sells; zero means
	// no limit. The quote and the state update are atomic.
	Execute(yes bool, n, limit decimal.Decimal) (Fill, error)

	// HowMany returns the maximum share quantity that can be bought on one
	// side before the side's price reaches target. Zero when the price is
	// already past target.
	HowMany(target decimal.Decimal, yes bool) decimal.Decimal

	// BudgetToShares returns the share quantity on one side affordable for
	// the given cash budget.
	BudgetToShares(budget decimal.Decimal, yes bool) decimal.Decimal
}

// logSumExp computes ln(e^x + e^y) without overflow: both exponents are
// shifted by the maximum so their arguments are <= 0.
func logSumExp(x, y float64) float64 {
	m := math.Max(x, y)
	if math.IsInf(m, -1) {
		return math.Inf(-1)
	}
	return m + math.Log(math.Exp(x-m)+math.Exp(y-m))
}

// costAt computes C(qYes, qNo) = b * ln(e^(qYes/b) + e^(qNo/b)).
func costAt(b, qYes, qNo float64) float64 {
	return b * logSumExp(qYes/b, qNo/b)
}

// priceYesAt computes the softmax price of YES with max-subtraction.
func priceYesAt(b, qYes, qNo float64) float64 {
	y := qYes / b
	n := qNo / b
	m := math.Max(y, n)
	expYes := math.Exp(y - m)
	expNo := math.Exp(n - m)
	return expYes / (expYes + expNo)
}

// clampPrice bounds a computed price to [MinPrice, MaxPrice].
func clampPrice(p decimal.Decimal) decimal.Decimal {
	if p.LessThan(MinPrice) {
		return MinPrice
	}
	if p.GreaterThan(MaxPrice) {
		return MaxPrice
	}
	return p
}

// round converts a float64 intermediate back to decimal at Scale.
func round(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(Scale)
}

// checkLimit validates a fill's average price against a limit price.
// Buys must fill at or below the limit, sells at or above it.
func checkLimit(n, avg float64, limit decimal.Decimal) error {
	if limit.IsZero() {
		return nil
	}
	lf := limit.InexactFloat64()
	if n > 0 && avg > lf {
		return ErrLimitExceeded
	}
	if n < 0 && avg < lf {
		return ErrLimitExceeded
	}
	return nil
}
