// Package risk implements exposure limits across instrument kinds.
//
// An agent buying YES across twenty prediction markets holds correlated
// directional risk even though each single position looks small. The
// limiter buckets net exposure by instrument kind and enforces both a
// per-kind and a total cap.
package risk

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrKindLimitExceeded is returned when a trade would push an agent's
	// aggregate position in one instrument kind beyond the per-kind maximum.
	ErrKindLimitExceeded = errors.New("risk: per-kind exposure limit exceeded")

	// ErrTotalLimitExceeded is returned when a trade would push an agent's
	// exposure summed across all kinds beyond the total maximum.
	ErrTotalLimitExceeded = errors.New("risk: total exposure limit exceeded")
)

// ExposureLimiter enforces directional exposure limits per agent.
type ExposureLimiter struct {
	// MaxPerKind is the maximum absolute net exposure in any one kind.
	MaxPerKind decimal.Decimal

	// MaxTotal is the maximum aggregate absolute exposure across kinds.
	MaxTotal decimal.Decimal
}

// NewExposureLimiter creates a limiter with the given per-kind and total
// exposure limits.
func NewExposureLimiter(maxPerKind, maxTotal decimal.Decimal) *ExposureLimiter {
	return &ExposureLimiter{
		MaxPerKind: maxPerKind,
		MaxTotal:   maxTotal,
	}
}

// CheckLimit validates whether a trade respects exposure limits.
//
// Parameters:
//   - targetKind: exposure bucket of the instrument being traded
//   - exposureDelta: signed change in exposure (+YES / -NO direction)
//   - existing: map of kind → current net exposure for this agent
//
// Returns nil if the trade is within limits, or an error describing the
// violation.
func (l *ExposureLimiter) CheckLimit(
	targetKind string,
	exposureDelta decimal.Decimal,
	existing map[string]decimal.Decimal,
) error {
	// 1. Per-kind limit.
	newPosition := existing[targetKind].Add(exposureDelta)
	if newPosition.Abs().GreaterThan(l.MaxPerKind) {
		return ErrKindLimitExceeded
	}

	// 2. Total exposure: sum |exposure| across every kind.
	total := newPosition.Abs()
	for kind, exposure := range existing {
		if kind == targetKind {
			continue // already counted via newPosition above
		}
		total = total.Add(exposure.Abs())
	}
	if total.GreaterThan(l.MaxTotal) {
		return ErrTotalLimitExceeded
	}

	return nil
}
