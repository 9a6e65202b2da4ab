package asset

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds is returned when a removal would overdraw cash.
	ErrInsufficientFunds = errors.New("asset: insufficient funds")

	// ErrInsufficientHoldings is returned when a removal asks for more of an
	// instrument than the account holds.
	ErrInsufficientHoldings = errors.New("asset: insufficient holdings")
)

// Account is one agent's cash balance and holdings.
//
// Accounts are immutable values: every mutator returns a new Account and
// leaves the receiver untouched. Callers read the current value, compute a
// replacement, and swap it back into the bank under the agent's lock. That
// read-modify-replace discipline is what keeps concurrent bookkeeping
// correct without any in-place mutation.
type Account struct {
	AgentID  int64
	Monies   decimal.Decimal
	Holdings []Tradeable
}

// NewAccount creates an empty account for agentID.
func NewAccount(agentID int64) Account {
	return Account{AgentID: agentID, Monies: decimal.Zero}
}

// clone copies the account with a fresh holdings slice so the original's
// backing array is never shared with the result.
func (a Account) clone() Account {
	holdings := make([]Tradeable, len(a.Holdings))
	copy(holdings, a.Holdings)
	a.Holdings = holdings
	return a
}

// Add returns a new Account with monies added and, when t is non-nil, the
// tradeable appended.
func (a Account) Add(monies decimal.Decimal, t Tradeable) Account {
	next := a.clone()
	next.Monies = next.Monies.Add(monies)
	if t != nil {
		next.Holdings = append(next.Holdings, t)
	}
	return next
}

// AddAll returns a new Account with monies and every tradeable added.
func (a Account) AddAll(monies decimal.Decimal, ts []Tradeable) Account {
	next := a.clone()
	next.Monies = next.Monies.Add(monies)
	next.Holdings = append(next.Holdings, ts...)
	return next
}

// Remove returns a new Account with monies deducted and, when t is non-nil,
// t.Count() units of t.Type() removed from holdings. A holding larger than
// the remaining amount to remove is split rather than dropped.
func (a Account) Remove(monies decimal.Decimal, t Tradeable) (Account, error) {
	next := a.clone()
	next.Monies = next.Monies.Sub(monies)
	if next.Monies.IsNegative() {
		return Account{}, ErrInsufficientFunds
	}
	if t == nil {
		return next, nil
	}

	remaining := t.Count()
	kept := next.Holdings[:0]
	for _, h := range next.Holdings {
		if h.Type() != t.Type() || remaining.IsZero() {
			kept = append(kept, h)
			continue
		}
		if h.Count().GreaterThan(remaining) {
			kept = append(kept, h.Split(h.Count().Sub(remaining)))
			remaining = decimal.Zero
			continue
		}
		remaining = remaining.Sub(h.Count())
	}
	if remaining.IsPositive() {
		return Account{}, ErrInsufficientHoldings
	}
	next.Holdings = kept
	return next, nil
}

// HoldingsOf returns the total quantity of the given instrument held.
func (a Account) HoldingsOf(typ FullType) decimal.Decimal {
	total := decimal.Zero
	for _, h := range a.Holdings {
		if h.Type() == typ {
			total = total.Add(h.Count())
		}
	}
	return total
}

// Covers reports whether the account holds at least the given cash and every
// listed tradeable quantity. Used as the isSatisfied check before a trade
// settles.
func (a Account) Covers(monies decimal.Decimal, ts []Tradeable) bool {
	if a.Monies.LessThan(monies) {
		return false
	}
	need := make(map[FullType]decimal.Decimal)
	for _, t := range ts {
		need[t.Type()] = need[t.Type()].Add(t.Count())
	}
	for typ, qty := range need {
		if a.HoldingsOf(typ).LessThan(qty) {
			return false
		}
	}
	return true
}
