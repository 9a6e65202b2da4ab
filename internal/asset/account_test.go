package asset

import (
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var yesType = FullType{Kind: KindPredictionYes, ID: 1}
var noType = FullType{Kind: KindPredictionNo, ID: 1}

// --- Immutability ---

func TestAccount_AddDoesNotMutateReceiver(t *testing.T) {
	a := NewAccount(1).Add(d(100), NewSecurity(1, d(5), yesType))

	_ = a.Add(d(50), NewSecurity(1, d(3), yesType))

	if !a.Monies.Equal(d(100)) {
		t.Errorf("receiver monies changed: %s", a.Monies)
	}
	if len(a.Holdings) != 1 {
		t.Errorf("receiver holdings changed: %d", len(a.Holdings))
	}
}

func TestAccount_RemoveDoesNotMutateReceiver(t *testing.T) {
	a := NewAccount(1).Add(d(100), NewSecurity(1, d(5), yesType))

	if _, err := a.Remove(d(10), NewSecurity(1, d(2), yesType)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !a.Monies.Equal(d(100)) {
		t.Errorf("receiver monies changed: %s", a.Monies)
	}
	if !a.HoldingsOf(yesType).Equal(d(5)) {
		t.Errorf("receiver holdings changed: %s", a.HoldingsOf(yesType))
	}
}

func TestAccount_SharedBackingArrayNotAliased(t *testing.T) {
	base := NewAccount(1).Add(d(0), NewSecurity(1, d(5), yesType))

	// Two diverging additions from the same base must not clobber each
	// other through a shared backing array.
	left := base.Add(d(0), NewSecurity(1, d(1), yesType))
	right := base.Add(d(0), NewSecurity(1, d(2), noType))

	if !left.HoldingsOf(noType).IsZero() {
		t.Errorf("left branch sees right branch's holding")
	}
	if !right.HoldingsOf(yesType).Equal(d(5)) {
		t.Errorf("right branch corrupted: %s", right.HoldingsOf(yesType))
	}
}

// --- Removal semantics ---

func TestAccount_RemoveSplitsLargeHolding(t *testing.T) {
	a := NewAccount(1).Add(d(0), NewSecurity(1, d(10), yesType))

	next, err := a.Remove(decimal.Zero, NewSecurity(1, d(4), yesType))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !next.HoldingsOf(yesType).Equal(d(6)) {
		t.Errorf("expected 6 remaining, got %s", next.HoldingsOf(yesType))
	}
}

func TestAccount_RemoveSpansMultipleHoldings(t *testing.T) {
	a := NewAccount(1).
		Add(d(0), NewSecurity(1, d(3), yesType)).
		Add(d(0), NewSecurity(1, d(4), yesType))

	next, err := a.Remove(decimal.Zero, NewSecurity(1, d(5), yesType))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !next.HoldingsOf(yesType).Equal(d(2)) {
		t.Errorf("expected 2 remaining, got %s", next.HoldingsOf(yesType))
	}
}

func TestAccount_RemoveInsufficientFunds(t *testing.T) {
	a := NewAccount(1).Add(d(10), nil)
	if _, err := a.Remove(d(11), nil); err != ErrInsufficientFunds {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestAccount_RemoveInsufficientHoldings(t *testing.T) {
	a := NewAccount(1).Add(d(0), NewSecurity(1, d(2), yesType))
	if _, err := a.Remove(decimal.Zero, NewSecurity(1, d(3), yesType)); err != ErrInsufficientHoldings {
		t.Errorf("expected ErrInsufficientHoldings, got %v", err)
	}
}

// --- Covers ---

func TestAccount_Covers(t *testing.T) {
	a := NewAccount(1).
		Add(d(10), NewSecurity(1, d(3), yesType)).
		Add(d(0), NewSecurity(1, d(2), yesType))

	if !a.Covers(d(10), []Tradeable{NewSecurity(1, d(5), yesType)}) {
		t.Errorf("account should cover 10 cash + 5 YES")
	}
	if a.Covers(d(11), nil) {
		t.Errorf("account should not cover 11 cash")
	}
	if a.Covers(decimal.Zero, []Tradeable{NewSecurity(1, d(6), yesType)}) {
		t.Errorf("account should not cover 6 YES")
	}
}

// --- Payoffs ---

func TestSecurity_Payoff(t *testing.T) {
	yes := NewSecurity(1, d(10), yesType)
	no := NewSecurity(1, d(4), noType)

	if !yes.Payoff(WorldState{Outcome: true}).Equal(d(10)) {
		t.Errorf("YES pays count when outcome true")
	}
	if !yes.Payoff(WorldState{Outcome: false}).IsZero() {
		t.Errorf("YES pays nothing when outcome false")
	}
	if !no.Payoff(WorldState{Outcome: false}).Equal(d(4)) {
		t.Errorf("NO pays count when outcome false")
	}
	if !no.Payoff(WorldState{Outcome: true}).IsZero() {
		t.Errorf("NO pays nothing when outcome true")
	}
}

func TestShortShare_Payoff(t *testing.T) {
	short := NewShortShare(1, d(5), yesType, KindPredictionYes)
	if !short.Payoff(WorldState{Outcome: true}).Equal(d(-5)) {
		t.Errorf("short against YES owes count when YES wins")
	}
	if !short.Payoff(WorldState{Outcome: false}).IsZero() {
		t.Errorf("short against YES owes nothing when NO wins")
	}
}

func TestGoodItem_Ownership(t *testing.T) {
	g := NewGoodItem(d(1), FullType{Kind: KindGood, ID: 3})
	if _, held := g.AgentID(); held {
		t.Errorf("fresh goods are market-held")
	}
	owned := g.ToAgent(9)
	if id, held := owned.AgentID(); !held || id != 9 {
		t.Errorf("ToAgent should transfer ownership, got %d/%v", id, held)
	}
	if _, held := g.AgentID(); held {
		t.Errorf("ToAgent must not mutate the original")
	}
}

// --- Properties ---

func TestAccount_QuantityConserved(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := NewAccount(1)
		held := decimal.Zero

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			qty := decimal.NewFromInt(rapid.Int64Range(1, 50).Draw(t, "qty"))
			if rapid.Bool().Draw(t, "add") {
				a = a.Add(decimal.Zero, NewSecurity(1, qty, yesType))
				held = held.Add(qty)
				continue
			}
			next, err := a.Remove(decimal.Zero, NewSecurity(1, qty, yesType))
			if qty.GreaterThan(held) {
				if err != ErrInsufficientHoldings {
					t.Fatalf("over-removal must fail, got %v", err)
				}
				continue
			}
			if err != nil {
				t.Fatalf("removal of %s from %s failed: %v", qty, held, err)
			}
			a = next
			held = held.Sub(qty)
		}

		if !a.HoldingsOf(yesType).Equal(held) {
			t.Fatalf("holdings drifted: account=%s model=%s", a.HoldingsOf(yesType), held)
		}
	})
}

func TestAccount_CashNeverNegative(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := NewAccount(1)
		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			amt := decimal.NewFromInt(rapid.Int64Range(1, 100).Draw(t, "amt"))
			if rapid.Bool().Draw(t, "deposit") {
				a = a.Add(amt, nil)
			} else if next, err := a.Remove(amt, nil); err == nil {
				a = next
			}
			if a.Monies.IsNegative() {
				t.Fatalf("balance went negative: %s", a.Monies)
			}
		}
	})
}
