// Package asset defines the value types the exchange trades and accounts
// for: instrument identities, tradeable holdings, immutable accounts, and
// the append-only transaction ledger.
//
// All monetary values use shopspring/decimal — never float64 for money.
package asset

import "fmt"

// Kind classifies a tradeable instrument.
type Kind string

const (
	// KindGood is a plain auctionable good with no terminal payoff.
	KindGood Kind = "GOOD"

	// KindPredictionYes pays 1 per share when the market resolves true.
	KindPredictionYes Kind = "PRED_YES"

	// KindPredictionNo pays 1 per share when the market resolves false.
	KindPredictionNo Kind = "PRED_NO"

	// KindShort is a borrowed-and-sold position; it owes 1 per share when
	// the shorted outcome resolves true.
	KindShort Kind = "SHORT"
)

// FullType is the immutable identity of one instrument instance.
// FullType values compare with ==.
type FullType struct {
	Kind Kind  `json:"kind"`
	ID   int64 `json:"id"`
}

func (t FullType) String() string {
	return fmt.Sprintf("(%s %d)", t.Kind, t.ID)
}

// WorldState is the resolved outcome a binary market settles against.
type WorldState struct {
	Outcome bool `json:"outcome"`
}
