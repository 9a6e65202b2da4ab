package auction

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/amx/agent-exchange/internal/asset"
)

// SealedBidRule runs a single-shot private auction: bids accumulate for a
// fixed tick budget, nobody sees anyone else's bid, and the highest bid on
// each good wins when the clock runs out.
type SealedBidRule struct {
	budget int
	ticks  int
}

// NewSealedBidRule creates a sealed-bid rule closing after budget ticks.
func NewSealedBidRule(budget int) *SealedBidRule {
	if budget < 1 {
		budget = 1
	}
	return &SealedBidRule{budget: budget}
}

func (r *SealedBidRule) Tick(time.Time) { r.ticks++ }

// ResetActivity is a no-op: sealed-bid auctions run a fixed clock
// regardless of bidding activity.
func (r *SealedBidRule) ResetActivity() {}

func (r *SealedBidRule) IsOver() bool { return r.ticks >= r.budget }

func (r *SealedBidRule) TicksRemaining() int {
	if rem := r.budget - r.ticks; rem > 0 {
		return rem
	}
	return 0
}

func (r *SealedBidRule) IsPrivate() bool { return true }

func (r *SealedBidRule) Increment() decimal.Decimal { return decimal.Zero }

// Validate adds no constraints beyond the shape and reserve checks the
// auction itself applies.
func (r *SealedBidRule) Validate(Bid, []Bid, BidBundle) error { return nil }

func (r *SealedBidRule) Allocations(bids []Bid, items []asset.Tradeable) Allocation {
	winningBids, runnersUp := rank(bids, items)
	return Allocation{
		Winners:     allocate(winningBids, items),
		WinningBids: winningBids,
		RunnersUp:   runnersUp,
	}
}
