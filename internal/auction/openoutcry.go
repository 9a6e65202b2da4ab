package auction

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/amx/agent-exchange/internal/asset"
)

// OpenOutcryRule runs an iterative English auction: standing high bids are
// public, a new bid from an agent must improve that agent's own prior best
// by the increment, and the auction closes after a stretch of ticks with no
// bidding.
type OpenOutcryRule struct {
	increment decimal.Decimal
	patience  int
	idle      int
}

// NewOpenOutcryRule creates an open-outcry rule closing after patience
// consecutive ticks without a valid bid.
func NewOpenOutcryRule(increment decimal.Decimal, patience int) *OpenOutcryRule {
	if patience < 1 {
		patience = 1
	}
	if increment.IsNegative() {
		increment = decimal.Zero
	}
	return &OpenOutcryRule{increment: increment, patience: patience}
}

func (r *OpenOutcryRule) Tick(time.Time) { r.idle++ }

func (r *OpenOutcryRule) ResetActivity() { r.idle = 0 }

func (r *OpenOutcryRule) IsOver() bool { return r.idle >= r.patience }

func (r *OpenOutcryRule) TicksRemaining() int {
	if rem := r.patience - r.idle; rem > 0 {
		return rem
	}
	return 0
}

func (r *OpenOutcryRule) IsPrivate() bool { return false }

func (r *OpenOutcryRule) Increment() decimal.Decimal { return r.increment }

// Validate additionally requires each point to improve the bidder's own
// prior best on that good by at least the increment. Other agents' bids
// impose no floor: an agent may bid below the standing high, it just
// cannot crawl by less than the increment against itself.
func (r *OpenOutcryRule) Validate(b Bid, prior []Bid, _ BidBundle) error {
	for typ, p := range b.Bundle.Points {
		own, ok := bestOwnPrice(b.AgentID, typ, prior)
		if !ok {
			continue
		}
		if p.Price.LessThan(own.Add(r.increment)) {
			return ErrBelowIncrement
		}
	}
	return nil
}

func (r *OpenOutcryRule) Allocations(bids []Bid, items []asset.Tradeable) Allocation {
	winningBids, runnersUp := rank(bids, items)
	return Allocation{
		Winners:     allocate(winningBids, items),
		WinningBids: winningBids,
		RunnersUp:   runnersUp,
	}
}
