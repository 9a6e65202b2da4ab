package auction

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/amx/agent-exchange/internal/asset"
)

var (
	// ErrBelowReserve is returned when a bid does not clear a good's floor.
	ErrBelowReserve = errors.New("auction: bid below reserve")

	// ErrBelowIncrement is returned when an iterative bid does not improve
	// the bidder's own prior bid by the rule's increment.
	ErrBelowIncrement = errors.New("auction: bid below required increment")

	// ErrWrongShape is returned when a bundle does not cover the auctioned
	// goods or prices a good that is not for sale.
	ErrWrongShape = errors.New("auction: bundle does not match auctioned goods")

	// ErrNonPositiveBid is returned for zero or negative prices.
	ErrNonPositiveBid = errors.New("auction: bid price must be positive")
)

// AllocationRule decides which bids win and drives the mechanism's clock.
type AllocationRule interface {
	// Tick advances the rule's clock by one sweep interval.
	Tick(now time.Time)

	// ResetActivity is called when a valid bid arrives. Inactivity-driven
	// mechanisms reset their idle counter here.
	ResetActivity()

	// IsOver reports whether the mechanism has run its course.
	IsOver() bool

	// TicksRemaining is the mechanism's estimate of ticks until close.
	TicksRemaining() int

	// IsPrivate reports whether other agents' bids are withheld from
	// announcements.
	IsPrivate() bool

	// Increment is the minimum improvement over a bidder's own prior bid;
	// zero for single-shot mechanisms.
	Increment() decimal.Decimal

	// Validate checks a bid against the rule, the bidder's prior bids, and
	// the reserve floor. A non-nil error rejects the bid without mutating
	// auction state.
	Validate(b Bid, prior []Bid, reserve BidBundle) error

	// Allocations ranks the merged bids (reserve included) and assigns the
	// auctioned items to winners.
	Allocations(bids []Bid, items []asset.Tradeable) Allocation
}

// Allocation is the outcome of ranking bids over the auctioned items.
type Allocation struct {
	// Winners maps each winning agent to the items allotted to it. The
	// exchange id never appears: a reserve "win" leaves the item unsold.
	Winners map[int64][]asset.Tradeable

	// WinningBids and RunnersUp record, per good, the best bid and the best
	// bid from a different agent. Payment rules price from these.
	WinningBids map[asset.FullType]Bid
	RunnersUp   map[asset.FullType]Bid
}

// PaymentRule computes what each winner owes, independent of how the
// allocation was decided.
type PaymentRule interface {
	Payments(alloc Allocation) map[int64]decimal.Decimal
}

// WithReserve merges the reserve bundle into the bid set as a synthetic
// bid from the exchange, so ranking enforces the floor.
func WithReserve(auctionID int64, bids []Bid, reserve BidBundle) []Bid {
	if len(reserve.Points) == 0 {
		return bids
	}
	merged := make([]Bid, len(bids), len(bids)+1)
	copy(merged, bids)
	return append(merged, Bid{
		ID:        "reserve",
		AgentID:   asset.ExchangeID,
		AuctionID: auctionID,
		Bundle:    reserve,
		Seq:       -1, // loses every tie against a real bid
	})
}

// rank scans bids in arrival order and records, per good, the highest bid
// and the highest bid by a different agent. Ties go to the earlier arrival.
func rank(bids []Bid, items []asset.Tradeable) (winners, runnersUp map[asset.FullType]Bid) {
	winners = make(map[asset.FullType]Bid)
	runnersUp = make(map[asset.FullType]Bid)

	for _, item := range items {
		typ := item.Type()
		for _, b := range bids {
			p, ok := b.Bundle.Point(typ)
			if !ok {
				continue
			}
			best, haveBest := winners[typ]
			if !haveBest || beats(p.Price, b.Seq, best, typ) {
				if haveBest && best.AgentID != b.AgentID {
					runnersUp[typ] = best
				}
				winners[typ] = b
				continue
			}
			if b.AgentID == winners[typ].AgentID {
				continue
			}
			second, haveSecond := runnersUp[typ]
			if !haveSecond || beats(p.Price, b.Seq, second, typ) {
				runnersUp[typ] = b
			}
		}
	}
	return winners, runnersUp
}

// beats reports whether a price/arrival pair outranks an incumbent bid on
// a good. The synthetic reserve bid (Seq -1) outranks nothing at equal
// price because real bids arrived "earlier" in ranking terms only when
// their Seq is lower; the reserve uses Seq -1 yet must still lose ties,
// so equality falls to the incumbent unless the incumbent is the reserve.
func beats(price decimal.Decimal, seq int64, incumbent Bid, typ asset.FullType) bool {
	ip, _ := incumbent.Bundle.Point(typ)
	if price.GreaterThan(ip.Price) {
		return true
	}
	if price.Equal(ip.Price) && incumbent.AgentID == asset.ExchangeID && seq >= 0 {
		return true
	}
	return false
}

// allocate turns ranked winners into the Winners item map, skipping goods
// retained by the reserve.
func allocate(winningBids map[asset.FullType]Bid, items []asset.Tradeable) map[int64][]asset.Tradeable {
	winners := make(map[int64][]asset.Tradeable)
	for _, item := range items {
		wb, ok := winningBids[item.Type()]
		if !ok || wb.AgentID == asset.ExchangeID {
			continue
		}
		winners[wb.AgentID] = append(winners[wb.AgentID], item)
	}
	return winners
}

// validateShape checks that a bundle prices exactly goods that are for sale
// and clears the reserve on each.
func validateShape(b Bid, items []asset.Tradeable, reserve BidBundle) error {
	if len(b.Bundle.Points) == 0 {
		return ErrWrongShape
	}
	forSale := make(map[asset.FullType]bool, len(items))
	for _, item := range items {
		forSale[item.Type()] = true
	}
	for typ, p := range b.Bundle.Points {
		if !forSale[typ] {
			return ErrWrongShape
		}
		if !p.Price.IsPositive() {
			return ErrNonPositiveBid
		}
		if floor, ok := reserve.Point(typ); ok && p.Price.LessThan(floor.Price) {
			return ErrBelowReserve
		}
	}
	return nil
}

// bestOwnPrice returns the bidder's best prior price on a good, if any.
func bestOwnPrice(agentID int64, typ asset.FullType, prior []Bid) (decimal.Decimal, bool) {
	best := decimal.Zero
	found := false
	for _, b := range prior {
		if b.AgentID != agentID {
			continue
		}
		if p, ok := b.Bundle.Point(typ); ok && (!found || p.Price.GreaterThan(best)) {
			best = p.Price
			found = true
		}
	}
	return best, found
}
