package auction

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/amx/agent-exchange/internal/asset"
)

// ErrAuctionClosed is returned for bids against a closed auction.
var ErrAuctionClosed = errors.New("auction: closed")

// BidRequest is the per-agent announcement of an auction's standing state,
// sent after every accepted bid and on each sweep while the auction is open.
type BidRequest struct {
	AuctionID      int64                              `json:"auction_id"`
	Goods          []asset.FullType                   `json:"goods"`
	Reserve        map[asset.FullType]BidPoint        `json:"reserve,omitempty"`
	Increment      decimal.Decimal                    `json:"increment"`
	TicksRemaining int                                `json:"ticks_remaining"`
	Open           bool                               `json:"open"`
	High           map[asset.FullType]BidPoint        `json:"high,omitempty"`
	Yours          map[asset.FullType]decimal.Decimal `json:"yours,omitempty"`
}

// Auction is a tick-driven one-sided auction over a fixed set of items. It
// moves from open to closed exactly once; the allocation and payments are
// computed at close and cached, so repeated Close calls observe one result.
type Auction struct {
	ID int64

	mu      sync.Mutex
	items   []asset.Tradeable
	reserve BidBundle
	alloc   AllocationRule
	payment PaymentRule
	bids    []Bid
	nextSeq int64
	closed  bool
	outcome Outcome
}

// Outcome is the cached result of closing an auction.
type Outcome struct {
	Allocation Allocation
	Payments   map[int64]decimal.Decimal
}

// New creates an open auction selling items under the given rules.
func New(id int64, items []asset.Tradeable, reserve BidBundle, alloc AllocationRule, payment PaymentRule) *Auction {
	return &Auction{
		ID:      id,
		items:   items,
		reserve: reserve,
		alloc:   alloc,
		payment: payment,
	}
}

// Items returns the goods up for sale.
func (a *Auction) Items() []asset.Tradeable {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]asset.Tradeable, len(a.items))
	copy(out, a.items)
	return out
}

// AddBid validates and records a bid. The bundle is re-stamped with the
// authenticated agent id before validation, and a sequence number records
// arrival order for tie-breaking. Rejected bids leave no trace.
func (a *Auction) AddBid(agentID int64, bundle BidBundle) (Bid, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return Bid{}, ErrAuctionClosed
	}

	b := NewBid(agentID, a.ID, bundle)
	if err := a.validateLocked(b); err != nil {
		return Bid{}, err
	}

	b.Seq = a.nextSeq
	a.nextSeq++
	a.bids = append(a.bids, b)
	a.alloc.ResetActivity()
	return b, nil
}

func (a *Auction) validateLocked(b Bid) error {
	if err := validateShape(b, a.items, a.reserve); err != nil {
		return err
	}
	return a.alloc.Validate(b, a.bids, a.reserve)
}

// Tick advances the auction clock by one sweep. Closed auctions ignore it.
func (a *Auction) Tick(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.alloc.Tick(now)
}

// IsOver reports whether the mechanism has run its course or the auction
// has already been closed.
func (a *Auction) IsOver() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed || a.alloc.IsOver()
}

// Close seals the auction and computes the outcome. The first call ranks
// the bids (reserve merged in) and prices the winners; every later call
// returns the same cached outcome.
func (a *Auction) Close() Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return a.outcome
	}
	a.closed = true

	merged := WithReserve(a.ID, a.bids, a.reserve)
	alloc := a.alloc.Allocations(merged, a.items)
	a.outcome = Outcome{
		Allocation: alloc,
		Payments:   a.payment.Payments(alloc),
	}
	return a.outcome
}

// Closed reports whether Close has run.
func (a *Auction) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// BidRequestFor builds the announcement for one agent. Private mechanisms
// withhold the standing high bids; the agent's own best prices are always
// included.
func (a *Auction) BidRequestFor(agentID int64) BidRequest {
	a.mu.Lock()
	defer a.mu.Unlock()

	req := BidRequest{
		AuctionID:      a.ID,
		Increment:      a.alloc.Increment(),
		TicksRemaining: a.alloc.TicksRemaining(),
		Open:           !a.closed,
		Yours:          make(map[asset.FullType]decimal.Decimal),
	}
	for _, item := range a.items {
		req.Goods = append(req.Goods, item.Type())
	}
	if len(a.reserve.Points) > 0 {
		req.Reserve = a.reserve.Points
	}

	if !a.alloc.IsPrivate() {
		high, _ := rank(a.bids, a.items)
		req.High = make(map[asset.FullType]BidPoint, len(high))
		for typ, b := range high {
			if p, ok := b.Bundle.Point(typ); ok {
				req.High[typ] = p
			}
		}
	}
	for _, item := range a.items {
		typ := item.Type()
		if own, ok := bestOwnPrice(agentID, typ, a.bids); ok {
			req.Yours[typ] = own
		}
	}
	return req
}
