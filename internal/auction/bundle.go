// Package auction implements one-sided auctions: pluggable allocation and
// payment rules combined with a tick-driven Open -> Closed state machine.
package auction

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/amx/agent-exchange/internal/asset"
)

// BidPoint is one agent's price on one good.
type BidPoint struct {
	AgentID int64           `json:"agent_id"`
	Price   decimal.Decimal `json:"price"`
}

// BidBundle is a priced, possibly multi-good offer. Reserve price floors
// are encoded as a bundle whose points carry the exchange's agent id, so
// ordinary ranking enforces the floor without special-casing it.
type BidBundle struct {
	Points map[asset.FullType]BidPoint `json:"points"`
}

// SingleGoodBundle builds a bundle bidding price on one good.
func SingleGoodBundle(agentID int64, typ asset.FullType, price decimal.Decimal) BidBundle {
	return BidBundle{Points: map[asset.FullType]BidPoint{
		typ: {AgentID: agentID, Price: price},
	}}
}

// ReserveBundle builds the synthetic floor bundle from per-good minimums.
func ReserveBundle(floors map[asset.FullType]decimal.Decimal) BidBundle {
	points := make(map[asset.FullType]BidPoint, len(floors))
	for typ, price := range floors {
		points[typ] = BidPoint{AgentID: asset.ExchangeID, Price: price}
	}
	return BidBundle{Points: points}
}

// Cost is the total price across the bundle's goods.
func (b BidBundle) Cost() decimal.Decimal {
	total := decimal.Zero
	for _, p := range b.Points {
		total = total.Add(p.Price)
	}
	return total
}

// Point returns the bundle's price on one good.
func (b BidBundle) Point(typ asset.FullType) (BidPoint, bool) {
	p, ok := b.Points[typ]
	return p, ok
}

// Stamp returns a copy of the bundle with every point re-owned by agentID.
// The server stamps bundles with the authenticated sender id; client-supplied
// agent ids are never trusted.
func (b BidBundle) Stamp(agentID int64) BidBundle {
	points := make(map[asset.FullType]BidPoint, len(b.Points))
	for typ, p := range b.Points {
		p.AgentID = agentID
		points[typ] = p
	}
	return BidBundle{Points: points}
}

// Bid is one agent's offer in one auction. Seq is the arrival order stamped
// by the auction and used for tie-breaking.
type Bid struct {
	ID        string
	AgentID   int64
	AuctionID int64
	Bundle    BidBundle
	Seq       int64
}

// NewBid creates a bid with a fresh id. The auction stamps Seq on accept.
func NewBid(agentID, auctionID int64, bundle BidBundle) Bid {
	return Bid{
		ID:        uuid.New().String(),
		AgentID:   agentID,
		AuctionID: auctionID,
		Bundle:    bundle.Stamp(agentID),
	}
}
