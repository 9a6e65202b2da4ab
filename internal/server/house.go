package server

import (
	"errors"
	"sort"
	"sync"

	"github.com/amx/agent-exchange/internal/asset"
	"github.com/amx/agent-exchange/internal/auction"
	"github.com/amx/agent-exchange/internal/metrics"
)

// ErrNoAuction is returned when an auction id is unknown or already closed
// and removed.
var ErrNoAuction = errors.New("server: no such auction")

// AuctionHouse holds the open auctions. Goods up for auction are escrowed
// here, owned by the exchange until the auction closes; they never sit in
// any agent's account while bidding is open.
type AuctionHouse struct {
	mu       sync.Mutex
	auctions map[int64]*auction.Auction
	nextID   int64
}

// NewAuctionHouse creates an empty house.
func NewAuctionHouse() *AuctionHouse {
	return &AuctionHouse{auctions: make(map[int64]*auction.Auction)}
}

// Create opens a new auction over items and returns it.
func (h *AuctionHouse) Create(items []asset.Tradeable, reserve auction.BidBundle, alloc auction.AllocationRule, payment auction.PaymentRule) *auction.Auction {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	a := auction.New(h.nextID, items, reserve, alloc, payment)
	h.auctions[a.ID] = a
	metrics.ActiveAuctions.Inc()
	return a
}

// Get returns the auction with the given id.
func (h *AuctionHouse) Get(id int64) (*auction.Auction, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.auctions[id]
	if !ok {
		return nil, ErrNoAuction
	}
	return a, nil
}

// Open returns every open auction in id order.
func (h *AuctionHouse) Open() []*auction.Auction {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*auction.Auction, 0, len(h.auctions))
	for _, a := range h.auctions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Remove drops a closed auction from the house.
func (h *AuctionHouse) Remove(id int64) {
	h.mu.Lock()
	delete(h.auctions, id)
	h.mu.Unlock()
}
