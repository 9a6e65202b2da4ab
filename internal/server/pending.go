package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// PendingTrade is a proposed bilateral swap awaiting the addressee's
// decision.
type PendingTrade struct {
	ID        string
	FromID    int64 // proposer's public id
	ToID      int64 // addressee's public id
	Offer     TradeRequestMessage
	CreatedAt time.Time
}

// PendingTrades holds outstanding trade offers. Take removes an offer
// atomically, so a trade settles at most once no matter how many accept
// messages race for it.
type PendingTrades struct {
	mu     sync.Mutex
	trades map[string]PendingTrade
}

// NewPendingTrades creates an empty pending set.
func NewPendingTrades() *PendingTrades {
	return &PendingTrades{trades: make(map[string]PendingTrade)}
}

// Add records a new offer and returns its trade id.
func (p *PendingTrades) Add(fromID, toID int64, offer TradeRequestMessage, now time.Time) PendingTrade {
	t := PendingTrade{
		ID:        uuid.New().String(),
		FromID:    fromID,
		ToID:      toID,
		Offer:     offer,
		CreatedAt: now,
	}
	p.mu.Lock()
	p.trades[t.ID] = t
	p.mu.Unlock()
	return t
}

// Take atomically claims and removes an offer. Only the addressee can take
// it, and the second caller for the same id gets ok=false, so duplicate or
// forged decisions settle nothing.
func (p *PendingTrades) Take(id string, toID int64) (PendingTrade, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.trades[id]
	if !ok || t.ToID != toID {
		return PendingTrade{}, false
	}
	delete(p.trades, id)
	return t, true
}

// Withdraw removes an offer on behalf of either party: the addressee
// declining or the proposer cancelling. Same at-most-once guarantee as
// Take.
func (p *PendingTrades) Withdraw(id string, agentID int64) (PendingTrade, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.trades[id]
	if !ok || (t.FromID != agentID && t.ToID != agentID) {
		return PendingTrade{}, false
	}
	delete(p.trades, id)
	return t, true
}

// ExpireBefore removes offers created before the cutoff and returns them.
func (p *PendingTrades) ExpireBefore(cutoff time.Time) []PendingTrade {
	p.mu.Lock()
	defer p.mu.Unlock()
	var expired []PendingTrade
	for id, t := range p.trades {
		if t.CreatedAt.Before(cutoff) {
			expired = append(expired, t)
			delete(p.trades, id)
		}
	}
	return expired
}

// Len returns the number of outstanding offers.
func (p *PendingTrades) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.trades)
}
