package exchange

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/amx/agent-exchange/internal/asset"
	"github.com/amx/agent-exchange/internal/bank"
)

// Exchange is the registry of listed markets.
type Exchange struct {
	mu      sync.RWMutex
	markets map[int64]Market
}

// New creates an empty exchange.
func New() *Exchange {
	return &Exchange{markets: make(map[int64]Market)}
}

// Open lists a market. Listing an id twice fails: an instrument is listed
// at most once for its lifetime.
func (e *Exchange) Open(m Market) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.markets[m.ID()]; ok {
		return ErrInstrumentExists
	}
	e.markets[m.ID()] = m
	return nil
}

// Get returns a listed market.
func (e *Exchange) Get(id int64) (Market, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.markets[id]
	if !ok {
		return nil, ErrNoMarket
	}
	return m, nil
}

// Markets returns every listed market, ordered by id.
func (e *Exchange) Markets() []Market {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Market, 0, len(e.markets))
	for _, m := range e.markets {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Payout is one agent's settlement for one closed market.
type Payout struct {
	AgentID int64           `json:"agent_id"`
	Amount  decimal.Decimal `json:"amount"`
}

// Close freezes a market, delists it, and settles every account: each
// holding of the market's instruments is removed and its Payoff under the
// terminal world state credited as cash. Negative payoffs (shorts on the
// winning side) debit the account even when that overdraws it.
func (e *Exchange) Close(id int64, terminal asset.WorldState, b *bank.Bank) ([]Payout, error) {
	e.mu.Lock()
	m, ok := e.markets[id]
	if !ok {
		e.mu.Unlock()
		return nil, ErrNoMarket
	}
	delete(e.markets, id)
	e.mu.Unlock()

	m.Freeze()

	// An order book's resting orders carry escrowed value: cash at the
	// limit price behind bids, the instrument behind asks. Unwind the book
	// first so that value settles like any other holding below.
	if cda, ok := m.(*CDA); ok {
		for _, o := range cda.RestingOrders() {
			if _, err := b.Update(o.AgentID, func(a asset.Account) (asset.Account, error) {
				if o.Buy {
					return a.Add(o.Price.Mul(o.Count), nil), nil
				}
				return a.Add(decimal.Zero, holdingFor(o.AgentID, o.Count, cda.typ)), nil
			}); err != nil {
				return nil, err
			}
		}
	}

	settled := make(map[asset.FullType]bool)
	for _, typ := range m.Types() {
		settled[typ] = true
	}

	var payouts []Payout
	agents := b.Agents()
	sort.Slice(agents, func(i, j int) bool { return agents[i] < agents[j] })
	for _, agentID := range agents {
		var amount decimal.Decimal
		_, err := b.Update(agentID, func(a asset.Account) (asset.Account, error) {
			amount = decimal.Zero
			next := a
			kept := make([]asset.Tradeable, 0, len(next.Holdings))
			for _, h := range next.Holdings {
				if !settled[h.Type()] {
					kept = append(kept, h)
					continue
				}
				amount = amount.Add(h.Payoff(terminal))
			}
			next.Holdings = kept
			next.Monies = next.Monies.Add(amount)
			return next, nil
		})
		if err != nil {
			return payouts, err
		}
		if !amount.IsZero() {
			payouts = append(payouts, Payout{AgentID: agentID, Amount: amount})
		}
	}
	return payouts, nil
}

// holdingFor builds the account holding for a quantity of one instrument.
func holdingFor(agentID int64, count decimal.Decimal, typ asset.FullType) asset.Tradeable {
	if typ.Kind == asset.KindGood {
		return asset.NewGoodItem(count, typ).ToAgent(agentID)
	}
	return asset.NewSecurity(agentID, count, typ)
}
