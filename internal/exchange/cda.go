package exchange

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/amx/agent-exchange/internal/asset"
)

// Order is one resting limit order in a CDA book.
type Order struct {
	ID      string          `json:"id"`
	AgentID int64           `json:"agent_id"`
	Buy     bool            `json:"buy"`
	Price   decimal.Decimal `json:"price"`
	Count   decimal.Decimal `json:"count"` // remaining quantity
	Seq     int64           `json:"seq"`
}

// CDA is a continuous double auction over one instrument: a two-sided limit
// order book with price-time priority. Incoming orders cross against the
// best opposite price first and execute at the resting order's price; any
// remainder rests at the limit. After every Submit the book is uncrossed.
type CDA struct {
	id     int64
	typ    asset.FullType
	ledger *asset.Ledger

	mu      sync.Mutex
	bids    []*Order // sorted: highest price first, then arrival
	asks    []*Order // sorted: lowest price first, then arrival
	nextSeq int64
	frozen  bool
}

// NewCDA lists an order book trading the given instrument.
func NewCDA(id int64, typ asset.FullType) *CDA {
	return &CDA{id: id, typ: typ, ledger: asset.NewLedger(typ)}
}

func (m *CDA) ID() int64 { return m.id }

func (m *CDA) Types() []asset.FullType { return []asset.FullType{m.typ} }

// Submit places a limit order. buy and sell are quantities for the two
// sides; a request may carry both, processed buy leg first. The limit
// price is mandatory.
func (m *CDA) Submit(agentID int64, buy, sell, limit decimal.Decimal) ([]Fill, error) {
	if !limit.IsPositive() {
		return nil, ErrLimitRequired
	}
	if !buy.IsPositive() && !sell.IsPositive() {
		return nil, ErrNothingRequested
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen {
		return nil, ErrMarketClosed
	}

	var fills []Fill
	if buy.IsPositive() {
		fills = append(fills, m.placeLocked(agentID, true, buy, limit)...)
	}
	if sell.IsPositive() {
		fills = append(fills, m.placeLocked(agentID, false, sell, limit)...)
	}
	return fills, nil
}

// placeLocked crosses an incoming order against the opposite side and
// rests the remainder.
func (m *CDA) placeLocked(agentID int64, buy bool, count, limit decimal.Decimal) []Fill {
	var fills []Fill
	opposite := &m.asks
	if !buy {
		opposite = &m.bids
	}

	remaining := count
	for remaining.IsPositive() && len(*opposite) > 0 {
		best := (*opposite)[0]
		if buy && best.Price.GreaterThan(limit) {
			break
		}
		if !buy && best.Price.LessThan(limit) {
			break
		}

		qty := remaining
		if best.Count.LessThan(qty) {
			qty = best.Count
		}
		fills = append(fills, Fill{
			MarketID:  m.id,
			TakerID:   agentID,
			MakerID:   best.AgentID,
			Asset:     m.typ,
			TakerBuys: buy,
			Count:     qty,
			Price:     best.Price, // execution at the resting price
			Cost:      best.Price.Mul(qty),
		})
		signed := qty
		if !buy {
			signed = qty.Neg()
		}
		m.ledger.Add(asset.NewTransaction(m.typ, signed, agentID, best.AgentID, best.Price, best.Price.Mul(qty)))

		remaining = remaining.Sub(qty)
		best.Count = best.Count.Sub(qty)
		if best.Count.IsZero() {
			*opposite = (*opposite)[1:]
		}
	}

	if remaining.IsPositive() {
		o := &Order{
			ID:      uuid.New().String(),
			AgentID: agentID,
			Buy:     buy,
			Price:   limit,
			Count:   remaining,
			Seq:     m.nextSeq,
		}
		m.nextSeq++
		if buy {
			m.bids = insert(m.bids, o, func(a, b *Order) bool {
				if !a.Price.Equal(b.Price) {
					return a.Price.GreaterThan(b.Price)
				}
				return a.Seq < b.Seq
			})
		} else {
			m.asks = insert(m.asks, o, func(a, b *Order) bool {
				if !a.Price.Equal(b.Price) {
					return a.Price.LessThan(b.Price)
				}
				return a.Seq < b.Seq
			})
		}
	}
	return fills
}

// insert places o into a best-first sorted book.
func insert(book []*Order, o *Order, before func(a, b *Order) bool) []*Order {
	i := sort.Search(len(book), func(i int) bool {
		return before(o, book[i])
	})
	book = append(book, nil)
	copy(book[i+1:], book[i:])
	book[i] = o
	return book
}

// Cancel removes an agent's resting order by id. Only the order's owner
// may cancel it.
func (m *CDA) Cancel(agentID int64, orderID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, book := range []*[]*Order{&m.bids, &m.asks} {
		for i, o := range *book {
			if o.ID == orderID && o.AgentID == agentID {
				*book = append((*book)[:i], (*book)[i+1:]...)
				return true
			}
		}
	}
	return false
}

// RestingOrders returns copies of every resting order, bids then asks.
// The book holds the value behind these orders in escrow; Close uses this
// to hand it back.
func (m *CDA) RestingOrders() []Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Order, 0, len(m.bids)+len(m.asks))
	for _, o := range m.bids {
		out = append(out, *o)
	}
	for _, o := range m.asks {
		out = append(out, *o)
	}
	return out
}

// Orders returns copies of an agent's resting orders.
func (m *CDA) Orders(agentID int64) []Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, book := range [][]*Order{m.bids, m.asks} {
		for _, o := range book {
			if o.AgentID == agentID {
				out = append(out, *o)
			}
		}
	}
	return out
}

// History returns the book's executions in append order.
func (m *CDA) History() []asset.Transaction {
	return m.ledger.Entries()
}

func (m *CDA) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{
		MarketID: m.id,
		Kind:     "cda",
		Depth:    len(m.bids) + len(m.asks),
	}
	if len(m.bids) > 0 {
		snap.BestBid = m.bids[0].Price
	}
	if len(m.asks) > 0 {
		snap.BestAsk = m.asks[0].Price
	}
	return snap
}

func (m *CDA) Freeze() {
	m.mu.Lock()
	m.frozen = true
	m.mu.Unlock()
}
