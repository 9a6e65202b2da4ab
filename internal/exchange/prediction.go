package exchange

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/amx/agent-exchange/internal/asset"
	"github.com/amx/agent-exchange/internal/lmsr"
)

// PredictionMarket trades binary YES/NO securities against an LMSR market
// maker. Every fill's counterparty is the exchange; inventory is
// inexhaustible and the price moves with the cumulative position.
type PredictionMarket struct {
	id     int64
	kind   string
	yes    asset.FullType
	no     asset.FullType
	mm     lmsr.MarketMaker
	ledger *asset.Ledger

	mu     sync.Mutex
	frozen bool
}

// NewPredictionMarket lists a prediction market backed by the given market
// maker.
func NewPredictionMarket(id int64, mm lmsr.MarketMaker) *PredictionMarket {
	kind := "lmsr"
	if _, ok := mm.(*lmsr.LiquiditySensitive); ok {
		kind = "lmsr_ls"
	}
	yes := asset.FullType{Kind: asset.KindPredictionYes, ID: id}
	return &PredictionMarket{
		id:     id,
		kind:   kind,
		yes:    yes,
		no:     asset.FullType{Kind: asset.KindPredictionNo, ID: id},
		mm:     mm,
		ledger: asset.NewLedger(yes),
	}
}

func (m *PredictionMarket) ID() int64 { return m.id }

func (m *PredictionMarket) Types() []asset.FullType {
	return []asset.FullType{m.yes, m.no}
}

// YesType and NoType identify the market's two securities.
func (m *PredictionMarket) YesType() asset.FullType { return m.yes }
func (m *PredictionMarket) NoType() asset.FullType  { return m.no }

// Maker exposes the backing market maker for quoting endpoints.
func (m *PredictionMarket) Maker() lmsr.MarketMaker { return m.mm }

// Submit trades buy YES shares and sell NO shares against the market
// maker. Negative quantities sell back. Both legs are priced against the
// same limit; a failed second leg does not unwind the first, so callers
// wanting all-or-nothing should request one leg at a time.
//
// The market lock is held across the whole request, so Freeze cannot
// interleave between the frozen check and the execution: once Freeze
// returns, no further trade can land.
func (m *PredictionMarket) Submit(agentID int64, buy, sell, limit decimal.Decimal) ([]Fill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen {
		return nil, ErrMarketClosed
	}
	if buy.IsZero() && sell.IsZero() {
		return nil, ErrNothingRequested
	}

	var fills []Fill
	if !buy.IsZero() {
		f, err := m.mm.Execute(true, buy, limit)
		if err != nil {
			return nil, err
		}
		fills = append(fills, m.fill(agentID, m.yes, buy, f))
		m.ledger.Add(asset.NewTransaction(m.yes, buy, agentID, asset.ExchangeID, f.AvgPrice.Abs(), f.Cost))
	}
	if !sell.IsZero() {
		f, err := m.mm.Execute(false, sell, limit)
		if err != nil {
			return fills, err
		}
		fills = append(fills, m.fill(agentID, m.no, sell, f))
		m.ledger.Add(asset.NewTransaction(m.no, sell, agentID, asset.ExchangeID, f.AvgPrice.Abs(), f.Cost))
	}
	return fills, nil
}

// History returns the market's executions in append order.
func (m *PredictionMarket) History() []asset.Transaction {
	return m.ledger.Entries()
}

func (m *PredictionMarket) fill(agentID int64, typ asset.FullType, n decimal.Decimal, f lmsr.Fill) Fill {
	return Fill{
		MarketID:  m.id,
		TakerID:   agentID,
		MakerID:   asset.ExchangeID,
		Asset:     typ,
		TakerBuys: n.IsPositive(),
		Count:     n.Abs(),
		Price:     f.AvgPrice.Abs(),
		Cost:      f.Cost,
	}
}

func (m *PredictionMarket) Snapshot() Snapshot {
	qYes, qNo := m.mm.Quantities()
	snap := Snapshot{
		MarketID: m.id,
		Kind:     m.kind,
		PriceYes: m.mm.Price(true),
		PriceNo:  m.mm.Price(false),
		B:        m.mm.B(),
		QYes:     qYes,
		QNo:      qNo,
	}
	if ls, ok := m.mm.(*lmsr.LiquiditySensitive); ok {
		snap.TradeCount = ls.TradeCount()
	}
	return snap
}

func (m *PredictionMarket) Freeze() {
	m.mu.Lock()
	m.frozen = true
	m.mu.Unlock()
}
