package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/amx/agent-exchange/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// single-process development runs. Not suitable for production (no
// persistence).
type MemoryStore struct {
	mu      sync.RWMutex
	markets map[int64]*model.Market
	ledger  []model.LedgerEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets: make(map[int64]*model.Market),
	}
}

func (s *MemoryStore) CreateMarket(_ context.Context, m *model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[m.ID]; ok {
		return fmt.Errorf("market %d already exists", m.ID)
	}
	for _, existing := range s.markets {
		if existing.Ticker == m.Ticker {
			return fmt.Errorf("market for ticker %s already exists", m.Ticker)
		}
	}

	// Store a copy to avoid external mutation.
	copy := *m
	s.markets[m.ID] = &copy
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, id int64) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *m
	return &copy, nil
}

func (s *MemoryStore) GetMarketByTicker(_ context.Context, ticker string) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.markets {
		if m.Ticker == ticker {
			copy := *m
			return &copy, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListMarkets(_ context.Context) ([]model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markets := make([]model.Market, 0, len(s.markets))
	for _, m := range s.markets {
		markets = append(markets, *m)
	}
	return markets, nil
}

func (s *MemoryStore) UpdateMarketState(_ context.Context, id int64, qYes, qNo, priceYes, priceNo decimal.Decimal, tradeCount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return ErrNotFound
	}
	m.QYes = qYes
	m.QNo = qNo
	m.PriceYes = priceYes
	m.PriceNo = priceNo
	m.TradeCount = tradeCount
	return nil
}

func (s *MemoryStore) SetMarketStatus(_ context.Context, id int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return ErrNotFound
	}
	m.Status = status
	return nil
}

func (s *MemoryStore) InsertLedgerEntry(_ context.Context, entry *model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledger = append(s.ledger, *entry)
	return nil
}

func (s *MemoryStore) GetLedgerEntriesByMarket(_ context.Context, marketID int64) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.LedgerEntry
	for _, e := range s.ledger {
		if e.MarketID == marketID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetLedgerEntriesByAgent(_ context.Context, agentID int64) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.LedgerEntry
	for _, e := range s.ledger {
		if e.AgentID == agentID {
			result = append(result, e)
		}
	}
	return result, nil
}

// GetAgentPositions aggregates ledger entries into positions per market.
// Computes current value and unrealized P&L using live market prices.
func (s *MemoryStore) GetAgentPositions(_ context.Context, agentID int64) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type posAgg struct {
		marketID  int64
		ticker    string
		yesQty    decimal.Decimal
		noQty     decimal.Decimal
		costBasis decimal.Decimal
	}

	agg := make(map[int64]*posAgg)

	// Aggregate from ledger (single lock, no re-entrant calls).
	for _, e := range s.ledger {
		if e.AgentID != agentID {
			continue
		}
		pa, ok := agg[e.MarketID]
		if !ok {
			pa = &posAgg{
				marketID: e.MarketID,
				ticker:   e.Ticker,
			}
			agg[e.MarketID] = pa
		}
		switch e.Side {
		case "YES", "GOOD":
			pa.yesQty = pa.yesQty.Add(e.Quantity)
		case "NO":
			pa.noQty = pa.noQty.Add(e.Quantity)
		}
		pa.costBasis = pa.costBasis.Add(e.Cost)
	}

	one := decimal.NewFromInt(1)
	var positions []model.Position

	for _, pa := range agg {
		m := s.markets[pa.marketID] // direct access, already under RLock
		priceYes := decimal.NewFromFloat(0.5)
		ticker := pa.ticker
		if m != nil {
			priceYes = m.PriceYes
			ticker = m.Ticker
		}
		priceNo := one.Sub(priceYes)

		netQty := pa.yesQty.Sub(pa.noQty)
		// Mark-to-market: expected value = priceYes * yesQty + priceNo * noQty
		currentValue := priceYes.Mul(pa.yesQty).Add(priceNo.Mul(pa.noQty))
		pnl := currentValue.Sub(pa.costBasis)

		positions = append(positions, model.Position{
			AgentID:       agentID,
			MarketID:      pa.marketID,
			Ticker:        ticker,
			YesQty:        pa.yesQty,
			NoQty:         pa.noQty,
			NetQty:        netQty,
			CostBasis:     pa.costBasis,
			CurrentValue:  currentValue,
			UnrealizedPnL: pnl,
		})
	}

	return positions, nil
}

// GetAgentKindExposures returns net directional exposure per instrument
// kind, computed from the ledger.
func (s *MemoryStore) GetAgentKindExposures(_ context.Context, agentID int64) (map[string]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exposures := make(map[string]decimal.Decimal)
	for _, e := range s.ledger {
		if e.AgentID != agentID {
			continue
		}
		kind, signed := exposureOf(e)
		if kind == "" {
			continue
		}
		exposures[kind] = exposures[kind].Add(signed)
	}
	return exposures, nil
}

// exposureOf maps a ledger entry to its exposure bucket and signed size:
// prediction YES counts positive, NO negative, goods positive.
func exposureOf(e model.LedgerEntry) (string, decimal.Decimal) {
	switch e.Side {
	case "YES":
		return "PRED", e.Quantity
	case "NO":
		return "PRED", e.Quantity.Neg()
	case "GOOD":
		return "GOOD", e.Quantity
	}
	return "", decimal.Decimal{}
}

func (s *MemoryStore) Close() error { return nil }
