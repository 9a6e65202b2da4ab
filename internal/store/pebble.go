package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/shopspring/decimal"

	"github.com/amx/agent-exchange/internal/model"
)

// PebbleStore implements Store on an embedded Pebble key-value database.
// It is the durable single-node alternative to PostgreSQL: no external
// process, ordered keys, synced writes.
//
// Key layout:
//
//	market:<id>          -> JSON market
//	ticker:<ticker>      -> market id (decimal string)
//	ledger:<seq>         -> JSON ledger entry, seq is a 20-digit counter
type PebbleStore struct {
	db  *pebble.DB
	seq atomic.Uint64
}

// NewPebbleStore opens (or creates) a Pebble database at path.
func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	s := &PebbleStore{db: db}
	if err := s.recoverSeq(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// recoverSeq seeds the ledger counter from the highest existing key.
func (s *PebbleStore) recoverSeq() error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("ledger:"),
		UpperBound: []byte("ledger;"), // ';' sorts just after ':'
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	if iter.Last() {
		var seq uint64
		if _, err := fmt.Sscanf(string(iter.Key()), "ledger:%020d", &seq); err == nil {
			s.seq.Store(seq)
		}
	}
	return iter.Error()
}

func pebbleMarketKey(id int64) []byte {
	return []byte(fmt.Sprintf("market:%020d", id))
}

func pebbleTickerKey(ticker string) []byte {
	return []byte("ticker:" + ticker)
}

func pebbleLedgerKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("ledger:%020d", seq))
}

func (s *PebbleStore) getJSON(key []byte, out interface{}) error {
	val, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	defer closer.Close()
	return json.Unmarshal(val, out)
}

func (s *PebbleStore) setJSON(key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Set(key, data, pebble.Sync)
}

func (s *PebbleStore) CreateMarket(_ context.Context, m *model.Market) error {
	key := pebbleMarketKey(m.ID)
	if _, closer, err := s.db.Get(key); err == nil {
		closer.Close()
		return fmt.Errorf("market %d already exists", m.ID)
	}
	if _, closer, err := s.db.Get(pebbleTickerKey(m.Ticker)); err == nil {
		closer.Close()
		return fmt.Errorf("market for ticker %s already exists", m.Ticker)
	}

	b := s.db.NewBatch()
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := b.Set(key, data, nil); err != nil {
		return err
	}
	if err := b.Set(pebbleTickerKey(m.Ticker), []byte(strconv.FormatInt(m.ID, 10)), nil); err != nil {
		return err
	}
	return s.db.Apply(b, pebble.Sync)
}

func (s *PebbleStore) GetMarket(_ context.Context, id int64) (*model.Market, error) {
	var m model.Market
	if err := s.getJSON(pebbleMarketKey(id), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PebbleStore) GetMarketByTicker(ctx context.Context, ticker string) (*model.Market, error) {
	val, closer, err := s.db.Get(pebbleTickerKey(ticker))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	id, perr := strconv.ParseInt(string(val), 10, 64)
	closer.Close()
	if perr != nil {
		return nil, perr
	}
	return s.GetMarket(ctx, id)
}

func (s *PebbleStore) ListMarkets(_ context.Context) ([]model.Market, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("market:"),
		UpperBound: []byte("market;"),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var markets []model.Market
	for iter.First(); iter.Valid(); iter.Next() {
		var m model.Market
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	return markets, iter.Error()
}

func (s *PebbleStore) UpdateMarketState(ctx context.Context, id int64, qYes, qNo, priceYes, priceNo decimal.Decimal, tradeCount int64) error {
	m, err := s.GetMarket(ctx, id)
	if err != nil {
		return err
	}
	m.QYes = qYes
	m.QNo = qNo
	m.PriceYes = priceYes
	m.PriceNo = priceNo
	m.TradeCount = tradeCount
	return s.setJSON(pebbleMarketKey(id), m)
}

func (s *PebbleStore) SetMarketStatus(ctx context.Context, id int64, status string) error {
	m, err := s.GetMarket(ctx, id)
	if err != nil {
		return err
	}
	m.Status = status
	return s.setJSON(pebbleMarketKey(id), m)
}

func (s *PebbleStore) InsertLedgerEntry(_ context.Context, entry *model.LedgerEntry) error {
	seq := s.seq.Add(1)
	return s.setJSON(pebbleLedgerKey(seq), entry)
}

func (s *PebbleStore) scanLedger(keep func(*model.LedgerEntry) bool) ([]model.LedgerEntry, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("ledger:"),
		UpperBound: []byte("ledger;"),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var entries []model.LedgerEntry
	for iter.First(); iter.Valid(); iter.Next() {
		var e model.LedgerEntry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return nil, err
		}
		if keep(&e) {
			entries = append(entries, e)
		}
	}
	return entries, iter.Error()
}

func (s *PebbleStore) GetLedgerEntriesByMarket(_ context.Context, marketID int64) ([]model.LedgerEntry, error) {
	return s.scanLedger(func(e *model.LedgerEntry) bool { return e.MarketID == marketID })
}

func (s *PebbleStore) GetLedgerEntriesByAgent(_ context.Context, agentID int64) ([]model.LedgerEntry, error) {
	return s.scanLedger(func(e *model.LedgerEntry) bool { return e.AgentID == agentID })
}

// GetAgentPositions aggregates the agent's ledger entries, marking to the
// persisted market prices.
func (s *PebbleStore) GetAgentPositions(ctx context.Context, agentID int64) ([]model.Position, error) {
	entries, err := s.GetLedgerEntriesByAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	type posAgg struct {
		ticker    string
		yesQty    decimal.Decimal
		noQty     decimal.Decimal
		costBasis decimal.Decimal
	}
	agg := make(map[int64]*posAgg)
	for _, e := range entries {
		pa, ok := agg[e.MarketID]
		if !ok {
			pa = &posAgg{ticker: e.Ticker}
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
	for marketID, pa := range agg {
		priceYes := decimal.NewFromFloat(0.5)
		if m, err := s.GetMarket(ctx, marketID); err == nil {
			priceYes = m.PriceYes
		}
		priceNo := one.Sub(priceYes)

		currentValue := priceYes.Mul(pa.yesQty).Add(priceNo.Mul(pa.noQty))
		positions = append(positions, model.Position{
			AgentID:       agentID,
			MarketID:      marketID,
			Ticker:        pa.ticker,
			YesQty:        pa.yesQty,
			NoQty:         pa.noQty,
			NetQty:        pa.yesQty.Sub(pa.noQty),
			CostBasis:     pa.costBasis,
			CurrentValue:  currentValue,
			UnrealizedPnL: currentValue.Sub(pa.costBasis),
		})
	}
	return positions, nil
}

func (s *PebbleStore) GetAgentKindExposures(ctx context.Context, agentID int64) (map[string]decimal.Decimal, error) {
	entries, err := s.GetLedgerEntriesByAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	exposures := make(map[string]decimal.Decimal)
	for _, e := range entries {
		kind, signed := exposureOf(e)
		if kind == "" {
			continue
		}
		exposures[kind] = exposures[kind].Add(signed)
	}
	return exposures, nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}
