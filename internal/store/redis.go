package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/amx/agent-exchange/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateMarket(ctx context.Context, m *model.Market) error {
	if err := s.primary.CreateMarket(ctx, m); err != nil {
		return err
	}
	s.cacheMarket(ctx, m)
	return nil
}

func (s *CachedStore) UpdateMarketState(ctx context.Context, id int64, qYes, qNo, priceYes, priceNo decimal.Decimal, tradeCount int64) error {
	if err := s.primary.UpdateMarketState(ctx, id, qYes, qNo, priceYes, priceNo, tradeCount); err != nil {
		return err
	}
	// Invalidate cache; next read will re-populate.
	s.rdb.Del(ctx, marketKey(id))
	return nil
}

func (s *CachedStore) SetMarketStatus(ctx context.Context, id int64, status string) error {
	if err := s.primary.SetMarketStatus(ctx, id, status); err != nil {
		return err
	}
	s.rdb.Del(ctx, marketKey(id))
	return nil
}

func (s *CachedStore) InsertLedgerEntry(ctx context.Context, entry *model.LedgerEntry) error {
	if err := s.primary.InsertLedgerEntry(ctx, entry); err != nil {
		return err
	}
	// Invalidate position cache for this agent.
	s.rdb.Del(ctx, positionsKey(entry.AgentID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetMarket(ctx context.Context, id int64) (*model.Market, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, marketKey(id)).Bytes()
	if err == nil {
		var m model.Market
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	// Cache miss: read from primary.
	m, err := s.primary.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheMarket(ctx, m)
	return m, nil
}

func (s *CachedStore) GetMarketByTicker(ctx context.Context, ticker string) (*model.Market, error) {
	// Try cache via ticker→marketID mapping.
	idStr, err := s.rdb.Get(ctx, tickerKey(ticker)).Result()
	if err == nil {
		if id, perr := strconv.ParseInt(idStr, 10, 64); perr == nil {
			return s.GetMarket(ctx, id)
		}
	}

	// Cache miss.
	m, err := s.primary.GetMarketByTicker(ctx, ticker)
	if err != nil {
		return nil, err
	}

	// Cache both the market and the ticker→ID mapping.
	s.cacheMarket(ctx, m)
	s.rdb.Set(ctx, tickerKey(ticker), strconv.FormatInt(m.ID, 10), s.ttl)
	return m, nil
}

func (s *CachedStore) GetAgentPositions(ctx context.Context, agentID int64) ([]model.Position, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, positionsKey(agentID)).Bytes()
	if err == nil {
		var positions []model.Position
		if json.Unmarshal(data, &positions) == nil {
			return positions, nil
		}
	}

	// Cache miss.
	positions, err := s.primary.GetAgentPositions(ctx, agentID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(positions); err == nil {
		s.rdb.Set(ctx, positionsKey(agentID), data, s.ttl)
	}
	return positions, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return s.primary.ListMarkets(ctx)
}

func (s *CachedStore) GetLedgerEntriesByMarket(ctx context.Context, marketID int64) ([]model.LedgerEntry, error) {
	return s.primary.GetLedgerEntriesByMarket(ctx, marketID)
}

func (s *CachedStore) GetLedgerEntriesByAgent(ctx context.Context, agentID int64) ([]model.LedgerEntry, error) {
	return s.primary.GetLedgerEntriesByAgent(ctx, agentID)
}

func (s *CachedStore) GetAgentKindExposures(ctx context.Context, agentID int64) (map[string]decimal.Decimal, error) {
	return s.primary.GetAgentKindExposures(ctx, agentID)
}

func (s *CachedStore) Close() error {
	s.rdb.Close()
	return s.primary.Close()
}

// --- Cache helpers ---

func (s *CachedStore) cacheMarket(ctx context.Context, m *model.Market) {
	if data, err := json.Marshal(m); err == nil {
		s.rdb.Set(ctx, marketKey(m.ID), data, s.ttl)
	}
}

func marketKey(id int64) string       { return fmt.Sprintf("market:%d", id) }
func tickerKey(ticker string) string  { return fmt.Sprintf("ticker:%s", ticker) }
func positionsKey(agent int64) string { return fmt.Sprintf("positions:%d", agent) }
