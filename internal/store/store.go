// Package store defines the persistence interface for the exchange.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), Pebble (embedded single-node store), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/amx/agent-exchange/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface.
type Store interface {
	// --- Market operations ---

	// CreateMarket persists a new market listing.
	CreateMarket(ctx context.Context, market *model.Market) error

	// GetMarket retrieves a market by its listing id.
	GetMarket(ctx context.Context, id int64) (*model.Market, error)

	// GetMarketByTicker retrieves a market by its instrument ticker.
	GetMarketByTicker(ctx context.Context, ticker string) (*model.Market, error)

	// ListMarkets returns all markets.
	ListMarkets(ctx context.Context) ([]model.Market, error)

	// UpdateMarketState updates quantities, prices, and the trade counter
	// after an execution.
	UpdateMarketState(ctx context.Context, id int64, qYes, qNo, priceYes, priceNo decimal.Decimal, tradeCount int64) error

	// SetMarketStatus moves a market between open and settled.
	SetMarketStatus(ctx context.Context, id int64, status string) error

	// --- Immutable ledger ---

	// InsertLedgerEntry appends an immutable execution record.
	InsertLedgerEntry(ctx context.Context, entry *model.LedgerEntry) error

	// GetLedgerEntriesByMarket returns all executions for a market.
	GetLedgerEntriesByMarket(ctx context.Context, marketID int64) ([]model.LedgerEntry, error)

	// GetLedgerEntriesByAgent returns all executions for an agent.
	GetLedgerEntriesByAgent(ctx context.Context, agentID int64) ([]model.LedgerEntry, error)

	// --- Position queries ---

	// GetAgentPositions computes aggregate positions from the ledger.
	GetAgentPositions(ctx context.Context, agentID int64) ([]model.Position, error)

	// GetAgentKindExposures returns net directional exposure per
	// instrument kind.
	GetAgentKindExposures(ctx context.Context, agentID int64) (map[string]decimal.Decimal, error)

	// Close releases the store's resources.
	Close() error
}
