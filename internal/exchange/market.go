// Package exchange hosts the markets agents trade on: LMSR-backed
// prediction markets and continuous double auction order books, behind one
// Market interface and one registry with terminal settlement.
package exchange

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/amx/agent-exchange/internal/asset"
)

var (
	// ErrInstrumentExists is returned when opening a market whose id is
	// already listed.
	ErrInstrumentExists = errors.New("exchange: instrument already listed")

	// ErrNoMarket is returned for operations on an unlisted market.
	ErrNoMarket = errors.New("exchange: no such market")

	// ErrMarketClosed is returned for trades against a settled market.
	ErrMarketClosed = errors.New("exchange: market closed")

	// ErrLimitRequired is returned when an order book request carries no
	// limit price.
	ErrLimitRequired = errors.New("exchange: limit price required")

	// ErrNothingRequested is returned when a request names no quantity.
	ErrNothingRequested = errors.New("exchange: empty purchase request")
)

// Fill is one execution produced by a market. The taker is the agent whose
// request triggered it; the maker is the resting counterparty, or the
// exchange itself for market-maker fills.
type Fill struct {
	MarketID  int64           `json:"market_id"`
	TakerID   int64           `json:"taker_id"`
	MakerID   int64           `json:"maker_id"`
	Asset     asset.FullType  `json:"asset"`
	TakerBuys bool            `json:"taker_buys"`
	Count     decimal.Decimal `json:"count"`
	Price     decimal.Decimal `json:"price"`
	Cost      decimal.Decimal `json:"cost"`
}

// Snapshot is a market's public state, served over REST and pushed to
// agents after every execution.
type Snapshot struct {
	MarketID   int64           `json:"market_id"`
	Kind       string          `json:"kind"`
	PriceYes   decimal.Decimal `json:"price_yes,omitempty"`
	PriceNo    decimal.Decimal `json:"price_no,omitempty"`
	B          decimal.Decimal `json:"b,omitempty"`
	QYes       decimal.Decimal `json:"q_yes,omitempty"`
	QNo        decimal.Decimal `json:"q_no,omitempty"`
	TradeCount int64           `json:"trade_count,omitempty"`
	BestBid    decimal.Decimal `json:"best_bid,omitempty"`
	BestAsk    decimal.Decimal `json:"best_ask,omitempty"`
	Depth      int             `json:"depth,omitempty"`
}

// Market is one tradeable venue. Implementations are safe for concurrent
// use; Submit atomically prices and applies the request.
type Market interface {
	// ID is the market's listing id.
	ID() int64

	// Types lists the instrument types the market deals in.
	Types() []asset.FullType

	// Submit executes a purchase request: buy and sell are the two
	// requested quantities (their meaning is per-venue: YES/NO shares for
	// a prediction market, buy/sell units for an order book) and limit
	// caps the unit price. Fills report every resulting execution.
	Submit(agentID int64, buy, sell, limit decimal.Decimal) ([]Fill, error)

	// Snapshot returns the market's public state.
	Snapshot() Snapshot

	// History returns the market's executions in append order.
	History() []asset.Transaction

	// Freeze permanently stops trading, ahead of settlement.
	Freeze()
}
