// Package model defines the persistence-facing domain types shared across
// the exchange. All monetary values use shopspring/decimal — never float64
// for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market status values.
const (
	StatusOpen    = "open"
	StatusSettled = "settled"
)

// LedgerEntry is an immutable record of one execution. Once created, these
// are never modified or deleted.
type LedgerEntry struct {
	ID             string          `json:"id" db:"id"`
	MarketID       int64           `json:"market_id" db:"market_id"`
	Ticker         string          `json:"ticker" db:"ticker"`
	AgentID        int64           `json:"agent_id" db:"agent_id"`
	CounterpartyID int64           `json:"counterparty_id" db:"counterparty_id"`
	Side           string          `json:"side" db:"side"`         // "YES", "NO", or "GOOD"
	Quantity       decimal.Decimal `json:"quantity" db:"quantity"` // signed: +buy, -sell
	Price          decimal.Decimal `json:"price" db:"price"`       // average fill price
	Cost           decimal.Decimal `json:"cost" db:"cost"`         // total cost (signed)
	Timestamp      time.Time       `json:"timestamp" db:"timestamp"`
}

// Market is the persisted state of one listed market.
type Market struct {
	ID         int64           `json:"id" db:"id"`
	Ticker     string          `json:"ticker" db:"ticker"`
	Kind       string          `json:"kind" db:"kind"` // "lmsr", "lmsr_ls", "cda"
	QYes       decimal.Decimal `json:"q_yes" db:"q_yes"`
	QNo        decimal.Decimal `json:"q_no" db:"q_no"`
	B          decimal.Decimal `json:"b" db:"b"`         // LMSR liquidity parameter
	Alpha      decimal.Decimal `json:"alpha" db:"alpha"` // liquidity sensitivity, zero for fixed b
	PriceYes   decimal.Decimal `json:"price_yes" db:"price_yes"`
	PriceNo    decimal.Decimal `json:"price_no" db:"price_no"`
	TradeCount int64           `json:"trade_count" db:"trade_count"`
	Status     string          `json:"status" db:"status"` // "open", "settled"
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// Position is an agent's aggregate holdings in one market.
type Position struct {
	AgentID       int64           `json:"agent_id"`
	MarketID      int64           `json:"market_id"`
	Ticker        string          `json:"ticker"`
	YesQty        decimal.Decimal `json:"yes_qty"`
	NoQty         decimal.Decimal `json:"no_qty"`
	NetQty        decimal.Decimal `json:"net_qty"`        // yes - no
	CostBasis     decimal.Decimal `json:"cost_basis"`     // net cash outflow
	CurrentValue  decimal.Decimal `json:"current_value"`  // mark-to-market
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"` // currentValue - costBasis
}

// Portfolio aggregates all positions for an agent with P&L and exposure.
type Portfolio struct {
	AgentID        int64                      `json:"agent_id"`
	Monies         decimal.Decimal            `json:"monies"`
	Positions      []Position                 `json:"positions"`
	TotalPnL       decimal.Decimal            `json:"total_pnl"`
	TotalExposure  decimal.Decimal            `json:"total_exposure"`   // Σ |netQty|
	ExposureByKind map[string]decimal.Decimal `json:"exposure_by_kind"` // instrument kind → net
}
