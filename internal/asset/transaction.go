package asset

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is an immutable record of one executed trade. Once created,
// transactions are never modified or deleted.
//
// CounterpartyID is ExchangeID when the other side of the trade is a market
// maker or an auction rather than another agent.
type Transaction struct {
	ID             string          `json:"id"`
	Security       FullType        `json:"security"`
	Count          decimal.Decimal `json:"count"` // signed: +buy, -sell
	AgentID        int64           `json:"agent_id"`
	CounterpartyID int64           `json:"counterparty_id"`
	Price          decimal.Decimal `json:"price"` // average fill price
	Cost           decimal.Decimal `json:"cost"`  // total cost (signed)
	Timestamp      time.Time       `json:"timestamp"`
}

// NewTransaction stamps a fresh id and timestamp on a trade record.
func NewTransaction(security FullType, count decimal.Decimal, agentID, counterpartyID int64, price, cost decimal.Decimal) Transaction {
	return Transaction{
		ID:             uuid.New().String(),
		Security:       security,
		Count:          count,
		AgentID:        agentID,
		CounterpartyID: counterpartyID,
		Price:          price,
		Cost:           cost,
		Timestamp:      time.Now().UTC(),
	}
}
