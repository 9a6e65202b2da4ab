package asset

import "github.com/shopspring/decimal"

// ExchangeID is the agent id reserved for the exchange itself. Securities
// counterpartied by a market maker, reserve bids, and settlement payouts
// all use it.
const ExchangeID int64 = 0

// Tradeable is a quantity of one instrument held in an account (or by the
// market when unowned).
type Tradeable interface {
	// AgentID returns the owning agent; ok is false for market-held inventory.
	AgentID() (id int64, ok bool)

	// Count is the signed quantity. Negative counts represent obligations.
	Count() decimal.Decimal

	// Type identifies the instrument.
	Type() FullType

	// Split returns a clone of this tradeable carrying newCount instead of
	// the original quantity. The receiver is not modified.
	Split(newCount decimal.Decimal) Tradeable

	// Payoff is the cash value of the whole holding once the terminal world
	// state is known. Goods with no payoff schedule return zero.
	Payoff(terminal WorldState) decimal.Decimal
}

// Security is an owned quantity of one instrument.
type Security struct {
	owner int64
	held  bool
	count decimal.Decimal
	typ   FullType
}

// NewSecurity creates a security owned by agentID.
func NewSecurity(agentID int64, count decimal.Decimal, typ FullType) Security {
	return Security{owner: agentID, held: true, count: count, typ: typ}
}

// MarketSecurity creates an unowned (market-held) security.
func MarketSecurity(count decimal.Decimal, typ FullType) Security {
	return Security{count: count, typ: typ}
}

func (s Security) AgentID() (int64, bool)  { return s.owner, s.held }
func (s Security) Count() decimal.Decimal  { return s.count }
func (s Security) Type() FullType          { return s.typ }

func (s Security) Split(newCount decimal.Decimal) Tradeable {
	s.count = newCount
	return s
}

func (s Security) Payoff(terminal WorldState) decimal.Decimal {
	switch s.typ.Kind {
	case KindPredictionYes:
		if terminal.Outcome {
			return s.count
		}
	case KindPredictionNo:
		if !terminal.Outcome {
			return s.count
		}
	}
	return decimal.Zero
}

// ShortShare is a short position against one side of a binary instrument.
// At settlement it owes 1 per share if the shorted side wins.
type ShortShare struct {
	owner   int64
	held    bool
	count   decimal.Decimal
	typ     FullType
	against Kind // the side being shorted
}

// NewShortShare creates a short position for agentID against the given side.
func NewShortShare(agentID int64, count decimal.Decimal, typ FullType, against Kind) ShortShare {
	return ShortShare{owner: agentID, held: true, count: count, typ: typ, against: against}
}

func (s ShortShare) AgentID() (int64, bool) { return s.owner, s.held }
func (s ShortShare) Count() decimal.Decimal { return s.count }
func (s ShortShare) Type() FullType         { return s.typ }

func (s ShortShare) Split(newCount decimal.Decimal) Tradeable {
	s.count = newCount
	return s
}

func (s ShortShare) Payoff(terminal WorldState) decimal.Decimal {
	won := terminal.Outcome && s.against == KindPredictionYes ||
		!terminal.Outcome && s.against == KindPredictionNo
	if won {
		return s.count.Neg()
	}
	return decimal.Zero
}

// GoodItem is an auctionable good. It has no settlement payoff.
type GoodItem struct {
	owner int64
	held  bool
	count decimal.Decimal
	typ   FullType
}

// NewGoodItem creates a market-held good of the given type and quantity.
func NewGoodItem(count decimal.Decimal, typ FullType) GoodItem {
	return GoodItem{count: count, typ: typ}
}

// ToAgent returns a copy of the good owned by agentID. Used when an auction
// allocates a market-held item to its winner.
func (g GoodItem) ToAgent(agentID int64) GoodItem {
	g.owner = agentID
	g.held = true
	return g
}

func (g GoodItem) AgentID() (int64, bool) { return g.owner, g.held }
func (g GoodItem) Count() decimal.Decimal { return g.count }
func (g GoodItem) Type() FullType         { return g.typ }

func (g GoodItem) Split(newCount decimal.Decimal) Tradeable {
	g.count = newCount
	return g
}

func (g GoodItem) Payoff(WorldState) decimal.Decimal { return decimal.Zero }
