// Package server implements the agent-facing connection layer: message
// envelopes, registration, the session hub, and the dispatcher that routes
// agent messages to auctions, markets, and the bank.
package server

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/amx/agent-exchange/internal/asset"
	"github.com/amx/agent-exchange/internal/auction"
	"github.com/amx/agent-exchange/internal/exchange"
)

// Message types carried in an Envelope. Inbound types are sent by agents,
// outbound types by the server. Unknown types are logged and dropped.
const (
	// inbound
	TypeRegister        = "register"
	TypeBid             = "bid"
	TypePurchaseRequest = "purchase_request"
	TypeTradeRequest    = "trade_request"
	TypeTradeDecision   = "trade_decision"

	// outbound
	TypeRegistration  = "registration"
	TypeRejection     = "rejection"
	TypeBidRequest    = "bid_request"
	TypeMarketUpdate  = "market_update"
	TypeBankUpdate    = "bank_update"
	TypeTradeOffer    = "trade_offer"
	TypeTradeResult   = "trade_result"
	TypeAuctionResult = "auction_result"
)

// Envelope is the wire frame for every message in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope wraps a payload. Marshal errors are impossible for our own
// payload types, so they panic rather than propagate.
func NewEnvelope(typ string, payload interface{}) Envelope {
	data, err := json.Marshal(payload)
	if err != nil {
		panic("server: unmarshalable payload: " + err.Error())
	}
	return Envelope{Type: typ, Payload: data}
}

// HoldingSpec names a quantity of one instrument on the wire.
type HoldingSpec struct {
	Kind  string          `json:"kind"`
	ID    int64           `json:"id"`
	Count decimal.Decimal `json:"count"`
}

// Tradeable converts the described holding to one owned by agentID.
func (h HoldingSpec) Tradeable(agentID int64) asset.Tradeable {
	typ := asset.FullType{Kind: asset.Kind(h.Kind), ID: h.ID}
	if typ.Kind == asset.KindGood {
		return asset.NewGoodItem(h.Count, typ).ToAgent(agentID)
	}
	return asset.NewSecurity(agentID, h.Count, typ)
}

// SpecsOf renders an account's holdings as wire specs.
func SpecsOf(holdings []asset.Tradeable) []HoldingSpec {
	specs := make([]HoldingSpec, 0, len(holdings))
	for _, h := range holdings {
		specs = append(specs, HoldingSpec{
			Kind:  string(h.Type().Kind),
			ID:    h.Type().ID,
			Count: h.Count(),
		})
	}
	return specs
}

// --- Inbound payloads ---

// RegisterMessage opens (or resumes) an agent's session.
type RegisterMessage struct {
	Name string `json:"name"`
}

// BidMessage submits a bundle to one auction. Any agent id inside the
// bundle is ignored; the server stamps the authenticated sender.
type BidMessage struct {
	AuctionID int64             `json:"auction_id"`
	Bundle    auction.BidBundle `json:"bundle"`
}

// PurchaseRequestMessage trades against a listed market. For prediction
// markets Buy and Sell are YES and NO share quantities (negative sells
// back); for order books they are buy and sell unit quantities and Limit
// is mandatory.
type PurchaseRequestMessage struct {
	MarketID int64           `json:"market_id"`
	Buy      decimal.Decimal `json:"buy"`
	Sell     decimal.Decimal `json:"sell"`
	Limit    decimal.Decimal `json:"limit"`
}

// TradeRequestMessage proposes a bilateral swap with another agent,
// addressed by public id: the proposer gives OfferMonies plus
// OfferHoldings in exchange for AskMonies plus AskHoldings.
type TradeRequestMessage struct {
	ToPublicID    int64           `json:"to_public_id"`
	OfferMonies   decimal.Decimal `json:"offer_monies"`
	OfferHoldings []HoldingSpec   `json:"offer_holdings,omitempty"`
	AskMonies     decimal.Decimal `json:"ask_monies"`
	AskHoldings   []HoldingSpec   `json:"ask_holdings,omitempty"`
}

// TradeDecisionMessage accepts or rejects a pending trade offer.
type TradeDecisionMessage struct {
	TradeID string `json:"trade_id"`
	Accept  bool   `json:"accept"`
}

// --- Outbound payloads ---

// RegistrationMessage carries the session's identifiers. The private id
// authenticates subsequent messages and is never shown to other agents;
// the public id is how other agents address this one.
type RegistrationMessage struct {
	PrivateID string `json:"private_id"`
	PublicID  int64  `json:"public_id"`
}

// RejectionMessage reports why a message was refused. Ref echoes an
// identifier from the refused message when one exists.
type RejectionMessage struct {
	Reason string `json:"reason"`
	Ref    string `json:"ref,omitempty"`
}

// BankUpdateMessage is the authoritative view of the agent's account.
type BankUpdateMessage struct {
	Monies   decimal.Decimal `json:"monies"`
	Holdings []HoldingSpec   `json:"holdings"`
}

// MarketUpdateMessage is pushed after executions and carries the venue's
// public state.
type MarketUpdateMessage struct {
	Snapshot exchange.Snapshot `json:"snapshot"`
}

// TradeOfferMessage forwards a pending bilateral offer to its addressee.
type TradeOfferMessage struct {
	TradeID       string          `json:"trade_id"`
	FromPublicID  int64           `json:"from_public_id"`
	OfferMonies   decimal.Decimal `json:"offer_monies"`
	OfferHoldings []HoldingSpec   `json:"offer_holdings,omitempty"`
	AskMonies     decimal.Decimal `json:"ask_monies"`
	AskHoldings   []HoldingSpec   `json:"ask_holdings,omitempty"`
}

// TradeResultMessage reports the outcome of a pending trade to both sides.
type TradeResultMessage struct {
	TradeID  string `json:"trade_id"`
	Executed bool   `json:"executed"`
	Reason   string `json:"reason,omitempty"`
}

// AuctionResultMessage announces a closed auction's outcome. Winners maps
// public agent ids to the goods they won; prices are what they paid.
type AuctionResultMessage struct {
	AuctionID int64                     `json:"auction_id"`
	Winners   map[int64][]HoldingSpec   `json:"winners"`
	Payments  map[int64]decimal.Decimal `json:"payments"`
	Unsold    []HoldingSpec             `json:"unsold,omitempty"`
}
