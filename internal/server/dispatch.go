package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/amx/agent-exchange/internal/asset"
	"github.com/amx/agent-exchange/internal/auction"
	"github.com/amx/agent-exchange/internal/bank"
	"github.com/amx/agent-exchange/internal/exchange"
	"github.com/amx/agent-exchange/internal/instrument"
	"github.com/amx/agent-exchange/internal/metrics"
	"github.com/amx/agent-exchange/internal/model"
	"github.com/amx/agent-exchange/internal/risk"
	"github.com/amx/agent-exchange/internal/store"
)

// Conn is the dispatcher's view of one live agent connection.
type Conn interface {
	// Origin is the network origin the connection arrived from.
	Origin() string

	// Send queues an envelope for delivery on this connection.
	Send(env Envelope)

	// Identity returns the bound identity, if registration has happened.
	Identity() (Identity, bool)

	// Bind attaches a registered identity to the connection.
	Bind(id Identity)
}

// Pusher delivers envelopes by agent id. The hub implements it; tests use a
// recording fake.
type Pusher interface {
	// SendTo delivers to the agent's live session, reporting whether one
	// exists.
	SendTo(agentID int64, env Envelope) bool

	// Broadcast delivers to every live session.
	Broadcast(env Envelope)
}

// Deps collects everything the dispatcher routes between.
type Deps struct {
	Log      *slog.Logger
	Bank     *bank.Bank
	Exchange *exchange.Exchange
	House    *AuctionHouse
	Registry *Registry
	Pending  *PendingTrades
	Store    store.Store
	Limiter  *risk.ExposureLimiter
	Push     Pusher

	// SeedMonies is the cash a newly registered agent starts with.
	SeedMonies decimal.Decimal

	// TradeTTL is how long a pending bilateral offer survives before the
	// sweep expires it.
	TradeTTL time.Duration
}

// Dispatcher routes agent messages to the bank, the auction house, and the
// markets. Settlement paths run under one mutex so a funds check and the
// execution it guards cannot interleave with another agent's trade.
type Dispatcher struct {
	log     *slog.Logger
	bank    *bank.Bank
	exch    *exchange.Exchange
	house   *AuctionHouse
	reg     *Registry
	pending *PendingTrades
	store   store.Store
	limiter *risk.ExposureLimiter
	push    Pusher
	seed    decimal.Decimal
	ttl     time.Duration

	mu sync.Mutex
}

// NewDispatcher wires a dispatcher from its dependencies.
func NewDispatcher(deps Deps) *Dispatcher {
	return &Dispatcher{
		log:     deps.Log,
		bank:    deps.Bank,
		exch:    deps.Exchange,
		house:   deps.House,
		reg:     deps.Registry,
		pending: deps.Pending,
		store:   deps.Store,
		limiter: deps.Limiter,
		push:    deps.Push,
		seed:    deps.SeedMonies,
		ttl:     deps.TradeTTL,
	}
}

// SetPusher installs the outbound delivery path. The hub and the
// dispatcher reference each other, so the hub is wired in after both are
// constructed, before any connection is served.
func (d *Dispatcher) SetPusher(p Pusher) { d.push = p }

// Handle processes one raw inbound frame from a connection. Malformed and
// refused messages get a rejection; unknown types are logged and dropped.
func (d *Dispatcher) Handle(ctx context.Context, c Conn, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		d.reject(c, "malformed envelope", "")
		return
	}

	if env.Type == TypeRegister {
		d.onRegister(c, env.Payload)
		return
	}

	id, ok := c.Identity()
	if !ok {
		d.reject(c, "register first", "")
		return
	}

	switch env.Type {
	case TypeBid:
		d.onBid(c, id, env.Payload)
	case TypePurchaseRequest:
		d.onPurchase(ctx, c, id, env.Payload)
	case TypeTradeRequest:
		d.onTradeRequest(c, id, env.Payload)
	case TypeTradeDecision:
		d.onTradeDecision(c, id, env.Payload)
	default:
		d.log.Warn("dropping unknown message type", "type", env.Type, "agent_id", id.PublicID)
	}
}

func (d *Dispatcher) reject(c Conn, reason, ref string) {
	c.Send(NewEnvelope(TypeRejection, RejectionMessage{Reason: reason, Ref: ref}))
}

// --- Registration ---

func (d *Dispatcher) onRegister(c Conn, payload json.RawMessage) {
	var msg RegisterMessage
	if err := json.Unmarshal(payload, &msg); err != nil || msg.Name == "" {
		d.reject(c, "register requires a name", "")
		return
	}

	identity, isNew, err := d.reg.Register(msg.Name, c.Origin())
	if err != nil {
		d.log.Warn("registration refused",
			"name", msg.Name,
			"origin", c.Origin(),
			"error", err)
		d.reject(c, "name already registered from a different origin", msg.Name)
		return
	}

	if isNew {
		if _, err := d.bank.Open(identity.PublicID, d.seed); err != nil {
			d.log.Error("opening account failed", "agent_id", identity.PublicID, "error", err)
		}
	}

	c.Bind(identity)
	c.Send(NewEnvelope(TypeRegistration, RegistrationMessage{
		PrivateID: identity.PrivateID,
		PublicID:  identity.PublicID,
	}))
	d.sendBankUpdate(identity.PublicID)
	d.log.Info("agent registered",
		"name", identity.Name,
		"agent_id", identity.PublicID,
		"new", isNew)
}

// --- Auctions ---

func (d *Dispatcher) onBid(c Conn, id Identity, payload json.RawMessage) {
	var msg BidMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		d.reject(c, "malformed bid", "")
		return
	}

	a, err := d.house.Get(msg.AuctionID)
	if err != nil {
		metrics.BidsTotal.WithLabelValues("rejected").Inc()
		d.reject(c, "no such auction", fmt.Sprint(msg.AuctionID))
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// An agent must be able to pay the full bundle before the bid is
	// admitted; the check and the admission are one critical section.
	acct, err := d.bank.Get(id.PublicID)
	if err != nil {
		d.reject(c, "no account", "")
		return
	}
	if acct.Monies.LessThan(msg.Bundle.Cost()) {
		metrics.BidsTotal.WithLabelValues("rejected").Inc()
		d.reject(c, "insufficient funds for bid", fmt.Sprint(msg.AuctionID))
		return
	}

	if _, err := a.AddBid(id.PublicID, msg.Bundle); err != nil {
		metrics.BidsTotal.WithLabelValues("rejected").Inc()
		d.reject(c, err.Error(), fmt.Sprint(msg.AuctionID))
		return
	}
	metrics.BidsTotal.WithLabelValues("accepted").Inc()
	d.announce(a)
}

// announce pushes the auction's standing state to every registered agent.
// Each agent gets its own view: private mechanisms withhold the high bids.
func (d *Dispatcher) announce(a *auction.Auction) {
	for _, id := range d.reg.All() {
		d.push.SendTo(id.PublicID, NewEnvelope(TypeBidRequest, a.BidRequestFor(id.PublicID)))
	}
}

// --- Market purchases ---

func (d *Dispatcher) onPurchase(ctx context.Context, c Conn, id Identity, payload json.RawMessage) {
	var msg PurchaseRequestMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		d.reject(c, "malformed purchase request", "")
		return
	}

	m, err := d.exch.Get(msg.MarketID)
	if err != nil {
		d.reject(c, "no such market", fmt.Sprint(msg.MarketID))
		return
	}

	kind := instrument.KindGood
	if _, ok := m.(*exchange.PredictionMarket); ok {
		kind = instrument.KindPrediction
	}

	start := time.Now()
	d.mu.Lock()
	fills, err := d.purchaseLocked(ctx, m, kind, id.PublicID, msg)
	d.mu.Unlock()
	metrics.TradeLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	if err != nil {
		d.reject(c, err.Error(), fmt.Sprint(msg.MarketID))
		return
	}

	d.afterFills(ctx, m, kind, fills)
	d.sendBankUpdate(id.PublicID)
}

// purchaseLocked runs the checked execute path under the dispatcher mutex:
// exposure limit, holdings and worst-case funds checks, then the market
// execution and per-fill settlement.
func (d *Dispatcher) purchaseLocked(ctx context.Context, m exchange.Market, kind string, agentID int64, msg PurchaseRequestMessage) ([]exchange.Fill, error) {
	exposures, err := d.store.GetAgentKindExposures(ctx, agentID)
	if err != nil {
		d.log.Error("reading exposures failed", "agent_id", agentID, "error", err)
		exposures = nil
	}
	delta := msg.Buy.Sub(msg.Sell)
	if err := d.limiter.CheckLimit(kind, delta, exposures); err != nil {
		metrics.ExposureLimitRejections.Inc()
		return nil, err
	}

	acct, err := d.bank.Get(agentID)
	if err != nil {
		return nil, err
	}
	if err := checkAffordable(acct, m, msg); err != nil {
		return nil, err
	}

	fills, err := m.Submit(agentID, msg.Buy, msg.Sell, msg.Limit)
	if err != nil {
		return nil, err
	}
	for _, f := range fills {
		if err := d.settleFill(f); err != nil {
			metrics.TradesRejectedTotal.WithLabelValues("settlement").Inc()
			d.log.Error("fill settlement failed",
				"market_id", f.MarketID,
				"taker_id", f.TakerID,
				"maker_id", f.MakerID,
				"error", err)
		}
	}
	if cda, ok := m.(*exchange.CDA); ok {
		d.escrowResting(cda, agentID, msg, fills)
	}
	return fills, nil
}

// escrowResting moves a resting order's value out of the submitting agent's
// account: cash at the limit price behind a bid, the instrument behind an
// ask. The book holds that value until the order fills or the market
// closes, so no other spend can strip the account out from under a resting
// order. The affordability pre-check covers fills plus remainder, so this
// cannot overdraw.
func (d *Dispatcher) escrowResting(m *exchange.CDA, agentID int64, msg PurchaseRequestMessage, fills []exchange.Fill) {
	restBuy, restSell := decimal.Zero, decimal.Zero
	if msg.Buy.IsPositive() {
		restBuy = msg.Buy
	}
	if msg.Sell.IsPositive() {
		restSell = msg.Sell
	}
	for _, f := range fills {
		if f.TakerBuys {
			restBuy = restBuy.Sub(f.Count)
		} else {
			restSell = restSell.Sub(f.Count)
		}
	}
	if !restBuy.IsPositive() && !restSell.IsPositive() {
		return
	}

	typ := m.Types()[0]
	_, err := d.bank.Update(agentID, func(a asset.Account) (asset.Account, error) {
		next := a
		var err error
		if restBuy.IsPositive() {
			if next, err = next.Remove(msg.Limit.Mul(restBuy), nil); err != nil {
				return asset.Account{}, err
			}
		}
		if restSell.IsPositive() {
			if next, err = next.Remove(decimal.Zero, holdingOf(agentID, restSell, typ)); err != nil {
				return asset.Account{}, err
			}
		}
		return next, nil
	})
	if err != nil {
		d.log.Error("escrow failed",
			"market_id", m.ID(),
			"agent_id", agentID,
			"error", err)
	}
}

// checkAffordable pre-checks the worst case a request can cost before it
// touches the market, so settlement cannot fail for funds afterwards. LMSR
// shares never cost a full unit each, and order book executions never
// exceed the limit price.
func checkAffordable(acct asset.Account, m exchange.Market, msg PurchaseRequestMessage) error {
	switch v := m.(type) {
	case *exchange.PredictionMarket:
		worst := decimal.Zero
		if msg.Buy.IsPositive() {
			worst = worst.Add(msg.Buy)
		}
		if msg.Sell.IsPositive() {
			worst = worst.Add(msg.Sell)
		}
		if acct.Monies.LessThan(worst) {
			return asset.ErrInsufficientFunds
		}
		if msg.Buy.IsNegative() && acct.HoldingsOf(v.YesType()).LessThan(msg.Buy.Neg()) {
			return asset.ErrInsufficientHoldings
		}
		if msg.Sell.IsNegative() && acct.HoldingsOf(v.NoType()).LessThan(msg.Sell.Neg()) {
			return asset.ErrInsufficientHoldings
		}
	case *exchange.CDA:
		if msg.Buy.IsPositive() && acct.Monies.LessThan(msg.Buy.Mul(msg.Limit)) {
			return asset.ErrInsufficientFunds
		}
		if msg.Sell.IsPositive() && acct.HoldingsOf(v.Types()[0]).LessThan(msg.Sell) {
			return asset.ErrInsufficientHoldings
		}
	}
	return nil
}

// settleFill moves cash and holdings for one execution. Market-maker fills
// touch only the taker. Order book fills settle the taker in full; the
// resting side's assets left its account at placement, so the maker is only
// credited with what the fill owes it. With the taker pre-checked and the
// maker escrowed, settlement of a matched fill cannot fail.
func (d *Dispatcher) settleFill(f exchange.Fill) error {
	if f.MakerID == asset.ExchangeID {
		_, err := d.bank.Update(f.TakerID, func(a asset.Account) (asset.Account, error) {
			if f.TakerBuys {
				next, err := a.Remove(f.Cost, nil)
				if err != nil {
					return asset.Account{}, err
				}
				return next.Add(decimal.Zero, holdingOf(f.TakerID, f.Count, f.Asset)), nil
			}
			// Selling back: the signed cost is negative, so removing it
			// credits the proceeds.
			return a.Remove(f.Cost, holdingOf(f.TakerID, f.Count, f.Asset))
		})
		return err
	}

	takerLeg := func(a asset.Account) (asset.Account, error) {
		if f.TakerBuys {
			next, err := a.Remove(f.Cost, nil)
			if err != nil {
				return asset.Account{}, err
			}
			return next.Add(decimal.Zero, holdingOf(f.TakerID, f.Count, f.Asset)), nil
		}
		return a.Remove(f.Cost.Neg(), holdingOf(f.TakerID, f.Count, f.Asset))
	}
	makerLeg := func(a asset.Account) asset.Account {
		if f.TakerBuys {
			// Resting seller: the goods went into escrow at placement, only
			// the proceeds move now.
			return a.Add(f.Cost, nil)
		}
		// Resting buyer: the cash went into escrow at placement (execution
		// is at the resting price, so the amounts match exactly).
		return a.Add(decimal.Zero, holdingOf(f.MakerID, f.Count, f.Asset))
	}

	if f.TakerID == f.MakerID {
		// Crossing one's own resting order: both legs land on one account,
		// returning the escrowed side.
		_, err := d.bank.Update(f.TakerID, func(a asset.Account) (asset.Account, error) {
			next, err := takerLeg(a)
			if err != nil {
				return asset.Account{}, err
			}
			return makerLeg(next), nil
		})
		return err
	}

	_, _, err := d.bank.Transfer(f.TakerID, f.MakerID, func(taker, maker asset.Account) (asset.Account, asset.Account, error) {
		nextTaker, err := takerLeg(taker)
		if err != nil {
			return asset.Account{}, asset.Account{}, err
		}
		return nextTaker, makerLeg(maker), nil
	})
	return err
}

// afterFills records the ledger entries, refreshes the persisted market
// state, and pushes updates to everyone affected.
func (d *Dispatcher) afterFills(ctx context.Context, m exchange.Market, kind string, fills []exchange.Fill) {
	if len(fills) == 0 {
		return
	}

	ticker := ""
	if rec, err := d.store.GetMarket(ctx, m.ID()); err == nil {
		ticker = rec.Ticker
	}

	now := time.Now().UTC()
	for _, f := range fills {
		qty := f.Count
		side := "buy"
		if !f.TakerBuys {
			qty = qty.Neg()
			side = "sell"
		}
		entry := &model.LedgerEntry{
			ID:             uuid.New().String(),
			MarketID:       f.MarketID,
			Ticker:         ticker,
			AgentID:        f.TakerID,
			CounterpartyID: f.MakerID,
			Side:           sideOf(f.Asset.Kind),
			Quantity:       qty,
			Price:          f.Price,
			Cost:           f.Cost,
			Timestamp:      now,
		}
		if err := d.store.InsertLedgerEntry(ctx, entry); err != nil {
			d.log.Error("ledger insert failed", "market_id", f.MarketID, "error", err)
		}
		metrics.TradesTotal.WithLabelValues(kind, side).Inc()
		metrics.MarketVolume.WithLabelValues(fmt.Sprint(f.MarketID), side).Add(f.Count.InexactFloat64())

		if f.MakerID != asset.ExchangeID {
			d.sendBankUpdate(f.MakerID)
		}
	}

	snap := m.Snapshot()
	if kind == instrument.KindPrediction {
		err := d.store.UpdateMarketState(ctx, m.ID(), snap.QYes, snap.QNo, snap.PriceYes, snap.PriceNo, snap.TradeCount)
		if err != nil && err != store.ErrNotFound {
			d.log.Error("market state update failed", "market_id", m.ID(), "error", err)
		}
	}
	d.push.Broadcast(NewEnvelope(TypeMarketUpdate, MarketUpdateMessage{Snapshot: snap}))
}

// sideOf maps an instrument kind to its ledger side label.
func sideOf(kind asset.Kind) string {
	switch kind {
	case asset.KindPredictionYes:
		return "YES"
	case asset.KindPredictionNo:
		return "NO"
	default:
		return "GOOD"
	}
}

// holdingOf builds the account holding for a quantity of one instrument.
func holdingOf(agentID int64, count decimal.Decimal, typ asset.FullType) asset.Tradeable {
	if typ.Kind == asset.KindGood {
		return asset.NewGoodItem(count, typ).ToAgent(agentID)
	}
	return asset.NewSecurity(agentID, count, typ)
}

// CloseMarket freezes and settles a market under the settlement mutex, so
// the terminal sweep cannot interleave with an in-flight purchase's
// settlement.
func (d *Dispatcher) CloseMarket(id int64, terminal asset.WorldState) ([]exchange.Payout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exch.Close(id, terminal, d.bank)
}

// --- Bilateral trades ---

func (d *Dispatcher) onTradeRequest(c Conn, id Identity, payload json.RawMessage) {
	var msg TradeRequestMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		d.reject(c, "malformed trade request", "")
		return
	}
	if msg.ToPublicID == id.PublicID {
		d.reject(c, "cannot trade with yourself", "")
		return
	}
	if _, err := d.reg.ByPublic(msg.ToPublicID); err != nil {
		d.reject(c, "no such agent", fmt.Sprint(msg.ToPublicID))
		return
	}

	t := d.pending.Add(id.PublicID, msg.ToPublicID, msg, time.Now())
	d.push.SendTo(msg.ToPublicID, NewEnvelope(TypeTradeOffer, TradeOfferMessage{
		TradeID:       t.ID,
		FromPublicID:  id.PublicID,
		OfferMonies:   msg.OfferMonies,
		OfferHoldings: msg.OfferHoldings,
		AskMonies:     msg.AskMonies,
		AskHoldings:   msg.AskHoldings,
	}))
	d.log.Info("trade offered",
		"trade_id", t.ID,
		"from", id.PublicID,
		"to", msg.ToPublicID)
}

func (d *Dispatcher) onTradeDecision(c Conn, id Identity, payload json.RawMessage) {
	var msg TradeDecisionMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		d.reject(c, "malformed trade decision", "")
		return
	}

	// Either party may withdraw an offer; only the addressee may accept.
	if !msg.Accept {
		t, ok := d.pending.Withdraw(msg.TradeID, id.PublicID)
		if !ok {
			d.reject(c, "no such pending trade", msg.TradeID)
			return
		}
		d.tradeResult(t, false, "declined")
		return
	}

	t, ok := d.pending.Take(msg.TradeID, id.PublicID)
	if !ok {
		d.reject(c, "no such pending trade", msg.TradeID)
		return
	}

	d.mu.Lock()
	err := d.executeTrade(t)
	d.mu.Unlock()

	if err != nil {
		metrics.TradesRejectedTotal.WithLabelValues("uncovered").Inc()
		d.log.Warn("trade failed", "trade_id", t.ID, "error", err)
		d.tradeResult(t, false, err.Error())
		return
	}
	d.tradeResult(t, true, "")
	d.sendBankUpdate(t.FromID)
	d.sendBankUpdate(t.ToID)
}

// executeTrade swaps the offered and asked legs between the two accounts
// atomically. Both sides must cover their leg at decision time or nothing
// moves.
func (d *Dispatcher) executeTrade(t PendingTrade) error {
	offer := tradeables(t.Offer.OfferHoldings, t.FromID)
	ask := tradeables(t.Offer.AskHoldings, t.ToID)

	_, _, err := d.bank.Transfer(t.FromID, t.ToID, func(from, to asset.Account) (asset.Account, asset.Account, error) {
		if !from.Covers(t.Offer.OfferMonies, offer) {
			return asset.Account{}, asset.Account{}, fmt.Errorf("proposer cannot cover offer")
		}
		if !to.Covers(t.Offer.AskMonies, ask) {
			return asset.Account{}, asset.Account{}, fmt.Errorf("counterparty cannot cover ask")
		}

		nextFrom, err := removeAll(from, t.Offer.OfferMonies, offer)
		if err != nil {
			return asset.Account{}, asset.Account{}, err
		}
		nextFrom = nextFrom.AddAll(t.Offer.AskMonies, tradeables(t.Offer.AskHoldings, t.FromID))

		nextTo, err := removeAll(to, t.Offer.AskMonies, ask)
		if err != nil {
			return asset.Account{}, asset.Account{}, err
		}
		nextTo = nextTo.AddAll(t.Offer.OfferMonies, tradeables(t.Offer.OfferHoldings, t.ToID))
		return nextFrom, nextTo, nil
	})
	return err
}

func (d *Dispatcher) tradeResult(t PendingTrade, executed bool, reason string) {
	env := NewEnvelope(TypeTradeResult, TradeResultMessage{
		TradeID:  t.ID,
		Executed: executed,
		Reason:   reason,
	})
	d.push.SendTo(t.FromID, env)
	d.push.SendTo(t.ToID, env)
}

func tradeables(specs []HoldingSpec, agentID int64) []asset.Tradeable {
	out := make([]asset.Tradeable, 0, len(specs))
	for _, s := range specs {
		out = append(out, s.Tradeable(agentID))
	}
	return out
}

func removeAll(a asset.Account, monies decimal.Decimal, ts []asset.Tradeable) (asset.Account, error) {
	next, err := a.Remove(monies, nil)
	if err != nil {
		return asset.Account{}, err
	}
	for _, t := range ts {
		next, err = next.Remove(decimal.Zero, t)
		if err != nil {
			return asset.Account{}, err
		}
	}
	return next, nil
}

// --- Sweep ---

// Sweep is the periodic tick: it expires stale trade offers, advances every
// auction clock, closes and settles finished auctions, and re-announces the
// open ones.
func (d *Dispatcher) Sweep(now time.Time) {
	for _, t := range d.pending.ExpireBefore(now.Add(-d.ttl)) {
		d.tradeResult(t, false, "expired")
	}

	for _, a := range d.house.Open() {
		a.Tick(now)
		if a.IsOver() {
			d.closeAuction(a)
			continue
		}
		d.announce(a)
	}
}

// closeAuction seals one auction, settles winners against the bank, and
// broadcasts the result.
func (d *Dispatcher) closeAuction(a *auction.Auction) {
	d.mu.Lock()
	outcome := a.Close()

	result := AuctionResultMessage{
		AuctionID: a.ID,
		Winners:   make(map[int64][]HoldingSpec),
		Payments:  make(map[int64]decimal.Decimal),
	}
	allocated := make(map[asset.FullType]bool)

	for agentID, goods := range outcome.Allocation.Winners {
		payment := outcome.Payments[agentID]
		rebased := make([]asset.Tradeable, 0, len(goods))
		for _, g := range goods {
			rebased = append(rebased, holdingOf(agentID, g.Count(), g.Type()))
		}
		_, err := d.bank.Update(agentID, func(acct asset.Account) (asset.Account, error) {
			next, err := acct.Remove(payment, nil)
			if err != nil {
				return asset.Account{}, err
			}
			return next.AddAll(decimal.Zero, rebased), nil
		})
		if err != nil {
			// The bid-time funds check can be stale by close; the win is
			// forfeited and the goods stay with the exchange.
			d.log.Error("auction settlement failed",
				"auction_id", a.ID,
				"agent_id", agentID,
				"error", err)
			continue
		}
		result.Winners[agentID] = SpecsOf(rebased)
		result.Payments[agentID] = payment
		for _, g := range goods {
			allocated[g.Type()] = true
		}
	}

	for _, item := range a.Items() {
		if !allocated[item.Type()] {
			result.Unsold = append(result.Unsold, HoldingSpec{
				Kind:  string(item.Type().Kind),
				ID:    item.Type().ID,
				Count: item.Count(),
			})
		}
	}

	d.house.Remove(a.ID)
	d.mu.Unlock()

	metrics.ActiveAuctions.Dec()
	d.push.Broadcast(NewEnvelope(TypeAuctionResult, result))
	for agentID := range result.Winners {
		d.sendBankUpdate(agentID)
	}
	d.log.Info("auction closed",
		"auction_id", a.ID,
		"winners", len(result.Winners),
		"unsold", len(result.Unsold))
}

// sendBankUpdate pushes the authoritative account view to one agent.
func (d *Dispatcher) sendBankUpdate(agentID int64) {
	acct, err := d.bank.Get(agentID)
	if err != nil {
		return
	}
	d.push.SendTo(agentID, NewEnvelope(TypeBankUpdate, BankUpdateMessage{
		Monies:   acct.Monies,
		Holdings: SpecsOf(acct.Holdings),
	}))
}
