package auction

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/amx/agent-exchange/internal/asset"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func good(id int64) asset.Tradeable {
	return asset.NewGoodItem(decimal.NewFromInt(1), asset.FullType{Kind: asset.KindGood, ID: id})
}

func sealed(id int64, items []asset.Tradeable, reserve BidBundle, pay PaymentRule) *Auction {
	return New(id, items, reserve, NewSealedBidRule(3), pay)
}

// --- Bid acceptance ---

func TestAddBid_StampsAgentAndSeq(t *testing.T) {
	item := good(7)
	a := sealed(1, []asset.Tradeable{item}, BidBundle{}, FirstPriceRule{})

	// The bundle claims agent 99; the authenticated sender is agent 5.
	bundle := SingleGoodBundle(99, item.Type(), d(10))
	b1, err := a.AddBid(5, bundle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p, _ := b1.Bundle.Point(item.Type()); p.AgentID != 5 {
		t.Errorf("bundle should be re-stamped with sender id 5, got %d", p.AgentID)
	}
	if b1.Seq != 0 {
		t.Errorf("first bid should get seq 0, got %d", b1.Seq)
	}

	b2, err := a.AddBid(6, SingleGoodBundle(6, item.Type(), d(11)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b2.Seq != 1 {
		t.Errorf("second bid should get seq 1, got %d", b2.Seq)
	}
}

func TestAddBid_WrongShape(t *testing.T) {
	item := good(7)
	a := sealed(1, []asset.Tradeable{item}, BidBundle{}, FirstPriceRule{})

	other := asset.FullType{Kind: asset.KindGood, ID: 999}
	_, err := a.AddBid(5, SingleGoodBundle(5, other, d(10)))
	if err != ErrWrongShape {
		t.Errorf("expected ErrWrongShape for unlisted good, got %v", err)
	}

	_, err = a.AddBid(5, BidBundle{})
	if err != ErrWrongShape {
		t.Errorf("expected ErrWrongShape for empty bundle, got %v", err)
	}
}

func TestAddBid_NonPositivePrice(t *testing.T) {
	item := good(7)
	a := sealed(1, []asset.Tradeable{item}, BidBundle{}, FirstPriceRule{})

	_, err := a.AddBid(5, SingleGoodBundle(5, item.Type(), d(0)))
	if err != ErrNonPositiveBid {
		t.Errorf("expected ErrNonPositiveBid, got %v", err)
	}
	_, err = a.AddBid(5, SingleGoodBundle(5, item.Type(), d(-3)))
	if err != ErrNonPositiveBid {
		t.Errorf("expected ErrNonPositiveBid, got %v", err)
	}
}

func TestAddBid_BelowReserve(t *testing.T) {
	item := good(7)
	reserve := ReserveBundle(map[asset.FullType]decimal.Decimal{item.Type(): d(50)})
	a := sealed(1, []asset.Tradeable{item}, reserve, FirstPriceRule{})

	_, err := a.AddBid(5, SingleGoodBundle(5, item.Type(), d(49)))
	if err != ErrBelowReserve {
		t.Errorf("expected ErrBelowReserve, got %v", err)
	}
	if _, err := a.AddBid(5, SingleGoodBundle(5, item.Type(), d(50))); err != nil {
		t.Errorf("bid meeting the reserve exactly should be accepted, got %v", err)
	}
}

func TestAddBid_AfterClose(t *testing.T) {
	item := good(7)
	a := sealed(1, []asset.Tradeable{item}, BidBundle{}, FirstPriceRule{})
	a.Close()

	_, err := a.AddBid(5, SingleGoodBundle(5, item.Type(), d(10)))
	if err != ErrAuctionClosed {
		t.Errorf("expected ErrAuctionClosed, got %v", err)
	}
}

// --- Payment rules ---

func TestClose_FirstPrice(t *testing.T) {
	item := good(7)
	a := sealed(1, []asset.Tradeable{item}, BidBundle{}, FirstPriceRule{})

	mustBid(t, a, 1, item.Type(), 60)
	mustBid(t, a, 2, item.Type(), 40)

	out := a.Close()
	if len(out.Allocation.Winners[1]) != 1 {
		t.Fatalf("agent 1 should win the good")
	}
	if !out.Payments[1].Equal(d(60)) {
		t.Errorf("first-price winner pays own bid 60, got %s", out.Payments[1])
	}
	if _, ok := out.Payments[2]; ok {
		t.Errorf("loser should owe nothing")
	}
}

func TestClose_SecondPrice(t *testing.T) {
	item := good(7)
	a := sealed(1, []asset.Tradeable{item}, BidBundle{}, SecondPriceRule{})

	mustBid(t, a, 1, item.Type(), 60)
	mustBid(t, a, 2, item.Type(), 40)

	out := a.Close()
	if len(out.Allocation.Winners[1]) != 1 {
		t.Fatalf("agent 1 should win the good")
	}
	if !out.Payments[1].Equal(d(40)) {
		t.Errorf("second-price winner pays runner-up 40, got %s", out.Payments[1])
	}
}

func TestClose_SecondPriceReserveIsFloor(t *testing.T) {
	item := good(7)
	reserve := ReserveBundle(map[asset.FullType]decimal.Decimal{item.Type(): d(25)})
	a := sealed(1, []asset.Tradeable{item}, reserve, SecondPriceRule{})

	// Sole bidder above the reserve pays the reserve, not zero.
	mustBid(t, a, 1, item.Type(), 60)

	out := a.Close()
	if len(out.Allocation.Winners[1]) != 1 {
		t.Fatalf("agent 1 should win the good")
	}
	if !out.Payments[1].Equal(d(25)) {
		t.Errorf("sole bidder should pay reserve 25, got %s", out.Payments[1])
	}
}

func TestClose_SecondPriceSoleBidderNoReserve(t *testing.T) {
	item := good(7)
	a := sealed(1, []asset.Tradeable{item}, BidBundle{}, SecondPriceRule{})

	mustBid(t, a, 1, item.Type(), 60)

	out := a.Close()
	if !out.Payments[1].IsZero() {
		t.Errorf("sole bidder without reserve pays zero, got %s", out.Payments[1])
	}
}

func TestClose_SecondPriceOwnBidsDoNotCompete(t *testing.T) {
	item := good(7)
	a := sealed(1, []asset.Tradeable{item}, BidBundle{}, SecondPriceRule{})

	// Agent 1 bids twice; its lower bid must not set its own price.
	mustBid(t, a, 1, item.Type(), 50)
	mustBid(t, a, 2, item.Type(), 40)
	mustBid(t, a, 1, item.Type(), 60)

	out := a.Close()
	if !out.Payments[1].Equal(d(40)) {
		t.Errorf("runner-up must be another agent's bid: want 40, got %s", out.Payments[1])
	}
}

// --- Ranking ---

func TestClose_TieGoesToEarlierBid(t *testing.T) {
	item := good(7)
	a := sealed(1, []asset.Tradeable{item}, BidBundle{}, FirstPriceRule{})

	mustBid(t, a, 1, item.Type(), 50)
	mustBid(t, a, 2, item.Type(), 50)

	out := a.Close()
	if len(out.Allocation.Winners[1]) != 1 {
		t.Errorf("earlier of two equal bids should win")
	}
	if len(out.Allocation.Winners[2]) != 0 {
		t.Errorf("later equal bid should lose")
	}
}

func TestClose_NoBidsAboveReserveLeavesGoodUnsold(t *testing.T) {
	item := good(7)
	reserve := ReserveBundle(map[asset.FullType]decimal.Decimal{item.Type(): d(100)})
	a := sealed(1, []asset.Tradeable{item}, reserve, FirstPriceRule{})

	out := a.Close()
	if len(out.Allocation.Winners) != 0 {
		t.Errorf("unsold good must not appear in winners: %v", out.Allocation.Winners)
	}
	if len(out.Payments) != 0 {
		t.Errorf("no payments expected, got %v", out.Payments)
	}
}

func TestClose_MultiGood(t *testing.T) {
	g1, g2 := good(1), good(2)
	a := sealed(1, []asset.Tradeable{g1, g2}, BidBundle{}, FirstPriceRule{})

	bundle := BidBundle{Points: map[asset.FullType]BidPoint{
		g1.Type(): {Price: d(10)},
		g2.Type(): {Price: d(20)},
	}}
	if _, err := a.AddBid(1, bundle); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mustBid(t, a, 2, g2.Type(), 30)

	out := a.Close()
	if len(out.Allocation.Winners[1]) != 1 {
		t.Errorf("agent 1 should win good 1 only, got %v", out.Allocation.Winners[1])
	}
	if len(out.Allocation.Winners[2]) != 1 {
		t.Errorf("agent 2 should win good 2, got %v", out.Allocation.Winners[2])
	}
	if !out.Payments[1].Equal(d(10)) {
		t.Errorf("agent 1 pays 10, got %s", out.Payments[1])
	}
	if !out.Payments[2].Equal(d(30)) {
		t.Errorf("agent 2 pays 30, got %s", out.Payments[2])
	}
}

// --- State machine ---

func TestClose_Idempotent(t *testing.T) {
	item := good(7)
	a := sealed(1, []asset.Tradeable{item}, BidBundle{}, FirstPriceRule{})
	mustBid(t, a, 1, item.Type(), 60)

	first := a.Close()
	mustNotBid(t, a, 2, item.Type(), 99)
	second := a.Close()

	if !second.Payments[1].Equal(first.Payments[1]) {
		t.Errorf("repeated Close must return the cached outcome")
	}
	if len(second.Allocation.Winners) != len(first.Allocation.Winners) {
		t.Errorf("repeated Close must return the cached allocation")
	}
}

func TestSealedBid_ClosesAfterBudget(t *testing.T) {
	item := good(7)
	a := New(1, []asset.Tradeable{item}, BidBundle{}, NewSealedBidRule(3), FirstPriceRule{})

	now := time.Now()
	for i := 0; i < 2; i++ {
		a.Tick(now)
		if a.IsOver() {
			t.Fatalf("auction over after %d of 3 ticks", i+1)
		}
	}
	a.Tick(now)
	if !a.IsOver() {
		t.Errorf("auction should be over after 3 ticks")
	}
}

func TestSealedBid_BidsDoNotExtendClock(t *testing.T) {
	item := good(7)
	a := New(1, []asset.Tradeable{item}, BidBundle{}, NewSealedBidRule(2), FirstPriceRule{})

	now := time.Now()
	a.Tick(now)
	mustBid(t, a, 1, item.Type(), 10)
	a.Tick(now)
	if !a.IsOver() {
		t.Errorf("sealed-bid clock must ignore bidding activity")
	}
}

func TestOpenOutcry_ClosesOnInactivity(t *testing.T) {
	item := good(7)
	a := New(1, []asset.Tradeable{item}, BidBundle{},
		NewOpenOutcryRule(d(5), 2), FirstPriceRule{})

	now := time.Now()
	a.Tick(now)
	mustBid(t, a, 1, item.Type(), 10) // resets the idle counter
	a.Tick(now)
	if a.IsOver() {
		t.Fatalf("one idle tick after a bid should not close the auction")
	}
	a.Tick(now)
	if !a.IsOver() {
		t.Errorf("two idle ticks should close the auction")
	}
}

func TestOpenOutcry_IncrementAgainstOwnPrior(t *testing.T) {
	item := good(7)
	a := New(1, []asset.Tradeable{item}, BidBundle{},
		NewOpenOutcryRule(d(5), 2), FirstPriceRule{})

	mustBid(t, a, 1, item.Type(), 10)

	// Same agent must improve by at least the increment.
	_, err := a.AddBid(1, SingleGoodBundle(1, item.Type(), d(14)))
	if err != ErrBelowIncrement {
		t.Errorf("expected ErrBelowIncrement for 10 -> 14 with increment 5, got %v", err)
	}
	if _, err := a.AddBid(1, SingleGoodBundle(1, item.Type(), d(15))); err != nil {
		t.Errorf("10 -> 15 meets the increment, got %v", err)
	}

	// Another agent is free to open below the standing high.
	if _, err := a.AddBid(2, SingleGoodBundle(2, item.Type(), d(3))); err != nil {
		t.Errorf("other agents are not bound by the standing high, got %v", err)
	}
}

// --- Announcements ---

func TestBidRequestFor_PrivateHidesHighBids(t *testing.T) {
	item := good(7)
	a := sealed(1, []asset.Tradeable{item}, BidBundle{}, FirstPriceRule{})
	mustBid(t, a, 1, item.Type(), 60)
	mustBid(t, a, 2, item.Type(), 40)

	req := a.BidRequestFor(2)
	if req.High != nil {
		t.Errorf("sealed-bid announcements must not expose high bids: %v", req.High)
	}
	if !req.Yours[item.Type()].Equal(d(40)) {
		t.Errorf("agent's own best bid should be reported, got %s", req.Yours[item.Type()])
	}
	if !req.Open {
		t.Errorf("auction should still be open")
	}
}

func TestBidRequestFor_PublicShowsHighBids(t *testing.T) {
	item := good(7)
	a := New(1, []asset.Tradeable{item}, BidBundle{},
		NewOpenOutcryRule(d(5), 2), FirstPriceRule{})
	mustBid(t, a, 1, item.Type(), 60)
	mustBid(t, a, 2, item.Type(), 40)

	req := a.BidRequestFor(2)
	high, ok := req.High[item.Type()]
	if !ok {
		t.Fatalf("open-outcry announcements should expose the standing high")
	}
	if high.AgentID != 1 || !high.Price.Equal(d(60)) {
		t.Errorf("standing high should be agent 1 at 60, got agent %d at %s",
			high.AgentID, high.Price)
	}
	if !req.Increment.Equal(d(5)) {
		t.Errorf("increment should be announced, got %s", req.Increment)
	}
}

func TestBidRequestFor_TicksRemaining(t *testing.T) {
	item := good(7)
	a := New(1, []asset.Tradeable{item}, BidBundle{}, NewSealedBidRule(3), FirstPriceRule{})
	a.Tick(time.Now())

	req := a.BidRequestFor(1)
	if req.TicksRemaining != 2 {
		t.Errorf("expected 2 ticks remaining, got %d", req.TicksRemaining)
	}
}

// --- helpers ---

func mustBid(t *testing.T, a *Auction, agentID int64, typ asset.FullType, price float64) {
	t.Helper()
	if _, err := a.AddBid(agentID, SingleGoodBundle(agentID, typ, d(price))); err != nil {
		t.Fatalf("bid by %d at %.0f rejected: %v", agentID, price, err)
	}
}

func mustNotBid(t *testing.T, a *Auction, agentID int64, typ asset.FullType, price float64) {
	t.Helper()
	if _, err := a.AddBid(agentID, SingleGoodBundle(agentID, typ, d(price))); err == nil {
		t.Fatalf("bid by %d at %.0f should have been rejected", agentID, price)
	}
}
