package exchange

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/amx/agent-exchange/internal/asset"
	"github.com/amx/agent-exchange/internal/bank"
	"github.com/amx/agent-exchange/internal/lmsr"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newBook(t *testing.T) *CDA {
	t.Helper()
	return NewCDA(1, asset.FullType{Kind: asset.KindGood, ID: 1})
}

// --- CDA matching ---

func TestCDA_RestsWhenNoCross(t *testing.T) {
	m := newBook(t)
	fills, err := m.Submit(1, d(10), decimal.Zero, d(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fills) != 0 {
		t.Errorf("bid into empty book must rest, got %d fills", len(fills))
	}
	snap := m.Snapshot()
	if !snap.BestBid.Equal(d(5)) {
		t.Errorf("expected best bid 5, got %s", snap.BestBid)
	}
}

func TestCDA_ExecutesAtRestingPrice(t *testing.T) {
	m := newBook(t)
	m.Submit(1, decimal.Zero, d(10), d(5)) // ask 10 @ 5

	fills, err := m.Submit(2, d(10), decimal.Zero, d(7)) // bid @ 7 crosses
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(fills))
	}
	f := fills[0]
	if !f.Price.Equal(d(5)) {
		t.Errorf("execution must be at the resting price 5, got %s", f.Price)
	}
	if f.TakerID != 2 || f.MakerID != 1 {
		t.Errorf("taker/maker wrong: %d/%d", f.TakerID, f.MakerID)
	}
	if !f.Cost.Equal(d(50)) {
		t.Errorf("cost should be 50, got %s", f.Cost)
	}
}

func TestCDA_PricePriority(t *testing.T) {
	m := newBook(t)
	m.Submit(1, decimal.Zero, d(5), d(6)) // ask @ 6
	m.Submit(2, decimal.Zero, d(5), d(4)) // ask @ 4, better

	fills, _ := m.Submit(3, d(5), decimal.Zero, d(10))
	if len(fills) != 1 || fills[0].MakerID != 2 {
		t.Fatalf("best-priced ask must fill first: %+v", fills)
	}
	if !fills[0].Price.Equal(d(4)) {
		t.Errorf("expected execution at 4, got %s", fills[0].Price)
	}
}

func TestCDA_TimePriorityAtEqualPrice(t *testing.T) {
	m := newBook(t)
	m.Submit(1, decimal.Zero, d(5), d(6))
	m.Submit(2, decimal.Zero, d(5), d(6))

	fills, _ := m.Submit(3, d(5), decimal.Zero, d(6))
	if len(fills) != 1 || fills[0].MakerID != 1 {
		t.Fatalf("earlier ask at equal price must fill first: %+v", fills)
	}
}

func TestCDA_PartialFillRestsRemainder(t *testing.T) {
	m := newBook(t)
	m.Submit(1, decimal.Zero, d(4), d(5)) // ask 4 @ 5

	fills, _ := m.Submit(2, d(10), decimal.Zero, d(5))
	if len(fills) != 1 || !fills[0].Count.Equal(d(4)) {
		t.Fatalf("expected 4 units filled: %+v", fills)
	}
	snap := m.Snapshot()
	if !snap.BestBid.Equal(d(5)) {
		t.Errorf("remainder should rest as a bid at 5, got %s", snap.BestBid)
	}
}

func TestCDA_SweepsMultipleLevels(t *testing.T) {
	m := newBook(t)
	m.Submit(1, decimal.Zero, d(3), d(4))
	m.Submit(2, decimal.Zero, d(3), d(5))

	fills, _ := m.Submit(3, d(6), decimal.Zero, d(5))
	if len(fills) != 2 {
		t.Fatalf("expected 2 fills sweeping both levels, got %d", len(fills))
	}
	if !fills[0].Price.Equal(d(4)) || !fills[1].Price.Equal(d(5)) {
		t.Errorf("fills should walk the book from the best price: %+v", fills)
	}
}

func TestCDA_UncrossedAfterSubmit(t *testing.T) {
	m := newBook(t)
	m.Submit(1, decimal.Zero, d(10), d(6))
	m.Submit(2, d(3), decimal.Zero, d(7))
	m.Submit(3, d(2), decimal.Zero, d(5))

	snap := m.Snapshot()
	if !snap.BestAsk.IsZero() && !snap.BestBid.IsZero() &&
		snap.BestBid.GreaterThanOrEqual(snap.BestAsk) {
		t.Errorf("book must be uncrossed: bid=%s ask=%s", snap.BestBid, snap.BestAsk)
	}
}

func TestCDA_LimitRequired(t *testing.T) {
	m := newBook(t)
	_, err := m.Submit(1, d(10), decimal.Zero, decimal.Zero)
	if err != ErrLimitRequired {
		t.Errorf("expected ErrLimitRequired, got %v", err)
	}
}

func TestCDA_Cancel(t *testing.T) {
	m := newBook(t)
	m.Submit(1, d(10), decimal.Zero, d(5))

	orders := m.Orders(1)
	if len(orders) != 1 {
		t.Fatalf("expected 1 resting order, got %d", len(orders))
	}
	if !m.Cancel(1, orders[0].ID) {
		t.Fatalf("owner cancel should succeed")
	}
	if m.Cancel(1, orders[0].ID) {
		t.Errorf("double cancel should fail")
	}
	if snap := m.Snapshot(); snap.Depth != 0 {
		t.Errorf("book should be empty after cancel, depth=%d", snap.Depth)
	}
}

func TestCDA_CancelWrongOwner(t *testing.T) {
	m := newBook(t)
	m.Submit(1, d(10), decimal.Zero, d(5))
	orders := m.Orders(1)
	if m.Cancel(2, orders[0].ID) {
		t.Errorf("only the owner may cancel an order")
	}
}

func TestCDA_FrozenRejects(t *testing.T) {
	m := newBook(t)
	m.Freeze()
	if _, err := m.Submit(1, d(1), decimal.Zero, d(5)); err != ErrMarketClosed {
		t.Errorf("expected ErrMarketClosed, got %v", err)
	}
}

// --- Prediction market ---

func TestPredictionMarket_BuyYes(t *testing.T) {
	mm, _ := lmsr.NewBackend(d(100))
	m := NewPredictionMarket(7, mm)

	fills, err := m.Submit(3, d(10), decimal.Zero, decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(fills))
	}
	f := fills[0]
	if f.MakerID != asset.ExchangeID {
		t.Errorf("market maker fills counterparty the exchange, got %d", f.MakerID)
	}
	if f.Asset != m.YesType() {
		t.Errorf("buy leg should deliver YES securities, got %v", f.Asset)
	}
	if !f.TakerBuys || f.Cost.LessThanOrEqual(decimal.Zero) {
		t.Errorf("buy should cost money: %+v", f)
	}
}

func TestPredictionMarket_BothLegs(t *testing.T) {
	mm, _ := lmsr.NewBackend(d(100))
	m := NewPredictionMarket(7, mm)

	fills, err := m.Submit(3, d(10), d(5), decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fills) != 2 {
		t.Fatalf("expected 2 fills, got %d", len(fills))
	}
	if fills[0].Asset != m.YesType() || fills[1].Asset != m.NoType() {
		t.Errorf("legs should be YES then NO: %+v", fills)
	}
}

func TestPredictionMarket_EmptyRequest(t *testing.T) {
	mm, _ := lmsr.NewBackend(d(100))
	m := NewPredictionMarket(7, mm)
	if _, err := m.Submit(3, decimal.Zero, decimal.Zero, decimal.Zero); err != ErrNothingRequested {
		t.Errorf("expected ErrNothingRequested, got %v", err)
	}
}

func TestPredictionMarket_FrozenRejects(t *testing.T) {
	mm, _ := lmsr.NewBackend(d(100))
	m := NewPredictionMarket(7, mm)
	m.Freeze()
	if _, err := m.Submit(3, d(1), decimal.Zero, decimal.Zero); err != ErrMarketClosed {
		t.Errorf("expected ErrMarketClosed, got %v", err)
	}
}

// --- Registry ---

func TestExchange_OpenDuplicate(t *testing.T) {
	e := New()
	mm, _ := lmsr.NewBackend(d(100))
	if err := e.Open(NewPredictionMarket(1, mm)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mm2, _ := lmsr.NewBackend(d(100))
	if err := e.Open(NewPredictionMarket(1, mm2)); err != ErrInstrumentExists {
		t.Errorf("expected ErrInstrumentExists, got %v", err)
	}
}

func TestExchange_CloseSettlesHoldings(t *testing.T) {
	e := New()
	mm, _ := lmsr.NewBackend(d(100))
	m := NewPredictionMarket(1, mm)
	e.Open(m)

	b := bank.New()
	b.Open(1, d(100))
	b.Open(2, d(100))

	// Agent 1 holds 10 YES, agent 2 holds 10 NO.
	b.Update(1, func(a asset.Account) (asset.Account, error) {
		return a.Add(decimal.Zero, asset.NewSecurity(1, d(10), m.YesType())), nil
	})
	b.Update(2, func(a asset.Account) (asset.Account, error) {
		return a.Add(decimal.Zero, asset.NewSecurity(2, d(10), m.NoType())), nil
	})

	payouts, err := e.Close(1, asset.WorldState{Outcome: true}, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(payouts) != 1 || payouts[0].AgentID != 1 || !payouts[0].Amount.Equal(d(10)) {
		t.Fatalf("YES holder should be paid 10: %+v", payouts)
	}

	a1, _ := b.Get(1)
	a2, _ := b.Get(2)
	if !a1.Monies.Equal(d(110)) {
		t.Errorf("agent 1 should end with 110, got %s", a1.Monies)
	}
	if !a2.Monies.Equal(d(100)) {
		t.Errorf("agent 2 should end with 100, got %s", a2.Monies)
	}
	if len(a1.Holdings) != 0 || len(a2.Holdings) != 0 {
		t.Errorf("settled holdings must be removed")
	}

	if _, err := e.Get(1); err != ErrNoMarket {
		t.Errorf("closed market should be delisted, got %v", err)
	}
	if _, err := m.Submit(1, d(1), decimal.Zero, decimal.Zero); err != ErrMarketClosed {
		t.Errorf("closed market should reject trades, got %v", err)
	}
}

func TestExchange_CloseRefundsRestingOrders(t *testing.T) {
	e := New()
	typ := asset.FullType{Kind: asset.KindPredictionYes, ID: 3}
	m := NewCDA(3, typ)
	e.Open(m)

	b := bank.New()
	// Accounts as they stand after escrow: agent 1's resting bid took 40
	// cash, agent 2's resting ask took its 5 shares.
	b.Open(1, d(960))
	b.Open(2, d(100))

	m.Submit(1, d(4), decimal.Zero, d(10)) // bid 4 @ 10
	m.Submit(2, decimal.Zero, d(5), d(20)) // ask 5 @ 20, no cross

	payouts, err := e.Close(3, asset.WorldState{Outcome: true}, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The bid's escrowed cash comes straight back; the ask's shares come
	// back and then settle at their terminal payoff.
	a1, _ := b.Get(1)
	a2, _ := b.Get(2)
	if !a1.Monies.Equal(d(1000)) {
		t.Errorf("agent 1 should recover the bid escrow: got %s, want 1000", a1.Monies)
	}
	if !a2.Monies.Equal(d(105)) {
		t.Errorf("agent 2 should be paid for the escrowed shares: got %s, want 105", a2.Monies)
	}
	if len(payouts) != 1 || payouts[0].AgentID != 2 || !payouts[0].Amount.Equal(d(5)) {
		t.Errorf("payouts = %+v", payouts)
	}
}

func TestPredictionMarket_NoTradeLandsAfterFreeze(t *testing.T) {
	mm, _ := lmsr.NewBackend(d(100))
	m := NewPredictionMarket(1, mm)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Submit(1, d(1), decimal.Zero, decimal.Zero)
		}()
	}

	m.Freeze()
	settled := len(m.History())
	wg.Wait()

	if got := len(m.History()); got != settled {
		t.Errorf("%d trades landed after Freeze returned", got-settled)
	}
	if _, err := m.Submit(1, d(1), decimal.Zero, decimal.Zero); err != ErrMarketClosed {
		t.Errorf("expected ErrMarketClosed, got %v", err)
	}
}

func TestExchange_CloseUnknownMarket(t *testing.T) {
	e := New()
	if _, err := e.Close(9, asset.WorldState{}, bank.New()); err != ErrNoMarket {
		t.Errorf("expected ErrNoMarket, got %v", err)
	}
}

func TestExchange_CloseLeavesOtherHoldings(t *testing.T) {
	e := New()
	mm, _ := lmsr.NewBackend(d(100))
	m := NewPredictionMarket(1, mm)
	e.Open(m)

	b := bank.New()
	b.Open(1, d(0))
	other := asset.FullType{Kind: asset.KindGood, ID: 55}
	b.Update(1, func(a asset.Account) (asset.Account, error) {
		a = a.Add(decimal.Zero, asset.NewSecurity(1, d(5), m.YesType()))
		return a.Add(decimal.Zero, asset.NewGoodItem(d(1), other).ToAgent(1)), nil
	})

	if _, err := e.Close(1, asset.WorldState{Outcome: false}, b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a1, _ := b.Get(1)
	if len(a1.Holdings) != 1 || a1.Holdings[0].Type() != other {
		t.Errorf("unrelated holdings must survive settlement: %+v", a1.Holdings)
	}
}

func TestHistory_RecordsExecutions(t *testing.T) {
	book := newBook(t)
	book.Submit(1, decimal.Zero, d(5), d(10))
	book.Submit(2, d(3), decimal.Zero, d(10))

	hist := book.History()
	if len(hist) != 1 {
		t.Fatalf("history entries = %d, want 1", len(hist))
	}
	if hist[0].AgentID != 2 || hist[0].CounterpartyID != 1 {
		t.Errorf("entry parties = %d/%d, want taker 2 maker 1", hist[0].AgentID, hist[0].CounterpartyID)
	}
	if !hist[0].Count.Equal(d(3)) || !hist[0].Price.Equal(d(10)) {
		t.Errorf("entry = %+v", hist[0])
	}

	mm, _ := lmsr.NewBackend(d(100))
	pm := NewPredictionMarket(1, mm)
	pm.Submit(3, d(10), decimal.Zero, decimal.Zero)
	if len(pm.History()) != 1 {
		t.Errorf("prediction history entries = %d, want 1", len(pm.History()))
	}
	if pm.History()[0].Security != pm.YesType() {
		t.Errorf("recorded security = %v", pm.History()[0].Security)
	}
}
