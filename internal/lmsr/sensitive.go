package lmsr

import (
	"sync"

	"github.com/shopspring/decimal"
)

// LiquiditySensitive is an LMSR variant whose effective depth grows with
// the market:
//
//	b = alpha * (qYes + qNo) * tradeCount
//
// Early trades move the price a lot; as volume and trade count accumulate
// the market stiffens. This trades early volatility for later stability
// and gives up the fixed-b bounded-loss guarantee. The trade counter
// starts at 2 and the quantities are seeded at one share per side so the
// initial depth is finite.
type LiquiditySensitive struct {
	mu     sync.Mutex
	alpha  float64
	qYes   float64
	qNo    float64
	trades int64
}

// NewLiquiditySensitive creates a liquidity-sensitive market maker with
// the given sensitivity factor alpha.
func NewLiquiditySensitive(alpha decimal.Decimal) (*LiquiditySensitive, error) {
	if alpha.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAlpha
	}
	return &LiquiditySensitive{
		alpha:  alpha.InexactFloat64(),
		qYes:   1,
		qNo:    1,
		trades: 2,
	}, nil
}

// bAt returns the effective depth for hypothetical quantities.
func (m *LiquiditySensitive) bAt(qYes, qNo float64) float64 {
	return m.alpha * (qYes + qNo) * float64(m.trades)
}

func (m *LiquiditySensitive) B() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return round(m.bAt(m.qYes, m.qNo))
}

// TradeCount returns the number of executed trades plus the initial seed
// of 2. Exposed for market snapshots.
func (m *LiquiditySensitive) TradeCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trades
}

func (m *LiquiditySensitive) Quantities() (decimal.Decimal, decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return round(m.qYes), round(m.qNo)
}

func (m *LiquiditySensitive) Price(yes bool) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.priceLocked(yes)
}

func (m *LiquiditySensitive) priceLocked(yes bool) decimal.Decimal {
	p := priceYesAt(m.bAt(m.qYes, m.qNo), m.qYes, m.qNo)
	if !yes {
		return decimal.NewFromInt(1).Sub(clampPrice(round(p)))
	}
	return clampPrice(round(p))
}

// quoteLocked prices n shares on a side at the pre-trade depth. The trade
// counter only advances on execution, so repeated quotes are stable.
func (m *LiquiditySensitive) quoteLocked(yes bool, n float64) float64 {
	b := m.bAt(m.qYes, m.qNo)
	before := costAt(b, m.qYes, m.qNo)
	var after float64
	if yes {
		after = costAt(b, m.qYes+n, m.qNo)
	} else {
		after = costAt(b, m.qYes, m.qNo+n)
	}
	return after - before
}

func (m *LiquiditySensitive) Ask(yes bool, n decimal.Decimal) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return round(m.quoteLocked(yes, n.InexactFloat64()))
}

func (m *LiquiditySensitive) Bid(yes bool, n decimal.Decimal) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return round(m.quoteLocked(yes, -n.InexactFloat64()))
}

func (m *LiquiditySensitive) Execute(yes bool, n, limit decimal.Decimal) (Fill, error) {
	if n.IsZero() {
		return Fill{}, ErrZeroQuantity
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	nf := n.InexactFloat64()
	cost := m.quoteLocked(yes, nf)
	avg := cost / nf
	if err := checkLimit(nf, avg, limit); err != nil {
		return Fill{}, err
	}

	if yes {
		m.qYes += nf
	} else {
		m.qNo += nf
	}
	m.trades++

	pYes := m.priceLocked(true)
	return Fill{
		Cost:     round(cost),
		AvgPrice: round(avg),
		PriceYes: pYes,
		PriceNo:  decimal.NewFromInt(1).Sub(pYes),
	}, nil
}

// HowMany finds the largest buy quantity whose post-trade side price stays
// at or below target. The depth depends on the quantity being solved for,
// so there is no closed form; a bracketing binary search converges well
// within 100 bisections.
func (m *LiquiditySensitive) HowMany(target decimal.Decimal, yes bool) decimal.Decimal {
	tf := target.InexactFloat64()
	if tf <= 0 || tf >= 1 {
		return decimal.Zero
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	// The executed trade will advance the counter, so the hypothetical
	// post-trade price is taken at the deeper post-trade b.
	postB := m.alpha * float64(m.trades+1)
	priceAfter := func(x float64) float64 {
		qy, qn := m.qYes, m.qNo
		if yes {
			qy += x
		} else {
			qn += x
		}
		p := priceYesAt(postB*(qy+qn), qy, qn)
		if !yes {
			p = 1 - p
		}
		return p
	}

	current := priceYesAt(m.bAt(m.qYes, m.qNo), m.qYes, m.qNo)
	if !yes {
		current = 1 - current
	}
	if current >= tf || priceAfter(0) >= tf {
		return decimal.Zero
	}
	return round(bisect(priceAfter, tf))
}

// BudgetToShares finds the buy quantity whose cost equals the budget,
// again by binary search over the depth-dependent cost function.
func (m *LiquiditySensitive) BudgetToShares(budget decimal.Decimal, yes bool) decimal.Decimal {
	bf := budget.InexactFloat64()
	if bf <= 0 {
		return decimal.Zero
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	costOf := func(x float64) float64 {
		return m.quoteLocked(yes, x)
	}
	return round(bisect(costOf, bf))
}

// bisect finds x >= 0 with f(x) ~= goal for a monotonically increasing f.
// The upper bracket doubles until it overshoots, then 100 bisection steps
// pin the answer. If the goal is unreachable below the bracket cap the cap
// itself is returned.
func bisect(f func(float64) float64, goal float64) float64 {
	const maxBracket = 1e12
	hi := 1.0
	for hi < maxBracket && f(hi) < goal {
		hi *= 2
	}
	if f(hi) < goal {
		return hi
	}
	lo := 0.0
	for i := 0; i < 100; i++ {
		mid := (lo + hi) / 2
		if f(mid) < goal {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}
