package lmsr

import (
	"math"
	"sync"

	"github.com/shopspring/decimal"
)

// Backend is the classic fixed-liquidity LMSR market maker. Maximum
// market-maker loss is bounded by b * ln(2) for binary markets.
type Backend struct {
	mu   sync.Mutex
	b    float64
	qYes float64
	qNo  float64
}

// NewBackend creates a fixed-b market maker. Higher b means more depth and
// lower price impact per trade.
func NewBackend(b decimal.Decimal) (*Backend, error) {
	if b.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidLiquidity
	}
	return &Backend{b: b.InexactFloat64()}, nil
}

func (m *Backend) B() decimal.Decimal {
	return round(m.b)
}

func (m *Backend) Quantities() (decimal.Decimal, decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return round(m.qYes), round(m.qNo)
}

func (m *Backend) Price(yes bool) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.priceLocked(yes)
}

func (m *Backend) priceLocked(yes bool) decimal.Decimal {
	p := priceYesAt(m.b, m.qYes, m.qNo)
	if !yes {
		return decimal.NewFromInt(1).Sub(clampPrice(round(p)))
	}
	return clampPrice(round(p))
}

// quoteLocked computes C(post-trade) - C(pre-trade) for n shares on a side.
func (m *Backend) quoteLocked(yes bool, n float64) float64 {
	before := costAt(m.b, m.qYes, m.qNo)
	var after float64
	if yes {
		after = costAt(m.b, m.qYes+n, m.qNo)
	} else {
		after = costAt(m.b, m.qYes, m.qNo+n)
	}
	return after - before
}

func (m *Backend) Ask(yes bool, n decimal.Decimal) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return round(m.quoteLocked(yes, n.InexactFloat64()))
}

func (m *Backend) Bid(yes bool, n decimal.Decimal) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return round(m.quoteLocked(yes, -n.InexactFloat64()))
}

func (m *Backend) Execute(yes bool, n, limit decimal.Decimal) (Fill, error) {
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

	pYes := m.priceLocked(true)
	return Fill{
		Cost:     round(cost),
		AvgPrice: round(avg),
		PriceYes: pYes,
		PriceNo:  decimal.NewFromInt(1).Sub(pYes),
	}, nil
}

// HowMany solves the logit inverse in closed form: buying x shares of a
// side moves that side's price to target when x = b*ln(p/(1-p)) minus the
// side's current quantity advantage.
func (m *Backend) HowMany(target decimal.Decimal, yes bool) decimal.Decimal {
	tf := target.InexactFloat64()
	if tf <= 0 || tf >= 1 {
		return decimal.Zero
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	logit := math.Log(tf / (1 - tf))
	var x float64
	if yes {
		x = m.b*logit - (m.qYes - m.qNo)
	} else {
		x = m.b*logit - (m.qNo - m.qYes)
	}
	if x <= 0 {
		return decimal.Zero
	}
	return round(x)
}

// BudgetToShares inverts the cost function in closed form:
//
//	budget = C(q + x) - C(q)  =>  x = b*ln(e^(budget/b + LSE(q/b)) - e^(qOther/b)) - qSide
//
// computed as a stable log-difference.
func (m *Backend) BudgetToShares(budget decimal.Decimal, yes bool) decimal.Decimal {
	bf := budget.InexactFloat64()
	if bf <= 0 {
		return decimal.Zero
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	qSide, qOther := m.qYes, m.qNo
	if !yes {
		qSide, qOther = m.qNo, m.qYes
	}

	// ln(e^a - e^c) = a + ln(1 - e^(c-a)), valid since a > c here.
	a := bf/m.b + logSumExp(m.qYes/m.b, m.qNo/m.b)
	c := qOther / m.b
	x := m.b*(a+math.Log1p(-math.Exp(c-a))) - qSide
	if x <= 0 {
		return decimal.Zero
	}
	return round(x)
}

// MaxLoss returns the bounded worst-case loss b * ln(2).
func (m *Backend) MaxLoss() decimal.Decimal {
	return round(m.b * math.Log(2))
}
