package auction

import (
	"github.com/shopspring/decimal"

	"github.com/amx/agent-exchange/internal/asset"
)

// FirstPriceRule charges each winner its own winning price on every good
// it takes.
type FirstPriceRule struct{}

func (FirstPriceRule) Payments(alloc Allocation) map[int64]decimal.Decimal {
	payments := make(map[int64]decimal.Decimal)
	for typ, wb := range alloc.WinningBids {
		if wb.AgentID == asset.ExchangeID {
			continue
		}
		p, ok := wb.Bundle.Point(typ)
		if !ok {
			continue
		}
		payments[wb.AgentID] = payments[wb.AgentID].Add(p.Price)
	}
	return payments
}

// SecondPriceRule charges each winner the runner-up's price on every good
// it takes. The reserve participates in ranking as a synthetic bid, so a
// sole bidder above the reserve pays the reserve; with no reserve and no
// rival the good is free.
type SecondPriceRule struct{}

func (SecondPriceRule) Payments(alloc Allocation) map[int64]decimal.Decimal {
	payments := make(map[int64]decimal.Decimal)
	for typ, wb := range alloc.WinningBids {
		if wb.AgentID == asset.ExchangeID {
			continue
		}
		price := decimal.Zero
		if ru, ok := alloc.RunnersUp[typ]; ok {
			if p, ok := ru.Bundle.Point(typ); ok {
				price = p.Price
			}
		}
		if _, ok := payments[wb.AgentID]; !ok {
			payments[wb.AgentID] = decimal.Zero
		}
		payments[wb.AgentID] = payments[wb.AgentID].Add(price)
	}
	return payments
}
