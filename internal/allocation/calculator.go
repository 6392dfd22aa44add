package allocation

import (
	"billing/internal/period"

	"github.com/shopspring/decimal"
)

// Line is one period's provisional (amount, cost) pair, before overrides and
// identifiers are applied by the assembler.
type Line struct {
	Period period.Key
	Amount decimal.Decimal
	Cost   decimal.Decimal
}

var oneHundred = decimal.NewFromInt(100)

// Distribute splits the input totals across the selected periods.
//
// Even gives the first n-1 periods round2(total/n) each and the last period
// the remainder against the running sum, so the amounts always add up to the
// total exactly to the cent. Cost is split the same way, independently.
//
// Custom takes per-period values verbatim (totals are a cross-check handled
// by Validate, not an allocation driver).
//
// Percentage takes round2(total × pct/100) per period with no remainder
// correction: validation enforces the 100% closure upstream, and a split that
// misses the total by a cent after rounding is the documented contract.
//
// All outputs are rounded to 2 decimal places half-away-from-zero, after the
// allocation arithmetic.
func Distribute(in Input) []Line {
	lines := make([]Line, 0, len(in.Periods))

	switch in.Method {
	case MethodCustom:
		for _, p := range in.Periods {
			lines = append(lines, Line{
				Period: p,
				Amount: in.CustomAmounts[p].Round(2),
				Cost:   in.CustomCosts[p].Round(2),
			})
		}

	case MethodPercentage:
		for _, p := range in.Periods {
			pct := in.Percentages[p]
			lines = append(lines, Line{
				Period: p,
				Amount: in.TotalAmount.Mul(pct).Div(oneHundred).Round(2),
				Cost:   in.TotalCost.Mul(pct).Div(oneHundred).Round(2),
			})
		}

	default: // MethodEven
		n := int64(len(in.Periods))
		if n == 0 {
			return lines
		}
		perAmount := in.TotalAmount.Div(decimal.NewFromInt(n)).Round(2)
		perCost := in.TotalCost.Div(decimal.NewFromInt(n)).Round(2)
		sumAmount, sumCost := decimal.Zero, decimal.Zero
		for i, p := range in.Periods {
			amount, cost := perAmount, perCost
			if i == len(in.Periods)-1 {
				// last period absorbs the rounding remainder
				amount = in.TotalAmount.Sub(sumAmount)
				cost = in.TotalCost.Sub(sumCost)
			}
			sumAmount = sumAmount.Add(amount)
			sumCost = sumCost.Add(cost)
			lines = append(lines, Line{Period: p, Amount: amount, Cost: cost})
		}
	}

	return lines
}
