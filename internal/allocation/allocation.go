package allocation

import (
	"time"

	"billing/internal/period"

	"github.com/shopspring/decimal"
)

// Method selects the strategy used to split a total across periods.
// It is fixed for the duration of one allocation session.
type Method string

const (
	MethodEven       Method = "even"
	MethodCustom     Method = "custom"
	MethodPercentage Method = "percentage"
)

// ValidMethod reports whether m is a known distribution method.
func ValidMethod(m Method) bool {
	switch m {
	case MethodEven, MethodCustom, MethodPercentage:
		return true
	}
	return false
}

// Input is the complete, immutable state of one allocation session. It is
// rebuilt from scratch on every edit; mutations are "replace with a new
// Input", never in-place writes.
type Input struct {
	Branch      string
	Customer    string
	InvoiceDate time.Time
	Currency    string

	Periods []period.Key
	Method  Method

	// Totals drive Even and Percentage splits. Under Custom they are
	// advisory: checked against the per-period sum, never used to allocate.
	TotalAmount decimal.Decimal
	TotalCost   decimal.Decimal

	CustomAmounts map[period.Key]decimal.Decimal
	CustomCosts   map[period.Key]decimal.Decimal
	Percentages   map[period.Key]decimal.Decimal

	InvoiceNumberBase string
	DefaultStatus     string
	StatusOverrides   map[period.Key]string

	ApplyCollectedDate bool
	CollectedDate      time.Time
	PaymentReference   string
}

// centTolerance is the epsilon for monetary sum comparisons.
var centTolerance = decimal.NewFromFloat(0.01)

// CustomAmountSum is the true total under the Custom method.
func (in Input) CustomAmountSum() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range in.Periods {
		sum = sum.Add(in.CustomAmounts[p])
	}
	return sum
}

// PercentageSum is the percentage closure total, checked against 100.
func (in Input) PercentageSum() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range in.Periods {
		sum = sum.Add(in.Percentages[p])
	}
	return sum
}
