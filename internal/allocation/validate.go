package allocation

import (
	"fmt"
	"strings"
)

// Field keys under which validation violations are reported.
const (
	FieldCustomer       = "customer"
	FieldInvoiceDate    = "invoice_date"
	FieldSelectedMonths = "selected_months"
	FieldTotalAmount    = "total_amount"
	FieldCustomAmounts  = "custom_amounts"
	FieldPercentages    = "percentages"
)

// Validate checks every business rule over the input and reports all
// violations at once as a field → message map. An empty map means the input
// may be allocated and submitted. Violations are data, never errors.
func Validate(in Input) map[string]string {
	violations := map[string]string{}

	if strings.TrimSpace(in.Customer) == "" {
		violations[FieldCustomer] = "Client selection is required"
	}

	if in.InvoiceDate.IsZero() {
		violations[FieldInvoiceDate] = "Invoice date is required"
	}

	if len(in.Periods) == 0 {
		violations[FieldSelectedMonths] = "Please select at least one month"
	}

	if in.Method == MethodCustom {
		for _, p := range in.Periods {
			if !in.CustomAmounts[p].IsPositive() {
				violations[FieldCustomAmounts] = "Each selected month must have an amount greater than 0"
				break
			}
		}

		// The advisory total, when supplied, must match the per-month sum.
		if in.TotalAmount.IsPositive() {
			sum := in.CustomAmountSum()
			if sum.Sub(in.TotalAmount).Abs().GreaterThan(centTolerance) {
				violations[FieldCustomAmounts] = fmt.Sprintf(
					"Custom amounts total (%s) must equal total amount (%s)",
					sum.StringFixed(2), in.TotalAmount.StringFixed(2))
			}
		}
	} else {
		if !in.TotalAmount.IsPositive() {
			violations[FieldTotalAmount] = "Total amount must be greater than 0"
		}
	}

	if in.Method == MethodPercentage {
		sum := in.PercentageSum()
		if sum.Sub(oneHundred).Abs().GreaterThan(centTolerance) {
			violations[FieldPercentages] = fmt.Sprintf(
				"Percentages must total 100%% (currently %s%%)", sum.StringFixed(2))
		}
	}

	return violations
}
