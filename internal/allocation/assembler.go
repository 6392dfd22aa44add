package allocation

import (
	"fmt"
	"strings"
	"time"

	"billing/internal/model"
	"billing/internal/period"
	"billing/internal/reconcile"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Entry is the assembled output for one period: calculator amounts merged
// with per-period overrides and the reconciliation identifier. Entries are
// built for preview and consumed exactly once by submission.
type Entry struct {
	Period           period.Key
	BillingID        string
	Customer         string
	InvoiceNumber    string
	InvoiceDate      time.Time
	Amount           decimal.Decimal
	Currency         string
	RecognitionMonth time.Time
	Status           string
	CollectedDate    *time.Time
	PaymentReference string
	ConstructionCost *decimal.Decimal
	ProjectProfit    *decimal.Decimal

	// Existing points at the persisted record this entry must update.
	// Nil means the entry is a create.
	Existing *reconcile.Record
}

// IsUpdate reports whether submission should update an existing record
// rather than create a new one.
func (e Entry) IsUpdate() bool {
	return e.Existing != nil
}

// Assemble turns a validated input plus the reconciliation index into the
// final ordered entry sequence. It holds no state and is re-run on every
// relevant input change; two runs over identical inputs differ only in the
// freshly generated billing identifiers.
func Assemble(in Input, index reconcile.Index) []Entry {
	lines := Distribute(in)
	base := in.InvoiceNumberBase
	if base == "" {
		// Deterministic for a given invoice date so re-previews are stable.
		base = "INV-" + in.InvoiceDate.Format("20060102")
	}

	defaultStatus := in.DefaultStatus
	if !model.ValidStatus(defaultStatus) {
		defaultStatus = model.StatusDraft
	}

	var collected *time.Time
	if in.ApplyCollectedDate && !in.CollectedDate.IsZero() {
		d := in.CollectedDate
		collected = &d
	}

	entries := make([]Entry, 0, len(lines))
	for i, line := range lines {
		status := defaultStatus
		if override, ok := in.StatusOverrides[line.Period]; ok && model.ValidStatus(override) {
			status = override
		}

		entry := Entry{
			Period:           line.Period,
			BillingID:        newBillingID(i),
			Customer:         in.Customer,
			InvoiceNumber:    fmt.Sprintf("%s-%02d", base, i+1),
			InvoiceDate:      in.InvoiceDate,
			Amount:           line.Amount,
			Currency:         in.Currency,
			RecognitionMonth: line.Period.FirstOfMonth(),
			Status:           status,
			CollectedDate:    collected,
			PaymentReference: in.PaymentReference,
		}

		if line.Cost.IsPositive() {
			cost := line.Cost
			profit := line.Amount.Sub(cost)
			entry.ConstructionCost = &cost
			entry.ProjectProfit = &profit
		}

		if rec, ok := index[line.Period]; ok {
			existing := rec
			entry.Existing = &existing
		}

		entries = append(entries, entry)
	}
	return entries
}

// newBillingID generates a globally unique billing identifier. Collisions are
// structurally prevented by combining wall-clock millis, a random token, and
// the sequence position.
func newBillingID(seq int) string {
	token := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:9])
	return fmt.Sprintf("BILL-%d-%s-%d", time.Now().UnixMilli(), token, seq)
}
