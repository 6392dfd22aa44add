package reconcile

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"billing/internal/model"
	"billing/internal/period"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PageSize bounds the reconciliation read. One page is assumed sufficient;
// this package does not paginate further.
const PageSize = 200

// Store is the read side of the persistence collaborator. Results must be
// filtered to an exact customer match and sorted by invoice date descending.
type Store interface {
	ListByCustomer(ctx context.Context, branch, customer string, limit int) ([]model.BillingEntry, error)
}

// Record summarizes one previously persisted entry for a period. Both the
// internal primary key and the stable document identifier are preserved so a
// later update targets the correct record.
type Record struct {
	ID         uuid.UUID
	DocumentID string
	Amount     decimal.Decimal
	Cost       decimal.Decimal
	Status     string
}

// Index maps each period to at most one record: the most recently invoiced
// one for that period within the target year.
type Index map[period.Key]Record

// Prefill carries the reconciliation output: the index plus suggested form
// defaults lifted from the newest record. Suggestions are pre-fill values
// only; they never override explicit later user edits.
type Prefill struct {
	Index          Index
	Year           int
	SelectedMonths []int

	Currency          string
	InvoiceNumberBase string
	PaymentReference  string
	DefaultStatus     string

	Amounts  map[period.Key]decimal.Decimal
	Costs    map[period.Key]decimal.Decimal
	Statuses map[period.Key]string
}

// Empty reports whether the customer had no usable history.
func (p *Prefill) Empty() bool {
	return len(p.Index) == 0
}

// invoice numbers persisted by the assembler end in a 2-digit sequence suffix
var sequenceSuffix = regexp.MustCompile(`-\d{2}$`)

// StripSequenceSuffix removes a trailing "-NN" from an invoice number,
// recovering the base the next session should reuse.
func StripSequenceSuffix(invoiceNumber string) string {
	return sequenceSuffix.ReplaceAllString(invoiceNumber, "")
}

// Reconciler builds the existing-record index for a customer so resubmission
// updates prior entries instead of duplicating them.
type Reconciler struct {
	store Store
	now   func() time.Time
}

func NewReconciler(store Store) *Reconciler {
	return &Reconciler{store: store, now: time.Now}
}

// Prefill fetches the customer's history and derives the per-period index and
// suggested defaults. It performs exactly one read and never writes. A fetch
// failure is returned as-is; the caller surfaces it as a recoverable warning
// and manual entry proceeds unassisted.
func (r *Reconciler) Prefill(ctx context.Context, branch, customer string) (*Prefill, error) {
	records, err := r.store.ListByCustomer(ctx, branch, customer, PageSize)
	if err != nil {
		return nil, fmt.Errorf("load previous entries for %q: %w", customer, err)
	}
	if len(records) == 0 {
		return &Prefill{Index: Index{}}, nil
	}

	// The store contract is newest-first; re-sort in case a store is sloppy.
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].InvoiceDate.After(records[j].InvoiceDate)
	})

	targetYear := r.targetYear(records[0])

	index := Index{}
	amounts := map[period.Key]decimal.Decimal{}
	costs := map[period.Key]decimal.Decimal{}
	statuses := map[period.Key]string{}

	for _, rec := range records {
		if rec.RecognitionMonth.IsZero() || rec.RecognitionMonth.Year() != targetYear {
			continue
		}
		key := period.FromDate(rec.RecognitionMonth)
		if _, ok := index[key]; ok {
			continue // an older duplicate for this period
		}

		summary := Record{
			ID:         rec.ID,
			DocumentID: rec.DocumentID,
			Amount:     rec.Amount,
			Status:     rec.Status,
		}
		if rec.ConstructionCost != nil {
			summary.Cost = *rec.ConstructionCost
		}
		index[key] = summary

		amounts[key] = summary.Amount
		if summary.Cost.IsPositive() {
			costs[key] = summary.Cost
		}
		if rec.Status != "" {
			statuses[key] = rec.Status
		}
	}

	months := make([]int, 0, len(index))
	for key := range index {
		months = append(months, int(key.Month))
	}
	sort.Ints(months)

	newest := records[0]
	return &Prefill{
		Index:             index,
		Year:              targetYear,
		SelectedMonths:    months,
		Currency:          newest.Currency,
		InvoiceNumberBase: StripSequenceSuffix(newest.InvoiceNumber),
		PaymentReference:  newest.PaymentReference,
		DefaultStatus:     newest.Status,
		Amounts:           amounts,
		Costs:             costs,
		Statuses:          statuses,
	}, nil
}

// targetYear prefers the newest record's recognition-month year, falls back
// to its invoice-date year, then to the current year.
func (r *Reconciler) targetYear(newest model.BillingEntry) int {
	if !newest.RecognitionMonth.IsZero() {
		return newest.RecognitionMonth.Year()
	}
	if !newest.InvoiceDate.IsZero() {
		return newest.InvoiceDate.Year()
	}
	return r.now().Year()
}
