package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"billing/internal/model"
	"billing/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// fakeBillingRepo records writes in order and can be told to fail on a
// specific invoice-number suffix.
type fakeBillingRepo struct {
	existing []model.BillingEntry

	created []model.BillingEntry
	updated []model.BillingEntry

	failOnRecognition string // "YYYY-MM-01" that should fail
	listErr           error
}

func (f *fakeBillingRepo) Create(ctx context.Context, entry *model.BillingEntry) error {
	if entry.RecognitionMonth.Format("2006-01-02") == f.failOnRecognition {
		return errors.New("constraint violation")
	}
	entry.ID = uuid.New()
	f.created = append(f.created, *entry)
	return nil
}

func (f *fakeBillingRepo) Update(ctx context.Context, entry *model.BillingEntry) error {
	if entry.RecognitionMonth.Format("2006-01-02") == f.failOnRecognition {
		return errors.New("constraint violation")
	}
	f.updated = append(f.updated, *entry)
	return nil
}

func (f *fakeBillingRepo) FindByID(ctx context.Context, id string) (*model.BillingEntry, error) {
	for i := range f.existing {
		if f.existing[i].DocumentID == id || f.existing[i].ID.String() == id {
			entry := f.existing[i]
			return &entry, nil
		}
	}
	return nil, errors.New("record not found")
}

func (f *fakeBillingRepo) List(ctx context.Context, filter repository.BillingFilter) ([]model.BillingEntry, int64, error) {
	return f.existing, int64(len(f.existing)), nil
}

func (f *fakeBillingRepo) ListByCustomer(ctx context.Context, branch, customer string, limit int) ([]model.BillingEntry, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.BillingEntry
	for _, e := range f.existing {
		if e.Branch == branch && e.Customer == customer {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeBillingRepo) Delete(ctx context.Context, id string) error { return nil }

type countingNotifier struct {
	refreshes []string
}

func (n *countingNotifier) BillingsRefreshed(branch string) {
	n.refreshes = append(n.refreshes, branch)
}

func evenRequest() AllocationRequest {
	return AllocationRequest{
		Branch:             model.BranchCashflow,
		Customer:           "Acme Interiors",
		InvoiceDate:        "2025-01-15",
		Currency:           "USD",
		Year:               2025,
		Months:             []int{1, 2, 3},
		DistributionMethod: "even",
		TotalAmount:        "1000.00",
	}
}

func TestSubmit_CreatesEntriesInPeriodOrder(t *testing.T) {
	repo := &fakeBillingRepo{}
	notifier := &countingNotifier{}
	svc := NewBillingService(repo, notifier)

	resp, violations, err := svc.Submit(context.Background(), evenRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if violations != nil {
		t.Fatalf("unexpected violations: %v", violations)
	}
	if resp.Created != 3 || resp.Updated != 0 {
		t.Fatalf("expected 3 creates, got created=%d updated=%d", resp.Created, resp.Updated)
	}

	wantMonths := []string{"2025-01-01", "2025-02-01", "2025-03-01"}
	if len(repo.created) != len(wantMonths) {
		t.Fatalf("expected %d writes, got %d", len(wantMonths), len(repo.created))
	}
	for i, e := range repo.created {
		if e.RecognitionMonth.Format("2006-01-02") != wantMonths[i] {
			t.Errorf("write %d: expected %s, got %s", i, wantMonths[i], e.RecognitionMonth.Format("2006-01-02"))
		}
		if e.DocumentID == "" || e.BillingID == "" {
			t.Errorf("write %d: identifiers must be minted before persisting", i)
		}
	}

	sum := decimal.Zero
	for _, e := range repo.created {
		sum = sum.Add(e.Amount)
	}
	if sum.StringFixed(2) != "1000.00" {
		t.Errorf("persisted sum %s != 1000.00", sum.StringFixed(2))
	}
}

func TestSubmit_ValidationBlocksWrites(t *testing.T) {
	repo := &fakeBillingRepo{}
	svc := NewBillingService(repo, nil)

	req := evenRequest()
	req.TotalAmount = "0"
	resp, violations, err := svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != nil {
		t.Fatal("expected no response on validation failure")
	}
	if violations["total_amount"] == "" {
		t.Fatalf("expected total_amount violation, got %v", violations)
	}
	if len(repo.created)+len(repo.updated) != 0 {
		t.Fatal("validation failure must not reach the store")
	}
}

func TestSubmit_AbortsOnFirstFailureKeepingEarlierWrites(t *testing.T) {
	repo := &fakeBillingRepo{failOnRecognition: "2025-02-01"}
	notifier := &countingNotifier{}
	svc := NewBillingService(repo, notifier)

	_, _, err := svc.Submit(context.Background(), evenRequest())
	if err == nil {
		t.Fatal("expected an error")
	}
	// the error must name the failing period and the attempted action
	if !strings.Contains(err.Error(), "2025-02") || !strings.Contains(err.Error(), "create") {
		t.Errorf("error must name the period and action, got %q", err)
	}
	// the january write stays; march is never attempted
	if len(repo.created) != 1 {
		t.Fatalf("expected exactly the first write to persist, got %d", len(repo.created))
	}
	if got := repo.created[0].RecognitionMonth.Format("2006-01"); got != "2025-01" {
		t.Errorf("surviving write should be january, got %s", got)
	}
	if len(notifier.refreshes) != 0 {
		t.Error("no refresh may be broadcast for an aborted batch")
	}
}

func TestSubmit_SingleRefreshAfterSuccessfulBatch(t *testing.T) {
	repo := &fakeBillingRepo{}
	notifier := &countingNotifier{}
	svc := NewBillingService(repo, notifier)

	if _, _, err := svc.Submit(context.Background(), evenRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.refreshes) != 1 {
		t.Fatalf("expected exactly one refresh broadcast, got %d", len(notifier.refreshes))
	}
	if notifier.refreshes[0] != model.BranchCashflow {
		t.Errorf("refresh must carry the branch, got %s", notifier.refreshes[0])
	}
}

func TestSubmit_ClassifiesExistingPeriodsAsUpdates(t *testing.T) {
	existing := model.BillingEntry{
		ID:               uuid.New(),
		DocumentID:       "doc-june",
		BillingID:        "BILL-OLD",
		Branch:           model.BranchCashflow,
		Customer:         "Acme Interiors",
		InvoiceNumber:    "INV-OLD-01",
		InvoiceDate:      time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		Amount:           decimal.RequireFromString("500.00"),
		Currency:         "USD",
		RecognitionMonth: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Status:           model.StatusSent,
	}
	repo := &fakeBillingRepo{existing: []model.BillingEntry{existing}}
	svc := NewBillingService(repo, nil)

	req := evenRequest()
	req.Months = []int{5, 6, 7}
	resp, violations, err := svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if violations != nil {
		t.Fatalf("unexpected violations: %v", violations)
	}
	if resp.Created != 2 || resp.Updated != 1 {
		t.Fatalf("expected 2 creates + 1 update, got created=%d updated=%d", resp.Created, resp.Updated)
	}
	if len(repo.updated) != 1 {
		t.Fatalf("expected one update write, got %d", len(repo.updated))
	}
	if repo.updated[0].ID != existing.ID {
		t.Error("update must target the existing record's primary key")
	}
	if repo.updated[0].RecognitionMonth.Month() != time.June {
		t.Errorf("the june period must be the update, got %v", repo.updated[0].RecognitionMonth)
	}

	for _, e := range resp.Entries {
		switch e.Period {
		case "2025-06":
			if e.Action != "update" || e.ExistingID != "doc-june" {
				t.Errorf("june must be an update carrying doc-june, got %+v", e)
			}
		default:
			if e.Action != "create" || e.ExistingID != "" {
				t.Errorf("%s must be a create, got %+v", e.Period, e)
			}
		}
	}
}

func TestPreview_DoesNotWrite(t *testing.T) {
	repo := &fakeBillingRepo{}
	svc := NewBillingService(repo, nil)

	resp, violations, err := svc.Preview(context.Background(), evenRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if violations != nil {
		t.Fatalf("unexpected violations: %v", violations)
	}
	if len(resp.Entries) != 3 || resp.TotalAmount != "1000.00" {
		t.Fatalf("unexpected preview: %+v", resp)
	}
	if len(repo.created)+len(repo.updated) != 0 {
		t.Fatal("preview must not write")
	}
}

func TestPreview_ReportsValidationMap(t *testing.T) {
	svc := NewBillingService(&fakeBillingRepo{}, nil)

	req := evenRequest()
	req.Customer = " "
	req.Months = nil
	_, violations, err := svc.Preview(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if violations["customer"] == "" || violations["selected_months"] == "" {
		t.Fatalf("expected customer and selected_months violations, got %v", violations)
	}
}

func TestPreview_RejectsMalformedAmounts(t *testing.T) {
	svc := NewBillingService(&fakeBillingRepo{}, nil)
	req := evenRequest()
	req.TotalAmount = "not-a-number"
	if _, _, err := svc.Preview(context.Background(), req); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestSubmit_ReconciliationFetchFailureSurfaces(t *testing.T) {
	repo := &fakeBillingRepo{listErr: errors.New("timeout")}
	svc := NewBillingService(repo, nil)
	_, _, err := svc.Submit(context.Background(), evenRequest())
	if err == nil {
		t.Fatal("expected the reconciliation failure to surface")
	}
	if len(repo.created) != 0 {
		t.Fatal("no writes may happen when the index cannot be built")
	}
}

func TestUpdateEntry_RecomputesProfit(t *testing.T) {
	existing := model.BillingEntry{
		ID:               uuid.New(),
		DocumentID:       "doc-may",
		BillingID:        "BILL-MAY",
		Branch:           model.BranchConstruction,
		Customer:         "Acme Interiors",
		InvoiceNumber:    "INV-OLD-01",
		InvoiceDate:      time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC),
		Amount:           decimal.RequireFromString("500.00"),
		Currency:         "USD",
		RecognitionMonth: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		Status:           model.StatusSent,
	}
	repo := &fakeBillingRepo{existing: []model.BillingEntry{existing}}
	notifier := &countingNotifier{}
	svc := NewBillingService(repo, notifier)

	status := model.StatusPaid
	cost := "300.00"
	detail, err := svc.UpdateEntry(context.Background(), "doc-may", UpdateEntryRequest{
		Status:           &status,
		ConstructionCost: &cost,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if detail.Status != model.StatusPaid {
		t.Errorf("status = %q, want paid", detail.Status)
	}
	if detail.ConstructionCost == nil || *detail.ConstructionCost != "300.00" {
		t.Fatalf("construction cost = %v, want 300.00", detail.ConstructionCost)
	}
	if detail.ProjectProfit == nil || *detail.ProjectProfit != "200.00" {
		t.Fatalf("project profit = %v, want 200.00", detail.ProjectProfit)
	}
	if len(repo.updated) != 1 {
		t.Fatalf("expected one update write, got %d", len(repo.updated))
	}
	if got := notifier.refreshes; len(got) != 1 || got[0] != model.BranchConstruction {
		t.Errorf("expected one refresh for the entry's branch, got %v", got)
	}
}

func TestUpdateEntry_ClearsCostAndProfitTogether(t *testing.T) {
	oldCost := decimal.RequireFromString("100.00")
	oldProfit := decimal.RequireFromString("400.00")
	existing := model.BillingEntry{
		ID:               uuid.New(),
		DocumentID:       "doc-may",
		Branch:           model.BranchCashflow,
		Customer:         "Acme Interiors",
		Amount:           decimal.RequireFromString("500.00"),
		RecognitionMonth: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		Status:           model.StatusSent,
		ConstructionCost: &oldCost,
		ProjectProfit:    &oldProfit,
	}
	repo := &fakeBillingRepo{existing: []model.BillingEntry{existing}}
	svc := NewBillingService(repo, nil)

	zero := "0"
	detail, err := svc.UpdateEntry(context.Background(), "doc-may", UpdateEntryRequest{
		ConstructionCost: &zero,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if detail.ConstructionCost != nil || detail.ProjectProfit != nil {
		t.Errorf("cost and profit must clear together, got cost=%v profit=%v",
			detail.ConstructionCost, detail.ProjectProfit)
	}
}

func TestUpdateEntry_RejectsUnknownStatus(t *testing.T) {
	existing := model.BillingEntry{
		ID:         uuid.New(),
		DocumentID: "doc-may",
		Amount:     decimal.RequireFromString("500.00"),
		Status:     model.StatusSent,
	}
	repo := &fakeBillingRepo{existing: []model.BillingEntry{existing}}
	svc := NewBillingService(repo, nil)

	bogus := "archived"
	if _, err := svc.UpdateEntry(context.Background(), "doc-may", UpdateEntryRequest{Status: &bogus}); err == nil {
		t.Fatal("expected an error for an unknown status")
	}
	if len(repo.updated) != 0 {
		t.Error("a rejected edit must not write")
	}
}
