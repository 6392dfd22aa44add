package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"billing/internal/allocation"
	"billing/internal/model"
	"billing/internal/period"
	"billing/internal/reconcile"
	"billing/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- DTOs ---

// AllocationRequest is the caller-facing form state for one allocation
// session. Monetary values travel as strings; per-period maps are keyed by
// the canonical "YYYY-MM" period form.
type AllocationRequest struct {
	Branch             string            `json:"branch"`
	Customer           string            `json:"customer"`
	InvoiceDate        string            `json:"invoice_date"` // YYYY-MM-DD
	Currency           string            `json:"currency"`
	Year               int               `json:"year" binding:"required"`
	Months             []int             `json:"months"`
	DistributionMethod string            `json:"distribution_method" binding:"required,oneof=even custom percentage"`
	TotalAmount        string            `json:"total_amount"`
	TotalCost          string            `json:"total_cost"`
	CustomAmounts      map[string]string `json:"custom_amounts"`
	CustomCosts        map[string]string `json:"custom_costs"`
	Percentages        map[string]string `json:"percentages"`
	InvoiceNumber      string            `json:"invoice_number"`
	DefaultStatus      string            `json:"default_status"`
	StatusOverrides    map[string]string `json:"status_overrides"`
	ApplyCollectedDate bool              `json:"apply_collected_date"`
	CollectedDate      string            `json:"collected_date"`
	PaymentReference   string            `json:"payment_reference"`
}

type EntryResponse struct {
	Period           string  `json:"period"`
	BillingID        string  `json:"billing_id"`
	Customer         string  `json:"customer"`
	InvoiceNumber    string  `json:"invoice_number"`
	InvoiceDate      string  `json:"invoice_date"`
	Amount           string  `json:"amount"`
	Currency         string  `json:"currency"`
	RecognitionMonth string  `json:"recognition_month"`
	Status           string  `json:"status"`
	CollectedDate    *string `json:"collected_date,omitempty"`
	PaymentReference string  `json:"payment_reference,omitempty"`
	ConstructionCost *string `json:"construction_cost,omitempty"`
	ProjectProfit    *string `json:"project_profit,omitempty"`
	ExistingID       string  `json:"existing_id,omitempty"`
	Action           string  `json:"action"` // "create" or "update"
}

type PreviewResponse struct {
	Entries     []EntryResponse `json:"entries"`
	TotalAmount string          `json:"total_amount"`
	TotalCost   string          `json:"total_cost"`
	TotalProfit string          `json:"total_profit"`
	CreateCount int             `json:"create_count"`
	UpdateCount int             `json:"update_count"`
}

type SubmitResponse struct {
	Entries []EntryResponse `json:"entries"`
	Created int             `json:"created"`
	Updated int             `json:"updated"`
}

type PrefillResponse struct {
	Found             bool              `json:"found"`
	Year              int               `json:"year,omitempty"`
	SelectedMonths    []int             `json:"selected_months,omitempty"`
	Currency          string            `json:"currency,omitempty"`
	InvoiceNumberBase string            `json:"invoice_number_base,omitempty"`
	PaymentReference  string            `json:"payment_reference,omitempty"`
	DefaultStatus     string            `json:"default_status,omitempty"`
	Amounts           map[string]string `json:"amounts,omitempty"`
	Costs             map[string]string `json:"costs,omitempty"`
	Statuses          map[string]string `json:"statuses,omitempty"`
	ExistingIDs       map[string]string `json:"existing_ids,omitempty"`
}

// UpdateEntryRequest edits one persisted entry in place. Nil fields are left
// untouched; CollectedDate accepts "" to clear the date.
type UpdateEntryRequest struct {
	Status           *string `json:"status"`
	CollectedDate    *string `json:"collected_date"` // YYYY-MM-DD or "" to clear
	PaymentReference *string `json:"payment_reference"`
	Amount           *string `json:"amount"`
	ConstructionCost *string `json:"construction_cost"`
}

type EntryDetail struct {
	ID               string  `json:"id"`
	DocumentID       string  `json:"document_id"`
	BillingID        string  `json:"billing_id"`
	Branch           string  `json:"branch"`
	Customer         string  `json:"customer"`
	InvoiceNumber    string  `json:"invoice_number"`
	InvoiceDate      string  `json:"invoice_date"`
	Amount           string  `json:"amount"`
	Currency         string  `json:"currency"`
	RecognitionMonth string  `json:"recognition_month"`
	Status           string  `json:"status"`
	CollectedDate    *string `json:"collected_date,omitempty"`
	PaymentReference string  `json:"payment_reference,omitempty"`
	ConstructionCost *string `json:"construction_cost,omitempty"`
	ProjectProfit    *string `json:"project_profit,omitempty"`
	CreatedAt        string  `json:"created_at"`
}

// Notifier broadcasts the single source-of-truth refresh after a committed
// batch. The websocket hub implements it.
type Notifier interface {
	BillingsRefreshed(branch string)
}

type noopNotifier struct{}

func (noopNotifier) BillingsRefreshed(string) {}

// --- Interface ---

// BillingService is the caller-facing surface of the multi-period allocation
// workflow plus the plain entry CRUD the dashboard sits on. Preview and
// Submit return a field → message map when the input fails validation; the
// map is data, never an error.
type BillingService interface {
	Prefill(ctx context.Context, sessionID, branch, customer string) (*PrefillResponse, error)
	Preview(ctx context.Context, req AllocationRequest) (*PreviewResponse, map[string]string, error)
	Submit(ctx context.Context, req AllocationRequest) (*SubmitResponse, map[string]string, error)

	ListEntries(ctx context.Context, filter repository.BillingFilter) ([]EntryDetail, int64, error)
	GetEntry(ctx context.Context, id string) (*EntryDetail, error)
	UpdateEntry(ctx context.Context, id string, req UpdateEntryRequest) (*EntryDetail, error)
	DeleteEntry(ctx context.Context, id string) error
}

type billingService struct {
	repo       repository.BillingRepository
	reconciler *reconcile.Reconciler
	notifier   Notifier
	sessions   *sessionRegistry
}

func NewBillingService(repo repository.BillingRepository, notifier Notifier) BillingService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	reconciler := reconcile.NewReconciler(repo)
	return &billingService{
		repo:       repo,
		reconciler: reconciler,
		notifier:   notifier,
		sessions:   newSessionRegistry(reconciler),
	}
}

// --- Implementation ---

// Prefill loads the customer's history through the caller's allocation
// session. Overlapping selections for the same session are resolved in favor
// of the newest one; a superseded fetch returns ErrStaleSelection.
func (s *billingService) Prefill(ctx context.Context, sessionID, branch, customer string) (*PrefillResponse, error) {
	if !model.ValidBranch(branch) {
		return nil, fmt.Errorf("unknown branch %q", branch)
	}
	prefill, err := s.sessions.get(sessionID).SelectCustomer(ctx, branch, customer)
	if err != nil {
		return nil, err
	}
	return mapPrefill(prefill), nil
}

func (s *billingService) Preview(ctx context.Context, req AllocationRequest) (*PreviewResponse, map[string]string, error) {
	input, err := parseAllocationRequest(req)
	if err != nil {
		return nil, nil, err
	}
	if violations := allocation.Validate(input); len(violations) > 0 {
		return nil, violations, nil
	}

	index, err := s.currentIndex(ctx, input)
	if err != nil {
		return nil, nil, err
	}

	entries := allocation.Assemble(input, index)
	return buildPreview(entries), nil, nil
}

// Submit validates, assembles, and writes the batch sequentially in period
// order. The first failing write aborts the batch; earlier writes are kept
// (documented at-least-once semantics, no rollback) and the error names the
// failing period and whether it was a create or an update. One refresh
// notification is broadcast after the whole batch succeeds, never per entry.
func (s *billingService) Submit(ctx context.Context, req AllocationRequest) (*SubmitResponse, map[string]string, error) {
	input, err := parseAllocationRequest(req)
	if err != nil {
		return nil, nil, err
	}
	if violations := allocation.Validate(input); len(violations) > 0 {
		return nil, violations, nil
	}

	index, err := s.currentIndex(ctx, input)
	if err != nil {
		return nil, nil, err
	}

	entries := allocation.Assemble(input, index)

	resp := &SubmitResponse{Entries: make([]EntryResponse, 0, len(entries))}
	for _, entry := range entries {
		if entry.IsUpdate() {
			if err := s.updateEntry(ctx, input.Branch, entry); err != nil {
				return nil, nil, fmt.Errorf("failed to update billing entry for %s: %w", entry.Period, err)
			}
			resp.Updated++
		} else {
			if err := s.createEntry(ctx, input.Branch, entry); err != nil {
				return nil, nil, fmt.Errorf("failed to create billing entry for %s: %w", entry.Period, err)
			}
			resp.Created++
		}
		resp.Entries = append(resp.Entries, mapEntry(entry))
	}

	s.notifier.BillingsRefreshed(input.Branch)
	return resp, nil, nil
}

func (s *billingService) createEntry(ctx context.Context, branch string, entry allocation.Entry) error {
	record := model.BillingEntry{
		DocumentID:       newDocumentID(),
		BillingID:        entry.BillingID,
		Branch:           branch,
		Customer:         entry.Customer,
		InvoiceNumber:    entry.InvoiceNumber,
		InvoiceDate:      entry.InvoiceDate,
		Amount:           entry.Amount,
		Currency:         entry.Currency,
		RecognitionMonth: entry.RecognitionMonth,
		Status:           entry.Status,
		CollectedDate:    entry.CollectedDate,
		PaymentReference: entry.PaymentReference,
		ConstructionCost: entry.ConstructionCost,
		ProjectProfit:    entry.ProjectProfit,
	}
	return s.repo.Create(ctx, &record)
}

func (s *billingService) updateEntry(ctx context.Context, branch string, entry allocation.Entry) error {
	target := entry.Existing.DocumentID
	if target == "" {
		target = entry.Existing.ID.String()
	}
	record, err := s.repo.FindByID(ctx, target)
	if err != nil {
		return err
	}

	record.BillingID = entry.BillingID
	record.Customer = entry.Customer
	record.InvoiceNumber = entry.InvoiceNumber
	record.InvoiceDate = entry.InvoiceDate
	record.Amount = entry.Amount
	record.Currency = entry.Currency
	record.RecognitionMonth = entry.RecognitionMonth
	record.Status = entry.Status
	record.CollectedDate = entry.CollectedDate
	record.PaymentReference = entry.PaymentReference
	record.ConstructionCost = entry.ConstructionCost
	record.ProjectProfit = entry.ProjectProfit

	return s.repo.Update(ctx, record)
}

// currentIndex rebuilds the existing-record index at the moment it is needed
// so classification never trusts client-supplied identifiers.
func (s *billingService) currentIndex(ctx context.Context, input allocation.Input) (reconcile.Index, error) {
	customer := strings.TrimSpace(input.Customer)
	if customer == "" {
		return reconcile.Index{}, nil
	}
	prefill, err := s.reconciler.Prefill(ctx, input.Branch, customer)
	if err != nil {
		return nil, err
	}
	return prefill.Index, nil
}

func (s *billingService) ListEntries(ctx context.Context, filter repository.BillingFilter) ([]EntryDetail, int64, error) {
	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	details := make([]EntryDetail, 0, len(entries))
	for i := range entries {
		details = append(details, mapDetail(&entries[i]))
	}
	return details, total, nil
}

func (s *billingService) GetEntry(ctx context.Context, id string) (*EntryDetail, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("billing entry %s not found: %w", id, err)
	}
	detail := mapDetail(entry)
	return &detail, nil
}

// UpdateEntry applies a partial edit to one persisted entry. Profit is
// recomputed whenever amount or cost changes, keeping the cost-positive rule.
func (s *billingService) UpdateEntry(ctx context.Context, id string, req UpdateEntryRequest) (*EntryDetail, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("billing entry %s not found: %w", id, err)
	}

	if req.Status != nil {
		if !model.ValidStatus(*req.Status) {
			return nil, fmt.Errorf("unknown status %q", *req.Status)
		}
		entry.Status = *req.Status
	}
	if req.CollectedDate != nil {
		if *req.CollectedDate == "" {
			entry.CollectedDate = nil
		} else {
			d, err := time.Parse("2006-01-02", *req.CollectedDate)
			if err != nil {
				return nil, fmt.Errorf("invalid collected_date: %w", err)
			}
			entry.CollectedDate = &d
		}
	}
	if req.PaymentReference != nil {
		entry.PaymentReference = *req.PaymentReference
	}
	if req.Amount != nil {
		amount, err := parseMoney(*req.Amount, "amount")
		if err != nil {
			return nil, err
		}
		entry.Amount = amount
	}
	if req.ConstructionCost != nil {
		cost, err := parseMoney(*req.ConstructionCost, "construction_cost")
		if err != nil {
			return nil, err
		}
		if cost.IsPositive() {
			entry.ConstructionCost = &cost
		} else {
			entry.ConstructionCost = nil
		}
	}

	if entry.ConstructionCost != nil && entry.ConstructionCost.IsPositive() {
		profit := entry.Amount.Sub(*entry.ConstructionCost)
		entry.ProjectProfit = &profit
	} else {
		entry.ConstructionCost = nil
		entry.ProjectProfit = nil
	}

	if err := s.repo.Update(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to update billing entry %s: %w", id, err)
	}

	s.notifier.BillingsRefreshed(entry.Branch)
	detail := mapDetail(entry)
	return &detail, nil
}

func (s *billingService) DeleteEntry(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// --- Mapping helpers ---

func parseAllocationRequest(req AllocationRequest) (allocation.Input, error) {
	branch := req.Branch
	if branch == "" {
		branch = model.BranchCashflow
	}
	if !model.ValidBranch(branch) {
		return allocation.Input{}, fmt.Errorf("unknown branch %q", branch)
	}

	periods, err := period.Build(req.Year, req.Months)
	if err != nil {
		return allocation.Input{}, err
	}

	input := allocation.Input{
		Branch:             branch,
		Customer:           req.Customer,
		Currency:           req.Currency,
		Periods:            periods,
		Method:             allocation.Method(req.DistributionMethod),
		InvoiceNumberBase:  req.InvoiceNumber,
		DefaultStatus:      req.DefaultStatus,
		ApplyCollectedDate: req.ApplyCollectedDate,
		PaymentReference:   req.PaymentReference,
	}
	if input.Currency == "" {
		input.Currency = "USD"
	}
	if !allocation.ValidMethod(input.Method) {
		return allocation.Input{}, fmt.Errorf("unknown distribution method %q", req.DistributionMethod)
	}

	if req.InvoiceDate != "" {
		input.InvoiceDate, err = time.Parse("2006-01-02", req.InvoiceDate)
		if err != nil {
			return allocation.Input{}, fmt.Errorf("invalid invoice_date: %w", err)
		}
	}
	if req.CollectedDate != "" {
		input.CollectedDate, err = time.Parse("2006-01-02", req.CollectedDate)
		if err != nil {
			return allocation.Input{}, fmt.Errorf("invalid collected_date: %w", err)
		}
	}

	if input.TotalAmount, err = parseMoney(req.TotalAmount, "total_amount"); err != nil {
		return allocation.Input{}, err
	}
	if input.TotalCost, err = parseMoney(req.TotalCost, "total_cost"); err != nil {
		return allocation.Input{}, err
	}
	if input.CustomAmounts, err = parsePeriodMoney(req.CustomAmounts, "custom_amounts"); err != nil {
		return allocation.Input{}, err
	}
	if input.CustomCosts, err = parsePeriodMoney(req.CustomCosts, "custom_costs"); err != nil {
		return allocation.Input{}, err
	}
	if input.Percentages, err = parsePeriodMoney(req.Percentages, "percentages"); err != nil {
		return allocation.Input{}, err
	}

	if len(req.StatusOverrides) > 0 {
		input.StatusOverrides = make(map[period.Key]string, len(req.StatusOverrides))
		for k, v := range req.StatusOverrides {
			key, err := period.Parse(k)
			if err != nil {
				return allocation.Input{}, fmt.Errorf("invalid status_overrides key: %w", err)
			}
			input.StatusOverrides[key] = v
		}
	}

	return input, nil
}

func parseMoney(s, field string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", field, err)
	}
	return d, nil
}

func parsePeriodMoney(values map[string]string, field string) (map[period.Key]decimal.Decimal, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[period.Key]decimal.Decimal, len(values))
	for k, v := range values {
		key, err := period.Parse(k)
		if err != nil {
			return nil, fmt.Errorf("invalid %s key: %w", field, err)
		}
		if v == "" {
			continue
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value for %s: %w", field, k, err)
		}
		out[key] = d
	}
	return out, nil
}

func buildPreview(entries []allocation.Entry) *PreviewResponse {
	resp := &PreviewResponse{Entries: make([]EntryResponse, 0, len(entries))}
	amount, cost, profit := decimal.Zero, decimal.Zero, decimal.Zero
	for _, e := range entries {
		amount = amount.Add(e.Amount)
		if e.ConstructionCost != nil {
			cost = cost.Add(*e.ConstructionCost)
		}
		if e.ProjectProfit != nil {
			profit = profit.Add(*e.ProjectProfit)
		}
		if e.IsUpdate() {
			resp.UpdateCount++
		} else {
			resp.CreateCount++
		}
		resp.Entries = append(resp.Entries, mapEntry(e))
	}
	resp.TotalAmount = amount.StringFixed(2)
	resp.TotalCost = cost.StringFixed(2)
	resp.TotalProfit = profit.StringFixed(2)
	return resp
}

func mapEntry(e allocation.Entry) EntryResponse {
	out := EntryResponse{
		Period:           e.Period.String(),
		BillingID:        e.BillingID,
		Customer:         e.Customer,
		InvoiceNumber:    e.InvoiceNumber,
		InvoiceDate:      e.InvoiceDate.Format("2006-01-02"),
		Amount:           e.Amount.StringFixed(2),
		Currency:         e.Currency,
		RecognitionMonth: e.RecognitionMonth.Format("2006-01-02"),
		Status:           e.Status,
		PaymentReference: e.PaymentReference,
		Action:           "create",
	}
	if e.CollectedDate != nil {
		d := e.CollectedDate.Format("2006-01-02")
		out.CollectedDate = &d
	}
	if e.ConstructionCost != nil {
		c := e.ConstructionCost.StringFixed(2)
		out.ConstructionCost = &c
	}
	if e.ProjectProfit != nil {
		p := e.ProjectProfit.StringFixed(2)
		out.ProjectProfit = &p
	}
	if e.IsUpdate() {
		out.Action = "update"
		out.ExistingID = e.Existing.DocumentID
		if out.ExistingID == "" {
			out.ExistingID = e.Existing.ID.String()
		}
	}
	return out
}

func mapPrefill(p *reconcile.Prefill) *PrefillResponse {
	resp := &PrefillResponse{Found: !p.Empty()}
	if p.Empty() {
		return resp
	}
	resp.Year = p.Year
	resp.SelectedMonths = p.SelectedMonths
	resp.Currency = p.Currency
	resp.InvoiceNumberBase = p.InvoiceNumberBase
	resp.PaymentReference = p.PaymentReference
	resp.DefaultStatus = p.DefaultStatus
	resp.Amounts = map[string]string{}
	resp.Costs = map[string]string{}
	resp.Statuses = map[string]string{}
	resp.ExistingIDs = map[string]string{}
	for key, amount := range p.Amounts {
		resp.Amounts[key.String()] = amount.StringFixed(2)
	}
	for key, cost := range p.Costs {
		resp.Costs[key.String()] = cost.StringFixed(2)
	}
	for key, status := range p.Statuses {
		resp.Statuses[key.String()] = status
	}
	for key, rec := range p.Index {
		id := rec.DocumentID
		if id == "" {
			id = rec.ID.String()
		}
		resp.ExistingIDs[key.String()] = id
	}
	return resp
}

func mapDetail(e *model.BillingEntry) EntryDetail {
	detail := EntryDetail{
		ID:               e.ID.String(),
		DocumentID:       e.DocumentID,
		BillingID:        e.BillingID,
		Branch:           e.Branch,
		Customer:         e.Customer,
		InvoiceNumber:    e.InvoiceNumber,
		InvoiceDate:      e.InvoiceDate.Format("2006-01-02"),
		Amount:           e.Amount.StringFixed(2),
		Currency:         e.Currency,
		RecognitionMonth: e.RecognitionMonth.Format("2006-01-02"),
		Status:           e.Status,
		PaymentReference: e.PaymentReference,
		CreatedAt:        e.CreatedAt.Format(time.RFC3339),
	}
	if e.CollectedDate != nil {
		d := e.CollectedDate.Format("2006-01-02")
		detail.CollectedDate = &d
	}
	if e.ConstructionCost != nil {
		c := e.ConstructionCost.StringFixed(2)
		detail.ConstructionCost = &c
	}
	if e.ProjectProfit != nil {
		p := e.ProjectProfit.StringFixed(2)
		detail.ProjectProfit = &p
	}
	return detail
}

// newDocumentID mints the stable external identifier for a created entry.
func newDocumentID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}
