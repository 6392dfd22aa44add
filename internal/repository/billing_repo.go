package repository

import (
	"context"
	"errors"

	"billing/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BillingFilter narrows List results. Zero values mean "no filter".
type BillingFilter struct {
	Branch   string
	Customer string
	Status   string
	Year     int // recognition-month year
	Page     int
	Limit    int
}

type BillingRepository interface {
	Create(ctx context.Context, entry *model.BillingEntry) error
	Update(ctx context.Context, entry *model.BillingEntry) error
	FindByID(ctx context.Context, id string) (*model.BillingEntry, error)
	List(ctx context.Context, filter BillingFilter) ([]model.BillingEntry, int64, error)
	ListByCustomer(ctx context.Context, branch, customer string, limit int) ([]model.BillingEntry, error)
	Delete(ctx context.Context, id string) error
}

type billingRepository struct {
	db *gorm.DB
}

func NewBillingRepository(db *gorm.DB) BillingRepository {
	return &billingRepository{db: db}
}

func (r *billingRepository) Create(ctx context.Context, entry *model.BillingEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *billingRepository) Update(ctx context.Context, entry *model.BillingEntry) error {
	return r.db.WithContext(ctx).Save(entry).Error
}

// FindByID accepts either the stable document identifier or the internal
// primary key, preferring the document identifier.
func (r *billingRepository) FindByID(ctx context.Context, id string) (*model.BillingEntry, error) {
	var entry model.BillingEntry
	err := r.db.WithContext(ctx).First(&entry, "document_id = ?", id).Error
	if err == nil {
		return &entry, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	pk, parseErr := uuid.Parse(id)
	if parseErr != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).First(&entry, "id = ?", pk).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *billingRepository) List(ctx context.Context, filter BillingFilter) ([]model.BillingEntry, int64, error) {
	var entries []model.BillingEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&model.BillingEntry{})
	query = applyBillingFilter(query, filter)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	fetch := applyBillingFilter(r.db.WithContext(ctx), filter)
	if err := fetch.Order("recognition_month asc, invoice_date desc").
		Offset(offset).Limit(filter.Limit).Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

func applyBillingFilter(db *gorm.DB, filter BillingFilter) *gorm.DB {
	if filter.Branch != "" {
		db = db.Where("branch = ?", filter.Branch)
	}
	if filter.Customer != "" {
		db = db.Where("customer = ?", filter.Customer)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.Year != 0 {
		db = db.Where("EXTRACT(YEAR FROM recognition_month) = ?", filter.Year)
	}
	return db
}

// ListByCustomer is the reconciliation read: exact customer match within a
// branch, newest invoice first, one bounded page.
func (r *billingRepository) ListByCustomer(ctx context.Context, branch, customer string, limit int) ([]model.BillingEntry, error) {
	var entries []model.BillingEntry
	err := r.db.WithContext(ctx).
		Where("branch = ? AND customer = ?", branch, customer).
		Order("invoice_date desc").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *billingRepository) Delete(ctx context.Context, id string) error {
	entry, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Delete(entry).Error
}
