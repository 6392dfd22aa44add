package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Billing status enum constants
const (
	StatusDraft     = "draft"
	StatusSent      = "sent"
	StatusPaid      = "paid"
	StatusOverdue   = "overdue"
	StatusCancelled = "cancelled"
)

// Branch enum constants. Each branch is a parallel billing collection.
const (
	BranchCashflow       = "cashflow"
	BranchConstruction   = "construction"
	BranchLooseFurniture = "loose-furniture"
	BranchInteriorDesign = "interior-design"
)

// ValidStatus reports whether s is one of the billing status values.
func ValidStatus(s string) bool {
	switch s {
	case StatusDraft, StatusSent, StatusPaid, StatusOverdue, StatusCancelled:
		return true
	}
	return false
}

// ValidBranch reports whether b names a known billing branch.
func ValidBranch(b string) bool {
	switch b {
	case BranchCashflow, BranchConstruction, BranchLooseFurniture, BranchInteriorDesign:
		return true
	}
	return false
}

// BillingEntry is one period's slice of a client billing, attributed to a
// single recognition month. ID is the internal primary key; DocumentID is the
// stable external identifier clients round-trip for updates.
type BillingEntry struct {
	ID               uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	DocumentID       string           `gorm:"type:varchar(32);uniqueIndex;not null" json:"document_id"`
	BillingID        string           `gorm:"type:varchar(64);uniqueIndex;not null" json:"billing_id"`
	Branch           string           `gorm:"type:varchar(20);not null;index;default:'cashflow'" json:"branch"`
	Customer         string           `gorm:"type:varchar(120);not null;index" json:"customer"`
	InvoiceNumber    string           `gorm:"type:varchar(60);not null" json:"invoice_number"`
	InvoiceDate      time.Time        `gorm:"type:date;not null;index" json:"invoice_date"`
	Amount           decimal.Decimal  `gorm:"type:decimal(18,4);not null" json:"amount"`
	Currency         string           `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	RecognitionMonth time.Time        `gorm:"type:date;not null;index" json:"recognition_month"` // always first of month
	Status           string           `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`
	CollectedDate    *time.Time       `gorm:"type:date" json:"collected_date,omitempty"`
	PaymentReference string           `gorm:"type:varchar(120)" json:"payment_reference,omitempty"`
	ConstructionCost *decimal.Decimal `gorm:"type:decimal(18,4)" json:"construction_cost,omitempty"`
	ProjectProfit    *decimal.Decimal `gorm:"type:decimal(18,4)" json:"project_profit,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}
