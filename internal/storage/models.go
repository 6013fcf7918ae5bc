// Package storage provides database models and repositories for the
// invoice engine.
package storage

import (
	"time"

	"github.com/google/uuid"

	"github.com/billfold-ai/invoice-engine/internal/domain"
)

// Invoice is the canonical persisted record of an uploaded invoice.
// Extracted fields stay nil until a pipeline run completes.
type Invoice struct {
	ID               uuid.UUID
	UserID           int64
	OriginalFilename string
	StoredPath       string
	Status           domain.Status

	InvoiceNumber *string
	InvoiceDate   *time.Time
	DueDate       *time.Time
	Currency      *string

	VendorName      *string
	VendorAddress   *string
	VendorTaxID     *string
	CustomerName    *string
	CustomerAddress *string
	CustomerTaxID   *string

	Subtotal  *float64
	TaxAmount *float64
	Total     *float64

	ErrorMessage     *string
	ConfidenceScores map[string]int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LineItem belongs to exactly one completed invoice.
type LineItem struct {
	ID          uuid.UUID
	InvoiceID   uuid.UUID
	Description string
	Quantity    float64
	UnitPrice   float64
	Amount      float64
	Tax         *float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
