package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/billfold-ai/invoice-engine/internal/domain"
)

// Common errors
var (
	ErrNotFound          = errors.New("record not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

const invoiceColumns = `id, user_id, original_filename, stored_path, status,
	invoice_number, invoice_date, due_date, currency,
	vendor_name, vendor_address, vendor_tax_id,
	customer_name, customer_address, customer_tax_id,
	subtotal, tax_amount, total,
	error_message, confidence_scores, created_at, updated_at`

// InvoiceRepository handles invoice reads and narrowly-scoped status writes.
// The full-record overwrite lives in Persist, the single transactional path.
type InvoiceRepository struct {
	db *sql.DB
}

// NewInvoiceRepository creates a new invoice repository.
func NewInvoiceRepository(db *sql.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// Create inserts a freshly uploaded invoice in pending state.
func (r *InvoiceRepository) Create(ctx context.Context, inv *Invoice) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.Status == "" {
		inv.Status = domain.StatusPending
	}
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = inv.CreatedAt

	query := `
		INSERT INTO invoices (id, user_id, original_filename, stored_path, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		inv.ID, inv.UserID, inv.OriginalFilename, inv.StoredPath, inv.Status,
		inv.CreatedAt, inv.UpdatedAt,
	)
	return err
}

// GetByID retrieves an invoice by ID.
func (r *InvoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	return scanInvoice(r.db.QueryRowContext(ctx, query, id))
}

// ListPending returns pending invoices oldest first, for worker dispatch.
func (r *InvoiceRepository) ListPending(ctx context.Context, limit int) ([]*Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices WHERE status = $1 ORDER BY created_at LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, domain.StatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// MarkProcessing flips a pending invoice to processing. It fails with
// ErrInvalidTransition if the invoice is not pending, which keeps terminal
// states immutable.
func (r *InvoiceRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE invoices SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	result, err := r.db.ExecContext(ctx, query,
		domain.StatusProcessing, time.Now(), id, domain.StatusPending)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// MarkFailed writes the terminal failed state with a captured error message.
// Only a processing invoice can fail.
func (r *InvoiceRepository) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	query := `UPDATE invoices SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4 AND status = $5`
	result, err := r.db.ExecContext(ctx, query,
		domain.StatusFailed, message, time.Now(), id, domain.StatusProcessing)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// Persist commits validated extraction data as the invoice's canonical
// record in a single transaction: overwrite the extracted fields and
// confidence map, set status completed, and replace the full line item set.
// Either every write lands or none does.
func (r *InvoiceRepository) Persist(ctx context.Context, id uuid.UUID, c *domain.ExtractionCandidate) error {
	confidence, err := json.Marshal(c.Confidence.Map())
	if err != nil {
		return domain.PersistenceError("failed to encode confidence scores", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.PersistenceError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	now := time.Now()

	query := `
		UPDATE invoices SET
			vendor_name = $1, vendor_address = $2, vendor_tax_id = $3,
			customer_name = $4, customer_address = $5, customer_tax_id = $6,
			invoice_number = $7, invoice_date = $8, due_date = $9, currency = $10,
			subtotal = $11, tax_amount = $12, total = $13,
			confidence_scores = $14, status = $15, updated_at = $16
		WHERE id = $17 AND status = $18
	`
	result, err := tx.ExecContext(ctx, query,
		c.Vendor.Name, c.Vendor.Address, c.Vendor.TaxID,
		c.Customer.Name, c.Customer.Address, c.Customer.TaxID,
		c.Metadata.InvoiceNumber, parseDate(c.Metadata.InvoiceDate), parseDate(c.Metadata.DueDate),
		c.Metadata.Currency,
		c.Totals.Subtotal, c.Totals.TaxAmount, c.Totals.Total,
		string(confidence), domain.StatusCompleted, now,
		id, domain.StatusProcessing,
	)
	if err != nil {
		return domain.PersistenceError("failed to update invoice", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return domain.PersistenceError("failed to update invoice", err)
	}
	if rows == 0 {
		return domain.PersistenceError(fmt.Sprintf("invoice %s is not processing", id), ErrInvalidTransition)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, id); err != nil {
		return domain.PersistenceError("failed to delete prior line items", err)
	}

	insert := `
		INSERT INTO invoice_items (id, invoice_id, description, quantity, unit_price, amount, tax, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, item := range c.LineItems {
		if _, err := tx.ExecContext(ctx, insert,
			uuid.New(), id, item.Description, item.Quantity, item.UnitPrice,
			item.Amount, item.Tax, now, now,
		); err != nil {
			return domain.PersistenceError("failed to insert line item", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.PersistenceError("failed to commit transaction", err)
	}

	return nil
}

// LineItemsByInvoice returns the persisted line items for an invoice.
func (r *InvoiceRepository) LineItemsByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*LineItem, error) {
	query := `
		SELECT id, invoice_id, description, quantity, unit_price, amount, tax, created_at, updated_at
		FROM invoice_items WHERE invoice_id = $1 ORDER BY created_at, id
	`
	rows, err := r.db.QueryContext(ctx, query, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*LineItem
	for rows.Next() {
		item := &LineItem{}
		if err := rows.Scan(
			&item.ID, &item.InvoiceID, &item.Description, &item.Quantity,
			&item.UnitPrice, &item.Amount, &item.Tax, &item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// dateLayouts are the formats accepted for extracted date strings.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"01/02/2006",
	"02.01.2006",
	"Jan 2, 2006",
}

// parseDate converts an extracted date string to a time, or nil when the
// string is absent or unparseable. A bad date never fails persistence.
func parseDate(s *string) *time.Time {
	if s == nil {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, *s); err == nil {
			return &t
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInvoice(row rowScanner) (*Invoice, error) {
	inv := &Invoice{}
	var confidence sql.NullString

	err := row.Scan(
		&inv.ID, &inv.UserID, &inv.OriginalFilename, &inv.StoredPath, &inv.Status,
		&inv.InvoiceNumber, &inv.InvoiceDate, &inv.DueDate, &inv.Currency,
		&inv.VendorName, &inv.VendorAddress, &inv.VendorTaxID,
		&inv.CustomerName, &inv.CustomerAddress, &inv.CustomerTaxID,
		&inv.Subtotal, &inv.TaxAmount, &inv.Total,
		&inv.ErrorMessage, &confidence, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if confidence.Valid && confidence.String != "" {
		if err := json.Unmarshal([]byte(confidence.String), &inv.ConfidenceScores); err != nil {
			return nil, fmt.Errorf("decode confidence scores: %w", err)
		}
	}

	return inv, nil
}
