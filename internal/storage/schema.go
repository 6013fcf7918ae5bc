package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema is applied at worker startup. The type names are chosen to work
// under both Postgres and SQLite (SQLite applies affinity rules to any
// declared type).
const Schema = `
CREATE TABLE IF NOT EXISTS invoices (
	id                UUID PRIMARY KEY,
	user_id           BIGINT NOT NULL,
	original_filename TEXT NOT NULL,
	stored_path       TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'pending',
	invoice_number    TEXT,
	invoice_date      DATE,
	due_date          DATE,
	currency          TEXT,
	vendor_name       TEXT,
	vendor_address    TEXT,
	vendor_tax_id     TEXT,
	customer_name     TEXT,
	customer_address  TEXT,
	customer_tax_id   TEXT,
	subtotal          NUMERIC(12,2),
	tax_amount        NUMERIC(12,2),
	total             NUMERIC(12,2),
	error_message     TEXT,
	confidence_scores TEXT,
	created_at        TIMESTAMP NOT NULL,
	updated_at        TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices (status);
CREATE INDEX IF NOT EXISTS idx_invoices_user_id ON invoices (user_id);

CREATE TABLE IF NOT EXISTS invoice_items (
	id          UUID PRIMARY KEY,
	invoice_id  UUID NOT NULL REFERENCES invoices (id) ON DELETE CASCADE,
	description TEXT NOT NULL,
	quantity    NUMERIC(10,3) NOT NULL DEFAULT 1,
	unit_price  NUMERIC(12,2) NOT NULL,
	amount      NUMERIC(12,2) NOT NULL,
	tax         NUMERIC(12,2),
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_invoice_items_invoice_id ON invoice_items (invoice_id);
`

// EnsureSchema creates the tables if they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
