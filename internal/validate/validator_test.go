package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billfold-ai/invoice-engine/internal/domain"
	"github.com/billfold-ai/invoice-engine/internal/observability"
)

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

func validCandidate() *domain.ExtractionCandidate {
	return &domain.ExtractionCandidate{
		Vendor: domain.Party{
			Name:    strPtr("Acme Corp"),
			Address: strPtr("1 Industrial Way"),
			TaxID:   strPtr("DE123456789"),
		},
		Customer: domain.Party{
			Name: strPtr("Widget Ltd"),
		},
		Metadata: domain.Metadata{
			InvoiceNumber: strPtr("INV-2024-001"),
			InvoiceDate:   strPtr("2024-03-15"),
			Currency:      strPtr("EUR"),
		},
		Totals: domain.Totals{
			Subtotal:  floatPtr(100.00),
			TaxAmount: floatPtr(19.00),
			Total:     floatPtr(119.00),
		},
		LineItems: []domain.CandidateLineItem{
			{Description: "Widgets", Quantity: 10, UnitPrice: 10.00, Amount: 100.00, Tax: floatPtr(19.00)},
		},
		Confidence: domain.Confidence{Vendor: 95, Customer: 80, Metadata: 90, Totals: 99, LineItems: 97},
	}
}

func TestValidateStructure(t *testing.T) {
	v := NewValidator(observability.Nop())

	t.Run("valid candidate passes", func(t *testing.T) {
		require.NoError(t, v.ValidateStructure(validCandidate()))
	})

	t.Run("nil candidate fails", func(t *testing.T) {
		err := v.ValidateStructure(nil)
		require.Error(t, err)
		assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	})

	tests := []struct {
		name    string
		mutate  func(c *domain.ExtractionCandidate)
		wantMsg string
	}{
		{
			name:    "vendor name too long",
			mutate:  func(c *domain.ExtractionCandidate) { c.Vendor.Name = strPtr(strings.Repeat("a", 256)) },
			wantMsg: "vendor.name",
		},
		{
			name:    "customer tax id too long",
			mutate:  func(c *domain.ExtractionCandidate) { c.Customer.TaxID = strPtr(strings.Repeat("9", 51)) },
			wantMsg: "customer.tax_id",
		},
		{
			name:    "invoice number too long",
			mutate:  func(c *domain.ExtractionCandidate) { c.Metadata.InvoiceNumber = strPtr(strings.Repeat("x", 101)) },
			wantMsg: "metadata.invoice_number",
		},
		{
			name:    "currency too long",
			mutate:  func(c *domain.ExtractionCandidate) { c.Metadata.Currency = strPtr("EURO") },
			wantMsg: "metadata.currency",
		},
		{
			name:    "negative subtotal",
			mutate:  func(c *domain.ExtractionCandidate) { c.Totals.Subtotal = floatPtr(-1) },
			wantMsg: "totals.subtotal",
		},
		{
			name:    "no line items",
			mutate:  func(c *domain.ExtractionCandidate) { c.LineItems = nil },
			wantMsg: "line_items",
		},
		{
			name:    "line item without description",
			mutate:  func(c *domain.ExtractionCandidate) { c.LineItems[0].Description = "" },
			wantMsg: "line_items.0.description",
		},
		{
			name: "line item description too long",
			mutate: func(c *domain.ExtractionCandidate) {
				c.LineItems[0].Description = strings.Repeat("d", 501)
			},
			wantMsg: "line_items.0.description",
		},
		{
			name:    "negative quantity",
			mutate:  func(c *domain.ExtractionCandidate) { c.LineItems[0].Quantity = -1 },
			wantMsg: "line_items.0.quantity",
		},
		{
			name:    "negative line item tax",
			mutate:  func(c *domain.ExtractionCandidate) { c.LineItems[0].Tax = floatPtr(-0.01) },
			wantMsg: "line_items.0.tax",
		},
		{
			name:    "confidence above 100",
			mutate:  func(c *domain.ExtractionCandidate) { c.Confidence.Totals = 101 },
			wantMsg: "confidence.totals",
		},
		{
			name:    "negative confidence",
			mutate:  func(c *domain.ExtractionCandidate) { c.Confidence.Vendor = -5 },
			wantMsg: "confidence.vendor",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCandidate()
			tt.mutate(c)

			err := v.ValidateStructure(c)
			require.Error(t, err)
			assert.Equal(t, domain.KindValidation, domain.KindOf(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidateStructureBoundaries(t *testing.T) {
	v := NewValidator(observability.Nop())

	c := validCandidate()
	c.Vendor.Name = strPtr(strings.Repeat("a", 255))
	c.LineItems[0].Description = strings.Repeat("d", 500)
	c.LineItems[0].Quantity = 0
	c.Confidence.Vendor = 0
	c.Confidence.Totals = 100

	require.NoError(t, v.ValidateStructure(c))
}

func TestValidateTotals(t *testing.T) {
	v := NewValidator(observability.Nop())

	t.Run("exact match passes", func(t *testing.T) {
		require.NoError(t, v.ValidateTotals(validCandidate()))
	})

	t.Run("difference at tolerance passes", func(t *testing.T) {
		c := validCandidate()
		c.Totals.Total = floatPtr(119.01)
		require.NoError(t, v.ValidateTotals(c))
	})

	t.Run("difference just beyond tolerance fails", func(t *testing.T) {
		c := validCandidate()
		c.Totals.Total = floatPtr(119.0101)

		err := v.ValidateTotals(c)
		require.Error(t, err)
		assert.Equal(t, domain.KindReconciliation, domain.KindOf(err))
	})

	t.Run("difference beyond tolerance fails", func(t *testing.T) {
		c := validCandidate()
		c.Totals.Total = floatPtr(119.02)

		err := v.ValidateTotals(c)
		require.Error(t, err)
		assert.Equal(t, domain.KindReconciliation, domain.KindOf(err))
		assert.Contains(t, err.Error(), "119.00")
		assert.Contains(t, err.Error(), "119.02")
	})

	t.Run("nil total is not reconciled", func(t *testing.T) {
		c := validCandidate()
		c.Totals.Total = nil
		require.NoError(t, v.ValidateTotals(c))
	})

	t.Run("subtotal mismatch alone is not fatal", func(t *testing.T) {
		c := validCandidate()
		c.Totals.Subtotal = floatPtr(95.00)
		require.NoError(t, v.ValidateTotals(c))
	})

	t.Run("items without tax reconcile against amounts only", func(t *testing.T) {
		c := validCandidate()
		c.LineItems[0].Tax = nil
		c.Totals.Total = floatPtr(100.00)
		require.NoError(t, v.ValidateTotals(c))
	})
}
