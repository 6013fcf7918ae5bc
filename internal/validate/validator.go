// Package validate enforces structural constraints and the financial
// reconciliation invariant on extraction candidates before persistence.
package validate

import (
	"fmt"
	"math"

	"github.com/billfold-ai/invoice-engine/internal/domain"
	"github.com/billfold-ai/invoice-engine/internal/observability"
)

// Tolerance is the maximum accepted difference between the claimed invoice
// total and the sum of line item amounts and taxes.
const Tolerance = 0.01

// epsilon absorbs float representation noise so a difference of exactly one
// cent still passes.
const epsilon = 1e-9

const (
	maxNameLength        = 255
	maxTaxIDLength       = 50
	maxInvoiceNumLength  = 100
	maxDateLength        = 20
	maxCurrencyLength    = 3
	maxDescriptionLength = 500
)

// Validator checks extraction candidates produced by the AI service.
type Validator struct {
	logger *observability.Logger
}

// NewValidator creates a new validator.
func NewValidator(logger *observability.Logger) *Validator {
	return &Validator{logger: logger.WithComponent("validate")}
}

// ValidateStructure enforces presence, type and range constraints field by
// field. The returned error names the first failing field.
func (v *Validator) ValidateStructure(c *domain.ExtractionCandidate) error {
	if c == nil {
		return domain.ValidationError("candidate is missing", nil)
	}

	if err := validateParty("vendor", c.Vendor); err != nil {
		return err
	}
	if err := validateParty("customer", c.Customer); err != nil {
		return err
	}

	if err := maxLen("metadata.invoice_number", c.Metadata.InvoiceNumber, maxInvoiceNumLength); err != nil {
		return err
	}
	if err := maxLen("metadata.invoice_date", c.Metadata.InvoiceDate, maxDateLength); err != nil {
		return err
	}
	if err := maxLen("metadata.due_date", c.Metadata.DueDate, maxDateLength); err != nil {
		return err
	}
	if err := maxLen("metadata.currency", c.Metadata.Currency, maxCurrencyLength); err != nil {
		return err
	}

	if err := nonNegative("totals.subtotal", c.Totals.Subtotal); err != nil {
		return err
	}
	if err := nonNegative("totals.tax_amount", c.Totals.TaxAmount); err != nil {
		return err
	}
	if err := nonNegative("totals.total", c.Totals.Total); err != nil {
		return err
	}

	if len(c.LineItems) == 0 {
		return domain.ValidationError("line_items must contain at least one item", nil)
	}

	for i, item := range c.LineItems {
		field := fmt.Sprintf("line_items.%d", i)
		if item.Description == "" {
			return domain.ValidationError(field+".description is required", nil)
		}
		if len(item.Description) > maxDescriptionLength {
			return domain.ValidationError(
				fmt.Sprintf("%s.description exceeds %d characters", field, maxDescriptionLength), nil)
		}
		if item.Quantity < 0 {
			return domain.ValidationError(field+".quantity must not be negative", nil)
		}
		if item.Tax != nil && *item.Tax < 0 {
			return domain.ValidationError(field+".tax must not be negative", nil)
		}
	}

	for _, score := range []struct {
		field string
		value int
	}{
		{"confidence.vendor", c.Confidence.Vendor},
		{"confidence.customer", c.Confidence.Customer},
		{"confidence.metadata", c.Confidence.Metadata},
		{"confidence.totals", c.Confidence.Totals},
		{"confidence.line_items", c.Confidence.LineItems},
	} {
		if score.value < 0 || score.value > 100 {
			return domain.ValidationError(
				fmt.Sprintf("%s must be between 0 and 100, got %d", score.field, score.value), nil)
		}
	}

	return nil
}

// ValidateTotals enforces the reconciliation invariant: line item amounts
// plus taxes must sum to the claimed total within Tolerance. A subtotal
// mismatch alone is logged, not fatal: rounding differences introduced by
// extraction are expected there. A null total means there is nothing to
// reconcile.
func (v *Validator) ValidateTotals(c *domain.ExtractionCandidate) error {
	if c.Totals.Total == nil {
		return nil
	}

	var calcSubtotal, calcTax float64
	for _, item := range c.LineItems {
		calcSubtotal += item.Amount
		if item.Tax != nil {
			calcTax += *item.Tax
		}
	}

	calcTotal := calcSubtotal + calcTax

	if math.Abs(calcTotal-*c.Totals.Total) > Tolerance+epsilon {
		return domain.ReconciliationError(
			fmt.Sprintf("invoice total mismatch: calculated %.2f, expected %.2f", calcTotal, *c.Totals.Total), nil)
	}

	if c.Totals.Subtotal != nil && math.Abs(calcSubtotal-*c.Totals.Subtotal) > Tolerance+epsilon {
		v.logger.Warn().
			Float64("calculated", calcSubtotal).
			Float64("expected", *c.Totals.Subtotal).
			Msg("Invoice subtotal mismatch (rounding difference)")
	}

	return nil
}

func validateParty(section string, p domain.Party) error {
	if err := maxLen(section+".name", p.Name, maxNameLength); err != nil {
		return err
	}
	return maxLen(section+".tax_id", p.TaxID, maxTaxIDLength)
}

func maxLen(field string, value *string, max int) error {
	if value != nil && len(*value) > max {
		return domain.ValidationError(fmt.Sprintf("%s exceeds %d characters", field, max), nil)
	}
	return nil
}

func nonNegative(field string, value *float64) error {
	if value != nil && *value < 0 {
		return domain.ValidationError(field+" must not be negative", nil)
	}
	return nil
}
