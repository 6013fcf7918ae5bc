package domain

// Status represents the lifecycle state of an invoice.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status permits no further pipeline mutation.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next is a legal step in the
// pending → processing → {completed|failed} machine.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Party identifies one side of the invoice (vendor or customer).
// All fields are nullable: the extraction service returns null for anything
// it cannot read.
type Party struct {
	Name    *string `json:"name"`
	Address *string `json:"address"`
	TaxID   *string `json:"tax_id"`
}

// Metadata holds document-level invoice fields.
type Metadata struct {
	InvoiceNumber *string `json:"invoice_number"`
	InvoiceDate   *string `json:"invoice_date"`
	DueDate       *string `json:"due_date"`
	Currency      *string `json:"currency"`
}

// Totals holds the claimed financial totals of the invoice.
type Totals struct {
	Subtotal  *float64 `json:"subtotal"`
	TaxAmount *float64 `json:"tax_amount"`
	Total     *float64 `json:"total"`
}

// CandidateLineItem is a single extracted line item. Description, quantity,
// unit price and amount are required by the extraction schema; tax is not.
type CandidateLineItem struct {
	Description string   `json:"description"`
	Quantity    float64  `json:"quantity"`
	UnitPrice   float64  `json:"unit_price"`
	Amount      float64  `json:"amount"`
	Tax         *float64 `json:"tax"`
}

// Confidence carries 0-100 self-assessed scores per extracted section.
type Confidence struct {
	Vendor    int `json:"vendor"`
	Customer  int `json:"customer"`
	Metadata  int `json:"metadata"`
	Totals    int `json:"totals"`
	LineItems int `json:"line_items"`
}

// Map returns the confidence scores keyed by section name, the shape
// persisted on the invoice record.
func (c Confidence) Map() map[string]int {
	return map[string]int{
		"vendor":     c.Vendor,
		"customer":   c.Customer,
		"metadata":   c.Metadata,
		"totals":     c.Totals,
		"line_items": c.LineItems,
	}
}

// ExtractionCandidate is the raw, schema-shaped output of the AI vision call.
// It is transient: produced by the extractor, checked by the validator, and
// never persisted as-is.
type ExtractionCandidate struct {
	Vendor     Party               `json:"vendor"`
	Customer   Party               `json:"customer"`
	Metadata   Metadata            `json:"metadata"`
	Totals     Totals              `json:"totals"`
	LineItems  []CandidateLineItem `json:"line_items"`
	Confidence Confidence          `json:"confidence"`
}
