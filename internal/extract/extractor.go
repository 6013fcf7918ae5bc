// Package extract turns rendered page images into a schema-shaped
// extraction candidate via the structured-output AI client.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/billfold-ai/invoice-engine/internal/domain"
	"github.com/billfold-ai/invoice-engine/internal/manifest"
	"github.com/billfold-ai/invoice-engine/internal/observability"
)

// StructuredClient is the capability the extractor needs from the vendor
// integration: one multimodal call returning schema-constrained JSON.
type StructuredClient interface {
	Complete(ctx context.Context, imagePaths []string) (json.RawMessage, error)
}

// Extractor drives the extraction stage for one run manifest.
type Extractor struct {
	client StructuredClient
	logger *observability.Logger
}

// NewExtractor creates a new extractor.
func NewExtractor(client StructuredClient, logger *observability.Logger) *Extractor {
	return &Extractor{
		client: client,
		logger: logger.WithComponent("extract"),
	}
}

// Extract sends the manifest's page images to the AI service, decodes the
// structured response into an extraction candidate, and writes the raw JSON
// beside the manifest so the persist stage can re-run independently.
func (e *Extractor) Extract(ctx context.Context, invoiceID uuid.UUID, m *manifest.Manifest) (*domain.ExtractionCandidate, error) {
	if len(m.Images) == 0 {
		return nil, domain.ManifestError(fmt.Sprintf("empty image manifest for invoice %s", invoiceID), nil)
	}

	for _, imagePath := range m.Images {
		if _, err := os.Stat(imagePath); err != nil {
			return nil, domain.MissingArtifactError(
				fmt.Sprintf("image file missing: %s for invoice %s", imagePath, invoiceID))
		}
	}

	e.logger.Info().
		Str("invoice_id", invoiceID.String()).
		Int("pages", len(m.Images)).
		Msg("Starting AI extraction")

	raw, err := e.client.Complete(ctx, m.Images)
	if err != nil {
		return nil, err
	}

	candidate, err := decodeCandidate(raw)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(m.ParsedPath, raw, 0o644); err != nil {
		return nil, domain.ExtractionError("failed to write parsed data", err)
	}

	e.logger.Info().
		Str("invoice_id", invoiceID.String()).
		Str("parsed_path", m.ParsedPath).
		Int("sections_extracted", sectionsExtracted(candidate)).
		Int("line_items", len(candidate.LineItems)).
		Msg("AI extraction completed")

	return candidate, nil
}

// Reload decodes a previously written parsed JSON artifact, letting the
// persist stage run without repeating the AI call.
func Reload(parsedPath string) (*domain.ExtractionCandidate, error) {
	data, err := os.ReadFile(parsedPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ManifestError(fmt.Sprintf("parsed data not found: %s", parsedPath), err)
		}
		return nil, domain.ManifestError(fmt.Sprintf("cannot read parsed data: %s", parsedPath), err)
	}
	return decodeCandidate(data)
}

// decodeCandidate parses raw JSON strictly against the candidate shape.
// Unknown fields mean the service ignored the schema contract.
func decodeCandidate(raw json.RawMessage) (*domain.ExtractionCandidate, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var candidate domain.ExtractionCandidate
	if err := dec.Decode(&candidate); err != nil {
		return nil, domain.DecodeError("response does not match extraction schema", err)
	}

	return &candidate, nil
}

// sectionsExtracted counts the top-level sections with any non-null data,
// for logging only.
func sectionsExtracted(c *domain.ExtractionCandidate) int {
	count := 0
	if c.Vendor.Name != nil || c.Vendor.Address != nil || c.Vendor.TaxID != nil {
		count++
	}
	if c.Customer.Name != nil || c.Customer.Address != nil || c.Customer.TaxID != nil {
		count++
	}
	if c.Metadata.InvoiceNumber != nil || c.Metadata.InvoiceDate != nil ||
		c.Metadata.DueDate != nil || c.Metadata.Currency != nil {
		count++
	}
	if c.Totals.Subtotal != nil || c.Totals.TaxAmount != nil || c.Totals.Total != nil {
		count++
	}
	if len(c.LineItems) > 0 {
		count++
	}
	return count
}
