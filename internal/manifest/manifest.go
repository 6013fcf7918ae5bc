// Package manifest manages the handoff artifact between the render and
// extract stages of a pipeline run.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/billfold-ai/invoice-engine/internal/domain"
)

// Manifest records every transient artifact owned by one pipeline run: the
// ordered rendered page images and the location of the raw extraction JSON.
type Manifest struct {
	InvoiceID  uuid.UUID `json:"invoice_id"`
	Images     []string  `json:"images"`
	ParsedPath string    `json:"parsed_path"`
}

// Path returns the deterministic manifest location for an invoice.
func Path(tempDir string, invoiceID uuid.UUID) string {
	return filepath.Join(tempDir, fmt.Sprintf("invoice_%s_manifest.json", invoiceID))
}

// ParsedPath returns the deterministic location of the raw extraction JSON.
func ParsedPath(tempDir string, invoiceID uuid.UUID) string {
	return filepath.Join(tempDir, fmt.Sprintf("invoice_%s_parsed.json", invoiceID))
}

// New builds a manifest for the given rendered images.
func New(tempDir string, invoiceID uuid.UUID, images []string) *Manifest {
	return &Manifest{
		InvoiceID:  invoiceID,
		Images:     images,
		ParsedPath: ParsedPath(tempDir, invoiceID),
	}
}

// Write persists the manifest to its deterministic location.
func (m *Manifest) Write(tempDir string) error {
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return domain.ManifestError("failed to create temp directory", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return domain.ManifestError("failed to encode manifest", err)
	}

	if err := os.WriteFile(Path(tempDir, m.InvoiceID), data, 0o644); err != nil {
		return domain.ManifestError("failed to write manifest", err)
	}

	return nil
}

// Read loads the manifest for an invoice. A missing, corrupt or empty
// manifest is a hard error: the extract stage cannot start without it.
func Read(tempDir string, invoiceID uuid.UUID) (*Manifest, error) {
	path := Path(tempDir, invoiceID)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ManifestError(fmt.Sprintf("image manifest not found for invoice %s", invoiceID), err)
		}
		return nil, domain.ManifestError(fmt.Sprintf("cannot read manifest: %s", path), err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, domain.ManifestError(fmt.Sprintf("corrupt manifest for invoice %s", invoiceID), err)
	}

	if len(m.Images) == 0 {
		return nil, domain.ManifestError(fmt.Sprintf("empty image manifest for invoice %s", invoiceID), nil)
	}

	return &m, nil
}

// Remove deletes the manifest file. Missing files are tolerated.
func Remove(tempDir string, invoiceID uuid.UUID) error {
	err := os.Remove(Path(tempDir, invoiceID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
