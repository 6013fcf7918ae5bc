// Package cleanup removes the temporary artifacts a pipeline run leaves
// behind: page images, the manifest, and the parsed extraction payload.
package cleanup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/billfold-ai/invoice-engine/internal/manifest"
	"github.com/billfold-ai/invoice-engine/internal/observability"
)

// Janitor deletes per-invoice temporary artifacts. Every operation is
// idempotent: files already gone are not errors.
type Janitor struct {
	tempDir string
	logger  *observability.Logger
}

// NewJanitor creates a new janitor rooted at tempDir.
func NewJanitor(tempDir string, logger *observability.Logger) *Janitor {
	return &Janitor{
		tempDir: tempDir,
		logger:  logger.WithComponent("cleanup"),
	}
}

// Cleanup removes every temporary artifact recorded for the invoice. It
// reads the manifest for the image list when one exists, then deletes the
// images, the image directory, the parsed payload, and the manifest itself.
func (j *Janitor) Cleanup(ctx context.Context, invoiceID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	deleted := 0

	m, err := manifest.Read(j.tempDir, invoiceID)
	if err == nil {
		for _, image := range m.Images {
			if removeFile(image) {
				deleted++
			}
		}
	}

	// A render that failed mid-document leaves page images with no manifest
	// to list them. The renderer's output directory is deterministic, so
	// remove it wholesale either way.
	os.RemoveAll(filepath.Join(j.tempDir, fmt.Sprintf("invoice_%s", invoiceID)))

	if removeFile(manifest.ParsedPath(j.tempDir, invoiceID)) {
		deleted++
	}
	if removeFile(manifest.Path(j.tempDir, invoiceID)) {
		deleted++
	}

	j.logger.Info().
		Str("invoice_id", invoiceID.String()).
		Int("files_deleted", deleted).
		Msg("Temporary artifacts removed")

	return nil
}

func removeFile(path string) bool {
	if err := os.Remove(path); err != nil {
		return false
	}
	return true
}
