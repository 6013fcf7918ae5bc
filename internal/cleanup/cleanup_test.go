package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billfold-ai/invoice-engine/internal/manifest"
	"github.com/billfold-ai/invoice-engine/internal/observability"
)

func writeRunArtifacts(t *testing.T, tempDir string, invoiceID uuid.UUID) []string {
	t.Helper()

	imageDir := filepath.Join(tempDir, "invoice_"+invoiceID.String())
	require.NoError(t, os.MkdirAll(imageDir, 0o755))

	images := []string{
		filepath.Join(imageDir, "page_001.jpg"),
		filepath.Join(imageDir, "page_002.jpg"),
	}
	for _, img := range images {
		require.NoError(t, os.WriteFile(img, []byte("jpeg"), 0o644))
	}

	m := manifest.New(tempDir, invoiceID, images)
	require.NoError(t, m.Write(tempDir))
	require.NoError(t, os.WriteFile(m.ParsedPath, []byte("{}"), 0o644))

	return images
}

func TestCleanupRemovesAllArtifacts(t *testing.T) {
	tempDir := t.TempDir()
	invoiceID := uuid.New()
	images := writeRunArtifacts(t, tempDir, invoiceID)

	j := NewJanitor(tempDir, observability.Nop())
	require.NoError(t, j.Cleanup(context.Background(), invoiceID))

	for _, img := range images {
		assert.NoFileExists(t, img)
	}
	assert.NoFileExists(t, manifest.Path(tempDir, invoiceID))
	assert.NoFileExists(t, manifest.ParsedPath(tempDir, invoiceID))
	assert.NoDirExists(t, filepath.Join(tempDir, "invoice_"+invoiceID.String()))
}

func TestCleanupIsIdempotent(t *testing.T) {
	tempDir := t.TempDir()
	invoiceID := uuid.New()
	writeRunArtifacts(t, tempDir, invoiceID)

	j := NewJanitor(tempDir, observability.Nop())
	require.NoError(t, j.Cleanup(context.Background(), invoiceID))
	require.NoError(t, j.Cleanup(context.Background(), invoiceID))
}

func TestCleanupRemovesOrphanedImages(t *testing.T) {
	tempDir := t.TempDir()
	invoiceID := uuid.New()

	// A render that aborted mid-document: page images exist, manifest does
	// not.
	imageDir := filepath.Join(tempDir, "invoice_"+invoiceID.String())
	require.NoError(t, os.MkdirAll(imageDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(imageDir, "page_001.jpg"), []byte("jpeg"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(imageDir, "page_002.jpg"), []byte("jpeg"), 0o644))

	j := NewJanitor(tempDir, observability.Nop())
	require.NoError(t, j.Cleanup(context.Background(), invoiceID))

	assert.NoDirExists(t, imageDir)
}

func TestCleanupWithoutManifest(t *testing.T) {
	tempDir := t.TempDir()
	invoiceID := uuid.New()

	// Only the parsed payload exists, e.g. after a crash mid-cleanup.
	require.NoError(t, os.WriteFile(manifest.ParsedPath(tempDir, invoiceID), []byte("{}"), 0o644))

	j := NewJanitor(tempDir, observability.Nop())
	require.NoError(t, j.Cleanup(context.Background(), invoiceID))

	assert.NoFileExists(t, manifest.ParsedPath(tempDir, invoiceID))
}

func TestCleanupLeavesOtherInvoicesAlone(t *testing.T) {
	tempDir := t.TempDir()
	target := uuid.New()
	other := uuid.New()
	writeRunArtifacts(t, tempDir, target)
	otherImages := writeRunArtifacts(t, tempDir, other)

	j := NewJanitor(tempDir, observability.Nop())
	require.NoError(t, j.Cleanup(context.Background(), target))

	for _, img := range otherImages {
		assert.FileExists(t, img)
	}
	assert.FileExists(t, manifest.Path(tempDir, other))
}
