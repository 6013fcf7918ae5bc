package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/billfold-ai/invoice-engine/internal/domain"
)

// ValidatePDFPath validates that a file path points to a readable, non-empty
// PDF before any rendering work starts.
func ValidatePDFPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return domain.RenderingError("file path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.RenderingError(fmt.Sprintf("PDF file not found: %s", path), err)
		}
		return domain.RenderingError(fmt.Sprintf("cannot access file: %s", path), err)
	}

	if info.IsDir() {
		return domain.RenderingError(fmt.Sprintf("path is a directory, not a file: %s", path), nil)
	}

	if info.Size() == 0 {
		return domain.RenderingError(fmt.Sprintf("PDF file is empty: %s", path), nil)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".pdf" {
		return domain.RenderingError(fmt.Sprintf("file is not a PDF (has extension %q)", ext), nil)
	}

	file, err := os.Open(path)
	if err != nil {
		return domain.RenderingError(fmt.Sprintf("cannot open file: %s", path), err)
	}
	file.Close()

	return nil
}
