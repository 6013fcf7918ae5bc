// Package pdf converts invoice PDFs into ordered page images for extraction.
package pdf

import (
	"context"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"
	"github.com/google/uuid"

	"github.com/billfold-ai/invoice-engine/internal/domain"
	"github.com/billfold-ai/invoice-engine/internal/observability"
)

// Renderer converts a PDF file into one JPEG per page using go-fitz.
type Renderer struct {
	dpi     float64
	quality int
	tempDir string
	logger  *observability.Logger
}

// Options holds fixed rendering parameters.
type Options struct {
	DPI     float64
	Quality int
	TempDir string
}

// NewRenderer creates a new PDF renderer.
func NewRenderer(opts Options, logger *observability.Logger) *Renderer {
	return &Renderer{
		dpi:     opts.DPI,
		quality: opts.Quality,
		tempDir: opts.TempDir,
		logger:  logger.WithComponent("renderer"),
	}
}

// Render converts every page of the PDF at pdfPath into a JPEG image named
// after the invoice and page number. It returns the image paths in page order
// and guarantees one path per page: any page failure aborts the whole call.
func (r *Renderer) Render(ctx context.Context, pdfPath string, invoiceID uuid.UUID) ([]string, error) {
	if err := ValidatePDFPath(pdfPath); err != nil {
		return nil, err
	}

	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, domain.RenderingError(fmt.Sprintf("failed to open PDF: %s", pdfPath), err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, domain.RenderingError(fmt.Sprintf("PDF has no pages: %s", pdfPath), nil)
	}

	outputDir := filepath.Join(r.tempDir, fmt.Sprintf("invoice_%s", invoiceID))
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, domain.RenderingError("failed to create output directory", err)
	}

	paths := make([]string, 0, pageCount)

	for page := 0; page < pageCount; page++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		img, err := doc.ImageDPI(page, r.dpi)
		if err != nil {
			return nil, domain.RenderingError(fmt.Sprintf("failed to render page %d", page+1), err)
		}

		outputPath := filepath.Join(outputDir, fmt.Sprintf("page_%03d.jpg", page+1))
		outputFile, err := os.Create(outputPath)
		if err != nil {
			return nil, domain.RenderingError(fmt.Sprintf("failed to create image for page %d", page+1), err)
		}

		err = jpeg.Encode(outputFile, img, &jpeg.Options{Quality: r.quality})
		outputFile.Close()
		if err != nil {
			return nil, domain.RenderingError(fmt.Sprintf("failed to encode page %d as JPEG", page+1), err)
		}

		paths = append(paths, outputPath)
	}

	r.logger.Info().
		Str("invoice_id", invoiceID.String()).
		Str("pdf_path", pdfPath).
		Int("pages", pageCount).
		Msg("Rendered PDF pages")

	return paths, nil
}
