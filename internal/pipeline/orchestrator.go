// Package pipeline orchestrates the invoice processing run: render the PDF
// to images, extract structured data via the AI service, validate it, commit
// it, and clean up the transient artifacts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/billfold-ai/invoice-engine/internal/config"
	"github.com/billfold-ai/invoice-engine/internal/domain"
	"github.com/billfold-ai/invoice-engine/internal/extract"
	"github.com/billfold-ai/invoice-engine/internal/lease"
	"github.com/billfold-ai/invoice-engine/internal/manifest"
	"github.com/billfold-ai/invoice-engine/internal/observability"
	"github.com/billfold-ai/invoice-engine/internal/storage"
)

// Renderer converts a PDF into ordered page images.
type Renderer interface {
	Render(ctx context.Context, pdfPath string, invoiceID uuid.UUID) ([]string, error)
}

// CandidateExtractor produces an extraction candidate from a run manifest.
type CandidateExtractor interface {
	Extract(ctx context.Context, invoiceID uuid.UUID, m *manifest.Manifest) (*domain.ExtractionCandidate, error)
}

// CandidateValidator checks an extraction candidate before persistence.
type CandidateValidator interface {
	ValidateStructure(c *domain.ExtractionCandidate) error
	ValidateTotals(c *domain.ExtractionCandidate) error
}

// InvoiceStore is the persistence surface the orchestrator drives.
type InvoiceStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*storage.Invoice, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
	Persist(ctx context.Context, id uuid.UUID, c *domain.ExtractionCandidate) error
}

// Janitor removes the transient artifacts of a run.
type Janitor interface {
	Cleanup(ctx context.Context, invoiceID uuid.UUID) error
}

// Orchestrator runs the full pipeline for one invoice at a time. Exclusivity
// across workers comes from the run lease, and state transitions are guarded
// by the store so a terminal invoice is never reprocessed.
type Orchestrator struct {
	cfg       config.PipelineConfig
	tempDir   string
	store     InvoiceStore
	leases    lease.Store
	renderer  Renderer
	extractor CandidateExtractor
	validator CandidateValidator
	janitor   Janitor
	logger    *observability.Logger
}

// NewOrchestrator wires the pipeline dependencies together.
func NewOrchestrator(
	cfg config.PipelineConfig,
	tempDir string,
	store InvoiceStore,
	leases lease.Store,
	renderer Renderer,
	extractor CandidateExtractor,
	validator CandidateValidator,
	janitor Janitor,
	logger *observability.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		tempDir:   tempDir,
		store:     store,
		leases:    leases,
		renderer:  renderer,
		extractor: extractor,
		validator: validator,
		janitor:   janitor,
		logger:    logger.WithComponent("pipeline"),
	}
}

// Run processes one invoice end to end. It returns a DuplicateRun error when
// another run already holds the lease, leaving the invoice untouched. Any
// stage failure marks the invoice failed with a truncated error message;
// cleanup runs on both the success and the failure path.
func (o *Orchestrator) Run(ctx context.Context, invoiceID uuid.UUID) error {
	acquired, err := o.leases.Acquire(ctx, invoiceID, o.cfg.LeaseTTL)
	if err != nil {
		return fmt.Errorf("acquire run lease: %w", err)
	}
	if !acquired {
		o.logger.Warn().
			Str("invoice_id", invoiceID.String()).
			Msg("Run lease already held, skipping")
		return domain.DuplicateRunError(invoiceID.String())
	}
	defer o.releaseLease(invoiceID)

	logger := o.logger.WithInvoice(invoiceID)
	start := time.Now()

	inv, err := o.store.GetByID(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("invoice %s not found", invoiceID)
		}
		return fmt.Errorf("load invoice: %w", err)
	}

	if err := o.store.MarkProcessing(ctx, invoiceID); err != nil {
		if errors.Is(err, storage.ErrInvalidTransition) {
			logger.Warn().
				Str("status", string(inv.Status)).
				Msg("Invoice is not pending, skipping")
			return nil
		}
		return fmt.Errorf("mark processing: %w", err)
	}

	logger.Info().Str("pdf_path", inv.StoredPath).Msg("Pipeline run started")

	if err := o.process(ctx, logger, invoiceID, inv.StoredPath); err != nil {
		o.fail(ctx, logger, invoiceID, err)
		o.cleanup(ctx, logger, invoiceID)
		return err
	}

	o.cleanup(ctx, logger, invoiceID)

	logger.Info().
		Dur("duration", time.Since(start)).
		Msg("Pipeline run completed")

	return nil
}

// process runs the render, extract and persist stages in order. The first
// stage failure aborts the run.
func (o *Orchestrator) process(ctx context.Context, logger *observability.Logger, invoiceID uuid.UUID, pdfPath string) error {
	err := runStage(ctx, stage{name: "render", policy: o.cfg.Render}, logger, func(ctx context.Context) error {
		images, err := o.renderer.Render(ctx, pdfPath, invoiceID)
		if err != nil {
			return err
		}
		return manifest.New(o.tempDir, invoiceID, images).Write(o.tempDir)
	})
	if err != nil {
		return err
	}

	err = runStage(ctx, stage{name: "extract", policy: o.cfg.Extract}, logger, func(ctx context.Context) error {
		m, err := manifest.Read(o.tempDir, invoiceID)
		if err != nil {
			return err
		}

		c, err := o.extractor.Extract(ctx, invoiceID, m)
		if err != nil {
			return err
		}

		if err := o.validator.ValidateStructure(c); err != nil {
			return err
		}
		return o.validator.ValidateTotals(c)
	})
	if err != nil {
		return err
	}

	// Persist reads the candidate back from the durable parsed artifact, so
	// its retries do not depend on anything held in memory by the extract
	// stage.
	return runStage(ctx, stage{name: "persist", policy: o.cfg.Persist}, logger, func(ctx context.Context) error {
		candidate, err := extract.Reload(manifest.ParsedPath(o.tempDir, invoiceID))
		if err != nil {
			return err
		}
		return o.store.Persist(ctx, invoiceID, candidate)
	})
}

// fail records the terminal failed state. The message is truncated so an
// oversized upstream error cannot blow up the row. A cancelled run is not a
// property of the invoice: the record stays processing and the lease TTL
// makes it reclaimable later.
func (o *Orchestrator) fail(ctx context.Context, logger *observability.Logger, invoiceID uuid.UUID, cause error) {
	if errors.Is(cause, context.Canceled) {
		logger.Warn().Msg("Run cancelled before completion, invoice left for reclamation")
		return
	}

	message := truncateError(cause.Error(), o.cfg.MaxErrorLength)

	logger.Error().
		Str("kind", string(domain.KindOf(cause))).
		Err(cause).
		Msg("Pipeline run failed")

	if err := o.store.MarkFailed(ctx, invoiceID, message); err != nil {
		logger.Error().Err(err).Msg("Failed to record failure state")
	}
}

// cleanup removes run artifacts on a best-effort basis. A cleanup failure is
// logged and never overrides the run outcome.
func (o *Orchestrator) cleanup(ctx context.Context, logger *observability.Logger, invoiceID uuid.UUID) {
	err := runStage(ctx, stage{name: "cleanup", policy: o.cfg.Cleanup}, logger, func(ctx context.Context) error {
		return o.janitor.Cleanup(ctx, invoiceID)
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Artifact cleanup failed")
	}
}

func (o *Orchestrator) releaseLease(invoiceID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := o.leases.Release(ctx, invoiceID); err != nil {
		o.logger.Warn().
			Str("invoice_id", invoiceID.String()).
			Err(err).
			Msg("Failed to release run lease")
	}
}

func truncateError(message string, max int) string {
	if len(message) <= max {
		return message
	}
	// Back off to a rune boundary so the cut never leaves a broken
	// multi-byte sequence in the stored message.
	for max > 0 && !utf8.RuneStart(message[max]) {
		max--
	}
	return message[:max]
}
