package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/billfold-ai/invoice-engine/internal/domain"
	"github.com/billfold-ai/invoice-engine/internal/observability"
	"github.com/billfold-ai/invoice-engine/internal/storage"
)

// PendingLister supplies the worker with invoices awaiting processing.
type PendingLister interface {
	ListPending(ctx context.Context, limit int) ([]*storage.Invoice, error)
}

// Worker polls for pending invoices and dispatches pipeline runs with
// bounded concurrency.
type Worker struct {
	orchestrator *Orchestrator
	lister       PendingLister
	interval     time.Duration
	batch        int
	sem          *semaphore.Weighted
	wg           sync.WaitGroup
	logger       *observability.Logger
}

// NewWorker creates a polling worker.
func NewWorker(
	orchestrator *Orchestrator,
	lister PendingLister,
	concurrency int,
	interval time.Duration,
	batch int,
	logger *observability.Logger,
) *Worker {
	return &Worker{
		orchestrator: orchestrator,
		lister:       lister,
		interval:     interval,
		batch:        batch,
		sem:          semaphore.NewWeighted(int64(concurrency)),
		logger:       logger.WithComponent("worker"),
	}
}

// Run polls until the context is cancelled, then waits for in-flight runs to
// finish.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().
		Dur("interval", w.interval).
		Int("batch", w.batch).
		Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.dispatchPending(ctx)

		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Worker stopping, draining in-flight runs")
			w.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Submit schedules a single invoice, blocking while the pool is saturated.
func (w *Worker) Submit(ctx context.Context, invoiceID uuid.UUID) error {
	if err := w.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.sem.Release(1)
		w.runOne(ctx, invoiceID)
	}()

	return nil
}

// Wait blocks until all submitted runs have finished.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) dispatchPending(ctx context.Context) {
	invoices, err := w.lister.ListPending(ctx, w.batch)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("Failed to list pending invoices")
		}
		return
	}

	for _, inv := range invoices {
		if err := w.Submit(ctx, inv.ID); err != nil {
			return
		}
	}
}

func (w *Worker) runOne(ctx context.Context, invoiceID uuid.UUID) {
	// Shutdown cancels polling only. A dispatched run finishes its stages
	// on a detached context and is drained through the wait group, so an
	// interrupted worker never fails an invoice that did nothing wrong.
	err := w.orchestrator.Run(context.WithoutCancel(ctx), invoiceID)
	if err == nil {
		return
	}

	// Duplicate runs happen under normal polling overlap and carry no
	// diagnostic value beyond debug.
	if domain.KindOf(err) == domain.KindDuplicateRun {
		w.logger.Debug().
			Str("invoice_id", invoiceID.String()).
			Msg("Skipped invoice with active run")
		return
	}

	w.logger.Error().
		Str("invoice_id", invoiceID.String()).
		Err(err).
		Msg("Invoice run failed")
}
