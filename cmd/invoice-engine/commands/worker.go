package commands

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/billfold-ai/invoice-engine/internal/pipeline"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the invoice processing worker",
	Long: `Polls the database for pending invoices and processes each one through
the full pipeline with bounded concurrency. Stops gracefully on SIGINT or
SIGTERM, draining in-flight runs first.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker := pipeline.NewWorker(
		a.orchestrator,
		a.repo,
		a.cfg.Pipeline.Concurrency,
		a.cfg.Pipeline.PollingInterval,
		a.cfg.Pipeline.PollingBatch,
		a.logger,
	)

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	a.logger.Info().Msg("Worker stopped")
	return nil
}
