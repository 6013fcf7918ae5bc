package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/billfold-ai/invoice-engine/internal/cleanup"
	"github.com/billfold-ai/invoice-engine/internal/config"
	"github.com/billfold-ai/invoice-engine/internal/observability"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup <invoice-id>",
	Short: "Remove leftover temporary artifacts for an invoice",
	Long: `Deletes any rendered page images, manifest and parsed extraction data
left behind for an invoice, for example after a crashed run. Safe to run
repeatedly.`,
	Args: cobra.ExactArgs(1),
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	invoiceID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid invoice id %q: %w", args[0], err)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      "console",
		ServiceName: "invoice-engine",
	})

	return cleanup.NewJanitor(cfg.Storage.TempDir, logger).Cleanup(context.Background(), invoiceID)
}
