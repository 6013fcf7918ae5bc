package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/billfold-ai/invoice-engine/internal/pdf"
	"github.com/billfold-ai/invoice-engine/internal/storage"
)

var (
	addUserID  int64
	addProcess bool
)

var addCmd = &cobra.Command{
	Use:   "add <pdf-path>",
	Short: "Register an uploaded invoice PDF",
	Long: `Registers a PDF as a pending invoice. The file stays where it is; the
stored path is recorded for the pipeline to pick up. With --process the
invoice is run through the pipeline immediately.`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().Int64VarP(&addUserID, "user", "u", 1, "owning user ID")
	addCmd.Flags().BoolVar(&addProcess, "process", false, "process the invoice immediately")
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	pdfPath, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	if err := pdf.ValidatePDFPath(pdfPath); err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()

	inv := &storage.Invoice{
		UserID:           addUserID,
		OriginalFilename: filepath.Base(pdfPath),
		StoredPath:       pdfPath,
	}
	if err := a.repo.Create(ctx, inv); err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}

	fmt.Printf("Invoice %s created (pending)\n", inv.ID)

	if !addProcess {
		return nil
	}

	if err := a.orchestrator.Run(ctx, inv.ID); err != nil {
		return err
	}

	result, err := a.repo.GetByID(ctx, inv.ID)
	if err != nil {
		return err
	}
	fmt.Printf("Invoice %s: %s\n", inv.ID, result.Status)
	return nil
}
