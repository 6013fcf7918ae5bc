package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var processCmd = &cobra.Command{
	Use:   "process <invoice-id>",
	Short: "Process a single invoice",
	Long:  "Runs the full extraction pipeline for one invoice by ID and reports the outcome.",
	Args:  cobra.ExactArgs(1),
	RunE:  runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	invoiceID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid invoice id %q: %w", args[0], err)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()

	if err := a.orchestrator.Run(ctx, invoiceID); err != nil {
		return err
	}

	inv, err := a.repo.GetByID(ctx, invoiceID)
	if err != nil {
		return err
	}

	fmt.Printf("Invoice %s: %s\n", invoiceID, inv.Status)
	if inv.ErrorMessage != nil {
		fmt.Printf("Error: %s\n", *inv.ErrorMessage)
	}
	return nil
}
