// Package commands implements the invoice-engine CLI.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "invoice-engine",
	Short: "Invoice Engine - AI-powered invoice data extraction pipeline",
	Long: `The Invoice Engine processes uploaded PDF invoices: it renders each page
to images, extracts structured data through an AI vision model with a strict
JSON schema, validates the result against financial reconciliation rules,
and persists the extracted record with per-section confidence scores.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
