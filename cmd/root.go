package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "regflag",
	Short: "Store and migrate regulatory red flag analyses",
	Long: `regflag owns the PostgreSQL schema for regulatory red flag analysis
results and migrates the analyzer's CSV exports into it.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
