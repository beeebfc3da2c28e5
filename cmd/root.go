package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ewaste",
	Short: "E-waste marketplace backend",
	Long: `Backend for the e-waste marketplace. Households post items, collectors
book and collect them and resell bulk lots to recycling organizations.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
