// Package cli provides the command-line interface for prisignal.
package cli

import (
	"github.com/spf13/cobra"
)

// Version information (set at build time).
var Version = "0.1.0"

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "prisignal",
		Short: "prisignal - priority ordered in-process signals",
		Long: `prisignal hosts named, synchronous signals whose listeners run in
priority order, with once listeners, propagation stop and a dispatch loop guard.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./prisignal.yaml)")

	rootCmd.AddCommand(
		newServeCmd(&cfgFile),
		newDemoCmd(),
		newInspectCmd(),
	)
	return rootCmd
}
