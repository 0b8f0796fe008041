// Package cmd provides the command-line interface of netexp.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "netexp",
	Short: "netexp runs discrete-event network experiments.",
	Long: `netexp runs discrete-event network experiments. A scenario file ` +
		`describes the topology, the traffic sources and sinks, and the ` +
		`link changes to apply; the run prints a report for every flow.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringSlice("env", nil,
		"read variables from these .env files instead of ./.env")
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Recorders registered with atexit are flushed on the way
// out.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
