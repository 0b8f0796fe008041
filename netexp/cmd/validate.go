package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <scenario.yaml>",
	Short: "Check a scenario without running it.",
	Long: "`validate <scenario.yaml>` reports every problem of the scenario " +
		"at once.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := loadScenario(cmd, args[0])
		if err != nil {
			return err
		}

		if err := sc.Validate(); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(),
			"%s: ok, %d nodes, %d sinks, %d generators, %d mutations\n",
			args[0], len(sc.Topology.NodeNames()), len(sc.Sinks),
			len(sc.Generators), len(sc.Mutations))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
