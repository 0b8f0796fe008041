package cmd

import (
	"github.com/sarchlab/netexp/scenario"
	"github.com/spf13/cobra"
)

// loadScenario reads the .env files, the scenario file and then applies the
// NETEXP_* overrides.
func loadScenario(cmd *cobra.Command, path string) (*scenario.Scenario, error) {
	envFiles, err := cmd.Flags().GetStringSlice("env")
	if err != nil {
		return nil, err
	}

	if err := scenario.LoadEnv(envFiles...); err != nil {
		return nil, err
	}

	sc, err := scenario.Load(path)
	if err != nil {
		return nil, err
	}

	if err := sc.ApplyEnv(); err != nil {
		return nil, err
	}

	return sc, nil
}
