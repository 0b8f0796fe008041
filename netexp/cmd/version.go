package cmd

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version is set at link time with -ldflags "-X ...cmd.Version=v1.2.3".
var Version = ""

func version() string {
	if Version != "" {
		return Version
	}

	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}

	return "(devel)"
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of netexp.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "netexp %s\n", version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
