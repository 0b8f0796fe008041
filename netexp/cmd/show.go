package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/netexp/datarecording"
	"github.com/sarchlab/netexp/report"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <results.sqlite3>",
	Short: "Print the flows recorded in a SQLite database.",
	Long: "`show <results.sqlite3>` reads back what `run --sqlite` recorded: " +
		"one line per flow and, with --usage, how busy every interface was.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(args[0]); err != nil {
			return err
		}

		f := cmd.Flags()
		runID, _ := f.GetString("run")
		limit, _ := f.GetInt("limit")
		offset, _ := f.GetInt("offset")
		usage, _ := f.GetBool("usage")

		if limit < 0 || offset < 0 {
			return fmt.Errorf("--limit and --offset must not be negative")
		}

		reader := datarecording.NewReader(args[0])
		defer reader.Close()

		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		rows, total, err := datarecording.ReadFlows(
			ctx, reader, runID, limit, offset)
		if err != nil {
			return err
		}

		for _, r := range rows {
			writeFlowRow(out, r)
		}

		fmt.Fprintf(out, "%d of %d flows\n", len(rows), total)

		if !usage {
			return nil
		}

		used, err := datarecording.ReadUsage(ctx, reader, runID)
		if err != nil {
			return err
		}

		fmt.Fprintln(out, "Interface Usage")

		for _, u := range used {
			fmt.Fprintf(out, "  %s node%d/if%d (%s): %d packets, "+
				"utilization %.2f%%\n",
				u.RunID, u.NodeID, u.Interface, u.Node, u.Packets,
				100*u.Utilization)
		}

		return nil
	},
}

func init() {
	f := showCmd.Flags()
	f.String("run", "", "only show this run")
	f.Int("limit", 0, "show at most this many flows, all if 0")
	f.Int("offset", 0, "skip this many flows")
	f.Bool("usage", false, "also show the interface usage")

	rootCmd.AddCommand(showCmd)
}

func optionalValue(v *float64, scale float64, unit string) string {
	if v == nil {
		return report.NotAvailable
	}

	return fmt.Sprintf("%.6g %s", *v*scale, unit)
}

func writeFlowRow(w io.Writer, r datarecording.FlowRow) {
	fmt.Fprintf(w, "%s flow %d %s %s:%d -> %s:%d, tx %d, rx %d, lost %d, "+
		"throughput %s, delay %s, jitter %s\n",
		r.RunID, r.FlowID, r.Protocol, r.Src, r.SrcPort, r.Dst, r.DstPort,
		r.TxPackets, r.RxPackets, r.LostPackets,
		optionalValue(r.Throughput, 1e-6, "Mbps"),
		optionalValue(r.AverageDelay, 1, "s"),
		optionalValue(r.AverageJitter, 1, "s"))
}
