package cmd

import (
	"fmt"
	"io"
	"log"
	"net/netip"

	"github.com/pkg/browser"
	"github.com/sarchlab/netexp/flow"
	"github.com/sarchlab/netexp/report"
	"github.com/sarchlab/netexp/scenario"
	"github.com/sarchlab/netexp/sim/timing"
	"github.com/sarchlab/netexp/simulation"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <scenario.yaml>",
	Short: "Run a scenario and print the flow report.",
	Long: "`run <scenario.yaml>` builds the experiment, runs it to its stop " +
		"time and prints one block per flow. Flags override the scenario " +
		"and the NETEXP_* variables.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := loadScenario(cmd, args[0])
		if err != nil {
			return err
		}

		if err := applyRunFlags(cmd, sc); err != nil {
			return err
		}

		filter, err := reportFilter(cmd)
		if err != nil {
			return err
		}

		return runScenario(cmd, sc, filter)
	},
}

func init() {
	f := runCmd.Flags()
	f.String("stop", "", "stop time, for example 10s")
	f.String("sqlite", "", "record flows into this SQLite database (.sqlite3 is added)")
	f.String("csv", "", "write flows into this CSV file")
	f.Bool("monitor", false, "serve the run monitor")
	f.Int("monitor-port", 0, "port of the run monitor, random if 0")
	f.Bool("open-browser", false, "open the run monitor in a browser")
	f.Bool("trace-events", false, "log every event")
	f.Bool("trace-mutations", false, "log mutations and route recomputations")
	f.Bool("trace-packets", false, "log every packet a generator sends")
	f.Bool("utilization", false, "print how busy every interface kept its link")
	f.String("src", "", "only report flows from this address")
	f.String("dst", "", "only report flows to this address")

	rootCmd.AddCommand(runCmd)
}

func applyRunFlags(cmd *cobra.Command, sc *scenario.Scenario) error {
	f := cmd.Flags()

	if f.Changed("stop") {
		s, _ := f.GetString("stop")

		t, err := timing.ParseTime(s)
		if err != nil {
			return fmt.Errorf("--stop: %w", err)
		}

		sc.Stop = scenario.Duration(t)
	}

	if f.Changed("sqlite") {
		sc.Output.SQLite, _ = f.GetString("sqlite")
	}

	if f.Changed("csv") {
		sc.Output.CSV, _ = f.GetString("csv")
	}

	if f.Changed("monitor") {
		sc.Output.Monitor, _ = f.GetBool("monitor")
	}

	if f.Changed("monitor-port") {
		sc.Output.MonitorPort, _ = f.GetInt("monitor-port")
		sc.Output.Monitor = true
	}

	if open, _ := f.GetBool("open-browser"); open {
		sc.Output.Monitor = true
	}

	return nil
}

func reportFilter(cmd *cobra.Command) (flow.Filter, error) {
	var filters []flow.Filter

	for _, name := range []string{"src", "dst"} {
		s, _ := cmd.Flags().GetString(name)
		if s == "" {
			continue
		}

		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", name, err)
		}

		if name == "src" {
			filters = append(filters, flow.FromAddr(addr))
		} else {
			filters = append(filters, flow.ToAddr(addr))
		}
	}

	if len(filters) == 0 {
		return nil, nil
	}

	return flow.All(filters...), nil
}

func runScenario(
	cmd *cobra.Command,
	sc *scenario.Scenario,
	filter flow.Filter,
) error {
	f := cmd.Flags()
	logger := log.New(cmd.ErrOrStderr(), "", 0)

	b := simulation.MakeBuilder()

	if on, _ := f.GetBool("trace-events"); on {
		b = b.WithEventTrace(logger)
	}

	if on, _ := f.GetBool("trace-mutations"); on {
		b = b.WithMutationTrace(logger)
	}

	utilization, _ := f.GetBool("utilization")
	if utilization {
		b = b.WithInterfaceUsage()
	}

	perPacket, _ := f.GetBool("trace-packets")
	b = b.WithTrafficLog(logger, perPacket)

	sim, err := b.Build(sc)
	if err != nil {
		return err
	}
	defer sim.Terminate()

	if open, _ := f.GetBool("open-browser"); open && sim.Monitor() != nil {
		if err := browser.OpenURL(sim.Monitor().URL()); err != nil {
			log.Printf("cannot open browser: %v", err)
		}
	}

	if err := sim.Run(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	summaries := flow.Select(sim.Report(), filter)
	if err := report.WriteText(out, summaries); err != nil {
		return err
	}

	if lost := sim.LostAtEnd(); lost > 0 {
		fmt.Fprintf(out, "%d packets still in flight after %v seconds "+
			"were counted as lost\n", lost, sc.MaxDelay.Seconds())
	}

	if utilization {
		writeUsage(out, sim.InterfaceUsage())
	}

	return nil
}

func writeUsage(w io.Writer, usage []simulation.InterfaceUsage) {
	fmt.Fprintln(w, "Interface Usage")

	for _, u := range usage {
		fmt.Fprintf(w, "  %s (%s): %d packets, busy %.6g seconds, "+
			"utilization %.2f%%\n",
			u.Interface, u.Node, u.Packets, u.BusyTime, 100*u.Utilization)
	}
}
