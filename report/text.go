// Package report writes flow summaries for people and spreadsheets.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/sarchlab/netexp/flow"
)

// NotAvailable is printed for metrics that are not defined.
const NotAvailable = "N/A"

func formatMetric(m flow.Metric, scale float64, unit string) string {
	v, ok := m.Get()
	if !ok {
		return NotAvailable
	}

	return fmt.Sprintf("%.6g %s", v*scale, unit)
}

// WriteSummary writes the block of one flow.
func WriteSummary(w io.Writer, s flow.Summary) error {
	b := new(strings.Builder)
	writeSummary(b, s)

	_, err := io.WriteString(w, b.String())

	return err
}

func writeSummary(b *strings.Builder, s flow.Summary) {
	fmt.Fprintf(b, "Flow %d (%s -> %s)\n", s.ID, s.Key.Src, s.Key.Dst)
	fmt.Fprintf(b, "  Protocol: %s %d -> %d\n",
		s.Key.Protocol, s.Key.SrcPort, s.Key.DstPort)
	fmt.Fprintf(b, "  Tx Packets: %d\n", s.TxPackets)
	fmt.Fprintf(b, "  Rx Packets: %d\n", s.RxPackets)

	if s.ThroughputBps.Valid() {
		fmt.Fprintf(b, "  Throughput: %s\n",
			formatMetric(s.ThroughputBps, 1e-6, "Mbps"))
	} else {
		fmt.Fprintf(b, "  Throughput: %s (duration is zero or negative)\n",
			NotAvailable)
	}

	fmt.Fprintf(b, "  Average Delay: %s\n",
		formatMetric(s.AverageDelay, 1, "seconds"))
	fmt.Fprintf(b, "  Average Jitter: %s\n",
		formatMetric(s.AverageJitter, 1, "seconds"))
	fmt.Fprintf(b, "  Packet Loss: %d packets\n", s.LostPackets)

	ratio := NotAvailable
	if v, ok := s.LossRatio.Get(); ok {
		ratio = fmt.Sprintf("%.6g", v)
	}

	fmt.Fprintf(b, "  Packet Loss Ratio: %s\n", ratio)
}

// WriteText writes every summary followed by the byte totals.
func WriteText(w io.Writer, summaries []flow.Summary) error {
	b := new(strings.Builder)

	for _, s := range summaries {
		writeSummary(b, s)
	}

	t := flow.Totals(summaries)
	fmt.Fprintf(b, "Total Bytes Sent: %d bytes\n", t.TxBytes)
	fmt.Fprintf(b, "Total Bytes Received: %d bytes\n", t.RxBytes)

	_, err := io.WriteString(w, b.String())

	return err
}
