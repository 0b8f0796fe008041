package monitoring

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sarchlab/netexp/flow"
	"github.com/sarchlab/netexp/sim/timing"
)

const namespace = "netexp"

var flowLabels = []string{
	"flow", "src", "dst", "protocol", "src_port", "dst_port",
}

// FlowReporter provides snapshots of every flow of a run.
type FlowReporter interface {
	Report() []flow.Summary
}

// FlowCollector exposes the flow summaries of a run as Prometheus metrics.
// Counters are always exported. Derived values are exported only when they
// are available.
type FlowCollector struct {
	flows FlowReporter
	clock timing.TimeTeller

	now         *prometheus.Desc
	txPackets   *prometheus.Desc
	txBytes     *prometheus.Desc
	rxPackets   *prometheus.Desc
	rxBytes     *prometheus.Desc
	lostPackets *prometheus.Desc
	throughput  *prometheus.Desc
	delay       *prometheus.Desc
	jitter      *prometheus.Desc
	lossRatio   *prometheus.Desc
}

// NewFlowCollector creates a collector. The clock may be nil, in which case
// the simulated time is not exported.
func NewFlowCollector(
	flows FlowReporter,
	clock timing.TimeTeller,
) *FlowCollector {
	desc := func(name, help string, labels []string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}

	return &FlowCollector{
		flows: flows,
		clock: clock,

		now: desc("simulated_time_seconds",
			"Current simulated time.", nil),
		txPackets: desc("flow_tx_packets_total",
			"Packets sent by the source of the flow.", flowLabels),
		txBytes: desc("flow_tx_bytes_total",
			"Bytes sent by the source of the flow.", flowLabels),
		rxPackets: desc("flow_rx_packets_total",
			"Packets received by the destination of the flow.", flowLabels),
		rxBytes: desc("flow_rx_bytes_total",
			"Bytes received by the destination of the flow.", flowLabels),
		lostPackets: desc("flow_lost_packets_total",
			"Packets of the flow that will never be received.", flowLabels),
		throughput: desc("flow_throughput_bits_per_second",
			"Bits sent over the active duration of the flow.", flowLabels),
		delay: desc("flow_average_delay_seconds",
			"Mean one-way delay of received packets.", flowLabels),
		jitter: desc("flow_average_jitter_seconds",
			"Mean delay variation between consecutive packets.", flowLabels),
		lossRatio: desc("flow_loss_ratio",
			"Lost packets over sent packets.", flowLabels),
	}
}

// Describe sends every metric description.
func (c *FlowCollector) Describe(ch chan<- *prometheus.Desc) {
	if c.clock != nil {
		ch <- c.now
	}

	ch <- c.txPackets
	ch <- c.txBytes
	ch <- c.rxPackets
	ch <- c.rxBytes
	ch <- c.lostPackets
	ch <- c.throughput
	ch <- c.delay
	ch <- c.jitter
	ch <- c.lossRatio
}

// Collect sends the current values.
func (c *FlowCollector) Collect(ch chan<- prometheus.Metric) {
	if c.clock != nil {
		ch <- prometheus.MustNewConstMetric(
			c.now, prometheus.GaugeValue, c.clock.Now())
	}

	for _, s := range c.flows.Report() {
		labels := []string{
			strconv.FormatUint(uint64(s.ID), 10),
			s.Key.Src.String(),
			s.Key.Dst.String(),
			s.Key.Protocol.String(),
			strconv.FormatUint(uint64(s.Key.SrcPort), 10),
			strconv.FormatUint(uint64(s.Key.DstPort), 10),
		}

		counter := func(d *prometheus.Desc, v uint64) {
			ch <- prometheus.MustNewConstMetric(
				d, prometheus.CounterValue, float64(v), labels...)
		}

		counter(c.txPackets, s.TxPackets)
		counter(c.txBytes, s.TxBytes)
		counter(c.rxPackets, s.RxPackets)
		counter(c.rxBytes, s.RxBytes)
		counter(c.lostPackets, s.LostPackets)

		gauge := func(d *prometheus.Desc, m flow.Metric) {
			v, ok := m.Get()
			if !ok {
				return
			}

			ch <- prometheus.MustNewConstMetric(
				d, prometheus.GaugeValue, v, labels...)
		}

		gauge(c.throughput, s.ThroughputBps)
		gauge(c.delay, s.AverageDelay)
		gauge(c.jitter, s.AverageJitter)
		gauge(c.lossRatio, s.LossRatio)
	}
}
