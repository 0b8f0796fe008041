package traffic

import (
	"errors"
	"net/netip"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/netexp/flow"
	"github.com/sarchlab/netexp/network/channel"
	"github.com/sarchlab/netexp/network/topology"
	"github.com/sarchlab/netexp/network/transport"
	"github.com/sarchlab/netexp/sim/timing"
)

var _ = Describe("PacketSink", func() {
	var (
		engine  *timing.SerialEngine
		agg     *flow.Aggregator
		network *channel.Network
		sink    *PacketSink
		client  *PacedGenerator
	)

	BeforeEach(func() {
		engine = timing.NewSerialEngine()
		agg = flow.NewAggregator()

		shape, err := topology.MakeBuilder().
			WithLinkSpec(topology.LinkSpec{
				Capacity:      8 * timing.Mbps,
				Delay:         0.002,
				QueueCapacity: 2,
			}).
			BuildChain(2)
		Expect(err).NotTo(HaveOccurred())

		network = channel.MakeBuilder().
			WithEngine(engine).
			WithTopology(shape.Topology).
			WithObserver(agg).
			Build("Network")
		sink = NewPacketSink("Sink", engine, network, 1, flow.UDP, 9)
		client = NewPacedGenerator("Client", engine, network)
	})

	It("should count what reaches it", func() {
		Expect(sink.Start()).To(Succeed())
		Expect(sink.Start()).To(Succeed())
		Expect(sink.Listening()).To(BeTrue())

		p := testParams()
		p.PacketLimit = 3
		Expect(client.Start(p)).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(sink.PacketsRx()).To(Equal(uint64(3)))
		Expect(sink.TotalRx()).To(Equal(uint64(3000)))

		first, last := sink.RxWindow()
		Expect(first).To(BeNumerically("~", 0.003, 1e-12))
		Expect(last).To(BeNumerically("~", 0.005, 1e-12))

		summaries := agg.Report()
		Expect(summaries).To(HaveLen(1))
		Expect(summaries[0].Key.Src).To(Equal(netip.MustParseAddr("10.1.1.1")))
		Expect(summaries[0].Key.SrcPort).To(Equal(uint16(transport.FirstEphemeralPort)))
		Expect(summaries[0].RxPackets).To(Equal(uint64(3)))
	})

	It("should stop counting once unbound", func() {
		_, err := sink.ScheduleStart(0)
		Expect(err).NotTo(HaveOccurred())
		_, err = sink.ScheduleStop(0.0035)
		Expect(err).NotTo(HaveOccurred())

		p := testParams()
		p.PacketLimit = 3
		_, err = client.ScheduleStart(0, p)
		Expect(err).NotTo(HaveOccurred())
		Expect(engine.Run()).To(Succeed())

		Expect(sink.Listening()).To(BeFalse())
		Expect(sink.PacketsRx()).To(Equal(uint64(1)))
	})

	It("should not bind a port twice", func() {
		Expect(sink.Start()).To(Succeed())

		other := NewPacketSink("Other", engine, network, 1, flow.UDP, 9)
		Expect(errors.Is(other.Start(), transport.ErrPortInUse)).To(BeTrue())
	})
})
