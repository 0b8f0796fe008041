package channel

import (
	"errors"
	"net/netip"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/netexp/flow"
	"github.com/sarchlab/netexp/network/routing"
	"github.com/sarchlab/netexp/network/topology"
	"github.com/sarchlab/netexp/network/transport"
	"github.com/sarchlab/netexp/sim/hooking"
	"github.com/sarchlab/netexp/sim/timing"
	gomock "go.uber.org/mock/gomock"
)

// 1000-byte packets take 1ms to serialize on this link.
var testLink = topology.LinkSpec{
	Capacity:      8 * timing.Mbps,
	Delay:         0.002,
	QueueCapacity: 2,
}

func chain(n int, spec topology.LinkSpec) *topology.Topology {
	shape, err := topology.MakeBuilder().WithLinkSpec(spec).BuildChain(n)
	Expect(err).NotTo(HaveOccurred())

	return shape.Topology
}

func keyTo(dst string) flow.Key {
	return flow.Key{
		Src:      netip.MustParseAddr("10.1.1.1"),
		Dst:      netip.MustParseAddr(dst),
		Protocol: flow.UDP,
		SrcPort:  49153,
		DstPort:  9,
	}
}

var _ = Describe("Network", func() {
	var (
		engine *timing.SerialEngine
		agg    *flow.Aggregator
	)

	build := func(topo *topology.Topology) *Network {
		return MakeBuilder().
			WithEngine(engine).
			WithTopology(topo).
			WithObserver(agg).
			Build("Network")
	}

	BeforeEach(func() {
		engine = timing.NewSerialEngine()
		agg = flow.NewAggregator()
	})

	It("should delay a packet by serialization plus propagation", func() {
		n := build(chain(2, testLink))
		k := keyTo("10.1.1.2")

		Expect(n.Inject(0, k, 1000)).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		r, found := agg.Record(k)
		Expect(found).To(BeTrue())
		Expect(r.TxPackets).To(Equal(uint64(1)))
		Expect(r.RxPackets).To(Equal(uint64(1)))
		Expect(r.DelaySum).To(BeNumerically("~", 0.003, 1e-12))
		Expect(n.InFlight()).To(Equal(0))
		Expect(n.Stats().Delivered).To(Equal(uint64(1)))
	})

	It("should forward over several hops", func() {
		n := build(chain(3, testLink))
		k := keyTo("10.1.1.4")

		Expect(n.Inject(0, k, 1000)).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		r, _ := agg.Record(k)
		Expect(r.RxPackets).To(Equal(uint64(1)))
		Expect(r.TimeLastRx).To(BeNumerically("~", 0.006, 1e-12))
		Expect(n.Stats().Forwarded).To(Equal(uint64(1)))
	})

	It("should drop packets when the queue is full", func() {
		n := build(chain(2, testLink))
		k := keyTo("10.1.1.2")

		for i := 0; i < 5; i++ {
			Expect(n.Inject(0, k, 1000)).To(Succeed())
		}

		Expect(n.QueueLength(topology.InterfaceRef{Node: 0, Index: 1})).
			To(Equal(2))
		Expect(engine.Run()).To(Succeed())

		r, _ := agg.Record(k)
		Expect(r.RxPackets).To(Equal(uint64(3)))
		Expect(r.LostPackets).To(Equal(uint64(2)))
		Expect(r.TimeLastRx).To(BeNumerically("~", 0.005, 1e-12))
		Expect(n.Stats().Dropped[DropQueueFull]).To(Equal(uint64(2)))
	})

	It("should drop packets arriving at a down interface", func() {
		topo := chain(2, testLink)
		n := build(topo)
		k := keyTo("10.1.1.2")

		Expect(n.Inject(0, k, 1000)).To(Succeed())
		_, _ = engine.ScheduleAfter(0.002, func(timing.VTimeInSec) error {
			return topo.SetInterfaceUp(topology.InterfaceRef{Node: 1, Index: 1}, false)
		})
		Expect(engine.Run()).To(Succeed())

		r, _ := agg.Record(k)
		Expect(r.RxPackets).To(BeZero())
		Expect(r.LostPackets).To(Equal(uint64(1)))
		Expect(n.Stats().Dropped[DropInterfaceDown]).To(Equal(uint64(1)))
	})

	It("should drop queued packets behind a down interface", func() {
		topo := chain(2, testLink)
		n := build(topo)
		k := keyTo("10.1.1.2")

		for i := 0; i < 3; i++ {
			Expect(n.Inject(0, k, 1000)).To(Succeed())
		}

		_, _ = engine.ScheduleAfter(0.0005, func(timing.VTimeInSec) error {
			return topo.SetInterfaceUp(topology.InterfaceRef{Node: 0, Index: 1}, false)
		})
		Expect(engine.Run()).To(Succeed())

		Expect(n.Stats().Dropped[DropInterfaceDown]).To(Equal(uint64(3)))
		Expect(n.Stats().TotalDropped()).To(Equal(uint64(3)))
	})

	It("should deliver a packet already on the wire when the sender goes down", func() {
		topo := chain(2, testLink)
		n := build(topo)
		k := keyTo("10.1.1.2")

		Expect(n.Inject(0, k, 1000)).To(Succeed())
		_, _ = engine.ScheduleAfter(0.0015, func(timing.VTimeInSec) error {
			return topo.SetInterfaceUp(topology.InterfaceRef{Node: 0, Index: 1}, false)
		})
		Expect(engine.Run()).To(Succeed())

		r, _ := agg.Record(k)
		Expect(r.RxPackets).To(Equal(uint64(1)))
		Expect(r.TimeLastRx).To(BeNumerically("~", 0.003, 1e-12))
		Expect(r.LostPackets).To(BeZero())
		Expect(n.Stats().TotalDropped()).To(BeZero())
	})

	It("should drop a packet whose sender goes down while serializing it", func() {
		topo := chain(2, testLink)
		n := build(topo)
		k := keyTo("10.1.1.2")

		Expect(n.Inject(0, k, 1000)).To(Succeed())
		_, _ = engine.ScheduleAfter(0.0005, func(timing.VTimeInSec) error {
			return topo.SetInterfaceUp(topology.InterfaceRef{Node: 0, Index: 1}, false)
		})
		Expect(engine.Run()).To(Succeed())

		r, _ := agg.Record(k)
		Expect(r.RxPackets).To(BeZero())
		Expect(r.LostPackets).To(Equal(uint64(1)))
		Expect(n.Stats().Dropped[DropInterfaceDown]).To(Equal(uint64(1)))
		Expect(n.InFlight()).To(BeZero())
	})

	It("should corrupt packets with the link error rate", func() {
		spec := testLink
		spec.ErrorRate = 1
		n := build(chain(2, spec))
		k := keyTo("10.1.1.2")

		Expect(n.Inject(0, k, 1000)).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(n.Stats().Dropped[DropCorrupted]).To(Equal(uint64(1)))
	})

	It("should drop packets without a route", func() {
		n := build(chain(2, testLink))
		k := keyTo("10.9.9.9")

		Expect(n.Inject(0, k, 1000)).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		r, _ := agg.Record(k)
		Expect(r.TxPackets).To(Equal(uint64(1)))
		Expect(r.LostPackets).To(Equal(uint64(1)))
		Expect(n.Stats().Dropped[DropNoRoute]).To(Equal(uint64(1)))
	})

	It("should expire packets in flight for too long", func() {
		n := build(chain(2, testLink))
		k := keyTo("10.1.1.2")

		Expect(n.Inject(0, k, 1000)).To(Succeed())
		Expect(engine.RunUntil(0.002)).To(Succeed())
		Expect(n.CheckForLostPackets(0.01)).To(Equal(0))
		Expect(n.CheckForLostPackets(0.001)).To(Equal(1))
		Expect(engine.Run()).To(Succeed())

		r, _ := agg.Record(k)
		Expect(r.RxPackets).To(BeZero())
		Expect(r.LostPackets).To(Equal(uint64(1)))
		Expect(n.Stats().Delivered).To(BeZero())
	})

	It("should report each packet to the observer once", func() {
		mockCtrl := gomock.NewController(GinkgoT())
		observer := NewMockObserver(mockCtrl)
		k := keyTo("10.1.1.2")

		n := MakeBuilder().
			WithEngine(engine).
			WithTopology(chain(2, testLink)).
			WithObserver(observer).
			Build("Network")

		tx := observer.EXPECT().OnTransmit(k, 0.0, 1000)
		observer.EXPECT().
			OnReceive(k, gomock.Any(), 1000, gomock.Any()).
			After(tx)

		Expect(n.Inject(0, k, 1000)).To(Succeed())
		Expect(engine.Run()).To(Succeed())
		mockCtrl.Finish()
	})

	It("should forward with the given routes", func() {
		mockCtrl := gomock.NewController(GinkgoT())
		router := NewMockNextHopper(mockCtrl)
		k := keyTo("10.1.1.2")

		n := MakeBuilder().
			WithEngine(engine).
			WithTopology(chain(2, testLink)).
			WithObserver(agg).
			WithRouter(router).
			Build("Network")

		router.EXPECT().
			NextHop(topology.NodeID(0), k.Dst).
			Return(routing.Hop{}, routing.ErrNoRoute)

		Expect(n.Inject(0, k, 1000)).To(Succeed())
		Expect(engine.Run()).To(Succeed())
		Expect(n.Stats().Dropped[DropNoRoute]).To(Equal(uint64(1)))
		mockCtrl.Finish()
	})

	It("should publish transmissions as tasks", func() {
		n := build(chain(2, testLink))
		var positions []*hooking.HookPos

		n.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			positions = append(positions, ctx.Pos)
		}))

		Expect(n.Inject(0, keyTo("10.1.1.2"), 1000)).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(positions).To(Equal([]*hooking.HookPos{
			hooking.HookPosTaskStart,
			hooking.HookPosTaskEnd,
			HookPosPacketDelivered,
		}))
	})

	It("should reject empty packets", func() {
		n := build(chain(2, testLink))
		Expect(n.Inject(0, keyTo("10.1.1.2"), 0)).NotTo(Succeed())
	})
})

var _ = Describe("Sockets", func() {
	var (
		engine *timing.SerialEngine
		n      *Network
	)

	BeforeEach(func() {
		engine = timing.NewSerialEngine()
		n = MakeBuilder().
			WithEngine(engine).
			WithTopology(chain(2, testLink)).
			Build("Network")
	})

	It("should deliver datagrams to listeners", func() {
		var got []transport.Datagram
		l, err := n.Listen(1, flow.UDP, 9, transport.ReceiverFunc(
			func(d transport.Datagram) { got = append(got, d) }))
		Expect(err).NotTo(HaveOccurred())
		Expect(l.Port()).To(Equal(uint16(9)))

		remote := netip.MustParseAddrPort("10.1.1.2:9")
		ep, err := n.Dial(0, flow.UDP, remote)
		Expect(err).NotTo(HaveOccurred())
		Expect(ep.LocalAddr()).To(Equal(netip.MustParseAddrPort("10.1.1.1:49153")))
		Expect(ep.RemoteAddr()).To(Equal(remote))

		Expect(ep.Send(1000)).To(Succeed())
		Expect(engine.Run()).To(Succeed())

		Expect(got).To(HaveLen(1))
		Expect(got[0].Key.SrcPort).To(Equal(uint16(49153)))
		Expect(got[0].Delay()).To(BeNumerically("~", 0.003, 1e-12))
	})

	It("should hand out distinct ephemeral ports", func() {
		remote := netip.MustParseAddrPort("10.1.1.2:9")

		ep1, _ := n.Dial(0, flow.UDP, remote)
		ep2, _ := n.Dial(0, flow.UDP, remote)
		Expect(ep2.LocalAddr().Port()).To(Equal(uint16(49154)))

		Expect(ep1.Close()).To(Succeed())
		Expect(ep1.Close()).To(Succeed())
		Expect(errors.Is(ep1.Send(10), transport.ErrClosed)).To(BeTrue())
	})

	It("should wrap the ephemeral ports after the last one", func() {
		remote := netip.MustParseAddrPort("10.1.1.2:9")

		first, err := n.Dial(0, flow.UDP, remote)
		Expect(err).NotTo(HaveOccurred())
		Expect(first.LocalAddr().Port()).To(Equal(uint16(49153)))

		n.nextPort[0] = 0xffff

		last, err := n.Dial(0, flow.UDP, remote)
		Expect(err).NotTo(HaveOccurred())
		Expect(last.LocalAddr().Port()).To(Equal(uint16(0xffff)))

		wrapped, err := n.Dial(0, flow.UDP, remote)
		Expect(err).NotTo(HaveOccurred())
		Expect(wrapped.LocalAddr().Port()).To(Equal(uint16(49154)))
	})

	It("should not bind a port twice", func() {
		noop := transport.ReceiverFunc(func(transport.Datagram) {})

		l, err := n.Listen(1, flow.UDP, 9, noop)
		Expect(err).NotTo(HaveOccurred())

		_, err = n.Listen(1, flow.UDP, 9, noop)
		Expect(errors.Is(err, transport.ErrPortInUse)).To(BeTrue())

		_, err = n.Listen(1, flow.TCP, 9, noop)
		Expect(err).NotTo(HaveOccurred())

		Expect(l.Close()).To(Succeed())
		_, err = n.Listen(1, flow.UDP, 9, noop)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should deliver over loopback", func() {
		count := 0
		_, err := n.Listen(0, flow.UDP, 7, transport.ReceiverFunc(
			func(transport.Datagram) { count++ }))
		Expect(err).NotTo(HaveOccurred())

		ep, err := n.Dial(0, flow.UDP, netip.MustParseAddrPort("127.0.0.1:7"))
		Expect(err).NotTo(HaveOccurred())
		Expect(ep.LocalAddr().Addr()).To(Equal(netip.MustParseAddr("127.0.0.1")))

		Expect(ep.Send(100)).To(Succeed())
		Expect(engine.Run()).To(Succeed())
		Expect(count).To(Equal(1))
		Expect(engine.Now()).To(Equal(0.0))
	})

	It("should need an address to dial", func() {
		topo := topology.New()
		topo.AddNode()
		bare := MakeBuilder().WithEngine(engine).WithTopology(topo).Build("Bare")

		_, err := bare.Dial(0, flow.UDP, netip.MustParseAddrPort("10.1.1.2:9"))
		Expect(errors.Is(err, transport.ErrNoAddress)).To(BeTrue())
	})
})
