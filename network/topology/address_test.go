package topology

import (
	"errors"
	"net/netip"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func addr(s string) netip.Addr {
	return netip.MustParseAddr(s)
}

var _ = Describe("Address assignment", func() {
	var (
		topo  *Topology
		links []LinkID
	)

	BeforeEach(func() {
		topo = New()
		for i := 0; i < 4; i++ {
			topo.AddNode()
		}

		links = nil
		for i := 0; i < 3; i++ {
			l, err := topo.AddLink(NodeID(i), NodeID(i+1), DefaultLinkSpec)
			Expect(err).NotTo(HaveOccurred())
			links = append(links, l)
		}
	})

	It("should hand out consecutive host addresses", func() {
		Expect(topo.AssignAddresses(links[0], "10.1.1.0", "255.255.255.0")).
			To(Succeed())
		Expect(topo.AssignAddresses(links[1], "10.1.1.0", "255.255.255.0")).
			To(Succeed())

		n1, _ := topo.Node(1)
		Expect(n1.Addrs()).To(Equal([]netip.Addr{addr("10.1.1.2"), addr("10.1.1.3")}))
		Expect(n1.Interfaces[1].Prefix.Bits()).To(Equal(24))

		id, found := topo.NodeByAddr(addr("10.1.1.4"))
		Expect(found).To(BeTrue())
		Expect(id).To(Equal(NodeID(2)))

		_, found = topo.InterfaceByAddr(addr("127.0.0.1"))
		Expect(found).To(BeFalse())
	})

	It("should not re-assign an interface", func() {
		Expect(topo.AssignAddresses(links[0], "10.1.1.0", "255.255.255.0")).
			To(Succeed())

		err := topo.AssignAddresses(links[0], "10.1.2.0", "255.255.255.0")
		Expect(errors.Is(err, ErrAlreadyAssigned)).To(BeTrue())
	})

	It("should detect addresses held from an overlapping scope", func() {
		Expect(topo.AssignAddresses(links[0], "10.1.1.0", "255.255.255.0")).
			To(Succeed())

		err := topo.AssignAddresses(links[1], "10.1.1.0", "255.255.255.128")
		Expect(errors.Is(err, ErrAddressInUse)).To(BeTrue())

		n2, _ := topo.Node(2)
		Expect(n2.Addrs()).To(BeEmpty())
	})

	It("should skip the broadcast address and report exhaustion", func() {
		Expect(topo.AssignAddresses(links[0], "10.1.1.0", "255.255.255.252")).
			To(Succeed())

		n0, _ := topo.Node(0)
		n1, _ := topo.Node(1)
		Expect(n0.Addrs()).To(Equal([]netip.Addr{addr("10.1.1.1")}))
		Expect(n1.Addrs()).To(Equal([]netip.Addr{addr("10.1.1.2")}))

		err := topo.AssignAddresses(links[1], "10.1.1.0", "255.255.255.252")
		Expect(errors.Is(err, ErrScopeExhausted)).To(BeTrue())
	})

	It("should reject bad scopes", func() {
		for _, pair := range [][2]string{
			{"10.1.1.0", "255.0.255.0"},
			{"10.1.1.0", "255.255.255.255"},
			{"nope", "255.255.255.0"},
			{"::1", "255.255.255.0"},
		} {
			err := topo.AssignAddresses(links[0], pair[0], pair[1])
			Expect(errors.Is(err, ErrInvalidScope)).To(BeTrue(), pair[1])
		}
	})

	It("should step to the next network", func() {
		h, err := NewAddressHelper(topo, "10.1.1.0", "255.255.255.0")
		Expect(err).NotTo(HaveOccurred())

		Expect(h.Assign(links[0])).To(Succeed())
		Expect(h.NewNetwork()).To(Succeed())
		Expect(h.Scope()).To(Equal(netip.MustParsePrefix("10.1.2.0/24")))
		Expect(h.Assign(links[1], links[2])).To(Succeed())

		n3, _ := topo.Node(3)
		Expect(n3.Addrs()).To(Equal([]netip.Addr{addr("10.1.2.4")}))
	})
})

var _ = Describe("Builder", func() {
	It("should build a chain in one scope", func() {
		shape, err := MakeBuilder().BuildChain(22)
		Expect(err).NotTo(HaveOccurred())
		Expect(shape.Nodes).To(HaveLen(22))
		Expect(shape.Links).To(HaveLen(21))

		last, _ := shape.Topology.Node(shape.Nodes[21])
		Expect(last.Addrs()).To(Equal([]netip.Addr{addr("10.1.1.42")}))
		Expect(last.Name).To(Equal("n21"))
	})

	It("should build a star with a subnet per link", func() {
		shape, err := MakeBuilder().
			WithSubnetPerLink().
			WithNamePrefix("host").
			BuildStar(8)
		Expect(err).NotTo(HaveOccurred())
		Expect(shape.Nodes).To(HaveLen(9))

		hub, _ := shape.Topology.Node(shape.Nodes[0])
		Expect(hub.Interfaces).To(HaveLen(9))
		Expect(hub.Addrs()[7]).To(Equal(addr("10.1.8.1")))

		spoke, _ := shape.Topology.Node(shape.Nodes[3])
		Expect(spoke.Addrs()).To(Equal([]netip.Addr{addr("10.1.3.2")}))
	})

	It("should reject degenerate shapes", func() {
		_, err := MakeBuilder().BuildChain(1)
		Expect(err).To(HaveOccurred())

		_, err = MakeBuilder().BuildStar(0)
		Expect(err).To(HaveOccurred())
	})
})
