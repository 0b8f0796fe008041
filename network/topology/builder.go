package topology

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sarchlab/netexp/sim/timing"
)

// DefaultLinkSpec is the link used when a scenario does not say otherwise.
var DefaultLinkSpec = LinkSpec{
	Capacity:      5 * timing.Mbps,
	Delay:         0.002,
	QueueCapacity: 100,
}

// Default address scope.
const (
	DefaultBase = "10.1.1.0"
	DefaultMask = "255.255.255.0"
)

// ParseQueueSize reads a queue size such as "100p". The unit suffix "p"
// (packets) is optional.
func ParseQueueSize(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(s), "p"))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: queue size %q", ErrInvalidLink, s)
	}

	return n, nil
}

// Shape is a built topology with the nodes and links in creation order.
type Shape struct {
	Topology *Topology
	Nodes    []NodeID
	Links    []LinkID
}

// Builder creates the common topology shapes.
type Builder struct {
	spec       LinkSpec
	base       string
	mask       string
	perLink    bool
	namePrefix string
}

// MakeBuilder creates a Builder with default links and addresses.
func MakeBuilder() Builder {
	return Builder{
		spec:       DefaultLinkSpec,
		base:       DefaultBase,
		mask:       DefaultMask,
		namePrefix: "n",
	}
}

// WithLinkSpec sets the attributes of every link.
func (b Builder) WithLinkSpec(spec LinkSpec) Builder {
	b.spec = spec
	return b
}

// WithAddressScope sets the base/mask scope addresses are taken from.
func (b Builder) WithAddressScope(base, mask string) Builder {
	b.base = base
	b.mask = mask

	return b
}

// WithSubnetPerLink makes every link use its own subnet, stepping to the next
// network after each link.
func (b Builder) WithSubnetPerLink() Builder {
	b.perLink = true
	return b
}

// WithNamePrefix sets the prefix of node names.
func (b Builder) WithNamePrefix(prefix string) Builder {
	b.namePrefix = prefix
	return b
}

// BuildChain creates n nodes connected in a line, node i to node i+1.
func (b Builder) BuildChain(n int) (*Shape, error) {
	if n < 2 {
		return nil, fmt.Errorf("a chain needs at least 2 nodes, got %d", n)
	}

	s := b.newShape(n)
	for i := 0; i+1 < n; i++ {
		if err := b.connect(s, s.Nodes[i], s.Nodes[i+1]); err != nil {
			return nil, err
		}
	}

	if err := b.assign(s); err != nil {
		return nil, err
	}

	return s, nil
}

// BuildStar creates a hub, node 0, and the given number of spokes, each
// connected to the hub.
func (b Builder) BuildStar(spokes int) (*Shape, error) {
	if spokes < 1 {
		return nil, fmt.Errorf("a star needs at least 1 spoke, got %d", spokes)
	}

	s := b.newShape(spokes + 1)
	for i := 1; i <= spokes; i++ {
		if err := b.connect(s, s.Nodes[0], s.Nodes[i]); err != nil {
			return nil, err
		}
	}

	if err := b.assign(s); err != nil {
		return nil, err
	}

	return s, nil
}

func (b Builder) newShape(n int) *Shape {
	s := &Shape{Topology: New()}
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("%s%d", b.namePrefix, i)
		s.Nodes = append(s.Nodes, s.Topology.AddNamedNode(name))
	}

	return s
}

func (b Builder) connect(s *Shape, x, y NodeID) error {
	l, err := s.Topology.AddLink(x, y, b.spec)
	if err != nil {
		return err
	}

	s.Links = append(s.Links, l)

	return nil
}

func (b Builder) assign(s *Shape) error {
	h, err := NewAddressHelper(s.Topology, b.base, b.mask)
	if err != nil {
		return err
	}

	if !b.perLink {
		return h.Assign(s.Links...)
	}

	for _, l := range s.Links {
		if err := h.Assign(l); err != nil {
			return err
		}

		if err := h.NewNetwork(); err != nil {
			return err
		}
	}

	return nil
}
