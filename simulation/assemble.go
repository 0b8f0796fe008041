package simulation

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/sarchlab/netexp/flow"
	"github.com/sarchlab/netexp/network/topology"
	"github.com/sarchlab/netexp/scenario"
	"github.com/sarchlab/netexp/traffic"
)

// ErrUnresolved is returned when a scenario names something the topology does
// not have, such as a link between two nodes that are not adjacent.
var ErrUnresolved = errors.New("cannot resolve")

func buildTopology(t scenario.Topology) (
	*topology.Topology,
	map[string]topology.NodeID,
	[]topology.LinkID,
	error,
) {
	spec := t.Link.Spec(topology.DefaultLinkSpec)

	var (
		shape *topology.Shape
		err   error
	)

	b := topology.MakeBuilder().
		WithLinkSpec(spec).
		WithAddressScope(t.Addresses.Base, t.Addresses.Mask)
	if t.Addresses.SubnetPerLink {
		b = b.WithSubnetPerLink()
	}

	switch t.Kind {
	case scenario.KindStar:
		shape, err = b.BuildStar(t.Spokes)
	case scenario.KindChain:
		shape, err = b.BuildChain(t.Length)
	default:
		shape, err = buildCustom(t, spec)
	}

	if err != nil {
		return nil, nil, nil, err
	}

	nodes := make(map[string]topology.NodeID, len(shape.Nodes))
	for _, n := range shape.Topology.Nodes() {
		nodes[n.Name] = n.ID
	}

	return shape.Topology, nodes, shape.Links, nil
}

func buildCustom(
	t scenario.Topology,
	spec topology.LinkSpec,
) (*topology.Shape, error) {
	s := &topology.Shape{Topology: topology.New()}
	ids := make(map[string]topology.NodeID, len(t.Nodes))

	for _, name := range t.Nodes {
		id := s.Topology.AddNamedNode(name)
		ids[name] = id
		s.Nodes = append(s.Nodes, id)
	}

	for _, e := range t.Links {
		l, err := s.Topology.AddLink(ids[e.A], ids[e.B], e.Link.Spec(spec))
		if err != nil {
			return nil, fmt.Errorf("link %s-%s: %w", e.A, e.B, err)
		}

		s.Links = append(s.Links, l)
	}

	h, err := topology.NewAddressHelper(
		s.Topology, t.Addresses.Base, t.Addresses.Mask)
	if err != nil {
		return nil, err
	}

	if !t.Addresses.SubnetPerLink {
		return s, h.Assign(s.Links...)
	}

	for _, l := range s.Links {
		if err := h.Assign(l); err != nil {
			return nil, err
		}

		if err := h.NewNetwork(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// assembler installs the applications and mutations of a scenario on a
// simulation whose network is built.
type assembler struct {
	sim      *Simulation
	scenario *scenario.Scenario
}

func (a *assembler) installSinks() error {
	for i, k := range a.scenario.Sinks {
		proto, err := flow.ParseProtocol(k.Protocol)
		if err != nil {
			return err
		}

		node := a.sim.nodes[k.Node]
		name := fmt.Sprintf("Sink[%d]@%s:%d", i, k.Node, k.Port)
		sink := traffic.NewPacketSink(
			name, a.sim.engine, a.sim.network, node, proto, k.Port)

		if _, err := sink.ScheduleStart(k.Start.Seconds()); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		if k.Stop != nil {
			if _, err := sink.ScheduleStop(k.Stop.Seconds()); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}

		a.sim.sinks = append(a.sim.sinks, sink)
	}

	return nil
}

func generatorName(i int, g scenario.Generator, from string) string {
	if g.Name != "" {
		return g.Name + "@" + from
	}

	return fmt.Sprintf("Gen[%d]@%s", i, from)
}

func (a *assembler) installGenerators() error {
	for i, g := range a.scenario.Generators {
		for _, from := range g.From {
			name := generatorName(i, g, from)

			app, err := a.installGenerator(name, g, from)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}

			a.sim.generators = append(a.sim.generators, app)
		}
	}

	return nil
}

func (a *assembler) installGenerator(
	name string,
	g scenario.Generator,
	from string,
) (Application, error) {
	p, err := a.params(name, g, from)
	if err != nil {
		return nil, err
	}

	start := g.Start.Seconds()

	if g.Kind == scenario.KindOnOff {
		op := traffic.OnOffParams{
			Params:  p,
			OnTime:  traffic.DefaultOnTime,
			OffTime: traffic.DefaultOffTime,
		}

		if g.OnTime != nil {
			op.OnTime = g.OnTime.Seconds()
		}

		if g.OffTime != nil {
			op.OffTime = g.OffTime.Seconds()
		}

		gen := traffic.NewOnOffGenerator(name, a.sim.engine, a.sim.network)
		if _, err := gen.ScheduleStart(start, op); err != nil {
			return nil, err
		}

		if g.Stop != nil {
			if _, err := gen.ScheduleStop(g.Stop.Seconds()); err != nil {
				return nil, err
			}
		}

		return gen, nil
	}

	gen := traffic.NewPacedGenerator(name, a.sim.engine, a.sim.network)
	if _, err := gen.ScheduleStart(start, p); err != nil {
		return nil, err
	}

	if g.Stop != nil {
		if _, err := gen.ScheduleStop(g.Stop.Seconds()); err != nil {
			return nil, err
		}
	}

	return gen, nil
}

func (a *assembler) params(
	name string,
	g scenario.Generator,
	from string,
) (traffic.Params, error) {
	proto, err := flow.ParseProtocol(g.Protocol)
	if err != nil {
		return traffic.Params{}, err
	}

	dst, err := a.resolveTarget(g.To, from)
	if err != nil {
		return traffic.Params{}, err
	}

	p := traffic.Params{
		Node:        a.sim.nodes[from],
		Destination: dst,
		Protocol:    proto,
		PacketSize:  g.Size,
		PacketLimit: g.Packets,
		ByteLimit:   g.Bytes,
		DataRate:    g.DataRate(),
	}

	if g.SizeMin > 0 && g.SizeMax >= g.SizeMin {
		p.Sizer = traffic.NewUniformSize(
			a.scenario.Seed+"/"+name, g.SizeMin, g.SizeMax)
	}

	return p, nil
}

// resolveTarget finds the address a generator on node from sends to.
func (a *assembler) resolveTarget(
	t scenario.Target,
	from string,
) (netip.AddrPort, error) {
	if t.Address != "" {
		addr, err := netip.ParseAddr(t.Address)
		if err != nil {
			return netip.AddrPort{}, err
		}

		return netip.AddrPortFrom(addr, t.Port), nil
	}

	node := a.sim.nodes[t.Node]
	index := t.Interface

	if t.Facing {
		l, err := a.linkBetween(t.Node, from)
		if err != nil {
			return netip.AddrPort{}, err
		}

		index = -1

		for _, end := range l.Ends {
			if end.Node == node {
				index = end.Index
			}
		}
	}

	if index == 0 && !t.Facing {
		index = 1
	}

	iface, err := a.sim.topo.Interface(
		topology.InterfaceRef{Node: node, Index: index})
	if err != nil {
		return netip.AddrPort{}, err
	}

	addr := iface.Addr()
	if !addr.IsValid() {
		return netip.AddrPort{}, fmt.Errorf("%w: %s has no address",
			ErrUnresolved, iface.Ref())
	}

	return netip.AddrPortFrom(addr, t.Port), nil
}

// linkBetween finds the first link that connects two named nodes.
func (a *assembler) linkBetween(x, y string) (*topology.Link, error) {
	nx, ny := a.sim.nodes[x], a.sim.nodes[y]

	for _, l := range a.sim.topo.Links() {
		n0, n1 := l.Ends[0].Node, l.Ends[1].Node
		if (n0 == nx && n1 == ny) || (n0 == ny && n1 == nx) {
			return l, nil
		}
	}

	return nil, fmt.Errorf("%w: no link between %s and %s",
		ErrUnresolved, x, y)
}

func (a *assembler) linkOf(m scenario.Mutation) (topology.LinkID, error) {
	if m.Link != nil {
		return topology.LinkID(*m.Link), nil
	}

	l, err := a.linkBetween(m.Between[0], m.Between[1])
	if err != nil {
		return 0, err
	}

	return l.ID, nil
}

func (a *assembler) scheduleMutations() error {
	for i, m := range a.scenario.Mutations {
		if err := a.scheduleMutation(m); err != nil {
			return fmt.Errorf("mutations[%d]: %w", i, err)
		}
	}

	return nil
}

func (a *assembler) scheduleMutation(m scenario.Mutation) error {
	mutator := a.sim.mutator
	at := m.At.Seconds()

	switch m.Kind {
	case scenario.KindCapacity:
		link, err := a.linkOf(m)
		if err != nil {
			return err
		}

		_, err = mutator.ScheduleCapacityChange(at, link, m.Capacity.DataRate())

		return err
	case scenario.KindLink:
		link, err := a.linkOf(m)
		if err != nil {
			return err
		}

		_, err = mutator.ScheduleLinkState(at, link, *m.Up)

		return err
	default:
		index := m.Interface
		if index == 0 {
			index = 1
		}

		for _, n := range m.Nodes {
			_, err := mutator.ScheduleInterfaceState(
				at, a.sim.nodes[n], index, *m.Up)
			if err != nil {
				return err
			}
		}

		return nil
	}
}
