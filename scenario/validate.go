package scenario

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/sarchlab/netexp/flow"
	"github.com/sarchlab/netexp/network/topology"
)

// Validate reports every problem of the scenario at once. Each problem wraps
// ErrInvalidScenario.
func (s *Scenario) Validate() error {
	v := &validator{}

	if s.Stop <= 0 {
		v.add("stop time must be positive")
	}

	if s.MaxDelay <= 0 {
		v.add("maxDelay must be positive")
	}

	if s.Output.MonitorPort < 0 || s.Output.MonitorPort > 65535 {
		v.add("output.monitorPort %d out of range", s.Output.MonitorPort)
	}

	names := v.topology(s.Topology)

	for i, sink := range s.Sinks {
		v.sink(fmt.Sprintf("sinks[%d]", i), sink, names, s.Stop)
	}

	for i, g := range s.Generators {
		v.generator(fmt.Sprintf("generators[%d]", i), g, names, s.Stop)
	}

	for i, m := range s.Mutations {
		v.mutation(fmt.Sprintf("mutations[%d]", i), m, names, s.Stop)
	}

	return errors.Join(v.errs...)
}

type validator struct {
	errs []error
}

func (v *validator) add(format string, args ...any) {
	v.errs = append(v.errs,
		fmt.Errorf("%w: %s", ErrInvalidScenario, fmt.Sprintf(format, args...)))
}

func (v *validator) link(where string, l Link) {
	if err := l.Spec(topology.DefaultLinkSpec).Validate(); err != nil {
		v.add("%s: %v", where, err)
	}
}

func (v *validator) topology(t Topology) map[string]bool {
	switch t.Kind {
	case KindStar:
		if t.Spokes < 1 {
			v.add("topology: a star needs at least one spoke")
		}
	case KindChain:
		if t.Length < 2 {
			v.add("topology: a chain needs at least two nodes")
		}
	case KindCustom:
		v.custom(t)
	default:
		v.add("topology: unknown kind %q", t.Kind)
	}

	v.link("topology.link", t.Link)

	if _, err := topology.ParseScope(t.Addresses.Base, t.Addresses.Mask); err != nil {
		v.add("topology.addresses: %v", err)
	}

	names := make(map[string]bool)
	for _, n := range t.NodeNames() {
		names[n] = true
	}

	if t.Kind == KindCustom {
		for i, e := range t.Links {
			where := fmt.Sprintf("topology.links[%d]", i)
			v.nodeRef(where, e.A, names)
			v.nodeRef(where, e.B, names)
		}
	}

	return names
}

func (v *validator) custom(t Topology) {
	if len(t.Nodes) == 0 {
		v.add("topology: a custom topology needs nodes")
	}

	seen := make(map[string]bool)
	for _, n := range t.Nodes {
		if n == "" {
			v.add("topology.nodes: empty node name")
			continue
		}

		if seen[n] {
			v.add("topology.nodes: duplicated node %q", n)
		}

		seen[n] = true
	}

	for i, e := range t.Links {
		where := fmt.Sprintf("topology.links[%d]", i)
		if e.A == e.B {
			v.add("%s: %q linked to itself", where, e.A)
		}

		v.link(where, e.Link)
	}
}

func (v *validator) nodeRef(where, name string, names map[string]bool) {
	if name == "" {
		v.add("%s: missing node", where)
		return
	}

	if !names[name] {
		v.add("%s: unknown node %q", where, name)
	}
}

func (v *validator) protocol(where, p string) {
	if _, err := flow.ParseProtocol(p); err != nil {
		v.add("%s: %v", where, err)
	}
}

func (v *validator) window(
	where string,
	start Duration,
	stop *Duration,
	end Duration,
) {
	if start > end && end > 0 {
		v.add("%s: starts at %v, after the run ends at %v", where,
			float64(start), float64(end))
	}

	if stop != nil && *stop < start {
		v.add("%s: stops at %v, before it starts at %v", where,
			float64(*stop), float64(start))
	}
}

func (v *validator) sink(where string, s Sink, names map[string]bool, end Duration) {
	v.nodeRef(where, s.Node, names)
	v.protocol(where, s.Protocol)
	v.window(where, s.Start, s.Stop, end)

	if s.Port == 0 {
		v.add("%s: missing port", where)
	}
}

func (v *validator) generator(
	where string,
	g Generator,
	names map[string]bool,
	end Duration,
) {
	switch g.Kind {
	case "", KindPaced:
	case KindOnOff:
		if g.OnTime != nil && *g.OnTime <= 0 {
			v.add("%s: onTime must be positive", where)
		}
	default:
		v.add("%s: unknown kind %q", where, g.Kind)
	}

	if len(g.From) == 0 {
		v.add("%s: no source node", where)
	}

	for _, n := range g.From {
		v.nodeRef(where+".from", n, names)
	}

	v.target(where+".to", g.To, names)
	v.protocol(where, g.Protocol)
	v.window(where, g.Start, g.Stop, end)

	if g.DataRate() <= 0 {
		v.add("%s: rate must be positive", where)
	}

	if g.Rate > 0 && g.Interval != nil {
		v.add("%s: set either rate or interval", where)
	}

	sized := g.SizeMin > 0 && g.SizeMax >= g.SizeMin
	if g.Size <= 0 && !sized {
		v.add("%s: packet size must be positive", where)
	}

	if g.SizeMin > g.SizeMax {
		v.add("%s: sizeMin %d above sizeMax %d", where, g.SizeMin, g.SizeMax)
	}
}

func (v *validator) target(where string, t Target, names map[string]bool) {
	if t.Port == 0 {
		v.add("%s: missing port", where)
	}

	switch {
	case t.Address != "" && t.Node != "":
		v.add("%s: set either address or node", where)
	case t.Address != "":
		if _, err := netip.ParseAddr(t.Address); err != nil {
			v.add("%s: %v", where, err)
		}
	default:
		v.nodeRef(where, t.Node, names)
	}

	if t.Interface < 0 {
		v.add("%s: negative interface index", where)
	}
}

func (v *validator) mutation(
	where string,
	m Mutation,
	names map[string]bool,
	end Duration,
) {
	if m.At > end && end > 0 {
		v.add("%s: at %v, after the run ends", where, float64(m.At))
	}

	switch m.Kind {
	case KindCapacity:
		v.linkRef(where, m, names)
		if m.Capacity == nil || *m.Capacity <= 0 {
			v.add("%s: capacity must be positive", where)
		}
	case KindInterface:
		if len(m.Nodes) == 0 {
			v.add("%s: no nodes", where)
		}

		for _, n := range m.Nodes {
			v.nodeRef(where, n, names)
		}

		if m.Interface < 0 {
			v.add("%s: negative interface index", where)
		}

		if m.Up == nil {
			v.add("%s: missing up", where)
		}
	case KindLink:
		v.linkRef(where, m, names)
		if m.Up == nil {
			v.add("%s: missing up", where)
		}
	default:
		v.add("%s: unknown kind %q", where, m.Kind)
	}
}

func (v *validator) linkRef(where string, m Mutation, names map[string]bool) {
	switch {
	case m.Link != nil && len(m.Between) > 0:
		v.add("%s: set either link or between", where)
	case m.Link != nil:
		if *m.Link < 0 {
			v.add("%s: negative link index", where)
		}
	case len(m.Between) == 2:
		v.nodeRef(where, m.Between[0], names)
		v.nodeRef(where, m.Between[1], names)
	default:
		v.add("%s: name the link by index or by its two nodes", where)
	}
}
