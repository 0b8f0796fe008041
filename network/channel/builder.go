package channel

import (
	"github.com/iti/rngstream"
	"github.com/sarchlab/netexp/flow"
	"github.com/sarchlab/netexp/network/routing"
	"github.com/sarchlab/netexp/network/topology"
	"github.com/sarchlab/netexp/network/transport"
	"github.com/sarchlab/netexp/sim/timing"
)

// Builder can build networks.
type Builder struct {
	engine   timing.EventScheduler
	topo     *topology.Topology
	router   NextHopper
	observer flow.Observer
}

// MakeBuilder creates a new Builder.
func MakeBuilder() Builder {
	return Builder{}
}

// WithEngine sets the engine that the network schedules events on.
func (b Builder) WithEngine(engine timing.EventScheduler) Builder {
	b.engine = engine
	return b
}

// WithTopology sets the topology. It must not gain interfaces after the
// network is built.
func (b Builder) WithTopology(topo *topology.Topology) Builder {
	b.topo = topo
	return b
}

// WithRouter sets the routes used for forwarding. By default a Router over
// the topology is created.
func (b Builder) WithRouter(router NextHopper) Builder {
	b.router = router
	return b
}

// WithObserver sets who is told about transmissions, receptions and losses.
func (b Builder) WithObserver(observer flow.Observer) Builder {
	b.observer = observer
	return b
}

// Build creates a network. The name also names the random stream of the error
// model.
func (b Builder) Build(name string) *Network {
	if b.engine == nil || b.topo == nil {
		panic("network needs an engine and a topology")
	}

	n := &Network{
		engine:    b.engine,
		topo:      b.topo,
		router:    b.router,
		observer:  b.observer,
		rng:       rngstream.New(name),
		devices:   make(map[topology.InterfaceRef]*device),
		listeners: make(map[socketKey]transport.Receiver),
		bound:     make(map[socketKey]bool),
		nextPort:  make(map[topology.NodeID]uint16),
		inFlight:  make(map[uint64]*Packet),
	}

	if n.router == nil {
		n.router = routing.NewRouter(b.topo)
	}

	if n.observer == nil {
		n.observer = discard{}
	}

	for _, node := range b.topo.Nodes() {
		for _, i := range node.Interfaces {
			if i.IsLoopback() {
				continue
			}

			n.devices[i.Ref()] = &device{ref: i.Ref()}
		}
	}

	return n
}

type discard struct{}

func (discard) OnTransmit(flow.Key, timing.VTimeInSec, int)                   {}
func (discard) OnReceive(flow.Key, timing.VTimeInSec, int, timing.VTimeInSec) {}
func (discard) OnLoss(flow.Key, int)                                          {}
