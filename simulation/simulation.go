// Package simulation assembles a complete experiment run from a scenario: the
// engine, the topology and its routes, the packet network, the traffic
// applications, the scheduled mutations and the result outputs.
package simulation

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sarchlab/netexp/datarecording"
	"github.com/sarchlab/netexp/flow"
	"github.com/sarchlab/netexp/monitoring"
	"github.com/sarchlab/netexp/network/channel"
	"github.com/sarchlab/netexp/network/mutation"
	"github.com/sarchlab/netexp/network/routing"
	"github.com/sarchlab/netexp/network/topology"
	"github.com/sarchlab/netexp/report"
	"github.com/sarchlab/netexp/scenario"
	"github.com/sarchlab/netexp/sim/hooking"
	"github.com/sarchlab/netexp/sim/timing"
	"github.com/sarchlab/netexp/traffic"
)

// An Application is a traffic source installed on a node.
type Application interface {
	hooking.Hookable
	Name() string
}

// A Simulation is one run of a scenario.
type Simulation struct {
	id       string
	scenario *scenario.Scenario
	stop     timing.VTimeInSec
	maxDelay timing.VTimeInSec

	engine  *timing.SerialEngine
	topo    *topology.Topology
	nodes   map[string]topology.NodeID
	links   []topology.LinkID
	router  *routing.Router
	network *channel.Network
	flows   *flow.Aggregator
	mutator *mutation.Mutator

	generators []Application
	sinks      []*traffic.PacketSink

	recorder     datarecording.DataRecorder
	flowRecorder *datarecording.FlowRecorder
	execRecorder *datarecording.ExecRecorder
	csv          *report.CSVWriter
	monitor      *monitoring.Monitor
	progress     *monitoring.ProgressBar
	usage        *usageTracer

	ran        bool
	lost       int
	terminated bool
}

// ID returns the identity of the run.
func (s *Simulation) ID() string {
	return s.id
}

// Scenario returns the scenario the run was built from.
func (s *Simulation) Scenario() *scenario.Scenario {
	return s.scenario
}

// Engine returns the engine of the run.
func (s *Simulation) Engine() *timing.SerialEngine {
	return s.engine
}

// Topology returns the topology of the run.
func (s *Simulation) Topology() *topology.Topology {
	return s.topo
}

// Node returns the ID of a named node.
func (s *Simulation) Node(name string) (topology.NodeID, error) {
	id, found := s.nodes[name]
	if !found {
		return 0, fmt.Errorf("%w: node %q", topology.ErrUnknownNode, name)
	}

	return id, nil
}

// Links returns the links in the order the scenario declares them.
func (s *Simulation) Links() []topology.LinkID {
	return append([]topology.LinkID(nil), s.links...)
}

// Router returns the routes of the run.
func (s *Simulation) Router() *routing.Router {
	return s.router
}

// Network returns the packet network.
func (s *Simulation) Network() *channel.Network {
	return s.network
}

// Flows returns the flow aggregator.
func (s *Simulation) Flows() *flow.Aggregator {
	return s.flows
}

// Mutator returns the link mutator.
func (s *Simulation) Mutator() *mutation.Mutator {
	return s.mutator
}

// Generators returns the installed traffic sources.
func (s *Simulation) Generators() []Application {
	return s.generators
}

// Sinks returns the installed packet sinks.
func (s *Simulation) Sinks() []*traffic.PacketSink {
	return s.sinks
}

// Monitor returns the monitor, or nil if the run is not monitored.
func (s *Simulation) Monitor() *monitoring.Monitor {
	return s.monitor
}

// LostAtEnd returns the number of packets counted as lost because they were
// still in flight for longer than the maximum delay when the run stopped.
func (s *Simulation) LostAtEnd() int {
	return s.lost
}

// Run processes every event up to the stop time, counts the packets that
// can no longer arrive as lost and writes the flows to the outputs.
func (s *Simulation) Run() error {
	if s.ran {
		return fmt.Errorf("simulation %s already ran", s.id)
	}

	s.ran = true

	if err := s.engine.RunUntil(s.stop); err != nil {
		return err
	}

	s.lost = s.network.CheckForLostPackets(s.maxDelay)

	return s.writeOutputs()
}

// InterfaceUsage returns how busy every interface kept its link, ordered by
// node and index. It is nil unless the builder traced interface usage.
func (s *Simulation) InterfaceUsage() []InterfaceUsage {
	if s.usage == nil {
		return nil
	}

	return s.usage.report(s.topo)
}

// Report returns the summaries of every flow.
func (s *Simulation) Report() []flow.Summary {
	return s.flows.Report()
}

func (s *Simulation) writeOutputs() error {
	summaries := s.Report()

	if s.flowRecorder != nil {
		for _, u := range s.InterfaceUsage() {
			s.flowRecorder.RecordUsage(datarecording.UsageRow{
				RunID:         s.id,
				Node:          u.Node,
				NodeID:        int(u.Interface.Node),
				Interface:     u.Interface.Index,
				Packets:       u.Packets,
				BusyTime:      u.BusyTime,
				Utilization:   u.Utilization,
				AverageTxTime: u.AverageTxTime,
			})
		}

		s.flowRecorder.RecordFlows(summaries)
	}

	if s.csv != nil {
		if err := s.csv.Write(summaries); err != nil {
			return err
		}

		if err := s.csv.Flush(); err != nil {
			return err
		}
	}

	return nil
}

// Terminate stops the monitor and closes the outputs.
func (s *Simulation) Terminate() {
	if s.terminated {
		return
	}

	s.terminated = true

	if s.monitor != nil {
		s.monitor.CompleteProgressBar(s.progress)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		if err := s.monitor.Stop(ctx); err != nil {
			log.Printf("monitor: %v", err)
		}
	}

	if s.execRecorder != nil {
		s.execRecorder.Set("Lost At End", fmt.Sprint(s.lost))
		s.execRecorder.End()
	}

	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			log.Printf("recorder: %v", err)
		}
	}

	if s.csv != nil {
		if err := s.csv.Close(); err != nil {
			log.Printf("csv: %v", err)
		}
	}
}
