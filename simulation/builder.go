package simulation

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/sarchlab/netexp/datarecording"
	"github.com/sarchlab/netexp/flow"
	"github.com/sarchlab/netexp/monitoring"
	"github.com/sarchlab/netexp/network/channel"
	"github.com/sarchlab/netexp/network/mutation"
	"github.com/sarchlab/netexp/network/routing"
	"github.com/sarchlab/netexp/report"
	"github.com/sarchlab/netexp/scenario"
	"github.com/sarchlab/netexp/sim/id"
	"github.com/sarchlab/netexp/sim/timing"
	"github.com/sarchlab/netexp/traffic"
)

// ErrOutputExists is returned when a result file would be overwritten.
var ErrOutputExists = errors.New("output file already exists")

// Builder can be used to build a simulation.
type Builder struct {
	runID          string
	monitorOff     bool
	outputsOff     bool
	eventLog       *log.Logger
	mutationLog    *log.Logger
	trafficLog     *log.Logger
	perPacketTrace bool
	traceUsage     bool
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{}
}

// WithRunID sets the identity of the run. A fresh one is generated
// otherwise.
func (b Builder) WithRunID(runID string) Builder {
	b.runID = runID
	return b
}

// WithoutMonitoring never starts the monitor, whatever the scenario says.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOff = true
	return b
}

// WithoutOutputs skips the CSV and SQLite outputs of the scenario.
func (b Builder) WithoutOutputs() Builder {
	b.outputsOff = true
	return b
}

// WithEventTrace logs every event the engine runs.
func (b Builder) WithEventTrace(logger *log.Logger) Builder {
	b.eventLog = logger
	return b
}

// WithMutationTrace logs every mutation and route recomputation.
func (b Builder) WithMutationTrace(logger *log.Logger) Builder {
	b.mutationLog = logger
	return b
}

// WithInterfaceUsage measures how busy every interface keeps its link. A
// scenario that records to SQLite always does.
func (b Builder) WithInterfaceUsage() Builder {
	b.traceUsage = true
	return b
}

// WithTrafficLog logs when generators finish and, if perPacket is set, every
// packet they send.
func (b Builder) WithTrafficLog(logger *log.Logger, perPacket bool) Builder {
	b.trafficLog = logger
	b.perPacketTrace = perPacket

	return b
}

// Build validates the scenario and assembles a simulation ready to run. No
// event runs before Build returns.
func (b Builder) Build(sc *scenario.Scenario) (*Simulation, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	s := &Simulation{
		id:       b.runID,
		scenario: sc,
		stop:     sc.Stop.Seconds(),
		maxDelay: sc.MaxDelay.Seconds(),
	}

	if s.id == "" {
		s.id = id.RunID()
	}

	if s.maxDelay <= 0 {
		s.maxDelay = scenario.DefaultMaxDelay
	}

	s.engine = timing.NewSerialEngine()

	if err := b.buildNetwork(s); err != nil {
		return nil, err
	}

	a := &assembler{sim: s, scenario: sc}

	if err := a.installSinks(); err != nil {
		return nil, err
	}

	if err := a.installGenerators(); err != nil {
		return nil, err
	}

	if err := a.scheduleMutations(); err != nil {
		return nil, err
	}

	b.attachTraces(s)

	if !b.outputsOff {
		if err := b.openOutputs(s); err != nil {
			s.Terminate()
			return nil, err
		}
	}

	if sc.Output.Monitor && !b.monitorOff {
		if err := b.startMonitor(s); err != nil {
			s.Terminate()
			return nil, err
		}
	}

	return s, nil
}

func (b Builder) buildNetwork(s *Simulation) error {
	topo, nodes, links, err := buildTopology(s.scenario.Topology)
	if err != nil {
		return err
	}

	s.topo = topo
	s.nodes = nodes
	s.links = links
	s.router = routing.NewRouter(topo)
	s.flows = flow.NewAggregator()
	s.network = channel.MakeBuilder().
		WithEngine(s.engine).
		WithTopology(topo).
		WithRouter(s.router).
		WithObserver(s.flows).
		Build(s.scenario.Seed)
	s.mutator = mutation.NewMutator(s.engine, topo, s.router)

	return nil
}

func (b Builder) attachTraces(s *Simulation) {
	if b.eventLog != nil {
		s.engine.AcceptHook(timing.NewEventLogger(b.eventLog))
	}

	if b.mutationLog != nil {
		l := mutation.NewLogger(b.mutationLog)
		s.mutator.AcceptHook(l)
		s.router.AcceptHook(l)
	}

	if b.traceUsage || (!b.outputsOff && s.scenario.Output.SQLite != "") {
		s.usage = newUsageTracer(s.engine, s.topo)
		s.network.AcceptHook(s.usage)
	}

	if b.trafficLog != nil {
		l := traffic.NewLogger(b.trafficLog, s.engine, b.perPacketTrace)
		for _, g := range s.generators {
			g.AcceptHook(l)
		}
	}
}

func mustNotExist(path string) error {
	_, err := os.Stat(path)

	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrOutputExists, path)
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (b Builder) openOutputs(s *Simulation) error {
	out := s.scenario.Output

	if out.SQLite != "" {
		if err := mustNotExist(out.SQLite + ".sqlite3"); err != nil {
			return err
		}

		s.recorder = datarecording.New(out.SQLite)
		s.flowRecorder = datarecording.NewFlowRecorder(s.recorder, s.id)
		s.mutator.AcceptHook(s.flowRecorder)

		s.execRecorder = datarecording.NewExecRecorder(s.recorder, s.id)
		s.execRecorder.Start()
		s.execRecorder.Set("Scenario", s.scenario.Name)
		s.execRecorder.Set("Seed", s.scenario.Seed)
		s.execRecorder.Set("Stop Time", fmt.Sprintf("%.10f", s.stop))
	}

	if out.CSV != "" {
		csv, err := report.NewCSVWriter(out.CSV, s.id)
		if err != nil {
			return err
		}

		s.csv = csv
	}

	return nil
}

func (b Builder) startMonitor(s *Simulation) error {
	m := monitoring.NewMonitor().WithPortNumber(s.scenario.Output.MonitorPort)
	m.RegisterEngine(s.engine)
	m.RegisterFlows(s.flows)
	m.RegisterTopology(s.topo, s.network)

	for _, g := range s.generators {
		m.RegisterObject(g)
	}

	for _, k := range s.sinks {
		m.RegisterObject(k)
	}

	m.RegisterObject(s.network)
	m.RegisterObject(s.router)
	m.RegisterObject(s.mutator)

	name := s.scenario.Name
	if name == "" {
		name = "Run"
	}

	s.progress = m.CreateProgressBar(name, s.stop)
	s.engine.AcceptHook(s.progress)

	if err := m.StartServer(); err != nil {
		return err
	}

	s.monitor = m

	return nil
}
