package traffic

import (
	"errors"

	"github.com/sarchlab/netexp/network/transport"
	"github.com/sarchlab/netexp/sim/hooking"
	"github.com/sarchlab/netexp/sim/timing"
)

// Hook positions of the generators. The item is the generator.
var (
	// HookPosPacketSent carries the packet size as the detail.
	HookPosPacketSent = &hooking.HookPos{Name: "PacketSent"}

	// HookPosGeneratorDone carries the final GeneratorState as the detail.
	HookPosGeneratorDone = &hooking.HookPos{Name: "GeneratorDone"}
)

// GeneratorState is the observable state of a paced generator.
type GeneratorState struct {
	Endpoint    transport.Endpoint
	PacketSize  int
	DataRate    timing.DataRate
	PacketsSent uint64
	BytesSent   uint64

	// PendingSend is the ID of the scheduled next emission, 0 if none.
	PendingSend timing.EventID
	Running     bool
}

// PacedGenerator emits packets at a constant data rate. The gap after a packet
// is the time the packet takes to transmit at that rate.
type PacedGenerator struct {
	hooking.HookableBase

	name   string
	engine timing.EventScheduler
	dialer transport.Dialer

	params       Params
	sizer        Sizer
	nextSize     int
	ownsEndpoint bool
	pendingAt    timing.VTimeInSec
	state        GeneratorState
}

// NewPacedGenerator creates a stopped generator.
func NewPacedGenerator(
	name string,
	engine timing.EventScheduler,
	dialer transport.Dialer,
) *PacedGenerator {
	return &PacedGenerator{
		name:   name,
		engine: engine,
		dialer: dialer,
	}
}

// Name returns the name of the generator.
func (g *PacedGenerator) Name() string {
	return g.name
}

// State returns a copy of the generator state.
func (g *PacedGenerator) State() GeneratorState {
	return g.state
}

// Params returns the parameters of the last start.
func (g *PacedGenerator) Params() Params {
	return g.params
}

// Start dials the destination and emits the first packet right away.
func (g *PacedGenerator) Start(p Params) error {
	if g.state.Running {
		return ErrAlreadyRunning
	}

	if err := p.Validate(); err != nil {
		return err
	}

	ep, err := g.dialer.Dial(p.Node, p.Protocol, p.Destination)
	if err != nil {
		return err
	}

	return g.startWith(ep, p, true, 0)
}

// waitOneGap makes startWith hold the first packet for its own gap.
const waitOneGap timing.VTimeInSec = -1

// startWith begins a run on ep. The first packet goes out after delay, right
// away if delay is 0.
func (g *PacedGenerator) startWith(
	ep transport.Endpoint,
	p Params,
	ownsEndpoint bool,
	delay timing.VTimeInSec,
) error {
	g.params = p
	g.sizer = p.sizer()
	g.ownsEndpoint = ownsEndpoint
	g.state = GeneratorState{
		Endpoint:   ep,
		PacketSize: p.PacketSize,
		DataRate:   p.DataRate,
		Running:    true,
	}
	g.nextSize = g.sizer.NextSize()

	if delay == waitOneGap {
		delay = p.DataRate.TransmissionTime(g.nextSize)
	}

	if delay > 0 {
		return g.scheduleEmit(delay)
	}

	return g.emit()
}

// untilNextSend returns how long until the pending emission, false if none is
// pending.
func (g *PacedGenerator) untilNextSend() (timing.VTimeInSec, bool) {
	if g.state.PendingSend == 0 {
		return 0, false
	}

	return g.pendingAt - g.engine.Now(), true
}

func (g *PacedGenerator) limitReached(next int) bool {
	if g.params.PacketLimit > 0 && g.state.PacketsSent >= g.params.PacketLimit {
		return true
	}

	if g.params.ByteLimit > 0 &&
		g.state.BytesSent+uint64(next) > g.params.ByteLimit {
		return true
	}

	return false
}

func (g *PacedGenerator) emit() error {
	size := g.nextSize
	if size <= 0 || g.limitReached(size) {
		return g.halt()
	}

	if err := g.state.Endpoint.Send(size); err != nil {
		return errors.Join(err, g.halt())
	}

	g.state.PacketsSent++
	g.state.BytesSent += uint64(size)
	g.InvokeHook(hooking.HookCtx{
		Domain: g,
		Pos:    HookPosPacketSent,
		Item:   g,
		Detail: size,
	})

	g.nextSize = g.sizer.NextSize()
	if g.nextSize <= 0 || g.limitReached(g.nextSize) {
		return g.halt()
	}

	return g.scheduleEmit(g.params.DataRate.TransmissionTime(size))
}

func (g *PacedGenerator) scheduleEmit(after timing.VTimeInSec) error {
	id, err := g.engine.ScheduleAfter(after, g.onSendTimer)
	if err != nil {
		return err
	}

	g.state.PendingSend = id
	g.pendingAt = g.engine.Now() + after

	return nil
}

func (g *PacedGenerator) onSendTimer(timing.VTimeInSec) error {
	g.state.PendingSend = 0

	if !g.state.Running {
		return nil
	}

	return g.emit()
}

// Stop halts the generator and releases its endpoint. Stopping a generator
// that is not running does nothing.
func (g *PacedGenerator) Stop() error {
	if !g.state.Running {
		return nil
	}

	return g.halt()
}

// halt ends the run, either on Stop or when a limit is reached.
func (g *PacedGenerator) halt() error {
	g.state.Running = false

	if g.state.PendingSend != 0 {
		g.engine.Cancel(g.state.PendingSend)
		g.state.PendingSend = 0
	}

	var err error
	if g.ownsEndpoint {
		err = g.state.Endpoint.Close()
	}

	g.InvokeHook(hooking.HookCtx{
		Domain: g,
		Pos:    HookPosGeneratorDone,
		Item:   g,
		Detail: g.state,
	})

	return err
}

// ScheduleStart starts the generator at time at. The parameters are checked
// now.
func (g *PacedGenerator) ScheduleStart(
	at timing.VTimeInSec,
	p Params,
) (timing.EventID, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	return g.engine.Schedule(timing.NewFuncEvent(at,
		func(timing.VTimeInSec) error {
			return g.Start(p)
		}))
}

// ScheduleStop stops the generator at time at.
func (g *PacedGenerator) ScheduleStop(
	at timing.VTimeInSec,
) (timing.EventID, error) {
	return g.engine.Schedule(timing.NewFuncEvent(at,
		func(timing.VTimeInSec) error {
			return g.Stop()
		}))
}
