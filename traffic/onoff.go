package traffic

import (
	"errors"
	"fmt"

	"github.com/sarchlab/netexp/network/transport"
	"github.com/sarchlab/netexp/sim/timing"
)

// Defaults of an on/off source.
const (
	DefaultOnOffRate       = 500 * timing.Kbps
	DefaultOnOffPacketSize = 512
	DefaultOnTime          = 1.0
	DefaultOffTime         = 1.0
)

// OnOffParams configures an on/off generator. While on, it sends at the data
// rate like a paced generator. While off, it sends nothing. The packet and
// byte limits count over the whole run.
type OnOffParams struct {
	Params

	OnTime  timing.VTimeInSec
	OffTime timing.VTimeInSec
}

// DefaultOnOffParams returns the parameters of an on/off source alternating
// one second on and one second off at 500Kbps with 512-byte packets.
func DefaultOnOffParams() OnOffParams {
	return OnOffParams{
		Params: Params{
			PacketSize: DefaultOnOffPacketSize,
			DataRate:   DefaultOnOffRate,
		},
		OnTime:  DefaultOnTime,
		OffTime: DefaultOffTime,
	}
}

// Validate checks the parameters.
func (p OnOffParams) Validate() error {
	if err := p.Params.Validate(); err != nil {
		return err
	}

	if p.OnTime <= 0 || p.OffTime < 0 {
		return fmt.Errorf("%w: on %v, off %v", ErrInvalidPeriod, p.OnTime, p.OffTime)
	}

	return nil
}

// OnOffGenerator alternates between sending and staying silent. The same
// endpoint is kept across periods so that all packets belong to one flow.
// The first packet waits one packet gap, and the part of a gap left when an
// on period ends is waited out at the start of the next one, so the average
// rate while on equals the data rate.
type OnOffGenerator struct {
	*PacedGenerator

	params  OnOffParams
	ep      transport.Endpoint
	running bool
	toggle  timing.EventID

	// carry is the unspent part of the packet gap at the end of an on period,
	// waitOneGap before the first one.
	carry timing.VTimeInSec

	// periodOpen is set while the counters of the current on period have not
	// been added to the totals.
	periodOpen bool

	packetsSent uint64
	bytesSent   uint64
}

// NewOnOffGenerator creates a stopped on/off generator.
func NewOnOffGenerator(
	name string,
	engine timing.EventScheduler,
	dialer transport.Dialer,
) *OnOffGenerator {
	return &OnOffGenerator{
		PacedGenerator: NewPacedGenerator(name, engine, dialer),
	}
}

// Running tells if the generator is in an on or an off period.
func (g *OnOffGenerator) Running() bool {
	return g.running
}

// Totals returns the packets and bytes sent over all periods.
func (g *OnOffGenerator) Totals() (packets, bytes uint64) {
	s := g.PacedGenerator.State()
	if g.periodOpen {
		return g.packetsSent + s.PacketsSent, g.bytesSent + s.BytesSent
	}

	return g.packetsSent, g.bytesSent
}

// Start dials the destination and begins with an on period.
func (g *OnOffGenerator) Start(p OnOffParams) error {
	if g.running {
		return ErrAlreadyRunning
	}

	if err := p.Validate(); err != nil {
		return err
	}

	ep, err := g.dialer.Dial(p.Node, p.Protocol, p.Destination)
	if err != nil {
		return err
	}

	g.params = p
	g.ep = ep
	g.running = true
	g.packetsSent = 0
	g.bytesSent = 0
	g.carry = waitOneGap

	return g.switchOn()
}

func (g *OnOffGenerator) remaining() (Params, bool) {
	p := g.params.Params

	if p.PacketLimit > 0 {
		if g.packetsSent >= p.PacketLimit {
			return p, false
		}

		p.PacketLimit -= g.packetsSent
	}

	if p.ByteLimit > 0 {
		if g.bytesSent >= p.ByteLimit {
			return p, false
		}

		p.ByteLimit -= g.bytesSent
	}

	return p, true
}

func (g *OnOffGenerator) switchOn() error {
	p, more := g.remaining()
	if !more {
		return g.Stop()
	}

	g.periodOpen = true
	if err := g.PacedGenerator.startWith(g.ep, p, false, g.carry); err != nil {
		return errors.Join(err, g.Stop())
	}

	return g.scheduleToggle(g.params.OnTime, g.switchOff)
}

func (g *OnOffGenerator) switchOff() error {
	g.collect()

	if _, more := g.remaining(); !more {
		return g.Stop()
	}

	if g.params.OffTime == 0 {
		return g.switchOn()
	}

	return g.scheduleToggle(g.params.OffTime, g.switchOn)
}

// collect ends the current on period and adds its counters to the totals.
func (g *OnOffGenerator) collect() {
	if !g.periodOpen {
		return
	}

	g.periodOpen = false

	g.carry = 0
	if left, ok := g.PacedGenerator.untilNextSend(); ok {
		g.carry = left
	}

	_ = g.PacedGenerator.Stop()
	s := g.PacedGenerator.State()

	g.packetsSent += s.PacketsSent
	g.bytesSent += s.BytesSent
}

func (g *OnOffGenerator) scheduleToggle(
	after timing.VTimeInSec,
	next func() error,
) error {
	id, err := g.engine.ScheduleAfter(after, func(timing.VTimeInSec) error {
		g.toggle = 0
		return next()
	})
	if err != nil {
		return err
	}

	g.toggle = id

	return nil
}

// Stop ends the current period and releases the endpoint.
func (g *OnOffGenerator) Stop() error {
	if !g.running {
		return nil
	}

	if g.toggle != 0 {
		g.engine.Cancel(g.toggle)
		g.toggle = 0
	}

	g.collect()
	g.running = false

	return g.ep.Close()
}

// ScheduleStart starts the generator at time at.
func (g *OnOffGenerator) ScheduleStart(
	at timing.VTimeInSec,
	p OnOffParams,
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
func (g *OnOffGenerator) ScheduleStop(
	at timing.VTimeInSec,
) (timing.EventID, error) {
	return g.engine.Schedule(timing.NewFuncEvent(at,
		func(timing.VTimeInSec) error {
			return g.Stop()
		}))
}
