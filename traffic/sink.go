package traffic

import (
	"github.com/sarchlab/netexp/flow"
	"github.com/sarchlab/netexp/network/topology"
	"github.com/sarchlab/netexp/network/transport"
	"github.com/sarchlab/netexp/sim/hooking"
	"github.com/sarchlab/netexp/sim/timing"
)

// HookPosPacketReceived marks a datagram reaching a sink. The detail is the
// transport.Datagram.
var HookPosPacketReceived = &hooking.HookPos{Name: "PacketReceived"}

// PacketSink listens on a port of a node and counts what it receives.
type PacketSink struct {
	hooking.HookableBase

	name     string
	engine   timing.EventScheduler
	factory  transport.ListenerFactory
	node     topology.NodeID
	protocol flow.Protocol
	port     uint16

	listener  transport.Listener
	totalRx   uint64
	packetsRx uint64
	firstRx   timing.VTimeInSec
	lastRx    timing.VTimeInSec
}

// NewPacketSink creates a sink that is not listening yet.
func NewPacketSink(
	name string,
	engine timing.EventScheduler,
	factory transport.ListenerFactory,
	node topology.NodeID,
	protocol flow.Protocol,
	port uint16,
) *PacketSink {
	return &PacketSink{
		name:     name,
		engine:   engine,
		factory:  factory,
		node:     node,
		protocol: protocol,
		port:     port,
	}
}

// Name returns the name of the sink.
func (s *PacketSink) Name() string {
	return s.name
}

// Node returns the node the sink listens on.
func (s *PacketSink) Node() topology.NodeID {
	return s.node
}

// Port returns the port the sink listens on.
func (s *PacketSink) Port() uint16 {
	return s.port
}

// Listening tells if the sink is bound.
func (s *PacketSink) Listening() bool {
	return s.listener != nil
}

// TotalRx returns the number of bytes received.
func (s *PacketSink) TotalRx() uint64 {
	return s.totalRx
}

// PacketsRx returns the number of packets received.
func (s *PacketSink) PacketsRx() uint64 {
	return s.packetsRx
}

// RxWindow returns the times of the first and last reception.
func (s *PacketSink) RxWindow() (first, last timing.VTimeInSec) {
	return s.firstRx, s.lastRx
}

// Start binds the sink. Starting a listening sink does nothing.
func (s *PacketSink) Start() error {
	if s.listener != nil {
		return nil
	}

	l, err := s.factory.Listen(s.node, s.protocol, s.port, s)
	if err != nil {
		return err
	}

	s.listener = l

	return nil
}

// Stop unbinds the sink. Counters are kept.
func (s *PacketSink) Stop() error {
	if s.listener == nil {
		return nil
	}

	err := s.listener.Close()
	s.listener = nil

	return err
}

// Receive counts a datagram.
func (s *PacketSink) Receive(d transport.Datagram) {
	if s.packetsRx == 0 {
		s.firstRx = d.ReceivedAt
	}

	s.lastRx = d.ReceivedAt
	s.packetsRx++
	s.totalRx += uint64(d.Size)

	s.InvokeHook(hooking.HookCtx{
		Domain: s,
		Pos:    HookPosPacketReceived,
		Item:   s,
		Detail: d,
	})
}

// ScheduleStart binds the sink at time at.
func (s *PacketSink) ScheduleStart(at timing.VTimeInSec) (timing.EventID, error) {
	return s.engine.Schedule(timing.NewFuncEvent(at,
		func(timing.VTimeInSec) error {
			return s.Start()
		}))
}

// ScheduleStop unbinds the sink at time at.
func (s *PacketSink) ScheduleStop(at timing.VTimeInSec) (timing.EventID, error) {
	return s.engine.Schedule(timing.NewFuncEvent(at,
		func(timing.VTimeInSec) error {
			return s.Stop()
		}))
}
