// Package traffic provides the applications that create and consume packets:
// paced constant-rate sources, on/off sources and packet sinks.
package traffic

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/iti/rngstream"
	"github.com/sarchlab/netexp/flow"
	"github.com/sarchlab/netexp/network/topology"
	"github.com/sarchlab/netexp/sim/timing"
)

// Errors returned when starting a generator.
var (
	ErrZeroDataRate      = errors.New("data rate must be positive")
	ErrInvalidPacketSize = errors.New("packet size must be positive")
	ErrAlreadyRunning    = errors.New("generator already running")
	ErrInvalidPeriod     = errors.New("on and off periods must not be negative")
)

// A Sizer tells the size of each packet a generator emits.
type Sizer interface {
	NextSize() int
}

// ConstantSize emits packets of the same size.
type ConstantSize int

// NextSize returns the constant size.
func (s ConstantSize) NextSize() int {
	return int(s)
}

// UniformSize draws sizes uniformly from [Min, Max].
type UniformSize struct {
	Min, Max int
	rng      *rngstream.RngStream
}

// NewUniformSize creates a sizer backed by a named random stream.
func NewUniformSize(name string, lo, hi int) *UniformSize {
	if lo > hi {
		lo, hi = hi, lo
	}

	return &UniformSize{Min: lo, Max: hi, rng: rngstream.New(name)}
}

// NextSize draws the next size.
func (s *UniformSize) NextSize() int {
	span := s.Max - s.Min + 1
	n := s.Min + int(s.rng.RandU01()*float64(span))

	if n > s.Max {
		n = s.Max
	}

	return n
}

// Params configures a paced generator.
type Params struct {
	Node        topology.NodeID
	Destination netip.AddrPort
	Protocol    flow.Protocol
	PacketSize  int

	// PacketLimit and ByteLimit stop the generator once reached. Zero means
	// unlimited.
	PacketLimit uint64
	ByteLimit   uint64

	DataRate timing.DataRate

	// Sizer overrides PacketSize when set.
	Sizer Sizer
}

// Validate checks that the parameters can drive a generator.
func (p Params) Validate() error {
	if err := p.DataRate.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrZeroDataRate, float64(p.DataRate))
	}

	if p.Sizer == nil && p.PacketSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPacketSize, p.PacketSize)
	}

	return nil
}

func (p Params) sizer() Sizer {
	if p.Sizer != nil {
		return p.Sizer
	}

	return ConstantSize(p.PacketSize)
}

// RateForInterval returns the rate that sends one packet of the given size
// every interval.
func RateForInterval(
	sizeBytes int,
	interval timing.VTimeInSec,
) timing.DataRate {
	if interval <= 0 {
		return 0
	}

	return timing.DataRate(float64(sizeBytes) * 8 / interval)
}
