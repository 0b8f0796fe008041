// Package transport defines how applications send and receive datagrams
// without knowing how packets cross the network.
package transport

import (
	"errors"
	"net/netip"

	"github.com/sarchlab/netexp/flow"
	"github.com/sarchlab/netexp/network/topology"
	"github.com/sarchlab/netexp/sim/timing"
)

// Errors returned by endpoints.
var (
	ErrClosed        = errors.New("endpoint closed")
	ErrPortInUse     = errors.New("port already in use")
	ErrPortExhausted = errors.New("no free ephemeral port")
	ErrNoAddress     = errors.New("node has no usable address")
)

// FirstEphemeralPort is the first source port handed out to dialed endpoints.
const FirstEphemeralPort = 49153

// Datagram is a packet as seen by a receiving application.
type Datagram struct {
	Key        flow.Key
	Size       int
	SentAt     timing.VTimeInSec
	ReceivedAt timing.VTimeInSec
}

// Delay is the one-way delay of the datagram.
func (d Datagram) Delay() timing.VTimeInSec {
	return d.ReceivedAt - d.SentAt
}

// Endpoint is a connected sending socket.
type Endpoint interface {
	Send(sizeBytes int) error
	Close() error
	LocalAddr() netip.AddrPort
	RemoteAddr() netip.AddrPort
}

// Dialer creates endpoints on a node.
type Dialer interface {
	Dial(
		node topology.NodeID,
		proto flow.Protocol,
		remote netip.AddrPort,
	) (Endpoint, error)
}

// Receiver is called for every datagram that reaches a listener.
type Receiver interface {
	Receive(d Datagram)
}

// ReceiverFunc adapts a function into a Receiver.
type ReceiverFunc func(d Datagram)

// Receive calls f(d).
func (f ReceiverFunc) Receive(d Datagram) {
	f(d)
}

// Listener is a bound receiving socket.
type Listener interface {
	Close() error
	Port() uint16
}

// ListenerFactory binds listeners on a node.
type ListenerFactory interface {
	Listen(
		node topology.NodeID,
		proto flow.Protocol,
		port uint16,
		r Receiver,
	) (Listener, error)
}
