package channel

import (
	"fmt"
	"net/netip"

	"github.com/sarchlab/netexp/flow"
	"github.com/sarchlab/netexp/network/topology"
	"github.com/sarchlab/netexp/network/transport"
)

// Dial creates an endpoint on a node that sends to remote. The local address
// is the first assigned address of the node and the local port is the next
// free ephemeral port.
func (n *Network) Dial(
	node topology.NodeID,
	proto flow.Protocol,
	remote netip.AddrPort,
) (transport.Endpoint, error) {
	local, err := n.localAddr(node, remote.Addr())
	if err != nil {
		return nil, err
	}

	port, err := n.ephemeralPort(node, proto)
	if err != nil {
		return nil, err
	}

	key := socketKey{node: node, proto: proto, port: port}
	n.bound[key] = true

	return &endpoint{
		network: n,
		key:     key,
		local:   netip.AddrPortFrom(local, port),
		remote:  remote,
	}, nil
}

func (n *Network) localAddr(
	node topology.NodeID,
	remote netip.Addr,
) (netip.Addr, error) {
	nd, err := n.topo.Node(node)
	if err != nil {
		return netip.Addr{}, err
	}

	if remote.IsLoopback() {
		return topology.Loopback.Addr(), nil
	}

	addrs := nd.Addrs()
	if len(addrs) == 0 {
		return netip.Addr{}, fmt.Errorf("%w: %s", transport.ErrNoAddress, nd.Name)
	}

	return addrs[0], nil
}

func (n *Network) ephemeralPort(
	node topology.NodeID,
	proto flow.Protocol,
) (uint16, error) {
	const (
		first = uint32(transport.FirstEphemeralPort)
		count = 0xffff - first + 1
	)

	next, found := n.nextPort[node]
	if !found || uint32(next) < first {
		next = transport.FirstEphemeralPort
	}

	// The search wraps around to the first ephemeral port once.
	for i := uint32(0); i < count; i++ {
		port := first + (uint32(next)-first+i)%count

		key := socketKey{node: node, proto: proto, port: uint16(port)}
		if n.bound[key] || n.listeners[key] != nil {
			continue
		}

		n.nextPort[node] = uint16(port + 1)

		return uint16(port), nil
	}

	return 0, fmt.Errorf("%w: node %d", transport.ErrPortExhausted, node)
}

// Listen binds a receiver to a port of a node.
func (n *Network) Listen(
	node topology.NodeID,
	proto flow.Protocol,
	port uint16,
	r transport.Receiver,
) (transport.Listener, error) {
	if _, err := n.topo.Node(node); err != nil {
		return nil, err
	}

	key := socketKey{node: node, proto: proto, port: port}
	if n.bound[key] || n.listeners[key] != nil {
		return nil, fmt.Errorf("%w: node %d %s port %d",
			transport.ErrPortInUse, node, proto, port)
	}

	n.listeners[key] = r

	return &listener{network: n, key: key}, nil
}

type endpoint struct {
	network *Network
	key     socketKey
	local   netip.AddrPort
	remote  netip.AddrPort
	closed  bool
}

func (e *endpoint) Send(sizeBytes int) error {
	if e.closed {
		return transport.ErrClosed
	}

	key := flow.MakeKey(e.key.proto, e.local, e.remote)

	return e.network.Inject(e.key.node, key, sizeBytes)
}

func (e *endpoint) Close() error {
	if e.closed {
		return nil
	}

	e.closed = true
	delete(e.network.bound, e.key)

	return nil
}

func (e *endpoint) LocalAddr() netip.AddrPort {
	return e.local
}

func (e *endpoint) RemoteAddr() netip.AddrPort {
	return e.remote
}

type listener struct {
	network *Network
	key     socketKey
	closed  bool
}

func (l *listener) Close() error {
	if l.closed {
		return nil
	}

	l.closed = true
	delete(l.network.listeners, l.key)

	return nil
}

func (l *listener) Port() uint16 {
	return l.key.port
}
