// Package channel moves packets over the point-to-point links of a topology.
//
// Every interface owns a drop-tail transmit queue. A packet occupies the
// transmitter for size*8/capacity seconds, then propagates for the link delay
// and is checked against the link error model on arrival. Intermediate nodes
// forward hop by hop with the routes of a NextHopper.
package channel

import (
	"fmt"
	"net/netip"
	"sort"

	"github.com/iti/rngstream"
	"github.com/sarchlab/netexp/flow"
	"github.com/sarchlab/netexp/network/routing"
	"github.com/sarchlab/netexp/network/topology"
	"github.com/sarchlab/netexp/network/transport"
	"github.com/sarchlab/netexp/sim/hooking"
	"github.com/sarchlab/netexp/sim/id"
	"github.com/sarchlab/netexp/sim/timing"
)

// Hook positions of the network. The item is the *Packet.
var (
	HookPosPacketDelivered = &hooking.HookPos{Name: "PacketDelivered"}
	HookPosPacketDropped   = &hooking.HookPos{Name: "PacketDropped"}
)

// NextHopper finds the next hop of a packet.
type NextHopper interface {
	NextHop(from topology.NodeID, dst netip.Addr) (routing.Hop, error)
}

type device struct {
	ref   topology.InterfaceRef
	queue []*Packet
	busy  bool
}

type socketKey struct {
	node  topology.NodeID
	proto flow.Protocol
	port  uint16
}

// Network is the packet substrate shared by every application of a run.
type Network struct {
	hooking.HookableBase

	engine   timing.EventScheduler
	topo     *topology.Topology
	router   NextHopper
	observer flow.Observer
	rng      *rngstream.RngStream

	devices   map[topology.InterfaceRef]*device
	listeners map[socketKey]transport.Receiver
	bound     map[socketKey]bool
	nextPort  map[topology.NodeID]uint16
	inFlight  map[uint64]*Packet
	packetIDs id.Sequence
	stats     Stats
}

// Name returns the name of the network.
func (n *Network) Name() string {
	return "Network"
}

// Stats returns the packet counters.
func (n *Network) Stats() Stats {
	return n.stats
}

// InFlight returns the number of packets sent but neither delivered nor
// dropped.
func (n *Network) InFlight() int {
	return len(n.inFlight)
}

// QueueLength returns the number of packets waiting at an interface, not
// counting the one being transmitted.
func (n *Network) QueueLength(ref topology.InterfaceRef) int {
	d, found := n.devices[ref]
	if !found {
		return 0
	}

	return len(d.queue)
}

// Inject sends a packet from a node. It is what endpoints call, and it is
// exported for applications that do not need a socket.
func (n *Network) Inject(
	from topology.NodeID,
	key flow.Key,
	sizeBytes int,
) error {
	if sizeBytes <= 0 {
		return fmt.Errorf("invalid packet size %d", sizeBytes)
	}

	now := n.engine.Now()
	pkt := &Packet{
		ID:     n.packetIDs.Next(),
		Key:    key,
		Size:   sizeBytes,
		SentAt: now,
	}

	n.inFlight[pkt.ID] = pkt
	n.stats.Sent++
	n.observer.OnTransmit(key, now, sizeBytes)

	n.forward(from, pkt)

	return nil
}

func (n *Network) isLocal(node topology.NodeID, addr netip.Addr) bool {
	if addr.IsLoopback() {
		return true
	}

	holder, found := n.topo.NodeByAddr(addr)

	return found && holder == node
}

func (n *Network) forward(node topology.NodeID, pkt *Packet) {
	if n.isLocal(node, pkt.Key.Dst) {
		n.scheduleDelivery(node, pkt)
		return
	}

	hop, err := n.router.NextHop(node, pkt.Key.Dst)
	if err != nil {
		n.drop(pkt, DropNoRoute)
		return
	}

	if pkt.Hops > 0 {
		n.stats.Forwarded++
	}

	n.enqueue(n.devices[hop.Out], pkt)
}

func (n *Network) scheduleDelivery(node topology.NodeID, pkt *Packet) {
	_, err := n.engine.ScheduleAfter(0, func(timing.VTimeInSec) error {
		n.deliver(node, pkt)
		return nil
	})
	if err != nil {
		panic(err)
	}
}

func (n *Network) enqueue(d *device, pkt *Packet) {
	iface, _ := n.topo.Interface(d.ref)
	if !iface.Up {
		n.drop(pkt, DropInterfaceDown)
		return
	}

	if !d.busy {
		n.startTransmit(d, pkt)
		return
	}

	link, _ := n.topo.Link(iface.Link)
	if len(d.queue) >= link.QueueCapacity {
		n.drop(pkt, DropQueueFull)
		return
	}

	d.queue = append(d.queue, pkt)
}

func (n *Network) startTransmit(d *device, pkt *Packet) {
	iface, _ := n.topo.Interface(d.ref)
	link, _ := n.topo.Link(iface.Link)

	d.busy = true
	n.traceTransmit(hooking.HookPosTaskStart, d, pkt)

	txTime := link.Capacity.TransmissionTime(pkt.Size)
	_, err := n.engine.ScheduleAfter(txTime, func(timing.VTimeInSec) error {
		n.finishTransmit(d, pkt)
		return nil
	})
	if err != nil {
		panic(err)
	}
}

func (n *Network) finishTransmit(d *device, pkt *Packet) {
	n.traceTransmit(hooking.HookPosTaskEnd, d, pkt)

	iface, _ := n.topo.Interface(d.ref)
	link, _ := n.topo.Link(iface.Link)

	if iface.Up {
		peer := link.Peer(d.ref)
		_, err := n.engine.ScheduleAfter(link.Delay,
			func(timing.VTimeInSec) error {
				n.arrive(peer, pkt)
				return nil
			})
		if err != nil {
			panic(err)
		}
	} else {
		n.drop(pkt, DropInterfaceDown)
	}

	n.transmitNext(d)
}

func (n *Network) transmitNext(d *device) {
	iface, _ := n.topo.Interface(d.ref)

	for len(d.queue) > 0 {
		next := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]

		if !iface.Up {
			n.drop(next, DropInterfaceDown)
			continue
		}

		n.startTransmit(d, next)

		return
	}

	d.busy = false
}

func (n *Network) arrive(ref topology.InterfaceRef, pkt *Packet) {
	if _, pending := n.inFlight[pkt.ID]; !pending {
		return
	}

	iface, _ := n.topo.Interface(ref)
	if !iface.Up {
		n.drop(pkt, DropInterfaceDown)
		return
	}

	link, _ := n.topo.Link(iface.Link)
	if link.ErrorRate > 0 && n.rng.RandU01() < link.ErrorRate {
		n.drop(pkt, DropCorrupted)
		return
	}

	pkt.Hops++
	n.forward(ref.Node, pkt)
}

func (n *Network) deliver(node topology.NodeID, pkt *Packet) {
	if _, pending := n.inFlight[pkt.ID]; !pending {
		return
	}

	delete(n.inFlight, pkt.ID)

	now := n.engine.Now()
	delay := now - pkt.SentAt

	n.stats.Delivered++
	n.observer.OnReceive(pkt.Key, now, pkt.Size, delay)
	n.invoke(HookPosPacketDelivered, pkt, node)

	r, found := n.listeners[socketKey{
		node:  node,
		proto: pkt.Key.Protocol,
		port:  pkt.Key.DstPort,
	}]
	if !found {
		return
	}

	r.Receive(transport.Datagram{
		Key:        pkt.Key,
		Size:       pkt.Size,
		SentAt:     pkt.SentAt,
		ReceivedAt: now,
	})
}

func (n *Network) drop(pkt *Packet, reason DropReason) {
	if _, pending := n.inFlight[pkt.ID]; !pending {
		return
	}

	delete(n.inFlight, pkt.ID)

	n.stats.Dropped[reason]++
	n.observer.OnLoss(pkt.Key, 1)
	n.invoke(HookPosPacketDropped, pkt, reason)
}

// CheckForLostPackets reports every packet that has been in flight for
// longer than maxDelay as lost. Such packets are not delivered later.
func (n *Network) CheckForLostPackets(maxDelay timing.VTimeInSec) int {
	now := n.engine.Now()

	var expired []*Packet
	for _, pkt := range n.inFlight {
		if now-pkt.SentAt > maxDelay {
			expired = append(expired, pkt)
		}
	}

	sort.Slice(expired, func(i, j int) bool {
		return expired[i].ID < expired[j].ID
	})

	for _, pkt := range expired {
		n.drop(pkt, DropExpired)
	}

	return len(expired)
}

func (n *Network) invoke(pos *hooking.HookPos, pkt *Packet, detail any) {
	if n.NumHooks() == 0 {
		return
	}

	n.InvokeHook(hooking.HookCtx{
		Domain: n,
		Pos:    pos,
		Item:   pkt,
		Detail: detail,
	})
}

func (n *Network) traceTransmit(
	pos *hooking.HookPos,
	d *device,
	pkt *Packet,
) {
	if n.NumHooks() == 0 {
		return
	}

	taskID := fmt.Sprintf("%d@%s", pkt.ID, d.ref)

	var item any
	if pos == hooking.HookPosTaskStart {
		item = hooking.TaskStart{
			ID:    taskID,
			Kind:  "transmit",
			What:  pkt.Key.String(),
			Where: d.ref.String(),
		}
	} else {
		item = hooking.TaskEnd{ID: taskID}
	}

	n.InvokeHook(hooking.HookCtx{
		Domain: n,
		Pos:    pos,
		Item:   item,
		Detail: pkt,
	})
}
