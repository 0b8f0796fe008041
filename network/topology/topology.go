// Package topology describes the nodes, interfaces and point-to-point links of
// an experiment. It only holds state. Changes during a run are made by the
// mutation package through the synchronous setters.
package topology

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/sarchlab/netexp/sim/timing"
)

// Errors returned by topology lookups and configuration.
var (
	ErrUnknownNode      = errors.New("unknown node")
	ErrUnknownLink      = errors.New("unknown link")
	ErrUnknownInterface = errors.New("unknown interface")
	ErrSelfLoop         = errors.New("link connects a node to itself")
	ErrLoopback         = errors.New("loopback interface cannot be changed")
	ErrInvalidLink      = errors.New("invalid link attributes")
)

// NodeID identifies a node. IDs are dense and start at 0.
type NodeID int

// LinkID identifies a link. IDs are dense and start at 0.
type LinkID int

// NoLink is the link of the loopback interface.
const NoLink LinkID = -1

// LoopbackIndex is the index of the loopback interface on every node.
const LoopbackIndex = 0

// Loopback is the address of the loopback interface.
var Loopback = netip.MustParsePrefix("127.0.0.1/8")

// InterfaceRef names an interface by its node and index.
type InterfaceRef struct {
	Node  NodeID
	Index int
}

func (r InterfaceRef) String() string {
	return fmt.Sprintf("node%d/if%d", r.Node, r.Index)
}

// Interface is a network interface of a node.
type Interface struct {
	Node  NodeID
	Index int
	Link  LinkID
	Up    bool

	// Prefix is the address and prefix length. It is invalid until an address
	// is assigned.
	Prefix netip.Prefix
}

// Ref returns the reference to the interface.
func (i *Interface) Ref() InterfaceRef {
	return InterfaceRef{Node: i.Node, Index: i.Index}
}

// Addr returns the address of the interface, invalid if unassigned.
func (i *Interface) Addr() netip.Addr {
	if !i.Prefix.IsValid() {
		return netip.Addr{}
	}

	return i.Prefix.Addr()
}

// IsLoopback tells if the interface is the loopback interface.
func (i *Interface) IsLoopback() bool {
	return i.Link == NoLink
}

// Node is a host or router.
type Node struct {
	ID         NodeID
	Name       string
	Interfaces []*Interface
}

// Addrs returns the assigned non-loopback addresses of the node.
func (n *Node) Addrs() []netip.Addr {
	var addrs []netip.Addr

	for _, i := range n.Interfaces {
		if i.IsLoopback() || !i.Prefix.IsValid() {
			continue
		}

		addrs = append(addrs, i.Addr())
	}

	return addrs
}

// LinkSpec holds the attributes of a point-to-point link.
type LinkSpec struct {
	Capacity      timing.DataRate
	Delay         timing.VTimeInSec
	QueueCapacity int
	ErrorRate     float64
}

// Validate checks the attributes.
func (s LinkSpec) Validate() error {
	if err := s.Capacity.Validate(); err != nil {
		return fmt.Errorf("%w: capacity: %w", ErrInvalidLink, err)
	}

	if s.Delay < 0 {
		return fmt.Errorf("%w: negative delay %v", ErrInvalidLink, s.Delay)
	}

	if s.QueueCapacity < 1 {
		return fmt.Errorf("%w: queue capacity %d", ErrInvalidLink, s.QueueCapacity)
	}

	if s.ErrorRate < 0 || s.ErrorRate > 1 {
		return fmt.Errorf("%w: error rate %v", ErrInvalidLink, s.ErrorRate)
	}

	return nil
}

// Link connects exactly two interfaces.
type Link struct {
	ID   LinkID
	Ends [2]InterfaceRef
	LinkSpec
}

// Peer returns the interface at the other end of the link.
func (l *Link) Peer(end InterfaceRef) InterfaceRef {
	if l.Ends[0] == end {
		return l.Ends[1]
	}

	return l.Ends[0]
}

// Topology holds every node and link of an experiment.
type Topology struct {
	nodes  []*Node
	links  []*Link
	byAddr map[netip.Addr]InterfaceRef
	scopes map[netip.Prefix]*scope
}

// New creates an empty topology.
func New() *Topology {
	return &Topology{
		byAddr: make(map[netip.Addr]InterfaceRef),
		scopes: make(map[netip.Prefix]*scope),
	}
}

// AddNode creates a node that only has a loopback interface.
func (t *Topology) AddNode() NodeID {
	return t.AddNamedNode("")
}

// AddNamedNode creates a node with a name. An empty name becomes "nodeN".
func (t *Topology) AddNamedNode(name string) NodeID {
	id := NodeID(len(t.nodes))
	if name == "" {
		name = fmt.Sprintf("node%d", id)
	}

	n := &Node{ID: id, Name: name}
	n.Interfaces = append(n.Interfaces, &Interface{
		Node:   id,
		Index:  LoopbackIndex,
		Link:   NoLink,
		Up:     true,
		Prefix: Loopback,
	})
	t.nodes = append(t.nodes, n)

	return id
}

// AddLink connects two nodes with a new point-to-point link. Both new
// interfaces start up and without an address.
func (t *Topology) AddLink(a, b NodeID, spec LinkSpec) (LinkID, error) {
	na, err := t.Node(a)
	if err != nil {
		return NoLink, err
	}

	nb, err := t.Node(b)
	if err != nil {
		return NoLink, err
	}

	if a == b {
		return NoLink, fmt.Errorf("%w: node %d", ErrSelfLoop, a)
	}

	if err := spec.Validate(); err != nil {
		return NoLink, err
	}

	id := LinkID(len(t.links))
	l := &Link{ID: id, LinkSpec: spec}
	l.Ends[0] = t.addInterface(na, id)
	l.Ends[1] = t.addInterface(nb, id)
	t.links = append(t.links, l)

	return id, nil
}

func (t *Topology) addInterface(n *Node, link LinkID) InterfaceRef {
	i := &Interface{
		Node:  n.ID,
		Index: len(n.Interfaces),
		Link:  link,
		Up:    true,
	}
	n.Interfaces = append(n.Interfaces, i)

	return i.Ref()
}

// NumNodes returns the number of nodes.
func (t *Topology) NumNodes() int {
	return len(t.nodes)
}

// NumLinks returns the number of links.
func (t *Topology) NumLinks() int {
	return len(t.links)
}

// Nodes returns all nodes ordered by ID.
func (t *Topology) Nodes() []*Node {
	return t.nodes
}

// Links returns all links ordered by ID.
func (t *Topology) Links() []*Link {
	return t.links
}

// Node returns a node by ID.
func (t *Topology) Node(id NodeID) (*Node, error) {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}

	return t.nodes[id], nil
}

// NodeByName returns the node with the given name.
func (t *Topology) NodeByName(name string) (*Node, error) {
	for _, n := range t.nodes {
		if n.Name == name {
			return n, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownNode, name)
}

// Link returns a link by ID.
func (t *Topology) Link(id LinkID) (*Link, error) {
	if id < 0 || int(id) >= len(t.links) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLink, id)
	}

	return t.links[id], nil
}

// Interface returns an interface by reference.
func (t *Topology) Interface(ref InterfaceRef) (*Interface, error) {
	n, err := t.Node(ref.Node)
	if err != nil {
		return nil, err
	}

	if ref.Index < 0 || ref.Index >= len(n.Interfaces) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInterface, ref)
	}

	return n.Interfaces[ref.Index], nil
}

// InterfaceByAddr finds the interface that holds an address. Loopback
// addresses are not indexed.
func (t *Topology) InterfaceByAddr(addr netip.Addr) (*Interface, bool) {
	ref, found := t.byAddr[addr]
	if !found {
		return nil, false
	}

	i, _ := t.Interface(ref)

	return i, true
}

// NodeByAddr finds the node that holds an address.
func (t *Topology) NodeByAddr(addr netip.Addr) (NodeID, bool) {
	i, found := t.InterfaceByAddr(addr)
	if !found {
		return 0, false
	}

	return i.Node, true
}

// LinkUsable tells if both ends of a link are up.
func (t *Topology) LinkUsable(id LinkID) bool {
	l, err := t.Link(id)
	if err != nil {
		return false
	}

	for _, end := range l.Ends {
		i, _ := t.Interface(end)
		if !i.Up {
			return false
		}
	}

	return true
}

// SetLinkCapacity changes the capacity of a link.
func (t *Topology) SetLinkCapacity(id LinkID, capacity timing.DataRate) error {
	l, err := t.Link(id)
	if err != nil {
		return err
	}

	if err := capacity.Validate(); err != nil {
		return fmt.Errorf("%w: capacity: %w", ErrInvalidLink, err)
	}

	l.Capacity = capacity

	return nil
}

// SetInterfaceUp changes the administrative state of an interface.
func (t *Topology) SetInterfaceUp(ref InterfaceRef, up bool) error {
	i, err := t.Interface(ref)
	if err != nil {
		return err
	}

	if i.IsLoopback() {
		return fmt.Errorf("%w: %s", ErrLoopback, ref)
	}

	i.Up = up

	return nil
}
