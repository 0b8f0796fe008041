// Package routing computes hop-count shortest paths over the usable links of a
// topology.
package routing

import (
	"errors"
	"fmt"
	"math"
	"net/netip"

	"github.com/sarchlab/netexp/network/topology"
	"github.com/sarchlab/netexp/sim/hooking"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// Errors returned by route lookups.
var (
	ErrUnknownDestination = errors.New("no node holds the destination address")
	ErrNoRoute            = errors.New("no route to destination")
)

// HookPosRoutesRecomputed marks that the routes were rebuilt. The hook
// item is the Router and the detail is the number of recomputations so far.
var HookPosRoutesRecomputed = &hooking.HookPos{Name: "RoutesRecomputed"}

// Hop is the next step of a route.
type Hop struct {
	Link topology.LinkID
	Out  topology.InterfaceRef
	In   topology.InterfaceRef
	Node topology.NodeID
}

// Router keeps a graph of the nodes connected by usable links. The graph
// reflects the topology at the last Recompute. Shortest-path trees are
// computed lazily, rooted at the destination.
type Router struct {
	hooking.HookableBase

	topo          *topology.Topology
	graph         *simple.WeightedUndirectedGraph
	trees         map[topology.NodeID]path.Shortest
	usable        map[topology.LinkID]bool
	recomputation int
}

// NewRouter creates a Router and computes the initial graph.
func NewRouter(topo *topology.Topology) *Router {
	r := &Router{topo: topo}
	r.rebuild()

	return r
}

// Name returns the name of the router.
func (r *Router) Name() string {
	return "Router"
}

// Recompute rebuilds the graph from the current state of the topology.
func (r *Router) Recompute() {
	r.rebuild()
	r.recomputation++

	r.InvokeHook(hooking.HookCtx{
		Domain: r,
		Pos:    HookPosRoutesRecomputed,
		Item:   r,
		Detail: r.recomputation,
	})
}

// Recomputations returns how many times Recompute ran.
func (r *Router) Recomputations() int {
	return r.recomputation
}

func (r *Router) rebuild() {
	r.graph = simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	r.trees = make(map[topology.NodeID]path.Shortest)
	r.usable = make(map[topology.LinkID]bool)

	for _, n := range r.topo.Nodes() {
		r.graph.AddNode(simple.Node(n.ID))
	}

	for _, l := range r.topo.Links() {
		if !r.topo.LinkUsable(l.ID) {
			continue
		}

		r.usable[l.ID] = true
		r.graph.SetWeightedEdge(simple.WeightedEdge{
			F: simple.Node(l.Ends[0].Node),
			T: simple.Node(l.Ends[1].Node),
			W: 1,
		})
	}
}

func (r *Router) treeTo(dst topology.NodeID) path.Shortest {
	tree, found := r.trees[dst]
	if found {
		return tree
	}

	tree = path.DijkstraFrom(simple.Node(dst), r.graph)
	r.trees[dst] = tree

	return tree
}

// Distance returns the number of hops between two nodes, or +Inf when they
// are not connected.
func (r *Router) Distance(from, to topology.NodeID) float64 {
	return r.treeTo(to).WeightTo(int64(from))
}

// NextHopToNode returns the first hop of a shortest route. Among equally short
// routes the one through the lowest link ID is taken.
func (r *Router) NextHopToNode(from, to topology.NodeID) (Hop, error) {
	if from == to {
		return Hop{}, fmt.Errorf("%w: node %d is the destination", ErrNoRoute, to)
	}

	dist := r.Distance(from, to)
	if math.IsInf(dist, 1) {
		return Hop{}, fmt.Errorf("%w: node %d to node %d", ErrNoRoute, from, to)
	}

	node, err := r.topo.Node(from)
	if err != nil {
		return Hop{}, err
	}

	tree := r.treeTo(to)
	for _, i := range node.Interfaces {
		if i.IsLoopback() || !r.usable[i.Link] {
			continue
		}

		l, _ := r.topo.Link(i.Link)
		peer := l.Peer(i.Ref())

		if tree.WeightTo(int64(peer.Node)) == dist-1 {
			return Hop{Link: l.ID, Out: i.Ref(), In: peer, Node: peer.Node}, nil
		}
	}

	return Hop{}, fmt.Errorf("%w: node %d to node %d", ErrNoRoute, from, to)
}

// NextHop returns the first hop from a node towards the holder of an
// address.
func (r *Router) NextHop(from topology.NodeID, dst netip.Addr) (Hop, error) {
	to, found := r.topo.NodeByAddr(dst)
	if !found {
		return Hop{}, fmt.Errorf("%w: %s", ErrUnknownDestination, dst)
	}

	return r.NextHopToNode(from, to)
}

// Route returns the nodes of the route between two nodes, both included.
func (r *Router) Route(from, to topology.NodeID) ([]topology.NodeID, error) {
	if _, err := r.topo.Node(from); err != nil {
		return nil, err
	}

	if _, err := r.topo.Node(to); err != nil {
		return nil, err
	}

	route := []topology.NodeID{from}
	for here := from; here != to; {
		hop, err := r.NextHopToNode(here, to)
		if err != nil {
			return nil, err
		}

		here = hop.Node
		route = append(route, here)
	}

	return route, nil
}
