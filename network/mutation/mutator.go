// Package mutation changes link capacities and interface states at scheduled
// times during a run and asks for the routes to be recomputed afterwards.
package mutation

import (
	"errors"
	"fmt"

	"github.com/sarchlab/netexp/network/topology"
	"github.com/sarchlab/netexp/sim/hooking"
	"github.com/sarchlab/netexp/sim/timing"
)

// HookPosMutationApplied marks that a mutation took effect. The item is the
// Record of the mutation.
var HookPosMutationApplied = &hooking.HookPos{Name: "MutationApplied"}

// ErrInvalidMutation is returned when a mutation cannot be scheduled.
var ErrInvalidMutation = errors.New("invalid mutation")

// Recomputer rebuilds the routes from the current topology.
type Recomputer interface {
	Recompute()
}

// Kind tells what a mutation changes.
type Kind int

// Kinds of mutations.
const (
	CapacityChange Kind = iota
	InterfaceState
)

func (k Kind) String() string {
	switch k {
	case CapacityChange:
		return "capacity"
	case InterfaceState:
		return "interface"
	default:
		return fmt.Sprintf("kind-%d", int(k))
	}
}

// Record describes an applied mutation.
type Record struct {
	Time      timing.VTimeInSec
	Kind      Kind
	Link      topology.LinkID
	Interface topology.InterfaceRef
	Capacity  timing.DataRate
	Up        bool
}

func (r Record) String() string {
	switch r.Kind {
	case CapacityChange:
		return fmt.Sprintf("%.6f link %d capacity %s", r.Time, r.Link, r.Capacity)
	default:
		state := "down"
		if r.Up {
			state = "up"
		}

		return fmt.Sprintf("%.6f %s %s", r.Time, r.Interface, state)
	}
}

// Mutator schedules topology changes on an engine.
type Mutator struct {
	hooking.HookableBase

	engine     timing.EventScheduler
	topo       *topology.Topology
	recomputer Recomputer

	recomputeScheduled map[timing.VTimeInSec]bool
	records            []Record
}

// NewMutator creates a Mutator. The recomputer may be nil when routes do not
// depend on the topology state.
func NewMutator(
	engine timing.EventScheduler,
	topo *topology.Topology,
	recomputer Recomputer,
) *Mutator {
	return &Mutator{
		engine:             engine,
		topo:               topo,
		recomputer:         recomputer,
		recomputeScheduled: make(map[timing.VTimeInSec]bool),
	}
}

// Name returns the name of the mutator.
func (m *Mutator) Name() string {
	return "Mutator"
}

// Records returns the applied mutations in the order they took effect.
func (m *Mutator) Records() []Record {
	return append([]Record(nil), m.records...)
}

// ScheduleCapacityChange sets the capacity of a link at time at.
func (m *Mutator) ScheduleCapacityChange(
	at timing.VTimeInSec,
	link topology.LinkID,
	capacity timing.DataRate,
) (timing.EventID, error) {
	if _, err := m.topo.Link(link); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidMutation, err)
	}

	if err := capacity.Validate(); err != nil {
		return 0, fmt.Errorf("%w: link %d: %w", ErrInvalidMutation, link, err)
	}

	rec := Record{Kind: CapacityChange, Link: link, Capacity: capacity}

	return m.schedule(at, rec, func() error {
		return m.topo.SetLinkCapacity(link, capacity)
	})
}

// ScheduleInterfaceState brings an interface up or down at time at.
func (m *Mutator) ScheduleInterfaceState(
	at timing.VTimeInSec,
	node topology.NodeID,
	ifIndex int,
	up bool,
) (timing.EventID, error) {
	ref := topology.InterfaceRef{Node: node, Index: ifIndex}

	iface, err := m.topo.Interface(ref)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidMutation, err)
	}

	if iface.IsLoopback() {
		return 0, fmt.Errorf("%w: %w: %s",
			ErrInvalidMutation, topology.ErrLoopback, ref)
	}

	rec := Record{Kind: InterfaceState, Link: iface.Link, Interface: ref, Up: up}

	return m.schedule(at, rec, func() error {
		return m.topo.SetInterfaceUp(ref, up)
	})
}

// ScheduleLinkState brings both interfaces of a link up or down at time at.
func (m *Mutator) ScheduleLinkState(
	at timing.VTimeInSec,
	link topology.LinkID,
	up bool,
) ([2]timing.EventID, error) {
	var ids [2]timing.EventID

	l, err := m.topo.Link(link)
	if err != nil {
		return ids, fmt.Errorf("%w: %w", ErrInvalidMutation, err)
	}

	if err := m.checkTime(at); err != nil {
		return ids, err
	}

	for k, end := range l.Ends {
		ids[k], err = m.ScheduleInterfaceState(at, end.Node, end.Index, up)
		if err != nil {
			return ids, err
		}
	}

	return ids, nil
}

func (m *Mutator) checkTime(at timing.VTimeInSec) error {
	if at < m.engine.Now() {
		return fmt.Errorf("%w: %w: %v < %v",
			ErrInvalidMutation, timing.ErrEventInPast, at, m.engine.Now())
	}

	return nil
}

func (m *Mutator) schedule(
	at timing.VTimeInSec,
	rec Record,
	apply func() error,
) (timing.EventID, error) {
	if err := m.checkTime(at); err != nil {
		return 0, err
	}

	evt := timing.NewFuncEvent(at, func(now timing.VTimeInSec) error {
		if err := apply(); err != nil {
			return err
		}

		rec.Time = now
		m.records = append(m.records, rec)
		m.InvokeHook(hooking.HookCtx{
			Domain: m,
			Pos:    HookPosMutationApplied,
			Item:   rec,
		})

		return m.scheduleRecompute(now)
	})

	id, err := m.engine.Schedule(evt)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidMutation, err)
	}

	return id, nil
}

// scheduleRecompute makes sure a single secondary event at now recomputes
// the routes after every mutation of that time has been applied.
func (m *Mutator) scheduleRecompute(now timing.VTimeInSec) error {
	if m.recomputer == nil || m.recomputeScheduled[now] {
		return nil
	}

	m.recomputeScheduled[now] = true

	evt := timing.NewSecondaryFuncEvent(now, func(timing.VTimeInSec) error {
		delete(m.recomputeScheduled, now)
		m.recomputer.Recompute()

		return nil
	})

	_, err := m.engine.Schedule(evt)

	return err
}
