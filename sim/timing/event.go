package timing

import (
	"github.com/sarchlab/netexp/sim/hooking"
)

// VTimeInSec defines the time in the simulated space in the unit of second
type VTimeInSec = float64

// EventID identifies a scheduled event. IDs grow in submission order.
type EventID uint64

// An Event is something going to happen in the future.
type Event interface {
	// Return the time that the event should happen
	Time() VTimeInSec

	// Returns the handler that can should handle the event
	Handler() Handler

	// IsSecondary tells if the event is a secondary event. Secondary event are
	// handled after all same-time primary events are handled.
	IsSecondary() bool
}

// HookPosBeforeEvent is a hook position that triggers before handling an event.
var HookPosBeforeEvent = &hooking.HookPos{Name: "BeforeEvent"}

// HookPosAfterEvent is a hook position that triggers after handling an event.
var HookPosAfterEvent = &hooking.HookPos{Name: "AfterEvent"}

// EventBase provides the basic fields and getters for other events
type EventBase struct {
	time      VTimeInSec
	handler   Handler
	secondary bool
}

// NewEventBase creates a new EventBase
func NewEventBase(t VTimeInSec, handler Handler) *EventBase {
	e := new(EventBase)
	e.time = t
	e.handler = handler
	e.secondary = false

	return e
}

// NewSecondaryEventBase creates an EventBase of a secondary event.
func NewSecondaryEventBase(t VTimeInSec, handler Handler) *EventBase {
	e := NewEventBase(t, handler)
	e.secondary = true

	return e
}

// Time return the time that the event is going to happen
func (e EventBase) Time() VTimeInSec {
	return e.time
}

// Handler returns the handler to handle the event.
func (e EventBase) Handler() Handler {
	return e.handler
}

// IsSecondary returns true if the event is a secondary event.
func (e EventBase) IsSecondary() bool {
	return e.secondary
}

// A Handler defines a domain for the events.
//
// One event is always constraint to one Handler, which means the event can
// only be scheduled by one handler and can only directly modify that handler.
type Handler interface {
	Handle(e Event) error
}

// An Action is a piece of work that runs at the time of its event.
type Action func(now VTimeInSec) error

// FuncEvent is an event that carries its own action.
type FuncEvent struct {
	*EventBase
	action Action
}

// NewFuncEvent creates an event that runs action at time t.
func NewFuncEvent(t VTimeInSec, action Action) *FuncEvent {
	evt := &FuncEvent{action: action}
	evt.EventBase = NewEventBase(t, evt)

	return evt
}

// NewSecondaryFuncEvent creates a secondary event that runs action at time t,
// after all the primary events of time t.
func NewSecondaryFuncEvent(t VTimeInSec, action Action) *FuncEvent {
	evt := &FuncEvent{action: action}
	evt.EventBase = NewSecondaryEventBase(t, evt)

	return evt
}

// Handle runs the action.
func (e *FuncEvent) Handle(evt Event) error {
	if e.action == nil {
		return nil
	}

	return e.action(evt.Time())
}
