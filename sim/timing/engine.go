package timing

import (
	"errors"

	"github.com/sarchlab/netexp/sim/hooking"
)

// Errors returned by the scheduling calls. They are never clamped or
// silently ignored.
var (
	ErrNegativeDelay = errors.New("timing: negative delay")
	ErrInvalidTime   = errors.New("timing: time is NaN or infinite")
	ErrEventInPast   = errors.New("timing: event scheduled earlier than now")
	ErrStopInPast    = errors.New("timing: stop time earlier than now")
	ErrReentrantRun  = errors.New("timing: run called from inside an event")
	ErrNilHandler    = errors.New("timing: event has no handler")
)

// TimeTeller can be used to get the current time.
type TimeTeller interface {
	Now() VTimeInSec
}

// EventScheduler can be used to schedule and cancel future events.
type EventScheduler interface {
	TimeTeller

	// Schedule inserts an event at its own time. The returned ID can be used
	// to cancel the event.
	Schedule(e Event) (EventID, error)

	// ScheduleAfter runs the action delay seconds after now.
	ScheduleAfter(delay VTimeInSec, action Action) (EventID, error)

	// Cancel makes sure a pending event never runs. It returns false if the
	// event has already run or has already been cancelled.
	Cancel(id EventID) bool
}

// An Engine is a unit that keeps the discrete event simulation run.
type Engine interface {
	hooking.Hookable
	EventScheduler

	// Run will process all the events until there is no event left.
	Run() error

	// RunUntil processes all the events no later than stop and then moves
	// the clock to stop.
	RunUntil(stop VTimeInSec) error

	// PendingEvents returns the number of events that are scheduled and not
	// cancelled.
	PendingEvents() int

	// Pause will pause the simulation until continue is called.
	Pause()

	// Continue will continue the paused simulation
	Continue()
}
