package timing

import (
	"fmt"
	"math"
	"reflect"
	"sync"

	"github.com/sarchlab/netexp/sim/hooking"
)

// A SerialEngine is an Engine that always run events one after another.
//
// Events run in non-decreasing time order. Primary events of the same time run
// in the order they were scheduled, followed by the secondary events of that
// time, also in scheduling order.
type SerialEngine struct {
	hooking.HookableBase

	timeLock       sync.RWMutex
	time           VTimeInSec
	queue          eventQueue
	secondaryQueue eventQueue
	pending        map[EventID]*queuedEvent
	lastID         EventID
	running        bool

	isPaused     bool
	isPausedLock sync.Mutex
	pauseLock    sync.Mutex
}

// NewSerialEngine creates a SerialEngine
func NewSerialEngine() *SerialEngine {
	e := new(SerialEngine)

	e.queue = newEventQueue()
	e.secondaryQueue = newEventQueue()
	e.pending = make(map[EventID]*queuedEvent)

	return e
}

// Name returns the name of the engine.
func (e *SerialEngine) Name() string {
	return "SerialEngine"
}

// Schedule register an event to be happen in the future
func (e *SerialEngine) Schedule(evt Event) (EventID, error) {
	if evt == nil || evt.Handler() == nil {
		return 0, ErrNilHandler
	}

	t := evt.Time()
	if !isFinite(t) {
		return 0, ErrInvalidTime
	}

	now := e.readNow()
	if t < now {
		return 0, fmt.Errorf("%w: %.10f < %.10f", ErrEventInPast, t, now)
	}

	e.lastID++
	qe := &queuedEvent{id: e.lastID, evt: evt}
	e.pending[qe.id] = qe

	if evt.IsSecondary() {
		e.secondaryQueue.Push(qe)
	} else {
		e.queue.Push(qe)
	}

	return qe.id, nil
}

// ScheduleAfter runs the action delay seconds after the current time.
func (e *SerialEngine) ScheduleAfter(
	delay VTimeInSec,
	action Action,
) (EventID, error) {
	if action == nil {
		return 0, ErrNilHandler
	}

	if !isFinite(delay) {
		return 0, ErrInvalidTime
	}

	if delay < 0 {
		return 0, fmt.Errorf("%w: %g", ErrNegativeDelay, delay)
	}

	return e.Schedule(NewFuncEvent(e.readNow()+delay, action))
}

// Cancel removes a pending event. Cancelling an event that has run or that
// has been cancelled is a no-op.
func (e *SerialEngine) Cancel(id EventID) bool {
	qe, found := e.pending[id]
	if !found {
		return false
	}

	qe.cancelled = true
	delete(e.pending, id)

	return true
}

// PendingEvents returns the number of events that will still run.
func (e *SerialEngine) PendingEvents() int {
	return len(e.pending)
}

func (e *SerialEngine) readNow() VTimeInSec {
	e.timeLock.RLock()
	t := e.time
	e.timeLock.RUnlock()

	return t
}

func (e *SerialEngine) writeNow(t VTimeInSec) {
	e.timeLock.Lock()
	e.time = t
	e.timeLock.Unlock()
}

// Run processes all the events scheduled in the SerialEngine. The clock stays
// at the time of the last event.
func (e *SerialEngine) Run() error {
	return e.run(math.Inf(1))
}

// RunUntil processes all the events no later than stop and then moves the
// clock to stop.
func (e *SerialEngine) RunUntil(stop VTimeInSec) error {
	if !isFinite(stop) {
		return ErrInvalidTime
	}

	now := e.readNow()
	if stop < now {
		return fmt.Errorf("%w: %.10f < %.10f", ErrStopInPast, stop, now)
	}

	err := e.run(stop)
	if err != nil {
		return err
	}

	e.writeNow(stop)

	return nil
}

func (e *SerialEngine) run(stop VTimeInSec) error {
	if e.running {
		return ErrReentrantRun
	}

	e.running = true
	defer func() { e.running = false }()

	for {
		qe := e.nextEvent(stop)
		if qe == nil {
			return nil
		}

		err := e.execute(qe)
		if err != nil {
			return err
		}
	}
}

func (e *SerialEngine) execute(qe *queuedEvent) error {
	e.pauseLock.Lock()
	defer e.pauseLock.Unlock()

	evt := qe.evt
	delete(e.pending, qe.id)
	e.writeNow(evt.Time())

	hookCtx := hooking.HookCtx{
		Domain: e,
		Pos:    HookPosBeforeEvent,
		Item:   evt,
		Detail: qe.id,
	}
	e.InvokeHook(hookCtx)

	err := evt.Handler().Handle(evt)

	hookCtx.Pos = HookPosAfterEvent
	e.InvokeHook(hookCtx)

	if err != nil {
		return fmt.Errorf("event %d (%s) @ %.10f: %w",
			qe.id, reflect.TypeOf(evt), evt.Time(), err)
	}

	return nil
}

// nextEvent pops the next live event that is no later than stop. It returns
// nil if there is no such event.
func (e *SerialEngine) nextEvent(stop VTimeInSec) *queuedEvent {
	dropCancelled(e.queue)
	dropCancelled(e.secondaryQueue)

	var q eventQueue

	switch {
	case e.queue.Len() == 0 && e.secondaryQueue.Len() == 0:
		return nil
	case e.queue.Len() == 0:
		q = e.secondaryQueue
	case e.secondaryQueue.Len() == 0:
		q = e.queue
	case e.queue.Peek().evt.Time() <= e.secondaryQueue.Peek().evt.Time():
		q = e.queue
	default:
		q = e.secondaryQueue
	}

	if q.Peek().evt.Time() > stop {
		return nil
	}

	return q.Pop()
}

func dropCancelled(q eventQueue) {
	for q.Len() > 0 && q.Peek().cancelled {
		q.Pop()
	}
}

// Pause prevents the SerialEngine to trigger more events.
func (e *SerialEngine) Pause() {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	if e.isPaused {
		return
	}

	e.pauseLock.Lock()
	e.isPaused = true
}

// Continue allows the SerialEngine to trigger more events.
func (e *SerialEngine) Continue() {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	if !e.isPaused {
		return
	}

	e.pauseLock.Unlock()
	e.isPaused = false
}

// Now returns the current time at which the engine is at.
// Specifically, the run time of the current event.
func (e *SerialEngine) Now() VTimeInSec {
	return e.readNow()
}

func isFinite(t VTimeInSec) bool {
	return !math.IsNaN(t) && !math.IsInf(t, 0)
}
