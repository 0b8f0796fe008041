package timing

import (
	"container/heap"
)

// queuedEvent is an event waiting in the engine together with its identity.
type queuedEvent struct {
	id        EventID
	evt       Event
	cancelled bool
}

// eventQueue is a queue of event ordered by the time of events. Events of
// the same time leave the queue in the order they were pushed.
type eventQueue interface {
	Push(qe *queuedEvent)
	Pop() *queuedEvent
	Len() int
	Peek() *queuedEvent
}

// eventQueueImpl is a binary heap keyed by (time, id).
type eventQueueImpl struct {
	events eventHeap
}

// newEventQueue creates and returns an empty eventQueue
func newEventQueue() eventQueue {
	q := new(eventQueueImpl)
	q.events = make([]*queuedEvent, 0)
	heap.Init(&q.events)

	return q
}

// Push adds an event to the event queue
func (q *eventQueueImpl) Push(qe *queuedEvent) {
	heap.Push(&q.events, qe)
}

// Pop returns the next earliest event
func (q *eventQueueImpl) Pop() *queuedEvent {
	return heap.Pop(&q.events).(*queuedEvent)
}

// Len returns the number of event in the queue, including cancelled ones
// that have not been dropped yet.
func (q *eventQueueImpl) Len() int {
	return q.events.Len()
}

// Peek returns the event in front of the queue without removing it from the
// queue
func (q *eventQueueImpl) Peek() *queuedEvent {
	return q.events[0]
}

type eventHeap []*queuedEvent

// Len returns the length of the event queue
func (h eventHeap) Len() int {
	return len(h)
}

// Less determines the order between two events. Less returns true if the i-th
// event happens before the j-th event. Same-time events are ordered by
// submission.
func (h eventHeap) Less(i, j int) bool {
	ti, tj := h[i].evt.Time(), h[j].evt.Time()
	if ti != tj {
		return ti < tj
	}

	return h[i].id < h[j].id
}

// Swap changes the position of two events in the event queue
func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

// Push adds an event into the event queue
func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(*queuedEvent))
}

// Pop removes and returns the next event to happen
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	event := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]

	return event
}
