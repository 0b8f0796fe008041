package flow

import (
	"math"
	"sync"

	"github.com/sarchlab/netexp/sim/timing"
)

// Observer is the capability the channel substrate calls as packets are sent,
// delivered or dropped.
type Observer interface {
	OnTransmit(key Key, t timing.VTimeInSec, sizeBytes int)
	OnReceive(key Key, t timing.VTimeInSec, sizeBytes int, delay timing.VTimeInSec)
	OnLoss(key Key, count int)
}

// Record holds the accumulated counters of one flow.
type Record struct {
	TxPackets   uint64
	TxBytes     uint64
	RxPackets   uint64
	RxBytes     uint64
	LostPackets uint64

	DelaySum  timing.VTimeInSec
	JitterSum timing.VTimeInSec
	LastDelay timing.VTimeInSec

	TimeFirstTx timing.VTimeInSec
	TimeLastTx  timing.VTimeInSec
	TimeFirstRx timing.VTimeInSec
	TimeLastRx  timing.VTimeInSec

	hasTx bool
	hasRx bool
}

// HasTransmitted tells if any transmission was observed.
func (r Record) HasTransmitted() bool {
	return r.hasTx
}

// HasReceived tells if any reception was observed.
func (r Record) HasReceived() bool {
	return r.hasRx
}

type entry struct {
	id     ID
	key    Key
	record Record
}

// Aggregator keeps one Record per flow key. It is fed by the channel
// substrate during a run and queried with Report afterwards. Reading is safe
// from another goroutine while the run goes on.
type Aggregator struct {
	lock    sync.Mutex
	entries map[Key]*entry
	order   []*entry
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		entries: make(map[Key]*entry),
	}
}

func (a *Aggregator) entryOf(key Key) *entry {
	e, found := a.entries[key]
	if found {
		return e
	}

	e = &entry{
		id:  ID(len(a.order) + 1),
		key: key,
	}
	a.entries[key] = e
	a.order = append(a.order, e)

	return e
}

// OnTransmit counts a packet sent by the source of the flow.
func (a *Aggregator) OnTransmit(
	key Key,
	t timing.VTimeInSec,
	sizeBytes int,
) {
	a.lock.Lock()
	defer a.lock.Unlock()

	r := &a.entryOf(key).record
	if !r.hasTx {
		r.hasTx = true
		r.TimeFirstTx = t
	}

	r.TimeLastTx = t
	r.TxPackets++
	r.TxBytes += uint64(sizeBytes)
}

// OnReceive counts a packet that reached the destination of the flow after
// the given one-way delay.
func (a *Aggregator) OnReceive(
	key Key,
	t timing.VTimeInSec,
	sizeBytes int,
	delay timing.VTimeInSec,
) {
	a.lock.Lock()
	defer a.lock.Unlock()

	r := &a.entryOf(key).record
	if r.hasRx {
		r.JitterSum += math.Abs(delay - r.LastDelay)
	} else {
		r.hasRx = true
		r.TimeFirstRx = t
	}

	r.TimeLastRx = t
	r.LastDelay = delay
	r.DelaySum += delay
	r.RxPackets++
	r.RxBytes += uint64(sizeBytes)
}

// OnLoss adds to the number of packets of the flow that will never be
// received.
func (a *Aggregator) OnLoss(key Key, count int) {
	if count <= 0 {
		return
	}

	a.lock.Lock()
	defer a.lock.Unlock()

	a.entryOf(key).record.LostPackets += uint64(count)
}

// NumFlows returns the number of distinct flows observed.
func (a *Aggregator) NumFlows() int {
	a.lock.Lock()
	defer a.lock.Unlock()

	return len(a.order)
}

// Record returns a copy of the counters of a flow.
func (a *Aggregator) Record(key Key) (Record, bool) {
	a.lock.Lock()
	defer a.lock.Unlock()

	e, found := a.entries[key]
	if !found {
		return Record{}, false
	}

	return e.record, true
}

// Report derives a Summary for every flow, ordered by flow ID. The returned
// slice is a snapshot and does not change when more packets are observed.
func (a *Aggregator) Report() []Summary {
	a.lock.Lock()
	defer a.lock.Unlock()

	summaries := make([]Summary, 0, len(a.order))
	for _, e := range a.order {
		summaries = append(summaries, summarize(e.id, e.key, e.record))
	}

	return summaries
}
