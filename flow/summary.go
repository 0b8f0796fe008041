package flow

import (
	"net/netip"

	"github.com/sarchlab/netexp/sim/timing"
)

// Summary is the post-run view of one flow. Metrics whose denominator is not
// positive are unavailable.
type Summary struct {
	ID  ID
	Key Key

	TxPackets   uint64
	TxBytes     uint64
	RxPackets   uint64
	RxBytes     uint64
	LostPackets uint64

	TimeFirstTx timing.VTimeInSec
	TimeLastRx  timing.VTimeInSec

	// Duration is the time between the first transmission and the last
	// reception.
	Duration        Metric
	ThroughputBps   Metric
	RxThroughputBps Metric
	AverageDelay    Metric
	AverageJitter   Metric
	LossRatio       Metric
}

func summarize(id ID, key Key, r Record) Summary {
	s := Summary{
		ID:          id,
		Key:         key,
		TxPackets:   r.TxPackets,
		TxBytes:     r.TxBytes,
		RxPackets:   r.RxPackets,
		RxBytes:     r.RxBytes,
		LostPackets: r.LostPackets,
		TimeFirstTx: r.TimeFirstTx,
		TimeLastRx:  r.TimeLastRx,
	}

	if r.hasTx && r.hasRx {
		duration := r.TimeLastRx - r.TimeFirstTx
		if duration >= 0 {
			s.Duration = Available(duration)
		}

		s.ThroughputBps = ratio(float64(r.TxBytes)*8, duration)
		s.RxThroughputBps = ratio(float64(r.RxBytes)*8, duration)
	}

	if r.RxPackets > 0 {
		s.AverageDelay = ratio(r.DelaySum, float64(r.RxPackets))
	}

	if r.RxPackets > 1 {
		s.AverageJitter = ratio(r.JitterSum, float64(r.RxPackets-1))
	}

	s.LossRatio = ratio(float64(r.LostPackets), float64(r.TxPackets))

	return s
}

// A Filter selects summaries.
type Filter func(s Summary) bool

// Between selects the flows from src to dst.
func Between(src, dst netip.Addr) Filter {
	return func(s Summary) bool {
		return s.Key.Src == src && s.Key.Dst == dst
	}
}

// FromAddr selects the flows sent by addr.
func FromAddr(addr netip.Addr) Filter {
	return func(s Summary) bool {
		return s.Key.Src == addr
	}
}

// ToAddr selects the flows destined to addr.
func ToAddr(addr netip.Addr) Filter {
	return func(s Summary) bool {
		return s.Key.Dst == addr
	}
}

// ByProtocol selects the flows of one protocol.
func ByProtocol(p Protocol) Filter {
	return func(s Summary) bool {
		return s.Key.Protocol == p
	}
}

// All combines filters so that a summary must pass every one of them.
func All(filters ...Filter) Filter {
	return func(s Summary) bool {
		for _, f := range filters {
			if !f(s) {
				return false
			}
		}

		return true
	}
}

// Select returns the summaries that pass the filter, keeping their order. A
// nil filter selects everything.
func Select(summaries []Summary, filter Filter) []Summary {
	selected := make([]Summary, 0, len(summaries))

	for _, s := range summaries {
		if filter == nil || filter(s) {
			selected = append(selected, s)
		}
	}

	return selected
}

// Total adds up the counters of a selection of flows.
type Total struct {
	Flows       int
	TxPackets   uint64
	TxBytes     uint64
	RxPackets   uint64
	RxBytes     uint64
	LostPackets uint64
}

// Totals sums the counters of the given summaries.
func Totals(summaries []Summary) Total {
	t := Total{Flows: len(summaries)}

	for _, s := range summaries {
		t.TxPackets += s.TxPackets
		t.TxBytes += s.TxBytes
		t.RxPackets += s.RxPackets
		t.RxBytes += s.RxBytes
		t.LostPackets += s.LostPackets
	}

	return t
}
