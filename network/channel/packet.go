package channel

import (
	"fmt"

	"github.com/sarchlab/netexp/flow"
	"github.com/sarchlab/netexp/sim/timing"
)

// DropReason tells why a packet never reached its destination.
type DropReason int

// Reasons a packet can be dropped.
const (
	DropQueueFull DropReason = iota
	DropInterfaceDown
	DropNoRoute
	DropCorrupted
	DropExpired
	numDropReasons
)

var dropReasonNames = [numDropReasons]string{
	"queue-full",
	"interface-down",
	"no-route",
	"corrupted",
	"expired",
}

func (r DropReason) String() string {
	if r < 0 || r >= numDropReasons {
		return fmt.Sprintf("drop-%d", int(r))
	}

	return dropReasonNames[r]
}

// Packet is a datagram crossing the network.
type Packet struct {
	ID     uint64
	Key    flow.Key
	Size   int
	SentAt timing.VTimeInSec
	Hops   int
}

// Stats counts what happened to packets.
type Stats struct {
	Sent      uint64
	Delivered uint64
	Forwarded uint64
	Dropped   [numDropReasons]uint64
}

// TotalDropped sums the drops of every reason.
func (s Stats) TotalDropped() uint64 {
	var total uint64
	for _, d := range s.Dropped {
		total += d
	}

	return total
}
