package scenario

import (
	"fmt"

	"github.com/sarchlab/netexp/network/topology"
	"github.com/sarchlab/netexp/sim/timing"
	"gopkg.in/yaml.v3"
)

// Duration is a time in seconds written as "2ms", "1.5s" or a bare number of
// seconds.
type Duration timing.VTimeInSec

// Seconds returns the duration in seconds.
func (d Duration) Seconds() timing.VTimeInSec {
	return timing.VTimeInSec(d)
}

// UnmarshalYAML parses a duration node.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	t, err := timing.ParseTime(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}

	*d = Duration(t)

	return nil
}

// MarshalYAML writes the duration as seconds.
func (d Duration) MarshalYAML() (any, error) {
	return float64(d), nil
}

// Rate is a data rate written as "5Mbps", "14kb/s" or a bare number of bits
// per second.
type Rate timing.DataRate

// DataRate returns the rate in bits per second.
func (r Rate) DataRate() timing.DataRate {
	return timing.DataRate(r)
}

// UnmarshalYAML parses a rate node.
func (r *Rate) UnmarshalYAML(value *yaml.Node) error {
	rate, err := timing.ParseDataRate(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}

	*r = Rate(rate)

	return nil
}

// MarshalYAML writes the rate in its short form.
func (r Rate) MarshalYAML() (any, error) {
	return timing.DataRate(r).String(), nil
}

// QueueSize is a queue capacity in packets written as "100p" or 100.
type QueueSize int

// UnmarshalYAML parses a queue size node.
func (q *QueueSize) UnmarshalYAML(value *yaml.Node) error {
	n, err := topology.ParseQueueSize(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}

	*q = QueueSize(n)

	return nil
}

// MarshalYAML writes the queue size with its unit.
func (q QueueSize) MarshalYAML() (any, error) {
	return fmt.Sprintf("%dp", int(q)), nil
}
