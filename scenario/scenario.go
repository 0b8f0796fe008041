// Package scenario reads experiment descriptions from YAML files.
//
// A scenario names a topology shape, the sinks and generators to install, the
// link mutations to apply and where to send the results. Values that carry
// units (times, rates, queue sizes) are written the usual way, for example
// "2ms", "5Mbps" and "100p".
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/netexp/network/topology"
	"github.com/sarchlab/netexp/sim/timing"
	"github.com/sarchlab/netexp/traffic"
	"gopkg.in/yaml.v3"
)

// ErrInvalidScenario wraps every problem found in a scenario.
var ErrInvalidScenario = errors.New("invalid scenario")

// DefaultMaxDelay is how long a packet may stay in flight before it is counted
// as lost at the end of a run.
const DefaultMaxDelay = 10.0

// Topology kinds.
const (
	KindStar   = "star"
	KindChain  = "chain"
	KindCustom = "custom"
)

// Generator kinds.
const (
	KindPaced = "paced"
	KindOnOff = "onoff"
)

// Mutation kinds.
const (
	KindCapacity  = "capacity"
	KindInterface = "interface"
	KindLink      = "link"
)

// Scenario is a complete experiment description.
type Scenario struct {
	Name     string   `yaml:"name"`
	Stop     Duration `yaml:"stop"`
	Seed     string   `yaml:"seed,omitempty"`
	MaxDelay Duration `yaml:"maxDelay,omitempty"`

	Topology   Topology    `yaml:"topology"`
	Sinks      []Sink      `yaml:"sinks,omitempty"`
	Generators []Generator `yaml:"generators,omitempty"`
	Mutations  []Mutation  `yaml:"mutations,omitempty"`
	Output     Output      `yaml:"output,omitempty"`
}

// Link holds link attributes. Unset attributes fall back to the defaults.
type Link struct {
	Capacity  *Rate      `yaml:"capacity,omitempty"`
	Delay     *Duration  `yaml:"delay,omitempty"`
	Queue     *QueueSize `yaml:"queue,omitempty"`
	ErrorRate *float64   `yaml:"errorRate,omitempty"`
}

// Spec overlays the set attributes on base.
func (l Link) Spec(base topology.LinkSpec) topology.LinkSpec {
	if l.Capacity != nil {
		base.Capacity = l.Capacity.DataRate()
	}

	if l.Delay != nil {
		base.Delay = l.Delay.Seconds()
	}

	if l.Queue != nil {
		base.QueueCapacity = int(*l.Queue)
	}

	if l.ErrorRate != nil {
		base.ErrorRate = *l.ErrorRate
	}

	return base
}

// Addresses selects the scope addresses are drawn from.
type Addresses struct {
	Base string `yaml:"base,omitempty"`
	Mask string `yaml:"mask,omitempty"`

	// SubnetPerLink gives every link its own network inside the scope.
	SubnetPerLink bool `yaml:"subnetPerLink,omitempty"`
}

// Edge is a link of a custom topology.
type Edge struct {
	A    string `yaml:"a"`
	B    string `yaml:"b"`
	Link `yaml:",inline"`
}

// Topology describes the shape of the network. Star and chain nodes are named
// n0, n1 and so on; the hub of a star is n0.
type Topology struct {
	Kind   string `yaml:"kind"`
	Spokes int    `yaml:"spokes,omitempty"`
	Length int    `yaml:"length,omitempty"`

	// Nodes and Links describe a custom topology.
	Nodes []string `yaml:"nodes,omitempty"`
	Links []Edge   `yaml:"links,omitempty"`

	Link      Link      `yaml:"link,omitempty"`
	Addresses Addresses `yaml:"addresses,omitempty"`
}

// NodeNames returns the names of the nodes the topology creates, in creation
// order.
func (t Topology) NodeNames() []string {
	var n int

	switch t.Kind {
	case KindStar:
		n = t.Spokes + 1
	case KindChain:
		n = t.Length
	case KindCustom:
		return append([]string(nil), t.Nodes...)
	}

	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		names = append(names, fmt.Sprintf("n%d", i))
	}

	return names
}

// Target is where a generator sends to. Either Address is set, or Node names
// the receiving node. When Node is used, Interface picks the interface whose
// address is used (1 when unset); Facing picks the interface on the link
// toward the sender instead.
type Target struct {
	Address   string `yaml:"address,omitempty"`
	Node      string `yaml:"node,omitempty"`
	Interface int    `yaml:"interface,omitempty"`
	Facing    bool   `yaml:"facing,omitempty"`
	Port      uint16 `yaml:"port"`
}

// Sink is a packet sink bound to a port of a node.
type Sink struct {
	Node     string    `yaml:"node"`
	Port     uint16    `yaml:"port"`
	Protocol string    `yaml:"protocol,omitempty"`
	Start    Duration  `yaml:"start,omitempty"`
	Stop     *Duration `yaml:"stop,omitempty"`
}

// Generator installs one traffic source on every node listed in From.
type Generator struct {
	Name     string   `yaml:"name,omitempty"`
	Kind     string   `yaml:"kind,omitempty"`
	From     []string `yaml:"from"`
	To       Target   `yaml:"to"`
	Protocol string   `yaml:"protocol,omitempty"`

	// Rate is the sending rate. Interval, when set instead, sends one packet
	// of Size bytes per interval.
	Rate     Rate      `yaml:"rate,omitempty"`
	Interval *Duration `yaml:"interval,omitempty"`
	Size     int       `yaml:"size,omitempty"`

	// SizeMin and SizeMax draw packet sizes uniformly when both are set.
	SizeMin int `yaml:"sizeMin,omitempty"`
	SizeMax int `yaml:"sizeMax,omitempty"`

	Packets uint64 `yaml:"packets,omitempty"`
	Bytes   uint64 `yaml:"bytes,omitempty"`

	Start Duration  `yaml:"start,omitempty"`
	Stop  *Duration `yaml:"stop,omitempty"`

	OnTime  *Duration `yaml:"onTime,omitempty"`
	OffTime *Duration `yaml:"offTime,omitempty"`
}

// DataRate returns the sending rate of the generator.
func (g Generator) DataRate() timing.DataRate {
	if g.Rate > 0 || g.Interval == nil {
		return g.Rate.DataRate()
	}

	return traffic.RateForInterval(g.Size, g.Interval.Seconds())
}

// Mutation changes a link at time At. Capacity mutations name a link and a
// capacity. Interface mutations name nodes and an interface index (1 when
// unset). Link mutations bring both ends of a link up or down.
type Mutation struct {
	At   Duration `yaml:"at"`
	Kind string   `yaml:"kind"`

	Link    *int     `yaml:"link,omitempty"`
	Between []string `yaml:"between,omitempty"`

	Nodes     []string `yaml:"nodes,omitempty"`
	Interface int      `yaml:"interface,omitempty"`

	Capacity *Rate `yaml:"capacity,omitempty"`
	Up       *bool `yaml:"up,omitempty"`
}

// Output selects the report sinks of a run.
type Output struct {
	CSV         string `yaml:"csv,omitempty"`
	SQLite      string `yaml:"sqlite,omitempty"`
	Monitor     bool   `yaml:"monitor,omitempty"`
	MonitorPort int    `yaml:"monitorPort,omitempty"`
}

// Default returns a scenario with every optional field at its default.
func Default() Scenario {
	return Scenario{
		Seed:     "netexp",
		MaxDelay: Duration(DefaultMaxDelay),
		Topology: Topology{
			Addresses: Addresses{
				Base: topology.DefaultBase,
				Mask: topology.DefaultMask,
			},
		},
	}
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return s, nil
}

// Parse decodes a scenario. Unknown fields are rejected.
func Parse(data []byte) (*Scenario, error) {
	s := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidScenario)
		}

		return nil, fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}

	if s.Topology.Addresses.Base == "" {
		s.Topology.Addresses.Base = topology.DefaultBase
	}

	if s.Topology.Addresses.Mask == "" {
		s.Topology.Addresses.Mask = topology.DefaultMask
	}

	return &s, nil
}

// Encode writes the scenario as YAML.
func (s *Scenario) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(s); err != nil {
		return err
	}

	return enc.Close()
}
