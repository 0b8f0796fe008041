package timing

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DataRate defines a transmission rate in bits per second.
type DataRate float64

// Defines the unit of data rate
const (
	BitPerSecond DataRate = 1
	Kbps         DataRate = 1e3
	Mbps         DataRate = 1e6
	Gbps         DataRate = 1e9
)

// ErrZeroRate is returned when a data rate is zero, negative or not finite.
var ErrZeroRate = errors.New("timing: data rate must be positive")

// Validate returns an error if the rate cannot be used to pace packets.
func (r DataRate) Validate() error {
	if r <= 0 || math.IsNaN(float64(r)) || math.IsInf(float64(r), 0) {
		return fmt.Errorf("%w: %v", ErrZeroRate, float64(r))
	}

	return nil
}

// TransmissionTime returns the time needed to put the given number of bytes
// on the wire. The rate must be valid.
func (r DataRate) TransmissionTime(bytes int) VTimeInSec {
	if r <= 0 {
		panic("data rate must be positive")
	}

	return VTimeInSec(float64(bytes) * 8 / float64(r))
}

// String prints the rate with the largest unit that keeps it above 1.
func (r DataRate) String() string {
	switch {
	case r >= Gbps:
		return strconv.FormatFloat(float64(r/Gbps), 'g', -1, 64) + "Gbps"
	case r >= Mbps:
		return strconv.FormatFloat(float64(r/Mbps), 'g', -1, 64) + "Mbps"
	case r >= Kbps:
		return strconv.FormatFloat(float64(r/Kbps), 'g', -1, 64) + "Kbps"
	default:
		return strconv.FormatFloat(float64(r), 'g', -1, 64) + "bps"
	}
}

// Bit units use a lower-case b, byte units an upper-case B.
var rateUnits = map[string]DataRate{
	"":     BitPerSecond,
	"bps":  BitPerSecond,
	"b/s":  BitPerSecond,
	"Bps":  8,
	"B/s":  8,
	"kbps": Kbps,
	"Kbps": Kbps,
	"kb/s": Kbps,
	"Kb/s": Kbps,
	"kBps": 8 * Kbps,
	"KBps": 8 * Kbps,
	"kB/s": 8 * Kbps,
	"KB/s": 8 * Kbps,
	"Mbps": Mbps,
	"Mb/s": Mbps,
	"MBps": 8 * Mbps,
	"MB/s": 8 * Mbps,
	"Gbps": Gbps,
	"Gb/s": Gbps,
	"GBps": 8 * Gbps,
	"GB/s": 8 * Gbps,
}

// ParseDataRate parses strings such as "5Mbps", "14kb/s" or "1000000".
func ParseDataRate(s string) (DataRate, error) {
	s = strings.TrimSpace(s)

	split := strings.IndexFunc(s, func(r rune) bool {
		return !(r >= '0' && r <= '9') && r != '.' && r != 'e' && r != '-' &&
			r != '+'
	})
	if split < 0 {
		split = len(s)
	}

	value, err := strconv.ParseFloat(s[:split], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid data rate %q: %w", s, err)
	}

	unit, found := rateUnits[strings.TrimSpace(s[split:])]
	if !found {
		return 0, fmt.Errorf("invalid data rate %q: unknown unit", s)
	}

	rate := DataRate(value) * unit
	if err := rate.Validate(); err != nil {
		return 0, fmt.Errorf("invalid data rate %q: %w", s, err)
	}

	return rate, nil
}

// ParseTime parses a duration such as "2ms", "1.5s" or "10us" into seconds.
// A bare number is taken as seconds.
func ParseTime(s string) (VTimeInSec, error) {
	s = strings.TrimSpace(s)

	if v, err := strconv.ParseFloat(s, 64); err == nil {
		if v < 0 || !isFinite(v) {
			return 0, fmt.Errorf("invalid time %q", s)
		}

		return v, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", s, err)
	}

	if d < 0 {
		return 0, fmt.Errorf("invalid time %q: negative", s)
	}

	return d.Seconds(), nil
}
