package flow

import (
	"encoding/json"
	"math"
	"strconv"
)

// Metric is a derived value that may be unavailable, for example the average
// delay of a flow that never received a packet. The zero value is
// unavailable.
type Metric struct {
	value float64
	valid bool
}

// Available wraps a defined value. NaN and infinities are not defined values
// and produce an unavailable metric.
func Available(v float64) Metric {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Metric{}
	}

	return Metric{value: v, valid: true}
}

// Unavailable returns the metric that has no value.
func Unavailable() Metric {
	return Metric{}
}

// ratio returns num/den when den is positive and unavailable otherwise.
func ratio(num, den float64) Metric {
	if den <= 0 {
		return Metric{}
	}

	return Available(num / den)
}

// Get returns the value and whether it is available.
func (m Metric) Get() (float64, bool) {
	return m.value, m.valid
}

// Valid tells if the metric has a value.
func (m Metric) Valid() bool {
	return m.valid
}

// Or returns the value, or def when unavailable.
func (m Metric) Or(def float64) float64 {
	if !m.valid {
		return def
	}

	return m.value
}

// Scale multiplies an available value by f.
func (m Metric) Scale(f float64) Metric {
	if !m.valid {
		return m
	}

	return Available(m.value * f)
}

func (m Metric) String() string {
	if !m.valid {
		return "N/A"
	}

	return strconv.FormatFloat(m.value, 'g', -1, 64)
}

// MarshalJSON writes null for an unavailable metric.
func (m Metric) MarshalJSON() ([]byte, error) {
	if !m.valid {
		return []byte("null"), nil
	}

	return json.Marshal(m.value)
}

// UnmarshalJSON reads null as unavailable.
func (m *Metric) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = Metric{}
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	*m = Available(v)

	return nil
}
