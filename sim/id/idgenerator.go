// Package id generates identities for runs, packets and other objects that
// need one.
package id

import (
	"strconv"
	"sync/atomic"

	"github.com/rs/xid"
)

// IDGenerator can generate IDs.
type IDGenerator interface {
	Generate() string
}

// Sequence hands out increasing numbers starting from 1. A run owns its own
// sequences so that two runs built from the same input number their objects
// identically.
type Sequence struct {
	next uint64
}

// Next returns the next number of the sequence.
func (s *Sequence) Next() uint64 {
	return atomic.AddUint64(&s.next, 1)
}

// Last returns the most recently returned number, or 0.
func (s *Sequence) Last() uint64 {
	return atomic.LoadUint64(&s.next)
}

// NewIDGenerator returns a deterministic, sequential ID generator.
func NewIDGenerator() IDGenerator {
	return &sequentialIDGenerator{}
}

// NewUniqueIDGenerator returns a generator whose IDs are unique across
// processes. The IDs are not deterministic.
func NewUniqueIDGenerator() IDGenerator {
	return uniqueIDGenerator{}
}

type sequentialIDGenerator struct {
	seq Sequence
}

func (g *sequentialIDGenerator) Generate() string {
	return strconv.FormatUint(g.seq.Next(), 10)
}

type uniqueIDGenerator struct{}

func (uniqueIDGenerator) Generate() string {
	return xid.New().String()
}

// RunID returns a fresh identity for an experiment run.
func RunID() string {
	return xid.New().String()
}
