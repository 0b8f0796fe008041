// Package flow classifies packets into unidirectional flows and derives
// per-flow performance summaries from accumulated counters.
package flow

import (
	"fmt"
	"net/netip"
	"strings"
)

// Protocol is the IP protocol number carried by a flow.
type Protocol uint8

// Protocols seen in the experiments.
const (
	TCP Protocol = 6
	UDP Protocol = 17
)

func (p Protocol) String() string {
	switch p {
	case TCP:
		return "TCP"
	case UDP:
		return "UDP"
	default:
		return fmt.Sprintf("proto-%d", uint8(p))
	}
}

// ParseProtocol accepts "udp" and "tcp" in any case. Empty means UDP.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(s) {
	case "udp", "":
		return UDP, nil
	case "tcp":
		return TCP, nil
	default:
		return 0, fmt.Errorf("unknown protocol %q", s)
	}
}

// Key is the five-tuple that identifies a unidirectional flow.
type Key struct {
	Src      netip.Addr
	Dst      netip.Addr
	Protocol Protocol
	SrcPort  uint16
	DstPort  uint16
}

// MakeKey builds a key from two socket addresses.
func MakeKey(proto Protocol, src, dst netip.AddrPort) Key {
	return Key{
		Src:      src.Addr(),
		Dst:      dst.Addr(),
		Protocol: proto,
		SrcPort:  src.Port(),
		DstPort:  dst.Port(),
	}
}

// Reverse returns the key of the opposite direction.
func (k Key) Reverse() Key {
	return Key{
		Src:      k.Dst,
		Dst:      k.Src,
		Protocol: k.Protocol,
		SrcPort:  k.DstPort,
		DstPort:  k.SrcPort,
	}
}

func (k Key) String() string {
	return fmt.Sprintf("%s %s -> %s",
		k.Protocol,
		netip.AddrPortFrom(k.Src, k.SrcPort),
		netip.AddrPortFrom(k.Dst, k.DstPort))
}

// ID numbers flows in the order they were first observed, starting at 1.
type ID uint32
