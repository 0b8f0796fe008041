package topology

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/containernetworking/plugins/pkg/ip"
)

// Errors returned when assigning addresses.
var (
	ErrInvalidScope    = errors.New("invalid address scope")
	ErrAddressInUse    = errors.New("address already in use")
	ErrScopeExhausted  = errors.New("address scope exhausted")
	ErrAlreadyAssigned = errors.New("interface already has an address")
)

// scope hands out the host addresses of one prefix in increasing order.
type scope struct {
	prefix netip.Prefix
	next   netip.Addr
}

func newScope(prefix netip.Prefix) *scope {
	return &scope{
		prefix: prefix,
		next:   nextAddr(prefix.Addr()),
	}
}

// peek returns the n-th next host address without consuming it.
func (s *scope) peek(n int) (netip.Addr, error) {
	addr := s.next
	for i := 0; i < n; i++ {
		addr = nextAddr(addr)
	}

	if !addr.IsValid() || !s.prefix.Contains(addr) || addr == broadcast(s.prefix) {
		return netip.Addr{}, fmt.Errorf("%w: %s", ErrScopeExhausted, s.prefix)
	}

	return addr, nil
}

func nextAddr(a netip.Addr) netip.Addr {
	n := ip.NextIP(net.IP(a.AsSlice()))
	if n == nil {
		return netip.Addr{}
	}

	next, ok := netip.AddrFromSlice(n)
	if !ok {
		return netip.Addr{}
	}

	return next.Unmap()
}

func broadcast(p netip.Prefix) netip.Addr {
	b := p.Masked().Addr().As4()
	v := binary.BigEndian.Uint32(b[:]) | (^uint32(0) >> p.Bits())
	binary.BigEndian.PutUint32(b[:], v)

	return netip.AddrFrom4(b)
}

// ParseScope builds an IPv4 prefix from a network base and a dotted mask,
// for example "10.1.1.0" and "255.255.255.0".
func ParseScope(base, mask string) (netip.Prefix, error) {
	addr, err := netip.ParseAddr(base)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("%w: base %q", ErrInvalidScope, base)
	}

	m, err := netip.ParseAddr(mask)
	if err != nil || !addr.Is4() || !m.Is4() {
		return netip.Prefix{}, fmt.Errorf("%w: %s/%s", ErrInvalidScope, base, mask)
	}

	ones, bits := net.IPMask(m.AsSlice()).Size()
	if bits == 0 || ones > 30 {
		return netip.Prefix{}, fmt.Errorf("%w: mask %s", ErrInvalidScope, mask)
	}

	return netip.PrefixFrom(addr, ones).Masked(), nil
}

// AssignAddresses gives both interfaces of a link the next free host
// addresses of the base/mask scope. Within one scope no address is handed out
// twice. Network and broadcast addresses are never used.
func (t *Topology) AssignAddresses(link LinkID, base, mask string) error {
	prefix, err := ParseScope(base, mask)
	if err != nil {
		return err
	}

	return t.AssignPrefix(link, prefix)
}

// AssignPrefix is AssignAddresses with a parsed scope.
func (t *Topology) AssignPrefix(link LinkID, prefix netip.Prefix) error {
	l, err := t.Link(link)
	if err != nil {
		return err
	}

	if !prefix.IsValid() || !prefix.Addr().Is4() || prefix.Bits() > 30 {
		return fmt.Errorf("%w: %s", ErrInvalidScope, prefix)
	}

	prefix = prefix.Masked()

	var ends [2]*Interface
	for k, ref := range l.Ends {
		ends[k], _ = t.Interface(ref)
		if ends[k].Prefix.IsValid() {
			return fmt.Errorf("%w: %s has %s",
				ErrAlreadyAssigned, ref, ends[k].Prefix)
		}
	}

	s, found := t.scopes[prefix]
	if !found {
		s = newScope(prefix)
		t.scopes[prefix] = s
	}

	var addrs [2]netip.Addr
	for k := range addrs {
		addrs[k], err = s.peek(k)
		if err != nil {
			return err
		}

		if holder, taken := t.byAddr[addrs[k]]; taken {
			return fmt.Errorf("%w: %s held by %s",
				ErrAddressInUse, addrs[k], holder)
		}
	}

	for k, i := range ends {
		i.Prefix = netip.PrefixFrom(addrs[k], prefix.Bits())
		t.byAddr[addrs[k]] = i.Ref()
	}

	s.next = nextAddr(addrs[1])

	return nil
}

// AddressHelper assigns addresses link by link from a current scope and can
// step to the next subnet of the same size.
type AddressHelper struct {
	topo   *Topology
	prefix netip.Prefix
}

// NewAddressHelper creates a helper that starts at the base/mask scope.
func NewAddressHelper(
	topo *Topology,
	base, mask string,
) (*AddressHelper, error) {
	prefix, err := ParseScope(base, mask)
	if err != nil {
		return nil, err
	}

	return &AddressHelper{topo: topo, prefix: prefix}, nil
}

// Scope returns the current scope.
func (h *AddressHelper) Scope() netip.Prefix {
	return h.prefix
}

// Assign gives addresses from the current scope to the links, in order.
func (h *AddressHelper) Assign(links ...LinkID) error {
	for _, l := range links {
		if err := h.topo.AssignPrefix(l, h.prefix); err != nil {
			return err
		}
	}

	return nil
}

// NewNetwork moves to the next subnet of the same size, for example from
// 10.1.1.0/24 to 10.1.2.0/24.
func (h *AddressHelper) NewNetwork() error {
	next := nextAddr(broadcast(h.prefix))
	if !next.IsValid() || !next.Is4() {
		return fmt.Errorf("%w: no subnet after %s", ErrScopeExhausted, h.prefix)
	}

	h.prefix = netip.PrefixFrom(next, h.prefix.Bits())

	return nil
}
