// Package netrange classifies network strings and computes their sizes.
//
// A network string is one of: an IPv4 CIDR ("10.0.0.0/24"), an IPv6 CIDR
// ("2001:db8::/64"), a bare IPv4 address or a bare IPv6 address. Counts are
// returned as *big.Int because an IPv6 /0 holds 2^128 addresses.
package netrange

import (
	"math/big"
	"net/netip"
	"strconv"
	"strings"

	"github.com/exploopio/lakesync/pkg/errors"
	"github.com/exploopio/lakesync/pkg/model"
)

// Kind is the shape of a network string.
type Kind int

const (
	KindInvalid Kind = iota
	KindIPv4CIDR
	KindIPv6CIDR
	KindIPv4
	KindIPv6
)

func (k Kind) String() string {
	switch k {
	case KindIPv4CIDR:
		return "ipv4_cidr"
	case KindIPv6CIDR:
		return "ipv6_cidr"
	case KindIPv4:
		return "ipv4"
	case KindIPv6:
		return "ipv6"
	default:
		return "invalid"
	}
}

// IsCIDR reports whether the kind carries a prefix length.
func (k Kind) IsCIDR() bool {
	return k == KindIPv4CIDR || k == KindIPv6CIDR
}

// Network is a parsed network string.
type Network struct {
	Input string
	Kind  Kind
	Addr  netip.Addr
	Bits  int // prefix length; full width for bare addresses
	Start netip.Addr
	End   netip.Addr
}

// Parse classifies input. Inputs containing ':' are treated as IPv6,
// everything else as IPv4. Host bits in a CIDR are accepted and masked off
// for Start.
func Parse(input string) (Network, error) {
	const op = "netrange.Parse"

	s := strings.TrimSpace(input)
	if s == "" {
		return Network{}, errors.E(errors.KindParse, op, "empty network string")
	}

	want6 := strings.Contains(s, ":")
	addrPart, prefixPart, hasPrefix := strings.Cut(s, "/")

	addr, err := netip.ParseAddr(addrPart)
	if err != nil {
		return Network{}, errors.E(errors.KindParse, op, "invalid address "+strconv.Quote(input))
	}
	if want6 != addr.Is6() {
		return Network{}, errors.E(errors.KindParse, op, "address family mismatch in "+strconv.Quote(input))
	}
	addr = addr.WithZone("")

	width := addr.BitLen()
	n := Network{Input: input, Addr: addr, Bits: width}

	if !hasPrefix {
		n.Kind = KindIPv4
		if want6 {
			n.Kind = KindIPv6
		}
		n.Start, n.End = addr, addr
		return n, nil
	}

	bits, ok := parsePrefixLen(prefixPart, width)
	if !ok {
		return Network{}, errors.E(errors.KindParse, op, "invalid prefix length in "+strconv.Quote(input))
	}

	prefix := netip.PrefixFrom(addr, bits).Masked()
	n.Kind = KindIPv4CIDR
	if want6 {
		n.Kind = KindIPv6CIDR
	}
	n.Bits = bits
	n.Start = prefix.Addr()
	n.End = lastAddr(prefix)
	return n, nil
}

// parsePrefixLen accepts only plain decimal digits in [0, width].
func parsePrefixLen(s string, width int) (int, bool) {
	if s == "" || len(s) > 3 {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	bits, err := strconv.Atoi(s)
	if err != nil || bits > width {
		return 0, false
	}
	return bits, true
}

// lastAddr returns the highest address in a masked prefix.
func lastAddr(p netip.Prefix) netip.Addr {
	a := p.Addr()
	if a.Is4() {
		b := a.As4()
		setHostBits(b[:], p.Bits())
		return netip.AddrFrom4(b)
	}
	b := a.As16()
	setHostBits(b[:], p.Bits())
	return netip.AddrFrom16(b)
}

func setHostBits(b []byte, bits int) {
	for i := range b {
		switch {
		case bits >= 8:
			bits -= 8
		case bits > 0:
			b[i] |= 0xff >> bits
			bits = 0
		default:
			b[i] = 0xff
		}
	}
}

// Size returns the number of addresses the network counts for.
//
// IPv4 CIDRs exclude the network and broadcast addresses: /24 → 254.
// A /32 counts as a single host and a /31 as zero. IPv6 CIDRs count every
// address. Bare addresses count as one.
func (n Network) Size() *big.Int {
	switch n.Kind {
	case KindIPv4, KindIPv6:
		return big.NewInt(1)
	case KindIPv4CIDR:
		switch n.Bits {
		case 32:
			return big.NewInt(1)
		case 31:
			return big.NewInt(0)
		}
		size := new(big.Int).Lsh(big.NewInt(1), uint(32-n.Bits))
		return size.Sub(size, big.NewInt(2))
	case KindIPv6CIDR:
		return new(big.Int).Lsh(big.NewInt(1), uint(128-n.Bits))
	default:
		return big.NewInt(0)
	}
}

// AddressCount returns the address count of input, or 0 when input is not
// a valid network string. It never panics.
func AddressCount(input string) *big.Int {
	n, err := Parse(input)
	if err != nil {
		return big.NewInt(0)
	}
	return n.Size()
}

// OrganizationAssetTotal sums AddressCount over every non-null network.
func OrganizationAssetTotal(cidrs []model.Cidr) *big.Int {
	total := new(big.Int)
	for _, c := range cidrs {
		if c.Network == nil {
			continue
		}
		total.Add(total, AddressCount(*c.Network))
	}
	return total
}
