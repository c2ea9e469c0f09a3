package core

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

// ErrInvalidAddress is returned when an address does not map to a known
// family (anything other than 4 or 16 bytes).
var ErrInvalidAddress = errors.New("invalid endpoint address")

// Family is the network-layer address family of an endpoint.
type Family uint8

// Address families. The zero value is deliberately not a valid family.
const (
	FamilyIPv4 Family = 4
	FamilyIPv6 Family = 6
)

// String returns "ipv4" or "ipv6".
func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	default:
		return "family(" + strconv.Itoa(int(f)) + ")"
	}
}

// AddrLen returns the raw address length for the family, or 0.
func (f Family) AddrLen() int {
	switch f {
	case FamilyIPv4:
		return net.IPv4len
	case FamilyIPv6:
		return net.IPv6len
	default:
		return 0
	}
}

// Endpoint is one side of a traced connection. The family always agrees with
// the address length; use NewEndpoint or ParseEndpoint to build one.
type Endpoint struct {
	family Family
	addr   [16]byte
	port   uint16
}

// NewEndpoint builds an endpoint from raw address bytes. The family is taken
// from the byte length alone: 4 bytes is IPv4, 16 bytes is IPv6 (including
// IPv4-mapped IPv6 addresses).
func NewEndpoint(addr []byte, port uint16) (Endpoint, error) {
	var e Endpoint
	switch len(addr) {
	case net.IPv4len:
		e.family = FamilyIPv4
	case net.IPv6len:
		e.family = FamilyIPv6
	default:
		return Endpoint{}, fmt.Errorf("%w: %d bytes", ErrInvalidAddress, len(addr))
	}
	copy(e.addr[:], addr)
	e.port = port
	return e, nil
}

// ParseEndpoint parses "host:port" where host is a literal IPv4 or IPv6
// address ("[::1]:443" for IPv6). Dotted-quad hosts become IPv4 endpoints.
func ParseEndpoint(s string) (Endpoint, error) {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	addr := ap.Addr()
	if addr.Zone() != "" {
		addr = addr.WithZone("")
	}
	return NewEndpoint(addr.AsSlice(), ap.Port())
}

// Family returns the address family.
func (e Endpoint) Family() Family { return e.family }

// Port returns the port.
func (e Endpoint) Port() uint16 { return e.port }

// Addr returns a copy of the raw address bytes (4 or 16 bytes).
func (e Endpoint) Addr() []byte {
	n := e.family.AddrLen()
	out := make([]byte, n)
	copy(out, e.addr[:n])
	return out
}

// IP returns the address as a net.IP.
func (e Endpoint) IP() net.IP { return net.IP(e.Addr()) }

// Valid reports whether the endpoint was constructed with a known family.
func (e Endpoint) Valid() bool { return e.family.AddrLen() != 0 }

// String formats the endpoint as host:port.
func (e Endpoint) String() string {
	if !e.Valid() {
		return "invalid"
	}
	return net.JoinHostPort(e.IP().String(), strconv.Itoa(int(e.port)))
}
