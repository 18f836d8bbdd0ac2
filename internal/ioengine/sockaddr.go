package ioengine

import (
	"net"

	"golang.org/x/sys/unix"
)

// Family identifies the address family of a SockAddr.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyInet
	FamilyInet6
)

// SockAddr is the engine's address abstraction: an opaque sockaddr
// carrying family, raw bytes, and length, per spec.md §1. It is the type
// stored on a Socket's peer address field and attached to per-datagram
// UDP requests.
type SockAddr struct {
	family Family
	raw    unix.Sockaddr
}

// Family reports the address family.
func (a *SockAddr) Family() Family {
	if a == nil {
		return FamilyUnknown
	}

	return a.family
}

// Raw returns the underlying unix.Sockaddr for use in bind/connect/
// sendmsg/recvmsg calls.
func (a *SockAddr) Raw() unix.Sockaddr {
	if a == nil {
		return nil
	}

	return a.raw
}

// NetAddr converts the SockAddr into a net.Addr for display and for
// handing to callers via completion events (spec.md §4.3 getpeername).
func (a *SockAddr) NetAddr(network string) net.Addr {
	if a == nil || a.raw == nil {
		return nil
	}

	switch sa := a.raw.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, net.IPv4len)
		copy(ip, sa.Addr[:])

		return addrFor(network, ip, sa.Port)
	case *unix.SockaddrInet6:
		ip := make(net.IP, net.IPv6len)
		copy(ip, sa.Addr[:])

		return addrFor(network, ip, sa.Port)
	default:
		return nil
	}
}

func addrFor(network string, ip net.IP, port int) net.Addr {
	switch network {
	case "udp":
		return &net.UDPAddr{IP: ip, Port: port}
	default:
		return &net.TCPAddr{IP: ip, Port: port}
	}
}

// SockAddrFromNetAddr builds a SockAddr from a net.Addr (UDPAddr/TCPAddr),
// the direction the public API takes addresses in from callers of
// connect/sendto/bind.
func SockAddrFromNetAddr(addr net.Addr) (*SockAddr, error) {
	var ip net.IP

	var port int

	switch a := addr.(type) {
	case *net.UDPAddr:
		ip, port = a.IP, a.Port
	case *net.TCPAddr:
		ip, port = a.IP, a.Port
	default:
		return nil, ErrEmptyRequest
	}

	if v4 := ip.To4(); v4 != nil {
		var raw [4]byte
		copy(raw[:], v4)

		return &SockAddr{family: FamilyInet, raw: &unix.SockaddrInet4{Port: port, Addr: raw}}, nil
	}

	var raw [16]byte

	v6 := ip.To16()
	if v6 == nil {
		return nil, ErrEmptyRequest
	}

	copy(raw[:], v6)

	return &SockAddr{family: FamilyInet6, raw: &unix.SockaddrInet6{Port: port, Addr: raw}}, nil
}

// sockAddrFromRaw wraps a unix.Sockaddr returned by Accept/Getpeername.
func sockAddrFromRaw(raw unix.Sockaddr) *SockAddr {
	if raw == nil {
		return nil
	}

	switch raw.(type) {
	case *unix.SockaddrInet4:
		return &SockAddr{family: FamilyInet, raw: raw}
	case *unix.SockaddrInet6:
		return &SockAddr{family: FamilyInet6, raw: raw}
	default:
		return &SockAddr{family: FamilyUnknown, raw: raw}
	}
}
