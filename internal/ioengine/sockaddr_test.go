package ioengine

import (
	"net"
	"testing"

	"golang.org/x/sys/unix"
)

func TestSockAddrFromNetAddrUDPv4(t *testing.T) {
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5353}

	sa, err := SockAddrFromNetAddr(addr)
	if err != nil {
		t.Fatalf("SockAddrFromNetAddr: %v", err)
	}

	in4, ok := sa.Raw().(*unix.SockaddrInet4)
	if !ok {
		t.Fatalf("Raw() type = %T, want *unix.SockaddrInet4", sa.Raw())
	}

	if in4.Port != 5353 {
		t.Fatalf("Port = %d, want 5353", in4.Port)
	}

	if in4.Addr != [4]byte{127, 0, 0, 1} {
		t.Fatalf("Addr = %v, want 127.0.0.1", in4.Addr)
	}
}

func TestSockAddrRoundTripTCP(t *testing.T) {
	addr := &net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 443}

	sa, err := SockAddrFromNetAddr(addr)
	if err != nil {
		t.Fatalf("SockAddrFromNetAddr: %v", err)
	}

	back := sa.NetAddr("tcp")

	tcpAddr, ok := back.(*net.TCPAddr)
	if !ok {
		t.Fatalf("NetAddr type = %T, want *net.TCPAddr", back)
	}

	if tcpAddr.Port != 443 || !tcpAddr.IP.Equal(net.IPv4(10, 0, 0, 1)) {
		t.Fatalf("round trip = %v, want 10.0.0.1:443", tcpAddr)
	}
}

func TestSockAddrFromNetAddrRejectsUnknownType(t *testing.T) {
	if _, err := SockAddrFromNetAddr(&net.UnixAddr{Name: "/tmp/x"}); err == nil {
		t.Fatal("expected an error for a non-IP net.Addr")
	}
}
