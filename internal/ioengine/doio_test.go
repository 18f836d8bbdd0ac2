package ioengine

import (
	"testing"

	"golang.org/x/sys/unix"
)

func newBareSocket(typ SockType) *Socket {
	return &Socket{typ: typ}
}

func TestClassifyRecvErrnoSoft(t *testing.T) {
	s := newBareSocket(TypeTCP)

	oc, result, _ := classifyRecvErrno(s, unix.EAGAIN)
	if oc != outSoft || result != Success {
		t.Fatalf("EAGAIN classified as (%v, %v), want (outSoft, Success)", oc, result)
	}
}

func TestClassifyRecvErrnoLatchesOnTCP(t *testing.T) {
	s := newBareSocket(TypeTCP)

	oc, result, _ := classifyRecvErrno(s, unix.ECONNREFUSED)
	if oc != outHard || result != ConnRefused {
		t.Fatalf("ECONNREFUSED classified as (%v, %v), want (outHard, ConnRefused)", oc, result)
	}

	if got := s.latchedResult(DirRecv); got != ConnRefused {
		t.Fatalf("latchedResult(DirRecv) = %v, want ConnRefused", got)
	}

	// A second, different hard error must not overwrite the first latch.
	_, _, _ = classifyRecvErrno(s, unix.ENETUNREACH)
	if got := s.latchedResult(DirRecv); got != ConnRefused {
		t.Fatalf("latch overwritten: latchedResult(DirRecv) = %v, want ConnRefused to stick", got)
	}
}

func TestClassifyRecvErrnoUnconnectedUDPIsSoft(t *testing.T) {
	s := newBareSocket(TypeUDP)
	s.connected = false

	oc, result, _ := classifyRecvErrno(s, unix.ECONNRESET)
	if oc != outSoft || result != Success {
		t.Fatalf("unconnected UDP ECONNRESET classified as (%v, %v), want (outSoft, Success)", oc, result)
	}
}

func TestClassifyRecvErrnoConnectedUDPIsHard(t *testing.T) {
	s := newBareSocket(TypeUDP)
	s.connected = true

	oc, _, _ := classifyRecvErrno(s, unix.ECONNRESET)
	if oc != outHard {
		t.Fatalf("connected UDP ECONNRESET classified as %v, want outHard", oc)
	}
}

func TestClassifySendErrnoNoBufsDoesNotLatch(t *testing.T) {
	s := newBareSocket(TypeTCP)

	oc, result, _ := classifySendErrno(s, unix.ENOBUFS)
	if oc != outHard || result != NoResources {
		t.Fatalf("ENOBUFS classified as (%v, %v), want (outHard, NoResources)", oc, result)
	}

	if got := s.latchedResult(DirSend); got != Success {
		t.Fatalf("ENOBUFS must not latch, latchedResult(DirSend) = %v", got)
	}
}

func TestHardConnErrorOnlyLatchesTCP(t *testing.T) {
	udp := newBareSocket(TypeUDP)

	oc, result, _ := hardConnError(udp, DirRecv, ConnRefused)
	if oc != outHard || result != ConnRefused {
		t.Fatalf("hardConnError = (%v, %v), want (outHard, ConnRefused)", oc, result)
	}

	if got := udp.latchedResult(DirRecv); got != Success {
		t.Fatalf("UDP must not latch: latchedResult(DirRecv) = %v", got)
	}
}

func TestDoioRecvMarkCompletesImmediately(t *testing.T) {
	s := newBareSocket(TypeUDP)
	req := &Request{Kind: KindMark}

	oc, result, n := doioRecv(s, req)
	if oc != outSuccess || result != Success || n != 0 {
		t.Fatalf("mark recv = (%v, %v, %d), want (outSuccess, Success, 0)", oc, result, n)
	}
}

func TestDoioSendMarkCompletesImmediately(t *testing.T) {
	s := newBareSocket(TypeUDP)
	req := &Request{Kind: KindMark}

	oc, result, n := doioSend(s, req)
	if oc != outSuccess || result != Success || n != 0 {
		t.Fatalf("mark send = (%v, %v, %d), want (outSuccess, Success, 0)", oc, result, n)
	}
}
