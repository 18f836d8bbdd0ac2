package ioengine

import (
	"errors"

	"golang.org/x/sys/unix"
)

// outcome is doio_recv/doio_send's classification, per spec.md §4.2.
type outcome int

const (
	outSoft outcome = iota
	outEOF
	outHard
	outSuccess
)

// doioRecv performs one non-blocking receive using the message builder
// and classifies the result, per spec.md §4.2. It never blocks: a
// would-block condition classifies as outSoft and the caller keeps the
// request queued.
func doioRecv(s *Socket, req *Request) (outcome, Result, int) {
	if req.Kind == KindMark {
		// recvmark/sendmark are pure ordering barriers (spec.md §9
		// supplement): they carry no payload and never touch the socket.
		return outSuccess, Success, 0
	}

	region, control := buildRecv(s, req)
	if len(region) == 0 && req.Region == nil && len(req.List) > 0 {
		// Every buffer in the list is already full; nothing to do. Treat as
		// an immediate, zero-byte success so the request drains.
		return outSuccess, Success, 0
	}

	n, oobn, recvFlags, from, err := unix.Recvmsg(s.fd, region, control, 0)
	if err != nil {
		return classifyRecvErrno(s, err)
	}

	if n == 0 && s.typ == TypeTCP {
		return outEOF, EOF, 0
	}

	// spec.md §8: a UDP datagram larger than the receive region reports
	// MSG_TRUNC with n == the kernel's original datagram length, not the
	// number of bytes actually copied into region — clamp before
	// accounting so request.N and the completion's n match the region's
	// capacity, per the boundary behaviour "n equals the region capacity".
	truncated := s.typ == TypeUDP && recvFlags&unix.MSG_TRUNC != 0
	if truncated && n > len(region) {
		n = len(region)
	}

	applyRecvResult(req, n)
	req.N += n

	if s.typ == TypeUDP {
		if from != nil {
			req.Addr = sockAddrFromRaw(from)
		}

		if oobn > 0 && len(control) >= oobn {
			cc, cerr := crackControlMessages(control[:oobn])
			if cerr == nil {
				req.Attrs |= cc.attrs
				if cc.attrs&AttrPktInfo != 0 {
					req.PktInfo = &cc.pktInfo
				}

				if cc.attrs&AttrTimestamp != 0 {
					req.Attrs |= AttrTimestamp
					req.TSSec = cc.tsSec
					req.TSNsec = cc.tsNsec
				}
			}
		}

		if truncated {
			req.Attrs |= AttrTrunc
		}

		if recvFlags&unix.MSG_CTRUNC != 0 {
			req.Attrs |= AttrCTrunc
		}
	}

	minimum := req.Minimum
	if s.typ == TypeUDP {
		minimum = 1 // spec.md §4.2: "UDP minimum is forced to 1"
	}

	if req.N < minimum {
		return outSoft, Success, n
	}

	return outSuccess, Success, n
}

// doioSend performs one non-blocking send, per spec.md §4.2.
func doioSend(s *Socket, req *Request) (outcome, Result, int) {
	if req.Kind == KindMark {
		return outSuccess, Success, 0
	}

	payload, msg := buildSend(s, req)
	if len(payload) == 0 {
		return outSuccess, Success, 0
	}

	n, err := unix.Sendmsg(s.fd, payload, msg.control, msg.addr, 0)
	if err != nil {
		return classifySendErrno(s, err)
	}

	req.N += n

	if n < len(payload) {
		return outSoft, Success, n // short write: remainder retried
	}

	return outSuccess, Success, n
}

// classifyRecvErrno implements spec.md §4.2's recv error table.
func classifyRecvErrno(s *Socket, err error) (outcome, Result, int) {
	var errno unix.Errno

	if !errors.As(err, &errno) {
		return outHard, Unexpected, 0
	}

	// On an unconnected UDP socket the three connection errors are soft;
	// they surface (unlatched) only once the socket has been connected.
	if s.typ == TypeUDP && !s.connected &&
		(errno == unix.ECONNREFUSED || errno == unix.ENETUNREACH || errno == unix.EHOSTUNREACH) {
		return outSoft, Success, 0
	}

	switch errno {
	case unix.EAGAIN, unix.EWOULDBLOCK, unix.EINTR:
		return outSoft, Success, 0
	case 0:
		// Defensive against buggy kernels reporting a zero errno alongside
		// a syscall failure (spec.md §9 Open Question #1): treat as soft
		// and let the caller retry on the next readiness notification.
		return outSoft, Success, 0
	case unix.ENOBUFS:
		// spec.md §4.2: "ENOBUFS is always reported without latching" for
		// UDP; for TCP it surfaces as NoResources without latching either
		// (latching is reserved for the connection-terminating errors
		// below).
		return outHard, NoResources, 0
	case unix.ECONNREFUSED:
		return hardConnError(s, DirRecv, ConnRefused)
	case unix.ENETUNREACH:
		return hardConnError(s, DirRecv, NetUnreach)
	case unix.EHOSTUNREACH:
		return hardConnError(s, DirRecv, HostUnreach)
	default:
		if s.typ == TypeUDP && !s.connected {
			// Any other errno on an unconnected UDP socket is soft too.
			return outSoft, Success, 0
		}

		return outHard, Unexpected, 0
	}
}

// classifySendErrno implements spec.md §4.2's send error table (no EOF
// path; ENOBUFS is a hard NoResources rather than latched).
func classifySendErrno(s *Socket, err error) (outcome, Result, int) {
	var errno unix.Errno

	if !errors.As(err, &errno) {
		return outHard, Unexpected, 0
	}

	switch errno {
	case unix.EAGAIN, unix.EWOULDBLOCK, unix.EINTR:
		return outSoft, Success, 0
	case 0:
		return outSoft, Success, 0
	case unix.ENOBUFS:
		return outHard, NoResources, 0
	case unix.ECONNREFUSED:
		return hardConnError(s, DirSend, ConnRefused)
	case unix.ENETUNREACH:
		return hardConnError(s, DirSend, NetUnreach)
	case unix.EHOSTUNREACH:
		return hardConnError(s, DirSend, HostUnreach)
	default:
		if s.typ == TypeUDP && !s.connected {
			return outSoft, Success, 0
		}
		// spec.md §9 Open Question #2: use HARD uniformly for the
		// catch-all branch on both paths, per the spec's own recommendation.
		return outHard, Unexpected, 0
	}
}

// hardConnError applies the spec.md §4.2 rule that on TCP these three
// errnos latch the direction's sticky result; on UDP they surface but do
// not latch.
func hardConnError(s *Socket, dir Direction, r Result) (outcome, Result, int) {
	if s.typ == TypeTCP {
		s.latch(dir, r)
	}

	return outHard, r, 0
}
