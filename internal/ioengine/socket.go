package ioengine

import (
	"sync"

	"golang.org/x/sys/unix"
)

// SockType distinguishes the two socket kinds the engine manages, per
// spec.md §3.
type SockType int

const (
	TypeUDP SockType = iota
	TypeTCP
)

func (t SockType) String() string {
	if t == TypeTCP {
		return "tcp"
	}

	return "udp"
}

// sockState tracks a Socket's lifecycle for the manager's fd table, per
// spec.md §4.6.
type sockState int

const (
	stateManaged sockState = iota
	stateClosePending
	stateClosed
)

// Stats are the supplemented per-socket counters SPEC_FULL.md adds:
// observability the original exposes only via log lines.
type Stats struct {
	RecvCompleted uint64
	SendCompleted uint64
	RecvErrors    uint64
	SendErrors    uint64
	BytesRecv     uint64
	BytesSent     uint64
}

// Socket is the engine's per-descriptor object, per spec.md §3: a FIFO of
// queued recv/send/accept requests, at most one pending connect, sticky
// per-direction latched errors, and a pair of pre-allocated internal
// events the watcher reuses across every readiness notification.
type Socket struct {
	mu sync.Mutex

	fd      int
	typ     SockType
	state   sockState
	mgr     *Manager
	address *SockAddr // local address set by Bind; the peer address for an accepted socket

	listener  bool
	connected bool
	connecting bool

	recvList   requestQueue
	sendList   requestQueue
	acceptList requestQueue
	connectReq *Request // at most one pending connect, per spec.md §3

	recvResult Result // latched sticky recv-direction error (TCP only)
	sendResult Result

	pendingRecv    bool
	pendingSend    bool
	pendingAccept  bool
	pendingConnect bool

	// Pre-allocated, non-purgeable internal events reused across every
	// dispatch, per spec.md §4.5 "the socket never allocates an event on
	// the hot path".
	readableEv *Event
	writableEv *Event

	refs int32

	stats Stats
}

func newSocket(mgr *Manager, fd int, typ SockType) *Socket {
	s := &Socket{
		fd:   fd,
		typ:  typ,
		mgr:  mgr,
		refs: 1,
	}

	s.readableEv = &Event{Kind: internalRecvKind, Sender: s}
	s.readableEv.Action = func(ev *Event) { dispatchReadable(ev.Sender.(*Socket)) }

	s.writableEv = &Event{Kind: internalSendKind, Sender: s}
	s.writableEv.Action = func(ev *Event) { dispatchWritable(ev.Sender.(*Socket)) }

	return s
}

// ref/unref implement the cross-thread reference counting spec.md §3
// requires: the watcher, the dispatcher, and the client task may all hold
// a reference at once; the fd is only closed once every holder has
// released it.
func (s *Socket) ref() {
	s.mu.Lock()
	s.refs++
	s.mu.Unlock()
}

func (s *Socket) unref() bool {
	s.mu.Lock()
	s.refs--
	last := s.refs == 0
	s.mu.Unlock()

	if last {
		s.mgr.forget(s)
		_ = unix.Close(s.fd)
	}

	return last
}

// Attach increments s's reference count and returns s, per spec.md
// §4.3's attach/detach operation: any number of holders may share a
// socket; the fd is only closed once every holder, including the one
// that created or accepted it, has called Detach.
func (s *Socket) Attach() *Socket {
	s.ref()
	return s
}

// Detach releases one reference acquired from Create, Accept, or
// Attach. The last Detach removes s from the manager's fd table and
// poller and closes the fd.
func (s *Socket) Detach() {
	s.unref()
}

// latch applies spec.md §3's sticky-error rule: the first hard error on a
// direction wins and every subsequent operation on that direction fails
// with it until the socket is closed. CANCELED (applied directly by
// Cancel, not through latch) supersedes any previously latched value.
func (s *Socket) latch(dir Direction, r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch dir {
	case DirRecv:
		if s.recvResult == Success {
			s.recvResult = r
		}
	case DirSend:
		if s.sendResult == Success {
			s.sendResult = r
		}
	}
}

// latchedResult returns the sticky error for dir, if any, without
// clearing it: repeated reads all observe the same latch until close.
func (s *Socket) latchedResult(dir Direction) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir == DirRecv {
		return s.recvResult
	}

	return s.sendResult
}

// GetType returns the socket's type, per spec.md §4.3.
func (s *Socket) GetType() SockType { return s.typ }

// GetSockName returns the local address, per spec.md §4.3.
func (s *Socket) GetSockName() (*SockAddr, error) {
	raw, err := unix.Getsockname(s.fd)
	if err != nil {
		return nil, Err(Unexpected, err)
	}

	return sockAddrFromRaw(raw), nil
}

// GetPeerName returns the connected peer's address, per spec.md §4.3.
// Only meaningful once Connect has completed or for an accepted socket.
func (s *Socket) GetPeerName() (*SockAddr, error) {
	raw, err := unix.Getpeername(s.fd)
	if err != nil {
		return nil, Err(Unexpected, err)
	}

	return sockAddrFromRaw(raw), nil
}

// Stats returns a snapshot of the socket's counters.
func (s *Socket) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stats
}

// interestSet reports which of read/write readiness the watcher should
// currently be subscribed to for this socket, per spec.md §4.6's
// "recompute interest whenever a queue transitions empty/non-empty".
func (s *Socket) interestSet() (wantRead, wantWrite bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A direction already dispatched to a worker (pendingRecv/Send/Accept)
	// must drop its poller interest until that dispatch clears it: epoll
	// and kqueue are both level-triggered with no re-arm, so without this
	// guard the same readiness edge would enqueue a second internal_recv/
	// send/accept for the socket while the first is still in flight on
	// another pool worker, racing two syscalls on the same fd (spec.md §9
	// Design Note #4, §5's per-socket FIFO guarantee).
	if s.listener {
		wantRead = !s.pendingAccept && !s.acceptList.empty()
	} else {
		wantRead = !s.pendingRecv && !s.recvList.empty()
	}

	if s.pendingConnect {
		wantWrite = true
	} else {
		wantWrite = !s.pendingSend && !s.sendList.empty()
	}

	return wantRead, wantWrite
}
