package ioengine

import (
	"context"
	"log"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// Manager is the engine's top-level object, per spec.md §4.6: it owns
// the fd table, a single dedicated watcher goroutine multiplexing every
// managed socket over one poller, and the control pipe that lets any
// other goroutine wake the watcher to register a new socket or ask it to
// stop.
type Manager struct {
	mu      sync.Mutex
	sockets map[int]*Socket
	closed  bool
	maxfd   int // observability only; epoll/kqueue are registration-based

	poller poller
	cp     *controlPipe

	dispatcher   TaskDispatcher
	internalTask Task

	logger *log.Logger

	group  *errgroup.Group
	cancel context.CancelFunc
}

// NewManager constructs a Manager and starts its watcher goroutine. The
// caller owns dispatcher's lifecycle; the Manager only Attaches once, for
// its own internal-event task handle, and Detaches it in Shutdown.
func NewManager(dispatcher TaskDispatcher, logger *log.Logger) (*Manager, error) {
	if logger == nil {
		logger = log.Default()
	}

	p, err := newPoller()
	if err != nil {
		return nil, Err(Unexpected, err)
	}

	cp, err := newControlPipe()
	if err != nil {
		_ = p.close()
		return nil, Err(Unexpected, err)
	}

	if err := p.add(cp.r, true, false); err != nil {
		_ = p.close()
		cp.close()
		return nil, Err(Unexpected, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, _ := errgroup.WithContext(ctx)

	m := &Manager{
		sockets: make(map[int]*Socket),
		poller:  p,
		cp:      cp,
		logger:  logger,
		group:   g,
		cancel:  cancel,
	}

	m.internalTask = dispatcher.Attach(m)
	m.dispatcher = dispatcher

	g.Go(func() error {
		m.watchLoop()
		return nil
	})

	return m, nil
}

// Create allocates a non-blocking socket of the given type, per spec.md
// §4.3's Create operation.
func (m *Manager) Create(typ SockType) (*Socket, error) {
	domain := unix.AF_INET6
	sotype := unix.SOCK_DGRAM

	if typ == TypeTCP {
		sotype = unix.SOCK_STREAM
	}

	fd, err := unix.Socket(domain, sotype|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		if err == unix.EMFILE || err == unix.ENFILE {
			return nil, Err(NoResources, err)
		}

		return nil, Err(Unexpected, err)
	}

	// Accept IPv4-mapped connections on the same socket by default; an
	// application that wants a v6-only listener can still set
	// IPV6_V6ONLY itself via SetV6Only before Bind (SPEC_FULL.md's dual
	// stack supplement).
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)

	if typ == TypeUDP {
		// spec.md §4.3: "UDP sockets have SO_TIMESTAMP and IPV6_PKTINFO
		// enabled where supported" — without these the kernel never
		// attaches the ancillary data crackControlMessages parses, so
		// every recvmsg's oobn would be 0 regardless of cmsg.go's logic.
		// Best-effort: a kernel/platform that rejects one of these still
		// gets a working, timestamp/pktinfo-less socket.
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TIMESTAMP, 1)
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_RECVPKTINFO, 1)
	}

	s := newSocket(m, fd, typ)

	m.mu.Lock()
	m.sockets[fd] = s
	if fd > m.maxfd {
		m.maxfd = fd
	}
	m.mu.Unlock()

	if err := m.poller.add(fd, false, false); err != nil {
		m.mu.Lock()
		delete(m.sockets, fd)
		m.mu.Unlock()
		_ = unix.Close(fd)

		return nil, Err(Unexpected, err)
	}

	return s, nil
}

// SetV6Only toggles IPV6_V6ONLY; supplemented per SPEC_FULL.md's dual
// stack control.
func (s *Socket) SetV6Only(v6only bool) error {
	val := 0
	if v6only {
		val = 1
	}

	if err := unix.SetsockoptInt(s.fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, val); err != nil {
		return Err(Unexpected, err)
	}

	return nil
}

// SetReusePort enables SO_REUSEPORT; supplemented per SPEC_FULL.md's
// multi-listener load-spreading feature, opt-in only.
func (s *Socket) SetReusePort(enable bool) error {
	val := 0
	if enable {
		val = 1
	}

	if err := unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, val); err != nil {
		return Err(Unexpected, err)
	}

	return nil
}

// Bind binds s to addr, per spec.md §4.3.
func (m *Manager) Bind(s *Socket, addr net.Addr) error {
	sa, err := SockAddrFromNetAddr(addr)
	if err != nil {
		return Err(AddrNotAvail, err)
	}

	if err := unix.Bind(s.fd, sa.Raw()); err != nil {
		switch err {
		case unix.EADDRINUSE:
			return Err(AddrInUse, err)
		case unix.EADDRNOTAVAIL:
			return Err(AddrNotAvail, err)
		case unix.EACCES:
			return Err(NoPerm, err)
		case unix.EINVAL:
			return Err(Bound, err)
		default:
			return Err(Unexpected, err)
		}
	}

	s.mu.Lock()
	s.address = sa
	s.mu.Unlock()

	return nil
}

// Listen marks s as a listening socket with the given backlog, per
// spec.md §4.3.
func (m *Manager) Listen(s *Socket, backlog int) error {
	if s.typ != TypeTCP {
		return ErrNotListener
	}

	if err := unix.Listen(s.fd, backlog); err != nil {
		return Err(Unexpected, err)
	}

	s.mu.Lock()
	s.listener = true
	s.mu.Unlock()

	return nil
}

// registerAccepted wires a freshly accept()ed child socket into the fd
// table and poller, mirroring Create's registration without a syscall
// socket() call.
func (m *Manager) registerAccepted(s *Socket) {
	m.mu.Lock()
	m.sockets[s.fd] = s
	if s.fd > m.maxfd {
		m.maxfd = s.fd
	}
	m.mu.Unlock()

	_ = m.poller.add(s.fd, false, false)
}

// ManagerStats is the supplemented Manager-level observability snapshot
// SPEC_FULL.md adds alongside per-socket Stats.
type ManagerStats struct {
	NSockets int
	MaxFD    int // highest fd ever registered; never shrunk, per spec.md §9 Open Question #3
}

// Stats returns a snapshot of the Manager's own counters.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return ManagerStats{NSockets: len(m.sockets), MaxFD: m.maxfd}
}

// recomputeInterest reconciles the poller's registration for s with its
// current queue occupancy, per spec.md §4.6. Called after every queue
// mutation (enqueue, drain, cancel).
func (m *Manager) recomputeInterest(s *Socket) {
	wantRead, wantWrite := s.interestSet()

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()

	if closed {
		return
	}

	_ = m.poller.modify(s.fd, wantRead, wantWrite)
}

// forget removes s from the fd table and poller. Called from
// Socket.unref once the last reference (held by the creator, any
// Accept/Attach holder, or an in-flight request) has been released, per
// spec.md §4.3's attach/detach operation: "last detach destroys." Close
// does not call this directly; it cancels outstanding work and releases
// its own reference via Detach like any other holder.
func (m *Manager) forget(s *Socket) {
	m.mu.Lock()
	delete(m.sockets, s.fd)
	m.mu.Unlock()

	_ = m.poller.remove(s.fd)
}

// Close cancels every request queued on s with CANCELED and releases
// the caller's own reference. Unlike a bare Detach, Close always
// cancels outstanding work regardless of how many other holders remain
// attached; the fd itself is only closed once every holder (including
// any additional Attach callers) has released its reference.
func (m *Manager) Close(s *Socket) error {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return nil
	}

	s.state = stateClosed
	s.mu.Unlock()

	m.cancelAll(s, CancelRecv|CancelSend|CancelAccept|CancelConnect)

	s.Detach()

	return nil
}

// Shutdown stops the watcher goroutine and releases the Manager's own
// task-dispatcher handle. It does not close individual sockets; callers
// are expected to have closed every socket they created first.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}

	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.cp.poke()

	done := make(chan error, 1)
	go func() { done <- m.group.Wait() }()

	select {
	case err := <-done:
		m.dispatcher.Detach(m.internalTask)
		_ = m.poller.close()
		m.cp.close()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// watchLoop is the Manager's single dedicated watcher goroutine, per
// spec.md §4.6: the only goroutine that ever calls the poller's wait.
func (m *Manager) watchLoop() {
	events := make([]watchEvent, 0, 64)

	for {
		m.mu.Lock()
		closed := m.closed
		m.mu.Unlock()

		if closed {
			return
		}

		events = events[:0]

		events, err := m.poller.wait(events)
		if err != nil {
			m.logger.Printf("ioengine: poller wait: %v", err)
			continue
		}

		for _, we := range events {
			if we.fd == m.cp.r {
				m.cp.drain()
				continue
			}

			m.mu.Lock()
			s, ok := m.sockets[we.fd]
			m.mu.Unlock()

			if !ok {
				continue
			}

			readable := we.readable || we.hangup || we.errored
			writable := we.writable || we.hangup || we.errored

			if readable {
				m.dispatcher.Send(m.internalTask, s.readableEv)
			}

			if writable {
				m.dispatcher.Send(m.internalTask, s.writableEv)
			}
		}
	}
}

// cancelAll implements spec.md §6's Cancel: synchronously, from the
// caller's goroutine, pull every request matching mask off its queue and
// complete it with CANCELED — which supersedes any latched error.
func (m *Manager) cancelAll(s *Socket, mask CancelMask) {
	var toComplete []*Request

	s.mu.Lock()

	if mask&CancelRecv != 0 {
		s.recvList.removeMatching(func(*Request) bool { return true }, func(r *Request) {
			toComplete = append(toComplete, r)
		})
	}

	if mask&CancelSend != 0 {
		s.sendList.removeMatching(func(*Request) bool { return true }, func(r *Request) {
			toComplete = append(toComplete, r)
		})
	}

	if mask&CancelAccept != 0 {
		s.acceptList.removeMatching(func(*Request) bool { return true }, func(r *Request) {
			toComplete = append(toComplete, r)
		})
	}

	if mask&CancelConnect != 0 && s.connectReq != nil {
		toComplete = append(toComplete, s.connectReq)
		s.connectReq = nil
		s.pendingConnect = false
		s.connecting = false
	}

	s.mu.Unlock()

	for _, r := range toComplete {
		completeRequest(s, r, Canceled, r.N)
	}

	m.recomputeInterest(s)
}
