package ioengine

import "golang.org/x/sys/unix"

// dispatchReadable is the socket's pre-allocated readable event's Action,
// run by the task dispatcher off the watcher thread per spec.md §4.4: a
// listener drains its accept queue, everything else drains its recv
// queue. Both loops run until the queue is empty or a doio call returns
// outSoft, so one readiness edge can satisfy several queued requests.
func dispatchReadable(s *Socket) {
	s.mu.Lock()
	listener := s.listener

	// pendingRecv/pendingAccept serialize dispatch against itself: epoll
	// and kqueue are level-triggered with no re-arm, so the watcher can
	// observe the same fd readable again and hand a second dispatch to
	// another pool worker before this one has even started. The check
	// and set happen atomically under s.mu, so only one of any
	// concurrently-invoked dispatchReadable calls for this socket
	// proceeds; the rest return immediately and the still-queued requests
	// are picked up the next time this one (or a later dispatch) runs.
	var skip bool

	if listener {
		skip = s.pendingAccept
		s.pendingAccept = true
	} else {
		skip = s.pendingRecv
		s.pendingRecv = true
	}

	s.mu.Unlock()

	if skip {
		return
	}

	if listener {
		internalAccept(s)
	} else {
		internalRecv(s)
	}
}

// dispatchWritable is the writable event's Action: a pending connect
// takes priority over queued sends, mirroring spec.md §4.4's "a socket
// has at most one pending connect, checked before the send queue".
func dispatchWritable(s *Socket) {
	s.mu.Lock()
	connecting := s.pendingConnect

	var skip bool

	if !connecting {
		skip = s.pendingSend
		s.pendingSend = true
	}

	s.mu.Unlock()

	if skip {
		return
	}

	if connecting {
		internalConnect(s)
	} else {
		internalSend(s)
	}
}

// internalRecv implements spec.md §4.4's internal_recv: pop the front
// recv request, attempt it, and either complete it (success, EOF, or a
// hard error) or leave it queued (soft) for the next readiness
// notification.
func internalRecv(s *Socket) {
	s.mu.Lock()
	s.pendingRecv = false
	s.mu.Unlock()

	for {
		s.mu.Lock()

		if latched := s.recvResult; latched != Success {
			req := s.recvList.popFront()
			s.mu.Unlock()

			if req == nil {
				return
			}

			completeRequest(s, req, latched, req.N)
			continue
		}

		req := s.recvList.front()
		s.mu.Unlock()

		if req == nil {
			s.mgr.recomputeInterest(s)
			return
		}

		oc, result, _ := doioRecv(s, req)

		switch oc {
		case outSoft:
			s.mgr.recomputeInterest(s)
			return
		case outEOF:
			s.mu.Lock()
			s.recvList.popFront()
			s.mu.Unlock()
			completeRequest(s, req, EOF, req.N)
		case outHard:
			s.mu.Lock()
			s.recvList.popFront()
			s.mu.Unlock()
			completeRequest(s, req, result, req.N)
		case outSuccess:
			s.mu.Lock()
			s.recvList.popFront()
			s.mu.Unlock()
			completeRequest(s, req, Success, req.N)
		}
	}
}

// internalSend implements spec.md §4.4's internal_send, symmetric to
// internalRecv.
func internalSend(s *Socket) {
	s.mu.Lock()
	s.pendingSend = false
	s.mu.Unlock()

	for {
		s.mu.Lock()

		if latched := s.sendResult; latched != Success {
			req := s.sendList.popFront()
			s.mu.Unlock()

			if req == nil {
				return
			}

			completeRequest(s, req, latched, req.N)
			continue
		}

		req := s.sendList.front()
		s.mu.Unlock()

		if req == nil {
			s.mgr.recomputeInterest(s)
			return
		}

		oc, result, _ := doioSend(s, req)

		switch oc {
		case outSoft:
			s.mgr.recomputeInterest(s)
			return
		case outHard:
			s.mu.Lock()
			s.sendList.popFront()
			s.mu.Unlock()
			completeRequest(s, req, result, req.N)
		case outSuccess, outEOF:
			s.mu.Lock()
			s.sendList.popFront()
			s.mu.Unlock()
			completeRequest(s, req, Success, req.N)
		}
	}
}

// internalAccept implements spec.md §4.4's internal_accept: drains the
// accept queue against the kernel's pending-connection backlog.
func internalAccept(s *Socket) {
	s.mu.Lock()
	s.pendingAccept = false
	s.mu.Unlock()

	for {
		req := s.accept_listFront()
		if req == nil {
			s.mgr.recomputeInterest(s)
			return
		}

		child, wouldBlock, err := acceptOnce(s)
		if wouldBlock {
			s.mgr.recomputeInterest(s)
			return
		}

		s.mu.Lock()
		s.acceptList.popFront()
		s.mu.Unlock()

		if err != nil {
			completeRequest(s, req, Unexpected, 0)
			continue
		}

		req.NewSocket = child
		req.Addr = child.address
		completeRequest(s, req, Success, 0)
	}
}

// acceptOnce performs a single non-blocking accept attempt, shared by
// internalAccept's drain loop and Accept's fast path (public.go).
func acceptOnce(s *Socket) (child *Socket, wouldBlock bool, err error) {
	fd, raw, aerr := unix.Accept4(s.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if aerr != nil {
		if aerr == unix.EAGAIN || aerr == unix.EWOULDBLOCK || aerr == unix.EINTR {
			return nil, true, nil
		}

		return nil, false, aerr
	}

	child = newSocket(s.mgr, fd, s.typ)
	child.connected = true
	child.address = sockAddrFromRaw(raw)
	s.mgr.registerAccepted(child)

	return child, false, nil
}

// accept_listFront reads the accept queue's front request under lock,
// named to mirror the original's accept_list field.
func (s *Socket) accept_listFront() *Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.acceptList.front()
}

// internalConnect implements spec.md §4.4's internal_connect: a writable
// notification on a connecting socket means connect() resolved one way
// or the other; SO_ERROR tells us which.
func internalConnect(s *Socket) {
	s.mu.Lock()
	req := s.connectReq
	s.mu.Unlock()

	if req == nil {
		return
	}

	errno, gerr := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)

	s.mu.Lock()
	s.connectReq = nil
	s.pendingConnect = false
	s.connecting = false
	s.mu.Unlock()

	if gerr != nil {
		completeRequest(s, req, Unexpected, 0)
		return
	}

	switch unix.Errno(errno) {
	case 0:
		s.mu.Lock()
		s.connected = true
		s.connecting = false
		s.mu.Unlock()
		completeRequest(s, req, Success, 0)
	case unix.ECONNREFUSED:
		s.latch(DirSend, ConnRefused)
		s.latch(DirRecv, ConnRefused)
		completeRequest(s, req, ConnRefused, 0)
	case unix.ENETUNREACH:
		s.latch(DirSend, NetUnreach)
		s.latch(DirRecv, NetUnreach)
		completeRequest(s, req, NetUnreach, 0)
	case unix.EHOSTUNREACH:
		s.latch(DirSend, HostUnreach)
		s.latch(DirRecv, HostUnreach)
		completeRequest(s, req, HostUnreach, 0)
	case unix.ETIMEDOUT:
		completeRequest(s, req, TimedOut, 0)
	default:
		completeRequest(s, req, Unexpected, 0)
	}
}

// completeRequest delivers req's outcome to its task, per spec.md §4.5:
// the event carries Kind/Action/Arg copied from the request's template,
// plus the transfer-specific fields the I/O path filled in.
func completeRequest(s *Socket, req *Request, result Result, n int) {
	ev := req.Completion
	ev.Result = result
	ev.N = n
	ev.Addr = req.Addr
	ev.Attrs = req.Attrs
	ev.NewSocket = req.NewSocket

	if req.Attrs&AttrTimestamp != 0 {
		ev.TSSec = req.TSSec
		ev.TSNsec = req.TSNsec
	}

	if req.PktInfo != nil {
		ev.PktInfo = req.PktInfo
	}

	if result != Success && result != EOF {
		ev.Attrs |= AttrFatalError
	}

	s.recordStats(req.Kind, result, n)

	if ev.Attrs&AttrAttached != 0 {
		s.mgr.dispatcher.SendAndDetach(req.Task, ev)
	} else {
		s.mgr.dispatcher.Send(req.Task, ev)
	}

	s.unref()
}

func (s *Socket) recordStats(kind RequestKind, result Result, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case KindRecv:
		if result == Success {
			s.stats.RecvCompleted++
			s.stats.BytesRecv += uint64(n)
		} else if result != EOF {
			s.stats.RecvErrors++
		}
	case KindSend:
		if result == Success {
			s.stats.SendCompleted++
			s.stats.BytesSent += uint64(n)
		} else {
			s.stats.SendErrors++
		}
	}
}
