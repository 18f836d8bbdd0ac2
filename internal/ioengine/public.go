package ioengine

import "net"

// recvArgs and sendArgs bundle the client-facing shape of a queue
// request; Recv/Recvv/Send/Sendv all build a Request from one of these
// and enqueue it identically, per spec.md §4.3's single request-entry
// design.

// Recv queues a single-region receive for minimum bytes, delivering
// completion as a RecvDone event to task via action, per spec.md §4.3.
// On TCP a minimum of 0 selects the region's whole available length
// (Recvv: the list's total available space). On UDP minimum is ignored:
// the first datagram carrying at least one byte completes the request.
func (s *Socket) Recv(task Task, region *Buffer, minimum int, attached bool, action func(*Event), arg any) error {
	return s.queueRecv(task, region, nil, minimum, attached, action, arg)
}

// Recvv is Recv's scatter variant: list's buffers are filled in order.
func (s *Socket) Recvv(task Task, list BufferList, minimum int, attached bool, action func(*Event), arg any) error {
	return s.queueRecv(task, nil, list, minimum, attached, action, arg)
}

func (s *Socket) queueRecv(task Task, region *Buffer, list BufferList, minimum int, attached bool, action func(*Event), arg any) error {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return ErrManagerClosed
	}

	t := task
	if attached {
		t = s.mgr.dispatcher.Attach(task)
	}

	ev := &Event{Kind: RecvDone, Sender: s, Action: action, Arg: arg}
	if attached {
		ev.Attrs |= AttrAttached
	}

	if minimum == 0 && s.typ == TypeTCP {
		if region != nil {
			minimum = len(region.Available())
		} else {
			minimum = list.TotalAvailable()
		}
	}

	req := &Request{Kind: KindRecv, Dir: DirRecv, Task: t, Completion: ev, Region: region, List: list, Minimum: minimum}

	// Fast path, per spec.md §4.3: when the recv queue is empty, nothing
	// is latched, and no dispatch is already in flight, attempt the I/O
	// immediately instead of always waiting for a readiness notification.
	// pendingRecv doubles as the attempt's mutual-exclusion guard against
	// a concurrently dispatched internalRecv.
	tryNow := s.recvList.empty() && s.recvResult == Success && !s.pendingRecv && !s.connecting
	if tryNow {
		s.pendingRecv = true
	} else {
		s.recvList.pushBack(req)
	}
	s.mu.Unlock()

	s.ref()

	if !tryNow {
		s.mgr.recomputeInterest(s)
		return nil
	}

	oc, result, _ := doioRecv(s, req)

	s.mu.Lock()
	s.pendingRecv = false
	if oc == outSoft {
		s.recvList.pushFront(req)
	}
	s.mu.Unlock()

	switch oc {
	case outSoft:
		s.mgr.recomputeInterest(s)
	case outEOF:
		completeRequest(s, req, EOF, req.N)
	case outHard:
		completeRequest(s, req, result, req.N)
	case outSuccess:
		completeRequest(s, req, Success, req.N)
	}

	return nil
}

// Send queues a single-region send of region's used bytes, per spec.md
// §4.3. For a connected or TCP socket the kernel's peer is used.
func (s *Socket) Send(task Task, region *Buffer, attached bool, action func(*Event), arg any) error {
	return s.queueSend(task, region, nil, nil, attached, action, arg)
}

// Sendv is Send's gather variant.
func (s *Socket) Sendv(task Task, list BufferList, attached bool, action func(*Event), arg any) error {
	return s.queueSend(task, nil, list, nil, attached, action, arg)
}

// SendTo queues a send to a specific destination, valid only for UDP.
func (s *Socket) SendTo(task Task, region *Buffer, to *SockAddr, attached bool, action func(*Event), arg any) error {
	if s.typ != TypeUDP {
		return Err(Unexpected, nil)
	}

	return s.queueSend(task, region, nil, to, attached, action, arg)
}

// SendToV is SendTo's gather variant.
func (s *Socket) SendToV(task Task, list BufferList, to *SockAddr, attached bool, action func(*Event), arg any) error {
	if s.typ != TypeUDP {
		return Err(Unexpected, nil)
	}

	return s.queueSend(task, nil, list, to, attached, action, arg)
}

func (s *Socket) queueSend(task Task, region *Buffer, list BufferList, to *SockAddr, attached bool, action func(*Event), arg any) error {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return ErrManagerClosed
	}

	t := task
	if attached {
		t = s.mgr.dispatcher.Attach(task)
	}

	ev := &Event{Kind: SendDone, Sender: s, Action: action, Arg: arg}
	if attached {
		ev.Attrs |= AttrAttached
	}

	req := &Request{Kind: KindSend, Dir: DirSend, Task: t, Completion: ev, Region: region, List: list, Addr: to}

	// Fast path, symmetric to queueRecv's above.
	tryNow := s.sendList.empty() && s.sendResult == Success && !s.pendingSend && !s.connecting
	if tryNow {
		s.pendingSend = true
	} else {
		s.sendList.pushBack(req)
	}
	s.mu.Unlock()

	s.ref()

	if !tryNow {
		s.mgr.recomputeInterest(s)
		return nil
	}

	oc, result, _ := doioSend(s, req)

	s.mu.Lock()
	s.pendingSend = false
	if oc == outSoft {
		s.sendList.pushFront(req)
	}
	s.mu.Unlock()

	switch oc {
	case outSoft:
		s.mgr.recomputeInterest(s)
	case outHard:
		completeRequest(s, req, result, req.N)
	case outSuccess, outEOF:
		completeRequest(s, req, Success, req.N)
	}

	return nil
}

// RecvMark and SendMark queue a zero-byte marker request that completes
// once every request queued ahead of it on the same direction has
// drained, per spec.md §4.3's supplemented mark operations (ordering
// barrier with no data transfer, as spec.md §9 describes for
// recvmark/sendmark).
func (s *Socket) RecvMark(task Task, attached bool, action func(*Event), arg any) error {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return ErrManagerClosed
	}

	t := task
	if attached {
		t = s.mgr.dispatcher.Attach(task)
	}

	ev := &Event{Kind: RecvMark, Sender: s, Action: action, Arg: arg}
	if attached {
		ev.Attrs |= AttrAttached
	}

	req := &Request{Kind: KindMark, Dir: DirRecv, Task: t, Completion: ev, Minimum: 0, Region: emptyMarkBuffer()}

	// Nothing queued ahead of the mark: complete it now with the
	// direction's latched result instead of waiting for readability.
	if s.recvList.empty() && !s.pendingRecv {
		latched := s.recvResult
		s.mu.Unlock()
		s.ref()
		completeRequest(s, req, latched, 0)

		return nil
	}

	s.recvList.pushBack(req)
	s.mu.Unlock()

	s.ref()
	s.mgr.recomputeInterest(s)

	return nil
}

func (s *Socket) SendMark(task Task, attached bool, action func(*Event), arg any) error {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return ErrManagerClosed
	}

	t := task
	if attached {
		t = s.mgr.dispatcher.Attach(task)
	}

	ev := &Event{Kind: SendMark, Sender: s, Action: action, Arg: arg}
	if attached {
		ev.Attrs |= AttrAttached
	}

	req := &Request{Kind: KindMark, Dir: DirSend, Task: t, Completion: ev, Region: emptyMarkBuffer()}
	s.sendList.pushBack(req)
	s.mu.Unlock()

	s.ref()
	s.mgr.recomputeInterest(s)

	return nil
}

// emptyMarkBuffer gives a mark request a zero-capacity region, so the
// request carries no payload. What makes a mark complete as a zero-byte
// success when internalRecv/internalSend reaches it is doioRecv/doioSend's
// KindMark check, which returns before any message is built.
func emptyMarkBuffer() *Buffer { return NewBuffer(nil) }

// Accept queues an accept request on a listening socket, per spec.md
// §4.3.
func (s *Socket) Accept(task Task, attached bool, action func(*Event), arg any) error {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return ErrManagerClosed
	}

	if !s.listener {
		s.mu.Unlock()
		return ErrNotListener
	}

	t := task
	if attached {
		t = s.mgr.dispatcher.Attach(task)
	}

	ev := &Event{Kind: NewConn, Sender: s, Action: action, Arg: arg}
	if attached {
		ev.Attrs |= AttrAttached
	}

	req := &Request{Kind: KindAccept, Task: t, Completion: ev}

	// Fast path, symmetric to queueRecv's above: a listener with an
	// already-pending connection in the kernel backlog completes
	// immediately rather than waiting for the next readiness edge.
	tryNow := s.acceptList.empty() && !s.pendingAccept
	if tryNow {
		s.pendingAccept = true
	} else {
		s.acceptList.pushBack(req)
	}
	s.mu.Unlock()

	s.ref()

	if !tryNow {
		s.mgr.recomputeInterest(s)
		return nil
	}

	child, wouldBlock, aerr := acceptOnce(s)

	s.mu.Lock()
	s.pendingAccept = false
	if wouldBlock {
		s.acceptList.pushFront(req)
	}
	s.mu.Unlock()

	switch {
	case wouldBlock:
		s.mgr.recomputeInterest(s)
	case aerr != nil:
		completeRequest(s, req, Unexpected, 0)
	default:
		req.NewSocket = child
		req.Addr = child.address
		completeRequest(s, req, Success, 0)
	}

	return nil
}

// Connect initiates an asynchronous connect, per spec.md §4.3. At most
// one connect may be pending per socket.
func (s *Socket) Connect(task Task, addr net.Addr, attached bool, action func(*Event), arg any) error {
	sa, err := SockAddrFromNetAddr(addr)
	if err != nil {
		return Err(AddrNotAvail, err)
	}

	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return ErrManagerClosed
	}

	if s.pendingConnect {
		s.mu.Unlock()
		return ErrConnectInProgress
	}

	s.mu.Unlock()

	cerr := connectSyscall(s, sa)

	t := task
	if attached {
		t = s.mgr.dispatcher.Attach(task)
	}

	ev := &Event{Kind: Connect, Sender: s, Action: action, Arg: arg}
	if attached {
		ev.Attrs |= AttrAttached
	}

	req := &Request{Kind: KindConnect, Task: t, Completion: ev, Addr: sa}

	if cerr == nil {
		// Connected immediately (common for UDP "connect" which just
		// records the peer, occasionally for TCP to a local address).
		s.mu.Lock()
		s.connected = true
		s.mu.Unlock()
		s.ref()
		completeRequest(s, req, Success, 0)

		return nil
	}

	if cerr != errInProgress {
		// A refusal or unreachable network known at once is delivered
		// through the completion event, like one found later by
		// internalConnect.
		if r := ResultOf(cerr); r == ConnRefused || r == NetUnreach {
			s.ref()
			completeRequest(s, req, r, 0)

			return nil
		}

		return cerr
	}

	s.mu.Lock()
	s.connectReq = req
	s.pendingConnect = true
	s.connecting = true
	s.mu.Unlock()

	s.ref()
	s.mgr.recomputeInterest(s)

	return nil
}

// Cancel cancels queued requests matching mask, per spec.md §6.
// Synchronous: by the time Cancel returns, every matching request has
// already been completed with CANCELED.
func (s *Socket) Cancel(mask CancelMask) {
	s.mgr.cancelAll(s, mask)
}
