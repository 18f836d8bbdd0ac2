package main

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/coreio/sockengine/internal/ioengine"
)

// packetConnAdapter presents one UDP Socket as a net.PacketConn, so
// quic-go's transport can run its datagram I/O entirely through the
// engine's async queue instead of net.UDPConn. Every blocking
// ReadFrom/WriteTo call bridges to one queued Recv/SendTo request and
// waits on a per-call channel for its completion event.
type packetConnAdapter struct {
	mgr  *ioengine.Manager
	sock *ioengine.Socket
	task *pcTask

	mu           sync.Mutex
	readDeadline  time.Time
	writeDeadline time.Time

	closeOnce sync.Once
}

type pcTask struct{}

func newPacketConnAdapter(mgr *ioengine.Manager, sock *ioengine.Socket) *packetConnAdapter {
	return &packetConnAdapter{mgr: mgr, sock: sock, task: &pcTask{}}
}

type pcResult struct {
	n    int
	addr net.Addr
	err  error
}

func (a *packetConnAdapter) ReadFrom(p []byte) (int, net.Addr, error) {
	buf := ioengine.NewBuffer(p)
	ch := make(chan pcResult, 1)

	err := a.sock.Recv(a.task, buf, 0, false, func(ev *ioengine.Event) {
		if ev.Result != ioengine.Success {
			ch <- pcResult{err: resultToNetError(ev.Result)}
			return
		}

		var addr net.Addr
		if ev.Addr != nil {
			addr = ev.Addr.NetAddr("udp")
		}

		ch <- pcResult{n: ev.N, addr: addr}
	}, nil)
	if err != nil {
		return 0, nil, err
	}

	timer := a.deadlineTimer(a.readDeadlineValue())
	defer timer.stop()

	select {
	case r := <-ch:
		return r.n, r.addr, r.err
	case <-timer.c():
		a.sock.Cancel(ioengine.CancelRecv)
		return 0, nil, errDeadlineExceeded
	}
}

func (a *packetConnAdapter) WriteTo(p []byte, addr net.Addr) (int, error) {
	sa, err := ioengine.SockAddrFromNetAddr(addr)
	if err != nil {
		return 0, err
	}

	buf := ioengine.NewBuffer(make([]byte, len(p)))
	buf.Append(copy(buf.Available(), p))

	ch := make(chan pcResult, 1)

	err = a.sock.SendTo(a.task, buf, sa, false, func(ev *ioengine.Event) {
		if ev.Result != ioengine.Success {
			ch <- pcResult{err: resultToNetError(ev.Result)}
			return
		}

		ch <- pcResult{n: ev.N}
	}, nil)
	if err != nil {
		return 0, err
	}

	timer := a.deadlineTimer(a.writeDeadlineValue())
	defer timer.stop()

	select {
	case r := <-ch:
		return r.n, r.err
	case <-timer.c():
		a.sock.Cancel(ioengine.CancelSend)
		return 0, errDeadlineExceeded
	}
}

func (a *packetConnAdapter) Close() error {
	var err error

	a.closeOnce.Do(func() {
		err = a.mgr.Close(a.sock)
	})

	return err
}

func (a *packetConnAdapter) LocalAddr() net.Addr {
	sa, err := a.sock.GetSockName()
	if err != nil {
		return nil
	}

	return sa.NetAddr("udp")
}

func (a *packetConnAdapter) SetDeadline(t time.Time) error {
	a.mu.Lock()
	a.readDeadline = t
	a.writeDeadline = t
	a.mu.Unlock()

	return nil
}

func (a *packetConnAdapter) SetReadDeadline(t time.Time) error {
	a.mu.Lock()
	a.readDeadline = t
	a.mu.Unlock()

	return nil
}

func (a *packetConnAdapter) SetWriteDeadline(t time.Time) error {
	a.mu.Lock()
	a.writeDeadline = t
	a.mu.Unlock()

	return nil
}

func (a *packetConnAdapter) readDeadlineValue() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.readDeadline
}

func (a *packetConnAdapter) writeDeadlineValue() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.writeDeadline
}

var errDeadlineExceeded = errors.New("sockengine-quicdemo: deadline exceeded")

func resultToNetError(r ioengine.Result) error {
	return errors.New("sockengine-quicdemo: " + r.String())
}

// deadlineTimer wraps time.Timer so a zero deadline (no limit) degrades
// to a channel that never fires, without leaking a timer goroutine.
type deadlineTimer struct {
	t *time.Timer
}

func (a *packetConnAdapter) deadlineTimer(deadline time.Time) deadlineTimer {
	if deadline.IsZero() {
		return deadlineTimer{}
	}

	d := time.Until(deadline)
	if d < 0 {
		d = 0
	}

	return deadlineTimer{t: time.NewTimer(d)}
}

func (d deadlineTimer) c() <-chan time.Time {
	if d.t == nil {
		return nil
	}

	return d.t.C
}

func (d deadlineTimer) stop() {
	if d.t != nil {
		d.t.Stop()
	}
}
