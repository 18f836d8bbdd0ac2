//go:build linux

package ioengine

import "golang.org/x/sys/unix"

// epollPoller is the Linux poller backend, adapted from the kqueue/epoll
// split the teacher's asyncio poller already followed.
type epollPoller struct {
	epfd int
}

func newPoller() (poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	return &epollPoller{epfd: fd}, nil
}

func interestMask(wantRead, wantWrite bool) uint32 {
	var ev uint32
	if wantRead {
		ev |= unix.EPOLLIN
	}

	if wantWrite {
		ev |= unix.EPOLLOUT
	}

	return ev
}

func (p *epollPoller) add(fd int, wantRead, wantWrite bool) error {
	ev := unix.EpollEvent{Events: interestMask(wantRead, wantWrite), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *epollPoller) modify(fd int, wantRead, wantWrite bool) error {
	ev := unix.EpollEvent{Events: interestMask(wantRead, wantWrite), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *epollPoller) remove(fd int) error {
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.ENOENT {
		return nil
	}

	return err
}

func (p *epollPoller) wait(out []watchEvent) ([]watchEvent, error) {
	raw := make([]unix.EpollEvent, 64)

	n, err := unix.EpollWait(p.epfd, raw, -1)
	if err != nil {
		if err == unix.EINTR {
			return out, nil
		}

		return out, err
	}

	for i := 0; i < n; i++ {
		e := raw[i]
		out = append(out, watchEvent{
			fd:       int(e.Fd),
			readable: e.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0,
			writable: e.Events&(unix.EPOLLOUT|unix.EPOLLHUP|unix.EPOLLERR) != 0,
			hangup:   e.Events&unix.EPOLLHUP != 0,
			errored:  e.Events&unix.EPOLLERR != 0,
		})
	}

	return out, nil
}

func (p *epollPoller) close() error {
	return unix.Close(p.epfd)
}
