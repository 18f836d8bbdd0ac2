package ioengine

import "golang.org/x/sys/unix"

// watchEvent is one readiness notification the platform poller reports,
// normalized away from epoll/kqueue's differing event shapes.
type watchEvent struct {
	fd       int
	readable bool
	writable bool
	hangup   bool
	errored  bool
}

// poller is the single-threaded readiness multiplexer spec.md §4.6
// requires: one dedicated watcher goroutine owns it, registering and
// recomputing per-fd read/write interest as queues transition
// empty/non-empty, plus a control-pipe wake path for cross-thread pokes
// (new registration, shutdown) that doesn't race the blocking wait call.
type poller interface {
	// add registers fd with the given interest. wantRead/wantWrite may
	// both be false to register with no active interest yet.
	add(fd int, wantRead, wantWrite bool) error
	// modify updates fd's interest set in place.
	modify(fd int, wantRead, wantWrite bool) error
	// remove unregisters fd. Safe to call even if fd was never added.
	remove(fd int) error
	// wait blocks until at least one registered fd is ready, the control
	// pipe is poked, or an error occurs, appending into events.
	wait(events []watchEvent) ([]watchEvent, error)
	// close releases the poller's own kernel object (epoll/kqueue fd).
	close() error
}

// controlPipe is the cross-thread wake mechanism: any goroutine may write
// a byte to unblock the watcher's otherwise-indefinite wait, per spec.md
// §4.6 "the watcher must learn of new registrations without polling".
type controlPipe struct {
	r, w int
}

func newControlPipe() (*controlPipe, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, err
	}

	return &controlPipe{r: fds[0], w: fds[1]}, nil
}

func (c *controlPipe) poke() {
	var b [1]byte
	_, _ = unix.Write(c.w, b[:])
}

// drain empties every pending wake byte after the poller reports the
// read end ready, so a burst of pokes collapses into one wake.
func (c *controlPipe) drain() {
	var buf [64]byte
	for {
		n, err := unix.Read(c.r, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (c *controlPipe) close() {
	_ = unix.Close(c.r)
	_ = unix.Close(c.w)
}
