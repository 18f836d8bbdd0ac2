package ioengine

import "golang.org/x/sys/unix"

// errInProgress is the sentinel connectSyscall returns when the kernel
// accepted the connect attempt but hasn't resolved it yet (EINPROGRESS):
// the caller queues a pending connect and waits for writable readiness.
var errInProgress = Err(Unexpected, unix.EINPROGRESS)

// connectSyscall issues the non-blocking connect(2) call, per spec.md
// §4.3's Connect operation. A nil return means the kernel resolved the
// connection synchronously (common for UDP, occasionally TCP to a local
// peer); errInProgress means the caller must wait for writable
// readiness; any other error is terminal.
func connectSyscall(s *Socket, addr *SockAddr) error {
	err := unix.Connect(s.fd, addr.Raw())
	if err == nil {
		return nil
	}

	switch err {
	case unix.EINPROGRESS:
		return errInProgress
	case unix.ECONNREFUSED:
		return Err(ConnRefused, err)
	case unix.ENETUNREACH:
		return Err(NetUnreach, err)
	case unix.EHOSTUNREACH:
		return Err(HostUnreach, err)
	case unix.EADDRINUSE:
		return Err(AddrInUse, err)
	case unix.EADDRNOTAVAIL:
		return Err(AddrNotAvail, err)
	case unix.EACCES:
		return Err(NoPerm, err)
	default:
		return Err(Unexpected, err)
	}
}
