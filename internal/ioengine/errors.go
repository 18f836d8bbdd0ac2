package ioengine

import (
	"errors"
	"fmt"
)

// Result is the closed taxonomy of outcomes the engine reports to callers,
// either synchronously or via a completion event. Zero value is Success.
type Result int

const (
	Success Result = iota

	// Resource errors.
	NoMemory
	NoResources // ENOBUFS / EMFILE / ENFILE

	// Address errors.
	NoPerm // EACCES on bind
	AddrNotAvail
	AddrInUse
	Bound // EINVAL on a second bind

	// Connection errors.
	ConnRefused
	NetUnreach
	HostUnreach
	TimedOut

	// Terminal errors.
	EOF // TCP only
	Canceled

	Unexpected
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case NoMemory:
		return "no-memory"
	case NoResources:
		return "no-resources"
	case NoPerm:
		return "no-permission"
	case AddrNotAvail:
		return "address-not-available"
	case AddrInUse:
		return "address-in-use"
	case Bound:
		return "already-bound"
	case ConnRefused:
		return "connection-refused"
	case NetUnreach:
		return "network-unreachable"
	case HostUnreach:
		return "host-unreachable"
	case TimedOut:
		return "timed-out"
	case EOF:
		return "eof"
	case Canceled:
		return "canceled"
	default:
		return "unexpected"
	}
}

// resultError adapts a Result into an error value so it can travel through
// ordinary Go error-handling idioms (errors.Is/As) when returned
// synchronously from the public API.
type resultError struct {
	result Result
	cause  error
}

func (e *resultError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("sockengine: %s: %v", e.result, e.cause)
	}

	return fmt.Sprintf("sockengine: %s", e.result)
}

func (e *resultError) Unwrap() error { return e.cause }

// Err wraps a Result as an error, optionally carrying the underlying cause.
func Err(r Result, cause error) error {
	if r == Success {
		return nil
	}

	return &resultError{result: r, cause: cause}
}

// ResultOf extracts the Result carried by an error produced by Err, or
// Unexpected if err is non-nil but was not produced by this package.
func ResultOf(err error) Result {
	if err == nil {
		return Success
	}

	var re *resultError
	if errors.As(err, &re) {
		return re.result
	}

	return Unexpected
}

// ErrManagerClosed is returned by operations attempted on a socket after
// Manager.Close has been called for it.
var ErrManagerClosed = errors.New("sockengine: manager closed")

// ErrConnectInProgress is returned by Connect when a connect is already
// outstanding on the socket; spec.md models concurrent connects as a usage
// error rather than queueing.
var ErrConnectInProgress = errors.New("sockengine: connect already in progress")

// ErrNotListener is returned by Accept on a socket that is not listening
// and by Listen on a non-TCP socket. ErrListenerSocket is declared for the
// opposite case, but no operation returns it: the data-path operations do
// not check whether the socket is a listener.
var (
	ErrListenerSocket = errors.New("sockengine: operation invalid on listener socket")
	ErrNotListener    = errors.New("sockengine: socket is not a listener")
)

// ErrEmptyRequest is returned by SockAddrFromNetAddr for a net.Addr that
// is not a usable UDP/TCP IP address. Recvv/Sendv do not validate their
// buffers or minimum and do not return it.
var ErrEmptyRequest = errors.New("sockengine: empty or invalid request")
