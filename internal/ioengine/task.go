package ioengine

// EventKind identifies the shape of a completion or internal event.
type EventKind int

const (
	// Completion event kinds delivered to client tasks (spec.md §6).
	RecvDone EventKind = iota
	SendDone
	NewConn
	Connect
	RecvMark
	SendMark

	// Internal event kinds, never exposed to clients, shuttled from the
	// watcher to the dispatcher (spec.md §4.4/§4.5).
	internalRecvKind
	internalSendKind
	internalAcceptKind
	internalConnectKind
)

// Attribute is a bitmask of event attributes (spec.md §6).
type Attribute uint32

const (
	AttrAttached Attribute = 1 << iota
	AttrPktInfo
	AttrTimestamp
	AttrTrunc
	AttrCTrunc
	AttrFatalError
)

// Event is what the engine hands to a Task: a completion event for
// public operations, or (internally) the pre-allocated readable/writable
// marker that shuttles socket readiness from the watcher to the
// dispatcher. Action is invoked by the TaskDispatcher on some worker; Arg
// is opaque, caller-supplied context.
type Event struct {
	Kind   EventKind
	Sender any // *Socket for every event this package produces
	Action func(ev *Event)
	Arg    any
	Attrs  Attribute
	Result Result

	// Populated for data-path completions.
	N       int       // bytes transferred
	Addr    *SockAddr // peer address (UDP per-datagram, or TCP connect/accept)
	PktInfo *PktInfo  // set iff AttrPktInfo
	TSSec   int64     // set iff AttrTimestamp
	TSNsec  int64

	// Populated for NewConn.
	NewSocket *Socket
}

// HasAttr reports whether attr is set on the event.
func (e *Event) HasAttr(attr Attribute) bool { return e.Attrs&attr != 0 }

// Task is an opaque handle to the external task-dispatcher collaborator's
// notion of a task (spec.md §1: "engine depends only on the ability to
// enqueue an event to a task and to attach/detach task references").
type Task interface{}

// TaskDispatcher is the out-of-scope collaborator spec.md §1 and §6
// describe: "a service that accepts events addressed to a task and
// invokes their action on some worker". The engine never blocks waiting
// for Action to run; Send only needs to guarantee Action eventually runs
// exactly once, on some goroutine other than the caller of Send itself is
// not required (same-goroutine execution, e.g. during shutdown drains,
// is allowed).
type TaskDispatcher interface {
	// Attach returns a reference-counted handle to task; the engine holds
	// one such handle per ATTACHED request and releases it via Detach
	// when the request completes or is canceled.
	Attach(task Task) Task
	// Detach releases a handle obtained from Attach.
	Detach(task Task)
	// Send enqueues ev for execution on task, keeping task attached.
	Send(task Task, ev *Event)
	// SendAndDetach enqueues ev for execution on task and releases the
	// engine's reference to task as part of the same operation — used
	// to deliver the completion of an ATTACHED request. The pre-allocated
	// internal events go through Send.
	SendAndDetach(task Task, ev *Event)
}
