package ioengine

import "golang.org/x/sys/unix"

// maxIOV is a vector-count limit that nothing in this package reads: the
// builder below always hands sendmsg/recvmsg a single flattened region,
// and the number of buffers in a BufferList is not checked against it.
const maxIOV = 64

// builtMessage is the vectorised descriptor the message builder produces,
// ready to hand to unix.Sendmsg/Recvmsg (flattened, since x/sys/unix's
// Sendmsg/Recvmsg take a single []byte rather than an iovec array —
// buildSend/sendvResume and buildRecv/recvvTarget below do the flattening while preserving
// the resume-from-n semantics the spec describes in iovec terms).
type builtMessage struct {
	addr    unix.Sockaddr // destination (UDP sendto) or nil
	control []byte        // ancillary data to send, or scratch capacity to receive into
}

// buildSend produces the bytes still to send (starting at req.N) and the
// destination/control data, per spec.md §4.1 send path. For TCP the
// kernel uses the connected peer, so addr is always nil there.
func buildSend(s *Socket, req *Request) (payload []byte, msg builtMessage) {
	if req.Region != nil {
		used := req.Region.Used()
		if req.N < len(used) {
			payload = used[req.N:]
		}
	} else {
		payload = sendvResume(req.List, req.N)
	}

	if s.typ == TypeUDP {
		// With no per-request destination the address is left nil, so a
		// connected socket sends to its kernel-recorded peer.
		if req.Addr != nil {
			msg.addr = req.Addr.Raw()
		}

		if req.Attrs&AttrPktInfo != 0 && req.PktInfo != nil {
			msg.control = buildPktInfoCmsg(req.PktInfo)
		}
	}

	return payload, msg
}

// sendvResume walks a BufferList skipping buffers already fully consumed
// by prior partial writes, returning the concatenation of the remaining
// used bytes starting at the buffer straddling offset n. spec.md §4.1
// describes this as per-vector resume; since unix.Sendmsg takes a flat
// []byte rather than an iovec array, the engine concatenates here. A
// future iovec-native backend (writev/sendmsg with msg_iov) can replace
// this with true scatter/gather without changing the public contract.
func sendvResume(list BufferList, n int) []byte {
	skip := n
	total := 0

	for _, b := range list {
		total += b.UsedCount()
	}

	out := make([]byte, 0, total-n)

	for _, b := range list {
		used := b.Used()
		if skip >= len(used) {
			skip -= len(used)
			continue
		}

		out = append(out, used[skip:]...)
		skip = 0
	}

	return out
}

// buildRecv produces the region to receive into (starting at the
// resume point for list mode — recvv has no partial-vector resume in
// the original since each recvmsg call is one discrete completion
// attempt, but list mode still needs the first not-yet-full buffer) and
// requests ancillary-data scratch space for UDP.
func buildRecv(s *Socket, req *Request) (region []byte, control []byte) {
	if req.Region != nil {
		region = req.Region.Available()
	} else {
		region = recvvTarget(req.List)
	}

	if s.typ == TypeUDP {
		control = make([]byte, controlScratchLen)
	}

	return region, control
}

// recvvTarget returns the Available() region of the first buffer in list
// that still has room, per spec.md §4.1 "Empty buffers are skipped."
func recvvTarget(list BufferList) []byte {
	for _, b := range list {
		if avail := b.Available(); len(avail) > 0 {
			return avail
		}
	}

	return nil
}

// applyRecvResult accounts n received bytes across a buffer list,
// filling buffers in order exactly as the kernel wrote them (single
// recvmsg call can only have targeted the first available buffer, per
// recvvTarget above, so this simply appends to that buffer).
func applyRecvResult(req *Request, n int) {
	if req.Region != nil {
		req.Region.Append(n)
		return
	}

	for _, b := range req.List {
		if avail := len(b.Available()); avail > 0 {
			take := n
			if take > avail {
				take = avail
			}

			b.Append(take)

			return
		}
	}
}
