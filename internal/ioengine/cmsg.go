package ioengine

import (
	"encoding/binary"
	"unsafe"

	"golang.org/x/sys/unix"
)

// pktinfoDataLen is sizeof(struct in6_pktinfo): a 16-byte in6_addr
// followed by a 4-byte interface index.
const pktinfoDataLen = 16 + 4

// controlScratchLen sizes the per-socket ancillary-data scratch region:
// enough for one IPV6_PKTINFO control message plus one SCM_TIMESTAMP
// control message, per spec.md §3 "Control-message scratch region".
var controlScratchLen = unix.CmsgSpace(pktinfoDataLen) + unix.CmsgSpace(int(unsafe.Sizeof(unix.Timeval{})))

// buildPktInfoCmsg encodes a single IPV6_PKTINFO control message
// requesting pi as the source interface, per spec.md §4.1 send path.
func buildPktInfoCmsg(pi *PktInfo) []byte {
	buf := make([]byte, unix.CmsgSpace(pktinfoDataLen))

	h := (*unix.Cmsghdr)(unsafe.Pointer(&buf[0]))
	h.Level = unix.IPPROTO_IPV6
	h.Type = unix.IPV6_PKTINFO
	h.SetLen(unix.CmsgLen(pktinfoDataLen))

	data := buf[unix.CmsgLen(0):]
	copy(data[:16], pi.Addr[:])
	binary.NativeEndian.PutUint32(data[16:20], uint32(pi.IfIndex))

	return buf
}

// crackedControl is the result of parsing a recvmsg's ancillary data.
type crackedControl struct {
	attrs   Attribute
	pktInfo PktInfo
	tsSec   int64
	tsNsec  int64
}

// crackControlMessages walks the control messages the kernel attached to
// a UDP receive, per spec.md §4.1 "Ancillary cracking": IPV6_PKTINFO is
// copied into the request and sets AttrPktInfo; SCM_TIMESTAMP is
// converted from (sec, usec) to (sec, nsec) and sets AttrTimestamp.
func crackControlMessages(oob []byte) (crackedControl, error) {
	var out crackedControl

	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return out, err
	}

	for _, m := range msgs {
		switch {
		case m.Header.Level == unix.IPPROTO_IPV6 && int(m.Header.Type) == unix.IPV6_PKTINFO:
			if len(m.Data) >= pktinfoDataLen {
				copy(out.pktInfo.Addr[:], m.Data[:16])
				out.pktInfo.IfIndex = int32(binary.NativeEndian.Uint32(m.Data[16:20]))
				out.attrs |= AttrPktInfo
			}
		case m.Header.Level == unix.SOL_SOCKET && int(m.Header.Type) == unix.SCM_TIMESTAMP:
			if len(m.Data) >= int(unsafe.Sizeof(unix.Timeval{})) {
				tv := *(*unix.Timeval)(unsafe.Pointer(&m.Data[0]))
				out.tsSec = int64(tv.Sec)
				out.tsNsec = int64(tv.Usec) * int64(1000)
				out.attrs |= AttrTimestamp
			}
		}
	}

	return out, nil
}
