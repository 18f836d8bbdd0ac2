package ioengine

import (
	"bytes"
	"testing"
)

func bufOf(s string) *Buffer {
	b := NewBuffer([]byte(s))
	b.Append(len(s))

	return b
}

func TestSendvResumeSkipsConsumedBuffers(t *testing.T) {
	list := BufferList{bufOf("abc"), bufOf("defgh"), bufOf("ij")}

	got := sendvResume(list, 0)
	if string(got) != "abcdefghij" {
		t.Fatalf("sendvResume(list, 0) = %q, want %q", got, "abcdefghij")
	}

	got = sendvResume(list, 4)
	if string(got) != "efghij" {
		t.Fatalf("sendvResume(list, 4) = %q, want %q", got, "efghij")
	}

	got = sendvResume(list, 10)
	if len(got) != 0 {
		t.Fatalf("sendvResume(list, 10) = %q, want empty", got)
	}
}

func TestRecvvTargetSkipsFullBuffers(t *testing.T) {
	full := NewBuffer(make([]byte, 4))
	full.Append(4)

	target := NewBuffer(make([]byte, 4))

	list := BufferList{full, target}

	region := recvvTarget(list)
	if len(region) != 4 {
		t.Fatalf("recvvTarget returned %d bytes available, want the second buffer's 4", len(region))
	}
}

func TestRecvvTargetAllFull(t *testing.T) {
	full := NewBuffer(make([]byte, 2))
	full.Append(2)

	if region := recvvTarget(BufferList{full}); region != nil {
		t.Fatalf("recvvTarget with every buffer full = %v, want nil", region)
	}
}

func TestApplyRecvResultRegion(t *testing.T) {
	b := NewBuffer(make([]byte, 8))
	req := &Request{Region: b}

	applyRecvResult(req, 5)

	if b.UsedCount() != 5 {
		t.Fatalf("UsedCount() = %d, want 5", b.UsedCount())
	}
}

func TestApplyRecvResultListFillsFirstAvailable(t *testing.T) {
	full := NewBuffer(make([]byte, 2))
	full.Append(2)

	target := NewBuffer(make([]byte, 4))

	req := &Request{List: BufferList{full, target}}

	applyRecvResult(req, 3)

	if !bytes.Equal(target.Used(), make([]byte, 3)) {
		t.Fatalf("target buffer got %d bytes used, want 3", target.UsedCount())
	}

	if full.UsedCount() != 2 {
		t.Fatalf("already-full buffer should be untouched, got UsedCount() = %d", full.UsedCount())
	}
}
