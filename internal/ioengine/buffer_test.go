package ioengine

import "testing"

func TestBufferAppendAndViews(t *testing.T) {
	b := NewBuffer(make([]byte, 8))

	if len(b.Used()) != 0 {
		t.Fatalf("fresh buffer has %d used bytes, want 0", len(b.Used()))
	}

	if len(b.Available()) != 8 {
		t.Fatalf("fresh buffer has %d available bytes, want 8", len(b.Available()))
	}

	copy(b.Available(), []byte("hello"))
	b.Append(5)

	if string(b.Used()) != "hello" {
		t.Fatalf("Used() = %q, want %q", b.Used(), "hello")
	}

	if len(b.Available()) != 3 {
		t.Fatalf("Available() = %d bytes, want 3", len(b.Available()))
	}
}

func TestBufferAppendClampsToCapacity(t *testing.T) {
	b := NewBuffer(make([]byte, 4))
	b.Append(100)

	if b.UsedCount() != 4 {
		t.Fatalf("UsedCount() = %d, want clamp to 4", b.UsedCount())
	}
}

func TestBufferReset(t *testing.T) {
	b := NewBuffer(make([]byte, 4))
	b.Append(4)
	b.Reset()

	if b.UsedCount() != 0 {
		t.Fatalf("UsedCount() after Reset = %d, want 0", b.UsedCount())
	}
}

func TestBufferListTotals(t *testing.T) {
	a := NewBuffer(make([]byte, 4))
	b := NewBuffer(make([]byte, 4))
	a.Append(1)
	b.Append(2)

	list := BufferList{a, b}

	if got := list.TotalUsed(); got != 3 {
		t.Fatalf("TotalUsed() = %d, want 3", got)
	}

	if got := list.TotalAvailable(); got != 5 {
		t.Fatalf("TotalAvailable() = %d, want 5", got)
	}
}

func TestBufferPoolReuse(t *testing.T) {
	p := NewBufferPool(BufferPoolConfig{BucketSizes: []int{64, 256}, MaxPerBucket: 4})

	b := p.Get(100)
	if b.Cap() != 256 {
		t.Fatalf("Get(100).Cap() = %d, want 256 (next bucket up)", b.Cap())
	}

	b.Append(10)
	p.Put(b)

	b2 := p.Get(200)
	if b2.Cap() != 256 {
		t.Fatalf("Get(200).Cap() = %d, want 256", b2.Cap())
	}

	if b2.UsedCount() != 0 {
		t.Fatalf("pooled buffer returned with UsedCount() = %d, want 0 (Put must Reset)", b2.UsedCount())
	}
}

func TestBufferPoolOversizeBypassesPool(t *testing.T) {
	p := NewBufferPool(BufferPoolConfig{BucketSizes: []int{64}, MaxPerBucket: 4})

	b := p.Get(1000)
	if b.Cap() != 1000 {
		t.Fatalf("Get(1000).Cap() = %d, want 1000 (oversize, unpooled)", b.Cap())
	}
}
