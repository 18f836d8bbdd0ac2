package ioengine

import (
	"sort"
	"sync"
)

// Buffer is the engine's view of the "memory context" / "buffer
// abstraction" collaborators spec.md §1 treats as external: a typed byte
// region with a used sub-region and an available sub-region, supporting
// append semantics. Real deployments may implement this over their own
// allocator; BufferPool below is the in-process default this repo ships
// so the engine is runnable standalone.
type Buffer struct {
	data []byte
	used int
}

// NewBuffer wraps an existing slice as a Buffer with nothing used yet.
func NewBuffer(data []byte) *Buffer { return &Buffer{data: data} }

// Used returns the portion of the buffer already filled (by the caller,
// as the bytes a send transmits, or by a receive). Send progress is kept
// in the request's N, not in this buffer.
func (b *Buffer) Used() []byte { return b.data[:b.used] }

// Available returns the portion of the buffer still free to receive into.
func (b *Buffer) Available() []byte { return b.data[b.used:] }

// Cap returns the total capacity of the underlying region.
func (b *Buffer) Cap() int { return len(b.data) }

// UsedCount returns the number of bytes already consumed/filled.
func (b *Buffer) UsedCount() int { return b.used }

// Append advances the used count by n, which must not exceed Available's
// length. It is how the message builder and recv completion account for
// bytes the kernel placed into this buffer.
func (b *Buffer) Append(n int) {
	b.used += n
	if b.used > len(b.data) {
		b.used = len(b.data)
	}
}

// Reset clears the used region, making the whole buffer available again.
func (b *Buffer) Reset() { b.used = 0 }

// BufferList is an ordered list of buffers used by the list-of-buffers
// request mode (recvv/sendv). Resume-from-n logic in the message builder
// walks this list skipping buffers already fully consumed.
type BufferList []*Buffer

// TotalAvailable sums every buffer's Available() length; used as the
// default minimum for a TCP recvv with no explicit minimum.
func (l BufferList) TotalAvailable() int {
	n := 0
	for _, b := range l {
		n += len(b.Available())
	}

	return n
}

// TotalUsed sums every buffer's UsedCount: the total bytes a sendv of
// this list carries.
func (l BufferList) TotalUsed() int {
	n := 0
	for _, b := range l {
		n += b.UsedCount()
	}

	return n
}

// bucket is one size class of the pool.
type bucket struct {
	size  int
	limit int64
	pool  sync.Pool
}

// BufferPool provides reusable, size-bucketed byte buffers for receive
// regions, adapted from a generic network-buffer pool into the engine's
// Buffer contract. It reduces GC pressure under the high-frequency,
// small-message traffic this engine is built for (UDP datagrams, TCP
// reads into fixed regions).
type BufferPool struct {
	buckets []bucket
}

// BufferPoolConfig mirrors the bucket/limit shape callers tune pools with.
type BufferPoolConfig struct {
	BucketSizes  []int
	MaxPerBucket int
}

// DefaultBufferPool returns a BufferPool sized for typical datagram and
// stream read sizes.
func DefaultBufferPool() *BufferPool {
	return NewBufferPool(BufferPoolConfig{
		BucketSizes:  []int{512, 1500, 4096, 16384, 65536},
		MaxPerBucket: 256,
	})
}

// NewBufferPool creates a BufferPool with the given configuration.
func NewBufferPool(cfg BufferPoolConfig) *BufferPool {
	sizes := append([]int(nil), cfg.BucketSizes...)
	sort.Ints(sizes)

	buckets := make([]bucket, len(sizes))
	for i, sz := range sizes {
		size := sz
		buckets[i] = bucket{
			size:  size,
			limit: int64(cfg.MaxPerBucket),
			pool:  sync.Pool{New: func() any { return make([]byte, size) }},
		}
	}

	return &BufferPool{buckets: buckets}
}

// Get returns a Buffer backed by a slice of capacity >= n. Oversize
// requests allocate a fresh, unpooled slice.
func (p *BufferPool) Get(n int) *Buffer {
	if n <= 0 {
		n = 1
	}

	idx := p.findBucket(n)
	if idx < 0 {
		return NewBuffer(make([]byte, n))
	}

	buf := p.buckets[idx].pool.Get().([]byte)

	return NewBuffer(buf[:p.buckets[idx].size])
}

// Put returns a Buffer's storage to the pool if its capacity matches a
// known bucket size.
func (p *BufferPool) Put(b *Buffer) {
	if b == nil {
		return
	}

	capn := cap(b.data)

	idx := p.findBucket(capn)
	if idx < 0 || p.buckets[idx].size != capn {
		return
	}

	b.Reset()
	p.buckets[idx].pool.Put(b.data[:capn])
}

func (p *BufferPool) findBucket(n int) int {
	i := sort.Search(len(p.buckets), func(i int) bool { return p.buckets[i].size >= n })
	if i >= len(p.buckets) {
		return -1
	}

	return i
}
