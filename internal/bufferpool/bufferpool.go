// Package bufferpool implements the core's BufferPool component: a
// thread-safe rent/return allocator for variable-sized byte arrays. Rent is
// infallible and may grow the backing arena; returned arrays may still hold
// arbitrary prior content, so callers must not assume zeroing.
package bufferpool

import (
	"sync"

	"github.com/valyala/bytebufferpool"
)

// Pool rents byte slices of at least a requested size. It wraps a single
// sync.Pool, with no size classes, the way the teacher's generic Pool[T] does,
// adding a size-aware Rent that swaps in a bigger slice instead of growing
// one in place when the pooled capacity falls short.
type Pool struct {
	pool sync.Pool
	size int
}

// New creates a Pool whose freshly-minted buffers start at initialSize
// capacity.
func New(initialSize int) *Pool {
	return &Pool{
		size: initialSize,
		pool: sync.Pool{
			New: func() any {
				return make([]byte, 0, initialSize)
			},
		},
	}
}

// Rent returns a byte slice of length 0 and capacity >= minSize.
func (p *Pool) Rent(minSize int) []byte {
	v := p.pool.Get().([]byte)
	if cap(v) < minSize {
		// Too small for this request; let the GC reclaim it and mint a
		// correctly-sized replacement instead of growing in place.
		return make([]byte, 0, minSize)
	}
	return v[:0]
}

// Return makes buf available for reuse. Its contents are left untouched —
// callers must not assume zeroing on the next Rent.
func (p *Pool) Return(buf []byte) {
	if buf == nil {
		return
	}
	p.pool.Put(buf) //nolint:staticcheck // intentionally storing a slice header
}

// writerPool backs the pooled writer Response.JSON encodes into, via
// valyala/bytebufferpool's size-classed pool —
// grounded in the teacher's own direct dependency on this library.
var writerPool bytebufferpool.Pool

// RentWriter returns a pooled *bytebufferpool.ByteBuffer with length 0.
func RentWriter() *bytebufferpool.ByteBuffer {
	return writerPool.Get()
}

// ReturnWriter releases a writer rented from RentWriter.
func ReturnWriter(b *bytebufferpool.ByteBuffer) {
	if b == nil {
		return
	}
	writerPool.Put(b)
}
