// Package ringbuf implements the StreamBuffer/OutputBuffer ring buffers
// of spec.md §3: fixed-capacity circular byte buffers with independent
// read/write cursors, a guarding mutex, and cached contiguous-run
// lengths so callers can get zero-copy slices for a single read/write
// batch without wrapping mid-call.
//
// No teacher file provided a byte ring buffer (direwolf's rrbb.go is a
// bit-level HDLC accumulator, an unrelated structure, and was dropped —
// see DESIGN.md); this package is grounded directly on spec.md §3 and on
// original_source's stream_buf_t/output_buf_t shape.
package ringbuf

import "sync"

// Buffer is a single-producer/single-consumer-safe ring buffer guarded
// by one mutex, matching spec.md's invariant:
//
//	used = (writep - readp) mod size
//	space = size - used - 1
//
// One byte of capacity is always sacrificed so that readp == writep
// unambiguously means "empty" (a full buffer stops at size-1 used).
type Buffer struct {
	mu   sync.Mutex
	buf  []byte
	size int
	rp   int
	wp   int
}

// New allocates a Buffer of size bytes, of which size-1 are usable: one
// byte is kept free so a full buffer is distinguishable from an empty one.
func New(size int) *Buffer {
	if size < 2 {
		size = 2
	}

	return &Buffer{
		buf:  make([]byte, size),
		size: size,
	}
}

// Reset empties the buffer without reallocating, used when a player
// resets between tracks with a flush per spec.md §4.1 ("strm f").
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rp = 0
	b.wp = 0
}

// Resize grows or shrinks capacity. Growing reallocates and copies the
// current contents linearized from rp; shrinking below the current used
// count is rejected (returns false) since spec.md only calls for the
// output buffer to "shrink to an idle size between tracks" — i.e. only
// ever called on an empty-or-draining buffer.
func (b *Buffer) Resize(newSize int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if newSize < 2 {
		newSize = 2
	}

	used := b.usedLocked()
	if newSize-1 < used {
		return false
	}

	next := make([]byte, newSize)
	n := b.copyOutLocked(next)
	b.buf = next
	b.size = newSize
	b.rp = 0
	b.wp = n

	return true
}

func (b *Buffer) copyOutLocked(dst []byte) int {
	used := b.usedLocked()
	if used == 0 {
		return 0
	}

	if b.rp < b.wp {
		return copy(dst, b.buf[b.rp:b.wp])
	}

	n := copy(dst, b.buf[b.rp:])
	n += copy(dst[n:], b.buf[:b.wp])

	return n
}

func (b *Buffer) usedLocked() int {
	if b.wp >= b.rp {
		return b.wp - b.rp
	}

	return b.size - b.rp + b.wp
}

func (b *Buffer) spaceLocked() int {
	return b.size - b.usedLocked() - 1
}

// Used returns the number of unread bytes currently held.
func (b *Buffer) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.usedLocked()
}

// Space returns the number of bytes free to write without wrapping past
// the reader.
func (b *Buffer) Space() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.spaceLocked()
}

// Size returns the buffer's allocated size; at most size-1 bytes are
// writable.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.size
}

// ContiguousWrite returns how many bytes can be written to the tail of
// the internal array in one memcpy before the write cursor would need to
// wrap to index 0.
func (b *Buffer) ContiguousWrite() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.contiguousWriteLocked()
}

func (b *Buffer) contiguousWriteLocked() int {
	space := b.spaceLocked()
	tail := b.size - b.wp

	if tail < space {
		return tail
	}

	return space
}

// ContiguousRead returns how many bytes can be read from the head of the
// internal array in one memcpy before the read cursor would need to wrap.
func (b *Buffer) ContiguousRead() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.contiguousReadLocked()
}

func (b *Buffer) contiguousReadLocked() int {
	used := b.usedLocked()
	tail := b.size - b.rp

	if tail < used {
		return tail
	}

	return used
}

// Write copies as much of src as fits (bounded by Space) into the
// buffer, advancing the write cursor, and returns the number of bytes
// actually written. It never blocks and never wraps mid-slice; a write
// that would cross the array end is split into two copies.
func (b *Buffer) Write(src []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	space := b.spaceLocked()

	n := len(src)
	if n > space {
		n = space
	}

	if n == 0 {
		return 0
	}

	first := b.contiguousWriteLocked()
	if first > n {
		first = n
	}

	copy(b.buf[b.wp:b.wp+first], src[:first])
	b.wp = (b.wp + first) % b.size

	if rest := n - first; rest > 0 {
		copy(b.buf[b.wp:b.wp+rest], src[first:n])
		b.wp = (b.wp + rest) % b.size
	}

	return n
}

// Read copies up to len(dst) unread bytes into dst, advancing the read
// cursor, and returns the number of bytes actually read.
func (b *Buffer) Read(dst []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	used := b.usedLocked()

	n := len(dst)
	if n > used {
		n = used
	}

	if n == 0 {
		return 0
	}

	first := b.contiguousReadLocked()
	if first > n {
		first = n
	}

	copy(dst[:first], b.buf[b.rp:b.rp+first])
	b.rp = (b.rp + first) % b.size

	if rest := n - first; rest > 0 {
		copy(dst[first:n], b.buf[b.rp:b.rp+rest])
		b.rp = (b.rp + rest) % b.size
	}

	return n
}

// Peek returns a zero-copy slice of up to n contiguous unread bytes
// without advancing the read cursor, mirroring the decoder's need to
// inspect header bytes before committing to consume them (spec.md §4.3
// MP4 atom sniffing). The caller must not retain the slice past the next
// mutating call.
func (b *Buffer) Peek(n int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	avail := b.contiguousReadLocked()
	if n > avail {
		n = avail
	}

	return b.buf[b.rp : b.rp+n]
}

// Advance moves the read cursor forward by n bytes without copying,
// mirroring _buf_inc_readp. n must not exceed Used().
func (b *Buffer) Advance(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	used := b.usedLocked()
	if n > used {
		n = used
	}

	b.rp = (b.rp + n) % b.size
}

// WriteAdvance reserves n bytes at the write cursor without copying,
// returning up to two slices (a leading contiguous run and, if the
// reservation wrapped, a trailing run from index 0) the caller must fill
// completely. This mirrors the decoder writing decoded frames directly
// into outputbuf. n must not exceed Space().
func (b *Buffer) WriteAdvance(n int) (first, second []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	space := b.spaceLocked()
	if n > space {
		n = space
	}

	firstLen := b.contiguousWriteLocked()
	if firstLen > n {
		firstLen = n
	}

	first = b.buf[b.wp : b.wp+firstLen]
	b.wp = (b.wp + firstLen) % b.size

	if rest := n - firstLen; rest > 0 {
		second = b.buf[b.wp : b.wp+rest]
		b.wp = (b.wp + rest) % b.size
	}

	return first, second
}

// Invariant is exported purely for property tests: it re-derives
// used/space from the cursors and checks the spec.md §3/§8 identity
// used + space + 1 == size, plus that both cursors stay in range.
func (b *Buffer) Invariant() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.rp < 0 || b.rp >= b.size || b.wp < 0 || b.wp >= b.size {
		return false
	}

	return b.usedLocked()+b.spaceLocked()+1 == b.size
}
