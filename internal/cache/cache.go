// Package cache implements the three CacheBuffer variants of spec.md §3:
// Ring (bounded circular, drops old bytes), Infinite (grows in memory),
// and File (append-only tmpfile, read back from disk). All three
// satisfy the Buffer interface so internal/httpserver can treat them
// polymorphically the way the teacher's vtable-based kiss_frame dispatch
// treats heterogeneous frame sources through one function-pointer table
// (adapted here to a Go interface, per DESIGN.md).
package cache

import (
	"fmt"
	"io"
	"os"
)

// Buffer is the cache contract shared by Ring, Infinite, and File.
type Buffer interface {
	// Write appends src, evicting the oldest bytes first if a bounded
	// implementation is full.
	Write(src []byte) (int, error)

	// Total returns the number of bytes ever written.
	Total() int64

	// Level returns the number of bytes currently retained (<= Total).
	Level() int64

	// Pending returns the number of retained-but-unread bytes for the
	// current read cursor.
	Pending() int64

	// Scope reports whether offset is servable: 0 if the offset is
	// within the retained window, a positive gap (in bytes, how far
	// short of the window the offset is) if the offset has already
	// fallen out of the window, or -1 if the offset is beyond
	// everything written so far.
	Scope(offset int64) int64

	// SetOffset repositions the read cursor to an absolute offset that
	// Scope reported as 0.
	SetOffset(offset int64) error

	// Read copies up to len(dst) bytes starting at the read cursor,
	// blocking for at least min bytes only in the sense of returning
	// what's available; callers loop. File returns (0, io.EOF) once Flush
	// has been called and the cursor has reached the end; Ring and
	// Infinite never return io.EOF and report (0, nil) when caught up.
	Read(dst []byte, min int) (int, error)

	// Flush marks writing complete; no further Write calls are valid.
	Flush() error

	// Destroy releases any backing resource (file descriptor, memory).
	Destroy() error
}

// Select picks a cache implementation per spec.md §4.5's
// "Cache selection by config.cache": Infinite by default, Ring if
// HTTP_CACHE_MEMORY, File if HTTP_CACHE_DISK and duration > 0.
func Select(mode string, durationKnown bool, scratchDir string) (Buffer, error) {
	switch mode {
	case "HTTP_CACHE_MEMORY":
		return NewRing(8 * 1024 * 1024), nil
	case "HTTP_CACHE_DISK":
		if durationKnown {
			return NewFile(scratchDir, 128*1024)
		}

		return NewInfinite(), nil
	default:
		return NewInfinite(), nil
	}
}

// ---- Infinite ----

// Infinite grows without bound in memory; every byte ever written is
// retained and servable.
type Infinite struct {
	buf    []byte
	cursor int64
}

func NewInfinite() *Infinite {
	return &Infinite{}
}

func (c *Infinite) Write(src []byte) (int, error) {
	c.buf = append(c.buf, src...)
	return len(src), nil
}

func (c *Infinite) Total() int64   { return int64(len(c.buf)) }
func (c *Infinite) Level() int64   { return int64(len(c.buf)) }
func (c *Infinite) Pending() int64 { return int64(len(c.buf)) - c.cursor }

func (c *Infinite) Scope(offset int64) int64 {
	if offset > int64(len(c.buf)) {
		return -1
	}

	return 0
}

func (c *Infinite) SetOffset(offset int64) error {
	if offset < 0 || offset > int64(len(c.buf)) {
		return fmt.Errorf("cache: offset %d out of range [0,%d]", offset, len(c.buf))
	}

	c.cursor = offset

	return nil
}

func (c *Infinite) Read(dst []byte, min int) (int, error) {
	_ = min

	if c.cursor >= int64(len(c.buf)) {
		return 0, nil
	}

	n := copy(dst, c.buf[c.cursor:])
	c.cursor += int64(n)

	return n, nil
}

func (c *Infinite) Flush() error   { return nil }
func (c *Infinite) Destroy() error { c.buf = nil; return nil }

// ---- Ring ----

// Ring is a bounded circular cache: writes past capacity silently evict
// the oldest retained bytes. It retains up to size bytes (level can equal
// size), and Pending counts from the read cursor to total without being
// clamped to the retained window.
type Ring struct {
	buf      []byte
	size     int64
	total    int64 // bytes ever written
	startAbs int64 // absolute offset of buf[0]'s logical position (oldest retained byte)
	level    int64 // bytes currently retained (<= size)
	wp       int64 // write index into buf, mod size
	cursor   int64 // absolute read offset
}

func NewRing(size int) *Ring {
	if size < 1 {
		size = 1
	}

	return &Ring{buf: make([]byte, size), size: int64(size)}
}

func (c *Ring) Write(src []byte) (int, error) {
	for _, b := range src {
		c.buf[c.wp] = b
		c.wp = (c.wp + 1) % c.size
		c.total++

		if c.level < c.size {
			c.level++
		} else {
			c.startAbs++
		}
	}

	return len(src), nil
}

func (c *Ring) Total() int64 { return c.total }
func (c *Ring) Level() int64 { return c.level }

func (c *Ring) Pending() int64 {
	p := c.total - c.cursor
	if p < 0 {
		return 0
	}

	return p
}

// Scope reports 0 if offset is within [startAbs, total), a positive gap
// if it has already scrolled out of the window, -1 if it's beyond total.
func (c *Ring) Scope(offset int64) int64 {
	if offset > c.total {
		return -1
	}

	if offset < c.startAbs {
		return c.startAbs - offset
	}

	return 0
}

func (c *Ring) SetOffset(offset int64) error {
	if c.Scope(offset) != 0 {
		return fmt.Errorf("cache: offset %d not in retained window [%d,%d]", offset, c.startAbs, c.total)
	}

	c.cursor = offset

	return nil
}

func (c *Ring) Read(dst []byte, min int) (int, error) {
	_ = min

	avail := c.total - c.cursor
	if avail <= 0 {
		return 0, nil
	}

	n := int64(len(dst))
	if n > avail {
		n = avail
	}

	// index of c.cursor within buf: the oldest retained byte sits at
	// (wp - level) mod size, which corresponds to absolute startAbs.
	oldestIdx := ((c.wp-c.level)%c.size + c.size) % c.size
	off := c.cursor - c.startAbs
	idx := (oldestIdx + off) % c.size

	var read int64
	for read < n {
		run := c.size - idx
		if run > n-read {
			run = n - read
		}

		copy(dst[read:read+run], c.buf[idx:idx+run])
		read += run
		idx = (idx + run) % c.size
	}

	c.cursor += read

	return int(read), nil
}

func (c *Ring) Flush() error   { return nil }
func (c *Ring) Destroy() error { c.buf = nil; return nil }

// ---- File ----

// File is an append-only tmpfile cache. Writes go straight to the file
// and reads use ReadAt on it; the scratch slice is allocated but no read
// or write goes through it, so every read is a disk read. Scope always returns 0 for any
// offset <= total once flushed, matching "File and Infinite are
// unbounded".
type File struct {
	f       *os.File
	scratch []byte
	total   int64
	cursor  int64
	flushed bool
}

func NewFile(dir string, scratchSize int) (*File, error) {
	f, err := os.CreateTemp(dir, "squeezebox-bridge-cache-*")
	if err != nil {
		return nil, fmt.Errorf("cache: create tmpfile: %w", err)
	}

	if scratchSize < 0 {
		scratchSize = 0
	}

	return &File{f: f, scratch: make([]byte, 0, scratchSize)}, nil
}

func (c *File) Write(src []byte) (int, error) {
	n, err := c.f.Write(src)
	if err != nil {
		return n, fmt.Errorf("cache: write tmpfile: %w", err)
	}

	c.total += int64(n)

	return n, nil
}

func (c *File) Total() int64   { return c.total }
func (c *File) Level() int64   { return c.total }
func (c *File) Pending() int64 { return c.total - c.cursor }

func (c *File) Scope(offset int64) int64 {
	if offset > c.total {
		return -1
	}

	return 0
}

func (c *File) SetOffset(offset int64) error {
	if offset < 0 || offset > c.total {
		return fmt.Errorf("cache: offset %d out of range [0,%d]", offset, c.total)
	}

	c.cursor = offset

	return nil
}

func (c *File) Read(dst []byte, min int) (int, error) {
	_ = min

	if c.cursor >= c.total {
		if c.flushed {
			return 0, io.EOF
		}

		return 0, nil
	}

	n, err := c.f.ReadAt(dst, c.cursor)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("cache: read tmpfile: %w", err)
	}

	c.cursor += int64(n)

	return n, nil
}

func (c *File) Flush() error {
	c.flushed = true
	return nil
}

func (c *File) Destroy() error {
	name := c.f.Name()
	_ = c.f.Close()

	return os.Remove(name)
}
