package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestInvariantAfterInit(t *testing.T) {
	b := New(16)
	assert.True(t, b.Invariant())
	assert.Equal(t, 0, b.Used())
	assert.Equal(t, 15, b.Space())
}

func TestWriteReadRoundTrip(t *testing.T) {
	b := New(8)

	n := b.Write([]byte("hello"))
	require.Equal(t, 5, n)
	assert.True(t, b.Invariant())

	dst := make([]byte, 5)
	got := b.Read(dst)
	require.Equal(t, 5, got)
	assert.Equal(t, "hello", string(dst))
	assert.True(t, b.Invariant())
	assert.Equal(t, 0, b.Used())
}

func TestWriteStopsAtCapacity(t *testing.T) {
	b := New(4) // 3 usable bytes

	n := b.Write([]byte{1, 2, 3, 4, 5})
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, b.Used())
	assert.Equal(t, 0, b.Space())
	assert.True(t, b.Invariant())
}

func TestWrapAroundPreservesOrder(t *testing.T) {
	b := New(4) // capacity 3

	b.Write([]byte{1, 2, 3})
	out := make([]byte, 2)
	b.Read(out) // consume 2, rp advances past wrap point

	n := b.Write([]byte{4, 5})
	require.Equal(t, 2, n)

	rest := make([]byte, 3)
	got := b.Read(rest)
	require.Equal(t, 3, got)
	assert.Equal(t, []byte{3, 4, 5}, rest)
	assert.True(t, b.Invariant())
}

func TestPeekDoesNotAdvance(t *testing.T) {
	b := New(8)
	b.Write([]byte("abc"))

	p := b.Peek(2)
	assert.Equal(t, []byte("ab"), p)
	assert.Equal(t, 3, b.Used())
}

func TestWriteAdvanceFillsReservation(t *testing.T) {
	b := New(8)

	first, second := b.WriteAdvance(5)
	total := len(first) + len(second)
	require.Equal(t, 5, total)

	for i := range first {
		first[i] = byte(i)
	}
	for i := range second {
		second[i] = byte(len(first) + i)
	}

	out := make([]byte, 5)
	b.Read(out)
	for i := range out {
		assert.Equal(t, byte(i), out[i])
	}
}

func TestResizeRejectsShrinkBelowUsed(t *testing.T) {
	b := New(8)
	b.Write([]byte("abcdef"))

	ok := b.Resize(4) // usable 3 bytes, but 6 used
	assert.False(t, ok)
	assert.Equal(t, 6, b.Used())
}

func TestResizeGrowsAndPreservesContent(t *testing.T) {
	b := New(4)
	b.Write([]byte{1, 2, 3})

	ok := b.Resize(16)
	require.True(t, ok)

	out := make([]byte, 3)
	b.Read(out)
	assert.Equal(t, []byte{1, 2, 3}, out)
}

// TestRapidInvariantHolds drives a random sequence of writes, reads, and
// peeks/advances against the buffer and asserts the spec.md §8 universal
// invariant after every operation, plus that bytes read out are always a
// prefix of everything ever written that hasn't already been consumed
// (FIFO ordering is never violated by the wraparound logic).
func TestRapidInvariantHolds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(2, 64).Draw(t, "size")
		b := New(size)

		var written, read []byte
		var nextWrite byte

		ops := rapid.IntRange(1, 200).Draw(t, "ops")
		for i := 0; i < ops; i++ {
			op := rapid.IntRange(0, 2).Draw(t, "op")

			switch op {
			case 0:
				n := rapid.IntRange(0, size*2).Draw(t, "writeLen")
				src := make([]byte, n)
				for j := range src {
					src[j] = nextWrite
					nextWrite++
				}

				wrote := b.Write(src)
				written = append(written, src[:wrote]...)
				// Any bytes we generated but couldn't write are simply
				// lost, matching "never blocks": roll nextWrite back so
				// the FIFO check below stays consistent.
				nextWrite -= byte(n - wrote)
			case 1:
				n := rapid.IntRange(0, size*2).Draw(t, "readLen")
				dst := make([]byte, n)
				got := b.Read(dst)
				read = append(read, dst[:got]...)
			case 2:
				n := rapid.IntRange(0, size).Draw(t, "peekLen")
				p := b.Peek(n)
				adv := rapid.IntRange(0, len(p)).Draw(t, "advanceLen")
				read = append(read, p[:adv]...)
				b.Advance(adv)
			}

			if !b.Invariant() {
				t.Fatalf("invariant violated after op %d", i)
			}
		}

		// Everything read so far must be an exact prefix of everything
		// written so far.
		if len(read) > len(written) {
			t.Fatalf("read more bytes than were ever written")
		}
		for i := range read {
			if read[i] != written[i] {
				t.Fatalf("FIFO order violated at index %d: got %d want %d", i, read[i], written[i])
			}
		}
	})
}
