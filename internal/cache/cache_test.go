package cache

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfiniteRoundTrip(t *testing.T) {
	c := NewInfinite()
	_, err := c.Write([]byte("hello world"))
	require.NoError(t, err)

	require.NoError(t, c.SetOffset(6))

	dst := make([]byte, 5)
	n, err := c.Read(dst, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "world", string(dst))
}

func TestRingEvictsOldest(t *testing.T) {
	c := NewRing(4)
	_, err := c.Write([]byte{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)

	assert.Equal(t, int64(6), c.Total())
	assert.Equal(t, int64(4), c.Level())
	assert.Equal(t, int64(2), c.startAbs)

	// Byte 0 and 1 have scrolled out of the window.
	assert.Equal(t, int64(2), c.Scope(0))
	assert.Equal(t, int64(0), c.Scope(2))

	require.NoError(t, c.SetOffset(2))

	dst := make([]byte, 4)
	n, err := c.Read(dst, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{3, 4, 5, 6}, dst)
}

// TestRingFullWindowRange covers the boundary behaviour from spec.md §8:
// a Range request for the whole stream against a Ring whose level is
// size-1 must return exactly `level` bytes starting at the oldest
// retained byte.
func TestRingFullWindowRange(t *testing.T) {
	c := NewRing(8)
	// Write exactly size-1 bytes so level == size-1, matching the
	// boundary condition named in spec.md.
	data := []byte{1, 2, 3, 4, 5, 6, 7}
	_, err := c.Write(data)
	require.NoError(t, err)
	require.Equal(t, int64(7), c.Level())

	require.NoError(t, c.SetOffset(c.Total()-c.Level()))

	dst := make([]byte, c.Level())
	n, err := c.Read(dst, 0)
	require.NoError(t, err)
	assert.Equal(t, int(c.Level()), n)
	assert.Equal(t, data, dst)
}

func TestFileRoundTripAndEOFAfterFlush(t *testing.T) {
	c, err := NewFile(t.TempDir(), 1024)
	require.NoError(t, err)
	defer c.Destroy()

	_, err = c.Write([]byte("abcdef"))
	require.NoError(t, err)
	require.NoError(t, c.Flush())

	require.NoError(t, c.SetOffset(0))

	dst := make([]byte, 6)
	n, err := c.Read(dst, 0)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "abcdef", string(dst))

	n, err = c.Read(dst, 0)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestScopeBeyondTotalIsNegative(t *testing.T) {
	c := NewInfinite()
	_, _ = c.Write([]byte("abc"))

	assert.Equal(t, int64(-1), c.Scope(10))
}
