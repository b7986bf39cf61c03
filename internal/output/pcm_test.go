package output

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnpackFramesRoundTrip(t *testing.T) {
	raw := []byte{
		0x00, 0x00, 0x00, 0x40, // L = 1<<30
		0x00, 0x00, 0x00, 0x20, // R = 1<<29
	}

	frames := unpackFrames(raw, 2)
	require.Len(t, frames, 1)
	assert.Equal(t, int32(1<<30), frames[0].L)
	assert.Equal(t, int32(1<<29), frames[0].R)
}

func TestPackPCM16BitShiftsDown(t *testing.T) {
	s := &Stream{cfg: Config{Channels: 2, SourceBits: 16}}

	frames := []frame32{{L: 1 << 30, R: -(1 << 30)}}
	out := s.packPCM(frames)

	require.Len(t, out, 4)
	assert.Equal(t, int16(1<<14), int16(uint16(out[0])|uint16(out[1])<<8))
}

func TestPackL24BuffersOddFrame(t *testing.T) {
	s := &Stream{cfg: Config{Channels: 2, SourceBits: 24, L24Packed: true}}

	out := s.packL24([]frame32{{L: 1, R: 2}})
	assert.Empty(t, out)
	assert.Len(t, s.l24Pending, 1)

	out2 := s.packL24([]frame32{{L: 3, R: 4}})
	assert.Len(t, out2, 12)
	assert.Empty(t, s.l24Pending)
}
