package output

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFLACEncoderEmitsMagicOnFirstCall(t *testing.T) {
	enc, err := newFLACEncoder(Config{Channels: 2, SampleRate: 44100, SourceBits: 16, DurationFrames: 10})
	require.NoError(t, err)

	out, err := enc.encode([]frame32{{L: 100, R: 200}})
	require.NoError(t, err)

	assert.Equal(t, "fLaC", string(out[0:4]))
	assert.Equal(t, byte(0x80), out[4]) // last-metadata-block flag + STREAMINFO type
}

func TestFLACEncoderRejectsUnsupportedBitDepth(t *testing.T) {
	_, err := newFLACEncoder(Config{SourceBits: 20})
	assert.Error(t, err)
}

func TestFrameNumberUTF8EncodingSmallValues(t *testing.T) {
	assert.Equal(t, []byte{0x00}, encodeUTF8FrameNumber(0))
	assert.Equal(t, []byte{0x7F}, encodeUTF8FrameNumber(0x7F))

	two := encodeUTF8FrameNumber(0x100)
	require.Len(t, two, 2)
	assert.Equal(t, byte(0xC0|(0x100>>6)), two[0])
}

func TestBitWriterPacksMSBFirst(t *testing.T) {
	bw := newBitWriter()
	bw.writeBits(0b101, 3)
	bw.writeBits(0b00000, 5)

	assert.Equal(t, []byte{0b10100000}, bw.bytes())
}

func TestCRC8KnownVector(t *testing.T) {
	// CRC-8/FLAC (poly 0x07, init 0) of a single zero byte is 0.
	assert.Equal(t, byte(0), crc8([]byte{0x00}))
}
