package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doismellburning/squeezebox-bridge/internal/ringbuf"
)

func TestOpenSelectsPassThroughForStar(t *testing.T) {
	a, err := Open(nil, '*', '1', '4', '1', '0')
	require.NoError(t, err)
	assert.True(t, a.Thru())
}

func TestOpenUnknownCodecErrors(t *testing.T) {
	_, err := Open(nil, '?', 0, 0, 0, 0)
	assert.Error(t, err)
}

func TestNewStreamPrefersDirectMatch(t *testing.T) {
	assert.Equal(t, 44100, NewStream(44100, []int{48000, 44100, 0}))
}

func TestNewStreamPrefersIntegerFactor(t *testing.T) {
	// 22050 is not directly supported but is a clean factor of 44100.
	assert.Equal(t, 44100, NewStream(22050, []int{44100, 0}))
}

func TestNewStreamFallsBackToHighestCapability(t *testing.T) {
	assert.Equal(t, 48000, NewStream(96000, []int{48000, 0}))
}

func TestNewStreamCapNegativeFirstEntry(t *testing.T) {
	assert.Equal(t, 48000, NewStream(48000, []int{-192000}))
	assert.Equal(t, 192000, NewStream(384000, []int{-192000}))
}

func TestThruAdapterCopiesBytesAndLatchesTrackStart(t *testing.T) {
	a := &thruAdapter{}
	require.NoError(t, a.Open(0, 0, 0, 0))

	streambuf := ringbuf.New(64)
	outputbuf := ringbuf.New(64)
	streambuf.Write([]byte("hello"))

	res, err := a.Decode(streambuf, outputbuf)
	require.NoError(t, err)
	assert.True(t, res.TrackStart)
	assert.Equal(t, 5, res.FramesWritten)

	res2, err := a.Decode(streambuf, outputbuf)
	require.NoError(t, err)
	assert.False(t, res2.TrackStart)
}

func TestBuildADTSFrameHeaderLength(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	frame := buildADTSFrame(payload, 2, 4, 2)
	require.Len(t, frame, 11)
	assert.Equal(t, byte(0xFF), frame[0])
	assert.Equal(t, byte(0xF1), frame[1])
	assert.Equal(t, payload, frame[7:])
}

func TestParseAudioSpecificConfigDefaults(t *testing.T) {
	ot, freq, ch := parseAudioSpecificConfig(nil)
	assert.Equal(t, 2, ot)
	assert.Equal(t, 4, freq)
	assert.Equal(t, 2, ch)
}

func TestDecodeExtended80(t *testing.T) {
	// 44100 Hz encoded as IEEE 754 80-bit extended.
	b := []byte{0x40, 0x0E, 0xAC, 0x44, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	assert.Equal(t, 44100, decodeExtended80(b))
}
