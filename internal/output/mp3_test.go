package output

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSilenceFrameIs209Bytes(t *testing.T) {
	require.Len(t, silenceMP3Frame, 209)
	assert.Equal(t, byte(0xFF), silenceMP3Frame[0])
	assert.Equal(t, byte(0xFB), silenceMP3Frame[1])
}

func TestMP3EncoderFlushesPendingOnFinish(t *testing.T) {
	enc := newMP3Encoder(Config{Channels: 2})

	frames := make([]frame32, 10) // fewer than one full mp3BlockSamples block
	out := enc.encode(frames)
	assert.Empty(t, out)

	flushed := enc.finish()
	assert.Len(t, flushed, 10*2*2) // 10 frames * 2 channels * 2 bytes/sample
}
