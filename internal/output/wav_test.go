package output

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildWAVHeaderFields(t *testing.T) {
	cfg := Config{Channels: 2, SampleRate: 44100, SourceBits: 16}
	h := buildWAVHeader(cfg, 1000)

	assert.Len(t, h, 44)
	assert.Equal(t, "RIFF", string(h[0:4]))
	assert.Equal(t, "WAVE", string(h[8:12]))
	assert.Equal(t, "fmt ", string(h[12:16]))
	assert.Equal(t, "data", string(h[36:40]))
	assert.Equal(t, uint32(1000), binary.LittleEndian.Uint32(h[40:44]))
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(h[22:24]))
	assert.Equal(t, uint32(44100), binary.LittleEndian.Uint32(h[24:28]))
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(h[34:36]))
}

func TestBuildAIFFHeaderFields(t *testing.T) {
	cfg := Config{Channels: 2, SampleRate: 44100, SourceBits: 16}
	h := buildAIFFHeader(cfg, 2000)

	assert.Len(t, h, 54)
	assert.Equal(t, "FORM", string(h[0:4]))
	assert.Equal(t, "AIFF", string(h[8:12]))
	assert.Equal(t, "COMM", string(h[12:16]))
	assert.Equal(t, "SSND", string(h[38:42]))
	assert.Equal(t, uint16(2), binary.BigEndian.Uint16(h[20:22]))
	assert.Equal(t, uint16(16), binary.BigEndian.Uint16(h[26:28]))
}

func TestExtendedRoundTrip(t *testing.T) {
	for _, hz := range []int{44100, 48000, 96000, 8000} {
		enc := encodeExtended80(hz)
		assert.Equal(t, hz, decodeExtended80ForTest(enc))
	}
}

// decodeExtended80ForTest mirrors internal/decode's decodeExtended80
// (unexported there) so this package can verify its own encoder without
// an import cycle.
func decodeExtended80ForTest(b []byte) int {
	exponent := int(binary.BigEndian.Uint16(b[0:2]))
	mantissa := binary.BigEndian.Uint64(b[2:10])

	shift := exponent - 16383 - 63
	if shift >= 0 {
		return int(mantissa << uint(shift))
	}

	return int(mantissa >> uint(-shift))
}
