package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/doismellburning/squeezebox-bridge/internal/output"
)

// TestMimeTypeForMP3DoesNotClaimAudioMpeg covers the correctness fix
// that the re-encode MP3 mode, which emits raw PCM rather than a real
// MPEG bitstream, must not be labeled audio/mpeg — a renderer would
// attempt to MP3-decode bytes that aren't MP3 and fail outright.
func TestMimeTypeForMP3DoesNotClaimAudioMpeg(t *testing.T) {
	assert.NotEqual(t, "audio/mpeg", mimeTypeFor(output.ModeMP3))
}

// TestMimeTypeForNullStaysAudioMpeg covers the other side of the same
// fix: the null-mode filler is a genuine (if silent) MPEG-1 Layer III
// bitstream, so its label is unaffected.
func TestMimeTypeForNullStaysAudioMpeg(t *testing.T) {
	assert.Equal(t, "audio/mpeg", mimeTypeFor(output.ModeNull))
}
