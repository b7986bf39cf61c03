package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodeLeavesSpaceAndParensLiteral(t *testing.T) {
	assert.Equal(t, "Rock (Remastered)", Encode("Rock (Remastered)"))
}

func TestEncodeEscapesPercent(t *testing.T) {
	assert.Equal(t, "100%25", Encode("100%"))
}

func TestEncodeEscapesNonASCIIByte(t *testing.T) {
	assert.Equal(t, "caf%C3%A9", Encode("café"))
}

func TestDecodeTruncatedEscapeErrors(t *testing.T) {
	_, err := Decode("abc%2")
	assert.Error(t, err)
}

func TestDecodeInvalidHexErrors(t *testing.T) {
	_, err := Decode("abc%ZZ")
	assert.Error(t, err)
}

// TestEncodeDecodeRoundTrip covers spec.md §8's "for any ASCII string S,
// decode(encode(S)) == S" testable property, extended to arbitrary byte
// strings since LMS metadata may carry UTF-8.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.String().Draw(t, "s")

		encoded := Encode(s)
		decoded, err := Decode(encoded)
		require.NoError(t, err)
		assert.Equal(t, s, decoded)
	})
}
