package output

import "encoding/binary"

// buildAIFFHeader synthesises a fixed 54-byte AIFF header ahead of the
// PCM body: FORM/AIFF, an 18-byte COMM chunk, and an SSND chunk header
// with no trailing data yet (the audio samples that follow ARE the SSND
// chunk's data, per spec.md §4.4).
func buildAIFFHeader(cfg Config, contentBytes int64) []byte {
	bits := 32
	if cfg.L24Trunc16 {
		bits = 16
	} else if cfg.SourceBits > 0 {
		bits = cfg.SourceBits
	}

	channels := cfg.Channels
	if channels <= 0 {
		channels = 2
	}

	blockAlign := channels * bits / 8
	numFrames := int64(0)
	if blockAlign > 0 {
		numFrames = contentBytes / int64(blockAlign)
	}

	ssndSize := 8 + contentBytes // offset(4)+blockSize(4)+data
	formSize := 4 + (8 + 18) + (8 + ssndSize)

	h := make([]byte, 54)

	copy(h[0:4], "FORM")
	binary.BigEndian.PutUint32(h[4:8], uint32(formSize))
	copy(h[8:12], "AIFF")

	copy(h[12:16], "COMM")
	binary.BigEndian.PutUint32(h[16:20], 18)
	binary.BigEndian.PutUint16(h[20:22], uint16(channels))
	binary.BigEndian.PutUint32(h[22:26], uint32(numFrames))
	binary.BigEndian.PutUint16(h[26:28], uint16(bits))
	copy(h[28:38], encodeExtended80(cfg.SampleRate))

	copy(h[38:42], "SSND")
	binary.BigEndian.PutUint32(h[42:46], uint32(ssndSize))
	binary.BigEndian.PutUint32(h[46:50], 0) // offset
	binary.BigEndian.PutUint32(h[50:54], 0) // block size

	return h
}

// encodeExtended80 is the inverse of internal/decode's decodeExtended80:
// it encodes an integer Hz sample rate as an IEEE 754 80-bit extended
// float, AIFF COMM's required representation.
func encodeExtended80(hz int) []byte {
	b := make([]byte, 10)

	if hz <= 0 {
		return b
	}

	exponent := 0
	mantissa := uint64(hz)

	for mantissa < (1 << 63) {
		mantissa <<= 1
		exponent--
	}

	// bias 16383, plus 63 since the mantissa is left-justified with an
	// explicit integer bit at position 63
	biased := exponent + 16383 + 63

	binary.BigEndian.PutUint16(b[0:2], uint16(biased))
	binary.BigEndian.PutUint64(b[2:10], mantissa)

	return b
}
