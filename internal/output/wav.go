package output

import "encoding/binary"

// buildWAVHeader synthesises a fixed 44-byte canonical WAV header (PCM
// format, no extension chunks) ahead of the PCM body, per spec.md §4.4.
// contentBytes is the precomputed body length; riffSize and dataSize are
// filled in assuming it is exact (streams with no known duration size it
// from FakeLengthMs).
func buildWAVHeader(cfg Config, contentBytes int64) []byte {
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

	byteRate := cfg.SampleRate * channels * bits / 8
	blockAlign := channels * bits / 8

	h := make([]byte, 44)

	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], uint32(36+contentBytes))
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(h[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(h[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(cfg.SampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(h[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:36], uint16(bits))
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], uint32(contentBytes))

	return h
}
