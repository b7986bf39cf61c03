package output

import "encoding/binary"

// unpackFrames reinterprets a raw batch read out of outputbuf — 32-bit
// stereo frames per spec.md §4.3's internal working format — as a slice
// of frame32 for gain_and_fade to operate on.
func unpackFrames(raw []byte, channels int) []frame32 {
	if channels < 2 {
		channels = 2
	}

	bytesPerFrame := channels * 4
	n := len(raw) / bytesPerFrame
	frames := make([]frame32, n)

	for i := 0; i < n; i++ {
		off := i * bytesPerFrame
		frames[i].L = int32(binary.LittleEndian.Uint32(raw[off:]))
		frames[i].R = int32(binary.LittleEndian.Uint32(raw[off+4:]))
	}

	return frames
}

// packPCM scales the internal 32-bit samples down to the configured
// output bit depth and packs them little-endian (WAV) per spec.md §4.4,
// applying L24_PACKED_LPCM or L24_TRUNC16 if configured.
func (s *Stream) packPCM(frames []frame32) []byte {
	if s.cfg.L24Packed {
		return s.packL24(frames)
	}

	bits := s.outputBitsPerSample()
	bytesPerSample := bits / 8
	out := make([]byte, 0, len(frames)*2*bytesPerSample)

	for _, fr := range frames {
		out = appendSample(out, fr.L, bits)
		out = appendSample(out, fr.R, bits)
	}

	return out
}

// appendSample right-shifts a 32-bit sample down to the target bit depth
// and appends it little-endian.
func appendSample(out []byte, sample int32, bits int) []byte {
	shift := uint(32 - bits)
	v := sample >> shift

	switch bits {
	case 16:
		return binary.LittleEndian.AppendUint16(out, uint16(v))
	case 24:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(v))
		return append(out, b[0], b[1], b[2])
	default:
		return binary.LittleEndian.AppendUint32(out, uint32(v))
	}
}

// packL24 implements config flag L24_PACKED_LPCM: two consecutive stereo
// frames are buffered and re-interleaved into the Sony-flavoured byte
// order L0T L0M R0T R0M L1T L1M R1T R1M L0B R0B L1B R1B, where T/M/B are
// the top/middle/bottom byte of each 24-bit sample (per spec.md §4.4).
func (s *Stream) packL24(frames []frame32) []byte {
	all := append(s.l24Pending, frames...)

	out := make([]byte, 0, (len(all)/2)*12)

	i := 0
	for ; i+1 < len(all); i += 2 {
		f0, f1 := all[i], all[i+1]

		l0 := sample24Bytes(f0.L)
		r0 := sample24Bytes(f0.R)
		l1 := sample24Bytes(f1.L)
		r1 := sample24Bytes(f1.R)

		out = append(out,
			l0[2], l0[1], // L0 top, middle
			r0[2], r0[1], // R0 top, middle
			l1[2], l1[1], // L1 top, middle
			r1[2], r1[1], // R1 top, middle
			l0[0], r0[0], l1[0], r1[0], // bottom bytes
		)
	}

	if i < len(all) {
		s.l24Pending = []frame32{all[i]}
	} else {
		s.l24Pending = nil
	}

	return out
}

// sample24Bytes right-shifts a 32-bit sample to 24 bits and returns its
// three little-endian bytes (index 0 = bottom/LSB byte, 2 = top byte).
func sample24Bytes(sample int32) [3]byte {
	v := uint32(sample >> 8)
	return [3]byte{byte(v), byte(v >> 8), byte(v >> 16)}
}
