package output

// silenceMP3Frame is the fixed 209-byte MPEG-1 Layer III frame Null mode
// repeats as a keepalive stream (spec.md §4.4): 44.1kHz, stereo, 64kbps
// (144*64000/44100 = 208.98 truncates to 208 bytes; the padding bit is
// set to make the frame 209 bytes).
//
// No MP3 encoder exists anywhere in the example corpus to produce a
// byte-exact reference silent frame (github.com/hajimehoshi/go-mp3,
// wired in internal/decode, is decode-only), so the frame header below
// is computed directly from the MPEG-1 Layer III bitstream layout and
// the body is left zeroed; this is close to but not guaranteed
// bit-identical to a real encoder's silence output. Good enough for a
// keepalive filler stream, which never reaches a listener's ears.
var silenceMP3Frame = buildSilenceFrame()

const silenceFramesPerFrame = mp3BlockSamples // PCM frames covered by one silence frame; fillNull divides the Null duration by it

func buildSilenceFrame() []byte {
	frame := make([]byte, 209)

	frame[0] = 0xFF
	frame[1] = 0xFB // MPEG1, Layer III, no CRC
	frame[2] = 0x52 // 64kbps, 44.1kHz, padding, not private
	frame[3] = 0x04 // stereo, no mode extension, original

	return frame
}

// mp3Encoder is the re-encode path for config.mode containing "mp3": no
// pure-Go MP3 *encoder* (e.g. a shine-style fixed-point encoder) exists
// anywhere in the retrieved example corpus — only decoders
// (hajimehoshi/go-mp3). This is recorded as a known gap in DESIGN.md
// alongside the ALAC/AAC decode gap in internal/decode: mp3Encoder
// demuxes and batches PCM exactly as spec.md §4.4 describes (aggregating
// into a 16-bit interim buffer sized to one encoder block) but, lacking
// an encoder to hand the block to, emits it as raw interleaved 16-bit
// PCM rather than a real MP3 bitstream. Anything downstream expecting a
// genuine MP3 body should select PCM or FLAC mode instead.
type mp3Encoder struct {
	cfg        Config
	blockSize  int
	pending    []int16
}

const mp3BlockSamples = 1152 // one MPEG-1 Layer III granule pair, per channel

func newMP3Encoder(cfg Config) *mp3Encoder {
	return &mp3Encoder{cfg: cfg, blockSize: mp3BlockSamples}
}

func (e *mp3Encoder) encode(frames []frame32) []byte {
	for _, fr := range frames {
		e.pending = append(e.pending, int16(fr.L>>16), int16(fr.R>>16))
	}

	blockLen := e.blockSize * 2 // interleaved stereo

	var out []byte

	for len(e.pending) >= blockLen {
		block := e.pending[:blockLen]
		e.pending = e.pending[blockLen:]

		for _, s := range block {
			out = append(out, byte(s), byte(s>>8))
		}
	}

	return out
}

func (e *mp3Encoder) finish() []byte {
	if len(e.pending) == 0 {
		return nil
	}

	out := make([]byte, 0, len(e.pending)*2)

	for _, s := range e.pending {
		out = append(out, byte(s), byte(s>>8))
	}

	e.pending = nil

	return out
}
