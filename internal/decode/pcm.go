package decode

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/doismellburning/squeezebox-bridge/internal/ringbuf"
)

func init() {
	Register('p', func() Adapter { return &pcmAdapter{} })
}

// pcmAdapter implements spec.md §4.3's PCM/WAV/AIF parsing (codec id
// 'p'): sniffs a WAV or AIFF container header, falling back to the
// SlimProto-declared format if neither matches, then unpacks samples
// into 32-bit stereo frames left-justified in each word (mono duplicated
// to both channels).
type pcmAdapter struct {
	sampleSize int // bits
	sampleRate int
	channels   int
	bigEndian  bool

	sniffed      bool
	sniffBuf     []byte
	trackStarted bool
}

const pcmSniffWindow = 4096

func (a *pcmAdapter) MinReadBytes() int { return 1 }
func (a *pcmAdapter) MinSpace() int     { return 8 }
func (a *pcmAdapter) Thru() bool        { return false }

func (a *pcmAdapter) Open(sampleSize, sampleRate, channels, endianness byte) error {
	size, _ := PCMSampleSizeDefault(sampleSize)
	rate, _ := PCMSampleRateDefault(sampleRate)
	ch, _ := PCMChannelsDefault(channels)

	a.sampleSize = size
	a.sampleRate = rate
	a.channels = ch
	a.bigEndian = endianness == '1'
	a.sniffed = false
	a.sniffBuf = nil
	a.trackStarted = false

	return nil
}

// PCMSampleSizeDefault/PCMSampleRateDefault/PCMChannelsDefault mirror
// slimproto's single-digit decode tables but default to a sane value
// instead of erroring, since a late 'p' open may arrive with the
// SlimProto-declared format already resolved to real values rather than
// index codes in some call sites.
func PCMSampleSizeDefault(b byte) (int, bool) {
	if b >= '0' && b <= '9' {
		if v, ok := pcmSampleSizeLookup(b); ok {
			return v, true
		}
	}

	return 16, false
}

func pcmSampleSizeLookup(b byte) (int, bool) {
	table := [4]int{8, 16, 24, 32}
	i := int(b - '0')
	if i < 0 || i >= len(table) {
		return 0, false
	}

	return table[i], true
}

func PCMSampleRateDefault(b byte) (int, bool) {
	table := [15]int{11025, 22050, 32000, 44100, 48000, 8000, 12000, 16000, 24000, 96000, 88200, 176400, 192000, 352800, 384000}

	i := int(b - '0')
	if i < 0 || i >= len(table) {
		return 44100, false
	}

	return table[i], true
}

func PCMChannelsDefault(b byte) (int, bool) {
	if b == '1' {
		return 1, true
	}

	return 2, true
}

func (a *pcmAdapter) Decode(streambuf, outputbuf *ringbuf.Buffer) (Result, error) {
	if !a.sniffed {
		if done, err := a.sniff(streambuf); err != nil {
			return Result{State: StateError}, err
		} else if !done {
			return Result{State: StateRunning}, nil
		}
	}

	bytesPerSample := a.sampleSize / 8
	frameBytes := bytesPerSample * a.channels
	if frameBytes == 0 {
		return Result{State: StateError}, nil
	}

	outSpace := outputbuf.ContiguousWrite() / 16 // 32-bit stereo frames = 8 bytes out, leave headroom
	avail := streambuf.ContiguousRead() / frameBytes

	frames := avail
	if frames > outSpace {
		frames = outSpace
	}

	if frames == 0 {
		return Result{State: StateRunning}, nil
	}

	in := streambuf.Peek(frames * frameBytes)

	out := make([]byte, 0, frames*8)

	for i := 0; i < frames; i++ {
		frame := in[i*frameBytes : (i+1)*frameBytes]

		var l, r int32

		if a.channels == 1 {
			l = a.unpackSample(frame[:bytesPerSample])
			r = l
		} else {
			l = a.unpackSample(frame[:bytesPerSample])
			r = a.unpackSample(frame[bytesPerSample : 2*bytesPerSample])
		}

		var b [8]byte
		binary.BigEndian.PutUint32(b[0:4], uint32(l))
		binary.BigEndian.PutUint32(b[4:8], uint32(r))
		out = append(out, b[:]...)
	}

	written := outputbuf.Write(out)
	streambuf.Advance(frames * frameBytes)

	trackStart := !a.trackStarted && written > 0
	if trackStart {
		a.trackStarted = true
	}

	return Result{State: StateRunning, FramesWritten: written / 8, TrackStart: trackStart}, nil
}

// unpackSample reads a bytesPerSample-wide PCM sample and left-justifies
// it into a 32-bit word, matching spec.md's "unpacked into 32-bit stereo
// frames left-justified in each word."
func (a *pcmAdapter) unpackSample(b []byte) int32 {
	var v uint32

	if a.bigEndian {
		for _, c := range b {
			v = v<<8 | uint32(c)
		}
	} else {
		for i := len(b) - 1; i >= 0; i-- {
			v = v<<8 | uint32(b[i])
		}
	}

	shift := 32 - len(b)*8

	return int32(v << uint(shift))
}

// sniff inspects the first pcmSniffWindow bytes for a WAV or AIFF
// header; if found, format fields are lifted and the adapter's internal
// read cursor is advanced past the header so Decode starts at raw
// samples. If neither container matches, the SlimProto-declared format
// from Open is honoured as-is.
func (a *pcmAdapter) sniff(streambuf *ringbuf.Buffer) (bool, error) {
	avail := streambuf.ContiguousRead()
	if avail < 12 {
		return false, nil // not enough to identify a container yet
	}

	window := avail
	if window > pcmSniffWindow {
		window = pcmSniffWindow
	}

	head := streambuf.Peek(window)

	switch {
	case len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return a.sniffWAV(streambuf, head)
	case len(head) >= 12 && bytes.Equal(head[0:4], []byte("FORM")) && (bytes.Equal(head[8:12], []byte("AIFF")) || bytes.Equal(head[8:12], []byte("AIFC"))):
		return a.sniffAIFF(streambuf, head)
	default:
		a.sniffed = true
		return true, nil
	}
}

func (a *pcmAdapter) sniffWAV(streambuf *ringbuf.Buffer, head []byte) (bool, error) {
	pos := 12

	for pos+8 <= len(head) {
		chunkID := string(head[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(head[pos+4 : pos+8]))
		body := pos + 8

		if chunkID == "fmt " {
			if body+16 > len(head) {
				return false, nil
			}

			a.channels = int(binary.LittleEndian.Uint16(head[body+2 : body+4]))
			a.sampleRate = int(binary.LittleEndian.Uint32(head[body+4 : body+8]))
			a.sampleSize = int(binary.LittleEndian.Uint16(head[body+14 : body+16]))
		}

		if chunkID == "data" {
			advance := body
			streambuf.Advance(advance)
			a.sniffed = true

			return true, nil
		}

		pos = body + chunkSize + chunkSize%2
	}

	return false, nil
}

func (a *pcmAdapter) sniffAIFF(streambuf *ringbuf.Buffer, head []byte) (bool, error) {
	pos := 12

	for pos+8 <= len(head) {
		chunkID := string(head[pos : pos+4])
		chunkSize := int(binary.BigEndian.Uint32(head[pos+4 : pos+8]))
		body := pos + 8

		if chunkID == "COMM" {
			if body+18 > len(head) {
				return false, nil
			}

			a.channels = int(binary.BigEndian.Uint16(head[body : body+2]))
			a.sampleSize = int(binary.BigEndian.Uint16(head[body+6 : body+8]))
			a.sampleRate = decodeExtended80(head[body+8 : body+18])
		}

		if chunkID == "SSND" {
			if body+8 > len(head) {
				return false, nil
			}

			dataOffset := int(binary.BigEndian.Uint32(head[body : body+4]))
			streambuf.Advance(body + 8 + dataOffset)
			a.sniffed = true

			return true, nil
		}

		pos = body + chunkSize + chunkSize%2
	}

	return false, nil
}

// decodeExtended80 decodes an IEEE 754 80-bit extended-precision float
// (the AIFF COMM sample-rate encoding) into an integer Hz value.
func decodeExtended80(b []byte) int {
	exponent := int(binary.BigEndian.Uint16(b[0:2]))
	mantissa := binary.BigEndian.Uint64(b[2:10])

	sign := 1.0
	if exponent&0x8000 != 0 {
		sign = -1.0
	}

	exponent &= 0x7FFF
	exponent -= 16383 + 63

	return int(sign * float64(mantissa) * math.Pow(2, float64(exponent)))
}
