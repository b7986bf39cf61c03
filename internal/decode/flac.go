package decode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"

	"github.com/doismellburning/squeezebox-bridge/internal/ringbuf"
)

func init() {
	Register('f', func() Adapter { return &flacAdapter{} })
	Register('c', func() Adapter { return &flacThruAdapter{} })
}

// flacAdapter decodes native FLAC via github.com/mewkiz/flac, bridging
// its blocking stream.ParseNext loop to the rest of the decoder's
// non-blocking poll discipline with a background goroutine (spec.md
// §4.3's "FLAC... use their respective libraries... obey the same
// pull-from-streambuf, push-into-outputbuf contract").
type flacAdapter struct {
	stopped  atomic.Bool
	errVal   atomic.Value // error
	complete atomic.Bool
	started  atomic.Bool

	wg sync.WaitGroup
}

func (a *flacAdapter) MinReadBytes() int { return 4096 }
func (a *flacAdapter) MinSpace() int     { return 4096 }
func (a *flacAdapter) Thru() bool        { return false }

func (a *flacAdapter) Open(sampleSize, sampleRate, channels, endianness byte) error {
	a.stopped.Store(false)
	a.complete.Store(false)
	a.started.Store(false)

	return nil
}

func (a *flacAdapter) Decode(streambuf, outputbuf *ringbuf.Buffer) (Result, error) {
	if !a.started.Swap(true) {
		a.wg.Add(1)
		go a.run(streambuf, outputbuf)
	}

	if v := a.errVal.Load(); v != nil {
		return Result{State: StateError}, v.(error)
	}

	if a.complete.Load() {
		return Result{State: StateComplete}, nil
	}

	return Result{State: StateRunning}, nil
}

func (a *flacAdapter) Close() error {
	a.stopped.Store(true)
	a.wg.Wait()

	return nil
}

func (a *flacAdapter) run(streambuf, outputbuf *ringbuf.Buffer) {
	defer a.wg.Done()

	reader := &streamReader{buf: streambuf, Disconnected: a.stopped.Load}
	writer := &outputWriter{buf: outputbuf, Stopped: a.stopped.Load}

	stream, err := flac.New(reader)
	if err != nil {
		a.errVal.Store(fmt.Errorf("decode: flac open: %w", err))
		return
	}
	defer stream.Close()

	for {
		if a.stopped.Load() {
			return
		}

		f, err := stream.ParseNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				a.complete.Store(true)
				return
			}

			a.errVal.Store(fmt.Errorf("decode: flac frame: %w", err))

			return
		}

		if werr := writeFlacFrame(writer, f); werr != nil {
			a.errVal.Store(werr)
			return
		}
	}
}

// writeFlacFrame packs one decoded FLAC frame's subframes into 32-bit
// stereo frames left-justified, mono duplicated, matching the rest of
// the decoder's internal sample representation.
func writeFlacFrame(w *outputWriter, f *frame.Frame) error {
	n := len(f.Subframes[0].Samples)
	channels := len(f.Subframes)

	out := make([]byte, 0, n*8)

	for i := 0; i < n; i++ {
		var l, r int32

		l = leftJustify(int32(f.Subframes[0].Samples[i]), int(f.Subframes[0].BitsPerSample))

		if channels >= 2 {
			r = leftJustify(int32(f.Subframes[1].Samples[i]), int(f.Subframes[1].BitsPerSample))
		} else {
			r = l
		}

		var b [8]byte
		binary.BigEndian.PutUint32(b[0:4], uint32(l))
		binary.BigEndian.PutUint32(b[4:8], uint32(r))
		out = append(out, b[:]...)
	}

	_, err := w.Write(out)

	return err
}

func leftJustify(v int32, bits int) int32 {
	if bits <= 0 || bits >= 32 {
		return v
	}

	return v << uint(32-bits)
}

// flacThruAdapter is the FLAC pass-through codec (spec.md §4.3 id 'c'):
// copies frame bytes to outputbuf unmodified, optionally synthesising a
// STREAMINFO block from the first frame header when the origin
// frame-stream carries none.
type flacThruAdapter struct {
	thruAdapter
	sniffedHeader bool
}

func (a *flacThruAdapter) Open(sampleSize, sampleRate, channels, endianness byte) error {
	a.sniffedHeader = false
	return a.thruAdapter.Open(sampleSize, sampleRate, channels, endianness)
}

func (a *flacThruAdapter) Decode(streambuf, outputbuf *ringbuf.Buffer) (Result, error) {
	if !a.sniffedHeader {
		peek := streambuf.Peek(4)
		if len(peek) < 4 {
			return Result{State: StateRunning}, nil
		}

		if string(peek) != "fLaC" {
			if info, ok := synthesizeStreamInfo(streambuf); ok {
				outputbuf.Write(info)
			}
		}

		a.sniffedHeader = true
	}

	return a.thruAdapter.Decode(streambuf, outputbuf)
}

// synthesizeStreamInfo parses the first FLAC frame header (sync
// 0xFFF8, block strategy, block size, sample-rate index, channel
// assignment, sample-size index) to fabricate a minimal STREAMINFO
// metadata block, per spec.md §4.3.
func synthesizeStreamInfo(streambuf *ringbuf.Buffer) ([]byte, bool) {
	head := streambuf.Peek(4)
	if len(head) < 4 {
		return nil, false
	}

	if head[0] != 0xFF || head[1]&0xF8 != 0xF8 {
		return nil, false
	}

	blockSizeCode := head[2] >> 4
	sampleRateCode := head[2] & 0x0F
	channelCode := head[3] >> 4
	sampleSizeCode := (head[3] >> 1) & 0x07

	blockSize := flacBlockSize(blockSizeCode)
	sampleRate := flacSampleRate(sampleRateCode)
	channels := int(channelCode&0x07) + 1
	if channelCode >= 8 {
		channels = 2
	}

	bitsPerSample := flacBitsPerSample(sampleSizeCode)

	info := make([]byte, 4+34)
	info[0] = 0x80 // last-metadata-block flag | STREAMINFO type 0
	info[1], info[2], info[3] = 0, 0, 34

	binary.BigEndian.PutUint16(info[4:6], uint16(blockSize))
	binary.BigEndian.PutUint16(info[6:8], uint16(blockSize))

	packed := uint64(sampleRate)<<44 | uint64(channels-1)<<41 | uint64(bitsPerSample-1)<<36
	var packedBytes [8]byte
	binary.BigEndian.PutUint64(packedBytes[:], packed)
	copy(info[14:22], packedBytes[:8])

	return info, true
}

func flacBlockSize(code byte) int {
	switch code {
	case 1:
		return 192
	case 6, 7:
		return 4096 // placeholder; real value follows in the frame header's variable-length field
	default:
		return 4096
	}
}

func flacSampleRate(code byte) int {
	table := map[byte]int{1: 88200, 2: 176400, 3: 192000, 4: 8000, 5: 16000, 6: 22050, 7: 24000, 8: 32000, 9: 44100, 10: 48000, 11: 96000}
	if r, ok := table[code]; ok {
		return r
	}

	return 44100
}

func flacBitsPerSample(code byte) int {
	table := map[byte]int{0: 16, 1: 8, 2: 12, 4: 16, 5: 20, 6: 24}
	if v, ok := table[code]; ok {
		return v
	}

	return 16
}
