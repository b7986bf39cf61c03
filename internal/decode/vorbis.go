package decode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/oggvorbis"

	"github.com/doismellburning/squeezebox-bridge/internal/ringbuf"
)

func init() {
	Register('o', func() Adapter { return &vorbisAdapter{} })
}

// vorbisAdapter decodes Ogg Vorbis via github.com/jfreymuth/oggvorbis
// (spec.md §4.3), which yields float32 samples widened here into the
// decoder's internal 32-bit left-justified stereo frame representation.
type vorbisAdapter struct {
	stopped  atomic.Bool
	errVal   atomic.Value
	complete atomic.Bool
	started  atomic.Bool

	wg sync.WaitGroup
}

func (a *vorbisAdapter) MinReadBytes() int { return 4096 }
func (a *vorbisAdapter) MinSpace() int     { return 4096 }
func (a *vorbisAdapter) Thru() bool        { return false }

func (a *vorbisAdapter) Open(sampleSize, sampleRate, channels, endianness byte) error {
	a.stopped.Store(false)
	a.complete.Store(false)
	a.started.Store(false)

	return nil
}

func (a *vorbisAdapter) Decode(streambuf, outputbuf *ringbuf.Buffer) (Result, error) {
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

func (a *vorbisAdapter) Close() error {
	a.stopped.Store(true)
	a.wg.Wait()

	return nil
}

func (a *vorbisAdapter) run(streambuf, outputbuf *ringbuf.Buffer) {
	defer a.wg.Done()

	reader := &streamReader{buf: streambuf, Disconnected: a.stopped.Load}

	r, err := oggvorbis.NewReader(reader)
	if err != nil {
		a.errVal.Store(fmt.Errorf("decode: vorbis open: %w", err))
		return
	}

	channels := r.Channels()
	buf := make([]float32, 4096*channels)
	w := &outputWriter{buf: outputbuf, Stopped: a.stopped.Load}

	for {
		if a.stopped.Load() {
			return
		}

		n, err := r.Read(buf)
		if n > 0 {
			out := widenFloat32ToFrames(buf[:n], channels)
			if _, werr := w.Write(out); werr != nil {
				a.errVal.Store(werr)
				return
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				a.complete.Store(true)
				return
			}

			a.errVal.Store(fmt.Errorf("decode: vorbis read: %w", err))

			return
		}
	}
}

// widenFloat32ToFrames converts interleaved float32 samples in [-1,1]
// into the decoder's internal 32-bit left-justified stereo frame
// representation, duplicating mono to both channels.
func widenFloat32ToFrames(samples []float32, channels int) []byte {
	n := len(samples) / channels
	out := make([]byte, n*8)

	for i := 0; i < n; i++ {
		l := floatToInt32(samples[i*channels])

		var r int32
		if channels >= 2 {
			r = floatToInt32(samples[i*channels+1])
		} else {
			r = l
		}

		binary.BigEndian.PutUint32(out[i*8:i*8+4], uint32(l))
		binary.BigEndian.PutUint32(out[i*8+4:i*8+8], uint32(r))
	}

	return out
}

func floatToInt32(f float32) int32 {
	v := float64(f) * 2147483647.0
	if v > 2147483647 {
		v = 2147483647
	}

	if v < -2147483648 {
		v = -2147483648
	}

	return int32(v)
}
