package decode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/hajimehoshi/go-mp3"

	"github.com/doismellburning/squeezebox-bridge/internal/ringbuf"
)

func init() {
	Register('m', func() Adapter { return &mp3Adapter{} })
}

// mp3Adapter decodes MP3 origin streams via github.com/hajimehoshi/go-mp3
// (spec.md §4.3), whose Decoder already produces interleaved 16-bit
// stereo PCM — widened here to the decoder's internal 32-bit
// left-justified frame representation.
type mp3Adapter struct {
	stopped  atomic.Bool
	errVal   atomic.Value
	complete atomic.Bool
	started  atomic.Bool

	wg sync.WaitGroup
}

func (a *mp3Adapter) MinReadBytes() int { return 4096 }
func (a *mp3Adapter) MinSpace() int     { return 4096 }
func (a *mp3Adapter) Thru() bool        { return false }

func (a *mp3Adapter) Open(sampleSize, sampleRate, channels, endianness byte) error {
	a.stopped.Store(false)
	a.complete.Store(false)
	a.started.Store(false)

	return nil
}

func (a *mp3Adapter) Decode(streambuf, outputbuf *ringbuf.Buffer) (Result, error) {
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

func (a *mp3Adapter) Close() error {
	a.stopped.Store(true)
	a.wg.Wait()

	return nil
}

func (a *mp3Adapter) run(streambuf, outputbuf *ringbuf.Buffer) {
	defer a.wg.Done()

	reader := &streamReader{buf: streambuf, Disconnected: a.stopped.Load}

	dec, err := mp3.NewDecoder(reader)
	if err != nil {
		a.errVal.Store(fmt.Errorf("decode: mp3 open: %w", err))
		return
	}

	pcm := make([]byte, 4096)

	for {
		if a.stopped.Load() {
			return
		}

		n, err := dec.Read(pcm)
		if n > 0 {
			out := widenPCM16ToFrames(pcm[:n])

			w := &outputWriter{buf: outputbuf, Stopped: a.stopped.Load}
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

			a.errVal.Store(fmt.Errorf("decode: mp3 read: %w", err))

			return
		}
	}
}

// widenPCM16ToFrames converts interleaved little-endian 16-bit stereo
// PCM into the decoder's internal 32-bit left-justified stereo frame
// representation.
func widenPCM16ToFrames(pcm []byte) []byte {
	n := len(pcm) / 4 // 2 channels * 2 bytes
	out := make([]byte, n*8)

	for i := 0; i < n; i++ {
		l := int16(binary.LittleEndian.Uint16(pcm[i*4 : i*4+2]))
		r := int16(binary.LittleEndian.Uint16(pcm[i*4+2 : i*4+4]))

		binary.BigEndian.PutUint32(out[i*8:i*8+4], uint32(int32(l)<<16))
		binary.BigEndian.PutUint32(out[i*8+4:i*8+8], uint32(int32(r)<<16))
	}

	return out
}
