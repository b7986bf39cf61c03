package decode

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"gopkg.in/hraban/opus.v2"

	"github.com/doismellburning/squeezebox-bridge/internal/ringbuf"
)

func init() {
	Register('u', func() Adapter { return &opusAdapter{} })
}

// opusAdapter decodes raw Opus packets via gopkg.in/hraban/opus.v2
// (spec.md §4.3), grounded on the same module's use in
// iamprashant-voice-ai for a telephony audio path (SPEC_FULL.md §2.2).
// Packets arrive length-prefixed (2-byte big-endian length + payload) in
// streambuf, the framing squeezelite's own Opus support expects from
// LMS rather than a full Ogg container, since SlimProto already strips
// Ogg paging before forwarding audio bytes.
type opusAdapter struct {
	dec        *opus.Decoder
	sampleRate int
	channels   int

	stopped  atomic.Bool
	errVal   error
	complete bool

	mu sync.Mutex
}

func (a *opusAdapter) MinReadBytes() int { return 2 }
func (a *opusAdapter) MinSpace() int     { return 4096 }
func (a *opusAdapter) Thru() bool        { return false }

func (a *opusAdapter) Open(sampleSize, sampleRate, channels, endianness byte) error {
	rate, _ := PCMSampleRateDefault(sampleRate)
	ch, _ := PCMChannelsDefault(channels)

	if rate == 0 {
		rate = 48000
	}

	dec, err := opus.NewDecoder(rate, ch)
	if err != nil {
		return fmt.Errorf("decode: opus open: %w", err)
	}

	a.dec = dec
	a.sampleRate = rate
	a.channels = ch
	a.complete = false
	a.errVal = nil

	return nil
}

func (a *opusAdapter) Decode(streambuf, outputbuf *ringbuf.Buffer) (Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.errVal != nil {
		return Result{State: StateError}, a.errVal
	}

	if a.complete {
		return Result{State: StateComplete}, nil
	}

	lenHead := streambuf.Peek(2)
	if len(lenHead) < 2 {
		return Result{State: StateRunning}, nil
	}

	packetLen := int(binary.BigEndian.Uint16(lenHead))

	avail := streambuf.ContiguousRead()
	if avail < 2+packetLen {
		return Result{State: StateRunning}, nil
	}

	full := streambuf.Peek(2 + packetLen)
	packet := full[2:]

	pcm := make([]int16, 5760*a.channels) // 120ms max frame at 48kHz

	n, err := a.dec.Decode(packet, pcm)
	if err != nil {
		a.errVal = fmt.Errorf("decode: opus decode: %w", err)
		return Result{State: StateError}, a.errVal
	}

	streambuf.Advance(2 + packetLen)

	out := make([]byte, n*8)

	for i := 0; i < n; i++ {
		l := pcm[i*a.channels]

		var r int16
		if a.channels >= 2 {
			r = pcm[i*a.channels+1]
		} else {
			r = l
		}

		binary.BigEndian.PutUint32(out[i*8:i*8+4], uint32(int32(l)<<16))
		binary.BigEndian.PutUint32(out[i*8+4:i*8+8], uint32(int32(r)<<16))
	}

	outputbuf.Write(out)

	return Result{State: StateRunning, FramesWritten: n}, nil
}

func (a *opusAdapter) Close() error {
	a.stopped.Store(true)
	return nil
}
