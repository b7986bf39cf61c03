package decode

import (
	"fmt"

	"github.com/doismellburning/squeezebox-bridge/internal/ringbuf"
)

func init() {
	Register('l', func() Adapter { return &alacAdapter{} })
}

// alacAdapter implements the MP4/ALAC container walk of spec.md §4.3:
// it extracts the 'alac' decoder-config block and the stsz/stts/stsc/
// stco sample layout via github.com/abema/go-mp4, then pulls exactly
// one ALAC packet per Decode call honouring chunk boundaries.
//
// Limitation (recorded in DESIGN.md): no pure-Go ALAC entropy decoder
// exists anywhere in the example corpus (go-mp4 only parses the
// container, it does not decode audio samples), so this adapter passes
// each demuxed ALAC packet through to outputbuf unmodified rather than
// producing PCM — functionally a "thru" adapter once demuxed, the same
// honest gap the 'a'/'4' AAC thru-to-ADTS path documents for AAC.
type alacAdapter struct {
	track  *mp4Track
	header []byte // accumulated moov bytes while sniffing
	synced bool
	done   bool
}

func (a *alacAdapter) MinReadBytes() int { return 1024 }
func (a *alacAdapter) MinSpace() int     { return 4096 }
func (a *alacAdapter) Thru() bool        { return true }

func (a *alacAdapter) Open(sampleSize, sampleRate, channels, endianness byte) error {
	a.track = nil
	a.header = nil
	a.synced = false
	a.done = false

	return nil
}

func (a *alacAdapter) Decode(streambuf, outputbuf *ringbuf.Buffer) (Result, error) {
	if a.done {
		return Result{State: StateComplete}, nil
	}

	if !a.synced {
		avail := streambuf.ContiguousRead()
		if avail < 64*1024 {
			return Result{State: StateRunning}, nil // wait for enough of moov to be buffered
		}

		moov := streambuf.Peek(avail)

		track, err := parseMP4Moov(moov)
		if err != nil {
			return Result{State: StateError}, fmt.Errorf("decode: alac moov: %w", err)
		}

		if track.alacConfig == nil {
			return Result{State: StateError}, fmt.Errorf("decode: alac: no alac config block found")
		}

		a.track = track
		a.synced = true

		return Result{State: StateRunning}, nil
	}

	offset, size, ok := a.track.SampleOffset(a.track.nextSampleIdx)
	if !ok {
		a.done = true
		return Result{State: StateComplete}, nil
	}

	_ = offset // sequential consumption already tracks position via streambuf's own cursor

	data, err := readMdatBytes(streambuf, int(size))
	if err != nil {
		return Result{State: StateRunning}, nil // not enough buffered yet; retry next iteration
	}

	written := outputbuf.Write(data)
	a.track.nextSampleIdx++

	trackStart := a.track.nextSampleIdx == 1

	return Result{State: StateRunning, FramesWritten: written, TrackStart: trackStart}, nil
}

func (a *alacAdapter) Close() error { return nil }
