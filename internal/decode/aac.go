package decode

import (
	"fmt"

	"github.com/doismellburning/squeezebox-bridge/internal/ringbuf"
)

func init() {
	Register('a', func() Adapter { return &aacAdapter{} })
	Register('4', func() Adapter { return &aacADTSAdapter{} })
}

// aacAdapter implements the MP4/AAC container walk of spec.md §4.3's
// codec id 'a': extracts AudioSpecificConfig from 'esds' and the sample
// layout, same honest pass-through limitation as alacAdapter (no AAC
// decoder in the example corpus) — this adapter demuxes MP4 framing and
// forwards each raw AAC access unit unmodified.
type aacAdapter struct {
	track  *mp4Track
	synced bool
	done   bool
}

func (a *aacAdapter) MinReadBytes() int { return 1024 }
func (a *aacAdapter) MinSpace() int     { return 4096 }
func (a *aacAdapter) Thru() bool        { return true }

func (a *aacAdapter) Open(sampleSize, sampleRate, channels, endianness byte) error {
	a.track = nil
	a.synced = false
	a.done = false

	return nil
}

func (a *aacAdapter) Decode(streambuf, outputbuf *ringbuf.Buffer) (Result, error) {
	if a.done {
		return Result{State: StateComplete}, nil
	}

	if !a.synced {
		avail := streambuf.ContiguousRead()
		if avail < 64*1024 {
			return Result{State: StateRunning}, nil
		}

		moov := streambuf.Peek(avail)

		track, err := parseMP4Moov(moov)
		if err != nil {
			return Result{State: StateError}, fmt.Errorf("decode: aac moov: %w", err)
		}

		if track.esdsConfig == nil {
			return Result{State: StateError}, fmt.Errorf("decode: aac: no AudioSpecificConfig found")
		}

		a.track = track
		a.synced = true

		return Result{State: StateRunning}, nil
	}

	_, size, ok := a.track.SampleOffset(a.track.nextSampleIdx)
	if !ok {
		a.done = true
		return Result{State: StateComplete}, nil
	}

	data, err := readMdatBytes(streambuf, int(size))
	if err != nil {
		return Result{State: StateRunning}, nil
	}

	written := outputbuf.Write(data)
	a.track.nextSampleIdx++

	return Result{State: StateRunning, FramesWritten: written, TrackStart: a.track.nextSampleIdx == 1}, nil
}

func (a *aacAdapter) Close() error { return nil }

// aacADTSAdapter implements codec id '4': reconstructs an ADTS header
// per frame from the stashed audio-object-type/frequency-index/
// channel-config and the per-sample block size, then emits ADTS frames
// with the original AAC payload (spec.md §4.3) — fully specifiable
// without an AAC decoder since ADTS framing is just a 7-byte header
// wrapping the existing raw AAC access unit.
type aacADTSAdapter struct {
	track        *mp4Track
	synced       bool
	done         bool
	objectType   int
	freqIdx      int
	channelCfg   int
}

func (a *aacADTSAdapter) MinReadBytes() int { return 1024 }
func (a *aacADTSAdapter) MinSpace() int     { return 4096 }
func (a *aacADTSAdapter) Thru() bool        { return false }

func (a *aacADTSAdapter) Open(sampleSize, sampleRate, channels, endianness byte) error {
	a.track = nil
	a.synced = false
	a.done = false

	return nil
}

func (a *aacADTSAdapter) Decode(streambuf, outputbuf *ringbuf.Buffer) (Result, error) {
	if a.done {
		return Result{State: StateComplete}, nil
	}

	if !a.synced {
		avail := streambuf.ContiguousRead()
		if avail < 64*1024 {
			return Result{State: StateRunning}, nil
		}

		moov := streambuf.Peek(avail)

		track, err := parseMP4Moov(moov)
		if err != nil {
			return Result{State: StateError}, fmt.Errorf("decode: aac moov: %w", err)
		}

		if track.esdsConfig == nil || len(track.esdsConfig) < 2 {
			return Result{State: StateError}, fmt.Errorf("decode: aac: no AudioSpecificConfig found")
		}

		a.objectType, a.freqIdx, a.channelCfg = parseAudioSpecificConfig(track.esdsConfig)
		a.track = track
		a.synced = true

		return Result{State: StateRunning}, nil
	}

	offset, size, ok := a.track.SampleOffset(a.track.nextSampleIdx)
	if !ok {
		a.done = true
		return Result{State: StateComplete}, nil
	}

	_ = offset

	payload, err := readMdatBytes(streambuf, int(size))
	if err != nil {
		return Result{State: StateRunning}, nil
	}

	frame := buildADTSFrame(payload, a.objectType, a.freqIdx, a.channelCfg)
	written := outputbuf.Write(frame)
	a.track.nextSampleIdx++

	return Result{State: StateRunning, FramesWritten: written, TrackStart: a.track.nextSampleIdx == 1}, nil
}

func (a *aacADTSAdapter) Close() error { return nil }

// parseAudioSpecificConfig reads the 5-bit object type, 4-bit frequency
// index, and 4-bit channel config from the first two bytes of an
// AudioSpecificConfig (ISO 14496-3).
func parseAudioSpecificConfig(cfg []byte) (objectType, freqIdx, channelCfg int) {
	if len(cfg) < 2 {
		return 2, 4, 2 // AAC-LC, 44.1kHz, stereo defaults
	}

	objectType = int(cfg[0] >> 3)
	freqIdx = int(cfg[0]&0x07)<<1 | int(cfg[1]>>7)
	channelCfg = int(cfg[1]>>3) & 0x0F

	return objectType, freqIdx, channelCfg
}

// buildADTSFrame prepends a 7-byte ADTS header (no CRC) to one raw AAC
// access unit.
func buildADTSFrame(payload []byte, objectType, freqIdx, channelCfg int) []byte {
	frameLen := len(payload) + 7
	header := make([]byte, 7, frameLen)

	header[0] = 0xFF
	header[1] = 0xF1 // MPEG-4, no CRC

	profile := objectType - 1 // ADTS profile field is object-type minus one
	header[2] = byte(profile<<6) | byte(freqIdx<<2) | byte((channelCfg>>2)&0x01)
	header[3] = byte((channelCfg&0x03)<<6) | byte(frameLen>>11)
	header[4] = byte(frameLen >> 3)
	header[5] = byte((frameLen&0x07)<<5) | 0x1F
	header[6] = 0xFC

	return append(header, payload...)
}
