// Package decode implements the codec adapter table of spec.md §4.3: a
// registry of codec adapters keyed by a single ASCII id, each declaring
// MinReadBytes/MinSpace/Thru and providing Open/Decode/Close. The
// decoder loop itself lives in internal/bridge (decodeLoop), which calls
// the current adapter's Decode once per iteration.
//
// Grounded on spec.md §4.3 for adapter contracts and the MP4/PCM/WAV/AIF
// parsing rules; the registry-as-constant-keyed-dispatch-table shape
// follows the teacher's KISS_CMD_*/AGWPE DataKind command tables
// (src/kiss_frame.go, deleted, pattern only — see DESIGN.md), here built
// at init() as a map[byte]Factory the way those were switch statements
// over a small fixed alphabet.
package decode

import (
	"fmt"

	"github.com/doismellburning/squeezebox-bridge/internal/ringbuf"
)

// State is the decoder's lifecycle per spec.md §3/§4.3.
type State int

const (
	StateIdle State = iota
	StateReady
	StateRunning
	StateComplete
	StateError
)

// Result is what one Decode call reports back to the owning loop.
type Result struct {
	State        State
	FramesWritten int
	TrackStart    bool // latched the first time this adapter writes output for a track
}

// Adapter is one codec's decode contract (spec.md §4.3).
type Adapter interface {
	// MinReadBytes is how much raw input must be available in streambuf
	// before Decode is called.
	MinReadBytes() int

	// MinSpace is how much free space must be available in outputbuf
	// (in bytes) before Decode is called.
	MinSpace() int

	// Thru reports whether this adapter passes bytes through unmodified
	// rather than interpreting samples.
	Thru() bool

	// Open initialises the adapter for a new stream.
	Open(sampleSize, sampleRate, channels, endianness byte) error

	// Decode consumes from streambuf and produces into outputbuf,
	// reporting the result of one iteration.
	Decode(streambuf, outputbuf *ringbuf.Buffer) (Result, error)

	// Close tears down any adapter-held state.
	Close() error
}

// Factory constructs a fresh Adapter instance for one stream.
type Factory func() Adapter

var registry = map[byte]Factory{}

// Register adds a codec adapter factory under its single-byte id. Called
// from each adapter file's init().
func Register(id byte, f Factory) {
	registry[id] = f
}

// Open finds the adapter for codecID (spec.md §4.3's `open`), tearing
// down cur if non-nil and different, and returns the freshly initialised
// adapter. codecID '*' selects the pass-through adapter.
func Open(cur Adapter, codecID byte, sampleSize, sampleRate, channels, endianness byte) (Adapter, error) {
	factory, ok := registry[codecID]
	if !ok {
		return nil, fmt.Errorf("decode: no adapter registered for codec %q", string(codecID))
	}

	if cur != nil {
		_ = cur.Close()
	}

	a := factory()
	if err := a.Open(sampleSize, sampleRate, channels, endianness); err != nil {
		return nil, fmt.Errorf("decode: open codec %q: %w", string(codecID), err)
	}

	return a, nil
}

// supportedRatesTerminator marks the end of a SupportedRates list
// (spec.md §4.3: "terminated, possibly length 1").
const supportedRatesTerminator = 0

// NewStream computes the effective output rate per spec.md §4.3's
// decode_newstream: rawRate itself if it is listed in supportedRates;
// otherwise the first listed rate that is an integer multiple or divisor
// of rawRate; else the highest listed rate. A negative value at position
// 0 means "up to abs(n)": rawRate is kept up to that cap and clamped to
// it above.
func NewStream(rawRate int, supportedRates []int) int {
	if len(supportedRates) == 0 {
		return rawRate
	}

	if supportedRates[0] < 0 {
		capRate := -supportedRates[0]
		if rawRate <= capRate {
			return rawRate
		}

		return capRate
	}

	rates := make([]int, 0, len(supportedRates))
	for _, r := range supportedRates {
		if r == supportedRatesTerminator {
			break
		}

		rates = append(rates, r)
	}

	for _, r := range rates {
		if r == rawRate {
			return rawRate
		}
	}

	for _, r := range rates {
		if r%rawRate == 0 || rawRate%r == 0 {
			return r
		}
	}

	if len(rates) == 0 {
		return rawRate
	}

	best := rates[0]
	for _, r := range rates[1:] {
		if r > best {
			best = r
		}
	}

	return best
}
