package decode

import "github.com/doismellburning/squeezebox-bridge/internal/ringbuf"

func init() {
	Register('*', func() Adapter { return &thruAdapter{} })
}

// thruAdapter is the pass-through codec (spec.md §4.3 id '*'): copies
// streambuf directly to outputbuf without interpreting samples.
type thruAdapter struct {
	trackStarted bool
}

func (a *thruAdapter) MinReadBytes() int { return 1 }
func (a *thruAdapter) MinSpace() int     { return 1 }
func (a *thruAdapter) Thru() bool        { return true }

func (a *thruAdapter) Open(sampleSize, sampleRate, channels, endianness byte) error {
	a.trackStarted = false
	return nil
}

func (a *thruAdapter) Decode(streambuf, outputbuf *ringbuf.Buffer) (Result, error) {
	space := outputbuf.ContiguousWrite()
	if space == 0 {
		return Result{State: StateRunning}, nil
	}

	n := streambuf.ContiguousRead()
	if n > space {
		n = space
	}

	if n == 0 {
		return Result{State: StateRunning}, nil
	}

	chunk := streambuf.Peek(n)
	written := outputbuf.Write(chunk)
	streambuf.Advance(written)

	trackStart := !a.trackStarted && written > 0
	if trackStart {
		a.trackStarted = true
	}

	return Result{State: StateRunning, FramesWritten: written, TrackStart: trackStart}, nil
}

func (a *thruAdapter) Close() error { return nil }
