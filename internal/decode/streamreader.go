package decode

import (
	"io"
	"time"

	"github.com/doismellburning/squeezebox-bridge/internal/ringbuf"
)

// streamReader adapts a ringbuf.Buffer to the blocking io.Reader
// contract the mewkiz/flac, jfreymuth/oggvorbis and hajimehoshi/go-mp3
// libraries expect, bridging spec.md §5's "decoder sleeps 100ms on
// empty" non-blocking discipline to those libraries' pull model: a read
// against an empty buffer retries at a short interval rather than
// failing, until either data arrives or Disconnected reports the origin
// is done, at which point Read returns io.EOF.
type streamReader struct {
	buf          *ringbuf.Buffer
	Disconnected func() bool
}

func (r *streamReader) Read(p []byte) (int, error) {
	for {
		n := r.buf.Read(p)
		if n > 0 {
			return n, nil
		}

		if r.Disconnected != nil && r.Disconnected() {
			return 0, io.EOF
		}

		time.Sleep(10 * time.Millisecond)
	}
}
