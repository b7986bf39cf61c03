package decode

import (
	"time"

	"github.com/doismellburning/squeezebox-bridge/internal/ringbuf"
)

// outputWriter adapts a ringbuf.Buffer to a blocking io.Writer for the
// same reason streamReader exists on the input side: the codec
// libraries producing PCM (flac, vorbis, mp3) write in their own
// callback/loop shape and expect backpressure to simply slow them down,
// not fail them. Write retries against a full buffer at a short
// interval until Stopped reports the adapter is being torn down.
type outputWriter struct {
	buf     *ringbuf.Buffer
	Stopped func() bool
}

func (w *outputWriter) Write(p []byte) (int, error) {
	total := 0

	for total < len(p) {
		if w.Stopped != nil && w.Stopped() {
			return total, nil
		}

		n := w.buf.Write(p[total:])
		total += n

		if n == 0 {
			time.Sleep(10 * time.Millisecond)
		}
	}

	return total, nil
}
