package httpserver

// icyInterval is the body-byte interval ICY metadata packets are
// injected at, per spec.md §4.5/§6 ("ICY interval is 16384 bytes").
const icyInterval = 16384

// icyInjector tracks how many plain body bytes have been sent since the
// last metadata packet and splices one in when the interval is crossed.
type icyInjector struct {
	sinceLast int
	payload   func() (string, bool) // returns the current metadata text and whether ICY is armed
}

func newIcyInjector(payload func() (string, bool)) *icyInjector {
	return &icyInjector{payload: payload}
}

// Wrap splits data into a sequence of (audio bytes, optional metadata
// packet) chunks suitable for writing in order, injecting a metadata
// packet exactly every icyInterval audio bytes.
func (ic *icyInjector) Wrap(data []byte) []byte {
	if len(data) == 0 {
		return data
	}

	out := make([]byte, 0, len(data)+32)

	for len(data) > 0 {
		remaining := icyInterval - ic.sinceLast
		if remaining > len(data) {
			remaining = len(data)
		}

		out = append(out, data[:remaining]...)
		data = data[remaining:]
		ic.sinceLast += remaining

		if ic.sinceLast >= icyInterval {
			out = append(out, ic.buildMetaPacket()...)
			ic.sinceLast = 0
		}
	}

	return out
}

// buildMetaPacket encodes the current StreamTitle/StreamUrl text as a
// length-prefixed ICY metadata block: one byte N, then 16*N bytes of
// text padded with NULs. It is a single zero byte when ICY is not armed
// or the text is empty; otherwise the current text is sent at every
// interval, whether or not it has changed.
func (ic *icyInjector) buildMetaPacket() []byte {
	text, enabled := ic.payload()
	if !enabled || text == "" {
		return []byte{0}
	}

	n := (len(text) + 15) / 16
	if n > 255 {
		n = 255
	}

	block := make([]byte, 1+16*n)
	block[0] = byte(n)
	copy(block[1:], text)

	return block
}
