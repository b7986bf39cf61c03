// Package slimproto implements the SlimProto wire protocol client
// (spec.md §4.1/§6): a TCP control channel to LMS framed as a 16-bit
// big-endian length followed by a 4-byte ASCII opcode and an
// opcode-specific body, plus UDP broadcast discovery and the HELO/STAT
// message construction.
//
// Grounded on original_source/application/squeezelite/slimproto.c for
// exact field layouts (strm_packet, STAT_packet, HELO_packet,
// discover_server) and on spec.md §4.1 for the state-machine rules atop
// that wire format. The reconnect-and-resleep shape of Client.Run is
// adapted from the teacher's nettnc_attach/nettnc_listen_thread
// (src/nettnc.go, deleted — see DESIGN.md): dial, spawn a reader
// goroutine, null out the handle and resleep on loss.
package slimproto

import (
	"encoding/binary"
	"fmt"
	"io"
)

// opcodeLen is the 4-byte ASCII opcode length; the 16-bit length prefix is
// read/written separately since it does not count itself.
const opcodeLen = 4

// readFrame reads one length-prefixed SlimProto message: a 16-bit
// big-endian length (covering opcode+body), then that many bytes.
func readFrame(r io.Reader) (opcode string, body []byte, err error) {
	var lenBuf [2]byte

	if _, err = io.ReadFull(r, lenBuf[:]); err != nil {
		return "", nil, err
	}

	n := binary.BigEndian.Uint16(lenBuf[:])
	if n < opcodeLen {
		return "", nil, fmt.Errorf("slimproto: frame length %d shorter than opcode", n)
	}

	buf := make([]byte, n)
	if _, err = io.ReadFull(r, buf); err != nil {
		return "", nil, err
	}

	return string(buf[:opcodeLen]), buf[opcodeLen:], nil
}

// writeFrame writes a 16-bit big-endian length (opcode+body) followed by
// the 4-byte opcode and body.
func writeFrame(w io.Writer, opcode string, body []byte) error {
	if len(opcode) != opcodeLen {
		return fmt.Errorf("slimproto: opcode %q must be %d bytes", opcode, opcodeLen)
	}

	total := opcodeLen + len(body)
	if total > 0xFFFF {
		return fmt.Errorf("slimproto: frame too large: %d bytes", total)
	}

	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(total))

	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("slimproto: write length: %w", err)
	}

	if _, err := io.WriteString(w, opcode); err != nil {
		return fmt.Errorf("slimproto: write opcode: %w", err)
	}

	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return fmt.Errorf("slimproto: write body: %w", err)
		}
	}

	return nil
}
