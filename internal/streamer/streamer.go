// Package streamer implements the origin fetch of spec.md §4.2: file
// mode for local paths, socket mode for HTTP(S) origins, landing bytes
// directly into a ringbuf.Buffer (streambuf) and forwarding captured
// response headers and ICY metadata up through a Reporter.
//
// Grounded on the teacher's nettnc_attach/nettnc_listen_thread
// reattachment loop (src/nettnc.go, deleted, pattern only — see
// DESIGN.md) for the dial/poll/detect-loss/resleep shape, generalized
// from "AX.25 frame byte stream over a TNC" to "HTTP body bytes over an
// origin socket." Non-blocking polling uses golang.org/x/sys/unix per
// SPEC_FULL.md §2.2, matching spec.md §5's "streamer polls with 100ms."
package streamer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/doismellburning/squeezebox-bridge/internal/logging"
	"github.com/doismellburning/squeezebox-bridge/internal/ringbuf"
)

// State is the streamer's socket-mode state machine (spec.md §4.2).
type State int

const (
	StateStopped State = iota
	StateSendHeaders
	StateRecvHeaders
	StateStreamingWait
	StateStreamingBuffering
	StateStreamingHTTP
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateSendHeaders:
		return "SendHeaders"
	case StateRecvHeaders:
		return "RecvHeaders"
	case StateStreamingWait:
		return "StreamingWait"
	case StateStreamingBuffering:
		return "StreamingBuffering"
	case StateStreamingHTTP:
		return "StreamingHTTP"
	case StateDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// DisconnectReason mirrors the slimproto.DisconnectReason domain without
// importing that package, avoiding a dependency cycle; internal/bridge
// maps between the two.
type DisconnectReason int

const (
	DisconnectOK DisconnectReason = iota
	DisconnectLocal
	DisconnectRemote
	DisconnectUnreachable
	DisconnectTimeout
)

// maxHeaderSize bounds the captured request/response header block
// (spec.md §4.2: "keeping total header under 4 KiB").
const maxHeaderSize = 4096

// connectBudget is the socket-mode connect timeout (spec.md §5).
const connectBudget = 10 * time.Second

// pollInterval is the steady-state poll cadence (spec.md §5).
const pollInterval = 100 * time.Millisecond

// Reporter receives the side effects a streamer produces outside of
// streambuf itself: captured response headers (-> RESP) and ICY
// metadata blocks (-> META).
type Reporter interface {
	ReportHeaders(header []byte)
	ReportMetadata(icy []byte)
}

// Streamer pulls bytes from one origin (file or HTTP/HTTPS) into a
// streambuf, per spec.md §4.2.
type Streamer struct {
	log       *logging.Logger
	streambuf *ringbuf.Buffer
	reporter  Reporter

	mu         sync.Mutex
	state      State
	disconnect DisconnectReason

	file *os.File
	conn net.Conn

	metaInterval   int
	bytesSinceMeta int
	icyEnabled     bool
	threshold      int64
	bytesReceived  int64
}

// New constructs a Streamer bound to one player's streambuf.
func New(log *logging.Logger, streambuf *ringbuf.Buffer, reporter Reporter) *Streamer {
	return &Streamer{
		log:       log,
		streambuf: streambuf,
		reporter:  reporter,
		state:     StateStopped,
	}
}

// State returns the current state (thread-safe snapshot).
func (s *Streamer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Disconnect returns the last disconnect reason recorded.
func (s *Streamer) Disconnect() DisconnectReason {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.disconnect
}

// BytesReceived reports the cumulative byte count read from the origin,
// for the owning PlayerContext's STAT snapshot.
func (s *Streamer) BytesReceived() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.bytesReceived
}

func (s *Streamer) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Streamer) setDisconnect(r DisconnectReason) {
	s.mu.Lock()
	s.disconnect = r
	s.state = StateDisconnected
	s.mu.Unlock()
}

// OpenFile starts file mode against a local path.
func (s *Streamer) OpenFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		s.setDisconnect(DisconnectUnreachable)
		return fmt.Errorf("streamer: open %s: %w", path, err)
	}

	s.mu.Lock()
	s.file = f
	s.state = StateStreamingHTTP // file mode has no header phase; it's immediately "streaming"
	s.mu.Unlock()

	return nil
}

// RunFile drives one cooperative iteration of file mode: read up to the
// contiguous free space in streambuf, advance the write pointer, report
// DisconnectRemote on EOF. Intended to be called repeatedly by the
// owning goroutine's loop.
func (s *Streamer) RunFile() error {
	s.mu.Lock()
	f := s.file
	s.mu.Unlock()

	if f == nil {
		return fmt.Errorf("streamer: RunFile called with no open file")
	}

	space := s.streambuf.ContiguousWrite()
	if space == 0 {
		return nil
	}

	// Read into a scratch buffer first: os.File.Read on a regular file
	// may return fewer bytes than requested even before EOF, and
	// WriteAdvance's reservation must only be sized to what was actually
	// read.
	scratch := make([]byte, space)

	n, err := f.Read(scratch)
	if n > 0 {
		s.mu.Lock()
		s.bytesReceived += int64(n)
		s.mu.Unlock()

		s.streambuf.Write(scratch[:n])
	}

	if err == io.EOF {
		s.setDisconnect(DisconnectRemote)
		return io.EOF
	}

	if err != nil {
		s.setDisconnect(DisconnectUnreachable)
		return fmt.Errorf("streamer: read file: %w", err)
	}

	return nil
}

// Close releases any open file/socket and marks the streamer Stopped.
// Idempotent per spec.md §4.2's "any attempt to disconnect after EOF is
// idempotent."
func (s *Streamer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error

	if s.conn != nil {
		err = s.conn.Close()
		s.conn = nil
	}

	if s.file != nil {
		if cerr := s.file.Close(); cerr != nil && err == nil {
			err = cerr
		}

		s.file = nil
	}

	s.state = StateStopped

	return err
}

// Connect dials the origin in socket mode with a 10s budget, sends the
// literal header block, and advances to RecvHeaders.
func (s *Streamer) Connect(ctx context.Context, network, addr string, requestHeader []byte, threshold int64) error {
	s.mu.Lock()
	s.threshold = threshold
	s.mu.Unlock()

	s.setState(StateSendHeaders)

	dialCtx, cancel := context.WithTimeout(ctx, connectBudget)
	defer cancel()

	d := net.Dialer{}

	conn, err := d.DialContext(dialCtx, network, addr)
	if err != nil {
		s.setDisconnect(DisconnectUnreachable)
		return fmt.Errorf("streamer: dial %s: %w", addr, err)
	}

	if _, err := conn.Write(requestHeader); err != nil {
		_ = conn.Close()
		s.setDisconnect(DisconnectUnreachable)
		return fmt.Errorf("streamer: write request headers: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.state = StateRecvHeaders
	s.mu.Unlock()

	return nil
}

// RecvHeaders reads one byte at a time until the CRLFCRLF terminator,
// capping the header at maxHeaderSize, then reports it and decides
// whether ICY framing is active before moving to StreamingWait.
func (s *Streamer) RecvHeaders() error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("streamer: RecvHeaders with no connection")
	}

	var header bytes.Buffer
	tail := make([]byte, 0, 4)

	for header.Len() < maxHeaderSize {
		if !pollReadable(conn, pollInterval) {
			continue
		}

		var b [1]byte

		n, err := conn.Read(b[:])
		if n == 0 || err != nil {
			if err == io.EOF {
				s.setDisconnect(DisconnectRemote)
			} else {
				s.setDisconnect(DisconnectUnreachable)
			}

			return fmt.Errorf("streamer: read response headers: %w", err)
		}

		header.WriteByte(b[0])
		tail = append(tail, b[0])
		if len(tail) > 4 {
			tail = tail[1:]
		}

		if bytes.Equal(tail, []byte("\r\n\r\n")) {
			break
		}
	}

	headerBytes := header.Bytes()
	s.reporter.ReportHeaders(headerBytes)

	meta := parseIcyMetaInt(string(headerBytes))

	s.mu.Lock()
	s.metaInterval = meta
	s.icyEnabled = meta > 0
	s.state = StateStreamingWait
	s.mu.Unlock()

	return nil
}

// parseIcyMetaInt extracts the numeric value of an "icy-metaint:" header
// line, or 0 if absent.
func parseIcyMetaInt(header string) int {
	lower := strings.ToLower(header)
	idx := strings.Index(lower, "icy-metaint:")
	if idx < 0 {
		return 0
	}

	rest := header[idx+len("icy-metaint:"):]
	rest = strings.TrimLeft(rest, " ")

	n := 0
	for i := 0; i < len(rest); i++ {
		if rest[i] < '0' || rest[i] > '9' {
			break
		}

		n = n*10 + int(rest[i]-'0')
	}

	return n
}

// RunSocket drives one cooperative iteration of socket-mode steady
// state: reads available body bytes (de-interleaving ICY metadata if
// enabled) into streambuf, and promotes StreamingWait/Buffering to
// StreamingHTTP once bytesReceived exceeds threshold.
func (s *Streamer) RunSocket() error {
	s.mu.Lock()
	conn := s.conn
	state := s.state
	s.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("streamer: RunSocket with no connection")
	}

	if state != StateStreamingWait && state != StateStreamingBuffering && state != StateStreamingHTTP {
		return nil
	}

	if !pollReadable(conn, pollInterval) {
		return nil
	}

	space := s.streambuf.ContiguousWrite()
	if space == 0 {
		return nil
	}

	s.mu.Lock()
	icyEnabled := s.icyEnabled
	metaInterval := s.metaInterval
	untilMeta := metaInterval - s.bytesSinceMeta
	s.mu.Unlock()

	readLen := space
	if icyEnabled && untilMeta < readLen && untilMeta > 0 {
		readLen = untilMeta
	}

	// Read into a scratch buffer rather than reserving streambuf space
	// directly: conn.Read may return fewer bytes than requested, and
	// WriteAdvance's reservation, once taken, must be filled completely.
	scratch := make([]byte, readLen)

	n, err := conn.Read(scratch)
	if n > 0 {
		first, second := s.streambuf.WriteAdvance(n)
		copy(first, scratch[:len(first)])
		copy(second, scratch[len(first):n])

		s.mu.Lock()
		s.bytesReceived += int64(n)
		s.bytesSinceMeta += n

		if s.bytesReceived > s.threshold && s.state != StateStreamingHTTP {
			s.state = StateStreamingHTTP
		}

		reachedMeta := icyEnabled && s.bytesSinceMeta >= metaInterval
		s.mu.Unlock()

		if reachedMeta {
			if merr := s.consumeIcyBlock(conn); merr != nil {
				s.setDisconnect(DisconnectUnreachable)
				return merr
			}

			s.mu.Lock()
			s.bytesSinceMeta = 0
			s.mu.Unlock()
		}
	}

	if err != nil && err != io.EOF {
		s.setDisconnect(DisconnectUnreachable)
		return fmt.Errorf("streamer: read body: %w", err)
	}

	if err == io.EOF {
		s.setDisconnect(DisconnectRemote)
		return io.EOF
	}

	return nil
}

// consumeIcyBlock reads the 1-byte length prefix and 16*N metadata
// bytes, forwarding them via Reporter.ReportMetadata (spec.md §4.2).
func (s *Streamer) consumeIcyBlock(conn net.Conn) error {
	var lenByte [1]byte
	if _, err := io.ReadFull(conn, lenByte[:]); err != nil {
		return fmt.Errorf("streamer: read icy length: %w", err)
	}

	n := int(lenByte[0]) * 16
	if n == 0 {
		return nil
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return fmt.Errorf("streamer: read icy metadata: %w", err)
	}

	s.reporter.ReportMetadata(buf)

	return nil
}

// pollReadable uses unix.Poll on the connection's raw fd to wait up to
// timeout for read-readiness, matching spec.md §5's "streamer polls with
// 100ms" without busy-spinning on a blocking Read call that would defeat
// cancellation. Returns false on timeout; returns true without waiting
// if the fd could not be obtained.
func pollReadable(conn net.Conn, timeout time.Duration) bool {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return true
	}

	rc, err := sc.SyscallConn()
	if err != nil {
		return true
	}

	var ready bool

	_ = rc.Control(func(fd uintptr) {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, _ := unix.Poll(fds, int(timeout.Milliseconds()))
		ready = n > 0 && fds[0].Revents&unix.POLLIN != 0
	})

	return ready
}
