// Package httpserver implements spec.md §4.5: one ephemeral HTTP
// listener per track, bound in a sliding port window, serving exactly
// one renderer connection (but able to lose and re-accept one, the
// Sonos re-open pattern) through a four-phase state
// machine. No teacher file plays this role — direwolf's KISS TCP server
// accepts unbounded persistent client connections, a different shape —
// so this package is grounded directly on spec.md §4.5/§6 and on
// original_source's slimaudio_http.c port-window/slot-reuse scheme.
package httpserver

import (
	"fmt"
	"net"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/doismellburning/squeezebox-bridge/internal/cache"
	"github.com/doismellburning/squeezebox-bridge/internal/logging"
	"github.com/doismellburning/squeezebox-bridge/internal/output"
)

// MaxPlayers bounds the port-window search per spec.md §4.5 ("tried up
// to 2·MAX_PLAYER times").
const MaxPlayers = 32

// maxOutputSlots caps concurrent per-track HTTP listeners at two — the
// current track plus, during a gapless handoff, one lingering slot kept
// open for a Sonos-style re-GET (spec.md §3/§9: "model as a fixed-size
// slice of 2 slots... never run three tracks simultaneously").
const maxOutputSlots = 2

// TrackSource is what the bridge aggregate supplies per track: the
// pieces the HTTP connection state machine needs but does not own.
type TrackSource interface {
	// Index is this track's slot index, matched against the requested
	// path's "bridge-<index>" component.
	Index() int

	// Cache returns the byte cache backing re-opens and range requests.
	Cache() cache.Buffer

	// Output returns the output engine once the decoder has reported a
	// codec (nil before then, per Phase 2: "once accepted and the
	// decoder reports a codec").
	Output() *output.Stream

	// FillOutput drives the output engine one step (internal/output's
	// Fill, against whatever outputbuf and decode-complete state the
	// bridge aggregate tracks) and returns the produced bytes, if any.
	// Kept on TrackSource rather than exposing the ring buffer directly
	// so this package never needs to import internal/ringbuf.
	FillOutput() (output.FillResult, error)

	// MimeType returns the negotiated MIME string used for both the
	// Content-Type header and DLNA PN derivation.
	MimeType() string

	// Live reports whether this is an indefinite/live stream (affects
	// DLNA flags and whether ICY is permitted on non-flow tracks).
	Live() bool

	// IcyMetadata returns the current "StreamTitle='...';StreamUrl='...';"
	// payload (pre-NUL-padding) and whether ICY injection is armed; the
	// SlimProto layer updates this on setd/CLI metadata refresh.
	IcyMetadata() (payload string, enabled bool)

	// Drained is called once this track's steady-state loop has pulled
	// the entire outputbuf and the connection is about to send its final
	// chunk terminator (spec.md §4.5 Phase 4's completion, the trigger
	// for §4.1's STMu/STMn).
	Drained()
}

// Slot is one port-window listener and its accept loop. A slot becomes
// reusable once its goroutine exits (idle) or, failing an idle slot,
// the lowest-indexed lingering slot is joined and reused (spec.md
// §4.5's slot-reuse rule).
type Slot struct {
	Index    int
	Port     int
	listener net.Listener
	done     chan struct{}

	// lingering marks a slot whose track has been superseded by the next
	// one but whose listener is kept open for a brief re-open window
	// rather than torn down immediately.
	lingering bool
}

// Done marks this slot's accept loop as exited, making it the first
// candidate Reserve reuses for the next track (ahead of any lingering
// slot).
func (s *Slot) Done() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func (s *Slot) isIdle() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// MarkLingering flags this slot as superseded: its track has given way
// to a new one, but the listener stays open for spec.md §4.5's Sonos
// re-open pattern until Reserve needs the capacity back or the player
// is torn down.
func (s *Slot) MarkLingering() {
	s.lingering = true
}

// Server owns the port-window allocator and the at-most-two slots one
// player may hold concurrently.
type Server struct {
	log      *logging.Logger
	basePort int
	prefix   string

	mu    sync.Mutex
	slots []*Slot
	sem   *semaphore.Weighted
}

// New constructs a Server. basePort is sq_local_port; prefix is the
// path prefix before "bridge-<index>" (may be empty).
func New(basePort int, prefix string, log *logging.Logger) *Server {
	return &Server{
		log:      log,
		basePort: basePort,
		prefix:   prefix,
		sem:      semaphore.NewWeighted(maxOutputSlots),
	}
}

// Reserve returns a slot bound to index, preferring reuse over opening
// a third physical listener (spec.md §4.5): an idle slot (its accept
// loop already exited) first, else — once both of the two output-thread
// slots are already in play — the lowest-indexed lingering slot. Only
// when there is genuine spare capacity does it bind a fresh listener.
func (s *Server) Reserve(index int) (*Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, slot := range s.slots {
		if slot.isIdle() {
			return s.rebind(slot, index)
		}
	}

	if len(s.slots) < maxOutputSlots && s.sem.TryAcquire(1) {
		slot, err := s.bind(index)
		if err != nil {
			s.sem.Release(1)
			return nil, err
		}

		s.slots = append(s.slots, slot)

		return slot, nil
	}

	var lingering *Slot

	for _, slot := range s.slots {
		if slot.lingering && (lingering == nil || slot.Index < lingering.Index) {
			lingering = slot
		}
	}

	if lingering != nil {
		return s.rebind(lingering, index)
	}

	return nil, fmt.Errorf("httpserver: %d output-thread slots already in use, none free for index %d", maxOutputSlots, index)
}

// rebind closes a reused slot's old listener and opens a fresh one on
// the same port under a new Slot value, rather than mutating the slot
// the old track's accept-loop goroutine is still holding a pointer to —
// that goroutine's own Done() call must close its own done channel, not
// the new track's.
func (s *Server) rebind(old *Slot, index int) (*Slot, error) {
	_ = old.listener.Close()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", old.Port))
	if err != nil {
		return nil, fmt.Errorf("httpserver: rebinding port %d for index %d: %w", old.Port, index, err)
	}

	next := &Slot{Index: index, Port: old.Port, listener: ln, done: make(chan struct{})}

	for i, slot := range s.slots {
		if slot == old {
			s.slots[i] = next
			break
		}
	}

	return next, nil
}

func (s *Server) bind(index int) (*Slot, error) {
	var lastErr error

	for attempt := 0; attempt < 2*MaxPlayers; attempt++ {
		port := s.basePort + (index+attempt)%(2*MaxPlayers)
		if s.basePort == 0 {
			port = 0 // no base port configured: let the kernel pick one
		}

		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			lastErr = err
			continue
		}

		return &Slot{Index: index, Port: ln.Addr().(*net.TCPAddr).Port, listener: ln, done: make(chan struct{})}, nil
	}

	return nil, fmt.Errorf("httpserver: no free port in window for index %d: %w", index, lastErr)
}

// Release closes the slot bound to index for good and frees its
// output-thread-slot unit. Per spec.md §4.5, the listening socket is
// NOT closed merely because the connection went lingering — only
// Release (or a later Reserve evicting a lingering slot) closes it.
func (s *Server) Release(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, slot := range s.slots {
		if slot.Index == index {
			_ = slot.listener.Close()
			s.slots = append(s.slots[:i:i], s.slots[i+1:]...)
			s.sem.Release(1)

			return
		}
	}
}

// ReleaseAll closes every slot this player currently holds, for full
// teardown (PlayerContext.Delete) rather than a single track ending.
func (s *Server) ReleaseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, slot := range s.slots {
		_ = slot.listener.Close()
		s.sem.Release(1)
	}

	s.slots = nil
}

// PortNumber reports the bound port for an already-reserved slot.
func (s *Slot) PortNumber() int { return s.Port }

// Accept blocks for the next inbound connection on this slot's
// listener. The caller (the bridge's per-track goroutine) is expected
// to loop: Accept, Serve, and Accept again if the renderer
// reconnects (Sonos pattern), until the listener is closed out from
// under it by a rebind or Release.
func (s *Slot) Accept() (net.Conn, error) {
	return s.listener.Accept()
}
