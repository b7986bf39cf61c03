// Package bridge wires one player's SlimProto control connection,
// origin streamer, decoder, output engine, HTTP server, and CLI
// side-channel into the single PlayerContext aggregate spec.md §5
// describes: one SlimProto goroutine, one streamer goroutine, one
// decoder goroutine, up to two HTTP goroutines (current + lingering),
// and a mutex-serialised CLI client.
//
// No teacher file plays this integration role — direwolf has no notion
// of "one aggregate per remote peer" at all, each KISS client is just a
// TCP connection fed from a shared channel layer — so PlayerContext's
// shape is grounded directly on spec.md §5's resource table and on
// original_source's squeezelite.c slimproto_thread/decode_thread/
// output_thread split, adapted to goroutines supervised by
// golang.org/x/sync/errgroup per SPEC_FULL.md §2.2.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/doismellburning/squeezebox-bridge/internal/cache"
	"github.com/doismellburning/squeezebox-bridge/internal/cli"
	"github.com/doismellburning/squeezebox-bridge/internal/config"
	"github.com/doismellburning/squeezebox-bridge/internal/decode"
	"github.com/doismellburning/squeezebox-bridge/internal/events"
	"github.com/doismellburning/squeezebox-bridge/internal/httpserver"
	"github.com/doismellburning/squeezebox-bridge/internal/logging"
	"github.com/doismellburning/squeezebox-bridge/internal/output"
	"github.com/doismellburning/squeezebox-bridge/internal/ringbuf"
	"github.com/doismellburning/squeezebox-bridge/internal/slimproto"
	"github.com/doismellburning/squeezebox-bridge/internal/streamer"
)

// Config wraps internal/config's PlayerParams (the on-disk-shaped surface
// spec.md §6 names) with the runtime-only infrastructure wiring that
// surface doesn't cover: where this player's HTTP slot allocator and byte
// cache live.
type Config struct {
	Params config.PlayerParams

	HTTPBasePort   int
	HTTPPathPrefix string
	CLIAddr        string
	CacheMode      string // "", "HTTP_CACHE_MEMORY", "HTTP_CACHE_DISK"
	CacheScratchDir string
}

// PlayerContext is one player's full aggregate: every goroutine and
// buffer spec.md §5's resource table names. It implements
// slimproto.StrmHandler, slimproto.StatusSource, and
// httpserver.TrackSource.
type PlayerContext struct {
	cfg Config
	log *logging.Logger

	eventCB  events.Callback
	mrHandle any

	slim    *slimproto.Client
	cliConn *cli.Client
	http    *httpserver.Server

	streambuf *ringbuf.Buffer
	outputbuf *ringbuf.Buffer

	streamerInst *streamer.Streamer

	// decode state, guarded by decodeMu (lock order: streambuf <
	// outputbuf < decode < cli, spec.md §5)
	decodeMu      sync.Mutex
	decodeAdapter decode.Adapter
	decodeDone    bool
	decodeErr     error

	// output state, guarded by outputMu (co-located with outputbuf per
	// spec.md §5: "output state: outputbuf mutex re-used")
	outputMu  sync.Mutex
	outStream *output.Stream

	// HTTP slot/cache for the current track; a second slot lingers
	// during gapless handoff (spec.md §5's "up to two HTTP-server
	// threads").
	slotMu      sync.Mutex
	slot        *httpserver.Slot
	cacheBuf    cache.Buffer
	trackIndex  int
	mimeType    string
	live        bool
	icyTitle    string
	icyEnabled  bool

	running   atomic.Bool
	bytesRecv atomic.Int64
	elapsedMs atomic.Uint32

	runCtx context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New constructs a PlayerContext. The caller still must call Run to
// start its goroutines.
func New(cfg Config, eventCB events.Callback, mrHandle any) *PlayerContext {
	log := logging.New(cfg.Params.Mac)

	p := &PlayerContext{
		cfg:       cfg,
		log:       log,
		eventCB:   eventCB,
		mrHandle:  mrHandle,
		streambuf: ringbuf.New(cfg.Params.StreamBufSize),
		outputbuf: ringbuf.New(cfg.Params.OutputBufSize),
		http:      httpserver.New(cfg.HTTPBasePort, cfg.HTTPPathPrefix, log),
	}

	p.streamerInst = streamer.New(log, p.streambuf, p)
	p.slim = slimproto.New(cfg.Params.Mac, p, p)

	if cfg.Params.UseCLI {
		p.cliConn = cli.New(macString(cfg.Params.Mac), cfg.CLIAddr)
	}

	return p
}

func macString(mac [6]byte) string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
}

// Run starts the SlimProto client and blocks until ctx is cancelled or
// the connection is torn down via Delete; it supervises the per-track
// goroutines it spawns along the way with an errgroup so any one
// failure cancels the rest.
func (p *PlayerContext) Run(ctx context.Context, addr string) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	group, gctx := errgroup.WithContext(ctx)
	p.group = group
	p.runCtx = gctx

	p.running.Store(true)

	group.Go(func() error {
		return p.slim.Run(gctx, addr)
	})

	err := group.Wait()
	p.running.Store(false)

	return err
}

// Delete implements sq_delete_device (spec.md §5's cancellation path):
// closes the slimproto socket (handled by ctx cancellation, which
// unblocks Run), flushes output (marks outputbuf/HTTP threads stopped),
// and releases the HTTP slot.
func (p *PlayerContext) Delete() {
	p.running.Store(false)

	if p.cancel != nil {
		p.cancel()
	}

	p.slotMu.Lock()
	p.slot = nil
	p.slotMu.Unlock()

	p.http.ReleaseAll()

	p.decodeMu.Lock()
	if p.decodeAdapter != nil {
		_ = p.decodeAdapter.Close()
		p.decodeAdapter = nil
	}
	p.decodeMu.Unlock()

	_ = p.streamerInst.Close()

	if p.cliConn != nil {
		_ = p.cliConn.Close()
	}
}

// Notify delivers a renderer-reported state change into this
// PlayerContext (spec.md §1's external interface (c)). NotifyTime feeds
// the elapsed-time field the next outgoing STAT carries. NotifyPlay is
// the renderer's confirmation that it is actually producing sound for
// the current track, which is what spec.md §4.1 means by "STMs is sent
// exactly once per track when the renderer confirms playback" — so it
// fires the STMs STAT here rather than at strm-start time. NotifyPause
// and NotifyStop have no STAT of their own (pause/resume are reported
// as STMp/STMr by the SlimProto client's strm handling, and a renderer-initiated
// stop is just logged); NotifyVolume is visibility only.
func (p *PlayerContext) Notify(n events.Notification) {
	switch n.Kind {
	case events.NotifyTime:
		p.elapsedMs.Store(n.MsPlayed)
	case events.NotifyPlay:
		if err := p.slim.SendSTAT("STMs"); err != nil {
			p.log.Debug("STMs send failed", "err", err)
		}
	case events.NotifyPause, events.NotifyStop:
		p.log.Debug("renderer notification", "kind", n.Kind, "track", n.TrackIndex)
	case events.NotifyVolume:
		p.log.Debug("renderer volume report", "volume", n.Volume)
	}
}

// startTrack implements the 'strm s' side of spec.md §4.1: resets
// buffers, opens the origin, and spawns the streamer/decoder/HTTP
// goroutines for the new track. Errors are logged, not returned — a
// failed track start surfaces to LMS as a lack of STMs, the same
// "silent stall, let the 35s idle timeout recover" failure mode
// spec.md §7 describes for this class of error.
func (p *PlayerContext) startTrack(s slimproto.Strm) {
	p.streambuf.Reset()
	p.outputbuf.Reset()

	p.decodeMu.Lock()
	if p.decodeAdapter != nil {
		_ = p.decodeAdapter.Close()
		p.decodeAdapter = nil
	}
	p.decodeDone = false
	p.decodeErr = nil
	p.decodeMu.Unlock()

	if s.Format != 0 && s.Format != '-' {
		p.decodeMu.Lock()
		adapter, err := decode.Open(nil, s.Format, s.PCMSampleSize, s.PCMSampleRate, s.PCMChannels, s.PCMEndianness)
		if err == nil {
			p.decodeAdapter = adapter
		}
		p.decodeMu.Unlock()

		if err != nil {
			p.log.Warn("strm: open adapter failed", "err", err)
			return
		}

		sampleSize, _ := slimproto.PCMSampleSize(s.PCMSampleSize)
		sampleRate, _ := slimproto.PCMSampleRate(s.PCMSampleRate)
		channels, _ := slimproto.PCMChannels(s.PCMChannels)

		p.openOutput(sampleRate, channels, sampleSize)
	}

	p.slotMu.Lock()
	if p.slot != nil {
		// This track's own slot stays lingering rather than being
		// released outright: a Sonos-style renderer may still re-GET it
		// briefly before fully switching to the new track (spec.md
		// §4.5).
		p.slot.MarkLingering()
	}
	p.slotMu.Unlock()

	p.trackIndex++

	slot, err := p.http.Reserve(p.trackIndex)
	if err != nil {
		p.log.Warn("http slot reservation failed", "err", err)
		return
	}

	durationKnown := false // the streamer learns the real content-length only once headers arrive
	cacheBuf, err := cache.Select(p.cfg.CacheMode, durationKnown, p.cfg.CacheScratchDir)
	if err != nil {
		p.log.Warn("cache select failed", "err", err)
		return
	}

	p.slotMu.Lock()
	p.slot = slot
	p.cacheBuf = cacheBuf
	p.slotMu.Unlock()

	p.group.Go(func() error { return p.acceptLoop(slot) })
	p.group.Go(func() error { return p.decodeLoop() })

	if s.ServerIP != 0 && len(s.Header) > 0 {
		p.group.Go(func() error { return p.streamOrigin(s) })
	}
}

// streamOrigin dials the HTTP origin LMS named in the strm packet,
// forwards the literal captured request header, and drives the streamer's
// cooperative socket-mode loop until the origin disconnects (spec.md
// §4.2/§5: a 100ms poll, none of it holding a mutex).
func (p *PlayerContext) streamOrigin(s slimproto.Strm) error {
	addr := formatIPv4Port(s.ServerIP, s.ServerPort)
	threshold := int64(s.ThresholdKB) * 1024

	if err := p.streamerInst.Connect(p.runCtx, "tcp", addr, s.Header, threshold); err != nil {
		p.log.Warn("streamer: connect failed", "err", err)
		return nil
	}

	if err := p.streamerInst.RecvHeaders(); err != nil {
		p.log.Warn("streamer: recv headers failed", "err", err)
		return nil
	}

	reachedThreshold := false

	for p.running.Load() {
		if err := p.streamerInst.RunSocket(); err != nil {
			return nil
		}

		p.bytesRecv.Store(p.streamerInst.BytesReceived())

		// RunSocket promotes the streamer to StateStreamingHTTP once
		// bytesReceived crosses the strm threshold; that crossing is
		// spec.md §4.1's STMl ("filled to threshold / ready to play"),
		// fired exactly once per track.
		if !reachedThreshold && p.streamerInst.State() == streamer.StateStreamingHTTP {
			reachedThreshold = true

			if err := p.slim.SendSTAT("STMl"); err != nil {
				p.log.Debug("STMl send failed", "err", err)
			}
		}
	}

	return nil
}

func formatIPv4Port(ip uint32, port uint16) string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", byte(ip>>24), byte(ip>>16), byte(ip>>8), byte(ip), port)
}

// acceptLoop accepts connections on this track's slot and serves them
// one at a time — the Sonos reconnect pattern from spec.md §4.5 means
// the listener may see more than one connection over a track's life.
func (p *PlayerContext) acceptLoop(slot *httpserver.Slot) error {
	defer slot.Done()

	for {
		conn, err := slot.Accept()
		if err != nil {
			return nil // listener closed by rebind/Release/ReleaseAll
		}

		httpserver.Serve(conn, p, p.log)
	}
}

// decodeLoop drives the current codec adapter once per iteration,
// sleeping 100ms on no-progress per spec.md §5's backpressure rule
// ("decoder sleeps 100ms on empty"). A decode error ends this track's
// decode loop only — per spec.md §7 it surfaces as a silent stall the
// renderer recovers from via its own idle timeout, not as a PlayerContext
// failure, so it is never returned to the supervising errgroup.
func (p *PlayerContext) decodeLoop() error {
	for {
		p.decodeMu.Lock()
		adapter := p.decodeAdapter
		p.decodeMu.Unlock()

		if adapter == nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		if p.streambuf.Used() < adapter.MinReadBytes() || p.outputbuf.Space() < adapter.MinSpace() {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		res, err := adapter.Decode(p.streambuf, p.outputbuf)

		p.decodeMu.Lock()
		if err != nil {
			p.decodeErr = err
			p.decodeDone = true
		} else if res.State == decode.StateComplete || res.State == decode.StateError {
			p.decodeDone = true
		}
		p.decodeMu.Unlock()

		if err != nil {
			p.log.Warn("decode failed", "err", err)
			return nil
		}

		if res.State == decode.StateComplete {
			// The decoder has left Running having handed everything it
			// could off to outputbuf: spec.md §4.1's STMd ("decoder
			// drained — LMS may now push next track"). SendSTAT itself
			// defers this one round if STMs hasn't fired yet for this
			// track.
			if err := p.slim.SendSTAT("STMd"); err != nil {
				p.log.Debug("STMd send failed", "err", err)
			}

			return nil
		}

		if res.FramesWritten == 0 {
			time.Sleep(100 * time.Millisecond)
		}
	}
}
