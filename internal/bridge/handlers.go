package bridge

import (
	"context"
	"time"

	"github.com/doismellburning/squeezebox-bridge/internal/cache"
	"github.com/doismellburning/squeezebox-bridge/internal/config"
	"github.com/doismellburning/squeezebox-bridge/internal/decode"
	"github.com/doismellburning/squeezebox-bridge/internal/events"
	"github.com/doismellburning/squeezebox-bridge/internal/output"
	"github.com/doismellburning/squeezebox-bridge/internal/slimproto"
)

// ---- slimproto.StrmHandler ----

// OnStrm dispatches a parsed strm message per spec.md §4.1: 's' starts a
// new track (delegates to startTrack), 'q'/'f' stop, 'p'/'u' pause/unpause
// relayed to the renderer via the events callback, 't' is answered
// implicitly by the next STAT heartbeat.
func (p *PlayerContext) OnStrm(s slimproto.Strm) {
	switch s.Command {
	case slimproto.StrmStart:
		p.startTrack(s)
	case slimproto.StrmStop, slimproto.StrmFlush:
		p.fireEvent(events.ActionStop, nil)
	case slimproto.StrmPause:
		p.fireEvent(events.ActionPause, nil)
	case slimproto.StrmUnpause:
		p.fireEvent(events.ActionUnpause, nil)
	}
}

func (p *PlayerContext) OnCont(c slimproto.Cont) {
	p.slotMu.Lock()
	p.icyEnabled = c.MetaInt > 0
	p.slotMu.Unlock()
}

// OnCodc records a late codec declaration so the HTTP server's Phase 2
// wait (TrackSource.Output() becoming non-nil) can proceed even when the
// codec wasn't known at strm-start time.
func (p *PlayerContext) OnCodc(c slimproto.Codc) {
	p.decodeMu.Lock()
	adapter, err := decode.Open(p.decodeAdapter, c.Format, c.PCMSampleSize, c.PCMSampleRate, c.PCMChannels, c.PCMEndianness)
	if err == nil {
		p.decodeAdapter = adapter
	}
	p.decodeMu.Unlock()

	if err != nil {
		p.log.Warn("codc: open adapter failed", "err", err)
		return
	}

	sampleSize, _ := slimproto.PCMSampleSize(c.PCMSampleSize)
	sampleRate, _ := slimproto.PCMSampleRate(c.PCMSampleRate)
	channels, _ := slimproto.PCMChannels(c.PCMChannels)

	p.openOutput(sampleRate, channels, sampleSize)
}

func (p *PlayerContext) OnAude(a slimproto.Aude) {
	// Digital/analog output enable toggles have no analogue in a
	// software renderer bridge; the event is acknowledged implicitly by
	// the next STAT heartbeat.
}

func (p *PlayerContext) OnAudg(a slimproto.Audg) {
	if a.Adjust == 0 {
		return
	}

	// OldGainL/R are 16.16 fixed point against a unity of 1<<16; scale
	// to the renderer's 0-65535 volume domain the same way
	// original_source's process_audg does for a line-level output.
	scaled := a.OldGainL >> 16
	if scaled > 65535 {
		scaled = 65535
	}

	p.fireEvent(events.ActionVolume, uint16(scaled))
}

// OnSetd answers a player-name query (id 0) by echoing the configured
// name, or accepts a rename and relays it to the renderer via the CLI
// client if one is configured.
func (p *PlayerContext) OnSetd(s slimproto.Setd) (string, bool) {
	if s.ID != 0 {
		return "", false
	}

	p.slotMu.Lock()
	if s.Data == "" {
		name := p.cfg.Params.Name
		p.slotMu.Unlock()

		return name, true
	}

	p.cfg.Params.Name = s.Data
	p.slotMu.Unlock()

	if p.cliConn != nil {
		go func() { _, _ = p.cliConn.SetName(context.Background(), s.Data) }()
	}

	return "", false
}

func (p *PlayerContext) OnServ(s slimproto.Serv) {
	// Server migration is handled by the caller re-invoking Run against
	// the new address once this returns; nothing to do at the message
	// level beyond acknowledging receipt via the dispatch loop itself.
}

func (p *PlayerContext) OnLedc(b byte) {}

func (p *PlayerContext) OnVersion(v string) {
	p.log.Debug("server version", "version", v)
}

func (p *PlayerContext) fireEvent(action events.Action, arg any) {
	if p.eventCB != nil {
		p.eventCB(p.mrHandle, action, arg)
	}
}

// ---- slimproto.StatusSource ----

// Snapshot implements StatusSource: the live buffer-fullness and
// elapsed-time figures sendSTAT needs at the moment a STAT is about to go
// out (spec.md §4.1).
func (p *PlayerContext) Snapshot() slimproto.StatusSnapshot {
	return slimproto.StatusSnapshot{
		StreamBufferFullness: uint32(p.streambuf.Used()),
		StreamBufferSize:     uint32(p.streambuf.Size()),
		BytesReceived:        uint64(p.bytesRecv.Load()),
		OutputBufferSize:     uint32(p.outputbuf.Size()),
		OutputBufferFullness: uint32(p.outputbuf.Used()),
		ElapsedMs:            p.elapsedMs.Load(),
		Voltage:              0,
		JiffiesNow:           uint32(time.Now().UnixMilli()),
		ServerTimestamp:      0,
	}
}

// ---- streamer.Reporter ----

// ReportHeaders forwards the streamer's captured response header block up
// to LMS as a RESP message.
func (p *PlayerContext) ReportHeaders(header []byte) {
	if p.slim != nil {
		_ = p.slim.SendRESP(header)
	}
}

// ReportMetadata forwards an ICY metadata block up to LMS as a META
// message and caches it for the HTTP server's own icy-metadata injection.
func (p *PlayerContext) ReportMetadata(icy []byte) {
	if p.slim != nil {
		_ = p.slim.SendMETA(icy)
	}

	p.slotMu.Lock()
	p.icyTitle = string(icy)
	p.slotMu.Unlock()
}

// ---- httpserver.TrackSource ----

func (p *PlayerContext) Index() int {
	p.slotMu.Lock()
	defer p.slotMu.Unlock()

	return p.trackIndex
}

func (p *PlayerContext) Cache() cache.Buffer {
	p.slotMu.Lock()
	defer p.slotMu.Unlock()

	return p.cacheBuf
}

func (p *PlayerContext) Output() *output.Stream {
	p.outputMu.Lock()
	defer p.outputMu.Unlock()

	return p.outStream
}

// FillOutput drives the output engine one step against this player's own
// outputbuf and decode-complete state, keeping internal/httpserver free of
// any dependency on internal/ringbuf or internal/decode.
func (p *PlayerContext) FillOutput() (output.FillResult, error) {
	p.outputMu.Lock()
	stream := p.outStream
	p.outputMu.Unlock()

	if stream == nil {
		return output.FillResult{}, nil
	}

	p.decodeMu.Lock()
	done := p.decodeDone
	p.decodeMu.Unlock()

	return stream.Fill(p.outputbuf, done)
}

func (p *PlayerContext) MimeType() string {
	p.slotMu.Lock()
	defer p.slotMu.Unlock()

	return p.mimeType
}

func (p *PlayerContext) Live() bool {
	p.slotMu.Lock()
	defer p.slotMu.Unlock()

	return p.live
}

func (p *PlayerContext) IcyMetadata() (string, bool) {
	p.slotMu.Lock()
	defer p.slotMu.Unlock()

	return p.icyTitle, p.icyEnabled
}

// Drained implements httpserver.TrackSource: the connection has pulled
// the entire outputbuf for this track. This is spec.md §4.1's STMu
// ("output underrun — track ended"); SendSTAT itself folds in the
// trailing STMn if STMd never fired for this track (an unexpected
// stop rather than a clean drain).
func (p *PlayerContext) Drained() {
	if err := p.slim.SendSTAT("STMu"); err != nil {
		p.log.Debug("STMu send failed", "err", err)
	}
}

// openOutput constructs the output.Stream once sample format is known
// (from either a 's' strm command's pcm_* fields or a later codc
// message), resolving the target rate via decode.NewStream and the mode
// string via output.ParseModeString.
func (p *PlayerContext) openOutput(sampleRate, channels, sampleSize int) {
	mc := output.ParseModeString(p.cfg.Params.Mode)

	rate := sampleRate
	if mc.RateHz != 0 {
		rate = decode.NewStream(sampleRate, []int{mc.RateHz})
	}

	cfg := output.Config{
		Mode:           mc,
		SampleRate:     rate,
		Channels:       channels,
		SourceBits:     sampleSize,
		DurationFrames: 0,
		L24Packed:      p.cfg.Params.L24Format == config.L24Packed || p.cfg.Params.L24Format == config.L24PackedLPCM,
		L24Trunc16:     p.cfg.Params.L24Format == config.L24Trunc16 || p.cfg.Params.L24Format == config.L24Trunc16PCM,
		Fade:           output.FadeNone,
	}

	stream, err := output.New(cfg, p.log)
	if err != nil {
		p.log.Warn("output.New failed", "err", err)
		return
	}

	if mc.Mode == output.ModeMP3 {
		// No pure-Go MP3 encoder exists anywhere in the example corpus
		// (see DESIGN.md): this mode's Fill produces raw interleaved
		// 16-bit PCM, not a real MPEG bitstream. mimeTypeFor labels it
		// honestly rather than claiming audio/mpeg, but a renderer
		// expecting MP3 will still fail to decode it — warn loudly so
		// that's visible in logs.
		p.log.Warn("mp3 re-encode mode selected: encoder unavailable, response will carry raw PCM under a non-audio/mpeg Content-Type")
	}

	p.outputMu.Lock()
	p.outStream = stream
	p.outputMu.Unlock()

	p.slotMu.Lock()
	p.mimeType = mimeTypeFor(mc.Mode)
	p.slotMu.Unlock()

	// The output engine is now ready to receive decoded frames: this is
	// this bridge's equivalent of "codec connected" (spec.md §4.1's
	// STMc), the moment scenario 1 expects before STMl/STMs.
	if p.slim != nil {
		if err := p.slim.SendSTAT("STMc"); err != nil {
			p.log.Debug("STMc send failed", "err", err)
		}
	}
}

func mimeTypeFor(m output.Mode) string {
	switch m {
	case output.ModePCM:
		return "audio/x-wav"
	case output.ModeFLAC:
		return "audio/flac"
	case output.ModeMP3:
		// mp3Encoder has no real MPEG encoder behind it (see DESIGN.md)
		// and emits raw interleaved 16-bit PCM; labeling it audio/mpeg
		// would tell the renderer to MP3-decode bytes that aren't MP3.
		return "application/octet-stream"
	case output.ModeNull:
		// The null-mode filler is a hand-built but bitstream-valid
		// MPEG-1 Layer III silent frame (see mp3.go's silenceMP3Frame),
		// unlike the ModeMP3 re-encode path above.
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}
