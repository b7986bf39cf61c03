// Package output implements the gain/fade/encode stage of spec.md §4.4:
// it is not a thread of its own, but a set of calls the HTTP server
// thread drives once per connection round (_output_new_stream,
// _output_fill, _output_end_stream, _checkfade, _checkduration).
//
// No teacher file plays this role (direwolf never re-encodes audio), so
// this package is grounded directly on spec.md §4.4 and on
// original_source's output.c shape; the ring-buffer plumbing it reads
// from is internal/ringbuf, and the codec framing it reuses (WAV/AIFF
// header layout, FLAC STREAMINFO bytes) mirrors internal/decode's pcm.go
// and flac.go sniffing in reverse.
package output

import (
	"fmt"

	"github.com/doismellburning/squeezebox-bridge/internal/logging"
	"github.com/doismellburning/squeezebox-bridge/internal/ringbuf"
)

// Mode selects the body encoding the HTTP server streams out, chosen by
// substring match against config.mode per spec.md §4.4.
type Mode int

const (
	ModeThru Mode = iota
	ModePCM
	ModeFLAC
	ModeMP3
	ModeNull
)

func (m Mode) String() string {
	switch m {
	case ModeThru:
		return "thru"
	case ModePCM:
		return "pcm"
	case ModeFLAC:
		return "flac"
	case ModeMP3:
		return "mp3"
	case ModeNull:
		return "null"
	default:
		return "unknown"
	}
}

// ModeFromConfig resolves config.mode's substring grammar: "thru", "pcm",
// "flc"/"flac", "mp3", "null", each optionally combined with "flow" (flow
// mode persists the encoder across tracks and allows ICY on finite
// tracks) and r:<n>/s:<n> re-encode parameters.
type ModeFromConfig struct {
	Mode       Mode
	Flow       bool
	RateHz     int // 0 = passthrough rate; negative = cap, see decode.NewStream
	SampleBits int // 0 = use source sample size
}

func ParseModeString(s string) ModeFromConfig {
	var mc ModeFromConfig

	switch {
	case containsAny(s, "flc", "flac"):
		mc.Mode = ModeFLAC
	case contains(s, "pcm"):
		mc.Mode = ModePCM
	case contains(s, "mp3"):
		mc.Mode = ModeMP3
	case contains(s, "null"):
		mc.Mode = ModeNull
	default:
		mc.Mode = ModeThru
	}

	mc.Flow = contains(s, "flow")
	mc.RateHz = parseIntParam(s, "r:")
	mc.SampleBits = parseIntParam(s, "s:")

	return mc
}

func contains(s, sub string) bool { return containsAny(s, sub) }

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if indexOf(s, sub) >= 0 {
			return true
		}
	}

	return false
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}

	return -1
}

// parseIntParam finds "prefix<digits>" (with an optional leading '-')
// inside s and returns the parsed integer, or 0 if absent.
func parseIntParam(s, prefix string) int {
	i := indexOf(s, prefix)
	if i < 0 {
		return 0
	}

	j := i + len(prefix)
	neg := false

	if j < len(s) && s[j] == '-' {
		neg = true
		j++
	}

	start := j
	for j < len(s) && s[j] >= '0' && s[j] <= '9' {
		j++
	}

	if j == start {
		return 0
	}

	n := 0
	for _, c := range s[start:j] {
		n = n*10 + int(c-'0')
	}

	if neg {
		n = -n
	}

	return n
}

// Config carries the new-stream parameters the HTTP server resolves
// before the first Fill call.
type Config struct {
	Mode           ModeFromConfig
	SampleRate     int
	Channels       int
	SourceBits     int // bits per sample as decoded (16, 24, 32)
	DurationFrames int64
	FakeLengthMs   int64 // used if DurationFrames is unknown (0)
	L24Packed      bool
	L24Trunc16     bool
	NullDurationMs int64 // 0 = indefinite
	Fade           FadeMode
}

// Stream is the per-track (or, in flow mode, per-connection-lifetime)
// output engine state. It is driven entirely from the HTTP server's
// accept loop; nothing here spawns a goroutine.
type Stream struct {
	cfg Config
	log *logging.Logger

	headerBytes    []byte // pending header, drained first by Fill
	headerSent     int
	contentLength  int64 // -1 = unknown, -3 = chunked-eligible; mirrors spec.md §4.5
	framesEmitted  int64
	ended          bool

	fade fadeState

	flac *flacEncoder
	mp3  *mp3Encoder

	l24Pending []frame32 // up to 2 buffered frames awaiting L24 repack
}

// frame32 is one decoded stereo frame at the internal 32-bit-per-sample
// working resolution gain_and_fade always operates at.
type frame32 struct {
	L, R int32
}

// New constructs a Stream and synthesises its header per spec.md §4.4
// (_output_new_stream).
func New(cfg Config, log *logging.Logger) (*Stream, error) {
	s := &Stream{cfg: cfg, log: log}

	contentBytes := s.contentLengthBytes()

	switch cfg.Mode.Mode {
	case ModePCM:
		if isWAVTarget(cfg) {
			s.headerBytes = buildWAVHeader(cfg, contentBytes)
		} else {
			s.headerBytes = buildAIFFHeader(cfg, contentBytes)
		}

		s.contentLength = int64(len(s.headerBytes)) + contentBytes
	case ModeFLAC:
		enc, err := newFLACEncoder(cfg)
		if err != nil {
			return nil, fmt.Errorf("output: flac encoder: %w", err)
		}

		s.flac = enc
		s.contentLength = -3 // unknown ahead of time; chunked
	case ModeMP3:
		s.mp3 = newMP3Encoder(cfg)
		s.contentLength = -3
	case ModeThru:
		s.contentLength = contentBytes
		if s.contentLength <= 0 {
			s.contentLength = -3
		}
	case ModeNull:
		s.contentLength = -1 // length omitted; renderer relies on connection close or keepalive
	}

	s.fade.mode = cfg.Fade
	s.fade.state = FadeInactive

	return s, nil
}

// CheckFade arms or queues a fade envelope: start=true on new-stream
// setup, start=false once decode has reported completion. prevTail
// supplies the previous track's buffered tail samples for Crossfade;
// nil for every other fade mode.
func (s *Stream) CheckFade(start bool, durationFrames int64, prevTail []int32) {
	s.fade.CheckFade(start, durationFrames, prevTail)
}

func isWAVTarget(cfg Config) bool {
	return !cfg.Mode.Flow // flow mode PCM streams get an AIFF header instead of a WAV one
}

func (s *Stream) contentLengthBytes() int64 {
	bytesPerFrame := int64(s.cfg.Channels * s.outputBitsPerSample() / 8)

	if s.cfg.DurationFrames > 0 {
		return s.cfg.DurationFrames * bytesPerFrame
	}

	if s.cfg.FakeLengthMs > 0 {
		frames := s.cfg.FakeLengthMs * int64(s.cfg.SampleRate) / 1000
		return frames * bytesPerFrame
	}

	return 0
}

func (s *Stream) outputBitsPerSample() int {
	if s.cfg.L24Trunc16 {
		return 16
	}

	if s.cfg.SourceBits > 0 {
		return s.cfg.SourceBits
	}

	return 32
}

// ContentLength reports the body-length policy for the HTTP server to
// pick headers from (spec.md §4.5): >=0 is a known Content-Length, -3
// means chunked-eligible, -1 means omit and rely on EOF/close.
func (s *Stream) ContentLength() int64 { return s.contentLength }

// FillResult tells the HTTP server what Fill produced this round.
type FillResult struct {
	Data []byte // bytes to send this round, nil if nothing ready
	Done bool   // decode complete and all encode residue drained
}

// Fill performs exactly one unit of work per spec.md §4.4's fill loop:
// pending header bytes first, then mode-specific body production.
func (s *Stream) Fill(outputbuf *ringbuf.Buffer, decodeComplete bool) (FillResult, error) {
	if s.ended {
		return FillResult{}, fmt.Errorf("output: fill called after end-stream")
	}

	if s.headerSent < len(s.headerBytes) {
		chunk := s.headerBytes[s.headerSent:]
		s.headerSent = len(s.headerBytes)

		return FillResult{Data: chunk}, nil
	}

	switch s.cfg.Mode.Mode {
	case ModeThru:
		return s.fillThru(outputbuf, decodeComplete)
	case ModeNull:
		return s.fillNull()
	default:
		return s.fillEncoded(outputbuf, decodeComplete)
	}
}

func (s *Stream) fillThru(outputbuf *ringbuf.Buffer, decodeComplete bool) (FillResult, error) {
	used := outputbuf.Used()
	if used == 0 {
		return FillResult{Done: decodeComplete}, nil
	}

	n := used
	if n > 32*1024 {
		n = 32 * 1024
	}

	buf := make([]byte, n)
	got := outputbuf.Read(buf)

	return FillResult{Data: buf[:got]}, nil
}

func (s *Stream) fillNull() (FillResult, error) {
	targetFrames := int64(-1)
	if s.cfg.NullDurationMs > 0 {
		targetFrames = s.cfg.NullDurationMs * int64(s.cfg.SampleRate) / 1000 / silenceFramesPerFrame
	}

	if targetFrames >= 0 && s.framesEmitted >= targetFrames {
		return FillResult{Done: true}, nil
	}

	s.framesEmitted++

	return FillResult{Data: silenceMP3Frame}, nil
}

// fillEncoded reads one batch of frames, applies gain_and_fade, and
// routes the result to the active encoder (PCM pack, FLAC, or MP3).
func (s *Stream) fillEncoded(outputbuf *ringbuf.Buffer, decodeComplete bool) (FillResult, error) {
	bytesPerInputFrame := s.cfg.Channels * 4 // outputbuf always holds 32-bit-per-sample frames per spec.md §4.3

	batchFrames := s.cfg.SampleRate / 10
	if batchFrames <= 0 {
		batchFrames = 4410
	}

	avail := outputbuf.Used() / bytesPerInputFrame
	if avail == 0 {
		return FillResult{Done: decodeComplete}, nil
	}

	if avail > batchFrames {
		avail = batchFrames
	}

	raw := make([]byte, avail*bytesPerInputFrame)
	outputbuf.Read(raw)

	frames := unpackFrames(raw, s.cfg.Channels)

	frames = s.fade.apply(frames, outputbuf)

	switch s.cfg.Mode.Mode {
	case ModePCM:
		return FillResult{Data: s.packPCM(frames)}, nil
	case ModeFLAC:
		data, err := s.flac.encode(frames)
		if err != nil {
			return FillResult{}, err
		}

		return FillResult{Data: data}, nil
	case ModeMP3:
		data := s.mp3.encode(frames)
		return FillResult{Data: data}, nil
	default:
		return FillResult{}, fmt.Errorf("output: unsupported encode mode %s", s.cfg.Mode.Mode)
	}
}

// CheckDuration implements _checkduration: once decode has ended in flow
// mode, compare the actual emitted frame count against the LMS-declared
// duration and log if they disagree by more than a second.
func (s *Stream) CheckDuration(declaredFrames int64) {
	if !s.cfg.Mode.Flow {
		return
	}

	delta := s.framesEmitted - declaredFrames
	if delta < 0 {
		delta = -delta
	}

	if s.cfg.SampleRate > 0 && delta > int64(s.cfg.SampleRate) {
		s.log.Warn("decoded duration mismatch", "declared_frames", declaredFrames, "actual_frames", s.framesEmitted)
	}
}

// EndStream finalises any active encoder per spec.md §4.4. Fill must not
// be called again afterwards.
func (s *Stream) EndStream() []byte {
	var trailer []byte

	if s.flac != nil {
		trailer = s.flac.finish()
	}

	if s.mp3 != nil {
		trailer = append(trailer, s.mp3.finish()...)
	}

	s.ended = true

	return trailer
}
