package output

import "github.com/doismellburning/squeezebox-bridge/internal/ringbuf"

// FadeMode selects which envelopes a track arms, per spec.md §4.4.
type FadeMode int

const (
	FadeNone FadeMode = iota
	FadeCrossfade
	FadeIn
	FadeOut
	FadeInOut
)

// fadePhase is the fade envelope's own state machine: Inactive (no
// envelope running), Due (armed but not yet started because Fill hasn't
// reached the trigger point), Active (currently scaling gain),
// Pending (an out-fade queued behind a still-active in-fade).
type fadePhase int

const (
	FadeInactive fadePhase = iota
	FadeDue
	FadeActive
	FadePending
)

// fadeDirection is which way gain is moving.
type fadeDirection int

const (
	DirUp fadeDirection = iota
	DirDown
	DirCross
)

const gainOne = 1 << 16 // full-scale gain in the Q16.16 fixed-point format spec.md §4.4 specifies

type fadeState struct {
	mode FadeMode
	state fadePhase
	dir   fadeDirection

	durationFrames int64
	currentFrame   int64

	pendingOut bool // an out-fade is queued behind an in-fade still running

	prevTail    []int32 // interleaved L/R samples from the previous track's outputbuf tail, for Crossfade
	prevTailPos int
}

// CheckFade implements _checkfade. start=true is the new-track call site
// (arms FadeIn / the first half of FadeInOut / Crossfade if prevTail was
// supplied); start=false is the decode-complete call site (arms FadeOut /
// the second half of FadeInOut, deferring if an in-fade is still Active).
func (f *fadeState) CheckFade(start bool, durationFrames int64, prevTail []int32) {
	if f.mode == FadeNone {
		return
	}

	if start {
		switch f.mode {
		case FadeIn, FadeInOut:
			f.arm(DirUp, durationFrames)
		case FadeCrossfade:
			if len(prevTail) > 0 {
				f.prevTail = prevTail
				f.prevTailPos = 0
				f.arm(DirCross, durationFrames)
			}
		}

		return
	}

	switch f.mode {
	case FadeOut, FadeInOut:
		if f.state == FadeActive && f.dir == DirUp {
			f.pendingOut = true
			f.durationFrames = durationFrames // stash for when the in-fade completes
			return
		}

		f.arm(DirDown, durationFrames)
	}
}

func (f *fadeState) arm(dir fadeDirection, durationFrames int64) {
	f.dir = dir
	f.durationFrames = durationFrames
	f.currentFrame = 0
	f.state = FadeActive
}

// gainQ16 computes the Q16.16 gain for the current envelope position,
// per spec.md §4.4: (current_frame << 16) / duration_frames, reversed
// for Down.
func (f *fadeState) gainQ16() int64 {
	if f.durationFrames <= 0 {
		return gainOne
	}

	g := (f.currentFrame << 16) / f.durationFrames
	if g > gainOne {
		g = gainOne
	}

	if f.dir == DirDown {
		g = gainOne - g
	}

	return g
}

// apply runs gain_and_fade over one batch of frames in place and returns
// the (possibly unchanged) slice; a Cross envelope mixes in f.prevTail
// at the complementary gain.
func (f *fadeState) apply(frames []frame32, _ *ringbuf.Buffer) []frame32 {
	if f.state != FadeActive || f.mode == FadeNone {
		return frames
	}

	for i := range frames {
		gain := f.gainQ16()

		if f.dir == DirCross {
			frames[i] = f.mixCross(frames[i], gain)
		} else {
			frames[i].L = int32(scaleClamp64(int64(frames[i].L), gain))
			frames[i].R = int32(scaleClamp64(int64(frames[i].R), gain))
		}

		f.currentFrame++

		if f.currentFrame >= f.durationFrames {
			f.completeEnvelope()
			break
		}
	}

	return frames
}

// mixCross blends an incoming frame with the previous track's buffered
// tail: out = in*(1-f)*gain_in + prev*f*gain_out, widened to a 64-bit
// accumulator clamped to ±2^47 before shifting back, per spec.md §4.4.
func (f *fadeState) mixCross(in frame32, gainIn int64) frame32 {
	gainOut := gainOne - gainIn

	var prevL, prevR int32

	if f.prevTailPos+1 < len(f.prevTail) {
		prevL = f.prevTail[f.prevTailPos]
		prevR = f.prevTail[f.prevTailPos+1]
		f.prevTailPos += 2
	}

	mixL := (int64(in.L)*gainIn + int64(prevL)*gainOut)
	mixR := (int64(in.R)*gainIn + int64(prevR)*gainOut)

	mixL = clampAccumulator(mixL)
	mixR = clampAccumulator(mixR)

	return frame32{L: int32(mixL >> 16), R: int32(mixR >> 16)}
}

const accumulatorClamp = int64(1) << 47

func clampAccumulator(v int64) int64 {
	if v > accumulatorClamp {
		return accumulatorClamp
	}

	if v < -accumulatorClamp {
		return -accumulatorClamp
	}

	return v
}

func scaleClamp64(sample, gain int64) int64 {
	return clampAccumulator(sample*gain) >> 16
}

func (f *fadeState) completeEnvelope() {
	if f.dir == DirUp && f.pendingOut {
		f.pendingOut = false
		f.arm(DirDown, f.durationFrames)

		return
	}

	f.state = FadeInactive
	f.mode = FadeNone
}
