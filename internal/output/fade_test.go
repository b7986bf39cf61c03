package output

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestFadeInRampsGainToFull(t *testing.T) {
	f := &fadeState{mode: FadeIn}
	f.CheckFade(true, 100, nil)

	frames := make([]frame32, 100)
	for i := range frames {
		frames[i] = frame32{L: 1 << 30, R: 1 << 30}
	}

	out := f.apply(frames, nil)

	assert.Less(t, out[0].L, out[99].L)
}

func TestFadeOutQueuedBehindActiveFadeIn(t *testing.T) {
	f := &fadeState{mode: FadeInOut}
	f.CheckFade(true, 10, nil)
	f.CheckFade(false, 10, nil) // decode finished while fade-in still active

	assert.True(t, f.pendingOut)

	frames := make([]frame32, 10)
	for i := range frames {
		frames[i] = frame32{L: 1000, R: 1000}
	}

	f.apply(frames, nil)

	// Once the in-fade's duration elapses, the queued out-fade takes over.
	assert.Equal(t, DirDown, f.dir)
}

// TestFadeMidpointIsHalfGain is the property spec.md §8 calls out
// explicitly: at current_frame == duration_frames/2, gain is half scale
// to within the half-frame step that integer division by an odd
// duration leaves (gainOne/(2*duration), plus one for rounding).
func TestFadeMidpointIsHalfGain(t *testing.T) {
	rapid.Check(t, func(tt *rapid.T) {
		duration := rapid.Int64Range(2, 1_000_000).Draw(tt, "duration")

		f := &fadeState{mode: FadeIn, dir: DirUp, durationFrames: duration, currentFrame: duration / 2, state: FadeActive}
		gain := f.gainQ16()

		half := int64(gainOne) / 2
		delta := gain - half
		if delta < 0 {
			delta = -delta
		}

		assert.LessOrEqual(tt, delta, int64(gainOne)/(2*duration)+1) // within half a frame's gain step of half-scale
	})
}

func TestClampAccumulatorBounds(t *testing.T) {
	assert.Equal(t, accumulatorClamp, clampAccumulator(accumulatorClamp*2))
	assert.Equal(t, -accumulatorClamp, clampAccumulator(-accumulatorClamp*2))
	assert.Equal(t, int64(5), clampAccumulator(5))
}
