package output

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doismellburning/squeezebox-bridge/internal/logging"
	"github.com/doismellburning/squeezebox-bridge/internal/ringbuf"
)

func testLogger() *logging.Logger { return logging.NewNamed("output-test") }

func TestParseModeStringVariants(t *testing.T) {
	assert.Equal(t, ModeFLAC, ParseModeString("flc").Mode)
	assert.Equal(t, ModeMP3, ParseModeString("mp3").Mode)
	assert.Equal(t, ModePCM, ParseModeString("pcm").Mode)
	assert.Equal(t, ModeNull, ParseModeString("null").Mode)
	assert.Equal(t, ModeThru, ParseModeString("thru").Mode)
	assert.True(t, ParseModeString("flow,pcm").Flow)
	assert.Equal(t, -192000, ParseModeString("pcm,r:-192000").RateHz)
	assert.Equal(t, 24, ParseModeString("pcm,s:24").SampleBits)
}

func TestNewPCMStreamEmitsHeaderFirst(t *testing.T) {
	cfg := Config{
		Mode:           ModeFromConfig{Mode: ModePCM},
		SampleRate:     44100,
		Channels:       2,
		SourceBits:     16,
		DurationFrames: 100,
	}

	s, err := New(cfg, testLogger())
	require.NoError(t, err)

	outputbuf := ringbuf.New(4096)

	res, err := s.Fill(outputbuf, false)
	require.NoError(t, err)
	require.Len(t, res.Data, 44)
	assert.Equal(t, "RIFF", string(res.Data[0:4]))
}

func TestThruFillPassesBytesThroughUnchanged(t *testing.T) {
	cfg := Config{Mode: ModeFromConfig{Mode: ModeThru}, Channels: 2, SampleRate: 44100}

	s, err := New(cfg, testLogger())
	require.NoError(t, err)

	outputbuf := ringbuf.New(64)
	outputbuf.Write([]byte("abcd"))

	res, err := s.Fill(outputbuf, false)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), res.Data)
}

func TestNullFillRepeatsSilenceFrame(t *testing.T) {
	cfg := Config{Mode: ModeFromConfig{Mode: ModeNull}, SampleRate: 44100, NullDurationMs: 0}

	s, err := New(cfg, testLogger())
	require.NoError(t, err)

	res, err := s.Fill(nil, false)
	require.NoError(t, err)
	assert.Equal(t, silenceMP3Frame, res.Data)
}

func TestFillAfterEndStreamErrors(t *testing.T) {
	cfg := Config{Mode: ModeFromConfig{Mode: ModeThru}}
	s, err := New(cfg, testLogger())
	require.NoError(t, err)

	s.EndStream()

	_, err = s.Fill(ringbuf.New(64), true)
	assert.Error(t, err)
}

func TestCheckDurationWarnsOnlyInFlowMode(t *testing.T) {
	cfg := Config{Mode: ModeFromConfig{Mode: ModeThru, Flow: false}, SampleRate: 44100}
	s, err := New(cfg, testLogger())
	require.NoError(t, err)

	s.framesEmitted = 0
	s.CheckDuration(1_000_000) // large delta, but Flow=false so no-op path
}
