package slimproto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeFrame(&buf, OpStrm, []byte("payload")))

	opcode, body, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, OpStrm, opcode)
	assert.Equal(t, "payload", string(body))
}

func TestWriteFrameRejectsShortOpcode(t *testing.T) {
	var buf bytes.Buffer
	err := writeFrame(&buf, "ab", nil)
	assert.Error(t, err)
}

func TestReadFrameRejectsTruncatedLength(t *testing.T) {
	_, _, err := readFrame(bytes.NewReader([]byte{0, 2})) // declares length 2 but no body follows
	assert.Error(t, err)
}

func TestParseStrmFixedFields(t *testing.T) {
	body := make([]byte, strmPacketFixedLen+3)
	body[0] = byte(StrmStart)
	body[1] = '1' // autostart
	body[2] = 'f' // format: flac
	body[3] = '1' // pcm_sample_size index -> 16
	body[4] = '4' // pcm_sample_rate index -> 48000
	body[5] = '2' // pcm_channels '2' -> 2
	body[24] = 'H'
	body[25] = 'T'
	body[26] = 'T'

	s, err := ParseStrm(body)
	require.NoError(t, err)
	assert.Equal(t, StrmStart, s.Command)
	assert.Equal(t, byte('f'), s.Format)
	assert.Equal(t, []byte("HTT"), s.Header)

	size, ok := PCMSampleSize(s.PCMSampleSize)
	require.True(t, ok)
	assert.Equal(t, 16, size)

	rate, ok := PCMSampleRate(s.PCMSampleRate)
	require.True(t, ok)
	assert.Equal(t, 48000, rate)

	channels, ok := PCMChannels(s.PCMChannels)
	require.True(t, ok)
	assert.Equal(t, 2, channels)
}

func TestParseStrmTooShort(t *testing.T) {
	_, err := ParseStrm(make([]byte, 4))
	assert.Error(t, err)
}

func TestBuildHELOReconnectFlag(t *testing.T) {
	mac := [6]byte{0xAA, 0xBB, 0xCC, 0x01, 0x02, 0x03}

	fresh := BuildHELO(false, mac, 0, "cap")
	reconnect := BuildHELO(true, mac, 0, "cap")

	assert.NotEqual(t, fresh, reconnect)
	assert.Contains(t, string(fresh), "cap")
}

func TestBuildSETDNameNULTerminated(t *testing.T) {
	body := BuildSETDName("kitchen")
	require.Len(t, body, 1+len("kitchen")+1)
	assert.Equal(t, byte(0), body[0])
	assert.Equal(t, byte(0), body[len(body)-1])
	assert.Equal(t, "kitchen", string(body[1:len(body)-1]))
}

func TestParseSetdQueryHasEmptyData(t *testing.T) {
	s, err := ParseSetd([]byte{0})
	require.NoError(t, err)
	assert.Equal(t, byte(0), s.ID)
	assert.Equal(t, "", s.Data)
}

func TestParseServWithoutSyncgroup(t *testing.T) {
	body := []byte{10, 0, 0, 1}
	s, err := ParseServ(body)
	require.NoError(t, err)
	assert.Equal(t, "", s.SyncgroupID)
	assert.Equal(t, uint32(10<<24|1), s.ServerIP)
}
