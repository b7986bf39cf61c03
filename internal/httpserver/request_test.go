package httpserver

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestBasicGET(t *testing.T) {
	raw := "GET /bridge-3.mp3 HTTP/1.1\r\nUser-Agent: foo\r\nIcy-Metadata: 1\r\n\r\n"
	req, err := ParseRequest(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)

	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, 3, req.TrackIndex)
	assert.Equal(t, "foo", req.Headers["user-agent"])
	assert.Equal(t, "1", req.Headers["icy-metadata"])
	assert.Equal(t, int64(-1), req.RangeStart)
}

func TestParseRequestWithRange(t *testing.T) {
	raw := "GET /bridge-0.wav HTTP/1.1\r\nRange: bytes=1024-\r\n\r\n"
	req, err := ParseRequest(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)

	assert.Equal(t, int64(1024), req.RangeStart)
}

func TestExtractTrackIndexRejectsMissingComponent(t *testing.T) {
	_, err := extractTrackIndex("/stream.mp3")
	assert.Error(t, err)
}

func TestIsSonosDetection(t *testing.T) {
	assert.True(t, IsSonos("Linux UPnP/1.0 Sonos/59.0"))
	assert.False(t, IsSonos("VLC/3.0"))
}
