package httpserver

import (
	"bufio"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doismellburning/squeezebox-bridge/internal/cache"
	"github.com/doismellburning/squeezebox-bridge/internal/logging"
	"github.com/doismellburning/squeezebox-bridge/internal/output"
)

type fakeTrackSource struct {
	index       int
	cache       cache.Buffer
	out         *output.Stream
	mime        string
	live        bool
	chunks      [][]byte
	pos         int
	drainCalled bool
}

func (f *fakeTrackSource) Index() int                 { return f.index }
func (f *fakeTrackSource) Cache() cache.Buffer        { return f.cache }
func (f *fakeTrackSource) Output() *output.Stream     { return f.out }
func (f *fakeTrackSource) MimeType() string           { return f.mime }
func (f *fakeTrackSource) Live() bool                 { return f.live }
func (f *fakeTrackSource) IcyMetadata() (string, bool) { return "", false }
func (f *fakeTrackSource) Drained()                   { f.drainCalled = true }

func (f *fakeTrackSource) FillOutput() (output.FillResult, error) {
	if f.pos >= len(f.chunks) {
		return output.FillResult{Done: true}, nil
	}

	c := f.chunks[f.pos]
	f.pos++

	return output.FillResult{Data: c}, nil
}

func testLog() *logging.Logger { return logging.NewNamed("httpserver-test") }

func TestServeRejectsMismatchedIndex(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	ts := &fakeTrackSource{index: 5, cache: cache.NewInfinite(), mime: "audio/mpeg"}

	go Serve(serverConn, ts, testLog())

	clientConn.Write([]byte("GET /bridge-2.mp3 HTTP/1.1\r\n\r\n"))

	br := bufio.NewReader(clientConn)
	line, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "410")
}

func TestServeStreamsThruBodyChunked(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	cfg := output.Config{Mode: output.ModeFromConfig{Mode: output.ModeThru}, Channels: 2, SampleRate: 44100}
	stream, err := output.New(cfg, testLog())
	require.NoError(t, err)

	ts := &fakeTrackSource{
		index: 0,
		cache: cache.NewInfinite(),
		out:   stream,
		mime:  "audio/mpeg",
		chunks: [][]byte{[]byte("hello "), []byte("world")},
	}

	go Serve(serverConn, ts, testLog())

	clientConn.Write([]byte("GET /bridge-0.mp3 HTTP/1.1\r\n\r\n"))

	br := bufio.NewReader(clientConn)

	statusLine, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, statusLine, "200")

	// Drain headers.
	sawChunked := false

	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err)

		if line == "\r\n" {
			break
		}

		if line == "Transfer-Encoding: chunked\r\n" {
			sawChunked = true
		}
	}

	assert.True(t, sawChunked)

	chunk1Len, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "6\r\n", chunk1Len)

	data := make([]byte, 6)
	_, err = br.Read(data)
	require.NoError(t, err)
	assert.Equal(t, "hello ", string(data))
}
