package streamer

import (
	"context"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doismellburning/squeezebox-bridge/internal/logging"
	"github.com/doismellburning/squeezebox-bridge/internal/ringbuf"
)

type recordingReporter struct {
	headers  [][]byte
	metadata [][]byte
}

func (r *recordingReporter) ReportHeaders(h []byte)  { r.headers = append(r.headers, append([]byte(nil), h...)) }
func (r *recordingReporter) ReportMetadata(m []byte) { r.metadata = append(r.metadata, append([]byte(nil), m...)) }

func TestOpenFileAndRunFileReachesEOF(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "streamer-*")
	require.NoError(t, err)
	_, err = f.WriteString("hello world")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	buf := ringbuf.New(64)
	s := New(logging.NewNamed("test"), buf, &recordingReporter{})

	require.NoError(t, s.OpenFile(f.Name()))

	err = s.RunFile()
	require.NoError(t, err)

	dst := make([]byte, 11)
	n := buf.Read(dst)
	assert.Equal(t, "hello world", string(dst[:n]))

	err = s.RunFile()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, DisconnectRemote, s.Disconnect())
}

func TestRunFileIdempotentCloseAfterEOF(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "streamer-*")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	buf := ringbuf.New(64)
	s := New(logging.NewNamed("test"), buf, &recordingReporter{})
	require.NoError(t, s.OpenFile(f.Name()))

	err = s.RunFile()
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close()) // idempotent
}

func TestConnectRecvHeadersCapturesIcyMetaInt(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)

		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		buf := make([]byte, 1024)
		_, _ = conn.Read(buf)

		_, _ = conn.Write([]byte("HTTP/1.0 200 OK\r\nicy-metaint: 8\r\n\r\n"))
		_, _ = conn.Write([]byte("ABCDEFGH"))
		_, _ = conn.Write([]byte{1}) // icy length byte: 1*16 = 16 bytes of metadata
		_, _ = conn.Write([]byte("StreamTitle='x';" + string(make([]byte, 0))))
	}()

	buf := ringbuf.New(256)
	reporter := &recordingReporter{}
	s := New(logging.NewNamed("test"), buf, reporter)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, s.Connect(ctx, "tcp", ln.Addr().String(), []byte("GET / HTTP/1.0\r\n\r\n"), 0))
	require.NoError(t, s.RecvHeaders())

	require.Len(t, reporter.headers, 1)
	assert.Contains(t, string(reporter.headers[0]), "icy-metaint: 8")
	assert.Equal(t, 8, s.metaInterval)

	<-done
}

func TestParseIcyMetaIntAbsent(t *testing.T) {
	assert.Equal(t, 0, parseIcyMetaInt("HTTP/1.0 200 OK\r\nContent-Type: audio/mpeg\r\n\r\n"))
}

func TestParseIcyMetaIntPresent(t *testing.T) {
	assert.Equal(t, 16000, parseIcyMetaInt("icy-metaint:16000\r\n"))
}
