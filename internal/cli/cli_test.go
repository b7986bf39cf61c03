package cli

import (
	"bufio"
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startFakeLMS spins up a TCP listener that echoes "<mac> <received>"
// back for every line, mimicking LMS's own echo-the-command convention.
func startFakeLMS(t *testing.T, mac string) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}

			go func() {
				r := bufio.NewReader(conn)
				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}

					_, _ = conn.Write([]byte(line))
				}
			}()
		}
	}()

	return ln.Addr().String()
}

func TestCommandStripsEchoAndReusesConnection(t *testing.T) {
	mac := "00:11:22:33:44:55"
	addr := startFakeLMS(t, mac)

	c := New(mac, addr)
	defer c.Close()

	resp, err := c.Command(context.Background(), "time")
	require.NoError(t, err)
	assert.Equal(t, "time", resp)

	c.mu.Lock()
	conn1 := c.conn
	c.mu.Unlock()

	resp, err = c.Command(context.Background(), "mixer", "volume", "50")
	require.NoError(t, err)
	assert.Equal(t, "mixer volume 50", resp)

	c.mu.Lock()
	conn2 := c.conn
	c.mu.Unlock()

	assert.Same(t, conn1, conn2, "Command should reuse the existing connection")
}

func TestSetNameLeavesSpacesAndParensLiteral(t *testing.T) {
	mac := "aa:bb:cc:dd:ee:ff"
	addr := startFakeLMS(t, mac)

	c := New(mac, addr)
	defer c.Close()

	resp, err := c.SetName(context.Background(), "Living Room (2)")
	require.NoError(t, err)
	assert.Equal(t, "name Living Room (2)", resp)
}
