// Package cli implements the LMS CLI side-channel of spec.md §4.1/§9: a
// second TCP connection to LMS's line-protocol administrative port
// (default 9090) used for metadata queries and playback commands that
// have no SlimProto opcode. Grounded on the teacher's mutex-guarded
// global-socket discipline (src/kissserial.go's one-request-at-a-time
// serial port access, deleted — see DESIGN.md) adapted to a per-player
// TCP connection instead of a shared serial port.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/doismellburning/squeezebox-bridge/internal/logging"
)

// readTimeout is the per-command response deadline (spec.md §4.1/§7).
const readTimeout = 500 * time.Millisecond

// idleTimeout is how long an unused connection stays open before the
// next command auto-reopens it (spec.md §4.1).
const idleTimeout = 15 * time.Minute

// Client is one player's serialized LMS CLI connection.
type Client struct {
	mac  string
	addr string
	log  *logging.Logger

	mu      sync.Mutex
	conn    net.Conn
	rd      *bufio.Reader
	lastUse time.Time
}

// New constructs a Client bound to one player's mac address, which
// prefixes every command per LMS's `<mac> <command>` convention.
func New(mac string, addr string) *Client {
	return &Client{
		mac:  mac,
		addr: addr,
		log:  logging.NewNamed("cli:" + mac),
	}
}

// Close releases the underlying connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil
	c.rd = nil

	return err
}

// Command sends "<mac> <args>" (each part percent-encoded per Encode)
// and returns the single-line response with the leading "<mac> " echo
// stripped; the rest is returned as LMS sent it, still percent-encoded.
// Access is serialized: concurrent callers
// block on the same mutex, matching "the line protocol stays coherent".
func (c *Client) Command(ctx context.Context, args ...string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && time.Since(c.lastUse) > idleTimeout {
		c.log.Debug("closing idle CLI connection")
		_ = c.closeLocked()
	}

	if c.conn == nil {
		if err := c.dialLocked(ctx); err != nil {
			return "", err
		}
	}

	line := c.mac
	for _, a := range args {
		line += " " + Encode(a)
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(readTimeout))
	if _, err := fmt.Fprintf(c.conn, "%s\n", line); err != nil {
		_ = c.closeLocked()
		return "", fmt.Errorf("cli: write command: %w", err)
	}

	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	resp, err := c.rd.ReadString('\n')
	if err != nil {
		_ = c.closeLocked()
		return "", fmt.Errorf("cli: read response: %w", err)
	}

	c.lastUse = time.Now()

	return stripEcho(strings.TrimRight(resp, "\r\n"), c.mac), nil
}

func (c *Client) dialLocked(ctx context.Context) error {
	d := net.Dialer{Timeout: readTimeout * 20}

	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("cli: dial %s: %w", c.addr, err)
	}

	c.conn = conn
	c.rd = bufio.NewReader(conn)
	c.lastUse = time.Now()

	return nil
}

// stripEcho removes the "<mac> " echo LMS prefixes onto every response
// line, returning the raw (still-encoded) remainder.
func stripEcho(line, mac string) string {
	prefix := mac + " "
	if strings.HasPrefix(line, prefix) {
		return line[len(prefix):]
	}

	return line
}

// ---- high-level commands (spec.md §6) ----

// Time queries the LMS playback position for this player, in seconds.
func (c *Client) Time(ctx context.Context) (string, error) {
	return c.Command(ctx, "time")
}

// SetTime seeks playback to the given offset in seconds.
func (c *Client) SetTime(ctx context.Context, seconds float64) (string, error) {
	return c.Command(ctx, "time", fmt.Sprintf("%g", seconds))
}

// Status requests the given number of playlist status lines with the
// standard tag set squeezelite uses for metadata fallback.
func (c *Client) Status(ctx context.Context, offset int) (string, error) {
	return c.Command(ctx, "status", "-", fmt.Sprintf("%d", offset), "tags:xcfldatgrKNoITH")
}

// SetVolume sets the mixer volume, 0-100.
func (c *Client) SetVolume(ctx context.Context, n int) (string, error) {
	return c.Command(ctx, "mixer", "volume", fmt.Sprintf("%d", n))
}

// SetMuting toggles mixer muting.
func (c *Client) SetMuting(ctx context.Context, muted bool) (string, error) {
	v := "0"
	if muted {
		v = "1"
	}

	return c.Command(ctx, "mixer", "muting", v)
}

// Play, Pause, Stop issue explicit transport commands, used when the
// renderer itself triggered the action and LMS needs to be told rather
// than asked (spec.md §4.1).
func (c *Client) Play(ctx context.Context) (string, error)  { return c.Command(ctx, "play") }
func (c *Client) Pause(ctx context.Context) (string, error) { return c.Command(ctx, "pause") }
func (c *Client) Stop(ctx context.Context) (string, error)  { return c.Command(ctx, "stop") }

// SkipNext advances the playlist index by one, used as the decode-error
// fallback path (spec.md §7).
func (c *Client) SkipNext(ctx context.Context) (string, error) {
	return c.Command(ctx, "playlist", "index", "+1")
}

// SetName sets the player's display name in LMS.
func (c *Client) SetName(ctx context.Context, name string) (string, error) {
	return c.Command(ctx, "name", name)
}
