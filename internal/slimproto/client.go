package slimproto

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/doismellburning/squeezebox-bridge/internal/logging"
)

// Capability is the fixed capability string this bridge advertises in
// HELO, grounded on the accept set documented in spec.md §4.3 (every
// codec id the decode package registers) plus the modelname/features
// squeezelite appends in its own HELO.
const Capability = "Model=squeezebox-bridge,AccuratePlayPoints=1,HasDigitalOut=1,HasPolarityInversion=0,Firmware=1.0," +
	"MaxSampleRate=384000,,pcm,flc,wma,wmap,wmal,aac,ogg,ogf,alc,aif,dsd,spt"

// serverIdleTimeout is how long the client waits for any traffic from
// LMS before treating the connection as dead and reconnecting (spec.md
// §4.1).
const serverIdleTimeout = 35 * time.Second

// maxConsecutiveFailures is the number of failed reconnect attempts
// before the client falls back to rediscovery instead of redialing the
// last known server (spec.md §6).
const maxConsecutiveFailures = 5

// StrmHandler receives parsed strm/cont/codc/aude/audg/setd messages for
// wiring into internal/streamer, internal/decode, internal/output.
type StrmHandler interface {
	OnStrm(Strm)
	OnCont(Cont)
	OnCodc(Codc)
	OnAude(Aude)
	OnAudg(Audg)
	OnSetd(Setd) (response string, ok bool)
	OnServ(Serv)
	OnLedc(byte)
	OnVersion(string)
}

// StatusSource supplies the live fields sendSTAT needs at the moment a
// STAT message is about to be sent; internal/bridge implements this over
// its ringbuf/cache state.
type StatusSource interface {
	Snapshot() StatusSnapshot
}

// Client is one player's SlimProto TCP control connection: it owns the
// HELO/STAT heartbeat and dispatches inbound opcodes to a StrmHandler.
// Grounded on the reconnect-and-resleep shape of the teacher's
// nettnc_attach/nettnc_listen_thread (src/nettnc.go, deleted, see
// DESIGN.md) and on the STAT firing rules of spec.md §4.1.
type Client struct {
	mac     [6]byte
	log     *logging.Logger
	handler StrmHandler
	status  StatusSource

	mu       sync.Mutex
	conn     net.Conn
	lastAddr string

	// firing-order state for the current track, reset on 'strm s'
	// (spec.md §4.1): stmsSent/stmdSent record whether each has already
	// gone out this track, pendingSTMd queues an STMd that arrived before
	// STMs so it can be flushed right after (never dropped — "deferred one
	// round", not suppressed), and sawSTMu tracks whether STMu has already
	// triggered its one-time trailing STMn.
	stmsSent    bool
	stmdSent    bool
	pendingSTMd bool
	sawSTMu     bool
}

// New constructs a Client bound to one player's mac address.
func New(mac [6]byte, handler StrmHandler, status StatusSource) *Client {
	return &Client{
		mac:     mac,
		log:     logging.New(mac),
		handler: handler,
		status:  status,
	}
}

// Run dials addr (host:port for the LMS SlimProto TCP port, normally
// 3483) and services the connection until ctx is cancelled, reconnecting
// on loss per spec.md §6: up to maxConsecutiveFailures redials to the
// same address, then the caller should rediscover and call Run again
// with a new address.
func (c *Client) Run(ctx context.Context, addr string) error {
	failures := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		reconnect := failures > 0

		conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
		if err != nil {
			failures++
			c.log.Warn("dial failed", "addr", addr, "failures", failures, "err", err)

			if failures >= maxConsecutiveFailures {
				return fmt.Errorf("slimproto: %d consecutive failures dialing %s: %w", failures, addr, err)
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}

			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.lastAddr = addr
		c.mu.Unlock()

		err = c.serve(ctx, conn, reconnect)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		_ = conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err != nil {
			failures++
			c.log.Warn("connection lost", "failures", failures, "err", err)

			if failures >= maxConsecutiveFailures {
				return fmt.Errorf("slimproto: %d consecutive failures on %s: %w", failures, addr, err)
			}
		} else {
			failures = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}

// serve drives one live connection: sends the initial HELO, then reads
// frames until EOF, error, or idle timeout.
func (c *Client) serve(ctx context.Context, conn net.Conn, reconnect bool) error {
	bytesReceived := uint64(0)

	helo := BuildHELO(reconnect, c.mac, bytesReceived, Capability)
	if err := writeFrame(conn, OpHelo, helo); err != nil {
		return err
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- c.readLoop(conn)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (c *Client) readLoop(conn net.Conn) error {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(serverIdleTimeout))

		opcode, body, err := readFrame(conn)
		if err != nil {
			return fmt.Errorf("slimproto: read frame: %w", err)
		}

		if err := c.dispatch(conn, opcode, body); err != nil {
			c.log.Warn("dispatch error", "opcode", opcode, "err", err)
		}
	}
}

func (c *Client) dispatch(conn net.Conn, opcode string, body []byte) error {
	switch opcode {
	case OpStrm:
		s, err := ParseStrm(body)
		if err != nil {
			return err
		}

		c.handleStrm(s)
	case OpCont:
		cont, err := ParseCont(body)
		if err != nil {
			return err
		}

		c.handler.OnCont(cont)
	case OpCodc:
		codc, err := ParseCodc(body)
		if err != nil {
			return err
		}

		c.handler.OnCodc(codc)
	case OpAude:
		aude, err := ParseAude(body)
		if err != nil {
			return err
		}

		c.handler.OnAude(aude)
	case OpAudg:
		audg, err := ParseAudg(body)
		if err != nil {
			return err
		}

		c.handler.OnAudg(audg)
	case OpSetd:
		setd, err := ParseSetd(body)
		if err != nil {
			return err
		}

		if response, ok := c.handler.OnSetd(setd); ok {
			return writeFrame(conn, OpSetdOut, BuildSETDName(response))
		}
	case OpServ:
		serv, err := ParseServ(body)
		if err != nil {
			return err
		}

		c.handler.OnServ(serv)
	case OpLedc:
		if len(body) > 0 {
			c.handler.OnLedc(body[0])
		}
	case OpVers:
		c.handler.OnVersion(trimNUL(body))
	default:
		c.log.Debug("unhandled opcode", "opcode", opcode)
	}

	return nil
}

// handleStrm dispatches a strm message to the handler and, for the 'q'
// (stop), 't' (timestamp), 'p' (pause) and 'u' (unpause) subcommands,
// immediately emits the STAT reply the original implementation sends
// synchronously from process_strm rather than waiting for the next
// heartbeat tick.
func (c *Client) handleStrm(s Strm) {
	c.handler.OnStrm(s)

	switch s.Command {
	case StrmTimestamp:
		_ = c.SendSTAT("STMt")
	case StrmStop:
		_ = c.SendSTAT("STMf")
	case StrmPause:
		_ = c.SendSTAT("STMp")
	case StrmUnpause:
		_ = c.SendSTAT("STMr")
	case StrmStart:
		c.resetTrackState()
	}
}

// SendSTAT emits one STAT message for the given event code over the
// live connection, applying the spec.md §4.1 firing-order rules.
// Per original_source's slimproto.c, STMs and STMd never coincide on the
// same round: an STMd that arrives before this track's STMs has gone out
// is queued, not dropped, and is flushed immediately after STMs so LMS
// still sees it exactly once (scenario 1's STMc, STMl, STMs, STMd,
// STMu). STMu implies a trailing STMn the first time it fires in a
// track, but only if STMd never fired for that track — an expected
// drain (STMd already sent) needs no STMn.
func (c *Client) SendSTAT(event string) error {
	switch event {
	case "STMd":
		c.mu.Lock()
		if !c.stmsSent {
			c.pendingSTMd = true
			c.mu.Unlock()

			return nil
		}

		c.stmdSent = true
		c.mu.Unlock()
	case "STMs":
		c.mu.Lock()
		c.stmsSent = true
		flushSTMd := c.pendingSTMd
		c.pendingSTMd = false

		if flushSTMd {
			c.stmdSent = true
		}

		c.mu.Unlock()

		if err := c.emit("STMs"); err != nil {
			return err
		}

		if flushSTMd {
			return c.emit("STMd")
		}

		return nil
	case "STMu":
		c.mu.Lock()
		firstSTMu := !c.sawSTMu
		needSTMn := firstSTMu && !c.stmdSent
		c.sawSTMu = true
		c.mu.Unlock()

		if err := c.emit("STMu"); err != nil {
			return err
		}

		if needSTMn {
			return c.emit("STMn")
		}

		return nil
	}

	return c.emit(event)
}

// resetTrackState clears the per-track STAT bookkeeping; called when a
// new 'strm s' starts a stream.
func (c *Client) resetTrackState() {
	c.mu.Lock()
	c.stmsSent = false
	c.stmdSent = false
	c.pendingSTMd = false
	c.sawSTMu = false
	c.mu.Unlock()
}

func (c *Client) emit(event string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("slimproto: no active connection")
	}

	snap := c.status.Snapshot()

	body, err := BuildSTAT(event, snap)
	if err != nil {
		return err
	}

	return writeFrame(conn, OpStat, body)
}

// SendDSCO sends a disconnect notification over the live connection, if
// any.
func (c *Client) SendDSCO(reason DisconnectReason) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	return writeFrame(conn, OpDsco, BuildDSCO(reason))
}

// SendRESP forwards captured upstream response headers to LMS.
func (c *Client) SendRESP(header []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("slimproto: no active connection")
	}

	return writeFrame(conn, OpResp, BuildRESP(header))
}

// SendMETA forwards ICY metadata bytes to LMS.
func (c *Client) SendMETA(icy []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("slimproto: no active connection")
	}

	return writeFrame(conn, OpMeta, BuildMETA(icy))
}
