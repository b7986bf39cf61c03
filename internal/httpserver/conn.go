package httpserver

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/doismellburning/squeezebox-bridge/internal/logging"
)

// drainRounds bounds Phase 4's "draining" countdown. spec.md §4.5 gives
// this as "~5000/timeout rounds" in the original non-blocking-write
// model, where a round is one poll iteration and the count absorbs a
// slow renderer still draining its TCP receive window. Here conn.Write
// is a blocking call that only returns once the kernel has accepted the
// bytes, so there is no equivalent backlog to wait out; a short grace
// period is kept purely to tolerate a FillOutput implementation that
// reports Done a round or two before its last bytes actually landed in
// the cache.
const drainRounds = 3

const fillPollInterval = 20 * time.Millisecond

// Connection drives one accepted socket through the four phases of
// spec.md §4.5's state machine. A fresh Connection is created per
// Slot.Accept() call — including re-opens.
type Connection struct {
	conn net.Conn
	ts   TrackSource
	log  *logging.Logger

	backlog []byte // unsent bytes from a write that would otherwise split a chunk frame

	icy *icyInjector
}

// Serve runs the full per-connection state machine to completion
// (Phase 1 through Phase 4, or an early error reply). It always closes
// conn before returning.
func Serve(conn net.Conn, ts TrackSource, log *logging.Logger) {
	defer conn.Close()

	c := &Connection{conn: conn, ts: ts, log: log}
	c.icy = newIcyInjector(ts.IcyMetadata)

	if err := c.serve(); err != nil {
		log.Debug("http connection ended", "err", err)
	}
}

func (c *Connection) serve() error {
	br := bufio.NewReader(c.conn)

	req, err := ParseRequest(br)
	if err != nil {
		return fmt.Errorf("httpserver: parse request: %w", err)
	}

	// Phase 1: index mismatch -> 410 Gone.
	if req.TrackIndex != c.ts.Index() {
		c.writeAndClose(BuildHeaders(ResponseParams{Status: StatusGone, HTTPVersion: "1.1", MimeType: "text/plain", ContentLength: 0}))
		return nil
	}

	userAgent := req.Headers["user-agent"]
	icyRequested := req.Headers["icy-metadata"] == "1"

	cacheBuf := c.ts.Cache()

	// Re-open path: a Range request the cache can already satisfy. A
	// Range starting at 0 while the cache is still empty takes the live
	// path below instead.
	if req.RangeStart >= 0 && !(req.RangeStart == 0 && cacheBuf.Total() == 0) {
		return c.serveFromCache(req, userAgent, icyRequested)
	}

	// Phase 2: wait for the decoder to report a codec before the
	// headers (which need Content-Type/length) can be emitted.
	for c.ts.Output() == nil {
		time.Sleep(fillPollInterval)
	}

	// spec.md §4.4: flow mode permits ICY even on finite-duration tracks,
	// so eligibility here is solely the renderer's request header;
	// TrackSource.Live is consulted only for the DLNA S0_INCREASE flag.
	icyEnabled := icyRequested

	contentLength := c.ts.Output().ContentLength()
	chunked := contentLength == -3

	headers := BuildHeaders(ResponseParams{
		Status:        StatusOK,
		HTTPVersion:   "1.1",
		MimeType:      c.ts.MimeType(),
		ContentLength: contentLength,
		IcyEnabled:    icyEnabled,
		UserAgent:     userAgent,
		DLNATransferModeEcho: req.Headers["transfermode.dlna.org"],
		WantContentFeatures:  req.Headers["getcontentfeatures.dlna.org"] != "",
		WantSeekRange:        req.Headers["getavailableseekrange.dlna.org"] != "",
		SeekableFull:         false,
		CacheTotal:           cacheBuf.Total(),
		CacheLevel:           cacheBuf.Level(),
	})

	if _, err := io.WriteString(c.conn, headers); err != nil {
		return err
	}

	if req.Method == "HEAD" {
		return nil
	}

	return c.steadyState(chunked, icyEnabled)
}

// steadyState implements Phase 3/4: pull encoded bytes from the output
// engine, optionally inject ICY metadata, write to both the socket and
// the cache (so a later re-open can replay), and finalise on decode
// completion.
func (c *Connection) steadyState(chunked, icyEnabled bool) error {
	cacheBuf := c.ts.Cache()
	drain := drainRounds

	for {
		if len(c.backlog) > 0 {
			if err := c.sendChunk(c.backlog, chunked); err != nil {
				return err
			}

			c.backlog = nil

			continue
		}

		res, err := c.ts.FillOutput()
		if err != nil {
			return fmt.Errorf("httpserver: fill: %w", err)
		}

		if len(res.Data) > 0 {
			cacheBuf.Write(res.Data)

			data := res.Data
			if icyEnabled {
				data = c.icy.Wrap(data)
			}

			if err := c.sendChunk(data, chunked); err != nil {
				return err
			}

			drain = drainRounds

			continue
		}

		if res.Done {
			drain--
			if drain <= 0 {
				break
			}
		}

		time.Sleep(fillPollInterval)
	}

	c.ts.Drained()

	if chunked {
		if _, err := io.WriteString(c.conn, "0\r\n\r\n"); err != nil {
			return err
		}
	}

	return nil
}

// sendChunk writes data to the connection, wrapping it in <hex-len>\r\n
// ... \r\n chunk framing if chunked is set. If the write is partial, the
// unsent remainder is stashed in c.backlog (spec.md §4.5 Phase 3(1): "a
// chunk-framing ... must not be partially sent with a lost middle").
func (c *Connection) sendChunk(data []byte, chunked bool) error {
	var framed []byte

	if chunked {
		framed = append(framed, []byte(fmt.Sprintf("%x\r\n", len(data)))...)
		framed = append(framed, data...)
		framed = append(framed, []byte("\r\n")...)
	} else {
		framed = data
	}

	n, err := c.conn.Write(framed)
	if err != nil {
		if n > 0 && n < len(framed) {
			c.backlog = append([]byte(nil), framed[n:]...)
		}

		return err
	}

	return nil
}

// serveFromCache handles a Range request: reply 206 from the cache if
// the offset is still in scope, or 416 if it lies beyond everything
// written or has fallen out of the retained window. serve does not call
// it for a Range starting at 0 while the cache is still empty; that
// request takes the live Fill path.
func (c *Connection) serveFromCache(req *Request, userAgent string, icyRequested bool) error {
	cacheBuf := c.ts.Cache()
	scope := cacheBuf.Scope(req.RangeStart)

	if scope < 0 {
		c.writeAndClose(BuildHeaders(ResponseParams{Status: StatusRangeNotSatisfiable, HTTPVersion: "1.1", MimeType: c.ts.MimeType(), ContentLength: -1}))
		return nil
	}

	if scope > 0 {
		// Offset has fallen out of the retained window but hasn't run
		// past total: treat as not satisfiable too, matching spec.md
		// §4.5's "beyond cache-total and we are lingering -> 416" intent
		// extended to "no longer retained".
		c.writeAndClose(BuildHeaders(ResponseParams{Status: StatusRangeNotSatisfiable, HTTPVersion: "1.1", MimeType: c.ts.MimeType(), ContentLength: -1}))
		return nil
	}

	if err := cacheBuf.SetOffset(req.RangeStart); err != nil {
		return fmt.Errorf("httpserver: cache set offset: %w", err)
	}

	headers := BuildHeaders(ResponseParams{
		Status:      StatusPartialContent,
		HTTPVersion: "1.1",
		MimeType:    c.ts.MimeType(),
		ContentLength: -1,
		RangeLow:    req.RangeStart,
		UserAgent:   userAgent,
		IcyEnabled:  icyRequested,
		CacheTotal:  cacheBuf.Total(),
		CacheLevel:  cacheBuf.Level(),
	})

	if _, err := io.WriteString(c.conn, headers); err != nil {
		return err
	}

	if req.Method == "HEAD" {
		return nil
	}

	buf := make([]byte, 32*1024)

	for {
		n, err := cacheBuf.Read(buf, 1)
		if n > 0 {
			data := buf[:n]
			if icyRequested {
				data = c.icy.Wrap(data)
			}

			if werr := c.sendChunk(data, false); werr != nil {
				return werr
			}
		}

		if err == io.EOF {
			return nil
		}

		if n == 0 {
			time.Sleep(fillPollInterval)
		}
	}
}

func (c *Connection) writeAndClose(headers string) {
	io.WriteString(c.conn, headers)
}
