package slimproto

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/doismellburning/squeezebox-bridge/internal/logging"
)

// discoveryRequestByte is the leading 'e' of the UDP broadcast SlimProto
// discovery probe, grounded on discover_server() in
// original_source/application/squeezelite/slimproto.c; sendDiscoveryProbe
// appends the VERS, JSON and CLIP tags after it.
const discoveryRequestByte = 'e'

// discoveryPort is the well-known SlimProto UDP port.
const discoveryPort = 3483

// DiscoveryReply is the parsed response to a discovery broadcast:
// LMS replies with a 'D' packet carrying tagged fields, of which
// squeezelite (and this bridge) only care about VERS, JSON and CLIP,
// per original_source's discover_server.
type DiscoveryReply struct {
	ServerIP  net.IP
	Version   string // VERS tag: LMS server version string
	JSONPort  string // JSON tag: JSON-RPC/CLI-over-HTTP port, as a decimal string
	CLIPPort  string // CLIP tag: raw CLI port (normally 9090), as a decimal string
}

// ParseDiscoveryReply parses the tagged-field body of a discovery
// reply. Each field is [4-byte tag][1-byte length][value]; unknown tags
// are skipped.
func ParseDiscoveryReply(from net.IP, body []byte) (DiscoveryReply, error) {
	r := DiscoveryReply{ServerIP: from}

	if len(body) < 1 {
		return r, fmt.Errorf("slimproto: empty discovery reply")
	}

	buf := body[1:] // skip the leading 'D' (or 'i', for the legacy IP-only reply)

	for len(buf) >= 5 {
		tag := string(buf[0:4])
		n := int(buf[4])
		buf = buf[5:]

		if len(buf) < n {
			break
		}

		value := string(buf[:n])
		buf = buf[n:]

		switch tag {
		case "VERS":
			r.Version = value
		case "JSON":
			r.JSONPort = value
		case "CLIP":
			r.CLIPPort = value
		}
	}

	return r, nil
}

// Discover broadcasts a SlimProto discovery packet on the local subnet
// and returns the first reply received within timeout, retrying at a
// 5-second cadence until ctx is cancelled, matching the discovery loop
// shape of discover_server() (spec.md §4.1/§6).
func Discover(ctx context.Context, log *logging.Logger, timeout time.Duration) (DiscoveryReply, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	if err != nil {
		return DiscoveryReply{}, fmt.Errorf("slimproto: open discovery socket: %w", err)
	}
	defer conn.Close()

	broadcast := &net.UDPAddr{IP: net.IPv4bcast, Port: discoveryPort}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	if err := sendDiscoveryProbe(conn, broadcast); err != nil {
		return DiscoveryReply{}, err
	}

	readDeadline := time.Now().Add(timeout)
	_ = conn.SetReadDeadline(readDeadline)

	buf := make([]byte, 512)

	for {
		select {
		case <-ctx.Done():
			return DiscoveryReply{}, ctx.Err()
		case <-ticker.C:
			if log != nil {
				log.Debug("re-broadcasting discovery probe")
			}

			if err := sendDiscoveryProbe(conn, broadcast); err != nil {
				return DiscoveryReply{}, err
			}

			readDeadline = time.Now().Add(timeout)
			_ = conn.SetReadDeadline(readDeadline)
		default:
		}

		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}

			return DiscoveryReply{}, fmt.Errorf("slimproto: read discovery reply: %w", err)
		}

		if n < 1 || (buf[0] != 'D' && buf[0] != 'i') {
			continue
		}

		reply, err := ParseDiscoveryReply(from.IP, bytes.Clone(buf[:n]))
		if err != nil {
			continue
		}

		return reply, nil
	}
}

func sendDiscoveryProbe(conn *net.UDPConn, to *net.UDPAddr) error {
	// Payload per spec.md §4.1: 'e' VERS \0 JSON \0 CLIP, a TLV-ish
	// discovery probe requesting the server's version, JSON port and
	// CLI port back in the reply.
	var payload bytes.Buffer
	payload.WriteByte(discoveryRequestByte)
	writeDiscoveryTag(&payload, "VERS")
	writeDiscoveryTag(&payload, "JSON")
	writeDiscoveryTag(&payload, "CLIP")

	if _, err := conn.WriteToUDP(payload.Bytes(), to); err != nil {
		return fmt.Errorf("slimproto: send discovery probe: %w", err)
	}

	return nil
}

func writeDiscoveryTag(buf *bytes.Buffer, tag string) {
	buf.WriteString(tag)
	buf.WriteByte(0)
}
