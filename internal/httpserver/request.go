package httpserver

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// Request is the parsed Phase 1 result of spec.md §4.5: method, the
// track index extracted by scanning the path for "bridge-<N>", and the
// header map (including Range, Icy-Metadata, User-Agent).
type Request struct {
	Method     string
	Path       string
	TrackIndex int
	Headers    map[string]string

	RangeStart int64 // -1 if no Range header, or Range did not specify a start offset
}

// ParseRequest reads one HTTP/1.x request line and header block from r.
func ParseRequest(r *bufio.Reader) (*Request, error) {
	line, err := readCRLFLine(r)
	if err != nil {
		return nil, err
	}

	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("httpserver: malformed request line %q", line)
	}

	req := &Request{Method: parts[0], Path: parts[1], Headers: make(map[string]string), RangeStart: -1}

	req.TrackIndex, err = extractTrackIndex(req.Path)
	if err != nil {
		return nil, err
	}

	for {
		hline, err := readCRLFLine(r)
		if err != nil {
			return nil, err
		}

		if hline == "" {
			break
		}

		k, v, ok := strings.Cut(hline, ":")
		if !ok {
			continue
		}

		req.Headers[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}

	if rng, ok := req.Headers["range"]; ok {
		req.RangeStart = parseRangeStart(rng)
	}

	return req, nil
}

func readCRLFLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}

	return strings.TrimRight(line, "\r\n"), nil
}

// extractTrackIndex scans path for "bridge-<digits>" anywhere in it,
// per spec.md §4.5 ("additional suffix ignored").
func extractTrackIndex(path string) (int, error) {
	i := strings.Index(path, "bridge-")
	if i < 0 {
		return 0, fmt.Errorf("httpserver: path %q has no bridge-<index> component", path)
	}

	j := i + len("bridge-")
	start := j

	for j < len(path) && path[j] >= '0' && path[j] <= '9' {
		j++
	}

	if j == start {
		return 0, fmt.Errorf("httpserver: path %q has no digits after bridge-", path)
	}

	return strconv.Atoi(path[start:j])
}

// parseRangeStart parses "bytes=<n>-..." and returns n, or -1 if it
// cannot be parsed (treated as "serve from the top").
func parseRangeStart(header string) int64 {
	const prefix = "bytes="

	if !strings.HasPrefix(header, prefix) {
		return -1
	}

	spec := header[len(prefix):]

	dash := strings.Index(spec, "-")
	if dash < 0 {
		return -1
	}

	n, err := strconv.ParseInt(spec[:dash], 10, 64)
	if err != nil {
		return -1
	}

	return n
}

// IsSonos reports whether a User-Agent header identifies a Sonos
// renderer, which requires Content-Range be omitted on 206 replies and
// Content-Range/chunking handled specially per spec.md §4.5.
func IsSonos(userAgent string) bool {
	return strings.Contains(strings.ToLower(userAgent), "sonos")
}
