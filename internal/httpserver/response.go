package httpserver

import (
	"fmt"
	"strings"
)

// Status mirrors the four HTTP statuses spec.md §4.5/§6 names.
type Status int

const (
	StatusOK             Status = 200
	StatusPartialContent  Status = 206
	StatusGone           Status = 410
	StatusRangeNotSatisfiable Status = 416
)

func (s Status) Text() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusPartialContent:
		return "Partial Content"
	case StatusGone:
		return "Gone"
	case StatusRangeNotSatisfiable:
		return "Range Not Satisfiable"
	default:
		return "Unknown"
	}
}

// ResponseParams carries everything BuildHeaders needs to assemble the
// header block for one reply, per spec.md §6.
type ResponseParams struct {
	Status        Status
	HTTPVersion   string // "1.0" or "1.1"
	MimeType      string
	ContentLength int64 // -1 = omit, -3 = chunked
	RangeLow      int64 // for 206; ignored otherwise
	IcyEnabled    bool
	UserAgent     string
	DLNATransferModeEcho string // mirrors the request's transferMode.dlna.org verbatim, empty if absent
	WantContentFeatures  bool   // request asked getcontentFeatures.dlna.org
	WantSeekRange        bool   // request asked getAvailableSeekRange.dlna.org
	SeekableFull         bool   // cache holds the full resource (OP=01)
	CacheTotal           int64
	CacheLevel           int64
}

// BuildHeaders assembles the raw header block, including the terminating
// blank line, exactly as spec.md §4.5/§6 describes.
func BuildHeaders(p ResponseParams) string {
	var b strings.Builder

	fmt.Fprintf(&b, "HTTP/%s %d %s\r\n", p.HTTPVersion, p.Status, p.Status.Text())
	b.WriteString("Server: squeezebox-bridge\r\n")
	b.WriteString("Accept-Ranges: bytes\r\n")
	fmt.Fprintf(&b, "Content-Type: %s\r\n", p.MimeType)
	b.WriteString("Connection: close\r\n")

	switch p.ContentLength {
	case -3:
		if p.HTTPVersion == "1.1" {
			b.WriteString("Transfer-Encoding: chunked\r\n")
		}
	case -1:
		// length omitted; renderer detects EOF by connection close
	default:
		fmt.Fprintf(&b, "Content-Length: %d\r\n", p.ContentLength)
	}

	if p.IcyEnabled {
		b.WriteString("icy-metaint: 16384\r\n")
	}

	if p.Status == StatusPartialContent && !IsSonos(p.UserAgent) {
		fmt.Fprintf(&b, "Content-Range: bytes %d-%d/*\r\n", p.RangeLow, p.CacheTotal-1)
	}

	if p.DLNATransferModeEcho != "" {
		fmt.Fprintf(&b, "transferMode.dlna.org: %s\r\n", p.DLNATransferModeEcho)
	}

	if p.WantContentFeatures {
		fmt.Fprintf(&b, "contentFeatures.dlna.org: %s\r\n", dlnaContentFeatures(p.MimeType, p.SeekableFull, p.IcyEnabled))
	}

	if p.WantSeekRange {
		lower := p.CacheTotal - p.CacheLevel
		upper := p.CacheTotal - 1
		fmt.Fprintf(&b, "availableSeekRange.dlna.org: 0 bytes=%d-%d\r\n", lower, upper)
	}

	b.WriteString("\r\n")

	return b.String()
}

// dlnaPN maps a MIME string to a DLNA profile name, per spec.md §4.5:
// "PN is format-specific (MP3, AAC_ADTS, LPCM or empty)".
func dlnaPN(mime string) string {
	switch {
	case strings.Contains(mime, "mpeg"):
		return "MP3"
	case strings.Contains(mime, "aac"):
		return "AAC_ADTS"
	case strings.Contains(mime, "l16") || strings.Contains(mime, "l24") || strings.Contains(mime, "wav"):
		return "LPCM"
	default:
		return ""
	}
}

// DLNA org-flags bits, per the DLNA guideline's ORG_FLAGS bitmask.
const (
	dlnaSenderPaced            = 1 << 31
	dlnaTimeBasedSeek          = 1 << 30
	dlnaByteBasedSeek          = 1 << 29
	dlnaPlayContainer          = 1 << 28
	dlnaS0Increase             = 1 << 27
	dlnaSnIncrease             = 1 << 26
	dlnaRTSPPause              = 1 << 25
	dlnaStreamingTransferMode  = 1 << 24
	dlnaInteractiveTransferMode = 1 << 23
	dlnaBackgroundTransferMode  = 1 << 22
	dlnaConnectionStall         = 1 << 21
	dlnaDLNAv15                = 1 << 20
)

// dlnaContentFeatures builds the DLNA.ORG_PN/OP/CI/FLAGS reply to
// getcontentFeatures.dlna.org per spec.md §4.5.
func dlnaContentFeatures(mime string, seekableFull, live bool) string {
	pn := dlnaPN(mime)

	op := "00"
	if seekableFull {
		op = "01"
	}

	flags := dlnaStreamingTransferMode | dlnaBackgroundTransferMode | dlnaConnectionStall | dlnaDLNAv15 | dlnaSnIncrease
	if live {
		flags |= dlnaS0Increase
	}

	if !seekableFull {
		flags |= dlnaByteBasedSeek
	}

	var pnField string
	if pn != "" {
		pnField = fmt.Sprintf("DLNA.ORG_PN=%s;", pn)
	}

	return fmt.Sprintf("%sDLNA.ORG_OP=%s;DLNA.ORG_CI=0;DLNA.ORG_FLAGS=%08X000000000000000000000000", pnField, op, flags)
}
