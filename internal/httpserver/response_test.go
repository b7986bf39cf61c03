package httpserver

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildHeadersKnownLength(t *testing.T) {
	h := BuildHeaders(ResponseParams{Status: StatusOK, HTTPVersion: "1.1", MimeType: "audio/mpeg", ContentLength: 1000})

	assert.True(t, strings.HasPrefix(h, "HTTP/1.1 200 OK\r\n"))
	assert.Contains(t, h, "Content-Length: 1000\r\n")
	assert.NotContains(t, h, "Transfer-Encoding")
}

func TestBuildHeadersChunked(t *testing.T) {
	h := BuildHeaders(ResponseParams{Status: StatusOK, HTTPVersion: "1.1", MimeType: "audio/flac", ContentLength: -3})

	assert.Contains(t, h, "Transfer-Encoding: chunked\r\n")
	assert.NotContains(t, h, "Content-Length")
}

func TestBuildHeadersOmitsContentRangeForSonos(t *testing.T) {
	h := BuildHeaders(ResponseParams{
		Status: StatusPartialContent, HTTPVersion: "1.1", MimeType: "audio/mpeg",
		ContentLength: -1, UserAgent: "Sonos/59", RangeLow: 100, CacheTotal: 5000,
	})

	assert.NotContains(t, h, "Content-Range")
}

func TestBuildHeadersIncludesContentRangeForNonSonos(t *testing.T) {
	h := BuildHeaders(ResponseParams{
		Status: StatusPartialContent, HTTPVersion: "1.1", MimeType: "audio/mpeg",
		ContentLength: -1, UserAgent: "VLC", RangeLow: 100, CacheTotal: 5000,
	})

	assert.Contains(t, h, "Content-Range: bytes 100-4999/*\r\n")
}

func TestDLNAPNMapping(t *testing.T) {
	assert.Equal(t, "MP3", dlnaPN("audio/mpeg"))
	assert.Equal(t, "AAC_ADTS", dlnaPN("audio/aac"))
	assert.Equal(t, "LPCM", dlnaPN("audio/l16"))
	assert.Equal(t, "", dlnaPN("audio/flac"))
}

func TestDLNAContentFeaturesSeekableSetsOP01(t *testing.T) {
	out := dlnaContentFeatures("audio/mpeg", true, false)
	assert.Contains(t, out, "DLNA.ORG_OP=01")
	assert.Contains(t, out, "DLNA.ORG_PN=MP3")
}

func TestDLNAContentFeaturesNotSeekableSetsOP00(t *testing.T) {
	out := dlnaContentFeatures("audio/mpeg", false, false)
	assert.Contains(t, out, "DLNA.ORG_OP=00")
}
