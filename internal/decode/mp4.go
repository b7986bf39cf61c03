package decode

import (
	"bytes"
	"fmt"
	"io"

	"github.com/abema/go-mp4"

	"github.com/doismellburning/squeezebox-bridge/internal/ringbuf"
)

// mp4Track holds the per-sample layout extracted from moov/trak/mdia/
// minf/stbl (spec.md §4.3's MP4/ALAC and MP4/AAC parsing), enough to
// walk mdat one sample at a time honouring chunk boundaries.
type mp4Track struct {
	sampleSizes   []uint32 // from stsz; a single repeated value if stsz declared a uniform size
	uniformSize   uint32
	chunkOffsets  []uint64 // from stco
	sampleToChunk []mp4.StscEntry
	totalSamples  uint32 // accumulated from stts

	alacConfig []byte // decoder-config payload from the 'alac' box, if present
	esdsConfig []byte // AudioSpecificConfig from 'esds', if present

	channels   int
	sampleRate int
	bitDepth   int

	nextSampleIdx int
	mdatOffset    int64
}

// parseMP4Moov walks the full moov box tree and fills an mp4Track; data
// holds the bytes at the front of streambuf, starting at the beginning of
// the file, and the moov box is located within it.
func parseMP4Moov(data []byte) (*mp4Track, error) {
	t := &mp4Track{}

	_, err := mp4.ReadBoxStructure(bytes.NewReader(data), func(h *mp4.ReadHandle) (interface{}, error) {
		switch h.BoxInfo.Type.String() {
		case "stsz":
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}

			if stsz, ok := box.(*mp4.Stsz); ok {
				t.uniformSize = stsz.SampleSize
				t.sampleSizes = stsz.EntrySize
			}
		case "stco":
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}

			if stco, ok := box.(*mp4.Stco); ok {
				t.chunkOffsets = make([]uint64, len(stco.ChunkOffset))
				for i, v := range stco.ChunkOffset {
					t.chunkOffsets[i] = uint64(v)
				}
			}
		case "co64":
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}

			if co64, ok := box.(*mp4.Co64); ok {
				t.chunkOffsets = co64.ChunkOffset
			}
		case "stsc":
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}

			if stsc, ok := box.(*mp4.Stsc); ok {
				t.sampleToChunk = stsc.Entries
			}
		case "stts":
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}

			if stts, ok := box.(*mp4.Stts); ok {
				var total uint32
				for _, e := range stts.Entries {
					total += e.SampleCount
				}

				t.totalSamples = total
			}
		case "alac":
			_, payload, err := h.ReadPayload()
			if err == nil {
				t.alacConfig = append([]byte(nil), payload...)
			}
		case "esds":
			_, payload, err := h.ReadPayload()
			if err == nil {
				t.esdsConfig = extractAudioSpecificConfig(payload)
			}
		}

		return h.Expand()
	})
	if err != nil {
		return nil, fmt.Errorf("decode: mp4 moov walk: %w", err)
	}

	return t, nil
}

// extractAudioSpecificConfig pulls the AudioSpecificConfig payload out
// of a raw esds box: it is the descriptor nested inside the decoder
// config descriptor's tag 0x05.
func extractAudioSpecificConfig(esds []byte) []byte {
	for i := 0; i+2 < len(esds); i++ {
		if esds[i] == 0x05 {
			n := int(esds[i+1])
			if i+2+n <= len(esds) {
				return esds[i+2 : i+2+n]
			}
		}
	}

	return nil
}

// SampleOffset returns the absolute mdat-relative byte offset and size
// of sample index idx, folding stsc against stco per spec.md §4.3.
func (t *mp4Track) SampleOffset(idx int) (offset uint64, size uint32, ok bool) {
	if idx < 0 {
		return 0, 0, false
	}

	size = t.uniformSize
	if size == 0 && idx < len(t.sampleSizes) {
		size = t.sampleSizes[idx]
	}

	chunkIdx, sampleInChunk := t.locateChunk(idx)
	if chunkIdx < 0 || chunkIdx >= len(t.chunkOffsets) {
		return 0, 0, false
	}

	off := t.chunkOffsets[chunkIdx]

	firstSampleOfChunk := idx - sampleInChunk
	for s := firstSampleOfChunk; s < idx; s++ {
		sz := t.uniformSize
		if sz == 0 && s < len(t.sampleSizes) {
			sz = t.sampleSizes[s]
		}

		off += uint64(sz)
	}

	return off, size, true
}

// locateChunk folds the stsc run-length table to find which chunk
// sample idx falls in, and its position within that chunk.
func (t *mp4Track) locateChunk(idx int) (chunkIdx, sampleInChunk int) {
	sampleCounter := 0
	chunk := 0

	for i, entry := range t.sampleToChunk {
		var nextFirstChunk uint32
		if i+1 < len(t.sampleToChunk) {
			nextFirstChunk = t.sampleToChunk[i+1].FirstChunk
		} else {
			nextFirstChunk = uint32(len(t.chunkOffsets)) + 1
		}

		chunksInRun := int(nextFirstChunk - entry.FirstChunk)
		samplesInRun := chunksInRun * int(entry.SamplesPerChunk)

		if idx < sampleCounter+samplesInRun {
			rel := idx - sampleCounter
			chunk = int(entry.FirstChunk) - 1 + rel/int(entry.SamplesPerChunk)

			return chunk, rel % int(entry.SamplesPerChunk)
		}

		sampleCounter += samplesInRun
	}

	return -1, 0
}

// readMdatBytes reads the next n bytes at streambuf's current read
// position and advances past them, or returns io.ErrNoProgress if fewer
// than n contiguous bytes are available. It does not seek to any mdat
// or chunk offset.
func readMdatBytes(streambuf *ringbuf.Buffer, n int) ([]byte, error) {
	avail := streambuf.ContiguousRead()
	if avail < n {
		return nil, io.ErrNoProgress
	}

	data := append([]byte(nil), streambuf.Peek(n)...)
	streambuf.Advance(n)

	return data, nil
}
