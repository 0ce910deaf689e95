// Package chunker splits document text into overlapping segments for
// embedding and retrieval. Splitting prefers natural boundaries (paragraph
// breaks, sentence endings, spaces) over hard cuts.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultSize is the target segment length in bytes.
	DefaultSize = 1000
	// DefaultOverlap is the number of bytes shared between consecutive segments.
	DefaultOverlap = 200
)

// Metadata keys attached to every segment.
const (
	MetaChunkIndex  = "chunk_index"
	MetaTotalChunks = "total_chunks"
	MetaCharStart   = "char_start"
	MetaCharEnd     = "char_end"
	MetaSourceFile  = "source_file"
)

// Segment is one chunk of text with its position metadata.
type Segment struct {
	Text     string
	Metadata map[string]any
}

// Chunker splits text into overlapping segments. It is stateless and safe
// for concurrent use.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker. A zero size selects the defaults (1000, and
// 200 overlap unless one was given); with an explicit size a zero
// overlap means no overlap. Overlap must be smaller than size and
// neither may be negative.
func New(size, overlap int) (*Chunker, error) {
	if size == 0 {
		size = DefaultSize
		if overlap == 0 {
			overlap = DefaultOverlap
		}
	}
	if size < 0 || overlap < 0 {
		return nil, fmt.Errorf("chunk size and overlap must be positive, got size=%d overlap=%d", size, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split divides text into segments, each carrying baseMeta merged with
// chunk_index, total_chunks, char_start, and char_end. Offsets are relative
// to the trimmed text. Empty or whitespace-only input yields no segments.
func (c *Chunker) Split(text string, baseMeta map[string]string) []Segment {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if len(text) <= c.size {
		return []Segment{{
			Text:     text,
			Metadata: segmentMeta(baseMeta, 0, 1, 0, len(text)),
		}}
	}

	var segments []Segment
	start := 0
	index := 0

	for start < len(text) {
		end := start + c.size
		if end < len(text) {
			end = c.findBreak(text, start, end)
		} else {
			end = len(text)
		}

		if seg := strings.TrimSpace(text[start:end]); seg != "" {
			segments = append(segments, Segment{
				Text:     seg,
				Metadata: segmentMeta(baseMeta, index, 0, start, end),
			})
			index++
		}

		// The segment reaching end-of-text is the last one; stepping back by
		// the overlap here would only re-emit text already covered.
		if end >= len(text) {
			break
		}

		// Step back by the overlap, snapped forward to a rune start so the
		// next segment never begins mid-character, forcing forward progress
		// so pathological size/overlap combinations can't loop forever.
		next := end - c.overlap
		for next < len(text) && !utf8.RuneStart(text[next]) {
			next++
		}
		if next <= start {
			next = end
		}
		start = next
	}

	// total_chunks is only known once all segments exist.
	for _, seg := range segments {
		seg.Metadata[MetaTotalChunks] = len(segments)
	}

	return segments
}

// findBreak locates the best split point inside [start, start+size).
// Preference order: rightmost paragraph break, rightmost sentence ending,
// rightmost space. A candidate only qualifies when it falls after the
// window's midpoint; otherwise the raw boundary is used, snapped back to
// a rune start so multi-byte characters are never cut.
func (c *Chunker) findBreak(text string, start, end int) int {
	window := text[start:end]
	mid := c.size / 2

	if pos := strings.LastIndex(window, "\n\n"); pos > mid {
		return start + pos + 2
	}

	best := -1
	for _, punct := range []string{". ", "! ", "? ", ".\n", "!\n", "?\n"} {
		if pos := strings.LastIndex(window, punct); pos > mid && pos+len(punct) > best {
			best = pos + len(punct)
		}
	}
	if best > 0 {
		return start + best
	}

	if pos := strings.LastIndex(window, " "); pos > mid {
		return start + pos + 1
	}

	for end > start && !utf8.RuneStart(text[end]) {
		end--
	}
	// A window smaller than one rune snaps back onto start; move forward to
	// the next rune boundary instead so the caller always advances.
	if end <= start {
		end = start + 1
		for end < len(text) && !utf8.RuneStart(text[end]) {
			end++
		}
	}
	return end
}

func segmentMeta(base map[string]string, index, total, charStart, charEnd int) map[string]any {
	meta := make(map[string]any, len(base)+4)
	for k, v := range base {
		meta[k] = v
	}
	meta[MetaChunkIndex] = index
	meta[MetaTotalChunks] = total
	meta[MetaCharStart] = charStart
	meta[MetaCharEnd] = charEnd
	return meta
}
