// Package chunker splits extracted document text into overlapping segments.
//
// Lengths and offsets are counted in user-perceived characters (grapheme
// clusters), so a segment boundary never falls inside a multi-byte rune or
// between a base character and its combining marks.
package chunker

import (
	"strings"
	"unicode"

	"github.com/rivo/uniseg"
)

// DefaultChunkSize is the default number of characters per segment.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of characters shared by neighbouring segments.
const DefaultChunkOverlap = 200

// Segment is a chunk candidate. Start and End are character offsets into the
// source text, End exclusive.
type Segment struct {
	Index int
	Text  string
	Start int
	End   int
}

// Length is the segment length in characters.
func (s Segment) Length() int {
	return s.End - s.Start
}

type Chunker struct {
	chunkSize int
	overlap   int
}

type Option func(*Chunker)

func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}
	return c
}

func (c *Chunker) ChunkSize() int { return c.chunkSize }
func (c *Chunker) Overlap() int   { return c.overlap }

// Chunk splits text in document order. Empty or whitespace-only text yields no segments.
//
// A boundary is looked for inside [start+size-overlap, start+size]: a sentence
// end first, then whitespace, otherwise a hard cut at start+size. The next
// segment always begins exactly overlap characters before the previous end,
// so dropping the first Overlap() characters of every segment after the first
// and concatenating reconstructs the input.
func (c *Chunker) Chunk(text string) []Segment {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	chars := graphemes(text)
	n := len(chars)
	segments := make([]Segment, 0, n/(c.chunkSize-c.overlap)+1)

	start := 0
	for {
		if n-start <= c.chunkSize {
			segments = append(segments, c.segment(chars, len(segments), start, n))
			break
		}

		end := c.boundary(chars, start)
		segments = append(segments, c.segment(chars, len(segments), start, end))
		start = end - c.overlap
	}

	return segments
}

func (c *Chunker) segment(chars []string, index, start, end int) Segment {
	return Segment{
		Index: index,
		Text:  strings.Join(chars[start:end], ""),
		Start: start,
		End:   end,
	}
}

// boundary picks the end offset of the segment beginning at start.
// The result is always greater than start+overlap, which keeps the loop moving.
func (c *Chunker) boundary(chars []string, start int) int {
	hi := start + c.chunkSize
	lo := hi - c.overlap
	if lo <= start+c.overlap {
		lo = start + c.overlap + 1
	}

	for p := hi; p >= lo; p-- {
		if isSentenceEnd(chars[p-1]) && isSpace(chars[p]) {
			return p
		}
	}
	for p := hi; p >= lo; p-- {
		if isSpace(chars[p-1]) {
			return p
		}
	}
	return hi
}

func graphemes(text string) []string {
	chars := make([]string, 0, len(text))
	g := uniseg.NewGraphemes(text)
	for g.Next() {
		chars = append(chars, g.Str())
	}
	return chars
}

func isSentenceEnd(ch string) bool {
	switch ch {
	case ".", "!", "?", "。", "！", "？":
		return true
	}
	return false
}

func isSpace(ch string) bool {
	for _, r := range ch {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return ch != ""
}
