// Package chunker splits loaded text into bounded, overlapping chunks for embedding.
//
// Each text unit is cut into consecutive segments that together reproduce the unit exactly.
// A segment ends at the last paragraph break inside the size window, else at the last sentence
// end, else at the last whitespace, and only as a last resort at the raw window edge. Every chunk
// is its segment prefixed with the overlap runes that precede it, so neighbouring chunks share
// exactly the configured overlap.
package chunker

import "docqa/internal/domain"

// DefaultChunkSize is the default number of runes per chunk.
const DefaultChunkSize = 500

// DefaultChunkOverlap is the default number of runes shared by neighbouring chunks.
const DefaultChunkOverlap = 50

// Piece is one chunk of a text unit before metadata and embeddings are attached.
type Piece struct {
	Text string
	// Page is copied from the unit the piece was cut from.
	Page int
	// Offset is the rune offset of the piece's first rune within its unit.
	Offset int
	// Overlap is the number of leading runes repeated from the previous piece.
	Overlap int
}

// Chunker splits text units. It is stateless and safe for concurrent use.
type Chunker struct {
	size    int
	overlap int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the chunk size in runes. Non-positive values are ignored.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithOverlap sets the overlap in runes. Negative values are ignored.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a chunker. An overlap that is not smaller than the chunk size is reduced to a
// quarter of the chunk size.
func New(opts ...Option) *Chunker {
	c := &Chunker{size: DefaultChunkSize, overlap: DefaultChunkOverlap}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.size {
		c.overlap = c.size / 4
	}
	return c
}

// Size returns the configured chunk size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Split chunks every unit in order. Chunks never span two units.
func (c *Chunker) Split(units []domain.TextUnit) []Piece {
	var pieces []Piece
	for _, u := range units {
		runes := []rune(u.Text)
		for _, seg := range c.segments(runes) {
			from := seg.start - c.overlap
			if from < 0 {
				from = 0
			}
			pieces = append(pieces, Piece{
				Text:    string(runes[from:seg.end]),
				Page:    u.Page,
				Offset:  u.Offset + from,
				Overlap: seg.start - from,
			})
		}
	}
	return pieces
}

// SplitText chunks a single string and returns the chunk texts.
func (c *Chunker) SplitText(text string) []string {
	pieces := c.Split([]domain.TextUnit{{Text: text}})
	out := make([]string, len(pieces))
	for i, p := range pieces {
		out[i] = p.Text
	}
	return out
}

type segment struct {
	start, end int
}

// segments partitions runes into the non-overlapping regions of each chunk.
func (c *Chunker) segments(runes []rune) []segment {
	var segs []segment
	n := len(runes)
	for start := 0; start < n; {
		capacity := c.size
		if start > 0 {
			capacity = c.size - c.overlap
		}
		end := n
		// A tail no longer than the overlap is absorbed rather than becoming a chunk of its own.
		if n-start > capacity+c.overlap {
			end = cutPoint(runes, start, capacity)
		}
		segs = append(segs, segment{start: start, end: end})
		start = end
	}
	return segs
}

// cutPoint returns the end of the segment that starts at start and may hold capacity runes.
func cutPoint(runes []rune, start, capacity int) int {
	limit := start + capacity
	minEnd := start + capacity/2
	for _, find := range []func([]rune, int, int) int{paragraphBreak, sentenceEnd, whitespace} {
		if end := find(runes, start, limit); end > minEnd {
			return end
		}
	}
	return limit
}

// paragraphBreak returns the position just after the last "\n\n" ending at or before limit.
func paragraphBreak(runes []rune, start, limit int) int {
	for i := limit - 2; i >= start; i-- {
		if runes[i] == '\n' && runes[i+1] == '\n' {
			return i + 2
		}
	}
	return -1
}

// sentenceEnd returns the position just after the last sentence terminator and its trailing
// space, or after a single newline.
func sentenceEnd(runes []rune, start, limit int) int {
	for i := limit - 1; i >= start; i-- {
		switch runes[i] {
		case '\n':
			return i + 1
		case '.', '!', '?':
			if i+1 < limit && isSpace(runes[i+1]) {
				return i + 2
			}
		}
	}
	return -1
}

func whitespace(runes []rune, start, limit int) int {
	for i := limit - 1; i >= start; i-- {
		if isSpace(runes[i]) {
			return i + 1
		}
	}
	return -1
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
