package processor

import "fmt"

// Chunking defaults, measured in characters (runes).
const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// Span is one chunk of text with rune offsets into the source.
type Span struct {
	Start int
	End   int
	Text  string
}

// Chunker splits text into overlapping spans, preferring to end a span just after a
// sentence or line break found in its second half.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker validates size > overlap >= 0.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be > 0, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split returns the spans of text in order. Consecutive spans overlap and together cover
// every character; the next span starts overlap characters before the previous
// unclamped end.
func (c *Chunker) Split(text string) []Span {
	runes := []rune(text)
	n := len(runes)
	var spans []Span
	for start := 0; start < n; {
		end := start + c.size
		if end < n {
			if brk := lastBreak(runes, start, end); brk > start+c.size/2 {
				end = brk + 1
			}
		}
		clamped := min(end, n)
		spans = append(spans, Span{Start: start, End: clamped, Text: string(runes[start:clamped])})

		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return spans
}

// lastBreak returns the index of the last '.' or '\n' in runes[start:end], or -1.
func lastBreak(runes []rune, start, end int) int {
	for i := end - 1; i >= start; i-- {
		if runes[i] == '.' || runes[i] == '\n' {
			return i
		}
	}
	return -1
}
