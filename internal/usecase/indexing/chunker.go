package indexing

import "strings"

// Chunking defaults.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultMaxWhole     = 4000
)

// Chunker splits article text into overlapping windows measured in runes.
// Text up to MaxWhole runes is kept as a single chunk.
type Chunker struct {
	Size     int
	Overlap  int
	MaxWhole int
}

// DefaultChunker returns the chunker used for law ingestion.
func DefaultChunker() Chunker {
	return Chunker{Size: DefaultChunkSize, Overlap: DefaultChunkOverlap, MaxWhole: DefaultMaxWhole}
}

func (c Chunker) normalized() Chunker {
	if c.Size <= 0 {
		c.Size = DefaultChunkSize
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		c.Overlap = 0
	}
	if c.MaxWhole < 0 {
		c.MaxWhole = 0
	}
	return c
}

// Split returns the chunks of text. Every chunk of a split text is at most
// Size runes; consecutive windows share Overlap runes. Cuts prefer a newline,
// then a space, in the second half of the window, and overlapping windows
// start on a word boundary.
func (c Chunker) Split(text string) []string {
	c = c.normalized()
	text = strings.TrimSpace(text)
	r := []rune(text)
	if len(r) == 0 {
		return nil
	}
	if len(r) <= c.MaxWhole || len(r) <= c.Size {
		return []string{text}
	}

	var out []string
	for start := 0; start < len(r); {
		end := min(start+c.Size, len(r))
		if end < len(r) {
			if cut := lastBreak(r, start+c.Size/2, end); cut > 0 {
				end = cut
			}
		}
		if s := strings.TrimSpace(string(r[start:end])); s != "" {
			out = append(out, s)
		}
		if end == len(r) {
			break
		}
		next := end - c.Overlap
		if c.Overlap > 0 {
			next = alignStart(r, next, end)
		}
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// lastBreak returns the index just past the last separator in r[lo:hi], or 0.
func lastBreak(r []rune, lo, hi int) int {
	for _, sep := range []rune{'\n', ' '} {
		for i := hi - 1; i >= lo; i-- {
			if r[i] == sep {
				return i + 1
			}
		}
	}
	return 0
}

// alignStart moves i forward to the start of the next word, staying below hi.
// Text without separators keeps i.
func alignStart(r []rune, i, hi int) int {
	if i == 0 || isSep(r[i-1]) {
		return i
	}
	for j := i; j < hi; j++ {
		if isSep(r[j]) {
			return j + 1
		}
	}
	return i
}

func isSep(r rune) bool { return r == '\n' || r == ' ' }
