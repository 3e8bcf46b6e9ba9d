package chunker

import "github.com/kailas-cloud/vecrag/internal/domain"

// separatorLevels lists cut points from coarsest to finest. Separators on one
// level compete on position; the latest one inside the window wins.
var separatorLevels = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? "},
	{" "},
}

// Recursive is a sliding-window splitter that prefers to cut after paragraph,
// line, sentence or word boundaries and falls back to a hard cut at the window size.
//
// Consecutive chunks of one document overlap by exactly Overlap code points and
// separators stay attached to the chunk they end, so dropping the overlap from
// every chunk but the first reproduces the document.
type Recursive struct {
	size    int
	overlap int
	levels  [][][]rune
}

// NewRecursive creates a splitter. Callers validate size and overlap via Config.
func NewRecursive(size, overlap int) *Recursive {
	levels := make([][][]rune, len(separatorLevels))
	for i, lvl := range separatorLevels {
		for _, sep := range lvl {
			levels[i] = append(levels[i], []rune(sep))
		}
	}
	return &Recursive{size: size, overlap: overlap, levels: levels}
}

// Split implements Splitter.
func (s *Recursive) Split(in domain.Input) []domain.Chunk {
	return splitDocuments(in, s.SplitText)
}

// SplitText splits one string.
func (s *Recursive) SplitText(text string) []string {
	r := []rune(text)
	n := len(r)
	if n == 0 {
		return nil
	}
	if n <= s.size {
		return []string{text}
	}

	var out []string
	start := 0
	for n-start > s.size {
		end := s.cut(r, start)
		out = append(out, string(r[start:end]))
		start = end - s.overlap
	}
	return append(out, string(r[start:]))
}

// cut picks the end of the chunk starting at start. The minimum keeps the
// next start strictly ahead of this one and avoids tiny chunks.
func (s *Recursive) cut(r []rune, start int) int {
	hi := start + s.size
	lo := start + max(s.overlap+1, s.size/2)

	for _, level := range s.levels {
		for p := hi; p >= lo; p-- {
			for _, sep := range level {
				if endsWith(r, p, sep) {
					return p
				}
			}
		}
	}
	return hi
}

func endsWith(r []rune, p int, sep []rune) bool {
	if p < len(sep) {
		return false
	}
	for i, c := range sep {
		if r[p-len(sep)+i] != c {
			return false
		}
	}
	return true
}
