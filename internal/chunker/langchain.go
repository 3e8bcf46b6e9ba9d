package chunker

import (
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

// LangChain delegates splitting to langchaingo's recursive character splitter.
// Its overlap is best-effort; when langchaingo fails the window splitter takes over.
type LangChain struct {
	splitter textsplitter.RecursiveCharacter
	fallback *Recursive
	size     int
}

// NewLangChain creates a langchaingo-backed splitter.
func NewLangChain(size, overlap int) *LangChain {
	return &LangChain{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", "! ", "? ", " ", ""}),
			textsplitter.WithKeepSeparator(true),
		),
		fallback: NewRecursive(size, overlap),
		size:     size,
	}
}

// Split implements Splitter.
func (l *LangChain) Split(in domain.Input) []domain.Chunk {
	return splitDocuments(in, l.SplitText)
}

// SplitText splits one string. Text that already fits in one chunk is
// returned whole, whitespace included.
func (l *LangChain) SplitText(text string) []string {
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= l.size {
		return []string{text}
	}
	pieces, err := l.splitter.SplitText(text)
	if err != nil {
		return l.fallback.SplitText(text)
	}
	out := make([]string, 0, len(pieces))
	for _, p := range pieces {
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
