// Package chunker splits input text into overlapping, boundary-aware chunks.
package chunker

import (
	"fmt"
	"maps"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

// Strategy names accepted by New.
const (
	StrategyRecursive = "recursive"
	StrategyLangChain = "langchain"
)

// Splitter turns an input into chunks. It never fails on content.
type Splitter interface {
	Split(in domain.Input) []domain.Chunk
}

// Config selects and parameterizes a splitter. Lengths are in Unicode code points.
type Config struct {
	Strategy string
	Size     int
	Overlap  int
}

// DefaultConfig returns the recursive splitter with 400/80.
func DefaultConfig() Config {
	return Config{
		Strategy: StrategyRecursive,
		Size:     domain.DefaultChunkSize,
		Overlap:  domain.DefaultChunkOverlap,
	}
}

// Validate rejects sizes that cannot produce progress.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d: %w", c.Size, domain.ErrConfiguration)
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return fmt.Errorf("chunk overlap must be in [0, %d), got %d: %w", c.Size, c.Overlap, domain.ErrConfiguration)
	}
	return nil
}

// New builds the splitter named by cfg.Strategy. An empty strategy means recursive.
func New(cfg Config) (Splitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Strategy {
	case "", StrategyRecursive:
		return NewRecursive(cfg.Size, cfg.Overlap), nil
	case StrategyLangChain:
		return NewLangChain(cfg.Size, cfg.Overlap), nil
	default:
		return nil, fmt.Errorf("unknown chunking strategy %q: %w", cfg.Strategy, domain.ErrConfiguration)
	}
}

// splitDocuments applies split to every document of in and tags the pieces.
func splitDocuments(in domain.Input, split func(string) []string) []domain.Chunk {
	var out []domain.Chunk
	for di, doc := range in.Documents() {
		for ci, text := range split(doc.Content) {
			out = append(out, domain.Chunk{
				Text:     text,
				Document: di,
				Index:    ci,
				Metadata: maps.Clone(doc.Metadata),
			})
		}
	}
	if out == nil {
		return []domain.Chunk{}
	}
	return out
}

// Texts returns the chunk texts in order.
func Texts(chunks []domain.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}
