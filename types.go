package vecrag

import (
	"github.com/kailas-cloud/vecrag/internal/chunker"
	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/loader"
)

// Retrieval defaults.
const (
	DefaultThreshold    = domain.DefaultThreshold
	DefaultTopK         = domain.DefaultTopK
	DefaultChunkSize    = domain.DefaultChunkSize
	DefaultChunkOverlap = domain.DefaultChunkOverlap
	DefaultCollection   = domain.DefaultCollectionName
	DefaultModel        = domain.DefaultModel
	DefaultDimensions   = domain.DefaultDimensions
)

// Chunking strategies.
const (
	ChunkRecursive = chunker.StrategyRecursive
	ChunkLangChain = chunker.StrategyLangChain
)

// Document is a unit of source text. Metadata is copied into every chunk.
type Document = domain.Document

// Chunk is a piece of a document produced by the splitter.
type Chunk = domain.Chunk

// QueryResult is a query hit. Score is the cosine distance: lower is closer.
type QueryResult = domain.QueryResult

// Input is either a single text or a list of documents.
type Input = domain.Input

// Text builds an input from one raw string.
func Text(s string) Input { return domain.TextInput(s) }

// Documents builds an input from documents, kept in order.
func Documents(docs ...Document) Input { return domain.DocumentsInput(docs...) }

// LoadFile reads a .txt, .md, .html or .pdf file into a Document whose
// metadata records its source path and format.
func LoadFile(path string) (Document, error) {
	return loader.LoadFile(path) //nolint:wrapcheck // errors already carry the path
}
