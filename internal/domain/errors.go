package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectivity signals that the vector store could not be reached or rejected a command.
	ErrConnectivity = errors.New("vector store unavailable")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrRateLimited signals a rate limit hit on the embedding provider.
	ErrRateLimited = errors.New("rate limited")
	// ErrConfiguration signals missing or invalid settings (API key, dimensions, chunking).
	ErrConfiguration = errors.New("invalid configuration")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrInvalidInput signals a malformed index or query request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnsupportedFormat signals a document format no loader understands.
	ErrUnsupportedFormat = errors.New("unsupported document format")
)

// IndexError reports a failed Index call on a collection.
type IndexError struct {
	Collection string
	Err        error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index collection %q: %v", e.Collection, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

// QueryError reports a failed Query call on a collection.
type QueryError struct {
	Collection string
	Err        error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query collection %q: %v", e.Collection, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }
