package vecrag

import "github.com/kailas-cloud/vecrag/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrConnectivity           = domain.ErrConnectivity
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
	ErrRateLimited            = domain.ErrRateLimited
	ErrConfiguration          = domain.ErrConfiguration
	ErrVectorDimMismatch      = domain.ErrVectorDimMismatch
	ErrInvalidInput           = domain.ErrInvalidInput
	ErrUnsupportedFormat      = domain.ErrUnsupportedFormat
)

// IndexError reports a failed Index call. Use errors.As() to get the collection.
type IndexError = domain.IndexError

// QueryError reports a failed Query call. Use errors.As() to get the collection.
type QueryError = domain.QueryError
