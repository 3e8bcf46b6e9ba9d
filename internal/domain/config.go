package domain

// Retrieval defaults.
const (
	DefaultModel          = "text-embedding-ada-002"
	DefaultDimensions     = 1536
	DefaultTopK           = 4
	DefaultThreshold      = 1.0
	DefaultChunkSize      = 400
	DefaultChunkOverlap   = 80
	DefaultCollectionName = "documents"
)
