package metrics

import "github.com/prometheus/client_golang/prometheus"

// Embedding provider collectors. Labels: provider, model.
var (
	EmbeddingRequestsTotal = counterVec("embedding_requests_total",
		"Embedding API calls by outcome", "provider", "model", "status")

	EmbeddingRequestDuration = histogramVec("embedding_request_duration_seconds",
		"Embedding API call latency",
		[]float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}, "provider", "model")

	// type is "prompt" or "total".
	EmbeddingTokensTotal = counterVec("embedding_tokens_total",
		"Tokens billed by the embedding provider", "provider", "model", "type")

	EmbeddingErrorsTotal = counterVec("embedding_errors_total",
		"Failed embedding API calls by failure kind", "provider", "model", "error_type")

	EmbeddingBatchSize = histogramVec("embedding_batch_size",
		"Chunks sent per embedding API call",
		[]float64{1, 4, 16, 64, 128, 256, 512}, "provider", "model")

	// result is "hit" or "miss".
	EmbeddingCacheTotal = counterVec("embedding_cache_total",
		"Embedding cache lookups", "result")
)

var embedding = group{collectors: []prometheus.Collector{
	EmbeddingRequestsTotal,
	EmbeddingRequestDuration,
	EmbeddingTokensTotal,
	EmbeddingErrorsTotal,
	EmbeddingBatchSize,
	EmbeddingCacheTotal,
}}

// RegisterEmbeddingMetrics registers the embedding collectors. Safe to call more than once.
func RegisterEmbeddingMetrics() { embedding.register() }
