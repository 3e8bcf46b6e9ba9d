package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retriever collectors. operation is "index" or "query".
var (
	RetrieverOperationsTotal = counterVec("retriever_operations_total",
		"Index and query operations by outcome", "operation", "status")

	RetrieverOperationDuration = histogramVec("retriever_operation_duration_seconds",
		"Index and query duration, embedding included",
		[]float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}, "operation")

	RetrieverChunksIndexed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retriever_chunks_indexed_total",
		Help:      "Chunks written by successful index operations",
	})

	RetrieverQueryHits = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "retriever_query_hits",
		Help:      "Results returned per query after threshold filtering",
		Buckets:   []float64{0, 1, 2, 3, 4, 8, 16},
	})
)

var retrieval = group{collectors: []prometheus.Collector{
	RetrieverOperationsTotal,
	RetrieverOperationDuration,
	RetrieverChunksIndexed,
	RetrieverQueryHits,
}}

// RegisterRetrieverMetrics registers the retriever collectors. Safe to call more than once.
func RegisterRetrieverMetrics() { retrieval.register() }
