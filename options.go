package vecrag

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	conn Connection

	embedder      Embedder
	openAI        openAIConfig
	docPrefix     string
	queryPrefix   string
	maxBatchSize  int
	chunkStrategy string
	chunkSize     int
	chunkOverlap  int

	collection       string
	vectorDimensions int
	hnswM            int
	hnswEFConstruct  int

	logger     *zap.Logger
	metricsReg prometheus.Registerer
}

type openAIConfig struct {
	apiKey  string
	model   string
	baseURL string
}

// WithConnection sets the vector store to use.
// Without it the client uses DefaultConnection.
func WithConnection(c Connection) Option {
	return optionFunc(func(cfg *clientConfig) {
		cfg.conn = c
	})
}

// WithEmbedder sets a custom embedding provider. It takes precedence over WithOpenAI.
// If e also implements BatchEmbedder, indexing embeds chunks in batches.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithOpenAI configures the built-in OpenAI embedder.
// An empty apiKey or model falls back to OPENAI_API_KEY and OPENAI_EMBEDDING_MODEL.
func WithOpenAI(apiKey, model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.openAI.apiKey = apiKey
		c.openAI.model = model
	})
}

// WithOpenAIBaseURL points the built-in embedder at an OpenAI-compatible endpoint.
func WithOpenAIBaseURL(url string) Option {
	return optionFunc(func(c *clientConfig) {
		c.openAI.baseURL = url
	})
}

// WithInstructions prepends fixed instructions to document and query texts
// before embedding. Instruction-tuned models need them; OpenAI models do not.
func WithInstructions(document, query string) Option {
	return optionFunc(func(c *clientConfig) {
		c.docPrefix = document
		c.queryPrefix = query
	})
}

// WithMaxBatchSize caps the number of texts per embedding API call. Default: 256.
func WithMaxBatchSize(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxBatchSize = n
	})
}

// WithChunking sets the chunk size and overlap in characters. Defaults: 400 and 80.
func WithChunking(size, overlap int) Option {
	return optionFunc(func(c *clientConfig) {
		c.chunkSize = size
		c.chunkOverlap = overlap
	})
}

// WithChunkingStrategy selects the splitter: ChunkRecursive (default) or ChunkLangChain.
func WithChunkingStrategy(strategy string) Option {
	return optionFunc(func(c *clientConfig) {
		c.chunkStrategy = strategy
	})
}

// WithCollection sets the collection the client reads and writes.
// Default: "documents".
func WithCollection(name string) Option {
	return optionFunc(func(c *clientConfig) {
		c.collection = name
	})
}

// WithVectorDimensions sets the embedding size. Default: 1536 (ada-002).
func WithVectorDimensions(dim int) Option {
	return optionFunc(func(c *clientConfig) {
		c.vectorDimensions = dim
	})
}

// WithHNSW configures HNSW index parameters on Redis/Valkey.
// Defaults: M=16, EFConstruct=200.
func WithHNSW(m, efConstruct int) Option {
	return optionFunc(func(c *clientConfig) {
		c.hnswM = m
		c.hnswEFConstruct = efConstruct
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default).
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
