// Package chi exposes the retriever over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/loader"
	logpkg "github.com/kailas-cloud/vecrag/internal/logger"
	"github.com/kailas-cloud/vecrag/internal/metrics"
	healthuc "github.com/kailas-cloud/vecrag/internal/usecase/health"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest        = "bad_request"
	CodeValidationFailed  = "validation_failed"
	CodeConfiguration     = "configuration_error"
	CodeRateLimited       = "rate_limited"
	CodeEmbeddingProvider = "embedding_provider_error"
	CodeStoreUnavailable  = "vector_store_unavailable"
	CodeUnsupportedFormat = "unsupported_format"
	CodeInternal          = "internal_error"
)

const (
	defaultMaxUploadBytes = 32 << 20
	multipartMemory       = 8 << 20
)

// retriever is the consumer interface for the retrieval use case (ISP).
type retriever interface {
	Split(in domain.Input) []domain.Chunk
	IndexChunks(ctx context.Context, collection string, chunks []domain.Chunk) error
	QueryResults(ctx context.Context, collection, text string, threshold float64) ([]domain.QueryResult, error)
	Delete(ctx context.Context, collection string) error
}

type healthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server serves one collection.
type Server struct {
	retriever      retriever
	health         healthChecker
	collection     string
	maxUploadBytes int64
	logger         *zap.Logger
	errorHandlers  []errorHandler
}

// NewServer creates an HTTP API server bound to collection.
func NewServer(r retriever, health healthChecker, collection string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		retriever:      r,
		health:         health,
		collection:     collection,
		maxUploadBytes: defaultMaxUploadBytes,
		logger:         logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrConfiguration, http.StatusInternalServerError, CodeConfiguration),
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrUnsupportedFormat, http.StatusUnsupportedMediaType, CodeUnsupportedFormat),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingProvider),
		sentinelHandler(domain.ErrConnectivity, http.StatusServiceUnavailable, CodeStoreUnavailable),
	}
	return s
}

// WithMaxUploadBytes caps multipart uploads.
func (s *Server) WithMaxUploadBytes(n int64) *Server {
	if n > 0 {
		s.maxUploadBytes = n
	}
	return s
}

// Router builds the chi router with the standard middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(JSONRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEventMiddleware(s.logger))
	r.Use(metrics.Middleware("/metrics", "/health"))

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/chunks", s.Chunks)
		r.Post("/index", s.Index)
		r.Delete("/index", s.DeleteIndex)
		r.Post("/index/files", s.IndexFiles)
		r.Post("/query", s.Query)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeBadRequest, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})
	return r
}

// InputRequest carries either a raw text or a list of documents.
type InputRequest struct {
	Text      *string           `json:"text,omitempty"`
	Documents []DocumentRequest `json:"documents,omitempty"`
}

// DocumentRequest is one document of an InputRequest.
type DocumentRequest struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ChunkResponse is one chunk of a preview.
type ChunkResponse struct {
	Text     string            `json:"text"`
	Document int               `json:"document"`
	Index    int               `json:"index"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ChunksResponse is the chunk preview.
type ChunksResponse struct {
	Chunks []ChunkResponse `json:"chunks"`
	Total  int             `json:"total"`
}

// IndexResponse reports a completed rebuild.
type IndexResponse struct {
	Collection string   `json:"collection"`
	Chunks     int      `json:"chunks"`
	Files      []string `json:"files,omitempty"`
}

// QueryRequest is the body of POST /v1/query.
type QueryRequest struct {
	Query     string   `json:"query"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// QueryResultItem is one filtered hit.
type QueryResultItem struct {
	Text     string            `json:"text"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// QueryResponse is the body returned by POST /v1/query.
type QueryResponse struct {
	Results   []QueryResultItem `json:"results"`
	Threshold float64           `json:"threshold"`
}

// HealthResponse is the body returned by GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Chunks handles POST /v1/chunks.
func (s *Server) Chunks(w http.ResponseWriter, r *http.Request) {
	in, ok := s.decodeInput(w, r)
	if !ok {
		return
	}

	chunks := s.retriever.Split(in)
	items := make([]ChunkResponse, len(chunks))
	for i, c := range chunks {
		items[i] = ChunkResponse{Text: c.Text, Document: c.Document, Index: c.Index, Metadata: c.Metadata}
	}
	writeJSON(w, http.StatusOK, ChunksResponse{Chunks: items, Total: len(items)})
}

// Index handles POST /v1/index.
func (s *Server) Index(w http.ResponseWriter, r *http.Request) {
	in, ok := s.decodeInput(w, r)
	if !ok {
		return
	}
	s.index(w, r, in, nil)
}

// IndexFiles handles POST /v1/index/files with one or more multipart "file" parts.
func (s *Server) IndexFiles(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid multipart body: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, `at least one "file" part is required`)
		return
	}

	docs := make([]domain.Document, 0, len(headers))
	names := make([]string, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "cannot read "+h.Filename)
			return
		}
		doc, err := loader.Load(h.Filename, f, s.maxUploadBytes)
		_ = f.Close()
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		docs = append(docs, doc)
		names = append(names, h.Filename)
	}

	s.index(w, r, domain.DocumentsInput(docs...), names)
}

// DeleteIndex handles DELETE /v1/index.
func (s *Server) DeleteIndex(w http.ResponseWriter, r *http.Request) {
	if err := s.retriever.Delete(r.Context(), s.collection); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Query handles POST /v1/query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "query is required")
		return
	}
	threshold := domain.DefaultThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	ctx, usage := requestUsage(r)
	results, err := s.retriever.QueryResults(ctx, s.collection, req.Query, threshold)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]QueryResultItem, len(results))
	for i, res := range results {
		items[i] = QueryResultItem{Text: res.Text, Score: res.Score, Metadata: res.Metadata}
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, QueryResponse{Results: items, Threshold: threshold})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{Status: string(report.Status), Checks: checks})
}

func (s *Server) index(w http.ResponseWriter, r *http.Request, in domain.Input, files []string) {
	chunks := s.retriever.Split(in)

	ctx, usage := requestUsage(r)
	if err := s.retriever.IndexChunks(ctx, s.collection, chunks); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, IndexResponse{Collection: s.collection, Chunks: len(chunks), Files: files})
}

func (s *Server) decodeInput(w http.ResponseWriter, r *http.Request) (domain.Input, bool) {
	var req InputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return domain.Input{}, false
	}
	in, err := inputFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return domain.Input{}, false
	}
	return in, true
}

func inputFromRequest(req InputRequest) (domain.Input, error) {
	switch {
	case req.Text != nil && req.Documents != nil:
		return domain.Input{}, errors.New("text and documents are mutually exclusive")
	case req.Text != nil:
		return domain.TextInput(*req.Text), nil
	case req.Documents != nil:
		docs := make([]domain.Document, len(req.Documents))
		for i, d := range req.Documents {
			docs[i] = domain.Document{Content: d.Content, Metadata: d.Metadata}
		}
		return domain.DocumentsInput(docs...), nil
	default:
		return domain.Input{}, errors.New("either text or documents is required")
	}
}

// requestUsage returns the collector installed by WideEventMiddleware, or a
// fresh one when the handler runs without it.
func requestUsage(r *http.Request) (context.Context, *domain.Usage) {
	if u := domain.UsageFrom(r.Context()); u != nil {
		return r.Context(), u
	}
	return domain.WithUsage(r.Context())
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.Usage) {
	if usage != nil && usage.Calls > 0 {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.TotalTokens))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrConfiguration,
		domain.ErrInvalidInput,
		domain.ErrUnsupportedFormat,
		domain.ErrRateLimited,
		domain.ErrVectorDimMismatch,
		domain.ErrEmbeddingProviderError,
		domain.ErrConnectivity,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, safeDomainMessage(err))
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	log.Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
}
