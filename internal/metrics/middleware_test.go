package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newRouter(skip ...string) chi.Router {
	r := chi.NewRouter()
	r.Use(Middleware(skip...))
	r.Post("/v1/query", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	})
	r.Post("/v1/index", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	r.Delete("/v1/index", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# scrape"))
	})
	r.Get("/boom", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	return r
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, http.NoBody))
	return rr
}

func TestMiddleware_LabelsByRouteAndStatus(t *testing.T) {
	r := newRouter()

	tests := []struct {
		method, path, route, status string
	}{
		{http.MethodPost, "/v1/query", "/v1/query", "200"},
		{http.MethodPost, "/v1/index", "/v1/index", "202"},
		{http.MethodDelete, "/v1/index", "/v1/index", "204"},
		{http.MethodGet, "/boom", "/boom", "500"},
	}
	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			counter := httpRequestsTotal.WithLabelValues(tc.method, tc.route, tc.status)
			before := testutil.ToFloat64(counter)

			serve(r, tc.method, tc.path)

			if got := testutil.ToFloat64(counter) - before; got != 1 {
				t.Errorf("requests_total delta = %v, want 1", got)
			}
		})
	}

	if testutil.CollectAndCount(httpRequestDuration) == 0 {
		t.Error("expected latency observations")
	}
}

func TestMiddleware_UnmatchedRoute(t *testing.T) {
	r := newRouter()
	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404")
	before := testutil.ToFloat64(counter)

	if rr := serve(r, http.MethodGet, "/nope/123"); rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("unmatched delta = %v, want 1", got)
	}
}

func TestMiddleware_SkipsPaths(t *testing.T) {
	r := newRouter("/metrics")
	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "/metrics", "200")
	before := testutil.ToFloat64(counter)

	rr := serve(r, http.MethodGet, "/metrics")
	if rr.Body.String() != "# scrape" {
		t.Errorf("skipped route must still be served, got %q", rr.Body.String())
	}
	if after := testutil.ToFloat64(counter); after != before {
		t.Errorf("skipped path recorded: %v -> %v", before, after)
	}
}

func TestRegister_Idempotent(t *testing.T) {
	RegisterRetrieverMetrics()
	RegisterRetrieverMetrics()
	RegisterEmbeddingMetrics()
	RegisterEmbeddingMetrics()

	RetrieverOperationsTotal.WithLabelValues("query", "success").Inc()
	if got := testutil.ToFloat64(RetrieverOperationsTotal.WithLabelValues("query", "success")); got < 1 {
		t.Errorf("expected counter >= 1, got %v", got)
	}
}
