package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestDuration = histogramVec("http_request_duration_seconds",
		"Request latency of the vecragd HTTP API",
		[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		"method", "route", "status")

	httpRequestsTotal = counterVec("http_requests_total",
		"Requests served by the vecragd HTTP API", "method", "route", "status")
)

func init() {
	prometheus.MustRegister(httpRequestDuration, httpRequestsTotal)
}

// Middleware records request count and latency labelled by chi route pattern.
// Paths listed in skip pass through unrecorded.
func Middleware(skip ...string) func(next http.Handler) http.Handler {
	ignored := make(map[string]bool, len(skip))
	for _, p := range skip {
		ignored[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ignored[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			labels := prometheus.Labels{
				"method": r.Method,
				"route":  routeOf(r),
				"status": strconv.Itoa(statusOf(ww)),
			}
			httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
			httpRequestsTotal.With(labels).Inc()
		})
	}
}

// routeOf keeps label cardinality bounded: unmatched requests share one label.
func routeOf(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func statusOf(ww chimw.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}
