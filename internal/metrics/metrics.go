// Package metrics provides Prometheus instrumentation for the worker and the API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CommandsTotal counts executed commands by kind and outcome (ok, rejected).
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dailytrade_commands_total",
		Help: "Commands executed by the economy engine",
	}, []string{"kind", "outcome"})

	// GemsMoved tracks gems debited or credited by trades and loans.
	GemsMoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dailytrade_gems_moved_total",
		Help: "Gems moved by buy, sell, loan, pay and interest",
	}, []string{"kind"})

	NewPlayers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dailytrade_new_players_total",
		Help: "Players bootstrapped with starting gems",
	})

	// OracleRequests counts post count lookups by cache tier that answered (memory, store,
	// redis, source) and failures.
	OracleRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dailytrade_oracle_requests_total",
		Help: "Post count lookups by answering tier",
	}, []string{"tier"})

	OracleRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dailytrade_oracle_retries_total",
		Help: "Retried post count queries",
	})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dailytrade_cycle_duration_seconds",
		Help:    "Duration of a full daily cycle",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	// CyclesTotal counts cycles by result (ok, failed).
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dailytrade_cycles_total",
		Help: "Daily cycles by result",
	}, []string{"result"})

	CommentsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dailytrade_comments_processed_total",
		Help: "Comments executed by the cycle runner",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dailytrade_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dailytrade_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics labelled with the chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
