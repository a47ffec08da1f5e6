package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gigbounty_http_requests_total",
		Help: "HTTP requests handled, by method, path prefix, and status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gigbounty_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Metrics records request counts and latency per route.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := routeLabel(r.URL.Path)
		requestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		requestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// routeLabel collapses task ids so the label set stays bounded.
func routeLabel(path string) string {
	const tasksPrefix = "/api/tasks/"
	if len(path) > len(tasksPrefix) && path[:len(tasksPrefix)] == tasksPrefix {
		rest := path[len(tasksPrefix):]
		for i := 0; i < len(rest); i++ {
			if rest[i] == '/' {
				return tasksPrefix + ":id" + rest[i:]
			}
		}
		return tasksPrefix + ":id"
	}
	const rolePrefix = "/api/wallet/role/"
	if len(path) > len(rolePrefix) && path[:len(rolePrefix)] == rolePrefix {
		return rolePrefix + ":wallet"
	}
	return path
}
