// Package metrics exposes Prometheus instrumentation for the request
// pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresh outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	// Requests counts dispatched HTTP requests by method and status
	// code. Retried requests count twice, once per dispatch.
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grocery_client_requests_total",
		Help: "Outbound API requests by method and response status code.",
	}, []string{"method", "code"})

	// RequestErrors counts requests that failed before a response
	// arrived (transport errors, timeouts).
	RequestErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "grocery_client_request_errors_total",
		Help: "Outbound API requests that failed at the transport level.",
	})

	// Retries counts requests replayed after a successful token
	// refresh. At most one retry happens per original request.
	Retries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "grocery_client_request_retries_total",
		Help: "Requests replayed after an expired session was refreshed.",
	})

	// Refreshes counts token refresh attempts by outcome. Coalesced
	// callers share one attempt, so this tracks actual server calls.
	Refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grocery_client_token_refreshes_total",
		Help: "Token refresh calls by outcome.",
	}, []string{"outcome"})
)

// Handler returns the scrape endpoint for the default registry. The
// CLI mounts it when a metrics address is configured.
func Handler() http.Handler {
	return promhttp.Handler()
}
