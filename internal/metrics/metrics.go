// Package metrics exposes Prometheus collectors for the link resolver.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
	OutcomeEmpty   = "empty"
	OutcomeTimeout = "timeout"
)

var (
	resolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkresolver_resolutions_total",
			Help: "Total number of link resolutions, labeled by the strategy that produced the record.",
		},
		[]string{"strategy"},
	)

	strategyAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkresolver_strategy_attempts_total",
			Help: "Total number of acquisition strategy attempts, labeled by strategy and outcome.",
		},
		[]string{"strategy", "outcome"},
	)

	marketplaceAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkresolver_marketplace_attempts_total",
			Help: "Total number of marketplace endpoint attempts, labeled by marketplace and outcome.",
		},
		[]string{"marketplace", "outcome"},
	)

	marketplaceAttemptDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "linkresolver_marketplace_attempt_duration_seconds",
			Help:    "Histogram of marketplace endpoint attempt latencies.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"marketplace"},
	)

	pageFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkresolver_page_fetches_total",
			Help: "Total number of product page fetches, labeled by fetcher and outcome.",
		},
		[]string{"fetcher", "outcome"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "route"},
	)

	rateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "linkresolver_rate_limit_delays_seconds",
			Help:    "Histogram of rate limit wait durations before marketplace calls.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"host"},
	)
)

// SanitizeSite extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveResolution counts a finished resolution by its winning strategy.
func ObserveResolution(strategy string) {
	resolutionsTotal.WithLabelValues(strategy).Inc()
}

// ObserveStrategy counts a single strategy attempt.
func ObserveStrategy(strategy, outcome string) {
	strategyAttemptsTotal.WithLabelValues(strategy, outcome).Inc()
}

// ObserveMarketplaceAttempt records one marketplace endpoint attempt.
func ObserveMarketplaceAttempt(marketplace, outcome string, duration time.Duration) {
	marketplaceAttemptsTotal.WithLabelValues(marketplace, outcome).Inc()
	marketplaceAttemptDurationSeconds.WithLabelValues(marketplace).Observe(duration.Seconds())
}

// ObservePageFetch counts a product page fetch.
func ObservePageFetch(fetcher, outcome string) {
	pageFetchesTotal.WithLabelValues(fetcher, outcome).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}
