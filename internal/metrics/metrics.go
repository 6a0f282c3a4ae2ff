// Package metrics exposes Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	documentsDiscoveredTotal   *prometheus.CounterVec
	documentsProcessedTotal    *prometheus.CounterVec
	chunksWrittenTotal         prometheus.Counter
	crawlRunsTotal             *prometheus.CounterVec
	complianceDenialsTotal     *prometheus.CounterVec
	rateLimitedTotal           *prometheus.CounterVec
	fetchesTotal               *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		documentsDiscoveredTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_documents_discovered_total",
				Help: "Documents inserted on first sighting, labeled by source and channel (feed/page).",
			},
			[]string{"source", "channel"},
		)

		documentsProcessedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_documents_processed_total",
				Help: "Documents that left the pending state, labeled by terminal status.",
			},
			[]string{"status"},
		)

		chunksWrittenTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_chunks_written_total",
				Help: "Total number of document chunks persisted.",
			},
		)

		crawlRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_crawl_runs_total",
				Help: "Orchestrated crawl runs, labeled by organization and terminal status.",
			},
			[]string{"organization", "status"},
		)

		complianceDenialsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_compliance_denials_total",
				Help: "URLs denied by the compliance gate, labeled by rule kind.",
			},
			[]string{"kind"},
		)

		rateLimitedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_rate_limited_total",
				Help: "Requests rejected by the per-domain rate limiter.",
			},
			[]string{"domain"},
		)

		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_fetches_total",
				Help: "Outbound fetches, labeled by site and status class.",
			},
			[]string{"site", "status"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_fetch_duration_seconds",
				Help:    "Histogram of outbound fetch latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of admin HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of admin HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
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

// StatusClass buckets an HTTP status code ("2xx", "4xx", ...). Zero means a network error.
func StatusClass(code int) string {
	if code <= 0 {
		return "error"
	}
	return strconv.Itoa(code/100) + "xx"
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveDiscovered counts documents inserted by the feed ingester or page scraper.
func ObserveDiscovered(source, channel string, n int) {
	if n <= 0 {
		return
	}
	Init()
	documentsDiscoveredTotal.WithLabelValues(source, channel).Add(float64(n))
}

// ObserveProcessed counts a document leaving the pending state and the chunks it produced.
func ObserveProcessed(status string, chunks int) {
	Init()
	documentsProcessedTotal.WithLabelValues(status).Inc()
	if chunks > 0 {
		chunksWrittenTotal.Add(float64(chunks))
	}
}

// ObserveCrawlRun counts a completed crawl run.
func ObserveCrawlRun(organization, status string) {
	Init()
	crawlRunsTotal.WithLabelValues(organization, status).Inc()
}

// ObserveComplianceDenial counts a gate denial by rule kind (deny, allow, robots, invalid).
func ObserveComplianceDenial(kind string) {
	Init()
	complianceDenialsTotal.WithLabelValues(kind).Inc()
}

// ObserveRateLimited counts a rejected TryAcquire.
func ObserveRateLimited(domain string) {
	Init()
	rateLimitedTotal.WithLabelValues(domain).Inc()
}

// ObserveFetch records an outbound fetch outcome and latency.
func ObserveFetch(rawURL string, statusCode int, duration time.Duration) {
	Init()
	site := SanitizeSite(rawURL)
	fetchesTotal.WithLabelValues(site, StatusClass(statusCode)).Inc()
	fetchDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the admin HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
