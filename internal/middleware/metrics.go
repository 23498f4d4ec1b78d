package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API metrics
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "charades_client_api_requests_total",
		Help: "Total number of API requests",
	}, []string{"path", "status"})

	// Inference metrics
	inferenceRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "charades_client_inference_request_duration_seconds",
		Help:    "Duration of inference requests, submission through terminal outcome",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode", "status"})

	inferenceRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "charades_client_inference_requests_total",
		Help: "Total number of inference requests",
	}, []string{"mode", "status"})

	pollTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "charades_client_job_poll_ticks_total",
		Help: "Total number of job status poll requests",
	})

	jobOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "charades_client_jobs_total",
		Help: "Total number of async jobs by terminal outcome",
	}, []string{"outcome"})

	// Chat metrics
	chatMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "charades_client_chat_messages_total",
		Help: "Total number of chat messages appended",
	}, []string{"role"})

	// Cache metrics
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "charades_client_cache_hits_total",
		Help: "Total number of response cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "charades_client_cache_misses_total",
		Help: "Total number of response cache misses",
	})

	// Rate limit metrics
	rateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "charades_client_rate_limit_exceeded_total",
		Help: "Total number of rate limit exceeded events",
	}, []string{"user"})

	// Store metrics
	storeOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "charades_client_store_operations_total",
		Help: "Total number of session store operations",
	}, []string{"operation", "status"})
)

// Metrics provides methods to record metrics
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordAPIRequest records an API request
func (m *Metrics) RecordAPIRequest(path, status string) {
	apiRequestsTotal.WithLabelValues(path, status).Inc()
}

// RecordInference records an inference request. mode is "sync" or "async".
func (m *Metrics) RecordInference(mode, status string, duration time.Duration) {
	inferenceRequestDuration.WithLabelValues(mode, status).Observe(duration.Seconds())
	inferenceRequestsTotal.WithLabelValues(mode, status).Inc()
}

// RecordPollTick records one job status poll
func (m *Metrics) RecordPollTick() {
	pollTicks.Inc()
}

// RecordJobOutcome records a job reaching a terminal outcome
func (m *Metrics) RecordJobOutcome(outcome string) {
	jobOutcomes.WithLabelValues(outcome).Inc()
}

// RecordChatMessage records a message appended to the conversation
func (m *Metrics) RecordChatMessage(role string) {
	chatMessages.WithLabelValues(role).Inc()
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit() {
	cacheHits.Inc()
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss() {
	cacheMisses.Inc()
}

// RecordRateLimitExceeded records a rate limit exceeded event
func (m *Metrics) RecordRateLimitExceeded(user string) {
	rateLimitExceeded.WithLabelValues(user).Inc()
}

// RecordStoreOperation records a session store operation
func (m *Metrics) RecordStoreOperation(operation, status string) {
	storeOperations.WithLabelValues(operation, status).Inc()
}

// StartMetricsServer starts the metrics HTTP server
func StartMetricsServer(port int, path string) error {
	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler())

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
