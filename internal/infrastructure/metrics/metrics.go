package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Generations
	RecordsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docgen_records_created_total",
			Help: "Total number of generation records created",
		},
	)
	GenerationStatusChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docgen_generation_status_changes_total",
			Help: "Number of generation status transitions",
		},
		[]string{"from", "to"},
	)
	ActiveGenerations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docgen_generations_active",
			Help: "Current number of in-flight generations",
		},
	)
	GenerationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docgen_generation_duration_seconds",
			Help:    "Histogram of end-to-end generation durations in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s..2048s
		},
		[]string{"result"}, // completed|failed
	)
	Retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docgen_retries_total",
			Help: "Retries by loop and reason",
		},
		[]string{"loop", "reason"}, // loop: inner|outer
	)

	// Validation
	ValidationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docgen_validation_runs_total",
			Help: "Number of content validation runs by result",
		},
		[]string{"result"}, // pass|parse_error|structural_error
	)

	// LLM
	LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docgen_llm_requests_total",
			Help: "Number of LLM attempts by model and outcome",
		},
		[]string{"model", "outcome"},
	)
	LLMLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docgen_llm_latency_seconds",
			Help:    "Latency of successful LLM calls",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s..256s
		},
		[]string{"model"},
	)
	LLMTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docgen_llm_tokens_total",
			Help: "Tokens consumed by kind",
		},
		[]string{"model", "kind"}, // prompt|completion
	)

	// Store ops
	StoreOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docgen_store_ops_total",
			Help: "Record store operations performed",
		},
		[]string{"backend", "op"}, // op: get|create|save|exists
	)

	// HTTP
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed.",
		},
		[]string{"method", "path"},
	)
	HTTPErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of HTTP request errors.",
		},
		[]string{"method", "path", "status"},
	)

	// Errors
	Errors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docgen_errors_total",
			Help: "Errors encountered in components",
		},
		[]string{"component", "type"},
	)
)

func init() {
	prometheus.MustRegister(
		// Generations
		RecordsCreated,
		GenerationStatusChanges,
		ActiveGenerations,
		GenerationDurationSeconds,
		Retries,
		// Validation
		ValidationRuns,
		// LLM
		LLMRequests,
		LLMLatencySeconds,
		LLMTokens,
		// Store
		StoreOps,
		// HTTP
		HTTPRequestDuration,
		HTTPRequests,
		HTTPErrors,
		// Errors
		Errors,
	)
}

// Generations
func IncRecordsCreated() {
	RecordsCreated.Inc()
}

func IncGenerationStatusChange(from, to string) {
	GenerationStatusChanges.WithLabelValues(from, to).Inc()
}

func IncActiveGenerations() {
	ActiveGenerations.Inc()
}

func DecActiveGenerations() {
	ActiveGenerations.Dec()
}

func ObserveGenerationDuration(result string, d time.Duration) {
	GenerationDurationSeconds.WithLabelValues(result).Observe(d.Seconds())
}

func IncRetry(loop, reason string) {
	Retries.WithLabelValues(loop, reason).Inc()
}

// Validation
func IncValidationRun(result string) {
	ValidationRuns.WithLabelValues(result).Inc()
}

// LLM
func IncLLMRequest(model, outcome string) {
	LLMRequests.WithLabelValues(model, outcome).Inc()
}

func ObserveLLMLatency(model string, d time.Duration) {
	LLMLatencySeconds.WithLabelValues(model).Observe(d.Seconds())
}

func AddTokens(model string, prompt, completion int) {
	if prompt > 0 {
		LLMTokens.WithLabelValues(model, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		LLMTokens.WithLabelValues(model, "completion").Add(float64(completion))
	}
}

// Store
func IncStoreOp(backend, op string) {
	StoreOps.WithLabelValues(backend, op).Inc()
}

// HTTP
func ObserveHTTPRequest(method, path string, status int, statusStr string, d time.Duration) {
	HTTPRequests.WithLabelValues(method, path).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, statusStr).Observe(d.Seconds())
	if status >= 400 {
		HTTPErrors.WithLabelValues(method, path, statusStr).Inc()
	}
}

// Errors
func IncError(component, typ string) {
	Errors.WithLabelValues(component, typ).Inc()
}
