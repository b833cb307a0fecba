package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "healthbot"

var (
	// Terminal pipeline outcomes partitioned by result status
	PipelineOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_outcomes_total",
			Help:      "Inbound messages processed, by terminal status",
		},
		[]string{"status"},
	)

	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Time from dequeue to terminal state of an inbound message",
			Buckets:   prometheus.DefBuckets,
		},
	)

	Intents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_total",
			Help:      "Classified inbound messages, by intent",
		},
		[]string{"intent"},
	)

	// Reply sends that failed after retries, by failure class
	ReplyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reply_failures_total",
			Help:      "Replies that could not be delivered",
		},
		[]string{"class"},
	)

	PersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Inbound messages whose persistence exhausted its retries",
		},
	)

	BroadcastDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_deliveries_total",
			Help:      "Broadcast deliveries, by outcome",
		},
		[]string{"outcome"},
	)

	BroadcastJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_jobs_total",
			Help:      "Finalized broadcast jobs, by status",
		},
		[]string{"status"},
	)

	ConversationsClosed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversations_closed_total",
			Help:      "Conversations closed by the idle sweep",
		},
	)

	IntakeQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "intake_queue_depth",
			Help:      "Inbound messages waiting for a pipeline worker",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	httpInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTP records request metrics. route should be the matched pattern,
// not the raw path, to keep label cardinality low.
func ObserveHTTP(method, route string, status int, started time.Time) {
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	httpRequestsTotal.With(labels).Inc()
	httpRequestDuration.With(labels).Observe(time.Since(started).Seconds())
}

func HTTPInFlight() prometheus.Gauge {
	return httpInFlight
}
