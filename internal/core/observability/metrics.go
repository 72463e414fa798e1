package observability

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var enabled atomic.Bool

func Init(r prometheus.Registerer, isEnabled bool) {
	enabled.Store(isEnabled)
	if !isEnabled || r == nil {
		return
	}
	initCollectors(r)
}

func Enabled() bool { return enabled.Load() }

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	upstreamLatencySeconds     *prometheus.HistogramVec
	runsTotal                  *prometheus.CounterVec
	runDurationSeconds         *prometheus.HistogramVec
	featuresEmittedTotal       *prometheus.CounterVec
	featureEmitDurationSeconds prometheus.Histogram
	tagErrorsTotal             *prometheus.CounterVec
	runQueueDepth              prometheus.Gauge
)

func initCollectors(r prometheus.Registerer) {
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total number of HTTP requests."},
		[]string{"method", "route", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "Duration of HTTP requests in seconds.", Buckets: prometheus.ExponentialBuckets(0.005, 2, 12)},
		[]string{"method", "route", "status"},
	)
	upstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "upstream_latency_seconds", Help: "Latency of calls to the upstream Overpass endpoint in seconds.", Buckets: prometheus.ExponentialBuckets(0.05, 2, 14)},
		[]string{"upstream"},
	)
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "runs_total", Help: "Total number of campaign runs by terminal result."},
		[]string{"result"},
	)
	runDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "run_duration_seconds", Help: "End-to-end duration of a campaign run in seconds.", Buckets: prometheus.ExponentialBuckets(0.5, 2, 14)},
		[]string{"result"},
	)
	featuresEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "features_emitted_total", Help: "Count of output features emitted by element kind."},
		[]string{"kind"},
	)
	featureEmitDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "feature_emit_duration_seconds", Help: "Time spent assembling and writing a single output feature.", Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16)},
	)
	tagErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tag_errors_total", Help: "Count of unmatched secondary search constraints by kind."},
		[]string{"kind"},
	)
	runQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "run_queue_depth", Help: "Current number of runs waiting in the supervisor queue."},
	)

	r.MustRegister(
		httpRequestsTotal, httpRequestDurationSeconds, upstreamLatencySeconds,
		runsTotal, runDurationSeconds,
		featuresEmittedTotal, featureEmitDurationSeconds, tagErrorsTotal,
		runQueueDepth,
	)
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	if !enabled.Load() || httpRequestsTotal == nil {
		return
	}
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	if !enabled.Load() || upstreamLatencySeconds == nil {
		return
	}
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

// ObserveRun records a run's result label (the supervisor passes "ok" or a
// failure label such as "fetch_failed" or "parse_failed") and its
// wall-clock duration.
func ObserveRun(result string, durationSeconds float64) {
	if !enabled.Load() || runsTotal == nil {
		return
	}
	if result == "" {
		result = "unknown"
	}
	runsTotal.WithLabelValues(result).Inc()
	runDurationSeconds.WithLabelValues(result).Observe(durationSeconds)
}

func AddFeaturesEmitted(kind string, n int) {
	if !enabled.Load() || featuresEmittedTotal == nil || n <= 0 {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	featuresEmittedTotal.WithLabelValues(kind).Add(float64(n))
}

func ObserveFeatureEmit(durationSeconds float64) {
	if !enabled.Load() || featureEmitDurationSeconds == nil {
		return
	}
	featureEmitDurationSeconds.Observe(durationSeconds)
}

func IncTagError(kind string) {
	if !enabled.Load() || tagErrorsTotal == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	tagErrorsTotal.WithLabelValues(kind).Inc()
}

func SetRunQueueDepth(n int) {
	if !enabled.Load() || runQueueDepth == nil {
		return
	}
	runQueueDepth.Set(float64(n))
}
