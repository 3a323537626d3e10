// Package observability exposes Prometheus collectors shared by the trackme services.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	fixesAcceptedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trackme",
		Subsystem: "tracking",
		Name:      "fixes_accepted_total",
		Help:      "Number of location fixes persisted as samples.",
	})
	fixesRejectedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trackme",
		Subsystem: "tracking",
		Name:      "fixes_rejected_total",
		Help:      "Number of location fixes dropped, labeled by reason.",
	}, []string{"reason"})
	lastFixGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "trackme",
		Subsystem: "tracking",
		Name:      "last_fix_recorded_timestamp_seconds",
		Help:      "Unix timestamp of the most recent location sample persisted.",
	})
	summaryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "trackme",
		Subsystem: "summary",
		Name:      "build_duration_seconds",
		Help:      "Time spent fetching and aggregating a weekly summary.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	})
	fetchFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trackme",
		Subsystem: "summary",
		Name:      "fetch_failures_total",
		Help:      "Number of collaborator queries that degraded to an empty bucket, labeled by source.",
	}, []string{"source"})
	cacheCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trackme",
		Subsystem: "summary",
		Name:      "cache_lookups_total",
		Help:      "Summary cache lookups labeled by result (hit, miss, error).",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(fixesAcceptedCounter, fixesRejectedCounter, lastFixGauge, summaryDuration, fetchFailureCounter, cacheCounter)
}

// RecordFixAccepted counts a persisted sample and moves the watermark gauge.
func RecordFixAccepted(ts time.Time) {
	fixesAcceptedCounter.Inc()
	if !ts.IsZero() {
		lastFixGauge.Set(float64(ts.Unix()))
	}
}

// RecordFixRejected counts a dropped fix.
func RecordFixRejected(reason string) {
	fixesRejectedCounter.WithLabelValues(reason).Inc()
}

// ObserveSummary records how long a summary took to build.
func ObserveSummary(d time.Duration) {
	summaryDuration.Observe(d.Seconds())
}

// RecordFetchFailure counts a degraded collaborator query.
func RecordFetchFailure(source string) {
	fetchFailureCounter.WithLabelValues(source).Inc()
}

// RecordCacheLookup counts a summary cache lookup.
func RecordCacheLookup(result string) {
	cacheCounter.WithLabelValues(result).Inc()
}

// FetchFailures returns the counter for source. Exposed for tests.
func FetchFailures(source string) prometheus.Counter {
	return fetchFailureCounter.WithLabelValues(source)
}

// FixesRejected returns the counter for reason. Exposed for tests.
func FixesRejected(reason string) prometheus.Counter {
	return fixesRejectedCounter.WithLabelValues(reason)
}
