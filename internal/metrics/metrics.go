// Package metrics holds the Prometheus instruments for the bridge. A private
// registry keeps the scrape output to our own series plus nothing else.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registry = prometheus.NewRegistry()

var (
	fetchTotal = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "huckleberry_fetch_total",
		Help: "Source fetches attempted, by record source.",
	}, []string{"source"})

	fetchErrors = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "huckleberry_fetch_errors_total",
		Help: "Source fetches that failed and contributed zero events.",
	}, []string{"source"})

	pollDuration = promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "huckleberry_poll_duration_seconds",
		Help:    "Wall time of one full poll cycle across all children.",
		Buckets: prometheus.DefBuckets,
	})

	pollsTotal = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "huckleberry_polls_total",
		Help: "Poll cycles run, by result.",
	}, []string{"result"})

	lastPollSuccess = promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Name: "huckleberry_last_poll_success_unix",
		Help: "Unix timestamp of the last fully successful poll.",
	})
)

// RecordFetch counts one attempted source fetch.
func RecordFetch(source string) {
	fetchTotal.WithLabelValues(source).Inc()
}

// RecordFetchError counts one failed source fetch.
func RecordFetchError(source string) {
	fetchErrors.WithLabelValues(source).Inc()
}

// RecordPoll records the outcome and duration of one poll cycle.
func RecordPoll(result string, seconds float64) {
	pollsTotal.WithLabelValues(result).Inc()
	pollDuration.Observe(seconds)
}

// SetLastPollSuccess stamps the last successful poll time.
func SetLastPollSuccess(unix int64) {
	lastPollSuccess.Set(float64(unix))
}

// Registry exposes the private registry for the /metrics handler.
func Registry() *prometheus.Registry {
	return registry
}
