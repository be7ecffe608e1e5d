// Package metrics exposes Prometheus instrumentation for the feed pollers.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle outcomes
const (
	ResultCommitted = "committed"
	ResultFailed    = "failed"
	ResultClosed    = "closed"
)

var (
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wikibot",
		Name:      "diff_cycles_total",
		Help:      "Diff cycles run per feed, by result",
	}, []string{"feed", "result"})

	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wikibot",
		Name:      "diff_events_total",
		Help:      "Diff events emitted per feed, by kind",
	}, []string{"feed", "kind"})

	snapshotKeys = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "wikibot",
		Name:      "snapshot_keys",
		Help:      "Keys in the last committed snapshot of each feed",
	}, []string{"feed"})

	cycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "wikibot",
		Name:      "diff_cycle_duration_seconds",
		Help:      "Wall time of one refresh and diff",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"feed"})
)

// ObserveCycle records the outcome of one diff cycle.
func ObserveCycle(feed, result string, added, removed, size int, took time.Duration) {
	cyclesTotal.WithLabelValues(feed, result).Inc()
	cycleDuration.WithLabelValues(feed).Observe(took.Seconds())
	if result == ResultFailed {
		return
	}
	eventsTotal.WithLabelValues(feed, "added").Add(float64(added))
	eventsTotal.WithLabelValues(feed, "removed").Add(float64(removed))
	snapshotKeys.WithLabelValues(feed).Set(float64(size))
}

// SetSnapshot records the size of a freshly built snapshot.
func SetSnapshot(feed string, size int) {
	snapshotKeys.WithLabelValues(feed).Set(float64(size))
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
