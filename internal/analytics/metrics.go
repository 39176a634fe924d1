package analytics

import "github.com/prometheus/client_golang/prometheus"

var cacheLookups *prometheus.CounterVec

// InitPrometheusMetrics registers the engine's cache counters. Call
// once at startup, before serving traffic.
func InitPrometheusMetrics() {
	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eventlens",
			Name:      "summary_cache_lookups_total",
			Help:      "Aggregation cache lookups by summary type and outcome.",
		},
		[]string{"summary", "outcome"},
	)
	prometheus.MustRegister(cacheLookups)
}

func observeCache(summary string, hit bool) {
	if cacheLookups == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	cacheLookups.WithLabelValues(summary, outcome).Inc()
}
