package middleware

import "github.com/prometheus/client_golang/prometheus"

var apiKeyValidations *prometheus.CounterVec

// InitPrometheusMetrics registers the middleware counters. Call once
// at startup, before serving traffic.
func InitPrometheusMetrics() {
	apiKeyValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eventlens",
			Name:      "api_key_validations_total",
			Help:      "API key validation attempts by outcome.",
		},
		[]string{"outcome"},
	)
	prometheus.MustRegister(apiKeyValidations)
}

func observeValidation(outcome string) {
	if apiKeyValidations == nil {
		return
	}
	apiKeyValidations.WithLabelValues(outcome).Inc()
}
