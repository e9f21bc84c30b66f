package session

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sessiond",
			Subsystem: "generation",
			Name:      "total",
			Help:      "Generations by terminal outcome",
		},
		[]string{"outcome"},
	)

	firstTokenSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sessiond",
			Subsystem: "generation",
			Name:      "first_token_seconds",
			Help:      "Time to first token of completed generations",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	tokensPerSecond = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sessiond",
			Subsystem: "generation",
			Name:      "tokens_per_second",
			Help:      "Throughput of completed generations",
			Buckets:   []float64{1, 2, 5, 10, 20, 40, 80, 160},
		},
	)

	sessionResetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sessiond",
			Subsystem: "session",
			Name:      "resets_total",
			Help:      "Session handle (re)creations by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(generationsTotal, firstTokenSeconds, tokensPerSecond, sessionResetsTotal)
}
