package manager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generatedTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "llamactx",
		Subsystem: "generation",
		Name:      "tokens_total",
		Help:      "Tokens processed, by model and kind (prompt or completion).",
	}, []string{"model", "kind"})

	generationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "llamactx",
		Subsystem: "generation",
		Name:      "duration_seconds",
		Help:      "Wall time of completed generations.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"model"})

	generationFinish = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "llamactx",
		Subsystem: "generation",
		Name:      "finished_total",
		Help:      "Generations by finish reason.",
	}, []string{"model", "reason"})

	sessionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "llamactx",
		Name:      "sessions_open",
		Help:      "Open inference sessions.",
	})
)
