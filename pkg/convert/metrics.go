package convert

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	conversionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cadseq_conversions_total",
		Help: "Total conversions by result",
	}, []string{"result"})

	conversionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cadseq_conversion_duration_seconds",
		Help:    "Time to build and write one artifact",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})
)
