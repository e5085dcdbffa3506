package harvest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	itemsClassifiedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cadseq_items_classified_total",
		Help: "Total work items classified by reason",
	}, []string{"reason"})

	itemDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cadseq_item_duration_seconds",
		Help:    "Time to classify one work item",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
	})

	runsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cadseq_pipeline_runs_total",
		Help: "Total pipeline runs",
	})

	workersBusy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cadseq_pipeline_workers_busy",
		Help: "Workers currently classifying an item",
	})
)
