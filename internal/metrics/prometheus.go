package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ProcessTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_engine_process_total",
			Help: "Total preprocessing runs by outcome",
		},
		[]string{"status"},
	)

	ProcessDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dataset_engine_process_duration_seconds",
			Help:    "Preprocessing run duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
	)

	RowsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_engine_rows_dropped_total",
			Help: "Rows excluded from the splits",
		},
		[]string{"reason"},
	)

	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dataset_engine_cache_hits_total",
			Help: "Preprocessing results served from cache",
		},
	)

	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dataset_engine_cache_misses_total",
			Help: "Preprocessing results not found in cache",
		},
	)

	UnseenCategories = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_engine_unseen_categories_total",
			Help: "Inference values not seen during preprocessing",
		},
		[]string{"column"},
	)

	DatasetsLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dataset_engine_datasets_loaded",
			Help: "Datasets currently held in memory",
		},
	)
)

func Init() {
	prometheus.MustRegister(ProcessTotal)
	prometheus.MustRegister(ProcessDuration)
	prometheus.MustRegister(RowsDropped)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(UnseenCategories)
	prometheus.MustRegister(DatasetsLoaded)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
