package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shipping",
		Name:      "resolutions_total",
		Help:      "Shipping zone resolutions by outcome (matched, fallback, no_rate).",
	}, []string{"status"})

	resolutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "shipping",
		Name:      "resolution_duration_seconds",
		Help:      "Time spent resolving a quote, catalog load included.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	})

	catalogLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shipping",
		Name:      "catalog_loads_total",
		Help:      "Catalog snapshot lookups by source (cache, store) and result.",
	}, []string{"source", "result"})
)

func ObserveResolution(status string, elapsed time.Duration) {
	resolutions.WithLabelValues(status).Inc()
	resolutionDuration.Observe(elapsed.Seconds())
}

func CatalogLoad(source, result string) {
	catalogLoads.WithLabelValues(source, result).Inc()
}
