package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
	"time"
)

const (
	KindRoad            = "road"
	KindIntersection    = "intersection"
	KindTurnRestriction = "turn_restriction"

	QueryPoint        = "point"
	QueryArea         = "area"
	QueryRadius       = "radius"
	QueryRestrictions = "restrictions"

	OutcomeHit  = "hit"
	OutcomeMiss = "miss"
)

var (
	importedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roadgrid_imported_total",
			Help: "Number of entities added to cells, counted once per cell.",
		},
		[]string{"kind"},
	)

	restrictionsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roadgrid_restrictions_dropped_total",
			Help: "Number of turn restrictions that could not be assigned to any cell.",
		},
	)

	queriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roadgrid_queries_total",
			Help: "Number of queries by kind.",
		},
		[]string{"kind"},
	)

	queryDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roadgrid_query_duration_seconds",
			Help:    "Duration of queries in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 100µs to ~26s
		},
		[]string{"kind"},
	)

	coveringCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roadgrid_covering_cache_total",
			Help: "Lookups of the covering cache by outcome.",
		},
		[]string{"outcome"},
	)

	storeCells = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roadgrid_store_cells",
			Help: "Number of cells containing data, updated whenever statistics are computed.",
		},
	)
)

func IncImported(kind string, count int) {
	importedTotal.WithLabelValues(kind).Add(float64(count))
}

func IncRestrictionsDropped() {
	restrictionsDroppedTotal.Inc()
}

// ObserveQuery counts the query and records the time since the given start time.
func ObserveQuery(kind string, startTime time.Time) {
	queriesTotal.WithLabelValues(kind).Inc()
	queryDurationSeconds.WithLabelValues(kind).Observe(time.Since(startTime).Seconds())
}

func IncCoveringCache(outcome string) {
	coveringCacheTotal.WithLabelValues(outcome).Inc()
}

func SetStoreCells(cells int) {
	storeCells.Set(float64(cells))
}

func Handler() http.Handler {
	return promhttp.Handler()
}
