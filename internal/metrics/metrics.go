package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	FetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smartsearch",
		Name:      "fetches_total",
		Help:      "Metadata fetches by transport and terminal state.",
	}, []string{"transport", "state"})

	FetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "smartsearch",
		Name:      "fetch_duration_seconds",
		Help:      "Metadata fetch duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"transport"})

	FetchesInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "smartsearch",
		Name:      "fetches_in_flight",
		Help:      "Metadata fetches issued and not yet finished.",
	})

	DeepSearchRounds = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "smartsearch",
		Name:      "deep_search_rounds_total",
		Help:      "Deep-search polling rounds executed.",
	})

	DeepSearchMatches = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "smartsearch",
		Name:      "deep_search_matches_total",
		Help:      "File entries surfaced by deep search.",
	})

	TorrentsIndexed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "smartsearch",
		Name:      "torrents_indexed_total",
		Help:      "Torrents written to the local index.",
	})

	LocalSearchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "smartsearch",
		Name:      "local_search_duration_seconds",
		Help:      "Local full-text search duration in seconds.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 3},
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		FetchesTotal,
		FetchDuration,
		FetchesInFlight,
		DeepSearchRounds,
		DeepSearchMatches,
		TorrentsIndexed,
		LocalSearchDuration,
	)
}
