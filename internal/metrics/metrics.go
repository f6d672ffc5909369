package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GenerationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushd_generation_requests_total",
			Help: "Playlist generation requests by outcome (ok or an error kind)",
		},
		[]string{"outcome"},
	)

	GenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pushd_model_call_duration_seconds",
			Help:    "Latency of calls to the generative model",
			Buckets: []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
		},
	)

	// ParserSkippedLines counts model output lines the parser could not use.
	ParserSkippedLines = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushd_parser_skipped_lines_total",
			Help: "Lines of model output dropped by the response parser",
		},
		[]string{"stage"}, // clean, extract
	)

	ResolverOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushd_resolver_candidates_total",
			Help: "Catalog resolution results per candidate",
		},
		[]string{"status"}, // FOUND, FALLBACK, NOT_FOUND
	)

	CatalogResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushd_catalog_responses_total",
			Help: "Catalog API responses by status class",
		},
		[]string{"class"},
	)

	PlaylistBatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pushd_playlist_batches_total",
			Help: "Track batches inserted into catalog playlists",
		},
	)
)
