// Package metrics registers the Prometheus collectors for the dashboard.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchTotal counts backend fetches by dataset and outcome
	// ("ok", "error").
	FetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tweetmap_fetch_total",
			Help: "Backend fetches by dataset and outcome",
		},
		[]string{"dataset", "outcome"},
	)

	// FetchStale counts responses dropped because a newer request for the
	// same view superseded them.
	FetchStale = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tweetmap_fetch_stale_total",
			Help: "Responses discarded for a superseded request",
		},
		[]string{"dataset"},
	)

	RegionMoves = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tweetmap_region_moves_total",
			Help: "Marker drag-move events applied",
		},
	)

	RegionSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tweetmap_region_sessions",
			Help: "Open region editing sessions",
		},
	)

	// Selections counts click resolutions ("selected", "cleared").
	Selections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tweetmap_selections_total",
			Help: "Map click resolutions by result",
		},
		[]string{"result"},
	)

	// BreakerState is 0 closed, 1 half-open, 2 open.
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tweetmap_circuit_breaker_state",
			Help: "Remote API circuit breaker state",
		},
		[]string{"name"},
	)
)
