package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector defines the interface for collecting game metrics
type Collector interface {
	RecordAction(action, outcome string, duration time.Duration)
	RecordScoring(votes int, duration time.Duration)
	SetConnections(n int)
}

// NoOp is a no-op implementation for when metrics aren't needed
type NoOp struct{}

func (NoOp) RecordAction(action, outcome string, duration time.Duration) {}
func (NoOp) RecordScoring(votes int, duration time.Duration)             {}
func (NoOp) SetConnections(n int)                                        {}

// Prometheus implements Collector using Prometheus
type Prometheus struct {
	actions         *prometheus.CounterVec
	actionDuration  *prometheus.HistogramVec
	scoringVotes    prometheus.Histogram
	scoringDuration prometheus.Histogram
	connections     prometheus.Gauge
}

// NewPrometheus registers the game metrics with reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	m := &Prometheus{
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bluff",
			Name:      "actions_total",
			Help:      "Session actions by name and outcome.",
		}, []string{"action", "outcome"}),
		actionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bluff",
			Name:      "action_duration_seconds",
			Help:      "Time from fetch to committed write for session actions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		scoringVotes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bluff",
			Name:      "scoring_votes",
			Help:      "Votes counted per scoring pass.",
			Buckets:   prometheus.LinearBuckets(0, 2, 10),
		}),
		scoringDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bluff",
			Name:      "scoring_duration_seconds",
			Help:      "Time spent computing scores.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bluff",
			Name:      "websocket_connections",
			Help:      "Open websocket connections.",
		}),
	}
	reg.MustRegister(m.actions, m.actionDuration, m.scoringVotes, m.scoringDuration, m.connections)
	return m
}

func (m *Prometheus) RecordAction(action, outcome string, duration time.Duration) {
	m.actions.WithLabelValues(action, outcome).Inc()
	m.actionDuration.WithLabelValues(action).Observe(duration.Seconds())
}

func (m *Prometheus) RecordScoring(votes int, duration time.Duration) {
	m.scoringVotes.Observe(float64(votes))
	m.scoringDuration.Observe(duration.Seconds())
}

func (m *Prometheus) SetConnections(n int) {
	m.connections.Set(float64(n))
}

// Handler serves the metrics gathered by reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
