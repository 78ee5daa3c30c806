package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/meridianapps/resilience-core/internal/model"
)

// Metrics holds the Prometheus instruments for the telemetry core.
type Metrics struct {
	SignalsTotal       *prometheus.CounterVec
	SignalsDeduped     prometheus.Counter
	InterventionsTotal *prometheus.CounterVec
	RemoteSyncFailures prometheus.Counter
	RemoteMergedTotal  prometheus.Counter
	MtdRotationsTotal  prometheus.Counter
	healthLevel        prometheus.Gauge
}

// NewMetrics registers and returns the core metrics on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		SignalsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "resilience_signals_total",
			Help: "Signals accepted by the classifier, by kind and severity.",
		}, []string{"kind", "severity"}),
		SignalsDeduped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "resilience_signals_deduped_total",
			Help: "Signals discarded as duplicates inside the dedup window.",
		}),
		InterventionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "resilience_interventions_total",
			Help: "Interventions recorded, by action type.",
		}, []string{"type"}),
		RemoteSyncFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "resilience_remote_sync_failures_total",
			Help: "Best-effort remote audit operations that failed.",
		}),
		RemoteMergedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "resilience_remote_merged_total",
			Help: "Remote records merged into the local cache via the push stream.",
		}),
		MtdRotationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "resilience_mtd_rotations_total",
			Help: "Session nonce rotations performed by the MTD scheduler.",
		}),
		healthLevel: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "resilience_health_level",
			Help: "Current health indicator: 0 green, 1 yellow, 2 red.",
		}),
	}
}

// SetHealth records the current health level as a gauge.
func (m *Metrics) SetHealth(state model.HealthState) {
	switch state {
	case model.HealthRed:
		m.healthLevel.Set(2)
	case model.HealthYellow:
		m.healthLevel.Set(1)
	default:
		m.healthLevel.Set(0)
	}
}
