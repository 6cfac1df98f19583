// Package metrics provides Prometheus metrics for chronicler storage.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds chronicler's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	SavesTotal               *prometheus.CounterVec
	FallbacksTotal           *prometheus.CounterVec
	PersistenceFailuresTotal *prometheus.CounterVec
	MigrationsTotal          *prometheus.CounterVec
	StorageUsedBytes         prometheus.Gauge
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SavesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chronicler_saves_total",
				Help: "Collection saves by record space and the medium that accepted them",
			},
			[]string{"space", "medium"},
		),
		FallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chronicler_fallbacks_total",
				Help: "Primary backend operations downgraded to the fallback backend",
			},
			[]string{"op"},
		),
		PersistenceFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chronicler_persistence_failures_total",
				Help: "Saves rejected by every storage medium",
			},
			[]string{"space"},
		),
		MigrationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chronicler_migrations_total",
				Help: "Migration attempts by result",
			},
			[]string{"result"},
		),
		StorageUsedBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "chronicler_storage_used_bytes",
				Help: "Bytes used by the data directory at the last usage estimate",
			},
		),
	}
}

// Registry returns the private registry backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordSave counts a save of space that landed in medium.
func (m *Metrics) RecordSave(space, medium string) {
	if m == nil {
		return
	}
	m.SavesTotal.WithLabelValues(space, medium).Inc()
}

// RecordFallback counts a primary operation that was retried against the fallback.
func (m *Metrics) RecordFallback(op string) {
	if m == nil {
		return
	}
	m.FallbacksTotal.WithLabelValues(op).Inc()
}

// RecordPersistenceFailure counts a save that no medium accepted.
func (m *Metrics) RecordPersistenceFailure(space string) {
	if m == nil {
		return
	}
	m.PersistenceFailuresTotal.WithLabelValues(space).Inc()
}

// RecordMigration counts a migration attempt. result is one of ok, degraded, skipped, failed.
func (m *Metrics) RecordMigration(result string) {
	if m == nil {
		return
	}
	m.MigrationsTotal.WithLabelValues(result).Inc()
}

// SetStorageUsed records the latest usage estimate.
func (m *Metrics) SetStorageUsed(bytes int64) {
	if m == nil {
		return
	}
	m.StorageUsedBytes.Set(float64(bytes))
}
