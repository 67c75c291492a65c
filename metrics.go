package docroom

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type coreMetrics struct {
	activeSessions  prometheus.Gauge
	openConnections prometheus.Gauge
	locksHeld       prometheus.Gauge
	editsRelayed    prometheus.Counter
	snapshotSaves   *prometheus.CounterVec
	sessionsEvicted prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *coreMetrics
)

func getMetrics() *coreMetrics {
	metricsOnce.Do(func() {
		m := &coreMetrics{
			activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "docroom_active_sessions",
				Help: "Document sessions currently resident in memory.",
			}),
			openConnections: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "docroom_open_connections",
				Help: "Open websocket connections.",
			}),
			locksHeld: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "docroom_locks_held",
				Help: "Edit locks currently held across all documents.",
			}),
			editsRelayed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "docroom_edits_relayed_total",
				Help: "Edits accepted from lock holders and relayed to rooms.",
			}),
			snapshotSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "docroom_snapshot_saves_total",
				Help: "Snapshot append attempts by result.",
			}, []string{"status"}),
			sessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "docroom_sessions_evicted_total",
				Help: "Idle document sessions evicted by the janitor.",
			}),
		}
		prometheus.MustRegister(
			m.activeSessions,
			m.openConnections,
			m.locksHeld,
			m.editsRelayed,
			m.snapshotSaves,
			m.sessionsEvicted,
		)
		metricsInst = m
	})
	return metricsInst
}

func getSnapshotSaves() *prometheus.CounterVec {
	return getMetrics().snapshotSaves
}

// MetricsHandler exposes the prometheus registry, mounted at /metrics.
func MetricsHandler() http.Handler {
	getMetrics()
	return promhttp.Handler()
}
