// Package metrics agrupa los collectors de replicación. Vive aparte para que
// store, channel y pump los usen sin depender del paquete http.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// StorePushes cuenta pushes por store y resultado (applied|noop|error).
	StorePushes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gigsync_store_pushes_total",
		Help: "Pushes aplicados a un store por resultado",
	}, []string{"store", "result"})

	// StorePrunedOps cuenta ops descartados por compactación.
	StorePrunedOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gigsync_store_pruned_ops_total",
		Help: "Ops descartados al compactar oplogs",
	}, []string{"store"})

	// StorePersistErrors cuenta fallos de persistencia o propagación asíncrona.
	StorePersistErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gigsync_store_persist_errors_total",
		Help: "Fallos al persistir o propagar oplogs en segundo plano",
	}, []string{"store"})

	// SyncPruneRuns cuenta corridas de syncprune por resultado
	// (synced|pruned|converged|error|skipped).
	SyncPruneRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gigsync_syncprune_runs_total",
		Help: "Corridas de syncprune por resultado",
	}, []string{"channel", "outcome"})

	SyncPruneLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gigsync_syncprune_latency_ms",
		Help:    "Latencia de syncprune en milisegundos",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	})

	// PumpRegistrations es la cantidad de registros de long polling vivos.
	PumpRegistrations = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gigsync_pump_registrations",
		Help: "Registros de long polling vivos",
	})

	// PumpDeliveries cuenta entradas entregadas por modo (immediate|backlog).
	PumpDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gigsync_pump_deliveries_total",
		Help: "Entradas entregadas a listeners de long polling",
	}, []string{"mode"})
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		StorePushes, StorePrunedOps, StorePersistErrors,
		SyncPruneRuns, SyncPruneLatency,
		PumpRegistrations, PumpDeliveries,
	}
}

// Register registra los collectors en reg (o en el default si es nil).
// Registrar dos veces no es error.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
