package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics contiene todas las métricas del pipeline de sincronización
type SyncMetrics struct {
	// Pipeline Metrics
	eventsProcessedTotal  *prometheus.CounterVec
	malformedRecordsTotal *prometheus.CounterVec
	cyclesTotal           *prometheus.CounterVec
	sourceErrorsTotal     *prometheus.CounterVec

	// Sink Metrics
	sinkWriteErrorsTotal *prometheus.CounterVec
	sinkRetriesTotal     *prometheus.CounterVec
	sinkWriteDuration    *prometheus.HistogramVec

	// Watermark Metrics
	watermarkTimestamp *prometheus.GaugeVec
	syncLagSeconds     *prometheus.GaugeVec
	lastCycleTimestamp *prometheus.GaugeVec

	// Audit / Health Metrics
	consistencyDrift *prometheus.GaugeVec
	dependencyUp     *prometheus.GaugeVec
}

var (
	metricsInstance *SyncMetrics
	metricsOnce     sync.Once
)

// NewSyncMetrics crea e inicializa las métricas del pipeline
func NewSyncMetrics(registry *prometheus.Registry) *SyncMetrics {
	metricsOnce.Do(func() {
		metrics := &SyncMetrics{
			eventsProcessedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sync_events_processed_total",
					Help: "Número total de eventos de cambio procesados por tipo de entidad",
				},
				[]string{"entity"},
			),
			malformedRecordsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sync_malformed_records_total",
					Help: "Número total de registros normalizados con payload vacío por campos faltantes",
				},
				[]string{"entity"},
			),
			cyclesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sync_cycles_total",
					Help: "Número total de ciclos de polling ejecutados por entidad y resultado",
				},
				[]string{"entity", "result"},
			),
			sourceErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sync_source_errors_total",
					Help: "Número total de errores consultando la fuente relacional",
				},
				[]string{"entity"},
			),
			sinkWriteErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sync_sink_write_errors_total",
					Help: "Número total de errores de escritura por sink y clase (transient/permanent)",
				},
				[]string{"sink", "class"},
			),
			sinkRetriesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sync_sink_retries_total",
					Help: "Número total de reintentos de escritura por sink",
				},
				[]string{"sink"},
			),
			sinkWriteDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "sync_sink_write_duration_seconds",
					Help:    "Latencia de escritura por sink y tipo de entidad",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"sink", "entity"},
			),
			watermarkTimestamp: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "sync_watermark_timestamp_seconds",
					Help: "Watermark actual por entidad (Unix timestamp del último cambio procesado)",
				},
				[]string{"entity"},
			),
			syncLagSeconds: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "sync_lag_seconds",
					Help: "Diferencia entre ahora y el watermark por entidad",
				},
				[]string{"entity"},
			),
			lastCycleTimestamp: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "sync_last_cycle_timestamp_seconds",
					Help: "Timestamp del último ciclo iniciado por entidad (heartbeat del worker)",
				},
				[]string{"entity"},
			),
			consistencyDrift: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "sync_consistency_drift",
					Help: "Diferencia absoluta de conteos fuente vs sink detectada por el auditor",
				},
				[]string{"entity", "sink"},
			),
			dependencyUp: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "sync_dependency_up",
					Help: "Estado de cada dependencia externa (1 = alcanzable, 0 = no alcanzable)",
				},
				[]string{"dependency"},
			),
		}

		registry.MustRegister(
			metrics.eventsProcessedTotal,
			metrics.malformedRecordsTotal,
			metrics.cyclesTotal,
			metrics.sourceErrorsTotal,
			metrics.sinkWriteErrorsTotal,
			metrics.sinkRetriesTotal,
			metrics.sinkWriteDuration,
			metrics.watermarkTimestamp,
			metrics.syncLagSeconds,
			metrics.lastCycleTimestamp,
			metrics.consistencyDrift,
			metrics.dependencyUp,
		)

		metricsInstance = metrics
	})

	return metricsInstance
}

// GetSyncMetrics retorna la instancia singleton de métricas
func GetSyncMetrics() *SyncMetrics {
	return metricsInstance
}

// IncEventsProcessed incrementa el contador de eventos procesados
func (sm *SyncMetrics) IncEventsProcessed(entity string, count int) {
	if sm == nil {
		return
	}
	sm.eventsProcessedTotal.WithLabelValues(entity).Add(float64(count))
}

// IncMalformedRecords incrementa el contador de registros malformados
func (sm *SyncMetrics) IncMalformedRecords(entity string) {
	if sm == nil {
		return
	}
	sm.malformedRecordsTotal.WithLabelValues(entity).Inc()
}

// IncCycle incrementa el contador de ciclos por resultado
func (sm *SyncMetrics) IncCycle(entity string, result string) {
	if sm == nil {
		return
	}
	sm.cyclesTotal.WithLabelValues(entity, result).Inc()
}

// IncSourceError incrementa el contador de errores de la fuente
func (sm *SyncMetrics) IncSourceError(entity string) {
	if sm == nil {
		return
	}
	sm.sourceErrorsTotal.WithLabelValues(entity).Inc()
}

// IncSinkWriteError incrementa el contador de errores de escritura por clase
func (sm *SyncMetrics) IncSinkWriteError(sink string, class string) {
	if sm == nil {
		return
	}
	sm.sinkWriteErrorsTotal.WithLabelValues(sink, class).Inc()
}

// IncSinkRetry incrementa el contador de reintentos por sink
func (sm *SyncMetrics) IncSinkRetry(sink string) {
	if sm == nil {
		return
	}
	sm.sinkRetriesTotal.WithLabelValues(sink).Inc()
}

// ObserveSinkWrite registra la latencia de una escritura
func (sm *SyncMetrics) ObserveSinkWrite(sink string, entity string, d time.Duration) {
	if sm == nil {
		return
	}
	sm.sinkWriteDuration.WithLabelValues(sink, entity).Observe(d.Seconds())
}

// SetWatermark actualiza el watermark y el lag por entidad
func (sm *SyncMetrics) SetWatermark(entity string, watermark time.Time) {
	if sm == nil {
		return
	}
	sm.watermarkTimestamp.WithLabelValues(entity).Set(float64(watermark.Unix()))
	sm.syncLagSeconds.WithLabelValues(entity).Set(time.Since(watermark).Seconds())
}

// SetLastCycle actualiza el heartbeat del worker
func (sm *SyncMetrics) SetLastCycle(entity string, at time.Time) {
	if sm == nil {
		return
	}
	sm.lastCycleTimestamp.WithLabelValues(entity).Set(float64(at.Unix()))
}

// SetConsistencyDrift actualiza el drift reportado por el auditor
func (sm *SyncMetrics) SetConsistencyDrift(entity string, sink string, drift int64) {
	if sm == nil {
		return
	}
	if drift < 0 {
		drift = -drift
	}
	sm.consistencyDrift.WithLabelValues(entity, sink).Set(float64(drift))
}

// SetDependencyUp actualiza el estado de una dependencia externa
func (sm *SyncMetrics) SetDependencyUp(dependency string, up bool) {
	if sm == nil {
		return
	}
	v := 0.0
	if up {
		v = 1.0
	}
	sm.dependencyUp.WithLabelValues(dependency).Set(v)
}
