package audit

import (
	"context"
	"sync"
	"time"

	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/observability"
	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/pipeline"

	"github.com/google/uuid"
)

// RowCounter cuenta las filas vigentes de una entidad en la fuente
type RowCounter interface {
	CountLiveRows(ctx context.Context, entity pipeline.EntityType) (int64, error)
}

// SinkCount es el resultado de un sink para una entidad en una corrida
type SinkCount struct {
	Sink  string `json:"sink"`
	Count int64  `json:"count"`
	Drift int64  `json:"drift"`
	Error string `json:"error,omitempty"`
}

type EntityReport struct {
	Entity        pipeline.EntityType `json:"entity"`
	SourceCount   int64               `json:"source_count"`
	SinkCounts    []SinkCount         `json:"sink_counts"`
	DriftDetected bool                `json:"drift_detected"`
}

// Report es el resultado completo de una corrida del auditor
type Report struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Tolerance  int64          `json:"tolerance"`
	Entities   []EntityReport `json:"entities"`
}

// Auditor compara periódicamente el conteo de filas vigentes en la fuente
// contra el conteo de cada sink. Drift dentro de la tolerancia es lag normal
// de replicación; por encima se reporta y se expone en métricas
type Auditor struct {
	source    RowCounter
	targets   map[pipeline.EntityType][]pipeline.EventSink
	interval  time.Duration
	tolerance int64
	metrics   *observability.SyncMetrics

	mu     sync.RWMutex
	latest *Report

	wg     sync.WaitGroup
	stopCh chan struct{}

	observability.Logger
}

func NewAuditor(source RowCounter,
	targets map[pipeline.EntityType][]pipeline.EventSink,
	interval time.Duration,
	tolerance int64,
	metrics *observability.SyncMetrics,
	logger observability.Logger) *Auditor {

	return &Auditor{
		source:    source,
		targets:   targets,
		interval:  interval,
		tolerance: tolerance,
		metrics:   metrics,
		stopCh:    make(chan struct{}),
		Logger:    logger,
	}
}

func (a *Auditor) Start(ctx context.Context) {
	a.wg.Add(1)
	go a.run(ctx)
}

func (a *Auditor) Stop() {
	close(a.stopCh)
	a.wg.Wait()
}

// Latest retorna el último reporte, o nil si aún no corrió ninguna auditoría
func (a *Auditor) Latest() *Report {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latest
}

func (a *Auditor) run(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		case <-ticker.C:
			report := a.RunOnce(ctx)

			a.mu.Lock()
			a.latest = report
			a.mu.Unlock()
		}
	}
}

// RunOnce ejecuta una corrida completa de auditoría sobre todas las
// entidades rastreadas
func (a *Auditor) RunOnce(ctx context.Context) *Report {

	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Tolerance: a.tolerance,
	}

	for entity, sinks := range a.targets {
		report.Entities = append(report.Entities, a.auditEntity(ctx, entity, sinks))
	}

	report.FinishedAt = time.Now().UTC()

	return report
}

func (a *Auditor) auditEntity(ctx context.Context,
	entity pipeline.EntityType, sinks []pipeline.EventSink) EntityReport {

	entityReport := EntityReport{Entity: entity}

	sourceCount, err := a.source.CountLiveRows(ctx, entity)

	if err != nil {
		a.Warn(ctx, "Auditoría sin conteo de fuente, entidad omitida", err,
			"entity", string(entity))

		return entityReport
	}

	entityReport.SourceCount = sourceCount

	for _, sink := range sinks {

		sinkCount := SinkCount{Sink: sink.Name()}

		count, err := sink.Count(ctx, entity)

		if err != nil {
			sinkCount.Error = err.Error()
			entityReport.SinkCounts = append(entityReport.SinkCounts, sinkCount)

			a.Warn(ctx, "Auditoría sin conteo de sink", err,
				"entity", string(entity), "sink", sink.Name())

			continue
		}

		drift := sourceCount - count
		if drift < 0 {
			drift = -drift
		}

		sinkCount.Count = count
		sinkCount.Drift = drift

		a.metrics.SetConsistencyDrift(string(entity), sink.Name(), drift)

		if drift > a.tolerance {
			entityReport.DriftDetected = true

			a.Warn(ctx, "Drift de consistencia por encima de la tolerancia", nil,
				"entity", string(entity),
				"sink", sink.Name(),
				"source_count", sourceCount,
				"sink_count", count,
				"drift", drift)
		}

		entityReport.SinkCounts = append(entityReport.SinkCounts, sinkCount)
	}

	return entityReport
}
