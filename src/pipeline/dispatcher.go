package pipeline

import (
	"context"
	"time"

	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/observability"
)

// Dispatcher es el dueño de los EntityWorkers: uno por entidad rastreada.
// Los workers corren sobre un contexto desacoplado del contexto de arranque,
// así un request de arranque cancelado no tumba el pipeline
type Dispatcher struct {
	source        ChangeSource
	coordinator   *WatermarkCoordinator
	workerCfg     WorkerConfig
	targets       map[EntityType][]SinkTarget
	workers       map[EntityType]*EntityWorker
	metrics       *observability.SyncMetrics
	shutdownGrace time.Duration
	cancel        context.CancelFunc
	observability.Logger
}

func NewDispatcher(source ChangeSource,
	coordinator *WatermarkCoordinator,
	workerCfg WorkerConfig,
	targets map[EntityType][]SinkTarget,
	shutdownGrace time.Duration,
	metrics *observability.SyncMetrics,
	logger observability.Logger) *Dispatcher {

	return &Dispatcher{
		source:        source,
		coordinator:   coordinator,
		workerCfg:     workerCfg,
		targets:       targets,
		workers:       make(map[EntityType]*EntityWorker),
		metrics:       metrics,
		shutdownGrace: shutdownGrace,
		Logger:        logger,
	}
}

// Start siembra los watermarks de las entidades rastreadas y lanza un
// worker por entidad
func (d *Dispatcher) Start(ctx context.Context, seedFallback time.Time) error {

	entities := make([]EntityType, 0, len(d.targets))
	for entity := range d.targets {
		entities = append(entities, entity)
	}

	if err := d.coordinator.Seed(ctx, entities, seedFallback); err != nil {
		return err
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	for entity, targets := range d.targets {
		worker := NewEntityWorker(entity, d.source, targets,
			d.coordinator, d.workerCfg, d.metrics, d.Logger)

		d.workers[entity] = worker
		worker.Start(workerCtx)

		d.Info(ctx, "EntityWorker started",
			"entity", string(entity), "sinks", len(targets))
	}

	return nil
}

// Stop señala a los workers y espera hasta shutdownGrace; pasado el plazo
// cancela el contexto para cortar escrituras en vuelo
func (d *Dispatcher) Stop(ctx context.Context) {

	for _, worker := range d.workers {
		worker.Stop()
	}

	done := make(chan struct{})

	go func() {
		for _, worker := range d.workers {
			worker.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		d.Info(ctx, "All EntityWorkers stopped gracefully")
	case <-time.After(d.shutdownGrace):
		d.Warn(ctx, "Shutdown grace exceeded, cancelling in-flight work", nil)
	}

	if d.cancel != nil {
		d.cancel()
	}
}

// Alive indica si cada worker inició un ciclo dentro de maxAge. Es la base
// de la sonda de liveness: un worker colgado deja de latir
func (d *Dispatcher) Alive(maxAge time.Duration) bool {

	now := time.Now()

	for _, worker := range d.workers {
		beat := worker.LastBeat()

		if beat.IsZero() || now.Sub(beat) > maxAge {
			return false
		}
	}

	return true
}

// Heartbeats expone el último latido por entidad, para el endpoint de salud
func (d *Dispatcher) Heartbeats() map[EntityType]time.Time {

	beats := make(map[EntityType]time.Time, len(d.workers))

	for entity, worker := range d.workers {
		beats[entity] = worker.LastBeat()
	}

	return beats
}
