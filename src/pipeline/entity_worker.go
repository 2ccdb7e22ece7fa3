package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/observability"
	"github.com/cenkalti/backoff/v4"
)

type cycleState string

const (
	stateIdle        cycleState = "idle"
	statePolling     cycleState = "polling"
	stateNormalizing cycleState = "normalizing"
	stateFanningOut  cycleState = "fanning_out"
	stateCommitting  cycleState = "committing"
	stateBackoff     cycleState = "error_backoff"
)

// SinkTarget asocia un sink con su filtro opcional de eventos
type SinkTarget struct {
	Sink   EventSink
	Filter EventFilter
}

// WorkerConfig son los parámetros de ciclo de un EntityWorker
type WorkerConfig struct {
	PollInterval  time.Duration
	MaxBackoff    time.Duration
	PageSize      int
	SourceTimeout time.Duration
	SinkTimeout   time.Duration
	Retry         RetryPolicy
}

// EntityWorker ejecuta el ciclo de polling de una entidad:
// Idle -> Polling -> Normalizing -> FanningOut -> Committing -> Idle,
// con ErrorBackoff cuando el poll o la persistencia del watermark fallan.
// Cada entidad tiene su propio worker; no comparten estado mutable.
type EntityWorker struct {
	entity      EntityType
	source      ChangeSource
	targets     []SinkTarget
	coordinator *WatermarkCoordinator
	cfg         WorkerConfig
	backoff     *BackoffManager
	metrics     *observability.SyncMetrics
	state       cycleState
	lastBeat    atomic.Int64
	wg          sync.WaitGroup
	stopCh      chan struct{}
	observability.Logger
}

func NewEntityWorker(entity EntityType,
	source ChangeSource,
	targets []SinkTarget,
	coordinator *WatermarkCoordinator,
	cfg WorkerConfig,
	metrics *observability.SyncMetrics,
	logger observability.Logger) *EntityWorker {

	return &EntityWorker{
		entity:      entity,
		source:      source,
		targets:     targets,
		coordinator: coordinator,
		cfg:         cfg,
		backoff:     NewBackoffManager(cfg.PollInterval, cfg.MaxBackoff),
		metrics:     metrics,
		state:       stateIdle,
		wg:          sync.WaitGroup{},
		stopCh:      make(chan struct{}),
		Logger:      logger,
	}
}

func (ew *EntityWorker) Start(ctx context.Context) {
	ew.wg.Add(1)
	go ew.run(ctx)
}

func (ew *EntityWorker) Stop() {
	close(ew.stopCh)
}

func (ew *EntityWorker) Wait() {
	ew.wg.Wait()
}

// LastBeat retorna el inicio del último ciclo, para la sonda de liveness
func (ew *EntityWorker) LastBeat() time.Time {
	nanos := ew.lastBeat.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

func (ew *EntityWorker) run(ctx context.Context) {
	defer ew.wg.Done()

	// Primer ciclo inmediato; los siguientes esperan el intervalo o el
	// backoff acumulado. La cancelación es cooperativa al inicio del ciclo.
	wait := time.Duration(0)

	for {
		select {
		case <-ctx.Done():
			ew.Info(ctx, "EntityWorker stopped by context done",
				"entity", string(ew.entity))
			return
		case <-ew.stopCh:
			ew.Info(ctx, "EntityWorker stopped by stop channel",
				"entity", string(ew.entity))
			return
		case <-time.After(wait):
		}

		ew.beat()

		catchUp, err := ew.runCycle(ctx)

		if err != nil {
			ew.state = stateBackoff
			ew.backoff.IncreaseInterval()
			wait = ew.backoff.GetInterval()

			ew.Warn(ctx, "Ciclo fallido, aplicando backoff", err,
				"entity", string(ew.entity), "next_attempt_in", wait.String())

			continue
		}

		ew.state = stateIdle
		ew.backoff.ResetInterval()

		if catchUp {
			// Modo catch-up: quedan más cambios que el tamaño de página,
			// re-poll inmediato sin esperar el timer
			wait = 0
			continue
		}

		wait = ew.cfg.PollInterval
	}
}

func (ew *EntityWorker) beat() {
	now := time.Now()
	ew.lastBeat.Store(now.UnixNano())
	ew.metrics.SetLastCycle(string(ew.entity), now)
}

func (ew *EntityWorker) runCycle(ctx context.Context) (bool, error) {

	since, ok := ew.coordinator.Get(ew.entity)
	if !ok {
		return false, fmt.Errorf("entity %s has no seeded watermark", ew.entity)
	}

	ew.state = statePolling

	pollCtx, cancelPoll := context.WithTimeout(ctx, ew.cfg.SourceTimeout)
	records, err := ew.source.FindMutatedSince(pollCtx, ew.entity, since, ew.cfg.PageSize)
	cancelPoll()

	if err != nil {
		ew.metrics.IncSourceError(string(ew.entity))
		ew.metrics.IncCycle(string(ew.entity), "source_error")

		return false, fmt.Errorf("poll %s since %s: %w",
			ew.entity, since.Format(time.RFC3339Nano), err)
	}

	if len(records) == 0 {
		ew.metrics.IncCycle(string(ew.entity), "empty")
		return false, nil
	}

	fullPage := len(records) >= ew.cfg.PageSize

	if fullPage {
		trimmed := trimTrailingTimestamp(records)

		if len(trimmed) == len(records) {
			// Toda la página comparte un updated_at; no hay dónde cortar y
			// las filas empatadas fuera de la página quedan para el auditor
			ew.Warn(ctx, "Página completa con un solo updated_at, posible salto de filas empatadas", nil,
				"entity", string(ew.entity),
				"updated_at", records[0].UpdatedAt.Format(time.RFC3339Nano))
		}

		records = trimmed
	}

	ew.state = stateNormalizing

	events := make([]*ChangeEvent, 0, len(records))

	for _, record := range records {
		event := Normalize(record)

		if event.IsEmptyPayload() {
			ew.metrics.IncMalformedRecords(string(ew.entity))

			ew.Warn(ctx, "Registro malformado normalizado a payload vacío", nil,
				"entity", string(ew.entity), "key", record.Key)
		}

		events = append(events, event)
	}

	ew.state = stateFanningOut

	ew.fanOut(ctx, events)

	ew.state = stateCommitting

	// El watermark avanza si el poll fue exitoso, sin importar el resultado
	// de cada sink: un sink caído se recupera vía el auditor, no bloqueando
	// el pipeline completo
	maxMutated := events[len(events)-1].MutatedAt

	if err := ew.coordinator.Advance(ctx, ew.entity, maxMutated); err != nil {
		ew.metrics.IncCycle(string(ew.entity), "watermark_error")
		return false, fmt.Errorf("advance watermark: %w", err)
	}

	ew.metrics.IncEventsProcessed(string(ew.entity), len(events))
	ew.metrics.SetWatermark(string(ew.entity), maxMutated)
	ew.metrics.IncCycle(string(ew.entity), "ok")

	ew.Debug(ctx, "Ciclo completado",
		"entity", string(ew.entity),
		"events", len(events),
		"watermark", maxMutated.Format(time.RFC3339Nano))

	return fullPage, nil
}

// trimTrailingTimestamp descarta el grupo final de filas que comparte el
// updated_at de la última fila de una página llena: avanzar el watermark en
// medio de un empate saltaría las filas empatadas que quedaron fuera de la
// página, porque el poll filtra con updated_at estrictamente mayor. El grupo
// descartado se relee completo en el siguiente ciclo. Si toda la página
// comparte el timestamp no hay dónde cortar y se procesa entera.
func trimTrailingTimestamp(records []RawRecord) []RawRecord {
	last := records[len(records)-1].UpdatedAt

	cut := len(records) - 1
	for cut > 0 && records[cut-1].UpdatedAt.Equal(last) {
		cut--
	}

	if cut == 0 {
		return records
	}

	return records[:cut]
}

// fanOut escribe el batch en todos los sinks en paralelo. Cada sink recorre
// los eventos en orden, así el orden por entidad se preserva de extremo a
// extremo hacia el bus
func (ew *EntityWorker) fanOut(ctx context.Context, events []*ChangeEvent) {

	var wg sync.WaitGroup

	for _, target := range ew.targets {
		wg.Add(1)

		go func(t SinkTarget) {
			defer wg.Done()
			ew.writeBatch(ctx, t, events)
		}(target)
	}

	wg.Wait()
}

func (ew *EntityWorker) writeBatch(ctx context.Context, target SinkTarget, events []*ChangeEvent) {

	for _, event := range events {

		if target.Filter != nil && !target.Filter.ShouldProcess(ctx, event) {
			ew.Trace(ctx, "Evento filtrado",
				"entity", string(ew.entity), "sink", target.Sink.Name(), "key", event.SourceKey)
			continue
		}

		ew.writeWithRetry(ctx, target.Sink, event)
	}
}

// writeWithRetry reintenta fallos transitorios con backoff exponencial
// acotado al ciclo. Un fallo permanente o reintentos agotados se registran
// y el batch continúa: el drift resultante lo reporta el auditor
func (ew *EntityWorker) writeWithRetry(ctx context.Context, sink EventSink, event *ChangeEvent) {

	operation := func() error {
		writeCtx, cancel := context.WithTimeout(ctx, ew.cfg.SinkTimeout)
		defer cancel()

		start := time.Now()
		err := sink.Write(writeCtx, event)
		ew.metrics.ObserveSinkWrite(sink.Name(), string(ew.entity), time.Since(start))

		if err == nil {
			return nil
		}

		if IsPermanentSinkError(err) {
			return backoff.Permanent(err)
		}

		return err
	}

	notify := func(err error, next time.Duration) {
		ew.metrics.IncSinkRetry(sink.Name())
		ew.metrics.IncSinkWriteError(sink.Name(), string(ErrorClassTransient))

		ew.Warn(ctx, "Escritura transitoriamente fallida, reintentando", err,
			"sink", sink.Name(), "key", event.SourceKey, "retry_in", next.String())
	}

	err := backoff.RetryNotify(operation, ew.cfg.Retry.NewBackOff(ctx), notify)

	if err == nil {
		return
	}

	if IsPermanentSinkError(err) {
		ew.metrics.IncSinkWriteError(sink.Name(), string(ErrorClassPermanent))

		ew.Error(ctx, "Escritura rechazada permanentemente, evento descartado", err,
			"sink", sink.Name(), "entity", string(ew.entity), "key", event.SourceKey)
		return
	}

	ew.metrics.IncSinkWriteError(sink.Name(), string(ErrorClassTransient))

	ew.Error(ctx, "Reintentos agotados, el auditor reportará el drift", err,
		"sink", sink.Name(), "entity", string(ew.entity), "key", event.SourceKey)
}
