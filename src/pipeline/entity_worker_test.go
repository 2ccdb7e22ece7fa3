package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	records []RawRecord
	err     error
	calls   int
}

func (s *fakeSource) FindMutatedSince(ctx context.Context,
	entity EntityType, since time.Time, limit int) ([]RawRecord, error) {

	s.calls++

	if s.err != nil {
		return nil, s.err
	}

	if len(s.records) > limit {
		return s.records[:limit], nil
	}

	return s.records, nil
}

type fakeSink struct {
	mu       sync.Mutex
	name     string
	written  []string
	attempts map[string]int
	// errores programados por source key; se consumen de a uno por Write
	failures map[string][]error
}

func newFakeSink(name string) *fakeSink {
	return &fakeSink{
		name:     name,
		attempts: make(map[string]int),
		failures: make(map[string][]error),
	}
}

func (s *fakeSink) failNext(key string, errs ...error) {
	s.failures[key] = append(s.failures[key], errs...)
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) Write(ctx context.Context, event *ChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts[event.SourceKey]++

	if pending := s.failures[event.SourceKey]; len(pending) > 0 {
		err := pending[0]
		s.failures[event.SourceKey] = pending[1:]
		return err
	}

	s.written = append(s.written, event.SourceKey)
	return nil
}

func (s *fakeSink) writtenKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.written...)
}

func (s *fakeSink) attemptsFor(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[key]
}

func (s *fakeSink) Count(ctx context.Context, entity EntityType) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.written)), nil
}

func (s *fakeSink) Ping(ctx context.Context) error { return nil }

func (s *fakeSink) Close() error { return nil }

func accountRecord(id int64, mutatedAt time.Time) RawRecord {
	return RawRecord{
		Entity:    EntityAccount,
		Key:       fmt.Sprintf("account-%d", id),
		CreatedAt: mutatedAt.Add(-time.Hour),
		UpdatedAt: mutatedAt,
		Fields: map[string]interface{}{
			"id":     id,
			"email":  "user@example.com",
			"status": "active",
		},
	}
}

func testWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval:  10 * time.Millisecond,
		MaxBackoff:    50 * time.Millisecond,
		PageSize:      100,
		SourceTimeout: time.Second,
		SinkTimeout:   time.Second,
		Retry: RetryPolicy{
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
			MaxAttempts:     3,
		},
	}
}

func seededCoordinator(t *testing.T, entity EntityType, seed time.Time) *WatermarkCoordinator {
	t.Helper()

	wc := NewWatermarkCoordinator(newFakeWatermarkRepo(), observability.NewNopLogger())
	require.NoError(t, wc.Seed(context.Background(), []EntityType{entity}, seed))

	return wc
}

func TestRunCyclePreservesOrderAndAdvancesWatermark(t *testing.T) {
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	t1 := base.Add(1 * time.Second)
	t2 := base.Add(2 * time.Second)
	t3 := base.Add(3 * time.Second)

	source := &fakeSource{records: []RawRecord{
		accountRecord(1, t1),
		accountRecord(2, t2),
		accountRecord(3, t3),
	}}

	sink := newFakeSink("bus")
	wc := seededCoordinator(t, EntityAccount, base)

	worker := NewEntityWorker(EntityAccount, source,
		[]SinkTarget{{Sink: sink}}, wc, testWorkerConfig(), nil,
		observability.NewNopLogger())

	catchUp, err := worker.runCycle(context.Background())
	require.NoError(t, err)
	assert.False(t, catchUp)

	assert.Equal(t, []string{
		source.records[0].Key,
		source.records[1].Key,
		source.records[2].Key,
	}, sink.writtenKeys())

	mark, _ := wc.Get(EntityAccount)
	assert.Equal(t, t3, mark)
}

func TestRunCycleRetriesTransientFailure(t *testing.T) {
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	record := accountRecord(1, base.Add(time.Second))
	source := &fakeSource{records: []RawRecord{record}}

	sink := newFakeSink("bus")
	sink.failNext(record.Key, NewTransientSinkError("bus", errors.New("timeout")))

	wc := seededCoordinator(t, EntityAccount, base)

	worker := NewEntityWorker(EntityAccount, source,
		[]SinkTarget{{Sink: sink}}, wc, testWorkerConfig(), nil,
		observability.NewNopLogger())

	_, err := worker.runCycle(context.Background())
	require.NoError(t, err)

	// El segundo intento escribe el evento: un solo reintento, no más
	assert.Equal(t, []string{record.Key}, sink.writtenKeys())
	assert.Equal(t, 2, sink.attemptsFor(record.Key))
}

func TestRunCycleTransientFailureStopsAtRetryCap(t *testing.T) {
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	record := accountRecord(1, base.Add(time.Second))
	source := &fakeSource{records: []RawRecord{record}}

	sink := newFakeSink("bus")
	sink.failNext(record.Key,
		NewTransientSinkError("bus", errors.New("timeout")),
		NewTransientSinkError("bus", errors.New("timeout")),
		NewTransientSinkError("bus", errors.New("timeout")),
		NewTransientSinkError("bus", errors.New("timeout")))

	cfg := testWorkerConfig()
	cfg.Retry.MaxAttempts = 3

	wc := seededCoordinator(t, EntityAccount, base)

	worker := NewEntityWorker(EntityAccount, source,
		[]SinkTarget{{Sink: sink}}, wc, cfg, nil,
		observability.NewNopLogger())

	_, err := worker.runCycle(context.Background())
	require.NoError(t, err)

	// Agotados los intentos el evento se descarta sin exceder el tope
	assert.Empty(t, sink.writtenKeys())
	assert.Equal(t, cfg.Retry.MaxAttempts, sink.attemptsFor(record.Key))

	// El watermark avanza igual; el auditor repara la deriva
	mark, _ := wc.Get(EntityAccount)
	assert.Equal(t, record.UpdatedAt, mark)
}

func TestRunCycleDropsPermanentFailureAndIsolatesSinks(t *testing.T) {
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	bad := accountRecord(1, base.Add(time.Second))
	good := accountRecord(2, base.Add(2*time.Second))

	source := &fakeSource{records: []RawRecord{bad, good}}

	failing := newFakeSink("columnar")
	failing.failNext(bad.Key, NewPermanentSinkError("columnar", errors.New("schema rejection")))

	healthy := newFakeSink("search")

	wc := seededCoordinator(t, EntityAccount, base)

	worker := NewEntityWorker(EntityAccount, source,
		[]SinkTarget{{Sink: failing}, {Sink: healthy}}, wc,
		testWorkerConfig(), nil, observability.NewNopLogger())

	_, err := worker.runCycle(context.Background())
	require.NoError(t, err)

	// El evento rechazado se descarta sin reintentos, el resto del batch y
	// el otro sink no se ven afectados
	assert.Equal(t, []string{good.Key}, failing.writtenKeys())
	assert.Equal(t, []string{bad.Key, good.Key}, healthy.writtenKeys())

	// El watermark avanza aunque un sink haya rechazado un evento
	mark, _ := wc.Get(EntityAccount)
	assert.Equal(t, good.UpdatedAt, mark)
}

func TestRunCycleSourceErrorKeepsWatermark(t *testing.T) {
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	source := &fakeSource{err: errors.New("connection refused")}
	sink := newFakeSink("bus")
	wc := seededCoordinator(t, EntityAccount, base)

	worker := NewEntityWorker(EntityAccount, source,
		[]SinkTarget{{Sink: sink}}, wc, testWorkerConfig(), nil,
		observability.NewNopLogger())

	_, err := worker.runCycle(context.Background())
	require.Error(t, err)

	assert.Empty(t, sink.writtenKeys())

	mark, _ := wc.Get(EntityAccount)
	assert.Equal(t, base, mark)
}

func TestRunCycleSignalsCatchUpOnFullPage(t *testing.T) {
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	source := &fakeSource{records: []RawRecord{
		accountRecord(1, base.Add(1*time.Second)),
		accountRecord(2, base.Add(2*time.Second)),
		accountRecord(3, base.Add(3*time.Second)),
	}}

	cfg := testWorkerConfig()
	cfg.PageSize = 2

	wc := seededCoordinator(t, EntityAccount, base)

	worker := NewEntityWorker(EntityAccount, source,
		[]SinkTarget{{Sink: newFakeSink("bus")}}, wc, cfg, nil,
		observability.NewNopLogger())

	catchUp, err := worker.runCycle(context.Background())
	require.NoError(t, err)

	assert.True(t, catchUp)

	// La página llena descarta el último grupo de updated_at, así que el
	// watermark queda en la fila anterior y el grupo se relee al re-poll
	mark, _ := wc.Get(EntityAccount)
	assert.Equal(t, base.Add(1*time.Second), mark)
}

func TestRunCycleDoesNotSplitTimestampTieAcrossPages(t *testing.T) {
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	t1 := base.Add(1 * time.Second)
	t2 := base.Add(2 * time.Second)

	// Tres filas comparten t2 y el empate cruza el límite de página
	all := []RawRecord{
		accountRecord(1, t1),
		accountRecord(2, t2),
		accountRecord(3, t2),
		accountRecord(4, t2),
	}

	source := &fakeSource{records: all}

	cfg := testWorkerConfig()
	cfg.PageSize = 3

	sink := newFakeSink("bus")
	wc := seededCoordinator(t, EntityAccount, base)

	worker := NewEntityWorker(EntityAccount, source,
		[]SinkTarget{{Sink: sink}}, wc, cfg, nil,
		observability.NewNopLogger())

	// Primer ciclo: página llena, se descarta el grupo empatado en t2
	catchUp, err := worker.runCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, catchUp)

	assert.Equal(t, []string{all[0].Key}, sink.writtenKeys())

	mark, _ := wc.Get(EntityAccount)
	assert.Equal(t, t1, mark)

	// Segundo ciclo: el grupo empatado completo entra junto, ninguna fila
	// queda saltada detrás del watermark
	source.records = all[1:]

	_, err = worker.runCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{all[0].Key, all[1].Key, all[2].Key, all[3].Key},
		sink.writtenKeys())

	mark, _ = wc.Get(EntityAccount)
	assert.Equal(t, t2, mark)
}

func TestRunCycleCountsMalformedAndStillAdvances(t *testing.T) {
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	malformed := RawRecord{
		Entity:    EntityAccount,
		Key:       "account-9",
		CreatedAt: base,
		UpdatedAt: base.Add(time.Second),
		Fields:    map[string]interface{}{"id": int64(9)},
	}

	source := &fakeSource{records: []RawRecord{malformed}}
	sink := newFakeSink("bus")
	wc := seededCoordinator(t, EntityAccount, base)

	worker := NewEntityWorker(EntityAccount, source,
		[]SinkTarget{{Sink: sink}}, wc, testWorkerConfig(), nil,
		observability.NewNopLogger())

	_, err := worker.runCycle(context.Background())
	require.NoError(t, err)

	// Un registro malformado no detiene el ciclo ni el watermark
	mark, _ := wc.Get(EntityAccount)
	assert.Equal(t, malformed.UpdatedAt, mark)
}

func TestWorkerFiltersEventsPerTarget(t *testing.T) {
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	first := accountRecord(1, base.Add(time.Second))
	second := accountRecord(2, base.Add(2*time.Second))

	source := &fakeSource{records: []RawRecord{first, second}}

	filtered := newFakeSink("search")
	unfiltered := newFakeSink("bus")

	onlyFirst := filterFunc(func(ctx context.Context, event *ChangeEvent) bool {
		return event.SourceKey == first.Key
	})

	wc := seededCoordinator(t, EntityAccount, base)

	worker := NewEntityWorker(EntityAccount, source,
		[]SinkTarget{
			{Sink: filtered, Filter: onlyFirst},
			{Sink: unfiltered},
		}, wc, testWorkerConfig(), nil, observability.NewNopLogger())

	_, err := worker.runCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{first.Key}, filtered.writtenKeys())
	assert.Equal(t, []string{first.Key, second.Key}, unfiltered.writtenKeys())
}

type filterFunc func(ctx context.Context, event *ChangeEvent) bool

func (f filterFunc) ShouldProcess(ctx context.Context, event *ChangeEvent) bool {
	return f(ctx, event)
}
