package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/observability"
)

// WatermarkRepository persiste los watermarks de forma durable. El estado en
// memoria nunca avanza si la persistencia falla.
type WatermarkRepository interface {
	Load(ctx context.Context) (map[EntityType]time.Time, error)

	Save(ctx context.Context, entity EntityType, mark time.Time) error
}

// WatermarkCoordinator es el coordinador de los watermarks por entidad.
// Invariante: un watermark es monótonamente no decreciente.
type WatermarkCoordinator struct {
	mu    sync.RWMutex
	marks map[EntityType]time.Time
	repo  WatermarkRepository
	observability.Logger
}

// NewWatermarkCoordinator crea un nuevo WatermarkCoordinator
func NewWatermarkCoordinator(repo WatermarkRepository,
	logger observability.Logger) *WatermarkCoordinator {

	return &WatermarkCoordinator{
		mu:     sync.RWMutex{},
		marks:  make(map[EntityType]time.Time),
		repo:   repo,
		Logger: logger,
	}
}

// Seed carga los watermarks persistidos y siembra las entidades sin watermark
// con el fallback configurado (o "ahora" si no hay fallback)
func (wc *WatermarkCoordinator) Seed(ctx context.Context,
	entities []EntityType, fallback time.Time) error {

	stored, err := wc.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load watermarks: %w", err)
	}

	if fallback.IsZero() {
		fallback = time.Now().UTC()
	}

	wc.mu.Lock()
	defer wc.mu.Unlock()

	for _, entity := range entities {

		if mark, ok := stored[entity]; ok {
			wc.marks[entity] = mark

			wc.Info(ctx, "Watermark cargado", "entity", string(entity),
				"watermark", mark.Format(time.RFC3339Nano))

			continue
		}

		if err := wc.repo.Save(ctx, entity, fallback); err != nil {
			return fmt.Errorf("seed watermark for %s: %w", entity, err)
		}

		wc.marks[entity] = fallback

		wc.Info(ctx, "Watermark sembrado", "entity", string(entity),
			"watermark", fallback.Format(time.RFC3339Nano))
	}

	return nil
}

func (wc *WatermarkCoordinator) Get(entity EntityType) (time.Time, bool) {
	wc.mu.RLock()
	defer wc.mu.RUnlock()

	mark, ok := wc.marks[entity]
	return mark, ok
}

// Advance persiste y luego avanza el watermark en memoria. Un valor que no
// avanza es un no-op. Solo el worker de la entidad llama Advance.
func (wc *WatermarkCoordinator) Advance(ctx context.Context,
	entity EntityType, mark time.Time) error {

	wc.mu.RLock()
	current, ok := wc.marks[entity]
	wc.mu.RUnlock()

	if !ok {
		return fmt.Errorf("entity %s has no seeded watermark", entity)
	}

	if !mark.After(current) {
		return nil
	}

	if err := wc.repo.Save(ctx, entity, mark); err != nil {
		return fmt.Errorf("persist watermark for %s: %w", entity, err)
	}

	wc.mu.Lock()
	// Re-chequear bajo el lock de escritura para preservar monotonía
	if mark.After(wc.marks[entity]) {
		wc.marks[entity] = mark
	}
	wc.mu.Unlock()

	return nil
}

func (wc *WatermarkCoordinator) Snapshot() map[EntityType]time.Time {
	wc.mu.RLock()
	defer wc.mu.RUnlock()

	snapshot := make(map[EntityType]time.Time, len(wc.marks))
	for entity, mark := range wc.marks {
		snapshot[entity] = mark
	}

	return snapshot
}

func (wc *WatermarkCoordinator) HasSeededEntities() bool {
	wc.mu.RLock()
	defer wc.mu.RUnlock()
	return len(wc.marks) > 0
}
