package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/pipeline"

	"github.com/jackc/pgx/v5/pgxpool"
)

// WatermarkRepository guarda los watermarks en la misma base fuente, en la
// tabla sync_watermarks. Un upsert por entidad y ciclo
type WatermarkRepository struct {
	pool *pgxpool.Pool
}

func NewWatermarkRepository(pool *pgxpool.Pool) *WatermarkRepository {
	return &WatermarkRepository{pool: pool}
}

// Init crea la tabla de watermarks si no existe
func (r *WatermarkRepository) Init(ctx context.Context) error {

	if _, err := r.pool.Exec(ctx, CREATE_WATERMARKS_TABLE_QUERY); err != nil {
		return fmt.Errorf("create sync_watermarks: %w", err)
	}

	return nil
}

func (r *WatermarkRepository) Load(ctx context.Context) (map[pipeline.EntityType]time.Time, error) {

	rows, err := r.pool.Query(ctx, "SELECT entity, watermark FROM sync_watermarks")
	if err != nil {
		return nil, fmt.Errorf("load watermarks: %w", err)
	}
	defer rows.Close()

	marks := make(map[pipeline.EntityType]time.Time)

	for rows.Next() {

		var entity string
		var mark time.Time

		if err := rows.Scan(&entity, &mark); err != nil {
			return nil, fmt.Errorf("scan watermark: %w", err)
		}

		parsed, err := pipeline.ParseEntityType(entity)
		if err != nil {
			// Entidad desconocida en la tabla, probablemente de una versión
			// anterior del pipeline. Se ignora en lugar de fallar el arranque
			continue
		}

		marks[parsed] = mark
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watermarks: %w", err)
	}

	return marks, nil
}

func (r *WatermarkRepository) Save(ctx context.Context, entity pipeline.EntityType, mark time.Time) error {

	if _, err := r.pool.Exec(ctx, SAVE_WATERMARK_QUERY, string(entity), mark); err != nil {
		return fmt.Errorf("save watermark %s: %w", entity, err)
	}

	return nil
}
