package postgres

import (
	"context"
	"fmt"

	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/pipeline"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VerifyEntityTables comprueba en el arranque que cada entidad rastreada
// tiene su tabla fuente accesible. Falla rápido ante un esquema incompleto
func VerifyEntityTables(ctx context.Context, pool *pgxpool.Pool, entities []pipeline.EntityType) error {

	for _, entity := range entities {

		et, ok := entityTables[entity]
		if !ok {
			return fmt.Errorf("unknown entity: %s", entity)
		}

		var count int

		q := fmt.Sprintf(VERIFY_TABLE_QUERY, pgx.Identifier{et.table}.Sanitize())

		if err := pool.QueryRow(ctx, q).Scan(&count); err != nil {
			return fmt.Errorf("verificar tabla %s: %w", et.table, err)
		}
	}

	return nil
}
