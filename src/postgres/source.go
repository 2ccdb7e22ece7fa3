package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/observability"
	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/pipeline"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// entityTable describe la tabla fuente de una entidad y las columnas que
// viajan en el registro crudo. Las columnas de control (id, created_at,
// updated_at, deleted_at) son obligatorias en todas las tablas
type entityTable struct {
	table   string
	columns []string
}

var controlColumns = []string{"id", "created_at", "updated_at", "deleted_at"}

var entityTables = map[pipeline.EntityType]entityTable{
	pipeline.EntityAccount: {
		table:   "accounts",
		columns: []string{"email", "display_name", "status", "balance_cents"},
	},
	pipeline.EntityCreator: {
		table:   "creators",
		columns: []string{"account_id", "display_name", "bio", "verified"},
	},
	pipeline.EntityContent: {
		table:   "content_items",
		columns: []string{"creator_id", "title", "category", "price_cents", "status"},
	},
	pipeline.EntityAsset: {
		table:   "assets",
		columns: []string{"content_id", "uri", "mime_type", "size_bytes"},
	},
	pipeline.EntityTransaction: {
		table:   "transactions",
		columns: []string{"account_id", "content_id", "amount_cents", "currency", "status"},
	},
	pipeline.EntityRoyaltyPayment: {
		table:   "royalty_payments",
		columns: []string{"creator_id", "transaction_id", "amount_cents", "currency", "period", "status"},
	},
}

func (et entityTable) selectList() string {
	all := append(append([]string{}, controlColumns...), et.columns...)
	return strings.Join(all, ", ")
}

// SourceStore lee las mutaciones de las tablas de negocio por polling sobre
// updated_at. Implementa pipeline.ChangeSource y pipeline.NameResolver
type SourceStore struct {
	pool *pgxpool.Pool

	nameCacheMu  sync.Mutex
	nameCache    map[int64]cachedName
	nameCacheTTL time.Duration

	observability.Logger
}

type cachedName struct {
	name      string
	expiresAt time.Time
}

func NewSourceStore(pool *pgxpool.Pool, logger observability.Logger) *SourceStore {
	return &SourceStore{
		pool:         pool,
		nameCache:    make(map[int64]cachedName),
		nameCacheTTL: 1 * time.Minute,
		Logger:       logger,
	}
}

// FindMutatedSince retorna hasta limit filas con updated_at posterior al
// watermark, en orden ascendente. El desempate por id hace el orden estable
// cuando varias filas comparten timestamp
func (s *SourceStore) FindMutatedSince(ctx context.Context,
	entity pipeline.EntityType, since time.Time, limit int) ([]pipeline.RawRecord, error) {

	et, ok := entityTables[entity]
	if !ok {
		return nil, fmt.Errorf("unknown entity: %s", entity)
	}

	query := fmt.Sprintf(FIND_MUTATED_QUERY, et.selectList(), pgx.Identifier{et.table}.Sanitize())

	rows, err := s.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", et.table, err)
	}
	defer rows.Close()

	records := make([]pipeline.RawRecord, 0, limit)

	for rows.Next() {

		record, err := s.scanRecord(entity, rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", et.table, err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", et.table, err)
	}

	return records, nil
}

func (s *SourceStore) scanRecord(entity pipeline.EntityType, rows pgx.Rows) (pipeline.RawRecord, error) {

	values, err := rows.Values()
	if err != nil {
		return pipeline.RawRecord{}, err
	}

	fields := make(map[string]interface{}, len(values))

	for i, desc := range rows.FieldDescriptions() {
		fields[string(desc.Name)] = values[i]
	}

	id, ok := fields["id"].(int64)
	if !ok {
		return pipeline.RawRecord{}, errors.New("row without int64 id")
	}

	createdAt, ok := fields["created_at"].(time.Time)
	if !ok {
		return pipeline.RawRecord{}, errors.New("row without created_at")
	}

	updatedAt, ok := fields["updated_at"].(time.Time)
	if !ok {
		return pipeline.RawRecord{}, errors.New("row without updated_at")
	}

	var deletedAt *time.Time
	if t, ok := fields["deleted_at"].(time.Time); ok {
		deletedAt = &t
	}

	return pipeline.RawRecord{
		Entity:    entity,
		Key:       fmt.Sprintf("%s-%d", entity, id),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		DeletedAt: deletedAt,
		Fields:    fields,
	}, nil
}

// CountLiveRows cuenta las filas vigentes de la entidad, la base de la
// comparación del auditor contra cada sink
func (s *SourceStore) CountLiveRows(ctx context.Context, entity pipeline.EntityType) (int64, error) {

	et, ok := entityTables[entity]
	if !ok {
		return 0, fmt.Errorf("unknown entity: %s", entity)
	}

	var count int64

	q := fmt.Sprintf(COUNT_LIVE_ROWS_QUERY, pgx.Identifier{et.table}.Sanitize())

	if err := s.pool.QueryRow(ctx, q).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", et.table, err)
	}

	return count, nil
}

// CreatorDisplayName resuelve el nombre del creador para denormalizar los
// documentos de búsqueda. Cachea con TTL corto: el volumen de contenidos por
// creador hace que la misma consulta se repita dentro del mismo batch
func (s *SourceStore) CreatorDisplayName(ctx context.Context, creatorID int64) (string, error) {

	s.nameCacheMu.Lock()
	cached, ok := s.nameCache[creatorID]
	s.nameCacheMu.Unlock()

	if ok && time.Now().Before(cached.expiresAt) {
		return cached.name, nil
	}

	var name string

	err := s.pool.QueryRow(ctx, CREATOR_DISPLAY_NAME_QUERY, creatorID).Scan(&name)

	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("creator %d not found", creatorID)
	}

	if err != nil {
		return "", fmt.Errorf("resolve creator %d: %w", creatorID, err)
	}

	s.nameCacheMu.Lock()
	s.nameCache[creatorID] = cachedName{name: name, expiresAt: time.Now().Add(s.nameCacheTTL)}
	s.nameCacheMu.Unlock()

	return name, nil
}
