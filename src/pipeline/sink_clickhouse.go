package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	chdriver "github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/observability"
)

// ColumnarSink replica entidades con valor analítico en tablas
// denormalizadas de ClickHouse. La idempotencia por source_key viene del
// engine ReplacingMergeTree versionado por mutated_at; los deletes se
// escriben como tombstones (is_deleted = 1)
type ColumnarSink struct {
	conn     chdriver.Conn
	entities map[EntityType]bool
	logger   observability.Logger
}

// Entidades con tabla analítica; el resto son no-ops en este adaptador
var defaultColumnarEntities = []EntityType{
	EntityContent,
	EntityTransaction,
	EntityRoyaltyPayment,
}

func NewColumnarSink(conn chdriver.Conn,
	entities []EntityType,
	logger observability.Logger) (*ColumnarSink, error) {

	if conn == nil {
		return nil, errors.New("clickhouse connection is required")
	}

	if len(entities) == 0 {
		entities = defaultColumnarEntities
	}

	wired := make(map[EntityType]bool, len(entities))
	for _, entity := range entities {
		wired[entity] = true
	}

	return &ColumnarSink{
		conn:     conn,
		entities: wired,
		logger:   logger,
	}, nil
}

func (cs *ColumnarSink) Name() string {
	return "columnar"
}

func (cs *ColumnarSink) tableFor(entity EntityType) string {
	return fmt.Sprintf("cdc_%s", entity)
}

// EnsureTables crea las tablas analíticas si no existen
func (cs *ColumnarSink) EnsureTables(ctx context.Context) error {

	ddl := map[EntityType]string{
		EntityContent: `
			CREATE TABLE IF NOT EXISTS cdc_content (
				source_key  String,
				id          Int64,
				creator_id  Int64,
				title       String,
				category    String,
				price_cents Int64,
				status      String,
				is_deleted  UInt8,
				mutated_at  DateTime64(3)
			) ENGINE = ReplacingMergeTree(mutated_at)
			ORDER BY source_key`,
		EntityTransaction: `
			CREATE TABLE IF NOT EXISTS cdc_transaction (
				source_key   String,
				id           Int64,
				account_id   Int64,
				content_id   Int64,
				amount_cents Int64,
				currency     String,
				status       String,
				is_deleted   UInt8,
				mutated_at   DateTime64(3)
			) ENGINE = ReplacingMergeTree(mutated_at)
			ORDER BY source_key`,
		EntityRoyaltyPayment: `
			CREATE TABLE IF NOT EXISTS cdc_royalty_payment (
				source_key     String,
				id             Int64,
				creator_id     Int64,
				transaction_id Int64,
				amount_cents   Int64,
				currency       String,
				period         String,
				status         String,
				is_deleted     UInt8,
				mutated_at     DateTime64(3)
			) ENGINE = ReplacingMergeTree(mutated_at)
			ORDER BY source_key`,
	}

	for entity := range cs.entities {
		query, ok := ddl[entity]
		if !ok {
			return fmt.Errorf("no analytics table defined for entity %s", entity)
		}

		if err := cs.conn.Exec(ctx, query); err != nil {
			return fmt.Errorf("create table %s: %w", cs.tableFor(entity), err)
		}
	}

	return nil
}

func (cs *ColumnarSink) Write(ctx context.Context, event *ChangeEvent) error {
	if event == nil {
		return nil
	}

	if !cs.entities[event.EntityType] {
		return nil
	}

	if event.IsEmptyPayload() {
		cs.logger.Warn(ctx, "Evento con payload vacío, no se inserta", nil,
			"sink", cs.Name(), "entity", string(event.EntityType), "key", event.SourceKey)
		return nil
	}

	deleted := uint8(0)
	if event.Operation == OperationDelete {
		deleted = 1
	}

	var err error

	switch payload := event.Payload.(type) {
	case ContentPayload:
		err = cs.conn.Exec(ctx, `
			INSERT INTO cdc_content
				(source_key, id, creator_id, title, category, price_cents, status, is_deleted, mutated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			event.SourceKey, payload.ID, payload.CreatorID, payload.Title,
			payload.Category, payload.PriceCents, payload.Status, deleted, event.MutatedAt)

	case TransactionPayload:
		err = cs.conn.Exec(ctx, `
			INSERT INTO cdc_transaction
				(source_key, id, account_id, content_id, amount_cents, currency, status, is_deleted, mutated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			event.SourceKey, payload.ID, payload.AccountID, payload.ContentID,
			payload.AmountCents, payload.Currency, payload.Status, deleted, event.MutatedAt)

	case RoyaltyPaymentPayload:
		err = cs.conn.Exec(ctx, `
			INSERT INTO cdc_royalty_payment
				(source_key, id, creator_id, transaction_id, amount_cents, currency, period, status, is_deleted, mutated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			event.SourceKey, payload.ID, payload.CreatorID, payload.TransactionID,
			payload.AmountCents, payload.Currency, payload.Period, payload.Status,
			deleted, event.MutatedAt)

	default:
		return NewPermanentSinkError(cs.Name(),
			fmt.Errorf("payload type %T not mapped to an analytics table", event.Payload))
	}

	if err != nil {
		return cs.classify(err)
	}

	return nil
}

func (cs *ColumnarSink) classify(err error) error {
	var exception *clickhouse.Exception

	// Una excepción del servidor es un rechazo de schema/validación; los
	// errores de transporte se reintentan
	if errors.As(err, &exception) {
		return NewPermanentSinkError(cs.Name(), err)
	}

	return NewTransientSinkError(cs.Name(), err)
}

// Count cuenta claves únicas vivas, colapsando versiones del
// ReplacingMergeTree y excluyendo tombstones
func (cs *ColumnarSink) Count(ctx context.Context, entity EntityType) (int64, error) {
	if !cs.entities[entity] {
		return 0, nil
	}

	query := fmt.Sprintf(`
		SELECT count()
		FROM (
			SELECT source_key, argMax(is_deleted, mutated_at) AS deleted
			FROM %s
			GROUP BY source_key
		)
		WHERE deleted = 0`, cs.tableFor(entity))

	var count uint64
	if err := cs.conn.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", cs.tableFor(entity), err)
	}

	return int64(count), nil
}

func (cs *ColumnarSink) Ping(ctx context.Context) error {
	return cs.conn.Ping(ctx)
}

func (cs *ColumnarSink) Close() error {
	return cs.conn.Close()
}

// Wired indica si la entidad tiene tabla analítica en este adaptador
func (cs *ColumnarSink) Wired(entity EntityType) bool {
	return cs.entities[entity]
}
