package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contentFields() map[string]interface{} {
	return map[string]interface{}{
		"id":          int64(42),
		"creator_id":  int64(7),
		"title":       "Midnight Sessions Vol. 2",
		"category":    "music",
		"price_cents": int64(1299),
		"status":      "published",
	}
}

func TestNormalizeClassifiesInsertWhenTimestampsMatch(t *testing.T) {
	created := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	record := RawRecord{
		Entity:    EntityContent,
		Key:       "content-42",
		CreatedAt: created,
		UpdatedAt: created.Add(500 * time.Microsecond),
		Fields:    contentFields(),
	}

	event := Normalize(record)

	assert.Equal(t, OperationInsert, event.Operation)
	assert.Equal(t, "content-42", event.SourceKey)
	assert.Equal(t, EntityContent, event.EntityType)
}

func TestNormalizeClassifiesUpdateWhenUpdatedLater(t *testing.T) {
	created := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	record := RawRecord{
		Entity:    EntityContent,
		Key:       "content-42",
		CreatedAt: created,
		UpdatedAt: created.Add(2 * time.Hour),
		Fields:    contentFields(),
	}

	event := Normalize(record)

	assert.Equal(t, OperationUpdate, event.Operation)
}

func TestNormalizeClassifiesDeleteWhenSoftDeleted(t *testing.T) {
	created := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	deleted := created.Add(time.Hour)

	record := RawRecord{
		Entity:    EntityContent,
		Key:       "content-42",
		CreatedAt: created,
		UpdatedAt: deleted,
		DeletedAt: &deleted,
		Fields:    contentFields(),
	}

	event := Normalize(record)

	assert.Equal(t, OperationDelete, event.Operation)
}

func TestNormalizeBuildsTypedPayload(t *testing.T) {
	created := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	record := RawRecord{
		Entity:    EntityContent,
		Key:       "content-42",
		CreatedAt: created,
		UpdatedAt: created,
		Fields:    contentFields(),
	}

	event := Normalize(record)

	payload, ok := event.Payload.(ContentPayload)
	require.True(t, ok)

	assert.Equal(t, int64(42), payload.ID)
	assert.Equal(t, int64(7), payload.CreatorID)
	assert.Equal(t, "Midnight Sessions Vol. 2", payload.Title)
	assert.Equal(t, int64(1299), payload.PriceCents)
}

func TestNormalizeMissingRequiredFieldYieldsEmptyPayload(t *testing.T) {
	created := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	fields := contentFields()
	delete(fields, "title")

	record := RawRecord{
		Entity:    EntityContent,
		Key:       "content-42",
		CreatedAt: created,
		UpdatedAt: created,
		Fields:    fields,
	}

	event := Normalize(record)

	assert.True(t, event.IsEmptyPayload())
	// La clasificación y el watermark no dependen del payload
	assert.Equal(t, OperationInsert, event.Operation)
	assert.Equal(t, record.UpdatedAt, event.MutatedAt)
}

func TestNormalizeUnknownEntityYieldsEmptyPayload(t *testing.T) {
	created := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	record := RawRecord{
		Entity:    EntityType("shipment"),
		Key:       "shipment-1",
		CreatedAt: created,
		UpdatedAt: created,
		Fields:    map[string]interface{}{"id": int64(1)},
	}

	event := Normalize(record)

	assert.True(t, event.IsEmptyPayload())
}

func TestBusKeyFormat(t *testing.T) {
	mutated := time.Date(2026, 3, 10, 12, 0, 0, 123456789, time.UTC)

	event := &ChangeEvent{
		EntityType: EntityTransaction,
		MutatedAt:  mutated,
	}

	assert.Equal(t, "transaction-1773144000123456789", event.BusKey())
}
