package expressions

import (
	"context"
	"testing"
	"time"

	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/config"
	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/observability"
	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/pipeline"

	"github.com/stretchr/testify/assert"
)

func contentEvent(operation pipeline.Operation, priceCents int64, status string) *pipeline.ChangeEvent {
	return &pipeline.ChangeEvent{
		EntityType: pipeline.EntityContent,
		Operation:  operation,
		SourceKey:  "content-42",
		MutatedAt:  time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
		Payload: pipeline.ContentPayload{
			ID:         42,
			CreatorID:  7,
			Title:      "Midnight Sessions Vol. 2",
			PriceCents: priceCents,
			Status:     status,
		},
	}
}

func TestFilterByOperation(t *testing.T) {
	filter := NewExpressionFilter(config.FilterConfig{
		Operations: []string{"insert", "update"},
	}, observability.NewNopLogger())

	ctx := context.Background()

	assert.True(t, filter.ShouldProcess(ctx, contentEvent(pipeline.OperationInsert, 100, "published")))
	assert.True(t, filter.ShouldProcess(ctx, contentEvent(pipeline.OperationUpdate, 100, "published")))
	assert.False(t, filter.ShouldProcess(ctx, contentEvent(pipeline.OperationDelete, 100, "published")))
}

func TestFilterByPayloadCondition(t *testing.T) {
	filter := NewExpressionFilter(config.FilterConfig{
		Conditions: []config.Condition{
			{Field: "payload.status", Operator: "==", Value: "published"},
		},
	}, observability.NewNopLogger())

	ctx := context.Background()

	assert.True(t, filter.ShouldProcess(ctx, contentEvent(pipeline.OperationInsert, 100, "published")))
	assert.False(t, filter.ShouldProcess(ctx, contentEvent(pipeline.OperationInsert, 100, "draft")))
}

func TestFilterNumericComparison(t *testing.T) {
	filter := NewExpressionFilter(config.FilterConfig{
		Conditions: []config.Condition{
			{Field: "payload.price_cents", Operator: ">=", Value: float64(1000)},
		},
	}, observability.NewNopLogger())

	ctx := context.Background()

	assert.True(t, filter.ShouldProcess(ctx, contentEvent(pipeline.OperationInsert, 1299, "published")))
	assert.False(t, filter.ShouldProcess(ctx, contentEvent(pipeline.OperationInsert, 500, "published")))
}

func TestFilterAndLogicRequiresAllConditions(t *testing.T) {
	filter := NewExpressionFilter(config.FilterConfig{
		Logic: "AND",
		Conditions: []config.Condition{
			{Field: "payload.status", Operator: "==", Value: "published"},
			{Field: "payload.price_cents", Operator: ">", Value: float64(0)},
		},
	}, observability.NewNopLogger())

	ctx := context.Background()

	assert.True(t, filter.ShouldProcess(ctx, contentEvent(pipeline.OperationInsert, 100, "published")))
	assert.False(t, filter.ShouldProcess(ctx, contentEvent(pipeline.OperationInsert, 0, "published")))
}

func TestFilterOrLogic(t *testing.T) {
	filter := NewExpressionFilter(config.FilterConfig{
		Logic: "OR",
		Conditions: []config.Condition{
			{Field: "payload.status", Operator: "==", Value: "published"},
			{Field: "payload.status", Operator: "==", Value: "archived"},
		},
	}, observability.NewNopLogger())

	ctx := context.Background()

	assert.True(t, filter.ShouldProcess(ctx, contentEvent(pipeline.OperationInsert, 100, "archived")))
	assert.False(t, filter.ShouldProcess(ctx, contentEvent(pipeline.OperationInsert, 100, "draft")))
}

func TestFilterEntityAndOperationPrefixes(t *testing.T) {
	filter := NewExpressionFilter(config.FilterConfig{
		Conditions: []config.Condition{
			{Field: "entity", Operator: "==", Value: "content"},
			{Field: "operation", Operator: "!=", Value: "delete"},
		},
	}, observability.NewNopLogger())

	ctx := context.Background()

	assert.True(t, filter.ShouldProcess(ctx, contentEvent(pipeline.OperationUpdate, 100, "published")))
	assert.False(t, filter.ShouldProcess(ctx, contentEvent(pipeline.OperationDelete, 100, "published")))
}

func TestFilterUnknownFieldPrefixRejectsEvent(t *testing.T) {
	filter := NewExpressionFilter(config.FilterConfig{
		Conditions: []config.Condition{
			{Field: "row.status", Operator: "==", Value: "published"},
		},
	}, observability.NewNopLogger())

	assert.False(t, filter.ShouldProcess(context.Background(),
		contentEvent(pipeline.OperationInsert, 100, "published")))
}
