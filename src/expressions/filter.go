package expressions

import (
	"context"
	"slices"
	"strings"

	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/config"
	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/observability"
	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/pipeline"
)

// ExpressionFilter decide por evento según las operaciones y condiciones
// configuradas en el tracker. Un error de evaluación descarta el evento
// para ese sink
type ExpressionFilter struct {
	*Evaluator
	observability.Logger
}

func NewExpressionFilter(config config.FilterConfig, logger observability.Logger) *ExpressionFilter {
	return &ExpressionFilter{Evaluator: NewEvaluator(config), Logger: logger}
}

func (f *ExpressionFilter) ShouldProcess(ctx context.Context, event *pipeline.ChangeEvent) bool {

	if len(f.FilterConfig.Operations) > 0 {

		eventOperation := strings.ToLower(string(event.Operation))

		if !slices.Contains(f.FilterConfig.Operations, eventOperation) {
			return false
		}
	}

	if len(f.FilterConfig.Conditions) == 0 {
		return true
	}

	result, err := f.Evaluator.Evaluate(event)

	if err != nil {

		f.Error(ctx, "Error evaluating expression", err,
			"entity", string(event.EntityType), "key", event.SourceKey)

		return false
	}

	return result
}

type ExpressionFilterFactory struct {
	Logger observability.Logger
}

func NewExpressionFilterFactory(logger observability.Logger) *ExpressionFilterFactory {
	return &ExpressionFilterFactory{Logger: logger}
}

func (f *ExpressionFilterFactory) CreateFilter(config config.FilterConfig) pipeline.EventFilter {
	return NewExpressionFilter(config, f.Logger)
}
