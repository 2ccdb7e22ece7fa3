package pipeline

import (
	"context"

	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/config"
)

type EventFilter interface {
	ShouldProcess(ctx context.Context, event *ChangeEvent) bool
}

type EventFilterFactory interface {
	CreateFilter(config config.FilterConfig) EventFilter
}
