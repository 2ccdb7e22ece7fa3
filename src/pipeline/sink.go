package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type ErrorClass string

const (
	ErrorClassTransient ErrorClass = "transient"
	ErrorClassPermanent ErrorClass = "permanent"
)

// SinkError clasifica un fallo de escritura: transient se reintenta dentro
// del ciclo, permanent se descarta y se alerta
type SinkError struct {
	Sink  string
	Class ErrorClass
	Err   error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s: %s error: %v", e.Sink, e.Class, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

func NewTransientSinkError(sink string, err error) *SinkError {
	return &SinkError{Sink: sink, Class: ErrorClassTransient, Err: err}
}

func NewPermanentSinkError(sink string, err error) *SinkError {
	return &SinkError{Sink: sink, Class: ErrorClassPermanent, Err: err}
}

func IsPermanentSinkError(err error) bool {
	var sinkErr *SinkError
	if errors.As(err, &sinkErr) {
		return sinkErr.Class == ErrorClassPermanent
	}
	return false
}

// EventSink es el contrato uniforme de los tres adaptadores de destino.
// Write debe ser idempotente por SourceKey: escribir el mismo evento dos
// veces converge al mismo estado final en el sink.
type EventSink interface {
	Name() string

	Write(ctx context.Context, event *ChangeEvent) error

	// Count retorna el número de registros visibles en el sink para la
	// entidad, usado por el auditor de consistencia
	Count(ctx context.Context, entity EntityType) (int64, error)

	// Ping verifica que el sink sea alcanzable
	Ping(ctx context.Context) error

	Close() error
}

// ChangeSource es la capacidad de consulta sobre la fuente relacional
type ChangeSource interface {
	FindMutatedSince(ctx context.Context, entity EntityType,
		since time.Time, limit int) ([]RawRecord, error)
}
