package pipeline

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy define el reintento exponencial acotado de escrituras a sinks,
// con alcance de un ciclo
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxAttempts     int
}

func (p RetryPolicy) NewBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.RandomizationFactor = 0.2

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	// MaxAttempts cuenta el intento inicial, por eso attempts-1 reintentos
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// BackoffManager maneja el backoff exponencial del intervalo de polling
// cuando un ciclo falla; se resetea en el primer ciclo exitoso
type BackoffManager struct {
	currentInterval time.Duration
	maxInterval     time.Duration
	initialInterval time.Duration
}

func NewBackoffManager(initialInterval, maxInterval time.Duration) *BackoffManager {
	return &BackoffManager{
		currentInterval: initialInterval,
		maxInterval:     maxInterval,
		initialInterval: initialInterval,
	}
}

func (b *BackoffManager) GetInterval() time.Duration {
	return b.currentInterval
}

func (b *BackoffManager) IncreaseInterval() {
	newInterval := b.currentInterval * 2
	if newInterval > b.maxInterval {
		newInterval = b.maxInterval
	}
	b.currentInterval = newInterval
}

func (b *BackoffManager) ResetInterval() {
	b.currentInterval = b.initialInterval
}
