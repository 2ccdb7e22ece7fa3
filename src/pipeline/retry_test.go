package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffManagerDoublesUntilMax(t *testing.T) {
	manager := NewBackoffManager(1*time.Second, 10*time.Second)

	assert.Equal(t, 1*time.Second, manager.GetInterval())

	manager.IncreaseInterval()
	assert.Equal(t, 2*time.Second, manager.GetInterval())

	manager.IncreaseInterval()
	assert.Equal(t, 4*time.Second, manager.GetInterval())

	manager.IncreaseInterval()
	assert.Equal(t, 8*time.Second, manager.GetInterval())

	manager.IncreaseInterval()
	assert.Equal(t, 10*time.Second, manager.GetInterval())

	manager.IncreaseInterval()
	assert.Equal(t, 10*time.Second, manager.GetInterval())
}

func TestBackoffManagerResetsToInitial(t *testing.T) {
	manager := NewBackoffManager(500*time.Millisecond, 5*time.Second)

	manager.IncreaseInterval()
	manager.IncreaseInterval()
	assert.Equal(t, 2*time.Second, manager.GetInterval())

	manager.ResetInterval()
	assert.Equal(t, 500*time.Millisecond, manager.GetInterval())
}

func TestRetryPolicyMinimumOneAttempt(t *testing.T) {
	policy := RetryPolicy{
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		MaxAttempts:     0,
	}

	b := policy.NewBackOff(context.Background())
	assert.NotNil(t, b)

	// con MaxAttempts 0 se normaliza a un solo intento, sin reintentos
	assert.Equal(t, time.Duration(-1), b.NextBackOff())
}
