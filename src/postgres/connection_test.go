package postgres

import (
	"testing"
	"time"

	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/observability"

	"github.com/stretchr/testify/assert"
)

func TestCalculateBackoffDoublesAndCaps(t *testing.T) {
	cm := NewConnectionManager(nil, observability.NewNopLogger())

	assert.Equal(t, 10*time.Second, cm.calculateBackoff(1))
	assert.Equal(t, 20*time.Second, cm.calculateBackoff(2))
	assert.Equal(t, 60*time.Second, cm.calculateBackoff(5))
}

func TestCalculateBackoffHighAttemptStaysCapped(t *testing.T) {
	cm := NewConnectionManager(nil, observability.NewNopLogger())

	// Intentos altos no desbordan el shift a un delay negativo
	for _, attempt := range []int{31, 64, 1000} {
		delay := cm.calculateBackoff(attempt)
		assert.Equal(t, 60*time.Second, delay, "attempt %d", attempt)
	}
}
