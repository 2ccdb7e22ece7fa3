package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upCheck(ctx context.Context) error { return nil }

func downCheck(ctx context.Context) error { return errors.New("connection refused") }

func testMonitor(deps []Dependency) *Monitor {
	return NewMonitor(deps, time.Minute, time.Second, nil, observability.NewNopLogger())
}

func TestMonitorHealthyWhenAllDependenciesUp(t *testing.T) {
	m := testMonitor([]Dependency{
		{Name: "postgres", Check: upCheck},
		{Name: "bus", Check: upCheck},
		{Name: "search", Check: upCheck},
	})

	m.probeAll(context.Background())

	snapshot := m.Current()
	assert.Equal(t, StatusHealthy, snapshot.Status)
	require.Len(t, snapshot.Dependencies, 3)

	for _, dep := range snapshot.Dependencies {
		assert.True(t, dep.Up, dep.Name)
	}
}

func TestMonitorDegradedWhenSinkDown(t *testing.T) {
	m := testMonitor([]Dependency{
		{Name: "postgres", Check: upCheck},
		{Name: "bus", Check: downCheck},
		{Name: "search", Check: upCheck},
	})

	m.probeAll(context.Background())

	snapshot := m.Current()
	assert.Equal(t, StatusDegraded, snapshot.Status)
}

func TestMonitorDegradedWhenSourceDownButSinksUp(t *testing.T) {
	m := testMonitor([]Dependency{
		{Name: "postgres", Check: downCheck},
		{Name: "bus", Check: upCheck},
		{Name: "columnar", Check: upCheck},
		{Name: "search", Check: upCheck},
	})

	m.probeAll(context.Background())

	snapshot := m.Current()
	assert.Equal(t, StatusDegraded, snapshot.Status)
	assert.False(t, m.DependencyUp("postgres"))
	assert.True(t, m.DependencyUp("bus"))
}

func TestMonitorUnhealthyWhenAllDependenciesDown(t *testing.T) {
	m := testMonitor([]Dependency{
		{Name: "postgres", Check: downCheck},
		{Name: "bus", Check: downCheck},
	})

	m.probeAll(context.Background())

	snapshot := m.Current()
	assert.Equal(t, StatusUnhealthy, snapshot.Status)

	var postgres DependencyStatus
	for _, dep := range snapshot.Dependencies {
		if dep.Name == "postgres" {
			postgres = dep
		}
	}

	assert.False(t, postgres.Up)
	assert.Equal(t, "connection refused", postgres.Error)
}

func TestMonitorProbeTimeoutMarksDependencyDown(t *testing.T) {
	slow := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	m := NewMonitor([]Dependency{
		{Name: "columnar", Check: slow},
	}, time.Minute, 5*time.Millisecond, nil, observability.NewNopLogger())

	m.probeAll(context.Background())

	snapshot := m.Current()
	assert.Equal(t, StatusUnhealthy, snapshot.Status)
	assert.False(t, snapshot.Dependencies[0].Up)
}

func TestMonitorStartsUnhealthyBeforeFirstProbe(t *testing.T) {
	m := testMonitor(nil)

	assert.Equal(t, StatusUnhealthy, m.Current().Status)
}
