package health

import (
	"context"
	"sync"
	"time"

	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/observability"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Dependency es una dependencia externa sondeable: la fuente o un sink
type Dependency struct {
	Name  string
	Check func(ctx context.Context) error
}

type DependencyStatus struct {
	Name      string    `json:"name"`
	Up        bool      `json:"up"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

type Snapshot struct {
	Status       Status             `json:"status"`
	Dependencies []DependencyStatus `json:"dependencies"`
	CheckedAt    time.Time          `json:"checked_at"`
}

// Monitor sondea las dependencias en paralelo cada intervalo y agrega un
// estado global: healthy si todas responden, unhealthy si ninguna responde,
// degraded en cualquier otro caso
type Monitor struct {
	dependencies []Dependency
	interval     time.Duration
	probeTimeout time.Duration
	metrics      *observability.SyncMetrics

	mu       sync.RWMutex
	snapshot Snapshot

	wg     sync.WaitGroup
	stopCh chan struct{}

	observability.Logger
}

func NewMonitor(dependencies []Dependency,
	interval time.Duration,
	probeTimeout time.Duration,
	metrics *observability.SyncMetrics,
	logger observability.Logger) *Monitor {

	return &Monitor{
		dependencies: dependencies,
		interval:     interval,
		probeTimeout: probeTimeout,
		metrics:      metrics,
		snapshot:     Snapshot{Status: StatusUnhealthy},
		stopCh:       make(chan struct{}),
		Logger:       logger,
	}
}

func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.run(ctx)
}

func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

// Current retorna la última instantánea de salud
func (m *Monitor) Current() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// DependencyUp indica si la dependencia respondió en la última pasada
func (m *Monitor) DependencyUp(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, dep := range m.snapshot.Dependencies {
		if dep.Name == name {
			return dep.Up
		}
	}

	return false
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	// Primera pasada inmediata para que /ready no dependa del intervalo
	m.probeAll(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.probeAll(ctx)
		}
	}
}

func (m *Monitor) probeAll(ctx context.Context) {

	results := make([]DependencyStatus, len(m.dependencies))

	var wg sync.WaitGroup

	for i, dep := range m.dependencies {
		wg.Add(1)

		go func(i int, dep Dependency) {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
			defer cancel()

			err := dep.Check(probeCtx)

			status := DependencyStatus{
				Name:      dep.Name,
				Up:        err == nil,
				CheckedAt: time.Now().UTC(),
			}

			if err != nil {
				status.Error = err.Error()
			}

			results[i] = status
		}(i, dep)
	}

	wg.Wait()

	upCount := 0

	for _, result := range results {

		m.metrics.SetDependencyUp(result.Name, result.Up)

		if result.Up {
			upCount++
			continue
		}

		m.Warn(ctx, "Dependencia caída", nil,
			"dependency", result.Name, "error", result.Error)
	}

	overall := StatusHealthy

	switch {
	case upCount == len(results):
	case upCount == 0:
		overall = StatusUnhealthy
	default:
		overall = StatusDegraded
	}

	m.mu.Lock()
	m.snapshot = Snapshot{
		Status:       overall,
		Dependencies: results,
		CheckedAt:    time.Now().UTC(),
	}
	m.mu.Unlock()
}
