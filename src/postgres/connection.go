package postgres

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/config"
	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/observability"

	"github.com/jackc/pgx/v5/pgxpool"
)

type ConnectionManager struct {
	config     *config.PostgresConfig
	logger     observability.Logger
	pool       *pgxpool.Pool
	retryDelay time.Duration
	maxRetries int
}

func NewConnectionManager(cfg *config.PostgresConfig,
	logger observability.Logger) *ConnectionManager {

	return &ConnectionManager{
		config:     cfg,
		logger:     logger,
		retryDelay: 5 * time.Second,
		maxRetries: -1, // -1 = infinito
	}
}

func (cm *ConnectionManager) ConnectWithRetry(ctx context.Context) error {

	for attempt := 0; cm.maxRetries < 0 || attempt < cm.maxRetries; attempt++ {

		if attempt == math.MaxInt {

			cm.logger.Error(ctx,
				fmt.Sprintf("No se pudo conectar después de %d intentos reiniciando contador a 60", math.MaxInt), nil)

			attempt = 60

		}

		if attempt > 0 {

			delay := cm.calculateBackoff(attempt)

			cm.logger.Warn(ctx, "Reintentando conexión a PostgreSQL", nil,
				"attempt", attempt,
				"delay", delay.String())

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := cm.connect(ctx)

		if err == nil {
			cm.logger.Info(ctx, "Conexión a PostgreSQL establecida exitosamente")

			return nil
		}

		cm.logger.Error(ctx, "Error conectando a PostgreSQL", err,
			"attempt", attempt+1)
	}

	return fmt.Errorf("no se pudo conectar después de %d intentos", cm.maxRetries)
}

func (cm *ConnectionManager) connect(ctx context.Context) error {

	poolConfig, err := pgxpool.ParseConfig(cm.config.ConnectionString())
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("connect pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping: %w", err)
	}

	cm.pool = pool

	return nil
}

func (cm *ConnectionManager) calculateBackoff(attempt int) time.Duration {
	// El shift se acota para que intentos altos no desborden a un delay
	// negativo
	if attempt > 6 {
		attempt = 6
	}

	delay := cm.retryDelay * time.Duration(1<<uint(attempt))
	if delay > 60*time.Second {
		delay = 60 * time.Second
	}
	return delay
}

func (cm *ConnectionManager) Pool() *pgxpool.Pool {
	return cm.pool
}

func (cm *ConnectionManager) Close() {
	if cm.pool != nil {
		cm.pool.Close()
	}
}

func (cm *ConnectionManager) Reconnect(ctx context.Context) error {
	cm.Close()
	return cm.ConnectWithRetry(ctx)
}

func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	if cm.pool == nil {
		return fmt.Errorf("pool is nil")
	}

	var result int
	err := cm.pool.QueryRow(ctx, "SELECT 1").Scan(&result)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	return nil
}
