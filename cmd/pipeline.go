package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/app"
	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/config"
	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/health"
	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/observability"
	"github.com/SOLUCIONESSYCOM/scribe"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func synchronize() {
	ctx := context.Background()

	logConfig, err := config.LogCfg()
	if err != nil {
		panic(fmt.Sprintf("error loading log config: %v", err))
	}

	sc, err := scribe.New(logConfig, nil, nil)
	if err != nil {
		panic(fmt.Sprintf("error creating scribe: %v", err))
	}

	logger := observability.NewScribeLogger(sc)

	serverConfig, err := config.ServerCfg()
	if err != nil {
		logger.Error(ctx, "Error loading server config", err)
		panic(fmt.Sprintf("error loading server config: %v", err))
	}

	syncConfig, err := config.SyncCfg()
	if err != nil {
		logger.Error(ctx, "Error loading sync config", err)
		panic(fmt.Sprintf("error loading sync config: %v", err))
	}

	// Crear servicio de métricas
	metricsService := observability.NewMetricsService()

	// Inicializar métricas del pipeline
	observability.NewSyncMetrics(metricsService.GetRegistry())

	// Crear servicio de sincronización
	service, err := app.NewSyncService(ctx, logger)
	if err != nil {
		panic(fmt.Sprintf("error creating sync service: %v", err))
	}
	defer service.Close(ctx)

	// Un worker late al inicio de cada ciclo; un latido más viejo que el
	// backoff máximo más dos intervalos indica un worker colgado
	livenessMaxAge := syncConfig.MaxBackoff() + 2*syncConfig.PollInterval()

	// Configurar servidor HTTP con Gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// Endpoint de métricas de Prometheus
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metricsService.GetRegistry(), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})))

	router.GET("/health", func(c *gin.Context) {
		snapshot := service.Monitor().Current()

		status := http.StatusOK
		if snapshot.Status == health.StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}

		c.JSON(status, snapshot)
	})

	router.GET("/ready", func(c *gin.Context) {
		if !service.Ready() {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not_ready",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "ready",
		})
	})

	router.GET("/live", func(c *gin.Context) {
		if !service.Dispatcher().Alive(livenessMaxAge) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "stalled",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "alive",
		})
	})

	router.GET("/audit/report", func(c *gin.Context) {
		report := service.Auditor().Latest()

		if report == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"status": "no audit run yet",
			})
			return
		}

		c.JSON(http.StatusOK, report)
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", serverConfig.HttpPort),
		Handler: router,
	}

	go func() {
		logger.Info(ctx, "Starting http server", "port", serverConfig.HttpPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "Http server error", err, "port", serverConfig.HttpPort)
		}
	}()

	// Cerrar servidor HTTP al terminar
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info(ctx, "Stopping http server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error(ctx, "Error stopping http server", err)
		}
	}()

	// Manejar señales de terminación
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	serviceCtx, serviceCancel := context.WithCancel(ctx)
	defer serviceCancel()

	if err := service.Start(serviceCtx); err != nil {
		panic(fmt.Sprintf("error starting sync service: %v", err))
	}

	sig := <-sigChan
	logger.Info(ctx, "Received termination signal", "signal", sig.String())

	serviceCancel()
}

func main() {
	fmt.Println("Starting synchronization...")
	synchronize()
	fmt.Println("Synchronization stopped")
}
