package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/app"
	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/config"
	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/observability"
	"github.com/SOLUCIONESSYCOM/scribe"
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

	service, err := app.NewSyncService(ctx, logger)
	if err != nil {
		panic(fmt.Sprintf("error creating sync service: %v", err))
	}
	defer service.Close(ctx)

	serviceCtx, serviceCancel := context.WithCancel(ctx)
	defer serviceCancel()

	if err := service.Start(serviceCtx); err != nil {
		panic(fmt.Sprintf("error starting sync service: %v", err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan

	serviceCancel()
}

func main() {

	fmt.Println("Starting synchronization...")
	synchronize()
	fmt.Println("Synchronization stopped")
}
