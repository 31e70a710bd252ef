package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"ai-docqa-be/internal/bootstrap"
	"ai-docqa-be/internal/config"
	"ai-docqa-be/internal/server"
	"ai-docqa-be/internal/tracer"
	"ai-docqa-be/pkg/database"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Tracer
	shutdownTracer := tracer.InitTracer(cfg.Otel)
	defer shutdownTracer(context.Background())

	// 3. Initialize Database
	var gormDB *gorm.DB
	if cfg.App.StorageDriver != "memory" {
		poolCfg := database.DefaultPoolConfig()
		poolCfg.Verbose = cfg.Database.Verbose
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection, poolCfg)
		if err != nil {
			log.Panicf("Unable to connect to GORM DB: %v", err)
		}
		gormDB = db
	}

	// 4. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(gormDB, cfg)
	if err != nil {
		log.Fatalf("Failed to bootstrap: %v", err)
	}
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 5. Start Background Services
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Println("Background: Starting Consumer Service...")
		return container.ConsumerService.Consume(gctx)
	})

	g.Go(func() error {
		container.WebSocketHub.Run(gctx)
		return nil
	})

	if container.StatusRelay != nil {
		if err := container.StatusRelay.Start(gctx); err != nil {
			log.Printf("Status relay disabled: %v", err)
		}
	}

	if err := container.SweeperService.Start(cfg.Ingest.SweepSchedule); err != nil {
		log.Fatalf("Invalid sweep schedule %q: %v", cfg.Ingest.SweepSchedule, err)
	}
	defer container.SweeperService.Stop()

	// 6. Run Server
	srv := server.New(cfg, container)
	g.Go(srv.Run)

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		container.ChatEngine.Wait()
		return err
	})

	if err := g.Wait(); err != nil {
		log.Printf("Stopped: %v", err)
	}
}
