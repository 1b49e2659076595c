package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"discussion-companion-be/internal/bootstrap"
	"discussion-companion-be/internal/config"
	"discussion-companion-be/internal/model"
	"discussion-companion-be/internal/server"
	"discussion-companion-be/internal/tracer"
	"discussion-companion-be/pkg/database"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	gormDB, err := database.NewGormDB(database.GormConfig{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.Connection,
		Quiet:  cfg.IsProduction(),
	})
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	if err := gormDB.AutoMigrate(&model.User{}); err != nil {
		log.Fatalf("Unable to migrate users: %v", err)
	}

	// The container migrates documents itself when the gorm store is selected.
	container, err := bootstrap.NewContainer(gormDB, cfg)
	if err != nil {
		log.Fatalf("Unable to build container: %v", err)
	}
	defer container.Close()

	shutdownTracer := tracer.InitTracer(cfg.App, container.Logger)
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			container.Logger.Warn("Main", "Tracer shutdown failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	container.Start(ctx)

	srv := server.New(cfg, container)
	go func() {
		<-ctx.Done()
		container.Logger.Info("Main", "Shutting down", nil)
		if err := srv.Shutdown(); err != nil {
			container.Logger.Error("Main", "Server shutdown failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	if err := srv.Run(); err != nil {
		container.Logger.Error("Main", "Server stopped", map[string]interface{}{
			"error": err.Error(),
			"store": cfg.Store.Driver,
		})
	}
}
