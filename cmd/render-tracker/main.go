package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gfxrelay/database"
	"gfxrelay/internal/config"
	"gfxrelay/internal/logging"
	"gfxrelay/internal/microservices/peer"
	"gfxrelay/internal/renderjob"
)

// render-tracker joins the relay as a Main peer and journals every render
// job the Sub dashboards report on.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	logger, logCloser, err := logging.New(cfg)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logCloser.Close()

	db, err := database.OpenGorm(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("database_open_failed", "error", err.Error())
		os.Exit(1)
	}
	defer database.Close(db)

	if err := database.Migrate(db, logger, &renderjob.RenderJob{}); err != nil {
		logger.Error("database_migrate_failed", "error", err.Error())
		os.Exit(1)
	}

	client := peer.NewMainClient(peer.OptionsFromConfig(cfg), logger)
	tracker := renderjob.NewTracker(renderjob.NewRepository(db), client, logger)

	unsubscribe := client.Subscribe(tracker)
	defer unsubscribe()

	client.OnConnectionChange(func(status peer.ConnectionStatus) {
		logger.Info("relay_connection", "status", status)
	})
	client.OnError(func(err error) {
		logger.Warn("relay_client_error", "error", err.Error())
	})
	client.Connect()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	active, err := tracker.Active(ctx)
	cancel()
	if err != nil {
		logger.Warn("active_jobs_query_failed", "error", err.Error())
	} else {
		logger.Info("render_tracker_started", "active_jobs", len(active))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("received_shutdown_signal")
	client.Disconnect()
}
