package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"gfxrelay/internal/config"
	"gfxrelay/internal/logging"
	"gfxrelay/internal/microservices/relay"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, logCloser, err := logging.New(cfg)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logCloser.Close()

	var presence relay.PresenceStore = relay.NopPresence{}
	if cfg.PresenceEnabled {
		rp, err := relay.NewRedisPresence(cfg.RedisAddr(), cfg.RedisPassword, cfg.PresenceTTL)
		if err != nil {
			// presence is optional; the relay keeps running without it
			logger.Warn("presence_disabled", "redis_addr", cfg.RedisAddr(), "error", err.Error())
		} else {
			presence = rp
			logger.Info("presence_enabled", "redis_addr", cfg.RedisAddr(), "ttl", cfg.PresenceTTL)
		}
	}
	defer presence.Close()

	server := relay.NewServer(relay.OptionsFromConfig(cfg), logger, presence)
	if err := server.Start(); err != nil {
		logger.Error("relay_start_failed", "error", err.Error())
		os.Exit(1)
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("received_shutdown_signal")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Error("relay_shutdown_error", "error", err.Error())
		return
	}
	logger.Info("server_stopped_gracefully")
}
