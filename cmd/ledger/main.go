// Package main is the entry point of the reputation ledger.
// It loads the configuration, builds the application and runs it until
// SIGINT/SIGTERM, then shuts down gracefully.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reputation-ledger/internal/app"
	"serotonyl.ru/reputation-ledger/internal/config"
	"serotonyl.ru/reputation-ledger/internal/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	setupLogging("text")

	log.Info("=== Reputation ledger starting ===")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	setupLogging(cfg.AppLogFormat)
	if level, err := log.ParseLevel(cfg.AppLogLevel); err == nil {
		log.SetLevel(level)
	}

	// Cancelled on Ctrl+C or docker stop.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "reputation-ledger", version, cfg.OTelEndpoint)
	if err != nil {
		log.WithError(err).Fatal("Failed to set up tracing")
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.WithError(err).Warn("Tracing shutdown failed")
		}
	}()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize application")
	}
	defer application.Close()

	log.WithFields(log.Fields{
		"version": version,
		"storage": cfg.StorageDriver,
	}).Info("=== Reputation ledger ready ===")

	if err := application.Run(ctx); err != nil {
		log.WithError(err).Error("Application stopped with error")
	}

	log.Info("=== Reputation ledger stopped ===")
}

// setupLogging configures the log format: json for log shippers, text
// otherwise.
func setupLogging(format string) {
	if format == "json" {
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)
}
