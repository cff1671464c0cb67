// Package main contains the entrypoint for the Discord relay bot.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hivebot/internal/config"
	"hivebot/internal/genapi"
	"hivebot/internal/logger"
	"hivebot/internal/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes all components (config, logger, generation client, bot
// swarm), blocks until shutdown, and returns the process exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info("Logger initialized", "level", cfg.Log.Level, "format", cfg.Log.Format)
	log.Info("Configuration loaded",
		"backend", cfg.API.Backend, "bots", len(cfg.Bots), "timeout", cfg.API.Timeout)

	gen, err := genapi.New(ctx, cfg.API, log)
	if err != nil {
		log.Error("Failed to initialize generation client", "error", err)
		return 1
	}

	// Best-effort catalog probe, useful when a configured model id is stale.
	if cfg.API.Backend == "openai" && log.Enabled(ctx, slog.LevelDebug) {
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if models, err := genapi.NewOpenAIClient(cfg.API, log).ListModels(probeCtx); err != nil {
			log.Debug("Model listing probe failed", "error", err)
		} else {
			log.Debug("Backend model catalog", "models", models)
		}
		cancel()
	}

	swarm := session.NewSwarm(cfg, gen, log)

	log.Info("Starting bot swarm...")
	if err := swarm.Run(ctx); err != nil {
		log.Error("Bot swarm stopped with failures", "error", err)
		return 1
	}

	log.Info("Bot swarm stopped gracefully.")
	return 0
}
