package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/cirak-widget-go/internal/app"
	"github.com/kapu/cirak-widget-go/internal/config"
	"github.com/kapu/cirak-widget-go/internal/util"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := util.NewLogger(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Cirak widget backend starting...",
		zap.String("chat_mode", cfg.Chat.Mode),
		zap.String("store", cfg.Store.Driver),
		zap.String("log_level", cfg.Logging.Level),
	)

	buildCtx, buildCancel := context.WithTimeout(context.Background(), 30*time.Second)
	container, err := app.Build(buildCtx, cfg, logger)
	buildCancel()
	if err != nil {
		logger.Error("Failed to assemble application services", zap.Error(err))
		os.Exit(1)
	}

	// SIGINT/SIGTERM cancel the runtime context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := container.Run(ctx)
	if runErr != nil {
		logger.Error("Server error", zap.Error(runErr))
	} else {
		logger.Info("Received shutdown signal")
	}

	// Graceful shutdown
	logger.Info("Shutting down gracefully...")
	container.WaitForShutdown(10 * time.Second)
	logger.Info("Shutdown complete")

	if runErr != nil {
		os.Exit(1)
	}
}
