package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/an-heidi/image-resizer/internal/api"
	"github.com/an-heidi/image-resizer/internal/config"
	"github.com/an-heidi/image-resizer/internal/resize"
	"github.com/an-heidi/image-resizer/internal/storage"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(config.GetEnvOrDefault("RESIZER_CONFIG", ""))
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	engine := resize.NewEngine(logger)

	var store *storage.VariantStore
	if cfg.Resize.PersistVariants {
		if err := os.MkdirAll(cfg.Resize.OutputDir, 0750); err != nil {
			logger.Fatal("create output directory", zap.Error(err))
		}
		store = storage.NewVariantStore(cfg.Resize.OutputDir, logger)
		logger.Info("persisting variants", zap.String("dir", cfg.Resize.OutputDir))
	}

	server := api.NewServer(cfg, logger, engine, store)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
