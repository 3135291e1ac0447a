package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/an-heidi/image-resizer/internal/bench"
	"github.com/an-heidi/image-resizer/internal/config"
)

func main() {
	// Optional .env alongside the binary; real environment wins.
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(config.GetEnvOrDefault("BENCH_CONFIG", ""))
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	reader, err := bench.NewProcessReader()
	if err != nil {
		logger.Fatal("open process metrics", zap.Error(err))
	}
	totalMB, err := bench.SystemMemoryMB()
	if err != nil {
		logger.Fatal("read system memory", zap.Error(err))
	}

	governor := bench.NewGovernor(cfg.Safety, totalMB, reader, logger)
	driver := bench.NewDriver(cfg.Benchmark, governor, reader, logger)

	seed, err := driver.LoadSeed()
	if err != nil {
		logger.Fatal("seed image unavailable", zap.Error(err))
	}
	payload, err := bench.BuildPayload(seed, cfg.Benchmark.PayloadSizeMB)
	if err != nil {
		logger.Fatal("build payload", zap.Error(err))
	}

	// The memory watchdog lives exactly as long as the run.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go governor.WatchMemory(ctx)

	runner := bench.NewRunner(driver, governor, logger, os.Stdout)
	if err := runner.Run(ctx, bench.DefaultScenarios, payload); err != nil {
		logger.Error("benchmark run failed", zap.Error(err))
		cancel()
		_ = logger.Sync()
		os.Exit(1)
	}
}
