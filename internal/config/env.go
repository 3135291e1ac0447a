package config

import (
	"os"
	"strconv"
)

// LoadFromEnv overlays environment variables onto cfg. Unset or malformed
// variables leave the existing value in place.
func LoadFromEnv(cfg *Config) {
	setInt(&cfg.Server.Port, "RESIZER_PORT")
	setString(&cfg.Server.LogLevel, "RESIZER_LOG_LEVEL")

	setString(&cfg.Resize.OutputDir, "RESIZER_OUTPUT_DIR")
	setBool(&cfg.Resize.PersistVariants, "RESIZER_PERSIST_VARIANTS")

	setString(&cfg.Benchmark.TargetURL, "BENCH_TARGET_URL")
	setString(&cfg.Benchmark.SeedImagePath, "BENCH_SEED_IMAGE")
	setInt(&cfg.Benchmark.PayloadSizeMB, "BENCH_PAYLOAD_SIZE_MB")

	setInt(&cfg.Safety.MaxConcurrentRequests, "BENCH_MAX_CONCURRENT_REQUESTS")
	setInt(&cfg.Safety.MaxTotalRequests, "BENCH_MAX_TOTAL_REQUESTS")
	setFloat(&cfg.Safety.MemoryThresholdPercent, "BENCH_MEMORY_THRESHOLD_PERCENT")
	setFloat(&cfg.Safety.MaxMemoryThresholdMB, "BENCH_MAX_MEMORY_THRESHOLD_MB")
	setInt(&cfg.Safety.MaxTimePerScenarioSec, "BENCH_MAX_TIME_PER_SCENARIO_SEC")
	setInt(&cfg.Safety.MinCooldownSec, "BENCH_MIN_COOLDOWN_SEC")
}

// GetEnvOrDefault returns the environment variable or a fallback value.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
