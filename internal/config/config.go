package config

// Config is the full configuration for both the upload service and the
// benchmark harness. Either binary reads only the sections it needs.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Resize    ResizeConfig    `yaml:"resize"`
	Benchmark BenchmarkConfig `yaml:"benchmark"`
	Safety    SafetyLimits    `yaml:"safety"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
}

type ResizeConfig struct {
	// OutputDir is the root under which per-quality variant directories
	// (low/, medium/, original/) are created.
	OutputDir       string `yaml:"output_dir"`
	PersistVariants bool   `yaml:"persist_variants"`
}

type BenchmarkConfig struct {
	TargetURL     string `yaml:"target_url"`
	SeedImagePath string `yaml:"seed_image_path"`
	PayloadSizeMB int    `yaml:"payload_size_mb"`
}

// SafetyLimits are hard ceilings for the benchmark harness. None of them
// are advisory: the harness clamps, aborts, or terminates when one is hit.
type SafetyLimits struct {
	MaxConcurrentRequests  int     `yaml:"max_concurrent_requests"`
	MaxTotalRequests       int     `yaml:"max_total_requests"`
	MemoryThresholdPercent float64 `yaml:"memory_threshold_percent"`
	MaxMemoryThresholdMB   float64 `yaml:"max_memory_threshold_mb"`
	MaxTimePerScenarioSec  int     `yaml:"max_time_per_scenario_sec"`
	MinCooldownSec         int     `yaml:"min_cooldown_sec"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     3000,
			LogLevel: "info",
		},
		Resize: ResizeConfig{
			OutputDir:       "output",
			PersistVariants: false,
		},
		Benchmark: BenchmarkConfig{
			TargetURL:     "http://localhost:3000/upload",
			SeedImagePath: "testdata/seed.jpg",
			PayloadSizeMB: 20,
		},
		Safety: SafetyLimits{
			MaxConcurrentRequests:  10,
			MaxTotalRequests:       50,
			MemoryThresholdPercent: 80,
			MaxMemoryThresholdMB:   4096,
			MaxTimePerScenarioSec:  120,
			MinCooldownSec:         5,
		},
	}
}
