package bench

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/an-heidi/image-resizer/internal/config"
)

// watchInterval is the period of the background memory check.
const watchInterval = time.Second

// Governor enforces the harness safety limits: it clamps concurrency,
// bounds scenario wall time, spaces scenarios apart, and hard-stops the
// process when the memory ceiling is breached.
type Governor struct {
	limits        config.SafetyLimits
	totalSystemMB float64
	reader        ProcessReader
	logger        *zap.Logger

	// exit is os.Exit in production; tests substitute it to observe the
	// watchdog trigger.
	exit func(code int)
}

// NewGovernor creates a governor. totalSystemMB is the host's physical
// memory, used to derive the relative half of the ceiling.
func NewGovernor(limits config.SafetyLimits, totalSystemMB float64, reader ProcessReader, logger *zap.Logger) *Governor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Governor{
		limits:        limits,
		totalSystemMB: totalSystemMB,
		reader:        reader,
		logger:        logger,
		exit:          os.Exit,
	}
}

// MemoryCeilingMB is the lesser of the percentage-of-system threshold and
// the absolute threshold.
func (g *Governor) MemoryCeilingMB() float64 {
	relative := g.totalSystemMB * g.limits.MemoryThresholdPercent / 100
	if relative < g.limits.MaxMemoryThresholdMB {
		return relative
	}
	return g.limits.MaxMemoryThresholdMB
}

// WatchMemory blocks, checking resident memory once per second until ctx
// is cancelled. A breach terminates the process immediately: this is a
// safety valve against destabilizing the host, not an error to recover
// from. The run controller owns the call's lifetime.
func (g *Governor) WatchMemory(ctx context.Context) {
	ceiling := g.MemoryCeilingMB()
	g.logger.Info("memory watchdog active", zap.Float64("ceiling_mb", ceiling))

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := g.reader.ReadProcess()
			if err != nil {
				g.logger.Warn("watchdog process read failed", zap.Error(err))
				continue
			}
			rssMB := float64(stats.RSSBytes) / (1024 * 1024)
			if rssMB > ceiling {
				g.logger.Error("memory ceiling breached, terminating",
					zap.Float64("rss_mb", rssMB),
					zap.Float64("ceiling_mb", ceiling))
				g.exit(1)
				return
			}
		}
	}
}

// ClampConcurrency caps a requested request count at the configured
// maxima. The notice is logged exactly when a clamp occurs. MaxTotalRequests
// is scenario-local; it is not an across-scenario budget.
func (g *Governor) ClampConcurrency(requested int) int {
	n := requested
	if g.limits.MaxConcurrentRequests > 0 && n > g.limits.MaxConcurrentRequests {
		n = g.limits.MaxConcurrentRequests
	}
	if g.limits.MaxTotalRequests > 0 && n > g.limits.MaxTotalRequests {
		n = g.limits.MaxTotalRequests
	}
	if n != requested {
		g.logger.Warn("concurrency clamped",
			zap.Int("requested", requested),
			zap.Int("allowed", n))
	}
	return n
}

// ScenarioTimeout is the wall-time budget for one scenario.
func (g *Governor) ScenarioTimeout() time.Duration {
	return time.Duration(g.limits.MaxTimePerScenarioSec) * time.Second
}

// WaitOrTimeout waits for done or the scenario budget, whichever comes
// first. A false return means the timeout won; whatever work signalled
// done later is simply abandoned, never cancelled.
func (g *Governor) WaitOrTimeout(ctx context.Context, done <-chan struct{}) bool {
	timer := time.NewTimer(g.ScenarioTimeout())
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		g.logger.Error("scenario exceeded time budget",
			zap.Duration("budget", g.ScenarioTimeout()))
		return false
	case <-ctx.Done():
		return false
	}
}

// Cooldown sleeps the configured minimum delay between scenarios.
func (g *Governor) Cooldown(ctx context.Context) {
	delay := time.Duration(g.limits.MinCooldownSec) * time.Second
	if delay <= 0 {
		return
	}
	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
}
