package bench

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Scenario is one named load configuration. The list consumed by the
// runner is static and ordered.
type Scenario struct {
	Name             string
	Concurrency      int
	ImagesPerRequest int
}

// DefaultScenarios is the fixed benchmark sequence, lightest first.
var DefaultScenarios = []Scenario{
	{Name: "single image upload", Concurrency: 1, ImagesPerRequest: 1},
	{Name: "single request, image batch", Concurrency: 1, ImagesPerRequest: 8},
	{Name: "concurrent uploads", Concurrency: 5, ImagesPerRequest: 2},
	{Name: "concurrent heavy batches", Concurrency: 10, ImagesPerRequest: 4},
}

// Runner sequences scenarios against the upload endpoint. Once any
// scenario fails, every remaining one is skipped.
type Runner struct {
	driver   *Driver
	governor *Governor
	logger   *zap.Logger
	out      io.Writer
}

// NewRunner creates a scenario runner writing its report to out (stdout
// when nil).
func NewRunner(driver *Driver, governor *Governor, logger *zap.Logger, out io.Writer) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if out == nil {
		out = os.Stdout
	}
	return &Runner{driver: driver, governor: governor, logger: logger, out: out}
}

// Run executes the scenario list in order with a cooldown between
// scenarios. It returns an error when any scenario failed so the caller
// can exit non-zero.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario, payload []byte) error {
	var firstFailure string

	for i, sc := range scenarios {
		if firstFailure != "" {
			fmt.Fprintf(r.out, "\nSKIPPED: %s (previous scenario %q failed)\n", sc.Name, firstFailure)
			continue
		}

		fmt.Fprintf(r.out, "\n=== Scenario %d/%d: %s (%d request(s) x %d image(s)) ===\n",
			i+1, len(scenarios), sc.Name, sc.Concurrency, sc.ImagesPerRequest)

		stats := r.execute(ctx, sc, payload)
		r.report(sc, stats)

		if stats.Failed() {
			firstFailure = sc.Name
			r.logger.Error("scenario failed, skipping remainder",
				zap.String("scenario", sc.Name),
				zap.Bool("timed_out", stats.TimedOut))
			continue
		}

		if i < len(scenarios)-1 {
			r.governor.Cooldown(ctx)
		}
	}

	if firstFailure != "" {
		return fmt.Errorf("scenario %q failed", firstFailure)
	}

	r.printSuggestions()
	return nil
}

// execute dispatches one scenario. A single-request scenario skips the
// fan-out machinery but keeps the sampler and the timeout race.
func (r *Runner) execute(ctx context.Context, sc Scenario, payload []byte) ScenarioStats {
	if sc.Concurrency == 1 {
		return r.runSingle(ctx, sc, payload)
	}
	return r.driver.RunConcurrent(ctx, sc.Concurrency, sc.ImagesPerRequest, payload)
}

func (r *Runner) runSingle(ctx context.Context, sc Scenario, payload []byte) ScenarioStats {
	sampler := r.driver.newSampler()
	sampler.Start()

	start := time.Now()
	results := make(chan Outcome, 1)
	go func() {
		results <- r.driver.SendRequest(ctx, sc.ImagesPerRequest, payload)
	}()

	done := make(chan struct{})
	var outcome Outcome
	go func() {
		defer close(done)
		outcome = <-results
	}()

	if !r.governor.WaitOrTimeout(ctx, done) {
		resources := sampler.Stop()
		return ScenarioStats{
			Attempted: 1,
			TimedOut:  true,
			TotalWall: time.Since(start),
			Resources: resources,
		}
	}

	totalWall := time.Since(start)
	resources := sampler.Stop()
	return reduceOutcomes([]Outcome{outcome}, 1, totalWall, resources)
}

// FormatSuccessRate renders a [0,1] ratio as a percentage, e.g. "70.00%".
func FormatSuccessRate(rate float64) string {
	return fmt.Sprintf("%.2f%%", rate*100)
}

// FormatRatio renders a compression ratio, e.g. "4.00x".
func FormatRatio(ratio float64) string {
	return fmt.Sprintf("%.2fx", ratio)
}

func (r *Runner) report(sc Scenario, stats ScenarioStats) {
	if stats.TimedOut {
		fmt.Fprintf(r.out, "FAILED: timed out after %s; in-flight requests abandoned\n",
			stats.TotalWall.Round(time.Millisecond))
		return
	}

	fmt.Fprintf(r.out, "Requests      : %d attempted, %d succeeded (%s)\n",
		stats.Attempted, stats.Successes, FormatSuccessRate(stats.SuccessRate()))
	fmt.Fprintf(r.out, "Total wall    : %s\n", stats.TotalWall.Round(time.Millisecond))

	if stats.Successes > 0 {
		fmt.Fprintf(r.out, "Avg duration  : %.2fms (p50 %.2f / p95 %.2f / p99 %.2f)\n",
			stats.AvgDurationMs, stats.P50Ms, stats.P95Ms, stats.P99Ms)
		if stats.AvgServerProcMs > 0 {
			fmt.Fprintf(r.out, "Server proc   : %.2fms avg\n", stats.AvgServerProcMs)
		}
	}

	if len(stats.CompressionRatios) > 0 {
		tiers := make([]string, 0, len(stats.CompressionRatios))
		for tier := range stats.CompressionRatios {
			tiers = append(tiers, tier)
		}
		sort.Strings(tiers)
		for _, tier := range tiers {
			fmt.Fprintf(r.out, "Compression   : %-8s %s\n", tier, FormatRatio(stats.CompressionRatios[tier]))
		}
	}

	for _, o := range stats.Outcomes {
		if !o.Success {
			fmt.Fprintf(r.out, "Request error : %s\n", o.Err)
		}
	}

	res := stats.Resources
	fmt.Fprintf(r.out, "CPU           : avg %.1f%%, peak %.1f%%\n",
		res.Average.CPUPercent, res.Peak.CPUPercent)
	fmt.Fprintf(r.out, "Memory (RSS)  : avg %.1fMB, peak %.1fMB\n",
		res.Average.Memory.RSS, res.Peak.Memory.RSS)
	fmt.Fprintf(r.out, "Heap          : avg %.1f/%.1fMB used/total, peak %.1f/%.1fMB\n",
		res.Average.Memory.HeapUsed, res.Average.Memory.HeapTotal,
		res.Peak.Memory.HeapUsed, res.Peak.Memory.HeapTotal)
}

// printSuggestions emits the qualitative findings block. It only appears
// after a fully clean run.
func (r *Runner) printSuggestions() {
	fmt.Fprint(r.out, `
All scenarios passed. Optimization suggestions:
  - Cache variants for repeated uploads of identical content.
  - Stream multipart parts to the transform engine instead of buffering
    whole files in memory.
  - Bound transform parallelism with a worker pool sized to CPU count.
  - Revisit the medium-tier quality target; it is pinned at its lower
    bound by the current formula.
  - Serve pre-resized variants from a CDN for read-heavy workloads.
`)
}
