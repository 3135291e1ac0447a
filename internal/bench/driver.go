package bench

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/an-heidi/image-resizer/internal/config"
)

// uploadField must match the form field the upload endpoint reads.
const uploadField = "media"

// Outcome is the recorded result of one dispatched request. It is
// immutable once created; transport and server errors are captured here
// rather than propagated.
type Outcome struct {
	Success  bool
	Duration time.Duration
	Timings  *ServerTimings
	Sizes    *ServerSizes
	Err      string
}

// ServerTimings mirrors the timings block of the upload response. Only
// the fields the harness reduces are decoded.
type ServerTimings struct {
	TotalProcessingTime float64 `json:"totalProcessingTime"`
}

// ServerSizes mirrors the sizes block of the upload response. The tier
// map is keyed low/medium/original.
type ServerSizes struct {
	TotalOriginalSize  int64            `json:"totalOriginalSize"`
	TotalProcessedSize map[string]int64 `json:"totalProcessedSize"`
}

type serverResponse struct {
	Message string         `json:"message"`
	Timings *ServerTimings `json:"timings"`
	Sizes   *ServerSizes   `json:"sizes"`
}

// ScenarioStats aggregates one scenario's outcomes with the resource
// summary sampled while it ran.
type ScenarioStats struct {
	Outcomes  []Outcome
	Attempted int
	Successes int
	TimedOut  bool

	TotalWall       time.Duration
	AvgDurationMs   float64 // over successful outcomes
	AvgServerProcMs float64 // over successes that reported timings
	P50Ms, P95Ms    float64
	P99Ms           float64

	// CompressionRatios maps quality tier to originalSize/processedSize,
	// taken from the first successful outcome reporting sizes.
	CompressionRatios map[string]float64

	Resources Summary
}

// Failed reports whether the scenario counts as failed for the runner's
// skip propagation: a timeout, or not a single successful request.
func (s ScenarioStats) Failed() bool {
	return s.TimedOut || s.Successes == 0
}

// SuccessRate is successes/attempted in [0,1]. Zero attempts rate as 0.
func (s ScenarioStats) SuccessRate() float64 {
	if s.Attempted == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Attempted)
}

// Driver issues upload requests against the target endpoint.
type Driver struct {
	cfg      config.BenchmarkConfig
	governor *Governor
	client   *http.Client
	logger   *zap.Logger

	// newSampler lets tests substitute the resource sampler.
	newSampler func() *Sampler
}

// NewDriver creates a driver. The HTTP transport is widened so a full
// fan-out never queues on idle-connection limits.
func NewDriver(cfg config.BenchmarkConfig, governor *Governor, reader ProcessReader, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 200
	transport.MaxConnsPerHost = 200
	transport.MaxIdleConnsPerHost = 200
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	return &Driver{
		cfg:      cfg,
		governor: governor,
		client:   &http.Client{Transport: transport},
		logger:   logger,
		newSampler: func() *Sampler {
			return NewSampler(reader, logger)
		},
	}
}

// LoadSeed reads the configured seed image. A missing seed aborts the
// run: without it no payload can be built.
func (d *Driver) LoadSeed() ([]byte, error) {
	seed, err := os.ReadFile(d.cfg.SeedImagePath)
	if err != nil {
		return nil, fmt.Errorf("seed image %s: %w", d.cfg.SeedImagePath, err)
	}
	if len(seed) == 0 {
		return nil, fmt.Errorf("seed image %s is empty", d.cfg.SeedImagePath)
	}
	return seed, nil
}

// BuildPayload replicates seed until it reaches targetMB, then truncates
// to the exact target. The result always starts with one intact copy of
// the seed, so image decoders still find a valid file at the front.
func BuildPayload(seed []byte, targetMB int) ([]byte, error) {
	if len(seed) == 0 {
		return nil, errors.New("empty seed payload")
	}
	target := targetMB * 1024 * 1024
	if target <= 0 {
		return nil, fmt.Errorf("invalid payload target %dMB", targetMB)
	}

	payload := make([]byte, 0, target+len(seed))
	for len(payload) < target {
		payload = append(payload, seed...)
	}
	return payload[:target], nil
}

// SendRequest issues one multipart upload carrying numFiles copies of
// payload and records the outcome. Errors of any kind are folded into a
// failed Outcome; this never returns an error to the caller.
func (d *Driver) SendRequest(ctx context.Context, numFiles int, payload []byte) Outcome {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for i := 0; i < numFiles; i++ {
		part, err := mw.CreateFormFile(uploadField, fmt.Sprintf("bench-%d.jpg", i))
		if err != nil {
			return Outcome{Err: fmt.Sprintf("build multipart: %v", err)}
		}
		if _, err := part.Write(payload); err != nil {
			return Outcome{Err: fmt.Sprintf("build multipart: %v", err)}
		}
	}
	if err := mw.Close(); err != nil {
		return Outcome{Err: fmt.Sprintf("build multipart: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.TargetURL, &body)
	if err != nil {
		return Outcome{Err: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := d.client.Do(req)
	duration := time.Since(start)

	if err != nil {
		return Outcome{Duration: duration, Err: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	duration = time.Since(start)
	if err != nil {
		return Outcome{Duration: duration, Err: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return Outcome{
			Duration: duration,
			Err:      fmt.Sprintf("status %d: %s", resp.StatusCode, bytes.TrimSpace(raw)),
		}
	}

	// A body that is not the expected JSON is tolerated; the outcome is
	// still a success, just without server-reported metrics.
	var decoded serverResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		d.logger.Warn("unparseable upload response", zap.Error(err))
		return Outcome{Success: true, Duration: duration}
	}

	return Outcome{
		Success:  true,
		Duration: duration,
		Timings:  decoded.Timings,
		Sizes:    decoded.Sizes,
	}
}

// RunConcurrent fans out a clamped number of requests, all dispatched
// before any is awaited, races the batch against the scenario time
// budget, and reduces the outcomes. On timeout the in-flight requests are
// abandoned and no outcomes are reported.
func (d *Driver) RunConcurrent(ctx context.Context, numRequests, imagesPerRequest int, payload []byte) ScenarioStats {
	n := d.governor.ClampConcurrency(numRequests)

	sampler := d.newSampler()
	sampler.Start()

	start := time.Now()
	results := make(chan Outcome, n)
	for i := 0; i < n; i++ {
		go func() {
			results <- d.SendRequest(ctx, imagesPerRequest, payload)
		}()
	}

	done := make(chan struct{})
	outcomes := make([]Outcome, 0, n)
	go func() {
		defer close(done)
		for i := 0; i < n; i++ {
			outcomes = append(outcomes, <-results)
		}
	}()

	if !d.governor.WaitOrTimeout(ctx, done) {
		resources := sampler.Stop()
		return ScenarioStats{
			Attempted: n,
			TimedOut:  true,
			TotalWall: time.Since(start),
			Resources: resources,
		}
	}

	totalWall := time.Since(start)
	resources := sampler.Stop()

	return reduceOutcomes(outcomes, n, totalWall, resources)
}

// reduceOutcomes computes the scenario aggregates. Completion order of
// the outcomes is irrelevant. Zero successes suppresses every derived
// average rather than dividing by zero.
func reduceOutcomes(outcomes []Outcome, attempted int, totalWall time.Duration, resources Summary) ScenarioStats {
	stats := ScenarioStats{
		Outcomes:  outcomes,
		Attempted: attempted,
		TotalWall: totalWall,
		Resources: resources,
	}

	hist := newLatencyHistogram()
	var durationSum time.Duration
	var procSum float64
	var procCount int

	for _, o := range outcomes {
		if !o.Success {
			continue
		}
		stats.Successes++
		durationSum += o.Duration
		hist.Record(o.Duration)

		if o.Timings != nil {
			procSum += o.Timings.TotalProcessingTime
			procCount++
		}
		if stats.CompressionRatios == nil && o.Sizes != nil && o.Sizes.TotalOriginalSize > 0 {
			ratios := make(map[string]float64, len(o.Sizes.TotalProcessedSize))
			for tier, size := range o.Sizes.TotalProcessedSize {
				if size > 0 {
					ratios[tier] = float64(o.Sizes.TotalOriginalSize) / float64(size)
				}
			}
			stats.CompressionRatios = ratios
		}
	}

	if stats.Successes > 0 {
		stats.AvgDurationMs = float64(durationSum.Microseconds()) / 1000.0 / float64(stats.Successes)
		stats.P50Ms, stats.P95Ms, stats.P99Ms = hist.PercentilesMs()
	}
	if procCount > 0 {
		stats.AvgServerProcMs = procSum / float64(procCount)
	}

	return stats
}
