// Package bench is the load/benchmark harness for the upload service: a
// process resource sampler, a safety governor, a concurrent load driver,
// and a scenario runner.
package bench

import (
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SampleInterval is the fixed period between resource samples.
const SampleInterval = time.Second

// MemoryMB is a point-in-time memory reading, in megabytes.
type MemoryMB struct {
	RSS       float64
	HeapTotal float64
	HeapUsed  float64
	External  float64
}

// MetricSet pairs a CPU percentage with a memory reading.
type MetricSet struct {
	CPUPercent float64
	Memory     MemoryMB
}

// Sample is one observation of the harness process.
type Sample struct {
	Timestamp  time.Time
	CPUPercent float64
	Memory     MemoryMB
}

// Summary reduces a sample sequence to its mean and component-wise peak.
type Summary struct {
	Average MetricSet
	Peak    MetricSet
	Samples []Sample
}

// ProcessStats is a raw reading of the current process.
type ProcessStats struct {
	// CPUSeconds is cumulative user+system CPU time.
	CPUSeconds    float64
	RSSBytes      uint64
	HeapTotal     uint64
	HeapUsed      uint64
	ExternalBytes uint64
}

// ProcessReader abstracts OS-level process introspection so the sampler
// is testable with synthetic readings.
type ProcessReader interface {
	ReadProcess() (ProcessStats, error)
}

// Sampler captures one Sample per SampleInterval until stopped. A Sampler
// owns its sample sequence exclusively while running; read it only
// through the Summary returned by Stop.
type Sampler struct {
	reader   ProcessReader
	interval time.Duration
	cores    int
	logger   *zap.Logger

	mu       sync.Mutex
	samples  []Sample
	lastCPU  float64
	lastTime time.Time
	running  bool
	stop     chan struct{}
	done     chan struct{}
}

// NewSampler creates a sampler over reader.
func NewSampler(reader ProcessReader, logger *zap.Logger) *Sampler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sampler{
		reader:   reader,
		interval: SampleInterval,
		cores:    runtime.NumCPU(),
		logger:   logger,
	}
}

// Start resets the baseline and sample sequence and begins periodic
// sampling. Calling Start on a running sampler is a no-op.
func (s *Sampler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	s.samples = nil
	s.lastTime = time.Now()
	if stats, err := s.reader.ReadProcess(); err == nil {
		s.lastCPU = stats.CPUSeconds
	} else {
		s.lastCPU = 0
		s.logger.Warn("baseline process read failed", zap.Error(err))
	}

	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(s.stop, s.done)
}

func (s *Sampler) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

// sample takes one observation and appends it to the sequence.
func (s *Sampler) sample() {
	stats, err := s.reader.ReadProcess()
	if err != nil {
		s.logger.Warn("process read failed", zap.Error(err))
		return
	}

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := now.Sub(s.lastTime).Seconds()
	var cpuPct float64
	if elapsed > 0 && s.cores > 0 {
		cpuPct = (stats.CPUSeconds - s.lastCPU) / elapsed / float64(s.cores) * 100
	}
	if cpuPct < 0 {
		cpuPct = 0
	}
	s.lastCPU = stats.CPUSeconds
	s.lastTime = now

	s.samples = append(s.samples, Sample{
		Timestamp:  now,
		CPUPercent: cpuPct,
		Memory: MemoryMB{
			RSS:       float64(stats.RSSBytes) / (1024 * 1024),
			HeapTotal: float64(stats.HeapTotal) / (1024 * 1024),
			HeapUsed:  float64(stats.HeapUsed) / (1024 * 1024),
			External:  float64(stats.ExternalBytes) / (1024 * 1024),
		},
	})
}

// Stop cancels the periodic task, takes one final sample, and returns the
// summary. Stopping an already-stopped sampler just returns the current
// results.
func (s *Sampler) Stop() Summary {
	s.mu.Lock()
	if s.running {
		s.running = false
		close(s.stop)
		done := s.done
		s.mu.Unlock()
		<-done
		s.sample()
	} else {
		s.mu.Unlock()
	}
	return s.Results()
}

// Results reduces the current sample sequence. An empty sequence yields a
// zeroed summary; this never fails.
func (s *Sampler) Results() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.samples) == 0 {
		return Summary{}
	}

	samples := make([]Sample, len(s.samples))
	copy(samples, s.samples)

	var sum, peak MetricSet
	for _, smp := range samples {
		sum.CPUPercent += smp.CPUPercent
		sum.Memory.RSS += smp.Memory.RSS
		sum.Memory.HeapTotal += smp.Memory.HeapTotal
		sum.Memory.HeapUsed += smp.Memory.HeapUsed
		sum.Memory.External += smp.Memory.External

		if smp.CPUPercent > peak.CPUPercent {
			peak.CPUPercent = smp.CPUPercent
		}
		if smp.Memory.RSS > peak.Memory.RSS {
			peak.Memory.RSS = smp.Memory.RSS
		}
		if smp.Memory.HeapTotal > peak.Memory.HeapTotal {
			peak.Memory.HeapTotal = smp.Memory.HeapTotal
		}
		if smp.Memory.HeapUsed > peak.Memory.HeapUsed {
			peak.Memory.HeapUsed = smp.Memory.HeapUsed
		}
		if smp.Memory.External > peak.Memory.External {
			peak.Memory.External = smp.Memory.External
		}
	}

	n := float64(len(samples))
	return Summary{
		Average: MetricSet{
			CPUPercent: sum.CPUPercent / n,
			Memory: MemoryMB{
				RSS:       sum.Memory.RSS / n,
				HeapTotal: sum.Memory.HeapTotal / n,
				HeapUsed:  sum.Memory.HeapUsed / n,
				External:  sum.Memory.External / n,
			},
		},
		Peak:    peak,
		Samples: samples,
	}
}
