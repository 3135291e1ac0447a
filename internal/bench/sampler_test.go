package bench

import (
	"sync"
	"testing"
	"time"
)

// fakeReader replays a scripted sequence of process readings; the last
// one repeats.
type fakeReader struct {
	mu    sync.Mutex
	stats []ProcessStats
	idx   int
}

func (f *fakeReader) ReadProcess() (ProcessStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.stats) == 0 {
		return ProcessStats{}, nil
	}
	s := f.stats[f.idx]
	if f.idx < len(f.stats)-1 {
		f.idx++
	}
	return s, nil
}

func mb(n float64) uint64 { return uint64(n * 1024 * 1024) }

func TestSampler_EmptyResults(t *testing.T) {
	s := NewSampler(&fakeReader{}, nil)

	summary := s.Results()

	if summary.Average.CPUPercent != 0 || summary.Peak.CPUPercent != 0 {
		t.Errorf("expected zeroed CPU, got avg=%v peak=%v",
			summary.Average.CPUPercent, summary.Peak.CPUPercent)
	}
	if summary.Average.Memory != (MemoryMB{}) || summary.Peak.Memory != (MemoryMB{}) {
		t.Error("expected zeroed memory on empty sample sequence")
	}
	if len(summary.Samples) != 0 {
		t.Errorf("expected no samples, got %d", len(summary.Samples))
	}
}

func TestSampler_PeakAtLeastAverage(t *testing.T) {
	reader := &fakeReader{stats: []ProcessStats{
		{CPUSeconds: 1.0, RSSBytes: mb(100), HeapTotal: mb(50), HeapUsed: mb(20), ExternalBytes: mb(5)},
		{CPUSeconds: 1.5, RSSBytes: mb(150), HeapTotal: mb(60), HeapUsed: mb(40), ExternalBytes: mb(8)},
		{CPUSeconds: 1.7, RSSBytes: mb(120), HeapTotal: mb(55), HeapUsed: mb(30), ExternalBytes: mb(6)},
	}}
	s := NewSampler(reader, nil)
	s.lastTime = time.Now()

	s.sample()
	s.sample()
	s.sample()

	summary := s.Results()
	if len(summary.Samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(summary.Samples))
	}

	if summary.Peak.CPUPercent < summary.Average.CPUPercent {
		t.Errorf("peak CPU %v < average %v", summary.Peak.CPUPercent, summary.Average.CPUPercent)
	}
	checks := []struct {
		name      string
		avg, peak float64
	}{
		{"rss", summary.Average.Memory.RSS, summary.Peak.Memory.RSS},
		{"heap_total", summary.Average.Memory.HeapTotal, summary.Peak.Memory.HeapTotal},
		{"heap_used", summary.Average.Memory.HeapUsed, summary.Peak.Memory.HeapUsed},
		{"external", summary.Average.Memory.External, summary.Peak.Memory.External},
	}
	for _, c := range checks {
		if c.peak < c.avg {
			t.Errorf("%s: peak %v < average %v", c.name, c.peak, c.avg)
		}
	}

	if summary.Peak.Memory.RSS != 150 {
		t.Errorf("expected peak RSS 150MB, got %v", summary.Peak.Memory.RSS)
	}
}

func TestSampler_CPUPercent(t *testing.T) {
	reader := &fakeReader{stats: []ProcessStats{
		{CPUSeconds: 2.0},
	}}
	s := NewSampler(reader, nil)
	s.cores = 2
	s.lastCPU = 1.0
	s.lastTime = time.Now().Add(-time.Second)

	s.sample()

	summary := s.Results()
	if len(summary.Samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(summary.Samples))
	}
	// 1 CPU-second over ~1s wall on 2 cores -> ~50%.
	got := summary.Samples[0].CPUPercent
	if got < 45 || got > 55 {
		t.Errorf("expected roughly 50%% CPU, got %v", got)
	}
}

func TestSampler_CPUNeverNegative(t *testing.T) {
	// Counter going backwards (e.g. after a reset) must clamp to zero.
	reader := &fakeReader{stats: []ProcessStats{{CPUSeconds: 0.1}}}
	s := NewSampler(reader, nil)
	s.lastCPU = 5.0
	s.lastTime = time.Now().Add(-time.Second)

	s.sample()

	if got := s.Results().Samples[0].CPUPercent; got != 0 {
		t.Errorf("expected 0%% CPU, got %v", got)
	}
}

func TestSampler_StopTakesFinalSample(t *testing.T) {
	reader := &fakeReader{stats: []ProcessStats{
		{CPUSeconds: 0.1, RSSBytes: mb(10)},
	}}
	s := NewSampler(reader, nil)

	s.Start()
	summary := s.Stop()

	// No ticker fired in that window, but Stop samples once itself.
	if len(summary.Samples) != 1 {
		t.Fatalf("expected exactly the final sample, got %d", len(summary.Samples))
	}
}

func TestSampler_StopIdempotent(t *testing.T) {
	reader := &fakeReader{stats: []ProcessStats{{RSSBytes: mb(10)}}}
	s := NewSampler(reader, nil)

	s.Start()
	first := s.Stop()
	second := s.Stop()

	if len(first.Samples) != len(second.Samples) {
		t.Errorf("second Stop changed the sequence: %d vs %d",
			len(first.Samples), len(second.Samples))
	}
}

func TestSampler_StartResetsSequence(t *testing.T) {
	reader := &fakeReader{stats: []ProcessStats{{RSSBytes: mb(10)}}}
	s := NewSampler(reader, nil)

	s.Start()
	_ = s.Stop()

	s.Start()
	summary := s.Stop()

	if len(summary.Samples) != 1 {
		t.Errorf("expected fresh sequence after restart, got %d samples", len(summary.Samples))
	}
}
