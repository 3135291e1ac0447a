package bench

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/an-heidi/image-resizer/internal/config"
)

func newTestRunner(t *testing.T, targetURL string, limits config.SafetyLimits) (*Runner, *bytes.Buffer) {
	t.Helper()
	reader := &fakeReader{stats: []ProcessStats{{CPUSeconds: 0.1, RSSBytes: mb(50)}}}
	gov := NewGovernor(limits, 16384, reader, nil)
	d := NewDriver(config.BenchmarkConfig{TargetURL: targetURL}, gov, reader, nil)

	var out bytes.Buffer
	return NewRunner(d, gov, nil, &out), &out
}

func TestRunner_AllPass(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(okUploadResponse(1000))
	}))
	defer server.Close()

	r, out := newTestRunner(t, server.URL, testLimits())

	scenarios := []Scenario{
		{Name: "one", Concurrency: 1, ImagesPerRequest: 1},
		{Name: "two", Concurrency: 2, ImagesPerRequest: 1},
	}

	if err := r.Run(context.Background(), scenarios, []byte("p")); err != nil {
		t.Fatalf("unexpected failure: %v", err)
	}

	text := out.String()
	if strings.Contains(text, "SKIPPED") {
		t.Error("no scenario should be skipped on a clean run")
	}
	if !strings.Contains(text, "Optimization suggestions") {
		t.Error("expected the suggestions block after a clean run")
	}
	if !strings.Contains(text, "100.00%") {
		t.Error("expected full success rate in the report")
	}
}

func TestRunner_SkipPropagation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	r, out := newTestRunner(t, server.URL, testLimits())

	scenarios := []Scenario{
		{Name: "first", Concurrency: 2, ImagesPerRequest: 1},
		{Name: "second", Concurrency: 2, ImagesPerRequest: 1},
		{Name: "third", Concurrency: 1, ImagesPerRequest: 1},
	}

	err := r.Run(context.Background(), scenarios, []byte("p"))
	if err == nil {
		t.Fatal("expected the run to report failure")
	}

	text := out.String()
	if !strings.Contains(text, "SKIPPED: second") || !strings.Contains(text, "SKIPPED: third") {
		t.Errorf("skipped scenarios must be identifiable, got:\n%s", text)
	}
	if strings.Contains(text, "Optimization suggestions") {
		t.Error("suggestions must not appear after a failed run")
	}
}

func TestRunner_SkippedScenariosNeverDispatch(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	r, _ := newTestRunner(t, server.URL, testLimits())

	scenarios := []Scenario{
		{Name: "first", Concurrency: 1, ImagesPerRequest: 1},
		{Name: "second", Concurrency: 4, ImagesPerRequest: 1},
	}

	_ = r.Run(context.Background(), scenarios, []byte("p"))

	if got := requests.Load(); got != 1 {
		t.Errorf("expected only the first scenario's request, server saw %d", got)
	}
}

func TestRunner_SingleRequestPath(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write(okUploadResponse(1000))
	}))
	defer server.Close()

	r, out := newTestRunner(t, server.URL, testLimits())

	err := r.Run(context.Background(),
		[]Scenario{{Name: "solo", Concurrency: 1, ImagesPerRequest: 8}},
		[]byte("p"))
	if err != nil {
		t.Fatalf("unexpected failure: %v", err)
	}
	if requests.Load() != 1 {
		t.Errorf("expected exactly one request, got %d", requests.Load())
	}
	if !strings.Contains(out.String(), "1 attempted, 1 succeeded") {
		t.Errorf("unexpected report:\n%s", out.String())
	}
}

func TestRunner_TimeoutSkipsRemainder(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write(okUploadResponse(1000))
	}))
	defer server.Close()
	defer close(release)

	limits := testLimits()
	limits.MaxTimePerScenarioSec = 0
	r, out := newTestRunner(t, server.URL, limits)

	scenarios := []Scenario{
		{Name: "stalls", Concurrency: 2, ImagesPerRequest: 1},
		{Name: "never runs", Concurrency: 1, ImagesPerRequest: 1},
	}

	err := r.Run(context.Background(), scenarios, []byte("p"))
	if err == nil {
		t.Fatal("expected failure after timeout")
	}

	text := out.String()
	if !strings.Contains(text, "timed out") {
		t.Error("expected the timeout reported")
	}
	if !strings.Contains(text, "SKIPPED: never runs") {
		t.Error("expected the remaining scenario skipped")
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := FormatSuccessRate(0.7); got != "70.00%" {
		t.Errorf("expected \"70.00%%\", got %q", got)
	}
	if got := FormatRatio(4.0); got != "4.00x" {
		t.Errorf("expected \"4.00x\", got %q", got)
	}
}
