package bench

import (
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// processReader reads the harness's own process via gopsutil, with the
// heap split taken from the Go runtime.
type processReader struct {
	proc *process.Process
}

// NewProcessReader creates a reader for the current process.
func NewProcessReader() (ProcessReader, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("open own process: %w", err)
	}
	return &processReader{proc: proc}, nil
}

func (r *processReader) ReadProcess() (ProcessStats, error) {
	times, err := r.proc.Times()
	if err != nil {
		return ProcessStats{}, fmt.Errorf("read cpu times: %w", err)
	}
	memInfo, err := r.proc.MemoryInfo()
	if err != nil {
		return ProcessStats{}, fmt.Errorf("read memory info: %w", err)
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return ProcessStats{
		CPUSeconds:    times.User + times.System,
		RSSBytes:      memInfo.RSS,
		HeapTotal:     ms.HeapSys,
		HeapUsed:      ms.HeapAlloc,
		ExternalBytes: ms.Sys - ms.HeapSys,
	}, nil
}

// SystemMemoryMB returns the host's total physical memory in megabytes.
func SystemMemoryMB() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("read system memory: %w", err)
	}
	return float64(vm.Total) / (1024 * 1024), nil
}
