package diagnostics

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// PreflightResult contains the result of pre-spawn checks.
type PreflightResult struct {
	OK        bool
	Warnings  []string
	Errors    []string
	FreeMemMB float64
}

// MemoryProbe reports available memory in bytes.
type MemoryProbe func(ctx context.Context) (uint64, error)

// LoadProbe reports the one-minute load average.
type LoadProbe func(ctx context.Context) (float64, error)

// Preflight verifies the host can afford another tool subprocess.
type Preflight struct {
	enabled         bool
	minFreeMemoryMB int
	memory          MemoryProbe
	load            LoadProbe
}

// NewPreflight creates a preflight checker backed by gopsutil.
func NewPreflight(enabled bool, minFreeMemoryMB int) *Preflight {
	return &Preflight{
		enabled:         enabled,
		minFreeMemoryMB: minFreeMemoryMB,
		memory:          availableMemory,
		load:            loadAverage,
	}
}

// WithProbes replaces the resource probes. Nil probes are left unchanged.
func (p *Preflight) WithProbes(memory MemoryProbe, load LoadProbe) *Preflight {
	if memory != nil {
		p.memory = memory
	}
	if load != nil {
		p.load = load
	}
	return p
}

// Enabled reports whether checks run at all.
func (p *Preflight) Enabled() bool {
	return p != nil && p.enabled
}

// Check runs the resource checks. A disabled checker always passes.
func (p *Preflight) Check(ctx context.Context) PreflightResult {
	result := PreflightResult{OK: true}
	if !p.Enabled() {
		return result
	}

	avail, err := p.memory(ctx)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("memory probe failed: %v", err))
	} else {
		result.FreeMemMB = float64(avail) / 1024 / 1024
		floor := float64(p.minFreeMemoryMB)
		switch {
		case p.minFreeMemoryMB > 0 && result.FreeMemMB < floor:
			result.OK = false
			result.Errors = append(result.Errors,
				fmt.Sprintf("insufficient free memory: %.0f MB available (minimum: %d MB)",
					result.FreeMemMB, p.minFreeMemoryMB))
		case p.minFreeMemoryMB > 0 && result.FreeMemMB < floor*1.5:
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("free memory approaching limit: %.0f MB available", result.FreeMemMB))
		}
	}

	if p.load != nil {
		if avg, err := p.load(ctx); err == nil && avg > float64(runtime.NumCPU())*2 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("high system load: %.2f on %d CPUs", avg, runtime.NumCPU()))
		}
	}

	return result
}

func availableMemory(ctx context.Context) (uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

func loadAverage(ctx context.Context) (float64, error) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return avg.Load1, nil
}
