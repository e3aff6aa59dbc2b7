package diagnostics

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/jaypipes/ghw"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemReport summarizes the host for troubleshooting.
type SystemReport struct {
	OS         string   `json:"os"`
	Arch       string   `json:"arch"`
	GoVersion  string   `json:"go_version"`
	CPUModel   string   `json:"cpu_model"`
	CPUCores   int      `json:"cpu_cores"`
	CPUThreads int      `json:"cpu_threads"`
	MemTotalMB float64  `json:"mem_total_mb"`
	MemAvailMB float64  `json:"mem_avail_mb"`
	DiskFreeGB float64  `json:"disk_free_gb"`
	LoadAvg1   float64  `json:"load_avg_1"`
	GPUs       []string `json:"gpus,omitempty"`
}

// CollectReport gathers a SystemReport. Individual probe failures are skipped.
func CollectReport(ctx context.Context) SystemReport {
	report := SystemReport{
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		GoVersion: runtime.Version(),
	}

	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		report.CPUModel = strings.TrimSpace(infos[0].ModelName)
	}
	if cores, err := cpu.CountsWithContext(ctx, false); err == nil {
		report.CPUCores = cores
	}
	if threads, err := cpu.CountsWithContext(ctx, true); err == nil {
		report.CPUThreads = threads
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		report.MemTotalMB = float64(vm.Total) / 1024 / 1024
		report.MemAvailMB = float64(vm.Available) / 1024 / 1024
	}
	if usage, err := disk.UsageWithContext(ctx, rootDiskPath()); err == nil {
		report.DiskFreeGB = float64(usage.Free) / 1024 / 1024 / 1024
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		report.LoadAvg1 = avg.Load1
	}
	report.GPUs = gpuNames()

	return report
}

// Lines renders the report as label/value pairs in display order.
func (r SystemReport) Lines() [][2]string {
	lines := [][2]string{
		{"OS", r.OS + "/" + r.Arch},
		{"Go", r.GoVersion},
		{"CPU", fmt.Sprintf("%s (%d cores, %d threads)", orUnknown(r.CPUModel), r.CPUCores, r.CPUThreads)},
		{"Memory", fmt.Sprintf("%.0f MB available of %.0f MB", r.MemAvailMB, r.MemTotalMB)},
		{"Disk", fmt.Sprintf("%.1f GB free", r.DiskFreeGB)},
		{"Load", fmt.Sprintf("%.2f", r.LoadAvg1)},
	}
	for i, gpu := range r.GPUs {
		lines = append(lines, [2]string{fmt.Sprintf("GPU %d", i), gpu})
	}
	return lines
}

func gpuNames() []string {
	info, err := ghw.GPU()
	if err != nil || info == nil {
		return nil
	}
	names := make([]string, 0, len(info.GraphicsCards))
	for _, card := range info.GraphicsCards {
		name := ""
		if card.DeviceInfo != nil {
			switch {
			case card.DeviceInfo.Vendor != nil && card.DeviceInfo.Product != nil:
				name = card.DeviceInfo.Vendor.Name + " " + card.DeviceInfo.Product.Name
			case card.DeviceInfo.Product != nil:
				name = card.DeviceInfo.Product.Name
			}
		}
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("GPU %d", card.Index)
		}
		names = append(names, name)
	}
	return names
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func rootDiskPath() string {
	if runtime.GOOS == "windows" {
		drive := os.Getenv("SystemDrive")
		if drive == "" {
			drive = "C:"
		}
		return drive + "\\"
	}
	return "/"
}
