package diagnostics

import (
	"context"
	"runtime"
	"testing"
)

func TestCollectReport_Basics(t *testing.T) {
	report := CollectReport(context.Background())
	if report.OS != runtime.GOOS || report.Arch != runtime.GOARCH {
		t.Errorf("unexpected platform %s/%s", report.OS, report.Arch)
	}
	if report.GoVersion == "" {
		t.Errorf("GoVersion should be set")
	}
}

func TestSystemReport_Lines(t *testing.T) {
	r := SystemReport{OS: "linux", Arch: "amd64", GPUs: []string{"Acme X"}}
	lines := r.Lines()
	if lines[0][1] != "linux/amd64" {
		t.Errorf("first line = %v", lines[0])
	}
	if lines[2][1] != "unknown (0 cores, 0 threads)" {
		t.Errorf("cpu line = %v", lines[2])
	}
	last := lines[len(lines)-1]
	if last[0] != "GPU 0" || last[1] != "Acme X" {
		t.Errorf("gpu line = %v", last)
	}
}
