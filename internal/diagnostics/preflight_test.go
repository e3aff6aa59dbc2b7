package diagnostics

import (
	"context"
	"errors"
	"testing"
)

func fixedMemory(mb uint64) MemoryProbe {
	return func(context.Context) (uint64, error) { return mb * 1024 * 1024, nil }
}

func fixedLoad(avg float64) LoadProbe {
	return func(context.Context) (float64, error) { return avg, nil }
}

func TestPreflight_Disabled(t *testing.T) {
	p := NewPreflight(false, 1<<20).WithProbes(fixedMemory(1), fixedLoad(0))
	if got := p.Check(context.Background()); !got.OK || len(got.Errors) != 0 {
		t.Errorf("disabled preflight should pass, got %+v", got)
	}

	var nilPreflight *Preflight
	if nilPreflight.Enabled() {
		t.Errorf("nil preflight should be disabled")
	}
}

func TestPreflight_Memory(t *testing.T) {
	tests := []struct {
		name         string
		freeMB       uint64
		wantOK       bool
		wantWarnings int
	}{
		{"plenty", 4096, true, 0},
		{"approaching", 300, true, 1},
		{"insufficient", 100, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPreflight(true, 256).WithProbes(fixedMemory(tt.freeMB), fixedLoad(0))
			got := p.Check(context.Background())
			if got.OK != tt.wantOK {
				t.Errorf("OK = %v, want %v (errors %v)", got.OK, tt.wantOK, got.Errors)
			}
			if len(got.Warnings) != tt.wantWarnings {
				t.Errorf("Warnings = %v, want %d", got.Warnings, tt.wantWarnings)
			}
		})
	}
}

func TestPreflight_ProbeFailureIsWarning(t *testing.T) {
	failing := func(context.Context) (uint64, error) { return 0, errors.New("unsupported") }
	got := NewPreflight(true, 256).WithProbes(failing, fixedLoad(0)).Check(context.Background())
	if !got.OK {
		t.Errorf("probe failure must not block, got %+v", got)
	}
	if len(got.Warnings) != 1 {
		t.Errorf("Warnings = %v, want 1", got.Warnings)
	}
}

func TestPreflight_HighLoadWarns(t *testing.T) {
	got := NewPreflight(true, 0).WithProbes(fixedMemory(4096), fixedLoad(1e6)).Check(context.Background())
	if !got.OK || len(got.Warnings) != 1 {
		t.Errorf("expected a single load warning, got %+v", got)
	}
}
