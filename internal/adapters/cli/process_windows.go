//go:build windows

package cli

import (
	"os"
	"os/exec"
)

// configureProcAttr is a no-op on Windows (no process groups).
func configureProcAttr(_ *exec.Cmd) {}

// terminate falls back to Process.Kill; Windows has no SIGTERM.
func terminate(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}

// forceKill kills the process.
func forceKill(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}
