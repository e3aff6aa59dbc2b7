package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// FakeTool writes an executable shell script standing in for the completion
// tool and returns its path. body runs under /bin/sh with the tool's
// arguments in "$@".
func FakeTool(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tool scripts require /bin/sh")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-tool")
	script := "#!/bin/sh\n" + body + "\n"
	// #nosec G306 -- test script must be executable
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("writing fake tool: %v", err)
	}
	return path
}

// ToolPrinting returns a tool that prints output verbatim and exits 0.
func ToolPrinting(t *testing.T, output string) string {
	t.Helper()
	dir := t.TempDir()
	outPath := filepath.Join(dir, "output.txt")
	if err := os.WriteFile(outPath, []byte(output), 0o600); err != nil {
		t.Fatalf("writing fake output: %v", err)
	}
	return FakeTool(t, fmt.Sprintf("cat %s", shellQuote(outPath)))
}

// ToolSleeping returns a tool that sleeps for d before printing "done".
func ToolSleeping(t *testing.T, d time.Duration) string {
	t.Helper()
	return FakeTool(t, fmt.Sprintf("sleep %.3f\necho done", d.Seconds()))
}

// ToolFailing returns a tool that writes stderr and exits with code.
func ToolFailing(t *testing.T, code int, stderr string) string {
	t.Helper()
	return FakeTool(t, fmt.Sprintf("printf '%%s' %s >&2\nexit %d", shellQuote(stderr), code))
}

// ToolRecordingArgs returns a tool that writes each argument on its own line
// to the returned file, then prints output.
func ToolRecordingArgs(t *testing.T, output string) (tool, argsFile string) {
	t.Helper()
	dir := t.TempDir()
	argsFile = filepath.Join(dir, "args.txt")
	outPath := filepath.Join(dir, "output.txt")
	if err := os.WriteFile(outPath, []byte(output), 0o600); err != nil {
		t.Fatalf("writing fake output: %v", err)
	}
	body := fmt.Sprintf("for a in \"$@\"; do printf '%%s\\n' \"$a\" >> %s; done\ncat %s",
		shellQuote(argsFile), shellQuote(outPath))
	return FakeTool(t, body), argsFile
}

// ToolIgnoringTerm returns a tool that traps SIGTERM and keeps sleeping, so
// only a kill stops it.
func ToolIgnoringTerm(t *testing.T) string {
	t.Helper()
	return FakeTool(t, "trap '' TERM\nwhile true; do sleep 0.05; done")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
