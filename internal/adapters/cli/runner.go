package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/flowcanvas/flowrefine/internal/core"
	"github.com/flowcanvas/flowrefine/internal/diagnostics"
	"github.com/flowcanvas/flowrefine/internal/logging"
)

// ErrorKind classifies a failed run. Values match the public error codes.
type ErrorKind string

const (
	KindCommandNotFound ErrorKind = core.CodeCommandNotFound
	KindTimeout         ErrorKind = core.CodeTimeout
	KindCancelled       ErrorKind = core.CodeCancelled
	KindUnknown         ErrorKind = core.CodeUnknownError
)

// RunError describes why a run did not succeed.
type RunError struct {
	Kind    ErrorKind
	Message string
	Details map[string]interface{}
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// RunRequest is a single tool invocation.
type RunRequest struct {
	Prompt string
	// Timeout bounds the run. Zero uses the runner default.
	Timeout time.Duration
	// CorrelationID makes the run cancellable. Empty runs are not registered.
	CorrelationID string
}

// RunResult is the outcome of Run. Exactly one of Output and Err is meaningful.
type RunResult struct {
	Success bool
	Output  string
	Err     *RunError
	Elapsed time.Duration
}

// CancelResult is the outcome of Cancel.
type CancelResult struct {
	Cancelled bool
	// Elapsed is how long the attempt had been running when cancelled.
	Elapsed time.Duration
}

// Config configures the runner.
type Config struct {
	// Path is the tool command. Multi-word values ("npx claude") are split.
	Path        string
	ExtraArgs   []string
	Timeout     time.Duration
	GracePeriod time.Duration
	StderrLimit int
	WorkDir     string
}

// Runner spawns the completion tool, one subprocess per Run.
type Runner struct {
	cfg       Config
	registry  *ProcessRegistry
	logger    *logging.Logger
	preflight *diagnostics.Preflight
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRegistry shares a process registry between runners.
func WithRegistry(reg *ProcessRegistry) Option {
	return func(r *Runner) {
		if reg != nil {
			r.registry = reg
		}
	}
}

// WithPreflight enables resource checks before each spawn.
func WithPreflight(p *diagnostics.Preflight) Option {
	return func(r *Runner) {
		r.preflight = p
	}
}

// NewRunner creates a runner with its own process registry.
func NewRunner(cfg Config, opts ...Option) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 500 * time.Millisecond
	}
	if cfg.StderrLimit <= 0 {
		cfg.StderrLimit = 500
	}
	r := &Runner{
		cfg:      cfg,
		registry: NewProcessRegistry(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the runner's process registry.
func (r *Runner) Registry() *ProcessRegistry {
	return r.registry
}

// command builds argv: <tool> [extra args...] -p <prompt>.
func (r *Runner) command(prompt string) (string, []string, error) {
	parts := strings.Fields(r.cfg.Path)
	if len(parts) == 0 {
		return "", nil, errors.New("tool path not configured")
	}
	args := make([]string, 0, len(parts)+len(r.cfg.ExtraArgs)+1)
	args = append(args, parts[1:]...)
	args = append(args, r.cfg.ExtraArgs...)
	args = append(args, "-p", prompt)
	return parts[0], args, nil
}

// Run spawns the tool with the prompt and waits for exit, timeout, or
// cancellation, whichever comes first.
func (r *Runner) Run(ctx context.Context, req RunRequest) RunResult {
	start := time.Now()
	fail := func(kind ErrorKind, msg string, details map[string]interface{}) RunResult {
		return RunResult{
			Err:     &RunError{Kind: kind, Message: msg, Details: details},
			Elapsed: time.Since(start),
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.cfg.Timeout
	}

	if r.preflight.Enabled() {
		check := r.preflight.Check(ctx)
		for _, w := range check.Warnings {
			r.logger.Warn("runner: preflight warning", "warning", w)
		}
		if !check.OK {
			return fail(KindUnknown, "preflight check failed",
				map[string]interface{}{"errors": check.Errors})
		}
	}

	name, args, err := r.command(req.Prompt)
	if err != nil {
		return fail(KindCommandNotFound, err.Error(), nil)
	}

	// #nosec G204 -- command path comes from validated config
	cmd := exec.Command(name, args...)
	cmd.Dir = r.cfg.WorkDir
	// Stdin left nil: the child reads from the null device.
	configureProcAttr(cmd)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fail(KindUnknown, fmt.Sprintf("creating stdout pipe: %v", err), nil)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		_ = stdoutPipe.Close()
		return fail(KindUnknown, fmt.Sprintf("creating stderr pipe: %v", err), nil)
	}

	log := r.logger
	if req.CorrelationID != "" {
		log = log.WithRequest(req.CorrelationID)
	}
	log.Info("runner: executing command",
		"path", name,
		"extra_args", len(args)-2,
		"prompt_length", len(req.Prompt),
		"timeout", timeout,
	)

	if err := cmd.Start(); err != nil {
		// Start closes the pipes it created on failure.
		if isNotFound(err) {
			return fail(KindCommandNotFound, fmt.Sprintf("command not found: %s", name),
				map[string]interface{}{"command": name, "error": err.Error()})
		}
		return fail(KindUnknown, fmt.Sprintf("starting command: %v", err), nil)
	}

	att := newAttempt(req.CorrelationID, cmd, start)
	if req.CorrelationID != "" && !r.registry.add(att) {
		_ = forceKill(cmd.Process)
		_ = cmd.Wait()
		return fail(KindUnknown, "correlation id already in flight",
			map[string]interface{}{"correlation_id": req.CorrelationID})
	}
	log.Debug("runner: process started", "pid", cmd.Process.Pid)

	var stdout, stderr bytes.Buffer
	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		_, _ = io.Copy(&stdout, stdoutPipe)
	}()
	go func() {
		defer readers.Done()
		r.streamStderr(stderrPipe, &stderr, log)
	}()

	waitErr := make(chan error, 1)
	go func() {
		readers.Wait()
		err := cmd.Wait()
		close(att.exited)
		waitErr <- err
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-waitErr:
		to := StateExited
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			to = StateErrored
		}
		if !att.transition(to) {
			return r.lostRace(att, start)
		}
		r.registry.remove(att)
		return r.exitResult(att, err, stdout.String(), stderr.String(), start, log)

	case <-timer.C:
		if !att.transition(StateTimedOut) {
			return r.lostRace(att, start)
		}
		_ = forceKill(cmd.Process)
		r.registry.remove(att)
		log.Warn("runner: command timed out", "timeout", timeout, "pid", cmd.Process.Pid)
		return fail(KindTimeout, fmt.Sprintf("tool did not finish within %s", timeout),
			map[string]interface{}{"timeout_ms": timeout.Milliseconds()})

	case <-ctx.Done():
		if !att.transition(StateCancelled) {
			return r.lostRace(att, start)
		}
		r.registry.remove(att)
		go r.stop(context.Background(), att)
		log.Info("runner: context cancelled", "reason", ctx.Err())
		return fail(KindCancelled, "run cancelled", nil)

	case <-att.terminal:
		// Cancel won the race; it owns signalling and unregistering.
		return r.lostRace(att, start)
	}
}

// lostRace reports the state another transition already settled.
func (r *Runner) lostRace(att *attempt, start time.Time) RunResult {
	res := RunResult{Elapsed: time.Since(start)}
	switch att.State() {
	case StateCancelled:
		res.Err = &RunError{Kind: KindCancelled, Message: "run cancelled"}
	case StateTimedOut:
		res.Err = &RunError{Kind: KindTimeout, Message: "tool timed out"}
	default:
		res.Err = &RunError{Kind: KindUnknown, Message: "run ended in state " + att.State().String()}
	}
	return res
}

func (r *Runner) exitResult(att *attempt, waitErr error, stdout, stderr string, start time.Time, log *logging.Logger) RunResult {
	elapsed := time.Since(start)
	if waitErr != nil {
		details := map[string]interface{}{
			"stderr": truncateBytes(stderr, r.cfg.StderrLimit),
		}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			details["exit_code"] = exitErr.ExitCode()
			log.Error("runner: command failed", "exit_code", exitErr.ExitCode(), "duration", elapsed)
			return RunResult{
				Err: &RunError{
					Kind:    KindUnknown,
					Message: fmt.Sprintf("tool exited with code %d", exitErr.ExitCode()),
					Details: details,
				},
				Elapsed: elapsed,
			}
		}
		log.Error("runner: command error", "error", waitErr, "state", att.State())
		return RunResult{
			Err:     &RunError{Kind: KindUnknown, Message: waitErr.Error(), Details: details},
			Elapsed: elapsed,
		}
	}

	output, envErr := unwrapEnvelope(stdout)
	if envErr != "" {
		return RunResult{
			Err:     &RunError{Kind: KindUnknown, Message: envErr},
			Elapsed: elapsed,
		}
	}
	log.Info("runner: command completed", "duration", elapsed, "stdout_length", len(stdout))
	return RunResult{Success: true, Output: output, Elapsed: elapsed}
}

// Cancel stops the run registered under id. It sends a termination signal,
// waits up to the grace period, then kills. Unknown or finished ids report
// Cancelled=false.
func (r *Runner) Cancel(ctx context.Context, id string) CancelResult {
	att, ok := r.registry.get(id)
	if !ok {
		return CancelResult{}
	}
	if !att.transition(StateCancelled) {
		return CancelResult{}
	}
	elapsed := time.Since(att.started)
	r.logger.WithRequest(id).Info("runner: cancelling", "running_for", elapsed)

	r.stop(ctx, att)
	r.registry.remove(att)
	return CancelResult{Cancelled: true, Elapsed: elapsed}
}

// stop terminates the attempt's process group in two phases.
func (r *Runner) stop(ctx context.Context, att *attempt) {
	proc := att.cmd.Process
	if err := terminate(proc); err != nil {
		r.logger.Debug("runner: terminate failed", "error", err)
	}

	grace := time.NewTimer(r.cfg.GracePeriod)
	defer grace.Stop()

	select {
	case <-att.exited:
	case <-grace.C:
		_ = forceKill(proc)
	case <-ctx.Done():
		_ = forceKill(proc)
	}
}

func (r *Runner) streamStderr(pipe io.Reader, buf *bytes.Buffer, log *logging.Logger) {
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')
		if line != "" {
			log.Debug("runner: stderr", "line", logging.Truncate(line, 500))
		}
	}
	// Drain anything left after a scanner error so the child never blocks.
	_, _ = io.Copy(buf, pipe)
}

// CheckAvailability verifies the tool is installed and on PATH.
func (r *Runner) CheckAvailability(_ context.Context) error {
	parts := strings.Fields(r.cfg.Path)
	if len(parts) == 0 {
		return core.ErrValidation("NO_PATH", "tool path not configured")
	}
	if _, err := exec.LookPath(parts[0]); err != nil {
		return core.ErrCommandNotFound(parts[0]).WithCause(err)
	}
	return nil
}

var versionPattern = regexp.MustCompile(`v?\d+\.\d+(\.\d+)?(-[a-zA-Z0-9]+)?`)

// Version runs `<tool> --version` and extracts a version string.
func (r *Runner) Version(ctx context.Context) (string, error) {
	parts := strings.Fields(r.cfg.Path)
	if len(parts) == 0 {
		return "", core.ErrValidation("NO_PATH", "tool path not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	args := append(append([]string{}, parts[1:]...), "--version")
	// #nosec G204 -- command path comes from validated config
	out, err := exec.CommandContext(ctx, parts[0], args...).CombinedOutput()
	if err != nil {
		if isNotFound(err) {
			return "", core.ErrCommandNotFound(parts[0]).WithCause(err)
		}
		return "", fmt.Errorf("running %s --version: %w", parts[0], err)
	}
	if match := versionPattern.FindString(string(out)); match != "" {
		return match, nil
	}
	return strings.TrimSpace(string(out)), nil
}

func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}

// cliEnvelope is the JSON wrapper emitted with --output-format json.
type cliEnvelope struct {
	Type    string  `json:"type"`
	Result  *string `json:"result"`
	IsError bool    `json:"is_error"`
}

// unwrapEnvelope returns the inner result text when stdout is a CLI JSON
// envelope, otherwise stdout unchanged. A non-empty second value reports an
// error flagged inside the envelope.
func unwrapEnvelope(stdout string) (string, string) {
	trimmed := strings.TrimSpace(stdout)
	if !strings.HasPrefix(trimmed, "{") || !strings.Contains(trimmed, `"type"`) {
		return stdout, ""
	}
	var env cliEnvelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil || env.Type != "result" || env.Result == nil {
		return stdout, ""
	}
	if env.IsError {
		return "", "tool reported an error: " + truncateBytes(*env.Result, 500)
	}
	return *env.Result, ""
}

func truncateBytes(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit]
}
