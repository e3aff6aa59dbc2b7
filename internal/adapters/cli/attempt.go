package cli

import (
	"os/exec"
	"sync/atomic"
	"time"
)

// AttemptState is the lifecycle state of one tool invocation.
type AttemptState int32

const (
	StatePending AttemptState = iota
	StateExited
	StateErrored
	StateTimedOut
	StateCancelled
)

func (s AttemptState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateExited:
		return "exited"
	case StateErrored:
		return "errored"
	case StateTimedOut:
		return "timed_out"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// attempt tracks a single subprocess. Exactly one transition out of
// StatePending succeeds; every later transition is a no-op.
type attempt struct {
	id      string
	cmd     *exec.Cmd
	started time.Time

	state atomic.Int32
	// terminal is closed by the winning transition.
	terminal chan struct{}
	// exited is closed once cmd.Wait has returned.
	exited chan struct{}
}

func newAttempt(id string, cmd *exec.Cmd, started time.Time) *attempt {
	return &attempt{
		id:       id,
		cmd:      cmd,
		started:  started,
		terminal: make(chan struct{}),
		exited:   make(chan struct{}),
	}
}

// transition moves the attempt from pending to to. It reports whether this
// call won.
func (a *attempt) transition(to AttemptState) bool {
	if !a.state.CompareAndSwap(int32(StatePending), int32(to)) {
		return false
	}
	close(a.terminal)
	return true
}

func (a *attempt) State() AttemptState {
	return AttemptState(a.state.Load())
}
