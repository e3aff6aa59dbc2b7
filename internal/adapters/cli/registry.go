package cli

import (
	"sort"
	"sync"
	"time"
)

// ProcessRegistry maps correlation ids to live attempts. An entry exists
// exactly while its attempt is running.
type ProcessRegistry struct {
	mu      sync.Mutex
	entries map[string]*attempt
}

// NewProcessRegistry creates an empty registry.
func NewProcessRegistry() *ProcessRegistry {
	return &ProcessRegistry{entries: make(map[string]*attempt)}
}

// add registers a. It fails if the id is already live.
func (r *ProcessRegistry) add(a *attempt) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[a.id]; exists {
		return false
	}
	r.entries[a.id] = a
	return true
}

func (r *ProcessRegistry) get(id string) (*attempt, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.entries[id]
	return a, ok
}

// remove deletes the entry for a.id only if it still refers to a.
func (r *ProcessRegistry) remove(a *attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.entries[a.id]; ok && cur == a {
		delete(r.entries, a.id)
	}
}

// Has reports whether a correlation id is still running.
func (r *ProcessRegistry) Has(id string) bool {
	_, ok := r.get(id)
	return ok
}

// Len returns the number of live attempts.
func (r *ProcessRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// LiveProcess describes a running attempt.
type LiveProcess struct {
	CorrelationID string
	PID           int
	Started       time.Time
}

// Snapshot lists live attempts ordered by start time.
func (r *ProcessRegistry) Snapshot() []LiveProcess {
	r.mu.Lock()
	out := make([]LiveProcess, 0, len(r.entries))
	for id, a := range r.entries {
		lp := LiveProcess{CorrelationID: id, Started: a.started}
		if a.cmd != nil && a.cmd.Process != nil {
			lp.PID = a.cmd.Process.Pid
		}
		out = append(out, lp)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Started.Equal(out[j].Started) {
			return out[i].CorrelationID < out[j].CorrelationID
		}
		return out[i].Started.Before(out[j].Started)
	})
	return out
}
