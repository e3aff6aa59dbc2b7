// Package metrics exports refinement metrics in Prometheus format.
package metrics

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowcanvas/flowrefine/internal/service/refine"
)

const namespace = "flowrefine"

// Recorder records one observation per refinement. Each Recorder owns its
// registry so tests and embedded servers never collide on global state.
type Recorder struct {
	registry *prometheus.Registry

	refinementsTotal   *prometheus.CounterVec
	refinementDuration *prometheus.HistogramVec
	lastRefinement     prometheus.Gauge

	mu    sync.RWMutex
	modes map[string]*ModeStats
}

// ModeStats aggregates outcomes for one refinement mode.
type ModeStats struct {
	Mode           string         `json:"mode"`
	Total          int            `json:"total"`
	Successes      int            `json:"successes"`
	Clarifications int            `json:"clarifications"`
	Errors         map[string]int `json:"errors"`
	TotalDuration  time.Duration  `json:"total_duration"`
	AvgDuration    time.Duration  `json:"avg_duration"`
}

// Option configures a Recorder.
type Option func(*options)

type options struct {
	runtimeCollectors bool
}

// WithRuntimeCollectors also registers the Go runtime and process collectors.
func WithRuntimeCollectors() Option {
	return func(o *options) { o.runtimeCollectors = true }
}

// NewRecorder creates a recorder with a fresh registry.
func NewRecorder(opts ...Option) *Recorder {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	r := &Recorder{
		registry: prometheus.NewRegistry(),
		refinementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refinements_total",
				Help:      "Total number of refinements by mode, outcome and error code",
			},
			[]string{"mode", "outcome", "code"},
		),
		refinementDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "refinement_duration_seconds",
				Help:      "Duration of refinements in seconds",
				Buckets:   []float64{.5, 1, 2.5, 5, 10, 20, 30, 60, 90, 120},
			},
			[]string{"mode", "outcome"},
		),
		lastRefinement: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_refinement_timestamp_seconds",
				Help:      "Unix time of the most recent refinement",
			},
		),
		modes: make(map[string]*ModeStats),
	}

	r.registry.MustRegister(r.refinementsTotal, r.refinementDuration, r.lastRefinement)
	if o.runtimeCollectors {
		r.registry.MustRegister(collectors.NewGoCollector())
		r.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return r
}

// ObserveRefinement implements refine.Observer.
func (r *Recorder) ObserveRefinement(mode string, outcome refine.Outcome, code string, elapsed time.Duration) {
	r.refinementsTotal.WithLabelValues(mode, string(outcome), code).Inc()
	r.refinementDuration.WithLabelValues(mode, string(outcome)).Observe(elapsed.Seconds())
	r.lastRefinement.SetToCurrentTime()

	r.mu.Lock()
	defer r.mu.Unlock()

	stats, ok := r.modes[mode]
	if !ok {
		stats = &ModeStats{Mode: mode, Errors: make(map[string]int)}
		r.modes[mode] = stats
	}
	stats.Total++
	stats.TotalDuration += elapsed
	stats.AvgDuration = stats.TotalDuration / time.Duration(stats.Total)
	switch outcome {
	case refine.OutcomeSuccess:
		stats.Successes++
	case refine.OutcomeClarification:
		stats.Clarifications++
	default:
		stats.Errors[code]++
	}
}

// Snapshot returns per-mode totals sorted by mode name.
func (r *Recorder) Snapshot() []ModeStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ModeStats, 0, len(r.modes))
	for _, s := range r.modes {
		cp := *s
		cp.Errors = make(map[string]int, len(s.Errors))
		for k, v := range s.Errors {
			cp.Errors[k] = v
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mode < out[j].Mode })
	return out
}

// Registry returns the underlying Prometheus registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

var _ refine.Observer = (*Recorder)(nil)
