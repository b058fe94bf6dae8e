// Package metrics exports import run counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/fleetsync/internal/core"
)

const namespace = "fleetsync"

// Recorder implements core.Observer on a private Prometheus registry.
type Recorder struct {
	registry *prometheus.Registry

	records   *prometheus.CounterVec
	conflicts *prometheus.CounterVec
	runs      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewRecorder builds a recorder. Go runtime and process collectors are
// registered alongside the import metrics.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Source records reconciled, by feed, action and result.",
		}, []string{"feed", "action", "result", "dry_run"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relationship_conflicts_total",
			Help:      "Relationship assignments dropped because the reference was held elsewhere.",
		}, []string{"feed"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Import runs, by feed and result.",
		}, []string{"feed", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of import runs.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"feed"}),
	}
	r.registry.MustRegister(
		r.records, r.conflicts, r.runs, r.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveRecord counts one record outcome.
func (r *Recorder) ObserveRecord(feed string, outcome core.Outcome, dryRun bool) {
	result := "ok"
	action := string(outcome.Action)
	if outcome.Failed() {
		result = "failed"
		if outcome.Code != "" {
			result = outcome.Code
		}
	}
	if action == "" {
		action = "none"
	}
	r.records.WithLabelValues(feed, action, result, boolLabel(dryRun)).Inc()
	if n := len(outcome.Conflicts); n > 0 {
		r.conflicts.WithLabelValues(feed).Add(float64(n))
	}
}

// ObserveRun counts a finished run. report may be nil when the run never started.
func (r *Recorder) ObserveRun(feed string, report *core.Report, err error) {
	result := "ok"
	switch {
	case err != nil:
		result = core.MapError(err).Code
	case report != nil && report.Failed > 0:
		result = "partial"
	}
	r.runs.WithLabelValues(feed, result).Inc()
	if report != nil && report.Duration > 0 {
		r.duration.WithLabelValues(feed).Observe(report.Duration.Seconds())
	}
}

// Handler serves the registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		Registry: r.registry,
		Timeout:  10 * time.Second,
	})
}

// Registry exposes the underlying registry, e.g. for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

var _ core.Observer = (*Recorder)(nil)
