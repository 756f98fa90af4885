// Package metrics records monitoring runs as Prometheus metrics.
//
// changewatch is a batch job, so metrics are not scraped from a listener;
// they are written to a node-exporter textfile at the end of a run.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all changewatch metrics
const namespace = "changewatch"

// Run outcomes.
const (
	OutcomeBaseline  = "baseline"
	OutcomeChanged   = "changed"
	OutcomeUnchanged = "unchanged"
	OutcomeSkipped   = "skipped"
	OutcomeError     = "error"
)

// Notification results.
const (
	NotifySent    = "sent"
	NotifySkipped = "skipped"
	NotifyFailed  = "failed"
)

// Recorder owns a registry and the metrics registered on it.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	Registry *prometheus.Registry

	runs          *prometheus.CounterVec
	changes       *prometheus.CounterVec
	items         *prometheus.GaugeVec
	runDuration   *prometheus.HistogramVec
	lastRun       *prometheus.GaugeVec
	notifications *prometheus.CounterVec
	pruned        *prometheus.CounterVec
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		Registry: reg,
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Monitoring cycles by source and outcome (baseline, changed, unchanged, error)",
			},
			[]string{"source", "outcome"},
		),
		changes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "changes_total",
				Help:      "Detected changes by source and kind (new, removed, modified)",
			},
			[]string{"source", "kind"},
		),
		items: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "snapshot_items",
				Help:      "Number of records observed in the latest cycle",
			},
			[]string{"source"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of one source cycle in seconds",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"source"},
		),
		lastRun: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time of the last completed cycle",
			},
			[]string{"source"},
		),
		notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Notification attempts by channel and result (sent, skipped, failed)",
			},
			[]string{"channel", "result"},
		),
		pruned: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshots_pruned_total",
				Help:      "Snapshots deleted by retention",
			},
			[]string{"source"},
		),
	}
}

// ObserveRun records one finished cycle.
func (r *Recorder) ObserveRun(source, outcome string, d time.Duration, finished time.Time) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(source, outcome).Inc()
	r.runDuration.WithLabelValues(source).Observe(d.Seconds())
	r.lastRun.WithLabelValues(source).Set(float64(finished.Unix()))
}

// ObserveChanges adds the bucket sizes of a report.
func (r *Recorder) ObserveChanges(source string, added, removed, modified int) {
	if r == nil {
		return
	}
	r.changes.WithLabelValues(source, "new").Add(float64(added))
	r.changes.WithLabelValues(source, "removed").Add(float64(removed))
	r.changes.WithLabelValues(source, "modified").Add(float64(modified))
}

// SetItems records the size of the observed record list.
func (r *Recorder) SetItems(source string, n int) {
	if r == nil {
		return
	}
	r.items.WithLabelValues(source).Set(float64(n))
}

// ObserveNotification counts one channel attempt.
func (r *Recorder) ObserveNotification(channel, result string) {
	if r == nil {
		return
	}
	r.notifications.WithLabelValues(channel, result).Inc()
}

// ObservePruned counts snapshots removed by retention.
func (r *Recorder) ObservePruned(source string, n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.pruned.WithLabelValues(source).Add(float64(n))
}

// WriteTextfile writes every metric in the Prometheus text format to path,
// atomically, for the node-exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
